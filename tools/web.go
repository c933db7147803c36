package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

const (
	maxSearchResults = 5
	maxPageMarkdown  = 8 * 1024
)

type searchResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Age         string `json:"age,omitempty"`
}

func newWebSearchTool(cfg Config) Definition {
	return Definition{
		Name:        "web_search",
		Description: "Search the web. Returns the top results with title, url and description.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "The search query."},
			},
			"required": []string{"query"},
		},
		execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}
			endpoint := fmt.Sprintf("%s/web/search?q=%s&count=%d", cfg.SearchBaseURL, url.QueryEscape(query), maxSearchResults)
			var payload struct {
				Web struct {
					Results []searchResult `json:"results"`
				} `json:"web"`
			}
			if err := getJSON(ctx, cfg, endpoint, map[string]string{"X-Subscription-Token": cfg.SearchAPIKey}, &payload); err != nil {
				return nil, err
			}
			return map[string]any{"results": payload.Web.Results}, nil
		},
	}
}

func newNewsSearchTool(cfg Config) Definition {
	return Definition{
		Name:        "news_search",
		Description: "Search recent news articles. Returns the top results with title, url, description and age.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "The news search query."},
			},
			"required": []string{"query"},
		},
		execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}
			endpoint := fmt.Sprintf("%s/news/search?q=%s&count=%d", cfg.SearchBaseURL, url.QueryEscape(query), maxSearchResults)
			var payload struct {
				Results []searchResult `json:"results"`
			}
			if err := getJSON(ctx, cfg, endpoint, map[string]string{"X-Subscription-Token": cfg.SearchAPIKey}, &payload); err != nil {
				return nil, err
			}
			return map[string]any{"results": payload.Results}, nil
		},
	}
}

func newReadPageTool(cfg Config) Definition {
	return Definition{
		Name:        "read_page",
		Description: "Fetch a web page and return its content converted to markdown, truncated to a few kilobytes.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{"type": "string", "description": "The page URL to fetch."},
			},
			"required": []string{"url"},
		},
		execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			pageURL, err := stringArg(args, "url")
			if err != nil {
				return nil, err
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create request: %w", err)
			}
			resp, err := cfg.HTTPClient.Do(req)
			if err != nil {
				return nil, fmt.Errorf("failed to fetch page: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
			}
			body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			if err != nil {
				return nil, fmt.Errorf("failed to read response body: %w", err)
			}
			content, err := htmltomarkdown.ConvertString(string(body))
			if err != nil {
				return nil, fmt.Errorf("failed to convert page to markdown: %w", err)
			}
			if len(content) > maxPageMarkdown {
				content = content[:maxPageMarkdown] + "\n\n[truncated]"
			}
			return map[string]string{"url": pageURL, "markdown": content}, nil
		},
	}
}

func stringArg(args json.RawMessage, key string) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(args, &m); err != nil {
		return "", fmt.Errorf("failed to parse tool arguments: %w", err)
	}
	v, _ := m[key].(string)
	if v == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return v, nil
}

func getJSON(ctx context.Context, cfg Config, endpoint string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return nil
}
