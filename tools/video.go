package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

func newVideoSearchTool(cfg Config) Definition {
	return Definition{
		Name:        "video_search",
		Description: "Search for videos. Returns video ids, titles, channels and publish dates.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "The video search query."},
			},
			"required": []string{"query"},
		},
		execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			query, err := stringArg(args, "query")
			if err != nil {
				return nil, err
			}
			endpoint := fmt.Sprintf("%s/search?part=snippet&type=video&maxResults=%d&q=%s&key=%s",
				cfg.VideoBaseURL, maxSearchResults, url.QueryEscape(query), cfg.VideoAPIKey)
			var payload struct {
				Items []struct {
					ID struct {
						VideoID string `json:"videoId"`
					} `json:"id"`
					Snippet struct {
						Title        string `json:"title"`
						ChannelTitle string `json:"channelTitle"`
						PublishedAt  string `json:"publishedAt"`
						Description  string `json:"description"`
					} `json:"snippet"`
				} `json:"items"`
			}
			if err := getJSON(ctx, cfg, endpoint, nil, &payload); err != nil {
				return nil, err
			}
			results := make([]map[string]string, 0, len(payload.Items))
			for _, item := range payload.Items {
				results = append(results, map[string]string{
					"video_id":     item.ID.VideoID,
					"title":        item.Snippet.Title,
					"channel":      item.Snippet.ChannelTitle,
					"published_at": item.Snippet.PublishedAt,
					"description":  item.Snippet.Description,
				})
			}
			return map[string]any{"results": results}, nil
		},
	}
}

func newVideoDetailsTool(cfg Config) Definition {
	return Definition{
		Name:        "video_details",
		Description: "Look up a single video by id. Returns title, channel, duration and view statistics.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"video_id": map[string]any{"type": "string", "description": "The video id from video_search."},
			},
			"required": []string{"video_id"},
		},
		execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			videoID, err := stringArg(args, "video_id")
			if err != nil {
				return nil, err
			}
			endpoint := fmt.Sprintf("%s/videos?part=snippet,contentDetails,statistics&id=%s&key=%s",
				cfg.VideoBaseURL, url.QueryEscape(videoID), cfg.VideoAPIKey)
			var payload struct {
				Items []struct {
					Snippet struct {
						Title        string `json:"title"`
						ChannelTitle string `json:"channelTitle"`
						PublishedAt  string `json:"publishedAt"`
						Description  string `json:"description"`
					} `json:"snippet"`
					ContentDetails struct {
						Duration string `json:"duration"`
					} `json:"contentDetails"`
					Statistics struct {
						ViewCount string `json:"viewCount"`
						LikeCount string `json:"likeCount"`
					} `json:"statistics"`
				} `json:"items"`
			}
			if err := getJSON(ctx, cfg, endpoint, nil, &payload); err != nil {
				return nil, err
			}
			if len(payload.Items) == 0 {
				return nil, fmt.Errorf("video %s not found", videoID)
			}
			item := payload.Items[0]
			return map[string]string{
				"video_id":     videoID,
				"title":        item.Snippet.Title,
				"channel":      item.Snippet.ChannelTitle,
				"published_at": item.Snippet.PublishedAt,
				"description":  item.Snippet.Description,
				"duration":     item.ContentDetails.Duration,
				"views":        item.Statistics.ViewCount,
				"likes":        item.Statistics.LikeCount,
			}, nil
		},
	}
}

func newVideoTranscriptTool(cfg Config) Definition {
	return Definition{
		Name:        "video_transcript",
		Description: "Fetch the transcript of a video by id.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"video_id": map[string]any{"type": "string", "description": "The video id from video_search."},
			},
			"required": []string{"video_id"},
		},
		execute: func(ctx context.Context, args json.RawMessage) (any, error) {
			videoID, err := stringArg(args, "video_id")
			if err != nil {
				return nil, err
			}
			endpoint := fmt.Sprintf("%s/transcript?video_id=%s", cfg.TranscriptBaseURL, url.QueryEscape(videoID))
			var payload struct {
				Transcript string `json:"transcript"`
			}
			if err := getJSON(ctx, cfg, endpoint, map[string]string{"X-Api-Key": cfg.VideoAPIKey}, &payload); err != nil {
				return nil, err
			}
			if len(payload.Transcript) > maxPageMarkdown {
				payload.Transcript = payload.Transcript[:maxPageMarkdown] + "\n\n[truncated]"
			}
			return map[string]string{"video_id": videoID, "transcript": payload.Transcript}, nil
		},
	}
}
