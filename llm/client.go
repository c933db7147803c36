// Package llm drives an OpenAI-compatible chat completions endpoint and
// adapts its SSE chunks into the typed event stream the orchestrator
// consumes.
package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/sirupsen/logrus"

	"streamchat/model"
	"streamchat/service"
)

type Client struct {
	api    openai.Client
	logger *logrus.Logger
}

func NewClient(baseURL, apiKey string, logger *logrus.Logger) *Client {
	return &Client{
		api: openai.NewClient(
			option.WithBaseURL(baseURL),
			option.WithAPIKey(apiKey),
		),
		logger: logger,
	}
}

// StreamStep runs one model call and streams its typed events; the final
// StepResult carries the accumulated text, tool calls, media and usage.
func (c *Client) StreamStep(ctx context.Context, req service.StepRequest) *service.StepStream {
	out := service.NewStepStream()
	go c.run(ctx, req, out)
	return out
}

func (c *Client) run(ctx context.Context, req service.StepRequest, out *service.StepStream) {
	stream := c.api.Chat.Completions.NewStreaming(ctx, buildParams(req))
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	announced := map[int]bool{}
	var res service.StepResult

	announce := func(index int) {
		if announced[index] || len(acc.Choices) == 0 {
			return
		}
		calls := acc.Choices[0].Message.ToolCalls
		if index < 0 || index >= len(calls) {
			return
		}
		announced[index] = true
		call := calls[index]
		out.Emit(service.StreamEvent{Kind: service.EventToolCall, ToolCall: &service.ToolCallInfo{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: json.RawMessage(call.Function.Arguments),
		}})
	}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 {
			delta := chunk.Choices[0].Delta
			if delta.Content != "" {
				res.Text += delta.Content
				out.Emit(service.StreamEvent{Kind: service.EventTextDelta, Delta: delta.Content})
			}
			if rc := reasoningDelta(delta); rc != "" {
				res.Reasoning += rc
				out.Emit(service.StreamEvent{Kind: service.EventReasoningDelta, Delta: rc})
			}
		}
		if call, ok := acc.JustFinishedToolCall(); ok {
			announce(call.Index)
		}
	}
	if err := stream.Err(); err != nil {
		out.Close(service.StepResult{}, fmt.Errorf("chat completion stream: %w", err))
		return
	}

	if len(acc.Choices) > 0 {
		msg := acc.Choices[0].Message
		// The trailing tool call only completes at stream end.
		for i := range msg.ToolCalls {
			announce(i)
		}
		for _, call := range msg.ToolCalls {
			res.ToolCalls = append(res.ToolCalls, service.ToolCallRecord{
				ID:   call.ID,
				Name: call.Function.Name,
				Args: json.RawMessage(call.Function.Arguments),
			})
		}
		res.FinishReason = string(acc.Choices[0].FinishReason)
		if req.Spec.EmitsImages {
			res.Files = extractImages(msg, c.logger)
		}
	}
	res.Usage = service.TokenUsage{
		InputTokens:     acc.Usage.PromptTokens,
		OutputTokens:    acc.Usage.CompletionTokens,
		ReasoningTokens: acc.Usage.CompletionTokensDetails.ReasoningTokens,
		TotalTokens:     acc.Usage.TotalTokens,
	}
	out.Close(res, nil)
}

func buildParams(req service.StepRequest) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.History)+2*len(req.Steps)+1)
	msgs = append(msgs, openai.SystemMessage(req.System))
	for _, turn := range req.History {
		if turn.Role == model.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(turn.Text))
		} else {
			msgs = append(msgs, openai.UserMessage(turn.Text))
		}
	}

	// Replay prior steps of this generation: the assistant's tool calls
	// followed by the tool results, so step n+1 sees what step n did.
	for _, step := range req.Steps {
		asst := openai.ChatCompletionAssistantMessageParam{}
		if step.Result.Text != "" {
			asst.Content.OfString = openai.String(step.Result.Text)
		}
		for _, call := range step.Result.ToolCalls {
			asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: call.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      call.Name,
					Arguments: string(call.Args),
				},
			})
		}
		msgs = append(msgs, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		for _, outcome := range step.Outcomes {
			result := string(outcome.Result)
			if result == "" {
				result = "null"
			}
			msgs = append(msgs, openai.ToolMessage(result, outcome.Call.ID))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(req.Spec.ID),
		Messages: msgs,
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	}
	if req.Spec.SupportsTools {
		for _, t := range req.Tools {
			params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        t.Name,
					Description: openai.String(t.Description),
					Parameters:  shared.FunctionParameters(t.Parameters),
				},
			})
		}
	}
	if req.Spec.SupportsReasoning && req.ReasoningEffort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(req.ReasoningEffort)
	}
	return params
}

// reasoningDelta pulls the reasoning_content field DeepSeek- and Qwen-style
// endpoints attach to streamed deltas.
func reasoningDelta(delta openai.ChatCompletionChunkChoiceDelta) string {
	field, ok := delta.JSON.ExtraFields["reasoning_content"]
	if !ok {
		return ""
	}
	var text string
	if err := json.Unmarshal([]byte(field.Raw()), &text); err != nil {
		return ""
	}
	return text
}

// extractImages reads inline generated images attached to the final message
// as an images extra field of data URLs.
func extractImages(msg openai.ChatCompletionMessage, logger *logrus.Logger) []service.GeneratedFile {
	field, ok := msg.JSON.ExtraFields["images"]
	if !ok {
		return nil
	}
	var items []struct {
		ImageURL struct {
			URL string `json:"url"`
		} `json:"image_url"`
	}
	if err := json.Unmarshal([]byte(field.Raw()), &items); err != nil {
		logger.Warnf("unreadable images field on completion: %s", err)
		return nil
	}
	var files []service.GeneratedFile
	for _, item := range items {
		mime, data, err := parseDataURL(item.ImageURL.URL)
		if err != nil {
			logger.Warnf("skipping generated image: %s", err)
			continue
		}
		files = append(files, service.GeneratedFile{MimeType: mime, Data: data})
	}
	return files
}

func parseDataURL(u string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(u, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data URL")
	}
	mime, _, _ := strings.Cut(meta, ";")
	if !strings.Contains(meta, "base64") {
		return "", nil, fmt.Errorf("unsupported data URL encoding")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	return mime, data, nil
}
