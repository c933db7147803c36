package service

import (
	"context"
	"encoding/json"

	"streamchat/model"
	"streamchat/tools"
)

// EventKind tags one record on the live output channel.
type EventKind string

const (
	EventTextDelta      EventKind = "text-delta"
	EventReasoningDelta EventKind = "reasoning-delta"
	EventToolCall       EventKind = "tool-call"
	EventToolResult     EventKind = "tool-result"
	EventFinish         EventKind = "finish"
	EventError          EventKind = "error"
)

// ToolCallInfo announces a tool call the model has finished emitting.
type ToolCallInfo struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// ToolResultInfo carries one executed tool's payload.
type ToolResultInfo struct {
	ID     string          `json:"id"`
	Name   string          `json:"name"`
	Result json.RawMessage `json:"result,omitempty"`
}

// FinishInfo closes a successful generation.
type FinishInfo struct {
	TokensPerSecond *float64 `json:"tokens_per_second,omitempty"`
	TotalTokens     int64    `json:"total_tokens,omitempty"`
	Steps           int      `json:"steps"`
}

// StreamEvent is one discrete, ordered record of the live output channel.
// Exactly the payload matching Kind is set.
type StreamEvent struct {
	Kind       EventKind       `json:"kind"`
	Delta      string          `json:"delta,omitempty"`
	ToolCall   *ToolCallInfo   `json:"tool_call,omitempty"`
	ToolResult *ToolResultInfo `json:"tool_result,omitempty"`
	Finish     *FinishInfo     `json:"finish,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// Sink receives relayed events; the SSE writer in the controller implements
// it. A Send error means the caller is gone.
type Sink interface {
	Send(ev StreamEvent) error
}

// ChatTurn is one prior conversation turn, flattened to text.
type ChatTurn struct {
	Role string
	Text string
}

// ToolCallRecord is one tool call requested by the model during a step.
type ToolCallRecord struct {
	ID   string
	Name string
	Args json.RawMessage
}

// ToolOutcome pairs a call with its captured result. Result stays nil when
// execution never produced output; the record is still kept.
type ToolOutcome struct {
	Call    ToolCallRecord
	Result  json.RawMessage
	Errored bool
}

// GeneratedFile is inline media produced by the model.
type GeneratedFile struct {
	MimeType string
	Data     []byte
}

// TokenUsage holds the usage counters reported for one step.
type TokenUsage struct {
	InputTokens     int64
	OutputTokens    int64
	ReasoningTokens int64
	TotalTokens     int64
}

func (u TokenUsage) add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:     u.InputTokens + o.InputTokens,
		OutputTokens:    u.OutputTokens + o.OutputTokens,
		ReasoningTokens: u.ReasoningTokens + o.ReasoningTokens,
		TotalTokens:     u.TotalTokens + o.TotalTokens,
	}
}

// StepResult is the immutable outcome of one model call within a generation.
type StepResult struct {
	Text         string
	Reasoning    string
	ToolCalls    []ToolCallRecord
	Files        []GeneratedFile
	Usage        TokenUsage
	FinishReason string
}

// StepRecord is one completed step: the model's result and the executed tool
// outcomes, in call order.
type StepRecord struct {
	Result   StepResult
	Outcomes []ToolOutcome
}

// StepRequest is everything the model client needs to run one step.
type StepRequest struct {
	Spec            model.ModelSpec
	System          string
	History         []ChatTurn
	Steps           []StepRecord
	Tools           []tools.Definition
	ReasoningEffort string
}

// ModelClient drives a single model step and streams its typed events.
type ModelClient interface {
	StreamStep(ctx context.Context, req StepRequest) *StepStream
}

// StepStream delivers one step's events on a channel; the final StepResult is
// available once the channel is closed. This keeps the model invocation, the
// relay, the telemetry tracker and the checkpoint writer decoupled consumers
// of one sequence instead of callbacks sharing mutable state.
type StepStream struct {
	events chan StreamEvent
	result StepResult
	err    error
}

func NewStepStream() *StepStream {
	return &StepStream{events: make(chan StreamEvent, 32)}
}

// Emit publishes one event. Only the producing goroutine calls Emit.
func (s *StepStream) Emit(ev StreamEvent) {
	s.events <- ev
}

// Close records the step outcome and closes the event channel.
func (s *StepStream) Close(result StepResult, err error) {
	s.result = result
	s.err = err
	close(s.events)
}

// Events returns the ordered event sequence for this step.
func (s *StepStream) Events() <-chan StreamEvent {
	return s.events
}

// Result is valid once Events has been drained.
func (s *StepStream) Result() (StepResult, error) {
	return s.result, s.err
}
