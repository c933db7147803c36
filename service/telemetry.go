package service

import "time"

// TelemetryTracker observes one generation's event sequence and derives the
// tokens-per-second figure once generation ends. Pre-generation latency
// (queueing, prompt upload) is excluded: timing starts at the first reasoning
// delta when reasoning occurred, otherwise at the first delta of any kind.
type TelemetryTracker struct {
	start          time.Time
	firstDelta     time.Time
	firstReasoning time.Time
	end            time.Time
}

func NewTelemetryTracker(start time.Time) *TelemetryTracker {
	return &TelemetryTracker{start: start}
}

func (t *TelemetryTracker) Observe(ev StreamEvent) {
	t.ObserveAt(ev, time.Now())
}

// ObserveAt is the clock-injected form used by tests.
func (t *TelemetryTracker) ObserveAt(ev StreamEvent, now time.Time) {
	switch ev.Kind {
	case EventTextDelta, EventReasoningDelta, EventToolCall, EventToolResult:
		if t.firstDelta.IsZero() {
			t.firstDelta = now
		}
	default:
		return
	}
	if ev.Kind == EventReasoningDelta && t.firstReasoning.IsZero() {
		t.firstReasoning = now
	}
}

func (t *TelemetryTracker) Finish() {
	t.FinishAt(time.Now())
}

func (t *TelemetryTracker) FinishAt(now time.Time) {
	t.end = now
}

// FirstChunkAt reports when the first delta of any kind arrived, or nil.
func (t *TelemetryTracker) FirstChunkAt() *time.Time {
	if t.firstDelta.IsZero() {
		return nil
	}
	first := t.firstDelta
	return &first
}

// TokensPerSecond computes the throughput metric, or nil when it cannot be
// derived. The metric is positive or absent; a missing figure is never
// reported as zero.
func (t *TelemetryTracker) TokensPerSecond(usage TokenUsage) *float64 {
	genStart := t.firstDelta
	if !t.firstReasoning.IsZero() {
		genStart = t.firstReasoning
	}
	if genStart.IsZero() || t.end.IsZero() {
		return nil
	}
	duration := t.end.Sub(genStart)
	if duration <= 0 {
		return nil
	}

	var tokens int64
	if usage.ReasoningTokens > 0 {
		tokens = usage.OutputTokens + usage.ReasoningTokens
	} else {
		tokens = usage.TotalTokens - usage.InputTokens
	}
	if tokens <= 0 {
		return nil
	}

	tps := float64(tokens) / duration.Seconds()
	return &tps
}
