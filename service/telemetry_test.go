package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensPerSecondFromFirstDelta(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTelemetryTracker(start)

	// Two seconds of queueing before the first chunk must not count.
	tr.ObserveAt(StreamEvent{Kind: EventTextDelta, Delta: "Hel"}, start.Add(2*time.Second))
	tr.ObserveAt(StreamEvent{Kind: EventTextDelta, Delta: "lo"}, start.Add(3*time.Second))
	tr.FinishAt(start.Add(6 * time.Second))

	tps := tr.TokensPerSecond(TokenUsage{InputTokens: 100, OutputTokens: 40, TotalTokens: 140})
	require.NotNil(t, tps)
	assert.InDelta(t, 10.0, *tps, 1e-9)
}

func TestTokensPerSecondStartsAtFirstReasoningDelta(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTelemetryTracker(start)

	tr.ObserveAt(StreamEvent{Kind: EventToolCall}, start.Add(1*time.Second))
	tr.ObserveAt(StreamEvent{Kind: EventReasoningDelta, Delta: "hmm"}, start.Add(3*time.Second))
	tr.ObserveAt(StreamEvent{Kind: EventTextDelta, Delta: "Hi"}, start.Add(4*time.Second))
	tr.FinishAt(start.Add(5 * time.Second))

	// Reasoning tokens present: tokens = output + reasoning, window starts
	// at the first reasoning delta.
	tps := tr.TokensPerSecond(TokenUsage{InputTokens: 50, OutputTokens: 10, ReasoningTokens: 30, TotalTokens: 90})
	require.NotNil(t, tps)
	assert.InDelta(t, 20.0, *tps, 1e-9)
}

func TestTokensPerSecondNilNotZero(t *testing.T) {
	start := time.Now()

	// No deltas observed at all.
	tr := NewTelemetryTracker(start)
	tr.FinishAt(start.Add(time.Second))
	assert.Nil(t, tr.TokensPerSecond(TokenUsage{TotalTokens: 10}))

	// Zero elapsed time.
	tr = NewTelemetryTracker(start)
	tr.ObserveAt(StreamEvent{Kind: EventTextDelta}, start)
	tr.FinishAt(start)
	assert.Nil(t, tr.TokensPerSecond(TokenUsage{InputTokens: 1, TotalTokens: 11}))

	// Provider reported no usable token counts.
	tr = NewTelemetryTracker(start)
	tr.ObserveAt(StreamEvent{Kind: EventTextDelta}, start)
	tr.FinishAt(start.Add(time.Second))
	assert.Nil(t, tr.TokensPerSecond(TokenUsage{}))
}

func TestFirstChunkAt(t *testing.T) {
	start := time.Now()
	tr := NewTelemetryTracker(start)
	assert.Nil(t, tr.FirstChunkAt())

	at := start.Add(500 * time.Millisecond)
	tr.ObserveAt(StreamEvent{Kind: EventReasoningDelta}, at)
	tr.ObserveAt(StreamEvent{Kind: EventTextDelta}, at.Add(time.Second))

	got := tr.FirstChunkAt()
	require.NotNil(t, got)
	assert.True(t, got.Equal(at))
}

func TestFinishEventsDoNotStartTheClock(t *testing.T) {
	start := time.Now()
	tr := NewTelemetryTracker(start)
	tr.ObserveAt(StreamEvent{Kind: EventFinish}, start.Add(time.Second))
	assert.Nil(t, tr.FirstChunkAt())
}
