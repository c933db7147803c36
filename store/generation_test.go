package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamchat/model"
)

func newGeneration(chatID string) *model.Generation {
	now := time.Now()
	return &model.Generation{
		ID:           uuid.New().String(),
		ChatID:       chatID,
		Model:        "gpt-4o-mini",
		Status:       model.GenerationStreaming,
		StartedAt:    now,
		LastUpdateAt: now,
	}
}

func TestCheckpointKeepsFirstChunkAt(t *testing.T) {
	db := newTestDB(t)
	s := NewGenerationStore(db)
	gen := newGeneration(uuid.New().String())
	require.NoError(t, s.Create(gen))

	first := time.Now().Add(-2 * time.Second)
	require.NoError(t, s.Checkpoint(gen.ID, "Hel", "", &first))

	later := time.Now()
	require.NoError(t, s.Checkpoint(gen.ID, "Hello, wo", "thinking", &later))

	var row model.Generation
	require.NoError(t, db.First(&row, "id = ?", gen.ID).Error)
	assert.Equal(t, "Hello, wo", row.PartialText)
	assert.Equal(t, "thinking", row.PartialReasoning)
	require.NotNil(t, row.FirstChunkAt)
	// The second write must not move the first-chunk time.
	assert.WithinDuration(t, first, *row.FirstChunkAt, time.Second)
}

func TestCreateIfIdleGatesOnStreamingRow(t *testing.T) {
	db := newTestDB(t)
	s := NewGenerationStore(db)
	chatID := uuid.New().String()

	first := newGeneration(chatID)
	created, err := s.CreateIfIdle(first)
	require.NoError(t, err)
	assert.True(t, created)

	// A second attempt for the same chat loses while the first is streaming.
	second := newGeneration(chatID)
	created, err = s.CreateIfIdle(second)
	require.NoError(t, err)
	assert.False(t, created)
	var n int64
	require.NoError(t, db.Model(&model.Generation{}).Where("chat_id = ?", chatID).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	// Other chats are not gated.
	created, err = s.CreateIfIdle(newGeneration(uuid.New().String()))
	require.NoError(t, err)
	assert.True(t, created)

	// Once the streaming row leaves that status the chat is idle again.
	require.NoError(t, s.MarkError(first.ID, "boom"))
	created, err = s.CreateIfIdle(second)
	require.NoError(t, err)
	assert.True(t, created)

	active, err := s.ActiveForChat(chatID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)
}

func TestActiveForChat(t *testing.T) {
	db := newTestDB(t)
	s := NewGenerationStore(db)
	chatID := uuid.New().String()

	active, err := s.ActiveForChat(chatID)
	require.NoError(t, err)
	assert.Nil(t, active)

	gen := newGeneration(chatID)
	require.NoError(t, s.Create(gen))

	active, err = s.ActiveForChat(chatID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, gen.ID, active.ID)

	require.NoError(t, s.MarkError(gen.ID, "boom"))
	active, err = s.ActiveForChat(chatID)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestDeleteReportsWhoRemovedIt(t *testing.T) {
	db := newTestDB(t)
	s := NewGenerationStore(db)
	gen := newGeneration(uuid.New().String())
	require.NoError(t, s.Create(gen))

	removed, err := s.Delete(gen.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete(gen.ID)
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestFindStaleSelectsAbandonedRows(t *testing.T) {
	db := newTestDB(t)
	s := NewGenerationStore(db)
	chatID := uuid.New().String()

	fresh := newGeneration(chatID)
	require.NoError(t, s.Create(fresh))

	stale := newGeneration(chatID)
	stale.LastUpdateAt = time.Now().Add(-time.Minute)
	require.NoError(t, s.Create(stale))

	errored := newGeneration(chatID)
	errored.Status = model.GenerationError
	errored.LastUpdateAt = time.Now().Add(-time.Hour)
	require.NoError(t, s.Create(errored))

	// Finalize wrote the snapshot but the message insert failed, leaving a
	// stale completed row. It must be picked up too.
	completed := newGeneration(chatID)
	completed.Status = model.GenerationCompleted
	completed.LastUpdateAt = time.Now().Add(-30 * time.Minute)
	require.NoError(t, s.Create(completed))

	rows, err := s.FindStale(time.Now().Add(-30 * time.Second))
	require.NoError(t, err)
	require.Len(t, rows, 3)
	// Oldest first.
	assert.Equal(t, errored.ID, rows[0].ID)
	assert.Equal(t, completed.ID, rows[1].ID)
	assert.Equal(t, stale.ID, rows[2].ID)
}
