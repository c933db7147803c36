package service

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamchat/model"
	"streamchat/store"
)

type reconcilerEnv struct {
	*testEnv
	chats      *store.ChatStore
	reconciler *StaleReconciler
}

func newReconcilerEnv(t *testing.T) *reconcilerEnv {
	t.Helper()
	env := newTestEnv(t)
	env.chat.DataKey = base64.StdEncoding.EncodeToString(env.key)
	chats := store.NewChatStore(env.db)
	require.NoError(t, chats.Create(env.chat))
	return &reconcilerEnv{
		testEnv:    env,
		chats:      chats,
		reconciler: NewStaleReconciler(env.ledger, env.messages, chats, newTestLogger(), 30*time.Second),
	}
}

func (e *reconcilerEnv) staleRow(t *testing.T, age time.Duration, mutate func(*model.Generation)) *model.Generation {
	t.Helper()
	now := time.Now()
	row := &model.Generation{
		ID:           uuid.New().String(),
		ChatID:       e.chat.ID,
		Model:        "gpt-4o-mini",
		Status:       model.GenerationStreaming,
		StartedAt:    now.Add(-age),
		LastUpdateAt: now.Add(-age),
	}
	if mutate != nil {
		mutate(row)
	}
	require.NoError(t, e.ledger.Create(row))
	return row
}

func TestReconcilerRecoversAbandonedPartial(t *testing.T) {
	env := newReconcilerEnv(t)
	row := env.staleRow(t, time.Minute, func(g *model.Generation) {
		g.PartialText = "Hello, wo"
		g.PartialReasoning = "greeting the user"
	})

	recovered, err := env.reconciler.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	msgs, err := env.messages.ListByChat(env.chat.ID, env.key)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, row.ID, msgs[0].ID)
	assert.Equal(t, model.RoleAssistant, msgs[0].Role)
	require.Len(t, msgs[0].Parts, 2)
	assert.Equal(t, model.PartReasoning, msgs[0].Parts[0].Type)
	assert.Equal(t, "greeting the user", msgs[0].Parts[0].Text)
	assert.Equal(t, model.PartText, msgs[0].Parts[1].Type)
	assert.Equal(t, "Hello, wo", msgs[0].Parts[1].Text)

	counts, err := env.ledger.CountByStatus()
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestReconcilerSkipsFreshRows(t *testing.T) {
	env := newReconcilerEnv(t)
	env.staleRow(t, 5*time.Second, func(g *model.Generation) {
		g.PartialText = "still going"
	})

	recovered, err := env.reconciler.Run()
	require.NoError(t, err)
	assert.Zero(t, recovered)

	active, err := env.ledger.ActiveForChat(env.chat.ID)
	require.NoError(t, err)
	assert.NotNil(t, active)
}

func TestReconcilerReleasesEmptyRows(t *testing.T) {
	env := newReconcilerEnv(t)
	env.staleRow(t, time.Minute, nil)

	recovered, err := env.reconciler.Run()
	require.NoError(t, err)
	assert.Zero(t, recovered)

	// Nothing worth saving: no message, row released anyway.
	msgs, err := env.messages.ListByChat(env.chat.ID, env.key)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	counts, err := env.ledger.CountByStatus()
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestReconcilerIdempotentAcrossRuns(t *testing.T) {
	env := newReconcilerEnv(t)
	row := env.staleRow(t, time.Minute, func(g *model.Generation) {
		g.PartialText = "partial"
	})

	recovered, err := env.reconciler.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	// Simulate a crash between insert and delete: the row reappears while
	// the message already exists.
	require.NoError(t, env.ledger.Create(row))

	recovered, err = env.reconciler.Run()
	require.NoError(t, err)
	assert.Zero(t, recovered)

	msgs, err := env.messages.ListByChat(env.chat.ID, env.key)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	counts, err := env.ledger.CountByStatus()
	require.NoError(t, err)
	assert.Empty(t, counts)
}

func TestReconcilerPrefersFinalSnapshot(t *testing.T) {
	env := newReconcilerEnv(t)
	snapshot, err := json.Marshal([]model.ContentPart{
		{Type: model.PartText, Text: "the complete answer"},
	})
	require.NoError(t, err)

	tps := 12.5
	env.staleRow(t, time.Minute, func(g *model.Generation) {
		g.Status = model.GenerationError
		g.PartialText = "the comp"
		g.FinalContent = string(snapshot)
		g.TokensPerSecond = &tps
	})

	recovered, err := env.reconciler.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	msgs, err := env.messages.ListByChat(env.chat.ID, env.key)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Parts, 1)
	assert.Equal(t, "the complete answer", msgs[0].Parts[0].Text)
	require.NotNil(t, msgs[0].TokensPerSecond)
	assert.Equal(t, 12.5, *msgs[0].TokensPerSecond)
}

func TestReconcilerTagsLearningMode(t *testing.T) {
	env := newReconcilerEnv(t)
	env.chat.Mode = model.ModeLearnExplain
	require.NoError(t, env.db.Save(env.chat).Error)

	env.staleRow(t, time.Minute, func(g *model.Generation) {
		g.PartialText = "step one"
	})

	recovered, err := env.reconciler.Run()
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	msgs, err := env.messages.ListByChat(env.chat.ID, env.key)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.ModeLearnExplain, msgs[0].SubMode)
}
