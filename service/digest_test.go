package service

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streamchat/model"
)

func TestDigestSendSkipsWhenUnconfigured(t *testing.T) {
	env := newTestEnv(t)
	d := &DigestService{Messages: env.messages, Ledger: env.ledger, Logger: newTestLogger()}
	assert.NoError(t, d.Send())
}

func TestDigestReport(t *testing.T) {
	env := newTestEnv(t)

	tps := 42.0
	require.NoError(t, env.messages.Create(&model.Message{
		ID:              uuid.New().String(),
		ChatID:          env.chat.ID,
		Role:            model.RoleAssistant,
		TokensPerSecond: &tps,
		Parts:           []model.ContentPart{{Type: model.PartText, Text: "hi"}},
	}, env.key))

	now := time.Now()
	require.NoError(t, env.ledger.Create(&model.Generation{
		ID:           uuid.New().String(),
		ChatID:       env.chat.ID,
		Status:       model.GenerationError,
		StartedAt:    now,
		LastUpdateAt: now,
	}))

	d := &DigestService{Messages: env.messages, Ledger: env.ledger, Logger: newTestLogger()}
	d.NoteRecovered(3)

	report, err := d.buildReport(time.Now().Add(-24*time.Hour), d.recovered.Load())
	require.NoError(t, err)
	assert.Contains(t, report, "Assistant messages (24h): **1**")
	assert.Contains(t, report, "42.0 tok/s")
	assert.Contains(t, report, "Recovered by reconciler since last digest: **3**")
	assert.Contains(t, report, "Ledger rows in error: **1**")
}

// The reconciler job and the digest job fire on independent cron goroutines,
// so the recovery counter must tolerate concurrent notes and reads.
func TestDigestCountsConcurrentRecoveries(t *testing.T) {
	env := newTestEnv(t)
	d := &DigestService{Messages: env.messages, Ledger: env.ledger, Logger: newTestLogger()}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				d.NoteRecovered(1)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				_ = d.recovered.Load()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(200), d.recovered.Load())

	report, err := d.buildReport(time.Now().Add(-24*time.Hour), d.recovered.Load())
	require.NoError(t, err)
	assert.Contains(t, report, "Recovered by reconciler since last digest: **200**")
}
