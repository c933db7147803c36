package service

import (
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"streamchat/model"
	"streamchat/store"
)

// StaleReconciler converts abandoned in-flight generations into finalized
// stored messages. It runs as a scheduled job, not a continuous loop, and is
// idempotent under concurrent runs: the recovered message reuses the ledger
// row ID so a duplicate insert is a no-op, and the row delete after the
// insert is the commit point. A crash in between re-runs the insert; it
// never loses content.
type StaleReconciler struct {
	ledger     *store.GenerationStore
	messages   *store.MessageStore
	chats      *store.ChatStore
	logger     *logrus.Logger
	staleAfter time.Duration
}

func NewStaleReconciler(ledger *store.GenerationStore, messages *store.MessageStore,
	chats *store.ChatStore, logger *logrus.Logger, staleAfter time.Duration) *StaleReconciler {
	return &StaleReconciler{
		ledger:     ledger,
		messages:   messages,
		chats:      chats,
		logger:     logger,
		staleAfter: staleAfter,
	}
}

// Run processes every stale row once and reports how many finalized messages
// it recovered.
func (r *StaleReconciler) Run() (int, error) {
	cutoff := time.Now().Add(-r.staleAfter)
	rows, err := r.ledger.FindStale(cutoff)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	r.logger.Infof("[reconciler] found %d stale generation rows", len(rows))

	recovered := 0
	for _, row := range rows {
		created, err := r.reconcile(row)
		if err != nil {
			// Skip without deleting: the row is retried on the next pass.
			r.logger.Errorf("[reconciler] failed to recover generation %s: %s", row.ID, err)
			continue
		}
		if created {
			recovered++
		}
		if _, err := r.ledger.Delete(row.ID); err != nil {
			r.logger.Errorf("[reconciler] failed to delete generation %s: %s", row.ID, err)
		}
	}
	return recovered, nil
}

// reconcile writes the finalized message for one row, if it holds any
// content. Rows with nothing to save are simply released.
func (r *StaleReconciler) reconcile(row model.Generation) (bool, error) {
	parts := r.partsFor(row)
	if len(parts) == 0 {
		return false, nil
	}

	chat, err := r.chats.Get(row.ChatID)
	if err != nil {
		return false, err
	}
	key, err := r.chats.ContentKey(chat)
	if err != nil {
		return false, err
	}

	msg := &model.Message{
		ID:              row.ID,
		ChatID:          row.ChatID,
		Role:            model.RoleAssistant,
		Model:           row.Model,
		TokensPerSecond: row.TokensPerSecond,
		Parts:           parts,
	}
	if chat.IsLearningMode() {
		msg.SubMode = chat.Mode
	}
	created, err := r.messages.CreateIfAbsent(msg, key)
	if err != nil {
		return false, err
	}
	if created {
		r.logger.Infof("[reconciler] recovered generation %s into message for chat %s", row.ID, row.ChatID)
	}
	return created, nil
}

// partsFor prefers the finalized snapshot when the owner got that far;
// otherwise it synthesizes the canonical reasoning-before-text list from the
// partial checkpoint fields.
func (r *StaleReconciler) partsFor(row model.Generation) []model.ContentPart {
	if row.FinalContent != "" {
		var parts []model.ContentPart
		if err := json.Unmarshal([]byte(row.FinalContent), &parts); err == nil {
			return parts
		}
		r.logger.Warnf("[reconciler] generation %s has an unreadable final snapshot, falling back to partials", row.ID)
	}
	return RecoveredParts(row.PartialReasoning, row.PartialText)
}
