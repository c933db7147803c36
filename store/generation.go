package store

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"streamchat/model"
)

// GenerationStore reads and writes the generation ledger. During normal
// operation the owning orchestrator is the single writer of a streaming row;
// the reconciler only claims rows whose last_update_at is past the staleness
// threshold.
type GenerationStore struct {
	db *gorm.DB
}

func NewGenerationStore(db *gorm.DB) *GenerationStore {
	return &GenerationStore{db: db}
}

func (s *GenerationStore) Create(gen *model.Generation) error {
	if err := s.db.Create(gen).Error; err != nil {
		return fmt.Errorf("failed to create generation row: %w", err)
	}
	return nil
}

// CreateIfIdle inserts gen only when the chat has no streaming row, as a
// single statement so two concurrent generations cannot both pass a separate
// existence check. Reports whether the row was inserted.
func (s *GenerationStore) CreateIfIdle(gen *model.Generation) (bool, error) {
	res := s.db.Exec(`
		INSERT INTO generations
			(id, chat_id, model, reasoning_effort, status,
			 started_at, last_update_at, created_at,
			 partial_text, partial_reasoning, final_content, error_text)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, '', '', '', ''
		FROM (SELECT 1) AS seed
		WHERE NOT EXISTS (
			SELECT 1 FROM generations WHERE chat_id = ? AND status = ?
		)`,
		gen.ID, gen.ChatID, gen.Model, gen.ReasoningEffort, gen.Status,
		gen.StartedAt, gen.LastUpdateAt, time.Now(),
		gen.ChatID, model.GenerationStreaming)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create generation row: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ActiveForChat returns the chat's streaming row, if any.
func (s *GenerationStore) ActiveForChat(chatID string) (*model.Generation, error) {
	var gen model.Generation
	err := s.db.Where("chat_id = ? AND status = ?", chatID, model.GenerationStreaming).First(&gen).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query active generation: %w", err)
	}
	return &gen, nil
}

// Checkpoint persists the latest partial output. firstChunk is only written
// the first time it is non-nil.
func (s *GenerationStore) Checkpoint(id string, partialText, partialReasoning string, firstChunk *time.Time) error {
	fields := map[string]interface{}{
		"partial_text":      partialText,
		"partial_reasoning": partialReasoning,
		"last_update_at":    time.Now(),
	}
	if firstChunk != nil {
		fields["first_chunk_at"] = gorm.Expr("COALESCE(first_chunk_at, ?)", *firstChunk)
	}
	if err := s.db.Model(&model.Generation{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("failed to checkpoint generation %s: %w", id, err)
	}
	return nil
}

// Finalize snapshots the assembled content and closing counters before the
// message is persisted. The row stays until Delete confirms persistence.
func (s *GenerationStore) Finalize(id string, finalContent string, tps *float64, totalTokens *int64) error {
	now := time.Now()
	fields := map[string]interface{}{
		"status":            model.GenerationCompleted,
		"final_content":     finalContent,
		"tokens_per_second": tps,
		"total_tokens":      totalTokens,
		"completed_at":      now,
		"last_update_at":    now,
	}
	if err := s.db.Model(&model.Generation{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("failed to finalize generation %s: %w", id, err)
	}
	return nil
}

func (s *GenerationStore) MarkError(id string, errText string) error {
	now := time.Now()
	fields := map[string]interface{}{
		"status":         model.GenerationError,
		"error_text":     errText,
		"completed_at":   now,
		"last_update_at": now,
	}
	if err := s.db.Model(&model.Generation{}).Where("id = ?", id).Updates(fields).Error; err != nil {
		return fmt.Errorf("failed to mark generation %s as errored: %w", id, err)
	}
	return nil
}

// Delete removes the row and reports whether this caller removed it. The
// delete is the reconciliation commit point, so the result distinguishes "we
// finalized it" from "someone else already did".
func (s *GenerationStore) Delete(id string) (bool, error) {
	res := s.db.Where("id = ?", id).Delete(&model.Generation{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete generation %s: %w", id, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// FindStale returns rows abandoned by their owner with no update since the
// cutoff, whatever state they stalled in: still streaming, errored, or
// finalized but never persisted as a message.
func (s *GenerationStore) FindStale(cutoff time.Time) ([]model.Generation, error) {
	var rows []model.Generation
	err := s.db.
		Where("last_update_at < ?", cutoff).
		Order("last_update_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query stale generations: %w", err)
	}
	return rows, nil
}

// CountByStatus reports how many ledger rows currently hold each status.
func (s *GenerationStore) CountByStatus() (map[string]int64, error) {
	type bucket struct {
		Status string
		N      int64
	}
	var buckets []bucket
	err := s.db.Model(&model.Generation{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&buckets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count generations: %w", err)
	}
	out := make(map[string]int64, len(buckets))
	for _, b := range buckets {
		out[b.Status] = b.N
	}
	return out, nil
}
