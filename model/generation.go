package model

import "time"

// Generation statuses.
const (
	GenerationStreaming = "streaming"
	GenerationCompleted = "completed"
	GenerationError     = "error"
)

// Generation is the durable checkpoint of one in-flight generation attempt.
// The owning orchestrator is the only writer while status is streaming; the
// reconciler only touches rows whose last_update_at proves the owner is gone.
// At most one streaming row should exist per chat at any time.
type Generation struct {
	ID               string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChatID           string     `gorm:"type:varchar(36);index" json:"chat_id"`
	Model            string     `gorm:"type:varchar(64)" json:"model"`
	ReasoningEffort  string     `gorm:"type:varchar(16)" json:"reasoning_effort,omitempty"`
	Status           string     `gorm:"type:varchar(16);index" json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	FirstChunkAt     *time.Time `json:"first_chunk_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	LastUpdateAt     time.Time  `gorm:"index" json:"last_update_at"`
	PartialText      string     `gorm:"type:longtext" json:"partial_text"`
	PartialReasoning string     `gorm:"type:longtext" json:"partial_reasoning"`
	FinalContent     string     `gorm:"type:longtext" json:"final_content,omitempty"`
	TokensPerSecond  *float64   `json:"tokens_per_second,omitempty"`
	TotalTokens      *int64     `json:"total_tokens,omitempty"`
	ErrorText        string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}
