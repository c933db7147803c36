package model

import (
	"strings"
	"time"
)

// Chat modes. Standard chat composes verbosity rules with any custom
// instructions; the learning sub-modes replace the style section entirely.
const (
	ModeChat            = "chat"
	ModeLearnExplain    = "learn-explain"
	ModeLearnSocratic   = "learn-socratic"
	ModeLearnQuiz       = "learn-quiz"
	ModeLearnFlashcards = "learn-flashcards"
)

// Chat owns its messages and the generation settings consumed when composing
// a system prompt. DataKey is the base64 content-at-rest key for this chat.
type Chat struct {
	ID                 string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID             uint      `gorm:"index" json:"user_id"`
	Title              string    `gorm:"type:varchar(255)" json:"title"`
	Model              string    `gorm:"type:varchar(64)" json:"model"`
	Mode               string    `gorm:"type:varchar(32);default:chat" json:"mode"`
	Verbosity          int       `gorm:"default:50" json:"verbosity"`
	CustomInstructions string    `gorm:"type:text" json:"custom_instructions,omitempty"`
	EnabledTools       string    `gorm:"type:varchar(255)" json:"enabled_tools,omitempty"`
	DataKey            string    `gorm:"type:varchar(64)" json:"-"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// EnabledToolList splits the stored comma-separated capability names.
func (c *Chat) EnabledToolList() []string {
	if strings.TrimSpace(c.EnabledTools) == "" {
		return nil
	}
	raw := strings.Split(c.EnabledTools, ",")
	out := make([]string, 0, len(raw))
	for _, name := range raw {
		if name = strings.TrimSpace(name); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// IsLearningMode reports whether the chat runs one of the pedagogical
// sub-modes.
func (c *Chat) IsLearningMode() bool {
	return strings.HasPrefix(c.Mode, "learn-")
}
