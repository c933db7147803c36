package model

import (
	"encoding/json"
	"time"
)

const (
	RoleUserMsg   = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ContentPart variant tags. Within one message parts are ordered
// tool-invocation*, reasoning?, text?, generated-file*, the causal order in
// which a multi-step generation produces them.
const (
	PartToolInvocation = "tool-invocation"
	PartReasoning      = "reasoning"
	PartText           = "text"
	PartGeneratedFile  = "generated-file"
)

// Tool invocation execution states.
const (
	ToolStateResult = "result"
	ToolStateError  = "error"
	ToolStateCall   = "call" // no result was ever captured
)

// ContentPart is one typed unit of a finalized message's content.
type ContentPart struct {
	Type string `json:"type"`

	// tool-invocation
	ToolCallID string          `json:"toolCallId,omitempty"`
	ToolName   string          `json:"toolName,omitempty"`
	State      string          `json:"state,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`

	// reasoning / text
	Text string `json:"text,omitempty"`

	// generated-file
	MimeType string `json:"mimeType,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// Message is a finalized, immutable chat message. Content holds the
// encrypted JSON encoding of the ordered ContentPart list; Parts carries the
// decrypted form in memory only.
type Message struct {
	ID              string        `gorm:"type:varchar(36);primaryKey" json:"id"`
	ChatID          string        `gorm:"type:varchar(36);index:idx_chat_created" json:"chat_id"`
	Role            string        `gorm:"type:varchar(16)" json:"role"`
	Content         string        `gorm:"type:longtext" json:"-"`
	Model           string        `gorm:"type:varchar(64)" json:"model"`
	SubMode         string        `gorm:"type:varchar(32)" json:"sub_mode,omitempty"`
	TokensPerSecond *float64      `json:"tokens_per_second,omitempty"`
	CreatedAt       time.Time     `gorm:"index:idx_chat_created" json:"created_at"`
	Parts           []ContentPart `gorm:"-" json:"content"`
}
