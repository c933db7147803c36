package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"streamchat/model"
	"streamchat/platform"
)

// MessageStore persists finalized messages, applying content-at-rest
// encryption on the way in and decryption on the way out. It is the only
// component that touches message content in the database.
type MessageStore struct {
	db     *gorm.DB
	cipher platform.Cipher
}

func NewMessageStore(db *gorm.DB, cipher platform.Cipher) *MessageStore {
	return &MessageStore{db: db, cipher: cipher}
}

// Create stores msg with msg.Parts sealed under the chat content key. An
// empty parts list is a valid completed message and is stored as such.
func (s *MessageStore) Create(msg *model.Message, key []byte) error {
	if err := s.seal(msg, key); err != nil {
		return err
	}
	if err := s.db.Create(msg).Error; err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}
	return nil
}

// CreateIfAbsent inserts msg unless a row with the same ID already exists.
// The reconciler relies on this for idempotence: the recovered message reuses
// the ledger row ID, so a concurrent run's duplicate insert is a no-op.
func (s *MessageStore) CreateIfAbsent(msg *model.Message, key []byte) (bool, error) {
	if err := s.seal(msg, key); err != nil {
		return false, err
	}
	res := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(msg)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create message: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ListByChat returns the chat's messages in creation order with Parts
// decrypted.
func (s *MessageStore) ListByChat(chatID string, key []byte) ([]model.Message, error) {
	var msgs []model.Message
	if err := s.db.Where("chat_id = ?", chatID).Order("created_at ASC").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	for i := range msgs {
		if err := s.open(&msgs[i], key); err != nil {
			return nil, err
		}
	}
	return msgs, nil
}

// GenerationStats summarizes assistant output over a window, for the ops
// digest.
type GenerationStats struct {
	AssistantMessages int64
	AverageTPS        *float64
}

func (s *MessageStore) StatsSince(since time.Time) (GenerationStats, error) {
	var stats GenerationStats
	row := s.db.Model(&model.Message{}).
		Where("role = ? AND created_at >= ?", model.RoleAssistant, since).
		Select("COUNT(*) AS assistant_messages, AVG(tokens_per_second) AS average_tps").
		Row()
	if err := row.Scan(&stats.AssistantMessages, &stats.AverageTPS); err != nil {
		return stats, fmt.Errorf("failed to compute message stats: %w", err)
	}
	return stats, nil
}

func (s *MessageStore) seal(msg *model.Message, key []byte) error {
	if msg.Parts == nil {
		msg.Parts = []model.ContentPart{}
	}
	plain, err := json.Marshal(msg.Parts)
	if err != nil {
		return fmt.Errorf("failed to encode content: %w", err)
	}
	sealed, err := s.cipher.Encrypt(plain, key)
	if err != nil {
		return fmt.Errorf("failed to encrypt content: %w", err)
	}
	msg.Content = sealed
	return nil
}

func (s *MessageStore) open(msg *model.Message, key []byte) error {
	plain, err := s.cipher.Decrypt(msg.Content, key)
	if err != nil {
		return fmt.Errorf("failed to decrypt message %s: %w", msg.ID, err)
	}
	if err := json.Unmarshal(plain, &msg.Parts); err != nil {
		return fmt.Errorf("failed to decode content of message %s: %w", msg.ID, err)
	}
	return nil
}
