// Package store holds the gorm-backed repositories. Each store is
// constructed with an explicit *gorm.DB so callers and tests control the
// connection.
package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"streamchat/model"
	"streamchat/platform"
)

type ChatStore struct {
	db *gorm.DB
}

func NewChatStore(db *gorm.DB) *ChatStore {
	return &ChatStore{db: db}
}

func (s *ChatStore) Create(chat *model.Chat) error {
	if err := s.db.Create(chat).Error; err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}
	return nil
}

func (s *ChatStore) Get(id string) (*model.Chat, error) {
	var chat model.Chat
	if err := s.db.Where("id = ?", id).First(&chat).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("chat not found")
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &chat, nil
}

func (s *ChatStore) ListByUser(userID uint) ([]model.Chat, error) {
	var chats []model.Chat
	if err := s.db.Where("user_id = ?", userID).Order("updated_at DESC").Find(&chats).Error; err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	return chats, nil
}

// ContentKey decodes the chat's content-at-rest key.
func (s *ChatStore) ContentKey(chat *model.Chat) ([]byte, error) {
	return platform.DecodeChatKey(chat.DataKey)
}
