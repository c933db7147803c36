package store

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"streamchat/model"
	"streamchat/platform"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, model.InstallDB(db))
	return db
}

func newTestKey(t *testing.T) []byte {
	t.Helper()
	encoded, err := platform.NewChatKey()
	require.NoError(t, err)
	key, err := platform.DecodeChatKey(encoded)
	require.NoError(t, err)
	return key
}

func TestMessageStoreSealsContentAtRest(t *testing.T) {
	db := newTestDB(t)
	s := NewMessageStore(db, platform.AESGCMCipher{})
	key := newTestKey(t)
	chatID := uuid.New().String()

	msg := &model.Message{
		ID:     uuid.New().String(),
		ChatID: chatID,
		Role:   model.RoleUserMsg,
		Parts:  []model.ContentPart{{Type: model.PartText, Text: "my private question"}},
	}
	require.NoError(t, s.Create(msg, key))

	// Raw row never contains the plaintext.
	var raw model.Message
	require.NoError(t, db.First(&raw, "id = ?", msg.ID).Error)
	assert.NotContains(t, raw.Content, "my private question")

	msgs, err := s.ListByChat(chatID, key)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Parts, 1)
	assert.Equal(t, "my private question", msgs[0].Parts[0].Text)
}

func TestMessageStoreEmptyPartsIsValid(t *testing.T) {
	db := newTestDB(t)
	s := NewMessageStore(db, platform.AESGCMCipher{})
	key := newTestKey(t)
	chatID := uuid.New().String()

	msg := &model.Message{ID: uuid.New().String(), ChatID: chatID, Role: model.RoleAssistant}
	require.NoError(t, s.Create(msg, key))

	msgs, err := s.ListByChat(chatID, key)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Empty(t, msgs[0].Parts)
}

func TestCreateIfAbsent(t *testing.T) {
	db := newTestDB(t)
	s := NewMessageStore(db, platform.AESGCMCipher{})
	key := newTestKey(t)
	chatID := uuid.New().String()
	id := uuid.New().String()

	first := &model.Message{
		ID:     id,
		ChatID: chatID,
		Role:   model.RoleAssistant,
		Parts:  []model.ContentPart{{Type: model.PartText, Text: "recovered"}},
	}
	created, err := s.CreateIfAbsent(first, key)
	require.NoError(t, err)
	assert.True(t, created)

	dup := &model.Message{
		ID:     id,
		ChatID: chatID,
		Role:   model.RoleAssistant,
		Parts:  []model.ContentPart{{Type: model.PartText, Text: "a different body"}},
	}
	created, err = s.CreateIfAbsent(dup, key)
	require.NoError(t, err)
	assert.False(t, created)

	// The original content wins.
	msgs, err := s.ListByChat(chatID, key)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "recovered", msgs[0].Parts[0].Text)
}
