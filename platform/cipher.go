package platform

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Cipher encrypts message content before it reaches the database. The key is
// chat-scoped and supplied per call.
type Cipher interface {
	Encrypt(plaintext, key []byte) (string, error)
	Decrypt(ciphertext string, key []byte) ([]byte, error)
}

// AESGCMCipher seals content with AES-256-GCM, nonce prepended, base64
// encoded for storage in a text column.
type AESGCMCipher struct{}

func (AESGCMCipher) Encrypt(plaintext, key []byte) (string, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (AESGCMCipher) Decrypt(ciphertext string, key []byte) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(raw) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt content: %w", err)
	}
	return plain, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid content key: %w", err)
	}
	return cipher.NewGCM(block)
}

// NewChatKey generates a fresh 32-byte content key, base64 encoded for
// storage on the chat row.
func NewChatKey() (string, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("failed to generate chat key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// DecodeChatKey reverses NewChatKey.
func DecodeChatKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode chat key: %w", err)
	}
	return key, nil
}
