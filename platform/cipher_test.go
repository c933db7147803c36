package platform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESGCMRoundTrip(t *testing.T) {
	encoded, err := NewChatKey()
	require.NoError(t, err)
	key, err := DecodeChatKey(encoded)
	require.NoError(t, err)
	require.Len(t, key, 32)

	c := AESGCMCipher{}
	sealed, err := c.Encrypt([]byte(`[{"type":"text","text":"hello"}]`), key)
	require.NoError(t, err)
	assert.NotContains(t, sealed, "hello")

	plain, err := c.Decrypt(sealed, key)
	require.NoError(t, err)
	assert.Equal(t, `[{"type":"text","text":"hello"}]`, string(plain))
}

func TestAESGCMUniqueNonces(t *testing.T) {
	encoded, err := NewChatKey()
	require.NoError(t, err)
	key, err := DecodeChatKey(encoded)
	require.NoError(t, err)

	c := AESGCMCipher{}
	a, err := c.Encrypt([]byte("same plaintext"), key)
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same plaintext"), key)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestAESGCMWrongKeyFails(t *testing.T) {
	k1, _ := NewChatKey()
	k2, _ := NewChatKey()
	key1, err := DecodeChatKey(k1)
	require.NoError(t, err)
	key2, err := DecodeChatKey(k2)
	require.NoError(t, err)

	c := AESGCMCipher{}
	sealed, err := c.Encrypt([]byte("secret"), key1)
	require.NoError(t, err)

	_, err = c.Decrypt(sealed, key2)
	assert.Error(t, err)
}
