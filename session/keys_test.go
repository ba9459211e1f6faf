package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/hrclient/storage"
	"github.com/jmcleod/hrclient/storage/memory"
)

func TestWrappingKeyFromPassphrase(t *testing.T) {
	repo := memory.NewRepository()

	k1, err := WrappingKeyFromPassphrase(repo, "correct horse battery staple")
	require.NoError(t, err)
	assert.Len(t, k1, 32)

	k2, err := WrappingKeyFromPassphrase(repo, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "same passphrase and stored salt must derive the same key")

	k3, err := WrappingKeyFromPassphrase(repo, "another passphrase")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	env, err := repo.Get(persistNamespace, saltKind, saltID)
	require.NoError(t, err)
	assert.Equal(t, storage.SchemeRaw, env.Scheme)
	assert.Len(t, env.Ciphertext, saltSize)

	_, err = WrappingKeyFromPassphrase(repo, "")
	assert.ErrorIs(t, err, ErrInvalidWrappingKey)
}

func TestWrappingKeyFromPassphrase_CorruptSalt(t *testing.T) {
	repo := memory.NewRepository()
	require.NoError(t, repo.Put(persistNamespace, saltKind, saltID, &storage.Envelope{Ver: 1, Scheme: storage.SchemeRaw, Ciphertext: []byte("short")}))

	_, err := WrappingKeyFromPassphrase(repo, "passphrase")
	assert.Error(t, err)
}

func TestWrappingKeyFromHex(t *testing.T) {
	hexKey, err := NewWrappingKeyHex()
	require.NoError(t, err)
	assert.Len(t, hexKey, 64)

	key, err := WrappingKeyFromHex("  " + hexKey + "\n")
	require.NoError(t, err)
	assert.Len(t, key, 32)

	_, err = WrappingKeyFromHex(strings.Repeat("ab", 16))
	assert.ErrorIs(t, err, ErrInvalidWrappingKey)
	_, err = WrappingKeyFromHex("not-hex")
	assert.ErrorIs(t, err, ErrInvalidWrappingKey)
}
