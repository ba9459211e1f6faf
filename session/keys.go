package session

import (
	"errors"
	"fmt"

	"github.com/jmcleod/hrclient/internal/util"
	"github.com/jmcleod/hrclient/storage"
)

const (
	saltKind = "KDF_SALT"
	saltID   = "current"
	saltSize = 16
)

// WrappingKeyFromPassphrase derives the 32-byte wrapping key from a
// passphrase with argon2id. The salt is created on first use and kept in
// repo next to the sealed snapshots.
func WrappingKeyFromPassphrase(repo storage.Repository, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("%w: empty passphrase", ErrInvalidWrappingKey)
	}
	salt, err := loadOrCreateSalt(repo)
	if err != nil {
		return nil, err
	}
	return util.DeriveArgon2idKey(passphrase, salt, util.DefaultArgon2idParams())
}

// WrappingKeyFromHex decodes a hex-encoded 32-byte wrapping key.
func WrappingKeyFromHex(s string) ([]byte, error) {
	key, err := util.HexDecode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWrappingKey, err)
	}
	if len(key) != util.AESKeySize {
		util.WipeBytes(key)
		return nil, fmt.Errorf("%w: must be exactly %d bytes, got %d", ErrInvalidWrappingKey, util.AESKeySize, len(key))
	}
	return key, nil
}

// NewWrappingKeyHex returns a fresh random wrapping key, hex-encoded.
func NewWrappingKeyHex() (string, error) {
	key, err := util.NewAESKey()
	if err != nil {
		return "", err
	}
	defer util.WipeBytes(key)
	return util.HexEncode(key), nil
}

func loadOrCreateSalt(repo storage.Repository) ([]byte, error) {
	env, err := repo.Get(persistNamespace, saltKind, saltID)
	switch {
	case err == nil:
		if env.Scheme != storage.SchemeRaw || len(env.Ciphertext) < saltSize {
			return nil, fmt.Errorf("stored key-derivation salt is corrupt")
		}
		return env.Ciphertext, nil
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrNamespaceNotFound):
	default:
		return nil, fmt.Errorf("reading key-derivation salt: %w", err)
	}

	salt, err := util.RandomBytes(saltSize)
	if err != nil {
		return nil, err
	}
	if err := repo.Put(persistNamespace, saltKind, saltID, &storage.Envelope{Ver: 1, Scheme: storage.SchemeRaw, Ciphertext: salt}); err != nil {
		return nil, fmt.Errorf("persisting key-derivation salt: %w", err)
	}
	return salt, nil
}
