package util

import (
	"fmt"

	"golang.org/x/crypto/argon2"
)

type Argon2idParams struct {
	Time        uint32 `json:"time"`
	MemoryKiB   uint32 `json:"memory"`
	Parallelism uint8  `json:"parallelism"`
	KeyLen      uint32 `json:"key_len"`
}

func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        3,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		KeyLen:      32,
	}
}

// DeriveArgon2idKey derives a 32-byte key from the NFKD-normalized passphrase.
func DeriveArgon2idKey(passphrase string, salt []byte, params Argon2idParams) ([]byte, error) {
	if params.KeyLen != 32 {
		return nil, fmt.Errorf("argon2id key length must be 32 bytes")
	}
	if len(salt) < 16 {
		return nil, fmt.Errorf("argon2id salt must be at least 16 bytes, got %d", len(salt))
	}
	p := []byte(Normalize(passphrase))
	defer WipeBytes(p)
	return argon2.IDKey(p, salt, params.Time, params.MemoryKiB, params.Parallelism, params.KeyLen), nil
}
