package storage

import (
	"fmt"

	"github.com/jmcleod/hrclient/internal/util"
)

const (
	envelopeVersion = 1
	// SchemeAESGCM marks an envelope sealed with AES-256-GCM.
	SchemeAESGCM = "aes256gcm"
	// SchemeRaw marks an envelope holding non-secret bytes in Ciphertext,
	// such as a key-derivation salt.
	SchemeRaw = "raw"
	nonceSize    = 12
)

// Envelope is a sealed record containing AES-256-GCM encrypted data.
type Envelope struct {
	Ver        int    `json:"ver"`
	Scheme     string `json:"scheme"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Clone returns a deep copy of the envelope.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	return &Envelope{
		Ver:        e.Ver,
		Scheme:     e.Scheme,
		Nonce:      util.CopyBytes(e.Nonce),
		Ciphertext: util.CopyBytes(e.Ciphertext),
	}
}

// SealRecord encrypts plaintext into an Envelope using the given key and AAD.
func SealRecord(key, plaintext, aad []byte) (*Envelope, error) {
	sealed, err := util.EncryptAESWithAAD(plaintext, key, aad)
	if err != nil {
		return nil, err
	}
	// EncryptAESWithAAD returns nonce || ciphertext.
	return &Envelope{
		Ver:        envelopeVersion,
		Scheme:     SchemeAESGCM,
		Nonce:      sealed[:nonceSize],
		Ciphertext: sealed[nonceSize:],
	}, nil
}

// OpenRecord decrypts an Envelope using the given key and AAD.
func OpenRecord(key []byte, envelope *Envelope, aad []byte) ([]byte, error) {
	if envelope == nil {
		return nil, fmt.Errorf("opening record: nil envelope")
	}
	if envelope.Ver != envelopeVersion {
		return nil, fmt.Errorf("unsupported envelope version: %d", envelope.Ver)
	}
	if envelope.Scheme != SchemeAESGCM {
		return nil, fmt.Errorf("unsupported envelope scheme: %s", envelope.Scheme)
	}

	full := make([]byte, 0, len(envelope.Nonce)+len(envelope.Ciphertext))
	full = append(full, envelope.Nonce...)
	full = append(full, envelope.Ciphertext...)
	return util.DecryptAESWithAAD(full, key, aad)
}
