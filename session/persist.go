package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/awnumar/memguard"

	"github.com/jmcleod/hrclient/internal/util"
	"github.com/jmcleod/hrclient/storage"
)

// Projection is the persisted subset of a Session. IsLoading and Error are
// never persisted.
type Projection struct {
	User            *User  `json:"user"`
	AccessToken     string `json:"access_token"`
	RefreshToken    string `json:"refresh_token"`
	IsAuthenticated bool   `json:"is_authenticated"`
}

func (s Session) projection() Projection {
	return Projection{
		User:            s.User.clone(),
		AccessToken:     s.AccessToken,
		RefreshToken:    s.RefreshToken,
		IsAuthenticated: s.IsAuthenticated,
	}
}

// Persister stores the projection durably. Load returns (nil, nil) when
// nothing has been saved yet.
type Persister interface {
	Load() (*Projection, error)
	Save(Projection) error
}

const (
	persistNamespace   = "__hrclient"
	snapshotKind       = "SESSION"
	dataKeyKind        = "SESSION_KEY"
	dataKeyID          = "current"
	snapshotAADPrefix  = "hrclient:session:"
	dataKeyWrappingAAD = "hrclient:session_data_key:v1"
)

// SealedPersister keeps one sealed projection per profile in a
// storage.Repository, encrypted at rest with AES-256-GCM.
//
// The data key is itself sealed with an externally provided wrapping key
// before being stored, so the repository alone cannot recover tokens.
type SealedPersister struct {
	repo    storage.Repository
	profile string
	key     *memguard.Enclave
	mu      sync.Mutex
}

var _ Persister = (*SealedPersister)(nil)

// NewSealedPersister creates a persister for profile backed by repo. The
// 32-byte wrappingKey is copied; the caller may wipe it afterwards.
func NewSealedPersister(repo storage.Repository, profile string, wrappingKey []byte) (*SealedPersister, error) {
	if len(wrappingKey) != util.AESKeySize {
		return nil, fmt.Errorf("%w: must be exactly %d bytes, got %d", ErrInvalidWrappingKey, util.AESKeySize, len(wrappingKey))
	}
	if profile == "" {
		profile = "default"
	}
	wk := util.CopyBytes(wrappingKey)
	defer util.WipeBytes(wk)

	key, err := loadOrCreateDataKey(repo, wk)
	if err != nil {
		return nil, err
	}
	return &SealedPersister{
		repo:    repo,
		profile: profile,
		key:     memguard.NewEnclave(key),
	}, nil
}

// Profile returns the profile name the persister reads and writes.
func (p *SealedPersister) Profile() string { return p.profile }

// Profiles lists every profile with a saved projection in the repository.
func (p *SealedPersister) Profiles() ([]string, error) {
	return p.repo.List(persistNamespace, snapshotKind)
}

func (p *SealedPersister) aad() []byte {
	return []byte(snapshotAADPrefix + p.profile)
}

// Load returns the saved projection. A projection that cannot be opened
// (for example after the wrapping key changed) is treated as absent.
func (p *SealedPersister) Load() (*Projection, error) {
	env, err := p.repo.Get(persistNamespace, snapshotKind, p.profile)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrNamespaceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading session snapshot: %w", err)
	}

	key, err := p.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening session key: %w", err)
	}
	defer key.Destroy()

	data, err := storage.OpenRecord(key.Bytes(), env, p.aad())
	if err != nil {
		return nil, nil
	}
	defer util.WipeBytes(data)

	var proj Projection
	if err := json.Unmarshal(data, &proj); err != nil {
		return nil, nil
	}
	return &proj, nil
}

// Save seals and overwrites the projection for the profile.
func (p *SealedPersister) Save(proj Projection) error {
	data, err := json.Marshal(proj)
	if err != nil {
		return fmt.Errorf("encoding session snapshot: %w", err)
	}
	defer util.WipeBytes(data)

	key, err := p.key.Open()
	if err != nil {
		return fmt.Errorf("opening session key: %w", err)
	}
	defer key.Destroy()

	env, err := storage.SealRecord(key.Bytes(), data, p.aad())
	if err != nil {
		return fmt.Errorf("sealing session snapshot: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.repo.Put(persistNamespace, snapshotKind, p.profile, env); err != nil {
		return fmt.Errorf("writing session snapshot: %w", err)
	}
	return nil
}

// loadOrCreateDataKey loads the data key from storage, unsealing it with the
// wrapping key. If no key exists, or the stored key cannot be unsealed
// because the wrapping key changed, a new random key is generated, sealed
// and persisted. Snapshots sealed under the old key become unreadable.
func loadOrCreateDataKey(repo storage.Repository, wrappingKey []byte) ([]byte, error) {
	aad := []byte(dataKeyWrappingAAD)

	env, err := repo.Get(persistNamespace, dataKeyKind, dataKeyID)
	if err == nil {
		key, openErr := storage.OpenRecord(wrappingKey, env, aad)
		if openErr == nil && len(key) == util.AESKeySize {
			return key, nil
		}
		util.WipeBytes(key)
	} else if !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrNamespaceNotFound) {
		return nil, fmt.Errorf("reading session data key: %w", err)
	}

	key, err := util.NewAESKey()
	if err != nil {
		return nil, err
	}
	sealed, err := storage.SealRecord(wrappingKey, key, aad)
	if err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("sealing session data key: %w", err)
	}
	if err := repo.Put(persistNamespace, dataKeyKind, dataKeyID, sealed); err != nil {
		util.WipeBytes(key)
		return nil, fmt.Errorf("persisting session data key: %w", err)
	}
	return key, nil
}
