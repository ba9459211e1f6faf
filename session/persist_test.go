package session

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/hrclient/internal/util"
	"github.com/jmcleod/hrclient/storage"
	bboltstorage "github.com/jmcleod/hrclient/storage/bbolt"
	"github.com/jmcleod/hrclient/storage/memory"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := util.NewAESKey()
	require.NoError(t, err)
	return key
}

func sampleProjection() Projection {
	dept := int64(3)
	return Projection{
		User: &User{
			ID:       1,
			Username: "admin",
			Role:     RoleAdmin,
			IsActive: true,
			Employee: &Employee{ID: 1, UserID: 1, EmployeeNumber: "EMP001", Name: "System Administrator", DepartmentID: &dept},
		},
		AccessToken:     "access-token-value",
		RefreshToken:    "refresh-token-value",
		IsAuthenticated: true,
	}
}

func repositories(t *testing.T) map[string]storage.Repository {
	t.Helper()
	boltRepo, err := bboltstorage.NewRepositoryFromFile(filepath.Join(t.TempDir(), "session.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { boltRepo.Close() })
	return map[string]storage.Repository{
		"memory": memory.NewRepository(),
		"bbolt":  boltRepo,
	}
}

func TestSealedPersister_RoundTrip(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			key := testKey(t)
			p, err := NewSealedPersister(repo, "", key)
			require.NoError(t, err)
			assert.Equal(t, "default", p.Profile())

			got, err := p.Load()
			require.NoError(t, err)
			assert.Nil(t, got)

			want := sampleProjection()
			require.NoError(t, p.Save(want))

			// A second persister with the same key reads the same data.
			p2, err := NewSealedPersister(repo, "default", key)
			require.NoError(t, err)
			got, err = p2.Load()
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, want, *got)

			profiles, err := p.Profiles()
			require.NoError(t, err)
			assert.Equal(t, []string{"default"}, profiles)
		})
	}
}

func TestSealedPersister_TokensAreNotStoredInClear(t *testing.T) {
	repo := memory.NewRepository()
	p, err := NewSealedPersister(repo, "default", testKey(t))
	require.NoError(t, err)
	require.NoError(t, p.Save(sampleProjection()))

	env, err := repo.Get(persistNamespace, snapshotKind, "default")
	require.NoError(t, err)
	assert.Equal(t, storage.SchemeAESGCM, env.Scheme)
	assert.False(t, bytes.Contains(env.Ciphertext, []byte("access-token-value")))
	assert.False(t, bytes.Contains(env.Ciphertext, []byte("refresh-token-value")))
}

func TestSealedPersister_WrongWrappingKeyTreatsSnapshotAsAbsent(t *testing.T) {
	repo := memory.NewRepository()
	p, err := NewSealedPersister(repo, "default", testKey(t))
	require.NoError(t, err)
	require.NoError(t, p.Save(sampleProjection()))

	other, err := NewSealedPersister(repo, "default", testKey(t))
	require.NoError(t, err)
	got, err := other.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	// The new key is usable going forward.
	require.NoError(t, other.Save(sampleProjection()))
	got, err = other.Load()
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestSealedPersister_ProfilesAreIsolated(t *testing.T) {
	repo := memory.NewRepository()
	key := testKey(t)
	work, err := NewSealedPersister(repo, "work", key)
	require.NoError(t, err)
	home, err := NewSealedPersister(repo, "home", key)
	require.NoError(t, err)

	require.NoError(t, work.Save(sampleProjection()))
	got, err := home.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	// A snapshot copied to another profile fails its AAD check.
	env, err := repo.Get(persistNamespace, snapshotKind, "work")
	require.NoError(t, err)
	require.NoError(t, repo.Put(persistNamespace, snapshotKind, "home", env))
	got, err = home.Load()
	require.NoError(t, err)
	assert.Nil(t, got)

	profiles, err := work.Profiles()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"home", "work"}, profiles)
}

func TestNewSealedPersister_RejectsBadKey(t *testing.T) {
	_, err := NewSealedPersister(memory.NewRepository(), "default", []byte("short"))
	assert.ErrorIs(t, err, ErrInvalidWrappingKey)
}

func TestProjectionExcludesTransientFields(t *testing.T) {
	s := Session{
		User:            &User{Username: "admin"},
		AccessToken:     "a",
		RefreshToken:    "r",
		IsAuthenticated: true,
		IsLoading:       true,
		Error:           "boom",
	}
	proj := s.projection()
	assert.Equal(t, Projection{User: &User{Username: "admin"}, AccessToken: "a", RefreshToken: "r", IsAuthenticated: true}, proj)

	// The projection holds its own copy of the user.
	proj.User.Username = "changed"
	assert.Equal(t, "admin", s.User.Username)
}
