package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/hrclient/gateway"
	"github.com/jmcleod/hrclient/internal/config"
	"github.com/jmcleod/hrclient/internal/util"
	"github.com/jmcleod/hrclient/session"
	"github.com/jmcleod/hrclient/storage"
	bboltstorage "github.com/jmcleod/hrclient/storage/bbolt"
	"github.com/jmcleod/hrclient/storage/memory"
	"github.com/jmcleod/hrclient/storage/postgres"
)

var errNotLoggedIn = errors.New("not logged in; run 'hrclient login' first")

// runtime wires configuration, storage, gateway and session store for one
// command invocation.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	repo      storage.Repository
	persister *session.SealedPersister
	gw        *gateway.Client
	store     *session.Store
	closeRepo func()
}

func openRuntime(cmd *cobra.Command) (*runtime, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger(cmd.ErrOrStderr())

	repo, closeRepo, err := openRepository(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}

	key, err := wrappingKey(cfg, repo)
	if err != nil {
		closeRepo()
		return nil, err
	}
	defer util.WipeBytes(key)

	persister, err := session.NewSealedPersister(repo, cfg.Profile, key)
	if err != nil {
		closeRepo()
		return nil, fmt.Errorf("opening session storage: %w", err)
	}

	gw, err := gateway.New(cfg.BaseURL,
		gateway.WithTimeout(cfg.RequestTimeout()),
		gateway.WithLogger(logger),
		gateway.WithUserAgent("hrclient/"+Version),
	)
	if err != nil {
		closeRepo()
		return nil, err
	}

	policy := session.LogoutBestEffort
	if cfg.RequireRevocation {
		policy = session.LogoutRequireRevocation
	}
	store := session.NewStore(gw, persister, session.WithLogger(logger), session.WithLogoutPolicy(policy))

	return &runtime{
		cfg:       cfg,
		logger:    logger,
		repo:      repo,
		persister: persister,
		gw:        gw,
		store:     store,
		closeRepo: closeRepo,
	}, nil
}

func (rt *runtime) Close() {
	rt.store.Close()
	rt.closeRepo()
}

// restore loads the saved session and waits for the profile refresh. It
// returns errNotLoggedIn when nothing is saved.
func (rt *runtime) restore(ctx context.Context) (session.Result, error) {
	results, err := rt.store.Initialize(ctx)
	if err != nil {
		return session.Result{}, err
	}
	res, ok := <-results
	if !ok {
		return session.Result{}, errNotLoggedIn
	}
	return res, nil
}

// requireSession restores the session and fails unless it is still
// authenticated afterwards.
func (rt *runtime) requireSession(ctx context.Context) error {
	res, err := rt.restore(ctx)
	if err != nil {
		return err
	}
	if !rt.store.Snapshot().IsAuthenticated {
		if res.Error != "" {
			return fmt.Errorf("%s", res.Error)
		}
		return errNotLoggedIn
	}
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memory.NewRepository(), func() {}, nil
	case config.StorePostgres:
		repo, err := postgres.NewRepositoryFromDSN(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open postgres session storage: %w", err)
		}
		return repo, repo.Close, nil
	default:
		if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(cfg.DatabasePath(), &bbolt.Options{Timeout: 2 * time.Second})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open session storage: %w", err)
		}
		return repo, func() { repo.Close() }, nil
	}
}

// wrappingKey derives the key that seals the session data key: from the
// passphrase when one is configured, from a random per-process key for the
// memory store, and otherwise from a key file created on first use.
func wrappingKey(cfg *config.Config, repo storage.Repository) ([]byte, error) {
	switch {
	case cfg.Passphrase != "":
		return session.WrappingKeyFromPassphrase(repo, cfg.Passphrase)
	case cfg.Store == config.StoreMemory:
		return util.NewAESKey()
	default:
		return readOrCreateKeyFile(cfg.KeyPath())
	}
}

func readOrCreateKeyFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return session.WrappingKeyFromHex(string(data))
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading key file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	hexKey, err := session.NewWrappingKeyHex()
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		// Another invocation created it first.
		return readOrCreateKeyFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("creating key file: %w", err)
	}
	if _, err := f.WriteString(hexKey + "\n"); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("writing key file: %w", err)
	}
	return session.WrappingKeyFromHex(hexKey)
}
