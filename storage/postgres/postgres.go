// Package postgres implements storage.Repository backed by PostgreSQL.
//
// It lets several terminals share one set of sealed session snapshots. The
// session_records table mirrors the namespace/kind/id key space used by the
// BBolt and in-memory backends.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jmcleod/hrclient/storage"
)

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Put(namespace, kind, id string, envelope *storage.Envelope) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO session_records (namespace, kind, record_id, ver, scheme, nonce, ciphertext)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (namespace, kind, record_id)
		 DO UPDATE SET ver = $4, scheme = $5, nonce = $6, ciphertext = $7, updated_at = now()`,
		namespace, kind, id,
		envelope.Ver, envelope.Scheme, envelope.Nonce, envelope.Ciphertext)
	return err
}

func (s *Store) Get(namespace, kind, id string) (*storage.Envelope, error) {
	ctx := context.Background()
	var env storage.Envelope
	err := s.pool.QueryRow(ctx,
		`SELECT ver, scheme, nonce, ciphertext
		 FROM session_records WHERE namespace = $1 AND kind = $2 AND record_id = $3`,
		namespace, kind, id).Scan(&env.Ver, &env.Scheme, &env.Nonce, &env.Ciphertext)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, s.notFound(ctx, namespace, kind, id)
	}
	if err != nil {
		return nil, err
	}
	return &env, nil
}

func (s *Store) Delete(namespace, kind, id string) error {
	ctx := context.Background()
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM session_records WHERE namespace = $1 AND kind = $2 AND record_id = $3`,
		namespace, kind, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return s.notFound(ctx, namespace, kind, id)
	}
	return nil
}

func (s *Store) List(namespace, kind string) ([]string, error) {
	rows, err := s.pool.Query(context.Background(),
		`SELECT record_id FROM session_records WHERE namespace = $1 AND kind = $2 ORDER BY record_id`,
		namespace, kind)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// notFound distinguishes a missing namespace from a missing record, matching
// the BBolt backend.
func (s *Store) notFound(ctx context.Context, namespace, kind, id string) error {
	var exists bool
	_ = s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM session_records WHERE namespace = $1)`,
		namespace).Scan(&exists)
	if !exists {
		return fmt.Errorf("%s: %w", namespace, storage.ErrNamespaceNotFound)
	}
	return fmt.Errorf("%s/%s: %w", kind, id, storage.ErrNotFound)
}
