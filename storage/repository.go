// Package storage provides the durable record layer used to persist sealed
// session snapshots.
package storage

import "errors"

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNamespaceNotFound is returned when no record has ever been written
	// to the requested namespace.
	ErrNamespaceNotFound = errors.New("namespace not found")
)

// Repository stores sealed envelopes addressed by namespace, record kind and
// record ID. Implementations must be safe for concurrent use.
type Repository interface {
	Put(namespace, kind, id string, envelope *Envelope) error
	Get(namespace, kind, id string) (*Envelope, error)
	Delete(namespace, kind, id string) error
	List(namespace, kind string) ([]string, error)
}
