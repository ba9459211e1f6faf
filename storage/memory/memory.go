// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jmcleod/hrclient/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Suitable for tests and for sessions that must not outlive the process.
type Repository struct {
	mu   sync.RWMutex
	data map[string]map[string]*storage.Envelope
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[string]map[string]*storage.Envelope)}
}

func makeKey(kind, id string) string {
	return kind + ":" + id
}

func (r *Repository) Put(namespace, kind, id string, envelope *storage.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.data[namespace]
	if !ok {
		ns = make(map[string]*storage.Envelope)
		r.data[namespace] = ns
	}
	ns[makeKey(kind, id)] = envelope.Clone()
	return nil
}

func (r *Repository) Get(namespace, kind, id string) (*storage.Envelope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ns, ok := r.data[namespace]
	if !ok {
		return nil, fmt.Errorf("%s: %w", namespace, storage.ErrNamespaceNotFound)
	}
	env, ok := ns[makeKey(kind, id)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", kind, id, storage.ErrNotFound)
	}
	return env.Clone(), nil
}

func (r *Repository) Delete(namespace, kind, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ns, ok := r.data[namespace]
	if !ok {
		return fmt.Errorf("%s: %w", namespace, storage.ErrNamespaceNotFound)
	}
	k := makeKey(kind, id)
	if _, ok := ns[k]; !ok {
		return fmt.Errorf("%s/%s: %w", kind, id, storage.ErrNotFound)
	}
	delete(ns, k)
	return nil
}

func (r *Repository) List(namespace, kind string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	prefix := kind + ":"
	for k := range r.data[namespace] {
		if id, ok := strings.CutPrefix(k, prefix); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
