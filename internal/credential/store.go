package credential

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Get when no credential is stored.
var ErrNotFound = errors.New("no credential stored")

// Store persists the single bearer credential under a fixed key.
// The refresh leader inside the gateway is the only writer during
// normal operation; login and logout are the other lifecycle points.
type Store interface {
	// Get returns the stored credential, or ErrNotFound
	Get(ctx context.Context) (string, error)

	// Set replaces the stored credential
	Set(ctx context.Context, token string) error

	// Remove deletes the stored credential. Removing an absent
	// credential is not an error.
	Remove(ctx context.Context) error
}

// MemoryStore implements Store in memory
type MemoryStore struct {
	mu    sync.Mutex
	token string
	set   bool
}

// NewMemoryStore creates an empty MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns the stored credential
func (m *MemoryStore) Get(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.set {
		return "", ErrNotFound
	}
	return m.token, nil
}

// Set replaces the stored credential
func (m *MemoryStore) Set(ctx context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	m.set = true
	return nil
}

// Remove deletes the stored credential
func (m *MemoryStore) Remove(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.set = false
	return nil
}
