// Package store defines the key-value contract used for the client's small
// amount of durable state: the last-known gateway address, the current
// session token, and the MAC-to-label map. Values are opaque strings (JSON
// where structure is needed), and absence is a cache miss, never an error.
package store

import (
	"context"
	"sync"
)

// Keys used by the gateway client.
const (
	KeyGatewayAddress = "gateway.addr"
	KeySession        = "gateway.session"
	KeyDeviceLabels   = "device.labels"
)

// Store is the persistent key-value collaborator.
type Store interface {
	// Get returns the value for key. The second return is false when the
	// key is absent; absence is not an error.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error

	// Remove deletes key. Removing an absent key is a no-op.
	Remove(ctx context.Context, key string) error
}

// Memory is an in-process Store. It is the default when no durable store is
// configured, and the workhorse for tests.
type Memory struct {
	mu sync.RWMutex
	m  map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{m: make(map[string]string)}
}

func (s *Memory) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	return v, ok, nil
}

func (s *Memory) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func (s *Memory) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key)
	return nil
}
