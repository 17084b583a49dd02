// Package cache persists transform outputs keyed by step fingerprint and
// input content, so unchanged images and fonts are not re-encoded.
package cache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"git.home.luguber.info/inful/assetbuilder/internal/config"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// Store is a byte-value cache.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Pruner is implemented by stores that can expire old entries.
type Pruner interface {
	// Prune deletes entries not written since before and returns how many went.
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Open returns the store selected by cfg, or nil when caching is disabled.
// Failures are cache errors with warning severity: callers may run uncached.
func Open(cfg *config.Config) (Store, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	switch cfg.Cache.Driver {
	case config.CacheDriverSQLite:
		path := cfg.CachePath()
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, ferrors.CacheError("failed to create cache directory").
				WithCause(err).
				WithContext("file", path).
				Build()
		}
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, ferrors.CacheError("failed to open cache").
				WithCause(err).
				WithContext("file", path).
				Build()
		}
		return s, nil
	default:
		return NewMemoryStore(), nil
	}
}

// MemoryStore keeps entries for the life of the process.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// Len reports the number of entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryStore) Close() error { return nil }
