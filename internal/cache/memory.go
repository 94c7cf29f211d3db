package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is a process-local cache, used when no data directory is wanted.
type Memory struct {
	c *gocache.Cache
}

// NewMemory creates an in-memory cache whose entries live for ttl.
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	cleanup := 10 * time.Minute
	if ttl != gocache.NoExpiration && ttl < cleanup {
		cleanup = ttl
	}
	return &Memory{c: gocache.New(ttl, cleanup)}
}

// Get returns a cached value.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	return v.([]byte), true, nil
}

// Set stores a copy of value.
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.c.SetDefault(key, append([]byte(nil), value...))
	return nil
}

// Close drops all entries.
func (m *Memory) Close() error {
	m.c.Flush()
	return nil
}
