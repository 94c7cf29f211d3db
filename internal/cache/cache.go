// Package cache stores raw geodata backend responses keyed by query so that
// re-running a session does not repeat network requests.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"
)

// Backend names accepted by New.
const (
	BackendBadger = "badger"
	BackendMemory = "memory"
	BackendNone   = "none"
)

// Cache is a byte cache with a fixed entry lifetime.
type Cache interface {
	// Get returns the cached value. A miss is (nil, false, nil).
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Key derives a stable cache key from a namespace and query text.
func Key(namespace, query string) string {
	sum := sha256.Sum256([]byte(query))
	return namespace + ":" + hex.EncodeToString(sum[:])
}

// New builds the cache for backend. dir is only used by the badger backend.
func New(backend, dir string, ttl time.Duration, logger *slog.Logger) (Cache, error) {
	switch backend {
	case BackendBadger:
		return OpenBadger(dir, ttl, logger)
	case BackendMemory:
		return NewMemory(ttl), nil
	case BackendNone, "":
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}

// Nop caches nothing.
type Nop struct{}

// Get always misses.
func (Nop) Get(context.Context, string) ([]byte, bool, error) { return nil, false, nil }

// Set discards the value.
func (Nop) Set(context.Context, string, []byte) error { return nil }

// Close is a no-op.
func (Nop) Close() error { return nil }
