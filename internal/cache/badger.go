package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const gcInterval = 10 * time.Minute

// Badger is a persistent cache. Entries expire through badger's native TTL.
type Badger struct {
	db     *badger.DB
	ttl    time.Duration
	logger *slog.Logger

	stop chan struct{}
	wg   sync.WaitGroup
}

// OpenBadger opens or creates a cache database in dir.
func OpenBadger(dir string, ttl time.Duration, logger *slog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	opts.CompactL0OnClose = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger cache: %w", err)
	}

	c := &Badger{
		db:     db,
		ttl:    ttl,
		logger: logger,
		stop:   make(chan struct{}),
	}

	c.wg.Add(1)
	go c.gcLoop()

	logger.Info("overpass response cache opened", "path", dir, "ttl", ttl)
	return c, nil
}

// Get returns a cached value.
func (c *Badger) Get(_ context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return value, true, nil
}

// Set stores value under key for the cache TTL.
func (c *Badger) Set(_ context.Context, key string, value []byte) error {
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Close stops garbage collection and closes the database.
func (c *Badger) Close() error {
	close(c.stop)
	c.wg.Wait()
	return c.db.Close()
}

func (c *Badger) gcLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			// RunValueLogGC rewrites at most one file per call.
			for c.db.RunValueLogGC(0.5) == nil {
			}
		}
	}
}
