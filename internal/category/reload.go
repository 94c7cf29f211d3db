package category

import (
	"context"
	"log/slog"

	"github.com/geoproapp/geopro-server/internal/watcher"
)

// Watch reloads the mapper's table whenever one of the source files changes.
// A table that fails to load is logged and the previous one stays active.
// Blocks until ctx is cancelled.
func Watch(ctx context.Context, m *Mapper, src Sources, logger *slog.Logger) error {
	paths := src.Paths()
	if len(paths) == 0 {
		return nil
	}

	w, err := watcher.New(logger, watcher.Options{})
	if err != nil {
		return err
	}
	defer w.Stop()

	for _, p := range paths {
		if err := w.Watch(p); err != nil {
			return err
		}
	}

	go func() { _ = w.Start(ctx) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-w.Errors():
			logger.Warn("category table watcher error", "error", err)
		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			if ev.Type == watcher.EventRemoved {
				logger.Warn("category table file removed, keeping current table", "path", ev.Path)
				continue
			}
			t, err := Load(src)
			if err != nil {
				logger.Error("failed to reload category table", "path", ev.Path, "error", err)
				continue
			}
			if t.Version() == m.Table().Version() {
				continue
			}
			m.Swap(t)
		}
	}
}
