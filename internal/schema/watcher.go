package schema

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Watcher reloads a Cache whenever its backing file changes on disk.
type Watcher struct {
	cache  *Cache
	poll   time.Duration
	logger *slog.Logger

	modTime time.Time
	size    int64
}

// NewWatcher creates a Watcher for cache. If pollInterval is <= 0, it
// defaults to one minute.
func NewWatcher(cache *Cache, pollInterval time.Duration) *Watcher {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Watcher{
		cache:  cache,
		poll:   pollInterval,
		logger: slog.Default(),
	}
}

// Run polls the schema file until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}

		reloaded, err := w.RunOnce()
		if err != nil {
			w.logger.Warn("schema: reload failed, keeping previous snapshot", "path", w.cache.Path(), "error", err)
			continue
		}
		if reloaded {
			w.logger.Info("schema: reloaded", "path", w.cache.Path())
		}
	}
}

// RunOnce reloads the cache if the file's size or modification time differs
// from the last check. Returns true if a new snapshot was stored.
func (w *Watcher) RunOnce() (bool, error) {
	info, err := os.Stat(w.cache.Path())
	if err != nil {
		return false, fmt.Errorf("stat schema file: %w", err)
	}
	if info.ModTime().Equal(w.modTime) && info.Size() == w.size {
		return false, nil
	}

	if err := w.cache.Reload(); err != nil {
		return false, err
	}
	w.modTime = info.ModTime()
	w.size = info.Size()
	return true, nil
}
