package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"

	"dictakey/internal/logger"
)

const reloadSettle = 150 * time.Millisecond

// Watcher reloads an Engine whenever its rules file changes on disk.
type Watcher struct {
	engine  *Engine
	log     *slog.Logger
	settle  time.Duration
	onApply func(err error)
}

func NewWatcher(engine *Engine, log *slog.Logger) *Watcher {
	return &Watcher{engine: engine, log: logger.OrDefault(log), settle: reloadSettle}
}

// Run blocks until ctx is done. The parent directory is watched rather than
// the file so editors that replace the file by rename are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	path := w.engine.Path()
	if path == "" {
		return errors.New("rules engine has no file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create rules watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.log.Info("watching rules file", "path", path)

	schedule := debounce.New(w.settle)
	defer schedule(func() {})

	target := filepath.Clean(path)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			schedule(w.reload)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Error("rules watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	err := w.engine.Reload()
	if err != nil {
		w.log.Error("failed to reload rules, keeping previous set", "error", err)
	} else {
		w.log.Info("rules reloaded", "path", w.engine.Path(), "rules", w.engine.Len())
	}
	if w.onApply != nil {
		w.onApply(err)
	}
}
