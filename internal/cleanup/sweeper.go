// Package cleanup removes leftover temporary recordings and expires old audio.
package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dictakey/internal/logger"
)

const DefaultInterval = 24 * time.Hour

type Config struct {
	TempDir       string
	TempPrefix    string
	RecordingsDir string
	// Retention of zero keeps recordings forever.
	Retention time.Duration
}

// Sweeper deletes files that no record or session needs anymore.
type Sweeper struct {
	cfg Config
	log *slog.Logger
	now func() time.Time
}

func NewSweeper(cfg Config, log *slog.Logger) *Sweeper {
	return &Sweeper{cfg: cfg, log: logger.OrDefault(log), now: time.Now}
}

// SweepTemp removes temp recordings left by a previous process. Call it only
// before the first session starts.
func (s *Sweeper) SweepTemp() (int, error) {
	if s.cfg.TempDir == "" || s.cfg.TempPrefix == "" {
		return 0, nil
	}
	return s.sweep(s.cfg.TempDir, func(entry os.DirEntry) bool {
		return strings.HasPrefix(entry.Name(), s.cfg.TempPrefix)
	})
}

// SweepRecordings removes permanent recordings older than the retention period.
func (s *Sweeper) SweepRecordings() (int, error) {
	if s.cfg.RecordingsDir == "" || s.cfg.Retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.cfg.Retention)
	return s.sweep(s.cfg.RecordingsDir, func(entry os.DirEntry) bool {
		if !strings.EqualFold(filepath.Ext(entry.Name()), ".wav") {
			return false
		}
		info, err := entry.Info()
		return err == nil && info.ModTime().Before(cutoff)
	})
}

func (s *Sweeper) sweep(dir string, match func(os.DirEntry) bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !match(entry) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
		s.log.Debug("removed stale audio", "path", path)
	}
	return removed, errors.Join(errs...)
}

// Run sweeps recordings immediately and then every interval until ctx ends.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if n, err := s.SweepRecordings(); err != nil {
			s.log.Warn("recording cleanup incomplete", "removed", n, "error", err)
		} else if n > 0 {
			s.log.Info("expired recordings removed", "removed", n)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
