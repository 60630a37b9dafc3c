// Package store persists transcription records. Records are append-only.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"dictakey/internal/domain"
	"dictakey/internal/ports"
)

var ErrMissingID = errors.New("record has no id")

const (
	DriverJSONL    = "jsonl"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options selects and configures a backend.
type Options struct {
	Driver string
	Path   string
	DSN    string
}

// Closer is a TranscriptionStore that holds resources.
type Closer interface {
	ports.TranscriptionStore
	Close() error
}

// Open returns the backend named by opts.Driver.
func Open(ctx context.Context, opts Options, log *slog.Logger) (Closer, error) {
	switch opts.Driver {
	case "", DriverJSONL:
		return OpenJSONL(opts.Path, log)
	case DriverPostgres:
		return OpenPostgres(ctx, opts.DSN)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}

// Memory keeps records in process memory.
type Memory struct {
	mu      sync.RWMutex
	records []domain.TranscriptionRecord
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Append(_ context.Context, record domain.TranscriptionRecord) error {
	if record.ID == "" {
		return ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *Memory) Latest(_ context.Context) (domain.TranscriptionRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.records) == 0 {
		return domain.TranscriptionRecord{}, false, nil
	}
	return m.records[len(m.records)-1], true, nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]domain.TranscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.records, limit), nil
}

func (m *Memory) Close() error { return nil }

// newestFirst copies up to limit records in reverse append order. limit <= 0 means all.
func newestFirst(records []domain.TranscriptionRecord, limit int) []domain.TranscriptionRecord {
	n := len(records)
	if limit > 0 && n > limit {
		n = limit
	}
	out := make([]domain.TranscriptionRecord, 0, n)
	for i := len(records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, records[i])
	}
	return out
}
