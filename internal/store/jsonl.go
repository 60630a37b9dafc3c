package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"dictakey/internal/domain"
	"dictakey/internal/logger"
)

// JSONL appends one JSON record per line. The file is read once at open and
// kept in memory for queries.
type JSONL struct {
	path string
	log  *slog.Logger

	mu      sync.RWMutex
	file    *os.File
	records []domain.TranscriptionRecord
}

func OpenJSONL(path string, log *slog.Logger) (*JSONL, error) {
	if path == "" {
		return nil, errors.New("history file path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir: %w", err)
	}

	s := &JSONL{path: path, log: logger.OrDefault(log)}
	if err := s.load(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening history file: %w", err)
	}
	s.file = f
	return s, nil
}

func (s *JSONL) load() error {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading history file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var record domain.TranscriptionRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			// A torn final write must not make the whole history unreadable.
			s.log.Warn("skipping unreadable history line", "path", s.path, "line", line, "error", err)
			continue
		}
		s.records = append(s.records, record)
	}
	return scanner.Err()
}

func (s *JSONL) Append(_ context.Context, record domain.TranscriptionRecord) error {
	if record.ID == "" {
		return ErrMissingID
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding record: %w", err)
	}
	payload = append(payload, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return os.ErrClosed
	}
	if _, err := s.file.Write(payload); err != nil {
		return fmt.Errorf("appending record: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("syncing history file: %w", err)
	}
	s.records = append(s.records, record)
	return nil
}

func (s *JSONL) Latest(_ context.Context) (domain.TranscriptionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return domain.TranscriptionRecord{}, false, nil
	}
	return s.records[len(s.records)-1], true, nil
}

func (s *JSONL) Recent(_ context.Context, limit int) ([]domain.TranscriptionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newestFirst(s.records, limit), nil
}

func (s *JSONL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
