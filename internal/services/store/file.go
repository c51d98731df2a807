package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ticket-issuer/internal/status"
	"ticket-issuer/models"
)

// FileStore persists every record in a single JSON document that is fully
// rewritten on each mutation. It is meant for local runs and small events.
type FileStore struct {
	path string

	mu      sync.Mutex
	records map[string]models.TicketRecord
}

// NewFileStore loads path, creating its directory when needed. A missing file
// starts empty. A file holding invalid JSON is logged and reset to empty.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	s := &FileStore{
		path:    path,
		records: make(map[string]models.TicketRecord),
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read store file: %w", err)
	}

	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		slog.Warn("ticket store file is not valid JSON, starting empty", "path", path, "error", err)
		s.records = make(map[string]models.TicketRecord)
		if err := s.flush(); err != nil {
			return nil, err
		}
	}
	if s.records == nil {
		s.records = make(map[string]models.TicketRecord)
	}
	return s, nil
}

func (s *FileStore) Save(_ context.Context, record models.TicketRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, existed := s.records[record.ID]
	s.records[record.ID] = cloneRecord(record)
	if err := s.flush(); err != nil {
		if existed {
			s.records[record.ID] = prev
		} else {
			delete(s.records, record.ID)
		}
		return err
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, id string) (*models.TicketRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, status.ErrTicketNotFound
	}
	out := cloneRecord(record)
	return &out, nil
}

func (s *FileStore) MarkUsed(_ context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return status.ErrTicketNotFound
	}
	if record.Used() {
		return status.ErrAlreadyUsed
	}

	prev := record
	markUsed(&record, usedAt)
	s.records[id] = record
	if err := s.flush(); err != nil {
		s.records[id] = prev
		return err
	}
	return nil
}

// flush writes to a temp file and renames it over the store so readers
// never observe a half written document. Callers hold s.mu.
func (s *FileStore) flush() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", status.ErrStorage, err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: write: %v", status.ErrStorage, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: rename: %v", status.ErrStorage, err)
	}
	return nil
}
