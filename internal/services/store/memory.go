package store

import (
	"context"
	"sync"
	"time"

	"ticket-issuer/internal/status"
	"ticket-issuer/models"
)

// MemoryStore keeps records in a process-local map. Nothing survives a
// restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.TicketRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.TicketRecord)}
}

func (s *MemoryStore) Save(_ context.Context, record models.TicketRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.ID] = cloneRecord(record)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.TicketRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, status.ErrTicketNotFound
	}
	out := cloneRecord(record)
	return &out, nil
}

func (s *MemoryStore) MarkUsed(_ context.Context, id string, usedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return status.ErrTicketNotFound
	}
	if record.Used() {
		return status.ErrAlreadyUsed
	}
	markUsed(&record, usedAt)
	s.records[id] = record
	return nil
}

// Len reports how many tickets are stored.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func markUsed(record *models.TicketRecord, usedAt time.Time) {
	at := usedAt.UTC()
	record.Status = models.StatusUsed
	record.UsedAt = &at
}

// cloneRecord detaches the UsedAt pointer from stored state.
func cloneRecord(record models.TicketRecord) models.TicketRecord {
	if record.UsedAt != nil {
		at := *record.UsedAt
		record.UsedAt = &at
	}
	return record
}
