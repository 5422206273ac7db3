package message

import (
	"context"
	"fmt"
	"sync"

	"secret-room/internal/apperr"
)

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	byRoom  map[string][]string // insertion order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
		byRoom:  make(map[string][]string),
	}
}

func (s *MemoryStore) Insert(_ context.Context, rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("%w: message id collision", apperr.ErrConflict)
	}
	cp := *rec
	s.records[rec.ID] = &cp
	s.byRoom[rec.RoomID] = append(s.byRoom[rec.RoomID], rec.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, messageID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: message %s", apperr.ErrNotFound, messageID)
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) ListByRoom(_ context.Context, roomID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0, len(s.byRoom[roomID]))
	for _, id := range s.byRoom[roomID] {
		cp := *s.records[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, messageID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[messageID]
	if !ok {
		return nil, fmt.Errorf("%w: message %s", apperr.ErrNotFound, messageID)
	}
	rec.ReadByReceiver = true
	cp := *rec
	return &cp, nil
}

func (s *MemoryStore) MarkDelivered(_ context.Context, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[messageID]
	if !ok {
		return fmt.Errorf("%w: message %s", apperr.ErrNotFound, messageID)
	}
	rec.Delivered = true
	return nil
}

func (s *MemoryStore) DeleteByRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.byRoom[roomID] {
		delete(s.records, id)
	}
	delete(s.byRoom, roomID)
	return nil
}
