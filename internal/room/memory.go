package room

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"secret-room/internal/apperr"
)

type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*Room)}
}

func (s *MemoryStore) Create(_ context.Context, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[room.ID]; exists {
		return fmt.Errorf("%w: room id collision", apperr.ErrConflict)
	}
	cp := *room
	s.rooms[room.ID] = &cp
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, roomID string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: room", apperr.ErrNotFound)
	}
	cp := *room
	return &cp, nil
}

func (s *MemoryStore) FindByGlobalInvitation(_ context.Context, globalInvitationID string) (*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, room := range s.rooms {
		if room.GlobalInvitationID == globalInvitationID {
			cp := *room
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: room", apperr.ErrNotFound)
}

func (s *MemoryStore) Delete(_ context.Context, roomID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[roomID]
	delete(s.rooms, roomID)
	return ok, nil
}

func (s *MemoryStore) ListExpired(_ context.Context, now time.Time) ([]*Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rooms []*Room
	for _, room := range s.rooms {
		if room.ExpiredAt(now) {
			cp := *room
			rooms = append(rooms, &cp)
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].ExpiresAt.Before(rooms[j].ExpiresAt) })
	return rooms, nil
}

func (s *MemoryStore) RefreshPersistent(_ context.Context, expiresAt time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, room := range s.rooms {
		if room.Kind == Persistent {
			room.ExpiresAt = expiresAt
			n++
		}
	}
	return n, nil
}
