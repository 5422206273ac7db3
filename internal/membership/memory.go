package membership

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"secret-room/internal/apperr"

	"github.com/benbjohnson/clock"
)

// MemoryStore is the in-process Store used by STORAGE=memory and by tests.
type MemoryStore struct {
	mu         sync.RWMutex
	clock      clock.Clock
	members    map[string]map[string]Membership // roomID -> userID -> membership
	identities map[string]*Identity
}

func NewMemoryStore(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock:      clk,
		members:    make(map[string]map[string]Membership),
		identities: make(map[string]*Identity),
	}
}

func (s *MemoryStore) AddMember(_ context.Context, roomID, userID string) (*Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.members[roomID]
	if !ok {
		room = make(map[string]Membership)
		s.members[roomID] = room
	}
	if _, exists := room[userID]; exists {
		return nil, fmt.Errorf("%w: %s is already a member of %s", apperr.ErrConflict, userID, roomID)
	}

	now := s.clock.Now().UTC()
	m := Membership{RoomID: roomID, UserID: userID, JoinedAt: now}
	room[userID] = m
	s.identityLocked(userID, now)
	return &m, nil
}

func (s *MemoryStore) IsMember(_ context.Context, roomID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[roomID][userID]
	return ok, nil
}

func (s *MemoryStore) ListMembers(_ context.Context, roomID string) ([]Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	members := make([]Member, 0, len(s.members[roomID]))
	for _, m := range s.members[roomID] {
		member := Member{UserID: m.UserID, JoinedAt: m.JoinedAt, LastSeenAt: m.JoinedAt}
		if id, ok := s.identities[m.UserID]; ok {
			member.IsOnline = id.IsOnline
			member.LastSeenAt = id.LastSeenAt
		}
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].UserID < members[j].UserID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})
	return members, nil
}

func (s *MemoryStore) DeleteByRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, roomID)
	return nil
}

func (s *MemoryStore) GetIdentity(_ context.Context, userID string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.identities[userID]
	if !ok {
		return nil, fmt.Errorf("%w: identity %s", apperr.ErrNotFound, userID)
	}
	cp := *id
	return &cp, nil
}

func (s *MemoryStore) MarkOnline(_ context.Context, userID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UTC()
	id := s.identityLocked(userID, now)
	id.IsOnline = true
	id.LastSeenAt = now
	room := roomID
	id.CurrentRoomID = &room
	return nil
}

func (s *MemoryStore) MarkOffline(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.identities[userID]
	if !ok {
		return nil
	}
	id.IsOnline = false
	id.LastSeenAt = s.clock.Now().UTC()
	id.CurrentRoomID = nil
	id.Typing = false
	id.TypingTarget = nil
	return nil
}

func (s *MemoryStore) SetTyping(_ context.Context, userID string, typing bool, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.identities[userID]
	if !ok {
		return nil
	}
	id.Typing = typing
	id.TypingTarget = nil
	if typing && targetID != "" {
		target := targetID
		id.TypingTarget = &target
	}
	return nil
}

// identityLocked returns the identity for userID, creating it on first use.
func (s *MemoryStore) identityLocked(userID string, now time.Time) *Identity {
	id, ok := s.identities[userID]
	if !ok {
		id = &Identity{UserID: userID, LastSeenAt: now, CreatedAt: now}
		s.identities[userID] = id
	}
	return id
}
