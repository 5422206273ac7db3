package invitation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"secret-room/internal/apperr"
	"secret-room/internal/membership"
)

// MemoryStore keeps invitations in process. Redeem holds the store lock across
// the membership insert, so the used flag and the membership change together.
type MemoryStore struct {
	mu          sync.Mutex
	members     membership.Store
	invitations map[string]*Invitation
}

func NewMemoryStore(members membership.Store) *MemoryStore {
	return &MemoryStore{
		members:     members,
		invitations: make(map[string]*Invitation),
	}
}

func (s *MemoryStore) Create(_ context.Context, inv *Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.invitations[inv.InviteCode]; exists {
		return fmt.Errorf("%w: invite code collision", apperr.ErrConflict)
	}
	cp := *inv
	s.invitations[inv.InviteCode] = &cp
	return nil
}

func (s *MemoryStore) Find(_ context.Context, code string) (*Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[code]
	if !ok {
		return nil, fmt.Errorf("%w: invitation", apperr.ErrNotFound)
	}
	cp := *inv
	return &cp, nil
}

func (s *MemoryStore) Redeem(ctx context.Context, code, userID string, _ time.Time) (*membership.Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[code]
	if !ok {
		return nil, fmt.Errorf("%w: invitation", apperr.ErrNotFound)
	}
	if inv.Used {
		return nil, fmt.Errorf("%w: invitation already used", apperr.ErrConflict)
	}
	m, err := s.members.AddMember(ctx, inv.RoomID, userID)
	if err != nil {
		return nil, err
	}
	inv.Used = true
	return m, nil
}

func (s *MemoryStore) DeleteByRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for code, inv := range s.invitations {
		if inv.RoomID == roomID {
			delete(s.invitations, code)
		}
	}
	return nil
}
