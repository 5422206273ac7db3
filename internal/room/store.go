package room

import (
	"context"
	"time"
)

// Store persists Room records. Implementations return apperr.ErrNotFound for
// unknown rooms.
type Store interface {
	Create(ctx context.Context, room *Room) error
	FindByID(ctx context.Context, roomID string) (*Room, error)
	FindByGlobalInvitation(ctx context.Context, globalInvitationID string) (*Room, error)
	// Delete reports whether a row was removed; deleting an absent room is not an error.
	Delete(ctx context.Context, roomID string) (bool, error)
	// ListExpired returns ephemeral rooms whose ExpiresAt is at or before now.
	ListExpired(ctx context.Context, now time.Time) ([]*Room, error)
	// RefreshPersistent moves every persistent room's ExpiresAt to expiresAt.
	RefreshPersistent(ctx context.Context, expiresAt time.Time) (int64, error)
}

// Dependent is a store holding rows that reference a room and must be removed
// with it.
type Dependent interface {
	DeleteByRoom(ctx context.Context, roomID string) error
}
