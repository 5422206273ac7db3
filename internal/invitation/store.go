package invitation

import (
	"context"
	"time"

	"secret-room/internal/membership"
)

type Store interface {
	Create(ctx context.Context, inv *Invitation) error
	Find(ctx context.Context, code string) (*Invitation, error)
	// Redeem flips Used and inserts the membership as one unit. It fails with
	// apperr.ErrConflict, leaving both untouched, when the code is already
	// used or the user is already a member.
	Redeem(ctx context.Context, code, userID string, now time.Time) (*membership.Membership, error)
	DeleteByRoom(ctx context.Context, roomID string) error
}
