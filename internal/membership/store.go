package membership

import "context"

// Store persists memberships and identities.
//
// AddMember is a conditional insert: when the membership already exists it
// fails with apperr.ErrConflict instead of overwriting, so two concurrent
// joins of the same fingerprint cannot both succeed.
type Store interface {
	AddMember(ctx context.Context, roomID, userID string) (*Membership, error)
	IsMember(ctx context.Context, roomID, userID string) (bool, error)
	ListMembers(ctx context.Context, roomID string) ([]Member, error)
	DeleteByRoom(ctx context.Context, roomID string) error

	GetIdentity(ctx context.Context, userID string) (*Identity, error)
	MarkOnline(ctx context.Context, userID, roomID string) error
	MarkOffline(ctx context.Context, userID string) error
	// SetTyping records typing towards targetID; an empty targetID with
	// typing=true means typing to the whole room.
	SetTyping(ctx context.Context, userID string, typing bool, targetID string) error
}
