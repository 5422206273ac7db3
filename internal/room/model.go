package room

import (
	"fmt"
	"time"

	"secret-room/internal/apperr"
)

type Kind string

const (
	// Ephemeral rooms are deleted once ExpiresAt passes.
	Ephemeral Kind = "ephemeral"
	// Persistent rooms are never reaped; their ExpiresAt only rolls forward.
	Persistent Kind = "persistent"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", Ephemeral:
		return Ephemeral, nil
	case Persistent:
		return Persistent, nil
	default:
		return "", fmt.Errorf("%w: unknown room kind %q", apperr.ErrValidation, s)
	}
}

type Room struct {
	ID                 string    `json:"room_id"`
	Name               string    `json:"name"`
	OwnerID            string    `json:"owner_id"`
	Secret             string    `json:"-"`
	GlobalInvitationID string    `json:"global_invitation_id"`
	Kind               Kind      `json:"kind"`
	CreatedAt          time.Time `json:"created_at"`
	ExpiresAt          time.Time `json:"expires_at"`
}

// ExpiredAt reports whether the room must be reaped at now. Persistent rooms
// never expire.
func (r *Room) ExpiredAt(now time.Time) bool {
	return r.Kind == Ephemeral && !now.Before(r.ExpiresAt)
}

// CreateParams is the input of Registry.CreateRoom.
type CreateParams struct {
	Name     string
	Secret   string
	Lifespan time.Duration
	OwnerID  string
	Kind     Kind
}
