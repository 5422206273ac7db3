package invitation

import (
	"time"

	"secret-room/internal/membership"
	"secret-room/internal/room"
)

// Validity is how long a one-time code can be redeemed, independent of the
// room's own expiry.
const Validity = 24 * time.Hour

// Invitation is a single-use join code. Once Used flips it never flips back.
type Invitation struct {
	InviteCode string    `json:"invite_code"`
	RoomID     string    `json:"room_id"`
	Used       bool      `json:"used"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Redemption is the result of joining a room through an invitation.
type Redemption struct {
	Room       *room.Room             `json:"room"`
	Membership *membership.Membership `json:"membership"`
	Token      string                 `json:"token"`
}
