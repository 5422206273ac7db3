package membership

import "time"

// Membership records that an identity may access a room. It outlives the
// identity's connections: going offline never removes it.
type Membership struct {
	RoomID   string    `json:"room_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Identity is the persisted mirror of a fingerprint's presence.
type Identity struct {
	UserID        string    `json:"user_id"`
	IsOnline      bool      `json:"is_online"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	CurrentRoomID *string   `json:"current_room_id"`
	Typing        bool      `json:"typing"`
	TypingTarget  *string   `json:"typing_target"`
	CreatedAt     time.Time `json:"created_at"`
}

// Member is a membership row joined with its identity.
type Member struct {
	UserID     string    `json:"user_id"`
	JoinedAt   time.Time `json:"joined_at"`
	IsOnline   bool      `json:"is_online"`
	LastSeenAt time.Time `json:"last_seen_at"`
}
