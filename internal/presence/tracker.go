// Package presence tracks which transport connections belong to which
// identity and room.
//
// State lives in process memory. Running several instances behind a load
// balancer needs session affinity per room or a shared presence store; the
// tracker assumes a single process.
package presence

import (
	"context"
	"sync"
	"time"

	"secret-room/internal/membership"
)

// MemberLister supplies the persisted membership of a room.
type MemberLister interface {
	ListMembers(ctx context.Context, roomID string) ([]membership.Member, error)
}

// MemberStatus is one entry of a room's presence snapshot.
type MemberStatus struct {
	UserID   string    `json:"userId"`
	Online   bool      `json:"online"`
	LastSeen time.Time `json:"lastSeen"`
	Typing   bool      `json:"typing"`
}

// Transition describes what a register or deregister call changed.
type Transition struct {
	UserID string
	RoomID string

	// WentOnline is set on the user's first connection, WentOffline when the
	// last one is removed.
	WentOnline  bool
	WentOffline bool

	// EnteredRoom is set when the user had no other connection in RoomID.
	EnteredRoom bool
	// LeftRoom is set when the user has no connection left in RoomID.
	LeftRoom bool

	// PreviousRoomID is the room a re-registered connection moved away from.
	PreviousRoomID   string
	LeftPreviousRoom bool

	// WasTyping reports that typing state was cleared by this call.
	WasTyping bool
}

type session struct {
	userID string
	roomID string
}

type Tracker struct {
	mu     sync.Mutex
	conns  map[string]session             // connID -> session
	users  map[string]map[string]struct{} // userID -> connIDs
	typing map[string]string              // userID -> target, "" for the whole room

	members MemberLister
}

func NewTracker(members MemberLister) *Tracker {
	return &Tracker{
		conns:   make(map[string]session),
		users:   make(map[string]map[string]struct{}),
		typing:  make(map[string]string),
		members: members,
	}
}

// RegisterConnection associates connID with userID in roomID. A connection is
// in one room at a time: registering it again moves it.
func (t *Tracker) RegisterConnection(userID, connID, roomID string) Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	tr := Transition{UserID: userID, RoomID: roomID}
	wasOnline := len(t.users[userID]) > 0

	if prev, ok := t.conns[connID]; ok {
		if prev.userID == userID && prev.roomID == roomID {
			return tr
		}
		t.removeLocked(connID, prev)
		if prev.roomID != roomID {
			tr.PreviousRoomID = prev.roomID
			tr.LeftPreviousRoom = !t.userInRoomLocked(prev.userID, prev.roomID)
			if _, typing := t.typing[prev.userID]; typing && tr.LeftPreviousRoom {
				delete(t.typing, prev.userID)
				tr.WasTyping = true
			}
		}
	}

	tr.EnteredRoom = !t.userInRoomLocked(userID, roomID)
	t.conns[connID] = session{userID: userID, roomID: roomID}
	if t.users[userID] == nil {
		t.users[userID] = make(map[string]struct{})
	}
	t.users[userID][connID] = struct{}{}
	tr.WentOnline = !wasOnline
	return tr
}

// DeregisterConnection removes connID. ok is false for unknown connections,
// which makes repeated cleanup harmless.
func (t *Tracker) DeregisterConnection(connID string) (tr Transition, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.conns[connID]
	if !ok {
		return Transition{}, false
	}
	t.removeLocked(connID, s)

	tr = Transition{UserID: s.userID, RoomID: s.roomID}
	tr.WentOffline = len(t.users[s.userID]) == 0
	tr.LeftRoom = !t.userInRoomLocked(s.userID, s.roomID)
	if _, typing := t.typing[s.userID]; typing {
		delete(t.typing, s.userID)
		tr.WasTyping = true
	}
	return tr, true
}

func (t *Tracker) removeLocked(connID string, s session) {
	delete(t.conns, connID)
	if conns, ok := t.users[s.userID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(t.users, s.userID)
		}
	}
}

func (t *Tracker) userInRoomLocked(userID, roomID string) bool {
	for connID := range t.users[userID] {
		if t.conns[connID].roomID == roomID {
			return true
		}
	}
	return false
}

func (t *Tracker) IsOnline(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users[userID]) > 0
}

func (t *Tracker) ConnectionCount(userID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.users[userID])
}

func (t *Tracker) InRoom(userID, roomID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.userInRoomLocked(userID, roomID)
}

// SetTyping marks userID as typing towards targetID and reports whether that
// changed anything.
func (t *Tracker) SetTyping(userID, targetID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if cur, ok := t.typing[userID]; ok && cur == targetID {
		return false
	}
	t.typing[userID] = targetID
	return true
}

// ClearTyping reports whether userID was typing.
func (t *Tracker) ClearTyping(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.typing[userID]; !ok {
		return false
	}
	delete(t.typing, userID)
	return true
}

// ListOnlineMembers lists every member of roomID with live status. Members
// without a connection in the room are listed offline.
func (t *Tracker) ListOnlineMembers(ctx context.Context, roomID string) ([]MemberStatus, error) {
	members, err := t.members.ListMembers(ctx, roomID)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]MemberStatus, 0, len(members))
	for _, m := range members {
		online := t.userInRoomLocked(m.UserID, roomID)
		_, typing := t.typing[m.UserID]
		out = append(out, MemberStatus{
			UserID:   m.UserID,
			Online:   online,
			LastSeen: m.LastSeenAt,
			Typing:   online && typing,
		})
	}
	return out, nil
}
