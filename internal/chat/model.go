package chat

import (
	"encoding/json"
	"time"

	"secret-room/internal/presence"
)

// Inbound events.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventMarkRead    = "mark_read"
	EventTyping      = "typing"
	EventNotTyping   = "not_typing"
)

// Outbound events.
const (
	EventRoomJoined       = "room_joined"
	EventAccessDenied     = "access_denied"
	EventPresenceSnapshot = "presence_snapshot"
	EventNewMessage       = "new_message"
	EventMessageRead      = "message_read"
	EventUserTyping       = "user_typing"
	EventRoomDeleted      = "room_deleted"
	EventRoomLeft         = "room_left"
	EventError            = "error"
)

// Envelope is the frame exchanged over the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outEnvelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type JoinRoomRequest struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

type LeaveRoomRequest struct {
	RoomID string `json:"roomId"`
}

type SendMessageRequest struct {
	RoomID        string `json:"roomId"`
	SenderID      string `json:"senderId"`
	ReceiverID    string `json:"receiverId"`
	Content       string `json:"content"`
	AttachmentURL string `json:"attachmentUrl,omitempty"`
}

type MarkReadRequest struct {
	MessageID string `json:"messageId"`
}

type TypingRequest struct {
	RoomID   string `json:"roomId"`
	UserID   string `json:"userId"`
	TargetID string `json:"targetId,omitempty"`
}

type statusEvent struct {
	Status string `json:"status"`
	RoomID string `json:"roomId,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type snapshotEvent struct {
	RoomID  string                  `json:"roomId"`
	Members []presence.MemberStatus `json:"members"`
}

type newMessageEvent struct {
	MessageID     string    `json:"messageId"`
	RoomID        string    `json:"roomId"`
	SenderID      string    `json:"senderId"`
	ReceiverID    string    `json:"receiverId"`
	Content       string    `json:"content"`
	AttachmentURL *string   `json:"attachmentUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type messageReadEvent struct {
	MessageID string `json:"messageId"`
}

type typingEvent struct {
	UserID   string `json:"userId"`
	Typing   bool   `json:"typing"`
	TargetID string `json:"targetId"`
}

type roomEvent struct {
	RoomID string `json:"roomId"`
}

type errorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encode(event string, data any) []byte {
	b, err := json.Marshal(outEnvelope{Event: event, Data: data})
	if err != nil {
		// Every payload above is a plain struct; this is unreachable.
		panic(err)
	}
	return b
}
