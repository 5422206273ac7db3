package message

import "time"

// Record is a message as stored: content and attachment are ciphertext.
type Record struct {
	ID                   string
	RoomID               string
	SenderID             string
	ReceiverID           string
	Ciphertext           string
	AttachmentCiphertext *string
	Encrypted            bool
	CreatedAt            time.Time
	ReadBySender         bool
	ReadByReceiver       bool
	Delivered            bool
}

// Message is the plaintext view handed to members.
type Message struct {
	ID             string    `json:"messageId"`
	RoomID         string    `json:"roomId"`
	SenderID       string    `json:"senderId"`
	ReceiverID     string    `json:"receiverId"`
	Content        string    `json:"content"`
	AttachmentURL  *string   `json:"attachmentUrl,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ReadBySender   bool      `json:"readBySender"`
	ReadByReceiver bool      `json:"readByReceiver"`
	Delivered      bool      `json:"delivered"`
}

type CreateParams struct {
	RoomID        string
	SenderID      string
	ReceiverID    string
	Content       string
	AttachmentURL string
}
