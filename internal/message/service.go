package message

import (
	"context"
	"fmt"
	"strings"

	"secret-room/internal/apperr"
	"secret-room/internal/cipher"
	"secret-room/internal/room"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxContentLength = 4096

// RoomLookup resolves live rooms; expired rooms come back as ErrGone.
type RoomLookup interface {
	GetRoom(ctx context.Context, roomID string) (*room.Room, error)
}

// Service stores messages encrypted under their room's key and hands out
// plaintext views to callers that may see them.
type Service struct {
	store Store
	rooms RoomLookup
	keys  *cipher.KeyCache
	clock clock.Clock
}

func NewService(store Store, rooms RoomLookup, keys *cipher.KeyCache, clk clock.Clock) *Service {
	return &Service{store: store, rooms: rooms, keys: keys, clock: clk}
}

// Create encrypts the content (and attachment, when present) exactly once
// and stores the record.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Message, error) {
	if strings.TrimSpace(p.Content) == "" {
		return nil, fmt.Errorf("%w: message content is required", apperr.ErrValidation)
	}
	if len(p.Content) > maxContentLength {
		return nil, fmt.Errorf("%w: message content exceeds %d bytes", apperr.ErrValidation, maxContentLength)
	}
	if p.SenderID == "" || p.ReceiverID == "" {
		return nil, fmt.Errorf("%w: sender and receiver are required", apperr.ErrValidation)
	}

	r, err := s.rooms.GetRoom(ctx, p.RoomID)
	if err != nil {
		return nil, err
	}
	key := s.keys.Key(r.ID, r.Secret)

	ciphertext, err := cipher.Encrypt(p.Content, key)
	if err != nil {
		return nil, err
	}
	rec := &Record{
		ID:           "txt-" + uuid.NewString(),
		RoomID:       r.ID,
		SenderID:     p.SenderID,
		ReceiverID:   p.ReceiverID,
		Ciphertext:   ciphertext,
		Encrypted:    true,
		CreatedAt:    s.clock.Now().UTC(),
		ReadBySender: true,
	}
	if p.AttachmentURL != "" {
		enc, err := cipher.Encrypt(p.AttachmentURL, key)
		if err != nil {
			return nil, err
		}
		rec.AttachmentCiphertext = &enc
	}

	if err := s.store.Insert(ctx, rec); err != nil {
		logrus.WithFields(logrus.Fields{"room_id": r.ID, "user_id": p.SenderID}).
			WithError(err).Error("Failed to store message")
		return nil, err
	}

	msg := view(rec, p.Content)
	if p.AttachmentURL != "" {
		url := p.AttachmentURL
		msg.AttachmentURL = &url
	}
	return msg, nil
}

// List returns the room's history in creation order, decrypted.
func (s *Service) List(ctx context.Context, roomID string) ([]*Message, error) {
	r, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListByRoom(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	key := s.keys.Key(r.ID, r.Secret)
	out := make([]*Message, 0, len(records))
	for _, rec := range records {
		msg, err := decrypt(rec, key)
		if err != nil {
			logrus.WithFields(logrus.Fields{"room_id": r.ID, "message_id": rec.ID}).
				WithError(err).Error("Failed to decrypt stored message")
			return nil, err
		}
		out = append(out, msg)
	}
	return out, nil
}

// MarkRead flags a message as read by its receiver. Only read flags change;
// the stored ciphertext is left as is.
func (s *Service) MarkRead(ctx context.Context, messageID, readerID string) (*Message, error) {
	rec, err := s.store.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if rec.ReceiverID != readerID {
		return nil, fmt.Errorf("%w: only the receiver can mark %s read", apperr.ErrForbidden, messageID)
	}
	r, err := s.rooms.GetRoom(ctx, rec.RoomID)
	if err != nil {
		return nil, err
	}
	if !rec.ReadByReceiver {
		if rec, err = s.store.MarkRead(ctx, messageID); err != nil {
			return nil, err
		}
	}
	return decrypt(rec, s.keys.Key(r.ID, r.Secret))
}

func (s *Service) MarkDelivered(ctx context.Context, messageID string) error {
	return s.store.MarkDelivered(ctx, messageID)
}

// DeleteByRoom lets the service take part in a room's cascade.
func (s *Service) DeleteByRoom(ctx context.Context, roomID string) error {
	return s.store.DeleteByRoom(ctx, roomID)
}

func decrypt(rec *Record, key cipher.Key) (*Message, error) {
	if !rec.Encrypted {
		return view(rec, rec.Ciphertext), nil
	}
	content, err := cipher.Decrypt(rec.Ciphertext, key)
	if err != nil {
		return nil, err
	}
	msg := view(rec, content)
	if rec.AttachmentCiphertext != nil {
		url, err := cipher.Decrypt(*rec.AttachmentCiphertext, key)
		if err != nil {
			return nil, err
		}
		msg.AttachmentURL = &url
	}
	return msg, nil
}

func view(rec *Record, content string) *Message {
	return &Message{
		ID:             rec.ID,
		RoomID:         rec.RoomID,
		SenderID:       rec.SenderID,
		ReceiverID:     rec.ReceiverID,
		Content:        content,
		AttachmentURL:  rec.AttachmentCiphertext,
		CreatedAt:      rec.CreatedAt,
		ReadBySender:   rec.ReadBySender,
		ReadByReceiver: rec.ReadByReceiver,
		Delivered:      rec.Delivered,
	}
}
