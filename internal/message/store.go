package message

import "context"

// Store persists message records. Metadata updates never rewrite the
// ciphertext columns.
type Store interface {
	Insert(ctx context.Context, rec *Record) error
	Get(ctx context.Context, messageID string) (*Record, error)
	ListByRoom(ctx context.Context, roomID string) ([]*Record, error)
	MarkRead(ctx context.Context, messageID string) (*Record, error)
	MarkDelivered(ctx context.Context, messageID string) error
	DeleteByRoom(ctx context.Context, roomID string) error
}
