package message

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"secret-room/internal/apperr"
)

const messageColumns = `message_id, room_id, sender_id, receiver_id, ciphertext, ciphertext_attachment_url,
	encrypted, created_at, read_by_sender, read_by_receiver, delivered`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(ctx context.Context, rec *Record) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO messages (`+messageColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, rec.RoomID, rec.SenderID, rec.ReceiverID, rec.Ciphertext, rec.AttachmentCiphertext,
		rec.Encrypted, rec.CreatedAt, rec.ReadBySender, rec.ReadByReceiver, rec.Delivered)
	return err
}

func (r *Repository) Get(ctx context.Context, messageID string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE message_id = $1`, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: message %s", apperr.ErrNotFound, messageID)
		}
		return nil, err
	}
	return rec, nil
}

func (r *Repository) ListByRoom(ctx context.Context, roomID string) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE room_id = $1 ORDER BY created_at ASC, message_id ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) MarkRead(ctx context.Context, messageID string) (*Record, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx,
		`UPDATE messages SET read_by_receiver = true WHERE message_id = $1 RETURNING `+messageColumns, messageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: message %s", apperr.ErrNotFound, messageID)
		}
		return nil, err
	}
	return rec, nil
}

func (r *Repository) MarkDelivered(ctx context.Context, messageID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE messages SET delivered = true WHERE message_id = $1`, messageID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: message %s", apperr.ErrNotFound, messageID)
	}
	return nil
}

func (r *Repository) DeleteByRoom(ctx context.Context, roomID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE room_id = $1`, roomID)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	rec := &Record{}
	var attachment sql.NullString
	err := s.Scan(&rec.ID, &rec.RoomID, &rec.SenderID, &rec.ReceiverID, &rec.Ciphertext, &attachment,
		&rec.Encrypted, &rec.CreatedAt, &rec.ReadBySender, &rec.ReadByReceiver, &rec.Delivered)
	if err != nil {
		return nil, err
	}
	if attachment.Valid {
		rec.AttachmentCiphertext = &attachment.String
	}
	return rec, nil
}
