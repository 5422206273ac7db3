package room

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"secret-room/internal/apperr"

	"github.com/jackc/pgx/v5/pgconn"
)

const roomColumns = `room_id, name, owner_id, secret, global_invitation_id, kind, created_at, expires_at`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, room *Room) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO rooms (`+roomColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		room.ID, room.Name, room.OwnerID, room.Secret, room.GlobalInvitationID,
		string(room.Kind), room.CreatedAt, room.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: room id collision", apperr.ErrConflict)
		}
		return err
	}
	return nil
}

func (r *Repository) FindByID(ctx context.Context, roomID string) (*Room, error) {
	return r.findOne(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_id = $1`, roomID)
}

func (r *Repository) FindByGlobalInvitation(ctx context.Context, globalInvitationID string) (*Room, error) {
	return r.findOne(ctx, `SELECT `+roomColumns+` FROM rooms WHERE global_invitation_id = $1`, globalInvitationID)
}

func (r *Repository) findOne(ctx context.Context, query string, arg string) (*Room, error) {
	room, err := scanRoom(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: room", apperr.ErrNotFound)
		}
		return nil, err
	}
	return room, nil
}

func (r *Repository) Delete(ctx context.Context, roomID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE room_id = $1`, roomID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]*Room, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE kind = $1 AND expires_at <= $2 ORDER BY expires_at`,
		string(Ephemeral), now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []*Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

func (r *Repository) RefreshPersistent(ctx context.Context, expiresAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE rooms SET expires_at = $2 WHERE kind = $1`, string(Persistent), expiresAt)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(s scanner) (*Room, error) {
	room := &Room{}
	var kind string
	if err := s.Scan(&room.ID, &room.Name, &room.OwnerID, &room.Secret, &room.GlobalInvitationID,
		&kind, &room.CreatedAt, &room.ExpiresAt); err != nil {
		return nil, err
	}
	room.Kind = Kind(kind)
	return room, nil
}
