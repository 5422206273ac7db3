package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"secret-room/internal/apperr"

	"github.com/benbjohnson/clock"
)

// Execer is satisfied by both *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Repository struct {
	db    *sql.DB
	clock clock.Clock
}

func NewRepository(db *sql.DB, clk clock.Clock) *Repository {
	return &Repository{db: db, clock: clk}
}

// InsertMembership performs the conditional insert behind AddMember. It is
// exported so other repositories can run it inside their own transaction.
// It reports false when the membership already existed.
func InsertMembership(ctx context.Context, ex Execer, m *Membership) (bool, error) {
	if _, err := ex.ExecContext(ctx,
		`INSERT INTO identities (user_id, last_seen_at, created_at) VALUES ($1, $2, $2)
		 ON CONFLICT (user_id) DO NOTHING`,
		m.UserID, m.JoinedAt); err != nil {
		return false, fmt.Errorf("membership: upsert identity: %w", err)
	}

	res, err := ex.ExecContext(ctx,
		`INSERT INTO memberships (room_id, user_id, joined_at) VALUES ($1, $2, $3)
		 ON CONFLICT (room_id, user_id) DO NOTHING`,
		m.RoomID, m.UserID, m.JoinedAt)
	if err != nil {
		return false, fmt.Errorf("membership: insert: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *Repository) AddMember(ctx context.Context, roomID, userID string) (*Membership, error) {
	m := &Membership{RoomID: roomID, UserID: userID, JoinedAt: r.clock.Now().UTC()}
	inserted, err := InsertMembership(ctx, r.db, m)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, fmt.Errorf("%w: %s is already a member of %s", apperr.ErrConflict, userID, roomID)
	}
	return m, nil
}

func (r *Repository) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM memberships WHERE room_id = $1 AND user_id = $2)`,
		roomID, userID).Scan(&exists)
	return exists, err
}

func (r *Repository) ListMembers(ctx context.Context, roomID string) ([]Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT m.user_id, m.joined_at, COALESCE(i.is_online, false), COALESCE(i.last_seen_at, m.joined_at)
		FROM memberships m
		LEFT JOIN identities i ON i.user_id = m.user_id
		WHERE m.room_id = $1
		ORDER BY m.joined_at, m.user_id`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.UserID, &m.JoinedAt, &m.IsOnline, &m.LastSeenAt); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (r *Repository) DeleteByRoom(ctx context.Context, roomID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM memberships WHERE room_id = $1`, roomID)
	return err
}

func (r *Repository) GetIdentity(ctx context.Context, userID string) (*Identity, error) {
	i := &Identity{}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, is_online, last_seen_at, current_room_id, typing, typing_target, created_at
		FROM identities WHERE user_id = $1`, userID).
		Scan(&i.UserID, &i.IsOnline, &i.LastSeenAt, &i.CurrentRoomID, &i.Typing, &i.TypingTarget, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: identity %s", apperr.ErrNotFound, userID)
		}
		return nil, err
	}
	return i, nil
}

func (r *Repository) MarkOnline(ctx context.Context, userID, roomID string) error {
	now := r.clock.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO identities (user_id, is_online, last_seen_at, current_room_id, created_at)
		VALUES ($1, true, $2, $3, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET is_online = true, last_seen_at = $2, current_room_id = $3`,
		userID, now, roomID)
	return err
}

func (r *Repository) MarkOffline(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE identities
		SET is_online = false, last_seen_at = $2, current_room_id = NULL, typing = false, typing_target = NULL
		WHERE user_id = $1`, userID, r.clock.Now().UTC())
	return err
}

func (r *Repository) SetTyping(ctx context.Context, userID string, typing bool, targetID string) error {
	var target *string
	if typing && targetID != "" {
		target = &targetID
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE identities SET typing = $2, typing_target = $3 WHERE user_id = $1`,
		userID, typing, target)
	return err
}
