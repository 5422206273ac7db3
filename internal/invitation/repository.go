package invitation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"secret-room/internal/apperr"
	"secret-room/internal/membership"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, inv *Invitation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invitations (invite_code, room_id, used, created_at, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		inv.InviteCode, inv.RoomID, inv.Used, inv.CreatedAt, inv.ExpiresAt)
	return err
}

func (r *Repository) Find(ctx context.Context, code string) (*Invitation, error) {
	inv := &Invitation{}
	err := r.db.QueryRowContext(ctx,
		`SELECT invite_code, room_id, used, created_at, expires_at FROM invitations WHERE invite_code = $1`, code).
		Scan(&inv.InviteCode, &inv.RoomID, &inv.Used, &inv.CreatedAt, &inv.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: invitation", apperr.ErrNotFound)
		}
		return nil, err
	}
	return inv, nil
}

// Redeem runs the used-flag compare-and-set and the membership insert in one
// transaction. The UPDATE's row lock serializes concurrent redemptions of the
// same code; the loser sees used = true and affects no rows.
func (r *Repository) Redeem(ctx context.Context, code, userID string, now time.Time) (*membership.Membership, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var roomID string
	err = tx.QueryRowContext(ctx,
		`UPDATE invitations SET used = true
		 WHERE invite_code = $1 AND used = false
		 RETURNING room_id`, code).Scan(&roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: invitation already used", apperr.ErrConflict)
		}
		return nil, err
	}

	m := &membership.Membership{RoomID: roomID, UserID: userID, JoinedAt: now.UTC()}
	inserted, err := membership.InsertMembership(ctx, tx, m)
	if err != nil {
		return nil, err
	}
	if !inserted {
		return nil, fmt.Errorf("%w: %s is already a member of %s", apperr.ErrConflict, userID, roomID)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Repository) DeleteByRoom(ctx context.Context, roomID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM invitations WHERE room_id = $1`, roomID)
	return err
}
