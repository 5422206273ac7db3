package invitation

import (
	"context"
	"fmt"
	"strings"

	"secret-room/internal/apperr"
	"secret-room/internal/membership"
	"secret-room/internal/room"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RoomResolver is the part of room.Registry the manager needs.
type RoomResolver interface {
	GetRoom(ctx context.Context, roomID string) (*room.Room, error)
	GetRoomByGlobalInvitation(ctx context.Context, globalInvitationID string) (*room.Room, error)
}

// TokenIssuer mints the session credential handed out on a successful join.
type TokenIssuer interface {
	Issue(userID, roomID string) (string, error)
}

// Manager issues and redeems invitations.
type Manager struct {
	store   Store
	rooms   RoomResolver
	members membership.Store
	tokens  TokenIssuer
	clock   clock.Clock
}

func NewManager(store Store, rooms RoomResolver, members membership.Store, tokens TokenIssuer, clk clock.Clock) *Manager {
	return &Manager{store: store, rooms: rooms, members: members, tokens: tokens, clock: clk}
}

// RedeemGlobal joins fingerprint to the room behind a global invitation id.
// Redeeming again as an existing member fails with ErrConflict.
func (m *Manager) RedeemGlobal(ctx context.Context, globalInvitationID, fingerprint string) (*Redemption, error) {
	if err := validateFingerprint(fingerprint); err != nil {
		return nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"global_invitation_id": globalInvitationID, "user_id": fingerprint})

	r, err := m.rooms.GetRoomByGlobalInvitation(ctx, globalInvitationID)
	if err != nil {
		logCtx.WithError(err).Warn("Global invitation lookup failed")
		return nil, err
	}

	ms, err := m.members.AddMember(ctx, r.ID, fingerprint)
	if err != nil {
		logCtx.WithError(err).Warn("Global invitation redemption rejected")
		return nil, err
	}
	return m.redeemed(r, ms, logCtx)
}

// IssueOneTime creates a single-use code for roomID.
func (m *Manager) IssueOneTime(ctx context.Context, roomID string) (*Invitation, error) {
	if _, err := m.rooms.GetRoom(ctx, roomID); err != nil {
		return nil, err
	}
	now := m.clock.Now().UTC()
	inv := &Invitation{
		InviteCode: strings.ReplaceAll(uuid.NewString(), "-", ""),
		RoomID:     roomID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(Validity),
	}
	if err := m.store.Create(ctx, inv); err != nil {
		return nil, err
	}
	logrus.WithField("room_id", roomID).Info("One-time invitation issued")
	return inv, nil
}

// RedeemOneTime joins fingerprint through a single-use code. Exactly one of
// any number of concurrent redemptions of the same code succeeds.
func (m *Manager) RedeemOneTime(ctx context.Context, code, fingerprint string) (*Redemption, error) {
	if err := validateFingerprint(fingerprint); err != nil {
		return nil, err
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": fingerprint})

	inv, err := m.store.Find(ctx, code)
	if err != nil {
		return nil, err
	}
	logCtx = logCtx.WithField("room_id", inv.RoomID)

	now := m.clock.Now()
	if !now.Before(inv.ExpiresAt) {
		return nil, fmt.Errorf("%w: invitation expired", apperr.ErrGone)
	}
	if inv.Used {
		return nil, fmt.Errorf("%w: invitation already used", apperr.ErrConflict)
	}

	r, err := m.rooms.GetRoom(ctx, inv.RoomID)
	if err != nil {
		return nil, err
	}

	ms, err := m.store.Redeem(ctx, code, fingerprint, now)
	if err != nil {
		logCtx.WithError(err).Warn("One-time invitation redemption rejected")
		return nil, err
	}
	return m.redeemed(r, ms, logCtx)
}

func (m *Manager) redeemed(r *room.Room, ms *membership.Membership, logCtx *logrus.Entry) (*Redemption, error) {
	token, err := m.tokens.Issue(ms.UserID, r.ID)
	if err != nil {
		logCtx.WithError(err).Error("Failed to issue session token")
		return nil, err
	}
	logCtx.Info("Invitation redeemed")
	return &Redemption{Room: r, Membership: ms, Token: token}, nil
}

func validateFingerprint(fingerprint string) error {
	if strings.TrimSpace(fingerprint) == "" {
		return fmt.Errorf("%w: fingerprint is required", apperr.ErrValidation)
	}
	return nil
}
