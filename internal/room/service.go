package room

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"secret-room/internal/apperr"
	"secret-room/internal/membership"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// DeleteHook runs after a room and everything referencing it has been removed.
type DeleteHook func(ctx context.Context, roomID string)

// CascadeStep names a Dependent that is cleared when a room is deleted.
type CascadeStep struct {
	Name   string
	Target Dependent
}

// Registry owns the room lifecycle: creation, lookup with lazy expiry and
// cascading deletion.
type Registry struct {
	store   Store
	members membership.Store
	clock   clock.Clock
	steps   []CascadeStep
	retry   retryPolicy

	hooksMu sync.RWMutex
	hooks   []DeleteHook
}

// NewRegistry wires the registry. Memberships are always part of the cascade;
// steps adds the other dependents (messages, invitations).
func NewRegistry(store Store, members membership.Store, clk clock.Clock, steps ...CascadeStep) *Registry {
	if store == nil || members == nil {
		panic("room: store and membership store are required")
	}
	all := append([]CascadeStep{}, steps...)
	all = append(all, CascadeStep{Name: "memberships", Target: members})
	return &Registry{
		store:   store,
		members: members,
		clock:   clk,
		steps:   all,
		retry:   defaultRetry,
	}
}

// OnDelete registers a hook run after every successful deletion.
func (r *Registry) OnDelete(hook DeleteHook) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.hooks = append(r.hooks, hook)
}

// CreateRoom validates p, stores a new room and makes its owner the first member.
func (r *Registry) CreateRoom(ctx context.Context, p CreateParams) (*Room, error) {
	if p.Kind == "" {
		p.Kind = Ephemeral
	}
	if err := validateCreate(p); err != nil {
		return nil, err
	}

	now := r.clock.Now().UTC()
	room := &Room{
		ID:                 "server-" + uuid.NewString(),
		Name:               strings.TrimSpace(p.Name),
		OwnerID:            p.OwnerID,
		Secret:             p.Secret,
		GlobalInvitationID: "global-" + uuid.NewString(),
		Kind:               p.Kind,
		CreatedAt:          now,
		ExpiresAt:          now.Add(p.Lifespan),
	}
	if p.Kind == Persistent {
		room.ExpiresAt = now.Add(PersistentWindow)
	}

	logCtx := logrus.WithFields(logrus.Fields{"room_id": room.ID, "owner_id": room.OwnerID, "kind": room.Kind})
	if err := r.store.Create(ctx, room); err != nil {
		logCtx.WithError(err).Error("Failed to store new room")
		return nil, err
	}
	if _, err := r.members.AddMember(ctx, room.ID, room.OwnerID); err != nil {
		logCtx.WithError(err).Error("Failed to add owner membership, rolling room back")
		if _, delErr := r.store.Delete(ctx, room.ID); delErr != nil {
			logCtx.WithError(delErr).Error("Rollback of room failed")
		}
		return nil, err
	}

	logCtx.WithField("expires_at", room.ExpiresAt).Info("Room created")
	return room, nil
}

// GetRoom returns the room, or ErrGone when it was found expired. Finding an
// expired ephemeral room deletes it on the spot.
func (r *Registry) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	room, err := r.store.FindByID(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return r.checkExpiry(ctx, room)
}

// GetRoomByGlobalInvitation resolves a global invitation id with the same
// expiry enforcement as GetRoom.
func (r *Registry) GetRoomByGlobalInvitation(ctx context.Context, globalInvitationID string) (*Room, error) {
	room, err := r.store.FindByGlobalInvitation(ctx, globalInvitationID)
	if err != nil {
		return nil, err
	}
	return r.checkExpiry(ctx, room)
}

func (r *Registry) checkExpiry(ctx context.Context, room *Room) (*Room, error) {
	if !room.ExpiredAt(r.clock.Now()) {
		return room, nil
	}
	if err := r.cascade(ctx, room.ID); err != nil {
		// The reaper picks the room up again on its next sweep.
		logrus.WithField("room_id", room.ID).WithError(err).Error("Lookup-triggered expiry failed")
	}
	return nil, fmt.Errorf("%w: room %s has expired and been deleted", apperr.ErrGone, room.ID)
}

// DeleteRoom removes a room on behalf of its owner.
func (r *Registry) DeleteRoom(ctx context.Context, roomID, requestedBy string) error {
	room, err := r.store.FindByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.OwnerID != requestedBy {
		return fmt.Errorf("%w: only the owner can delete room %s", apperr.ErrForbidden, roomID)
	}
	if err := r.cascade(ctx, roomID); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"room_id": roomID, "user_id": requestedBy}).Info("Room deleted by owner")
	return nil
}

// Expire deletes roomID if it is an expired ephemeral room. A room that is
// already gone, or not expired, is a silent no-op.
func (r *Registry) Expire(ctx context.Context, roomID string) error {
	room, err := r.store.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil
		}
		return err
	}
	if !room.ExpiredAt(r.clock.Now()) {
		return nil
	}
	return r.cascade(ctx, roomID)
}

func (r *Registry) runHooks(ctx context.Context, roomID string) {
	r.hooksMu.RLock()
	hooks := append([]DeleteHook(nil), r.hooks...)
	r.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, roomID)
	}
}
