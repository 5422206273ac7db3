package room

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type retryPolicy struct {
	attempts int
	base     time.Duration
}

var defaultRetry = retryPolicy{attempts: 5, base: 50 * time.Millisecond}

// cascade clears every dependent of roomID, then the room row, then the
// dependents once more, then runs the delete hooks. Each step is retried
// until it succeeds or the attempts run out. The second pass catches rows
// written by requests that resolved the room just before its row went away.
// Re-running a cascade for a room that is already gone is harmless.
func (r *Registry) cascade(ctx context.Context, roomID string) error {
	logCtx := logrus.WithField("room_id", roomID)

	if err := r.clearDependents(ctx, roomID); err != nil {
		logCtx.WithError(err).Error("Cascade failed, room kept for retry")
		return err
	}

	var deleted bool
	err := r.retry.do(ctx, func() error {
		var err error
		deleted, err = r.store.Delete(ctx, roomID)
		return err
	})
	if err != nil {
		logCtx.WithError(err).Error("Failed to delete room row")
		return fmt.Errorf("room: delete: %w", err)
	}
	if !deleted {
		logCtx.Debug("Room already deleted by a concurrent cascade")
		return nil
	}

	// The row is gone, so lookups fail from here on and no new dependents
	// can be written.
	if err := r.clearDependents(ctx, roomID); err != nil {
		logCtx.WithError(err).Warn("Failed to clear late dependents")
	}

	logCtx.Info("Room and dependents deleted")
	r.runHooks(ctx, roomID)
	return nil
}

func (r *Registry) clearDependents(ctx context.Context, roomID string) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, step := range r.steps {
		g.Go(func() error {
			err := r.retry.do(gctx, func() error { return step.Target.DeleteByRoom(gctx, roomID) })
			if err != nil {
				return fmt.Errorf("room: cascade %s: %w", step.Name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (p retryPolicy) do(ctx context.Context, fn func() error) error {
	delay := p.base
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}
		logrus.WithError(err).WithField("attempt", attempt).Warn("Cascade step failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
