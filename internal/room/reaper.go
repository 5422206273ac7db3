package room

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Reaper periodically deletes expired ephemeral rooms and rolls persistent
// rooms' expiry forward.
type Reaper struct {
	registry *Registry
	interval time.Duration
}

func NewReaper(registry *Registry, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{registry: registry, interval: interval}
}

// Run sweeps on every tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	log := logrus.WithField("component", "reaper")
	ticker := r.registry.clock.Ticker(r.interval)
	defer ticker.Stop()

	log.WithField("interval", r.interval).Info("Reaper is running...")
	for {
		select {
		case <-ctx.Done():
			log.Info("Reaper is shutting down...")
			return
		case <-ticker.C:
			if err := r.Sweep(ctx); err != nil {
				log.WithError(err).Warn("Sweep finished with errors")
			}
		}
	}
}

// Sweep runs one pass. A failing room is logged and skipped; the combined
// error of all failures is returned.
func (r *Reaper) Sweep(ctx context.Context) error {
	now := r.registry.clock.Now()
	store := r.registry.store

	var errs error
	rooms, err := store.ListExpired(ctx, now)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	for _, room := range rooms {
		if err := r.registry.Expire(ctx, room.ID); err != nil {
			logrus.WithField("room_id", room.ID).WithError(err).Error("Failed to reap room")
			errs = multierr.Append(errs, err)
		}
	}

	if _, err := store.RefreshPersistent(ctx, now.UTC().Add(PersistentWindow)); err != nil {
		errs = multierr.Append(errs, err)
	}
	if len(rooms) > 0 {
		logrus.WithField("count", len(rooms)).Info("Reaped expired rooms")
	}
	return errs
}
