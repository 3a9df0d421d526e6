// Package quota resets monthly usage counters for profiles whose billing
// window has rolled over.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/podbrief/podbrief/internal/notify"
	"github.com/podbrief/podbrief/pkg/models"
)

// Store is the repository surface the resetter needs.
type Store interface {
	ProfilesDueForReset(ctx context.Context, now time.Time, limit int) ([]*models.Profile, error)
	ResetUsage(ctx context.Context, userID string, nextReset time.Time) error
}

const batchSize = 100

// Resetter periodically scans for profiles past their reset date and zeroes
// their usage, advancing the reset date by one month.
type Resetter struct {
	store    Store
	events   notify.Publisher
	interval time.Duration
	now      func() time.Time
}

func New(store Store, events notify.Publisher, interval time.Duration) *Resetter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Resetter{
		store:    store,
		events:   events,
		interval: interval,
		now:      time.Now,
	}
}

// Run loops until the context is cancelled.
func (r *Resetter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if n, err := r.RunOnce(ctx); err != nil {
			log.Error().Err(err).Msg("Quota reset pass failed")
		} else if n > 0 {
			log.Info().Int("profiles", n).Msg("Reset usage quotas")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce drains everything currently due and returns how many profiles were
// reset. A failure on one profile does not stop the rest of the batch, but a
// pass that resets nothing ends the drain: failed profiles stay due, and
// re-listing them in the same call would loop forever.
func (r *Resetter) RunOnce(ctx context.Context) (int, error) {
	total := 0
	for {
		now := r.now()
		profiles, err := r.store.ProfilesDueForReset(ctx, now, batchSize)
		if err != nil {
			return total, fmt.Errorf("listing profiles due for reset: %w", err)
		}
		if len(profiles) == 0 {
			return total, nil
		}

		succeeded := 0
		for _, profile := range profiles {
			nextReset := nextResetDate(profile.QuotaResetDate, now)
			if err := r.store.ResetUsage(ctx, profile.UserID, nextReset); err != nil {
				log.Error().Err(err).Str("user_id", profile.UserID).Msg("Failed to reset usage")
				continue
			}
			total++
			succeeded++

			if r.events != nil {
				if err := r.events.Publish(ctx, notify.Event{
					Table:  notify.TableProfiles,
					UserID: profile.UserID,
					Action: "update",
					At:     now,
				}); err != nil {
					log.Warn().Err(err).Str("user_id", profile.UserID).Msg("Failed to publish reset event")
				}
			}
		}

		if succeeded == 0 || len(profiles) < batchSize {
			return total, nil
		}
	}
}

// nextResetDate advances the stored reset date month by month until it lands
// in the future, so a profile that sat due for several cycles does not get a
// reset date still in the past.
func nextResetDate(current time.Time, now time.Time) time.Time {
	next := current
	if next.IsZero() {
		next = now
	}
	for !next.After(now) {
		next = next.AddDate(0, 1, 0)
	}
	return next
}
