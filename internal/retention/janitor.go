// Package retention prunes stale replanning sessions from durable store
// backends. Sessions are trip-scoped scratch state, but sqlite and
// postgres rows outlive the trip unless something deletes them. The
// janitor sweeps on an interval and removes sessions idle longer than
// the configured TTL.
//
// The memory backend evicts idle sessions itself (store.MemoryStore), so
// the janitor is wired only for the SQL backends.
package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/raincheck/raincheck/internal/store"
)

// DefaultSweepLimit caps how many sessions one sweep examines.
const DefaultSweepLimit = 10000

// Janitor deletes sessions whose updated_at is older than maxAge.
type Janitor struct {
	store    store.Store
	maxAge   time.Duration
	interval time.Duration
}

// NewJanitor creates a janitor sweeping on the given interval. Intervals
// under a minute are clamped to an hour.
func NewJanitor(s store.Store, maxAge, interval time.Duration) *Janitor {
	if interval < time.Minute {
		interval = time.Hour
	}
	return &Janitor{store: s, maxAge: maxAge, interval: interval}
}

// Start runs the janitor until ctx is canceled. One sweep runs
// immediately so a restart does not postpone overdue cleanup.
func (j *Janitor) Start(ctx context.Context) {
	log.Info().
		Dur("interval", j.interval).
		Dur("max_age", j.maxAge).
		Msg("Session janitor started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Session janitor stopped")
			return
		case <-ticker.C:
			j.Sweep(ctx)
		}
	}
}

// Sweep performs one retention pass and returns how many sessions it
// purged. Delete failures are logged and skipped; the next sweep retries.
func (j *Janitor) Sweep(ctx context.Context) int {
	start := time.Now()
	sessions, err := j.store.ListSessions(ctx, DefaultSweepLimit)
	if err != nil {
		log.Warn().Err(err).Msg("Session janitor: list failed")
		return 0
	}

	cutoff := start.Add(-j.maxAge)
	purged := 0
	for _, s := range sessions {
		if !s.UpdatedAt.Before(cutoff) {
			continue
		}
		if err := j.store.DeleteSession(ctx, s.ID); err != nil {
			log.Warn().Err(err).Str("session", s.ID).Msg("Failed to delete expired session")
			continue
		}
		purged++
	}

	if purged > 0 {
		log.Info().
			Int("purged", purged).
			Dur("elapsed", time.Since(start)).
			Msg("Retention sweep complete")
	}
	return purged
}
