package weather

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Poller refreshes the rainy-date outlook on an interval and serves the
// last good result. A failed refresh keeps the previous outlook; stale
// answers beat no answers for a forecast that changes a few times a day.
type Poller struct {
	client   *Client
	interval time.Duration

	mu        sync.RWMutex
	dates     []string
	fetchedAt time.Time
}

// NewPoller creates a poller. Intervals under a minute are raised to an
// hour, matching the upstream forecast cadence.
func NewPoller(client *Client, interval time.Duration) *Poller {
	if interval < time.Minute {
		interval = time.Hour
	}
	return &Poller{client: client, interval: interval}
}

// Start runs the poller until ctx is canceled. It blocks; callers run it in
// a goroutine. The first refresh happens immediately.
func (p *Poller) Start(ctx context.Context) {
	log.Info().Dur("interval", p.interval).Msg("🌧️ Weather poller started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Weather poller stopped")
			return
		case <-ticker.C:
			p.refresh(ctx)
		}
	}
}

func (p *Poller) refresh(ctx context.Context) {
	report, err := p.client.Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Weather refresh failed, keeping previous outlook")
		return
	}
	dates := RainyDates(report.Summary)

	p.mu.Lock()
	p.dates = dates
	p.fetchedAt = time.Now()
	p.mu.Unlock()

	log.Info().
		Strs("rainy_dates", dates).
		Int("nx", report.NX).
		Int("ny", report.NY).
		Msg("☔ Weather outlook refreshed")
}

// Latest returns the cached rainy dates and when they were fetched. A zero
// time means no successful fetch yet.
func (p *Poller) Latest() ([]string, time.Time) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]string(nil), p.dates...), p.fetchedAt
}
