package oracle

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Poker periodically pokes every configured feed so settlement prices keep
// flowing without relying on external callers. Staleness invalidation is the
// only other refresh mechanism in the system.
type Poker struct {
	service  *Service
	interval time.Duration
}

// NewPoker creates a background poker running at the given interval
func NewPoker(service *Service, interval time.Duration) *Poker {
	return &Poker{
		service:  service,
		interval: interval,
	}
}

// Start begins the poke loop and blocks until the context is cancelled
func (p *Poker) Start(ctx context.Context) {
	logger := log.With().Str("component", "osm_poker").Logger()
	logger.Info().Dur("interval", p.interval).Msg("starting OSM poker")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down OSM poker")
			return
		case <-ticker.C:
			keys, err := p.service.FeedKeys()
			if err != nil {
				logger.Error().Err(err).Msg("failed to list feeds for poke round")
				continue
			}

			logger.Debug().Int("feeds", len(keys)).Msg("poking configured feeds")
			p.service.PokeMany(keys)
		}
	}
}
