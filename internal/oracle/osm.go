package oracle

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mintforge/synth-api/internal/events"
)

// InitializeSettlementPrice sets an asset's ruling settlement price directly,
// bypassing the delay, and clears any staged price. Intended as the one-time
// bootstrap for a fresh asset; repeated calls are an admin override.
func (s *Service) InitializeSettlementPrice(assetKey string, price decimal.Decimal) error {
	if price.Sign() <= 0 {
		return ErrInvalidPrice
	}

	state, err := s.db.GetSettlement(assetKey)
	if err != nil {
		return fmt.Errorf("failed to fetch settlement state: %w", err)
	}
	if state == nil {
		state = &SettlementPrice{AssetKey: assetKey, CreatedAt: time.Now()}
	}

	state.CurrentPrice = price
	state.CurrentTime = s.now()
	state.NextPrice = decimal.Zero
	state.NextTime = time.Time{}
	state.HasNext = false
	state.UpdatedAt = time.Now()
	if err := s.db.SaveSettlement(state); err != nil {
		return err
	}

	log.Info().
		Str("service", "oracle").
		Str("asset_key", assetKey).
		Str("price", price.String()).
		Msg("settlement price initialized")
	return s.events.Record(events.TypeOSMInitialized, assetKey, "", map[string]interface{}{
		"price": price.String(),
	})
}

// Poke advances an asset's settlement state from the live spot price. If a
// staged price has passed its due time it activates first; afterwards, when
// no stage remains, the just-read spot price is staged with a fresh delay.
// Poking again before the delay elapses is a no-op; poking after it both
// activates the old stage and opens a new one in the same call.
func (s *Service) Poke(assetKey string) error {
	logger := log.With().
		Str("service", "oracle").
		Str("asset_key", assetKey).
		Logger()

	spot, err := s.GetPrice(assetKey)
	if err != nil {
		return err
	}
	if !spot.Valid {
		return fmt.Errorf("%w: %s", ErrInvalidSpotPrice, assetKey)
	}

	now := s.now()

	state, err := s.db.GetSettlement(assetKey)
	if err != nil {
		return fmt.Errorf("failed to fetch settlement state: %w", err)
	}
	if state == nil {
		state = &SettlementPrice{AssetKey: assetKey, CreatedAt: time.Now()}
	}

	if state.HasNext && !now.Before(state.NextTime) {
		s.activate(state)
		logger.Info().
			Str("price", state.CurrentPrice.String()).
			Msg("pending settlement price activated")
		if err := s.events.Record(events.TypeOSMPriceActivated, assetKey, "", map[string]interface{}{
			"price": state.CurrentPrice.String(),
		}); err != nil {
			logger.Error().Err(err).Msg("failed to record activation event")
		}
	}

	if !state.HasNext {
		state.NextPrice = spot.Price
		state.NextTime = now.Add(OSMDelay)
		state.HasNext = true
		logger.Info().
			Str("price", spot.Price.String()).
			Time("due", state.NextTime).
			Msg("settlement price staged")
		if err := s.events.Record(events.TypeOSMPriceQueued, assetKey, "", map[string]interface{}{
			"price": spot.Price.String(),
			"due":   state.NextTime,
		}); err != nil {
			logger.Error().Err(err).Msg("failed to record staging event")
		}
	}

	state.UpdatedAt = time.Now()
	return s.db.SaveSettlement(state)
}

// PokeMany pokes each key on a best-effort basis, silently skipping keys
// whose spot price is invalid
func (s *Service) PokeMany(assetKeys []string) {
	for _, key := range assetKeys {
		if err := s.Poke(key); err != nil {
			log.Debug().
				Err(err).
				Str("service", "oracle").
				Str("asset_key", key).
				Msg("poke skipped")
		}
	}
}

// Activate forces a due pending price to become current. Unlike the lazy
// path inside Poke it is strict: no stage or a stage still inside its delay
// is an error.
func (s *Service) Activate(assetKey string) error {
	state, err := s.db.GetSettlement(assetKey)
	if err != nil {
		return fmt.Errorf("failed to fetch settlement state: %w", err)
	}
	if state == nil || !state.HasNext {
		return fmt.Errorf("%w: %s", ErrNoPendingPrice, assetKey)
	}
	if s.now().Before(state.NextTime) {
		return fmt.Errorf("%w: %s due at %s", ErrActivationNotDue, assetKey, state.NextTime.Format(time.RFC3339))
	}

	s.activate(state)
	state.UpdatedAt = time.Now()
	if err := s.db.SaveSettlement(state); err != nil {
		return err
	}

	return s.events.Record(events.TypeOSMPriceActivated, assetKey, "", map[string]interface{}{
		"price": state.CurrentPrice.String(),
	})
}

// activate promotes the staged slot into the ruling slot. The ruling
// timestamp becomes the stage's due time, not the promotion time, so
// staleness is measured from when the price became eligible.
func (s *Service) activate(state *SettlementPrice) {
	state.CurrentPrice = state.NextPrice
	state.CurrentTime = state.NextTime
	state.NextPrice = decimal.Zero
	state.NextTime = time.Time{}
	state.HasNext = false
}

// GetSettlementPrice returns the ruling settlement price for an asset. Pure
// view: a due pending price is reported as if activated without mutating
// state. The native unit short-circuits to parity; with the OSM disabled the
// read delegates to spot, as it does when an asset was never bootstrapped.
func (s *Service) GetSettlementPrice(assetKey string) (PriceResult, error) {
	if assetKey == NativeAssetKey {
		return PriceResult{AssetKey: assetKey, Price: one, Valid: true}, nil
	}

	cfg, err := s.db.GetOSMConfig()
	if err != nil {
		return PriceResult{}, err
	}
	if !cfg.Enabled {
		return s.GetPrice(assetKey)
	}

	state, err := s.db.GetSettlement(assetKey)
	if err != nil {
		return PriceResult{}, fmt.Errorf("failed to fetch settlement state: %w", err)
	}

	now := s.now()

	if state != nil && state.HasNext && !now.Before(state.NextTime) {
		valid := now.Sub(state.NextTime) <= StalePeriod
		return PriceResult{AssetKey: assetKey, Price: state.NextPrice, Valid: valid}, nil
	}

	if state != nil && state.CurrentPrice.Sign() > 0 {
		valid := now.Sub(state.CurrentTime) <= StalePeriod
		return PriceResult{AssetKey: assetKey, Price: state.CurrentPrice, Valid: valid}, nil
	}

	// Never bootstrapped: fall back to the live feed
	return s.GetPrice(assetKey)
}

// GetOSMStatus returns the diagnostic view of one asset's settlement state
func (s *Service) GetOSMStatus(assetKey string) (*OSMStatus, error) {
	cfg, err := s.db.GetOSMConfig()
	if err != nil {
		return nil, err
	}

	spot, err := s.GetPrice(assetKey)
	if err != nil {
		return nil, err
	}

	status := &OSMStatus{
		AssetKey:   assetKey,
		SpotPrice:  spot.Price,
		SpotValid:  spot.Valid,
		OSMEnabled: cfg.Enabled,
	}

	state, err := s.db.GetSettlement(assetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch settlement state: %w", err)
	}
	if state == nil {
		return status, nil
	}

	status.CurrentPrice = state.CurrentPrice
	status.CurrentTime = state.CurrentTime
	if state.HasNext && s.now().Before(state.NextTime) {
		status.NextPrice = state.NextPrice
		status.NextTime = state.NextTime
	}
	return status, nil
}

// CheckPendingActivation reports whether an asset's staged price becomes due
// within the given window, its value, and the time remaining (zero when
// already due)
func (s *Service) CheckPendingActivation(assetKey string, window time.Duration) (*PendingActivation, error) {
	result := &PendingActivation{AssetKey: assetKey}

	state, err := s.db.GetSettlement(assetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch settlement state: %w", err)
	}
	if state == nil || !state.HasNext {
		return result, nil
	}

	now := s.now()
	result.PendingPrice = state.NextPrice
	result.WillActivate = !state.NextTime.After(now.Add(window))
	if state.NextTime.After(now) {
		result.TimeRemaining = state.NextTime.Sub(now)
	}
	return result, nil
}

// SetOSMEnabled toggles the global delayed-settlement mechanism
func (s *Service) SetOSMEnabled(enabled bool) error {
	cfg, err := s.db.GetOSMConfig()
	if err != nil {
		return err
	}

	cfg.Enabled = enabled
	if err := s.db.SaveOSMConfig(cfg); err != nil {
		return err
	}

	log.Info().
		Str("service", "oracle").
		Bool("enabled", enabled).
		Msg("OSM toggled")
	return s.events.Record(events.TypeOSMToggled, "", "", map[string]interface{}{
		"enabled": enabled,
	})
}
