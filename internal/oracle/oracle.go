package oracle

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mintforge/synth-api/internal/events"
	"github.com/mintforge/synth-api/pkg/response"
)

var (
	ErrNativeAssetImmutable = response.Kind(response.ErrForbidden, "oracle: native unit price configuration cannot be changed")
	ErrUnknownAggregator    = response.Kind(response.ErrValidation, "oracle: aggregator not registered")
	ErrFeedNotFound         = response.Kind(response.ErrNotFound, "oracle: no price feed configured for asset")
	ErrInvalidPrice         = response.Kind(response.ErrValidation, "oracle: price must be positive")
	ErrInvalidSpotPrice     = response.Kind(response.ErrGuard, "oracle: spot price invalid")
	ErrNoPendingPrice       = response.Kind(response.ErrGuard, "oracle: no pending settlement price staged")
	ErrActivationNotDue     = response.Kind(response.ErrGuard, "oracle: pending settlement price not yet due")
)

var one = decimal.NewFromInt(1)

// Service maintains per-asset spot feeds and the delayed settlement price
// state machine layered on top of them
type Service struct {
	db     *Database
	events *events.Recorder

	aggMu       sync.RWMutex
	aggregators map[string]Aggregator

	// now is injectable for tests; defaults to time.Now
	now func() time.Time
}

// NewService creates a new oracle service with the given database connection
func NewService(gormDB *gorm.DB, recorder *events.Recorder) *Service {
	return &Service{
		db:          NewDatabase(gormDB),
		events:      recorder,
		aggregators: make(map[string]Aggregator),
		now:         time.Now,
	}
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// RegisterAggregator makes an external price reference available under an ID
// so feeds can be pointed at it
func (s *Service) RegisterAggregator(id string, agg Aggregator) {
	s.aggMu.Lock()
	defer s.aggMu.Unlock()
	s.aggregators[id] = agg
}

func (s *Service) aggregator(id string) (Aggregator, bool) {
	s.aggMu.RLock()
	defer s.aggMu.RUnlock()
	agg, ok := s.aggregators[id]
	return agg, ok
}

// GetPrice returns the live spot price for an asset key together with its
// validity. The native unit always reports parity. External reference
// failures degrade to an invalid price, never an error.
func (s *Service) GetPrice(assetKey string) (PriceResult, error) {
	if assetKey == NativeAssetKey {
		return PriceResult{AssetKey: assetKey, Price: one, Valid: true}, nil
	}

	feed, err := s.db.GetFeed(assetKey)
	if err != nil {
		return PriceResult{}, fmt.Errorf("failed to fetch price feed: %w", err)
	}
	if feed == nil {
		return PriceResult{AssetKey: assetKey, Price: decimal.Zero, Valid: false}, nil
	}

	if feed.UseManual || feed.AggregatorID == "" {
		valid := feed.ManualPrice.Sign() > 0 &&
			s.now().Sub(feed.LastUpdate) <= StalePeriod
		return PriceResult{AssetKey: assetKey, Price: feed.ManualPrice, Valid: valid}, nil
	}

	agg, ok := s.aggregator(feed.AggregatorID)
	if !ok {
		log.Warn().
			Str("service", "oracle").
			Str("asset_key", assetKey).
			Str("aggregator_id", feed.AggregatorID).
			Msg("feed references unregistered aggregator")
		return PriceResult{AssetKey: assetKey, Price: decimal.Zero, Valid: false}, nil
	}

	round, err := agg.LatestRoundData()
	if err != nil {
		log.Warn().
			Err(err).
			Str("service", "oracle").
			Str("asset_key", assetKey).
			Msg("aggregator call failed, treating price as invalid")
		return PriceResult{AssetKey: assetKey, Price: decimal.Zero, Valid: false}, nil
	}
	if round.Answer.Sign() <= 0 {
		return PriceResult{AssetKey: assetKey, Price: decimal.Zero, Valid: false}, nil
	}

	// Rescale from the reference's native precision to whole-unit price
	price := round.Answer.Shift(-int32(feed.Decimals))

	if s.now().Sub(round.UpdatedAt) > StalePeriod {
		// Stale observations surface their raw value flagged invalid
		return PriceResult{AssetKey: assetKey, Price: price, Valid: false}, nil
	}

	return PriceResult{AssetKey: assetKey, Price: price, Valid: true}, nil
}

// AddAggregator points an asset's feed at a registered external reference.
// The reference's decimals are queried at call time; a failing reference
// leaves the feed unregistered.
func (s *Service) AddAggregator(assetKey, aggregatorID string) error {
	if assetKey == NativeAssetKey {
		return ErrNativeAssetImmutable
	}

	agg, ok := s.aggregator(aggregatorID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAggregator, aggregatorID)
	}

	decimals, err := agg.Decimals()
	if err != nil {
		return fmt.Errorf("aggregator decimals query failed: %w", err)
	}

	feed, err := s.db.GetFeed(assetKey)
	if err != nil {
		return fmt.Errorf("failed to fetch price feed: %w", err)
	}
	if feed == nil {
		feed = &PriceFeed{AssetKey: assetKey, CreatedAt: time.Now()}
	}

	feed.AggregatorID = aggregatorID
	feed.Decimals = decimals
	feed.UseManual = false
	feed.UpdatedAt = time.Now()
	if err := s.db.SaveFeed(feed); err != nil {
		return err
	}

	log.Info().
		Str("service", "oracle").
		Str("asset_key", assetKey).
		Str("aggregator_id", aggregatorID).
		Uint8("decimals", decimals).
		Msg("aggregator assigned to feed")
	return nil
}

// RemoveAggregator detaches the external reference from an asset's feed
func (s *Service) RemoveAggregator(assetKey string) error {
	if assetKey == NativeAssetKey {
		return ErrNativeAssetImmutable
	}

	feed, err := s.db.GetFeed(assetKey)
	if err != nil {
		return fmt.Errorf("failed to fetch price feed: %w", err)
	}
	if feed == nil || feed.AggregatorID == "" {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, assetKey)
	}

	feed.AggregatorID = ""
	feed.Decimals = 0
	feed.UpdatedAt = time.Now()
	return s.db.SaveFeed(feed)
}

// SetManualPrice records an admin override price for an asset, creating the
// feed on first use
func (s *Service) SetManualPrice(assetKey string, price decimal.Decimal) error {
	if assetKey == NativeAssetKey {
		return ErrNativeAssetImmutable
	}
	if price.Sign() <= 0 {
		return ErrInvalidPrice
	}

	feed, err := s.db.GetFeed(assetKey)
	if err != nil {
		return fmt.Errorf("failed to fetch price feed: %w", err)
	}
	if feed == nil {
		feed = &PriceFeed{AssetKey: assetKey, UseManual: true, CreatedAt: time.Now()}
	}

	feed.ManualPrice = price
	feed.LastUpdate = s.now()
	feed.UpdatedAt = time.Now()
	return s.db.SaveFeed(feed)
}

// SetUseManual toggles the manual override mode for an asset's feed
func (s *Service) SetUseManual(assetKey string, useManual bool) error {
	if assetKey == NativeAssetKey {
		return ErrNativeAssetImmutable
	}

	feed, err := s.db.GetFeed(assetKey)
	if err != nil {
		return fmt.Errorf("failed to fetch price feed: %w", err)
	}
	if feed == nil {
		return fmt.Errorf("%w: %s", ErrFeedNotFound, assetKey)
	}

	feed.UseManual = useManual
	feed.UpdatedAt = time.Now()
	return s.db.SaveFeed(feed)
}

// FeedKeys returns every asset key with a configured spot feed
func (s *Service) FeedKeys() ([]string, error) {
	return s.db.ListFeedKeys()
}
