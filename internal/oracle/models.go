package oracle

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// NativeAssetKey is the protocol's own stable unit, hardcoded to parity
const NativeAssetKey = "mUSD"

const (
	// StalePeriod is the maximum age before a price is invalid
	StalePeriod = time.Hour

	// OSMDelay is the minimum lag between observing a spot price and that
	// price becoming the ruling settlement price
	OSMDelay = 30 * time.Minute
)

// PriceFeed is the live ("spot") price configuration for one asset key.
// With UseManual false and no aggregator assigned the feed is invalid by
// construction.
type PriceFeed struct {
	gorm.Model   `json:"-"`
	AssetKey     string          `gorm:"uniqueIndex" json:"asset_key"`
	AggregatorID string          `json:"aggregator_id,omitempty"`
	Decimals     uint8           `json:"decimals"`
	ManualPrice  decimal.Decimal `gorm:"type:decimal(38,18)" json:"manual_price"`
	LastUpdate   time.Time       `json:"last_update"`
	UseManual    bool            `json:"use_manual"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// SettlementPrice is the two-slot delayed price state for one asset key:
// the price currently ruling settlement decisions plus at most one staged
// price waiting out its delay
type SettlementPrice struct {
	gorm.Model   `json:"-"`
	AssetKey     string          `gorm:"uniqueIndex" json:"asset_key"`
	CurrentPrice decimal.Decimal `gorm:"type:decimal(38,18)" json:"current_price"`
	CurrentTime  time.Time       `json:"current_time"`
	NextPrice    decimal.Decimal `gorm:"type:decimal(38,18)" json:"next_price"`
	NextTime     time.Time       `json:"next_time"`
	HasNext      bool            `json:"has_next"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// OSMConfig is a singleton row holding the global settlement-price toggle.
// With the OSM disabled, settlement reads delegate to the spot feed.
type OSMConfig struct {
	gorm.Model `json:"-"`
	Enabled    bool `json:"enabled"`
}

// PriceResult is a spot or settlement price read together with its validity
type PriceResult struct {
	AssetKey string          `json:"asset_key"`
	Price    decimal.Decimal `json:"price"`
	Valid    bool            `json:"valid"`
}

// OSMStatus is the diagnostic view of one asset's settlement state
type OSMStatus struct {
	AssetKey     string          `json:"asset_key"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	CurrentTime  time.Time       `json:"current_time"`
	NextPrice    decimal.Decimal `json:"next_price"`
	NextTime     time.Time       `json:"next_time"`
	SpotPrice    decimal.Decimal `json:"spot_price"`
	SpotValid    bool            `json:"spot_valid"`
	OSMEnabled   bool            `json:"osm_enabled"`
}

// PendingActivation reports whether a staged price becomes due within a window
type PendingActivation struct {
	AssetKey      string          `json:"asset_key"`
	WillActivate  bool            `json:"will_activate"`
	PendingPrice  decimal.Decimal `json:"pending_price"`
	TimeRemaining time.Duration   `json:"time_remaining_seconds"`
}

// Admin request payloads

type AddAggregatorRequest struct {
	AssetKey     string `json:"asset_key" binding:"required"`
	AggregatorID string `json:"aggregator_id" binding:"required"`
}

type SetManualPriceRequest struct {
	AssetKey string          `json:"asset_key" binding:"required"`
	Price    decimal.Decimal `json:"price" binding:"required"`
}

type SetUseManualRequest struct {
	AssetKey  string `json:"asset_key" binding:"required"`
	UseManual *bool  `json:"use_manual" binding:"required"`
}

type InitializeRequest struct {
	AssetKey string          `json:"asset_key" binding:"required"`
	Price    decimal.Decimal `json:"price" binding:"required"`
}

type PokeManyRequest struct {
	AssetKeys []string `json:"asset_keys" binding:"required"`
}

type SetOSMEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}
