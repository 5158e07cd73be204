package migrations

import (
	"gorm.io/gorm"

	"github.com/mintforge/synth-api/internal/config"
)

// AddLiquidationPriceSource backfills the price_source column on vault state
// rows created before the column existed. Liquidation consulted the spot
// price unconditionally back then, so spot is the backfill value.
func AddLiquidationPriceSource(db *gorm.DB) error {
	return db.Exec(
		`UPDATE states SET price_source = ? WHERE price_source IS NULL OR price_source = ''`,
		config.PriceSourceSpot,
	).Error
}
