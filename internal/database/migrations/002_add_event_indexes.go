package migrations

import (
	"gorm.io/gorm"
)

// AddEventIndexes creates the audit-event indexes the AutoMigrate pass does
// not cover. Using raw SQL for index creation to have more control.
func AddEventIndexes(db *gorm.DB) error {
	indexes := []string{
		// Composite index for per-account audit queries
		`CREATE INDEX IF NOT EXISTS idx_events_account_type
		 ON events(account, type)`,

		// Index for per-asset audit queries
		`CREATE INDEX IF NOT EXISTS idx_events_asset_key
		 ON events(asset_key)`,

		// Index for time-ordered reads
		`CREATE INDEX IF NOT EXISTS idx_events_created_at
		 ON events(created_at)`,
	}

	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			return err
		}
	}

	return nil
}
