package database

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mintforge/synth-api/internal/database/migrations"
	"github.com/mintforge/synth-api/internal/events"
	"github.com/mintforge/synth-api/internal/issuer"
	"github.com/mintforge/synth-api/internal/ledger"
	"github.com/mintforge/synth-api/internal/oracle"
	"github.com/mintforge/synth-api/internal/registry"
	"github.com/mintforge/synth-api/internal/swap"
	"github.com/mintforge/synth-api/internal/vault"
)

// NewDatabase initializes and returns a new GORM DB connection
func NewDatabase(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// Auto-migrate schemas
	err = db.AutoMigrate(
		&registry.NameRecord{},
		&ledger.Balance{},
		&ledger.Allowance{},
		&oracle.PriceFeed{},
		&oracle.SettlementPrice{},
		&oracle.OSMConfig{},
		&issuer.SyntheticAsset{},
		&issuer.AuthorizedMinter{},
		&vault.Position{},
		&vault.State{},
		&swap.Config{},
		&swap.FeePool{},
		&events.Event{},
	)
	if err != nil {
		return nil, err
	}

	// Run versioned migrations
	if err := migrations.AddLiquidationPriceSource(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := migrations.AddEventIndexes(db); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return db, nil
}
