package vault

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mintforge/synth-api/internal/config"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetPosition returns the position for an account, or nil if the account has
// never deposited
func (d *Database) GetPosition(account string) (*Position, error) {
	var position Position
	if err := d.db.Where("account = ?", account).First(&position).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &position, nil
}

// SavePosition creates or updates a position record
func (d *Database) SavePosition(position *Position) error {
	return d.db.Save(position).Error
}

// ListPositions returns every position record
func (d *Database) ListPositions() ([]Position, error) {
	var positions []Position
	if err := d.db.Find(&positions).Error; err != nil {
		return nil, err
	}
	return positions, nil
}

// GetState returns the singleton vault state, creating it with defaults on
// first access. Default risk parameters: 150% minimum ratio, 120% liquidation
// line, 10% penalty.
func (d *Database) GetState() (*State, error) {
	var state State
	err := d.db.First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		state = State{
			TotalCollateral:    decimal.Zero,
			TotalDebt:          decimal.Zero,
			Active:             true,
			MinCollateralRatio: decimal.RequireFromString("1.5"),
			LiquidationRatio:   decimal.RequireFromString("1.2"),
			LiquidationPenalty: decimal.RequireFromString("0.1"),
			PriceSource:        config.PriceSourceSpot,
			UpdatedAt:          time.Now(),
		}
		if err := d.db.Create(&state).Error; err != nil {
			return nil, err
		}
		return &state, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveState updates the singleton vault state
func (d *Database) SaveState(state *State) error {
	state.UpdatedAt = time.Now()
	return d.db.Save(state).Error
}
