package swap

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DefaultFeeRate is 0.3%
var DefaultFeeRate = decimal.RequireFromString("0.003")

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetConfig returns the singleton swap configuration, creating it with the
// default fee on first access
func (d *Database) GetConfig() (*Config, error) {
	var cfg Config
	err := d.db.First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = Config{FeeRate: DefaultFeeRate, UpdatedAt: time.Now()}
		if err := d.db.Create(&cfg).Error; err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveConfig updates the singleton swap configuration
func (d *Database) SaveConfig(cfg *Config) error {
	cfg.UpdatedAt = time.Now()
	return d.db.Save(cfg).Error
}

// GetFeePool returns the fee pool for an asset, or nil if nothing accrued yet
func (d *Database) GetFeePool(assetKey string) (*FeePool, error) {
	var pool FeePool
	if err := d.db.Where("asset_key = ?", assetKey).First(&pool).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &pool, nil
}

// SaveFeePool creates or updates a fee pool record
func (d *Database) SaveFeePool(pool *FeePool) error {
	pool.UpdatedAt = time.Now()
	return d.db.Save(pool).Error
}

// ListFeePools returns every fee pool record
func (d *Database) ListFeePools() ([]FeePool, error) {
	var pools []FeePool
	if err := d.db.Order("asset_key ASC").Find(&pools).Error; err != nil {
		return nil, err
	}
	return pools, nil
}
