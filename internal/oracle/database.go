package oracle

import (
	"errors"

	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetFeed returns the spot feed for an asset key, or nil if absent
func (d *Database) GetFeed(assetKey string) (*PriceFeed, error) {
	var feed PriceFeed
	if err := d.db.Where("asset_key = ?", assetKey).First(&feed).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &feed, nil
}

// SaveFeed creates or updates a feed record
func (d *Database) SaveFeed(feed *PriceFeed) error {
	return d.db.Save(feed).Error
}

// DeleteFeed removes a feed record
func (d *Database) DeleteFeed(feed *PriceFeed) error {
	return d.db.Unscoped().Delete(feed).Error
}

// ListFeedKeys returns every asset key with a configured spot feed
func (d *Database) ListFeedKeys() ([]string, error) {
	var keys []string
	if err := d.db.Model(&PriceFeed{}).Order("asset_key ASC").Pluck("asset_key", &keys).Error; err != nil {
		return nil, err
	}
	return keys, nil
}

// GetSettlement returns the OSM state for an asset key, or nil if absent
func (d *Database) GetSettlement(assetKey string) (*SettlementPrice, error) {
	var state SettlementPrice
	if err := d.db.Where("asset_key = ?", assetKey).First(&state).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

// SaveSettlement creates or updates an OSM state record
func (d *Database) SaveSettlement(state *SettlementPrice) error {
	return d.db.Save(state).Error
}

// GetOSMConfig returns the singleton OSM toggle row, creating it enabled on
// first access
func (d *Database) GetOSMConfig() (*OSMConfig, error) {
	var cfg OSMConfig
	err := d.db.First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cfg = OSMConfig{Enabled: true}
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

// SaveOSMConfig updates the singleton OSM toggle row
func (d *Database) SaveOSMConfig(cfg *OSMConfig) error {
	return d.db.Save(cfg).Error
}
