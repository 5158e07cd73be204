package issuer

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

// GetAsset returns the registered asset for a key, or nil if absent
func (d *Database) GetAsset(assetKey string) (*SyntheticAsset, error) {
	var asset SyntheticAsset
	if err := d.db.Where("asset_key = ?", assetKey).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &asset, nil
}

// CreateAsset registers a new asset
func (d *Database) CreateAsset(asset *SyntheticAsset) error {
	return d.db.Create(asset).Error
}

// DeleteAsset removes an asset registration
func (d *Database) DeleteAsset(asset *SyntheticAsset) error {
	return d.db.Unscoped().Delete(asset).Error
}

// ListAssets returns every registered asset
func (d *Database) ListAssets() ([]SyntheticAsset, error) {
	var assets []SyntheticAsset
	if err := d.db.Order("asset_key ASC").Find(&assets).Error; err != nil {
		return nil, err
	}
	return assets, nil
}

// GetMinter returns the allowlist entry for a module, or nil if absent
func (d *Database) GetMinter(moduleName string) (*AuthorizedMinter, error) {
	var minter AuthorizedMinter
	if err := d.db.Where("module_name = ?", moduleName).First(&minter).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &minter, nil
}

// CreateMinter adds a module to the minting allowlist
func (d *Database) CreateMinter(minter *AuthorizedMinter) error {
	return d.db.Create(minter).Error
}

// DeleteMinter removes a module from the minting allowlist
func (d *Database) DeleteMinter(minter *AuthorizedMinter) error {
	return d.db.Unscoped().Delete(minter).Error
}
