package ledger

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetBalance returns the balance record for an account, or nil if absent
func (d *Database) GetBalance(assetKey, account string) (*Balance, error) {
	var balance Balance
	if err := d.db.Where("asset_key = ? AND account = ?", assetKey, account).First(&balance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &balance, nil
}

// SaveBalance creates or updates a balance record
func (d *Database) SaveBalance(balance *Balance) error {
	return d.db.Save(balance).Error
}

// GetAllowance returns the allowance record, or nil if absent
func (d *Database) GetAllowance(assetKey, owner, spender string) (*Allowance, error) {
	var allowance Allowance
	if err := d.db.Where("asset_key = ? AND owner = ? AND spender = ?", assetKey, owner, spender).
		First(&allowance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &allowance, nil
}

// SaveAllowance creates or updates an allowance record
func (d *Database) SaveAllowance(allowance *Allowance) error {
	return d.db.Save(allowance).Error
}

// SumSupply returns the total circulating amount of an asset across accounts.
// Summation happens in Go so decimal strings never round through SQL floats.
func (d *Database) SumSupply(assetKey string) (decimal.Decimal, error) {
	var balances []Balance
	if err := d.db.Where("asset_key = ?", assetKey).Find(&balances).Error; err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, balance := range balances {
		total = total.Add(balance.Amount)
	}
	return total, nil
}

// ListBalances returns every balance record for an asset
func (d *Database) ListBalances(assetKey string) ([]Balance, error) {
	var balances []Balance
	if err := d.db.Where("asset_key = ?", assetKey).Find(&balances).Error; err != nil {
		return nil, err
	}
	return balances, nil
}
