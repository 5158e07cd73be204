package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Balance is one account's holding of one asset
type Balance struct {
	gorm.Model `json:"-"`
	AssetKey   string          `gorm:"uniqueIndex:idx_asset_account" json:"asset_key"`
	Account    string          `gorm:"uniqueIndex:idx_asset_account" json:"account"`
	Amount     decimal.Decimal `gorm:"type:decimal(38,18)" json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Allowance is a delegated-transfer authorization from an owner to a spender
type Allowance struct {
	gorm.Model `json:"-"`
	AssetKey   string          `gorm:"uniqueIndex:idx_asset_owner_spender" json:"asset_key"`
	Owner      string          `gorm:"uniqueIndex:idx_asset_owner_spender" json:"owner"`
	Spender    string          `gorm:"uniqueIndex:idx_asset_owner_spender" json:"spender"`
	Amount     decimal.Decimal `gorm:"type:decimal(38,18)" json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// ApproveRequest is the payload for setting a spending allowance
type ApproveRequest struct {
	AssetKey string          `json:"asset_key" binding:"required"`
	Spender  string          `json:"spender" binding:"required"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
}

// TransferRequest is the payload for a direct ledger transfer
type TransferRequest struct {
	AssetKey string          `json:"asset_key" binding:"required"`
	To       string          `json:"to" binding:"required"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
}
