package swap

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ModuleName is the identity this module presents to the issuer allowlist
const ModuleName = "swap"

// Config is the singleton swap configuration row
type Config struct {
	gorm.Model `json:"-"`
	FeeRate    decimal.Decimal `gorm:"type:decimal(38,18)" json:"fee_rate"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// FeePool accrues swap fees per destination asset. Fees are not held as
// balances; withdrawal mints the accrued amount, increasing total supply.
type FeePool struct {
	gorm.Model `json:"-"`
	AssetKey   string          `gorm:"uniqueIndex" json:"asset_key"`
	Accrued    decimal.Decimal `gorm:"type:decimal(38,18)" json:"accrued"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Quote is a swap preview: the output after fees at current oracle rates
type Quote struct {
	FromKey   string          `json:"from_key"`
	ToKey     string          `json:"to_key"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	Fee       decimal.Decimal `json:"fee"`
	FromPrice decimal.Decimal `json:"from_price"`
	ToPrice   decimal.Decimal `json:"to_price"`
}

// Receipt reports an executed swap
type Receipt struct {
	Account   string          `json:"account"`
	FromKey   string          `json:"from_key"`
	ToKey     string          `json:"to_key"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	Fee       decimal.Decimal `json:"fee"`
	Timestamp time.Time       `json:"timestamp"`
}

// Request payloads

type SwapRequest struct {
	FromKey string          `json:"from_key" binding:"required"`
	ToKey   string          `json:"to_key" binding:"required"`
	Amount  decimal.Decimal `json:"amount" binding:"required"`
	MinOut  decimal.Decimal `json:"min_out"`
}

type SetFeeRequest struct {
	FeeRate decimal.Decimal `json:"fee_rate" binding:"required"`
}

type WithdrawFeesRequest struct {
	AssetKey string `json:"asset_key" binding:"required"`
	To       string `json:"to" binding:"required"`
}
