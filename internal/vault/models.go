package vault

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	// ModuleName is the identity this module presents to the issuer allowlist
	ModuleName = "vault"

	// CustodyAccount holds deposited collateral on the ledger
	CustodyAccount = "vault-module"

	// CollateralAssetKey is the single collateral asset this vault accepts
	CollateralAssetKey = "ETH"
)

// RatioInfinite is the reported collateralization ratio for positions with
// zero debt. Such positions are never liquidatable and have no ratio ceiling.
var RatioInfinite = decimal.New(1, 18)

// Position is one account's deposited collateral and outstanding debt. A row
// is created on first deposit and never deleted; liquidation zeroes it, which
// keeps "never touched" and "liquidated to zero" distinguishable.
type Position struct {
	gorm.Model `json:"-"`
	Account    string          `gorm:"uniqueIndex" json:"account"`
	Collateral decimal.Decimal `gorm:"type:decimal(38,18)" json:"collateral"`
	Debt       decimal.Decimal `gorm:"type:decimal(38,18)" json:"debt"`
	LastUpdate time.Time       `json:"last_update"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// State is the singleton vault-wide record: running totals, the pause
// switch, and the risk parameters. Totals must always equal the arithmetic
// sum over all positions.
type State struct {
	gorm.Model         `json:"-"`
	TotalCollateral    decimal.Decimal `gorm:"type:decimal(38,18)" json:"total_collateral"`
	TotalDebt          decimal.Decimal `gorm:"type:decimal(38,18)" json:"total_debt"`
	Active             bool            `json:"active"`
	MinCollateralRatio decimal.Decimal `gorm:"type:decimal(38,18)" json:"min_collateral_ratio"`
	LiquidationRatio   decimal.Decimal `gorm:"type:decimal(38,18)" json:"liquidation_ratio"`
	LiquidationPenalty decimal.Decimal `gorm:"type:decimal(38,18)" json:"liquidation_penalty"`
	PriceSource        string          `json:"price_source"` // spot or settlement
	UpdatedAt          time.Time       `json:"updated_at"`
}

// PositionView is a position read together with its derived health
type PositionView struct {
	Account         string          `json:"account"`
	Collateral      decimal.Decimal `json:"collateral"`
	Debt            decimal.Decimal `json:"debt"`
	CollateralRatio decimal.Decimal `json:"collateral_ratio"`
	Liquidatable    bool            `json:"liquidatable"`
	LastUpdate      time.Time       `json:"last_update"`
}

// Summary is the vault-wide diagnostic view
type Summary struct {
	TotalCollateral    decimal.Decimal `json:"total_collateral"`
	TotalDebt          decimal.Decimal `json:"total_debt"`
	Active             bool            `json:"active"`
	MinCollateralRatio decimal.Decimal `json:"min_collateral_ratio"`
	LiquidationRatio   decimal.Decimal `json:"liquidation_ratio"`
	LiquidationPenalty decimal.Decimal `json:"liquidation_penalty"`
	PriceSource        string          `json:"price_source"`
	Positions          int             `json:"positions"`
	TotalsConsistent   bool            `json:"totals_consistent"`
}

// LiquidationResult reports the outcome of a completed liquidation
type LiquidationResult struct {
	Account              string          `json:"account"`
	Liquidator           string          `json:"liquidator"`
	DebtBurned           decimal.Decimal `json:"debt_burned"`
	CollateralSeized     decimal.Decimal `json:"collateral_seized"`
	CollateralToCaller   decimal.Decimal `json:"collateral_to_caller"`
	Penalty              decimal.Decimal `json:"penalty"`
	PenaltyRecipient     string          `json:"penalty_recipient"`
	RatioAtLiquidation   decimal.Decimal `json:"ratio_at_liquidation"`
	PriceSourceConsulted string          `json:"price_source_consulted"`
}

// Request payloads

type AmountRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}

type LiquidateRequest struct {
	Account string `json:"account" binding:"required"`
}

type SetRatioRequest struct {
	Ratio decimal.Decimal `json:"ratio" binding:"required"`
}

type SetPenaltyRequest struct {
	Penalty decimal.Decimal `json:"penalty" binding:"required"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type SetPriceSourceRequest struct {
	PriceSource string `json:"price_source" binding:"required"`
}
