package issuer

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SyntheticAsset is one registered synthetic currency. Registration is the
// bidirectional key<->ledger mapping; the ledger side is keyed by the same
// asset key.
type SyntheticAsset struct {
	gorm.Model  `json:"-"`
	AssetKey    string    `gorm:"uniqueIndex" json:"asset_key"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AuthorizedMinter is one module permitted to issue and burn synths
type AuthorizedMinter struct {
	gorm.Model `json:"-"`
	ModuleName string    `gorm:"uniqueIndex" json:"module_name"`
	CreatedAt  time.Time `json:"created_at"`
}

// AssetValue is one asset's contribution to the total issued value view
type AssetValue struct {
	AssetKey string          `json:"asset_key"`
	Supply   decimal.Decimal `json:"supply"`
	Price    decimal.Decimal `json:"price"`
	Value    decimal.Decimal `json:"value"`
}

// TotalIssuedValue is the best-effort system-wide value summary. Assets with
// invalid prices are skipped, not failed.
type TotalIssuedValue struct {
	Total   decimal.Decimal `json:"total"`
	Assets  []AssetValue    `json:"assets"`
	Skipped []string        `json:"skipped,omitempty"`
}

// AddAssetRequest is the admin payload for registering a synthetic asset
type AddAssetRequest struct {
	AssetKey    string `json:"asset_key" binding:"required"`
	Description string `json:"description"`
}

// AuthorizeRequest is the admin payload for the minting allowlist
type AuthorizeRequest struct {
	ModuleName string `json:"module_name" binding:"required"`
}
