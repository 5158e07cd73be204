package events

import (
	"time"

	"gorm.io/gorm"
)

// Event types, one per observable state transition
const (
	TypeAddressImported     = "ADDRESS_IMPORTED"
	TypeCacheUpdated        = "CACHE_UPDATED"
	TypeAssetAdded          = "ASSET_ADDED"
	TypeAssetRemoved        = "ASSET_REMOVED"
	TypeTokensIssued        = "TOKENS_ISSUED"
	TypeTokensBurned        = "TOKENS_BURNED"
	TypeVaultAuthorized     = "VAULT_AUTHORIZED"
	TypeVaultRevoked        = "VAULT_REVOKED"
	TypeCollateralDeposited = "COLLATERAL_DEPOSITED"
	TypeCollateralWithdrawn = "COLLATERAL_WITHDRAWN"
	TypeSynthMinted         = "SYNTH_MINTED"
	TypeSynthBurned         = "SYNTH_BURNED"
	TypePositionLiquidated  = "POSITION_LIQUIDATED"
	TypeRiskParamUpdated    = "RISK_PARAM_UPDATED"
	TypeSystemPaused        = "SYSTEM_PAUSED"
	TypeSystemResumed       = "SYSTEM_RESUMED"
	TypeOSMPriceQueued      = "OSM_PRICE_QUEUED"
	TypeOSMPriceActivated   = "OSM_PRICE_ACTIVATED"
	TypeOSMInitialized      = "OSM_INITIALIZED"
	TypeOSMToggled          = "OSM_TOGGLED"
	TypeSwapExecuted        = "SWAP_EXECUTED"
	TypeSwapFeeUpdated      = "SWAP_FEE_UPDATED"
	TypeFeesWithdrawn       = "FEES_WITHDRAWN"
)

// Event is an append-only audit record. No component reads events for its
// own correctness; they exist for observability and off-process indexing.
type Event struct {
	gorm.Model `json:"-"`
	EventID    string    `gorm:"uniqueIndex" json:"event_id"`
	Type       string    `gorm:"index" json:"type"`
	AssetKey   string    `json:"asset_key,omitempty"`
	Account    string    `json:"account,omitempty"`
	Payload    string    `json:"payload,omitempty"` // JSON object with transition details
	CreatedAt  time.Time `json:"created_at"`
}
