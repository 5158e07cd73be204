package issuer

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mintforge/synth-api/internal/events"
	"github.com/mintforge/synth-api/internal/ledger"
	"github.com/mintforge/synth-api/internal/oracle"
	"github.com/mintforge/synth-api/internal/registry"
	"github.com/mintforge/synth-api/pkg/response"
)

var (
	ErrAssetExists        = response.Kind(response.ErrConflict, "issuer: asset already registered")
	ErrAssetNotRegistered = response.Kind(response.ErrNotFound, "issuer: asset not registered")
	ErrOutstandingSupply  = response.Kind(response.ErrGuard, "issuer: asset has nonzero circulating supply")
	ErrNotAuthorized      = response.Kind(response.ErrForbidden, "issuer: caller not authorized to mint or burn")
	ErrInvalidAmount      = response.Kind(response.ErrValidation, "issuer: amount must be positive")
)

// Registry names this module resolves through the capability cache
var requiredNames = []string{"Ledger", "PriceOracle"}

// Service is the synthetic-asset registry: it maps currency keys to ledger
// entries, gates minting and burning behind the authorized-caller allowlist,
// and tracks aggregate supply
type Service struct {
	db     *Database
	ledger *ledger.Service
	oracle *oracle.Service
	events *events.Recorder
	cache  *registry.Cache
}

// NewService creates a new issuer service wired to its collaborators
func NewService(gormDB *gorm.DB, ledgerSvc *ledger.Service, oracleSvc *oracle.Service, recorder *events.Recorder) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		ledger: ledgerSvc,
		oracle: oracleSvc,
		events: recorder,
		cache:  registry.NewCache("issuer", requiredNames),
	}
}

// Cache exposes the module's dependency cache for rebuild and health checks
func (s *Service) Cache() *registry.Cache {
	return s.cache
}

// WithTx returns a service whose writes, including ledger delegation,
// participate in the caller's transaction
func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{
		db:     NewDatabase(tx),
		ledger: s.ledger.WithTx(tx),
		oracle: s.oracle,
		events: s.events.WithTx(tx),
		cache:  s.cache,
	}
}

// AddAsset registers a new synthetic asset key
func (s *Service) AddAsset(assetKey, description string) error {
	existing, err := s.db.GetAsset(assetKey)
	if err != nil {
		return fmt.Errorf("failed to fetch asset: %w", err)
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", ErrAssetExists, assetKey)
	}

	asset := &SyntheticAsset{
		AssetKey:    assetKey,
		Description: description,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := s.db.CreateAsset(asset); err != nil {
		return err
	}

	log.Info().
		Str("service", "issuer").
		Str("asset_key", assetKey).
		Msg("synthetic asset registered")
	return s.events.Record(events.TypeAssetAdded, assetKey, "", nil)
}

// RemoveAsset delists a synthetic asset. Fails while any supply circulates;
// the asset must be fully unwound before delisting.
func (s *Service) RemoveAsset(assetKey string) error {
	asset, err := s.db.GetAsset(assetKey)
	if err != nil {
		return fmt.Errorf("failed to fetch asset: %w", err)
	}
	if asset == nil {
		return fmt.Errorf("%w: %s", ErrAssetNotRegistered, assetKey)
	}

	supply, err := s.ledger.TotalSupply(assetKey)
	if err != nil {
		return fmt.Errorf("failed to check supply: %w", err)
	}
	if supply.Sign() != 0 {
		return fmt.Errorf("%w: %s has %s outstanding", ErrOutstandingSupply, assetKey, supply)
	}

	if err := s.db.DeleteAsset(asset); err != nil {
		return err
	}

	log.Info().
		Str("service", "issuer").
		Str("asset_key", assetKey).
		Msg("synthetic asset removed")
	return s.events.Record(events.TypeAssetRemoved, assetKey, "", nil)
}

// AuthorizeVault adds a module to the minting allowlist
func (s *Service) AuthorizeVault(moduleName string) error {
	existing, err := s.db.GetMinter(moduleName)
	if err != nil {
		return fmt.Errorf("failed to fetch allowlist entry: %w", err)
	}
	if existing != nil {
		return nil // idempotent
	}

	if err := s.db.CreateMinter(&AuthorizedMinter{ModuleName: moduleName, CreatedAt: time.Now()}); err != nil {
		return err
	}
	return s.events.Record(events.TypeVaultAuthorized, "", moduleName, nil)
}

// RevokeVault removes a module from the minting allowlist
func (s *Service) RevokeVault(moduleName string) error {
	existing, err := s.db.GetMinter(moduleName)
	if err != nil {
		return fmt.Errorf("failed to fetch allowlist entry: %w", err)
	}
	if existing == nil {
		return nil // idempotent
	}

	if err := s.db.DeleteMinter(existing); err != nil {
		return err
	}
	return s.events.Record(events.TypeVaultRevoked, "", moduleName, nil)
}

// Issue creates new units of a registered asset for an account. The caller
// module must be on the allowlist.
func (s *Service) Issue(caller, assetKey, to string, amount decimal.Decimal) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	if err := s.requireAsset(assetKey); err != nil {
		return err
	}
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, err := s.cache.Require("Ledger"); err != nil {
		return err
	}

	if err := s.ledger.Issue(assetKey, to, amount); err != nil {
		return fmt.Errorf("ledger issue failed: %w", err)
	}

	log.Info().
		Str("service", "issuer").
		Str("caller", caller).
		Str("asset_key", assetKey).
		Str("account", to).
		Str("amount", amount.String()).
		Msg("synths issued")
	return s.events.Record(events.TypeTokensIssued, assetKey, to, map[string]interface{}{
		"caller": caller,
		"amount": amount.String(),
	})
}

// Burn destroys units of a registered asset held by an account. The caller
// module must be on the allowlist.
func (s *Service) Burn(caller, assetKey, from string, amount decimal.Decimal) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	if err := s.requireAsset(assetKey); err != nil {
		return err
	}
	if amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, err := s.cache.Require("Ledger"); err != nil {
		return err
	}

	if err := s.ledger.Burn(assetKey, from, amount); err != nil {
		return fmt.Errorf("ledger burn failed: %w", err)
	}

	log.Info().
		Str("service", "issuer").
		Str("caller", caller).
		Str("asset_key", assetKey).
		Str("account", from).
		Str("amount", amount.String()).
		Msg("synths burned")
	return s.events.Record(events.TypeTokensBurned, assetKey, from, map[string]interface{}{
		"caller": caller,
		"amount": amount.String(),
	})
}

// IsRegistered reports whether an asset key is registered
func (s *Service) IsRegistered(assetKey string) (bool, error) {
	asset, err := s.db.GetAsset(assetKey)
	if err != nil {
		return false, err
	}
	return asset != nil, nil
}

// Assets returns every registered synthetic asset
func (s *Service) Assets() ([]SyntheticAsset, error) {
	return s.db.ListAssets()
}

// TotalIssued returns one asset's circulating supply
func (s *Service) TotalIssued(assetKey string) (decimal.Decimal, error) {
	return s.ledger.TotalSupply(assetKey)
}

// TotalIssuedValue sums supply*price across registered assets. Best-effort:
// assets whose price is invalid are skipped and listed, not failed.
func (s *Service) TotalIssuedValue() (*TotalIssuedValue, error) {
	assets, err := s.db.ListAssets()
	if err != nil {
		return nil, err
	}

	result := &TotalIssuedValue{Total: decimal.Zero}
	for _, asset := range assets {
		price, err := s.oracle.GetPrice(asset.AssetKey)
		if err != nil || !price.Valid {
			result.Skipped = append(result.Skipped, asset.AssetKey)
			continue
		}

		supply, err := s.ledger.TotalSupply(asset.AssetKey)
		if err != nil {
			result.Skipped = append(result.Skipped, asset.AssetKey)
			continue
		}

		value := supply.Mul(price.Price).Round(18)
		result.Assets = append(result.Assets, AssetValue{
			AssetKey: asset.AssetKey,
			Supply:   supply,
			Price:    price.Price,
			Value:    value,
		})
		result.Total = result.Total.Add(value)
	}

	return result, nil
}

func (s *Service) authorize(caller string) error {
	minter, err := s.db.GetMinter(caller)
	if err != nil {
		return fmt.Errorf("failed to fetch allowlist entry: %w", err)
	}
	if minter == nil {
		return fmt.Errorf("%w: %s", ErrNotAuthorized, caller)
	}
	return nil
}

func (s *Service) requireAsset(assetKey string) error {
	asset, err := s.db.GetAsset(assetKey)
	if err != nil {
		return fmt.Errorf("failed to fetch asset: %w", err)
	}
	if asset == nil {
		return fmt.Errorf("%w: %s", ErrAssetNotRegistered, assetKey)
	}
	return nil
}
