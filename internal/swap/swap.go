package swap

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mintforge/synth-api/internal/events"
	"github.com/mintforge/synth-api/internal/issuer"
	"github.com/mintforge/synth-api/internal/oracle"
	"github.com/mintforge/synth-api/internal/registry"
	"github.com/mintforge/synth-api/pkg/response"
)

var (
	ErrSameAsset          = response.Kind(response.ErrValidation, "swap: cannot swap an asset for itself")
	ErrInvalidAmount      = response.Kind(response.ErrValidation, "swap: amount must be positive")
	ErrAssetNotRegistered = response.Kind(response.ErrNotFound, "swap: asset not registered")
	ErrInvalidPrice       = response.Kind(response.ErrGuard, "swap: oracle price unavailable")
	ErrSlippageExceeded   = response.Kind(response.ErrGuard, "swap: output below minimum acceptable")
	ErrFeeTooHigh         = response.Kind(response.ErrValidation, "swap: fee rate exceeds 10% cap")
	ErrNoAccruedFees      = response.Kind(response.ErrNotFound, "swap: no fees accrued for asset")
)

// MaxFeeRate caps the admin-settable swap fee at 10%
var MaxFeeRate = decimal.RequireFromString("0.1")

// Registry names this module resolves through the capability cache
var requiredNames = []string{"Issuer", "PriceOracle"}

// Service exchanges one synthetic asset for another at oracle-derived rates.
// There is no liquidity curve: the rate is whatever the oracle reports at
// execution time, so the economic risk is price staleness, not depth.
type Service struct {
	gormDB *gorm.DB
	db     *Database
	issuer *issuer.Service
	oracle *oracle.Service
	events *events.Recorder
	cache  *registry.Cache
}

// NewService creates a new swap service wired to its collaborators
func NewService(gormDB *gorm.DB, issuerSvc *issuer.Service, oracleSvc *oracle.Service, recorder *events.Recorder) *Service {
	return &Service{
		gormDB: gormDB,
		db:     NewDatabase(gormDB),
		issuer: issuerSvc,
		oracle: oracleSvc,
		events: recorder,
		cache:  registry.NewCache(ModuleName, requiredNames),
	}
}

// Cache exposes the module's dependency cache for rebuild and health checks
func (s *Service) Cache() *registry.Cache {
	return s.cache
}

// PreviewSwap computes the output and fee for a prospective swap at current
// spot rates without touching state
func (s *Service) PreviewSwap(fromKey, toKey string, amount decimal.Decimal) (*Quote, error) {
	if fromKey == toKey {
		return nil, ErrSameAsset
	}
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if _, err := s.cache.Require("PriceOracle"); err != nil {
		return nil, err
	}

	for _, key := range []string{fromKey, toKey} {
		registered, err := s.issuer.IsRegistered(key)
		if err != nil {
			return nil, err
		}
		if !registered {
			return nil, fmt.Errorf("%w: %s", ErrAssetNotRegistered, key)
		}
	}

	fromPrice, err := s.validPrice(fromKey)
	if err != nil {
		return nil, err
	}
	toPrice, err := s.validPrice(toKey)
	if err != nil {
		return nil, err
	}

	cfg, err := s.db.GetConfig()
	if err != nil {
		return nil, err
	}

	fromValue := amount.Mul(fromPrice)
	rawOut := fromValue.DivRound(toPrice, 18)
	fee := rawOut.Mul(cfg.FeeRate).Round(18)
	out := rawOut.Sub(fee)

	return &Quote{
		FromKey:   fromKey,
		ToKey:     toKey,
		AmountIn:  amount,
		AmountOut: out,
		Fee:       fee,
		FromPrice: fromPrice,
		ToPrice:   toPrice,
	}, nil
}

// Swap burns the input synths from the caller and mints the output, minus
// the fee accrued to the destination asset's pool. The quote is recomputed
// at execution time; minOut protects the caller against price movement since
// their preview.
func (s *Service) Swap(account, fromKey, toKey string, amount, minOut decimal.Decimal) (*Receipt, error) {
	logger := log.With().
		Str("service", "swap").
		Str("account", account).
		Str("from", fromKey).
		Str("to", toKey).
		Str("amount", amount.String()).
		Logger()

	quote, err := s.PreviewSwap(fromKey, toKey, amount)
	if err != nil {
		return nil, err
	}
	if quote.AmountOut.LessThan(minOut) {
		logger.Warn().
			Str("amount_out", quote.AmountOut.String()).
			Str("min_out", minOut.String()).
			Msg("swap rejected, output below minimum")
		return nil, ErrSlippageExceeded
	}
	if _, err := s.cache.Require("Issuer"); err != nil {
		return nil, err
	}

	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		txIssuer := s.issuer.WithTx(tx)
		txDB := NewDatabase(tx)

		if err := txIssuer.Burn(ModuleName, fromKey, account, amount); err != nil {
			return err
		}
		if err := txIssuer.Issue(ModuleName, toKey, account, quote.AmountOut); err != nil {
			return err
		}

		if quote.Fee.Sign() > 0 {
			pool, err := txDB.GetFeePool(toKey)
			if err != nil {
				return err
			}
			if pool == nil {
				pool = &FeePool{AssetKey: toKey, Accrued: decimal.Zero}
			}
			pool.Accrued = pool.Accrued.Add(quote.Fee)
			if err := txDB.SaveFeePool(pool); err != nil {
				return err
			}
		}

		return s.events.WithTx(tx).Record(events.TypeSwapExecuted, toKey, account, map[string]interface{}{
			"from":       fromKey,
			"to":         toKey,
			"amount_in":  amount.String(),
			"amount_out": quote.AmountOut.String(),
			"fee":        quote.Fee.String(),
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("swap failed")
		return nil, err
	}

	logger.Info().
		Str("amount_out", quote.AmountOut.String()).
		Str("fee", quote.Fee.String()).
		Msg("swap executed")

	return &Receipt{
		Account:   account,
		FromKey:   fromKey,
		ToKey:     toKey,
		AmountIn:  amount,
		AmountOut: quote.AmountOut,
		Fee:       quote.Fee,
		Timestamp: time.Now(),
	}, nil
}

// SetFeeRate updates the swap fee, capped at 10%
func (s *Service) SetFeeRate(rate decimal.Decimal) error {
	if rate.Sign() < 0 || rate.GreaterThan(MaxFeeRate) {
		return ErrFeeTooHigh
	}

	cfg, err := s.db.GetConfig()
	if err != nil {
		return err
	}

	cfg.FeeRate = rate
	if err := s.db.SaveConfig(cfg); err != nil {
		return err
	}

	log.Info().Str("service", "swap").Str("fee_rate", rate.String()).Msg("swap fee updated")
	return s.events.Record(events.TypeSwapFeeUpdated, "", "", map[string]interface{}{
		"fee_rate": rate.String(),
	})
}

// FeeRate returns the current swap fee rate
func (s *Service) FeeRate() (decimal.Decimal, error) {
	cfg, err := s.db.GetConfig()
	if err != nil {
		return decimal.Zero, err
	}
	return cfg.FeeRate, nil
}

// FeePools returns every fee pool record
func (s *Service) FeePools() ([]FeePool, error) {
	return s.db.ListFeePools()
}

// WithdrawFees mints the accrued fee pool for an asset to a destination and
// zeroes the pool. This is revenue extraction by minting: it increases the
// asset's total supply rather than moving an existing balance.
func (s *Service) WithdrawFees(assetKey, to string) (decimal.Decimal, error) {
	if _, err := s.cache.Require("Issuer"); err != nil {
		return decimal.Zero, err
	}

	pool, err := s.db.GetFeePool(assetKey)
	if err != nil {
		return decimal.Zero, err
	}
	if pool == nil || pool.Accrued.Sign() == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoAccruedFees, assetKey)
	}

	amount := pool.Accrued
	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		if err := s.issuer.WithTx(tx).Issue(ModuleName, assetKey, to, amount); err != nil {
			return err
		}

		pool.Accrued = decimal.Zero
		if err := NewDatabase(tx).SaveFeePool(pool); err != nil {
			return err
		}

		return s.events.WithTx(tx).Record(events.TypeFeesWithdrawn, assetKey, to, map[string]interface{}{
			"amount": amount.String(),
		})
	})
	if err != nil {
		return decimal.Zero, err
	}

	log.Info().
		Str("service", "swap").
		Str("asset_key", assetKey).
		Str("to", to).
		Str("amount", amount.String()).
		Msg("fees withdrawn")
	return amount, nil
}

func (s *Service) validPrice(assetKey string) (decimal.Decimal, error) {
	result, err := s.oracle.GetPrice(assetKey)
	if err != nil {
		return decimal.Zero, err
	}
	if !result.Valid {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidPrice, assetKey)
	}
	return result.Price, nil
}
