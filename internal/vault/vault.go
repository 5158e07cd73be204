package vault

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/mintforge/synth-api/internal/config"
	"github.com/mintforge/synth-api/internal/events"
	"github.com/mintforge/synth-api/internal/issuer"
	"github.com/mintforge/synth-api/internal/ledger"
	"github.com/mintforge/synth-api/internal/oracle"
	"github.com/mintforge/synth-api/internal/registry"
	"github.com/mintforge/synth-api/pkg/response"
)

var (
	ErrInvalidAmount          = response.Kind(response.ErrValidation, "vault: amount must be positive")
	ErrSystemPaused           = response.Kind(response.ErrGuard, "vault: system paused")
	ErrInsufficientCollateral = response.Kind(response.ErrGuard, "vault: insufficient collateral")
	ErrInsufficientDebt       = response.Kind(response.ErrGuard, "vault: burn exceeds outstanding debt")
	ErrRatioTooLow            = response.Kind(response.ErrGuard, "vault: collateral ratio would fall below minimum")
	ErrPositionHealthy        = response.Kind(response.ErrGuard, "vault: position not eligible for liquidation")
	ErrSelfLiquidation        = response.Kind(response.ErrValidation, "vault: cannot liquidate own position")
	ErrInvalidPrice           = response.Kind(response.ErrGuard, "vault: collateral price unavailable")
	ErrInvalidParameter       = response.Kind(response.ErrValidation, "vault: invalid risk parameter")
)

// Registry names this module resolves through the capability cache
var requiredNames = []string{"Ledger", "PriceOracle", "Issuer"}

// Service is the collateral vault: the per-account position ledger, its
// state transitions, and the liquidation engine
type Service struct {
	gormDB *gorm.DB
	db     *Database
	ledger *ledger.Service
	issuer *issuer.Service
	oracle *oracle.Service
	events *events.Recorder
	cache  *registry.Cache

	// penaltyAccount receives the liquidation penalty share
	penaltyAccount string

	guard opGuard
	now   func() time.Time
}

// NewService creates a new vault service wired to its collaborators
func NewService(gormDB *gorm.DB, ledgerSvc *ledger.Service, issuerSvc *issuer.Service, oracleSvc *oracle.Service, recorder *events.Recorder, penaltyAccount string) *Service {
	return &Service{
		gormDB:         gormDB,
		db:             NewDatabase(gormDB),
		ledger:         ledgerSvc,
		issuer:         issuerSvc,
		oracle:         oracleSvc,
		events:         recorder,
		cache:          registry.NewCache(ModuleName, requiredNames),
		penaltyAccount: penaltyAccount,
		now:            time.Now,
	}
}

// Cache exposes the module's dependency cache for rebuild and health checks
func (s *Service) Cache() *registry.Cache {
	return s.cache
}

// SetClock overrides the service clock. Test hook.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Deposit pulls collateral from the caller into vault custody and credits
// the position. Depositing can only improve health, so no ratio check runs.
func (s *Service) Deposit(account string, amount decimal.Decimal) (*PositionView, error) {
	logger := s.opLogger("deposit", account, amount)

	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := s.guard.enter(); err != nil {
		return nil, err
	}
	defer s.guard.exit()

	state, err := s.requireActive()
	if err != nil {
		return nil, err
	}
	if _, err := s.cache.Require("Ledger"); err != nil {
		return nil, err
	}

	var position *Position
	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		txDB := NewDatabase(tx)

		// Pull collateral first; the caller must have pre-approved custody
		if err := s.ledger.WithTx(tx).TransferFrom(CollateralAssetKey, CustodyAccount, account, CustodyAccount, amount); err != nil {
			return err
		}

		position, err = txDB.GetPosition(account)
		if err != nil {
			return err
		}
		if position == nil {
			position = &Position{
				Account:    account,
				Collateral: decimal.Zero,
				Debt:       decimal.Zero,
				CreatedAt:  time.Now(),
			}
		}
		position.Collateral = position.Collateral.Add(amount)
		position.LastUpdate = s.now()
		if err := txDB.SavePosition(position); err != nil {
			return err
		}

		state.TotalCollateral = state.TotalCollateral.Add(amount)
		if err := txDB.SaveState(state); err != nil {
			return err
		}

		return s.events.WithTx(tx).Record(events.TypeCollateralDeposited, CollateralAssetKey, account, map[string]interface{}{
			"amount": amount.String(),
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("deposit failed")
		return nil, err
	}

	logger.Info().Str("collateral", position.Collateral.String()).Msg("collateral deposited")
	return s.view(position, state), nil
}

// Withdraw returns collateral to the caller. With outstanding debt the ratio
// is recomputed as if the withdrawal had already happened and the call fails
// before any state changes if it would breach the minimum.
func (s *Service) Withdraw(account string, amount decimal.Decimal) (*PositionView, error) {
	logger := s.opLogger("withdraw", account, amount)

	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := s.guard.enter(); err != nil {
		return nil, err
	}
	defer s.guard.exit()

	state, err := s.requireActive()
	if err != nil {
		return nil, err
	}
	if _, err := s.cache.Require("Ledger"); err != nil {
		return nil, err
	}

	position, err := s.db.GetPosition(account)
	if err != nil {
		return nil, err
	}
	if position == nil || position.Collateral.LessThan(amount) {
		return nil, ErrInsufficientCollateral
	}

	if position.Debt.Sign() > 0 {
		price, err := s.spotPrice()
		if err != nil {
			return nil, err
		}
		remaining := position.Collateral.Sub(amount)
		if ratioOf(remaining, position.Debt, price).LessThan(state.MinCollateralRatio) {
			logger.Warn().Msg("withdrawal rejected, ratio would breach minimum")
			return nil, ErrRatioTooLow
		}
	}

	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		txDB := NewDatabase(tx)

		position.Collateral = position.Collateral.Sub(amount)
		position.LastUpdate = s.now()
		if err := txDB.SavePosition(position); err != nil {
			return err
		}

		state.TotalCollateral = state.TotalCollateral.Sub(amount)
		if err := txDB.SaveState(state); err != nil {
			return err
		}

		if err := s.ledger.WithTx(tx).Transfer(CollateralAssetKey, CustodyAccount, account, amount); err != nil {
			return err
		}

		return s.events.WithTx(tx).Record(events.TypeCollateralWithdrawn, CollateralAssetKey, account, map[string]interface{}{
			"amount": amount.String(),
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("withdrawal failed")
		return nil, err
	}

	logger.Info().Str("collateral", position.Collateral.String()).Msg("collateral withdrawn")
	return s.view(position, state), nil
}

// Mint issues synths against the position's collateral. The ratio is checked
// as if the debt had already increased, before any state mutation or
// external call.
func (s *Service) Mint(account string, amount decimal.Decimal) (*PositionView, error) {
	logger := s.opLogger("mint", account, amount)

	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := s.guard.enter(); err != nil {
		return nil, err
	}
	defer s.guard.exit()

	state, err := s.requireActive()
	if err != nil {
		return nil, err
	}
	if _, err := s.cache.Require("Issuer"); err != nil {
		return nil, err
	}

	position, err := s.db.GetPosition(account)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{
			Account:    account,
			Collateral: decimal.Zero,
			Debt:       decimal.Zero,
			CreatedAt:  time.Now(),
		}
	}

	price, err := s.spotPrice()
	if err != nil {
		return nil, err
	}
	newDebt := position.Debt.Add(amount)
	if ratioOf(position.Collateral, newDebt, price).LessThan(state.MinCollateralRatio) {
		logger.Warn().
			Str("collateral", position.Collateral.String()).
			Str("new_debt", newDebt.String()).
			Str("price", price.String()).
			Msg("mint rejected, ratio would breach minimum")
		return nil, ErrRatioTooLow
	}

	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		txDB := NewDatabase(tx)

		position.Debt = newDebt
		position.LastUpdate = s.now()
		if err := txDB.SavePosition(position); err != nil {
			return err
		}

		state.TotalDebt = state.TotalDebt.Add(amount)
		if err := txDB.SaveState(state); err != nil {
			return err
		}

		if err := s.issuer.WithTx(tx).Issue(ModuleName, oracle.NativeAssetKey, account, amount); err != nil {
			return err
		}

		return s.events.WithTx(tx).Record(events.TypeSynthMinted, oracle.NativeAssetKey, account, map[string]interface{}{
			"amount": amount.String(),
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("mint failed")
		return nil, err
	}

	logger.Info().Str("debt", position.Debt.String()).Msg("synths minted")
	return s.view(position, state), nil
}

// Burn retires synths from the caller's balance against the position's debt.
// Burning can only improve health, so no ratio check runs.
func (s *Service) Burn(account string, amount decimal.Decimal) (*PositionView, error) {
	logger := s.opLogger("burn", account, amount)

	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := s.guard.enter(); err != nil {
		return nil, err
	}
	defer s.guard.exit()

	state, err := s.requireActive()
	if err != nil {
		return nil, err
	}
	if _, err := s.cache.Require("Issuer"); err != nil {
		return nil, err
	}

	position, err := s.db.GetPosition(account)
	if err != nil {
		return nil, err
	}
	if position == nil || position.Debt.LessThan(amount) {
		return nil, ErrInsufficientDebt
	}

	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		txDB := NewDatabase(tx)

		position.Debt = position.Debt.Sub(amount)
		position.LastUpdate = s.now()
		if err := txDB.SavePosition(position); err != nil {
			return err
		}

		state.TotalDebt = state.TotalDebt.Sub(amount)
		if err := txDB.SaveState(state); err != nil {
			return err
		}

		if err := s.issuer.WithTx(tx).Burn(ModuleName, oracle.NativeAssetKey, account, amount); err != nil {
			return err
		}

		return s.events.WithTx(tx).Record(events.TypeSynthBurned, oracle.NativeAssetKey, account, map[string]interface{}{
			"amount": amount.String(),
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("burn failed")
		return nil, err
	}

	logger.Info().Str("debt", position.Debt.String()).Msg("synths burned")
	return s.view(position, state), nil
}

// Liquidate closes an undercollateralized position. The liquidator pays the
// position's entire debt from their own synth balance and receives the
// collateral minus the penalty, which goes to the penalty account. The
// position is zeroed and totals are decremented before any transfer runs.
func (s *Service) Liquidate(liquidator, account string) (*LiquidationResult, error) {
	logger := log.With().
		Str("service", "vault").
		Str("operation", "liquidate").
		Str("account", account).
		Str("liquidator", liquidator).
		Logger()

	if liquidator == account {
		return nil, ErrSelfLiquidation
	}
	if err := s.guard.enter(); err != nil {
		return nil, err
	}
	defer s.guard.exit()

	state, err := s.requireActive()
	if err != nil {
		return nil, err
	}
	if _, err := s.cache.Require("Issuer"); err != nil {
		return nil, err
	}
	if _, err := s.cache.Require("Ledger"); err != nil {
		return nil, err
	}

	position, err := s.db.GetPosition(account)
	if err != nil {
		return nil, err
	}
	if position == nil || position.Debt.Sign() == 0 {
		return nil, ErrPositionHealthy
	}

	price, err := s.liquidationPrice(state)
	if err != nil {
		return nil, err
	}
	ratio := ratioOf(position.Collateral, position.Debt, price)
	if !ratio.LessThan(state.LiquidationRatio) {
		logger.Info().
			Str("ratio", ratio.String()).
			Str("liquidation_ratio", state.LiquidationRatio.String()).
			Msg("liquidation rejected, position healthy")
		return nil, ErrPositionHealthy
	}

	debtToLiquidate := position.Debt
	collateralToSeize := position.Collateral
	penalty := collateralToSeize.Mul(state.LiquidationPenalty).Round(18)
	collateralToLiquidator := collateralToSeize.Sub(penalty)

	err = s.gormDB.Transaction(func(tx *gorm.DB) error {
		txDB := NewDatabase(tx)

		// Zero the position and decrement totals before any transfer
		position.Collateral = decimal.Zero
		position.Debt = decimal.Zero
		position.LastUpdate = s.now()
		if err := txDB.SavePosition(position); err != nil {
			return err
		}

		state.TotalCollateral = state.TotalCollateral.Sub(collateralToSeize)
		state.TotalDebt = state.TotalDebt.Sub(debtToLiquidate)
		if err := txDB.SaveState(state); err != nil {
			return err
		}

		// The liquidator pays the debt from their own balance
		if err := s.issuer.WithTx(tx).Burn(ModuleName, oracle.NativeAssetKey, liquidator, debtToLiquidate); err != nil {
			return err
		}

		txLedger := s.ledger.WithTx(tx)
		if collateralToLiquidator.Sign() > 0 {
			if err := txLedger.Transfer(CollateralAssetKey, CustodyAccount, liquidator, collateralToLiquidator); err != nil {
				return err
			}
		}
		if penalty.Sign() > 0 {
			if err := txLedger.Transfer(CollateralAssetKey, CustodyAccount, s.penaltyAccount, penalty); err != nil {
				return err
			}
		}

		return s.events.WithTx(tx).Record(events.TypePositionLiquidated, CollateralAssetKey, account, map[string]interface{}{
			"liquidator":          liquidator,
			"debt_burned":         debtToLiquidate.String(),
			"collateral_seized":   collateralToSeize.String(),
			"penalty":             penalty.String(),
			"ratio":               ratio.String(),
			"price_source":        state.PriceSource,
		})
	})
	if err != nil {
		logger.Error().Err(err).Msg("liquidation failed")
		return nil, err
	}

	logger.Info().
		Str("debt_burned", debtToLiquidate.String()).
		Str("collateral_seized", collateralToSeize.String()).
		Str("penalty", penalty.String()).
		Msg("position liquidated")

	return &LiquidationResult{
		Account:              account,
		Liquidator:           liquidator,
		DebtBurned:           debtToLiquidate,
		CollateralSeized:     collateralToSeize,
		CollateralToCaller:   collateralToLiquidator,
		Penalty:              penalty,
		PenaltyRecipient:     s.penaltyAccount,
		RatioAtLiquidation:   ratio,
		PriceSourceConsulted: state.PriceSource,
	}, nil
}

// Position returns the view for an account. An account never seen behaves as
// an empty position.
func (s *Service) Position(account string) (*PositionView, error) {
	state, err := s.db.GetState()
	if err != nil {
		return nil, err
	}

	position, err := s.db.GetPosition(account)
	if err != nil {
		return nil, err
	}
	if position == nil {
		position = &Position{Account: account, Collateral: decimal.Zero, Debt: decimal.Zero}
	}
	return s.view(position, state), nil
}

// CollateralRatio returns an account's current collateralization ratio,
// RatioInfinite for zero debt
func (s *Service) CollateralRatio(account string) (decimal.Decimal, error) {
	state, err := s.db.GetState()
	if err != nil {
		return decimal.Zero, err
	}

	position, err := s.db.GetPosition(account)
	if err != nil {
		return decimal.Zero, err
	}
	if position == nil || position.Debt.Sign() == 0 {
		return RatioInfinite, nil
	}

	price, err := s.liquidationPrice(state)
	if err != nil {
		return decimal.Zero, err
	}
	return ratioOf(position.Collateral, position.Debt, price), nil
}

// IsLiquidatable reports whether an account's position is below the
// liquidation line. It consults the same price source and ratio computation
// as Liquidate, so the predicate and the ratio never disagree.
func (s *Service) IsLiquidatable(account string) (bool, error) {
	state, err := s.db.GetState()
	if err != nil {
		return false, err
	}

	position, err := s.db.GetPosition(account)
	if err != nil {
		return false, err
	}
	if position == nil || position.Debt.Sign() == 0 {
		return false, nil
	}

	price, err := s.liquidationPrice(state)
	if err != nil {
		return false, err
	}
	return ratioOf(position.Collateral, position.Debt, price).LessThan(state.LiquidationRatio), nil
}

// Summary returns the vault-wide diagnostic view, including a recheck of the
// totals invariant against the position table
func (s *Service) Summary() (*Summary, error) {
	state, err := s.db.GetState()
	if err != nil {
		return nil, err
	}

	positions, err := s.db.ListPositions()
	if err != nil {
		return nil, err
	}

	sumCollateral, sumDebt := decimal.Zero, decimal.Zero
	for _, p := range positions {
		sumCollateral = sumCollateral.Add(p.Collateral)
		sumDebt = sumDebt.Add(p.Debt)
	}

	return &Summary{
		TotalCollateral:    state.TotalCollateral,
		TotalDebt:          state.TotalDebt,
		Active:             state.Active,
		MinCollateralRatio: state.MinCollateralRatio,
		LiquidationRatio:   state.LiquidationRatio,
		LiquidationPenalty: state.LiquidationPenalty,
		PriceSource:        state.PriceSource,
		Positions:          len(positions),
		TotalsConsistent:   state.TotalCollateral.Equal(sumCollateral) && state.TotalDebt.Equal(sumDebt),
	}, nil
}

// Admin setters. Changes take effect immediately and apply retroactively to
// every position on its next evaluation.

func (s *Service) SetMinCollateralRatio(ratio decimal.Decimal) error {
	if ratio.Sign() <= 0 {
		return ErrInvalidParameter
	}
	return s.updateState(func(state *State) {
		state.MinCollateralRatio = ratio
	}, "min_collateral_ratio", ratio.String())
}

func (s *Service) SetLiquidationRatio(ratio decimal.Decimal) error {
	if ratio.Sign() <= 0 {
		return ErrInvalidParameter
	}
	return s.updateState(func(state *State) {
		state.LiquidationRatio = ratio
	}, "liquidation_ratio", ratio.String())
}

func (s *Service) SetLiquidationPenalty(penalty decimal.Decimal) error {
	if penalty.Sign() < 0 || !penalty.LessThan(decimal.NewFromInt(1)) {
		return ErrInvalidParameter
	}
	return s.updateState(func(state *State) {
		state.LiquidationPenalty = penalty
	}, "liquidation_penalty", penalty.String())
}

// SetPriceSource selects which feed the liquidation check consults
func (s *Service) SetPriceSource(source string) error {
	if source != config.PriceSourceSpot && source != config.PriceSourceSettlement {
		return ErrInvalidParameter
	}
	return s.updateState(func(state *State) {
		state.PriceSource = source
	}, "price_source", source)
}

// SetActive toggles the system-wide pause switch
func (s *Service) SetActive(active bool) error {
	state, err := s.db.GetState()
	if err != nil {
		return err
	}

	state.Active = active
	if err := s.db.SaveState(state); err != nil {
		return err
	}

	eventType := events.TypeSystemResumed
	if !active {
		eventType = events.TypeSystemPaused
	}
	log.Info().Str("service", "vault").Bool("active", active).Msg("pause switch updated")
	return s.events.Record(eventType, "", "", nil)
}

func (s *Service) updateState(apply func(*State), param, value string) error {
	state, err := s.db.GetState()
	if err != nil {
		return err
	}

	apply(state)
	if err := s.db.SaveState(state); err != nil {
		return err
	}

	log.Info().
		Str("service", "vault").
		Str("param", param).
		Str("value", value).
		Msg("risk parameter updated")
	return s.events.Record(events.TypeRiskParamUpdated, "", "", map[string]interface{}{
		"param": param,
		"value": value,
	})
}

// ratioOf computes collateral value over debt at 18-digit precision.
// Zero debt reports RatioInfinite.
func ratioOf(collateral, debt, price decimal.Decimal) decimal.Decimal {
	if debt.Sign() == 0 {
		return RatioInfinite
	}
	return collateral.Mul(price).DivRound(debt, 18)
}

func (s *Service) requireActive() (*State, error) {
	state, err := s.db.GetState()
	if err != nil {
		return nil, err
	}
	if !state.Active {
		return nil, ErrSystemPaused
	}
	return state, nil
}

// spotPrice returns the live collateral price used by mint/withdraw ratio
// checks. An invalid price blocks the operation rather than risking a
// mispriced health check.
func (s *Service) spotPrice() (decimal.Decimal, error) {
	if _, err := s.cache.Require("PriceOracle"); err != nil {
		return decimal.Zero, err
	}

	result, err := s.oracle.GetPrice(CollateralAssetKey)
	if err != nil {
		return decimal.Zero, err
	}
	if !result.Valid {
		return decimal.Zero, ErrInvalidPrice
	}
	return result.Price, nil
}

// liquidationPrice returns the collateral price from the configured source.
// The settlement path reads the delayed OSM feed; the spot path matches the
// reference behavior.
func (s *Service) liquidationPrice(state *State) (decimal.Decimal, error) {
	if state.PriceSource == config.PriceSourceSettlement {
		if _, err := s.cache.Require("PriceOracle"); err != nil {
			return decimal.Zero, err
		}
		result, err := s.oracle.GetSettlementPrice(CollateralAssetKey)
		if err != nil {
			return decimal.Zero, err
		}
		if !result.Valid {
			return decimal.Zero, ErrInvalidPrice
		}
		return result.Price, nil
	}
	return s.spotPrice()
}

func (s *Service) view(position *Position, state *State) *PositionView {
	view := &PositionView{
		Account:         position.Account,
		Collateral:      position.Collateral,
		Debt:            position.Debt,
		CollateralRatio: RatioInfinite,
		LastUpdate:      position.LastUpdate,
	}

	if position.Debt.Sign() > 0 {
		price, err := s.liquidationPrice(state)
		if err != nil {
			// Views degrade on invalid prices instead of failing
			view.CollateralRatio = decimal.Zero
			return view
		}
		view.CollateralRatio = ratioOf(position.Collateral, position.Debt, price)
		view.Liquidatable = view.CollateralRatio.LessThan(state.LiquidationRatio)
	}
	return view
}

func (s *Service) opLogger(operation, account string, amount decimal.Decimal) zerolog.Logger {
	return log.With().
		Str("service", "vault").
		Str("operation", operation).
		Str("account", account).
		Str("amount", amount.String()).
		Logger()
}
