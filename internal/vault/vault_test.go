package vault

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mintforge/synth-api/internal/config"
	"github.com/mintforge/synth-api/internal/events"
	"github.com/mintforge/synth-api/internal/issuer"
	"github.com/mintforge/synth-api/internal/ledger"
	"github.com/mintforge/synth-api/internal/oracle"
	"github.com/mintforge/synth-api/internal/registry"
)

const penaltyAccount = "protocol-admin"

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testClock struct {
	current time.Time
}

func (c *testClock) now() time.Time {
	return c.current
}

func (c *testClock) advance(d time.Duration) {
	c.current = c.current.Add(d)
}

type testEnv struct {
	vault  *Service
	ledger *ledger.Service
	issuer *issuer.Service
	oracle *oracle.Service
	clock  *testClock
}

func setupVault(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&Position{}, &State{},
		&ledger.Balance{}, &ledger.Allowance{},
		&oracle.PriceFeed{}, &oracle.SettlementPrice{}, &oracle.OSMConfig{},
		&issuer.SyntheticAsset{}, &issuer.AuthorizedMinter{},
		&registry.NameRecord{},
		&events.Event{},
	))

	clock := &testClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	recorder := events.NewRecorder(db)
	ledgerSvc := ledger.NewService(db)
	oracleSvc := oracle.NewService(db, recorder)
	oracleSvc.SetClock(clock.now)
	registrySvc := registry.NewService(db, recorder)
	issuerSvc := issuer.NewService(db, ledgerSvc, oracleSvc, recorder)
	vaultSvc := NewService(db, ledgerSvc, issuerSvc, oracleSvc, recorder, penaltyAccount)
	vaultSvc.SetClock(clock.now)

	require.NoError(t, registrySvc.ImportAddresses(
		[]string{"Ledger", "PriceOracle", "Issuer", "CollateralVault", "SwapEngine"},
		[]string{"ledger-module", "oracle-module", "issuer-module", "vault-module", "swap-module"},
	))
	require.NoError(t, issuerSvc.Cache().Rebuild(registrySvc))
	require.NoError(t, vaultSvc.Cache().Rebuild(registrySvc))

	require.NoError(t, issuerSvc.AddAsset(oracle.NativeAssetKey, "Synthetic US dollar"))
	require.NoError(t, issuerSvc.AuthorizeVault(ModuleName))
	require.NoError(t, oracleSvc.SetManualPrice(CollateralAssetKey, dec("2000")))

	return &testEnv{vault: vaultSvc, ledger: ledgerSvc, issuer: issuerSvc, oracle: oracleSvc, clock: clock}
}

// fund seeds an account with collateral and approves vault custody for it
func (env *testEnv) fund(t *testing.T, account string, amount decimal.Decimal) {
	t.Helper()
	require.NoError(t, env.ledger.Issue(CollateralAssetKey, account, amount))
	require.NoError(t, env.ledger.Approve(CollateralAssetKey, account, CustodyAccount, amount))
}

func TestDepositMintLifecycle(t *testing.T) {
	env := setupVault(t)
	env.fund(t, "alice", dec("1"))

	view, err := env.vault.Deposit("alice", dec("1"))
	require.NoError(t, err)
	assert.True(t, view.Collateral.Equal(dec("1")))

	// Collateral moved into custody
	balance, err := env.ledger.BalanceOf(CollateralAssetKey, "alice")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
	custody, err := env.ledger.BalanceOf(CollateralAssetKey, CustodyAccount)
	require.NoError(t, err)
	assert.True(t, custody.Equal(dec("1")))

	// 1 ETH at 2000 backing 1000 mUSD is a 2.0 ratio
	view, err = env.vault.Mint("alice", dec("1000"))
	require.NoError(t, err)
	assert.True(t, view.Debt.Equal(dec("1000")))
	assert.True(t, view.CollateralRatio.Equal(dec("2")))
	assert.False(t, view.Liquidatable)

	minted, err := env.ledger.BalanceOf(oracle.NativeAssetKey, "alice")
	require.NoError(t, err)
	assert.True(t, minted.Equal(dec("1000")))

	view, err = env.vault.Burn("alice", dec("400"))
	require.NoError(t, err)
	assert.True(t, view.Debt.Equal(dec("600")))

	summary, err := env.vault.Summary()
	require.NoError(t, err)
	assert.True(t, summary.TotalCollateral.Equal(dec("1")))
	assert.True(t, summary.TotalDebt.Equal(dec("600")))
	assert.True(t, summary.TotalsConsistent)
}

func TestDepositRequiresApproval(t *testing.T) {
	env := setupVault(t)
	require.NoError(t, env.ledger.Issue(CollateralAssetKey, "alice", dec("1")))

	_, err := env.vault.Deposit("alice", dec("1"))
	assert.ErrorIs(t, err, ledger.ErrInsufficientAllowance)

	// Nothing changed
	summary, err := env.vault.Summary()
	require.NoError(t, err)
	assert.True(t, summary.TotalCollateral.IsZero())
}

func TestMintAtExactMinimumRatio(t *testing.T) {
	env := setupVault(t)
	require.NoError(t, env.oracle.SetManualPrice(CollateralAssetKey, dec("1500")))
	env.fund(t, "alice", dec("1"))
	_, err := env.vault.Deposit("alice", dec("1"))
	require.NoError(t, err)

	// 1500/1000 is exactly the 1.5 minimum: allowed
	_, err = env.vault.Mint("alice", dec("1000"))
	require.NoError(t, err)

	// Any further debt breaches it
	_, err = env.vault.Mint("alice", dec("1"))
	assert.ErrorIs(t, err, ErrRatioTooLow)
}

func TestWithdrawGuardsRatio(t *testing.T) {
	env := setupVault(t)
	env.fund(t, "alice", dec("1"))
	_, err := env.vault.Deposit("alice", dec("1"))
	require.NoError(t, err)
	_, err = env.vault.Mint("alice", dec("1000"))
	require.NoError(t, err)

	// 0.8 ETH at 2000 over 1000 debt is 1.6: fine
	view, err := env.vault.Withdraw("alice", dec("0.2"))
	require.NoError(t, err)
	assert.True(t, view.Collateral.Equal(dec("0.8")))

	balance, err := env.ledger.BalanceOf(CollateralAssetKey, "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("0.2")))

	// 0.7 ETH would put the ratio at 1.4
	_, err = env.vault.Withdraw("alice", dec("0.1"))
	assert.ErrorIs(t, err, ErrRatioTooLow)

	_, err = env.vault.Withdraw("alice", dec("5"))
	assert.ErrorIs(t, err, ErrInsufficientCollateral)
}

func TestWithdrawWithoutDebtSkipsRatioCheck(t *testing.T) {
	env := setupVault(t)
	env.fund(t, "alice", dec("3"))
	_, err := env.vault.Deposit("alice", dec("3"))
	require.NoError(t, err)

	// No debt: even an invalid price cannot block withdrawal
	env.clock.advance(oracle.StalePeriod + time.Minute)
	view, err := env.vault.Withdraw("alice", dec("3"))
	require.NoError(t, err)
	assert.True(t, view.Collateral.IsZero())
}

func TestBurnExceedingDebt(t *testing.T) {
	env := setupVault(t)
	env.fund(t, "alice", dec("1"))
	_, err := env.vault.Deposit("alice", dec("1"))
	require.NoError(t, err)
	_, err = env.vault.Mint("alice", dec("500"))
	require.NoError(t, err)

	_, err = env.vault.Burn("alice", dec("501"))
	assert.ErrorIs(t, err, ErrInsufficientDebt)
}

func TestAmountValidation(t *testing.T) {
	env := setupVault(t)

	_, err := env.vault.Deposit("alice", decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = env.vault.Withdraw("alice", dec("-1"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = env.vault.Mint("alice", decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = env.vault.Burn("alice", dec("-3"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPauseBlocksOperations(t *testing.T) {
	env := setupVault(t)
	env.fund(t, "alice", dec("1"))
	require.NoError(t, env.vault.SetActive(false))

	_, err := env.vault.Deposit("alice", dec("1"))
	assert.ErrorIs(t, err, ErrSystemPaused)
	_, err = env.vault.Mint("alice", dec("100"))
	assert.ErrorIs(t, err, ErrSystemPaused)

	require.NoError(t, env.vault.SetActive(true))
	_, err = env.vault.Deposit("alice", dec("1"))
	require.NoError(t, err)
}

func TestLiquidation(t *testing.T) {
	env := setupVault(t)
	env.fund(t, "alice", dec("1"))
	_, err := env.vault.Deposit("alice", dec("1"))
	require.NoError(t, err)
	_, err = env.vault.Mint("alice", dec("1000"))
	require.NoError(t, err)

	// Healthy at 2000: not liquidatable
	liquidatable, err := env.vault.IsLiquidatable("alice")
	require.NoError(t, err)
	assert.False(t, liquidatable)
	_, err = env.vault.Liquidate("bob", "alice")
	assert.ErrorIs(t, err, ErrPositionHealthy)

	// Crash: 1100/1000 = 1.1 sits below the 1.2 liquidation line
	require.NoError(t, env.oracle.SetManualPrice(CollateralAssetKey, dec("1100")))
	liquidatable, err = env.vault.IsLiquidatable("alice")
	require.NoError(t, err)
	assert.True(t, liquidatable)

	_, err = env.vault.Liquidate("alice", "alice")
	assert.ErrorIs(t, err, ErrSelfLiquidation)

	// Bob funds his own position to obtain the synths that pay the debt
	env.fund(t, "bob", dec("2"))
	_, err = env.vault.Deposit("bob", dec("2"))
	require.NoError(t, err)
	_, err = env.vault.Mint("bob", dec("1000"))
	require.NoError(t, err)

	result, err := env.vault.Liquidate("bob", "alice")
	require.NoError(t, err)
	assert.True(t, result.DebtBurned.Equal(dec("1000")))
	assert.True(t, result.CollateralSeized.Equal(dec("1")))
	assert.True(t, result.Penalty.Equal(dec("0.1")))
	assert.True(t, result.CollateralToCaller.Equal(dec("0.9")))
	assert.Equal(t, penaltyAccount, result.PenaltyRecipient)
	assert.Equal(t, config.PriceSourceSpot, result.PriceSourceConsulted)

	// Bob paid with his minted synths and received the discounted collateral
	bobSynths, err := env.ledger.BalanceOf(oracle.NativeAssetKey, "bob")
	require.NoError(t, err)
	assert.True(t, bobSynths.IsZero())
	bobETH, err := env.ledger.BalanceOf(CollateralAssetKey, "bob")
	require.NoError(t, err)
	assert.True(t, bobETH.Equal(dec("0.9")))
	penaltyETH, err := env.ledger.BalanceOf(CollateralAssetKey, penaltyAccount)
	require.NoError(t, err)
	assert.True(t, penaltyETH.Equal(dec("0.1")))

	// Alice's position is zeroed, not deleted
	view, err := env.vault.Position("alice")
	require.NoError(t, err)
	assert.True(t, view.Collateral.IsZero())
	assert.True(t, view.Debt.IsZero())

	// Totals reflect only bob's open position and still match the table
	summary, err := env.vault.Summary()
	require.NoError(t, err)
	assert.True(t, summary.TotalCollateral.Equal(dec("2")))
	assert.True(t, summary.TotalDebt.Equal(dec("1000")))
	assert.True(t, summary.TotalsConsistent)
	assert.Equal(t, 2, summary.Positions)
}

func TestLiquidationUsesConfiguredPriceSource(t *testing.T) {
	env := setupVault(t)
	env.fund(t, "alice", dec("1"))
	_, err := env.vault.Deposit("alice", dec("1"))
	require.NoError(t, err)
	_, err = env.vault.Mint("alice", dec("1000"))
	require.NoError(t, err)

	env.fund(t, "bob", dec("4"))
	_, err = env.vault.Deposit("bob", dec("4"))
	require.NoError(t, err)
	_, err = env.vault.Mint("bob", dec("1000"))
	require.NoError(t, err)

	require.NoError(t, env.vault.SetPriceSource(config.PriceSourceSettlement))
	require.NoError(t, env.oracle.SetManualPrice(CollateralAssetKey, dec("1100")))

	// Spot has crashed but the ruling settlement price has not caught up
	require.NoError(t, env.oracle.InitializeSettlementPrice(CollateralAssetKey, dec("2000")))
	liquidatable, err := env.vault.IsLiquidatable("alice")
	require.NoError(t, err)
	assert.False(t, liquidatable)
	_, err = env.vault.Liquidate("bob", "alice")
	assert.ErrorIs(t, err, ErrPositionHealthy)

	// Once the settlement price reflects the crash the position falls
	require.NoError(t, env.oracle.InitializeSettlementPrice(CollateralAssetKey, dec("1100")))
	result, err := env.vault.Liquidate("bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, config.PriceSourceSettlement, result.PriceSourceConsulted)
	assert.True(t, result.RatioAtLiquidation.Equal(dec("1.1")))
}

func TestMintRejectedOnInvalidPrice(t *testing.T) {
	env := setupVault(t)
	env.fund(t, "alice", dec("1"))
	_, err := env.vault.Deposit("alice", dec("1"))
	require.NoError(t, err)

	env.clock.advance(oracle.StalePeriod + time.Minute)
	_, err = env.vault.Mint("alice", dec("100"))
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestCollateralRatioInfiniteWithoutDebt(t *testing.T) {
	env := setupVault(t)
	env.fund(t, "alice", dec("1"))
	_, err := env.vault.Deposit("alice", dec("1"))
	require.NoError(t, err)

	ratio, err := env.vault.CollateralRatio("alice")
	require.NoError(t, err)
	assert.True(t, ratio.Equal(RatioInfinite))

	// An account never seen reads the same way
	ratio, err = env.vault.CollateralRatio("nobody")
	require.NoError(t, err)
	assert.True(t, ratio.Equal(RatioInfinite))
}

func TestRiskParameterValidation(t *testing.T) {
	env := setupVault(t)

	assert.ErrorIs(t, env.vault.SetMinCollateralRatio(decimal.Zero), ErrInvalidParameter)
	assert.ErrorIs(t, env.vault.SetLiquidationRatio(dec("-1")), ErrInvalidParameter)
	assert.ErrorIs(t, env.vault.SetLiquidationPenalty(dec("1")), ErrInvalidParameter)
	assert.ErrorIs(t, env.vault.SetLiquidationPenalty(dec("-0.1")), ErrInvalidParameter)
	assert.ErrorIs(t, env.vault.SetPriceSource("oracle"), ErrInvalidParameter)

	require.NoError(t, env.vault.SetMinCollateralRatio(dec("1.8")))
	require.NoError(t, env.vault.SetLiquidationRatio(dec("1.3")))
	require.NoError(t, env.vault.SetLiquidationPenalty(decimal.Zero))

	summary, err := env.vault.Summary()
	require.NoError(t, err)
	assert.True(t, summary.MinCollateralRatio.Equal(dec("1.8")))
	assert.True(t, summary.LiquidationRatio.Equal(dec("1.3")))
	assert.True(t, summary.LiquidationPenalty.IsZero())
}

func TestParameterChangeAppliesRetroactively(t *testing.T) {
	env := setupVault(t)
	env.fund(t, "alice", dec("1"))
	_, err := env.vault.Deposit("alice", dec("1"))
	require.NoError(t, err)
	_, err = env.vault.Mint("alice", dec("1000"))
	require.NoError(t, err)

	// Ratio 2.0 is healthy under the default 1.2 line
	liquidatable, err := env.vault.IsLiquidatable("alice")
	require.NoError(t, err)
	assert.False(t, liquidatable)

	// Raising the line past 2.0 makes the same position liquidatable
	require.NoError(t, env.vault.SetLiquidationRatio(dec("2.5")))
	liquidatable, err = env.vault.IsLiquidatable("alice")
	require.NoError(t, err)
	assert.True(t, liquidatable)
}
