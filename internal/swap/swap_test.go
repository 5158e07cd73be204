package swap

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

	"github.com/mintforge/synth-api/internal/events"
	"github.com/mintforge/synth-api/internal/issuer"
	"github.com/mintforge/synth-api/internal/ledger"
	"github.com/mintforge/synth-api/internal/oracle"
	"github.com/mintforge/synth-api/internal/registry"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testEnv struct {
	swap   *Service
	ledger *ledger.Service
	issuer *issuer.Service
	oracle *oracle.Service
	clock  time.Time
}

func setupSwap(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&Config{}, &FeePool{},
		&ledger.Balance{}, &ledger.Allowance{},
		&oracle.PriceFeed{}, &oracle.SettlementPrice{}, &oracle.OSMConfig{},
		&issuer.SyntheticAsset{}, &issuer.AuthorizedMinter{},
		&registry.NameRecord{},
		&events.Event{},
	))

	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recorder := events.NewRecorder(db)
	ledgerSvc := ledger.NewService(db)
	oracleSvc := oracle.NewService(db, recorder)
	oracleSvc.SetClock(func() time.Time { return clock })
	registrySvc := registry.NewService(db, recorder)
	issuerSvc := issuer.NewService(db, ledgerSvc, oracleSvc, recorder)
	swapSvc := NewService(db, issuerSvc, oracleSvc, recorder)

	require.NoError(t, registrySvc.ImportAddresses(
		[]string{"Ledger", "PriceOracle", "Issuer"},
		[]string{"ledger-module", "oracle-module", "issuer-module"},
	))
	require.NoError(t, issuerSvc.Cache().Rebuild(registrySvc))
	require.NoError(t, swapSvc.Cache().Rebuild(registrySvc))

	require.NoError(t, issuerSvc.AddAsset(oracle.NativeAssetKey, "Synthetic US dollar"))
	require.NoError(t, issuerSvc.AddAsset("mBTC", "Synthetic Bitcoin"))
	require.NoError(t, issuerSvc.AuthorizeVault(ModuleName))
	require.NoError(t, oracleSvc.SetManualPrice("mBTC", dec("100000")))

	return &testEnv{swap: swapSvc, ledger: ledgerSvc, issuer: issuerSvc, oracle: oracleSvc, clock: clock}
}

// seed mints synths into an account for swapping, bypassing the vault
func (env *testEnv) seed(t *testing.T, assetKey, account string, amount decimal.Decimal) {
	t.Helper()
	require.NoError(t, env.ledger.Issue(assetKey, account, amount))
}

func TestPreviewSwap(t *testing.T) {
	env := setupSwap(t)

	// 1000 mUSD into mBTC at 100000: 0.01 raw, 0.3% fee of 0.00003
	quote, err := env.swap.PreviewSwap(oracle.NativeAssetKey, "mBTC", dec("1000"))
	require.NoError(t, err)
	assert.True(t, quote.AmountOut.Equal(dec("0.00997")))
	assert.True(t, quote.Fee.Equal(dec("0.00003")))
	assert.True(t, quote.FromPrice.Equal(dec("1")))
	assert.True(t, quote.ToPrice.Equal(dec("100000")))
}

func TestPreviewValidation(t *testing.T) {
	env := setupSwap(t)

	_, err := env.swap.PreviewSwap("mBTC", "mBTC", dec("1"))
	assert.ErrorIs(t, err, ErrSameAsset)

	_, err = env.swap.PreviewSwap(oracle.NativeAssetKey, "mBTC", decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = env.swap.PreviewSwap(oracle.NativeAssetKey, "mXAU", dec("1"))
	assert.ErrorIs(t, err, ErrAssetNotRegistered)

	// A registered asset with no feed cannot be priced
	require.NoError(t, env.issuer.AddAsset("mXAU", ""))
	_, err = env.swap.PreviewSwap(oracle.NativeAssetKey, "mXAU", dec("1"))
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestSwapBurnsAndMints(t *testing.T) {
	env := setupSwap(t)
	env.seed(t, oracle.NativeAssetKey, "alice", dec("1500"))

	receipt, err := env.swap.Swap("alice", oracle.NativeAssetKey, "mBTC", dec("1000"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, receipt.AmountOut.Equal(dec("0.00997")))
	assert.True(t, receipt.Fee.Equal(dec("0.00003")))

	musd, err := env.ledger.BalanceOf(oracle.NativeAssetKey, "alice")
	require.NoError(t, err)
	assert.True(t, musd.Equal(dec("500")))
	mbtc, err := env.ledger.BalanceOf("mBTC", "alice")
	require.NoError(t, err)
	assert.True(t, mbtc.Equal(dec("0.00997")))

	// Supply moved across assets: the burn shrank mUSD, the mint grew mBTC
	musdSupply, err := env.ledger.TotalSupply(oracle.NativeAssetKey)
	require.NoError(t, err)
	assert.True(t, musdSupply.Equal(dec("500")))
	mbtcSupply, err := env.ledger.TotalSupply("mBTC")
	require.NoError(t, err)
	assert.True(t, mbtcSupply.Equal(dec("0.00997")))

	// The fee accrued to the destination pool, not to any balance
	pools, err := env.swap.FeePools()
	require.NoError(t, err)
	require.Len(t, pools, 1)
	assert.Equal(t, "mBTC", pools[0].AssetKey)
	assert.True(t, pools[0].Accrued.Equal(dec("0.00003")))
}

func TestSwapSlippageProtection(t *testing.T) {
	env := setupSwap(t)
	env.seed(t, oracle.NativeAssetKey, "alice", dec("1000"))

	_, err := env.swap.Swap("alice", oracle.NativeAssetKey, "mBTC", dec("1000"), dec("0.00998"))
	assert.ErrorIs(t, err, ErrSlippageExceeded)

	// The rejected swap left balances untouched
	musd, err := env.ledger.BalanceOf(oracle.NativeAssetKey, "alice")
	require.NoError(t, err)
	assert.True(t, musd.Equal(dec("1000")))

	_, err = env.swap.Swap("alice", oracle.NativeAssetKey, "mBTC", dec("1000"), dec("0.00997"))
	require.NoError(t, err)
}

func TestSwapInsufficientBalance(t *testing.T) {
	env := setupSwap(t)
	env.seed(t, oracle.NativeAssetKey, "alice", dec("10"))

	_, err := env.swap.Swap("alice", oracle.NativeAssetKey, "mBTC", dec("1000"), decimal.Zero)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
}

func TestSetFeeRate(t *testing.T) {
	env := setupSwap(t)

	assert.ErrorIs(t, env.swap.SetFeeRate(dec("0.11")), ErrFeeTooHigh)
	assert.ErrorIs(t, env.swap.SetFeeRate(dec("-0.01")), ErrFeeTooHigh)

	require.NoError(t, env.swap.SetFeeRate(dec("0.01")))
	rate, err := env.swap.FeeRate()
	require.NoError(t, err)
	assert.True(t, rate.Equal(dec("0.01")))

	// A zero fee swaps at the raw oracle rate
	require.NoError(t, env.swap.SetFeeRate(decimal.Zero))
	env.seed(t, oracle.NativeAssetKey, "alice", dec("1000"))
	receipt, err := env.swap.Swap("alice", oracle.NativeAssetKey, "mBTC", dec("1000"), decimal.Zero)
	require.NoError(t, err)
	assert.True(t, receipt.AmountOut.Equal(dec("0.01")))
	assert.True(t, receipt.Fee.IsZero())

	pools, err := env.swap.FeePools()
	require.NoError(t, err)
	assert.Empty(t, pools)
}

func TestWithdrawFees(t *testing.T) {
	env := setupSwap(t)
	env.seed(t, oracle.NativeAssetKey, "alice", dec("1000"))
	_, err := env.swap.Swap("alice", oracle.NativeAssetKey, "mBTC", dec("1000"), decimal.Zero)
	require.NoError(t, err)

	supplyBefore, err := env.ledger.TotalSupply("mBTC")
	require.NoError(t, err)

	amount, err := env.swap.WithdrawFees("mBTC", "treasury")
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("0.00003")))

	// Withdrawal mints: supply grows by the accrued amount
	supplyAfter, err := env.ledger.TotalSupply("mBTC")
	require.NoError(t, err)
	assert.True(t, supplyAfter.Sub(supplyBefore).Equal(dec("0.00003")))
	treasury, err := env.ledger.BalanceOf("mBTC", "treasury")
	require.NoError(t, err)
	assert.True(t, treasury.Equal(dec("0.00003")))

	// The pool is zeroed; a second withdrawal finds nothing
	_, err = env.swap.WithdrawFees("mBTC", "treasury")
	assert.ErrorIs(t, err, ErrNoAccruedFees)

	_, err = env.swap.WithdrawFees("mXAU", "treasury")
	assert.ErrorIs(t, err, ErrNoAccruedFees)
}
