package issuer

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mintforge/synth-api/internal/events"
	"github.com/mintforge/synth-api/internal/ledger"
	"github.com/mintforge/synth-api/internal/oracle"
	"github.com/mintforge/synth-api/internal/registry"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testEnv struct {
	issuer *Service
	ledger *ledger.Service
	oracle *oracle.Service
}

func setupIssuer(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&SyntheticAsset{}, &AuthorizedMinter{},
		&ledger.Balance{}, &ledger.Allowance{},
		&oracle.PriceFeed{}, &oracle.SettlementPrice{}, &oracle.OSMConfig{},
		&registry.NameRecord{},
		&events.Event{},
	))

	recorder := events.NewRecorder(db)
	ledgerSvc := ledger.NewService(db)
	oracleSvc := oracle.NewService(db, recorder)
	registrySvc := registry.NewService(db, recorder)
	issuerSvc := NewService(db, ledgerSvc, oracleSvc, recorder)

	require.NoError(t, registrySvc.ImportAddresses(
		[]string{"Ledger", "PriceOracle"},
		[]string{"ledger-module", "oracle-module"},
	))
	require.NoError(t, issuerSvc.Cache().Rebuild(registrySvc))

	return &testEnv{issuer: issuerSvc, ledger: ledgerSvc, oracle: oracleSvc}
}

func TestAddAssetAndDuplicate(t *testing.T) {
	env := setupIssuer(t)

	require.NoError(t, env.issuer.AddAsset("mBTC", "Synthetic Bitcoin"))

	registered, err := env.issuer.IsRegistered("mBTC")
	require.NoError(t, err)
	assert.True(t, registered)

	err = env.issuer.AddAsset("mBTC", "Synthetic Bitcoin")
	assert.ErrorIs(t, err, ErrAssetExists)

	assets, err := env.issuer.Assets()
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "Synthetic Bitcoin", assets[0].Description)
}

func TestRemoveAssetRequiresZeroSupply(t *testing.T) {
	env := setupIssuer(t)
	require.NoError(t, env.issuer.AddAsset("mBTC", ""))
	require.NoError(t, env.issuer.AuthorizeVault("vault-module"))
	require.NoError(t, env.issuer.Issue("vault-module", "mBTC", "alice", dec("2")))

	err := env.issuer.RemoveAsset("mBTC")
	assert.ErrorIs(t, err, ErrOutstandingSupply)

	require.NoError(t, env.issuer.Burn("vault-module", "mBTC", "alice", dec("2")))
	require.NoError(t, env.issuer.RemoveAsset("mBTC"))

	registered, err := env.issuer.IsRegistered("mBTC")
	require.NoError(t, err)
	assert.False(t, registered)

	assert.ErrorIs(t, env.issuer.RemoveAsset("mBTC"), ErrAssetNotRegistered)
}

func TestAllowlistGatesIssueAndBurn(t *testing.T) {
	env := setupIssuer(t)
	require.NoError(t, env.issuer.AddAsset("mUSD", ""))

	err := env.issuer.Issue("rogue-module", "mUSD", "alice", dec("100"))
	assert.ErrorIs(t, err, ErrNotAuthorized)

	require.NoError(t, env.issuer.AuthorizeVault("vault-module"))
	require.NoError(t, env.issuer.AuthorizeVault("vault-module")) // idempotent
	require.NoError(t, env.issuer.Issue("vault-module", "mUSD", "alice", dec("100")))

	balance, err := env.ledger.BalanceOf("mUSD", "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("100")))

	require.NoError(t, env.issuer.RevokeVault("vault-module"))
	require.NoError(t, env.issuer.RevokeVault("vault-module")) // idempotent
	err = env.issuer.Burn("vault-module", "mUSD", "alice", dec("40"))
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestIssueValidation(t *testing.T) {
	env := setupIssuer(t)
	require.NoError(t, env.issuer.AuthorizeVault("vault-module"))

	err := env.issuer.Issue("vault-module", "mXAU", "alice", dec("1"))
	assert.ErrorIs(t, err, ErrAssetNotRegistered)

	require.NoError(t, env.issuer.AddAsset("mXAU", ""))
	err = env.issuer.Issue("vault-module", "mXAU", "alice", decimal.Zero)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	err = env.issuer.Burn("vault-module", "mXAU", "alice", dec("-1"))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestTotalIssuedValueSkipsUnpricedAssets(t *testing.T) {
	env := setupIssuer(t)
	require.NoError(t, env.issuer.AddAsset("mUSD", ""))
	require.NoError(t, env.issuer.AddAsset("mBTC", ""))
	require.NoError(t, env.issuer.AuthorizeVault("vault-module"))

	// mUSD is the native unit and always prices at parity; mBTC has no feed
	require.NoError(t, env.issuer.Issue("vault-module", "mUSD", "alice", dec("5000")))
	require.NoError(t, env.issuer.Issue("vault-module", "mBTC", "alice", dec("1")))

	value, err := env.issuer.TotalIssuedValue()
	require.NoError(t, err)
	assert.True(t, value.Total.Equal(dec("5000")))
	assert.Equal(t, []string{"mBTC"}, value.Skipped)
	require.Len(t, value.Assets, 1)
	assert.Equal(t, "mUSD", value.Assets[0].AssetKey)

	// Once mBTC gets a valid price it joins the total
	require.NoError(t, env.oracle.SetManualPrice("mBTC", dec("100000")))
	value, err = env.issuer.TotalIssuedValue()
	require.NoError(t, err)
	assert.True(t, value.Total.Equal(dec("105000")))
	assert.Empty(t, value.Skipped)

	supply, err := env.issuer.TotalIssued("mBTC")
	require.NoError(t, err)
	assert.True(t, supply.Equal(dec("1")))
}
