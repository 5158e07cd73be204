package ledger

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Balance{}, &Allowance{}))
	return db
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestIssueAndBalance(t *testing.T) {
	svc := NewService(setupDB(t))

	require.NoError(t, svc.Issue("mUSD", "alice", dec("100.5")))
	require.NoError(t, svc.Issue("mUSD", "alice", dec("0.5")))

	balance, err := svc.BalanceOf("mUSD", "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("101")), "got %s", balance)

	// Untouched accounts read zero
	balance, err = svc.BalanceOf("mUSD", "bob")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())
}

func TestIssueRejectsNonPositive(t *testing.T) {
	svc := NewService(setupDB(t))

	assert.ErrorIs(t, svc.Issue("mUSD", "alice", decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, svc.Issue("mUSD", "alice", dec("-1")), ErrInvalidAmount)
}

func TestBurn(t *testing.T) {
	svc := NewService(setupDB(t))
	require.NoError(t, svc.Issue("mUSD", "alice", dec("10")))

	require.NoError(t, svc.Burn("mUSD", "alice", dec("4")))

	balance, err := svc.BalanceOf("mUSD", "alice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(dec("6")))

	assert.ErrorIs(t, svc.Burn("mUSD", "alice", dec("7")), ErrInsufficientBalance)
	assert.ErrorIs(t, svc.Burn("mUSD", "nobody", dec("1")), ErrInsufficientBalance)
}

func TestTransfer(t *testing.T) {
	svc := NewService(setupDB(t))
	require.NoError(t, svc.Issue("ETH", "alice", dec("3")))

	require.NoError(t, svc.Transfer("ETH", "alice", "bob", dec("1.25")))

	aliceBalance, err := svc.BalanceOf("ETH", "alice")
	require.NoError(t, err)
	bobBalance, err := svc.BalanceOf("ETH", "bob")
	require.NoError(t, err)
	assert.True(t, aliceBalance.Equal(dec("1.75")))
	assert.True(t, bobBalance.Equal(dec("1.25")))

	assert.ErrorIs(t, svc.Transfer("ETH", "alice", "bob", dec("2")), ErrInsufficientBalance)
}

func TestApproveAndTransferFrom(t *testing.T) {
	svc := NewService(setupDB(t))
	require.NoError(t, svc.Issue("ETH", "alice", dec("10")))
	require.NoError(t, svc.Approve("ETH", "alice", "vault-module", dec("4")))

	require.NoError(t, svc.TransferFrom("ETH", "vault-module", "alice", "vault-module", dec("3")))

	custody, err := svc.BalanceOf("ETH", "vault-module")
	require.NoError(t, err)
	assert.True(t, custody.Equal(dec("3")))

	// Allowance is drawn down, not reset
	err = svc.TransferFrom("ETH", "vault-module", "alice", "vault-module", dec("2"))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, svc.TransferFrom("ETH", "vault-module", "alice", "vault-module", dec("1")))
}

func TestTransferFromWithoutApproval(t *testing.T) {
	svc := NewService(setupDB(t))
	require.NoError(t, svc.Issue("ETH", "alice", dec("10")))

	err := svc.TransferFrom("ETH", "vault-module", "alice", "vault-module", dec("1"))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)
}

func TestTotalSupplyTracksIssueAndBurn(t *testing.T) {
	svc := NewService(setupDB(t))
	require.NoError(t, svc.Issue("mUSD", "alice", dec("100")))
	require.NoError(t, svc.Issue("mUSD", "bob", dec("50")))
	require.NoError(t, svc.Burn("mUSD", "alice", dec("30")))

	supply, err := svc.TotalSupply("mUSD")
	require.NoError(t, err)
	assert.True(t, supply.Equal(dec("120")), "got %s", supply)

	// Transfers move balances without changing supply
	require.NoError(t, svc.Transfer("mUSD", "bob", "alice", dec("10")))
	supply, err = svc.TotalSupply("mUSD")
	require.NoError(t, err)
	assert.True(t, supply.Equal(dec("120")))
}
