package registry

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mintforge/synth-api/internal/events"
	"github.com/mintforge/synth-api/pkg/response"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&NameRecord{}, &events.Event{}))
	return NewService(db, events.NewRecorder(db))
}

func TestImportAndGetAddress(t *testing.T) {
	svc := setupService(t)

	require.NoError(t, svc.ImportAddresses(
		[]string{"Ledger", "PriceOracle"},
		[]string{"ledger-module", "oracle-module"},
	))

	address, err := svc.GetAddress("Ledger")
	require.NoError(t, err)
	assert.Equal(t, "ledger-module", address)

	// Missing names resolve to the empty string without failing
	address, err = svc.GetAddress("Issuer")
	require.NoError(t, err)
	assert.Empty(t, address)
}

func TestImportOverwritesExisting(t *testing.T) {
	svc := setupService(t)

	require.NoError(t, svc.ImportAddresses([]string{"Ledger"}, []string{"ledger-v1"}))
	require.NoError(t, svc.ImportAddresses([]string{"Ledger"}, []string{"ledger-v2"}))

	address, err := svc.GetAddress("Ledger")
	require.NoError(t, err)
	assert.Equal(t, "ledger-v2", address)

	records, err := svc.List()
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestImportLengthMismatch(t *testing.T) {
	svc := setupService(t)

	err := svc.ImportAddresses([]string{"Ledger", "Issuer"}, []string{"ledger-module"})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestRequireAndGetAddress(t *testing.T) {
	svc := setupService(t)
	require.NoError(t, svc.ImportAddresses([]string{"Ledger"}, []string{"ledger-module"}))

	address, err := svc.RequireAndGetAddress("Ledger", "required by test")
	require.NoError(t, err)
	assert.Equal(t, "ledger-module", address)

	_, err = svc.RequireAndGetAddress("Issuer", "required by test")
	assert.ErrorIs(t, err, ErrMissingAddress)
	assert.Contains(t, err.Error(), "Issuer")
}

func TestCacheRebuildAndRequire(t *testing.T) {
	svc := setupService(t)
	require.NoError(t, svc.ImportAddresses(
		[]string{"Ledger", "PriceOracle"},
		[]string{"ledger-module", "oracle-module"},
	))

	cache := NewCache("vault", []string{"Ledger", "PriceOracle"})

	// Unbuilt caches fail closed with the missing name in the error
	_, err := cache.Require("Ledger")
	require.Error(t, err)
	assert.ErrorIs(t, err, response.ErrDependency)
	assert.Contains(t, err.Error(), "vault: missing dependency: Ledger")

	require.NoError(t, cache.Rebuild(svc))

	address, err := cache.Require("Ledger")
	require.NoError(t, err)
	assert.Equal(t, "ledger-module", address)
}

func TestCacheRebuildFailsOnMissingName(t *testing.T) {
	svc := setupService(t)
	require.NoError(t, svc.ImportAddresses([]string{"Ledger"}, []string{"ledger-module"}))

	cache := NewCache("vault", []string{"Ledger", "Issuer"})
	err := cache.Rebuild(svc)
	assert.ErrorIs(t, err, ErrMissingAddress)
}

func TestCacheIsCurrent(t *testing.T) {
	svc := setupService(t)
	require.NoError(t, svc.ImportAddresses([]string{"Ledger"}, []string{"ledger-module"}))

	cache := NewCache("issuer", []string{"Ledger"})
	require.NoError(t, cache.Rebuild(svc))

	current, err := cache.IsCurrent(svc)
	require.NoError(t, err)
	assert.True(t, current)

	// A registry update leaves the snapshot stale until the next Rebuild
	require.NoError(t, svc.ImportAddresses([]string{"Ledger"}, []string{"ledger-v2"}))

	current, err = cache.IsCurrent(svc)
	require.NoError(t, err)
	assert.False(t, current)

	address, err := cache.Require("Ledger")
	require.NoError(t, err)
	assert.Equal(t, "ledger-module", address, "stale cache keeps serving the old snapshot")

	require.NoError(t, cache.Rebuild(svc))
	current, err = cache.IsCurrent(svc)
	require.NoError(t, err)
	assert.True(t, current)
}
