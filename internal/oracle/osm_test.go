package oracle

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// freshFeed wires a manual ETH feed the OSM draws its spot readings from
func freshFeed(t *testing.T, svc *Service, price string) {
	t.Helper()
	require.NoError(t, svc.SetManualPrice("ETH", dec(price)))
}

func TestPokeStagesFirstPrice(t *testing.T) {
	svc, clock := setupOracle(t)
	freshFeed(t, svc, "2000")

	require.NoError(t, svc.Poke("ETH"))

	state, err := svc.db.GetSettlement("ETH")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, state.HasNext)
	assert.True(t, state.NextPrice.Equal(dec("2000")))
	assert.Equal(t, clock.now().Add(OSMDelay), state.NextTime)
	assert.False(t, state.CurrentPrice.Sign() > 0, "nothing rules before the delay elapses")
}

func TestPokeWithinDelayIsNoop(t *testing.T) {
	svc, clock := setupOracle(t)
	freshFeed(t, svc, "2000")
	require.NoError(t, svc.Poke("ETH"))

	// The feed moves, but the staged price holds until its due time
	clock.advance(15 * time.Minute)
	freshFeed(t, svc, "1500")
	require.NoError(t, svc.Poke("ETH"))

	state, err := svc.db.GetSettlement("ETH")
	require.NoError(t, err)
	assert.True(t, state.NextPrice.Equal(dec("2000")))
	assert.False(t, state.CurrentPrice.Sign() > 0)
}

func TestPokeAfterDelayActivatesAndRestages(t *testing.T) {
	svc, clock := setupOracle(t)
	freshFeed(t, svc, "2000")
	require.NoError(t, svc.Poke("ETH"))
	stagedDue := clock.now().Add(OSMDelay)

	clock.advance(OSMDelay + time.Minute)
	freshFeed(t, svc, "1800")
	require.NoError(t, svc.Poke("ETH"))

	state, err := svc.db.GetSettlement("ETH")
	require.NoError(t, err)
	assert.True(t, state.CurrentPrice.Equal(dec("2000")))
	// The ruling timestamp is the due time, not the poke time
	assert.Equal(t, stagedDue, state.CurrentTime)
	// The same poke staged the fresh spot reading
	assert.True(t, state.HasNext)
	assert.True(t, state.NextPrice.Equal(dec("1800")))
	assert.Equal(t, clock.now().Add(OSMDelay), state.NextTime)
}

func TestPokeRejectsInvalidSpot(t *testing.T) {
	svc, clock := setupOracle(t)
	freshFeed(t, svc, "2000")

	// Let the manual feed go stale, then poke
	clock.advance(StalePeriod + time.Minute)
	err := svc.Poke("ETH")
	assert.ErrorIs(t, err, ErrInvalidSpotPrice)

	err = svc.Poke("unconfigured")
	assert.ErrorIs(t, err, ErrInvalidSpotPrice)
}

func TestActivateStrict(t *testing.T) {
	svc, clock := setupOracle(t)
	freshFeed(t, svc, "2000")

	// Nothing staged yet
	assert.ErrorIs(t, svc.Activate("ETH"), ErrNoPendingPrice)

	require.NoError(t, svc.Poke("ETH"))

	// Staged but still inside its delay
	clock.advance(OSMDelay - time.Second)
	assert.ErrorIs(t, svc.Activate("ETH"), ErrActivationNotDue)

	clock.advance(time.Second)
	require.NoError(t, svc.Activate("ETH"))

	state, err := svc.db.GetSettlement("ETH")
	require.NoError(t, err)
	assert.True(t, state.CurrentPrice.Equal(dec("2000")))
	assert.False(t, state.HasNext)

	// The stage was consumed
	assert.ErrorIs(t, svc.Activate("ETH"), ErrNoPendingPrice)
}

func TestSettlementPriceViewDoesNotMutate(t *testing.T) {
	svc, clock := setupOracle(t)
	freshFeed(t, svc, "2000")
	require.NoError(t, svc.InitializeSettlementPrice("ETH", dec("2100")))
	require.NoError(t, svc.Poke("ETH"))

	// Before the delay the initialized price rules
	result, err := svc.GetSettlementPrice("ETH")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.True(t, result.Price.Equal(dec("2100")))

	// Past the due time the view reports the staged price as if activated
	clock.advance(OSMDelay)
	result, err = svc.GetSettlementPrice("ETH")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.True(t, result.Price.Equal(dec("2000")))

	// but the stored state is untouched until a mutating call runs
	state, err := svc.db.GetSettlement("ETH")
	require.NoError(t, err)
	assert.True(t, state.HasNext)
	assert.True(t, state.CurrentPrice.Equal(dec("2100")))
}

func TestSettlementPriceStaleness(t *testing.T) {
	svc, clock := setupOracle(t)
	freshFeed(t, svc, "2000")
	require.NoError(t, svc.Poke("ETH"))

	clock.advance(OSMDelay)
	require.NoError(t, svc.Activate("ETH"))

	result, err := svc.GetSettlementPrice("ETH")
	require.NoError(t, err)
	assert.True(t, result.Valid)

	// Staleness runs from the due time the price activated at
	clock.advance(StalePeriod + time.Second)
	result, err = svc.GetSettlementPrice("ETH")
	require.NoError(t, err)
	assert.False(t, result.Valid)
	assert.True(t, result.Price.Equal(dec("2000")))
}

func TestSettlementPriceFallsBackToSpot(t *testing.T) {
	svc, _ := setupOracle(t)
	freshFeed(t, svc, "2000")

	// Never bootstrapped: the view delegates to the live feed
	result, err := svc.GetSettlementPrice("ETH")
	require.NoError(t, err)
	assert.True(t, result.Valid)
	assert.True(t, result.Price.Equal(dec("2000")))

	// OSM disabled: same delegation even with settled state present
	require.NoError(t, svc.InitializeSettlementPrice("ETH", dec("1234")))
	require.NoError(t, svc.SetOSMEnabled(false))
	result, err = svc.GetSettlementPrice("ETH")
	require.NoError(t, err)
	assert.True(t, result.Price.Equal(dec("2000")))

	require.NoError(t, svc.SetOSMEnabled(true))
	result, err = svc.GetSettlementPrice("ETH")
	require.NoError(t, err)
	assert.True(t, result.Price.Equal(dec("1234")))
}

func TestInitializeOverridesAndClearsPending(t *testing.T) {
	svc, _ := setupOracle(t)
	freshFeed(t, svc, "2000")
	require.NoError(t, svc.Poke("ETH"))

	require.NoError(t, svc.InitializeSettlementPrice("ETH", dec("1850")))

	state, err := svc.db.GetSettlement("ETH")
	require.NoError(t, err)
	assert.True(t, state.CurrentPrice.Equal(dec("1850")))
	assert.False(t, state.HasNext, "initialization discards any staged price")

	assert.ErrorIs(t, svc.InitializeSettlementPrice("ETH", decimal.Zero), ErrInvalidPrice)
}

func TestCheckPendingActivation(t *testing.T) {
	svc, clock := setupOracle(t)
	freshFeed(t, svc, "2000")

	// No stage
	pending, err := svc.CheckPendingActivation("ETH", time.Hour)
	require.NoError(t, err)
	assert.False(t, pending.WillActivate)

	require.NoError(t, svc.Poke("ETH"))

	pending, err = svc.CheckPendingActivation("ETH", 10*time.Minute)
	require.NoError(t, err)
	assert.False(t, pending.WillActivate, "due in 30m, window is 10m")
	assert.Equal(t, OSMDelay, pending.TimeRemaining)

	pending, err = svc.CheckPendingActivation("ETH", time.Hour)
	require.NoError(t, err)
	assert.True(t, pending.WillActivate)
	assert.True(t, pending.PendingPrice.Equal(dec("2000")))

	// Already due: activates in any window with no time remaining
	clock.advance(OSMDelay + time.Minute)
	pending, err = svc.CheckPendingActivation("ETH", 0)
	require.NoError(t, err)
	assert.True(t, pending.WillActivate)
	assert.Equal(t, time.Duration(0), pending.TimeRemaining)
}

func TestOSMStatusHidesDueStage(t *testing.T) {
	svc, clock := setupOracle(t)
	freshFeed(t, svc, "2000")
	require.NoError(t, svc.Poke("ETH"))

	status, err := svc.GetOSMStatus("ETH")
	require.NoError(t, err)
	assert.True(t, status.OSMEnabled)
	assert.True(t, status.NextPrice.Equal(dec("2000")))

	// Once due, the stage is reported as consumed even before a poke lands
	clock.advance(OSMDelay)
	freshFeed(t, svc, "2000")
	status, err = svc.GetOSMStatus("ETH")
	require.NoError(t, err)
	assert.True(t, status.NextPrice.IsZero())
}
