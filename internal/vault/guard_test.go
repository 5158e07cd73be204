package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardRejectsNestedEntry(t *testing.T) {
	var g opGuard

	require.NoError(t, g.enter())
	assert.ErrorIs(t, g.enter(), ErrOperationInProgress)

	g.exit()
	require.NoError(t, g.enter())
	g.exit()
}

func TestGuardBlocksOperationMidFlight(t *testing.T) {
	env := setupVault(t)
	env.fund(t, "alice", dec("1"))

	require.NoError(t, env.vault.guard.enter())
	_, err := env.vault.Deposit("alice", dec("1"))
	assert.ErrorIs(t, err, ErrOperationInProgress)
	env.vault.guard.exit()

	_, err = env.vault.Deposit("alice", dec("1"))
	require.NoError(t, err)
}
