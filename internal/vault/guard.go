package vault

import (
	"sync"
	"sync/atomic"

	"github.com/mintforge/synth-api/pkg/response"
)

// ErrOperationInProgress rejects a call that re-enters the vault before a
// prior operation completed
var ErrOperationInProgress = response.Kind(response.ErrConflict, "vault: operation in progress")

// opGuard combines the vault's single-writer lock with an explicit
// reentrancy rejection. The mutex serializes concurrent callers; the flag
// exists so a nested call made from inside an operation fails loudly instead
// of deadlocking. The guard is global to the vault, not per account.
type opGuard struct {
	mu   sync.Mutex
	busy atomic.Bool
}

// enter acquires the write lock and marks an operation in progress. It
// returns an error when called from within an operation on the same vault.
func (g *opGuard) enter() error {
	if g.busy.Load() {
		return ErrOperationInProgress
	}
	g.mu.Lock()
	if !g.busy.CompareAndSwap(false, true) {
		g.mu.Unlock()
		return ErrOperationInProgress
	}
	return nil
}

// exit releases the guard
func (g *opGuard) exit() {
	g.busy.Store(false)
	g.mu.Unlock()
}
