/*
locks.go - Per-row exclusive locks with bounded wait

PURPOSE:
  Serializes conflicting mutation of a single (employee, policy, year)
  ledger row while leaving unrelated rows fully parallel. A submit racing
  an accrual credit, or two concurrent approvals, queue on the same row;
  requests for different employees never contend.

BOUNDED WAIT:
  No operation blocks indefinitely. Acquisition waits up to the configured
  window, then fails with ErrLockTimeout - a transient error the caller
  may retry with backoff. Context cancellation aborts the wait early.

ORDERING:
  Normal operation never nests locks across two rows. If a future
  extension needs two rows (policy transfer), acquire in ascending
  composite-key order to avoid deadlock.
*/
package engine

import (
	"context"
	"sync"
	"time"
)

// RowLocks hands out one exclusive lock per ledger row key. Lock entries
// are reference counted and removed when the last holder releases.
type RowLocks struct {
	mu   sync.Mutex
	rows map[BalanceKey]*rowLock
}

type rowLock struct {
	sem  chan struct{} // capacity 1
	refs int
}

func NewRowLocks() *RowLocks {
	return &RowLocks{rows: make(map[BalanceKey]*rowLock)}
}

// Acquire takes the exclusive lock for key, waiting at most wait.
// Returns ErrLockTimeout if the window elapses or ctx is cancelled.
func (rl *RowLocks) Acquire(ctx context.Context, key BalanceKey, wait time.Duration) error {
	rl.mu.Lock()
	lock, ok := rl.rows[key]
	if !ok {
		lock = &rowLock{sem: make(chan struct{}, 1)}
		rl.rows[key] = lock
	}
	lock.refs++
	rl.mu.Unlock()

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case lock.sem <- struct{}{}:
		return nil
	case <-timer.C:
		rl.drop(key)
		return ErrLockTimeout
	case <-ctx.Done():
		rl.drop(key)
		return ErrLockTimeout
	}
}

// Release frees the lock for key. Must pair with a successful Acquire.
func (rl *RowLocks) Release(key BalanceKey) {
	rl.mu.Lock()
	lock, ok := rl.rows[key]
	rl.mu.Unlock()
	if !ok {
		return
	}
	<-lock.sem
	rl.drop(key)
}

func (rl *RowLocks) drop(key BalanceKey) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	lock, ok := rl.rows[key]
	if !ok {
		return
	}
	lock.refs--
	if lock.refs <= 0 {
		delete(rl.rows, key)
	}
}
