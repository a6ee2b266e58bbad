/*
store.go - Persistence interfaces for the ledger engine

PURPOSE:
  Defines the seam between ledger logic and the database. Implementations
  exist for SQLite (store/sqlite) and in-memory (store/memory).

ATOMIC UNITS:
  WithTx ensures all-or-nothing semantics. A workflow transition writes
  the request status, the timeline entry, and the ledger mutation inside
  one transaction; a crash between writes never leaves a reservation
  orphaned or a request disagreeing with the ledger.

ACCRUAL LOG CONTRACT:
  Append-only. HasLogEntry gates scheduled passes ("already ran for this
  policy/employee/effective date"), which makes daily re-runs idempotent
  without retry counters.
*/
package engine

import "context"

// =============================================================================
// STORE - Ledger persistence
// =============================================================================

// BalanceStore persists ledger rows. GetBalance returns (nil, nil) for a
// row that does not exist yet; callers create lazily.
type BalanceStore interface {
	GetBalance(ctx context.Context, key BalanceKey) (*LeaveBalance, error)
	SaveBalance(ctx context.Context, b *LeaveBalance) error
}

// AccrualLogStore is the append-only reconciliation trail.
type AccrualLogStore interface {
	AppendLog(ctx context.Context, entry AccrualLogEntry) error
	ListLog(ctx context.Context, key BalanceKey) ([]AccrualLogEntry, error)

	// HasLogEntry reports whether an entry with the given source and
	// effective date already exists for the key. Used to gate scheduled
	// accrual and reset passes.
	HasLogEntry(ctx context.Context, key BalanceKey, source LogSource, effectiveOn Date) (bool, error)
}

// Store is the ledger-facing persistence surface.
type Store interface {
	BalanceStore
	AccrualLogStore
}

// TxStore adds transactional execution. If fn returns an error the
// transaction rolls back; otherwise it commits.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
