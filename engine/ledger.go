/*
ledger.go - The balance ledger service

PURPOSE:
  Wraps the pure row math in balance.go with row-level locking and
  transactional persistence. These five operations are the ONLY way a
  ledger row changes:

    Reserve       hold days at request submission
    Release       drop a hold on rejection/cancellation
    Consume       finalize a hold on approval (carry-forward drawn first)
    Credit        grant entitlement (accrual, manual credit)
    CarryForward  quarter-boundary transfer with cap and forfeiture

  Plus Adjust, the administrative credit/debit/set wrapper over the same
  row math.

RETRY SAFETY:
  The primitives carry no operation token: a blindly retried Reserve
  double-reserves. This is a documented limitation. Retry safety is
  confined to the workflow layer, which gates each transition on the
  request's current status inside the same atomic unit.

LOCKING:
  Every operation acquires the exclusive lock for its row before reading,
  and releases it after the transaction ends. Bounded wait: contention
  past the window surfaces as ErrLockTimeout, never a silent hang.

SEE ALSO:
  - balance.go: Row math
  - locks.go: Row lock manager
  - leave/workflow.go: Composes these ops with request state transitions
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultLockWait bounds how long an operation waits for a contended row.
const DefaultLockWait = 3 * time.Second

// =============================================================================
// BALANCE LEDGER - Locked, transactional access to rows
// =============================================================================

type BalanceLedger struct {
	store  TxStore
	locks  *RowLocks
	wait   time.Duration
	logger *zap.Logger
}

func NewBalanceLedger(store TxStore, logger *zap.Logger) *BalanceLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceLedger{
		store:  store,
		locks:  NewRowLocks(),
		wait:   DefaultLockWait,
		logger: logger.Named("ledger"),
	}
}

// SetLockWait overrides the bounded lock wait (config-driven).
func (l *BalanceLedger) SetLockWait(d time.Duration) {
	if d > 0 {
		l.wait = d
	}
}

// Locked runs fn while holding the exclusive lock for key. Workflow
// transitions use this to wrap a status write, a timeline write, and a
// ledger mutation in one serialized unit.
func (l *BalanceLedger) Locked(ctx context.Context, key BalanceKey, fn func() error) error {
	if err := l.locks.Acquire(ctx, key, l.wait); err != nil {
		return err
	}
	defer l.locks.Release(key)
	return fn()
}

// Store exposes the underlying transactional store for callers composing
// wider atomic units under Locked.
func (l *BalanceLedger) Store() TxStore { return l.store }

// =============================================================================
// STANDALONE OPERATIONS - Lock + single-op transaction
// =============================================================================

// Reserve places a hold for a submitted request.
// Fails with InsufficientBalance if availability would go negative.
func (l *BalanceLedger) Reserve(ctx context.Context, key BalanceKey, amount Days) error {
	return l.Locked(ctx, key, func() error {
		return l.store.WithTx(ctx, func(s Store) error {
			return ReserveIn(ctx, s, key, amount)
		})
	})
}

// Release drops a hold on rejection or cancellation.
func (l *BalanceLedger) Release(ctx context.Context, key BalanceKey, amount Days) error {
	return l.Locked(ctx, key, func() error {
		return l.store.WithTx(ctx, func(s Store) error {
			return ReleaseIn(ctx, s, key, amount)
		})
	})
}

// Consume finalizes a hold on approval.
func (l *BalanceLedger) Consume(ctx context.Context, key BalanceKey, amount Days) error {
	return l.Locked(ctx, key, func() error {
		return l.store.WithTx(ctx, func(s Store) error {
			return ConsumeIn(ctx, s, key, amount)
		})
	})
}

// Credit grants entitlement and writes the accrual log entry tagged with
// source. The log write and the row update share one transaction.
func (l *BalanceLedger) Credit(ctx context.Context, key BalanceKey, amount Days, source LogSource, note string, effectiveOn Date, actor Actor) error {
	return l.Locked(ctx, key, func() error {
		return l.store.WithTx(ctx, func(s Store) error {
			return CreditIn(ctx, s, key, amount, source, note, effectiveOn, actor)
		})
	})
}

// CarryForwardResult summarizes a quarter-boundary transfer.
type CarryForwardResult struct {
	Moved     Days
	Forfeited Days
}

// CarryForward moves up to cap of unused standing balance into the
// carry-forward bucket and resets the standing balance for the new quarter.
// Emits a CARRY_FORWARD / QUARTER_RESET pair netting to zero; forfeited
// amounts get a reset entry with no matching credit.
func (l *BalanceLedger) CarryForward(ctx context.Context, key BalanceKey, cap Days, effectiveOn Date, actor Actor) (CarryForwardResult, error) {
	var res CarryForwardResult
	err := l.Locked(ctx, key, func() error {
		return l.store.WithTx(ctx, func(s Store) error {
			b, err := loadOrCreate(ctx, s, key)
			if err != nil {
				return err
			}

			moved, forfeited := b.applyCarryForward(cap)
			res = CarryForwardResult{Moved: moved, Forfeited: forfeited}
			b.UpdatedAt = time.Now().UTC()
			if err := s.SaveBalance(ctx, b); err != nil {
				return err
			}

			if moved.IsPositive() {
				pair := []AccrualLogEntry{
					newLogEntry(key, moved, SourceCarryForward, "carried forward at quarter end", effectiveOn, actor),
					newLogEntry(key, moved.Neg(), SourceQuarterReset, "quarter baseline reset", effectiveOn, actor),
				}
				for _, e := range pair {
					if err := s.AppendLog(ctx, e); err != nil {
						return err
					}
				}
			}
			if forfeited.IsPositive() {
				e := newLogEntry(key, forfeited.Neg(), SourceQuarterReset, "forfeited above carry-forward cap", effectiveOn, actor)
				if err := s.AppendLog(ctx, e); err != nil {
					return err
				}
			}
			return nil
		})
	})
	return res, err
}

// AdjustmentKind selects the administrative balance adjustment behavior.
type AdjustmentKind string

const (
	AdjustCredit AdjustmentKind = "credit"
	AdjustDebit  AdjustmentKind = "debit"
	AdjustSet    AdjustmentKind = "set"
)

// Adjust applies a manual correction and logs it as MANUAL_ADJUSTMENT with
// the signed delta actually applied.
func (l *BalanceLedger) Adjust(ctx context.Context, key BalanceKey, kind AdjustmentKind, amount Days, reason string, actor Actor) (AccrualLogEntry, error) {
	var entry AccrualLogEntry
	err := l.Locked(ctx, key, func() error {
		return l.store.WithTx(ctx, func(s Store) error {
			b, err := loadOrCreate(ctx, s, key)
			if err != nil {
				return err
			}

			var delta Days
			switch kind {
			case AdjustCredit:
				b.applyCredit(amount)
				delta = amount
			case AdjustDebit:
				before := b.Balance
				b.applyDebit(amount)
				delta = b.Balance.Sub(before)
			case AdjustSet:
				before := b.Balance
				b.Balance = amount.ClampZero()
				delta = b.Balance.Sub(before)
			default:
				return fmt.Errorf("unknown adjustment kind %q", kind)
			}

			b.UpdatedAt = time.Now().UTC()
			if err := s.SaveBalance(ctx, b); err != nil {
				return err
			}

			entry = newLogEntry(key, delta, SourceManualAdjustment, reason, NewDate(key.Year, time.Now().UTC().Month(), time.Now().UTC().Day()), actor)
			return s.AppendLog(ctx, entry)
		})
	})
	return entry, err
}

// Available returns the current available-to-request amount.
// Idempotent read: stable between writes.
func (l *BalanceLedger) Available(ctx context.Context, key BalanceKey) (Days, error) {
	b, err := l.Snapshot(ctx, key)
	if err != nil {
		return ZeroDays(), err
	}
	return b.Available(), nil
}

// Snapshot returns the row as stored, or the zero row if it doesn't exist.
func (l *BalanceLedger) Snapshot(ctx context.Context, key BalanceKey) (*LeaveBalance, error) {
	b, err := l.store.GetBalance(ctx, key)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return NewLeaveBalance(key, time.Now().UTC()), nil
	}
	return b, nil
}

// =============================================================================
// IN-TRANSACTION PRIMITIVES - For composition inside a caller's WithTx
// =============================================================================

// ReserveIn applies a reservation using the caller's transaction. The
// caller must hold the row lock (see Locked).
func ReserveIn(ctx context.Context, s Store, key BalanceKey, amount Days) error {
	b, err := loadOrCreate(ctx, s, key)
	if err != nil {
		return err
	}
	if err := b.applyReserve(amount); err != nil {
		return err
	}
	b.UpdatedAt = time.Now().UTC()
	return s.SaveBalance(ctx, b)
}

// ReleaseIn drops a reservation using the caller's transaction.
func ReleaseIn(ctx context.Context, s Store, key BalanceKey, amount Days) error {
	b, err := loadOrCreate(ctx, s, key)
	if err != nil {
		return err
	}
	b.applyRelease(amount)
	b.UpdatedAt = time.Now().UTC()
	return s.SaveBalance(ctx, b)
}

// ConsumeIn finalizes a reservation using the caller's transaction.
func ConsumeIn(ctx context.Context, s Store, key BalanceKey, amount Days) error {
	b, err := loadOrCreate(ctx, s, key)
	if err != nil {
		return err
	}
	b.applyConsume(amount)
	b.UpdatedAt = time.Now().UTC()
	return s.SaveBalance(ctx, b)
}

// RefundIn returns consumed days to the standing balance using the
// caller's transaction. Not an accrual: AccruedThisYear is untouched and
// nothing is logged.
func RefundIn(ctx context.Context, s Store, key BalanceKey, amount Days) error {
	b, err := loadOrCreate(ctx, s, key)
	if err != nil {
		return err
	}
	b.applyRefund(amount)
	b.UpdatedAt = time.Now().UTC()
	return s.SaveBalance(ctx, b)
}

// CreditIn grants entitlement and logs it using the caller's transaction.
func CreditIn(ctx context.Context, s Store, key BalanceKey, amount Days, source LogSource, note string, effectiveOn Date, actor Actor) error {
	if amount.IsNegative() || amount.IsZero() {
		return nil
	}
	b, err := loadOrCreate(ctx, s, key)
	if err != nil {
		return err
	}
	b.applyCredit(amount)
	b.UpdatedAt = time.Now().UTC()
	if err := s.SaveBalance(ctx, b); err != nil {
		return err
	}
	return s.AppendLog(ctx, newLogEntry(key, amount, source, note, effectiveOn, actor))
}

func loadOrCreate(ctx context.Context, s Store, key BalanceKey) (*LeaveBalance, error) {
	b, err := s.GetBalance(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load balance %v: %w", key, err)
	}
	if b == nil {
		b = NewLeaveBalance(key, time.Now().UTC())
	}
	return b, nil
}

func newLogEntry(key BalanceKey, qty Days, source LogSource, note string, effectiveOn Date, actor Actor) AccrualLogEntry {
	return AccrualLogEntry{
		ID:          uuid.NewString(),
		Key:         key,
		Quantity:    qty,
		Source:      source,
		Note:        note,
		EffectiveOn: effectiveOn,
		Actor:       actor,
		RecordedAt:  time.Now().UTC(),
	}
}
