/*
balance.go - The authoritative ledger row and its row math

PURPOSE:
  LeaveBalance is the per-(employee, policy, year) record of entitlement.
  This file holds the pure arithmetic: reserve, release, consume, credit,
  and carry-forward as transformations of one row. No I/O, no locking -
  ledger.go supplies both.

ROW FIELDS:
  Balance          Standing entitlement, excluding carry-forward
  CarryForward     Quarter-scoped surplus moved across a reset boundary
  PendingDeduction Sum of days reserved by non-terminal requests
  AccruedThisYear  Cumulative credits (for the annual accrual cap)

INVARIANTS (hold after every operation):
  Balance >= 0
  CarryForward >= 0
  PendingDeduction >= 0
  Available() >= 0 at the moment a reservation is accepted

CONSUME ORDER:
  Carry-forward is use-it-or-lose-it and is drawn down before standing
  balance. Each debit clamps at zero.

SEE ALSO:
  - ledger.go: Locked, transactional access to rows
  - types.go: Days, BalanceKey, AccrualLogEntry
*/
package engine

import "time"

// =============================================================================
// LEAVE BALANCE - One row per (employee, policy, year)
// =============================================================================

// LeaveBalance is the authoritative balance record. Created lazily with
// all-zero values on first touch; mutated only through ledger operations.
type LeaveBalance struct {
	Key BalanceKey

	Balance          Days
	CarryForward     Days
	PendingDeduction Days
	AccruedThisYear  Days

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewLeaveBalance returns the lazily-created zero row for a key.
func NewLeaveBalance(key BalanceKey, now time.Time) *LeaveBalance {
	return &LeaveBalance{
		Key:              key,
		Balance:          ZeroDays(),
		CarryForward:     ZeroDays(),
		PendingDeduction: ZeroDays(),
		AccruedThisYear:  ZeroDays(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// Available is what the employee can still request:
// balance + carry-forward - pending reservations.
func (b *LeaveBalance) Available() Days {
	return b.Balance.Add(b.CarryForward).Sub(b.PendingDeduction)
}

// =============================================================================
// ROW MATH - Pure transformations, called under the row lock
// =============================================================================

// applyReserve places a hold for a submitted request. Fails if the hold
// would drive availability negative.
func (b *LeaveBalance) applyReserve(amount Days) error {
	if amount.IsNegative() {
		amount = ZeroDays()
	}
	if b.Available().LessThan(amount) {
		return &InsufficientBalanceError{Key: b.Key, Available: b.Available(), Requested: amount}
	}
	b.PendingDeduction = b.PendingDeduction.Add(amount)
	return nil
}

// applyRelease removes a hold on rejection or cancellation. Clamped at
// zero against double-release.
func (b *LeaveBalance) applyRelease(amount Days) {
	b.PendingDeduction = b.PendingDeduction.Sub(amount).ClampZero()
}

// applyConsume finalizes a reservation on approval: the hold is removed and
// the amount is debited carry-forward first, then standing balance.
func (b *LeaveBalance) applyConsume(amount Days) {
	b.PendingDeduction = b.PendingDeduction.Sub(amount).ClampZero()

	fromCarry := amount.Min(b.CarryForward)
	b.CarryForward = b.CarryForward.Sub(fromCarry).ClampZero()

	remainder := amount.Sub(fromCarry)
	b.Balance = b.Balance.Sub(remainder).ClampZero()
}

// applyRefund returns previously consumed days to the standing balance
// without counting as new accrual (administrative date-overwrite shrinking
// an approved request).
func (b *LeaveBalance) applyRefund(amount Days) {
	b.Balance = b.Balance.Add(amount.ClampZero())
}

// applyCredit grants entitlement (monthly accrual, manual credit).
func (b *LeaveBalance) applyCredit(amount Days) {
	b.Balance = b.Balance.Add(amount)
	b.AccruedThisYear = b.AccruedThisYear.Add(amount)
}

// applyDebit removes entitlement (manual debit). Clamped at zero.
func (b *LeaveBalance) applyDebit(amount Days) {
	b.Balance = b.Balance.Sub(amount).ClampZero()
}

// applyCarryForward moves up to cap of the unused standing balance into the
// carry-forward bucket and zeroes the standing balance for the new quarter
// baseline. Returns what moved and what was forfeited (unused above cap).
func (b *LeaveBalance) applyCarryForward(cap Days) (moved, forfeited Days) {
	unused := b.Balance
	if unused.IsNegative() || unused.IsZero() {
		return ZeroDays(), ZeroDays()
	}

	moved = unused.Min(cap).ClampZero()
	forfeited = unused.Sub(moved)

	b.CarryForward = b.CarryForward.Add(moved)
	b.Balance = ZeroDays()
	return moved, forfeited
}
