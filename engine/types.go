/*
Package engine provides the core leave balance ledger.

PURPOSE:
  This package contains the authoritative balance record for leave
  entitlement and the operations that mutate it. A ledger row is keyed
  by (employee, policy, year) and tracks standing balance, quarter-scoped
  carry-forward, pending reservations, and cumulative accrual.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: A day quantity backed by decimal.Decimal (half days exist)
  - BalanceKey: The composite identity of a ledger row
  - Actor: Tagged identity (employee/admin/system) attached to every write
  - AccrualLogEntry: An immutable record of a balance-affecting operation

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for day math, never float64
  2. Auditability: every credit, reset, and adjustment lands in the accrual log
  3. Single seam: rows are only mutated through the five ledger operations

SEE ALSO:
  - balance.go: The ledger row and its pure row math
  - ledger.go: The locking service wrapping the row math
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Leave quantity with decimal precision
// =============================================================================

// Days is a quantity of leave days. Half-day sessions make integer
// arithmetic insufficient, so all day math is decimal.
type Days struct {
	Value decimal.Decimal
}

func DaysOf(v float64) Days  { return Days{Value: decimal.NewFromFloat(v)} }
func DaysFromInt(n int) Days { return Days{Value: decimal.NewFromInt(int64(n))} }
func ZeroDays() Days         { return Days{Value: decimal.Zero} }

func MustParseDays(s string) Days {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroDays()
	}
	return Days{Value: d}
}

func (d Days) Add(o Days) Days         { return Days{Value: d.Value.Add(o.Value)} }
func (d Days) Sub(o Days) Days         { return Days{Value: d.Value.Sub(o.Value)} }
func (d Days) Neg() Days               { return Days{Value: d.Value.Neg()} }
func (d Days) IsZero() bool            { return d.Value.IsZero() }
func (d Days) IsNegative() bool        { return d.Value.IsNegative() }
func (d Days) IsPositive() bool        { return d.Value.IsPositive() }
func (d Days) GreaterThan(o Days) bool { return d.Value.GreaterThan(o.Value) }
func (d Days) LessThan(o Days) bool    { return d.Value.LessThan(o.Value) }
func (d Days) Equal(o Days) bool       { return d.Value.Equal(o.Value) }

func (d Days) Min(o Days) Days {
	if d.LessThan(o) {
		return d
	}
	return o
}

func (d Days) Max(o Days) Days {
	if d.GreaterThan(o) {
		return d
	}
	return o
}

// ClampZero floors the quantity at zero. Release and consume are defensive
// against double-application; the clamp keeps the row invariants intact.
func (d Days) ClampZero() Days {
	if d.IsNegative() {
		return ZeroDays()
	}
	return d
}

func (d Days) String() string { return d.Value.String() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

// BalanceKey is the composite identity of a ledger row. One row exists per
// (employee, policy, year); rows are created lazily with zero values.
type BalanceKey struct {
	EmployeeID string
	PolicyID   string
	Year       int
}

// =============================================================================
// ACTOR - Tagged identity for audit writes
// =============================================================================

type ActorType string

const (
	ActorEmployee ActorType = "employee"
	ActorAdmin    ActorType = "admin"
	ActorSystem   ActorType = "system"
)

// Actor identifies who performed an operation. Attached to every timeline
// and accrual log write instead of runtime-inspecting the caller.
type Actor struct {
	Type ActorType
	ID   string
}

func SystemActor() Actor { return Actor{Type: ActorSystem, ID: "system"} }

// =============================================================================
// ACCRUAL LOG - Append-only record of balance-affecting operations
// =============================================================================

// LogSource tags why a ledger row changed. Reservations (reserve/release/
// consume) are NOT logged here: they move entitlement between buckets of the
// same row, they do not create or destroy it.
type LogSource string

const (
	SourceMonthlyAccrual   LogSource = "MONTHLY_ACCRUAL"
	SourceCarryForward     LogSource = "CARRY_FORWARD"
	SourceQuarterReset     LogSource = "QUARTER_RESET"
	SourceManualAdjustment LogSource = "MANUAL_ADJUSTMENT"
	SourceResetNotice      LogSource = "RESET_NOTICE" // zero-quantity gate entry
)

// AccrualLogEntry is one row of the reconciliation trail. Summing signed
// quantities for a ledger row equals its total entitlement minus usage.
// Entries are never updated or deleted.
type AccrualLogEntry struct {
	ID          string
	Key         BalanceKey
	Quantity    Days // signed
	Source      LogSource
	Note        string
	EffectiveOn Date
	Actor       Actor
	RecordedAt  time.Time
}
