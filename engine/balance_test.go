package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func testKey() BalanceKey {
	return BalanceKey{EmployeeID: "emp-1", PolicyID: "annual", Year: 2025}
}

func days(v float64) Days { return DaysOf(v) }

func newRow(balance, carry, pending float64) *LeaveBalance {
	b := NewLeaveBalance(testKey(), time.Now().UTC())
	b.Balance = days(balance)
	b.CarryForward = days(carry)
	b.PendingDeduction = days(pending)
	return b
}

// =============================================================================
// AVAILABILITY
// =============================================================================

func TestBalance_Available(t *testing.T) {
	// GIVEN: 10 standing, 2 carry-forward, 3 pending
	// THEN: Available = 10 + 2 - 3 = 9

	b := newRow(10, 2, 3)
	assert.True(t, b.Available().Equal(days(9)))
}

func TestBalance_Available_ZeroRow(t *testing.T) {
	b := NewLeaveBalance(testKey(), time.Now().UTC())
	assert.True(t, b.Available().IsZero())
}

// =============================================================================
// RESERVE / RELEASE
// =============================================================================

func TestBalance_Reserve_Succeeds(t *testing.T) {
	// GIVEN: 10 days available
	// WHEN: Reserving 3
	// THEN: Pending grows, standing balance untouched

	b := newRow(10, 0, 0)
	require.NoError(t, b.applyReserve(days(3)))

	assert.True(t, b.PendingDeduction.Equal(days(3)))
	assert.True(t, b.Balance.Equal(days(10)))
	assert.True(t, b.Available().Equal(days(7)))
}

func TestBalance_Reserve_InsufficientBalance(t *testing.T) {
	// GIVEN: 2 days available
	// WHEN: Reserving 3
	// THEN: InsufficientBalanceError with exact amounts

	b := newRow(2, 0, 0)
	err := b.applyReserve(days(3))

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientBalance))

	var ibe *InsufficientBalanceError
	require.ErrorAs(t, err, &ibe)
	assert.True(t, ibe.Available.Equal(days(2)))
	assert.True(t, ibe.Requested.Equal(days(3)))

	// Row unchanged on failure
	assert.True(t, b.PendingDeduction.IsZero())
}

func TestBalance_Reserve_CountsCarryForward(t *testing.T) {
	// GIVEN: 1 standing + 3 carry-forward
	// WHEN: Reserving 4
	// THEN: Accepted; availability includes carry-forward

	b := newRow(1, 3, 0)
	assert.NoError(t, b.applyReserve(days(4)))
}

func TestBalance_Reserve_ExactAvailable(t *testing.T) {
	// Boundary: reserving exactly what is available succeeds.
	b := newRow(5, 0, 2)
	assert.NoError(t, b.applyReserve(days(3)))
	assert.True(t, b.Available().IsZero())
}

func TestBalance_Release_ClampsAtZero(t *testing.T) {
	// GIVEN: 1 day pending
	// WHEN: Releasing 3 (double release)
	// THEN: Pending clamps at zero rather than going negative

	b := newRow(10, 0, 1)
	b.applyRelease(days(3))
	assert.True(t, b.PendingDeduction.IsZero())
}

// =============================================================================
// CONSUME - Carry-forward drawn first
// =============================================================================

func TestBalance_Consume_CarryForwardFirst(t *testing.T) {
	// GIVEN: 10 standing, 2 carry-forward, 3 pending
	// WHEN: Consuming 3
	// THEN: Carry-forward fully drained first, remainder from standing

	b := newRow(10, 2, 3)
	b.applyConsume(days(3))

	assert.True(t, b.CarryForward.IsZero())
	assert.True(t, b.Balance.Equal(days(9)))
	assert.True(t, b.PendingDeduction.IsZero())
}

func TestBalance_Consume_WithinCarryForward(t *testing.T) {
	// GIVEN: 5 carry-forward, consuming 2
	// THEN: Standing balance untouched

	b := newRow(10, 5, 2)
	b.applyConsume(days(2))

	assert.True(t, b.CarryForward.Equal(days(3)))
	assert.True(t, b.Balance.Equal(days(10)))
}

func TestBalance_Consume_HalfDay(t *testing.T) {
	b := newRow(10, 0, 0.5)
	b.applyConsume(days(0.5))

	assert.True(t, b.Balance.Equal(days(9.5)))
	assert.True(t, b.PendingDeduction.IsZero())
}

// =============================================================================
// CREDIT / DEBIT / REFUND
// =============================================================================

func TestBalance_Credit_TracksAccruedThisYear(t *testing.T) {
	b := newRow(0, 0, 0)
	b.applyCredit(days(1.5))
	b.applyCredit(days(1.5))

	assert.True(t, b.Balance.Equal(days(3)))
	assert.True(t, b.AccruedThisYear.Equal(days(3)))
}

func TestBalance_Debit_ClampsAtZero(t *testing.T) {
	b := newRow(2, 0, 0)
	b.applyDebit(days(5))
	assert.True(t, b.Balance.IsZero())
}

func TestBalance_Refund_DoesNotCountAsAccrual(t *testing.T) {
	// Refund restores consumed days without inflating the annual cap math.
	b := newRow(2, 0, 0)
	b.AccruedThisYear = days(12)

	b.applyRefund(days(3))
	assert.True(t, b.Balance.Equal(days(5)))
	assert.True(t, b.AccruedThisYear.Equal(days(12)))
}

// =============================================================================
// CARRY FORWARD
// =============================================================================

func TestBalance_CarryForward_UnderCap(t *testing.T) {
	// GIVEN: 2 unused days, cap 3
	// THEN: All 2 move, nothing forfeited, standing balance zeroed

	b := newRow(2, 0, 0)
	moved, forfeited := b.applyCarryForward(days(3))

	assert.True(t, moved.Equal(days(2)))
	assert.True(t, forfeited.IsZero())
	assert.True(t, b.Balance.IsZero())
	assert.True(t, b.CarryForward.Equal(days(2)))
}

func TestBalance_CarryForward_AboveCap(t *testing.T) {
	// GIVEN: 5 unused days, cap 3
	// THEN: 3 move, 2 forfeited

	b := newRow(5, 0, 0)
	moved, forfeited := b.applyCarryForward(days(3))

	assert.True(t, moved.Equal(days(3)))
	assert.True(t, forfeited.Equal(days(2)))
	assert.True(t, b.Balance.IsZero())
	assert.True(t, b.CarryForward.Equal(days(3)))
}

func TestBalance_CarryForward_NothingUnused(t *testing.T) {
	b := newRow(0, 1, 0)
	moved, forfeited := b.applyCarryForward(days(3))

	assert.True(t, moved.IsZero())
	assert.True(t, forfeited.IsZero())
	assert.True(t, b.CarryForward.Equal(days(1)))
}

func TestBalance_CarryForward_Accumulates(t *testing.T) {
	// Carry-forward from a previous boundary survives the next one.
	b := newRow(4, 2, 0)
	moved, _ := b.applyCarryForward(days(3))

	assert.True(t, moved.Equal(days(3)))
	assert.True(t, b.CarryForward.Equal(days(5)))
}
