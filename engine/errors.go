/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these errors with additional context.

ERROR CATEGORIES:
  1. Balance errors - Reservation/consumption rule violations
  2. Workflow errors - Invalid state transitions, overlaps, missing documents
  3. Transient errors - Lock contention, safe to retry with backoff

USAGE:
  Callers classify with errors.Is:

    if errors.Is(err, engine.ErrInsufficientBalance) {
        // surface precise reason to the employee
    }
    if engine.IsRetryable(err) {
        // back off and retry
    }

SEE ALSO:
  - ledger.go: Uses these errors
  - leave/workflow.go: Wraps these errors with request context
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientBalance is returned when a reservation would drive
	// available-to-request below zero. Recoverable by the employee, never
	// retried blindly.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrOverlap is returned when a request's date range collides with an
	// existing non-terminal request of the same employee.
	ErrOverlap = errors.New("overlapping leave request")

	// ErrMissingDocument is returned when the policy requires a supporting
	// document for the requested duration and none was attached.
	ErrMissingDocument = errors.New("supporting document required")

	// ErrState is returned when a workflow transition is invalid for the
	// request's current status. A client/programming error, not transient.
	ErrState = errors.New("invalid state transition")

	// ErrLockTimeout is returned when a ledger row lock cannot be acquired
	// within the bounded wait. Transient: the caller may retry with backoff.
	ErrLockTimeout = errors.New("ledger row busy")

	// ErrPolicyNotFound is returned when a referenced policy doesn't exist.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrEmployeeNotFound is returned when a referenced employee doesn't exist.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrRequestNotFound is returned when a referenced request doesn't exist.
	ErrRequestNotFound = errors.New("request not found")

	// ErrInvalidSpan is returned when a date range is malformed (to before from).
	ErrInvalidSpan = errors.New("invalid span: to_date before from_date")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError details a reservation shortfall.
type InsufficientBalanceError struct {
	Key       BalanceKey
	Available Days
	Requested Days
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s/%s/%d: available %v, requested %v",
		e.Key.EmployeeID, e.Key.PolicyID, e.Key.Year, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// StateError details an invalid workflow transition.
type StateError struct {
	RequestID string
	Current   string
	Attempted string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s request %s in status %q", e.Attempted, e.RequestID, e.Current)
}

func (e *StateError) Unwrap() error { return ErrState }

// OverlapError identifies the conflicting request.
type OverlapError struct {
	EmployeeID    string
	ConflictingID string
	From, To      Date
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("span [%s, %s] overlaps request %s", e.From, e.To, e.ConflictingID)
}

func (e *OverlapError) Unwrap() error { return ErrOverlap }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrOverlap) ||
		errors.Is(err, ErrMissingDocument) ||
		errors.Is(err, ErrState) ||
		errors.Is(err, ErrInvalidSpan)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrEmployeeNotFound) ||
		errors.Is(err, ErrRequestNotFound)
}
