/*
request.go - Leave request record and audit timeline

PURPOSE:
  The LeaveRequest row and its append-only timeline. A request is owned
  by the submitting employee until it reaches a terminal state; after
  that it is immutable except for administrative date-overwrite, which
  re-opens the reservation math.

STATE MACHINE:
  pending       -> approved | rejected | clarification | cancelled
  clarification -> approved | rejected

  Terminal: approved, rejected, cancelled. Clarification is a
  side-channel, not terminal.

TIMELINE:
  One entry per state transition: action, free-text note, tagged actor.
  Never updated or deleted; the sole source of historical truth.
*/
package leave

import (
	"fmt"
	"time"

	"github.com/warp/leave-engine/engine"
)

// =============================================================================
// REQUEST STATUS
// =============================================================================

type RequestStatus string

const (
	StatusPending       RequestStatus = "pending"
	StatusApproved      RequestStatus = "approved"
	StatusRejected      RequestStatus = "rejected"
	StatusClarification RequestStatus = "clarification"
	StatusCancelled     RequestStatus = "cancelled"
)

// IsTerminal reports whether no further workflow transition is permitted
// (administrative override excepted).
func (s RequestStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected || s == StatusCancelled
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type LeaveRequest struct {
	ID         string
	EmployeeID string
	PolicyID   string

	FromDate       engine.Date
	ToDate         engine.Date
	PartialDay     bool
	PartialSession PartialSession

	// Day arithmetic. TotalDays = EstimatedDays + SandwichAppliedDays and
	// is the amount reserved on the ledger.
	EstimatedDays       engine.Days
	SandwichAppliedDays engine.Days
	TotalDays           engine.Days

	Status RequestStatus
	Reason string

	// Collaborator references
	AttachmentRef string // storage ref; empty = no attachment
	ConflictNote  string // optional conflict-check payload

	SubmittedAt            time.Time
	ApprovedAt             *time.Time
	RejectedAt             *time.Time
	CancelledAt            *time.Time
	ClarificationRequested *time.Time
	UpdatedAt              time.Time
}

// Year returns the ledger year the request charges against.
func (r *LeaveRequest) Year() int { return r.FromDate.Year() }

// BalanceKey returns the ledger row this request reserves on.
func (r *LeaveRequest) BalanceKey() engine.BalanceKey {
	return engine.BalanceKey{EmployeeID: r.EmployeeID, PolicyID: r.PolicyID, Year: r.Year()}
}

// OverlapsSpan reports whether [from, to] intersects this request's span.
func (r *LeaveRequest) OverlapsSpan(from, to engine.Date) bool {
	return !to.Before(r.FromDate) && !from.After(r.ToDate)
}

// =============================================================================
// TIMELINE - Append-only audit log
// =============================================================================

type TimelineAction string

const (
	ActionSubmitted        TimelineAction = "submitted"
	ActionApproved         TimelineAction = "approved"
	ActionRejected         TimelineAction = "rejected"
	ActionCancelled        TimelineAction = "cancelled"
	ActionClarification    TimelineAction = "clarification_requested"
	ActionDatesOverwritten TimelineAction = "dates_overwritten"
)

type TimelineEntry struct {
	ID        string
	RequestID string
	Action    TimelineAction
	Note      string
	Actor     engine.Actor
	At        time.Time
}

// transitionKey derives the idempotency key for a ledger-affecting
// transition. The ledger primitives themselves are retry-unsafe; this
// seam plus the in-transaction status check confines retry safety here.
func transitionKey(requestID string, action TimelineAction) string {
	return fmt.Sprintf("%s:%s", requestID, action)
}
