/*
workflow.go - Leave request lifecycle

PURPOSE:
  Drives a request from submission to terminal state and keeps the
  ledger honest along the way:

    submit   estimate + sandwich -> Reserve(total)   -> pending
    approve  Consume(total)                          -> approved
    reject   Release(total)                          -> rejected
    cancel   Release(total), only before from_date   -> cancelled
    clarify  status + timeline only                  -> clarification

  Administrative date-overwrite re-opens the reservation math on a
  pending or approved request: the ledger moves by newTotal - oldTotal.

ATOMICITY:
  Every ledger-affecting transition executes the status change, the
  timeline append, and the ledger mutation inside ONE store transaction,
  under the row lock. The status is re-checked inside the transaction:
  that check, keyed per (request, transition), is the idempotency seam
  over the retry-unsafe ledger primitives.

SEE ALSO:
  - engine/ledger.go: The five ledger operations and in-tx primitives
  - sandwich.go: Day counting
  - accrual.go: The scheduled passes feeding the same ledger rows
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/engine"
)

// =============================================================================
// WORKFLOW
// =============================================================================

type Workflow struct {
	store    TxStore
	ledger   *engine.BalanceLedger
	calc     *SandwichCalculator
	notifier Notifier
	logger   *zap.Logger

	now func() time.Time // injectable for tests
}

func NewWorkflow(store TxStore, ledger *engine.BalanceLedger, calc *SandwichCalculator, notifier Notifier, logger *zap.Logger) *Workflow {
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		store:    store,
		ledger:   ledger,
		calc:     calc,
		notifier: notifier,
		logger:   logger.Named("workflow"),
		now:      time.Now,
	}
}

// SetClock overrides the workflow clock (tests pin the cancellation boundary).
func (w *Workflow) SetClock(now func() time.Time) { w.now = now }

// =============================================================================
// SUBMIT
// =============================================================================

type SubmitInput struct {
	EmployeeID     string
	PolicyID       string
	From, To       engine.Date
	PartialDay     bool
	PartialSession PartialSession
	Reason         string
	AttachmentRef  string
}

// Submit validates the request, computes estimated + sandwich days, and
// reserves the total on the ledger. The reservation, the request row, and
// the timeline entry land atomically; a failed reservation fails the
// whole submission.
func (w *Workflow) Submit(ctx context.Context, in SubmitInput) (*LeaveRequest, error) {
	if in.To.Before(in.From) {
		return nil, engine.ErrInvalidSpan
	}
	if in.PartialDay && !in.From.Equal(in.To) {
		return nil, fmt.Errorf("%w: partial day requires a single-day span", engine.ErrInvalidSpan)
	}

	policy, err := w.store.GetPolicy(ctx, in.PolicyID)
	if err != nil {
		return nil, err
	}
	if policy == nil || !policy.Active {
		return nil, engine.ErrPolicyNotFound
	}
	emp, err := w.store.GetEmployee(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	if emp == nil {
		return nil, engine.ErrEmployeeNotFound
	}

	// No overlap with the employee's own non-terminal requests, across
	// all policies.
	open, err := w.store.ListOpenRequests(ctx, in.EmployeeID)
	if err != nil {
		return nil, err
	}
	for _, o := range open {
		if o.OverlapsSpan(in.From, in.To) {
			return nil, &engine.OverlapError{
				EmployeeID:    in.EmployeeID,
				ConflictingID: o.ID,
				From:          in.From,
				To:            in.To,
			}
		}
	}

	count, err := w.calc.Count(ctx, policy, in.From, in.To, in.PartialDay)
	if err != nil {
		return nil, err
	}
	total := count.Total()

	if policy.RequireDocumentOverDays.IsPositive() &&
		!total.LessThan(policy.RequireDocumentOverDays) &&
		in.AttachmentRef == "" {
		return nil, fmt.Errorf("policy %s: %w", policy.ID, engine.ErrMissingDocument)
	}

	now := w.now().UTC()
	r := &LeaveRequest{
		ID:                  uuid.NewString(),
		EmployeeID:          in.EmployeeID,
		PolicyID:            in.PolicyID,
		FromDate:            in.From,
		ToDate:              in.To,
		PartialDay:          in.PartialDay,
		PartialSession:      in.PartialSession,
		EstimatedDays:       count.Estimated,
		SandwichAppliedDays: count.Sandwich,
		TotalDays:           total,
		Status:              StatusPending,
		Reason:              in.Reason,
		AttachmentRef:       in.AttachmentRef,
		SubmittedAt:         now,
		UpdatedAt:           now,
	}

	key := r.BalanceKey()
	err = w.ledger.Locked(ctx, key, func() error {
		return w.store.WithTx(ctx, func(es engine.Store) error {
			s, ok := AsLeaveStore(es)
			if !ok {
				return fmt.Errorf("store transaction does not expose the leave surface")
			}
			if err := engine.ReserveIn(ctx, es, key, total); err != nil {
				return err
			}
			if err := s.SaveRequest(ctx, r); err != nil {
				return err
			}
			return s.AppendTimeline(ctx, TimelineEntry{
				ID:        transitionKey(r.ID, ActionSubmitted),
				RequestID: r.ID,
				Action:    ActionSubmitted,
				Note:      in.Reason,
				Actor:     engine.Actor{Type: engine.ActorEmployee, ID: in.EmployeeID},
				At:        now,
			})
		})
	})
	if err != nil {
		return nil, err
	}

	w.dispatch(ctx, EventRequestSubmitted, r)
	return r, nil
}

// =============================================================================
// APPROVE
// =============================================================================

// DateOverride lets an approver overwrite the span inline. Overwritten
// dates are treated as administratively exact: the total is recomputed
// from working days only, sandwich reset to zero.
type DateOverride struct {
	From, To engine.Date
}

// Approve finalizes the reservation: requires pending or clarification.
func (w *Workflow) Approve(ctx context.Context, requestID string, actor engine.Actor, comment string, override *DateOverride) (*LeaveRequest, error) {
	r, err := w.mustGetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending && r.Status != StatusClarification {
		return nil, &engine.StateError{RequestID: requestID, Current: string(r.Status), Attempted: "approve"}
	}

	// Override totals are computed up front; the hold being replaced is
	// read from the re-read row under the lock, never from the pre-read.
	var overrideCount *DayCount
	if override != nil {
		if override.To.Before(override.From) {
			return nil, engine.ErrInvalidSpan
		}
		policy, err := w.store.GetPolicy(ctx, r.PolicyID)
		if err != nil {
			return nil, err
		}
		count, err := w.calc.Count(ctx, policy, override.From, override.To, r.PartialDay)
		if err != nil {
			return nil, err
		}
		overrideCount = &count
	}

	now := w.now().UTC()
	key := r.BalanceKey()
	err = w.ledger.Locked(ctx, key, func() error {
		return w.store.WithTx(ctx, func(es engine.Store) error {
			s, ok := AsLeaveStore(es)
			if !ok {
				return fmt.Errorf("store transaction does not expose the leave surface")
			}
			cur, err := w.recheckStatus(ctx, s, requestID, "approve", StatusPending, StatusClarification)
			if err != nil {
				return err
			}

			oldTotal := cur.TotalDays
			newTotal := oldTotal
			if overrideCount != nil {
				newTotal = overrideCount.Estimated // sandwich reset to 0 on overwrite
				cur.FromDate = override.From
				cur.ToDate = override.To
				cur.EstimatedDays = overrideCount.Estimated
				cur.SandwichAppliedDays = engine.ZeroDays()
				cur.TotalDays = newTotal
			}

			if !newTotal.Equal(oldTotal) {
				// Reservation delta first: drop the old hold, take the
				// exact hold, then consume it.
				if err := engine.ReleaseIn(ctx, es, key, oldTotal); err != nil {
					return err
				}
				if err := engine.ReserveIn(ctx, es, key, newTotal); err != nil {
					return err
				}
			}
			if err := engine.ConsumeIn(ctx, es, key, newTotal); err != nil {
				return err
			}

			cur.Status = StatusApproved
			cur.ApprovedAt = &now
			cur.UpdatedAt = now
			if err := s.SaveRequest(ctx, cur); err != nil {
				return err
			}
			if err := s.AppendTimeline(ctx, TimelineEntry{
				ID:        transitionKey(cur.ID, ActionApproved),
				RequestID: cur.ID,
				Action:    ActionApproved,
				Note:      comment,
				Actor:     actor,
				At:        now,
			}); err != nil {
				return err
			}
			r = cur
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	w.dispatch(ctx, EventRequestApproved, r)
	return r, nil
}

// =============================================================================
// REJECT / CLARIFY / CANCEL
// =============================================================================

// Reject releases the reservation: requires pending or clarification.
func (w *Workflow) Reject(ctx context.Context, requestID string, actor engine.Actor, comment string) (*LeaveRequest, error) {
	r, err := w.mustGetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending && r.Status != StatusClarification {
		return nil, &engine.StateError{RequestID: requestID, Current: string(r.Status), Attempted: "reject"}
	}

	now := w.now().UTC()
	key := r.BalanceKey()
	err = w.ledger.Locked(ctx, key, func() error {
		return w.store.WithTx(ctx, func(es engine.Store) error {
			s, ok := AsLeaveStore(es)
			if !ok {
				return fmt.Errorf("store transaction does not expose the leave surface")
			}
			cur, err := w.recheckStatus(ctx, s, requestID, "reject", StatusPending, StatusClarification)
			if err != nil {
				return err
			}
			if err := engine.ReleaseIn(ctx, es, key, cur.TotalDays); err != nil {
				return err
			}

			cur.Status = StatusRejected
			cur.RejectedAt = &now
			cur.UpdatedAt = now
			if err := s.SaveRequest(ctx, cur); err != nil {
				return err
			}
			if err := s.AppendTimeline(ctx, TimelineEntry{
				ID:        transitionKey(cur.ID, ActionRejected),
				RequestID: cur.ID,
				Action:    ActionRejected,
				Note:      comment,
				Actor:     actor,
				At:        now,
			}); err != nil {
				return err
			}
			r = cur
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	w.dispatch(ctx, EventRequestRejected, r)
	return r, nil
}

// RequestClarification parks the request in the clarification
// side-channel. No ledger effect; the reservation stays in place.
func (w *Workflow) RequestClarification(ctx context.Context, requestID string, actor engine.Actor, comment string) (*LeaveRequest, error) {
	r, err := w.mustGetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending && r.Status != StatusClarification {
		return nil, &engine.StateError{RequestID: requestID, Current: string(r.Status), Attempted: "request clarification"}
	}

	now := w.now().UTC()
	r.Status = StatusClarification
	r.ClarificationRequested = &now
	r.UpdatedAt = now

	err = w.store.WithTx(ctx, func(es engine.Store) error {
		s, ok := AsLeaveStore(es)
		if !ok {
			return fmt.Errorf("store transaction does not expose the leave surface")
		}
		if err := s.SaveRequest(ctx, r); err != nil {
			return err
		}
		return s.AppendTimeline(ctx, TimelineEntry{
			ID:        uuid.NewString(), // clarification may recur
			RequestID: r.ID,
			Action:    ActionClarification,
			Note:      comment,
			Actor:     actor,
			At:        now,
		})
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Cancel is employee-initiated: requires pending status and a start date
// strictly in the future.
func (w *Workflow) Cancel(ctx context.Context, requestID string, actor engine.Actor, comment string) (*LeaveRequest, error) {
	r, err := w.mustGetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending {
		return nil, &engine.StateError{RequestID: requestID, Current: string(r.Status), Attempted: "cancel"}
	}
	if actor.Type == engine.ActorEmployee && actor.ID != r.EmployeeID {
		return nil, fmt.Errorf("request %s is not owned by %s: %w", requestID, actor.ID, engine.ErrState)
	}

	today := engine.DateOf(w.now().UTC())
	if !today.Before(r.FromDate) {
		return nil, &engine.StateError{RequestID: requestID, Current: string(r.Status), Attempted: "cancel on or after start date"}
	}

	now := w.now().UTC()
	key := r.BalanceKey()
	err = w.ledger.Locked(ctx, key, func() error {
		return w.store.WithTx(ctx, func(es engine.Store) error {
			s, ok := AsLeaveStore(es)
			if !ok {
				return fmt.Errorf("store transaction does not expose the leave surface")
			}
			cur, err := w.recheckStatus(ctx, s, requestID, "cancel", StatusPending)
			if err != nil {
				return err
			}
			// An overwrite may have moved the start date since the
			// pre-read; the boundary holds against the current dates.
			if !today.Before(cur.FromDate) {
				return &engine.StateError{RequestID: requestID, Current: string(cur.Status), Attempted: "cancel on or after start date"}
			}
			if err := engine.ReleaseIn(ctx, es, key, cur.TotalDays); err != nil {
				return err
			}

			cur.Status = StatusCancelled
			cur.CancelledAt = &now
			cur.UpdatedAt = now
			if err := s.SaveRequest(ctx, cur); err != nil {
				return err
			}
			if err := s.AppendTimeline(ctx, TimelineEntry{
				ID:        transitionKey(cur.ID, ActionCancelled),
				RequestID: cur.ID,
				Action:    ActionCancelled,
				Note:      comment,
				Actor:     actor,
				At:        now,
			}); err != nil {
				return err
			}
			r = cur
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// =============================================================================
// ADMINISTRATIVE DATE OVERWRITE
// =============================================================================

// OverwriteDates rewrites the span of a pending or approved request and
// adjusts the ledger by newTotal - oldTotal. This is the single operation
// allowed to touch a terminal-ish record and the ledger after the fact.
func (w *Workflow) OverwriteDates(ctx context.Context, requestID string, actor engine.Actor, from, to engine.Date, note string) (*LeaveRequest, error) {
	if actor.Type != engine.ActorAdmin {
		return nil, fmt.Errorf("date overwrite requires an admin actor: %w", engine.ErrState)
	}
	if to.Before(from) {
		return nil, engine.ErrInvalidSpan
	}

	r, err := w.mustGetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if r.Status != StatusPending && r.Status != StatusApproved {
		return nil, &engine.StateError{RequestID: requestID, Current: string(r.Status), Attempted: "overwrite dates"}
	}

	policy, err := w.store.GetPolicy(ctx, r.PolicyID)
	if err != nil {
		return nil, err
	}
	count, err := w.calc.Count(ctx, policy, from, to, r.PartialDay)
	if err != nil {
		return nil, err
	}
	newTotal := count.Estimated // administratively exact: sandwich reset to 0

	now := w.now().UTC()
	key := r.BalanceKey()
	err = w.ledger.Locked(ctx, key, func() error {
		return w.store.WithTx(ctx, func(es engine.Store) error {
			s, ok := AsLeaveStore(es)
			if !ok {
				return fmt.Errorf("store transaction does not expose the leave surface")
			}
			cur, err := w.recheckStatus(ctx, s, requestID, "overwrite dates", StatusPending, StatusApproved)
			if err != nil {
				return err
			}
			oldTotal := cur.TotalDays

			if cur.Status == StatusPending {
				// Reservation delta: swap the hold for the new amount.
				if err := engine.ReleaseIn(ctx, es, key, oldTotal); err != nil {
					return err
				}
				if err := engine.ReserveIn(ctx, es, key, newTotal); err != nil {
					return err
				}
			} else {
				// Already consumed: debit the growth or refund the shrink.
				delta := newTotal.Sub(oldTotal)
				switch {
				case delta.IsPositive():
					if err := engine.ReserveIn(ctx, es, key, delta); err != nil {
						return err
					}
					if err := engine.ConsumeIn(ctx, es, key, delta); err != nil {
						return err
					}
				case delta.IsNegative():
					if err := engine.RefundIn(ctx, es, key, delta.Neg()); err != nil {
						return err
					}
				}
			}

			cur.FromDate = from
			cur.ToDate = to
			cur.EstimatedDays = count.Estimated
			cur.SandwichAppliedDays = engine.ZeroDays()
			cur.TotalDays = newTotal
			cur.UpdatedAt = now
			if err := s.SaveRequest(ctx, cur); err != nil {
				return err
			}
			if err := s.AppendTimeline(ctx, TimelineEntry{
				ID:        uuid.NewString(), // dates may be overwritten more than once
				RequestID: cur.ID,
				Action:    ActionDatesOverwritten,
				Note:      note,
				Actor:     actor,
				At:        now,
			}); err != nil {
				return err
			}
			r = cur
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Timeline returns the request's append-only audit trail.
func (w *Workflow) Timeline(ctx context.Context, requestID string) ([]TimelineEntry, error) {
	return w.store.TimelineFor(ctx, requestID)
}

// =============================================================================
// HELPERS
// =============================================================================

func (w *Workflow) mustGetRequest(ctx context.Context, id string) (*LeaveRequest, error) {
	r, err := w.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, engine.ErrRequestNotFound
	}
	return r, nil
}

// recheckStatus re-reads the request inside the transaction and
// re-validates the transition precondition. A retried transition observes
// the already-updated status and fails here instead of double-applying
// the ledger op. The returned row is authoritative: totals and dates may
// have changed since the caller's pre-read (a committed date overwrite),
// so every ledger mutation must use the returned row, never the pre-read.
func (w *Workflow) recheckStatus(ctx context.Context, s Store, requestID, attempted string, allowed ...RequestStatus) (*LeaveRequest, error) {
	current, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, engine.ErrRequestNotFound
	}
	for _, a := range allowed {
		if current.Status == a {
			return current, nil
		}
	}
	return nil, &engine.StateError{RequestID: requestID, Current: string(current.Status), Attempted: attempted}
}

func (w *Workflow) dispatch(ctx context.Context, event EventType, r *LeaveRequest) {
	err := w.notifier.Notify(ctx, Notification{
		Event:         event,
		EmployeeIDs:   []string{r.EmployeeID},
		PolicyID:      r.PolicyID,
		EffectiveDate: r.FromDate,
		RequestID:     r.ID,
	})
	if err != nil {
		// Delivery is best-effort; the transition already committed.
		w.logger.Warn("notification dispatch failed",
			zap.String("event", string(event)),
			zap.String("request", r.ID),
			zap.Error(err))
	}
}
