/*
accrual.go - Scheduled accrual, carry-forward, and notice passes

PURPOSE:
  The accrual engine is a state machine over calendar time, not over a
  single entity. Run once per day, it executes three passes:

    monthly   credit MonthlyAccrual on each policy's accrual day,
              prorated for the join month and truncated at the annual cap
    quarter   at quarter ends, carry forward unused balance up to the
              policy cap; the excess is forfeited
    notice    at quarterEnd - ResetNoticeDays, dispatch pre-reset notices

PARTIAL-FAILURE ISOLATION:
  The passes loop over employees x policies. One failing pair is caught,
  recorded on the run summary, and the pass continues; it never aborts
  the batch. The loop checks ctx between iterations, so a cancelled run
  stops at a consistent, resumable point.

IDEMPOTENT RE-RUNS:
  Each pair's work is gated on "already ran for (policy, employee,
  effective date)" against the accrual log, never on retry counters.
  Re-running a day's passes is safe.
*/
package leave

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/engine"
)

// =============================================================================
// RUN SUMMARY
// =============================================================================

// PairFailure records one (employee, policy) failure without aborting the
// batch. Surfaced only in aggregate, via the run summary.
type PairFailure struct {
	EmployeeID string
	PolicyID   string
	Pass       string
	Err        string
}

type RunSummary struct {
	RunOn          engine.Date
	Credited       int
	CarriedForward int
	NoticesSent    int
	Skipped        int
	Failures       []PairFailure
}

func (s *RunSummary) fail(pass, employeeID, policyID string, err error) {
	s.Failures = append(s.Failures, PairFailure{
		EmployeeID: employeeID,
		PolicyID:   policyID,
		Pass:       pass,
		Err:        err.Error(),
	})
}

// =============================================================================
// ACCRUAL ENGINE
// =============================================================================

type AccrualEngine struct {
	store    TxStore
	ledger   *engine.BalanceLedger
	notifier Notifier
	logger   *zap.Logger
}

func NewAccrualEngine(store TxStore, ledger *engine.BalanceLedger, notifier Notifier, logger *zap.Logger) *AccrualEngine {
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccrualEngine{
		store:    store,
		ledger:   ledger,
		notifier: notifier,
		logger:   logger.Named("accrual"),
	}
}

// RunDaily executes the three passes for a given day. Safe to re-run for
// the same day; already-processed pairs are skipped.
func (e *AccrualEngine) RunDaily(ctx context.Context, today engine.Date) (*RunSummary, error) {
	summary := &RunSummary{RunOn: today}

	policies, err := e.store.ListActivePolicies(ctx)
	if err != nil {
		return summary, fmt.Errorf("list policies: %w", err)
	}
	employees, err := e.store.ListActiveEmployees(ctx)
	if err != nil {
		return summary, fmt.Errorf("list employees: %w", err)
	}

	if err := e.monthlyPass(ctx, today, policies, employees, summary); err != nil {
		return summary, err
	}
	if err := e.quarterPass(ctx, today, policies, employees, summary); err != nil {
		return summary, err
	}
	if err := e.noticePass(ctx, today, policies, employees, summary); err != nil {
		return summary, err
	}

	e.logger.Info("daily run complete",
		zap.String("date", today.String()),
		zap.Int("credited", summary.Credited),
		zap.Int("carried_forward", summary.CarriedForward),
		zap.Int("notices", summary.NoticesSent),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failures", len(summary.Failures)),
	)
	return summary, nil
}

// =============================================================================
// MONTHLY ACCRUAL PASS
// =============================================================================

func (e *AccrualEngine) monthlyPass(ctx context.Context, today engine.Date, policies []*LeavePolicy, employees []*Employee, summary *RunSummary) error {
	for _, policy := range policies {
		if !accrualEffectiveToday(policy, today) {
			continue
		}

		for _, emp := range employees {
			if err := ctx.Err(); err != nil {
				return err // each iteration is its own atomic unit; resumable
			}
			if !policy.Eligibility.Matches(*emp) {
				continue
			}
			if today.Before(emp.JoinDate) {
				continue // no accrual before hire
			}

			key := engine.BalanceKey{EmployeeID: emp.ID, PolicyID: policy.ID, Year: today.Year()}

			done, err := e.store.HasLogEntry(ctx, key, engine.SourceMonthlyAccrual, today)
			if err != nil {
				summary.fail("monthly", emp.ID, policy.ID, err)
				continue
			}
			if done {
				summary.Skipped++
				continue
			}

			amount := prorateForJoinMonth(policy.MonthlyAccrual, emp.JoinDate, today)
			amount = capAtAnnualMax(ctx, e.ledger, key, policy.YearlyQuota, amount)
			if !amount.IsPositive() {
				summary.Skipped++
				continue
			}

			err = e.ledger.Credit(ctx, key, amount, engine.SourceMonthlyAccrual,
				fmt.Sprintf("monthly accrual for %s", policy.Name), today, engine.SystemActor())
			if err != nil {
				summary.fail("monthly", emp.ID, policy.ID, err)
				continue
			}
			summary.Credited++
		}
	}
	return nil
}

// accrualEffectiveToday reports whether the monthly pass takes effect for
// this policy today. Accrual days past month end clamp to the last day.
func accrualEffectiveToday(policy *LeavePolicy, today engine.Date) bool {
	day := policy.AccrualDayOfMonth
	if day <= 0 {
		day = 1
	}
	if max := engine.DaysInMonth(today); day > max {
		day = max
	}
	return today.Day() == day
}

// prorateForJoinMonth scales the first accrual linearly by the remaining
// portion of the join month.
func prorateForJoinMonth(rate engine.Days, joined, today engine.Date) engine.Days {
	if joined.Year() != today.Year() || joined.Month() != today.Month() {
		return rate
	}
	total := engine.DaysInMonth(today)
	remaining := total - joined.Day() + 1
	if remaining >= total {
		return rate
	}
	fraction := engine.DaysFromInt(remaining).Value.Div(engine.DaysFromInt(total).Value)
	return engine.Days{Value: rate.Value.Mul(fraction).Round(2)}
}

// capAtAnnualMax truncates a credit so cumulative accrual never exceeds
// the yearly quota. Never negative.
func capAtAnnualMax(ctx context.Context, ledger *engine.BalanceLedger, key engine.BalanceKey, quota, amount engine.Days) engine.Days {
	if !quota.IsPositive() {
		return amount
	}
	b, err := ledger.Snapshot(ctx, key)
	if err != nil {
		return amount // cap check is advisory; Credit surfaces real errors
	}
	headroom := quota.Sub(b.AccruedThisYear).ClampZero()
	return amount.Min(headroom)
}

// =============================================================================
// QUARTER-END PASS
// =============================================================================

func (e *AccrualEngine) quarterPass(ctx context.Context, today engine.Date, policies []*LeavePolicy, employees []*Employee, summary *RunSummary) error {
	if !engine.IsQuarterEnd(today) {
		return nil
	}

	for _, policy := range policies {
		if !policy.CarryForwardEnabled {
			continue
		}
		if policy.ResetFrequency == ResetAnnual && today.Month() != 12 {
			continue
		}

		for _, emp := range employees {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !policy.Eligibility.Matches(*emp) || today.Before(emp.JoinDate) {
				continue
			}

			key := engine.BalanceKey{EmployeeID: emp.ID, PolicyID: policy.ID, Year: today.Year()}

			done, err := e.store.HasLogEntry(ctx, key, engine.SourceQuarterReset, today)
			if err != nil {
				summary.fail("quarter", emp.ID, policy.ID, err)
				continue
			}
			if done {
				summary.Skipped++
				continue
			}

			res, err := e.ledger.CarryForward(ctx, key, policy.CarryForwardQuarterCap, today, engine.SystemActor())
			if err != nil {
				summary.fail("quarter", emp.ID, policy.ID, err)
				continue
			}
			if res.Moved.IsPositive() || res.Forfeited.IsPositive() {
				summary.CarriedForward++
			}
		}
	}
	return nil
}

// =============================================================================
// PRE-RESET NOTICE PASS
// =============================================================================

func (e *AccrualEngine) noticePass(ctx context.Context, today engine.Date, policies []*LeavePolicy, employees []*Employee, summary *RunSummary) error {
	quarterEnd := engine.QuarterEnd(today)

	for _, policy := range policies {
		if policy.ResetNoticeDays <= 0 {
			continue
		}
		if !today.Equal(quarterEnd.AddDays(-policy.ResetNoticeDays)) {
			continue
		}

		var recipients []string
		for _, emp := range employees {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !policy.Eligibility.Matches(*emp) || today.Before(emp.JoinDate) {
				continue
			}

			key := engine.BalanceKey{EmployeeID: emp.ID, PolicyID: policy.ID, Year: today.Year()}
			done, err := e.store.HasLogEntry(ctx, key, engine.SourceResetNotice, quarterEnd)
			if err != nil {
				summary.fail("notice", emp.ID, policy.ID, err)
				continue
			}
			if done {
				summary.Skipped++
				continue
			}
			recipients = append(recipients, emp.ID)
		}

		if len(recipients) == 0 {
			continue
		}
		err := e.notifier.Notify(ctx, Notification{
			Event:         EventPreResetNotice,
			EmployeeIDs:   recipients,
			PolicyID:      policy.ID,
			EffectiveDate: quarterEnd,
		})
		if err != nil {
			// No gate entries written: the next run retries the dispatch.
			summary.fail("notice", "*", policy.ID, err)
			continue
		}

		// Gate entries follow the delivered dispatch. A crash between
		// dispatch and gating redelivers; the reverse order would drop
		// the notice forever.
		for _, id := range recipients {
			key := engine.BalanceKey{EmployeeID: id, PolicyID: policy.ID, Year: today.Year()}
			err := e.store.WithTx(ctx, func(s engine.Store) error {
				return s.AppendLog(ctx, engine.AccrualLogEntry{
					ID:          fmt.Sprintf("%s:%s:%d:notice:%s", id, policy.ID, today.Year(), quarterEnd),
					Key:         key,
					Quantity:    engine.ZeroDays(),
					Source:      engine.SourceResetNotice,
					Note:        "pre-reset notice dispatched",
					EffectiveOn: quarterEnd,
					Actor:       engine.SystemActor(),
				})
			})
			if err != nil {
				summary.fail("notice", id, policy.ID, err)
				continue
			}
			summary.NoticesSent++
		}
	}
	return nil
}
