/*
sandwich.go - Sandwich-rule day counter

PURPOSE:
  Splits a leave span into the two counts the workflow reconciles:

    Estimated  working days actually taken as leave
    Sandwich   non-working days charged anyway under the sandwich rule

THE RULE:
  A run of non-working days (weekend/holiday) is counted as leave if and
  only if a working day taken as leave exists immediately before AND
  after the run, inside the span. Runs touching the span boundary with no
  working leave day on the outer side are free.

PINNED FIXTURES (sandwich_test.go):
  - Mon..next-Mon with one weekend inside, rule on  -> sandwich = 2
  - Single Friday                                   -> sandwich = 0
  - Span entirely non-working                       -> estimated = 0, sandwich = 0
  - Rule off                                        -> sandwich = 0 always
*/
package leave

import (
	"context"

	"github.com/warp/leave-engine/engine"
)

// PartialSession selects which half of a partial day is taken.
type PartialSession string

const (
	SessionNone       PartialSession = ""
	SessionFirstHalf  PartialSession = "first_half"
	SessionSecondHalf PartialSession = "second_half"
)

// DayCount is the reconciled day arithmetic for a leave span.
type DayCount struct {
	Estimated engine.Days // calendar-derived working days
	Sandwich  engine.Days // charged non-working days
}

func (dc DayCount) Total() engine.Days { return dc.Estimated.Add(dc.Sandwich) }

// =============================================================================
// SANDWICH CALCULATOR
// =============================================================================

type SandwichCalculator struct {
	cal *Calendar
}

func NewSandwichCalculator(cal *Calendar) *SandwichCalculator {
	return &SandwichCalculator{cal: cal}
}

// Count computes estimated and sandwich days for [from, to].
// partialDay halves the estimate and is only valid for a single-day span.
func (sc *SandwichCalculator) Count(ctx context.Context, policy *LeavePolicy, from, to engine.Date, partialDay bool) (DayCount, error) {
	if to.Before(from) {
		return DayCount{}, engine.ErrInvalidSpan
	}

	count := DayCount{Estimated: engine.ZeroDays(), Sandwich: engine.ZeroDays()}

	// Working-day estimate. A partial day is half a day but still counts
	// as a working leave day for enclosure purposes.
	working := 0
	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		if !sc.cal.IsNonWorking(ctx, d) {
			working++
		}
	}
	if partialDay && from.Equal(to) {
		if working > 0 {
			count.Estimated = engine.DaysOf(0.5)
		}
		return count, nil
	}
	count.Estimated = engine.DaysFromInt(working)

	if !policy.SandwichRule || working == 0 || from.Equal(to) {
		// Nothing to sandwich against: rule off, span entirely
		// non-working, or a single-day request.
		return count, nil
	}

	count.Sandwich = engine.DaysFromInt(sc.enclosedNonWorking(ctx, from, to))
	return count, nil
}

// enclosedNonWorking counts non-working days in runs strictly enclosed by
// working days within [from, to]. Leading and trailing runs are free.
func (sc *SandwichCalculator) enclosedNonWorking(ctx context.Context, from, to engine.Date) int {
	charged := 0
	runLen := 0
	seenWorkingBefore := false

	for d := from; d.BeforeOrEqual(to); d = d.AddDays(1) {
		if sc.cal.IsNonWorking(ctx, d) {
			if seenWorkingBefore {
				runLen++
			}
			continue
		}
		// Working day closes any open run: the run had a working leave
		// day before it, and this day bounds it after.
		charged += runLen
		runLen = 0
		seenWorkingBefore = true
	}
	// A run still open at span end has no working leave day after it.
	return charged
}
