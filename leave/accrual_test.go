package leave_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// captureNotifier records dispatched notifications for assertions.
type captureNotifier struct {
	notes []leave.Notification
	fail  error // when set, Notify returns it and records nothing
}

func (c *captureNotifier) Notify(_ context.Context, n leave.Notification) error {
	if c.fail != nil {
		return c.fail
	}
	c.notes = append(c.notes, n)
	return nil
}

type accrualEnv struct {
	store    *memory.TxMemory
	ledger   *engine.BalanceLedger
	engine   *leave.AccrualEngine
	notifier *captureNotifier
}

func newAccrualEnv(t *testing.T) *accrualEnv {
	t.Helper()
	store := memory.NewTxMemory()
	ledger := engine.NewBalanceLedger(store, nil)
	notifier := &captureNotifier{}
	return &accrualEnv{
		store:    store,
		ledger:   ledger,
		engine:   leave.NewAccrualEngine(store, ledger, notifier, nil),
		notifier: notifier,
	}
}

func accrualPolicy() *leave.LeavePolicy {
	return &leave.LeavePolicy{
		ID:                "annual",
		Name:              "Annual Leave",
		YearlyQuota:       engine.DaysFromInt(18),
		MonthlyAccrual:    engine.DaysOf(1.5),
		AccrualDayOfMonth: 1,
		ResetFrequency:    leave.ResetQuarterly,
		Active:            true,
	}
}

func (e *accrualEnv) seedPolicy(t *testing.T, p *leave.LeavePolicy) {
	t.Helper()
	require.NoError(t, e.store.SavePolicy(context.Background(), p))
}

func (e *accrualEnv) seedEmployee(t *testing.T, id string, joined engine.Date) {
	t.Helper()
	require.NoError(t, e.store.SaveEmployee(context.Background(), &leave.Employee{
		ID: id, Name: id, JoinDate: joined, Active: true,
	}))
}

func (e *accrualEnv) balance(t *testing.T, emp, policy string, year int) *engine.LeaveBalance {
	t.Helper()
	b, err := e.ledger.Snapshot(context.Background(), engine.BalanceKey{EmployeeID: emp, PolicyID: policy, Year: year})
	require.NoError(t, err)
	return b
}

// =============================================================================
// MONTHLY PASS
// =============================================================================

func TestAccrual_Monthly_CreditsOnAccrualDay(t *testing.T) {
	// GIVEN: Policy accruing 1.5 on the 1st, one eligible employee
	// WHEN: Running on March 1
	// THEN: 1.5 credited with a MONTHLY_ACCRUAL log entry

	env := newAccrualEnv(t)
	env.seedPolicy(t, accrualPolicy())
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Credited)
	assert.Empty(t, summary.Failures)

	b := env.balance(t, "emp-1", "annual", 2025)
	assert.True(t, b.Balance.Equal(engine.DaysOf(1.5)))
	assert.True(t, b.AccruedThisYear.Equal(engine.DaysOf(1.5)))
}

func TestAccrual_Monthly_OffDay_NoCredit(t *testing.T) {
	env := newAccrualEnv(t)
	env.seedPolicy(t, accrualPolicy())
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 2))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Credited)
	assert.True(t, env.balance(t, "emp-1", "annual", 2025).Balance.IsZero())
}

func TestAccrual_Monthly_RerunSameDay_Idempotent(t *testing.T) {
	// GIVEN: The March 1 pass already ran
	// WHEN: Re-running for the same day
	// THEN: The pair is skipped; no double credit

	env := newAccrualEnv(t)
	env.seedPolicy(t, accrualPolicy())
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))
	day := engine.NewDate(2025, time.March, 1)

	_, err := env.engine.RunDaily(context.Background(), day)
	require.NoError(t, err)

	summary, err := env.engine.RunDaily(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Credited)
	assert.Equal(t, 1, summary.Skipped)
	assert.True(t, env.balance(t, "emp-1", "annual", 2025).Balance.Equal(engine.DaysOf(1.5)))
}

func TestAccrual_Monthly_JoinMonthProrated(t *testing.T) {
	// GIVEN: Employee joined March 16; March has 31 days
	// WHEN: The March accrual (day 31) lands
	// THEN: The join-month credit is prorated: 16 of 31 days remain,
	//       1.5 * 16/31 = 0.77 (rounded to 2 places)

	env := newAccrualEnv(t)
	p := accrualPolicy()
	p.AccrualDayOfMonth = 31
	env.seedPolicy(t, p)
	env.seedEmployee(t, "emp-1", engine.NewDate(2025, time.March, 16))

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 31))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Credited)

	b := env.balance(t, "emp-1", "annual", 2025)
	assert.True(t, b.Balance.Equal(engine.DaysOf(0.77)), "balance = %s", b.Balance)
}

func TestAccrual_Monthly_BeforeHireDate_Skipped(t *testing.T) {
	env := newAccrualEnv(t)
	env.seedPolicy(t, accrualPolicy())
	env.seedEmployee(t, "emp-1", engine.NewDate(2025, time.June, 1))

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Credited)
}

func TestAccrual_Monthly_AnnualCapTruncates(t *testing.T) {
	// GIVEN: Quota 2, already accrued 1.5
	// WHEN: The next 1.5 accrual lands
	// THEN: Only the 0.5 headroom is credited

	env := newAccrualEnv(t)
	p := accrualPolicy()
	p.YearlyQuota = engine.DaysFromInt(2)
	env.seedPolicy(t, p)
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))

	k := engine.BalanceKey{EmployeeID: "emp-1", PolicyID: "annual", Year: 2025}
	require.NoError(t, env.ledger.Credit(context.Background(), k, engine.DaysOf(1.5),
		engine.SourceMonthlyAccrual, "prior month", engine.NewDate(2025, time.February, 1), engine.SystemActor()))

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Credited)

	b := env.balance(t, "emp-1", "annual", 2025)
	assert.True(t, b.AccruedThisYear.Equal(engine.DaysFromInt(2)))
}

func TestAccrual_Monthly_AtCap_Skipped(t *testing.T) {
	env := newAccrualEnv(t)
	p := accrualPolicy()
	p.YearlyQuota = engine.DaysOf(1.5)
	env.seedPolicy(t, p)
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))

	k := engine.BalanceKey{EmployeeID: "emp-1", PolicyID: "annual", Year: 2025}
	require.NoError(t, env.ledger.Credit(context.Background(), k, engine.DaysOf(1.5),
		engine.SourceMonthlyAccrual, "prior month", engine.NewDate(2025, time.February, 1), engine.SystemActor()))

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Credited)
	assert.Equal(t, 1, summary.Skipped)
}

func TestAccrual_Monthly_EligibilityFilter(t *testing.T) {
	env := newAccrualEnv(t)
	p := accrualPolicy()
	p.Eligibility = leave.Eligibility{Departments: []string{"engineering"}}
	env.seedPolicy(t, p)
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1)) // no department

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Credited)
}

func TestAccrual_Monthly_AccrualDayClampsToMonthEnd(t *testing.T) {
	// Accrual day 31 takes effect on February 28 in a non-leap year.
	env := newAccrualEnv(t)
	p := accrualPolicy()
	p.AccrualDayOfMonth = 31
	env.seedPolicy(t, p)
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.February, 28))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Credited)
}

// =============================================================================
// QUARTER-END PASS
// =============================================================================

func TestAccrual_Quarter_CarryForwardWithCap(t *testing.T) {
	// GIVEN: 5 unused days, carry-forward cap 3
	// WHEN: Running on March 31
	// THEN: 3 carried, 2 forfeited, standing balance zeroed

	env := newAccrualEnv(t)
	p := accrualPolicy()
	p.CarryForwardEnabled = true
	p.CarryForwardQuarterCap = engine.DaysFromInt(3)
	env.seedPolicy(t, p)
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))

	k := engine.BalanceKey{EmployeeID: "emp-1", PolicyID: "annual", Year: 2025}
	require.NoError(t, env.ledger.Credit(context.Background(), k, engine.DaysFromInt(5),
		engine.SourceManualAdjustment, "seed", engine.NewDate(2025, time.January, 1), engine.SystemActor()))

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 31))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CarriedForward)

	b := env.balance(t, "emp-1", "annual", 2025)
	assert.True(t, b.Balance.IsZero())
	assert.True(t, b.CarryForward.Equal(engine.DaysFromInt(3)))
}

func TestAccrual_Quarter_Rerun_Idempotent(t *testing.T) {
	env := newAccrualEnv(t)
	p := accrualPolicy()
	p.CarryForwardEnabled = true
	p.CarryForwardQuarterCap = engine.DaysFromInt(3)
	env.seedPolicy(t, p)
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))

	k := engine.BalanceKey{EmployeeID: "emp-1", PolicyID: "annual", Year: 2025}
	require.NoError(t, env.ledger.Credit(context.Background(), k, engine.DaysFromInt(5),
		engine.SourceManualAdjustment, "seed", engine.NewDate(2025, time.January, 1), engine.SystemActor()))

	day := engine.NewDate(2025, time.March, 31)
	_, err := env.engine.RunDaily(context.Background(), day)
	require.NoError(t, err)

	_, err = env.engine.RunDaily(context.Background(), day)
	require.NoError(t, err)

	b := env.balance(t, "emp-1", "annual", 2025)
	assert.True(t, b.CarryForward.Equal(engine.DaysFromInt(3)), "second run must not carry again")
}

func TestAccrual_Quarter_NotQuarterEnd_NoOp(t *testing.T) {
	env := newAccrualEnv(t)
	p := accrualPolicy()
	p.CarryForwardEnabled = true
	p.CarryForwardQuarterCap = engine.DaysFromInt(3)
	env.seedPolicy(t, p)
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))

	k := engine.BalanceKey{EmployeeID: "emp-1", PolicyID: "annual", Year: 2025}
	require.NoError(t, env.ledger.Credit(context.Background(), k, engine.DaysFromInt(5),
		engine.SourceManualAdjustment, "seed", engine.NewDate(2025, time.January, 1), engine.SystemActor()))

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 30))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.CarriedForward)
	assert.True(t, env.balance(t, "emp-1", "annual", 2025).Balance.Equal(engine.DaysFromInt(5)))
}

func TestAccrual_Quarter_CarryForwardDisabled(t *testing.T) {
	env := newAccrualEnv(t)
	env.seedPolicy(t, accrualPolicy()) // CarryForwardEnabled false
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))

	k := engine.BalanceKey{EmployeeID: "emp-1", PolicyID: "annual", Year: 2025}
	require.NoError(t, env.ledger.Credit(context.Background(), k, engine.DaysFromInt(5),
		engine.SourceManualAdjustment, "seed", engine.NewDate(2025, time.January, 1), engine.SystemActor()))

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 31))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.CarriedForward)
}

func TestAccrual_Quarter_AnnualPolicy_OnlyDecember(t *testing.T) {
	// An annual-reset policy ignores the March boundary but fires at
	// year end.
	env := newAccrualEnv(t)
	p := accrualPolicy()
	p.CarryForwardEnabled = true
	p.CarryForwardQuarterCap = engine.DaysFromInt(3)
	p.ResetFrequency = leave.ResetAnnual
	env.seedPolicy(t, p)
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))

	k := engine.BalanceKey{EmployeeID: "emp-1", PolicyID: "annual", Year: 2025}
	require.NoError(t, env.ledger.Credit(context.Background(), k, engine.DaysFromInt(5),
		engine.SourceManualAdjustment, "seed", engine.NewDate(2025, time.January, 1), engine.SystemActor()))

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 31))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.CarriedForward)

	summary, err = env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.December, 31))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CarriedForward)
}

// =============================================================================
// PRE-RESET NOTICE PASS
// =============================================================================

func TestAccrual_Notice_DispatchedAtOffset(t *testing.T) {
	// GIVEN: ResetNoticeDays 7, quarter ends March 31
	// WHEN: Running on March 24
	// THEN: One batched notification for the policy's eligible employees

	env := newAccrualEnv(t)
	p := accrualPolicy()
	p.ResetNoticeDays = 7
	env.seedPolicy(t, p)
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))
	env.seedEmployee(t, "emp-2", engine.NewDate(2024, time.June, 1))

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 24))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.NoticesSent)

	require.Len(t, env.notifier.notes, 1)
	note := env.notifier.notes[0]
	assert.Equal(t, leave.EventPreResetNotice, note.Event)
	assert.ElementsMatch(t, []string{"emp-1", "emp-2"}, note.EmployeeIDs)
	assert.True(t, note.EffectiveDate.Equal(engine.NewDate(2025, time.March, 31)))
}

func TestAccrual_Notice_Rerun_NotResent(t *testing.T) {
	env := newAccrualEnv(t)
	p := accrualPolicy()
	p.ResetNoticeDays = 7
	env.seedPolicy(t, p)
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))
	day := engine.NewDate(2025, time.March, 24)

	_, err := env.engine.RunDaily(context.Background(), day)
	require.NoError(t, err)
	_, err = env.engine.RunDaily(context.Background(), day)
	require.NoError(t, err)

	assert.Len(t, env.notifier.notes, 1)
}

func TestAccrual_Notice_WrongDay_NotDispatched(t *testing.T) {
	env := newAccrualEnv(t)
	p := accrualPolicy()
	p.ResetNoticeDays = 7
	env.seedPolicy(t, p)
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 23))
	require.NoError(t, err)
	assert.Equal(t, 0, summary.NoticesSent)
	assert.Empty(t, env.notifier.notes)
}

func TestAccrual_Notice_GateEntryHasZeroQuantity(t *testing.T) {
	// The gate entry marks dispatch without disturbing reconciliation sums.
	env := newAccrualEnv(t)
	p := accrualPolicy()
	p.ResetNoticeDays = 7
	env.seedPolicy(t, p)
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))

	_, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 24))
	require.NoError(t, err)

	k := engine.BalanceKey{EmployeeID: "emp-1", PolicyID: "annual", Year: 2025}
	entries, err := env.store.ListLog(context.Background(), k)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, engine.SourceResetNotice, entries[0].Source)
	assert.True(t, entries[0].Quantity.IsZero())
}

func TestAccrual_Notice_FailedDispatch_RetriedNextRun(t *testing.T) {
	// GIVEN: The dispatcher is down on the notice day
	// WHEN: The run fails and a later run retries
	// THEN: No gate entry lands on failure, so the retry delivers and
	//       gates exactly once

	env := newAccrualEnv(t)
	p := accrualPolicy()
	p.ResetNoticeDays = 7
	env.seedPolicy(t, p)
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))
	day := engine.NewDate(2025, time.March, 24)

	env.notifier.fail = errors.New("dispatcher unavailable")
	summary, err := env.engine.RunDaily(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.NoticesSent)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "notice", summary.Failures[0].Pass)

	k := engine.BalanceKey{EmployeeID: "emp-1", PolicyID: "annual", Year: 2025}
	entries, err := env.store.ListLog(context.Background(), k)
	require.NoError(t, err)
	assert.Empty(t, entries, "an undelivered notice must not be gated")

	env.notifier.fail = nil
	summary, err = env.engine.RunDaily(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NoticesSent)
	require.Len(t, env.notifier.notes, 1)
	assert.ElementsMatch(t, []string{"emp-1"}, env.notifier.notes[0].EmployeeIDs)
}

// =============================================================================
// PARTIAL-FAILURE ISOLATION
// =============================================================================

func TestAccrual_OneFailingPair_DoesNotAbortBatch(t *testing.T) {
	// GIVEN: Two employees; emp-1's row lock is held past the bounded wait
	// WHEN: The monthly pass runs
	// THEN: emp-1 fails, emp-2 is still credited

	env := newAccrualEnv(t)
	env.ledger.SetLockWait(50 * time.Millisecond)
	env.seedPolicy(t, accrualPolicy())
	env.seedEmployee(t, "emp-1", engine.NewDate(2024, time.June, 1))
	env.seedEmployee(t, "emp-2", engine.NewDate(2024, time.June, 1))

	k1 := engine.BalanceKey{EmployeeID: "emp-1", PolicyID: "annual", Year: 2025}
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = env.ledger.Locked(context.Background(), k1, func() error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	summary, err := env.engine.RunDaily(context.Background(), engine.NewDate(2025, time.March, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Credited)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "emp-1", summary.Failures[0].EmployeeID)
	assert.Equal(t, "monthly", summary.Failures[0].Pass)

	assert.True(t, env.balance(t, "emp-2", "annual", 2025).Balance.Equal(engine.DaysOf(1.5)))
}
