package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testKey() engine.BalanceKey {
	return engine.BalanceKey{EmployeeID: "emp-1", PolicyID: "annual", Year: 2025}
}

func date(y int, m time.Month, d int) engine.Date { return engine.NewDate(y, m, d) }

// =============================================================================
// BALANCES
// =============================================================================

func TestStore_Balance_AbsentRow_NilNil(t *testing.T) {
	store := newTestStore(t)

	b, err := store.GetBalance(context.Background(), testKey())
	require.NoError(t, err)
	assert.Nil(t, b, "absent row reads as (nil, nil); callers create lazily")
}

func TestStore_Balance_SaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := engine.NewLeaveBalance(testKey(), time.Now().UTC())
	b.Balance = engine.DaysOf(7.5)
	b.CarryForward = engine.DaysFromInt(2)
	b.PendingDeduction = engine.DaysOf(0.5)
	b.AccruedThisYear = engine.DaysFromInt(9)
	require.NoError(t, store.SaveBalance(ctx, b))

	loaded, err := store.GetBalance(ctx, testKey())
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.True(t, loaded.Balance.Equal(engine.DaysOf(7.5)))
	assert.True(t, loaded.CarryForward.Equal(engine.DaysFromInt(2)))
	assert.True(t, loaded.PendingDeduction.Equal(engine.DaysOf(0.5)))
	assert.True(t, loaded.AccruedThisYear.Equal(engine.DaysFromInt(9)))
}

func TestStore_Balance_SaveIsUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	b := engine.NewLeaveBalance(testKey(), time.Now().UTC())
	b.Balance = engine.DaysFromInt(1)
	require.NoError(t, store.SaveBalance(ctx, b))

	b.Balance = engine.DaysFromInt(4)
	require.NoError(t, store.SaveBalance(ctx, b))

	loaded, err := store.GetBalance(ctx, testKey())
	require.NoError(t, err)
	assert.True(t, loaded.Balance.Equal(engine.DaysFromInt(4)))
}

// =============================================================================
// ACCRUAL LOG
// =============================================================================

func TestStore_AccrualLog_AppendListAndGate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	k := testKey()
	effective := date(2025, time.March, 1)

	entry := engine.AccrualLogEntry{
		ID:          "log-1",
		Key:         k,
		Quantity:    engine.DaysOf(1.5),
		Source:      engine.SourceMonthlyAccrual,
		Note:        "monthly accrual",
		EffectiveOn: effective,
		Actor:       engine.SystemActor(),
		RecordedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.AppendLog(ctx, entry))

	entries, err := store.ListLog(ctx, k)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "log-1", entries[0].ID)
	assert.True(t, entries[0].Quantity.Equal(engine.DaysOf(1.5)))
	assert.Equal(t, engine.SourceMonthlyAccrual, entries[0].Source)
	assert.True(t, entries[0].EffectiveOn.Equal(effective))
	assert.Equal(t, engine.ActorSystem, entries[0].Actor.Type)

	// Gate lookup: same source + effective date hits, others miss.
	hit, err := store.HasLogEntry(ctx, k, engine.SourceMonthlyAccrual, effective)
	require.NoError(t, err)
	assert.True(t, hit)

	miss, err := store.HasLogEntry(ctx, k, engine.SourceMonthlyAccrual, date(2025, time.April, 1))
	require.NoError(t, err)
	assert.False(t, miss)

	miss, err = store.HasLogEntry(ctx, k, engine.SourceQuarterReset, effective)
	require.NoError(t, err)
	assert.False(t, miss)
}

func TestStore_AccrualLog_NegativeQuantityRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendLog(ctx, engine.AccrualLogEntry{
		ID:          "log-neg",
		Key:         testKey(),
		Quantity:    engine.DaysFromInt(3).Neg(),
		Source:      engine.SourceQuarterReset,
		EffectiveOn: date(2025, time.March, 31),
		Actor:       engine.SystemActor(),
	}))

	entries, err := store.ListLog(ctx, testKey())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Quantity.Equal(engine.DaysFromInt(-3)))
}

// =============================================================================
// REQUESTS
// =============================================================================

func sampleRequest(id string, status leave.RequestStatus) *leave.LeaveRequest {
	now := time.Now().UTC()
	return &leave.LeaveRequest{
		ID:                  id,
		EmployeeID:          "emp-1",
		PolicyID:            "annual",
		FromDate:            date(2025, time.March, 10),
		ToDate:              date(2025, time.March, 12),
		EstimatedDays:       engine.DaysFromInt(3),
		SandwichAppliedDays: engine.ZeroDays(),
		TotalDays:           engine.DaysFromInt(3),
		Status:              status,
		Reason:              "family visit",
		SubmittedAt:         now,
		UpdatedAt:           now,
	}
}

func TestStore_Request_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := sampleRequest("req-1", leave.StatusPending)
	r.PartialDay = true
	r.PartialSession = leave.SessionFirstHalf
	r.AttachmentRef = "att-1"
	require.NoError(t, store.SaveRequest(ctx, r))

	loaded, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, "emp-1", loaded.EmployeeID)
	assert.True(t, loaded.FromDate.Equal(r.FromDate))
	assert.True(t, loaded.ToDate.Equal(r.ToDate))
	assert.True(t, loaded.PartialDay)
	assert.Equal(t, leave.SessionFirstHalf, loaded.PartialSession)
	assert.True(t, loaded.TotalDays.Equal(engine.DaysFromInt(3)))
	assert.Equal(t, leave.StatusPending, loaded.Status)
	assert.Equal(t, "att-1", loaded.AttachmentRef)
	assert.Nil(t, loaded.ApprovedAt)
}

func TestStore_Request_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRequest(context.Background(), "nope")
	assert.True(t, errors.Is(err, engine.ErrRequestNotFound))
}

func TestStore_Request_StatusUpdatePersists(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := sampleRequest("req-1", leave.StatusPending)
	require.NoError(t, store.SaveRequest(ctx, r))

	now := time.Now().UTC()
	r.Status = leave.StatusApproved
	r.ApprovedAt = &now
	require.NoError(t, store.SaveRequest(ctx, r))

	loaded, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, loaded.Status)
	require.NotNil(t, loaded.ApprovedAt)
}

func TestStore_ListOpenRequests_FiltersTerminal(t *testing.T) {
	// Open = pending or clarification; terminal states are excluded.
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRequest(ctx, sampleRequest("req-p", leave.StatusPending)))
	require.NoError(t, store.SaveRequest(ctx, sampleRequest("req-c", leave.StatusClarification)))
	require.NoError(t, store.SaveRequest(ctx, sampleRequest("req-a", leave.StatusApproved)))
	require.NoError(t, store.SaveRequest(ctx, sampleRequest("req-r", leave.StatusRejected)))

	open, err := store.ListOpenRequests(ctx, "emp-1")
	require.NoError(t, err)
	ids := make([]string, len(open))
	for i, r := range open {
		ids[i] = r.ID
	}
	assert.ElementsMatch(t, []string{"req-p", "req-c"}, ids)
}

func TestStore_ListRequestsByStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRequest(ctx, sampleRequest("req-1", leave.StatusPending)))
	require.NoError(t, store.SaveRequest(ctx, sampleRequest("req-2", leave.StatusApproved)))

	pending, err := store.ListRequestsByStatus(ctx, leave.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "req-1", pending[0].ID)
}

// =============================================================================
// TIMELINE
// =============================================================================

func TestStore_Timeline_AppendAndList(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Now().UTC()

	require.NoError(t, store.AppendTimeline(ctx, leave.TimelineEntry{
		ID: "t-1", RequestID: "req-1", Action: leave.ActionSubmitted,
		Actor: engine.Actor{Type: engine.ActorEmployee, ID: "emp-1"}, At: base,
	}))
	require.NoError(t, store.AppendTimeline(ctx, leave.TimelineEntry{
		ID: "t-2", RequestID: "req-1", Action: leave.ActionApproved, Note: "ok",
		Actor: engine.Actor{Type: engine.ActorAdmin, ID: "hr-1"}, At: base.Add(time.Hour),
	}))

	entries, err := store.TimelineFor(ctx, "req-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, leave.ActionSubmitted, entries[0].Action)
	assert.Equal(t, leave.ActionApproved, entries[1].Action)
	assert.Equal(t, "ok", entries[1].Note)
	assert.Equal(t, engine.ActorAdmin, entries[1].Actor.Type)
}

func TestStore_Timeline_DuplicateTransitionID_Rejected(t *testing.T) {
	// Transition IDs are primary keys; a retried transition cannot append
	// a second entry.
	store := newTestStore(t)
	ctx := context.Background()

	e := leave.TimelineEntry{
		ID: "req-1:approved", RequestID: "req-1", Action: leave.ActionApproved,
		Actor: engine.Actor{Type: engine.ActorAdmin, ID: "hr-1"}, At: time.Now().UTC(),
	}
	require.NoError(t, store.AppendTimeline(ctx, e))
	assert.Error(t, store.AppendTimeline(ctx, e))
}

// =============================================================================
// POLICIES
// =============================================================================

func TestStore_Policy_RoundTripWithEligibility(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &leave.LeavePolicy{
		ID:                      "annual",
		Name:                    "Annual Leave",
		YearlyQuota:             engine.DaysFromInt(18),
		MonthlyAccrual:          engine.DaysOf(1.5),
		AccrualDayOfMonth:       1,
		CarryForwardEnabled:     true,
		CarryForwardQuarterCap:  engine.DaysFromInt(3),
		ResetFrequency:          leave.ResetQuarterly,
		ResetNoticeDays:         7,
		SandwichRule:            true,
		RequireDocumentOverDays: engine.DaysFromInt(3),
		Eligibility:             leave.Eligibility{Departments: []string{"engineering"}},
		Active:                  true,
		CreatedAt:               time.Now().UTC(),
		UpdatedAt:               time.Now().UTC(),
	}
	require.NoError(t, store.SavePolicy(ctx, p))

	loaded, err := store.GetPolicy(ctx, "annual")
	require.NoError(t, err)
	assert.Equal(t, "Annual Leave", loaded.Name)
	assert.True(t, loaded.YearlyQuota.Equal(engine.DaysFromInt(18)))
	assert.True(t, loaded.MonthlyAccrual.Equal(engine.DaysOf(1.5)))
	assert.True(t, loaded.CarryForwardEnabled)
	assert.True(t, loaded.CarryForwardQuarterCap.Equal(engine.DaysFromInt(3)))
	assert.Equal(t, leave.ResetQuarterly, loaded.ResetFrequency)
	assert.Equal(t, 7, loaded.ResetNoticeDays)
	assert.True(t, loaded.SandwichRule)
	assert.Equal(t, []string{"engineering"}, loaded.Eligibility.Departments)
}

func TestStore_Policy_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetPolicy(context.Background(), "nope")
	assert.True(t, errors.Is(err, engine.ErrPolicyNotFound))
}

func TestStore_ListActivePolicies_ExcludesInactive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SavePolicy(ctx, &leave.LeavePolicy{ID: "p-on", Name: "On", Active: true}))
	require.NoError(t, store.SavePolicy(ctx, &leave.LeavePolicy{ID: "p-off", Name: "Off", Active: false}))

	active, err := store.ListActivePolicies(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "p-on", active[0].ID)
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func TestStore_Employee_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := &leave.Employee{
		ID:          "emp-1",
		Name:        "Asha",
		Email:       "asha@example.com",
		Department:  "engineering",
		Designation: "senior",
		JoinDate:    date(2024, time.June, 1),
		Active:      true,
	}
	require.NoError(t, store.SaveEmployee(ctx, e))

	loaded, err := store.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", loaded.Name)
	assert.Equal(t, "engineering", loaded.Department)
	assert.True(t, loaded.JoinDate.Equal(date(2024, time.June, 1)))
}

func TestStore_Employee_NotFound(t *testing.T) {
	store := newTestStore(t)
	_, err := store.GetEmployee(context.Background(), "nope")
	assert.True(t, errors.Is(err, engine.ErrEmployeeNotFound))
}

func TestStore_ListActiveEmployees_ExcludesInactive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveEmployee(ctx, &leave.Employee{ID: "e-on", Name: "On", JoinDate: date(2024, time.June, 1), Active: true}))
	require.NoError(t, store.SaveEmployee(ctx, &leave.Employee{ID: "e-off", Name: "Off", JoinDate: date(2024, time.June, 1), Active: false}))

	active, err := store.ListActiveEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "e-on", active[0].ID)
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func TestStore_Holidays_ListByYear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveHoliday(ctx, leave.Holiday{ID: "h-1", Date: date(2025, time.March, 12), Name: "Festival"}))
	require.NoError(t, store.SaveHoliday(ctx, leave.Holiday{ID: "h-2", Date: date(2026, time.January, 1), Name: "New Year"}))

	holidays, err := store.ListHolidays(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, holidays, 1)
	assert.Equal(t, "Festival", holidays[0].Name)
}

func TestStore_Holidays_DuplicateIgnored(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	h := leave.Holiday{ID: "h-1", Date: date(2025, time.March, 12), Name: "Festival"}
	require.NoError(t, store.SaveHoliday(ctx, h))
	h.ID = "h-dup"
	require.NoError(t, store.SaveHoliday(ctx, h))

	holidays, err := store.ListHolidays(ctx, 2025)
	require.NoError(t, err)
	assert.Len(t, holidays, 1)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction writing a balance and a log entry
	// WHEN: fn returns an error after the writes
	// THEN: Neither write survives

	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s engine.Store) error {
		b := engine.NewLeaveBalance(testKey(), time.Now().UTC())
		b.Balance = engine.DaysFromInt(5)
		if err := s.SaveBalance(ctx, b); err != nil {
			return err
		}
		if err := s.AppendLog(ctx, engine.AccrualLogEntry{
			ID: "log-1", Key: testKey(), Quantity: engine.DaysFromInt(5),
			Source: engine.SourceManualAdjustment, EffectiveOn: date(2025, time.January, 1),
			Actor: engine.SystemActor(),
		}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	b, err := store.GetBalance(ctx, testKey())
	require.NoError(t, err)
	assert.Nil(t, b)

	entries, err := store.ListLog(ctx, testKey())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_WithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s engine.Store) error {
		b := engine.NewLeaveBalance(testKey(), time.Now().UTC())
		b.Balance = engine.DaysFromInt(5)
		return s.SaveBalance(ctx, b)
	})
	require.NoError(t, err)

	b, err := store.GetBalance(ctx, testKey())
	require.NoError(t, err)
	require.NotNil(t, b)
	assert.True(t, b.Balance.Equal(engine.DaysFromInt(5)))
}

func TestStore_WithTx_ViewExposesLeaveSurface(t *testing.T) {
	// Workflow code widens the transaction view to the domain surface.
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(es engine.Store) error {
		s, ok := leave.AsLeaveStore(es)
		require.True(t, ok, "transaction view must implement leave.Store")
		return s.SaveRequest(ctx, sampleRequest("req-1", leave.StatusPending))
	})
	require.NoError(t, err)

	r, err := store.GetRequest(ctx, "req-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, r.Status)
}
