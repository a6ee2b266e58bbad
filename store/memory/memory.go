// Package memory provides the in-memory TxStore implementation (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation of the full domain surface
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	balances  map[engine.BalanceKey]*engine.LeaveBalance
	logs      map[engine.BalanceKey][]engine.AccrualLogEntry
	requests  map[string]*leave.LeaveRequest
	timelines map[string][]leave.TimelineEntry
	policies  map[string]*leave.LeavePolicy
	employees map[string]*leave.Employee
	holidays  map[int][]leave.Holiday
}

func NewMemory() *Memory {
	return &Memory{
		balances:  make(map[engine.BalanceKey]*engine.LeaveBalance),
		logs:      make(map[engine.BalanceKey][]engine.AccrualLogEntry),
		requests:  make(map[string]*leave.LeaveRequest),
		timelines: make(map[string][]leave.TimelineEntry),
		policies:  make(map[string]*leave.LeavePolicy),
		employees: make(map[string]*leave.Employee),
		holidays:  make(map[int][]leave.Holiday),
	}
}

// Interface checks.
var (
	_ leave.Store   = (*Memory)(nil)
	_ leave.TxStore = (*TxMemory)(nil)
	_ leave.Store   = (*txMemoryView)(nil)
)

// ----- Balances -----

func (m *Memory) GetBalance(_ context.Context, key engine.BalanceKey) (*engine.LeaveBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBalanceLocked(key), nil
}

func (m *Memory) getBalanceLocked(key engine.BalanceKey) *engine.LeaveBalance {
	b, ok := m.balances[key]
	if !ok {
		return nil // absent row: callers create lazily
	}
	cp := *b
	return &cp
}

func (m *Memory) SaveBalance(_ context.Context, b *engine.LeaveBalance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveBalanceLocked(b)
	return nil
}

func (m *Memory) saveBalanceLocked(b *engine.LeaveBalance) {
	cp := *b
	m.balances[b.Key] = &cp
}

// ----- Accrual log -----

func (m *Memory) AppendLog(_ context.Context, entry engine.AccrualLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendLogLocked(entry)
}

func (m *Memory) appendLogLocked(entry engine.AccrualLogEntry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	m.logs[entry.Key] = append(m.logs[entry.Key], entry)
	return nil
}

func (m *Memory) ListLog(_ context.Context, key engine.BalanceKey) ([]engine.AccrualLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLogLocked(key), nil
}

func (m *Memory) listLogLocked(key engine.BalanceKey) []engine.AccrualLogEntry {
	result := make([]engine.AccrualLogEntry, len(m.logs[key]))
	copy(result, m.logs[key])
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].RecordedAt.Before(result[j].RecordedAt)
	})
	return result
}

func (m *Memory) HasLogEntry(_ context.Context, key engine.BalanceKey, source engine.LogSource, effectiveOn engine.Date) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hasLogEntryLocked(key, source, effectiveOn), nil
}

func (m *Memory) hasLogEntryLocked(key engine.BalanceKey, source engine.LogSource, effectiveOn engine.Date) bool {
	for _, e := range m.logs[key] {
		if e.Source == source && e.EffectiveOn.Equal(effectiveOn) {
			return true
		}
	}
	return false
}

// ----- Requests -----

func (m *Memory) SaveRequest(_ context.Context, r *leave.LeaveRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveRequestLocked(r)
	return nil
}

func (m *Memory) saveRequestLocked(r *leave.LeaveRequest) {
	cp := *r
	m.requests[r.ID] = &cp
}

func (m *Memory) GetRequest(_ context.Context, id string) (*leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(id)
}

func (m *Memory) getRequestLocked(id string) (*leave.LeaveRequest, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, engine.ErrRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *Memory) ListOpenRequests(_ context.Context, employeeID string) ([]*leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listOpenRequestsLocked(employeeID), nil
}

func (m *Memory) listOpenRequestsLocked(employeeID string) []*leave.LeaveRequest {
	var result []*leave.LeaveRequest
	for _, r := range m.requests {
		if r.EmployeeID == employeeID && !r.Status.IsTerminal() {
			cp := *r
			result = append(result, &cp)
		}
	}
	sortRequests(result)
	return result
}

func (m *Memory) ListRequestsByStatus(_ context.Context, status leave.RequestStatus) ([]*leave.LeaveRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listByStatusLocked(status), nil
}

func (m *Memory) listByStatusLocked(status leave.RequestStatus) []*leave.LeaveRequest {
	var result []*leave.LeaveRequest
	for _, r := range m.requests {
		if r.Status == status {
			cp := *r
			result = append(result, &cp)
		}
	}
	sortRequests(result)
	return result
}

func sortRequests(rs []*leave.LeaveRequest) {
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].SubmittedAt.Equal(rs[j].SubmittedAt) {
			return rs[i].ID < rs[j].ID
		}
		return rs[i].SubmittedAt.Before(rs[j].SubmittedAt)
	})
}

// ----- Timeline -----

func (m *Memory) AppendTimeline(_ context.Context, e leave.TimelineEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendTimelineLocked(e)
}

func (m *Memory) appendTimelineLocked(e leave.TimelineEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	m.timelines[e.RequestID] = append(m.timelines[e.RequestID], e)
	return nil
}

func (m *Memory) TimelineFor(_ context.Context, requestID string) ([]leave.TimelineEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timelineLocked(requestID), nil
}

func (m *Memory) timelineLocked(requestID string) []leave.TimelineEntry {
	result := make([]leave.TimelineEntry, len(m.timelines[requestID]))
	copy(result, m.timelines[requestID])
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].At.Before(result[j].At)
	})
	return result
}

// ----- Policies -----

func (m *Memory) SavePolicy(_ context.Context, p *leave.LeavePolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.savePolicyLocked(p)
	return nil
}

func (m *Memory) savePolicyLocked(p *leave.LeavePolicy) {
	cp := *p
	m.policies[p.ID] = &cp
}

func (m *Memory) GetPolicy(_ context.Context, id string) (*leave.LeavePolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getPolicyLocked(id)
}

func (m *Memory) getPolicyLocked(id string) (*leave.LeavePolicy, error) {
	p, ok := m.policies[id]
	if !ok {
		return nil, engine.ErrPolicyNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListActivePolicies(_ context.Context) ([]*leave.LeavePolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActivePoliciesLocked(), nil
}

func (m *Memory) listActivePoliciesLocked() []*leave.LeavePolicy {
	var result []*leave.LeavePolicy
	for _, p := range m.policies {
		if p.Active {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ----- Employees -----

func (m *Memory) SaveEmployee(_ context.Context, e *leave.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveEmployeeLocked(e)
	return nil
}

func (m *Memory) saveEmployeeLocked(e *leave.Employee) {
	cp := *e
	m.employees[e.ID] = &cp
}

func (m *Memory) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployeeLocked(id)
}

func (m *Memory) getEmployeeLocked(id string) (*leave.Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return nil, engine.ErrEmployeeNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *Memory) ListActiveEmployees(_ context.Context) ([]*leave.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActiveEmployeesLocked(), nil
}

func (m *Memory) listActiveEmployeesLocked() []*leave.Employee {
	var result []*leave.Employee
	for _, e := range m.employees {
		if e.Active {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ----- Holidays -----

func (m *Memory) SaveHoliday(_ context.Context, h leave.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveHolidayLocked(h)
	return nil
}

func (m *Memory) saveHolidayLocked(h leave.Holiday) {
	year := h.Date.Year()
	hs := m.holidays[year]
	for i, existing := range hs {
		if existing.ID == h.ID {
			hs[i] = h
			return
		}
	}
	m.holidays[year] = append(hs, h)
}

func (m *Memory) ListHolidays(_ context.Context, year int) ([]leave.Holiday, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listHolidaysLocked(year), nil
}

func (m *Memory) listHolidaysLocked(year int) []leave.Holiday {
	result := make([]leave.Holiday, len(m.holidays[year]))
	copy(result, m.holidays[year])
	sort.SliceStable(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction. For the memory store this is
// simulated with a snapshot + rollback on error. The view passed to fn
// implements the full domain surface; widen it with leave.AsLeaveStore.
func (tm *TxMemory) WithTx(_ context.Context, fn func(engine.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	balances  map[engine.BalanceKey]*engine.LeaveBalance
	logs      map[engine.BalanceKey][]engine.AccrualLogEntry
	requests  map[string]*leave.LeaveRequest
	timelines map[string][]leave.TimelineEntry
	policies  map[string]*leave.LeavePolicy
	employees map[string]*leave.Employee
	holidays  map[int][]leave.Holiday
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		balances:  make(map[engine.BalanceKey]*engine.LeaveBalance, len(tm.balances)),
		logs:      make(map[engine.BalanceKey][]engine.AccrualLogEntry, len(tm.logs)),
		requests:  make(map[string]*leave.LeaveRequest, len(tm.requests)),
		timelines: make(map[string][]leave.TimelineEntry, len(tm.timelines)),
		policies:  make(map[string]*leave.LeavePolicy, len(tm.policies)),
		employees: make(map[string]*leave.Employee, len(tm.employees)),
		holidays:  make(map[int][]leave.Holiday, len(tm.holidays)),
	}
	for k, v := range tm.balances {
		cp := *v
		s.balances[k] = &cp
	}
	for k, v := range tm.logs {
		s.logs[k] = append([]engine.AccrualLogEntry{}, v...)
	}
	for k, v := range tm.requests {
		cp := *v
		s.requests[k] = &cp
	}
	for k, v := range tm.timelines {
		s.timelines[k] = append([]leave.TimelineEntry{}, v...)
	}
	for k, v := range tm.policies {
		cp := *v
		s.policies[k] = &cp
	}
	for k, v := range tm.employees {
		cp := *v
		s.employees[k] = &cp
	}
	for k, v := range tm.holidays {
		s.holidays[k] = append([]leave.Holiday{}, v...)
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.balances = s.balances
	tm.logs = s.logs
	tm.requests = s.requests
	tm.timelines = s.timelines
	tm.policies = s.policies
	tm.employees = s.employees
	tm.holidays = s.holidays
}

// txMemoryView is the transaction view. The parent's lock is already held,
// so every method goes straight to the locked helpers.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) GetBalance(_ context.Context, key engine.BalanceKey) (*engine.LeaveBalance, error) {
	return tv.parent.getBalanceLocked(key), nil
}

func (tv *txMemoryView) SaveBalance(_ context.Context, b *engine.LeaveBalance) error {
	tv.parent.saveBalanceLocked(b)
	return nil
}

func (tv *txMemoryView) AppendLog(_ context.Context, entry engine.AccrualLogEntry) error {
	return tv.parent.appendLogLocked(entry)
}

func (tv *txMemoryView) ListLog(_ context.Context, key engine.BalanceKey) ([]engine.AccrualLogEntry, error) {
	return tv.parent.listLogLocked(key), nil
}

func (tv *txMemoryView) HasLogEntry(_ context.Context, key engine.BalanceKey, source engine.LogSource, effectiveOn engine.Date) (bool, error) {
	return tv.parent.hasLogEntryLocked(key, source, effectiveOn), nil
}

func (tv *txMemoryView) SaveRequest(_ context.Context, r *leave.LeaveRequest) error {
	tv.parent.saveRequestLocked(r)
	return nil
}

func (tv *txMemoryView) GetRequest(_ context.Context, id string) (*leave.LeaveRequest, error) {
	return tv.parent.getRequestLocked(id)
}

func (tv *txMemoryView) ListOpenRequests(_ context.Context, employeeID string) ([]*leave.LeaveRequest, error) {
	return tv.parent.listOpenRequestsLocked(employeeID), nil
}

func (tv *txMemoryView) ListRequestsByStatus(_ context.Context, status leave.RequestStatus) ([]*leave.LeaveRequest, error) {
	return tv.parent.listByStatusLocked(status), nil
}

func (tv *txMemoryView) AppendTimeline(_ context.Context, e leave.TimelineEntry) error {
	return tv.parent.appendTimelineLocked(e)
}

func (tv *txMemoryView) TimelineFor(_ context.Context, requestID string) ([]leave.TimelineEntry, error) {
	return tv.parent.timelineLocked(requestID), nil
}

func (tv *txMemoryView) SavePolicy(_ context.Context, p *leave.LeavePolicy) error {
	tv.parent.savePolicyLocked(p)
	return nil
}

func (tv *txMemoryView) GetPolicy(_ context.Context, id string) (*leave.LeavePolicy, error) {
	return tv.parent.getPolicyLocked(id)
}

func (tv *txMemoryView) ListActivePolicies(_ context.Context) ([]*leave.LeavePolicy, error) {
	return tv.parent.listActivePoliciesLocked(), nil
}

func (tv *txMemoryView) SaveEmployee(_ context.Context, e *leave.Employee) error {
	tv.parent.saveEmployeeLocked(e)
	return nil
}

func (tv *txMemoryView) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	return tv.parent.getEmployeeLocked(id)
}

func (tv *txMemoryView) ListActiveEmployees(_ context.Context) ([]*leave.Employee, error) {
	return tv.parent.listActiveEmployeesLocked(), nil
}

func (tv *txMemoryView) SaveHoliday(_ context.Context, h leave.Holiday) error {
	tv.parent.saveHolidayLocked(h)
	return nil
}

func (tv *txMemoryView) ListHolidays(_ context.Context, year int) ([]leave.Holiday, error) {
	return tv.parent.listHolidaysLocked(year), nil
}
