/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements the full domain surface (leave.TxStore) using SQLite. In
  production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  leave_balances:          One row per (employee, policy, year)
  leave_accrual_logs:      Append-only reconciliation trail
  leave_requests:          Request rows with workflow status
  leave_request_timelines: Append-only audit timeline
  leave_policies:          Policy rulesets (eligibility as JSON)
  employees:               Entity records
  holidays:                Company holiday calendar

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statements touch leave_accrual_logs or
  leave_request_timelines. Corrections happen through new entries.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Ledger-facing interfaces
  - leave/store.go: Full domain surface
  - store/memory: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/leave"
)

// Store implements leave.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Interface checks.
var (
	_ leave.TxStore = (*Store)(nil)
	_ leave.Store   = (*txView)(nil)
)

// New creates a SQLite store at the given path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Balance rows: one per (employee, policy, year), created lazily
	CREATE TABLE IF NOT EXISTS leave_balances (
		employee_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		balance TEXT NOT NULL,
		carry_forward TEXT NOT NULL,
		pending_deduction TEXT NOT NULL,
		accrued_this_year TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, policy_id, year)
	);

	-- Accrual log (append-only reconciliation trail)
	CREATE TABLE IF NOT EXISTS leave_accrual_logs (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		quantity TEXT NOT NULL,
		source TEXT NOT NULL,
		note TEXT,
		effective_on TEXT NOT NULL,
		actor_type TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_accrual_logs_key
		ON leave_accrual_logs(employee_id, policy_id, year);

	-- Gate lookup for scheduled passes (hot path on daily runs)
	CREATE INDEX IF NOT EXISTS idx_accrual_logs_gate
		ON leave_accrual_logs(employee_id, policy_id, year, source, effective_on);

	-- Requests
	CREATE TABLE IF NOT EXISTS leave_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		policy_id TEXT NOT NULL,
		from_date TEXT NOT NULL,
		to_date TEXT NOT NULL,
		partial_day BOOLEAN NOT NULL DEFAULT FALSE,
		partial_session TEXT NOT NULL DEFAULT 'none',
		estimated_days TEXT NOT NULL,
		sandwich_days TEXT NOT NULL,
		total_days TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		reason TEXT,
		attachment_ref TEXT,
		conflict_note TEXT,
		submitted_at TEXT NOT NULL,
		approved_at TEXT,
		rejected_at TEXT,
		cancelled_at TEXT,
		clarification_requested TEXT,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON leave_requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON leave_requests(status);

	-- Overlap checks scan an employee's open requests by span
	CREATE INDEX IF NOT EXISTS idx_requests_employee_span
		ON leave_requests(employee_id, from_date, to_date);

	-- Timeline (append-only)
	CREATE TABLE IF NOT EXISTS leave_request_timelines (
		id TEXT PRIMARY KEY,
		request_id TEXT NOT NULL,
		action TEXT NOT NULL,
		note TEXT,
		actor_type TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_timelines_request
		ON leave_request_timelines(request_id);

	-- Policies
	CREATE TABLE IF NOT EXISTS leave_policies (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		yearly_quota TEXT NOT NULL,
		monthly_accrual TEXT NOT NULL,
		accrual_day INTEGER NOT NULL DEFAULT 1,
		carry_forward_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		carry_forward_cap TEXT NOT NULL,
		reset_frequency TEXT NOT NULL DEFAULT 'quarterly',
		reset_notice_days INTEGER NOT NULL DEFAULT 0,
		sandwich_rule BOOLEAN NOT NULL DEFAULT FALSE,
		require_document_over TEXT NOT NULL,
		eligibility_json TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Employees (entities)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		department TEXT,
		designation TEXT,
		join_date TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	-- Holidays
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(date, name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// queryable is satisfied by both *sql.DB and *sql.Tx, so every read/write
// helper works inside and outside a transaction.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// BALANCES (engine.BalanceStore)
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, key engine.BalanceKey) (*engine.LeaveBalance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBalance(ctx, s.db, key)
}

func getBalance(ctx context.Context, q queryable, key engine.BalanceKey) (*engine.LeaveBalance, error) {
	var (
		b                    engine.LeaveBalance
		balance, carry       string
		pending, accrued     string
		createdAt, updatedAt string
	)

	err := q.QueryRowContext(ctx,
		`SELECT balance, carry_forward, pending_deduction, accrued_this_year, created_at, updated_at
		 FROM leave_balances WHERE employee_id = ? AND policy_id = ? AND year = ?`,
		key.EmployeeID, key.PolicyID, key.Year,
	).Scan(&balance, &carry, &pending, &accrued, &createdAt, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil // absent row: callers create lazily
	}
	if err != nil {
		return nil, err
	}

	b.Key = key
	b.Balance = engine.MustParseDays(balance)
	b.CarryForward = engine.MustParseDays(carry)
	b.PendingDeduction = engine.MustParseDays(pending)
	b.AccruedThisYear = engine.MustParseDays(accrued)
	b.CreatedAt = parseTime(createdAt)
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

func (s *Store) SaveBalance(ctx context.Context, b *engine.LeaveBalance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBalance(ctx, s.db, b)
}

func saveBalance(ctx context.Context, q queryable, b *engine.LeaveBalance) error {
	query := `
		INSERT INTO leave_balances
		(employee_id, policy_id, year, balance, carry_forward, pending_deduction, accrued_this_year, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, policy_id, year) DO UPDATE SET
			balance = excluded.balance,
			carry_forward = excluded.carry_forward,
			pending_deduction = excluded.pending_deduction,
			accrued_this_year = excluded.accrued_this_year,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		b.Key.EmployeeID, b.Key.PolicyID, b.Key.Year,
		b.Balance.String(), b.CarryForward.String(),
		b.PendingDeduction.String(), b.AccruedThisYear.String(),
		formatTime(b.CreatedAt), formatTime(b.UpdatedAt),
	)
	return err
}

// =============================================================================
// ACCRUAL LOG (engine.AccrualLogStore)
// =============================================================================

func (s *Store) AppendLog(ctx context.Context, entry engine.AccrualLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLog(ctx, s.db, entry)
}

func appendLog(ctx context.Context, q queryable, entry engine.AccrualLogEntry) error {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO leave_accrual_logs
		 (id, employee_id, policy_id, year, quantity, source, note, effective_on, actor_type, actor_id, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Key.EmployeeID, entry.Key.PolicyID, entry.Key.Year,
		entry.Quantity.String(),
		string(entry.Source),
		entry.Note,
		entry.EffectiveOn.String(),
		string(entry.Actor.Type), entry.Actor.ID,
		formatTime(entry.RecordedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append accrual log: %w", err)
	}
	return nil
}

func (s *Store) ListLog(ctx context.Context, key engine.BalanceKey) ([]engine.AccrualLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLog(ctx, s.db, key)
}

func listLog(ctx context.Context, q queryable, key engine.BalanceKey) ([]engine.AccrualLogEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, quantity, source, note, effective_on, actor_type, actor_id, recorded_at
		 FROM leave_accrual_logs
		 WHERE employee_id = ? AND policy_id = ? AND year = ?
		 ORDER BY recorded_at ASC, id ASC`,
		key.EmployeeID, key.PolicyID, key.Year,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []engine.AccrualLogEntry
	for rows.Next() {
		var (
			e                     engine.AccrualLogEntry
			quantity, effectiveOn string
			note                  sql.NullString
			actorType, recordedAt string
		)
		if err := rows.Scan(&e.ID, &quantity, &e.Source, &note, &effectiveOn, &actorType, &e.Actor.ID, &recordedAt); err != nil {
			return nil, err
		}
		e.Key = key
		e.Quantity = engine.MustParseDays(quantity)
		e.Note = note.String
		e.EffectiveOn, _ = engine.ParseDate(effectiveOn)
		e.Actor.Type = engine.ActorType(actorType)
		e.RecordedAt = parseTime(recordedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) HasLogEntry(ctx context.Context, key engine.BalanceKey, source engine.LogSource, effectiveOn engine.Date) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return hasLogEntry(ctx, s.db, key, source, effectiveOn)
}

func hasLogEntry(ctx context.Context, q queryable, key engine.BalanceKey, source engine.LogSource, effectiveOn engine.Date) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM leave_accrual_logs
		 WHERE employee_id = ? AND policy_id = ? AND year = ? AND source = ? AND effective_on = ?`,
		key.EmployeeID, key.PolicyID, key.Year, string(source), effectiveOn.String(),
	).Scan(&count)
	return count > 0, err
}

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `id, employee_id, policy_id, from_date, to_date, partial_day, partial_session,
	estimated_days, sandwich_days, total_days, status, reason, attachment_ref, conflict_note,
	submitted_at, approved_at, rejected_at, cancelled_at, clarification_requested, updated_at`

func (s *Store) SaveRequest(ctx context.Context, r *leave.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRequest(ctx, s.db, r)
}

func saveRequest(ctx context.Context, q queryable, r *leave.LeaveRequest) error {
	query := `
		INSERT INTO leave_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			from_date = excluded.from_date,
			to_date = excluded.to_date,
			estimated_days = excluded.estimated_days,
			sandwich_days = excluded.sandwich_days,
			total_days = excluded.total_days,
			status = excluded.status,
			conflict_note = excluded.conflict_note,
			approved_at = excluded.approved_at,
			rejected_at = excluded.rejected_at,
			cancelled_at = excluded.cancelled_at,
			clarification_requested = excluded.clarification_requested,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		r.ID, r.EmployeeID, r.PolicyID,
		r.FromDate.String(), r.ToDate.String(),
		r.PartialDay, string(r.PartialSession),
		r.EstimatedDays.String(), r.SandwichAppliedDays.String(), r.TotalDays.String(),
		string(r.Status), r.Reason, r.AttachmentRef, r.ConflictNote,
		formatTime(r.SubmittedAt),
		nullTime(r.ApprovedAt), nullTime(r.RejectedAt), nullTime(r.CancelledAt), nullTime(r.ClarificationRequested),
		formatTime(r.UpdatedAt),
	)
	return err
}

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRequest(ctx, s.db, id)
}

func getRequest(ctx context.Context, q queryable, id string) (*leave.LeaveRequest, error) {
	requests, err := queryRequests(ctx, q,
		`SELECT `+requestColumns+` FROM leave_requests WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(requests) == 0 {
		return nil, engine.ErrRequestNotFound
	}
	return requests[0], nil
}

func (s *Store) ListOpenRequests(ctx context.Context, employeeID string) ([]*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listOpenRequests(ctx, s.db, employeeID)
}

func listOpenRequests(ctx context.Context, q queryable, employeeID string) ([]*leave.LeaveRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM leave_requests
		WHERE employee_id = ? AND status IN ('pending', 'clarification')
		ORDER BY submitted_at ASC, id ASC`
	return queryRequests(ctx, q, query, employeeID)
}

func (s *Store) ListRequestsByStatus(ctx context.Context, status leave.RequestStatus) ([]*leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRequestsByStatus(ctx, s.db, status)
}

func listRequestsByStatus(ctx context.Context, q queryable, status leave.RequestStatus) ([]*leave.LeaveRequest, error) {
	query := `SELECT ` + requestColumns + `
		FROM leave_requests
		WHERE status = ?
		ORDER BY submitted_at ASC, id ASC`
	return queryRequests(ctx, q, query, string(status))
}

func queryRequests(ctx context.Context, q queryable, query string, args ...any) ([]*leave.LeaveRequest, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*leave.LeaveRequest
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func scanRequest(rows *sql.Rows) (*leave.LeaveRequest, error) {
	var (
		r                               leave.LeaveRequest
		fromDate, toDate                string
		partialSession                  string
		estimated, sandwich, total      string
		status                          string
		reason, attachmentRef, conflict sql.NullString
		submittedAt, updatedAt          string
		approvedAt, rejectedAt          sql.NullString
		cancelledAt, clarificationAt    sql.NullString
	)

	err := rows.Scan(
		&r.ID, &r.EmployeeID, &r.PolicyID, &fromDate, &toDate,
		&r.PartialDay, &partialSession,
		&estimated, &sandwich, &total,
		&status, &reason, &attachmentRef, &conflict,
		&submittedAt, &approvedAt, &rejectedAt, &cancelledAt, &clarificationAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan request: %w", err)
	}

	r.FromDate, _ = engine.ParseDate(fromDate)
	r.ToDate, _ = engine.ParseDate(toDate)
	r.PartialSession = leave.PartialSession(partialSession)
	r.EstimatedDays = engine.MustParseDays(estimated)
	r.SandwichAppliedDays = engine.MustParseDays(sandwich)
	r.TotalDays = engine.MustParseDays(total)
	r.Status = leave.RequestStatus(status)
	r.Reason = reason.String
	r.AttachmentRef = attachmentRef.String
	r.ConflictNote = conflict.String
	r.SubmittedAt = parseTime(submittedAt)
	r.ApprovedAt = parseNullTime(approvedAt)
	r.RejectedAt = parseNullTime(rejectedAt)
	r.CancelledAt = parseNullTime(cancelledAt)
	r.ClarificationRequested = parseNullTime(clarificationAt)
	r.UpdatedAt = parseTime(updatedAt)
	return &r, nil
}

// =============================================================================
// TIMELINE
// =============================================================================

func (s *Store) AppendTimeline(ctx context.Context, e leave.TimelineEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendTimeline(ctx, s.db, e)
}

func appendTimeline(ctx context.Context, q queryable, e leave.TimelineEntry) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO leave_request_timelines (id, request_id, action, note, actor_type, actor_id, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RequestID, string(e.Action), e.Note,
		string(e.Actor.Type), e.Actor.ID, formatTime(e.At),
	)
	return err
}

func (s *Store) TimelineFor(ctx context.Context, requestID string) ([]leave.TimelineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return timelineFor(ctx, s.db, requestID)
}

func timelineFor(ctx context.Context, q queryable, requestID string) ([]leave.TimelineEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, action, note, actor_type, actor_id, at
		 FROM leave_request_timelines
		 WHERE request_id = ?
		 ORDER BY at ASC, id ASC`,
		requestID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []leave.TimelineEntry
	for rows.Next() {
		var (
			e             leave.TimelineEntry
			note          sql.NullString
			actorType, at string
		)
		if err := rows.Scan(&e.ID, &e.Action, &note, &actorType, &e.Actor.ID, &at); err != nil {
			return nil, err
		}
		e.RequestID = requestID
		e.Note = note.String
		e.Actor.Type = engine.ActorType(actorType)
		e.At = parseTime(at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// POLICIES
// =============================================================================

const policyColumns = `id, name, yearly_quota, monthly_accrual, accrual_day, carry_forward_enabled,
	carry_forward_cap, reset_frequency, reset_notice_days, sandwich_rule, require_document_over,
	eligibility_json, active, created_at, updated_at`

func (s *Store) SavePolicy(ctx context.Context, p *leave.LeavePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePolicy(ctx, s.db, p)
}

func savePolicy(ctx context.Context, q queryable, p *leave.LeavePolicy) error {
	eligibilityJSON, _ := json.Marshal(p.Eligibility)

	query := `
		INSERT INTO leave_policies (` + policyColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			yearly_quota = excluded.yearly_quota,
			monthly_accrual = excluded.monthly_accrual,
			accrual_day = excluded.accrual_day,
			carry_forward_enabled = excluded.carry_forward_enabled,
			carry_forward_cap = excluded.carry_forward_cap,
			reset_frequency = excluded.reset_frequency,
			reset_notice_days = excluded.reset_notice_days,
			sandwich_rule = excluded.sandwich_rule,
			require_document_over = excluded.require_document_over,
			eligibility_json = excluded.eligibility_json,
			active = excluded.active,
			updated_at = excluded.updated_at
	`

	_, err := q.ExecContext(ctx, query,
		p.ID, p.Name,
		p.YearlyQuota.String(), p.MonthlyAccrual.String(), p.AccrualDayOfMonth,
		p.CarryForwardEnabled, p.CarryForwardQuarterCap.String(),
		string(p.ResetFrequency), p.ResetNoticeDays,
		p.SandwichRule, p.RequireDocumentOverDays.String(),
		string(eligibilityJSON),
		p.Active,
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	return err
}

func (s *Store) GetPolicy(ctx context.Context, id string) (*leave.LeavePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPolicy(ctx, s.db, id)
}

func getPolicy(ctx context.Context, q queryable, id string) (*leave.LeavePolicy, error) {
	policies, err := queryPolicies(ctx, q,
		`SELECT `+policyColumns+` FROM leave_policies WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(policies) == 0 {
		return nil, engine.ErrPolicyNotFound
	}
	return policies[0], nil
}

func (s *Store) ListActivePolicies(ctx context.Context) ([]*leave.LeavePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listActivePolicies(ctx, s.db)
}

func listActivePolicies(ctx context.Context, q queryable) ([]*leave.LeavePolicy, error) {
	return queryPolicies(ctx, q,
		`SELECT `+policyColumns+` FROM leave_policies WHERE active = TRUE ORDER BY id`)
}

func queryPolicies(ctx context.Context, q queryable, query string, args ...any) ([]*leave.LeavePolicy, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*leave.LeavePolicy
	for rows.Next() {
		var (
			p                            leave.LeavePolicy
			quota, accrual, cap, docOver string
			resetFrequency               string
			eligibilityJSON              sql.NullString
			createdAt, updatedAt         string
		)
		if err := rows.Scan(
			&p.ID, &p.Name, &quota, &accrual, &p.AccrualDayOfMonth,
			&p.CarryForwardEnabled, &cap, &resetFrequency, &p.ResetNoticeDays,
			&p.SandwichRule, &docOver, &eligibilityJSON, &p.Active,
			&createdAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}

		p.YearlyQuota = engine.MustParseDays(quota)
		p.MonthlyAccrual = engine.MustParseDays(accrual)
		p.CarryForwardQuarterCap = engine.MustParseDays(cap)
		p.ResetFrequency = leave.ResetFrequency(resetFrequency)
		p.RequireDocumentOverDays = engine.MustParseDays(docOver)
		if eligibilityJSON.Valid && eligibilityJSON.String != "" {
			json.Unmarshal([]byte(eligibilityJSON.String), &p.Eligibility)
		}
		p.CreatedAt = parseTime(createdAt)
		p.UpdatedAt = parseTime(updatedAt)
		policies = append(policies, &p)
	}
	return policies, rows.Err()
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e *leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveEmployee(ctx, s.db, e)
}

func saveEmployee(ctx context.Context, q queryable, e *leave.Employee) error {
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO employees (id, name, email, department, designation, join_date, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			department = excluded.department,
			designation = excluded.designation,
			join_date = excluded.join_date,
			active = excluded.active
	`

	_, err := q.ExecContext(ctx, query,
		e.ID, e.Name, e.Email, e.Department, e.Designation,
		e.JoinDate.String(), e.Active, formatTime(createdAt),
	)
	return err
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEmployee(ctx, s.db, id)
}

func getEmployee(ctx context.Context, q queryable, id string) (*leave.Employee, error) {
	employees, err := queryEmployees(ctx, q,
		`SELECT id, name, email, department, designation, join_date, active, created_at
		 FROM employees WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(employees) == 0 {
		return nil, engine.ErrEmployeeNotFound
	}
	return employees[0], nil
}

func (s *Store) ListActiveEmployees(ctx context.Context) ([]*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listActiveEmployees(ctx, s.db)
}

func listActiveEmployees(ctx context.Context, q queryable) ([]*leave.Employee, error) {
	return queryEmployees(ctx, q,
		`SELECT id, name, email, department, designation, join_date, active, created_at
		 FROM employees WHERE active = TRUE ORDER BY id`)
}

func queryEmployees(ctx context.Context, q queryable, query string, args ...any) ([]*leave.Employee, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var employees []*leave.Employee
	for rows.Next() {
		var (
			e                   leave.Employee
			email, dept, desig  sql.NullString
			joinDate, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.Name, &email, &dept, &desig, &joinDate, &e.Active, &createdAt); err != nil {
			return nil, err
		}
		e.Email = email.String
		e.Department = dept.String
		e.Designation = desig.String
		e.JoinDate, _ = engine.ParseDate(joinDate)
		e.CreatedAt = parseTime(createdAt)
		employees = append(employees, &e)
	}
	return employees, rows.Err()
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (s *Store) SaveHoliday(ctx context.Context, h leave.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveHoliday(ctx, s.db, h)
}

func saveHoliday(ctx context.Context, q queryable, h leave.Holiday) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO holidays (id, date, name) VALUES (?, ?, ?)
		 ON CONFLICT(date, name) DO NOTHING`,
		h.ID, h.Date.String(), h.Name,
	)
	return err
}

func (s *Store) ListHolidays(ctx context.Context, year int) ([]leave.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listHolidays(ctx, s.db, year)
}

func listHolidays(ctx context.Context, q queryable, year int) ([]leave.Holiday, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, date, name FROM holidays WHERE strftime('%Y', date) = ? ORDER BY date ASC`,
		fmt.Sprintf("%d", year),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holidays []leave.Holiday
	for rows.Next() {
		var (
			h    leave.Holiday
			date string
		)
		if err := rows.Scan(&h.ID, &date, &h.Name); err != nil {
			return nil, err
		}
		h.Date, _ = engine.ParseDate(date)
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// =============================================================================
// TRANSACTIONAL STORE (leave.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The view passed to fn
// implements the full domain surface; widen it with leave.AsLeaveStore.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txView{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txView routes every operation through the open *sql.Tx.
type txView struct {
	tx *sql.Tx
}

func (tv *txView) GetBalance(ctx context.Context, key engine.BalanceKey) (*engine.LeaveBalance, error) {
	return getBalance(ctx, tv.tx, key)
}

func (tv *txView) SaveBalance(ctx context.Context, b *engine.LeaveBalance) error {
	return saveBalance(ctx, tv.tx, b)
}

func (tv *txView) AppendLog(ctx context.Context, entry engine.AccrualLogEntry) error {
	return appendLog(ctx, tv.tx, entry)
}

func (tv *txView) ListLog(ctx context.Context, key engine.BalanceKey) ([]engine.AccrualLogEntry, error) {
	return listLog(ctx, tv.tx, key)
}

func (tv *txView) HasLogEntry(ctx context.Context, key engine.BalanceKey, source engine.LogSource, effectiveOn engine.Date) (bool, error) {
	return hasLogEntry(ctx, tv.tx, key, source, effectiveOn)
}

func (tv *txView) SaveRequest(ctx context.Context, r *leave.LeaveRequest) error {
	return saveRequest(ctx, tv.tx, r)
}

func (tv *txView) GetRequest(ctx context.Context, id string) (*leave.LeaveRequest, error) {
	return getRequest(ctx, tv.tx, id)
}

func (tv *txView) ListOpenRequests(ctx context.Context, employeeID string) ([]*leave.LeaveRequest, error) {
	return listOpenRequests(ctx, tv.tx, employeeID)
}

func (tv *txView) ListRequestsByStatus(ctx context.Context, status leave.RequestStatus) ([]*leave.LeaveRequest, error) {
	return listRequestsByStatus(ctx, tv.tx, status)
}

func (tv *txView) AppendTimeline(ctx context.Context, e leave.TimelineEntry) error {
	return appendTimeline(ctx, tv.tx, e)
}

func (tv *txView) TimelineFor(ctx context.Context, requestID string) ([]leave.TimelineEntry, error) {
	return timelineFor(ctx, tv.tx, requestID)
}

func (tv *txView) SavePolicy(ctx context.Context, p *leave.LeavePolicy) error {
	return savePolicy(ctx, tv.tx, p)
}

func (tv *txView) GetPolicy(ctx context.Context, id string) (*leave.LeavePolicy, error) {
	return getPolicy(ctx, tv.tx, id)
}

func (tv *txView) ListActivePolicies(ctx context.Context) ([]*leave.LeavePolicy, error) {
	return listActivePolicies(ctx, tv.tx)
}

func (tv *txView) SaveEmployee(ctx context.Context, e *leave.Employee) error {
	return saveEmployee(ctx, tv.tx, e)
}

func (tv *txView) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	return getEmployee(ctx, tv.tx, id)
}

func (tv *txView) ListActiveEmployees(ctx context.Context) ([]*leave.Employee, error) {
	return listActiveEmployees(ctx, tv.tx)
}

func (tv *txView) SaveHoliday(ctx context.Context, h leave.Holiday) error {
	return saveHoliday(ctx, tv.tx, h)
}

func (tv *txView) ListHolidays(ctx context.Context, year int) ([]leave.Holiday, error) {
	return listHolidays(ctx, tv.tx, year)
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now().UTC()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, _ := time.Parse(time.RFC3339Nano, s.String)
	return &t
}
