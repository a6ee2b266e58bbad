// Package leave implements the leave-management domain on top of the
// ledger engine: policies, the request workflow, the sandwich-rule day
// counter, and the scheduled accrual passes.
package leave

import (
	"time"

	"github.com/warp/leave-engine/engine"
)

// =============================================================================
// LEAVE POLICY - Per-leave-type configuration
// =============================================================================

// ResetFrequency controls when carry-forward/reset boundaries occur.
type ResetFrequency string

const (
	ResetQuarterly ResetFrequency = "quarterly"
	ResetAnnual    ResetFrequency = "annual"
)

// LeavePolicy is the per-leave-type ruleset. Immutable during a single
// accrual run; administrators mutate it only between runs.
type LeavePolicy struct {
	ID   string
	Name string

	// Entitlement
	YearlyQuota       engine.Days // annual maximum; accrual truncates at this cap
	MonthlyAccrual    engine.Days
	AccrualDayOfMonth int // day-of-month the monthly pass takes effect

	// Carry-forward / reset
	CarryForwardEnabled    bool
	CarryForwardQuarterCap engine.Days
	ResetFrequency         ResetFrequency
	ResetNoticeDays        int // 0 = no pre-reset notice

	// Day counting
	SandwichRule bool

	// RequireDocumentOverDays: requests of at least this many total days
	// need a supporting document. Zero disables the rule.
	RequireDocumentOverDays engine.Days

	Eligibility Eligibility
	Active      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// ELIGIBILITY - Which employees a policy covers
// =============================================================================

// Eligibility filters employees by department, designation, and explicit
// employee ID. An empty filter matches everyone; non-empty filters must
// all match.
type Eligibility struct {
	Departments  []string
	Designations []string
	EmployeeIDs  []string
}

func (e Eligibility) Matches(emp Employee) bool {
	if len(e.EmployeeIDs) > 0 && !contains(e.EmployeeIDs, emp.ID) {
		return false
	}
	if len(e.Departments) > 0 && !contains(e.Departments, emp.Department) {
		return false
	}
	if len(e.Designations) > 0 && !contains(e.Designations, emp.Designation) {
		return false
	}
	return true
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// =============================================================================
// EMPLOYEE - Entity record
// =============================================================================

type Employee struct {
	ID          string
	Name        string
	Email       string
	Department  string
	Designation string
	JoinDate    engine.Date
	Active      bool

	CreatedAt time.Time
}
