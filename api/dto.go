/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Department  string `json:"department,omitempty"`
	Designation string `json:"designation,omitempty"`
	JoinDate    string `json:"join_date"`
	Active      bool   `json:"active"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// CreateEmployeeRequest is the request to create an employee.
type CreateEmployeeRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Department  string `json:"department"`
	Designation string `json:"designation"`
	JoinDate    string `json:"join_date"`
}

// PolicyDTO represents a leave policy in API responses.
type PolicyDTO struct {
	ID                      string            `json:"id"`
	Name                    string            `json:"name"`
	YearlyQuota             float64           `json:"yearly_quota"`
	MonthlyAccrual          float64           `json:"monthly_accrual"`
	AccrualDayOfMonth       int               `json:"accrual_day_of_month"`
	CarryForwardEnabled     bool              `json:"carry_forward_enabled"`
	CarryForwardQuarterCap  float64           `json:"carry_forward_quarter_cap"`
	ResetFrequency          string            `json:"reset_frequency"`
	ResetNoticeDays         int               `json:"reset_notice_days"`
	SandwichRule            bool              `json:"sandwich_rule"`
	RequireDocumentOverDays float64           `json:"require_document_over_days"`
	Eligibility             leave.Eligibility `json:"eligibility"`
	Active                  bool              `json:"active"`
	CreatedAt               string            `json:"created_at,omitempty"`
}

// CreatePolicyRequest is the request to create or update a policy.
type CreatePolicyRequest struct {
	ID                      string            `json:"id"`
	Name                    string            `json:"name"`
	YearlyQuota             float64           `json:"yearly_quota"`
	MonthlyAccrual          float64           `json:"monthly_accrual"`
	AccrualDayOfMonth       int               `json:"accrual_day_of_month"`
	CarryForwardEnabled     bool              `json:"carry_forward_enabled"`
	CarryForwardQuarterCap  float64           `json:"carry_forward_quarter_cap"`
	ResetFrequency          string            `json:"reset_frequency"`
	ResetNoticeDays         int               `json:"reset_notice_days"`
	SandwichRule            bool              `json:"sandwich_rule"`
	RequireDocumentOverDays float64           `json:"require_document_over_days"`
	Eligibility             leave.Eligibility `json:"eligibility"`
	Active                  *bool             `json:"active,omitempty"` // default true
}

// SubmitLeaveRequest is the request body for submitting a leave request.
type SubmitLeaveRequest struct {
	EmployeeID     string `json:"employee_id"`
	PolicyID       string `json:"policy_id"`
	From           string `json:"from"`
	To             string `json:"to"`
	PartialDay     bool   `json:"partial_day"`
	PartialSession string `json:"partial_session,omitempty"`
	Reason         string `json:"reason,omitempty"`
	AttachmentRef  string `json:"attachment_ref,omitempty"`
}

// RequestDTO represents a leave request.
type RequestDTO struct {
	ID                  string  `json:"id"`
	EmployeeID          string  `json:"employee_id"`
	PolicyID            string  `json:"policy_id"`
	From                string  `json:"from"`
	To                  string  `json:"to"`
	PartialDay          bool    `json:"partial_day"`
	PartialSession      string  `json:"partial_session,omitempty"`
	EstimatedDays       float64 `json:"estimated_days"`
	SandwichAppliedDays float64 `json:"sandwich_applied_days"`
	TotalDays           float64 `json:"total_days"`
	Status              string  `json:"status"`
	Reason              string  `json:"reason,omitempty"`
	AttachmentRef       string  `json:"attachment_ref,omitempty"`
	SubmittedAt         string  `json:"submitted_at"`
	UpdatedAt           string  `json:"updated_at"`
}

// DecisionRequest is the body for approve/reject/clarify/cancel.
type DecisionRequest struct {
	ActorID   string `json:"actor_id"`
	ActorType string `json:"actor_type,omitempty"` // employee|admin, default admin
	Comment   string `json:"comment,omitempty"`

	// Optional inline date override on approval.
	OverrideFrom string `json:"override_from,omitempty"`
	OverrideTo   string `json:"override_to,omitempty"`
}

// OverwriteDatesRequest is the body for the administrative date overwrite.
type OverwriteDatesRequest struct {
	ActorID string `json:"actor_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Note    string `json:"note,omitempty"`
}

// TimelineEntryDTO is one audit timeline entry.
type TimelineEntryDTO struct {
	ID        string `json:"id"`
	Action    string `json:"action"`
	Note      string `json:"note,omitempty"`
	ActorType string `json:"actor_type"`
	ActorID   string `json:"actor_id"`
	At        string `json:"at"`
}

// BalanceDTO represents one ledger row plus the derived availability.
type BalanceDTO struct {
	EmployeeID       string  `json:"employee_id"`
	PolicyID         string  `json:"policy_id"`
	Year             int     `json:"year"`
	Balance          float64 `json:"balance"`
	CarryForward     float64 `json:"carry_forward"`
	PendingDeduction float64 `json:"pending_deduction"`
	AccruedThisYear  float64 `json:"accrued_this_year"`
	Available        float64 `json:"available"`
}

// LogEntryDTO is one accrual log entry.
type LogEntryDTO struct {
	ID          string  `json:"id"`
	Quantity    float64 `json:"quantity"`
	Source      string  `json:"source"`
	Note        string  `json:"note,omitempty"`
	EffectiveOn string  `json:"effective_on"`
	ActorType   string  `json:"actor_type"`
	ActorID     string  `json:"actor_id"`
	RecordedAt  string  `json:"recorded_at"`
}

// AdjustmentRequest is the body for a manual balance adjustment.
type AdjustmentRequest struct {
	EmployeeID string  `json:"employee_id"`
	PolicyID   string  `json:"policy_id"`
	Year       int     `json:"year,omitempty"` // default: current year
	Kind       string  `json:"kind"`           // credit|debit|set
	Amount     float64 `json:"amount"`
	Reason     string  `json:"reason"`
	ActorID    string  `json:"actor_id"`
}

// AccrualRunRequest triggers the daily passes for a date (default: today).
type AccrualRunRequest struct {
	Date string `json:"date,omitempty"`
}

// RunSummaryDTO reports the outcome of a daily accrual run.
type RunSummaryDTO struct {
	RunOn          string           `json:"run_on"`
	Credited       int              `json:"credited"`
	CarriedForward int              `json:"carried_forward"`
	NoticesSent    int              `json:"notices_sent"`
	Skipped        int              `json:"skipped"`
	Failures       []PairFailureDTO `json:"failures,omitempty"`
}

// PairFailureDTO is one isolated (employee, policy) failure.
type PairFailureDTO struct {
	EmployeeID string `json:"employee_id"`
	PolicyID   string `json:"policy_id"`
	Pass       string `json:"pass"`
	Error      string `json:"error"`
}

// HolidayDTO represents a holiday calendar entry.
type HolidayDTO struct {
	ID   string `json:"id"`
	Date string `json:"date"`
	Name string `json:"name"`
}

// CreateHolidayRequest is the request to add a holiday.
type CreateHolidayRequest struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEmployeeDTO(e *leave.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:          e.ID,
		Name:        e.Name,
		Email:       e.Email,
		Department:  e.Department,
		Designation: e.Designation,
		JoinDate:    e.JoinDate.String(),
		Active:      e.Active,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

func toPolicyDTO(p *leave.LeavePolicy) PolicyDTO {
	return PolicyDTO{
		ID:                      p.ID,
		Name:                    p.Name,
		YearlyQuota:             daysFloat(p.YearlyQuota),
		MonthlyAccrual:          daysFloat(p.MonthlyAccrual),
		AccrualDayOfMonth:       p.AccrualDayOfMonth,
		CarryForwardEnabled:     p.CarryForwardEnabled,
		CarryForwardQuarterCap:  daysFloat(p.CarryForwardQuarterCap),
		ResetFrequency:          string(p.ResetFrequency),
		ResetNoticeDays:         p.ResetNoticeDays,
		SandwichRule:            p.SandwichRule,
		RequireDocumentOverDays: daysFloat(p.RequireDocumentOverDays),
		Eligibility:             p.Eligibility,
		Active:                  p.Active,
		CreatedAt:               p.CreatedAt.Format(time.RFC3339),
	}
}

func toRequestDTO(r *leave.LeaveRequest) RequestDTO {
	return RequestDTO{
		ID:                  r.ID,
		EmployeeID:          r.EmployeeID,
		PolicyID:            r.PolicyID,
		From:                r.FromDate.String(),
		To:                  r.ToDate.String(),
		PartialDay:          r.PartialDay,
		PartialSession:      string(r.PartialSession),
		EstimatedDays:       daysFloat(r.EstimatedDays),
		SandwichAppliedDays: daysFloat(r.SandwichAppliedDays),
		TotalDays:           daysFloat(r.TotalDays),
		Status:              string(r.Status),
		Reason:              r.Reason,
		AttachmentRef:       r.AttachmentRef,
		SubmittedAt:         r.SubmittedAt.Format(time.RFC3339),
		UpdatedAt:           r.UpdatedAt.Format(time.RFC3339),
	}
}

func toRequestDTOs(rs []*leave.LeaveRequest) []RequestDTO {
	dtos := make([]RequestDTO, len(rs))
	for i, r := range rs {
		dtos[i] = toRequestDTO(r)
	}
	return dtos
}

func toTimelineDTOs(entries []leave.TimelineEntry) []TimelineEntryDTO {
	dtos := make([]TimelineEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = TimelineEntryDTO{
			ID:        e.ID,
			Action:    string(e.Action),
			Note:      e.Note,
			ActorType: string(e.Actor.Type),
			ActorID:   e.Actor.ID,
			At:        e.At.Format(time.RFC3339),
		}
	}
	return dtos
}

func toBalanceDTO(b *engine.LeaveBalance) BalanceDTO {
	return BalanceDTO{
		EmployeeID:       b.Key.EmployeeID,
		PolicyID:         b.Key.PolicyID,
		Year:             b.Key.Year,
		Balance:          daysFloat(b.Balance),
		CarryForward:     daysFloat(b.CarryForward),
		PendingDeduction: daysFloat(b.PendingDeduction),
		AccruedThisYear:  daysFloat(b.AccruedThisYear),
		Available:        daysFloat(b.Available()),
	}
}

func toLogEntryDTOs(entries []engine.AccrualLogEntry) []LogEntryDTO {
	dtos := make([]LogEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = LogEntryDTO{
			ID:          e.ID,
			Quantity:    daysFloat(e.Quantity),
			Source:      string(e.Source),
			Note:        e.Note,
			EffectiveOn: e.EffectiveOn.String(),
			ActorType:   string(e.Actor.Type),
			ActorID:     e.Actor.ID,
			RecordedAt:  e.RecordedAt.Format(time.RFC3339),
		}
	}
	return dtos
}

func toRunSummaryDTO(s *leave.RunSummary) RunSummaryDTO {
	dto := RunSummaryDTO{
		RunOn:          s.RunOn.String(),
		Credited:       s.Credited,
		CarriedForward: s.CarriedForward,
		NoticesSent:    s.NoticesSent,
		Skipped:        s.Skipped,
	}
	for _, f := range s.Failures {
		dto.Failures = append(dto.Failures, PairFailureDTO{
			EmployeeID: f.EmployeeID,
			PolicyID:   f.PolicyID,
			Pass:       f.Pass,
			Error:      f.Err,
		})
	}
	return dto
}

func daysFloat(d engine.Days) float64 {
	f, _ := d.Value.Float64()
	return f
}
