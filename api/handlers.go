/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the workflow, ledger, and accrual
  engine.

ENDPOINTS:
  Employees:
    GET    /api/employees                  List active employees
    POST   /api/employees                  Create employee
    GET    /api/employees/{id}             Get employee details
    GET    /api/employees/{id}/balance     Ledger row for a policy/year
    GET    /api/employees/{id}/ledger      Accrual log for a policy/year
    GET    /api/employees/{id}/requests    Open requests

  Requests:
    POST   /api/requests                   Submit leave request
    GET    /api/requests/pending           Pending queue
    GET    /api/requests/{id}              Request detail
    GET    /api/requests/{id}/timeline     Audit timeline
    POST   /api/requests/{id}/approve      Approve (optional date override)
    POST   /api/requests/{id}/reject       Reject
    POST   /api/requests/{id}/clarify      Request clarification
    POST   /api/requests/{id}/cancel       Cancel (employee, pre-start only)

  Policies:
    GET    /api/policies                   List active policies
    POST   /api/policies                   Create/update policy
    GET    /api/policies/{id}              Policy detail

  Attachments:
    POST   /api/attachments                Upload supporting document
    GET    /api/attachments/{ref}          Download supporting document

  Holidays:
    GET    /api/holidays?year=YYYY         List holidays
    POST   /api/holidays                   Add holiday

  Admin:
    POST   /api/admin/adjustments          Manual balance adjustment
    POST   /api/admin/accrual/run          Trigger the daily passes
    POST   /api/admin/requests/{id}/dates  Overwrite request dates

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: State conflicts (wrong status, overlap, insufficient balance)
  - 503: Row lock timeout (retryable)
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware. Actor identity comes from the request
  body; an authenticating proxy is expected in front.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/engine"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    leave.TxStore
	Ledger   *engine.BalanceLedger
	Workflow *leave.Workflow
	Accrual  *leave.AccrualEngine
	Calendar *leave.Calendar

	// Attachments is optional; without it the attachment endpoints
	// return 503.
	Attachments leave.AttachmentStore

	logger *zap.Logger
}

// NewHandler creates a new handler with the given dependencies.
func NewHandler(store leave.TxStore, ledger *engine.BalanceLedger, wf *leave.Workflow, accrual *leave.AccrualEngine, cal *leave.Calendar, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:    store,
		Ledger:   ledger,
		Workflow: wf,
		Accrual:  accrual,
		Calendar: cal,
		logger:   logger.Named("api"),
	}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all active employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListActiveEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	emp, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// CreateEmployee creates a new employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	joinDate, err := engine.ParseDate(req.JoinDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid join_date format (use YYYY-MM-DD)", err)
		return
	}

	emp := &leave.Employee{
		ID:          req.ID,
		Name:        req.Name,
		Email:       req.Email,
		Department:  req.Department,
		Designation: req.Designation,
		JoinDate:    joinDate,
		Active:      true,
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// GetBalance returns the ledger row for ?policy=&year= (year defaults to
// the current year). Absent rows read as all-zero.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	policyID := r.URL.Query().Get("policy")
	if policyID == "" {
		writeError(w, http.StatusBadRequest, "policy query parameter is required", nil)
		return
	}
	year := yearParam(r)

	key := engine.BalanceKey{EmployeeID: employeeID, PolicyID: policyID, Year: year}
	b, err := h.Ledger.Snapshot(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// GetLedgerLog returns the accrual log for ?policy=&year=.
func (h *Handler) GetLedgerLog(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")
	policyID := r.URL.Query().Get("policy")
	if policyID == "" {
		writeError(w, http.StatusBadRequest, "policy query parameter is required", nil)
		return
	}
	year := yearParam(r)

	key := engine.BalanceKey{EmployeeID: employeeID, PolicyID: policyID, Year: year}
	entries, err := h.Store.ListLog(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger log", err)
		return
	}
	writeJSON(w, http.StatusOK, toLogEntryDTOs(entries))
}

// ListOpenRequests returns the employee's non-terminal requests.
func (h *Handler) ListOpenRequests(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "id")

	requests, err := h.Store.ListOpenRequests(r.Context(), employeeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(requests))
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// SubmitRequest submits a new leave request.
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	var req SubmitLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	from, err := engine.ParseDate(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := engine.ParseDate(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	session := leave.PartialSession(req.PartialSession)
	if req.PartialDay && session == "" {
		session = leave.SessionFirstHalf
	}

	created, err := h.Workflow.Submit(r.Context(), leave.SubmitInput{
		EmployeeID:     req.EmployeeID,
		PolicyID:       req.PolicyID,
		From:           from,
		To:             to,
		PartialDay:     req.PartialDay,
		PartialSession: session,
		Reason:         req.Reason,
		AttachmentRef:  req.AttachmentRef,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRequestDTO(created))
}

// GetRequest returns a single request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	req, err := h.Store.GetRequest(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ListPendingRequests returns the approval queue.
func (h *Handler) ListPendingRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Store.ListRequestsByStatus(r.Context(), leave.StatusPending)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list pending requests", err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTOs(requests))
}

// GetTimeline returns the request's audit timeline.
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entries, err := h.Workflow.Timeline(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTimelineDTOs(entries))
}

// ApproveRequest approves a request, optionally overriding the dates.
func (h *Handler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	decision, ok := decodeDecision(w, r)
	if !ok {
		return
	}

	var override *leave.DateOverride
	if decision.OverrideFrom != "" || decision.OverrideTo != "" {
		from, err := engine.ParseDate(decision.OverrideFrom)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid override_from date", err)
			return
		}
		to, err := engine.ParseDate(decision.OverrideTo)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid override_to date", err)
			return
		}
		override = &leave.DateOverride{From: from, To: to}
	}

	req, err := h.Workflow.Approve(r.Context(), id, decisionActor(decision), decision.Comment, override)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// RejectRequest rejects a request.
func (h *Handler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	decision, ok := decodeDecision(w, r)
	if !ok {
		return
	}

	req, err := h.Workflow.Reject(r.Context(), id, decisionActor(decision), decision.Comment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ClarifyRequest parks a request in the clarification side-channel.
func (h *Handler) ClarifyRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	decision, ok := decodeDecision(w, r)
	if !ok {
		return
	}

	req, err := h.Workflow.RequestClarification(r.Context(), id, decisionActor(decision), decision.Comment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// CancelRequest cancels a pending request before its start date.
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	decision, ok := decodeDecision(w, r)
	if !ok {
		return
	}

	actor := engine.Actor{Type: engine.ActorEmployee, ID: decision.ActorID}
	if decision.ActorType == string(engine.ActorAdmin) {
		actor.Type = engine.ActorAdmin
	}

	req, err := h.Workflow.Cancel(r.Context(), id, actor, decision.Comment)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ListPolicies returns all active policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies, err := h.Store.ListActivePolicies(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list policies", err)
		return
	}

	dtos := make([]PolicyDTO, len(policies))
	for i, p := range policies {
		dtos[i] = toPolicyDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetPolicy returns a single policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	p, err := h.Store.GetPolicy(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(p))
}

// CreatePolicy creates or updates a policy.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	freq := leave.ResetFrequency(req.ResetFrequency)
	if freq == "" {
		freq = leave.ResetQuarterly
	}
	if freq != leave.ResetQuarterly && freq != leave.ResetAnnual {
		writeError(w, http.StatusBadRequest, "reset_frequency must be quarterly or annual", nil)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	now := time.Now().UTC()
	p := &leave.LeavePolicy{
		ID:                      req.ID,
		Name:                    req.Name,
		YearlyQuota:             engine.DaysOf(req.YearlyQuota),
		MonthlyAccrual:          engine.DaysOf(req.MonthlyAccrual),
		AccrualDayOfMonth:       req.AccrualDayOfMonth,
		CarryForwardEnabled:     req.CarryForwardEnabled,
		CarryForwardQuarterCap:  engine.DaysOf(req.CarryForwardQuarterCap),
		ResetFrequency:          freq,
		ResetNoticeDays:         req.ResetNoticeDays,
		SandwichRule:            req.SandwichRule,
		RequireDocumentOverDays: engine.DaysOf(req.RequireDocumentOverDays),
		Eligibility:             req.Eligibility,
		Active:                  active,
		CreatedAt:               now,
		UpdatedAt:               now,
	}

	if err := h.Store.SavePolicy(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save policy", err)
		return
	}
	writeJSON(w, http.StatusCreated, toPolicyDTO(p))
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns holidays for ?year= (default: current year).
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	year := yearParam(r)

	holidays, err := h.Store.ListHolidays(r.Context(), year)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list holidays", err)
		return
	}

	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = HolidayDTO{ID: hol.ID, Date: hol.Date.String(), Name: hol.Name}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday adds a holiday and invalidates the calendar cache.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := engine.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	hol := leave.Holiday{ID: uuid.NewString(), Date: date, Name: req.Name}
	if err := h.Store.SaveHoliday(r.Context(), hol); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save holiday", err)
		return
	}

	if h.Calendar != nil {
		h.Calendar.Invalidate(date.Year())
	}
	writeJSON(w, http.StatusCreated, HolidayDTO{ID: hol.ID, Date: hol.Date.String(), Name: hol.Name})
}

// =============================================================================
// ATTACHMENT HANDLERS
// =============================================================================

// UploadAttachment stores a supporting document and returns its ref.
// The ref goes into attachment_ref on submission.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	if h.Attachments == nil {
		writeError(w, http.StatusServiceUnavailable, "Attachment storage not configured", nil)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxAttachmentBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read attachment body", err)
		return
	}
	if len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "Attachment body is empty", nil)
		return
	}
	if len(payload) > maxAttachmentBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "Attachment exceeds size limit", nil)
		return
	}

	ref, err := h.Attachments.Put(r.Context(), payload)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to store attachment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"ref": ref})
}

// DownloadAttachment streams a stored document back.
func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	if h.Attachments == nil {
		writeError(w, http.StatusServiceUnavailable, "Attachment storage not configured", nil)
		return
	}

	ref := chi.URLParam(r, "ref")
	payload, err := h.Attachments.Get(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusNotFound, "Attachment not found", err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}

const maxAttachmentBytes = 10 << 20 // 10 MiB

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// CreateAdjustment applies a manual balance adjustment.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.EmployeeID == "" || req.PolicyID == "" || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "employee_id, policy_id and reason are required", nil)
		return
	}

	kind := engine.AdjustmentKind(req.Kind)
	switch kind {
	case engine.AdjustCredit, engine.AdjustDebit, engine.AdjustSet:
	default:
		writeError(w, http.StatusBadRequest, "kind must be credit, debit or set", nil)
		return
	}

	year := req.Year
	if year == 0 {
		year = time.Now().UTC().Year()
	}

	key := engine.BalanceKey{EmployeeID: req.EmployeeID, PolicyID: req.PolicyID, Year: year}
	actor := engine.Actor{Type: engine.ActorAdmin, ID: req.ActorID}

	entry, err := h.Ledger.Adjust(r.Context(), key, kind, engine.DaysOf(req.Amount), req.Reason, actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := toLogEntryDTOs([]engine.AccrualLogEntry{entry})
	writeJSON(w, http.StatusCreated, dtos[0])
}

// RunAccrual triggers the daily accrual passes for a date.
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	var req AccrualRunRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	day := engine.Today()
	if req.Date != "" {
		parsed, err := engine.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
		day = parsed
	}

	summary, err := h.Accrual.RunDaily(r.Context(), day)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Accrual run failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunSummaryDTO(summary))
}

// OverwriteRequestDates rewrites a request's span administratively.
func (h *Handler) OverwriteRequestDates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req OverwriteDatesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	from, err := engine.ParseDate(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid from date (use YYYY-MM-DD)", err)
		return
	}
	to, err := engine.ParseDate(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid to date (use YYYY-MM-DD)", err)
		return
	}

	actor := engine.Actor{Type: engine.ActorAdmin, ID: req.ActorID}
	updated, err := h.Workflow.OverwriteDates(r.Context(), id, actor, from, to, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(updated))
}

// =============================================================================
// HELPERS
// =============================================================================

func decodeDecision(w http.ResponseWriter, r *http.Request) (DecisionRequest, bool) {
	var decision DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&decision); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return decision, false
	}
	if decision.ActorID == "" {
		writeError(w, http.StatusBadRequest, "actor_id is required", nil)
		return decision, false
	}
	return decision, true
}

func decisionActor(d DecisionRequest) engine.Actor {
	t := engine.ActorAdmin
	if d.ActorType == string(engine.ActorEmployee) {
		t = engine.ActorEmployee
	}
	return engine.Actor{Type: t, ID: d.ActorID}
}

func yearParam(r *http.Request) int {
	if raw := r.URL.Query().Get("year"); raw != "" {
		if y, err := strconv.Atoi(raw); err == nil {
			return y
		}
	}
	return time.Now().UTC().Year()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, err error) {
	resp := ErrorResponse{Error: msg}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, engine.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, "Insufficient balance", err)
	case errors.Is(err, engine.ErrOverlap):
		writeError(w, http.StatusConflict, "Overlapping request", err)
	case errors.Is(err, engine.ErrState):
		writeError(w, http.StatusConflict, "Invalid state transition", err)
	case errors.Is(err, engine.ErrMissingDocument), errors.Is(err, engine.ErrInvalidSpan):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case engine.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, "Busy, retry shortly", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
