/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Employees:
    GET    /api/employees                    List active employees
    POST   /api/employees                    Create/update employee
    GET    /api/employees/{id}               Get employee details
    GET    /api/employees/{id}/balances      Balance rows for a year
    GET    /api/employees/{id}/applications  Application history

  Applications:
    POST   /api/applications                 Submit (or save draft)
    GET    /api/applications/{id}            Get application
    POST   /api/applications/{id}/submit     Submit a saved draft
    POST   /api/applications/{id}/approve    Stage approval (by actor role)
    POST   /api/applications/{id}/reject     Stage rejection (by actor role)

  Approvals:
    GET    /api/approvals/queue              Pending queue for actor's role

  Admin:
    POST   /api/admin/allocations            Yearly allocation (one or all)
    POST   /api/admin/adjustments            Allocation override

  Holidays:
    GET    /api/holidays?year=               List holidays
    POST   /api/holidays                     Add manual holiday
    DELETE /api/holidays/{date}              Deactivate holiday
    POST   /api/holidays/sync?year=          Pull from external source

  Meta:
    GET    /api/leave-types                  Leave type rule table

IDENTITY:
  Authentication is an external collaborator. The already-authenticated
  identity arrives as X-Actor-ID and X-Actor-Role headers; handlers build
  a leave.Actor from them and pass it down. Role enforcement lives in the
  domain, not here.

ERROR HANDLING:
  Domain errors map to HTTP statuses:
  - 400: Validation and business-rule rejections
  - 403: Role does not permit the operation
  - 404: Missing record
  - 409: Lost conditional-write race after retries
  - 503: Store unavailable

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - leave/errors.go: The error taxonomy this maps
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     leave.TxStore
	Ledger    *leave.Ledger
	Workflow  *leave.Workflow
	Allocator *leave.Allocator
	Syncer    *leave.HolidaySyncer
}

// NewHandler wires a handler over the given store. Syncer may be nil when
// no external holiday source is configured; the sync endpoint then 503s.
func NewHandler(store leave.TxStore, notifier leave.Notifier, syncer *leave.HolidaySyncer) *Handler {
	ledger := leave.NewLedger(store, notifier)
	return &Handler{
		Store:     store,
		Ledger:    ledger,
		Workflow:  leave.NewWorkflow(store, ledger, notifier),
		Allocator: leave.NewAllocator(store, notifier),
		Syncer:    syncer,
	}
}

// actorFrom builds the acting identity from the request headers.
func actorFrom(r *http.Request) leave.Actor {
	role := leave.Role(r.Header.Get("X-Actor-Role"))
	if role == "" {
		role = leave.RoleStaff
	}
	return leave.Actor{ID: r.Header.Get("X-Actor-ID"), Role: role}
}

// yearFrom reads the year query parameter, defaulting to the current year.
func yearFrom(r *http.Request) int {
	if y, err := strconv.Atoi(r.URL.Query().Get("year")); err == nil && y > 0 {
		return y
	}
	return time.Now().UTC().Year()
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all active employees.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListActiveEmployees(r.Context())
	if err != nil {
		writeDomainError(w, err)
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
	emp, err := h.Store.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp))
}

// CreateEmployee creates or updates an employee record.
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

	hireDate, err := leave.ParseDate(req.HireDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hire_date format (use YYYY-MM-DD)", err)
		return
	}

	role := leave.Role(req.Role)
	if role == "" {
		role = leave.RoleStaff
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	emp := leave.Employee{
		ID:       req.ID,
		Name:     req.Name,
		Email:    req.Email,
		Role:     role,
		HireDate: hireDate,
		Active:   active,
	}
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// GetBalances returns an employee's balance rows for a year.
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Ledger.ListBalances(r.Context(), chi.URLParam(r, "id"), yearFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTOs(balances))
}

// ListUserApplications returns an employee's application history, newest
// first. An optional status query parameter filters it.
func (h *Handler) ListUserApplications(w http.ResponseWriter, r *http.Request) {
	var statuses []leave.Status
	if s := leave.Status(r.URL.Query().Get("status")); s != "" {
		if !s.Valid() {
			writeError(w, http.StatusBadRequest, "unknown status", nil)
			return
		}
		statuses = []leave.Status{s}
	}

	apps, err := h.Store.ListApplicationsByUser(r.Context(), chi.URLParam(r, "id"), statuses)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTOs(apps))
}

// =============================================================================
// APPLICATION HANDLERS
// =============================================================================

// SubmitApplication creates a new application. With draft=true the
// application is stored without reserving balance.
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	var req SubmitApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	startDate, err := leave.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}

	submit := leave.SubmitRequest{
		UserID:      req.UserID,
		Type:        leave.Type(req.LeaveType),
		StartDate:   startDate,
		WorkingDays: req.WorkingDays,
		Reason:      req.Reason,
	}

	actor := actorFrom(r)
	var app *leave.Application
	if req.Draft {
		app, err = h.Workflow.SaveDraft(r.Context(), actor, submit)
	} else {
		app, err = h.Workflow.Submit(r.Context(), actor, submit)
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationDTO(*app))
}

// GetApplication returns a single application.
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.Store.GetApplication(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(*app))
}

// SubmitDraft moves a draft into the approval chain.
func (h *Handler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	app, err := h.Workflow.SubmitDraft(r.Context(), actorFrom(r), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(*app))
}

// ApproveApplication advances an application one approval stage. The stage
// is the actor's: directors advance pending_director, HR finalizes
// pending_hr.
func (h *Handler) ApproveApplication(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	actor := actorFrom(r)
	id := chi.URLParam(r, "id")

	var app *leave.Application
	var err error
	switch actor.Role {
	case leave.RoleDirector:
		app, err = h.Workflow.DirectorApprove(r.Context(), actor, id, req.Comments)
	case leave.RoleHR:
		app, err = h.Workflow.HrApprove(r.Context(), actor, id, req.Comments)
	default:
		err = leave.ErrForbidden
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(*app))
}

// RejectApplication rejects an application at the actor's stage. Comments
// are mandatory.
func (h *Handler) RejectApplication(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	actor := actorFrom(r)
	id := chi.URLParam(r, "id")

	var app *leave.Application
	var err error
	switch actor.Role {
	case leave.RoleDirector:
		app, err = h.Workflow.DirectorReject(r.Context(), actor, id, req.Comments)
	case leave.RoleHR:
		app, err = h.Workflow.HrReject(r.Context(), actor, id, req.Comments)
	default:
		err = leave.ErrForbidden
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(*app))
}

// ApprovalQueue returns the pending queue for the actor's role, oldest
// first.
func (h *Handler) ApprovalQueue(w http.ResponseWriter, r *http.Request) {
	apps, err := h.Workflow.PendingQueue(r.Context(), actorFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTOs(apps))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunAllocation allocates the year's balances for one user or, with no
// user_id, for every active employee.
func (h *Handler) RunAllocation(w http.ResponseWriter, r *http.Request) {
	var req AllocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	actor := actorFrom(r)
	if req.UserID != "" {
		balances, err := h.Allocator.AllocateForUser(r.Context(), actor, req.UserID, req.Year)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBalanceDTOs(balances))
		return
	}

	result, err := h.Allocator.AllocateForAllUsers(r.Context(), actor, req.Year)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dto := AllocationBatchDTO{Year: result.Year, Processed: result.Processed}
	for _, f := range result.Failures {
		dto.Failures = append(dto.Failures, BatchFailureDTO{UserID: f.UserID, Error: f.Err.Error()})
	}
	writeJSON(w, http.StatusOK, dto)
}

// CreateAdjustment overrides a balance row's allocated days.
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	bal, err := h.Ledger.AdjustAllocation(r.Context(), actorFrom(r),
		req.UserID, leave.Type(req.LeaveType), req.Year,
		leave.NewDays(req.AllocatedDays), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(*bal))
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns a year's holidays, active and inactive.
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Store.ListHolidays(r.Context(), yearFrom(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	dtos := make([]HolidayDTO, len(holidays))
	for i, hd := range holidays {
		dtos[i] = toHolidayDTO(hd)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateHoliday adds a manual holiday entry.
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	date, err := leave.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	holiday := leave.Holiday{
		Date:   date,
		Name:   req.Name,
		Year:   date.Year(),
		Active: true,
		Source: "manual",
	}
	if err := h.Store.UpsertHoliday(r.Context(), holiday); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toHolidayDTO(holiday))
}

// DeactivateHoliday switches a holiday off without deleting it.
func (h *Handler) DeactivateHoliday(w http.ResponseWriter, r *http.Request) {
	date, err := leave.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return
	}

	if err := h.Store.DeactivateHoliday(r.Context(), date); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SyncHolidays pulls a year's holidays from the external source.
func (h *Handler) SyncHolidays(w http.ResponseWriter, r *http.Request) {
	if h.Syncer == nil {
		writeError(w, http.StatusServiceUnavailable, "No holiday source configured", nil)
		return
	}

	year := yearFrom(r)
	count, err := h.Syncer.Sync(r.Context(), year)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Holiday sync failed", err)
		return
	}
	writeJSON(w, http.StatusOK, SyncHolidaysResponse{Year: year, Synced: count})
}

// =============================================================================
// META HANDLERS
// =============================================================================

// ListLeaveTypes returns the leave type rule table.
func (h *Handler) ListLeaveTypes(w http.ResponseWriter, r *http.Request) {
	types := leave.AllTypes()
	dtos := make([]LeaveTypeDTO, len(types))
	for i, t := range types {
		spec := t.Spec()
		dtos[i] = LeaveTypeDTO{
			Type:              string(t),
			Label:             spec.Label,
			DefaultAllocation: spec.DefaultAllocation,
			NoticeDays:        spec.NoticeDays,
			Reapplicable:      spec.Reapplicable,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case leave.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: errorCode(err)})
	case errors.Is(err, leave.ErrForbidden):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: err.Error(), Code: "forbidden"})
	case leave.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "not_found"})
	case errors.Is(err, leave.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "conflict"})
	case errors.Is(err, leave.ErrStoreUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "unavailable"})
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, leave.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, leave.ErrInsufficientNotice):
		return "insufficient_notice"
	case errors.Is(err, leave.ErrOverlappingApplication):
		return "overlapping_application"
	case errors.Is(err, leave.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, leave.ErrNegativeAvailable):
		return "negative_available"
	default:
		return "validation"
	}
}
