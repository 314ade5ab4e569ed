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
  Structural validation (parseable dates, known leave types) happens in
  handlers; business validation lives in the domain and surfaces through
  the error mapping in handlers.go. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - leave/types.go: The domain model these project
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	HireDate  string `json:"hire_date"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateEmployeeRequest is the request to create or update an employee.
type CreateEmployeeRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	HireDate string `json:"hire_date"`
	Active   *bool  `json:"active,omitempty"`
}

// BalanceDTO represents one (leave type, year) balance row.
type BalanceDTO struct {
	UserID    string  `json:"user_id"`
	LeaveType string  `json:"leave_type"`
	Year      int     `json:"year"`
	Allocated float64 `json:"allocated"`
	Used      float64 `json:"used"`
	Pending   float64 `json:"pending"`
	Available float64 `json:"available"`
	UpdatedAt string  `json:"updated_at"`
}

// SubmitApplicationRequest is the request to submit a leave application.
type SubmitApplicationRequest struct {
	UserID      string `json:"user_id"`
	LeaveType   string `json:"leave_type"`
	StartDate   string `json:"start_date"` // YYYY-MM-DD
	WorkingDays int    `json:"working_days"`
	Reason      string `json:"reason"`
	Draft       bool   `json:"draft,omitempty"`
}

// DecisionDTO represents one approval-chain verdict.
type DecisionDTO struct {
	ApproverID string `json:"approver_id"`
	Comments   string `json:"comments"`
	DecidedAt  string `json:"decided_at"`
}

// ApplicationDTO represents a leave application.
type ApplicationDTO struct {
	ID             string       `json:"id"`
	Number         string       `json:"number"`
	UserID         string       `json:"user_id"`
	LeaveType      string       `json:"leave_type"`
	StartDate      string       `json:"start_date"`
	EndDate        string       `json:"end_date"`
	ResumptionDate string       `json:"resumption_date"`
	WorkingDays    int          `json:"working_days"`
	Reason         string       `json:"reason"`
	Status         string       `json:"status"`
	SubmittedAt    string       `json:"submitted_at,omitempty"`
	Director       *DecisionDTO `json:"director_decision,omitempty"`
	HR             *DecisionDTO `json:"hr_decision,omitempty"`
	CreatedAt      string       `json:"created_at,omitempty"`
}

// DecideRequest is the request body for approve/reject endpoints.
type DecideRequest struct {
	Comments string `json:"comments"`
}

// AllocationRequest triggers yearly allocation.
type AllocationRequest struct {
	UserID string `json:"user_id,omitempty"` // empty = all active employees
	Year   int    `json:"year"`
}

// AllocationBatchDTO reports a batch allocation run.
type AllocationBatchDTO struct {
	Year      int               `json:"year"`
	Processed int               `json:"processed"`
	Failures  []BatchFailureDTO `json:"failures,omitempty"`
}

type BatchFailureDTO struct {
	UserID string `json:"user_id"`
	Error  string `json:"error"`
}

// AdjustmentRequest is the request to override an allocation.
type AdjustmentRequest struct {
	UserID        string  `json:"user_id"`
	LeaveType     string  `json:"leave_type"`
	Year          int     `json:"year"`
	AllocatedDays float64 `json:"allocated_days"`
	Reason        string  `json:"reason"`
}

// HolidayDTO represents a holiday calendar entry.
type HolidayDTO struct {
	Date   string `json:"date"`
	Name   string `json:"name"`
	Year   int    `json:"year"`
	Active bool   `json:"active"`
	Source string `json:"source"`
}

// CreateHolidayRequest adds a manual holiday.
type CreateHolidayRequest struct {
	Date string `json:"date"` // YYYY-MM-DD
	Name string `json:"name"`
}

// SyncHolidaysResponse reports a calendar sync.
type SyncHolidaysResponse struct {
	Year   int `json:"year"`
	Synced int `json:"synced"`
}

// LeaveTypeDTO describes one leave type's rules.
type LeaveTypeDTO struct {
	Type              string `json:"type"`
	Label             string `json:"label"`
	DefaultAllocation int    `json:"default_allocation"`
	NoticeDays        int    `json:"notice_days"`
	Reapplicable      bool   `json:"reapplicable"`
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

func toEmployeeDTO(e leave.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:        e.ID,
		Name:      e.Name,
		Email:     e.Email,
		Role:      string(e.Role),
		HireDate:  e.HireDate.String(),
		Active:    e.Active,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

func toBalanceDTO(b leave.Balance) BalanceDTO {
	allocated, _ := b.Allocated.Value.Float64()
	used, _ := b.Used.Value.Float64()
	pending, _ := b.Pending.Value.Float64()
	available, _ := b.Available.Value.Float64()
	return BalanceDTO{
		UserID:    b.UserID,
		LeaveType: string(b.Type),
		Year:      b.Year,
		Allocated: allocated,
		Used:      used,
		Pending:   pending,
		Available: available,
		UpdatedAt: b.UpdatedAt.Format(time.RFC3339),
	}
}

func toBalanceDTOs(balances []leave.Balance) []BalanceDTO {
	dtos := make([]BalanceDTO, len(balances))
	for i, b := range balances {
		dtos[i] = toBalanceDTO(b)
	}
	return dtos
}

func toDecisionDTO(d *leave.Decision) *DecisionDTO {
	if d == nil {
		return nil
	}
	return &DecisionDTO{
		ApproverID: d.ApproverID,
		Comments:   d.Comments,
		DecidedAt:  d.DecidedAt.Format(time.RFC3339),
	}
}

func toApplicationDTO(a leave.Application) ApplicationDTO {
	dto := ApplicationDTO{
		ID:             a.ID,
		Number:         a.Number,
		UserID:         a.UserID,
		LeaveType:      string(a.Type),
		StartDate:      a.StartDate.String(),
		EndDate:        a.EndDate.String(),
		ResumptionDate: a.ResumptionDate.String(),
		WorkingDays:    a.WorkingDays,
		Reason:         a.Reason,
		Status:         string(a.Status),
		Director:       toDecisionDTO(a.Director),
		HR:             toDecisionDTO(a.HR),
		CreatedAt:      a.CreatedAt.Format(time.RFC3339),
	}
	if !a.SubmittedAt.IsZero() {
		dto.SubmittedAt = a.SubmittedAt.Format(time.RFC3339)
	}
	return dto
}

func toApplicationDTOs(apps []leave.Application) []ApplicationDTO {
	dtos := make([]ApplicationDTO, len(apps))
	for i, a := range apps {
		dtos[i] = toApplicationDTO(a)
	}
	return dtos
}

func toHolidayDTO(h leave.Holiday) HolidayDTO {
	return HolidayDTO{
		Date:   h.Date.String(),
		Name:   h.Name,
		Year:   h.Year,
		Active: h.Active,
		Source: h.Source,
	}
}
