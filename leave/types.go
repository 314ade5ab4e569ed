/*
Package leave implements the leave balance ledger and application workflow engine.

PURPOSE:
  This package contains the domain types and algorithms for managing employee
  time-off: per-type yearly entitlements, the two-stage approval workflow,
  and the working-day arithmetic that derives leave end dates from a start
  date and a holiday calendar.

KEY CONCEPTS IN THIS FILE (types.go):
  - Days: A day quantity backed by decimal.Decimal (no float drift)
  - Type: The closed set of leave types with their entitlement rules
  - Status: The application lifecycle states
  - Balance: The (user, type, year) entitlement row with a version for CAS
  - Application: A leave request moving through the approval chain
  - Reservation: The ledger's hold against a balance while approval is pending

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal for all day quantities
  2. Explicit actors: every operation receives an Actor, never ambient identity
  3. Conditional writes: balances and applications are only mutated through
     version/status-checked updates, so lost-update races are impossible
  4. Closed enumeration: leave types are a business invariant, not user data

SEE ALSO:
  - calendar.go: Date type, holiday calendar, working-day calculator
  - ledger.go:   reserve/commit/release balance accounting
  - workflow.go: the application state machine
*/
package leave

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAYS - Day quantity with decimal precision
// =============================================================================

type Days struct {
	Value decimal.Decimal
}

func NewDays(value float64) Days  { return Days{Value: decimal.NewFromFloat(value)} }
func DaysFromInt(value int) Days  { return Days{Value: decimal.NewFromInt(int64(value))} }
func ZeroDays() Days              { return Days{Value: decimal.Zero} }

func (d Days) Add(o Days) Days          { return Days{Value: d.Value.Add(o.Value)} }
func (d Days) Sub(o Days) Days          { return Days{Value: d.Value.Sub(o.Value)} }
func (d Days) IsNegative() bool         { return d.Value.IsNegative() }
func (d Days) IsZero() bool             { return d.Value.IsZero() }
func (d Days) Equal(o Days) bool        { return d.Value.Equal(o.Value) }
func (d Days) GreaterThan(o Days) bool  { return d.Value.GreaterThan(o.Value) }
func (d Days) LessThan(o Days) bool     { return d.Value.LessThan(o.Value) }
func (d Days) String() string           { return d.Value.String() }

// ParseDays parses a stored decimal string. Invalid input yields zero;
// stores are the only callers and they persist via Days.String().
func ParseDays(s string) Days {
	v, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroDays()
	}
	return Days{Value: v}
}

// =============================================================================
// LEAVE TYPE - Closed enumeration with entitlement rules
// =============================================================================

type Type string

const (
	TypeAnnual    Type = "annual"
	TypeCasual    Type = "casual"
	TypeSick      Type = "sick"
	TypeMaternity Type = "maternity"
	TypePaternity Type = "paternity"
)

// TypeSpec carries the per-type business rules: default yearly entitlement,
// the minimum lead time between submission and leave start, and whether the
// type may be applied for repeatedly within the year against the same pool.
type TypeSpec struct {
	Label             string
	DefaultAllocation int // days per year
	NoticeDays        int // minimum days between submission and start
	Reapplicable      bool
}

// typeSpecs is the constant rule table. The set of leave types is a business
// invariant: adding a type is a code change, not a configuration change.
var typeSpecs = map[Type]TypeSpec{
	TypeAnnual:    {Label: "Annual Leave", DefaultAllocation: 30, NoticeDays: 14},
	TypeCasual:    {Label: "Casual Leave", DefaultAllocation: 7, NoticeDays: 14},
	TypeSick:      {Label: "Sick Leave", DefaultAllocation: 10, NoticeDays: 0, Reapplicable: true},
	TypeMaternity: {Label: "Maternity Leave", DefaultAllocation: 112, NoticeDays: 28}, // 16 weeks
	TypePaternity: {Label: "Paternity Leave", DefaultAllocation: 14, NoticeDays: 14},
}

// AllTypes returns the leave types in a stable order.
func AllTypes() []Type {
	return []Type{TypeAnnual, TypeCasual, TypeSick, TypeMaternity, TypePaternity}
}

func (t Type) Valid() bool {
	_, ok := typeSpecs[t]
	return ok
}

func (t Type) Spec() TypeSpec { return typeSpecs[t] }

// =============================================================================
// STATUS - Application lifecycle
// =============================================================================

// Status graph:
//
//	draft ──► pending_director ──► pending_hr ──► approved
//	                │                   │
//	                └───────────────────┴───────► rejected
//
// approved and rejected are terminal.
type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingDirector Status = "pending_director"
	StatusPendingHR       Status = "pending_hr"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPendingDirector, StatusPendingHR, StatusApproved, StatusRejected:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// BlockingStatuses are the statuses that make an application count for the
// overlap rule: a user may not have two of these covering the same dates.
func BlockingStatuses() []Status {
	return []Status{StatusPendingDirector, StatusPendingHR, StatusApproved}
}

// =============================================================================
// ACTOR - Already-authenticated identity with a resolved role
// =============================================================================

// Role of an acting user. Authentication is an external collaborator;
// the engine only checks authorization against the resolved role.
type Role string

const (
	RoleStaff    Role = "staff"
	RoleDirector Role = "director"
	RoleHR       Role = "hr"
	RoleAdmin    Role = "admin"
)

type Actor struct {
	ID   string
	Role Role
}

// =============================================================================
// BALANCE - Per (user, leave type, year) entitlement row
// =============================================================================

// BalanceKey identifies a balance row.
type BalanceKey struct {
	UserID string
	Type   Type
	Year   int
}

// Balance is the ledger's accounting row.
//
// INVARIANT: Available = Allocated - Used - Pending, and Used/Pending >= 0,
// at every observable instant. The row is mutated only through conditional
// updates keyed on Version (compare-and-swap), never blind overwrites.
type Balance struct {
	UserID    string
	Type      Type
	Year      int
	Allocated Days
	Used      Days
	Pending   Days
	Available Days
	Version   int64
	UpdatedAt time.Time
}

func (b Balance) Key() BalanceKey {
	return BalanceKey{UserID: b.UserID, Type: b.Type, Year: b.Year}
}

// CheckInvariant verifies the accounting identity. Stores and tests call
// this; a violation indicates a bug, never a business-rule rejection.
func (b Balance) CheckInvariant() error {
	if b.Used.IsNegative() || b.Pending.IsNegative() {
		return &InvariantError{Key: b.Key(), Detail: "negative used or pending"}
	}
	expect := b.Allocated.Sub(b.Used).Sub(b.Pending)
	if !b.Available.Equal(expect) {
		return &InvariantError{Key: b.Key(), Detail: "available != allocated - used - pending"}
	}
	return nil
}

// =============================================================================
// RESERVATION - Hold against a balance for an in-flight application
// =============================================================================

type ReservationState string

const (
	ReservationOpen      ReservationState = "open"
	ReservationCommitted ReservationState = "committed"
	ReservationReleased  ReservationState = "released"
)

// Reservation records a pending hold created by Ledger.Reserve. Commit and
// Release flip State exactly once via a conditional update; a reservation
// that is no longer open cannot be committed or released again. This is the
// idempotency guard that makes workflow transition retries safe.
type Reservation struct {
	ID            string
	UserID        string
	Type          Type
	Year          int
	Days          Days
	ApplicationID string
	State         ReservationState
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// =============================================================================
// APPLICATION - A leave request
// =============================================================================

// Decision records one approval-chain verdict.
type Decision struct {
	ApproverID string
	Comments   string
	DecidedAt  time.Time
}

// Application is a leave request. EndDate, ResumptionDate and WorkingDays are
// always mutually consistent with the working-day calculator's output for
// StartDate against the holiday calendar in effect at submission time.
type Application struct {
	ID     string // internal id (uuid)
	Number string // human-readable, e.g. "LA-2026-0042"

	UserID      string
	Type        Type
	StartDate   Date
	EndDate     Date
	ResumptionDate Date
	WorkingDays int
	Reason      string

	Status        Status
	ReservationID string

	SubmittedAt time.Time
	Director    *Decision // set once the director stage decided
	HR          *Decision // set once the HR stage decided

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// EMPLOYEE - Entity record (owned externally, consumed here)
// =============================================================================

type Employee struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	HireDate  Date
	Active    bool
	CreatedAt time.Time
}

// =============================================================================
// HOLIDAY - Non-working date
// =============================================================================

// Holiday is keyed by date. Holidays are never hard-deleted, only
// deactivated, so historical applications keep their calculated dates'
// meaning.
type Holiday struct {
	Date   Date
	Name   string
	Year   int
	Active bool
	Source string // "sync" or "manual"
}
