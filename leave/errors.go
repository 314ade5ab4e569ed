/*
errors.go - Centralized error types for the leave engine

PURPOSE:
  All error kinds in one place. Callers dispatch with errors.Is/errors.As;
  the API layer maps them to HTTP statuses.

ERROR CATEGORIES:
  1. Validation errors  - caller-correctable input problems, never retried
  2. Business rules     - insufficient balance/notice, overlaps; reported to
                          the actor, not retried automatically
  3. Protocol misuse    - invalid transitions, unknown reservations; safe to
                          retry after re-fetching current state
  4. Infrastructure     - store failures and version-conflict races; the
                          engine guarantees zero partial mutation on these

SEE ALSO:
  - ledger.go:   raises balance errors
  - workflow.go: raises transition and business-rule errors
*/
package leave

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientBalance is returned when a reservation would exceed the
	// available days at the instant of evaluation.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrInsufficientNotice is returned when the start date violates the
	// leave type's minimum notice period.
	ErrInsufficientNotice = errors.New("insufficient notice")

	// ErrOverlappingApplication is returned when the user already has a
	// non-rejected application covering an intersecting date range.
	ErrOverlappingApplication = errors.New("overlapping application")

	// ErrInvalidTransition is returned when an application is not in the
	// source state the requested transition demands. No side effects.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrUnknownReservation is returned by commit/release when the
	// reservation does not exist or was already committed or released.
	ErrUnknownReservation = errors.New("unknown reservation")

	// ErrNegativeAvailable is returned when an allocation adjustment would
	// drive available days negative. The adjustment is rejected whole.
	ErrNegativeAvailable = errors.New("adjustment would make available days negative")

	// ErrVersionConflict is returned by conditional store writes when the
	// expected version or status no longer matches. Retry after re-reading.
	ErrVersionConflict = errors.New("version conflict")

	// ErrBalanceNotFound is returned when no balance row exists for the key.
	ErrBalanceNotFound = errors.New("balance not found")

	// ErrApplicationNotFound is returned for an unknown application id.
	ErrApplicationNotFound = errors.New("application not found")

	// ErrEmployeeNotFound is returned for an unknown employee id.
	ErrEmployeeNotFound = errors.New("employee not found")

	// ErrForbidden is returned when the actor's role does not permit the
	// operation.
	ErrForbidden = errors.New("forbidden")

	// ErrStoreUnavailable wraps infrastructure failures from the persistent
	// store. Retryable with backoff; no partial mutation occurred.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports caller-correctable input problems.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// InsufficientBalanceError reports the exact shortage.
type InsufficientBalanceError struct {
	Key       BalanceKey
	Available Days
	Requested Days
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: %s available, %s requested (%s %s %d)",
		e.Available, e.Requested, e.Key.UserID, e.Key.Type, e.Key.Year)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// InsufficientNoticeError reports the notice-period violation.
type InsufficientNoticeError struct {
	Type         Type
	RequiredDays int
	ActualDays   int
}

func (e *InsufficientNoticeError) Error() string {
	return fmt.Sprintf("insufficient notice for %s: %d days required, %d given",
		e.Type, e.RequiredDays, e.ActualDays)
}

func (e *InsufficientNoticeError) Unwrap() error { return ErrInsufficientNotice }

// OverlapError identifies the conflicting application.
type OverlapError struct {
	ExistingNumber string
	Start          Date
	End            Date
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("overlapping application %s (%s to %s)",
		e.ExistingNumber, e.Start, e.End)
}

func (e *OverlapError) Unwrap() error { return ErrOverlappingApplication }

// TransitionError reports an illegal state-machine transition.
type TransitionError struct {
	ApplicationID string
	From          Status
	Event         string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s application %s in status %s",
		e.Event, e.ApplicationID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// InvariantError signals a violated accounting identity. This is a bug
// indicator, not a business-rule rejection.
type InvariantError struct {
	Key    BalanceKey
	Detail string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("balance invariant violated for %s %s %d: %s",
		e.Key.UserID, e.Key.Type, e.Key.Year, e.Detail)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation might succeed when retried
// after re-fetching current state (race-lost or infrastructure failures).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict) ||
		errors.Is(err, ErrStoreUnavailable)
}

// IsClientError returns true if the error is due to invalid input or a
// business-rule rejection that the actor must resolve.
func IsClientError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInsufficientNotice) ||
		errors.Is(err, ErrOverlappingApplication) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrUnknownReservation) ||
		errors.Is(err, ErrNegativeAvailable)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBalanceNotFound) ||
		errors.Is(err, ErrApplicationNotFound) ||
		errors.Is(err, ErrEmployeeNotFound)
}
