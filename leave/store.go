/*
store.go - Persistence interfaces for the leave engine

PURPOSE:
  Defines the contract between the domain logic and the database. The engine
  never mutates shared rows with blind overwrites: balances are updated with
  an expected version, applications with an expected status. A store that
  honors these conditional-write contracts makes lost-update races
  impossible, which is the central correctness property of the ledger.

CONDITIONAL WRITES:
  UpdateBalance(b, expectedVersion) and UpdateApplication(a, expectedStatus)
  must fail with ErrVersionConflict - and write nothing - when the current
  row no longer matches the expectation. SQL stores implement this as
  UPDATE ... WHERE version = ? (checking rows affected); the memory store
  checks under its lock.

ATOMICITY:
  WithTx(fn) runs fn against a transactional view: either every write in fn
  is applied or none is. The ledger and workflow rely on this so a failed
  call leaves no partial ledger state.

IMPLEMENTATIONS:
  - store/sqlite:       production SQLite store
  - leave/store.Memory: in-memory store for tests and dev mode

SEE ALSO:
  - ledger.go, workflow.go: the only writers of balances and applications
*/
package leave

import "context"

// =============================================================================
// BALANCE STORE
// =============================================================================

type BalanceStore interface {
	// GetBalance returns the row for key, or ErrBalanceNotFound.
	GetBalance(ctx context.Context, key BalanceKey) (*Balance, error)

	// ListBalances returns all rows for a user and year, ordered by type.
	ListBalances(ctx context.Context, userID string, year int) ([]Balance, error)

	// CreateBalance inserts a new row with Version 1. Fails with
	// ErrVersionConflict if the key already exists.
	CreateBalance(ctx context.Context, b Balance) error

	// UpdateBalance applies b only if the stored row still has
	// expectedVersion; the stored version is then incremented. Returns
	// ErrVersionConflict otherwise, with no write.
	UpdateBalance(ctx context.Context, b Balance, expectedVersion int64) error
}

// =============================================================================
// APPLICATION STORE
// =============================================================================

type ApplicationStore interface {
	// CreateApplication inserts a new application.
	CreateApplication(ctx context.Context, a Application) error

	// GetApplication returns the row, or ErrApplicationNotFound.
	GetApplication(ctx context.Context, id string) (*Application, error)

	// UpdateApplication applies a only if the stored row is still in
	// expectedStatus. Returns ErrVersionConflict otherwise, with no write.
	UpdateApplication(ctx context.Context, a Application, expectedStatus Status) error

	// ListApplicationsByUser returns a user's applications, newest first.
	// An empty status filter means all statuses.
	ListApplicationsByUser(ctx context.Context, userID string, statuses []Status) ([]Application, error)

	// ListApplicationsByStatus returns the approval queue for a status,
	// oldest first.
	ListApplicationsByStatus(ctx context.Context, status Status) ([]Application, error)

	// FindOverlapping returns the user's applications in any of the given
	// statuses whose [StartDate, EndDate] intersects [start, end].
	FindOverlapping(ctx context.Context, userID string, start, end Date, statuses []Status) ([]Application, error)

	// NextSequence returns the next application sequence number for a year
	// (monotonic, starting at 1).
	NextSequence(ctx context.Context, year int) (int64, error)
}

// =============================================================================
// RESERVATION STORE
// =============================================================================

type ReservationStore interface {
	// CreateReservation inserts a new open reservation.
	CreateReservation(ctx context.Context, r Reservation) error

	// GetReservation returns the row, or ErrUnknownReservation.
	GetReservation(ctx context.Context, id string) (*Reservation, error)

	// TransitionReservation flips State only if the stored row is still in
	// expectedState. Returns ErrVersionConflict otherwise, with no write.
	TransitionReservation(ctx context.Context, id string, expectedState, newState ReservationState) error
}

// =============================================================================
// HOLIDAY STORE
// =============================================================================

type HolidayStore interface {
	// UpsertHoliday inserts or reactivates/renames the holiday for its date.
	UpsertHoliday(ctx context.Context, h Holiday) error

	// DeactivateHoliday marks the date inactive. Holidays are never deleted.
	DeactivateHoliday(ctx context.Context, date Date) error

	// ListHolidays returns all holidays for a year, active and inactive,
	// ordered by date.
	ListHolidays(ctx context.Context, year int) ([]Holiday, error)
}

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

type EmployeeStore interface {
	SaveEmployee(ctx context.Context, e Employee) error

	// GetEmployee returns the row, or ErrEmployeeNotFound.
	GetEmployee(ctx context.Context, id string) (*Employee, error)

	// ListActiveEmployees returns employees eligible for allocation.
	ListActiveEmployees(ctx context.Context) ([]Employee, error)
}

// =============================================================================
// COMBINED + TRANSACTIONAL STORE
// =============================================================================

// Store bundles every persistence concern the engine consumes.
type Store interface {
	BalanceStore
	ApplicationStore
	ReservationStore
	HolidayStore
	EmployeeStore
}

// TxStore adds all-or-nothing execution. If fn returns an error the
// transactional view is discarded; otherwise all writes commit together.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
