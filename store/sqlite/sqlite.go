/*
Package sqlite provides the SQLite-backed implementation of leave.TxStore.

PURPOSE:
  Persists balances, applications, reservations, holidays and employees.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

CONDITIONAL WRITES:
  The optimistic-concurrency contract lives here:
  - UpdateBalance:          UPDATE ... WHERE version = ?
  - UpdateApplication:      UPDATE ... WHERE status = ?
  - TransitionReservation:  UPDATE ... WHERE state = ?
  A write whose predicate no longer holds affects zero rows and surfaces
  leave.ErrVersionConflict, which callers resolve by re-reading.

KEY TABLES:
  leave_balances:        One row per (user, leave type, year), versioned
  applications:          Leave requests with embedded stage decisions
  application_sequences: Per-year counter behind application numbers
  reservations:          Pending holds, single-transition state machine
  holidays:              Date-keyed, deactivated rather than deleted
  employees:             Entity records consumed by allocation

INDEXES:
  - idx_applications_user_status:  User history and overlap filtering
  - idx_applications_status:       Approval queues (hot path)
  - idx_applications_user_dates:   Overlap detection
  - idx_holidays_year_active:      Calendar loads

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := leave.NewLedger(store, nil)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - leave/store.go: Interface definitions and write contracts
  - leave/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/leave-engine/leave"
)

// Store implements leave.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given database path.
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
	-- Balances: one row per (user, leave type, year); version drives CAS
	CREATE TABLE IF NOT EXISTS leave_balances (
		user_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		year INTEGER NOT NULL,
		allocated TEXT NOT NULL,
		used TEXT NOT NULL,
		pending TEXT NOT NULL,
		available TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, leave_type, year)
	);

	-- Applications with embedded stage decisions
	CREATE TABLE IF NOT EXISTS applications (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		resumption_date TEXT NOT NULL,
		working_days INTEGER NOT NULL,
		reason TEXT NOT NULL,
		status TEXT NOT NULL,
		reservation_id TEXT,
		submitted_at TEXT,
		director_id TEXT,
		director_comments TEXT,
		director_decided_at TEXT,
		hr_id TEXT,
		hr_comments TEXT,
		hr_decided_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_applications_user_status
		ON applications(user_id, status);

	-- Approval queues (hot path)
	CREATE INDEX IF NOT EXISTS idx_applications_status
		ON applications(status);

	-- Overlap detection
	CREATE INDEX IF NOT EXISTS idx_applications_user_dates
		ON applications(user_id, start_date, end_date);

	-- Per-year counter behind application numbers
	CREATE TABLE IF NOT EXISTS application_sequences (
		year INTEGER PRIMARY KEY,
		seq INTEGER NOT NULL
	);

	-- Pending holds; state flips exactly once (open -> committed|released)
	CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		year INTEGER NOT NULL,
		days TEXT NOT NULL,
		application_id TEXT NOT NULL,
		state TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_application
		ON reservations(application_id);

	-- Holidays: date-keyed, deactivated rather than deleted
	CREATE TABLE IF NOT EXISTS holidays (
		date TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		year INTEGER NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		source TEXT NOT NULL DEFAULT 'manual',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_holidays_year_active
		ON holidays(year, active);

	-- Employees
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		role TEXT NOT NULL DEFAULT 'staff',
		hire_date TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_active
		ON employees(active);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var _ leave.TxStore = (*Store)(nil)

// =============================================================================
// BALANCE STORE
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBalance(ctx, s.db, key)
}

func getBalance(ctx context.Context, db dbtx, key leave.BalanceKey) (*leave.Balance, error) {
	row := db.QueryRowContext(ctx, `
		SELECT user_id, leave_type, year, allocated, used, pending, available, version, updated_at
		FROM leave_balances
		WHERE user_id = ? AND leave_type = ? AND year = ?`,
		key.UserID, string(key.Type), key.Year,
	)
	return scanBalance(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(row rowScanner) (*leave.Balance, error) {
	var b leave.Balance
	var leaveType, allocated, used, pending, available, updatedAt string

	err := row.Scan(&b.UserID, &leaveType, &b.Year, &allocated, &used, &pending, &available, &b.Version, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, leave.ErrBalanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan balance: %w", err)
	}

	b.Type = leave.Type(leaveType)
	b.Allocated = leave.ParseDays(allocated)
	b.Used = leave.ParseDays(used)
	b.Pending = leave.ParseDays(pending)
	b.Available = leave.ParseDays(available)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &b, nil
}

func (s *Store) ListBalances(ctx context.Context, userID string, year int) ([]leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBalances(ctx, s.db, userID, year)
}

func listBalances(ctx context.Context, db dbtx, userID string, year int) ([]leave.Balance, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT user_id, leave_type, year, allocated, used, pending, available, version, updated_at
		FROM leave_balances
		WHERE user_id = ? AND year = ?
		ORDER BY leave_type`,
		userID, year,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var balances []leave.Balance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		balances = append(balances, *b)
	}
	return balances, rows.Err()
}

func (s *Store) CreateBalance(ctx context.Context, b leave.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createBalance(ctx, s.db, b)
}

func createBalance(ctx context.Context, db dbtx, b leave.Balance) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO leave_balances
		(user_id, leave_type, year, allocated, used, pending, available, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		b.UserID, string(b.Type), b.Year,
		b.Allocated.String(), b.Used.String(), b.Pending.String(), b.Available.String(),
		b.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return leave.ErrVersionConflict
		}
		return fmt.Errorf("failed to create balance: %w", err)
	}
	return nil
}

func (s *Store) UpdateBalance(ctx context.Context, b leave.Balance, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateBalance(ctx, s.db, b, expectedVersion)
}

func updateBalance(ctx context.Context, db dbtx, b leave.Balance, expectedVersion int64) error {
	res, err := db.ExecContext(ctx, `
		UPDATE leave_balances
		SET allocated = ?, used = ?, pending = ?, available = ?,
		    version = version + 1, updated_at = ?
		WHERE user_id = ? AND leave_type = ? AND year = ? AND version = ?`,
		b.Allocated.String(), b.Used.String(), b.Pending.String(), b.Available.String(),
		b.UpdatedAt.UTC().Format(time.RFC3339),
		b.UserID, string(b.Type), b.Year, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return checkConditionalWrite(ctx, db, res,
		`SELECT COUNT(*) FROM leave_balances WHERE user_id = ? AND leave_type = ? AND year = ?`,
		leave.ErrBalanceNotFound, b.UserID, string(b.Type), b.Year)
}

// checkConditionalWrite distinguishes "predicate no longer holds" from
// "row does not exist" after a zero-row conditional UPDATE.
func checkConditionalWrite(ctx context.Context, db dbtx, res sql.Result, existsQuery string, notFound error, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var count int
	if err := db.QueryRowContext(ctx, existsQuery, args...).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return notFound
	}
	return leave.ErrVersionConflict
}

// =============================================================================
// APPLICATION STORE
// =============================================================================

const applicationColumns = `id, number, user_id, leave_type, start_date, end_date, resumption_date,
	working_days, reason, status, reservation_id, submitted_at,
	director_id, director_comments, director_decided_at,
	hr_id, hr_comments, hr_decided_at, created_at, updated_at`

func (s *Store) CreateApplication(ctx context.Context, a leave.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createApplication(ctx, s.db, a)
}

func createApplication(ctx context.Context, db dbtx, a leave.Application) error {
	dirID, dirComments, dirAt := decisionColumns(a.Director)
	hrID, hrComments, hrAt := decisionColumns(a.HR)

	_, err := db.ExecContext(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Number, a.UserID, string(a.Type),
		a.StartDate.String(), a.EndDate.String(), a.ResumptionDate.String(),
		a.WorkingDays, a.Reason, string(a.Status),
		nullString(a.ReservationID), nullTime(a.SubmittedAt),
		dirID, dirComments, dirAt,
		hrID, hrComments, hrAt,
		a.CreatedAt.UTC().Format(time.RFC3339), a.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return leave.ErrVersionConflict
		}
		return fmt.Errorf("failed to create application: %w", err)
	}
	return nil
}

func (s *Store) GetApplication(ctx context.Context, id string) (*leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getApplication(ctx, s.db, id)
}

func getApplication(ctx context.Context, db dbtx, id string) (*leave.Application, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+applicationColumns+` FROM applications WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, leave.ErrApplicationNotFound
	}
	return scanApplication(rows)
}

func scanApplication(rows *sql.Rows) (*leave.Application, error) {
	var (
		a                              leave.Application
		leaveType, status              string
		startDate, endDate, resumption string
		reservationID, submittedAt     sql.NullString
		dirID, dirComments, dirAt      sql.NullString
		hrID, hrComments, hrAt         sql.NullString
		createdAt, updatedAt           string
	)

	err := rows.Scan(
		&a.ID, &a.Number, &a.UserID, &leaveType,
		&startDate, &endDate, &resumption,
		&a.WorkingDays, &a.Reason, &status,
		&reservationID, &submittedAt,
		&dirID, &dirComments, &dirAt,
		&hrID, &hrComments, &hrAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan application: %w", err)
	}

	a.Type = leave.Type(leaveType)
	a.Status = leave.Status(status)
	a.StartDate, _ = leave.ParseDate(startDate)
	a.EndDate, _ = leave.ParseDate(endDate)
	a.ResumptionDate, _ = leave.ParseDate(resumption)
	a.ReservationID = reservationID.String
	if submittedAt.Valid {
		a.SubmittedAt, _ = time.Parse(time.RFC3339, submittedAt.String)
	}
	a.Director = scanDecision(dirID, dirComments, dirAt)
	a.HR = scanDecision(hrID, hrComments, hrAt)
	a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &a, nil
}

func scanDecision(id, comments, decidedAt sql.NullString) *leave.Decision {
	if !id.Valid {
		return nil
	}
	d := &leave.Decision{ApproverID: id.String, Comments: comments.String}
	if decidedAt.Valid {
		d.DecidedAt, _ = time.Parse(time.RFC3339, decidedAt.String)
	}
	return d
}

func decisionColumns(d *leave.Decision) (id, comments, decidedAt sql.NullString) {
	if d == nil {
		return
	}
	id = sql.NullString{String: d.ApproverID, Valid: true}
	comments = sql.NullString{String: d.Comments, Valid: true}
	decidedAt = sql.NullString{String: d.DecidedAt.UTC().Format(time.RFC3339), Valid: true}
	return
}

func (s *Store) UpdateApplication(ctx context.Context, a leave.Application, expectedStatus leave.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateApplication(ctx, s.db, a, expectedStatus)
}

func updateApplication(ctx context.Context, db dbtx, a leave.Application, expectedStatus leave.Status) error {
	dirID, dirComments, dirAt := decisionColumns(a.Director)
	hrID, hrComments, hrAt := decisionColumns(a.HR)

	res, err := db.ExecContext(ctx, `
		UPDATE applications
		SET start_date = ?, end_date = ?, resumption_date = ?, working_days = ?,
		    reason = ?, status = ?, reservation_id = ?, submitted_at = ?,
		    director_id = ?, director_comments = ?, director_decided_at = ?,
		    hr_id = ?, hr_comments = ?, hr_decided_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		a.StartDate.String(), a.EndDate.String(), a.ResumptionDate.String(), a.WorkingDays,
		a.Reason, string(a.Status), nullString(a.ReservationID), nullTime(a.SubmittedAt),
		dirID, dirComments, dirAt,
		hrID, hrComments, hrAt,
		a.UpdatedAt.UTC().Format(time.RFC3339),
		a.ID, string(expectedStatus),
	)
	if err != nil {
		return fmt.Errorf("failed to update application: %w", err)
	}
	return checkConditionalWrite(ctx, db, res,
		`SELECT COUNT(*) FROM applications WHERE id = ?`,
		leave.ErrApplicationNotFound, a.ID)
}

func (s *Store) ListApplicationsByUser(ctx context.Context, userID string, statuses []leave.Status) ([]leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listApplicationsByUser(ctx, s.db, userID, statuses)
}

func listApplicationsByUser(ctx context.Context, db dbtx, userID string, statuses []leave.Status) ([]leave.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE user_id = ?`
	args := []any{userID}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	query += ` ORDER BY created_at DESC`
	return queryApplications(ctx, db, query, args...)
}

func (s *Store) ListApplicationsByStatus(ctx context.Context, status leave.Status) ([]leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryApplications(ctx, s.db,
		`SELECT `+applicationColumns+` FROM applications WHERE status = ? ORDER BY submitted_at ASC`,
		string(status))
}

func (s *Store) FindOverlapping(ctx context.Context, userID string, start, end leave.Date, statuses []leave.Status) ([]leave.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findOverlapping(ctx, s.db, userID, start, end, statuses)
}

func findOverlapping(ctx context.Context, db dbtx, userID string, start, end leave.Date, statuses []leave.Status) ([]leave.Application, error) {
	// No statuses means nothing can match; don't render an empty IN ().
	if len(statuses) == 0 {
		return nil, nil
	}

	// Dates are ISO strings, so lexicographic comparison is date comparison.
	query := `
		SELECT ` + applicationColumns + `
		FROM applications
		WHERE user_id = ? AND end_date >= ? AND start_date <= ?
		  AND status IN (` + placeholders(len(statuses)) + `)
		ORDER BY start_date ASC`
	args := []any{userID, start.String(), end.String()}
	for _, st := range statuses {
		args = append(args, string(st))
	}
	return queryApplications(ctx, db, query, args...)
}

func queryApplications(ctx context.Context, db dbtx, query string, args ...any) ([]leave.Application, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query applications: %w", err)
	}
	defer rows.Close()

	var apps []leave.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, *a)
	}
	return apps, rows.Err()
}

func (s *Store) NextSequence(ctx context.Context, year int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nextSequence(ctx, s.db, year)
}

func nextSequence(ctx context.Context, db dbtx, year int) (int64, error) {
	_, err := db.ExecContext(ctx, `
		INSERT INTO application_sequences (year, seq) VALUES (?, 1)
		ON CONFLICT(year) DO UPDATE SET seq = seq + 1`,
		year,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence: %w", err)
	}

	var seq int64
	err = db.QueryRowContext(ctx,
		`SELECT seq FROM application_sequences WHERE year = ?`, year,
	).Scan(&seq)
	return seq, err
}

// =============================================================================
// RESERVATION STORE
// =============================================================================

func (s *Store) CreateReservation(ctx context.Context, r leave.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createReservation(ctx, s.db, r)
}

func createReservation(ctx context.Context, db dbtx, r leave.Reservation) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO reservations
		(id, user_id, leave_type, year, days, application_id, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, string(r.Type), r.Year, r.Days.String(),
		r.ApplicationID, string(r.State),
		r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return leave.ErrVersionConflict
		}
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

func (s *Store) GetReservation(ctx context.Context, id string) (*leave.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getReservation(ctx, s.db, id)
}

func getReservation(ctx context.Context, db dbtx, id string) (*leave.Reservation, error) {
	var (
		r                    leave.Reservation
		leaveType, days      string
		state                string
		createdAt, updatedAt string
	)
	err := db.QueryRowContext(ctx, `
		SELECT id, user_id, leave_type, year, days, application_id, state, created_at, updated_at
		FROM reservations WHERE id = ?`, id,
	).Scan(&r.ID, &r.UserID, &leaveType, &r.Year, &days, &r.ApplicationID, &state, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, leave.ErrUnknownReservation
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan reservation: %w", err)
	}

	r.Type = leave.Type(leaveType)
	r.Days = leave.ParseDays(days)
	r.State = leave.ReservationState(state)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}

func (s *Store) TransitionReservation(ctx context.Context, id string, expectedState, newState leave.ReservationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return transitionReservation(ctx, s.db, id, expectedState, newState)
}

func transitionReservation(ctx context.Context, db dbtx, id string, expectedState, newState leave.ReservationState) error {
	res, err := db.ExecContext(ctx, `
		UPDATE reservations SET state = ?, updated_at = ?
		WHERE id = ? AND state = ?`,
		string(newState), time.Now().UTC().Format(time.RFC3339),
		id, string(expectedState),
	)
	if err != nil {
		return fmt.Errorf("failed to transition reservation: %w", err)
	}
	return checkConditionalWrite(ctx, db, res,
		`SELECT COUNT(*) FROM reservations WHERE id = ?`,
		leave.ErrUnknownReservation, id)
}

// =============================================================================
// HOLIDAY STORE
// =============================================================================

func (s *Store) UpsertHoliday(ctx context.Context, h leave.Holiday) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertHoliday(ctx, s.db, h)
}

func upsertHoliday(ctx context.Context, db dbtx, h leave.Holiday) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO holidays (date, name, year, active, source, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			name = excluded.name,
			active = excluded.active,
			source = excluded.source`,
		h.Date.String(), h.Name, h.Year, h.Active, h.Source,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) DeactivateHoliday(ctx context.Context, date leave.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx,
		`UPDATE holidays SET active = FALSE WHERE date = ?`, date.String())
	return err
}

func (s *Store) ListHolidays(ctx context.Context, year int) ([]leave.Holiday, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listHolidays(ctx, s.db, year)
}

func listHolidays(ctx context.Context, db dbtx, year int) ([]leave.Holiday, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT date, name, year, active, source
		FROM holidays WHERE year = ?
		ORDER BY date ASC`, year)
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var holidays []leave.Holiday
	for rows.Next() {
		var h leave.Holiday
		var dateStr string
		if err := rows.Scan(&dateStr, &h.Name, &h.Year, &h.Active, &h.Source); err != nil {
			return nil, err
		}
		h.Date, _ = leave.ParseDate(dateStr)
		holidays = append(holidays, h)
	}
	return holidays, rows.Err()
}

// =============================================================================
// EMPLOYEE STORE
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, e leave.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveEmployee(ctx, s.db, e)
}

func saveEmployee(ctx context.Context, db dbtx, e leave.Employee) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO employees (id, name, email, role, hire_date, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			role = excluded.role,
			hire_date = excluded.hire_date,
			active = excluded.active`,
		e.ID, e.Name, e.Email, string(e.Role), e.HireDate.String(), e.Active,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEmployee(ctx, s.db, id)
}

func getEmployee(ctx context.Context, db dbtx, id string) (*leave.Employee, error) {
	var e leave.Employee
	var role, hireDate, createdAt string

	err := db.QueryRowContext(ctx, `
		SELECT id, name, email, role, hire_date, active, created_at
		FROM employees WHERE id = ?`, id,
	).Scan(&e.ID, &e.Name, &e.Email, &role, &hireDate, &e.Active, &createdAt)
	if err == sql.ErrNoRows {
		return nil, leave.ErrEmployeeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan employee: %w", err)
	}

	e.Role = leave.Role(role)
	e.HireDate, _ = leave.ParseDate(hireDate)
	e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &e, nil
}

func (s *Store) ListActiveEmployees(ctx context.Context) ([]leave.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listActiveEmployees(ctx, s.db)
}

func listActiveEmployees(ctx context.Context, db dbtx) ([]leave.Employee, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, email, role, hire_date, active, created_at
		FROM employees WHERE active = TRUE
		ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var employees []leave.Employee
	for rows.Next() {
		var e leave.Employee
		var role, hireDate, createdAt string
		if err := rows.Scan(&e.ID, &e.Name, &e.Email, &role, &hireDate, &e.Active, &createdAt); err != nil {
			return nil, err
		}
		e.Role = leave.Role(role)
		e.HireDate, _ = leave.ParseDate(hireDate)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		employees = append(employees, e)
	}
	return employees, rows.Err()
}

// =============================================================================
// TRANSACTIONS (leave.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes leave.Store calls through an open *sql.Tx. The parent
// mutex is held for the duration of WithTx, so no additional locking.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetBalance(ctx context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	return getBalance(ctx, ts.tx, key)
}

func (ts *txStore) ListBalances(ctx context.Context, userID string, year int) ([]leave.Balance, error) {
	return listBalances(ctx, ts.tx, userID, year)
}

func (ts *txStore) CreateBalance(ctx context.Context, b leave.Balance) error {
	return createBalance(ctx, ts.tx, b)
}

func (ts *txStore) UpdateBalance(ctx context.Context, b leave.Balance, expectedVersion int64) error {
	return updateBalance(ctx, ts.tx, b, expectedVersion)
}

func (ts *txStore) CreateApplication(ctx context.Context, a leave.Application) error {
	return createApplication(ctx, ts.tx, a)
}

func (ts *txStore) GetApplication(ctx context.Context, id string) (*leave.Application, error) {
	return getApplication(ctx, ts.tx, id)
}

func (ts *txStore) UpdateApplication(ctx context.Context, a leave.Application, expectedStatus leave.Status) error {
	return updateApplication(ctx, ts.tx, a, expectedStatus)
}

func (ts *txStore) ListApplicationsByUser(ctx context.Context, userID string, statuses []leave.Status) ([]leave.Application, error) {
	return listApplicationsByUser(ctx, ts.tx, userID, statuses)
}

func (ts *txStore) ListApplicationsByStatus(ctx context.Context, status leave.Status) ([]leave.Application, error) {
	return queryApplications(ctx, ts.tx,
		`SELECT `+applicationColumns+` FROM applications WHERE status = ? ORDER BY submitted_at ASC`,
		string(status))
}

func (ts *txStore) FindOverlapping(ctx context.Context, userID string, start, end leave.Date, statuses []leave.Status) ([]leave.Application, error) {
	return findOverlapping(ctx, ts.tx, userID, start, end, statuses)
}

func (ts *txStore) NextSequence(ctx context.Context, year int) (int64, error) {
	return nextSequence(ctx, ts.tx, year)
}

func (ts *txStore) CreateReservation(ctx context.Context, r leave.Reservation) error {
	return createReservation(ctx, ts.tx, r)
}

func (ts *txStore) GetReservation(ctx context.Context, id string) (*leave.Reservation, error) {
	return getReservation(ctx, ts.tx, id)
}

func (ts *txStore) TransitionReservation(ctx context.Context, id string, expectedState, newState leave.ReservationState) error {
	return transitionReservation(ctx, ts.tx, id, expectedState, newState)
}

func (ts *txStore) UpsertHoliday(ctx context.Context, h leave.Holiday) error {
	return upsertHoliday(ctx, ts.tx, h)
}

func (ts *txStore) DeactivateHoliday(ctx context.Context, date leave.Date) error {
	_, err := ts.tx.ExecContext(ctx,
		`UPDATE holidays SET active = FALSE WHERE date = ?`, date.String())
	return err
}

func (ts *txStore) ListHolidays(ctx context.Context, year int) ([]leave.Holiday, error) {
	return listHolidays(ctx, ts.tx, year)
}

func (ts *txStore) SaveEmployee(ctx context.Context, e leave.Employee) error {
	return saveEmployee(ctx, ts.tx, e)
}

func (ts *txStore) GetEmployee(ctx context.Context, id string) (*leave.Employee, error) {
	return getEmployee(ctx, ts.tx, id)
}

func (ts *txStore) ListActiveEmployees(ctx context.Context) ([]leave.Employee, error) {
	return listActiveEmployees(ctx, ts.tx)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"leave_balances", "applications", "application_sequences", "reservations", "holidays", "employees"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
