package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testBalance(userID string, lt leave.Type, allocated int) leave.Balance {
	alloc := leave.DaysFromInt(allocated)
	return leave.Balance{
		UserID:    userID,
		Type:      lt,
		Year:      2026,
		Allocated: alloc,
		Used:      leave.ZeroDays(),
		Pending:   leave.ZeroDays(),
		Available: alloc,
		UpdatedAt: time.Now().UTC(),
	}
}

func testApplication(id, userID string, status leave.Status, start leave.Date, workingDays int) leave.Application {
	end := start.AddDays(workingDays - 1)
	now := time.Now().UTC()
	return leave.Application{
		ID:             id,
		Number:         "LA-2026-" + id,
		UserID:         userID,
		Type:           leave.TypeAnnual,
		StartDate:      start,
		EndDate:        end,
		ResumptionDate: end.AddDays(1),
		WorkingDays:    workingDays,
		Reason:         "testing",
		Status:         status,
		SubmittedAt:    now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// =============================================================================
// BALANCE CONDITIONAL WRITES
// =============================================================================

func TestSQLite_Balance_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateBalance(ctx, testBalance("emp-1", leave.TypeAnnual, 30)))

	got, err := s.GetBalance(ctx, leave.BalanceKey{UserID: "emp-1", Type: leave.TypeAnnual, Year: 2026})
	require.NoError(t, err)
	assert.True(t, got.Allocated.Equal(leave.DaysFromInt(30)))
	assert.Equal(t, int64(1), got.Version)
	require.NoError(t, got.CheckInvariant())
}

func TestSQLite_UpdateBalance_VersionCAS(t *testing.T) {
	// GIVEN: A balance row at version 1
	// WHEN: Updating with the right and then a stale expected version
	// THEN: First write bumps the version; the stale one fails with
	//       ErrVersionConflict and changes nothing

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateBalance(ctx, testBalance("emp-1", leave.TypeAnnual, 30)))
	key := leave.BalanceKey{UserID: "emp-1", Type: leave.TypeAnnual, Year: 2026}

	b, err := s.GetBalance(ctx, key)
	require.NoError(t, err)

	updated := *b
	updated.Available = leave.DaysFromInt(25)
	updated.Pending = leave.DaysFromInt(5)
	updated.UpdatedAt = time.Now().UTC()
	require.NoError(t, s.UpdateBalance(ctx, updated, b.Version))

	err = s.UpdateBalance(ctx, updated, b.Version)
	assert.ErrorIs(t, err, leave.ErrVersionConflict)

	after, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), after.Version)
	assert.True(t, after.Available.Equal(leave.DaysFromInt(25)))
}

func TestSQLite_Balance_NotFoundAndDuplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetBalance(ctx, leave.BalanceKey{UserID: "nobody", Type: leave.TypeAnnual, Year: 2026})
	assert.ErrorIs(t, err, leave.ErrBalanceNotFound)

	err = s.UpdateBalance(ctx, testBalance("nobody", leave.TypeAnnual, 30), 1)
	assert.ErrorIs(t, err, leave.ErrBalanceNotFound)

	require.NoError(t, s.CreateBalance(ctx, testBalance("emp-1", leave.TypeAnnual, 30)))
	err = s.CreateBalance(ctx, testBalance("emp-1", leave.TypeAnnual, 30))
	assert.ErrorIs(t, err, leave.ErrVersionConflict)
}

// =============================================================================
// APPLICATION CONDITIONAL WRITES
// =============================================================================

func TestSQLite_UpdateApplication_StatusCAS(t *testing.T) {
	// The status predicate makes racing approvers impossible: only the write
	// that observes the expected status lands.

	s := newTestStore(t)
	ctx := context.Background()

	app := testApplication("a1", "emp-1", leave.StatusPendingDirector, leave.NewDate(2026, time.March, 2), 5)
	require.NoError(t, s.CreateApplication(ctx, app))

	app.Status = leave.StatusPendingHR
	app.Director = &leave.Decision{ApproverID: "dir-1", Comments: "ok", DecidedAt: time.Now().UTC()}
	require.NoError(t, s.UpdateApplication(ctx, app, leave.StatusPendingDirector))

	err := s.UpdateApplication(ctx, app, leave.StatusPendingDirector)
	assert.ErrorIs(t, err, leave.ErrVersionConflict)

	got, err := s.GetApplication(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPendingHR, got.Status)
	require.NotNil(t, got.Director)
	assert.Equal(t, "dir-1", got.Director.ApproverID)
	assert.Nil(t, got.HR)
}

func TestSQLite_Application_RoundTripDates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	app := testApplication("a1", "emp-1", leave.StatusPendingDirector, leave.NewDate(2026, time.March, 2), 5)
	require.NoError(t, s.CreateApplication(ctx, app))

	got, err := s.GetApplication(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", got.StartDate.String())
	assert.Equal(t, app.EndDate.String(), got.EndDate.String())
	assert.Equal(t, 5, got.WorkingDays)

	_, err = s.GetApplication(ctx, "missing")
	assert.ErrorIs(t, err, leave.ErrApplicationNotFound)
}

func TestSQLite_FindOverlapping(t *testing.T) {
	// GIVEN: A pending application covering March 2-6
	// WHEN: Probing various ranges
	// THEN: Intersections match; adjacent ranges and rejected rows do not

	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateApplication(ctx,
		testApplication("a1", "emp-1", leave.StatusPendingDirector, leave.NewDate(2026, time.March, 2), 5)))
	require.NoError(t, s.CreateApplication(ctx,
		testApplication("a2", "emp-1", leave.StatusRejected, leave.NewDate(2026, time.March, 10), 3)))

	blocking := leave.BlockingStatuses()

	hits, err := s.FindOverlapping(ctx, "emp-1",
		leave.NewDate(2026, time.March, 5), leave.NewDate(2026, time.March, 12), blocking)
	require.NoError(t, err)
	require.Len(t, hits, 1, "rejected rows never block")
	assert.Equal(t, "a1", hits[0].ID)

	hits, err = s.FindOverlapping(ctx, "emp-1",
		leave.NewDate(2026, time.March, 7), leave.NewDate(2026, time.March, 9), blocking)
	require.NoError(t, err)
	assert.Empty(t, hits, "adjacent range does not intersect")

	hits, err = s.FindOverlapping(ctx, "emp-2",
		leave.NewDate(2026, time.March, 2), leave.NewDate(2026, time.March, 6), blocking)
	require.NoError(t, err)
	assert.Empty(t, hits, "other users' dates are independent")

	hits, err = s.FindOverlapping(ctx, "emp-1",
		leave.NewDate(2026, time.March, 2), leave.NewDate(2026, time.March, 6), nil)
	require.NoError(t, err)
	assert.Empty(t, hits, "no statuses matches nothing")
}

func TestSQLite_NextSequence_PerYear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := s.NextSequence(ctx, 2026)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	other, err := s.NextSequence(ctx, 2027)
	require.NoError(t, err)
	assert.Equal(t, int64(1), other, "years count independently")
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func TestSQLite_TransitionReservation_OnceOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, s.CreateReservation(ctx, leave.Reservation{
		ID: "r1", UserID: "emp-1", Type: leave.TypeAnnual, Year: 2026,
		Days: leave.DaysFromInt(5), ApplicationID: "a1",
		State: leave.ReservationOpen, CreatedAt: now, UpdatedAt: now,
	}))

	require.NoError(t, s.TransitionReservation(ctx, "r1", leave.ReservationOpen, leave.ReservationCommitted))

	err := s.TransitionReservation(ctx, "r1", leave.ReservationOpen, leave.ReservationReleased)
	assert.ErrorIs(t, err, leave.ErrVersionConflict, "state flips exactly once")

	err = s.TransitionReservation(ctx, "missing", leave.ReservationOpen, leave.ReservationCommitted)
	assert.ErrorIs(t, err, leave.ErrUnknownReservation)

	got, err := s.GetReservation(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, leave.ReservationCommitted, got.State)
}

// =============================================================================
// HOLIDAYS AND EMPLOYEES
// =============================================================================

func TestSQLite_Holiday_UpsertAndDeactivate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	date := leave.NewDate(2026, time.October, 1)

	require.NoError(t, s.UpsertHoliday(ctx, leave.Holiday{Date: date, Name: "Independence Day", Year: 2026, Active: true, Source: "sync"}))
	require.NoError(t, s.UpsertHoliday(ctx, leave.Holiday{Date: date, Name: "Independence Day (observed)", Year: 2026, Active: true, Source: "sync"}))
	require.NoError(t, s.DeactivateHoliday(ctx, date))

	holidays, err := s.ListHolidays(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, holidays, 1)
	assert.Equal(t, "Independence Day (observed)", holidays[0].Name)
	assert.False(t, holidays[0].Active)
}

func TestSQLite_Employee_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	emp := leave.Employee{
		ID: "emp-1", Name: "Ada", Email: "ada@example.test",
		Role: leave.RoleDirector, HireDate: leave.NewDate(2024, time.May, 6), Active: true,
	}
	require.NoError(t, s.SaveEmployee(ctx, emp))

	got, err := s.GetEmployee(ctx, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, leave.RoleDirector, got.Role)
	assert.Equal(t, "2024-05-06", got.HireDate.String())

	emp.Active = false
	require.NoError(t, s.SaveEmployee(ctx, emp))
	active, err := s.ListActiveEmployees(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = s.GetEmployee(ctx, "missing")
	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that writes a balance then fails
	// WHEN: WithTx returns the error
	// THEN: The write is gone

	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.CreateBalance(ctx, testBalance("emp-1", leave.TypeAnnual, 30)); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetBalance(ctx, leave.BalanceKey{UserID: "emp-1", Type: leave.TypeAnnual, Year: 2026})
	assert.ErrorIs(t, err, leave.ErrBalanceNotFound)
}

func TestSQLite_WithTx_CommitsOnSuccess(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx leave.Store) error {
		if err := tx.CreateBalance(ctx, testBalance("emp-1", leave.TypeAnnual, 30)); err != nil {
			return err
		}
		seq, err := tx.NextSequence(ctx, 2026)
		if err != nil {
			return err
		}
		assert.Equal(t, int64(1), seq)
		return nil
	})
	require.NoError(t, err)

	b, err := s.GetBalance(ctx, leave.BalanceKey{UserID: "emp-1", Type: leave.TypeAnnual, Year: 2026})
	require.NoError(t, err)
	assert.True(t, b.Allocated.Equal(leave.DaysFromInt(30)))
}

// =============================================================================
// FULL LEDGER FLOW ON SQLITE
// =============================================================================

func TestSQLite_LedgerFlow_EndToEnd(t *testing.T) {
	// The ledger's reserve/commit cycle behaves identically on the SQL store.

	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateBalance(ctx, testBalance("emp-1", leave.TypeAnnual, 30)))

	ledger := leave.NewLedger(s, nil)
	res, err := ledger.Reserve(ctx, "emp-1", leave.TypeAnnual, 2026, leave.DaysFromInt(5), "app-1")
	require.NoError(t, err)
	require.NoError(t, ledger.Commit(ctx, res.ID))

	assert.ErrorIs(t, ledger.Commit(ctx, res.ID), leave.ErrUnknownReservation)

	b, err := s.GetBalance(ctx, leave.BalanceKey{UserID: "emp-1", Type: leave.TypeAnnual, Year: 2026})
	require.NoError(t, err)
	require.NoError(t, b.CheckInvariant())
	assert.True(t, b.Used.Equal(leave.DaysFromInt(5)))
	assert.True(t, b.Available.Equal(leave.DaysFromInt(25)))
}
