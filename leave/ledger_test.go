package leave_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/leave/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger(t *testing.T) (*leave.Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	ledger := leave.NewLedger(mem, nil)
	ledger.Now = func() time.Time { return time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC) }
	return ledger, mem
}

func seedBalance(t *testing.T, s *store.Memory, userID string, lt leave.Type, year, allocated int) {
	t.Helper()
	alloc := leave.DaysFromInt(allocated)
	err := s.CreateBalance(context.Background(), leave.Balance{
		UserID:    userID,
		Type:      lt,
		Year:      year,
		Allocated: alloc,
		Used:      leave.ZeroDays(),
		Pending:   leave.ZeroDays(),
		Available: alloc,
	})
	require.NoError(t, err)
}

func mustBalance(t *testing.T, s *store.Memory, userID string, lt leave.Type, year int) leave.Balance {
	t.Helper()
	b, err := s.GetBalance(context.Background(), leave.BalanceKey{UserID: userID, Type: lt, Year: year})
	require.NoError(t, err)
	require.NoError(t, b.CheckInvariant())
	return *b
}

// =============================================================================
// RESERVE
// =============================================================================

func TestLedger_Reserve_MovesAvailableToPending(t *testing.T) {
	// GIVEN: 30 days available, nothing used or pending
	// WHEN: Reserving 5 days
	// THEN: available 25, pending 5, invariant intact

	ledger, mem := newTestLedger(t)
	seedBalance(t, mem, "emp-1", leave.TypeAnnual, 2026, 30)

	res, err := ledger.Reserve(context.Background(), "emp-1", leave.TypeAnnual, 2026, leave.DaysFromInt(5), "app-1")
	require.NoError(t, err)
	assert.Equal(t, leave.ReservationOpen, res.State)
	assert.True(t, res.Days.Equal(leave.DaysFromInt(5)))

	b := mustBalance(t, mem, "emp-1", leave.TypeAnnual, 2026)
	assert.True(t, b.Available.Equal(leave.DaysFromInt(25)))
	assert.True(t, b.Pending.Equal(leave.DaysFromInt(5)))
	assert.True(t, b.Used.IsZero())
}

func TestLedger_Reserve_InsufficientBalance_NoSideEffects(t *testing.T) {
	// GIVEN: Only 3 days available
	// WHEN: Reserving 5 days
	// THEN: InsufficientBalanceError with the exact shortage, balance untouched

	ledger, mem := newTestLedger(t)
	seedBalance(t, mem, "emp-1", leave.TypeCasual, 2026, 3)

	_, err := ledger.Reserve(context.Background(), "emp-1", leave.TypeCasual, 2026, leave.DaysFromInt(5), "app-1")
	require.Error(t, err)

	var insuff *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &insuff)
	assert.True(t, insuff.Available.Equal(leave.DaysFromInt(3)))
	assert.True(t, insuff.Requested.Equal(leave.DaysFromInt(5)))

	b := mustBalance(t, mem, "emp-1", leave.TypeCasual, 2026)
	assert.True(t, b.Available.Equal(leave.DaysFromInt(3)))
	assert.True(t, b.Pending.IsZero())
	assert.Equal(t, int64(1), b.Version, "no write happened")
}

func TestLedger_Reserve_ExactRemainder(t *testing.T) {
	// Reserving exactly the available amount succeeds and leaves zero.
	ledger, mem := newTestLedger(t)
	seedBalance(t, mem, "emp-1", leave.TypeCasual, 2026, 7)

	_, err := ledger.Reserve(context.Background(), "emp-1", leave.TypeCasual, 2026, leave.DaysFromInt(7), "app-1")
	require.NoError(t, err)

	b := mustBalance(t, mem, "emp-1", leave.TypeCasual, 2026)
	assert.True(t, b.Available.IsZero())
}

func TestLedger_Reserve_RejectsNonPositiveDays(t *testing.T) {
	ledger, mem := newTestLedger(t)
	seedBalance(t, mem, "emp-1", leave.TypeAnnual, 2026, 30)

	_, err := ledger.Reserve(context.Background(), "emp-1", leave.TypeAnnual, 2026, leave.ZeroDays(), "app-1")
	var vErr *leave.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestLedger_Reserve_UnknownBalance(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.Reserve(context.Background(), "nobody", leave.TypeAnnual, 2026, leave.DaysFromInt(1), "app-1")
	assert.ErrorIs(t, err, leave.ErrBalanceNotFound)
}

// =============================================================================
// COMMIT / RELEASE
// =============================================================================

func TestLedger_Commit_MovesPendingToUsed(t *testing.T) {
	// GIVEN: An open reservation of 5 days
	// WHEN: Committing it
	// THEN: pending drops by 5, used rises by 5, available is NOT touched

	ledger, mem := newTestLedger(t)
	seedBalance(t, mem, "emp-1", leave.TypeAnnual, 2026, 30)
	res, err := ledger.Reserve(context.Background(), "emp-1", leave.TypeAnnual, 2026, leave.DaysFromInt(5), "app-1")
	require.NoError(t, err)

	require.NoError(t, ledger.Commit(context.Background(), res.ID))

	b := mustBalance(t, mem, "emp-1", leave.TypeAnnual, 2026)
	assert.True(t, b.Available.Equal(leave.DaysFromInt(25)), "available unchanged by commit")
	assert.True(t, b.Used.Equal(leave.DaysFromInt(5)))
	assert.True(t, b.Pending.IsZero())
}

func TestLedger_Release_ReturnsPendingToAvailable(t *testing.T) {
	ledger, mem := newTestLedger(t)
	seedBalance(t, mem, "emp-1", leave.TypeAnnual, 2026, 30)
	res, err := ledger.Reserve(context.Background(), "emp-1", leave.TypeAnnual, 2026, leave.DaysFromInt(5), "app-1")
	require.NoError(t, err)

	require.NoError(t, ledger.Release(context.Background(), res.ID))

	b := mustBalance(t, mem, "emp-1", leave.TypeAnnual, 2026)
	assert.True(t, b.Available.Equal(leave.DaysFromInt(30)))
	assert.True(t, b.Pending.IsZero())
	assert.True(t, b.Used.IsZero())
}

func TestLedger_Commit_Twice_SecondFails(t *testing.T) {
	// GIVEN: A committed reservation
	// WHEN: Committing it again
	// THEN: ErrUnknownReservation and the balance is not double-applied

	ledger, mem := newTestLedger(t)
	seedBalance(t, mem, "emp-1", leave.TypeAnnual, 2026, 30)
	res, err := ledger.Reserve(context.Background(), "emp-1", leave.TypeAnnual, 2026, leave.DaysFromInt(5), "app-1")
	require.NoError(t, err)
	require.NoError(t, ledger.Commit(context.Background(), res.ID))

	err = ledger.Commit(context.Background(), res.ID)
	assert.ErrorIs(t, err, leave.ErrUnknownReservation)

	b := mustBalance(t, mem, "emp-1", leave.TypeAnnual, 2026)
	assert.True(t, b.Used.Equal(leave.DaysFromInt(5)), "used applied exactly once")
}

func TestLedger_Release_AfterCommit_Fails(t *testing.T) {
	ledger, mem := newTestLedger(t)
	seedBalance(t, mem, "emp-1", leave.TypeAnnual, 2026, 30)
	res, err := ledger.Reserve(context.Background(), "emp-1", leave.TypeAnnual, 2026, leave.DaysFromInt(5), "app-1")
	require.NoError(t, err)
	require.NoError(t, ledger.Commit(context.Background(), res.ID))

	err = ledger.Release(context.Background(), res.ID)
	assert.ErrorIs(t, err, leave.ErrUnknownReservation)

	b := mustBalance(t, mem, "emp-1", leave.TypeAnnual, 2026)
	assert.True(t, b.Available.Equal(leave.DaysFromInt(25)), "release after commit changes nothing")
}

func TestLedger_Commit_UnknownReservation(t *testing.T) {
	ledger, _ := newTestLedger(t)
	assert.ErrorIs(t, ledger.Commit(context.Background(), "no-such"), leave.ErrUnknownReservation)
}

// =============================================================================
// ADJUST ALLOCATION
// =============================================================================

func TestLedger_AdjustAllocation_RecomputesAvailable(t *testing.T) {
	// GIVEN: allocated 30 with 5 pending
	// WHEN: An admin raises the allocation to 35
	// THEN: available = 35 - 0 used - 5 pending = 30

	ledger, mem := newTestLedger(t)
	seedBalance(t, mem, "emp-1", leave.TypeAnnual, 2026, 30)
	_, err := ledger.Reserve(context.Background(), "emp-1", leave.TypeAnnual, 2026, leave.DaysFromInt(5), "app-1")
	require.NoError(t, err)

	admin := leave.Actor{ID: "admin-1", Role: leave.RoleAdmin}
	bal, err := ledger.AdjustAllocation(context.Background(), admin, "emp-1", leave.TypeAnnual, 2026,
		leave.DaysFromInt(35), "tenure bump")
	require.NoError(t, err)
	assert.True(t, bal.Available.Equal(leave.DaysFromInt(30)))
	require.NoError(t, bal.CheckInvariant())

	stored := mustBalance(t, mem, "emp-1", leave.TypeAnnual, 2026)
	assert.True(t, stored.Allocated.Equal(leave.DaysFromInt(35)))
}

func TestLedger_AdjustAllocation_EmitsAdjustedSnapshot(t *testing.T) {
	// GIVEN: A ledger wired to a notifier
	// WHEN: An admin adjusts an allocation
	// THEN: One balance_adjusted event carries the post-adjustment snapshot

	notifier := &recordingNotifier{}
	ledger, mem := newTestLedger(t)
	ledger.Notifier = notifier
	seedBalance(t, mem, "emp-1", leave.TypeAnnual, 2026, 30)

	admin := leave.Actor{ID: "admin-1", Role: leave.RoleAdmin}
	_, err := ledger.AdjustAllocation(context.Background(), admin, "emp-1", leave.TypeAnnual, 2026,
		leave.DaysFromInt(40), "tenure bump")
	require.NoError(t, err)

	require.Equal(t, []leave.EventKind{leave.EventBalanceAdjusted}, notifier.kinds())
	ev := notifier.events[0]
	assert.Equal(t, admin, ev.Actor)
	require.NotNil(t, ev.Balance)
	assert.True(t, ev.Balance.Allocated.Equal(leave.DaysFromInt(40)))
	assert.True(t, ev.Balance.Available.Equal(leave.DaysFromInt(40)))

	// A rejected adjustment announces nothing.
	_, err = ledger.AdjustAllocation(context.Background(), admin, "emp-1", leave.TypeAnnual, 2026,
		leave.DaysFromInt(35), "")
	require.Error(t, err)
	assert.Len(t, notifier.kinds(), 1)
}

func TestLedger_AdjustAllocation_RejectsNegativeAvailable(t *testing.T) {
	// GIVEN: 5 days already pending
	// WHEN: Lowering the allocation below used+pending
	// THEN: Rejected whole with ErrNegativeAvailable, row untouched

	ledger, mem := newTestLedger(t)
	seedBalance(t, mem, "emp-1", leave.TypeAnnual, 2026, 30)
	_, err := ledger.Reserve(context.Background(), "emp-1", leave.TypeAnnual, 2026, leave.DaysFromInt(5), "app-1")
	require.NoError(t, err)

	admin := leave.Actor{ID: "admin-1", Role: leave.RoleAdmin}
	_, err = ledger.AdjustAllocation(context.Background(), admin, "emp-1", leave.TypeAnnual, 2026,
		leave.DaysFromInt(3), "clawback")
	assert.ErrorIs(t, err, leave.ErrNegativeAvailable)

	b := mustBalance(t, mem, "emp-1", leave.TypeAnnual, 2026)
	assert.True(t, b.Allocated.Equal(leave.DaysFromInt(30)))
}

func TestLedger_AdjustAllocation_RequiresAdminAndReason(t *testing.T) {
	ledger, mem := newTestLedger(t)
	seedBalance(t, mem, "emp-1", leave.TypeAnnual, 2026, 30)

	_, err := ledger.AdjustAllocation(context.Background(), leave.Actor{ID: "hr-1", Role: leave.RoleHR},
		"emp-1", leave.TypeAnnual, 2026, leave.DaysFromInt(35), "because")
	assert.ErrorIs(t, err, leave.ErrForbidden)

	_, err = ledger.AdjustAllocation(context.Background(), leave.Actor{ID: "admin-1", Role: leave.RoleAdmin},
		"emp-1", leave.TypeAnnual, 2026, leave.DaysFromInt(35), "")
	var vErr *leave.ValidationError
	assert.ErrorAs(t, err, &vErr, "reason is mandatory")
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestLedger_ConcurrentReserves_NeverOversell(t *testing.T) {
	// GIVEN: 5 days available and 10 concurrent 1-day reservations
	// WHEN: All run in parallel
	// THEN: Exactly 5 succeed, the rest see insufficient balance, and the
	//       invariant holds afterwards

	ledger, mem := newTestLedger(t)
	seedBalance(t, mem, "emp-1", leave.TypeCasual, 2026, 5)

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ledger.Reserve(context.Background(), "emp-1", leave.TypeCasual, 2026,
				leave.DaysFromInt(1), "app-concurrent")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, errors.Is(err, leave.ErrInsufficientBalance))
		}
	}
	assert.Equal(t, 5, succeeded)

	b := mustBalance(t, mem, "emp-1", leave.TypeCasual, 2026)
	assert.True(t, b.Available.IsZero())
	assert.True(t, b.Pending.Equal(leave.DaysFromInt(5)))
}
