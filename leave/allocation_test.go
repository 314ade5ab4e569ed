package leave_test

import (
	"context"
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

func newTestAllocator(t *testing.T) (*leave.Allocator, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	alloc := leave.NewAllocator(mem, nil)
	alloc.Now = func() time.Time { return time.Date(2026, time.January, 2, 8, 0, 0, 0, time.UTC) }
	return alloc, mem
}

func seedEmployee(t *testing.T, s *store.Memory, id string, hireDate leave.Date, active bool) {
	t.Helper()
	require.NoError(t, s.SaveEmployee(context.Background(), leave.Employee{
		ID:       id,
		Name:     "Employee " + id,
		Email:    id + "@example.test",
		Role:     leave.RoleStaff,
		HireDate: hireDate,
		Active:   active,
	}))
}

var admin = leave.Actor{ID: "admin-1", Role: leave.RoleAdmin}

// =============================================================================
// PER-USER ALLOCATION
// =============================================================================

func TestAllocator_AllocateForUser_CreatesAllTypes(t *testing.T) {
	// GIVEN: An employee hired before the year
	// WHEN: Allocating 2026
	// THEN: One row per leave type at the default entitlement, all available

	alloc, mem := newTestAllocator(t)
	seedEmployee(t, mem, "emp-1", leave.NewDate(2023, time.June, 1), true)

	balances, err := alloc.AllocateForUser(context.Background(), admin, "emp-1", 2026)
	require.NoError(t, err)
	require.Len(t, balances, len(leave.AllTypes()))

	byType := map[leave.Type]leave.Balance{}
	for _, b := range balances {
		require.NoError(t, b.CheckInvariant())
		byType[b.Type] = b
	}
	assert.True(t, byType[leave.TypeAnnual].Allocated.Equal(leave.DaysFromInt(30)))
	assert.True(t, byType[leave.TypeCasual].Allocated.Equal(leave.DaysFromInt(7)))
	assert.True(t, byType[leave.TypeSick].Allocated.Equal(leave.DaysFromInt(10)))
	assert.True(t, byType[leave.TypeMaternity].Allocated.Equal(leave.DaysFromInt(112)))
	assert.True(t, byType[leave.TypePaternity].Allocated.Equal(leave.DaysFromInt(14)))
	assert.True(t, byType[leave.TypeAnnual].Available.Equal(leave.DaysFromInt(30)))
}

func TestAllocator_AllocateForUser_Idempotent(t *testing.T) {
	// GIVEN: An allocated year where some days were since reserved
	// WHEN: Running allocation for the same (user, year) again
	// THEN: Existing rows are untouched - never reset, never duplicated

	alloc, mem := newTestAllocator(t)
	seedEmployee(t, mem, "emp-1", leave.NewDate(2023, time.June, 1), true)
	_, err := alloc.AllocateForUser(context.Background(), admin, "emp-1", 2026)
	require.NoError(t, err)

	ledger := leave.NewLedger(mem, nil)
	_, err = ledger.Reserve(context.Background(), "emp-1", leave.TypeAnnual, 2026, leave.DaysFromInt(5), "app-1")
	require.NoError(t, err)

	balances, err := alloc.AllocateForUser(context.Background(), admin, "emp-1", 2026)
	require.NoError(t, err)
	require.Len(t, balances, len(leave.AllTypes()))

	b := mustBalance(t, mem, "emp-1", leave.TypeAnnual, 2026)
	assert.True(t, b.Pending.Equal(leave.DaysFromInt(5)), "usage survives re-allocation")
	assert.True(t, b.Available.Equal(leave.DaysFromInt(25)))
}

func TestAllocator_AllocateForUser_RequiresAdmin(t *testing.T) {
	alloc, mem := newTestAllocator(t)
	seedEmployee(t, mem, "emp-1", leave.NewDate(2023, time.June, 1), true)

	_, err := alloc.AllocateForUser(context.Background(), leave.Actor{ID: "hr-1", Role: leave.RoleHR}, "emp-1", 2026)
	assert.ErrorIs(t, err, leave.ErrForbidden)
}

func TestAllocator_AllocateForUser_UnknownEmployee(t *testing.T) {
	alloc, _ := newTestAllocator(t)
	_, err := alloc.AllocateForUser(context.Background(), admin, "nobody", 2026)
	assert.ErrorIs(t, err, leave.ErrEmployeeNotFound)
}

// =============================================================================
// PRORATION
// =============================================================================

func TestProratedAllocation_MidYearHire(t *testing.T) {
	// Hired 2026-07-01: 184 of 365 days remain, so annual 30 prorates to 15.
	hire := leave.NewDate(2026, time.July, 1)

	assert.True(t, leave.ProratedAllocation(leave.TypeAnnual, hire, 2026).Equal(leave.DaysFromInt(15)))
	assert.True(t, leave.ProratedAllocation(leave.TypeSick, hire, 2026).Equal(leave.DaysFromInt(5)))
}

func TestProratedAllocation_Boundaries(t *testing.T) {
	full := leave.DaysFromInt(30)

	// Hired in an earlier year: full entitlement.
	assert.True(t, leave.ProratedAllocation(leave.TypeAnnual, leave.NewDate(2020, time.March, 15), 2026).Equal(full))
	// Hired on January 1 of the year: also full.
	assert.True(t, leave.ProratedAllocation(leave.TypeAnnual, leave.NewDate(2026, time.January, 1), 2026).Equal(full))
	// Hired after the year: nothing.
	assert.True(t, leave.ProratedAllocation(leave.TypeAnnual, leave.NewDate(2027, time.February, 1), 2026).IsZero())
	// Unknown hire date: full, not zero.
	assert.True(t, leave.ProratedAllocation(leave.TypeAnnual, leave.Date{}, 2026).Equal(full))
}

func TestAllocator_AllocateForUser_ProratesByHireDate(t *testing.T) {
	alloc, mem := newTestAllocator(t)
	seedEmployee(t, mem, "emp-new", leave.NewDate(2026, time.July, 1), true)

	_, err := alloc.AllocateForUser(context.Background(), admin, "emp-new", 2026)
	require.NoError(t, err)

	b := mustBalance(t, mem, "emp-new", leave.TypeAnnual, 2026)
	assert.True(t, b.Allocated.Equal(leave.DaysFromInt(15)))
	assert.True(t, b.Available.Equal(leave.DaysFromInt(15)))
}

// =============================================================================
// BATCH ALLOCATION
// =============================================================================

func TestAllocator_AllocateForAllUsers(t *testing.T) {
	// GIVEN: Two active employees and one inactive
	// WHEN: Running the yearly batch
	// THEN: Both active employees get rows; the inactive one is skipped

	alloc, mem := newTestAllocator(t)
	seedEmployee(t, mem, "emp-1", leave.NewDate(2023, time.June, 1), true)
	seedEmployee(t, mem, "emp-2", leave.NewDate(2024, time.February, 1), true)
	seedEmployee(t, mem, "emp-gone", leave.NewDate(2022, time.January, 1), false)

	result, err := alloc.AllocateForAllUsers(context.Background(), admin, 2026)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Empty(t, result.Failures)

	for _, id := range []string{"emp-1", "emp-2"} {
		balances, err := mem.ListBalances(context.Background(), id, 2026)
		require.NoError(t, err)
		assert.Len(t, balances, len(leave.AllTypes()))
	}

	gone, err := mem.ListBalances(context.Background(), "emp-gone", 2026)
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestAllocator_AllocateForAllUsers_Rerunnable(t *testing.T) {
	alloc, mem := newTestAllocator(t)
	seedEmployee(t, mem, "emp-1", leave.NewDate(2023, time.June, 1), true)

	_, err := alloc.AllocateForAllUsers(context.Background(), admin, 2026)
	require.NoError(t, err)
	result, err := alloc.AllocateForAllUsers(context.Background(), admin, 2026)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed, "existing rows count as processed, not failed")

	balances, err := mem.ListBalances(context.Background(), "emp-1", 2026)
	require.NoError(t, err)
	assert.Len(t, balances, len(leave.AllTypes()))
}
