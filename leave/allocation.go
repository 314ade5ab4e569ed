/*
allocation.go - Yearly entitlement allocation

PURPOSE:
  Creates the initial Balance rows for a year: one per leave type per user,
  from the constant entitlement table, prorated by hire date for employees
  hired within the year.

IDEMPOTENCY:
  Re-running allocation for a (user, year) never duplicates or resets rows.
  A row that already exists - with or without usage - is left untouched;
  changing an existing entitlement is an explicit admin adjustment through
  Ledger.AdjustAllocation, not a re-allocation.

BATCH SEMANTICS:
  AllocateForAllUsers walks every active employee; one user's failure is
  recorded and the batch continues. The result reports processed counts and
  per-user failures.

SEE ALSO:
  - types.go:  the entitlement table (typeSpecs)
  - ledger.go: AdjustAllocation for later corrections
*/
package leave

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATOR
// =============================================================================

type Allocator struct {
	Store    TxStore
	Notifier Notifier

	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

func NewAllocator(store TxStore, notifier Notifier) *Allocator {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Allocator{Store: store, Notifier: notifier, Now: time.Now}
}

func (a *Allocator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// AllocateForUser creates the year's Balance rows for one user. Existing
// rows are skipped, so the call is idempotent. Returns the user's full set
// of rows for the year.
func (a *Allocator) AllocateForUser(ctx context.Context, actor Actor, userID string, year int) ([]Balance, error) {
	if actor.Role != RoleAdmin {
		return nil, fmt.Errorf("allocation requires admin role: %w", ErrForbidden)
	}
	if year < 1 {
		return nil, &ValidationError{Field: "year", Message: "required"}
	}

	emp, err := a.Store.GetEmployee(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := a.now()
	var created []Balance
	err = a.Store.WithTx(ctx, func(s Store) error {
		for _, lt := range AllTypes() {
			key := BalanceKey{UserID: userID, Type: lt, Year: year}
			if _, err := s.GetBalance(ctx, key); err == nil {
				continue // already allocated; never reset
			} else if !IsNotFound(err) {
				return err
			}

			allocated := ProratedAllocation(lt, emp.HireDate, year)
			b := Balance{
				UserID:    userID,
				Type:      lt,
				Year:      year,
				Allocated: allocated,
				Used:      ZeroDays(),
				Pending:   ZeroDays(),
				Available: allocated,
				Version:   1,
				UpdatedAt: now,
			}
			if err := s.CreateBalance(ctx, b); err != nil {
				return err
			}
			created = append(created, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i := range created {
		a.Notifier.Notify(ctx, Event{Kind: EventBalanceAllocated, At: now, Actor: actor, Balance: &created[i]})
	}

	return a.Store.ListBalances(ctx, userID, year)
}

// =============================================================================
// BATCH ALLOCATION
// =============================================================================

type BatchFailure struct {
	UserID string
	Err    error
}

type BatchResult struct {
	Year      int
	Processed int
	Failures  []BatchFailure
}

// AllocateForAllUsers runs AllocateForUser for every active employee. A
// single user's failure does not abort the batch.
func (a *Allocator) AllocateForAllUsers(ctx context.Context, actor Actor, year int) (*BatchResult, error) {
	if actor.Role != RoleAdmin {
		return nil, fmt.Errorf("allocation requires admin role: %w", ErrForbidden)
	}

	employees, err := a.Store.ListActiveEmployees(ctx)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Year: year}
	for _, emp := range employees {
		if _, err := a.AllocateForUser(ctx, actor, emp.ID, year); err != nil {
			result.Failures = append(result.Failures, BatchFailure{UserID: emp.ID, Err: err})
			continue
		}
		result.Processed++
	}
	return result, nil
}

// =============================================================================
// PRORATION
// =============================================================================

// ProratedAllocation returns the entitlement for a leave type in a year,
// scaled by the fraction of the year remaining after the hire date when the
// hire falls within that year. Results round to whole days, half up. A hire
// date after the year yields zero; before the year, the full entitlement.
func ProratedAllocation(lt Type, hireDate Date, year int) Days {
	full := DaysFromInt(lt.Spec().DefaultAllocation)
	if hireDate.IsZero() || hireDate.Year() < year {
		return full
	}
	if hireDate.Year() > year {
		return ZeroDays()
	}

	yearStart := NewDate(year, time.January, 1)
	nextYear := NewDate(year+1, time.January, 1)
	total := yearStart.DaysUntil(nextYear)
	remaining := hireDate.DaysUntil(nextYear) // hire day counts

	fraction := decimal.NewFromInt(int64(remaining)).Div(decimal.NewFromInt(int64(total)))
	return Days{Value: full.Value.Mul(fraction).Round(0)}
}
