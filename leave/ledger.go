/*
ledger.go - Balance accounting: reserve, commit, release, adjust

PURPOSE:
  The Ledger owns every mutation of Balance rows. It keeps the accounting
  identity (available = allocated - used - pending) true under concurrent
  submissions and approvals from independent processes.

THE THREE-PHASE FLOW:
  reserve: available -= days, pending += days   (on submission)
  commit:  pending  -= days, used    += days    (on final approval)
  release: pending  -= days, available += days  (on rejection)

  Available is NOT touched by commit - it was already decremented at reserve
  time. This is what prevents double-spend: once reserved, the days are gone
  from available whatever happens next, until an explicit release.

CONCURRENCY:
  Every balance write is a compare-and-swap on the row's version. Two
  concurrent reservations on the same key cannot both observe stale
  available days: the second CAS fails with ErrVersionConflict and the
  operation re-reads and re-evaluates its precondition. The retry loop is
  bounded; exhaustion surfaces ErrVersionConflict to the caller, who may
  retry with backoff.

IDEMPOTENCY:
  Commit and Release flip the reservation's state exactly once via a
  conditional update. A second commit or release of the same reservation
  finds it no longer open and fails with ErrUnknownReservation, leaving the
  balance untouched. Workflow transition retries rely on this guard.

ATOMICITY:
  Each operation runs inside a single store transaction: the balance CAS and
  the reservation write land together or not at all. No in-process lock is
  held across store I/O by the ledger itself.

SEE ALSO:
  - store.go:    the conditional-write contracts
  - workflow.go: couples these operations to state-machine transitions
*/
package leave

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// LEDGER
// =============================================================================

// casRetries bounds the optimistic-concurrency retry loop. Conflicts are
// rare (they require a concurrent writer on the same balance key), so a
// small bound suffices.
const casRetries = 5

type Ledger struct {
	Store    TxStore
	Notifier Notifier

	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

func NewLedger(store TxStore, notifier Notifier) *Ledger {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Ledger{Store: store, Notifier: notifier, Now: time.Now}
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// withCASRetry re-runs fn while it loses version races.
func withCASRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < casRetries; attempt++ {
		err = fn()
		if !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return err
}

// =============================================================================
// RESERVE
// =============================================================================

// Reserve places a hold of days against (userID, lt, year) for the given
// application. Requires available >= days at the instant of evaluation;
// fails with InsufficientBalanceError and zero side effects otherwise.
func (l *Ledger) Reserve(ctx context.Context, userID string, lt Type, year int, days Days, applicationID string) (*Reservation, error) {
	var res *Reservation
	err := withCASRetry(func() error {
		return l.Store.WithTx(ctx, func(s Store) error {
			r, err := l.reserveIn(ctx, s, userID, lt, year, days, applicationID)
			if err != nil {
				return err
			}
			res = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// reserveIn performs one reservation attempt inside an existing store
// transaction. The workflow composes this with the application insert so
// submission is all-or-nothing.
func (l *Ledger) reserveIn(ctx context.Context, s Store, userID string, lt Type, year int, days Days, applicationID string) (*Reservation, error) {
	if days.IsZero() || days.IsNegative() {
		return nil, &ValidationError{Field: "days", Message: "must be positive"}
	}

	key := BalanceKey{UserID: userID, Type: lt, Year: year}
	bal, err := s.GetBalance(ctx, key)
	if err != nil {
		return nil, err
	}

	if bal.Available.LessThan(days) {
		return nil, &InsufficientBalanceError{
			Key:       key,
			Available: bal.Available,
			Requested: days,
		}
	}

	now := l.now()
	updated := *bal
	updated.Available = bal.Available.Sub(days)
	updated.Pending = bal.Pending.Add(days)
	updated.UpdatedAt = now
	if err := updated.CheckInvariant(); err != nil {
		return nil, err
	}
	if err := s.UpdateBalance(ctx, updated, bal.Version); err != nil {
		return nil, err
	}

	res := Reservation{
		ID:            uuid.NewString(),
		UserID:        userID,
		Type:          lt,
		Year:          year,
		Days:          days,
		ApplicationID: applicationID,
		State:         ReservationOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.CreateReservation(ctx, res); err != nil {
		return nil, err
	}
	return &res, nil
}

// =============================================================================
// COMMIT
// =============================================================================

// Commit converts a reservation's hold into used days. Available days are
// unchanged. Fails with ErrUnknownReservation if the reservation was
// already committed or released.
func (l *Ledger) Commit(ctx context.Context, reservationID string) error {
	return withCASRetry(func() error {
		return l.Store.WithTx(ctx, func(s Store) error {
			return l.commitIn(ctx, s, reservationID)
		})
	})
}

func (l *Ledger) commitIn(ctx context.Context, s Store, reservationID string) error {
	res, err := s.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if res.State != ReservationOpen {
		return fmt.Errorf("reservation %s already %s: %w", res.ID, res.State, ErrUnknownReservation)
	}

	key := BalanceKey{UserID: res.UserID, Type: res.Type, Year: res.Year}
	bal, err := s.GetBalance(ctx, key)
	if err != nil {
		return err
	}

	updated := *bal
	updated.Pending = bal.Pending.Sub(res.Days)
	updated.Used = bal.Used.Add(res.Days)
	updated.UpdatedAt = l.now()
	if err := updated.CheckInvariant(); err != nil {
		return err
	}
	if err := s.UpdateBalance(ctx, updated, bal.Version); err != nil {
		return err
	}

	return s.TransitionReservation(ctx, res.ID, ReservationOpen, ReservationCommitted)
}

// =============================================================================
// RELEASE
// =============================================================================

// Release reverses a reservation: the held days return to available. Used
// on rejection. Same once-only guard as Commit.
func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	return withCASRetry(func() error {
		return l.Store.WithTx(ctx, func(s Store) error {
			return l.releaseIn(ctx, s, reservationID)
		})
	})
}

func (l *Ledger) releaseIn(ctx context.Context, s Store, reservationID string) error {
	res, err := s.GetReservation(ctx, reservationID)
	if err != nil {
		return err
	}
	if res.State != ReservationOpen {
		return fmt.Errorf("reservation %s already %s: %w", res.ID, res.State, ErrUnknownReservation)
	}

	key := BalanceKey{UserID: res.UserID, Type: res.Type, Year: res.Year}
	bal, err := s.GetBalance(ctx, key)
	if err != nil {
		return err
	}

	updated := *bal
	updated.Pending = bal.Pending.Sub(res.Days)
	updated.Available = bal.Available.Add(res.Days)
	updated.UpdatedAt = l.now()
	if err := updated.CheckInvariant(); err != nil {
		return err
	}
	if err := s.UpdateBalance(ctx, updated, bal.Version); err != nil {
		return err
	}

	return s.TransitionReservation(ctx, res.ID, ReservationOpen, ReservationReleased)
}

// =============================================================================
// ADJUST ALLOCATION
// =============================================================================

// AdjustAllocation is the administrative override of a row's allocated
// days. Available is recomputed as newAllocated - used - pending; an
// adjustment that would make it negative is rejected whole with
// ErrNegativeAvailable rather than allowing a negative balance.
func (l *Ledger) AdjustAllocation(ctx context.Context, actor Actor, userID string, lt Type, year int, newAllocated Days, reason string) (*Balance, error) {
	if actor.Role != RoleAdmin {
		return nil, fmt.Errorf("adjust allocation requires admin role: %w", ErrForbidden)
	}
	if newAllocated.IsNegative() {
		return nil, &ValidationError{Field: "allocated_days", Message: "must not be negative"}
	}
	if reason == "" {
		return nil, &ValidationError{Field: "reason", Message: "required"}
	}

	var snapshot *Balance
	err := withCASRetry(func() error {
		return l.Store.WithTx(ctx, func(s Store) error {
			key := BalanceKey{UserID: userID, Type: lt, Year: year}
			bal, err := s.GetBalance(ctx, key)
			if err != nil {
				return err
			}

			newAvailable := newAllocated.Sub(bal.Used).Sub(bal.Pending)
			if newAvailable.IsNegative() {
				return fmt.Errorf("allocated %s, used %s, pending %s: %w",
					newAllocated, bal.Used, bal.Pending, ErrNegativeAvailable)
			}

			updated := *bal
			updated.Allocated = newAllocated
			updated.Available = newAvailable
			updated.UpdatedAt = l.now()
			if err := updated.CheckInvariant(); err != nil {
				return err
			}
			if err := s.UpdateBalance(ctx, updated, bal.Version); err != nil {
				return err
			}
			updated.Version = bal.Version + 1
			snapshot = &updated
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	l.Notifier.Notify(ctx, Event{Kind: EventBalanceAdjusted, At: l.now(), Actor: actor, Balance: snapshot})
	return snapshot, nil
}

// =============================================================================
// READ SIDE
// =============================================================================

// GetBalance returns the current row for a key.
func (l *Ledger) GetBalance(ctx context.Context, userID string, lt Type, year int) (*Balance, error) {
	return l.Store.GetBalance(ctx, BalanceKey{UserID: userID, Type: lt, Year: year})
}

// ListBalances returns all of a user's rows for a year.
func (l *Ledger) ListBalances(ctx context.Context, userID string, year int) ([]Balance, error) {
	return l.Store.ListBalances(ctx, userID, year)
}
