// Package store provides leave.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements leave.TxStore with real conditional-write semantics:
// version and status expectations are checked under the store lock, so it
// exhibits the same ErrVersionConflict behavior as the SQL store.
type Memory struct {
	mu           sync.Mutex
	balances     map[leave.BalanceKey]leave.Balance
	applications map[string]leave.Application
	reservations map[string]leave.Reservation
	holidays     map[leave.Date]leave.Holiday
	employees    map[string]leave.Employee
	sequences    map[int]int64
}

func NewMemory() *Memory {
	return &Memory{
		balances:     make(map[leave.BalanceKey]leave.Balance),
		applications: make(map[string]leave.Application),
		reservations: make(map[string]leave.Reservation),
		holidays:     make(map[leave.Date]leave.Holiday),
		employees:    make(map[string]leave.Employee),
		sequences:    make(map[int]int64),
	}
}

var _ leave.TxStore = (*Memory)(nil)

// =============================================================================
// BALANCES
// =============================================================================

func (m *Memory) GetBalance(_ context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getBalanceLocked(key)
}

func (m *Memory) getBalanceLocked(key leave.BalanceKey) (*leave.Balance, error) {
	b, ok := m.balances[key]
	if !ok {
		return nil, leave.ErrBalanceNotFound
	}
	copied := b
	return &copied, nil
}

func (m *Memory) ListBalances(_ context.Context, userID string, year int) ([]leave.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listBalancesLocked(userID, year)
}

func (m *Memory) listBalancesLocked(userID string, year int) ([]leave.Balance, error) {
	var result []leave.Balance
	for _, lt := range leave.AllTypes() {
		if b, ok := m.balances[leave.BalanceKey{UserID: userID, Type: lt, Year: year}]; ok {
			result = append(result, b)
		}
	}
	return result, nil
}

func (m *Memory) CreateBalance(_ context.Context, b leave.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createBalanceLocked(b)
}

func (m *Memory) createBalanceLocked(b leave.Balance) error {
	if _, exists := m.balances[b.Key()]; exists {
		return leave.ErrVersionConflict
	}
	b.Version = 1
	m.balances[b.Key()] = b
	return nil
}

func (m *Memory) UpdateBalance(_ context.Context, b leave.Balance, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateBalanceLocked(b, expectedVersion)
}

func (m *Memory) updateBalanceLocked(b leave.Balance, expectedVersion int64) error {
	cur, ok := m.balances[b.Key()]
	if !ok {
		return leave.ErrBalanceNotFound
	}
	if cur.Version != expectedVersion {
		return leave.ErrVersionConflict
	}
	b.Version = expectedVersion + 1
	m.balances[b.Key()] = b
	return nil
}

// =============================================================================
// APPLICATIONS
// =============================================================================

func (m *Memory) CreateApplication(_ context.Context, a leave.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createApplicationLocked(a)
}

func (m *Memory) createApplicationLocked(a leave.Application) error {
	if _, exists := m.applications[a.ID]; exists {
		return leave.ErrVersionConflict
	}
	m.applications[a.ID] = a
	return nil
}

func (m *Memory) GetApplication(_ context.Context, id string) (*leave.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getApplicationLocked(id)
}

func (m *Memory) getApplicationLocked(id string) (*leave.Application, error) {
	a, ok := m.applications[id]
	if !ok {
		return nil, leave.ErrApplicationNotFound
	}
	copied := a
	return &copied, nil
}

func (m *Memory) UpdateApplication(_ context.Context, a leave.Application, expectedStatus leave.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateApplicationLocked(a, expectedStatus)
}

func (m *Memory) updateApplicationLocked(a leave.Application, expectedStatus leave.Status) error {
	cur, ok := m.applications[a.ID]
	if !ok {
		return leave.ErrApplicationNotFound
	}
	if cur.Status != expectedStatus {
		return leave.ErrVersionConflict
	}
	m.applications[a.ID] = a
	return nil
}

func (m *Memory) ListApplicationsByUser(_ context.Context, userID string, statuses []leave.Status) ([]leave.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listByUserLocked(userID, statuses)
}

func (m *Memory) listByUserLocked(userID string, statuses []leave.Status) ([]leave.Application, error) {
	var result []leave.Application
	for _, a := range m.applications {
		if a.UserID != userID {
			continue
		}
		if len(statuses) > 0 && !statusIn(a.Status, statuses) {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) ListApplicationsByStatus(_ context.Context, status leave.Status) ([]leave.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listByStatusLocked(status)
}

func (m *Memory) listByStatusLocked(status leave.Status) ([]leave.Application, error) {
	var result []leave.Application
	for _, a := range m.applications {
		if a.Status == status {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SubmittedAt.Before(result[j].SubmittedAt)
	})
	return result, nil
}

func (m *Memory) FindOverlapping(_ context.Context, userID string, start, end leave.Date, statuses []leave.Status) ([]leave.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findOverlappingLocked(userID, start, end, statuses)
}

func (m *Memory) findOverlappingLocked(userID string, start, end leave.Date, statuses []leave.Status) ([]leave.Application, error) {
	var result []leave.Application
	for _, a := range m.applications {
		if a.UserID != userID || !statusIn(a.Status, statuses) {
			continue
		}
		// Intervals [a.StartDate, a.EndDate] and [start, end] intersect.
		if !a.EndDate.Before(start) && !a.StartDate.After(end) {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartDate.Before(result[j].StartDate)
	})
	return result, nil
}

func (m *Memory) NextSequence(_ context.Context, year int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nextSequenceLocked(year)
}

func (m *Memory) nextSequenceLocked(year int) (int64, error) {
	m.sequences[year]++
	return m.sequences[year], nil
}

func statusIn(s leave.Status, set []leave.Status) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

// =============================================================================
// RESERVATIONS
// =============================================================================

func (m *Memory) CreateReservation(_ context.Context, r leave.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createReservationLocked(r)
}

func (m *Memory) createReservationLocked(r leave.Reservation) error {
	if _, exists := m.reservations[r.ID]; exists {
		return leave.ErrVersionConflict
	}
	m.reservations[r.ID] = r
	return nil
}

func (m *Memory) GetReservation(_ context.Context, id string) (*leave.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getReservationLocked(id)
}

func (m *Memory) getReservationLocked(id string) (*leave.Reservation, error) {
	r, ok := m.reservations[id]
	if !ok {
		return nil, leave.ErrUnknownReservation
	}
	copied := r
	return &copied, nil
}

func (m *Memory) TransitionReservation(_ context.Context, id string, expectedState, newState leave.ReservationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionReservationLocked(id, expectedState, newState)
}

func (m *Memory) transitionReservationLocked(id string, expectedState, newState leave.ReservationState) error {
	r, ok := m.reservations[id]
	if !ok {
		return leave.ErrUnknownReservation
	}
	if r.State != expectedState {
		return leave.ErrVersionConflict
	}
	r.State = newState
	m.reservations[id] = r
	return nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

func (m *Memory) UpsertHoliday(_ context.Context, h leave.Holiday) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upsertHolidayLocked(h)
}

func (m *Memory) upsertHolidayLocked(h leave.Holiday) error {
	m.holidays[h.Date] = h
	return nil
}

func (m *Memory) DeactivateHoliday(_ context.Context, date leave.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deactivateHolidayLocked(date)
}

func (m *Memory) deactivateHolidayLocked(date leave.Date) error {
	h, ok := m.holidays[date]
	if !ok {
		return nil // nothing to deactivate
	}
	h.Active = false
	m.holidays[date] = h
	return nil
}

func (m *Memory) ListHolidays(_ context.Context, year int) ([]leave.Holiday, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listHolidaysLocked(year)
}

func (m *Memory) listHolidaysLocked(year int) ([]leave.Holiday, error) {
	var result []leave.Holiday
	for _, h := range m.holidays {
		if h.Year == year {
			result = append(result, h)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date.Before(result[j].Date)
	})
	return result, nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (m *Memory) SaveEmployee(_ context.Context, e leave.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveEmployeeLocked(e)
}

func (m *Memory) saveEmployeeLocked(e leave.Employee) error {
	m.employees[e.ID] = e
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getEmployeeLocked(id)
}

func (m *Memory) getEmployeeLocked(id string) (*leave.Employee, error) {
	e, ok := m.employees[id]
	if !ok {
		return nil, leave.ErrEmployeeNotFound
	}
	copied := e
	return &copied, nil
}

func (m *Memory) ListActiveEmployees(_ context.Context) ([]leave.Employee, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listActiveEmployeesLocked()
}

func (m *Memory) listActiveEmployeesLocked() ([]leave.Employee, error) {
	var result []leave.Employee
	for _, e := range m.employees {
		if e.Active {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn against a transactional view under the store lock.
// On error, state is restored from a snapshot; this yields the same
// all-or-nothing behavior as a database transaction.
func (m *Memory) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.snapshot()
	view := &txView{parent: m}

	if err := fn(view); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	balances     map[leave.BalanceKey]leave.Balance
	applications map[string]leave.Application
	reservations map[string]leave.Reservation
	holidays     map[leave.Date]leave.Holiday
	employees    map[string]leave.Employee
	sequences    map[int]int64
}

func (m *Memory) snapshot() memorySnapshot {
	return memorySnapshot{
		balances:     copyMap(m.balances),
		applications: copyMap(m.applications),
		reservations: copyMap(m.reservations),
		holidays:     copyMap(m.holidays),
		employees:    copyMap(m.employees),
		sequences:    copyMap(m.sequences),
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.balances = s.balances
	m.applications = s.applications
	m.reservations = s.reservations
	m.holidays = s.holidays
	m.employees = s.employees
	m.sequences = s.sequences
}

func copyMap[K comparable, V any](src map[K]V) map[K]V {
	dst := make(map[K]V, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// txView routes the leave.Store interface to the parent's locked helpers.
// The parent lock is held for the duration of WithTx.
type txView struct {
	parent *Memory
}

func (v *txView) GetBalance(_ context.Context, key leave.BalanceKey) (*leave.Balance, error) {
	return v.parent.getBalanceLocked(key)
}

func (v *txView) ListBalances(_ context.Context, userID string, year int) ([]leave.Balance, error) {
	return v.parent.listBalancesLocked(userID, year)
}

func (v *txView) CreateBalance(_ context.Context, b leave.Balance) error {
	return v.parent.createBalanceLocked(b)
}

func (v *txView) UpdateBalance(_ context.Context, b leave.Balance, expectedVersion int64) error {
	return v.parent.updateBalanceLocked(b, expectedVersion)
}

func (v *txView) CreateApplication(_ context.Context, a leave.Application) error {
	return v.parent.createApplicationLocked(a)
}

func (v *txView) GetApplication(_ context.Context, id string) (*leave.Application, error) {
	return v.parent.getApplicationLocked(id)
}

func (v *txView) UpdateApplication(_ context.Context, a leave.Application, expectedStatus leave.Status) error {
	return v.parent.updateApplicationLocked(a, expectedStatus)
}

func (v *txView) ListApplicationsByUser(_ context.Context, userID string, statuses []leave.Status) ([]leave.Application, error) {
	return v.parent.listByUserLocked(userID, statuses)
}

func (v *txView) ListApplicationsByStatus(_ context.Context, status leave.Status) ([]leave.Application, error) {
	return v.parent.listByStatusLocked(status)
}

func (v *txView) FindOverlapping(_ context.Context, userID string, start, end leave.Date, statuses []leave.Status) ([]leave.Application, error) {
	return v.parent.findOverlappingLocked(userID, start, end, statuses)
}

func (v *txView) NextSequence(_ context.Context, year int) (int64, error) {
	return v.parent.nextSequenceLocked(year)
}

func (v *txView) CreateReservation(_ context.Context, r leave.Reservation) error {
	return v.parent.createReservationLocked(r)
}

func (v *txView) GetReservation(_ context.Context, id string) (*leave.Reservation, error) {
	return v.parent.getReservationLocked(id)
}

func (v *txView) TransitionReservation(_ context.Context, id string, expectedState, newState leave.ReservationState) error {
	return v.parent.transitionReservationLocked(id, expectedState, newState)
}

func (v *txView) UpsertHoliday(_ context.Context, h leave.Holiday) error {
	return v.parent.upsertHolidayLocked(h)
}

func (v *txView) DeactivateHoliday(_ context.Context, date leave.Date) error {
	return v.parent.deactivateHolidayLocked(date)
}

func (v *txView) ListHolidays(_ context.Context, year int) ([]leave.Holiday, error) {
	return v.parent.listHolidaysLocked(year)
}

func (v *txView) SaveEmployee(_ context.Context, e leave.Employee) error {
	return v.parent.saveEmployeeLocked(e)
}

func (v *txView) GetEmployee(_ context.Context, id string) (*leave.Employee, error) {
	return v.parent.getEmployeeLocked(id)
}

func (v *txView) ListActiveEmployees(_ context.Context) ([]leave.Employee, error) {
	return v.parent.listActiveEmployeesLocked()
}
