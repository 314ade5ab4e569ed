/*
calendar.go - Dates, holiday calendars, and the working-day calculator

PURPOSE:
  Provides the day-granularity Date type, the Calendar lookup used to decide
  whether a date is a working day, and the two pure calculations at the heart
  of leave scheduling:

    ComputeEndDate(start, workingDays, cal)  -> last consumed working day
    ComputeResumptionDate(end, cal)          -> first working day after end

WORKING DAY:
  A date is a working day iff it is not Saturday, not Sunday, and not an
  active holiday in the calendar.

DETERMINISM:
  Both calculations are pure: same inputs always produce the same outputs,
  regardless of call order or repetition. A nil calendar degrades to
  weekend-only exclusion - the loop is still bounded because weekends alone
  guarantee progress. Callers that care about holiday accuracy must load the
  calendar for the relevant years first; an unloaded calendar is a documented
  approximation, not an error.

SEE ALSO:
  - holidays.go: external holiday source and sync
  - workflow.go: loads the calendar before submitting applications
*/
package leave

import (
	"context"
	"time"
)

// =============================================================================
// DATE - Day-granularity calendar date (UTC)
// =============================================================================

type Date struct {
	t time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates an instant to its UTC calendar date.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

func Today() Date { return DateOf(time.Now()) }

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

func (d Date) Year() int             { return d.t.Year() }
func (d Date) Month() time.Month     { return d.t.Month() }
func (d Date) Day() int              { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) IsZero() bool          { return d.t.IsZero() }
func (d Date) Time() time.Time       { return d.t }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool  { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool  { return d.t.Equal(o.t) }

// DaysUntil returns the whole calendar days from d to o (negative if o is
// earlier).
func (d Date) DaysUntil(o Date) int {
	return int(o.t.Sub(d.t).Hours() / 24)
}

func (d Date) IsWeekend() bool {
	wd := d.t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) String() string { return d.t.Format("2006-01-02") }

// =============================================================================
// CALENDAR - Holiday lookup
// =============================================================================

// Calendar answers whether a date is an active holiday. Implementations are
// read-only views; the workflow loads one per submission so that date
// arithmetic is deterministic against the calendar in effect at that moment.
type Calendar interface {
	IsHoliday(d Date) bool
}

// HolidaySet is an in-memory Calendar.
type HolidaySet map[Date]struct{}

func (h HolidaySet) IsHoliday(d Date) bool {
	_, ok := h[d]
	return ok
}

// LoadCalendar builds a HolidaySet from the active holidays of the given
// years. Years that have no holidays loaded contribute nothing; the
// calculator then falls back to weekend-only exclusion for them.
func LoadCalendar(ctx context.Context, store HolidayStore, years ...int) (HolidaySet, error) {
	set := make(HolidaySet)
	for _, year := range years {
		holidays, err := store.ListHolidays(ctx, year)
		if err != nil {
			return nil, err
		}
		for _, h := range holidays {
			if h.Active {
				set[h.Date] = struct{}{}
			}
		}
	}
	return set, nil
}

// =============================================================================
// WORKING-DAY CALCULATOR
// =============================================================================

// IsWorkingDay reports whether d is neither a weekend day nor an active
// holiday in cal. A nil calendar excludes weekends only.
func IsWorkingDay(d Date, cal Calendar) bool {
	if d.IsWeekend() {
		return false
	}
	if cal != nil && cal.IsHoliday(d) {
		return false
	}
	return true
}

// ComputeEndDate returns the date of the last working day consumed by a
// leave of workingDays days starting at start. The start date itself
// consumes the first day if it is a working day; otherwise the first working
// day on or after start does. workingDays < 1 is a validation error.
func ComputeEndDate(start Date, workingDays int, cal Calendar) (Date, error) {
	if workingDays < 1 {
		return Date{}, &ValidationError{Field: "working_days", Message: "must be at least 1"}
	}
	if start.IsZero() {
		return Date{}, &ValidationError{Field: "start_date", Message: "required"}
	}

	d := start
	consumed := 0
	for {
		if IsWorkingDay(d, cal) {
			consumed++
			if consumed == workingDays {
				return d, nil
			}
		}
		d = d.AddDays(1)
	}
}

// ComputeResumptionDate returns the first working day strictly after end.
func ComputeResumptionDate(end Date, cal Calendar) Date {
	d := end.AddDays(1)
	for !IsWorkingDay(d, cal) {
		d = d.AddDays(1)
	}
	return d
}
