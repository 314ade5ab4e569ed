/*
holidays.go - External holiday source and calendar sync

PURPOSE:
  The holiday calendar is supplied by an external collaborator. This file
  defines the fetch contract, an HTTP implementation speaking the Nager.Date
  public-holiday JSON format, and the sync that upserts fetched dates into
  the holiday store.

DEGRADATION:
  A missing or failing source is tolerated: the working-day calculator
  falls back to weekend-only exclusion for years with no loaded holidays.

IMMUTABILITY:
  Synced holidays are upserted by date and only ever deactivated, never
  deleted, so historical applications keep their calculated dates' meaning.

SEE ALSO:
  - calendar.go: LoadCalendar consumes the stored holidays
  - api/scheduler.go: periodic background sync
*/
package leave

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// =============================================================================
// HOLIDAY SOURCE
// =============================================================================

// HolidaySource fetches the authoritative holiday list for a year.
type HolidaySource interface {
	FetchHolidays(ctx context.Context, year int) ([]Holiday, error)
}

// HTTPHolidaySource fetches from a Nager.Date-compatible endpoint:
//
//	GET {BaseURL}/PublicHolidays/{year}/{CountryCode}
//	-> [{"date":"2026-01-01","localName":"...","name":"New Year's Day"}, ...]
type HTTPHolidaySource struct {
	BaseURL     string
	CountryCode string
	Client      *http.Client
}

func NewHTTPHolidaySource(baseURL, countryCode string) *HTTPHolidaySource {
	return &HTTPHolidaySource{
		BaseURL:     baseURL,
		CountryCode: countryCode,
		Client:      &http.Client{Timeout: 15 * time.Second},
	}
}

type holidayJSON struct {
	Date      string `json:"date"`
	LocalName string `json:"localName"`
	Name      string `json:"name"`
}

func (s *HTTPHolidaySource) FetchHolidays(ctx context.Context, year int) ([]Holiday, error) {
	url := fmt.Sprintf("%s/PublicHolidays/%d/%s", s.BaseURL, year, s.CountryCode)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("holiday source: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("holiday source: unexpected status %d for %d/%s",
			resp.StatusCode, year, s.CountryCode)
	}

	var raw []holidayJSON
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("holiday source: decode: %w", err)
	}

	holidays := make([]Holiday, 0, len(raw))
	for _, h := range raw {
		date, err := ParseDate(h.Date)
		if err != nil {
			continue // malformed entry; skip rather than fail the year
		}
		name := h.Name
		if name == "" {
			name = h.LocalName
		}
		holidays = append(holidays, Holiday{
			Date:   date,
			Name:   name,
			Year:   date.Year(),
			Active: true,
			Source: "sync",
		})
	}
	return holidays, nil
}

// =============================================================================
// SYNC
// =============================================================================

// HolidaySyncer pulls a year's holidays from the source into the store.
type HolidaySyncer struct {
	Source HolidaySource
	Store  HolidayStore
}

func NewHolidaySyncer(source HolidaySource, store HolidayStore) *HolidaySyncer {
	return &HolidaySyncer{Source: source, Store: store}
}

// Sync upserts the year's holidays and returns how many were written.
// Results are treated as authoritative for that year once loaded.
func (hs *HolidaySyncer) Sync(ctx context.Context, year int) (int, error) {
	holidays, err := hs.Source.FetchHolidays(ctx, year)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, h := range holidays {
		if err := hs.Store.UpsertHoliday(ctx, h); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
