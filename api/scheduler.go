/*
scheduler.go - Automated holiday calendar sync

PURPOSE:
  Periodically pulls the current and next year's holidays from the external
  source so working-day calculations stay accurate without manual upkeep.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Syncs current year and next year (leave may run past year end)
  - A failed sync is logged and retried at the next tick; the calculator
    degrades to weekend-only exclusion until holidays load

CONFIGURATION:
  - CheckInterval: How often to sync (default: 24 hours)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewHolidayScheduler(syncer)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - leave/holidays.go: HolidaySyncer
  - handlers.go: SyncHolidays endpoint (manual sync)
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
)

// HolidayScheduler keeps the holiday calendar in sync in the background.
type HolidayScheduler struct {
	Syncer        *leave.HolidaySyncer
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewHolidayScheduler creates a new scheduler.
func NewHolidayScheduler(syncer *leave.HolidaySyncer) *HolidayScheduler {
	return &HolidayScheduler{
		Syncer:        syncer,
		CheckInterval: 24 * time.Hour,
		Enabled:       true,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (hs *HolidayScheduler) Start() {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if !hs.Enabled || hs.Syncer == nil {
		log.Println("[Scheduler] Holiday sync disabled, not starting")
		return
	}

	hs.ticker = time.NewTicker(hs.CheckInterval)
	hs.wg.Add(1)

	go hs.run()

	log.Printf("[Scheduler] Started with check interval: %v", hs.CheckInterval)
}

// Stop stops the scheduler.
func (hs *HolidayScheduler) Stop() {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	if hs.ticker != nil {
		hs.ticker.Stop()
		close(hs.stop)
		hs.wg.Wait()
		log.Println("[Scheduler] Stopped")
	}
}

func (hs *HolidayScheduler) run() {
	defer hs.wg.Done()

	// Run immediately on start
	hs.syncYears()

	for {
		select {
		case <-hs.ticker.C:
			hs.syncYears()
		case <-hs.stop:
			return
		}
	}
}

func (hs *HolidayScheduler) syncYears() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	year := time.Now().UTC().Year()
	for _, y := range []int{year, year + 1} {
		count, err := hs.Syncer.Sync(ctx, y)
		if err != nil {
			log.Printf("[Scheduler] Holiday sync failed for %d: %v", y, err)
			continue
		}
		log.Printf("[Scheduler] Synced %d holidays for %d", count, y)
	}
}

// RunNow triggers an immediate sync (for testing/admin).
func (hs *HolidayScheduler) RunNow() {
	hs.syncYears()
}
