/*
sweeper.go - Background cleanup of abandoned count sessions

PURPOSE:
  Periodically cancels planned sessions that were never started. A session
  opened for a count date weeks in the past is noise in every list view and
  will never produce adjustments, so the sweeper retires it.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Cancels planned and draft sessions older than MaxAge
  - In-progress and later statuses are never touched

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - MaxAge: How old a planned session may get (default: 30 days)

USAGE:
  sweeper := api.NewStaleCountSweeper(svc)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - engine/lifecycle.go: Cancel transition used here
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tally/count-engine/engine"
)

// StaleCountSweeper cancels planned sessions that were never started.
type StaleCountSweeper struct {
	Service       *engine.Service
	CheckInterval time.Duration
	MaxAge        time.Duration

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewStaleCountSweeper creates a sweeper with default timing.
func NewStaleCountSweeper(svc *engine.Service) *StaleCountSweeper {
	return &StaleCountSweeper{
		Service:       svc,
		CheckInterval: 1 * time.Hour,
		MaxAge:        30 * 24 * time.Hour,
		stop:          make(chan struct{}),
	}
}

// Start begins the sweeper.
func (sw *StaleCountSweeper) Start() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.ticker = time.NewTicker(sw.CheckInterval)
	sw.wg.Add(1)
	go sw.run()

	log.Printf("[Sweeper] Started with check interval %v, max age %v", sw.CheckInterval, sw.MaxAge)
}

// Stop stops the sweeper.
func (sw *StaleCountSweeper) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.ticker != nil {
		sw.ticker.Stop()
		close(sw.stop)
		sw.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (sw *StaleCountSweeper) run() {
	defer sw.wg.Done()

	sw.Sweep(context.Background())

	for {
		select {
		case <-sw.ticker.C:
			sw.Sweep(context.Background())
		case <-sw.stop:
			return
		}
	}
}

// Sweep cancels stale planned sessions and returns how many were retired.
func (sw *StaleCountSweeper) Sweep(ctx context.Context) int {
	cutoff := time.Now().Add(-sw.MaxAge)
	cancelled := 0

	for _, status := range []engine.Status{engine.StatusPlanned, engine.StatusDraft} {
		sessions, err := sw.Service.ListSessions(ctx, status)
		if err != nil {
			log.Printf("[Sweeper] List failed: %v", err)
			return cancelled
		}
		for _, sc := range sessions {
			if sc.CreatedAt.After(cutoff) {
				continue
			}
			if _, err := sw.Service.Cancel(ctx, sc.ID); err != nil {
				// Racing with an operator starting the count is fine.
				log.Printf("[Sweeper] Could not cancel %s: %v", sc.CountNumber, err)
				continue
			}
			log.Printf("[Sweeper] Cancelled stale session %s (created %s)",
				sc.CountNumber, sc.CreatedAt.Format("2006-01-02"))
			cancelled++
		}
	}
	return cancelled
}
