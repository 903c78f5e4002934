/*
scheduler.go - Background overdue debt sweep

PURPOSE:
  Periodically marks open debts whose due date has passed as overdue,
  so status reflects reality without waiting for the next payment to
  touch the debt.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - A single UPDATE flips pending/partially_paid rows past their due
    date; already-overdue rows are untouched
  - Idempotent: running twice in a row changes nothing the second time

USAGE:
  sweeper := NewOverdueSweeper(store, time.Hour)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - store/sqlite: MarkOverdueDebts
*/
package api

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/anihan/payroll-engine/store/sqlite"
)

// OverdueSweeper flips past-due open debts to overdue on a timer.
type OverdueSweeper struct {
	Store         *sqlite.Store
	CheckInterval time.Duration

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewOverdueSweeper creates a sweeper over the store. A zero interval
// disables it.
func NewOverdueSweeper(store *sqlite.Store, interval time.Duration) *OverdueSweeper {
	return &OverdueSweeper{
		Store:         store,
		CheckInterval: interval,
		stop:          make(chan bool),
	}
}

// Start begins the sweep loop.
func (s *OverdueSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.CheckInterval <= 0 {
		log.Println("[Sweeper] Disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)

	go s.run()

	log.Printf("[Sweeper] Started with check interval: %v", s.CheckInterval)
}

// Stop stops the sweep loop.
func (s *OverdueSweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		log.Println("[Sweeper] Stopped")
	}
}

func (s *OverdueSweeper) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.sweep()

	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *OverdueSweeper) sweep() {
	ctx := context.Background()
	n, err := s.Store.MarkOverdueDebts(ctx, time.Now())
	if err != nil {
		log.Printf("[Sweeper] Error marking overdue debts: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[Sweeper] Marked %d debts overdue", n)
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (s *OverdueSweeper) RunNow() {
	s.sweep()
}
