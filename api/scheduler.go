/*
scheduler.go - Automated daily consumption scheduler

PURPOSE:
  Periodically invokes the daily consumption processor so balances deplete
  without anyone pressing the dashboard button. Because the processor is
  idempotent per (client, date), the check interval can be much shorter
  than a day: extra invocations only produce skips.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Each tick processes the current UTC calendar date
  - A manual trigger overlapping a scheduled tick is resolved by the
    store's uniqueness constraint, never by coordination here

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewConsumptionScheduler(handler.Processor, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: ProcessDailyConsumption endpoint (manual trigger)
  - billing/processor.go: the idempotent batch
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/budget-engine/billing"
	"github.com/warp/budget-engine/ledger"
)

// ConsumptionScheduler handles automated daily consumption runs.
type ConsumptionScheduler struct {
	Processor     *billing.Processor
	CheckInterval time.Duration
	Enabled       bool
	Logger        *zap.Logger

	ticker *time.Ticker
	stop   chan bool
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewConsumptionScheduler creates a new scheduler.
func NewConsumptionScheduler(processor *billing.Processor, logger *zap.Logger) *ConsumptionScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsumptionScheduler{
		Processor:     processor,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Logger:        logger,
		stop:          make(chan bool),
	}
}

// Start begins the scheduler.
func (cs *ConsumptionScheduler) Start() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if !cs.Enabled {
		cs.Logger.Info("consumption scheduler disabled, not starting")
		return
	}

	cs.ticker = time.NewTicker(cs.CheckInterval)
	cs.wg.Add(1)

	go cs.run()

	cs.Logger.Info("consumption scheduler started",
		zap.Duration("check_interval", cs.CheckInterval))
}

// Stop stops the scheduler.
func (cs *ConsumptionScheduler) Stop() {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.ticker != nil {
		cs.ticker.Stop()
		close(cs.stop)
		cs.wg.Wait()
		cs.Logger.Info("consumption scheduler stopped")
	}
}

func (cs *ConsumptionScheduler) run() {
	defer cs.wg.Done()

	// Run immediately on start
	cs.runOnce()

	for {
		select {
		case <-cs.ticker.C:
			cs.runOnce()
		case <-cs.stop:
			return
		}
	}
}

func (cs *ConsumptionScheduler) runOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	date := ledger.Today()
	result, err := cs.Processor.Process(ctx, date)
	if err != nil {
		cs.Logger.Error("scheduled consumption run failed",
			zap.String("date", date.String()),
			zap.Error(err))
		return
	}

	if len(result.Errors) > 0 {
		cs.Logger.Warn("scheduled consumption run had per-client errors",
			zap.String("date", date.String()),
			zap.Strings("errors", result.Errors))
	}
}

// RunNow triggers an immediate run (for testing/admin).
func (cs *ConsumptionScheduler) RunNow() {
	cs.runOnce()
}
