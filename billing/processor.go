/*
Package billing orchestrates balance changes over the ledger core.

PURPOSE:
  Three orchestrators, all routing their writes through the Store's atomic
  operations so the cached balance and the transaction history never diverge:

  - Processor (this file): the daily consumption batch. Debits every
    eligible client exactly once per calendar day and is safe to re-run.
  - CreditPoster (credit.go): posts a manual credit for a single client.
  - Adjuster (adjust.go): manual balance overrides with a reconciling
    adjustment transaction.

IDEMPOTENCY:
  The processor is the only caller that must be re-runnable. Its guard is
  two-layered: an optimistic lookup of the consumption log (cheap, catches
  ordinary re-runs), backed by the store's uniqueness constraint on
  (client, date) which catches the race between two overlapping runs.
  A conflicting insert surfaces as ErrAlreadyProcessed and is counted as a
  skip, never a failure.

FAILURE ISOLATION:
  Clients are processed independently. One client's failure is captured as
  data in the batch result and never aborts the siblings; the batch itself
  only fails when the initial candidate selection cannot be read.

SEE ALSO:
  - ledger/balance.go: the pure mutation rules
  - ledger/store.go: the atomic write contract
*/
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/budget-engine/ledger"
)

// =============================================================================
// BATCH RESULT
// =============================================================================

// Result aggregates one processor run.
type Result struct {
	Date      ledger.Date
	Processed int
	Skipped   int
	Errors    []string
}

// =============================================================================
// DAILY CONSUMPTION PROCESSOR
// =============================================================================

// Processor applies the daily debit to every eligible client.
type Processor struct {
	Store  ledger.Store
	Logger *zap.Logger
}

func NewProcessor(store ledger.Store, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{Store: store, Logger: logger}
}

// Process runs the batch for the given calendar date. The date is injected
// rather than read from the wall clock so runs are deterministic; callers
// pass ledger.Today() for the scheduled case.
//
// Re-invoking for the same date is a no-op for clients already logged that
// day. The returned error is non-nil only when the candidate selection
// itself fails; per-client failures are collected in Result.Errors.
func (p *Processor) Process(ctx context.Context, date ledger.Date) (Result, error) {
	result := Result{Date: date}

	clients, err := p.Store.SelectActiveClientsWithPositiveBudget(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to select candidate clients: %w", err)
	}

	for _, client := range clients {
		if err := p.processClient(ctx, client, date); err != nil {
			// A racing run may win the unique-index insert between the
			// guard check and our write. That loss means the day is
			// charged: skip, don't fail.
			if errors.Is(err, ledger.ErrAlreadyProcessed) {
				result.Skipped++
			} else {
				result.Errors = append(result.Errors,
					fmt.Sprintf("client %s: %v", client.ID, err))
			}
			continue
		}
		result.Processed++
	}

	p.Logger.Info("daily consumption completed",
		zap.String("date", date.String()),
		zap.Int("processed", result.Processed),
		zap.Int("skipped", result.Skipped),
		zap.Int("errors", len(result.Errors)),
	)

	return result, nil
}

func (p *Processor) processClient(ctx context.Context, client ledger.Client, date ledger.Date) error {
	// Optimistic guard: the store's unique index is the hard backstop.
	existing, err := p.Store.GetConsumptionLog(ctx, client.ID, date)
	if err != nil {
		return fmt.Errorf("consumption log lookup: %w", err)
	}
	if existing != nil {
		return ledger.ErrAlreadyProcessed
	}

	debit, newBalance := ledger.DailyDebit(client.CurrentBalance, client.DailyBudget)
	now := time.Now().UTC()

	write := ledger.ConsumptionWrite{
		ClientID:        client.ID,
		ExpectedBalance: client.CurrentBalance,
		NewBalance:      newBalance,
		Log: ledger.DailyConsumptionLog{
			ID:              uuid.NewString(),
			ClientID:        client.ID,
			ConsumptionDate: date,
			Amount:          debit,
			BalanceBefore:   client.CurrentBalance,
			BalanceAfter:    newBalance,
			ProcessedAt:     now,
		},
		Transaction: ledger.CreditTransaction{
			ID:              ledger.TransactionID(uuid.NewString()),
			ClientID:        client.ID,
			Type:            ledger.TxDailyConsumption,
			Amount:          debit,
			BalanceAfter:    newBalance,
			Description:     "Automated daily consumption",
			TransactionDate: date,
			CreatedAt:       now,
			// CreatedBy left empty: automated entry
		},
	}

	if err := p.Store.ApplyConsumption(ctx, write); err != nil {
		return err
	}

	p.Logger.Debug("client debited",
		zap.String("client_id", string(client.ID)),
		zap.String("date", date.String()),
		zap.String("amount", debit.String()),
		zap.String("balance_after", newBalance.String()),
	)
	return nil
}
