/*
credit.go - Manual credit posting

PURPOSE:
  Posts a single credit to a single client: read the balance, compute the
  new one, and atomically persist {balance update, credit_added transaction}.

NOT IDEMPOTENT, ON PURPOSE:
  Each invocation intentionally adds a new credit. Duplicate-submission
  protection (double-clicks, retries) belongs to the caller - there is no
  per-credit idempotency key. Contrast with the daily processor, which must
  be re-runnable.

CONCURRENCY:
  Two concurrent credits to the same client race on the read-then-write of
  the balance. The store's conditional update detects the lost update; the
  loser re-reads and retries once before surfacing ErrWriteConflict.

SEE ALSO:
  - processor.go: the batch counterpart
  - ledger/store.go: ApplyCredit contract
*/
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/budget-engine/ledger"
)

// =============================================================================
// CREDIT POSTER
// =============================================================================

// CreditRequest describes one manual credit.
type CreditRequest struct {
	ClientID    ledger.ClientID
	Amount      decimal.Decimal
	Description string

	// Date the credit is attributed to. Zero value means today (UTC);
	// manual credits may be backdated.
	Date ledger.Date

	// ActingUser is recorded as the transaction's creator.
	ActingUser string
}

// CreditPoster posts manual credits.
type CreditPoster struct {
	Store  ledger.Store
	Logger *zap.Logger
}

func NewCreditPoster(store ledger.Store, logger *zap.Logger) *CreditPoster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CreditPoster{Store: store, Logger: logger}
}

// Post applies the credit and returns the written transaction (including
// the resulting balance). Rejects non-positive amounts with
// ErrInvalidAmount before any write.
func (cp *CreditPoster) Post(ctx context.Context, req CreditRequest) (*ledger.CreditTransaction, error) {
	if !req.Amount.IsPositive() {
		return nil, &ledger.InvalidAmountError{Amount: req.Amount}
	}

	tx, err := cp.post(ctx, req)
	if errors.Is(err, ledger.ErrWriteConflict) {
		// Lost a race against a concurrent writer; the balance we read is
		// stale. Retry once against the fresh balance, then give up.
		cp.Logger.Debug("credit write conflict, retrying",
			zap.String("client_id", string(req.ClientID)))
		tx, err = cp.post(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	cp.Logger.Info("credit posted",
		zap.String("client_id", string(req.ClientID)),
		zap.String("amount", req.Amount.String()),
		zap.String("balance_after", tx.BalanceAfter.String()),
	)
	return tx, nil
}

func (cp *CreditPoster) post(ctx context.Context, req CreditRequest) (*ledger.CreditTransaction, error) {
	client, err := cp.Store.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, err
	}

	newBalance, err := ledger.Credit(client.CurrentBalance, req.Amount)
	if err != nil {
		return nil, err
	}

	date := req.Date
	if date.IsZero() {
		date = ledger.Today()
	}

	tx := ledger.CreditTransaction{
		ID:              ledger.TransactionID(uuid.NewString()),
		ClientID:        req.ClientID,
		Type:            ledger.TxCreditAdded,
		Amount:          req.Amount,
		BalanceAfter:    newBalance,
		Description:     req.Description,
		TransactionDate: date,
		CreatedAt:       time.Now().UTC(),
		CreatedBy:       req.ActingUser,
	}

	write := ledger.CreditWrite{
		ClientID:        req.ClientID,
		ExpectedBalance: client.CurrentBalance,
		NewBalance:      newBalance,
		Transaction:     tx,
	}

	if err := cp.Store.ApplyCredit(ctx, write); err != nil {
		return nil, fmt.Errorf("failed to post credit: %w", err)
	}
	return &tx, nil
}
