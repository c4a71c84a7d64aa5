/*
adjust.go - Manual balance overrides

PURPOSE:
  The dashboard's client form lets a manager set the balance directly.
  A silent mutation of current_balance would break the reconciliation
  invariant (balance == signed transaction sum), so the override is
  expressed as a balance_adjustment transaction carrying the signed delta,
  written atomically with the balance update. History stays complete;
  ledger.History.Reconcile keeps passing.

  Opening balances take the same path: a client is created at zero and the
  opening amount lands as the first adjustment transaction.

SEE ALSO:
  - ledger/ledger.go: the invariant this preserves
  - api/handlers.go: routes form edits through here
*/
package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/budget-engine/ledger"
)

// =============================================================================
// BALANCE ADJUSTER
// =============================================================================

// Adjuster applies manual balance overrides.
type Adjuster struct {
	Store  ledger.Store
	Logger *zap.Logger
}

func NewAdjuster(store ledger.Store, logger *zap.Logger) *Adjuster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adjuster{Store: store, Logger: logger}
}

// SetBalance overrides the client's balance to target, recording the signed
// delta as a balance_adjustment transaction. A no-op when the balance
// already equals the target. The new balance must not be negative.
func (a *Adjuster) SetBalance(ctx context.Context, id ledger.ClientID, target decimal.Decimal, reason, actingUser string) (*ledger.CreditTransaction, error) {
	if target.IsNegative() {
		return nil, &ledger.InvalidAmountError{Amount: target}
	}

	client, err := a.Store.GetClient(ctx, id)
	if err != nil {
		return nil, err
	}

	delta := target.Sub(client.CurrentBalance)
	if delta.IsZero() {
		return nil, nil
	}

	if reason == "" {
		reason = "Manual balance adjustment"
	}

	tx := ledger.CreditTransaction{
		ID:              ledger.TransactionID(uuid.NewString()),
		ClientID:        id,
		Type:            ledger.TxBalanceAdjustment,
		Amount:          delta, // signed: adjustments can go either way
		BalanceAfter:    target,
		Description:     reason,
		TransactionDate: ledger.Today(),
		CreatedAt:       time.Now().UTC(),
		CreatedBy:       actingUser,
	}

	write := ledger.CreditWrite{
		ClientID:        id,
		ExpectedBalance: client.CurrentBalance,
		NewBalance:      target,
		Transaction:     tx,
	}

	if err := a.Store.ApplyCredit(ctx, write); err != nil {
		return nil, err
	}

	a.Logger.Info("balance adjusted",
		zap.String("client_id", string(id)),
		zap.String("delta", delta.String()),
		zap.String("balance_after", target.String()),
		zap.String("acting_user", actingUser),
	)
	return &tx, nil
}
