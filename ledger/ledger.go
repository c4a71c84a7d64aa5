/*
ledger.go - Balance derivation and drift detection

PURPOSE:
  The transaction history is the source of truth; Client.CurrentBalance is
  a cached projection of it. This file derives the balance by replaying the
  history and checks the cached value against it.

INVARIANT:
  current_balance == sum of SignedAmount over all transactions in causal
  order. Manual balance overrides emit a balance_adjustment transaction
  (see billing/adjust.go), so the invariant holds without exception.

WHY KEEP A CACHED BALANCE AT ALL?
  The daily processor and the dashboard read balances constantly; replaying
  history on every read would make the hot path O(history). The cache is
  updated atomically with each new transaction, and Reconcile exists to
  prove the two never diverge.

SEE ALSO:
  - store.go: TransactionsInOrder
  - errors.go: DriftError
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// History provides read-side derivations over a Store.
type History struct {
	Store Store
}

func NewHistory(store Store) *History {
	return &History{Store: store}
}

// DerivedBalance replays the client's transaction history and returns the
// signed sum. Clients start at zero; opening balances are recorded as
// balance_adjustment transactions.
func (h *History) DerivedBalance(ctx context.Context, id ClientID) (decimal.Decimal, error) {
	txs, err := h.Store.TransactionsInOrder(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for _, tx := range txs {
		balance = balance.Add(tx.SignedAmount())
	}
	return balance, nil
}

// Reconcile verifies that the cached balance equals the derived balance.
// Returns a DriftError (wrapping ErrBalanceDrift) on mismatch.
func (h *History) Reconcile(ctx context.Context, id ClientID) error {
	client, err := h.Store.GetClient(ctx, id)
	if err != nil {
		return err
	}

	derived, err := h.DerivedBalance(ctx, id)
	if err != nil {
		return err
	}

	if !client.CurrentBalance.Equal(derived) {
		return &DriftError{
			ClientID: id,
			Cached:   client.CurrentBalance,
			Derived:  derived,
		}
	}
	return nil
}
