package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/billing"
	"github.com/warp/budget-engine/ledger"
	memstore "github.com/warp/budget-engine/ledger/store"
)

// =============================================================================
// CREDIT POSTING
// =============================================================================

func TestCreditPoster_AddsToBalance(t *testing.T) {
	// GIVEN: balance 20
	// WHEN: a credit of 100 is posted
	// THEN: balance 120, with a credit_added transaction recording it
	m := memstore.NewMemory()
	seed(t, m, newClient("c1", "20", "30", true))
	poster := billing.NewCreditPoster(m, nil)
	ctx := context.Background()

	tx, err := poster.Post(ctx, billing.CreditRequest{
		ClientID:    "c1",
		Amount:      dec("100"),
		Description: "Pix payment received",
		ActingUser:  "ana",
	})
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, ledger.TxCreditAdded, tx.Type)
	assert.True(t, tx.Amount.Equal(dec("100")))
	assert.True(t, tx.BalanceAfter.Equal(dec("120")))
	assert.Equal(t, "ana", tx.CreatedBy)
	assert.True(t, balanceOf(t, m, "c1").Equal(dec("120")))
}

func TestCreditPoster_RejectsNonPositiveAmounts(t *testing.T) {
	m := memstore.NewMemory()
	seed(t, m, newClient("c1", "20", "30", true))
	poster := billing.NewCreditPoster(m, nil)
	ctx := context.Background()

	for _, amount := range []decimal.Decimal{decimal.Zero, dec("-5")} {
		_, err := poster.Post(ctx, billing.CreditRequest{ClientID: "c1", Amount: amount})
		assert.ErrorIs(t, err, ledger.ErrInvalidAmount, "amount %s", amount)
	}

	txs, err := m.TransactionsInOrder(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, txs, "rejected credits must leave no trace")
}

func TestCreditPoster_UnknownClient(t *testing.T) {
	poster := billing.NewCreditPoster(memstore.NewMemory(), nil)

	_, err := poster.Post(context.Background(), billing.CreditRequest{
		ClientID: "ghost",
		Amount:   dec("10"),
	})
	assert.ErrorIs(t, err, ledger.ErrClientNotFound)
}

func TestCreditPoster_BackdatedCredit(t *testing.T) {
	m := memstore.NewMemory()
	seed(t, m, newClient("c1", "0", "30", true))
	poster := billing.NewCreditPoster(m, nil)

	past := ledger.NewDate(2025, time.January, 15)
	tx, err := poster.Post(context.Background(), billing.CreditRequest{
		ClientID: "c1",
		Amount:   dec("10"),
		Date:     past,
	})
	require.NoError(t, err)
	assert.True(t, tx.TransactionDate.Equal(past))
}

func TestCreditPoster_ConcurrentCredits_BothLand(t *testing.T) {
	// GIVEN: two credits posted at the same time against balance 0
	// THEN: the conflict retry lets both land; final balance is 30
	m := memstore.NewMemory()
	seed(t, m, newClient("c1", "0", "30", true))
	poster := billing.NewCreditPoster(m, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, amount := range []string{"10", "20"} {
		wg.Add(1)
		go func(i int, amount string) {
			defer wg.Done()
			_, errs[i] = poster.Post(ctx, billing.CreditRequest{
				ClientID: "c1",
				Amount:   dec(amount),
			})
		}(i, amount)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.True(t, balanceOf(t, m, "c1").Equal(dec("30")))

	txs, err := m.TransactionsInOrder(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, txs, 2)
}

// =============================================================================
// BALANCE ADJUSTMENT
// =============================================================================

func TestAdjuster_RecordsSignedDelta(t *testing.T) {
	// GIVEN: balance 80
	// WHEN: a manager sets it to 50
	// THEN: an adjustment of -30 is recorded and the balance follows
	m := memstore.NewMemory()
	seed(t, m, newClient("c1", "80", "30", true))
	adjuster := billing.NewAdjuster(m, nil)
	ctx := context.Background()

	tx, err := adjuster.SetBalance(ctx, "c1", dec("50"), "Refund correction", "ana")
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, ledger.TxBalanceAdjustment, tx.Type)
	assert.True(t, tx.Amount.Equal(dec("-30")), "delta is signed, got %s", tx.Amount)
	assert.True(t, tx.BalanceAfter.Equal(dec("50")))
	assert.Equal(t, "Refund correction", tx.Description)
	assert.True(t, balanceOf(t, m, "c1").Equal(dec("50")))
}

func TestAdjuster_UpwardAdjustment(t *testing.T) {
	m := memstore.NewMemory()
	seed(t, m, newClient("c1", "10", "30", true))
	adjuster := billing.NewAdjuster(m, nil)

	tx, err := adjuster.SetBalance(context.Background(), "c1", dec("25"), "", "ana")
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.True(t, tx.Amount.Equal(dec("15")))
	assert.Equal(t, "Manual balance adjustment", tx.Description)
}

func TestAdjuster_NoOpWhenTargetMatches(t *testing.T) {
	m := memstore.NewMemory()
	seed(t, m, newClient("c1", "40", "30", true))
	adjuster := billing.NewAdjuster(m, nil)
	ctx := context.Background()

	tx, err := adjuster.SetBalance(ctx, "c1", dec("40"), "", "ana")
	require.NoError(t, err)
	assert.Nil(t, tx)

	txs, err := m.TransactionsInOrder(ctx, "c1")
	require.NoError(t, err)
	assert.Empty(t, txs, "no zero-delta transactions")
}

func TestAdjuster_RejectsNegativeTarget(t *testing.T) {
	m := memstore.NewMemory()
	seed(t, m, newClient("c1", "40", "30", true))
	adjuster := billing.NewAdjuster(m, nil)

	_, err := adjuster.SetBalance(context.Background(), "c1", dec("-1"), "", "ana")
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestAdjuster_KeepsHistoryReconcilable(t *testing.T) {
	// The whole point of the adjustment transaction: the derived balance
	// still matches after a manual override.
	m := memstore.NewMemory()
	seed(t, m, newClient("c1", "0", "30", true))
	ctx := context.Background()

	poster := billing.NewCreditPoster(m, nil)
	_, err := poster.Post(ctx, billing.CreditRequest{ClientID: "c1", Amount: dec("100")})
	require.NoError(t, err)

	adjuster := billing.NewAdjuster(m, nil)
	_, err = adjuster.SetBalance(ctx, "c1", dec("60"), "", "ana")
	require.NoError(t, err)

	history := ledger.NewHistory(m)
	assert.NoError(t, history.Reconcile(ctx, "c1"))
}
