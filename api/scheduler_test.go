package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/api"
	"github.com/warp/budget-engine/billing"
	"github.com/warp/budget-engine/ledger"
	memstore "github.com/warp/budget-engine/ledger/store"
)

func TestScheduler_StartRunsImmediately(t *testing.T) {
	// GIVEN: an eligible client and a scheduler with a long interval
	// WHEN: the scheduler starts
	// THEN: today is processed without waiting for the first tick
	m := memstore.NewMemory()
	require.NoError(t, m.SaveClient(context.Background(), ledger.Client{
		ID:             "c1",
		Name:           "Client c1",
		DailyBudget:    ledger.MustParseDecimal("30"),
		CurrentBalance: ledger.MustParseDecimal("100"),
		IsActive:       true,
	}))

	scheduler := api.NewConsumptionScheduler(billing.NewProcessor(m, nil), nil)
	scheduler.CheckInterval = time.Hour
	scheduler.Start()
	defer scheduler.Stop()

	require.Eventually(t, func() bool {
		log, err := m.GetConsumptionLog(context.Background(), "c1", ledger.Today())
		return err == nil && log != nil
	}, 2*time.Second, 10*time.Millisecond)

	c, err := m.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, c.CurrentBalance.Equal(ledger.MustParseDecimal("70")))
}

func TestScheduler_DisabledDoesNotRun(t *testing.T) {
	m := memstore.NewMemory()
	require.NoError(t, m.SaveClient(context.Background(), ledger.Client{
		ID:             "c1",
		Name:           "Client c1",
		DailyBudget:    ledger.MustParseDecimal("30"),
		CurrentBalance: ledger.MustParseDecimal("100"),
		IsActive:       true,
	}))

	scheduler := api.NewConsumptionScheduler(billing.NewProcessor(m, nil), nil)
	scheduler.Enabled = false
	scheduler.Start()
	scheduler.Stop()

	log, err := m.GetConsumptionLog(context.Background(), "c1", ledger.Today())
	require.NoError(t, err)
	assert.Nil(t, log)
}

func TestScheduler_RunNowIsIdempotentWithManualTrigger(t *testing.T) {
	// A manual trigger and a scheduled run for the same day must yield
	// exactly one debit between them.
	m := memstore.NewMemory()
	require.NoError(t, m.SaveClient(context.Background(), ledger.Client{
		ID:             "c1",
		Name:           "Client c1",
		DailyBudget:    ledger.MustParseDecimal("30"),
		CurrentBalance: ledger.MustParseDecimal("100"),
		IsActive:       true,
	}))

	processor := billing.NewProcessor(m, nil)
	scheduler := api.NewConsumptionScheduler(processor, nil)

	scheduler.RunNow()
	scheduler.RunNow()

	_, err := processor.Process(context.Background(), ledger.Today())
	require.NoError(t, err)

	c, err := m.GetClient(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, c.CurrentBalance.Equal(ledger.MustParseDecimal("70")), "one debit total")

	txs, err := m.TransactionsInOrder(context.Background(), "c1")
	require.NoError(t, err)
	assert.Len(t, txs, 1)
}
