package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/budget-engine/api"
	"github.com/warp/budget-engine/ledger"
	memstore "github.com/warp/budget-engine/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newAPI(t *testing.T) (http.Handler, *memstore.Memory) {
	t.Helper()
	m := memstore.NewMemory()
	return api.NewRouter(api.NewHandler(m, nil)), m
}

// do runs one request against the router and decodes the JSON response
// into out (when out is non-nil).
func do(t *testing.T, router http.Handler, method, path string, body any, out any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if out != nil {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(out),
			"body: %s", rec.Body.String())
	}
	return rec
}

func createClient(t *testing.T, router http.Handler, name string, budget, opening float64) api.ClientDTO {
	t.Helper()
	var client api.ClientDTO
	rec := do(t, router, http.MethodPost, "/api/clients", map[string]any{
		"name":            name,
		"manager_id":      "mgr-1",
		"daily_budget":    budget,
		"opening_balance": opening,
		"alert_threshold": 50.0,
	}, &client)
	require.Equal(t, http.StatusCreated, rec.Code)
	return client
}

// =============================================================================
// CLIENT LIFECYCLE
// =============================================================================

func TestAPI_CreateClient_RecordsOpeningBalance(t *testing.T) {
	// GIVEN: a create request with an opening balance of 500
	// THEN: the client starts at 500 and the ledger explains it
	router, _ := newAPI(t)

	client := createClient(t, router, "Padaria Central", 30, 500)

	assert.NotEmpty(t, client.ID)
	assert.Equal(t, 500.0, client.CurrentBalance)
	assert.Equal(t, "pix", client.PaymentMethod, "defaults apply")
	assert.Equal(t, "monthly", client.PaymentFrequency)
	assert.True(t, client.IsActive)

	var txs []api.TransactionDTO
	rec := do(t, router, http.MethodGet, "/api/clients/"+client.ID+"/transactions", nil, &txs)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, txs, 1)
	assert.Equal(t, "balance_adjustment", txs[0].Type)
	assert.Equal(t, 500.0, txs[0].Amount)
	assert.Equal(t, "Opening balance", txs[0].Description)

	var rc api.ReconcileDTO
	rec = do(t, router, http.MethodGet, "/api/clients/"+client.ID+"/reconcile", nil, &rc)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, rc.Consistent)
	assert.Equal(t, 500.0, rc.DerivedBalance)
}

func TestAPI_CreateClient_Validation(t *testing.T) {
	router, _ := newAPI(t)

	rec := do(t, router, http.MethodPost, "/api/clients", map[string]any{
		"name": "   ",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/clients", map[string]any{
		"name":         "Negative",
		"daily_budget": -5.0,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/clients", map[string]any{
		"name":           "Bad method",
		"payment_method": "cash",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_GetClient_NotFound(t *testing.T) {
	router, _ := newAPI(t)

	rec := do(t, router, http.MethodGet, "/api/clients/ghost", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_UpdateClient_BalanceEditGoesThroughLedger(t *testing.T) {
	// GIVEN: a client at 500
	// WHEN: the form sets the balance to 300
	// THEN: the balance changes and a -200 adjustment appears in history
	router, _ := newAPI(t)
	client := createClient(t, router, "Padaria Central", 30, 500)

	var updated api.ClientDTO
	rec := do(t, router, http.MethodPut, "/api/clients/"+client.ID, map[string]any{
		"name":            "Padaria Central",
		"manager_id":      "mgr-1",
		"daily_budget":    45.0,
		"current_balance": 300.0,
		"alert_threshold": 50.0,
	}, &updated)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 45.0, updated.DailyBudget)
	assert.Equal(t, 300.0, updated.CurrentBalance)

	var txs []api.TransactionDTO
	do(t, router, http.MethodGet, "/api/clients/"+client.ID+"/transactions", nil, &txs)
	require.Len(t, txs, 2, "opening balance plus the edit")

	found := false
	for _, tx := range txs {
		if tx.Type == "balance_adjustment" && tx.Amount == -200.0 {
			found = true
		}
	}
	assert.True(t, found, "the edit must appear as a signed adjustment")
}

func TestAPI_UpdateClient_RejectsNegativeBalance(t *testing.T) {
	router, _ := newAPI(t)
	client := createClient(t, router, "Padaria Central", 30, 100)

	rec := do(t, router, http.MethodPut, "/api/clients/"+client.ID, map[string]any{
		"name":            "Padaria Central",
		"current_balance": -1.0,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_DeleteClient(t *testing.T) {
	router, _ := newAPI(t)
	client := createClient(t, router, "Padaria Central", 30, 0)

	rec := do(t, router, http.MethodDelete, "/api/clients/"+client.ID, nil, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/clients/"+client.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/clients/"+client.ID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ListClients_Filters(t *testing.T) {
	// GIVEN: two clients, one below its alert threshold
	router, _ := newAPI(t)
	createClient(t, router, "Padaria Central", 30, 500)
	low := createClient(t, router, "Oficina do Zé", 30, 10) // threshold 50

	var all []api.ClientDTO
	rec := do(t, router, http.MethodGet, "/api/clients", nil, &all)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, all, 2)

	var byName []api.ClientDTO
	do(t, router, http.MethodGet, "/api/clients?search=padaria", nil, &byName)
	require.Len(t, byName, 1)
	assert.Equal(t, "Padaria Central", byName[0].Name)

	var lowOnly []api.ClientDTO
	do(t, router, http.MethodGet, "/api/clients?low_balance=true", nil, &lowOnly)
	require.Len(t, lowOnly, 1)
	assert.Equal(t, low.ID, lowOnly[0].ID)
	assert.True(t, lowOnly[0].LowBalance)
}

// =============================================================================
// CREDITS
// =============================================================================

func TestAPI_PostCredit(t *testing.T) {
	router, _ := newAPI(t)
	client := createClient(t, router, "Padaria Central", 30, 20)

	var tx api.TransactionDTO
	rec := do(t, router, http.MethodPost, "/api/clients/"+client.ID+"/credits", map[string]any{
		"amount":      100.0,
		"description": "Pix payment",
		"acting_user": "ana",
	}, &tx)
	require.Equal(t, http.StatusCreated, rec.Code)

	assert.Equal(t, "credit_added", tx.Type)
	assert.Equal(t, 100.0, tx.Amount)
	assert.Equal(t, 120.0, tx.BalanceAfter)
	assert.Equal(t, "ana", tx.CreatedBy)
}

func TestAPI_PostCredit_Errors(t *testing.T) {
	router, _ := newAPI(t)
	client := createClient(t, router, "Padaria Central", 30, 20)

	rec := do(t, router, http.MethodPost, "/api/clients/"+client.ID+"/credits", map[string]any{
		"amount": 0.0,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "zero amount")

	rec = do(t, router, http.MethodPost, "/api/clients/ghost/credits", map[string]any{
		"amount": 10.0,
	}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "unknown client")

	rec = do(t, router, http.MethodPost, "/api/clients/"+client.ID+"/credits", map[string]any{
		"amount": 10.0,
		"date":   "01/06/2025",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "malformed date")
}

// =============================================================================
// DAILY BATCH
// =============================================================================

func TestAPI_ProcessDailyConsumption_IsIdempotent(t *testing.T) {
	// GIVEN: two eligible clients
	// WHEN: the batch endpoint is hit twice
	// THEN: the first run debits, the second skips everything
	router, _ := newAPI(t)
	a := createClient(t, router, "Client A", 30, 100)
	createClient(t, router, "Client B", 30, 10)

	var first api.ProcessResultDTO
	rec := do(t, router, http.MethodPost, "/api/consumption/process", nil, &first)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, first.Success)
	assert.Equal(t, 2, first.Processed)
	assert.Equal(t, 0, first.Skipped)
	assert.Empty(t, first.Errors)

	var second api.ProcessResultDTO
	rec = do(t, router, http.MethodPost, "/api/consumption/process", nil, &second)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, second.Processed)
	assert.Equal(t, 2, second.Skipped)

	var got api.ClientDTO
	do(t, router, http.MethodGet, "/api/clients/"+a.ID, nil, &got)
	assert.Equal(t, 70.0, got.CurrentBalance, "exactly one debit despite two calls")

	var logs []api.ConsumptionLogDTO
	do(t, router, http.MethodGet, "/api/clients/"+a.ID+"/consumption", nil, &logs)
	require.Len(t, logs, 1)
	assert.Equal(t, 30.0, logs[0].Amount)
}

// =============================================================================
// DASHBOARD
// =============================================================================

func TestAPI_Dashboard(t *testing.T) {
	router, m := newAPI(t)
	createClient(t, router, "Client A", 30, 500)
	createClient(t, router, "Client B", 30, 10) // below threshold 50

	inactive := ledger.Client{
		ID:             ledger.ClientID("inactive"),
		Name:           "Paused",
		DailyBudget:    ledger.MustParseDecimal("30"),
		AlertThreshold: ledger.MustParseDecimal("50"),
		IsActive:       false,
	}
	require.NoError(t, m.SaveClient(context.Background(), inactive))

	var dash api.DashboardDTO
	rec := do(t, router, http.MethodGet, "/api/dashboard", nil, &dash)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, 3, dash.TotalClients)
	assert.Equal(t, 2, dash.ActiveClients)
	assert.Equal(t, 2, dash.LowBalanceCount, "the inactive zero-balance client also counts")
	assert.Equal(t, 510.0, dash.TotalBalance)
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestAPI_Reconcile_ReportsDrift(t *testing.T) {
	// GIVEN: a client seeded directly with a balance no transaction explains
	router, m := newAPI(t)

	seeded := ledger.Client{
		ID:             ledger.ClientID("drifted"),
		Name:           "Drifted",
		DailyBudget:    ledger.MustParseDecimal("30"),
		CurrentBalance: ledger.MustParseDecimal("99"),
		IsActive:       true,
	}
	require.NoError(t, m.SaveClient(context.Background(), seeded))

	var rc api.ReconcileDTO
	rec := do(t, router, http.MethodGet, "/api/clients/drifted/reconcile", nil, &rc)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.False(t, rc.Consistent)
	assert.Equal(t, 99.0, rc.CurrentBalance)
	assert.Equal(t, 0.0, rc.DerivedBalance)
}

// =============================================================================
// FULL FLOW
// =============================================================================

func TestAPI_CreditThenConsumeThenReconcile(t *testing.T) {
	// End-to-end: opening balance, a credit, one batch run; the ledger must
	// still explain the balance exactly.
	router, _ := newAPI(t)
	client := createClient(t, router, "Padaria Central", 30, 100)

	rec := do(t, router, http.MethodPost, fmt.Sprintf("/api/clients/%s/credits", client.ID), map[string]any{
		"amount": 50.0,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var result api.ProcessResultDTO
	rec = do(t, router, http.MethodPost, "/api/consumption/process", nil, &result)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, result.Processed)

	var rc api.ReconcileDTO
	rec = do(t, router, http.MethodGet, fmt.Sprintf("/api/clients/%s/reconcile", client.ID), nil, &rc)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, rc.Consistent)
	assert.Equal(t, 120.0, rc.CurrentBalance, "100 + 50 - 30")
}
