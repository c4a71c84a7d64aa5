/*
handlers.go - HTTP API handlers for the budget ledger

PURPOSE:
  Exposes the budget engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Clients:
    GET    /api/clients                    List clients (?search=, ?low_balance=true)
    POST   /api/clients                    Create client
    GET    /api/clients/{id}               Client details
    PUT    /api/clients/{id}               Update client (balance edits go
                                           through the adjuster)
    DELETE /api/clients/{id}               Delete client and history

  Ledger:
    GET    /api/clients/{id}/transactions  Transaction history (display order)
    GET    /api/clients/{id}/consumption   Daily consumption history
    POST   /api/clients/{id}/credits       Post a manual credit
    GET    /api/clients/{id}/reconcile     Ledger-vs-balance drift check

  Batch:
    POST   /api/consumption/process        Trigger the daily batch (idempotent)

  Dashboard:
    GET    /api/dashboard                  Headline totals

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Client not found
  - 409: Write conflict that survived the retry
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware. The acting user is taken from the request
  body; session management is an external concern.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - scheduler.go: The scheduled caller of the batch endpoint's logic
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/budget-engine/billing"
	"github.com/warp/budget-engine/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     ledger.ClientStore
	Processor *billing.Processor
	Poster    *billing.CreditPoster
	Adjuster  *billing.Adjuster
	History   *ledger.History
	Logger    *zap.Logger
}

// NewHandler creates a new handler with the given store.
func NewHandler(store ledger.ClientStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:     store,
		Processor: billing.NewProcessor(store, logger),
		Poster:    billing.NewCreditPoster(store, logger),
		Adjuster:  billing.NewAdjuster(store, logger),
		History:   ledger.NewHistory(store),
		Logger:    logger,
	}
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns all clients, optionally filtered.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clients", err)
		return
	}

	search := strings.ToLower(r.URL.Query().Get("search"))
	lowOnly := r.URL.Query().Get("low_balance") == "true"

	filtered := make([]ledger.Client, 0, len(clients))
	for _, c := range clients {
		if search != "" && !strings.Contains(strings.ToLower(c.Name), search) {
			continue
		}
		if lowOnly && !c.LowBalance() {
			continue
		}
		filtered = append(filtered, c)
	}

	writeJSON(w, http.StatusOK, toClientDTOs(filtered))
}

// GetClient returns a single client.
func (h *Handler) GetClient(w http.ResponseWriter, r *http.Request) {
	id := ledger.ClientID(chi.URLParam(r, "id"))

	client, err := h.Store.GetClient(r.Context(), id)
	if errors.Is(err, ledger.ErrClientNotFound) {
		writeError(w, http.StatusNotFound, "Client not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get client", err)
		return
	}

	writeJSON(w, http.StatusOK, toClientDTO(*client))
}

// CreateClient creates a new client. An opening balance is recorded as a
// balance adjustment transaction so the ledger reconciles from day one.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Client name is required", nil)
		return
	}
	if req.DailyBudget < 0 || req.OpeningBalance < 0 || req.AlertThreshold < 0 {
		writeError(w, http.StatusBadRequest, "Amounts must not be negative", nil)
		return
	}

	method, err := parsePaymentMethod(req.PaymentMethod)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment_method (use pix or boleto)", err)
		return
	}
	frequency, err := parsePaymentFrequency(req.PaymentFrequency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment_frequency (use weekly, biweekly or monthly)", err)
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	client := ledger.Client{
		ID:               ledger.ClientID(uuid.NewString()),
		ManagerID:        req.ManagerID,
		Name:             req.Name,
		Phone:            req.Phone,
		PaymentMethod:    method,
		PaymentFrequency: frequency,
		DailyBudget:      decimal.NewFromFloat(req.DailyBudget),
		CurrentBalance:   decimal.Zero,
		AlertThreshold:   decimal.NewFromFloat(req.AlertThreshold),
		IsActive:         active,
	}

	if err := h.Store.SaveClient(r.Context(), client); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create client", err)
		return
	}

	if req.OpeningBalance > 0 {
		opening := decimal.NewFromFloat(req.OpeningBalance)
		if _, err := h.Adjuster.SetBalance(r.Context(), client.ID, opening, "Opening balance", req.ManagerID); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to record opening balance", err)
			return
		}
	}

	created, err := h.Store.GetClient(r.Context(), client.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload client", err)
		return
	}

	writeJSON(w, http.StatusCreated, toClientDTO(*created))
}

// UpdateClient updates a client. A changed current_balance is routed
// through the adjuster, never written directly.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	id := ledger.ClientID(chi.URLParam(r, "id"))

	var req UpdateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	client, err := h.Store.GetClient(r.Context(), id)
	if errors.Is(err, ledger.ErrClientNotFound) {
		writeError(w, http.StatusNotFound, "Client not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get client", err)
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "Client name is required", nil)
		return
	}
	if req.DailyBudget < 0 || req.AlertThreshold < 0 {
		writeError(w, http.StatusBadRequest, "Amounts must not be negative", nil)
		return
	}

	method, err := parsePaymentMethod(req.PaymentMethod)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment_method (use pix or boleto)", err)
		return
	}
	frequency, err := parsePaymentFrequency(req.PaymentFrequency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment_frequency (use weekly, biweekly or monthly)", err)
		return
	}

	client.ManagerID = req.ManagerID
	client.Name = req.Name
	client.Phone = req.Phone
	client.PaymentMethod = method
	client.PaymentFrequency = frequency
	client.DailyBudget = decimal.NewFromFloat(req.DailyBudget)
	client.AlertThreshold = decimal.NewFromFloat(req.AlertThreshold)
	if req.IsActive != nil {
		client.IsActive = *req.IsActive
	}

	if err := h.Store.SaveClient(r.Context(), *client); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update client", err)
		return
	}

	if req.CurrentBalance != nil {
		target := decimal.NewFromFloat(*req.CurrentBalance)
		if _, err := h.Adjuster.SetBalance(r.Context(), id, target, "Manual balance edit", req.ManagerID); err != nil {
			if errors.Is(err, ledger.ErrInvalidAmount) {
				writeError(w, http.StatusBadRequest, "Balance must not be negative", err)
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to adjust balance", err)
			return
		}
	}

	updated, err := h.Store.GetClient(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload client", err)
		return
	}

	writeJSON(w, http.StatusOK, toClientDTO(*updated))
}

// DeleteClient removes a client and its history.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id := ledger.ClientID(chi.URLParam(r, "id"))

	err := h.Store.DeleteClient(r.Context(), id)
	if errors.Is(err, ledger.ErrClientNotFound) {
		writeError(w, http.StatusNotFound, "Client not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete client", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetTransactions returns a client's transaction history in display order.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	id := ledger.ClientID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetClient(r.Context(), id); errors.Is(err, ledger.ErrClientNotFound) {
		writeError(w, http.StatusNotFound, "Client not found", err)
		return
	}

	txs, err := h.Store.Transactions(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, toTransactionDTOs(txs))
}

// GetConsumptionLogs returns a client's daily consumption history.
func (h *Handler) GetConsumptionLogs(w http.ResponseWriter, r *http.Request) {
	id := ledger.ClientID(chi.URLParam(r, "id"))

	if _, err := h.Store.GetClient(r.Context(), id); errors.Is(err, ledger.ErrClientNotFound) {
		writeError(w, http.StatusNotFound, "Client not found", err)
		return
	}

	logs, err := h.Store.ConsumptionLogs(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load consumption logs", err)
		return
	}

	dtos := make([]ConsumptionLogDTO, len(logs))
	for i, log := range logs {
		dtos[i] = toConsumptionLogDTO(log)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PostCredit posts a manual credit to a client.
func (h *Handler) PostCredit(w http.ResponseWriter, r *http.Request) {
	id := ledger.ClientID(chi.URLParam(r, "id"))

	var req PostCreditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var date ledger.Date
	if req.Date != "" {
		var err error
		date, err = ledger.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
			return
		}
	}

	tx, err := h.Poster.Post(r.Context(), billing.CreditRequest{
		ClientID:    id,
		Amount:      decimal.NewFromFloat(req.Amount),
		Description: req.Description,
		Date:        date,
		ActingUser:  req.ActingUser,
	})
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "Credit amount must be greater than zero", err)
		return
	case errors.Is(err, ledger.ErrClientNotFound):
		writeError(w, http.StatusNotFound, "Client not found", err)
		return
	case errors.Is(err, ledger.ErrWriteConflict):
		writeError(w, http.StatusConflict, "Concurrent balance update, please retry", err)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to post credit", err)
		return
	}

	writeJSON(w, http.StatusCreated, toTransactionDTO(*tx))
}

// ReconcileClient verifies the cached balance against the ledger.
func (h *Handler) ReconcileClient(w http.ResponseWriter, r *http.Request) {
	id := ledger.ClientID(chi.URLParam(r, "id"))

	client, err := h.Store.GetClient(r.Context(), id)
	if errors.Is(err, ledger.ErrClientNotFound) {
		writeError(w, http.StatusNotFound, "Client not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get client", err)
		return
	}

	derived, err := h.History.DerivedBalance(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to derive balance", err)
		return
	}

	cached, _ := client.CurrentBalance.Float64()
	derivedF, _ := derived.Float64()
	writeJSON(w, http.StatusOK, ReconcileDTO{
		ClientID:       string(id),
		Consistent:     client.CurrentBalance.Equal(derived),
		CurrentBalance: cached,
		DerivedBalance: derivedF,
	})
}

// =============================================================================
// BATCH HANDLER
// =============================================================================

// ProcessDailyConsumption triggers the daily batch for today (UTC).
// Safe to call repeatedly: already-processed clients are skipped.
func (h *Handler) ProcessDailyConsumption(w http.ResponseWriter, r *http.Request) {
	result, err := h.Processor.Process(r.Context(), ledger.Today())
	if err != nil {
		// Only the candidate-selection read can fail the batch outright.
		writeJSON(w, http.StatusInternalServerError, ProcessResultDTO{
			Success: false,
			Date:    result.Date.String(),
			Errors:  []string{err.Error()},
		})
		return
	}

	writeJSON(w, http.StatusOK, toProcessResultDTO(result))
}

// =============================================================================
// DASHBOARD HANDLER
// =============================================================================

// GetDashboard returns the dashboard's headline totals.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clients", err)
		return
	}

	var dto DashboardDTO
	total := decimal.Zero
	for _, c := range clients {
		dto.TotalClients++
		if c.IsActive {
			dto.ActiveClients++
		}
		if c.LowBalance() {
			dto.LowBalanceCount++
		}
		total = total.Add(c.CurrentBalance)
	}
	dto.TotalBalance, _ = total.Float64()

	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// HELPERS
// =============================================================================

func parsePaymentMethod(s string) (ledger.PaymentMethod, error) {
	switch ledger.PaymentMethod(s) {
	case "":
		return ledger.PaymentPix, nil
	case ledger.PaymentPix, ledger.PaymentBoleto:
		return ledger.PaymentMethod(s), nil
	default:
		return "", errors.New("unknown payment method: " + s)
	}
}

func parsePaymentFrequency(s string) (ledger.PaymentFrequency, error) {
	switch ledger.PaymentFrequency(s) {
	case "":
		return ledger.FrequencyMonthly, nil
	case ledger.FrequencyWeekly, ledger.FrequencyBiweekly, ledger.FrequencyMonthly:
		return ledger.PaymentFrequency(s), nil
	default:
		return "", errors.New("unknown payment frequency: " + s)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
