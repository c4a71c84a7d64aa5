/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY REPRESENTATION:
  Amounts cross the wire as float64 for the dashboard's convenience; the
  core keeps decimals throughout and only converts at this boundary.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/budget-engine/billing"
	"github.com/warp/budget-engine/ledger"
)

// =============================================================================
// CLIENT TYPES
// =============================================================================

// ClientDTO represents a client in API responses.
type ClientDTO struct {
	ID                string  `json:"id"`
	ManagerID         string  `json:"manager_id"`
	Name              string  `json:"name"`
	Phone             string  `json:"phone,omitempty"`
	PaymentMethod     string  `json:"payment_method"`
	PaymentFrequency  string  `json:"payment_frequency"`
	DailyBudget       float64 `json:"daily_budget"`
	CurrentBalance    float64 `json:"current_balance"`
	AlertThreshold    float64 `json:"alert_threshold"`
	IsActive          bool    `json:"is_active"`
	LowBalance        bool    `json:"low_balance"`
	DaysUntilDepleted int     `json:"days_until_depleted"`
	CreatedAt         string  `json:"created_at"`
	UpdatedAt         string  `json:"updated_at"`
}

// CreateClientRequest creates a new client. An opening balance, if any,
// is recorded as a balance adjustment transaction.
type CreateClientRequest struct {
	ManagerID        string  `json:"manager_id"`
	Name             string  `json:"name"`
	Phone            string  `json:"phone"`
	PaymentMethod    string  `json:"payment_method"`
	PaymentFrequency string  `json:"payment_frequency"`
	DailyBudget      float64 `json:"daily_budget"`
	OpeningBalance   float64 `json:"opening_balance"`
	AlertThreshold   float64 `json:"alert_threshold"`
	IsActive         *bool   `json:"is_active"`
}

// UpdateClientRequest updates an existing client. CurrentBalance, when
// present and different from the stored value, is applied through the
// balance adjuster so the ledger stays complete.
type UpdateClientRequest struct {
	ManagerID        string   `json:"manager_id"`
	Name             string   `json:"name"`
	Phone            string   `json:"phone"`
	PaymentMethod    string   `json:"payment_method"`
	PaymentFrequency string   `json:"payment_frequency"`
	DailyBudget      float64  `json:"daily_budget"`
	CurrentBalance   *float64 `json:"current_balance"`
	AlertThreshold   float64  `json:"alert_threshold"`
	IsActive         *bool    `json:"is_active"`
}

// =============================================================================
// LEDGER TYPES
// =============================================================================

// TransactionDTO represents one credit transaction.
type TransactionDTO struct {
	ID              string  `json:"id"`
	ClientID        string  `json:"client_id"`
	Type            string  `json:"transaction_type"`
	Amount          float64 `json:"amount"`
	BalanceAfter    float64 `json:"balance_after"`
	Description     string  `json:"description,omitempty"`
	TransactionDate string  `json:"transaction_date"`
	CreatedAt       string  `json:"created_at"`
	CreatedBy       string  `json:"created_by,omitempty"`
}

// ConsumptionLogDTO represents one applied daily debit.
type ConsumptionLogDTO struct {
	ID              string  `json:"id"`
	ClientID        string  `json:"client_id"`
	ConsumptionDate string  `json:"consumption_date"`
	Amount          float64 `json:"amount"`
	BalanceBefore   float64 `json:"balance_before"`
	BalanceAfter    float64 `json:"balance_after"`
	ProcessedAt     string  `json:"processed_at"`
}

// PostCreditRequest posts a manual credit to a client.
type PostCreditRequest struct {
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	Date        string  `json:"date"` // YYYY-MM-DD, optional; defaults to today
	ActingUser  string  `json:"acting_user"`
}

// ProcessResultDTO is the aggregate result of one daily consumption run.
type ProcessResultDTO struct {
	Success   bool     `json:"success"`
	Date      string   `json:"date"`
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

// ReconcileDTO reports the ledger-vs-balance drift check for one client.
type ReconcileDTO struct {
	ClientID       string  `json:"client_id"`
	Consistent     bool    `json:"consistent"`
	CurrentBalance float64 `json:"current_balance"`
	DerivedBalance float64 `json:"derived_balance"`
}

// =============================================================================
// DASHBOARD TYPES
// =============================================================================

// DashboardDTO carries the dashboard's headline numbers.
type DashboardDTO struct {
	TotalClients    int     `json:"total_clients"`
	ActiveClients   int     `json:"active_clients"`
	LowBalanceCount int     `json:"low_balance_count"`
	TotalBalance    float64 `json:"total_balance"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toClientDTO(c ledger.Client) ClientDTO {
	budget, _ := c.DailyBudget.Float64()
	balance, _ := c.CurrentBalance.Float64()
	threshold, _ := c.AlertThreshold.Float64()
	return ClientDTO{
		ID:                string(c.ID),
		ManagerID:         c.ManagerID,
		Name:              c.Name,
		Phone:             c.Phone,
		PaymentMethod:     string(c.PaymentMethod),
		PaymentFrequency:  string(c.PaymentFrequency),
		DailyBudget:       budget,
		CurrentBalance:    balance,
		AlertThreshold:    threshold,
		IsActive:          c.IsActive,
		LowBalance:        c.LowBalance(),
		DaysUntilDepleted: ledger.DaysUntilDepleted(c.CurrentBalance, c.DailyBudget),
		CreatedAt:         c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:         c.UpdatedAt.Format(time.RFC3339),
	}
}

func toClientDTOs(clients []ledger.Client) []ClientDTO {
	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	return dtos
}

func toTransactionDTO(tx ledger.CreditTransaction) TransactionDTO {
	amount, _ := tx.Amount.Float64()
	after, _ := tx.BalanceAfter.Float64()
	return TransactionDTO{
		ID:              string(tx.ID),
		ClientID:        string(tx.ClientID),
		Type:            string(tx.Type),
		Amount:          amount,
		BalanceAfter:    after,
		Description:     tx.Description,
		TransactionDate: tx.TransactionDate.String(),
		CreatedAt:       tx.CreatedAt.Format(time.RFC3339),
		CreatedBy:       tx.CreatedBy,
	}
}

func toTransactionDTOs(txs []ledger.CreditTransaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toConsumptionLogDTO(log ledger.DailyConsumptionLog) ConsumptionLogDTO {
	amount, _ := log.Amount.Float64()
	before, _ := log.BalanceBefore.Float64()
	after, _ := log.BalanceAfter.Float64()
	return ConsumptionLogDTO{
		ID:              log.ID,
		ClientID:        string(log.ClientID),
		ConsumptionDate: log.ConsumptionDate.String(),
		Amount:          amount,
		BalanceBefore:   before,
		BalanceAfter:    after,
		ProcessedAt:     log.ProcessedAt.Format(time.RFC3339),
	}
}

func toProcessResultDTO(r billing.Result) ProcessResultDTO {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return ProcessResultDTO{
		Success:   true,
		Date:      r.Date.String(),
		Processed: r.Processed,
		Skipped:   r.Skipped,
		Errors:    errs,
	}
}
