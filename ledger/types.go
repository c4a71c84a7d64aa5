/*
Package ledger provides the core balance-ledger domain.

PURPOSE:
  This package contains the types and invariants for managing prepaid
  advertising budgets: a Client holds a mutable balance that is depleted
  once per calendar day by a fixed daily budget and replenished by manually
  posted credits. Every balance change is witnessed by an immutable
  CreditTransaction, and every daily debit additionally by a
  DailyConsumptionLog row.

KEY CONCEPTS IN THIS FILE (types.go):
  - Client: A billing account with a daily-depleting balance
  - CreditTransaction: An immutable ledger entry recording a balance change
  - DailyConsumptionLog: The idempotency witness, one row per client per day
  - ClientID/TransactionID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never updated or deleted
  2. Precision: Uses decimal.Decimal to avoid floating-point errors
  3. Projection: Client.CurrentBalance is a cached projection of the signed
     transaction sum and is only ever updated atomically with a new
     transaction row
  4. Idempotency: At most one DailyConsumptionLog row per (client, date)

SEE ALSO:
  - balance.go: Pure balance mutation rules
  - store.go: Persistence interfaces
  - ledger.go: Balance derivation and drift detection
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ClientID string
type TransactionID string

// =============================================================================
// ENUMERATIONS
// =============================================================================

type PaymentMethod string

const (
	PaymentPix    PaymentMethod = "pix"
	PaymentBoleto PaymentMethod = "boleto"
)

// PaymentFrequency is informational only. The daily processor debits every
// eligible client once per day regardless of how the client pays.
type PaymentFrequency string

const (
	FrequencyWeekly   PaymentFrequency = "weekly"
	FrequencyBiweekly PaymentFrequency = "biweekly"
	FrequencyMonthly  PaymentFrequency = "monthly"
)

type TransactionType string

const (
	// TxCreditAdded records a manual credit. Amount is a positive magnitude.
	TxCreditAdded TransactionType = "credit_added"

	// TxDailyConsumption records one automated daily debit. Amount is a
	// positive magnitude (the amount actually debited, which may be less
	// than the daily budget, or zero).
	TxDailyConsumption TransactionType = "daily_consumption"

	// TxBalanceAdjustment records a manual balance override. Unlike the
	// other types, Amount carries the signed delta so that the ledger sum
	// still reconciles with the stored balance after an override.
	TxBalanceAdjustment TransactionType = "balance_adjustment"
)

// =============================================================================
// CLIENT - A billing account
// =============================================================================

type Client struct {
	ID               ClientID
	ManagerID        string
	Name             string
	Phone            string
	PaymentMethod    PaymentMethod
	PaymentFrequency PaymentFrequency
	DailyBudget      decimal.Decimal
	CurrentBalance   decimal.Decimal
	AlertThreshold   decimal.Decimal
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Consumable reports whether the daily processor should debit this client.
// Inactive clients and clients with a zero budget are permanently exempt.
func (c Client) Consumable() bool {
	return c.IsActive && c.DailyBudget.IsPositive()
}

// LowBalance reports whether the balance has fallen below the alert threshold.
func (c Client) LowBalance() bool {
	return c.CurrentBalance.LessThan(c.AlertThreshold)
}

// =============================================================================
// CREDIT TRANSACTION - Immutable audit record
// =============================================================================

// CreditTransaction is one balance-affecting event. Append-only: the core
// never updates or deletes a transaction once written.
type CreditTransaction struct {
	ID              TransactionID
	ClientID        ClientID
	Type            TransactionType
	Amount          decimal.Decimal
	BalanceAfter    decimal.Decimal
	Description     string
	TransactionDate Date

	// Audit fields
	CreatedAt time.Time
	CreatedBy string // empty for automated entries
}

// SignedAmount returns the delta this transaction applied to the balance.
func (tx CreditTransaction) SignedAmount() decimal.Decimal {
	switch tx.Type {
	case TxDailyConsumption:
		return tx.Amount.Neg()
	default: // TxCreditAdded (positive magnitude), TxBalanceAdjustment (already signed)
		return tx.Amount
	}
}

// =============================================================================
// DAILY CONSUMPTION LOG - Idempotency witness
// =============================================================================

// DailyConsumptionLog marks one applied daily debit. Uniqueness of
// (ClientID, ConsumptionDate) is what makes repeated processor runs
// idempotent: a row's existence means that date has been charged.
type DailyConsumptionLog struct {
	ID              string
	ClientID        ClientID
	ConsumptionDate Date
	Amount          decimal.Decimal
	BalanceBefore   decimal.Decimal
	BalanceAfter    decimal.Decimal
	ProcessedAt     time.Time
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
