/*
store.go - Persistence interface for clients, transactions, and logs

PURPOSE:
  Defines the boundary between the domain logic and the database. The core
  needs transactional keyed storage for three record kinds - Client,
  CreditTransaction, DailyConsumptionLog - with atomic multi-row writes and
  point lookups by key/date. Different implementations can use SQLite,
  PostgreSQL, or in-memory storage.

ATOMIC WRITE CONTRACT:
  ApplyConsumption persists three effects together: the balance update, the
  consumption-log insert, and the transaction insert. ApplyCredit persists
  two: the balance update and the transaction insert. In both cases either
  everything commits or nothing does - a partial write (log inserted but
  balance unchanged) is a consistency violation the implementation must
  prevent with a store-level transaction.

IDEMPOTENCY:
  The application-level check (GetConsumptionLog, then conditional insert)
  is raced by nature. Implementations MUST enforce a uniqueness constraint
  on (client_id, consumption_date) and map a conflicting insert onto
  ErrAlreadyProcessed. That constraint is the single piece of schema that
  encodes the idempotency contract.

LOST UPDATES:
  Balance updates are conditioned on the balance the caller read immediately
  prior (compare-and-swap). A failed condition maps onto ErrWriteConflict so
  two concurrent credits can never both apply against the same starting
  balance.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite (same patterns apply to PostgreSQL)
  - ledger/store: in-memory, for tests

SEE ALSO:
  - billing/processor.go, billing/credit.go: the only writers
  - ledger.go: read-side derivation over Transactions
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// WRITE PAYLOADS - Atomic multi-row writes
// =============================================================================

// ConsumptionWrite is the atomic triple write for one daily debit.
type ConsumptionWrite struct {
	ClientID ClientID

	// ExpectedBalance is the balance read before computing the debit.
	// The store conditions the update on it (compare-and-swap).
	ExpectedBalance decimal.Decimal
	NewBalance      decimal.Decimal

	Log         DailyConsumptionLog
	Transaction CreditTransaction
}

// CreditWrite is the atomic pair write for a manual credit or a balance
// adjustment.
type CreditWrite struct {
	ClientID ClientID

	ExpectedBalance decimal.Decimal
	NewBalance      decimal.Decimal

	Transaction CreditTransaction
}

// =============================================================================
// STORE - Minimum operation set the core needs
// =============================================================================

type Store interface {
	// GetClient returns a client by id, or ErrClientNotFound.
	GetClient(ctx context.Context, id ClientID) (*Client, error)

	// SelectActiveClientsWithPositiveBudget returns the daily processor's
	// candidate set: is_active AND daily_budget > 0.
	SelectActiveClientsWithPositiveBudget(ctx context.Context) ([]Client, error)

	// GetConsumptionLog returns the log row for (client, date), or nil if
	// that date has not been processed.
	GetConsumptionLog(ctx context.Context, id ClientID, date Date) (*DailyConsumptionLog, error)

	// ApplyConsumption atomically updates the balance and inserts the log
	// and transaction rows. Returns ErrAlreadyProcessed if a log row for
	// (client, date) already exists, ErrWriteConflict if the balance moved
	// since ExpectedBalance was read.
	ApplyConsumption(ctx context.Context, w ConsumptionWrite) error

	// ApplyCredit atomically updates the balance and inserts the
	// transaction row. Returns ErrWriteConflict if the balance moved since
	// ExpectedBalance was read.
	ApplyCredit(ctx context.Context, w CreditWrite) error

	// TransactionsInOrder returns all transactions for a client in causal
	// (insertion) order. Balance derivation replays these.
	TransactionsInOrder(ctx context.Context, id ClientID) ([]CreditTransaction, error)
}

// =============================================================================
// CLIENT STORE - Extended surface for the dashboard/CRUD layer
// =============================================================================

type ClientStore interface {
	Store

	// SaveClient inserts or updates a client record. It must never be used
	// to change CurrentBalance; balance moves only through ApplyConsumption,
	// ApplyCredit, or the adjuster.
	SaveClient(ctx context.Context, c Client) error

	// DeleteClient removes a client and its history.
	DeleteClient(ctx context.Context, id ClientID) error

	// ListClients returns all clients ordered by name.
	ListClients(ctx context.Context) ([]Client, error)

	// Transactions returns a client's history in display order:
	// transaction_date descending, then created_at descending.
	Transactions(ctx context.Context, id ClientID) ([]CreditTransaction, error)

	// ConsumptionLogs returns a client's consumption history, newest first.
	ConsumptionLogs(ctx context.Context, id ClientID) ([]DailyConsumptionLog, error)
}
