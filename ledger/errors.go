/*
errors.go - Centralized error types for the ledger core

PURPOSE:
  All error types in one place for consistency and discoverability.
  Orchestrators and stores wrap these errors with additional context.

ERROR CATEGORIES:
  1. Validation errors - rejected before any write (invalid amounts)
  2. Idempotency signals - "already processed" is a skip, not a failure
  3. Store conflicts - races on the uniqueness constraint or on a
     concurrent balance update

USAGE:
  if errors.Is(err, ledger.ErrAlreadyProcessed) {
      // safe to skip - this day was already charged
  }

SEE ALSO:
  - store/sqlite: maps SQLite constraint failures onto these sentinels
  - billing/processor.go: treats ErrAlreadyProcessed as a skip
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned when a credit amount is not strictly
	// positive, or a numeric input cannot be parsed. Rejected before any write.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrAlreadyProcessed is returned when a daily debit for a (client, date)
	// pair has already been applied. This is expected behavior for re-runs
	// and for two racing processor invocations; callers skip, never fail.
	ErrAlreadyProcessed = errors.New("consumption already processed for date")

	// ErrWriteConflict is returned when a conditional balance update loses a
	// race against a concurrent writer. The credit path retries once on this.
	ErrWriteConflict = errors.New("concurrent balance update conflict")

	// ErrClientNotFound is returned when a referenced client doesn't exist.
	ErrClientNotFound = errors.New("client not found")

	// ErrBalanceDrift is returned when the cached balance no longer equals
	// the signed sum of the transaction history.
	ErrBalanceDrift = errors.New("balance does not reconcile with ledger")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidAmountError reports a rejected amount.
type InvalidAmountError struct {
	Amount decimal.Decimal
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid amount %s: must be greater than zero", e.Amount)
}

func (e *InvalidAmountError) Unwrap() error { return ErrInvalidAmount }

// DriftError reports a reconciliation mismatch between the cached balance
// and the balance derived from the transaction history.
type DriftError struct {
	ClientID ClientID
	Cached   decimal.Decimal
	Derived  decimal.Decimal
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("client %s: cached balance %s, ledger derives %s",
		e.ClientID, e.Cached, e.Derived)
}

func (e *DriftError) Unwrap() error { return ErrBalanceDrift }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrWriteConflict)
}

// IsClientError returns true if the error is due to invalid caller input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrClientNotFound)
}
