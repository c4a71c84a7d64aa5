/*
balance.go - Pure balance mutation rules

PURPOSE:
  The single place where new balances are computed. Both orchestrators
  (the daily processor and the credit poster) call into these functions;
  neither reimplements the arithmetic.

RULES:
  Credit:      new = balance + amount, amount must be strictly positive.
  Daily debit: actual debit = min(budget, balance)
               new balance  = max(0, balance - budget)
               The recorded amount is the actual debit - never negative,
               never larger than what the balance could cover. A client at
               zero still produces a zero-amount debit so the day is marked
               as processed.

NO SIDE EFFECTS:
  Pure computations. Persistence and idempotency are the callers' problem.

SEE ALSO:
  - billing/processor.go: Consumes DailyDebit
  - billing/credit.go: Consumes Credit
*/
package ledger

import "github.com/shopspring/decimal"

// Credit computes the balance after a manual credit.
// Returns ErrInvalidAmount (wrapped with the offending value) when the
// amount is not strictly positive.
func Credit(balance, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, &InvalidAmountError{Amount: amount}
	}
	return balance.Add(amount), nil
}

// DailyDebit computes one daily consumption step.
// Returns the amount actually debited and the resulting balance.
func DailyDebit(balance, budget decimal.Decimal) (debit, newBalance decimal.Decimal) {
	debit = decimal.Min(budget, balance)
	newBalance = decimal.Max(decimal.Zero, balance.Sub(budget))
	return debit, newBalance
}

// DaysUntilDepleted estimates how many daily cycles the balance covers.
// Returns -1 when the budget is not positive (the balance never depletes
// automatically).
func DaysUntilDepleted(balance, budget decimal.Decimal) int {
	if !budget.IsPositive() {
		return -1
	}
	if !balance.IsPositive() {
		return 0
	}
	days := balance.Div(budget).Ceil()
	return int(days.IntPart())
}
