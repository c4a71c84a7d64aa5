package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar day without time-of-day or timezone ambiguity
// =============================================================================

// Date is a calendar day used as the processing key for daily consumption.
// All clients share a single daily cycle keyed on the UTC calendar date;
// the processor never reads ambient wall-clock time directly, callers pass
// a Date in so runs are deterministic and testable.
type Date struct {
	t time.Time // normalized to midnight UTC
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf converts an instant to its UTC calendar date.
func DateOf(t time.Time) Date {
	u := t.UTC()
	return NewDate(u.Year(), u.Month(), u.Day())
}

// Today returns the current UTC calendar date.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool  { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool  { return d.t.Equal(other.t) }
func (d Date) IsZero() bool           { return d.t.IsZero() }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Time returns the underlying instant (midnight UTC).
func (d Date) Time() time.Time { return d.t }

func (d Date) String() string {
	return d.t.Format("2006-01-02")
}
