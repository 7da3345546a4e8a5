// Package quota enforces the daily Keepa token budget.
package quota

import (
	"context"
	"time"

	"amza-pricing-api/internal/model"
)

// Budget defines the daily token budget operations.
// Implementations swap between an in-process counter (single instance),
// Redis (shared across instances) and the provider credential row in the
// analysis store, without changing the callers.
type Budget interface {
	// TryConsume resets the counter if the day rolled over, then consumes n
	// tokens iff used+n <= limit. Check and consume happen atomically.
	TryConsume(ctx context.Context, n int) (bool, error)

	// Usage reports the current state with the reset rule applied.
	Usage(ctx context.Context) (model.TokenUsage, error)
}

// BudgetError is a constant error of this package.
type BudgetError string

func (e BudgetError) Error() string { return string(e) }

const (
	// ErrNegativeTokens is returned when asked to consume fewer than zero tokens.
	ErrNegativeTokens BudgetError = "token count must not be negative"
)

// Clock returns the current time. Budgets derive "today" from it.
type Clock func() time.Time

const dateLayout = "2006-01-02"

// Day truncates t to its calendar date in t's location.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func dayKey(t time.Time) string {
	return t.Format(dateLayout)
}
