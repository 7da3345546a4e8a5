package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/quota"
)

// StoreBudget keeps the daily token counter on the active provider
// credential row. Check and increment run in one transaction holding a row
// lock (Postgres) or the single SQLite connection.
type StoreBudget struct {
	store *SQLStore
	now   quota.Clock
}

// NewStoreBudget returns a budget backed by the store.
func NewStoreBudget(store *SQLStore, now quota.Clock) *StoreBudget {
	if now == nil {
		now = time.Now
	}
	return &StoreBudget{store: store, now: now}
}

func (b *StoreBudget) today() time.Time {
	t := quota.Day(b.now())
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TryConsume consumes n tokens from the active credential if they fit.
func (b *StoreBudget) TryConsume(ctx context.Context, n int) (bool, error) {
	if n < 0 {
		return false, quota.ErrNegativeTokens
	}

	s := b.store
	today := b.today()
	consumed := false

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		c, err := scanCredential(s.queryRow(ctx, tx,
			`SELECT `+credentialColumns+` FROM provider_credentials WHERE is_active = ? LIMIT 1`+s.forUpdate(), true))
		if err != nil {
			return fmt.Errorf("failed to lock credential: %w", notFound(err))
		}

		used := c.TokensUsedToday
		if today.After(c.LastResetDate) {
			used = 0
		}
		if used+n > c.DailyTokenLimit {
			return nil
		}

		_, err = s.exec(ctx, tx,
			`UPDATE provider_credentials SET tokens_used_today = ?, last_reset_date = ? WHERE id = ?`,
			used+n, today.Format(dateLayout), c.ID)
		if err != nil {
			return fmt.Errorf("failed to consume tokens: %w", err)
		}
		consumed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return consumed, nil
}

// Usage reports the active credential's budget with the reset rule applied.
func (b *StoreBudget) Usage(ctx context.Context) (model.TokenUsage, error) {
	c, err := b.store.ActiveCredential(ctx)
	if err != nil {
		return model.TokenUsage{}, err
	}

	usage := model.TokenUsage{
		DailyLimit:    c.DailyTokenLimit,
		UsedToday:     c.TokensUsedToday,
		LastResetDate: c.LastResetDate,
	}
	if today := b.today(); today.After(c.LastResetDate) {
		usage.UsedToday = 0
		usage.LastResetDate = today
	}
	return usage, nil
}

// Ensure StoreBudget implements quota.Budget
var _ quota.Budget = (*StoreBudget)(nil)
