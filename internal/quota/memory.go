package quota

import (
	"context"
	"sync"
	"time"

	"amza-pricing-api/internal/model"
)

// MemoryBudget is an in-process implementation of Budget.
// Use this for development/testing or single-instance deployments.
type MemoryBudget struct {
	mu        sync.Mutex
	limit     int
	used      int
	lastReset time.Time
	now       Clock
}

// NewMemoryBudget creates a budget with the given daily limit.
func NewMemoryBudget(limit int, now Clock) *MemoryBudget {
	if now == nil {
		now = time.Now
	}
	return &MemoryBudget{
		limit:     limit,
		lastReset: Day(now()),
		now:       now,
	}
}

// resetIfNewDay must be called with mu held.
func (b *MemoryBudget) resetIfNewDay() {
	today := Day(b.now())
	if today.After(b.lastReset) {
		b.used = 0
		b.lastReset = today
	}
}

// TryConsume consumes n tokens if they fit in today's budget.
func (b *MemoryBudget) TryConsume(ctx context.Context, n int) (bool, error) {
	if n < 0 {
		return false, ErrNegativeTokens
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetIfNewDay()
	if b.used+n > b.limit {
		return false, nil
	}
	b.used += n
	return true, nil
}

// Usage returns the current budget state.
func (b *MemoryBudget) Usage(ctx context.Context) (model.TokenUsage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetIfNewDay()
	return model.TokenUsage{
		DailyLimit:    b.limit,
		UsedToday:     b.used,
		LastResetDate: b.lastReset,
	}, nil
}
