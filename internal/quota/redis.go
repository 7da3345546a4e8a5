package quota

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"amza-pricing-api/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// tryConsumeScript resets the hash when its date is older than today, then
// increments "used" by n only if the result stays within the limit.
// Returns {consumed (0|1), used}.
var tryConsumeScript = redis.NewScript(`
	local today = ARGV[1]
	local n = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local date = redis.call("HGET", KEYS[1], "date")
	local used = tonumber(redis.call("HGET", KEYS[1], "used") or "0")
	if (not date) or date < today then
		used = 0
		redis.call("HSET", KEYS[1], "date", today, "used", 0)
	end
	if used + n > limit then
		return {0, used}
	end
	used = redis.call("HINCRBY", KEYS[1], "used", n)
	return {1, used}
`)

// RedisBudget keeps the token counter in a Redis hash so that every API
// instance shares one budget.
type RedisBudget struct {
	client *redis.Client
	key    string
	limit  int
	now    Clock
}

// RedisBudgetConfig holds configuration for the Redis budget.
type RedisBudgetConfig struct {
	Addr       string
	Password   string
	DB         int
	KeyPrefix  string
	DailyLimit int
}

// NewRedisBudget connects to Redis and returns a shared budget.
func NewRedisBudget(cfg RedisBudgetConfig) (*RedisBudget, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	b := NewRedisBudgetWithClient(client, cfg.KeyPrefix, cfg.DailyLimit, nil)

	logrus.WithFields(logrus.Fields{
		"component": "RedisBudget",
		"db":        cfg.DB,
		"key":       b.key,
		"limit":     cfg.DailyLimit,
	}).Info("token budget backed by redis")
	return b, nil
}

// NewRedisBudgetWithClient wraps an existing client.
func NewRedisBudgetWithClient(client *redis.Client, keyPrefix string, limit int, now Clock) *RedisBudget {
	if keyPrefix == "" {
		keyPrefix = "amza:pricing"
	}
	if now == nil {
		now = time.Now
	}
	return &RedisBudget{
		client: client,
		key:    keyPrefix + ":keepa:tokens",
		limit:  limit,
		now:    now,
	}
}

// TryConsume runs the check-and-increment script.
func (b *RedisBudget) TryConsume(ctx context.Context, n int) (bool, error) {
	if n < 0 {
		return false, ErrNegativeTokens
	}

	today := dayKey(b.now())
	res, err := tryConsumeScript.Run(ctx, b.client, []string{b.key}, today, n, b.limit).Int64Slice()
	if err != nil {
		return false, fmt.Errorf("redis budget: %w", err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("redis budget: unexpected script reply %v", res)
	}
	return res[0] == 1, nil
}

// Usage reads the counter. A counter from a previous day reports as zero
// without being written back; the next TryConsume performs the reset.
func (b *RedisBudget) Usage(ctx context.Context) (model.TokenUsage, error) {
	now := b.now()
	usage := model.TokenUsage{DailyLimit: b.limit, LastResetDate: Day(now)}

	vals, err := b.client.HMGet(ctx, b.key, "used", "date").Result()
	if err != nil {
		return usage, fmt.Errorf("redis budget: %w", err)
	}

	date, _ := vals[1].(string)
	if date == "" || date < dayKey(now) {
		return usage, nil
	}

	if s, ok := vals[0].(string); ok {
		if used, err := strconv.Atoi(s); err == nil {
			usage.UsedToday = used
		}
	}
	if t, err := time.ParseInLocation(dateLayout, date, now.Location()); err == nil {
		usage.LastResetDate = t
	}
	return usage, nil
}

// Close closes the underlying client.
func (b *RedisBudget) Close() error {
	return b.client.Close()
}
