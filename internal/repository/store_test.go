package repository

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"amza-pricing-api/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "pricing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func dec(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

// storeSuite exercises the Store contract. It is shared with the Postgres
// integration test.
func storeSuite(t *testing.T, s *SQLStore) {
	ctx := context.Background()

	t.Run("snapshot upsert keeps one row per identifier and marketplace", func(t *testing.T) {
		rank := int64(812)
		first := &model.Snapshot{
			Identifier:     "B000SNAP01",
			Marketplace:    model.MarketplaceUS,
			BuyBoxPrice:    dec("12.50"),
			Title:          "First",
			SalesRank:      &rank,
			IsAvailable:    true,
			RawPayload:     json.RawMessage(`{"asin":"B000SNAP01"}`),
			SyncSuccessful: true,
			LastSyncedAt:   time.Now(),
		}
		require.NoError(t, s.UpsertSnapshot(ctx, first))

		second := &model.Snapshot{
			Identifier:     "B000SNAP01",
			Marketplace:    model.MarketplaceUS,
			CurrentPrice:   dec("13.10"),
			Title:          "Second",
			IsAvailable:    true,
			SyncSuccessful: true,
			LastSyncedAt:   time.Now(),
		}
		require.NoError(t, s.UpsertSnapshot(ctx, second))
		assert.Equal(t, first.ID, second.ID, "upsert must keep the original row")

		got, err := s.GetSnapshot(ctx, "B000SNAP01", model.MarketplaceUS)
		require.NoError(t, err)
		assert.Equal(t, "Second", got.Title)
		assert.Nil(t, got.BuyBoxPrice)
		require.NotNil(t, got.CurrentPrice)
		assert.True(t, decimal.RequireFromString("13.10").Equal(*got.CurrentPrice))
		assert.Nil(t, got.SalesRank)

		_, err = s.GetSnapshot(ctx, "B000SNAP01", model.MarketplaceMX)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("config activation leaves exactly one active", func(t *testing.T) {
		a := model.DefaultAnalysisConfig()
		a.Name = "A"
		a.IsActive = true
		require.NoError(t, s.CreateConfig(ctx, &a))

		b := model.DefaultAnalysisConfig()
		b.Name = "B"
		b.IsActive = true
		require.NoError(t, s.CreateConfig(ctx, &b))

		active, err := s.ActiveConfig(ctx)
		require.NoError(t, err)
		assert.Equal(t, b.ID, active.ID)
		assert.True(t, decimal.RequireFromString("0.025").Equal(active.ISRRetentionRate))

		require.NoError(t, s.ActivateConfig(ctx, a.ID))
		configs, err := s.ListConfigs(ctx)
		require.NoError(t, err)
		activeCount := 0
		for _, c := range configs {
			if c.IsActive {
				activeCount++
				assert.Equal(t, a.ID, c.ID)
			}
		}
		assert.Equal(t, 1, activeCount)

		assert.ErrorIs(t, s.ActivateConfig(ctx, "missing"), ErrNotFound)
	})

	t.Run("rate activation is per pair", func(t *testing.T) {
		usdOld := &model.ExchangeRate{FromCurrency: "USD", ToCurrency: "MXN", Rate: decimal.RequireFromString("17.10"), IsActive: true}
		require.NoError(t, s.CreateRate(ctx, usdOld))
		eur := &model.ExchangeRate{FromCurrency: "EUR", ToCurrency: "MXN", Rate: decimal.RequireFromString("19.80"), IsActive: true}
		require.NoError(t, s.CreateRate(ctx, eur))
		usdNew := &model.ExchangeRate{FromCurrency: "USD", ToCurrency: "MXN", Rate: decimal.RequireFromString("20.00"), IsActive: true}
		require.NoError(t, s.CreateRate(ctx, usdNew))

		active, err := s.ActiveRate(ctx, "USD", "MXN")
		require.NoError(t, err)
		assert.Equal(t, usdNew.ID, active.ID)
		assert.Equal(t, model.RateSourceManual, active.Source)

		stillEUR, err := s.ActiveRate(ctx, "EUR", "MXN")
		require.NoError(t, err)
		assert.Equal(t, eur.ID, stillEUR.ID)

		require.NoError(t, s.ActivateRate(ctx, usdOld.ID))
		active, err = s.ActiveRate(ctx, "USD", "MXN")
		require.NoError(t, err)
		assert.Equal(t, usdOld.ID, active.ID)

		_, err = s.ActiveRate(ctx, "USD", "CAD")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("results round trip and filter", func(t *testing.T) {
		feasible := &model.AnalysisResult{
			Identifier:          "B000RES001",
			OriginCost:          decimal.RequireFromString("12.50"),
			OriginCurrency:      "USD",
			OriginCostSource:    model.CostSourceBuyBox,
			DestinationCurrency: "MXN",
			BreakEvenPrice:      dec("541.24"),
			IsAvailableAtOrigin: true,
			IsFeasible:          true,
			ProfitMargin:        dec("0.2915"),
			ConfidenceScore:     model.ConfidenceHigh,
		}
		low := &model.AnalysisResult{
			Identifier:          "B000RES002",
			OriginCost:          decimal.RequireFromString("30"),
			OriginCurrency:      "USD",
			OriginCostSource:    model.CostSourceNew,
			DestinationCurrency: "MXN",
			IsAvailableAtOrigin: true,
			IsFeasible:          true,
			ProfitMargin:        dec("0.12"),
			ConfidenceScore:     model.ConfidenceMedium,
		}
		unavailable := &model.AnalysisResult{
			Identifier:          "B000RES003",
			OriginCost:          decimal.Zero,
			OriginCurrency:      "USD",
			OriginCostSource:    model.CostSourceUnavailable,
			DestinationCurrency: "MXN",
			ConfidenceScore:     model.ConfidenceLow,
		}
		for _, r := range []*model.AnalysisResult{feasible, low, unavailable} {
			require.NoError(t, s.CreateResult(ctx, r))
		}

		got, err := s.GetResult(ctx, feasible.ID)
		require.NoError(t, err)
		require.NotNil(t, got.BreakEvenPrice)
		assert.True(t, decimal.RequireFromString("541.24").Equal(*got.BreakEvenPrice))
		assert.Nil(t, got.RecommendedPrice)
		assert.Equal(t, model.ConfidenceHigh, got.ConfidenceScore)

		page, total, err := s.ListResults(ctx, model.ResultFilter{FeasibleOnly: true, Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(2), total)
		require.Len(t, page, 2)
		assert.Equal(t, feasible.ID, page[0].ID, "ordered by margin")

		page, total, err = s.ListResults(ctx, model.ResultFilter{FeasibleOnly: true, MinMargin: dec("0.15"), Limit: 10})
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, page, 1)
		assert.Equal(t, feasible.ID, page[0].ID)

		_, err = s.GetResult(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("batch progress is persisted", func(t *testing.T) {
		started := time.Now()
		b := &model.AnalysisBatch{
			Name:        "weekly",
			Identifiers: []string{"A1", "A2"},
			Status:      model.BatchProcessing,
			TotalCount:  2,
			StartedAt:   &started,
		}
		require.NoError(t, s.CreateBatch(ctx, b))

		b.ProcessedCount = 2
		b.SuccessCount = 1
		b.FailureCount = 1
		b.ResultIDs = append(b.ResultIDs, "r1")
		b.ErrorLog["A2"] = "keepa token limit exceeded"
		b.Finish(model.BatchCompleted, time.Now())
		require.NoError(t, s.UpdateBatch(ctx, b))

		got, err := s.GetBatch(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, model.BatchCompleted, got.Status)
		assert.Equal(t, []string{"A1", "A2"}, got.Identifiers)
		assert.Equal(t, []string{"r1"}, got.ResultIDs)
		assert.Equal(t, "keepa token limit exceeded", got.ErrorLog["A2"])
		assert.NotNil(t, got.CompletedAt)
		assert.Equal(t, got.ProcessedCount, got.SuccessCount+got.FailureCount)

		assert.ErrorIs(t, s.UpdateBatch(ctx, &model.AnalysisBatch{ID: "missing"}), ErrNotFound)
	})

	t.Run("products brands and notifications", func(t *testing.T) {
		p := &model.Product{SKU: "KEEPA-B000PROD01", ExternalID: "B000PROD01", Title: "Widget", Category: "Tools"}
		require.NoError(t, s.CreateProduct(ctx, p))
		got, err := s.GetProductByExternalID(ctx, "B000PROD01")
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)

		require.NoError(t, s.UpsertBrand(ctx, &model.BrandRestriction{Name: "Acme", NormalizedName: "acme", IsAllowed: true}))
		require.NoError(t, s.UpsertBrand(ctx, &model.BrandRestriction{Name: "ACME", NormalizedName: "acme", IsAllowed: false}))
		brand, err := s.GetBrand(ctx, "acme")
		require.NoError(t, err)
		assert.False(t, brand.IsAllowed)
		brands, err := s.ListBrands(ctx)
		require.NoError(t, err)
		assert.Len(t, brands, 1)

		sp, err := s.EnsureStoreProduct(ctx, "B000TRACK1")
		require.NoError(t, err)
		again, err := s.EnsureStoreProduct(ctx, "B000TRACK1")
		require.NoError(t, err)
		assert.Equal(t, sp.ID, again.ID)
		assert.Nil(t, sp.LastNotifiedAt)

		require.NoError(t, s.CreateNotification(ctx, &model.ProviderNotification{
			StoreProductID: sp.ID, Identifier: "B000TRACK1", Marketplace: "1", EventType: "PRICE_DROP",
			Payload: json.RawMessage(`{"asin":"B000TRACK1"}`),
		}))
		require.NoError(t, s.CreateNotification(ctx, &model.ProviderNotification{
			Identifier: "B000UNKNOWN", EventType: "PRICE_DROP",
		}))
		require.NoError(t, s.TouchStoreProduct(ctx, sp.ID, time.Now()))
		sp, err = s.FindStoreProduct(ctx, "B000TRACK1")
		require.NoError(t, err)
		assert.NotNil(t, sp.LastNotifiedAt)
	})

	t.Run("call log retention", func(t *testing.T) {
		old := &model.ProviderCallLog{Endpoint: "product", RequestParams: `{"asin":"OLD"}`, ResponseStatus: 200,
			TokensConsumed: 1, CreatedAt: time.Now().Add(-100 * 24 * time.Hour)}
		fresh := &model.ProviderCallLog{Endpoint: "product", RequestParams: `{"asin":"NEW"}`, ResponseStatus: 200,
			TokensConsumed: 1}
		require.NoError(t, s.InsertCallLog(ctx, old))
		require.NoError(t, s.InsertCallLog(ctx, fresh))
		assert.NotZero(t, fresh.ID)

		deleted, err := s.DeleteCallLogsBefore(ctx, time.Now().Add(-30*24*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		logs, total, err := s.ListCallLogs(ctx, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(1), total)
		require.Len(t, logs, 1)
		assert.Equal(t, fresh.ID, logs[0].ID)
		assert.Equal(t, `{"asin":"NEW"}`, logs[0].RequestParams)
	})

	t.Run("stats", func(t *testing.T) {
		stats, err := s.GetStats(ctx)
		require.NoError(t, err)
		assert.Contains(t, stats, "total_results")
		assert.Contains(t, stats, "db_size_bytes")
	})
}

func TestSQLiteStore(t *testing.T) {
	storeSuite(t, newTestStore(t))
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: DialectPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &SQLStore{dialect: DialectSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

// budgetSuite exercises StoreBudget against a store.
func budgetSuite(t *testing.T, s *SQLStore) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	cred := &model.ProviderCredential{
		APIKey:          "test-key",
		DailyTokenLimit: 3,
		LastResetDate:   now,
	}
	require.NoError(t, s.EnsureCredential(ctx, cred))

	active, err := s.ActiveCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, cred.ID, active.ID)
	assert.Equal(t, "test-key", active.APIKey)

	budget := NewStoreBudget(s, clock)

	for i := 0; i < 3; i++ {
		ok, err := budget.TryConsume(ctx, 1)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := budget.TryConsume(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	usage, err := budget.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, usage.UsedToday)

	now = now.Add(24 * time.Hour)
	usage, err = budget.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, usage.UsedToday)

	ok, err = budget.TryConsume(ctx, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	// Re-seeding the same key keeps the counters and updates the limit.
	require.NoError(t, s.EnsureCredential(ctx, &model.ProviderCredential{APIKey: "test-key", DailyTokenLimit: 10}))
	usage, err = budget.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.UsedToday)
	assert.Equal(t, 10, usage.DailyLimit)

	var granted int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := budget.TryConsume(ctx, 1); err == nil && ok {
				atomic.AddInt32(&granted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(8), granted)
}

func TestStoreBudget(t *testing.T) {
	budgetSuite(t, newTestStore(t))
}

func TestStoreBudget_NoCredential(t *testing.T) {
	budget := NewStoreBudget(newTestStore(t), nil)
	ok, err := budget.TryConsume(context.Background(), 1)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrNotFound)
}
