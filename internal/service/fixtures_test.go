package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"amza-pricing-api/internal/keepa"
	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/quota"
	"amza-pricing-api/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockProductClient struct {
	mock.Mock
}

func (m *mockProductClient) QueryProduct(ctx context.Context, apiKey, asin string, domain keepa.Domain) (*keepa.ProductResult, error) {
	args := m.Called(ctx, apiKey, asin, domain)
	res, _ := args.Get(0).(*keepa.ProductResult)
	return res, args.Error(1)
}

type mockTrackingClient struct {
	mock.Mock
}

func (m *mockTrackingClient) RegisterTracking(ctx context.Context, apiKey string, trackings []keepa.TrackingRequest, listName string) (*keepa.TrackingResult, error) {
	args := m.Called(ctx, apiKey, trackings, listName)
	res, _ := args.Get(0).(*keepa.TrackingResult)
	return res, args.Error(1)
}

const testAPIKey = "test-key"

func newTestStore(t *testing.T) *repository.SQLStore {
	t.Helper()
	s, err := repository.NewSQLiteStore(filepath.Join(t.TempDir(), "pricing.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedCredential(t *testing.T, s *repository.SQLStore, limit int) {
	t.Helper()
	require.NoError(t, s.EnsureCredential(context.Background(), &model.ProviderCredential{
		APIKey:          testAPIKey,
		IsActive:        true,
		DailyTokenLimit: limit,
		LastResetDate:   time.Now().UTC(),
	}))
}

func seedConfig(t *testing.T, s *repository.SQLStore) *model.AnalysisConfig {
	t.Helper()
	cfg := model.DefaultAnalysisConfig()
	cfg.IsActive = true
	require.NoError(t, s.CreateConfig(context.Background(), &cfg))
	return &cfg
}

func seedRate(t *testing.T, s *repository.SQLStore, rate string) {
	t.Helper()
	require.NoError(t, s.CreateRate(context.Background(), &model.ExchangeRate{
		FromCurrency: "USD",
		ToCurrency:   "MXN",
		Rate:         decimal.RequireFromString(rate),
		IsActive:     true,
	}))
}

// productOpts describes the latest price points of a fixture product, in cents.
// Zero means no data.
type productOpts struct {
	buyBox   int64
	amazon   int64
	newPrice int64
	category string
	brand    string
}

func keepaProduct(asin string, o productOpts) keepa.Product {
	csv := make([][]int64, keepa.SeriesBuyBoxShipping+1)
	pair := func(v int64) []int64 {
		if v == 0 {
			return []int64{7000000, -1}
		}
		return []int64{7000000, v}
	}
	csv[keepa.SeriesAmazon] = pair(o.amazon)
	csv[keepa.SeriesNew] = pair(o.newPrice)
	csv[keepa.SeriesSalesRank] = []int64{7000000, 1520}
	if o.buyBox > 0 {
		csv[keepa.SeriesBuyBoxShipping] = []int64{7000000, o.buyBox, 0}
	}

	p := keepa.Product{
		ASIN:  asin,
		Title: "Fixture " + asin,
		Brand: o.brand,
		CSV:   csv,
	}
	if o.category != "" {
		p.CategoryTree = []keepa.Category{{ID: 1, Name: o.category}}
	}
	return p
}

func productResult(t *testing.T, products ...keepa.Product) *keepa.ProductResult {
	t.Helper()
	res := &keepa.ProductResult{Products: products, TokensLeft: 100, TokensConsumed: 1}
	for _, p := range products {
		raw, err := json.Marshal(p)
		require.NoError(t, err)
		res.Raw = append(res.Raw, raw)
	}
	return res
}

type testEnv struct {
	store    *repository.SQLStore
	client   *mockProductClient
	budget   *quota.MemoryBudget
	snaps    *SnapshotService
	analysis *AnalysisService
	batches  *BatchService
}

func newTestEnv(t *testing.T, tokenLimit int) *testEnv {
	t.Helper()
	store := newTestStore(t)
	client := &mockProductClient{}
	budget := quota.NewMemoryBudget(tokenLimit, nil)

	snaps := NewSnapshotService(client, budget, store, store, store, store)
	analysis := NewAnalysisService(snaps, store, store, store, store, store, DefaultAnalysisOptions())
	return &testEnv{
		store:    store,
		client:   client,
		budget:   budget,
		snaps:    snaps,
		analysis: analysis,
		batches:  NewBatchService(analysis, store),
	}
}

// expect registers the provider response of one identifier in one marketplace.
func (e *testEnv) expect(t *testing.T, asin string, domain keepa.Domain, products ...keepa.Product) {
	e.client.On("QueryProduct", mock.Anything, testAPIKey, asin, domain).Return(productResult(t, products...), nil)
}

func dec(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}
