package service

import (
	"context"
	"errors"
	"testing"

	"amza-pricing-api/internal/keepa"
	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFetchSnapshot(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	env.expect(t, "B000TEST01", keepa.DomainUS, keepaProduct("B000TEST01", productOpts{
		buyBox: 1250, amazon: 1299, newPrice: 999, category: "Tools & Home Improvement", brand: "Acme",
	}))
	ctx := context.Background()

	snap, err := env.snaps.FetchSnapshot(ctx, " b000test01 ", model.MarketplaceUS)
	require.NoError(t, err)

	assert.Equal(t, "B000TEST01", snap.Identifier)
	assert.True(t, snap.IsAvailable)
	assert.True(t, snap.SyncSuccessful)
	assert.Equal(t, "12.5", snap.BuyBoxPrice.String())
	assert.Equal(t, "12.99", snap.CurrentPrice.String())
	assert.Equal(t, "9.99", snap.NewPrice.String())
	assert.Equal(t, "Tools & Home Improvement", snap.Category)
	require.NotNil(t, snap.SalesRank)
	assert.Equal(t, int64(1520), *snap.SalesRank)
	assert.NotEmpty(t, snap.RawPayload)

	product, err := env.store.GetProductByExternalID(ctx, "B000TEST01")
	require.NoError(t, err)
	assert.Equal(t, "KEEPA-B000TEST01", product.SKU)
	assert.Equal(t, product.ID, snap.ProductID)

	usage, err := env.budget.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.UsedToday)

	stats, err := env.store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["total_call_logs"])
}

func TestFetchSnapshot_SyncTwiceKeepsOneRow(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	env.expect(t, "B000TWICE1", keepa.DomainMX, keepaProduct("B000TWICE1", productOpts{buyBox: 69900}))
	ctx := context.Background()

	first, err := env.snaps.FetchSnapshot(ctx, "B000TWICE1", model.MarketplaceMX)
	require.NoError(t, err)
	second, err := env.snaps.FetchSnapshot(ctx, "B000TWICE1", model.MarketplaceMX)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	stored, err := env.store.GetSnapshot(ctx, "B000TWICE1", model.MarketplaceMX)
	require.NoError(t, err)
	assert.Equal(t, "699", stored.BuyBoxPrice.String())

	stats, err := env.store.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats["total_snapshots"])

	usage, err := env.budget.Usage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.UsedToday)
	env.client.AssertNumberOfCalls(t, "QueryProduct", 2)
}

func TestFetchSnapshot_TokenGate(t *testing.T) {
	env := newTestEnv(t, 0)
	seedCredential(t, env.store, 0)

	_, err := env.snaps.FetchSnapshot(context.Background(), "B000GATE01", model.MarketplaceUS)
	require.Error(t, err)
	assert.True(t, pricing.IsKind(err, pricing.KindTokenLimitExceeded))

	env.client.AssertNotCalled(t, "QueryProduct", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	usage, _ := env.budget.Usage(context.Background())
	assert.Equal(t, 0, usage.UsedToday)
}

func TestFetchSnapshot_NoCredential(t *testing.T) {
	env := newTestEnv(t, 10)

	_, err := env.snaps.FetchSnapshot(context.Background(), "B000NOKEY1", model.MarketplaceUS)
	assert.True(t, pricing.IsKind(err, pricing.KindDataProviderUnavailable))
	env.client.AssertNotCalled(t, "QueryProduct", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFetchSnapshot_ProductNotFound(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	env.expect(t, "B000EMPTY1", keepa.DomainUS)

	snap, err := env.snaps.FetchSnapshot(context.Background(), "B000EMPTY1", model.MarketplaceUS)
	require.NoError(t, err)
	assert.False(t, snap.IsAvailable)
	assert.False(t, snap.SyncSuccessful)
	assert.Equal(t, "Product not found in Keepa", snap.SyncError)
	assert.Empty(t, snap.ProductID)
}

func TestFetchSnapshot_ProviderErrorKeepsToken(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	env.client.On("QueryProduct", mock.Anything, testAPIKey, "B000ERROR1", keepa.DomainUS).
		Return(nil, &keepa.StatusError{StatusCode: 502, Body: "bad gateway"})
	ctx := context.Background()

	_, err := env.snaps.FetchSnapshot(ctx, "B000ERROR1", model.MarketplaceUS)
	require.Error(t, err)
	assert.True(t, pricing.IsKind(err, pricing.KindDataProviderError))

	var statusErr *keepa.StatusError
	assert.True(t, errors.As(err, &statusErr))

	usage, _ := env.budget.Usage(ctx)
	assert.Equal(t, 1, usage.UsedToday)

	_, err = env.store.GetSnapshot(ctx, "B000ERROR1", model.MarketplaceUS)
	assert.Error(t, err)
}

func TestFetchSnapshot_UnknownMarketplace(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)

	_, err := env.snaps.FetchSnapshot(context.Background(), "B000TEST01", model.Marketplace("DE"))
	assert.True(t, pricing.IsKind(err, pricing.KindInvalidConfig))
}

type failingProducts struct{ err error }

func (f failingProducts) GetProductByExternalID(context.Context, string) (*model.Product, error) {
	return nil, f.err
}

func (f failingProducts) CreateProduct(context.Context, *model.Product) error { return f.err }

func TestFetchSnapshot_CatalogFailureIsNotProviderError(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	env.expect(t, "B000CATLG1", keepa.DomainUS, keepaProduct("B000CATLG1", productOpts{buyBox: 1250}))
	snaps := NewSnapshotService(env.client, env.budget, env.store, env.store,
		failingProducts{err: errors.New("catalog down")}, env.store)
	ctx := context.Background()

	_, err := snaps.FetchSnapshot(ctx, "B000CATLG1", model.MarketplaceUS)
	require.Error(t, err)
	assert.Equal(t, pricing.KindUnknown, pricing.KindOf(err))
	assert.Contains(t, err.Error(), "catalog down")

	_, err = env.store.GetSnapshot(ctx, "B000CATLG1", model.MarketplaceUS)
	assert.Error(t, err)
}
