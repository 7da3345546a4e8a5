package service

import (
	"context"
	"testing"

	"amza-pricing-api/internal/keepa"
	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/pricing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeOne(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	cfg := seedConfig(t, env.store)
	seedRate(t, env.store, "20.0000")
	env.expect(t, "B000VIABLE", keepa.DomainUS, keepaProduct("B000VIABLE", productOpts{buyBox: 1250, category: "Toys & Games"}))
	env.expect(t, "B000VIABLE", keepa.DomainMX, keepaProduct("B000VIABLE", productOpts{buyBox: 69900}))
	ctx := context.Background()

	result, err := env.analysis.AnalyzeOne(ctx, "B000VIABLE", AnalyzeOptions{ShippingOverride: dec("85.00")})
	require.NoError(t, err)

	assert.Equal(t, "B000VIABLE", result.Identifier)
	assert.Equal(t, cfg.ID, result.ConfigID)
	assert.Equal(t, model.CostSourceBuyBox, result.OriginCostSource)
	assert.Equal(t, "12.5", result.OriginCost.String())
	assert.Equal(t, "1.0825", result.OriginTaxMultiplier.String())
	assert.Equal(t, "20", result.ExchangeRate.String())
	assert.Equal(t, "699", result.DestinationCurrentPrice.String())

	assert.Equal(t, "333.41", result.CostBase.StringFixed(2))
	assert.Equal(t, "37.33", result.VATRetention.StringFixed(2))
	assert.Equal(t, "11.66", result.ISRRetention.StringFixed(2))
	assert.Equal(t, "541.24", result.BreakEvenPrice.StringFixed(2))
	assert.Equal(t, "676.55", result.RecommendedPrice.StringFixed(2))
	assert.Equal(t, "157.76", result.PriceDifference.StringFixed(2))
	assert.Equal(t, "0.2915", result.ProfitMargin.StringFixed(4))
	assert.Equal(t, model.ConfidenceHigh, result.ConfidenceScore)
	assert.True(t, result.IsAvailableAtOrigin)
	assert.True(t, result.IsFeasible)
	assert.Contains(t, result.Notes, "Break-even price: 541.24 MXN")
	assert.Contains(t, result.Notes, "VIABLE: meets target margin (25%)")

	stored, err := env.store.GetResult(ctx, result.ID)
	require.NoError(t, err)
	assert.Equal(t, result.ProductID, stored.ProductID)
	assert.Equal(t, "541.24", stored.BreakEvenPrice.StringFixed(2))

	usage, _ := env.budget.Usage(ctx)
	assert.Equal(t, 2, usage.UsedToday)
}

func TestAnalyzeOne_DefaultShippingIsMidpoint(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	seedConfig(t, env.store)
	seedRate(t, env.store, "20")
	env.expect(t, "B000MIDPNT", keepa.DomainUS, keepaProduct("B000MIDPNT", productOpts{buyBox: 1250}))
	env.expect(t, "B000MIDPNT", keepa.DomainMX, keepaProduct("B000MIDPNT", productOpts{}))

	result, err := env.analysis.AnalyzeOne(context.Background(), "B000MIDPNT", AnalyzeOptions{})
	require.NoError(t, err)

	assert.Equal(t, "85.00", result.ShippingUsed.StringFixed(2))
	assert.Equal(t, "541.24", result.BreakEvenPrice.StringFixed(2))
	assert.Nil(t, result.DestinationCurrentPrice)
	assert.False(t, result.IsFeasible)
	assert.Equal(t, model.ConfidenceLow, result.ConfidenceScore)
	assert.Contains(t, result.Notes, "No current price in the destination marketplace")
}

func TestAnalyzeOne_UnavailableAtOrigin(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	seedConfig(t, env.store)
	// No exchange rate: the short-circuit happens before it is needed.
	env.expect(t, "B000NOUSA1", keepa.DomainUS, keepaProduct("B000NOUSA1", productOpts{}))
	env.expect(t, "B000NOUSA1", keepa.DomainMX, keepaProduct("B000NOUSA1", productOpts{buyBox: 50000}))

	result, err := env.analysis.AnalyzeOne(context.Background(), "B000NOUSA1", AnalyzeOptions{})
	require.NoError(t, err)

	assert.False(t, result.IsAvailableAtOrigin)
	assert.False(t, result.IsFeasible)
	assert.Equal(t, model.CostSourceUnavailable, result.OriginCostSource)
	assert.True(t, result.OriginCost.IsZero())
	assert.Nil(t, result.BreakEvenPrice)
	assert.Nil(t, result.CostBase)
	assert.Nil(t, result.RecommendedPrice)
	assert.Nil(t, result.ExchangeRate)
	assert.Contains(t, result.Notes, "inventory_quantity = 0")
	assert.NotEmpty(t, result.ProductID)
}

func TestAnalyzeOne_NotFoundAnywhereCreatesPlaceholderProduct(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	seedConfig(t, env.store)
	env.expect(t, "B000GHOST1", keepa.DomainUS)
	env.expect(t, "B000GHOST1", keepa.DomainMX)
	ctx := context.Background()

	result, err := env.analysis.AnalyzeOne(ctx, "B000GHOST1", AnalyzeOptions{})
	require.NoError(t, err)
	assert.False(t, result.IsAvailableAtOrigin)

	product, err := env.store.GetProductByExternalID(ctx, "B000GHOST1")
	require.NoError(t, err)
	assert.Equal(t, result.ProductID, product.ID)
	assert.Equal(t, "Unavailable Product B000GHOST1", product.Title)
}

func TestAnalyzeOne_MissingConfig(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)

	_, err := env.analysis.AnalyzeOne(context.Background(), "B000NOCFG1", AnalyzeOptions{})
	assert.True(t, pricing.IsKind(err, pricing.KindAnalysisConfigNotFound))
	env.client.AssertNotCalled(t, "QueryProduct", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnalyzeOne_MissingRate(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	seedConfig(t, env.store)
	env.expect(t, "B000NORATE", keepa.DomainUS, keepaProduct("B000NORATE", productOpts{buyBox: 1250}))
	env.expect(t, "B000NORATE", keepa.DomainMX, keepaProduct("B000NORATE", productOpts{buyBox: 69900}))

	_, err := env.analysis.AnalyzeOne(context.Background(), "B000NORATE", AnalyzeOptions{})
	assert.True(t, pricing.IsKind(err, pricing.KindExchangeRateNotFound))
}

func TestAnalyzeOne_ExemptCategory(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	seedConfig(t, env.store)
	seedRate(t, env.store, "20")
	env.expect(t, "B000HEALTH", keepa.DomainUS, keepaProduct("B000HEALTH", productOpts{buyBox: 1250, category: "Health & Household"}))
	env.expect(t, "B000HEALTH", keepa.DomainMX, keepaProduct("B000HEALTH", productOpts{buyBox: 69900}))

	result, err := env.analysis.AnalyzeOne(context.Background(), "B000HEALTH", AnalyzeOptions{ShippingOverride: dec("85")})
	require.NoError(t, err)

	assert.Equal(t, "1", result.OriginTaxMultiplier.String())
	assert.True(t, result.BreakEvenPrice.LessThan(*dec("541.24")))
}

func TestAnalyzeOne_BlockedBrand(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	seedConfig(t, env.store)
	seedRate(t, env.store, "20")
	require.NoError(t, env.store.UpsertBrand(context.Background(), &model.BrandRestriction{
		Name: "Acme", NormalizedName: "acme", IsAllowed: false,
	}))
	env.expect(t, "B000BRAND1", keepa.DomainUS, keepaProduct("B000BRAND1", productOpts{buyBox: 1250, brand: " ACME "}))
	env.expect(t, "B000BRAND1", keepa.DomainMX, keepaProduct("B000BRAND1", productOpts{buyBox: 69900}))

	result, err := env.analysis.AnalyzeOne(context.Background(), "B000BRAND1", AnalyzeOptions{})
	require.NoError(t, err)

	assert.True(t, result.BrandBlocked)
	assert.Contains(t, result.Notes, "is blocked for resale")
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	seedConfig(t, env.store)
	seedRate(t, env.store, "20")
	env.expect(t, "B000REFRSH", keepa.DomainUS, keepaProduct("B000REFRSH", productOpts{buyBox: 1250}))
	env.expect(t, "B000REFRSH", keepa.DomainMX, keepaProduct("B000REFRSH", productOpts{buyBox: 69900}))
	ctx := context.Background()

	first, err := env.analysis.AnalyzeOne(ctx, "B000REFRSH", AnalyzeOptions{ShippingOverride: dec("120")})
	require.NoError(t, err)

	second, err := env.analysis.Refresh(ctx, first.ID)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "120.00", second.ShippingUsed.StringFixed(2))
	assert.True(t, first.BreakEvenPrice.Equal(*second.BreakEvenPrice))

	_, total, err := env.store.ListResults(ctx, model.ResultFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestRefresh_ConfigShippingFollowsActiveConfig(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	seedConfig(t, env.store)
	seedRate(t, env.store, "20")
	env.expect(t, "B000CFGSHP", keepa.DomainUS, keepaProduct("B000CFGSHP", productOpts{buyBox: 1250}))
	env.expect(t, "B000CFGSHP", keepa.DomainMX, keepaProduct("B000CFGSHP", productOpts{buyBox: 69900}))
	ctx := context.Background()

	first, err := env.analysis.AnalyzeOne(ctx, "B000CFGSHP", AnalyzeOptions{})
	require.NoError(t, err)
	assert.Equal(t, "85.00", first.ShippingUsed.StringFixed(2))
	assert.False(t, first.ShippingOverridden)

	cfg := model.DefaultAnalysisConfig()
	cfg.FixedShippingMin = decimal.RequireFromString("100")
	cfg.FixedShippingMax = decimal.RequireFromString("140")
	cfg.IsActive = true
	require.NoError(t, env.store.CreateConfig(ctx, &cfg))

	second, err := env.analysis.Refresh(ctx, first.ID)
	require.NoError(t, err)

	assert.Equal(t, "120.00", second.ShippingUsed.StringFixed(2))
	assert.False(t, second.ShippingOverridden)
	assert.Equal(t, cfg.ID, second.ConfigID)
}

func TestRefresh_OverrideIsStored(t *testing.T) {
	env := newTestEnv(t, 10)
	seedCredential(t, env.store, 10)
	seedConfig(t, env.store)
	seedRate(t, env.store, "20")
	env.expect(t, "B000OVRSHP", keepa.DomainUS, keepaProduct("B000OVRSHP", productOpts{buyBox: 1250}))
	env.expect(t, "B000OVRSHP", keepa.DomainMX, keepaProduct("B000OVRSHP", productOpts{buyBox: 69900}))
	ctx := context.Background()

	first, err := env.analysis.AnalyzeOne(ctx, "B000OVRSHP", AnalyzeOptions{ShippingOverride: dec("95")})
	require.NoError(t, err)

	stored, err := env.analysis.GetResult(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, stored.ShippingOverridden)
	assert.Equal(t, "95.00", stored.ShippingUsed.StringFixed(2))

	cfg := model.DefaultAnalysisConfig()
	cfg.FixedShippingMin = decimal.RequireFromString("100")
	cfg.FixedShippingMax = decimal.RequireFromString("140")
	cfg.IsActive = true
	require.NoError(t, env.store.CreateConfig(ctx, &cfg))

	second, err := env.analysis.Refresh(ctx, first.ID)
	require.NoError(t, err)

	assert.True(t, second.ShippingOverridden)
	assert.Equal(t, "95.00", second.ShippingUsed.StringFixed(2))
}

func TestRefresh_UnknownResult(t *testing.T) {
	env := newTestEnv(t, 10)

	_, err := env.analysis.Refresh(context.Background(), "missing")
	assert.True(t, pricing.IsKind(err, pricing.KindNotFound))
}
