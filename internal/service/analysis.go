package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/pricing"
	"amza-pricing-api/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// SnapshotFetcher syncs marketplace snapshots.
type SnapshotFetcher interface {
	FetchSnapshot(ctx context.Context, identifier string, marketplace model.Marketplace) (*model.Snapshot, error)
}

// AnalysisOptions configures the currencies and origin tax policy of an AnalysisService.
type AnalysisOptions struct {
	OriginCurrency      string
	DestinationCurrency string
	// OriginTaxMultiplier applies to every category not listed in ExemptCategories.
	OriginTaxMultiplier decimal.Decimal
	// ExemptCategories are matched case-insensitively against the origin snapshot's root category.
	ExemptCategories []string
}

// DefaultAnalysisOptions returns the US to MX setup.
func DefaultAnalysisOptions() AnalysisOptions {
	return AnalysisOptions{
		OriginCurrency:      "USD",
		DestinationCurrency: "MXN",
		OriginTaxMultiplier: pricing.DefaultOriginTaxMultiplier,
		ExemptCategories:    []string{"health and household", "health & household"},
	}
}

// AnalyzeOptions overrides the inputs of a single analysis. Nil fields fall
// back to the caller-independent defaults: configured shipping midpoint,
// active config, active rate.
type AnalyzeOptions struct {
	ShippingOverride *decimal.Decimal
	Config           *model.AnalysisConfig
	Rate             *model.ExchangeRate
}

// AnalysisService runs the break-even analysis of one identifier.
type AnalysisService struct {
	snapshots SnapshotFetcher
	configs   repository.ConfigRepository
	rates     repository.RateRepository
	results   repository.ResultRepository
	products  repository.ProductRepository
	brands    repository.BrandRepository
	opts      AnalysisOptions
	exempt    map[string]struct{}
	now       func() time.Time
	log       *logrus.Entry
}

// NewAnalysisService creates a new analysis service.
func NewAnalysisService(
	snapshots SnapshotFetcher,
	configs repository.ConfigRepository,
	rates repository.RateRepository,
	results repository.ResultRepository,
	products repository.ProductRepository,
	brands repository.BrandRepository,
	opts AnalysisOptions,
) *AnalysisService {
	if opts.OriginCurrency == "" {
		opts.OriginCurrency = "USD"
	}
	if opts.DestinationCurrency == "" {
		opts.DestinationCurrency = "MXN"
	}
	if opts.OriginTaxMultiplier.IsZero() {
		opts.OriginTaxMultiplier = pricing.DefaultOriginTaxMultiplier
	}

	exempt := make(map[string]struct{}, len(opts.ExemptCategories))
	for _, c := range opts.ExemptCategories {
		exempt[strings.ToLower(strings.TrimSpace(c))] = struct{}{}
	}

	return &AnalysisService{
		snapshots: snapshots,
		configs:   configs,
		rates:     rates,
		results:   results,
		products:  products,
		brands:    brands,
		opts:      opts,
		exempt:    exempt,
		now:       time.Now,
		log:       logrus.WithField("component", "AnalysisService"),
	}
}

// ResolveConfig returns the active analysis config.
func (s *AnalysisService) ResolveConfig(ctx context.Context) (*model.AnalysisConfig, error) {
	cfg, err := s.configs.ActiveConfig(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, pricing.AnalysisConfigNotFound()
		}
		return nil, fmt.Errorf("failed to load active config: %w", err)
	}
	return cfg, nil
}

// ResolveRate returns the active origin to destination exchange rate.
func (s *AnalysisService) ResolveRate(ctx context.Context) (*model.ExchangeRate, error) {
	rate, err := s.rates.ActiveRate(ctx, s.opts.OriginCurrency, s.opts.DestinationCurrency)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, pricing.ExchangeRateNotFound(s.opts.OriginCurrency, s.opts.DestinationCurrency)
		}
		return nil, fmt.Errorf("failed to load active exchange rate: %w", err)
	}
	return rate, nil
}

// AnalyzeOne fetches both marketplaces, computes the break-even price and
// persists a new result. An identifier without an origin price yields an
// unavailable result rather than an error.
func (s *AnalysisService) AnalyzeOne(ctx context.Context, identifier string, opts AnalyzeOptions) (*model.AnalysisResult, error) {
	identifier = NormalizeIdentifier(identifier)

	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = s.ResolveConfig(ctx); err != nil {
			return nil, err
		}
	}

	origin, err := s.snapshots.FetchSnapshot(ctx, identifier, model.MarketplaceUS)
	if err != nil {
		return nil, err
	}
	destination, err := s.snapshots.FetchSnapshot(ctx, identifier, model.MarketplaceMX)
	if err != nil {
		return nil, err
	}

	result := &model.AnalysisResult{
		Identifier:            identifier,
		OriginSnapshotID:      origin.ID,
		DestinationSnapshotID: destination.ID,
		ConfigID:              cfg.ID,
		OriginCurrency:        s.opts.OriginCurrency,
		DestinationCurrency:   s.opts.DestinationCurrency,
		ConfidenceScore:       model.ConfidenceLow,
		ShippingUsed:          opts.ShippingOverride,
		ShippingOverridden:    opts.ShippingOverride != nil,
		CreatedAt:             s.now().UTC(),
	}

	brand, blocked, err := s.brandStatus(ctx, origin, destination)
	if err != nil {
		return nil, err
	}
	result.BrandBlocked = blocked

	cost, source := origin.DetermineCost()
	result.OriginCost = cost
	result.OriginCostSource = source

	if source == model.CostSourceUnavailable {
		result.Notes = unavailableNotes(brand, blocked)
		return s.persist(ctx, result, origin, destination, "Unavailable Product "+identifier)
	}

	rate := opts.Rate
	if rate == nil {
		if rate, err = s.ResolveRate(ctx); err != nil {
			return nil, err
		}
	}

	shipping := pricing.AverageShipping(cfg)
	if opts.ShippingOverride != nil {
		shipping = *opts.ShippingOverride
	}

	var current *decimal.Decimal
	if price, src := destination.DetermineCost(); src != model.CostSourceUnavailable {
		current = &price
	}

	multiplier := s.originTaxMultiplier(origin)
	breakdown, err := pricing.CalculateBreakEven(pricing.BreakEvenInput{
		OriginCost:          cost,
		ExchangeRate:        rate.Rate,
		Shipping:            shipping,
		OriginTaxMultiplier: multiplier,
	}, cfg)
	if err != nil {
		return nil, err
	}

	comp := pricing.ScoreCompetitiveness(breakdown.BreakEvenPrice, current, cfg)
	recommended, err := pricing.RecommendedPrice(breakdown.BreakEvenPrice, cfg.TargetProfitMargin)
	if err != nil {
		return nil, err
	}

	exchangeRate := rate.Rate.Round(4)
	result.ExchangeRate = &exchangeRate
	result.OriginTaxMultiplier = &multiplier
	result.DestinationCurrentPrice = current
	result.CostBase = &breakdown.CostBase
	result.VATRetention = &breakdown.VATRetention
	result.ISRRetention = &breakdown.ISRRetention
	result.ShippingUsed = &shipping
	result.BreakEvenPrice = &breakdown.BreakEvenPrice
	result.IsAvailableAtOrigin = true
	result.IsFeasible = comp.IsFeasible
	result.RecommendedPrice = &recommended
	result.PriceDifference = &comp.PriceDifference
	result.ProfitMargin = &comp.ProfitMargin
	result.ConfidenceScore = comp.Confidence
	result.Notes = analysisNotes(noteInput{
		cost:        cost,
		source:      source,
		currency:    s.opts.OriginCurrency,
		destination: s.opts.DestinationCurrency,
		breakEven:   breakdown.BreakEvenPrice,
		current:     current,
		recommended: recommended,
		comp:        comp,
		cfg:         cfg,
		brand:       brand,
		blocked:     blocked,
	})

	return s.persist(ctx, result, origin, destination, "Product "+identifier)
}

// Refresh re-runs the analysis of an existing result. A shipping override of
// the previous run is reused; otherwise shipping comes from the current
// config again. The original result is left untouched.
func (s *AnalysisService) Refresh(ctx context.Context, resultID string) (*model.AnalysisResult, error) {
	prev, err := s.GetResult(ctx, resultID)
	if err != nil {
		return nil, err
	}
	var opts AnalyzeOptions
	if prev.ShippingOverridden {
		opts.ShippingOverride = prev.ShippingUsed
	}
	return s.AnalyzeOne(ctx, prev.Identifier, opts)
}

// GetResult returns a stored result.
func (s *AnalysisService) GetResult(ctx context.Context, id string) (*model.AnalysisResult, error) {
	r, err := s.results.GetResult(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, pricing.NotFound("analysis result " + id + " not found")
		}
		return nil, err
	}
	return r, nil
}

// ListResults returns one page of stored results.
func (s *AnalysisService) ListResults(ctx context.Context, filter model.ResultFilter) ([]model.AnalysisResult, int64, error) {
	return s.results.ListResults(ctx, filter)
}

func (s *AnalysisService) persist(ctx context.Context, result *model.AnalysisResult, origin, destination *model.Snapshot, placeholderTitle string) (*model.AnalysisResult, error) {
	productID, err := s.productFor(ctx, result.Identifier, origin, destination, placeholderTitle)
	if err != nil {
		return nil, err
	}
	result.ProductID = productID

	if err := s.results.CreateResult(ctx, result); err != nil {
		return nil, fmt.Errorf("failed to store analysis result: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"asin":        result.Identifier,
		"result_id":   result.ID,
		"available":   result.IsAvailableAtOrigin,
		"feasible":    result.IsFeasible,
		"confidence":  result.ConfidenceScore,
		"cost_source": result.OriginCostSource,
	}).Info("analysis completed")
	return result, nil
}

// productFor returns the catalog product backing identifier, creating a
// placeholder when neither snapshot is linked to one.
func (s *AnalysisService) productFor(ctx context.Context, identifier string, origin, destination *model.Snapshot, title string) (string, error) {
	if origin.ProductID != "" {
		return origin.ProductID, nil
	}
	if destination.ProductID != "" {
		return destination.ProductID, nil
	}

	p, err := s.products.GetProductByExternalID(ctx, identifier)
	if err == nil {
		return p.ID, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("failed to look up product: %w", err)
	}

	p = &model.Product{
		SKU:        "KEEPA-" + identifier,
		ExternalID: identifier,
		Title:      title,
		Category:   defaultCategory,
	}
	if err := s.products.CreateProduct(ctx, p); err != nil {
		return "", fmt.Errorf("failed to create product: %w", err)
	}
	return p.ID, nil
}

func (s *AnalysisService) originTaxMultiplier(origin *model.Snapshot) decimal.Decimal {
	if _, ok := s.exempt[strings.ToLower(strings.TrimSpace(origin.Category))]; ok {
		return pricing.ExemptOriginTaxMultiplier
	}
	return s.opts.OriginTaxMultiplier
}

// brandStatus looks up the snapshot brand in the restriction list. Unknown
// brands are allowed.
func (s *AnalysisService) brandStatus(ctx context.Context, origin, destination *model.Snapshot) (string, bool, error) {
	brand := origin.Brand
	if brand == "" {
		brand = destination.Brand
	}
	key := model.NormalizeBrand(brand)
	if key == "" {
		return "", false, nil
	}

	r, err := s.brands.GetBrand(ctx, key)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return brand, false, nil
		}
		return "", false, fmt.Errorf("failed to look up brand: %w", err)
	}
	return brand, !r.IsAllowed, nil
}

type noteInput struct {
	cost        decimal.Decimal
	source      string
	currency    string
	destination string
	breakEven   decimal.Decimal
	current     *decimal.Decimal
	recommended decimal.Decimal
	comp        pricing.Competitiveness
	cfg         *model.AnalysisConfig
	brand       string
	blocked     bool
}

var costSourceLabels = map[string]string{
	model.CostSourceBuyBox: "Buy Box price",
	model.CostSourceAmazon: "Amazon price",
	model.CostSourceNew:    "current new price",
}

func analysisNotes(in noteInput) string {
	hundred := decimal.NewFromInt(100)
	lines := []string{
		fmt.Sprintf("Origin cost taken from %s: %s %s", costSourceLabels[in.source], in.cost.StringFixed(2), in.currency),
		fmt.Sprintf("Break-even price: %s %s", in.breakEven.StringFixed(2), in.destination),
	}

	if in.current != nil {
		lines = append(lines, fmt.Sprintf("Current destination price: %s %s", in.current.StringFixed(2), in.destination))
		diff := in.comp.PriceDifference
		if diff.IsPositive() {
			lines = append(lines, fmt.Sprintf("Positive difference: %s %s (%s%% margin)",
				diff.StringFixed(2), in.destination, in.comp.ProfitMargin.Mul(hundred).StringFixed(2)))
		} else {
			lines = append(lines, fmt.Sprintf("Negative difference: %s %s, not viable at the current price",
				diff.StringFixed(2), in.destination))
		}
	} else {
		lines = append(lines, "No current price in the destination marketplace")
	}

	lines = append(lines, fmt.Sprintf("Recommended price: %s %s", in.recommended.StringFixed(2), in.destination))

	switch {
	case in.comp.IsFeasible && in.comp.MeetsTargetMargin:
		lines = append(lines, fmt.Sprintf("VIABLE: meets target margin (%s%%)", in.cfg.TargetProfitMargin.Mul(hundred).StringFixed(0)))
	case in.comp.IsFeasible:
		lines = append(lines, fmt.Sprintf("VIABLE: meets minimum margin (%s%%)", in.cfg.MinProfitMargin.Mul(hundred).StringFixed(0)))
	default:
		lines = append(lines, "NOT VIABLE: below minimum margin")
	}

	if in.blocked {
		lines = append(lines, brandBlockedNote(in.brand))
	}
	return strings.Join(lines, "\n")
}

func unavailableNotes(brand string, blocked bool) string {
	notes := "Product NOT available in the origin marketplace.\n\n" +
		"Recommendation: set inventory_quantity = 0 for this product.\n\n" +
		"There is no Buy Box, Amazon or new price at origin, so no break-even price can be calculated. " +
		"Do not sell this product until it is available again."
	if blocked {
		notes += "\n\n" + brandBlockedNote(brand)
	}
	return notes
}

func brandBlockedNote(brand string) string {
	return fmt.Sprintf("Brand %q is blocked for resale", brand)
}
