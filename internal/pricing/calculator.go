// Package pricing implements the break-even formula, the recommended-price
// markup and the competitiveness scoring. It performs no I/O.
package pricing

import (
	"amza-pricing-api/internal/model"

	"github.com/shopspring/decimal"
)

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)

	// DefaultOriginTaxMultiplier is the origin-side sales tax surcharge (8.25%).
	DefaultOriginTaxMultiplier = decimal.RequireFromString("1.0825")
	// ExemptOriginTaxMultiplier applies to categories without origin sales tax.
	ExemptOriginTaxMultiplier = decimal.NewFromInt(1)
)

const (
	currencyPlaces  = 2
	retentionPlaces = 7
	marginPlaces    = 4
)

// BreakEvenInput carries the per-product inputs of the formula.
type BreakEvenInput struct {
	OriginCost   decimal.Decimal // origin currency
	ExchangeRate decimal.Decimal
	Shipping     decimal.Decimal // destination currency
	// OriginTaxMultiplier defaults to DefaultOriginTaxMultiplier when zero.
	OriginTaxMultiplier decimal.Decimal
}

// Breakdown holds every step of the calculation, rounded for storage.
type Breakdown struct {
	OriginCostConverted decimal.Decimal `json:"usa_cost_mxn"`
	AfterImport         decimal.Decimal `json:"after_import"`
	CostBase            decimal.Decimal `json:"cost_base"`
	TotalCosts          decimal.Decimal `json:"total_costs"`
	BreakEvenBase       decimal.Decimal `json:"break_even_base"`
	RetentionFactor     decimal.Decimal `json:"retention_factor"`
	VATRetention        decimal.Decimal `json:"vat_retention"`
	ISRRetention        decimal.Decimal `json:"isr_retention"`
	BreakEvenPrice      decimal.Decimal `json:"break_even_price"`
}

// RetentionFactor returns (vat + isr) / (1 + iva), unrounded.
func RetentionFactor(cfg *model.AnalysisConfig) (decimal.Decimal, error) {
	ivaFactor := one.Add(cfg.IVATaxRate)
	if !ivaFactor.IsPositive() {
		return decimal.Zero, InvalidConfig("iva_tax_rate must be greater than -1")
	}
	return cfg.VATRetentionRate.Add(cfg.ISRRetentionRate).Div(ivaFactor), nil
}

// CalculateBreakEven runs the cascading cost, fee and retention formula.
// Intermediate values keep full precision; only the returned fields are rounded.
func CalculateBreakEven(in BreakEvenInput, cfg *model.AnalysisConfig) (Breakdown, error) {
	multiplier := in.OriginTaxMultiplier
	if multiplier.IsZero() {
		multiplier = DefaultOriginTaxMultiplier
	}

	converted := in.OriginCost.Mul(in.ExchangeRate).Mul(multiplier)

	importFees := converted.Mul(cfg.ImportAdminCostRate)
	importFeesTax := importFees.Mul(cfg.IVATaxRate)
	afterImport := importFees.Add(importFeesTax)

	costBase := converted.Add(afterImport)
	totalCosts := costBase.Add(in.Shipping)

	marketplaceFactor := one.Sub(cfg.MarketplaceFeeRate)
	if !marketplaceFactor.IsPositive() {
		return Breakdown{}, InvalidConfig("marketplace_fee_rate must be < 1")
	}
	breakEvenBase := totalCosts.Div(marketplaceFactor)

	retentionFactor, err := RetentionFactor(cfg)
	if err != nil {
		return Breakdown{}, err
	}
	denom := one.Sub(retentionFactor)
	if !denom.IsPositive() {
		return Breakdown{}, InvalidConfig("retention rates are too high relative to iva (1 - retention factor <= 0)")
	}

	breakEven := breakEvenBase.Div(denom)
	netPrice := breakEven.Div(one.Add(cfg.IVATaxRate))

	return Breakdown{
		OriginCostConverted: converted.Round(currencyPlaces),
		AfterImport:         afterImport.Round(currencyPlaces),
		CostBase:            costBase.Round(currencyPlaces),
		TotalCosts:          totalCosts.Round(currencyPlaces),
		BreakEvenBase:       breakEvenBase.Round(currencyPlaces),
		RetentionFactor:     retentionFactor.Round(retentionPlaces),
		VATRetention:        netPrice.Mul(cfg.VATRetentionRate).Round(currencyPlaces),
		ISRRetention:        netPrice.Mul(cfg.ISRRetentionRate).Round(currencyPlaces),
		BreakEvenPrice:      breakEven.Round(currencyPlaces),
	}, nil
}

// RecommendedPrice applies the target margin as a markup over the break-even price.
func RecommendedPrice(breakEven, targetMargin decimal.Decimal) (decimal.Decimal, error) {
	if targetMargin.IsNegative() {
		return decimal.Zero, InvalidConfig("target_margin must be >= 0")
	}
	return breakEven.Mul(one.Add(targetMargin)).Round(currencyPlaces), nil
}

// Competitiveness is the feasibility verdict for a destination price.
type Competitiveness struct {
	IsFeasible        bool             `json:"is_feasible"`
	PriceDifference   decimal.Decimal  `json:"price_difference"`
	ProfitMargin      decimal.Decimal  `json:"potential_profit_margin"`
	Confidence        model.Confidence `json:"confidence_score"`
	MeetsMinMargin    bool             `json:"meets_min_margin"`
	MeetsTargetMargin bool             `json:"meets_target_margin"`
}

// ScoreCompetitiveness compares the break-even price with the current
// destination price. The margin is taken net of retentions over the
// break-even base so it stays comparable across differently priced items.
func ScoreCompetitiveness(breakEven decimal.Decimal, current *decimal.Decimal, cfg *model.AnalysisConfig) Competitiveness {
	if current == nil || !current.IsPositive() {
		return Competitiveness{
			PriceDifference: decimal.Zero,
			ProfitMargin:    decimal.Zero,
			Confidence:      model.ConfidenceLow,
		}
	}

	priceDifference := current.Sub(breakEven)

	margin := decimal.Zero
	if rf, err := RetentionFactor(cfg); err == nil {
		base := breakEven.Mul(one.Sub(rf))
		if base.IsPositive() {
			retained := current.Mul(rf)
			profit := current.Sub(base).Sub(retained)
			margin = profit.Div(base).Round(marginPlaces)
		}
	}

	c := Competitiveness{
		PriceDifference:   priceDifference.Round(currencyPlaces),
		ProfitMargin:      margin,
		MeetsMinMargin:    margin.GreaterThanOrEqual(cfg.MinProfitMargin),
		MeetsTargetMargin: margin.GreaterThanOrEqual(cfg.TargetProfitMargin),
	}
	c.IsFeasible = c.MeetsMinMargin && priceDifference.IsPositive()

	switch {
	case c.MeetsTargetMargin:
		c.Confidence = model.ConfidenceHigh
	case c.MeetsMinMargin:
		c.Confidence = model.ConfidenceMedium
	default:
		c.Confidence = model.ConfidenceLow
	}
	return c
}

// AverageShipping returns the midpoint of the configured shipping range.
func AverageShipping(cfg *model.AnalysisConfig) decimal.Decimal {
	return cfg.FixedShippingMin.Add(cfg.FixedShippingMax).Div(two).Round(currencyPlaces)
}

// ValidateConfig checks that every rate lies in [0,1] and that the shipping
// range is well formed.
func ValidateConfig(cfg *model.AnalysisConfig) error {
	for name, rate := range cfg.Rates() {
		if rate.IsNegative() || rate.GreaterThan(one) {
			return InvalidConfig("%s must be between 0 and 1, got %s", name, rate)
		}
	}
	if cfg.FixedShippingMin.IsNegative() || cfg.FixedShippingMax.LessThan(cfg.FixedShippingMin) {
		return InvalidConfig("shipping range [%s, %s] is invalid", cfg.FixedShippingMin, cfg.FixedShippingMax)
	}
	if !one.Sub(cfg.MarketplaceFeeRate).IsPositive() {
		return InvalidConfig("marketplace_fee_rate must be < 1")
	}
	rf, err := RetentionFactor(cfg)
	if err != nil {
		return err
	}
	if !one.Sub(rf).IsPositive() {
		return InvalidConfig("retention rates are too high relative to iva (1 - retention factor <= 0)")
	}
	return nil
}
