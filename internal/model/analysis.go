package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Confidence is a coarse classification of how comfortably a result clears
// the minimum and target profit margins.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// AnalysisResult is the outcome of one break-even analysis. Results are never
// updated; a refresh inserts a new one.
type AnalysisResult struct {
	ID                    string `json:"id"`
	Identifier            string `json:"asin"`
	ProductID             string `json:"product_id"`
	OriginSnapshotID      string `json:"usa_keepa_data_id,omitempty"`
	DestinationSnapshotID string `json:"mx_keepa_data_id,omitempty"`
	ConfigID              string `json:"analysis_config_id,omitempty"`

	// Inputs
	OriginCost              decimal.Decimal  `json:"usa_cost"`
	OriginCurrency          string           `json:"usa_cost_currency"`
	OriginCostSource        string           `json:"usa_cost_source"`
	ExchangeRate            *decimal.Decimal `json:"exchange_rate"`
	OriginTaxMultiplier     *decimal.Decimal `json:"usa_tax_multiplier"`
	DestinationCurrentPrice *decimal.Decimal `json:"current_mx_amazon_price"`
	DestinationCurrency     string           `json:"mx_currency"`

	// Breakdown
	CostBase     *decimal.Decimal `json:"cost_base_mxn"`
	VATRetention *decimal.Decimal `json:"vat_retention"`
	ISRRetention *decimal.Decimal `json:"isr_retention"`
	ShippingUsed *decimal.Decimal `json:"shipping_cost_used"`
	// ShippingOverridden is set when ShippingUsed came from the caller
	// rather than the config's shipping range.
	ShippingOverridden bool             `json:"shipping_overridden"`
	BreakEvenPrice     *decimal.Decimal `json:"break_even_price"`

	// Outcome
	IsAvailableAtOrigin bool             `json:"is_available_usa"`
	IsFeasible          bool             `json:"is_feasible"`
	RecommendedPrice    *decimal.Decimal `json:"recommended_price"`
	PriceDifference     *decimal.Decimal `json:"price_difference"`
	ProfitMargin        *decimal.Decimal `json:"potential_profit_margin"`
	ConfidenceScore     Confidence       `json:"confidence_score"`
	BrandBlocked        bool             `json:"brand_blocked"`
	Notes               string           `json:"analysis_notes"`
	CreatedAt           time.Time        `json:"created_at"`
}

// ResultFilter narrows result listings.
type ResultFilter struct {
	FeasibleOnly bool
	MinMargin    *decimal.Decimal
	Limit        int
	Offset       int
}
