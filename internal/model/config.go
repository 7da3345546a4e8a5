package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AnalysisConfig holds the tax, fee and margin parameters of a break-even analysis.
// Exactly one config is active at a time.
type AnalysisConfig struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	IsActive            bool            `json:"is_active"`
	ImportAdminCostRate decimal.Decimal `json:"import_admin_cost_rate"`
	IVATaxRate          decimal.Decimal `json:"iva_tax_rate"`
	VATRetentionRate    decimal.Decimal `json:"vat_retention_rate"`
	ISRRetentionRate    decimal.Decimal `json:"isr_retention_rate"`
	MarketplaceFeeRate  decimal.Decimal `json:"marketplace_fee_rate"`
	MinProfitMargin     decimal.Decimal `json:"min_profit_margin"`
	TargetProfitMargin  decimal.Decimal `json:"target_profit_margin"`
	FixedShippingMin    decimal.Decimal `json:"fixed_shipping_min"`
	FixedShippingMax    decimal.Decimal `json:"fixed_shipping_max"`
	CreatedAt           time.Time       `json:"created_at"`
}

// DefaultAnalysisConfig returns a config populated with the standard rates.
func DefaultAnalysisConfig() AnalysisConfig {
	return AnalysisConfig{
		Name:                "Default",
		ImportAdminCostRate: decimal.RequireFromString("0.20"),
		IVATaxRate:          decimal.RequireFromString("0.16"),
		VATRetentionRate:    decimal.RequireFromString("0.08"),
		ISRRetentionRate:    decimal.RequireFromString("0.025"),
		MarketplaceFeeRate:  decimal.RequireFromString("0.15"),
		MinProfitMargin:     decimal.RequireFromString("0.10"),
		TargetProfitMargin:  decimal.RequireFromString("0.25"),
		FixedShippingMin:    decimal.RequireFromString("70.00"),
		FixedShippingMax:    decimal.RequireFromString("100.00"),
	}
}

// Rates returns the rate fields keyed by name, for range validation.
func (c *AnalysisConfig) Rates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"import_admin_cost_rate": c.ImportAdminCostRate,
		"iva_tax_rate":           c.IVATaxRate,
		"vat_retention_rate":     c.VATRetentionRate,
		"isr_retention_rate":     c.ISRRetentionRate,
		"marketplace_fee_rate":   c.MarketplaceFeeRate,
		"min_profit_margin":      c.MinProfitMargin,
		"target_profit_margin":   c.TargetProfitMargin,
	}
}

// Exchange rate sources.
const (
	RateSourceManual = "manual"
	RateSourceAPI    = "api"
)

// ExchangeRate is a conversion rate between two currencies.
// At most one rate per currency pair is active.
type ExchangeRate struct {
	ID           string          `json:"id"`
	FromCurrency string          `json:"from_currency"`
	ToCurrency   string          `json:"to_currency"`
	Rate         decimal.Decimal `json:"rate"`
	IsActive     bool            `json:"is_active"`
	Source       string          `json:"source"`
	CreatedAt    time.Time       `json:"created_at"`
}

// ProviderCredential is the Keepa API key together with its daily token budget.
type ProviderCredential struct {
	ID              string    `json:"id"`
	APIKey          string    `json:"-"`
	IsActive        bool      `json:"is_active"`
	DailyTokenLimit int       `json:"daily_token_limit"`
	TokensUsedToday int       `json:"tokens_used_today"`
	LastResetDate   time.Time `json:"last_reset_date"`
}

// TokenUsage reports the state of a daily token budget.
type TokenUsage struct {
	DailyLimit    int       `json:"daily_limit"`
	UsedToday     int       `json:"used_today"`
	LastResetDate time.Time `json:"last_reset_date"`
}

// Remaining returns how many tokens can still be consumed today.
func (u TokenUsage) Remaining() int {
	if u.UsedToday >= u.DailyLimit {
		return 0
	}
	return u.DailyLimit - u.UsedToday
}
