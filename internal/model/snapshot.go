package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Marketplace identifies one of the two national marketplaces being compared.
type Marketplace string

const (
	MarketplaceUS Marketplace = "US"
	MarketplaceMX Marketplace = "MX"
)

// Valid reports whether m is a known marketplace.
func (m Marketplace) Valid() bool {
	return m == MarketplaceUS || m == MarketplaceMX
}

// Snapshot is the last synced price, availability and metadata record for one
// identifier in one marketplace. It is unique per (Identifier, Marketplace).
type Snapshot struct {
	ID             string           `json:"id"`
	Identifier     string           `json:"asin"`
	Marketplace    Marketplace      `json:"marketplace"`
	ProductID      string           `json:"product_id,omitempty"`
	BuyBoxPrice    *decimal.Decimal `json:"buy_box_price"`
	CurrentPrice   *decimal.Decimal `json:"current_amazon_price"`
	NewPrice       *decimal.Decimal `json:"current_new_price"`
	Avg30Price     *decimal.Decimal `json:"avg_30_days_price"`
	Avg90Price     *decimal.Decimal `json:"avg_90_days_price"`
	Title          string           `json:"title"`
	Brand          string           `json:"brand"`
	Category       string           `json:"product_category"`
	SalesRank      *int64           `json:"sales_rank"`
	IsAvailable    bool             `json:"is_available"`
	RawPayload     json.RawMessage  `json:"raw_data,omitempty"`
	SyncSuccessful bool             `json:"sync_successful"`
	SyncError      string           `json:"sync_error_message,omitempty"`
	LastSyncedAt   time.Time        `json:"last_synced_at"`
}

// Cost sources, in priority order.
const (
	CostSourceBuyBox      = "buy_box"
	CostSourceAmazon      = "amazon"
	CostSourceNew         = "new"
	CostSourceUnavailable = "unavailable"
)

// DetermineCost picks the truest purchasable price of the snapshot: buy box,
// then the current Amazon price, then the current new price.
func (s *Snapshot) DetermineCost() (decimal.Decimal, string) {
	if s == nil {
		return decimal.Zero, CostSourceUnavailable
	}
	candidates := []struct {
		price  *decimal.Decimal
		source string
	}{
		{s.BuyBoxPrice, CostSourceBuyBox},
		{s.CurrentPrice, CostSourceAmazon},
		{s.NewPrice, CostSourceNew},
	}
	for _, c := range candidates {
		if c.price != nil && c.price.IsPositive() {
			return *c.price, c.source
		}
	}
	return decimal.Zero, CostSourceUnavailable
}
