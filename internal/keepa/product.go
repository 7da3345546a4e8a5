package keepa

import (
	"fmt"
	"strconv"

	"amza-pricing-api/internal/model"

	"github.com/shopspring/decimal"
)

// Domain is Keepa's numeric marketplace id.
type Domain int

const (
	DomainUS Domain = 1
	DomainMX Domain = 11
)

// DomainFor maps a marketplace onto its Keepa domain.
func DomainFor(m model.Marketplace) (Domain, bool) {
	switch m {
	case model.MarketplaceUS:
		return DomainUS, true
	case model.MarketplaceMX:
		return DomainMX, true
	}
	return 0, false
}

// Indexes into Product.CSV.
const (
	SeriesAmazon         = 0
	SeriesNew            = 1
	SeriesSalesRank      = 3
	SeriesBuyBoxShipping = 18
)

// noData is Keepa's sentinel for "no value at this point".
const noData = -1

var hundred = decimal.NewFromInt(100)

// Category is one node of a product's category tree.
type Category struct {
	ID   int64  `json:"catId"`
	Name string `json:"name"`
}

// Stats is the subset of the stats object requested with stats=90.
type Stats struct {
	Avg30 []int64 `json:"avg30"`
	Avg90 []int64 `json:"avg90"`
}

// Product is one entry of the product endpoint's response.
type Product struct {
	ASIN               string             `json:"asin"`
	Title              string             `json:"title"`
	Brand              string             `json:"brand"`
	CategoryTree       []Category         `json:"categoryTree"`
	CSV                [][]int64          `json:"csv"`
	Stats              *Stats             `json:"stats"`
	SalesRanks         map[string][]int64 `json:"salesRanks"`
	SalesRankReference int64              `json:"salesRankReference"`
}

// PriceSeries is a flattened Keepa history: (time, value) pairs, or
// (time, price, shipping) triples for the buy box series. Values are in the
// marketplace's smallest currency unit.
type PriceSeries struct {
	points []int64
	stride int
}

// NewPriceSeries wraps raw points with the given stride (2 or 3).
func NewPriceSeries(points []int64, stride int) PriceSeries {
	return PriceSeries{points: points, stride: stride}
}

// LatestRaw returns the most recent value, without unit conversion.
// For triples the value is price plus shipping.
func (s PriceSeries) LatestRaw() (int64, bool) {
	if s.stride < 2 || len(s.points) < s.stride {
		return 0, false
	}
	last := s.points[len(s.points)-s.stride:]
	value := last[1]
	if value <= noData {
		return 0, false
	}
	if s.stride == 3 && last[2] > 0 {
		value += last[2]
	}
	return value, true
}

// Latest returns the most recent value as a currency amount.
func (s PriceSeries) Latest() (decimal.Decimal, bool) {
	raw, ok := s.LatestRaw()
	if !ok {
		return decimal.Zero, false
	}
	return centsToAmount(raw), true
}

// Series returns the history at the given CSV index.
func (p *Product) Series(index int) PriceSeries {
	stride := 2
	if index == SeriesBuyBoxShipping {
		stride = 3
	}
	if index < 0 || index >= len(p.CSV) {
		return PriceSeries{stride: stride}
	}
	return NewPriceSeries(p.CSV[index], stride)
}

// RootCategory returns the name of the top of the category tree.
func (p *Product) RootCategory() string {
	if len(p.CategoryTree) == 0 {
		return ""
	}
	return p.CategoryTree[0].Name
}

// CurrentSalesRank prefers the rank in the reference category and falls back
// to the generic sales rank series.
func (p *Product) CurrentSalesRank() (int64, bool) {
	if p.SalesRanks != nil {
		if points, ok := p.SalesRanks[strconv.FormatInt(p.SalesRankReference, 10)]; ok {
			if rank, ok := NewPriceSeries(points, 2).LatestRaw(); ok {
				return rank, true
			}
		}
	}
	return p.Series(SeriesSalesRank).LatestRaw()
}

// Avg30 returns the 30 day average Amazon price.
func (p *Product) Avg30() (decimal.Decimal, bool) {
	if p.Stats == nil {
		return decimal.Zero, false
	}
	return statAt(p.Stats.Avg30, SeriesAmazon)
}

// Avg90 returns the 90 day average Amazon price.
func (p *Product) Avg90() (decimal.Decimal, bool) {
	if p.Stats == nil {
		return decimal.Zero, false
	}
	return statAt(p.Stats.Avg90, SeriesAmazon)
}

func statAt(values []int64, index int) (decimal.Decimal, bool) {
	if index >= len(values) || values[index] <= noData {
		return decimal.Zero, false
	}
	return centsToAmount(values[index]), true
}

func centsToAmount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(hundred)
}

// APIError is the error object Keepa embeds in a response body.
type APIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("keepa: %s: %s", e.Type, e.Message)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("keepa: unexpected status %d: %s", e.StatusCode, e.Body)
}
