package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Product is the canonical catalog record backing an identifier.
type Product struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	ExternalID string    `json:"external_id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	CreatedAt  time.Time `json:"created_at"`
}

// BrandRestriction marks a brand as allowed or blocked for resale.
type BrandRestriction struct {
	Name           string    `json:"name"`
	NormalizedName string    `json:"normalized_name"`
	IsAllowed      bool      `json:"is_allowed"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NormalizeBrand returns the lookup key of a brand name.
func NormalizeBrand(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// StoreProduct is a tracked listing that can receive provider push notifications.
type StoreProduct struct {
	ID             string     `json:"id"`
	Identifier     string     `json:"asin"`
	LastNotifiedAt *time.Time `json:"last_keepa_notification_at"`
}

// ProviderNotification records one push event received from the data provider.
// StoreProductID is empty when no tracked listing matched the identifier.
type ProviderNotification struct {
	ID             string          `json:"id"`
	StoreProductID string          `json:"store_product_id,omitempty"`
	Identifier     string          `json:"asin"`
	Marketplace    string          `json:"marketplace"`
	EventType      string          `json:"event_type"`
	Payload        json.RawMessage `json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
}

// ProviderCallLog records the outcome of one outbound provider call.
type ProviderCallLog struct {
	ID              int64     `json:"id"`
	Endpoint        string    `json:"endpoint"`
	RequestParams   string    `json:"request_params"`
	ResponseStatus  int       `json:"response_status"`
	TokensConsumed  int       `json:"tokens_consumed"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	CreatedAt       time.Time `json:"created_at"`
}
