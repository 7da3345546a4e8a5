package repository

import (
	"context"
	"errors"
	"time"

	"amza-pricing-api/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// SnapshotRepository stores the latest marketplace snapshot per (identifier, marketplace).
type SnapshotRepository interface {
	// UpsertSnapshot inserts or replaces the snapshot and sets s.ID to the stored row's id.
	UpsertSnapshot(ctx context.Context, s *model.Snapshot) error

	GetSnapshot(ctx context.Context, identifier string, marketplace model.Marketplace) (*model.Snapshot, error)
}

// ConfigRepository provides analysis configs.
type ConfigRepository interface {
	// ActiveConfig returns the single active config, or ErrNotFound.
	ActiveConfig(ctx context.Context) (*model.AnalysisConfig, error)
	GetConfig(ctx context.Context, id string) (*model.AnalysisConfig, error)
	ListConfigs(ctx context.Context) ([]model.AnalysisConfig, error)

	// CreateConfig stores c. When c.IsActive, every other config is
	// deactivated in the same transaction.
	CreateConfig(ctx context.Context, c *model.AnalysisConfig) error

	// ActivateConfig makes id the only active config.
	ActivateConfig(ctx context.Context, id string) error
}

// RateRepository provides exchange rates.
type RateRepository interface {
	// ActiveRate returns the active rate for the pair, or ErrNotFound.
	ActiveRate(ctx context.Context, from, to string) (*model.ExchangeRate, error)

	// CreateRate stores r. When r.IsActive, the other rates of the same pair
	// are deactivated in the same transaction.
	CreateRate(ctx context.Context, r *model.ExchangeRate) error

	// ActivateRate makes id the only active rate of its pair.
	ActivateRate(ctx context.Context, id string) error
}

// ResultRepository stores immutable analysis results.
type ResultRepository interface {
	CreateResult(ctx context.Context, r *model.AnalysisResult) error
	GetResult(ctx context.Context, id string) (*model.AnalysisResult, error)

	// ListResults returns one page of results, newest first, and the total match count.
	ListResults(ctx context.Context, filter model.ResultFilter) ([]model.AnalysisResult, int64, error)
}

// BatchRepository stores analysis batches.
type BatchRepository interface {
	CreateBatch(ctx context.Context, b *model.AnalysisBatch) error
	UpdateBatch(ctx context.Context, b *model.AnalysisBatch) error
	GetBatch(ctx context.Context, id string) (*model.AnalysisBatch, error)
}

// ProductRepository is the canonical product catalog.
type ProductRepository interface {
	GetProductByExternalID(ctx context.Context, externalID string) (*model.Product, error)
	CreateProduct(ctx context.Context, p *model.Product) error
}

// BrandRepository stores brand restrictions keyed by normalized name.
type BrandRepository interface {
	GetBrand(ctx context.Context, normalizedName string) (*model.BrandRestriction, error)
	UpsertBrand(ctx context.Context, b *model.BrandRestriction) error
	ListBrands(ctx context.Context) ([]model.BrandRestriction, error)
}

// NotificationRepository stores tracked listings and the push events received for them.
type NotificationRepository interface {
	FindStoreProduct(ctx context.Context, identifier string) (*model.StoreProduct, error)
	EnsureStoreProduct(ctx context.Context, identifier string) (*model.StoreProduct, error)
	TouchStoreProduct(ctx context.Context, id string, at time.Time) error
	CreateNotification(ctx context.Context, n *model.ProviderNotification) error
}

// CallLogRepository stores outbound provider call logs.
type CallLogRepository interface {
	InsertCallLog(ctx context.Context, l *model.ProviderCallLog) error

	// ListCallLogs returns one page of logs, newest first, and the total count.
	ListCallLogs(ctx context.Context, limit, offset int) ([]model.ProviderCallLog, int64, error)

	// DeleteCallLogsBefore removes logs created before cutoff and returns the count.
	DeleteCallLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CredentialRepository provides the provider API credential.
type CredentialRepository interface {
	// ActiveCredential returns the active credential, or ErrNotFound.
	ActiveCredential(ctx context.Context) (*model.ProviderCredential, error)

	// EnsureCredential stores c as the active credential unless an active
	// credential with the same API key exists.
	EnsureCredential(ctx context.Context, c *model.ProviderCredential) error
}

// Store is the full analysis store.
type Store interface {
	SnapshotRepository
	ConfigRepository
	RateRepository
	ResultRepository
	BatchRepository
	ProductRepository
	BrandRepository
	NotificationRepository
	CallLogRepository
	CredentialRepository

	// GetStats returns statistics about the store.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// Ping checks the connection.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
