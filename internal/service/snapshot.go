package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"amza-pricing-api/internal/keepa"
	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/pricing"
	"amza-pricing-api/internal/quota"
	"amza-pricing-api/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	productNotFoundMessage = "Product not found in Keepa"
	maxTitleLength         = 500
	maxCategoryLength      = 100
	defaultCategory        = "Uncategorized"
)

// ProductClient queries the marketplace data provider.
type ProductClient interface {
	QueryProduct(ctx context.Context, apiKey, asin string, domain keepa.Domain) (*keepa.ProductResult, error)
}

// SnapshotService fetches marketplace data under the daily token budget and
// upserts the latest snapshot per (identifier, marketplace).
type SnapshotService struct {
	client      ProductClient
	budget      quota.Budget
	credentials repository.CredentialRepository
	snapshots   repository.SnapshotRepository
	products    repository.ProductRepository
	callLogs    repository.CallLogRepository
	now         func() time.Time
	log         *logrus.Entry
}

// NewSnapshotService creates a new snapshot service.
func NewSnapshotService(
	client ProductClient,
	budget quota.Budget,
	credentials repository.CredentialRepository,
	snapshots repository.SnapshotRepository,
	products repository.ProductRepository,
	callLogs repository.CallLogRepository,
) *SnapshotService {
	return &SnapshotService{
		client:      client,
		budget:      budget,
		credentials: credentials,
		snapshots:   snapshots,
		products:    products,
		callLogs:    callLogs,
		now:         time.Now,
		log:         logrus.WithField("component", "SnapshotService"),
	}
}

// FetchSnapshot syncs one identifier in one marketplace. A token is reserved
// before the provider call and stays consumed when the call fails.
func (s *SnapshotService) FetchSnapshot(ctx context.Context, identifier string, marketplace model.Marketplace) (*model.Snapshot, error) {
	identifier = NormalizeIdentifier(identifier)
	domain, ok := keepa.DomainFor(marketplace)
	if !ok {
		return nil, pricing.InvalidConfig("unknown marketplace %q", marketplace)
	}

	cred, err := s.credentials.ActiveCredential(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, pricing.DataProviderUnavailable("no active Keepa API key configured")
		}
		return nil, fmt.Errorf("failed to load provider credential: %w", err)
	}

	granted, err := s.budget.TryConsume(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve token: %w", err)
	}
	if !granted {
		usage, err := s.budget.Usage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read token usage: %w", err)
		}
		return nil, pricing.TokenLimitExceeded(usage.UsedToday, usage.DailyLimit)
	}

	start := time.Now()
	result, err := s.client.QueryProduct(ctx, cred.APIKey, identifier, domain)
	elapsed := time.Since(start)
	s.recordCall(ctx, identifier, domain, elapsed, err)

	if err != nil {
		s.log.WithFields(logrus.Fields{
			"asin":        identifier,
			"marketplace": marketplace,
			"duration_ms": elapsed.Milliseconds(),
		}).WithError(err).Warn("keepa query failed")
		return nil, pricing.DataProviderError(identifier, err)
	}

	s.log.WithFields(logrus.Fields{
		"asin":        identifier,
		"marketplace": marketplace,
		"products":    len(result.Products),
		"tokens_left": result.TokensLeft,
		"duration_ms": elapsed.Milliseconds(),
	}).Info("keepa query")

	snap := &model.Snapshot{
		Identifier:   identifier,
		Marketplace:  marketplace,
		LastSyncedAt: s.now().UTC(),
	}

	if len(result.Products) == 0 {
		snap.SyncError = productNotFoundMessage
		if err := s.snapshots.UpsertSnapshot(ctx, snap); err != nil {
			return nil, fmt.Errorf("failed to store snapshot: %w", err)
		}
		return snap, nil
	}

	fillSnapshot(snap, &result.Products[0])
	if len(result.Raw) > 0 {
		snap.RawPayload = result.Raw[0]
	}

	product, err := s.ensureProduct(ctx, identifier, snap)
	if err != nil {
		return nil, fmt.Errorf("failed to link product: %w", err)
	}
	snap.ProductID = product.ID

	if err := s.snapshots.UpsertSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("failed to store snapshot: %w", err)
	}
	return snap, nil
}

// fillSnapshot copies the latest price points and metadata of p into snap.
func fillSnapshot(snap *model.Snapshot, p *keepa.Product) {
	snap.BuyBoxPrice = latest(p.Series(keepa.SeriesBuyBoxShipping))
	snap.CurrentPrice = latest(p.Series(keepa.SeriesAmazon))
	snap.NewPrice = latest(p.Series(keepa.SeriesNew))
	if v, ok := p.Avg30(); ok {
		snap.Avg30Price = &v
	}
	if v, ok := p.Avg90(); ok {
		snap.Avg90Price = &v
	}
	if rank, ok := p.CurrentSalesRank(); ok {
		snap.SalesRank = &rank
	}
	snap.Title = p.Title
	snap.Brand = p.Brand
	snap.Category = p.RootCategory()
	snap.IsAvailable = snap.CurrentPrice != nil || snap.BuyBoxPrice != nil
	snap.SyncSuccessful = true
}

func latest(s keepa.PriceSeries) *decimal.Decimal {
	v, ok := s.Latest()
	if !ok {
		return nil
	}
	return &v
}

// ensureProduct links the snapshot to the catalog product, creating one
// with zero inventory when the identifier is unknown.
func (s *SnapshotService) ensureProduct(ctx context.Context, identifier string, snap *model.Snapshot) (*model.Product, error) {
	p, err := s.products.GetProductByExternalID(ctx, identifier)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	title := snap.Title
	if title == "" {
		title = "Product " + identifier
	}
	category := snap.Category
	if category == "" {
		category = defaultCategory
	}
	p = &model.Product{
		SKU:        "KEEPA-" + identifier,
		ExternalID: identifier,
		Title:      truncate(title, maxTitleLength),
		Category:   truncate(category, maxCategoryLength),
	}
	if err := s.products.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"asin": identifier, "product_id": p.ID}).Info("catalog product created")
	return p, nil
}

func (s *SnapshotService) recordCall(ctx context.Context, identifier string, domain keepa.Domain, elapsed time.Duration, callErr error) {
	params := url.Values{}
	params.Set("asin", identifier)
	params.Set("domain", fmt.Sprint(int(domain)))

	entry := &model.ProviderCallLog{
		Endpoint:        "product",
		RequestParams:   params.Encode(),
		ResponseStatus:  200,
		TokensConsumed:  1,
		ExecutionTimeMs: elapsed.Milliseconds(),
	}
	if callErr != nil {
		entry.ResponseStatus = 500
		var statusErr *keepa.StatusError
		if errors.As(callErr, &statusErr) {
			entry.ResponseStatus = statusErr.StatusCode
		}
		entry.ErrorMessage = callErr.Error()
	}

	if err := s.callLogs.InsertCallLog(ctx, entry); err != nil {
		s.log.WithError(err).Warn("failed to write call log")
	}
}

// NormalizeIdentifier trims and upper-cases an ASIN.
func NormalizeIdentifier(identifier string) string {
	return strings.ToUpper(strings.TrimSpace(identifier))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
