package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"amza-pricing-api/internal/model"
	"amza-pricing-api/pkg/uid"

	"github.com/sirupsen/logrus"
)

// GetProductByExternalID finds a catalog product by its marketplace identifier.
func (s *SQLStore) GetProductByExternalID(ctx context.Context, externalID string) (*model.Product, error) {
	var p model.Product
	err := s.queryRow(ctx, s.db, `
		SELECT id, sku, external_id, title, category, created_at
		FROM products WHERE external_id = ?`, externalID).
		Scan(&p.ID, &p.SKU, &p.ExternalID, &p.Title, &p.Category, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", notFound(err))
	}
	return &p, nil
}

// CreateProduct inserts a catalog product.
func (s *SQLStore) CreateProduct(ctx context.Context, p *model.Product) error {
	if p.ID == "" {
		p.ID = uid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, s.db, `
		INSERT INTO products (id, sku, external_id, title, category, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.SKU, p.ExternalID, p.Title, p.Category, p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert product: %w", err)
	}
	return nil
}

// GetBrand finds a brand restriction by normalized name.
func (s *SQLStore) GetBrand(ctx context.Context, normalizedName string) (*model.BrandRestriction, error) {
	var b model.BrandRestriction
	err := s.queryRow(ctx, s.db, `
		SELECT name, normalized_name, is_allowed, updated_at
		FROM brand_restrictions WHERE normalized_name = ?`, normalizedName).
		Scan(&b.Name, &b.NormalizedName, &b.IsAllowed, &b.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get brand: %w", notFound(err))
	}
	return &b, nil
}

// UpsertBrand inserts or updates a brand restriction.
func (s *SQLStore) UpsertBrand(ctx context.Context, b *model.BrandRestriction) error {
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = time.Now().UTC()
	}
	_, err := s.exec(ctx, s.db, `
		INSERT INTO brand_restrictions (normalized_name, name, is_allowed, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (normalized_name) DO UPDATE SET
			name = excluded.name,
			is_allowed = excluded.is_allowed,
			updated_at = excluded.updated_at`,
		b.NormalizedName, b.Name, b.IsAllowed, b.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert brand: %w", err)
	}
	return nil
}

// ListBrands returns every brand restriction ordered by name.
func (s *SQLStore) ListBrands(ctx context.Context) ([]model.BrandRestriction, error) {
	rows, err := s.query(ctx, s.db, `
		SELECT name, normalized_name, is_allowed, updated_at
		FROM brand_restrictions ORDER BY normalized_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	defer rows.Close()

	brands := []model.BrandRestriction{}
	for rows.Next() {
		var b model.BrandRestriction
		if err := rows.Scan(&b.Name, &b.NormalizedName, &b.IsAllowed, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan brand: %w", err)
		}
		brands = append(brands, b)
	}
	return brands, rows.Err()
}

func scanStoreProduct(row rowScanner) (*model.StoreProduct, error) {
	var (
		p            model.StoreProduct
		lastNotified sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.Identifier, &lastNotified); err != nil {
		return nil, err
	}
	p.LastNotifiedAt = timePtr(lastNotified)
	return &p, nil
}

// FindStoreProduct finds the tracked listing for an identifier.
func (s *SQLStore) FindStoreProduct(ctx context.Context, identifier string) (*model.StoreProduct, error) {
	p, err := scanStoreProduct(s.queryRow(ctx, s.db,
		`SELECT id, asin, last_notified_at FROM store_products WHERE asin = ?`, identifier))
	if err != nil {
		return nil, fmt.Errorf("failed to get store product: %w", notFound(err))
	}
	return p, nil
}

// EnsureStoreProduct returns the tracked listing for an identifier, creating it if needed.
func (s *SQLStore) EnsureStoreProduct(ctx context.Context, identifier string) (*model.StoreProduct, error) {
	_, err := s.exec(ctx, s.db,
		`INSERT INTO store_products (id, asin) VALUES (?, ?) ON CONFLICT (asin) DO NOTHING`,
		uid.New(), identifier)
	if err != nil {
		return nil, fmt.Errorf("failed to insert store product: %w", err)
	}
	return s.FindStoreProduct(ctx, identifier)
}

// TouchStoreProduct stamps the last notification time of a tracked listing.
func (s *SQLStore) TouchStoreProduct(ctx context.Context, id string, at time.Time) error {
	_, err := s.exec(ctx, s.db, `UPDATE store_products SET last_notified_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to touch store product: %w", err)
	}
	return nil
}

// CreateNotification inserts a received push notification.
func (s *SQLStore) CreateNotification(ctx context.Context, n *model.ProviderNotification) error {
	if n.ID == "" {
		n.ID = uid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	var payload any
	if len(n.Payload) > 0 {
		payload = string(n.Payload)
	}
	_, err := s.exec(ctx, s.db, `
		INSERT INTO provider_notifications (id, store_product_id, asin, marketplace, event_type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.ID, nullString(n.StoreProductID), n.Identifier, n.Marketplace, n.EventType, payload, n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// InsertCallLog records one outbound provider call.
func (s *SQLStore) InsertCallLog(ctx context.Context, l *model.ProviderCallLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	err := s.queryRow(ctx, s.db, `
		INSERT INTO provider_call_logs
			(endpoint, request_params, response_status, tokens_consumed, error_message, execution_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		l.Endpoint, l.RequestParams, l.ResponseStatus, l.TokensConsumed, l.ErrorMessage,
		l.ExecutionTimeMs, l.CreatedAt.UTC()).Scan(&l.ID)
	if err != nil {
		return fmt.Errorf("failed to insert call log: %w", err)
	}
	return nil
}

// ListCallLogs returns paginated call logs.
func (s *SQLStore) ListCallLogs(ctx context.Context, limit, offset int) ([]model.ProviderCallLog, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM provider_call_logs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count call logs: %w", err)
	}

	rows, err := s.query(ctx, s.db, `
		SELECT id, endpoint, request_params, response_status, tokens_consumed,
			COALESCE(error_message, ''), execution_time_ms, created_at
		FROM provider_call_logs
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list call logs: %w", err)
	}
	defer rows.Close()

	logs := []model.ProviderCallLog{}
	for rows.Next() {
		var l model.ProviderCallLog
		if err := rows.Scan(&l.ID, &l.Endpoint, &l.RequestParams, &l.ResponseStatus, &l.TokensConsumed,
			&l.ErrorMessage, &l.ExecutionTimeMs, &l.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan call log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, total, rows.Err()
}

// DeleteCallLogsBefore deletes call logs older than cutoff.
func (s *SQLStore) DeleteCallLogsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.exec(ctx, s.db, `DELETE FROM provider_call_logs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete call logs: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if deleted > 0 {
		s.log.WithFields(logrus.Fields{"deleted": deleted, "cutoff": cutoff}).Info("cleaned up provider call logs")
	}
	return deleted, nil
}
