package repository

import (
	"context"
	"database/sql"
	"fmt"

	"amza-pricing-api/internal/model"
	"amza-pricing-api/pkg/uid"

	"github.com/shopspring/decimal"
)

const snapshotColumns = `id, asin, marketplace, product_id, buy_box_price, current_price, new_price,
	avg_30_price, avg_90_price, title, brand, category, sales_rank, is_available, raw_payload,
	sync_successful, sync_error, last_synced_at`

// UpsertSnapshot inserts or updates the snapshot of (identifier, marketplace) using ON CONFLICT.
func (s *SQLStore) UpsertSnapshot(ctx context.Context, snap *model.Snapshot) error {
	if snap.ID == "" {
		snap.ID = uid.New()
	}

	var raw any
	if len(snap.RawPayload) > 0 {
		raw = string(snap.RawPayload)
	}
	var salesRank any
	if snap.SalesRank != nil {
		salesRank = *snap.SalesRank
	}

	query := `
		INSERT INTO marketplace_snapshots (` + snapshotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (asin, marketplace) DO UPDATE SET
			product_id = COALESCE(excluded.product_id, marketplace_snapshots.product_id),
			buy_box_price = excluded.buy_box_price,
			current_price = excluded.current_price,
			new_price = excluded.new_price,
			avg_30_price = excluded.avg_30_price,
			avg_90_price = excluded.avg_90_price,
			title = excluded.title,
			brand = excluded.brand,
			category = excluded.category,
			sales_rank = excluded.sales_rank,
			is_available = excluded.is_available,
			raw_payload = excluded.raw_payload,
			sync_successful = excluded.sync_successful,
			sync_error = excluded.sync_error,
			last_synced_at = excluded.last_synced_at
		RETURNING id`

	err := s.queryRow(ctx, s.db, query,
		snap.ID, snap.Identifier, string(snap.Marketplace), nullString(snap.ProductID),
		nullDecimal(snap.BuyBoxPrice), nullDecimal(snap.CurrentPrice), nullDecimal(snap.NewPrice),
		nullDecimal(snap.Avg30Price), nullDecimal(snap.Avg90Price),
		snap.Title, snap.Brand, snap.Category, salesRank, snap.IsAvailable, raw,
		snap.SyncSuccessful, snap.SyncError, snap.LastSyncedAt.UTC(),
	).Scan(&snap.ID)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// GetSnapshot retrieves the snapshot of (identifier, marketplace).
func (s *SQLStore) GetSnapshot(ctx context.Context, identifier string, marketplace model.Marketplace) (*model.Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM marketplace_snapshots WHERE asin = ? AND marketplace = ?`

	snap, err := scanSnapshot(s.queryRow(ctx, s.db, query, identifier, string(marketplace)))
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", notFound(err))
	}
	return snap, nil
}

func scanSnapshot(row *sql.Row) (*model.Snapshot, error) {
	var (
		snap                                model.Snapshot
		marketplace                         string
		productID                           sql.NullString
		buyBox, current, newPrice, a30, a90 decimal.NullDecimal
		salesRank                           sql.NullInt64
		raw                                 []byte
	)
	err := row.Scan(
		&snap.ID, &snap.Identifier, &marketplace, &productID,
		&buyBox, &current, &newPrice, &a30, &a90,
		&snap.Title, &snap.Brand, &snap.Category, &salesRank, &snap.IsAvailable, &raw,
		&snap.SyncSuccessful, &snap.SyncError, &snap.LastSyncedAt,
	)
	if err != nil {
		return nil, err
	}

	snap.Marketplace = model.Marketplace(marketplace)
	snap.ProductID = productID.String
	snap.BuyBoxPrice = decimalPtr(buyBox)
	snap.CurrentPrice = decimalPtr(current)
	snap.NewPrice = decimalPtr(newPrice)
	snap.Avg30Price = decimalPtr(a30)
	snap.Avg90Price = decimalPtr(a90)
	if salesRank.Valid {
		v := salesRank.Int64
		snap.SalesRank = &v
	}
	if len(raw) > 0 {
		snap.RawPayload = raw
	}
	return &snap, nil
}
