package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"amza-pricing-api/internal/model"
	"amza-pricing-api/pkg/uid"

	"github.com/shopspring/decimal"
)

const resultColumns = `id, asin, product_id, origin_snapshot_id, destination_snapshot_id, config_id,
	origin_cost, origin_currency, origin_cost_source, exchange_rate, origin_tax_multiplier,
	destination_current_price, destination_currency, cost_base, vat_retention, isr_retention,
	shipping_used, shipping_overridden, break_even_price, is_available_at_origin, is_feasible, recommended_price,
	price_difference, profit_margin, confidence_score, brand_blocked, notes, created_at`

// CreateResult inserts an analysis result. Results are never updated.
func (s *SQLStore) CreateResult(ctx context.Context, r *model.AnalysisResult) error {
	if r.ID == "" {
		r.ID = uid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	_, err := s.exec(ctx, s.db, `
		INSERT INTO analysis_results (`+resultColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Identifier, r.ProductID,
		nullString(r.OriginSnapshotID), nullString(r.DestinationSnapshotID), nullString(r.ConfigID),
		r.OriginCost.String(), r.OriginCurrency, r.OriginCostSource,
		nullDecimal(r.ExchangeRate), nullDecimal(r.OriginTaxMultiplier),
		nullDecimal(r.DestinationCurrentPrice), r.DestinationCurrency,
		nullDecimal(r.CostBase), nullDecimal(r.VATRetention), nullDecimal(r.ISRRetention),
		nullDecimal(r.ShippingUsed), r.ShippingOverridden, nullDecimal(r.BreakEvenPrice),
		r.IsAvailableAtOrigin, r.IsFeasible, nullDecimal(r.RecommendedPrice),
		nullDecimal(r.PriceDifference), nullDecimal(r.ProfitMargin),
		string(r.ConfidenceScore), r.BrandBlocked, r.Notes, r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert result: %w", err)
	}
	return nil
}

func scanResult(row rowScanner) (*model.AnalysisResult, error) {
	var (
		r                                          model.AnalysisResult
		originSnap, destSnap, configID             sql.NullString
		rate, multiplier, destPrice, costBase      decimal.NullDecimal
		vat, isr, shipping, breakEven, recommended decimal.NullDecimal
		difference, margin                         decimal.NullDecimal
		confidence                                 string
	)
	err := row.Scan(
		&r.ID, &r.Identifier, &r.ProductID, &originSnap, &destSnap, &configID,
		&r.OriginCost, &r.OriginCurrency, &r.OriginCostSource, &rate, &multiplier,
		&destPrice, &r.DestinationCurrency, &costBase, &vat, &isr,
		&shipping, &r.ShippingOverridden, &breakEven, &r.IsAvailableAtOrigin, &r.IsFeasible, &recommended,
		&difference, &margin, &confidence, &r.BrandBlocked, &r.Notes, &r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.OriginSnapshotID = originSnap.String
	r.DestinationSnapshotID = destSnap.String
	r.ConfigID = configID.String
	r.ExchangeRate = decimalPtr(rate)
	r.OriginTaxMultiplier = decimalPtr(multiplier)
	r.DestinationCurrentPrice = decimalPtr(destPrice)
	r.CostBase = decimalPtr(costBase)
	r.VATRetention = decimalPtr(vat)
	r.ISRRetention = decimalPtr(isr)
	r.ShippingUsed = decimalPtr(shipping)
	r.BreakEvenPrice = decimalPtr(breakEven)
	r.RecommendedPrice = decimalPtr(recommended)
	r.PriceDifference = decimalPtr(difference)
	r.ProfitMargin = decimalPtr(margin)
	r.ConfidenceScore = model.Confidence(confidence)
	return &r, nil
}

// GetResult returns a result by id.
func (s *SQLStore) GetResult(ctx context.Context, id string) (*model.AnalysisResult, error) {
	r, err := scanResult(s.queryRow(ctx, s.db, `SELECT `+resultColumns+` FROM analysis_results WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", notFound(err))
	}
	return r, nil
}

// numeric wraps a decimal column for comparison; SQLite stores decimals as text.
func (s *SQLStore) numeric(column string) string {
	if s.dialect == DialectSQLite {
		return "CAST(" + column + " AS REAL)"
	}
	return column
}

// ListResults returns one page of results matching the filter.
func (s *SQLStore) ListResults(ctx context.Context, filter model.ResultFilter) ([]model.AnalysisResult, int64, error) {
	var (
		where []string
		args  []any
	)
	order := "created_at DESC"
	if filter.FeasibleOnly {
		where = append(where, "is_feasible = ?")
		args = append(args, true)
		order = s.numeric("profit_margin") + " DESC, created_at DESC"
	}
	if filter.MinMargin != nil {
		where = append(where, s.numeric("profit_margin")+" >= ?")
		args = append(args, filter.MinMargin.String())
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.queryRow(ctx, s.db, `SELECT COUNT(*) FROM analysis_results`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count results: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	pageArgs := append(append([]any{}, args...), limit, filter.Offset)

	rows, err := s.query(ctx, s.db,
		`SELECT `+resultColumns+` FROM analysis_results`+clause+` ORDER BY `+order+` LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := []model.AnalysisResult{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, *r)
	}
	return results, total, rows.Err()
}

const batchColumns = `id, name, asins, status, total_count, processed_count, success_count,
	failure_count, unavailable_count, result_ids, error_log, started_at, completed_at, created_at`

func batchJSON(b *model.AnalysisBatch) (identifiers, resultIDs, errorLog string, err error) {
	marshal := func(v any) (string, error) {
		data, err := json.Marshal(v)
		return string(data), err
	}
	if b.Identifiers == nil {
		b.Identifiers = []string{}
	}
	if b.ResultIDs == nil {
		b.ResultIDs = []string{}
	}
	if b.ErrorLog == nil {
		b.ErrorLog = map[string]string{}
	}
	if identifiers, err = marshal(b.Identifiers); err != nil {
		return
	}
	if resultIDs, err = marshal(b.ResultIDs); err != nil {
		return
	}
	errorLog, err = marshal(b.ErrorLog)
	return
}

// CreateBatch inserts a batch.
func (s *SQLStore) CreateBatch(ctx context.Context, b *model.AnalysisBatch) error {
	if b.ID == "" {
		b.ID = uid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	identifiers, resultIDs, errorLog, err := batchJSON(b)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	_, err = s.exec(ctx, s.db, `
		INSERT INTO analysis_batches (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Name, identifiers, string(b.Status), b.TotalCount, b.ProcessedCount, b.SuccessCount,
		b.FailureCount, b.UnavailableCount, resultIDs, errorLog,
		nullTime(b.StartedAt), nullTime(b.CompletedAt), b.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

// UpdateBatch persists the batch's progress.
func (s *SQLStore) UpdateBatch(ctx context.Context, b *model.AnalysisBatch) error {
	_, resultIDs, errorLog, err := batchJSON(b)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	res, err := s.exec(ctx, s.db, `
		UPDATE analysis_batches SET
			status = ?, processed_count = ?, success_count = ?, failure_count = ?,
			unavailable_count = ?, result_ids = ?, error_log = ?, started_at = ?, completed_at = ?
		WHERE id = ?`,
		string(b.Status), b.ProcessedCount, b.SuccessCount, b.FailureCount,
		b.UnavailableCount, resultIDs, errorLog, nullTime(b.StartedAt), nullTime(b.CompletedAt), b.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update batch: %w", ErrNotFound)
	}
	return nil
}

// GetBatch returns a batch by id.
func (s *SQLStore) GetBatch(ctx context.Context, id string) (*model.AnalysisBatch, error) {
	var (
		b                                model.AnalysisBatch
		status                           string
		identifiers, resultIDs, errorLog []byte
		startedAt, completedAt           sql.NullTime
	)
	err := s.queryRow(ctx, s.db, `SELECT `+batchColumns+` FROM analysis_batches WHERE id = ?`, id).Scan(
		&b.ID, &b.Name, &identifiers, &status, &b.TotalCount, &b.ProcessedCount, &b.SuccessCount,
		&b.FailureCount, &b.UnavailableCount, &resultIDs, &errorLog, &startedAt, &completedAt, &b.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", notFound(err))
	}

	b.Status = model.BatchStatus(status)
	b.StartedAt = timePtr(startedAt)
	b.CompletedAt = timePtr(completedAt)
	if err := json.Unmarshal(identifiers, &b.Identifiers); err != nil {
		return nil, fmt.Errorf("failed to decode batch asins: %w", err)
	}
	if err := json.Unmarshal(resultIDs, &b.ResultIDs); err != nil {
		return nil, fmt.Errorf("failed to decode batch results: %w", err)
	}
	if err := json.Unmarshal(errorLog, &b.ErrorLog); err != nil {
		return nil, fmt.Errorf("failed to decode batch error log: %w", err)
	}
	return &b, nil
}
