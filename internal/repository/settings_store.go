package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"amza-pricing-api/internal/model"
	"amza-pricing-api/pkg/uid"
)

const configColumns = `id, name, is_active, import_admin_cost_rate, iva_tax_rate, vat_retention_rate,
	isr_retention_rate, marketplace_fee_rate, min_profit_margin, target_profit_margin,
	fixed_shipping_min, fixed_shipping_max, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConfig(row rowScanner) (*model.AnalysisConfig, error) {
	var c model.AnalysisConfig
	err := row.Scan(
		&c.ID, &c.Name, &c.IsActive,
		&c.ImportAdminCostRate, &c.IVATaxRate, &c.VATRetentionRate, &c.ISRRetentionRate,
		&c.MarketplaceFeeRate, &c.MinProfitMargin, &c.TargetProfitMargin,
		&c.FixedShippingMin, &c.FixedShippingMax, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ActiveConfig returns the active analysis config.
func (s *SQLStore) ActiveConfig(ctx context.Context) (*model.AnalysisConfig, error) {
	query := `SELECT ` + configColumns + ` FROM analysis_configs WHERE is_active = ? ORDER BY created_at DESC LIMIT 1`
	c, err := scanConfig(s.queryRow(ctx, s.db, query, true))
	if err != nil {
		return nil, fmt.Errorf("failed to get active config: %w", notFound(err))
	}
	return c, nil
}

// GetConfig returns a config by id.
func (s *SQLStore) GetConfig(ctx context.Context, id string) (*model.AnalysisConfig, error) {
	query := `SELECT ` + configColumns + ` FROM analysis_configs WHERE id = ?`
	c, err := scanConfig(s.queryRow(ctx, s.db, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", notFound(err))
	}
	return c, nil
}

// ListConfigs returns every config, newest first.
func (s *SQLStore) ListConfigs(ctx context.Context) ([]model.AnalysisConfig, error) {
	rows, err := s.query(ctx, s.db, `SELECT `+configColumns+` FROM analysis_configs ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	defer rows.Close()

	configs := []model.AnalysisConfig{}
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		configs = append(configs, *c)
	}
	return configs, rows.Err()
}

// CreateConfig inserts a config, clearing the other active flags when it is active.
func (s *SQLStore) CreateConfig(ctx context.Context, c *model.AnalysisConfig) error {
	if c.ID == "" {
		c.ID = uid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if c.IsActive {
			if _, err := s.exec(ctx, tx, `UPDATE analysis_configs SET is_active = ? WHERE is_active = ?`, false, true); err != nil {
				return fmt.Errorf("failed to deactivate configs: %w", err)
			}
		}
		_, err := s.exec(ctx, tx, `
			INSERT INTO analysis_configs (`+configColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.Name, c.IsActive,
			c.ImportAdminCostRate.String(), c.IVATaxRate.String(), c.VATRetentionRate.String(),
			c.ISRRetentionRate.String(), c.MarketplaceFeeRate.String(), c.MinProfitMargin.String(),
			c.TargetProfitMargin.String(), c.FixedShippingMin.String(), c.FixedShippingMax.String(),
			c.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert config: %w", err)
		}
		return nil
	})
}

// ActivateConfig makes id the only active config.
func (s *SQLStore) ActivateConfig(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := s.queryRow(ctx, tx, `SELECT 1 FROM analysis_configs WHERE id = ?`, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to find config: %w", notFound(err))
		}
		if _, err := s.exec(ctx, tx, `UPDATE analysis_configs SET is_active = (id = ?)`, id); err != nil {
			return fmt.Errorf("failed to activate config: %w", err)
		}
		return nil
	})
}

const rateColumns = `id, from_currency, to_currency, rate, is_active, source, created_at`

func scanRate(row rowScanner) (*model.ExchangeRate, error) {
	var r model.ExchangeRate
	if err := row.Scan(&r.ID, &r.FromCurrency, &r.ToCurrency, &r.Rate, &r.IsActive, &r.Source, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// ActiveRate returns the active rate for the currency pair.
func (s *SQLStore) ActiveRate(ctx context.Context, from, to string) (*model.ExchangeRate, error) {
	query := `SELECT ` + rateColumns + ` FROM exchange_rates
		WHERE from_currency = ? AND to_currency = ? AND is_active = ?
		ORDER BY created_at DESC LIMIT 1`
	r, err := scanRate(s.queryRow(ctx, s.db, query, from, to, true))
	if err != nil {
		return nil, fmt.Errorf("failed to get active rate: %w", notFound(err))
	}
	return r, nil
}

// CreateRate inserts a rate, clearing the pair's other active flags when it is active.
func (s *SQLStore) CreateRate(ctx context.Context, r *model.ExchangeRate) error {
	if r.ID == "" {
		r.ID = uid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.Source == "" {
		r.Source = model.RateSourceManual
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if r.IsActive {
			_, err := s.exec(ctx, tx, `
				UPDATE exchange_rates SET is_active = ?
				WHERE from_currency = ? AND to_currency = ? AND is_active = ?`,
				false, r.FromCurrency, r.ToCurrency, true)
			if err != nil {
				return fmt.Errorf("failed to deactivate rates: %w", err)
			}
		}
		_, err := s.exec(ctx, tx, `INSERT INTO exchange_rates (`+rateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, r.FromCurrency, r.ToCurrency, r.Rate.String(), r.IsActive, r.Source, r.CreatedAt.UTC())
		if err != nil {
			return fmt.Errorf("failed to insert rate: %w", err)
		}
		return nil
	})
}

// ActivateRate makes id the only active rate of its pair.
func (s *SQLStore) ActivateRate(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var from, to string
		err := s.queryRow(ctx, tx, `SELECT from_currency, to_currency FROM exchange_rates WHERE id = ?`, id).Scan(&from, &to)
		if err != nil {
			return fmt.Errorf("failed to find rate: %w", notFound(err))
		}
		_, err = s.exec(ctx, tx, `
			UPDATE exchange_rates SET is_active = (id = ?)
			WHERE from_currency = ? AND to_currency = ?`, id, from, to)
		if err != nil {
			return fmt.Errorf("failed to activate rate: %w", err)
		}
		return nil
	})
}

const credentialColumns = `id, api_key, is_active, daily_token_limit, tokens_used_today, last_reset_date`

func scanCredential(row rowScanner) (*model.ProviderCredential, error) {
	var (
		c         model.ProviderCredential
		lastReset any
	)
	if err := row.Scan(&c.ID, &c.APIKey, &c.IsActive, &c.DailyTokenLimit, &c.TokensUsedToday, &lastReset); err != nil {
		return nil, err
	}
	d, err := parseDate(lastReset)
	if err != nil {
		return nil, err
	}
	c.LastResetDate = d
	return &c, nil
}

// ActiveCredential returns the active provider credential.
func (s *SQLStore) ActiveCredential(ctx context.Context) (*model.ProviderCredential, error) {
	query := `SELECT ` + credentialColumns + ` FROM provider_credentials WHERE is_active = ? ORDER BY created_at DESC LIMIT 1`
	c, err := scanCredential(s.queryRow(ctx, s.db, query, true))
	if err != nil {
		return nil, fmt.Errorf("failed to get active credential: %w", notFound(err))
	}
	return c, nil
}

// EnsureCredential seeds the active credential. An existing active credential
// with the same key keeps its usage counters; its daily limit is updated.
func (s *SQLStore) EnsureCredential(ctx context.Context, c *model.ProviderCredential) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := scanCredential(s.queryRow(ctx, tx,
			`SELECT `+credentialColumns+` FROM provider_credentials WHERE api_key = ? AND is_active = ?`, c.APIKey, true))
		if err == nil {
			c.ID = existing.ID
			_, err = s.exec(ctx, tx, `UPDATE provider_credentials SET daily_token_limit = ? WHERE id = ?`, c.DailyTokenLimit, existing.ID)
			return err
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up credential: %w", err)
		}

		if c.ID == "" {
			c.ID = uid.New()
		}
		if c.LastResetDate.IsZero() {
			c.LastResetDate = time.Now().UTC()
		}
		c.IsActive = true

		if _, err := s.exec(ctx, tx, `UPDATE provider_credentials SET is_active = ?`, false); err != nil {
			return fmt.Errorf("failed to deactivate credentials: %w", err)
		}
		_, err = s.exec(ctx, tx, `
			INSERT INTO provider_credentials (`+credentialColumns+`, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.APIKey, true, c.DailyTokenLimit, c.TokensUsedToday,
			c.LastResetDate.Format(dateLayout), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to insert credential: %w", err)
		}
		return nil
	})
}
