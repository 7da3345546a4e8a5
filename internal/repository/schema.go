package repository

import "strings"

// schema is written once for both dialects; the {{...}} tokens are column
// types that differ between SQLite and PostgreSQL.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS provider_credentials (
		id TEXT PRIMARY KEY,
		api_key TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		daily_token_limit INTEGER NOT NULL,
		tokens_used_today INTEGER NOT NULL DEFAULT 0,
		last_reset_date DATE NOT NULL,
		created_at {{timestamp}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS exchange_rates (
		id TEXT PRIMARY KEY,
		from_currency TEXT NOT NULL,
		to_currency TEXT NOT NULL,
		rate {{decimal}} NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		source TEXT NOT NULL,
		created_at {{timestamp}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_exchange_rates_pair ON exchange_rates(from_currency, to_currency, is_active)`,
	`CREATE TABLE IF NOT EXISTS analysis_configs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		import_admin_cost_rate {{decimal}} NOT NULL,
		iva_tax_rate {{decimal}} NOT NULL,
		vat_retention_rate {{decimal}} NOT NULL,
		isr_retention_rate {{decimal}} NOT NULL,
		marketplace_fee_rate {{decimal}} NOT NULL,
		min_profit_margin {{decimal}} NOT NULL,
		target_profit_margin {{decimal}} NOT NULL,
		fixed_shipping_min {{decimal}} NOT NULL,
		fixed_shipping_max {{decimal}} NOT NULL,
		created_at {{timestamp}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		sku TEXT NOT NULL UNIQUE,
		external_id TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		category TEXT NOT NULL,
		created_at {{timestamp}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS marketplace_snapshots (
		id TEXT PRIMARY KEY,
		asin TEXT NOT NULL,
		marketplace TEXT NOT NULL,
		product_id TEXT,
		buy_box_price {{decimal}},
		current_price {{decimal}},
		new_price {{decimal}},
		avg_30_price {{decimal}},
		avg_90_price {{decimal}},
		title TEXT NOT NULL DEFAULT '',
		brand TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		sales_rank BIGINT,
		is_available BOOLEAN NOT NULL DEFAULT FALSE,
		raw_payload {{json}},
		sync_successful BOOLEAN NOT NULL DEFAULT FALSE,
		sync_error TEXT NOT NULL DEFAULT '',
		last_synced_at {{timestamp}} NOT NULL,
		UNIQUE (asin, marketplace)
	)`,
	`CREATE TABLE IF NOT EXISTS analysis_results (
		id TEXT PRIMARY KEY,
		asin TEXT NOT NULL,
		product_id TEXT NOT NULL DEFAULT '',
		origin_snapshot_id TEXT,
		destination_snapshot_id TEXT,
		config_id TEXT,
		origin_cost {{decimal}} NOT NULL,
		origin_currency TEXT NOT NULL,
		origin_cost_source TEXT NOT NULL,
		exchange_rate {{decimal}},
		origin_tax_multiplier {{decimal}},
		destination_current_price {{decimal}},
		destination_currency TEXT NOT NULL,
		cost_base {{decimal}},
		vat_retention {{decimal}},
		isr_retention {{decimal}},
		shipping_used {{decimal}},
		shipping_overridden BOOLEAN NOT NULL DEFAULT FALSE,
		break_even_price {{decimal}},
		is_available_at_origin BOOLEAN NOT NULL,
		is_feasible BOOLEAN NOT NULL,
		recommended_price {{decimal}},
		price_difference {{decimal}},
		profit_margin {{decimal}},
		confidence_score TEXT NOT NULL,
		brand_blocked BOOLEAN NOT NULL DEFAULT FALSE,
		notes TEXT NOT NULL DEFAULT '',
		created_at {{timestamp}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_results_asin ON analysis_results(asin)`,
	`CREATE INDEX IF NOT EXISTS idx_analysis_results_feasible ON analysis_results(is_feasible, profit_margin)`,
	`CREATE TABLE IF NOT EXISTS analysis_batches (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		asins {{json}} NOT NULL,
		status TEXT NOT NULL,
		total_count INTEGER NOT NULL,
		processed_count INTEGER NOT NULL DEFAULT 0,
		success_count INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		unavailable_count INTEGER NOT NULL DEFAULT 0,
		result_ids {{json}} NOT NULL,
		error_log {{json}} NOT NULL,
		started_at {{timestamp}},
		completed_at {{timestamp}},
		created_at {{timestamp}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS brand_restrictions (
		normalized_name TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		is_allowed BOOLEAN NOT NULL,
		updated_at {{timestamp}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS store_products (
		id TEXT PRIMARY KEY,
		asin TEXT NOT NULL UNIQUE,
		last_notified_at {{timestamp}}
	)`,
	`CREATE TABLE IF NOT EXISTS provider_notifications (
		id TEXT PRIMARY KEY,
		store_product_id TEXT REFERENCES store_products(id),
		asin TEXT NOT NULL,
		marketplace TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload {{json}},
		created_at {{timestamp}} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS provider_call_logs (
		id {{serial}},
		endpoint TEXT NOT NULL,
		request_params TEXT NOT NULL,
		response_status INTEGER NOT NULL,
		tokens_consumed INTEGER NOT NULL,
		error_message TEXT NOT NULL DEFAULT '',
		execution_time_ms BIGINT NOT NULL,
		created_at {{timestamp}} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_provider_call_logs_created ON provider_call_logs(created_at)`,
}

var columnTypes = map[Dialect]*strings.Replacer{
	DialectSQLite: strings.NewReplacer(
		"{{timestamp}}", "DATETIME",
		"{{decimal}}", "TEXT",
		"{{json}}", "TEXT",
		"{{serial}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
	),
	DialectPostgres: strings.NewReplacer(
		"{{timestamp}}", "TIMESTAMPTZ",
		"{{decimal}}", "NUMERIC(20, 8)",
		"{{json}}", "JSONB",
		"{{serial}}", "BIGSERIAL PRIMARY KEY",
	),
}

func schemaStatements(d Dialect) []string {
	r := columnTypes[d]
	out := make([]string, len(schema))
	for i, stmt := range schema {
		out[i] = r.Replace(stmt)
	}
	return out
}
