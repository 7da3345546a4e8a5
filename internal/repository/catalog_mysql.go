package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"amza-pricing-api/internal/model"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// MySQLProductRepository implements ProductRepository on the external
// MySQL product catalog.
type MySQLProductRepository struct {
	db *sql.DB
}

// NewMySQLProductRepository creates a new MySQL catalog repository.
func NewMySQLProductRepository(db *sql.DB) *MySQLProductRepository {
	return &MySQLProductRepository{db: db}
}

// OpenMySQL opens the catalog connection pool from a go-sql-driver DSN.
func OpenMySQL(dsn string) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid MySQL DSN: %w", err)
	}
	cfg.ParseTime = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	logrus.WithFields(logrus.Fields{"component": "MySQLProductRepository", "db": cfg.DBName}).Info("catalog connected")
	return db, nil
}

// GetProductByExternalID finds a catalog product by its marketplace identifier.
func (r *MySQLProductRepository) GetProductByExternalID(ctx context.Context, externalID string) (*model.Product, error) {
	query := `
		SELECT CAST(id AS CHAR), sku, external_id, title, COALESCE(category, ''), created_at
		FROM products
		WHERE external_id = ?
		LIMIT 1`

	var p model.Product
	err := r.db.QueryRowContext(ctx, query, externalID).Scan(&p.ID, &p.SKU, &p.ExternalID, &p.Title, &p.Category, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("product not found for external id %s: %w", externalID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

// CreateProduct inserts a product with zero inventory. A duplicate SKU
// resolves to the existing row.
func (r *MySQLProductRepository) CreateProduct(ctx context.Context, p *model.Product) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO products (sku, external_id, title, description, category, inventory_quantity, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)`

	res, err := r.db.ExecContext(ctx, query, p.SKU, p.ExternalID, p.Title, p.Title, p.Category, p.CreatedAt)
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == 1062 {
			existing, getErr := r.GetProductByExternalID(ctx, p.ExternalID)
			if getErr != nil {
				return fmt.Errorf("failed to insert product: %w", err)
			}
			*p = *existing
			return nil
		}
		return fmt.Errorf("failed to insert product: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read product id: %w", err)
	}
	p.ID = strconv.FormatInt(id, 10)
	return nil
}

// Ensure MySQLProductRepository implements ProductRepository
var _ ProductRepository = (*MySQLProductRepository)(nil)
