package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/sirupsen/logrus"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server  ServerConfig
	App     AppConfig
	Log     LogConfig
	Store   StoreConfig
	Catalog CatalogConfig
	Cache   CacheConfig
	Keepa   KeepaConfig
	Pricing PricingConfig
	Cleanup CleanupConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"600s"` // bulk analysis runs inline
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
	AllowedOrigins  []string      `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"amza-pricing-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Debug       bool   `envconfig:"APP_DEBUG" default:"false"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"` // text or json
}

// StoreConfig holds analysis store settings.
type StoreConfig struct {
	Type string `envconfig:"STORE_TYPE" default:"sqlite"` // sqlite or postgres
	Path string `envconfig:"STORE_PATH" default:"./data/pricing.db"`
	// PostgreSQL settings
	Host         string `envconfig:"STORE_DB_HOST" default:"localhost"`
	Port         int    `envconfig:"STORE_DB_PORT" default:"5432"`
	Name         string `envconfig:"STORE_DB_NAME" default:"amza"`
	User         string `envconfig:"STORE_DB_USER" default:"postgres"`
	Password     string `envconfig:"STORE_DB_PASS" default:""`
	SSLMode      string `envconfig:"STORE_DB_SSLMODE" default:"disable"`
	MaxOpenConns int    `envconfig:"STORE_DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int    `envconfig:"STORE_DB_MAX_IDLE_CONNS" default:"5"`
}

// CatalogConfig holds the optional MySQL product catalog settings. When
// disabled, products are kept in the analysis store.
type CatalogConfig struct {
	Enabled  bool   `envconfig:"CATALOG_ENABLED" default:"false"`
	Host     string `envconfig:"CATALOG_DB_HOST" default:"localhost"`
	Port     int    `envconfig:"CATALOG_DB_PORT" default:"3306"`
	Name     string `envconfig:"CATALOG_DB_NAME" default:"amza"`
	User     string `envconfig:"CATALOG_DB_USER" default:"root"`
	Password string `envconfig:"CATALOG_DB_PASS" default:""`
}

// CacheConfig holds Redis settings.
type CacheConfig struct {
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	KeyPrefix     string `envconfig:"REDIS_KEY_PREFIX" default:"amza:pricing"`
}

// KeepaConfig holds data provider settings.
type KeepaConfig struct {
	BaseURL           string        `envconfig:"KEEPA_BASE_URL" default:"https://api.keepa.com"`
	APIKey            string        `envconfig:"KEEPA_API_KEY" default:""`
	Timeout           time.Duration `envconfig:"KEEPA_TIMEOUT" default:"30s"`
	RequestsPerSecond float64       `envconfig:"KEEPA_REQUESTS_PER_SECOND" default:"5"`
	Burst             int           `envconfig:"KEEPA_BURST" default:"5"`
	DailyTokenLimit   int           `envconfig:"KEEPA_DAILY_TOKEN_LIMIT" default:"1000"`
	BudgetBackend     string        `envconfig:"KEEPA_BUDGET_BACKEND" default:"store"` // memory, redis or store
}

// PricingConfig holds the analysis currencies and origin tax settings.
type PricingConfig struct {
	OriginCurrency      string   `envconfig:"PRICING_ORIGIN_CURRENCY" default:"USD"`
	DestinationCurrency string   `envconfig:"PRICING_DESTINATION_CURRENCY" default:"MXN"`
	OriginTaxMultiplier string   `envconfig:"PRICING_ORIGIN_TAX_MULTIPLIER" default:"1.0825"`
	ExemptCategories    []string `envconfig:"PRICING_EXEMPT_CATEGORIES" default:"health and household,health & household"`
}

// CleanupConfig holds call log retention settings.
type CleanupConfig struct {
	Enabled      bool          `envconfig:"CLEANUP_ENABLED" default:"true"`
	Retention    time.Duration `envconfig:"CLEANUP_RETENTION" default:"720h"`
	Interval     time.Duration `envconfig:"CLEANUP_INTERVAL" default:"24h"`
	InitialDelay time.Duration `envconfig:"CLEANUP_INITIAL_DELAY" default:"1m"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (s *StoreConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		s.User, s.Password, s.Host, s.Port, s.Name, s.SSLMode)
}

// DSN returns the MySQL data source name.
func (c *CatalogConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		c.User, c.Password, c.Host, c.Port, c.Name)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// IsDevelopment returns true if running in development mode.
func (a *AppConfig) IsDevelopment() bool {
	return a.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Validate checks settings that have a closed set of values.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported STORE_TYPE %q", c.Store.Type)
	}
	switch c.Keepa.BudgetBackend {
	case "memory", "redis", "store":
	default:
		return fmt.Errorf("unsupported KEEPA_BUDGET_BACKEND %q", c.Keepa.BudgetBackend)
	}
	if c.Keepa.DailyTokenLimit < 0 {
		return fmt.Errorf("KEEPA_DAILY_TOKEN_LIMIT must not be negative")
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// SetupLogger configures the standard logrus logger.
func SetupLogger(c LogConfig) {
	logrus.SetOutput(os.Stdout)
	if strings.EqualFold(c.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		logrus.WithField("level", c.Level).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}
