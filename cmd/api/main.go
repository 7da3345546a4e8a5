package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"amza-pricing-api/internal/config"
	"amza-pricing-api/internal/handler"
	"amza-pricing-api/internal/keepa"
	"amza-pricing-api/internal/model"
	"amza-pricing-api/internal/quota"
	"amza-pricing-api/internal/repository"
	"amza-pricing-api/internal/router"
	"amza-pricing-api/internal/service"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg := config.MustLoad()
	config.SetupLogger(cfg.Log)

	log := logrus.WithField("component", "main")
	log.WithFields(logrus.Fields{
		"version":     cfg.App.Version,
		"environment": cfg.App.Environment,
	}).Info("starting pricing API")

	// Analysis store
	var store *repository.SQLStore
	var err error
	switch cfg.Store.Type {
	case "postgres", "postgresql":
		store, err = repository.NewPostgresStore(cfg.Store.PostgresDSN(), cfg.Store.MaxOpenConns, cfg.Store.MaxIdleConns)
	default:
		store, err = repository.NewSQLiteStore(cfg.Store.Path)
	}
	if err != nil {
		log.WithError(err).Fatal("failed to initialize store")
	}
	defer store.Close()
	log.WithField("type", store.Dialect()).Info("analysis store initialized")

	// Product catalog (optional MySQL)
	var products repository.ProductRepository = store
	var catalogDB *sql.DB
	if cfg.Catalog.Enabled {
		catalogDB, err = repository.OpenMySQL(cfg.Catalog.DSN())
		if err != nil {
			log.WithError(err).Warn("MySQL catalog unavailable, keeping products in the analysis store")
		} else {
			products = repository.NewMySQLProductRepository(catalogDB)
		}
	}
	if catalogDB != nil {
		defer catalogDB.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if cfg.Keepa.APIKey != "" {
		cred := &model.ProviderCredential{APIKey: cfg.Keepa.APIKey, DailyTokenLimit: cfg.Keepa.DailyTokenLimit}
		if err := store.EnsureCredential(ctx, cred); err != nil {
			log.WithError(err).Fatal("failed to store Keepa credential")
		}
	} else {
		log.Warn("KEEPA_API_KEY is not set, provider calls will fail until a credential exists")
	}
	cancel()

	// Token budget
	var budget quota.Budget
	var redisBudget *quota.RedisBudget
	switch cfg.Keepa.BudgetBackend {
	case "redis":
		redisBudget, err = quota.NewRedisBudget(quota.RedisBudgetConfig{
			Addr:       cfg.Cache.RedisAddress(),
			Password:   cfg.Cache.RedisPassword,
			DB:         cfg.Cache.RedisDB,
			KeyPrefix:  cfg.Cache.KeyPrefix,
			DailyLimit: cfg.Keepa.DailyTokenLimit,
		})
		if err != nil {
			log.WithError(err).Warn("redis budget unavailable, falling back to the store budget")
			budget = repository.NewStoreBudget(store, nil)
			cfg.Keepa.BudgetBackend = "store"
		} else {
			budget = redisBudget
		}
	case "memory":
		budget = quota.NewMemoryBudget(cfg.Keepa.DailyTokenLimit, nil)
	default:
		budget = repository.NewStoreBudget(store, nil)
	}
	if redisBudget != nil {
		defer redisBudget.Close()
	}

	multiplier, err := decimal.NewFromString(cfg.Pricing.OriginTaxMultiplier)
	if err != nil {
		log.WithError(err).Fatal("invalid PRICING_ORIGIN_TAX_MULTIPLIER")
	}

	// Services
	client := keepa.NewClient(keepa.Options{
		BaseURL:           cfg.Keepa.BaseURL,
		Timeout:           cfg.Keepa.Timeout,
		RequestsPerSecond: cfg.Keepa.RequestsPerSecond,
		Burst:             cfg.Keepa.Burst,
	})
	snapshotService := service.NewSnapshotService(client, budget, store, store, products, store)
	analysisService := service.NewAnalysisService(snapshotService, store, store, store, products, store, service.AnalysisOptions{
		OriginCurrency:      cfg.Pricing.OriginCurrency,
		DestinationCurrency: cfg.Pricing.DestinationCurrency,
		OriginTaxMultiplier: multiplier,
		ExemptCategories:    cfg.Pricing.ExemptCategories,
	})
	batchService := service.NewBatchService(analysisService, store)
	notificationService := service.NewNotificationService(client, store, store, store)
	settingsService := service.NewSettingsService(store, store, store)

	var cleanup *service.CleanupScheduler
	if cfg.Cleanup.Enabled {
		cleanup = service.NewCleanupScheduler(store, service.CleanupConfig{
			Retention:       cfg.Cleanup.Retention,
			CleanupInterval: cfg.Cleanup.Interval,
			InitialDelay:    cfg.Cleanup.InitialDelay,
		})
		cleanup.Start()
	}

	// Handlers
	r := router.New(router.Config{
		Handler:         handler.New(cfg.App.Name, cfg.App.Version, store),
		AnalysisHandler: handler.NewAnalysisHandler(analysisService, batchService),
		KeepaHandler:    handler.NewKeepaHandler(snapshotService, notificationService),
		SettingsHandler: handler.NewSettingsHandler(settingsService, cfg.Pricing.OriginCurrency, cfg.Pricing.DestinationCurrency),
		AdminHandler:    handler.NewAdminHandler(budget, store, store, string(store.Dialect()), cfg.Keepa.BudgetBackend),
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.WithField("addr", cfg.Server.Address()).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	if cleanup != nil {
		cleanup.Stop()
	}

	ctx, cancel = context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server shutdown error")
	}

	log.Info("server stopped")
}
