package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codeshop/codeshop-backend/internal/availability"
	"github.com/codeshop/codeshop-backend/internal/cron"
	"github.com/codeshop/codeshop-backend/internal/stock"
	"github.com/codeshop/codeshop-backend/pkg/config"
	"github.com/codeshop/codeshop-backend/pkg/db"
	"github.com/codeshop/codeshop-backend/pkg/logger"
	"github.com/codeshop/codeshop-backend/pkg/metrics"
	"github.com/codeshop/codeshop-backend/pkg/migrate"
	"github.com/codeshop/codeshop-backend/pkg/outbox"
	"github.com/codeshop/codeshop-backend/pkg/redis"
)

const serviceName = "cron-worker"

// cron-worker repairs drifted stock counters and prunes the outbox. Replicas
// share a Redis lock so each cycle runs once per environment.
func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceName

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": cfg.Service.Kind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	service, err := buildService(cfg, logg, dbClient, redisClient)
	if err != nil {
		return err
	}

	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer); err != nil {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()

	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

func buildService(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Service, error) {
	cache, err := availability.NewCache(redisClient, cfg.Stock.AvailabilityTTL)
	if err != nil {
		return nil, fmt.Errorf("availability cache: %w", err)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	stockService, err := stock.NewService(stock.ServiceParams{
		Repo:    stock.NewRepository(dbClient.DB()),
		DB:      dbClient,
		Outbox:  outbox.NewService(outboxRepo, logg),
		Cache:   cache,
		Metrics: metrics.NewStockMetrics(prometheus.DefaultRegisterer),
		Logger:  logg,
		Config:  cfg.Stock,
	})
	if err != nil {
		return nil, fmt.Errorf("stock service: %w", err)
	}

	jobMetrics := metrics.NewJobMetrics(prometheus.DefaultRegisterer)
	reconcile, err := cron.NewStockReconcileJob(cron.StockReconcileJobParams{
		Logger:     logg,
		Reconciler: stockService,
		Metrics:    jobMetrics,
		PageSize:   cfg.Reconcile.PageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("stock reconcile job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       outboxRepo,
		DeadLetters:      outbox.NewDLQRepository(dbClient.DB()),
		RetentionDays:    cfg.Outbox.RetentionDays,
		DLQRetentionDays: cfg.Outbox.DLQRetentionDays,
		MinAttempts:      cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	registry := &cron.Registry{}
	registry.Register(reconcile, cfg.Reconcile.Interval)
	registry.Register(retention, cfg.Outbox.RetentionEvery)

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, serviceName+":"+env, cfg.Reconcile.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("cron lock: %w", err)
	}

	return cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  jobMetrics,
		Interval: cfg.Reconcile.Interval,
	})
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
