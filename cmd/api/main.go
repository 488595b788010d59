package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/codeshop/codeshop-backend/api/routes"
	"github.com/codeshop/codeshop-backend/internal/auth"
	"github.com/codeshop/codeshop-backend/internal/availability"
	products "github.com/codeshop/codeshop-backend/internal/products"
	"github.com/codeshop/codeshop-backend/internal/stock"
	"github.com/codeshop/codeshop-backend/internal/users"
	"github.com/codeshop/codeshop-backend/pkg/auth/session"
	"github.com/codeshop/codeshop-backend/pkg/config"
	"github.com/codeshop/codeshop-backend/pkg/db"
	"github.com/codeshop/codeshop-backend/pkg/logger"
	"github.com/codeshop/codeshop-backend/pkg/metrics"
	"github.com/codeshop/codeshop-backend/pkg/migrate"
	"github.com/codeshop/codeshop-backend/pkg/outbox"
	"github.com/codeshop/codeshop-backend/pkg/redis"
)

const (
	serviceName       = "api"
	readHeaderTimeout = 10 * time.Second
)

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

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
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

	handler, err := buildRouter(cfg, logg, dbClient, redisClient)
	if err != nil {
		return err
	}

	addr := ":" + firstNonEmpty(os.Getenv("PORT"), cfg.App.Port)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": firstNonEmpty(os.Getenv("DYNO"), "local"),
	})
	server := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: readHeaderTimeout}
	return serveUntilDone(ctx, server, cfg.App.ShutdownWait, logg)
}

// buildRouter wires every service the HTTP surface needs onto one registry.
func buildRouter(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (http.Handler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	sessions, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return nil, fmt.Errorf("session manager: %w", err)
	}
	authService, err := auth.NewService(auth.ServiceParams{
		UserRepo:       users.NewRepository(dbClient.DB()),
		SessionManager: sessions,
		JWTConfig:      cfg.JWT,
	})
	if err != nil {
		return nil, fmt.Errorf("auth service: %w", err)
	}

	cache, err := availability.NewCache(redisClient, cfg.Stock.AvailabilityTTL)
	if err != nil {
		return nil, fmt.Errorf("availability cache: %w", err)
	}
	events := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	productService, err := products.NewService(products.NewRepository(dbClient.DB()), dbClient, events, cache, logg)
	if err != nil {
		return nil, fmt.Errorf("product service: %w", err)
	}
	stockService, err := stock.NewService(stock.ServiceParams{
		Repo:    stock.NewRepository(dbClient.DB()),
		DB:      dbClient,
		Outbox:  events,
		Cache:   cache,
		Metrics: metrics.NewStockMetrics(registry),
		Logger:  logg,
		Config:  cfg.Stock,
	})
	if err != nil {
		return nil, fmt.Errorf("stock service: %w", err)
	}

	return routes.NewRouter(
		cfg,
		logg,
		dbClient,
		redisClient,
		sessions,
		routes.Observability{HTTP: metrics.NewHTTPMetrics(registry), Gatherer: registry},
		authService,
		productService,
		stockService,
	), nil
}

// serveUntilDone blocks until the server fails or ctx is cancelled, then
// drains in-flight requests for at most wait.
func serveUntilDone(ctx context.Context, server *http.Server, wait time.Duration, logg *logger.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), wait)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(ctx, "error closing "+name, err)
	}
}
