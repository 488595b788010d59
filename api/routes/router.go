package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codeshop/codeshop-backend/api/controllers"
	"github.com/codeshop/codeshop-backend/api/middleware"
	"github.com/codeshop/codeshop-backend/internal/auth"
	products "github.com/codeshop/codeshop-backend/internal/products"
	"github.com/codeshop/codeshop-backend/internal/stock"
	"github.com/codeshop/codeshop-backend/pkg/auth/session"
	"github.com/codeshop/codeshop-backend/pkg/config"
	"github.com/codeshop/codeshop-backend/pkg/db"
	"github.com/codeshop/codeshop-backend/pkg/logger"
	"github.com/codeshop/codeshop-backend/pkg/metrics"
	"github.com/codeshop/codeshop-backend/pkg/redis"
)

// RedisStore is the slice of the Redis client the HTTP layer needs: health,
// idempotency replay and login throttling.
type RedisStore interface {
	redis.Pinger
	redis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Observability bundles the request metrics and the registry served on /metrics.
type Observability struct {
	HTTP     *metrics.HTTPMetrics
	Gatherer prometheus.Gatherer
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisStore RedisStore,
	sessionChecker session.AccessSessionChecker,
	obs Observability,
	authService auth.Service,
	productService products.Service,
	stockService stock.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Recoverer(logg),
		middleware.Logging(logg, obs.HTTP),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.RateLimit.LoginWindow,
		cfg.RateLimit.LoginIPLimit,
		cfg.RateLimit.LoginEmailLimit,
	)
	idempotent := middleware.Idempotency(redisStore, logg)
	authenticated := middleware.Auth(cfg.JWT, sessionChecker, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisStore))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(obs.Gatherer))

	r.Route("/api/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, redisStore, logg)).Post("/login", controllers.AuthLogin(authService, logg))
		r.Post("/refresh", controllers.AuthRefresh(authService, logg))
		r.With(authenticated).Post("/logout", controllers.AuthLogout(authService, logg))
	})

	r.Route("/api/products", func(r chi.Router) {
		r.Get("/", controllers.ProductList(productService, logg))
		r.Get("/{productId}", controllers.ProductGet(productService, logg))
		r.Get("/{productId}/availability", controllers.ProductAvailability(productService, logg))

		r.Group(func(r chi.Router) {
			r.Use(authenticated)
			r.Use(middleware.RequireAdmin(logg))
			r.With(idempotent).Post("/", controllers.ProductCreate(productService, logg))
			r.Patch("/{productId}", controllers.ProductUpdate(productService, logg))
			r.Patch("/{productId}/stock", controllers.ProductStockOverride(stockService, logg))
		})
	})

	r.Route("/api/stock", func(r chi.Router) {
		r.Use(authenticated)
		r.Use(middleware.RequireAdmin(logg))
		r.Get("/", controllers.StockList(stockService, logg))
		r.With(idempotent).Post("/", controllers.StockRestock(stockService, logg))
		r.Delete("/", controllers.StockDelete(stockService, logg))
		r.With(idempotent).Post("/assign", controllers.StockAssign(stockService, logg))
		r.Post("/recount", controllers.StockRecount(stockService, logg))
		r.Get("/assignments", controllers.StockAssignments(stockService, logg))
	})

	r.Route("/api/me", func(r chi.Router) {
		r.Use(authenticated)
		r.Get("/codes", controllers.MyCodes(stockService, logg))
	})

	return r
}
