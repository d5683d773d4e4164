package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/storefront/orderreview/internal/service"
	"github.com/storefront/orderreview/pkg/health"
	"github.com/storefront/orderreview/pkg/middleware"
)

// RoleAdmin may seed products, move orders through fulfillment, delete
// orders and repair ratings.
const RoleAdmin = "admin"

// Services are the ledgers the handlers call into.
type Services struct {
	Orders   *service.OrderService
	Reviews  *service.ReviewService
	Products *service.ProductService
	Ratings  *service.RatingAggregator
}

// RouterConfig tunes the middleware chain. Nil fields switch the matching
// middleware off.
type RouterConfig struct {
	ServiceName    string
	RequestTimeout time.Duration
	PprofCIDRs     []string
	CORS           middleware.CORSConfig
	Tokens         middleware.TokenValidator
	RateLimiter    *middleware.RateLimiter
	HTTPMetrics    *middleware.HTTPMetrics
	Gatherer       prometheus.Gatherer
}

// NewRouter creates a chi router with all order/review routes registered.
func NewRouter(svcs Services, healthHandler *health.Handler, logger *slog.Logger, cfg RouterConfig) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(cfg.RequestTimeout))
	r.Use(middleware.RequestLogging(logger))
	if cfg.HTTPMetrics != nil {
		r.Use(cfg.HTTPMetrics.Middleware(cfg.ServiceName))
	}
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.ResolveIdentity(cfg.Tokens))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	// Pprof debug endpoints with IP allowlist.
	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	orders := NewOrderHandler(svcs.Orders, logger)
	reviews := NewReviewHandler(svcs.Reviews, logger)
	products := NewProductHandler(svcs.Products, svcs.Ratings, logger)

	limit := func(next http.Handler) http.Handler { return next }
	if cfg.RateLimiter != nil {
		limit = cfg.RateLimiter.Middleware
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		// Public catalog reads.
		r.Get("/products/{id}", products.GetProduct)
		r.Get("/products/{id}/reviews", reviews.ListProductReviews)

		// Buyer routes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireActor)

			r.With(limit).Post("/orders", orders.CreateOrder)
			r.Get("/orders", orders.ListOrders)
			r.Get("/orders/{id}", orders.GetOrder)

			r.With(limit).Post("/reviews", reviews.SubmitReview)
			r.Delete("/reviews/{reviewId}", reviews.DeleteReview)
		})

		// Admin routes.
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireActor)
			r.Use(middleware.RequireRole(RoleAdmin))

			r.Put("/orders/{id}/status", orders.UpdateOrderStatus)
			r.Delete("/orders/{id}", orders.DeleteOrder)
			r.Post("/products", products.CreateProduct)
			r.Post("/products/{id}/rating/recompute", products.RecomputeRating)
		})
	})

	return r
}
