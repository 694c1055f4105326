package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tentshop/storefront/pkg/health"
	"github.com/tentshop/storefront/pkg/middleware"

	"github.com/tentshop/storefront/internal/gateway/stripe"
	"github.com/tentshop/storefront/internal/service"
)

const serviceName = "storefront"

// Dependencies are the collaborators the router mounts.
type Dependencies struct {
	Checkout  *service.CheckoutService
	Reconcile *service.ReconcileService
	Lookup    *service.LookupService
	Health    *health.Handler

	// Webhooks verifies payment webhooks. The webhook route is only mounted
	// when it is set.
	Webhooks *stripe.WebhookVerifier

	// Identity resolves bearer tokens for request logging. Optional.
	Identity middleware.TokenValidator

	// RateLimiter guards the public API routes. Optional.
	RateLimiter *middleware.RateLimiter

	CORSOrigins []string
}

// NewRouter creates a chi router with all storefront routes registered.
func NewRouter(deps Dependencies, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(serviceName))
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: deps.CORSOrigins}))
	if deps.Identity != nil {
		r.Use(middleware.OptionalAuth(deps.Identity, logger))
	}
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	if deps.Health != nil {
		r.Get("/health/live", deps.Health.LivenessHandler())
		r.Get("/health/ready", deps.Health.ReadinessHandler())
	}
	r.Handle("/metrics", promhttp.Handler())

	limit := func(scope string) func(http.Handler) http.Handler {
		if deps.RateLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.RateLimit(deps.RateLimiter, scope, logger)
	}

	checkoutHandler := NewCheckoutHandler(deps.Checkout, logger)
	paymentHandler := NewPaymentHandler(deps.Reconcile, deps.Webhooks, logger)
	orderHandler := NewOrderHandler(deps.Lookup, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.With(limit("checkout")).Post("/checkout", checkoutHandler.CreateCheckout)

		r.Route("/payments", func(r chi.Router) {
			r.With(limit("reconcile")).Post("/reconcile", paymentHandler.Reconcile)
			if deps.Webhooks != nil {
				r.Post("/webhook", paymentHandler.Webhook)
			}
		})

		r.With(limit("lookup")).Get("/orders/lookup", orderHandler.LookupOrder)
	})

	return r
}
