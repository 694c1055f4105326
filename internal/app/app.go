package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/tentshop/storefront/pkg/database"
	"github.com/tentshop/storefront/pkg/health"
	"github.com/tentshop/storefront/pkg/httpclient"
	pkgkafka "github.com/tentshop/storefront/pkg/kafka"
	"github.com/tentshop/storefront/pkg/middleware"
	"github.com/tentshop/storefront/pkg/tracing"

	"github.com/tentshop/storefront/internal/auth"
	"github.com/tentshop/storefront/internal/config"
	"github.com/tentshop/storefront/internal/domain"
	"github.com/tentshop/storefront/internal/event"
	"github.com/tentshop/storefront/internal/gateway"
	gwmock "github.com/tentshop/storefront/internal/gateway/mock"
	"github.com/tentshop/storefront/internal/gateway/stripe"
	handler "github.com/tentshop/storefront/internal/handler/http"
	"github.com/tentshop/storefront/internal/repository/postgres"
	"github.com/tentshop/storefront/internal/service"
	"github.com/tentshop/storefront/internal/token"
	"github.com/tentshop/storefront/migrations"
)

const serviceName = "storefront"

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing(serviceName))
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pool, err := database.NewPostgresPool(ctx, cfg.Postgres(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold(), logger)
	}

	// Redis backs the rate limiter only; without it the API runs unthrottled.
	redisClient, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable at startup, rate limiting disabled",
			slog.String("addr", cfg.Redis().Addr()),
			slog.String("error", err.Error()),
		)
	}

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(pkgkafka.ProducerConfig{
		Brokers:      cfg.KafkaBrokers,
		BatchSize:    1,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	products := postgres.NewProductRepository(pool)
	orders := postgres.NewOrderRepository(pool)
	eventProducer := event.NewProducer(producer, logger)
	jwtValidator := auth.NewJWTValidator(cfg.JWTSecret)

	gw, webhooks := newGateway(cfg, logger)

	timeouts := service.Timeouts{
		Gateway: cfg.GatewayTimeout(),
		Store:   cfg.StoreTimeout(),
	}

	checkoutService := service.NewCheckoutService(
		products,
		orders,
		gw,
		token.NewGenerator(),
		jwtValidator,
		eventProducer,
		service.CheckoutConfig{
			Currency:   cfg.StoreCurrency,
			Shipping:   domain.NewShippingPolicy(cfg.ShippingHomeCountries, cfg.ShippingAllowedCountries, cfg.ShippingFlatFeeCents),
			SuccessURL: cfg.CheckoutSuccessURL,
			CancelURL:  cfg.CheckoutCancelURL,
			Timeouts:   timeouts,
		},
		logger,
	)
	reconcileService := service.NewReconcileService(orders, gw, eventProducer, timeouts, logger)
	lookupService := service.NewLookupService(orders, timeouts, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	deps := handler.Dependencies{
		Checkout:    checkoutService,
		Reconcile:   reconcileService,
		Lookup:      lookupService,
		Health:      healthHandler,
		Webhooks:    webhooks,
		CORSOrigins: cfg.CORSAllowedOrigins,
	}
	if cfg.JWTSecret != "" {
		deps.Identity = jwtValidator.Identity
	}
	if redisClient != nil {
		healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		deps.RateLimiter = middleware.NewRateLimiter(redisClient, cfg.RateLimitRequests, cfg.RateLimitWindow())
	}

	// HTTP router.
	router := handler.NewRouter(deps, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// newGateway selects the payment gateway. The webhook verifier is nil
// unless Stripe is configured with a signing secret.
func newGateway(cfg *config.Config, logger *slog.Logger) (gateway.Gateway, *stripe.WebhookVerifier) {
	if cfg.PaymentGateway != config.GatewayStripe {
		logger.Warn("using in-memory mock payment gateway, payments are simulated")
		return gwmock.NewGateway(gwmock.WithAutoPay()), nil
	}

	// Only idempotent requests are retried; see httpclient.Client.
	baseClient := httpclient.New(httpclient.Config{
		Timeout:         cfg.GatewayTimeout(),
		MaxRetries:      2,
		RetryWaitMin:    200 * time.Millisecond,
		RetryWaitMax:    2 * time.Second,
		MaxConnsPerHost: 50,
	})

	cbCfg := cfg.CircuitBreaker("stripe")
	cbClient := httpclient.NewCircuitBreakerClient(baseClient, cbCfg, logger)
	logger.Info("circuit breaker initialized",
		slog.String("name", cbCfg.Name),
		slog.Uint64("max_requests", uint64(cbCfg.MaxRequests)),
		slog.Int("timeout_seconds", cfg.CBTimeout),
		slog.Uint64("min_requests", uint64(cbCfg.MinRequests)),
	)

	var webhooks *stripe.WebhookVerifier
	if cfg.StripeWebhookSecret != "" {
		webhooks = stripe.NewWebhookVerifier(cfg.StripeWebhookSecret, stripe.DefaultTolerance)
	} else {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, webhook endpoint disabled")
	}

	return stripe.NewClient(cbClient, cfg.StripeAPIURL, cfg.StripeAPIKey), webhooks
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. Redis client
// 5. PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 4. Close Redis client.
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 5. Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
