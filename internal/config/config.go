package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	pkgconfig "github.com/tentshop/storefront/pkg/config"
	"github.com/tentshop/storefront/pkg/database"
	"github.com/tentshop/storefront/pkg/httpclient"
	"github.com/tentshop/storefront/pkg/tracing"
)

// Gateway names accepted by PAYMENT_GATEWAY.
const (
	GatewayStripe = "stripe"
	GatewayMock   = "mock"
)

// checkoutSessionPlaceholder is substituted by the payment gateway with the
// session id when redirecting the buyer back.
const checkoutSessionPlaceholder = "{CHECKOUT_SESSION_ID}"

// Config holds all configuration for the storefront service.
type Config struct {
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	ServiceVersion string `env:"SERVICE_VERSION" envDefault:"dev"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"storefront"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"storefront_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"storefront"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Redis (rate limiting)
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Payment gateway
	PaymentGateway      string `env:"PAYMENT_GATEWAY" envDefault:"mock"`
	StripeAPIKey        string `env:"STRIPE_API_KEY"`
	StripeAPIURL        string `env:"STRIPE_API_URL" envDefault:"https://api.stripe.com"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	// Store
	StoreCurrency            string   `env:"STORE_CURRENCY" envDefault:"EUR"`
	ShippingHomeCountries    []string `env:"SHIPPING_HOME_COUNTRIES" envDefault:"BE" envSeparator:","`
	ShippingFlatFeeCents     int64    `env:"SHIPPING_FLAT_FEE_CENTS" envDefault:"1500"`
	ShippingAllowedCountries []string `env:"SHIPPING_ALLOWED_COUNTRIES" envSeparator:","`
	CheckoutSuccessURL       string   `env:"CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:3000/checkout/success?session_id={CHECKOUT_SESSION_ID}"`
	CheckoutCancelURL        string   `env:"CHECKOUT_CANCEL_URL" envDefault:"http://localhost:3000/checkout/cancel?session_id={CHECKOUT_SESSION_ID}"`

	// Buyer identity
	JWTSecret string `env:"JWT_SECRET"`

	// Per-call timeouts (seconds). Every gateway and store call gets its own
	// context.WithTimeout and fails closed when it expires.
	GatewayTimeoutSeconds int `env:"GATEWAY_TIMEOUT_SECONDS" envDefault:"10"`
	StoreTimeoutSeconds   int `env:"STORE_TIMEOUT_SECONDS" envDefault:"5"`

	// Circuit breaker around payment gateway calls
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// Rate limiting, per client IP and route group
	RateLimitRequests      int `env:"RATE_LIMIT_REQUESTS" envDefault:"30"`
	RateLimitWindowSeconds int `env:"RATE_LIMIT_WINDOW_SECONDS" envDefault:"60"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load storefront config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StoreCurrency = strings.ToUpper(strings.TrimSpace(c.StoreCurrency))
	c.PaymentGateway = strings.ToLower(strings.TrimSpace(c.PaymentGateway))
}

// validate rejects settings the service cannot run with.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}

	switch c.PaymentGateway {
	case GatewayMock:
	case GatewayStripe:
		if c.StripeAPIKey == "" {
			return fmt.Errorf("STRIPE_API_KEY is required when PAYMENT_GATEWAY=stripe")
		}
		if _, err := url.ParseRequestURI(c.StripeAPIURL); err != nil {
			return fmt.Errorf("invalid STRIPE_API_URL %q: %w", c.StripeAPIURL, err)
		}
	default:
		return fmt.Errorf("PAYMENT_GATEWAY must be %q or %q, got %q", GatewayStripe, GatewayMock, c.PaymentGateway)
	}

	if len(c.StoreCurrency) != 3 {
		return fmt.Errorf("STORE_CURRENCY must be a 3-letter ISO code, got %q", c.StoreCurrency)
	}
	if c.ShippingFlatFeeCents < 0 {
		return fmt.Errorf("SHIPPING_FLAT_FEE_CENTS must not be negative")
	}

	for name, rawURL := range map[string]string{
		"CHECKOUT_SUCCESS_URL": c.CheckoutSuccessURL,
		"CHECKOUT_CANCEL_URL":  c.CheckoutCancelURL,
	} {
		if rawURL == "" {
			return fmt.Errorf("%s is required", name)
		}
		if _, err := url.ParseRequestURI(rawURL); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, rawURL, err)
		}
		if !strings.Contains(rawURL, checkoutSessionPlaceholder) {
			return fmt.Errorf("%s must contain %s", name, checkoutSessionPlaceholder)
		}
	}

	if c.GatewayTimeoutSeconds < 1 || c.StoreTimeoutSeconds < 1 {
		return fmt.Errorf("GATEWAY_TIMEOUT_SECONDS and STORE_TIMEOUT_SECONDS must be at least 1")
	}
	if c.RateLimitRequests < 1 || c.RateLimitWindowSeconds < 1 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW_SECONDS must be at least 1")
	}
	return nil
}

// Postgres returns the connection pool configuration.
func (c *Config) Postgres() *database.PostgresConfig {
	return &database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the Redis client configuration.
func (c *Config) Redis() database.RedisConfig {
	return database.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

// Tracing returns the OpenTelemetry configuration.
func (c *Config) Tracing(serviceName string) tracing.Config {
	return tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: c.ServiceVersion,
		Environment:    c.Environment,
		OTLPEndpoint:   c.OTELEndpoint,
		SampleRate:     c.OTELSampleRate,
		Enabled:        c.OTELEnabled,
	}
}

// CircuitBreaker returns the breaker settings for the payment gateway.
func (c *Config) CircuitBreaker(name string) httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  c.CBMaxRequests,
		Interval:     time.Duration(c.CBInterval) * time.Second,
		Timeout:      time.Duration(c.CBTimeout) * time.Second,
		FailureRatio: c.CBFailureRatio,
		MinRequests:  c.CBMinRequests,
	}
}

// GatewayTimeout bounds each payment gateway call.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.GatewayTimeoutSeconds) * time.Second
}

// StoreTimeout bounds each database call.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

// RateLimitWindow is the fixed window the request budget applies to.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

// SlowQueryThreshold is the duration above which queries are logged.
func (c *Config) SlowQueryThreshold() time.Duration {
	return time.Duration(c.SlowQueryThresholdMs) * time.Millisecond
}
