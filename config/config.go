// Package config handles loading and managing application configuration.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server configuration
	Server ServerConfig

	// Persistence
	Database DatabaseConfig
	Redis    RedisConfig

	// FitStack Core API configuration
	Core CoreConfig

	// MoMo wallet gateway
	Gateway GatewayConfig

	// Browser landing pages after the gateway redirect
	Frontend FrontendConfig

	// Security settings
	Security SecurityConfig

	Checkout  CheckoutConfig
	Worker    WorkerConfig
	Telemetry TelemetryConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string
	GinMode         string // "debug", "release", or "test"
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// DatabaseConfig holds the postgres connection settings.
type DatabaseConfig struct {
	URL          string
	MaxIdleConns int
	MaxOpenConns int
	AutoMigrate  bool
}

// RedisConfig holds the Redis connection used for settlement locks.
// An empty URL selects the in-process lock.
type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

// CoreConfig holds FitStack Core API configuration.
type CoreConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// GatewayConfig holds the MoMo partner credentials and endpoints.
type GatewayConfig struct {
	Endpoint    string
	PartnerCode string
	PartnerName string
	StoreID     string
	AccessKey   string
	SecretKey   string
	RedirectURL string
	IPNURL      string
	RequestType string
	Lang        string
	AutoCapture bool
	OrderInfo   string
	Timeout     time.Duration
}

// FrontendConfig holds the pages the browser return endpoint redirects to.
type FrontendConfig struct {
	SuccessURL string
	FailureURL string
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	JWTSecret      string
	InternalAPIKey string // shared with FitStack Core for /internal routes
}

// CheckoutConfig tunes the charge initiation endpoint.
type CheckoutConfig struct {
	OrderPrefix  string
	RateLimitRPS float64
	RateBurst    int
}

// WorkerConfig holds the background sweeper settings.
type WorkerConfig struct {
	Schedule          string // RRULE, e.g. FREQ=MINUTELY;INTERVAL=15
	StalePendingAfter time.Duration
}

// TelemetryConfig holds OpenTelemetry exporter settings.
type TelemetryConfig struct {
	ServiceName  string
	OTLPEndpoint string
}

// Load reads configuration from a .env file (if present) and environment variables.
// Returns a Config struct with all settings populated.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}

	return &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			GinMode:         getEnv("GIN_MODE", "debug"),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			CORSOrigins:     []string{getEnv("CORS_ORIGIN", "*")},
		},
		Database: DatabaseConfig{
			URL:          getEnv("DATABASE_URL", ""),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 100),
			AutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:     getEnv("REDIS_URL", ""),
			LockTTL: getEnvDuration("SETTLEMENT_LOCK_TTL", 30*time.Second),
		},
		Core: CoreConfig{
			BaseURL: getEnv("FITSTACK_CORE_URL", "http://localhost:8000"),
			APIKey:  getEnv("FITSTACK_CORE_API_KEY", ""),
			Timeout: getEnvDuration("FITSTACK_CORE_TIMEOUT", 10*time.Second),
		},
		Gateway: GatewayConfig{
			Endpoint:    getEnv("MOMO_ENDPOINT", "https://test-payment.momo.vn/v2/gateway/api/create"),
			PartnerCode: getEnv("MOMO_PARTNER_CODE", ""),
			PartnerName: getEnv("MOMO_PARTNER_NAME", "FitStack"),
			StoreID:     getEnv("MOMO_STORE_ID", "FitStackStore"),
			AccessKey:   getEnv("MOMO_ACCESS_KEY", ""),
			SecretKey:   getEnv("MOMO_SECRET_KEY", ""),
			RedirectURL: getEnv("MOMO_REDIRECT_URL", "http://localhost:8080/api/v1/payments/momo/return"),
			IPNURL:      getEnv("MOMO_IPN_URL", ""),
			RequestType: getEnv("MOMO_REQUEST_TYPE", "captureWallet"),
			Lang:        getEnv("MOMO_LANG", "vi"),
			AutoCapture: getEnvBool("MOMO_AUTO_CAPTURE", true),
			OrderInfo:   getEnv("MOMO_ORDER_INFO", "Thanh toan goi tap FitStack"),
			Timeout:     getEnvDuration("GATEWAY_TIMEOUT", 30*time.Second),
		},
		Frontend: FrontendConfig{
			SuccessURL: getEnv("FRONTEND_SUCCESS_URL", "http://localhost:3000/payment/success"),
			FailureURL: getEnv("FRONTEND_FAILURE_URL", "http://localhost:3000/payment/failure"),
		},
		Security: SecurityConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			InternalAPIKey: getEnv("INTERNAL_API_KEY", ""),
		},
		Checkout: CheckoutConfig{
			OrderPrefix:  getEnv("ORDER_PREFIX", "FS"),
			RateLimitRPS: getEnvFloat("CHECKOUT_RATE_LIMIT_RPS", 5),
			RateBurst:    getEnvInt("CHECKOUT_RATE_BURST", 10),
		},
		Worker: WorkerConfig{
			Schedule:          getEnv("SWEEP_SCHEDULE", "FREQ=MINUTELY;INTERVAL=15"),
			StalePendingAfter: getEnvDuration("STALE_PENDING_AFTER", 24*time.Hour),
		},
		Telemetry: TelemetryConfig{
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "fitstack-settlement"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Gateway.Endpoint == "" {
		errs = append(errs, errors.New("MOMO_ENDPOINT is required"))
	}
	if c.Gateway.PartnerCode == "" {
		errs = append(errs, errors.New("MOMO_PARTNER_CODE is required"))
	}
	if c.Gateway.AccessKey == "" {
		errs = append(errs, errors.New("MOMO_ACCESS_KEY is required"))
	}
	if c.Gateway.SecretKey == "" {
		errs = append(errs, errors.New("MOMO_SECRET_KEY is required"))
	}
	if c.Gateway.IPNURL == "" {
		errs = append(errs, errors.New("MOMO_IPN_URL is required"))
	}
	if c.Security.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Core.APIKey == "" {
		log.Println("Warning: FITSTACK_CORE_API_KEY not set")
	}
	if c.Security.InternalAPIKey == "" {
		log.Println("Warning: INTERNAL_API_KEY not set, /internal routes will reject every call")
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// ValidateWorker checks the subset of settings the sweeper needs.
func (c *Config) ValidateWorker() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Worker.Schedule == "" {
		return errors.New("SWEEP_SCHEDULE is required")
	}
	return nil
}

// getEnv retrieves an environment variable with a fallback default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer with a fallback.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float with a fallback.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean with a fallback.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

// getEnvDuration retrieves an environment variable as a time.Duration ("30s", "5m").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
