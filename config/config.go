package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	HTTP     ServerConfig
	MySQL    MySQLConfig
	Log      LogConfig
	Paymob   PaymobConfig
	Stripe   StripeConfig
	Payments PaymentsConfig
	Jobs     JobsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type PaymobConfig struct {
	APIKey                  string
	IntegrationID           string
	IframeID                string
	HMACSecret              string
	APIBaseURL              string
	ProviderCallbackBaseURL string
	HTTPTimeout             time.Duration
}

type StripeConfig struct {
	SecretKey                 string
	WebhookSecret             string
	APIBaseURL                string
	ProviderCallbackBaseURL   string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

type PaymentsConfig struct {
	MinAmountCents      int64
	MaxAmountCents      int64
	NotifyMaxAttempts   int32
	NotifyRetryInterval time.Duration
	NotifyHTTPTimeout   time.Duration
	PendingTimeout      time.Duration
	ReconcileStaleAfter time.Duration
	JobBatchSize        int32
}

type JobsConfig struct {
	ReconcileInterval      time.Duration
	NotifyDispatchInterval time.Duration
	SweepPendingInterval   time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "ledger-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Paymob: PaymobConfig{
			APIKey:                  getEnv("PAYMOB_API_KEY", ""),
			IntegrationID:           getEnv("PAYMOB_INTEGRATION_ID", ""),
			IframeID:                getEnv("PAYMOB_IFRAME_ID", ""),
			HMACSecret:              getEnv("PAYMOB_HMAC_SECRET", ""),
			APIBaseURL:              getEnv("PAYMOB_API_BASE_URL", "https://accept.paymob.com"),
			ProviderCallbackBaseURL: getEnv("LEDGER_PROVIDER_CALLBACK_BASE_URL", ""),
			HTTPTimeout:             getSecondsEnv("PAYMOB_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Stripe: StripeConfig{
			SecretKey:                 getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:             getEnv("STRIPE_WEBHOOK_SECRET", ""),
			APIBaseURL:                getEnv("STRIPE_API_BASE_URL", "https://api.stripe.com"),
			ProviderCallbackBaseURL:   getEnv("LEDGER_PROVIDER_CALLBACK_BASE_URL", ""),
			SignatureToleranceSeconds: int64(getIntEnv("STRIPE_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               getSecondsEnv("STRIPE_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Payments: PaymentsConfig{
			MinAmountCents:      getInt64Env("LEDGER_MIN_AMOUNT_CENTS", 100),
			MaxAmountCents:      getInt64Env("LEDGER_MAX_AMOUNT_CENTS", 10000000),
			NotifyMaxAttempts:   int32(getIntEnv("LEDGER_NOTIFY_MAX_ATTEMPTS", 10)),
			NotifyRetryInterval: getMinutesEnv("LEDGER_NOTIFY_RETRY_INTERVAL_MINUTES", 5*time.Minute),
			NotifyHTTPTimeout:   getSecondsEnv("LEDGER_NOTIFY_HTTP_TIMEOUT_SECONDS", 10*time.Second),
			PendingTimeout:      getMinutesEnv("LEDGER_PENDING_TIMEOUT_MINUTES", 60*time.Minute),
			ReconcileStaleAfter: getMinutesEnv("LEDGER_RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			JobBatchSize:        int32(getIntEnv("LEDGER_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ReconcileInterval:      getMinutesEnv("LEDGER_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
			NotifyDispatchInterval: getMinutesEnv("LEDGER_NOTIFY_DISPATCH_INTERVAL_MINUTES", time.Minute),
			SweepPendingInterval:   getMinutesEnv("LEDGER_SWEEP_PENDING_INTERVAL_MINUTES", 5*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
