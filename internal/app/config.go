package app

import (
	"errors"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Auth modes accepted by AUTH_MODE.
const (
	AuthModeEnforce = "enforce"
	AuthModeBypass  = "bypass"
)

// Config holds runtime configuration for the application.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"15s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"30s"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	MySQLDSN             string        `envconfig:"MYSQL_DSN" default:"depot:depot@tcp(127.0.0.1:3306)/depot?charset=utf8mb4"`
	MySQLMaxOpenConns    int           `envconfig:"MYSQL_MAX_OPEN_CONNS" default:"25"`
	MySQLMaxIdleConns    int           `envconfig:"MYSQL_MAX_IDLE_CONNS" default:"10"`
	MySQLConnMaxLifetime time.Duration `envconfig:"MYSQL_CONN_MAX_LIFETIME" default:"5m"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	JWTSecret        string        `envconfig:"JWT_SECRET" required:"true"`
	JWTRefreshSecret string        `envconfig:"JWT_REFRESH_SECRET"`
	JWTIssuer        string        `envconfig:"JWT_ISSUER" default:"depot"`
	JWTAccessTTL     time.Duration `envconfig:"JWT_ACCESS_TTL" default:"15m"`
	JWTRefreshTTL    time.Duration `envconfig:"JWT_REFRESH_TTL" default:"168h"`

	AuthMode         string `envconfig:"AUTH_MODE" default:"enforce"`
	AuthBypassUserID int64  `envconfig:"AUTH_BYPASS_USER_ID" default:"1"`

	RateLimitPerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`

	// Timezone decides where the business day starts for "today" figures and cron.
	Timezone         string        `envconfig:"APP_TIMEZONE" default:"UTC"`
	WSAllowedOrigins []string      `envconfig:"WS_ALLOWED_ORIGINS"`
	DashboardTTL     time.Duration `envconfig:"DASHBOARD_CACHE_TTL" default:"30s"`

	LowStockCron      string `envconfig:"LOW_STOCK_CRON" default:"0 * * * *"`
	SearchReindexCron string `envconfig:"SEARCH_REINDEX_CRON" default:"30 2 * * *"`
	IdempotencyCron   string `envconfig:"IDEMPOTENCY_CLEANUP_CRON" default:"15 3 * * *"`
	WorkerConcurrency int    `envconfig:"WORKER_CONCURRENCY" default:"5"`
	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.JWTSecret) < 16 {
		return errors.New("jwt secret must be at least 16 characters")
	}
	if c.JWTRefreshSecret == "" {
		c.JWTRefreshSecret = c.JWTSecret
	}
	c.AuthMode = strings.ToLower(strings.TrimSpace(c.AuthMode))
	switch c.AuthMode {
	case AuthModeEnforce:
	case AuthModeBypass:
		if c.IsProduction() {
			return errors.New("auth bypass is not allowed in production")
		}
	default:
		return errors.New("auth mode must be enforce or bypass")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return errors.New("app timezone is not a valid IANA location")
	}
	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= c.JWTAccessTTL {
		return errors.New("jwt refresh ttl must exceed a positive access ttl")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

// AuthBypassed reports whether bearer authentication is disabled.
func (c *Config) AuthBypassed() bool {
	return c != nil && c.AuthMode == AuthModeBypass
}

// Location returns the configured business timezone.
func (c *Config) Location() *time.Location {
	if c == nil {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
