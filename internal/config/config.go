package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the campaign manager service.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Monitor    MonitorConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ClickHouseConfig configures the delivery-row store.
type ClickHouseConfig struct {
	Enabled  bool
	Addr     string
	Database string
	Username string
	Password string
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// MonitorConfig holds aggregation cache and refresh settings.
type MonitorConfig struct {
	// StaleAfter is the staleness window: cached monitor rows older
	// than this are recomputed on read.
	StaleAfter time.Duration
	// CacheTTL is the Redis expiry for cached rows (housekeeping).
	CacheTTL time.Duration
	// RefreshBatchSize controls progress-event granularity during a
	// refresh run.
	RefreshBatchSize int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("CAMPAIGN_HTTP_ADDR", ":8080"),
			Env:             getEnv("CAMPAIGN_ENV", "development"),
			ShutdownTimeout: getDurationEnv("CAMPAIGN_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("CAMPAIGN_DB_HOST", "localhost"),
			Port:     getIntEnv("CAMPAIGN_DB_PORT", 5432),
			User:     getEnv("CAMPAIGN_DB_USER", "campaigns"),
			Password: getEnv("CAMPAIGN_DB_PASSWORD", "campaigns_secret"),
			DBName:   getEnv("CAMPAIGN_DB_NAME", "campaigns"),
			SSLMode:  getEnv("CAMPAIGN_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("CAMPAIGN_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("CAMPAIGN_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("CAMPAIGN_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("CAMPAIGN_REDIS_PASSWORD", ""),
			DB:       getIntEnv("CAMPAIGN_REDIS_DB", 0),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getBoolEnv("CAMPAIGN_CLICKHOUSE_ENABLED", false),
			Addr:     getEnv("CAMPAIGN_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("CAMPAIGN_CLICKHOUSE_DB", "campaigns"),
			Username: getEnv("CAMPAIGN_CLICKHOUSE_USER", "default"),
			Password: getEnv("CAMPAIGN_CLICKHOUSE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("CAMPAIGN_AUTH_ENABLED", true),
			MasterKey: getEnv("CAMPAIGN_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("CAMPAIGN_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("CAMPAIGN_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("CAMPAIGN_RATE_LIMIT_RPS", 100),
			Burst:   getIntEnv("CAMPAIGN_RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("CAMPAIGN_LOG_LEVEL", "info"),
			Format: getEnv("CAMPAIGN_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("CAMPAIGN_METRICS_ENABLED", true),
			Path:    getEnv("CAMPAIGN_METRICS_PATH", "/metrics"),
		},
		Monitor: MonitorConfig{
			StaleAfter:       getDurationEnv("CAMPAIGN_MONITOR_STALE_AFTER", 15*time.Minute),
			CacheTTL:         getDurationEnv("CAMPAIGN_MONITOR_CACHE_TTL", 24*time.Hour),
			RefreshBatchSize: getIntEnv("CAMPAIGN_MONITOR_REFRESH_BATCH", 250),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("CAMPAIGN_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Monitor.RefreshBatchSize <= 0 {
		return fmt.Errorf("CAMPAIGN_MONITOR_REFRESH_BATCH must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
