package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process-level configuration for the CLI, API server and scheduler.
// Strategy parameters (selection, optimizer, walk-forward) live in internal/strategyconfig.
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	Database DatabaseConfig
	Redis    RedisConfig
	Prices   PriceSourceConfig

	// Strategy YAML used when no --strategy flag is given
	StrategyPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool

	// Scheduler
	SchedulerEnabled     bool
	RebuildSchedule      string // cron expressions with seconds
	WalkForwardSchedule  string
	PriceSyncSchedule    string
	CacheRefreshSchedule string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
	PriceTTL time.Duration
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether a database URL was configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// PriceSourceConfig selects where price history is read from
type PriceSourceConfig struct {
	Source       string // csv, postgres, http
	CSVDir       string
	UniversePath string

	// HTTP source
	URLTemplate    string // e.g. https://quotes.example.com/daily/{ticker}.csv
	Format         string // csv or html (quote-page tables, {page} paginates)
	MaxPages       int
	RequestsPerSec float64
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			PriceTTL: getEnvAsDuration("REDIS_PRICE_TTL", "6h"),
		},

		Prices: PriceSourceConfig{
			Source:         getEnv("PRICE_SOURCE", "csv"),
			CSVDir:         getEnv("PRICE_CSV_DIR", "data/prices"),
			UniversePath:   getEnv("UNIVERSE_PATH", "data/universe.csv"),
			URLTemplate:    getEnv("PRICE_URL_TEMPLATE", ""),
			Format:         getEnv("PRICE_FORMAT", "csv"),
			MaxPages:       getEnvAsInt("PRICE_MAX_PAGES", 50),
			RequestsPerSec: getEnvAsFloat("PRICE_REQUESTS_PER_SEC", 5),
			MaxRetries:     getEnvAsInt("PRICE_MAX_RETRIES", 3),
			InitialBackoff: getEnvAsDuration("PRICE_INITIAL_BACKOFF", "500ms"),
			MaxBackoff:     getEnvAsDuration("PRICE_MAX_BACKOFF", "10s"),
			Timeout:        getEnvAsDuration("PRICE_TIMEOUT", "30s"),
		},

		StrategyPath: getEnv("STRATEGY_PATH", "config/strategy.yaml"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),

		SchedulerEnabled:     getEnvAsBool("SCHEDULER_ENABLED", false),
		RebuildSchedule:      getEnv("REBUILD_SCHEDULE", "0 30 18 * * 1-5"),
		WalkForwardSchedule:  getEnv("WALKFORWARD_SCHEDULE", "0 0 20 * * 6"),
		PriceSyncSchedule:    getEnv("PRICE_SYNC_SCHEDULE", "0 0 18 * * 1-5"),
		CacheRefreshSchedule: getEnv("CACHE_REFRESH_SCHEDULE", "0 20 18 * * 1-5"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are consistent
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Prices.Source {
	case "csv":
		if c.Prices.CSVDir == "" {
			return fmt.Errorf("PRICE_CSV_DIR is required when PRICE_SOURCE=csv")
		}
	case "postgres":
		if !c.Database.Enabled() {
			return fmt.Errorf("DATABASE_URL is required when PRICE_SOURCE=postgres")
		}
	case "http":
		if c.Prices.URLTemplate == "" {
			return fmt.Errorf("PRICE_URL_TEMPLATE is required when PRICE_SOURCE=http")
		}
	default:
		return fmt.Errorf("PRICE_SOURCE must be one of: csv, postgres, http")
	}

	if c.Prices.Format != "csv" && c.Prices.Format != "html" {
		return fmt.Errorf("PRICE_FORMAT must be one of: csv, html")
	}

	if c.Prices.RequestsPerSec <= 0 {
		return fmt.Errorf("PRICE_REQUESTS_PER_SEC must be > 0")
	}

	return nil
}

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
