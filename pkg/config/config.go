package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database (postgres snapshot backend)
	Database DatabaseConfig

	// Redis (optional shared snapshot cache + rate limiting)
	Redis RedisConfig

	// Brokerage live chain API
	Schwab SchwabConfig

	// Snapshot archive
	Snapshot SnapshotConfig

	// Routing policy
	Router RouterConfig

	// Quality thresholds
	Quality QualityConfig

	// End-of-session collection
	Collector CollectorConfig

	// Logging
	LogLevel  string
	LogFormat string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
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

// SchwabConfig holds brokerage market-data API configuration.
// OAuth is handled elsewhere; AccessToken is whatever the session layer hands us.
type SchwabConfig struct {
	BaseURL        string
	AccessToken    string
	Timeout        time.Duration
	RequestsPerSec float64
	StrikeCount    int
}

// SnapshotConfig selects and tunes the snapshot archive
type SnapshotConfig struct {
	Backend  string // file, postgres
	Dir      string
	CacheTTL time.Duration
}

// RouterConfig holds the fallback-chain policy knobs
type RouterConfig struct {
	LiveTimeout            time.Duration
	PreferEnrichedOverFair bool
	AllowLiveFallback      bool
	EnrichWindowDays       int
}

// QualityConfig holds assessor thresholds
type QualityConfig struct {
	HighVolume        int64
	SessionWindow     time.Duration
	StaleAfter        time.Duration
	MinSeriesDays     int
	MinRelativeChange float64
	PatternScore      float64
	WhaleVolume       int64
}

// CollectorConfig holds collection job settings
type CollectorConfig struct {
	Symbols  []string
	Schedule string
	Workers  int
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	loadEnvFile()

	cfg := &Config{
		Port: getEnv("PORT", "8055"),
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
		},

		Schwab: SchwabConfig{
			BaseURL:        getEnv("SCHWAB_BASE_URL", "https://api.schwabapi.com/marketdata/v1"),
			AccessToken:    getEnv("SCHWAB_ACCESS_TOKEN", ""),
			Timeout:        getEnvAsDuration("SCHWAB_TIMEOUT", "10s"),
			RequestsPerSec: getEnvAsFloat("SCHWAB_RPS", 2),
			StrikeCount:    getEnvAsInt("SCHWAB_STRIKE_COUNT", 40),
		},

		Snapshot: SnapshotConfig{
			Backend:  getEnv("SNAPSHOT_BACKEND", "file"),
			Dir:      getEnv("SNAPSHOT_DIR", "data/historical"),
			CacheTTL: getEnvAsDuration("SNAPSHOT_CACHE_TTL", "60s"),
		},

		Router: RouterConfig{
			LiveTimeout:            getEnvAsDuration("LIVE_TIMEOUT", "8s"),
			PreferEnrichedOverFair: getEnvAsBool("ROUTER_PREFER_ENRICHED", false),
			AllowLiveFallback:      getEnvAsBool("ROUTER_ALLOW_LIVE_FALLBACK", false),
			EnrichWindowDays:       getEnvAsInt("ENRICH_WINDOW_DAYS", 10),
		},

		Quality: QualityConfig{
			HighVolume:        int64(getEnvAsInt("QUALITY_HIGH_VOLUME", 10000)),
			SessionWindow:     getEnvAsDuration("QUALITY_SESSION_WINDOW", "18h"),
			StaleAfter:        getEnvAsDuration("QUALITY_STALE_AFTER", "96h"),
			MinSeriesDays:     getEnvAsInt("QUALITY_MIN_SERIES_DAYS", 3),
			MinRelativeChange: getEnvAsFloat("TREND_MIN_RELATIVE_CHANGE", 0.20),
			PatternScore:      getEnvAsFloat("PATTERN_SCORE_THRESHOLD", 3.0),
			WhaleVolume:       int64(getEnvAsInt("PATTERN_WHALE_VOLUME", 5000)),
		},

		Collector: CollectorConfig{
			Symbols:  getEnvAsList("COLLECT_SYMBOLS", "SPY,QQQ,AAPL,NVDA,TSLA,MSFT,AMZN"),
			Schedule: getEnv("COLLECT_SCHEDULE", "0 30 16 * * 1-5"),
			Workers:  getEnvAsInt("COLLECT_WORKERS", 3),
		},

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	switch c.Snapshot.Backend {
	case "file":
		if c.Snapshot.Dir == "" {
			return fmt.Errorf("SNAPSHOT_DIR is required for file backend")
		}
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for postgres backend")
		}
	default:
		return fmt.Errorf("SNAPSHOT_BACKEND must be one of: file, postgres")
	}

	if c.Router.LiveTimeout <= 0 {
		return fmt.Errorf("LIVE_TIMEOUT must be positive")
	}
	if c.Router.EnrichWindowDays <= 0 {
		return fmt.Errorf("ENRICH_WINDOW_DAYS must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

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
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
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

// getEnvAsList splits a comma separated value, dropping blanks
func getEnvAsList(key string, defaultValue string) []string {
	raw := getEnv(key, defaultValue)
	parts := strings.Split(raw, ",")

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
