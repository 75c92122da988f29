// Package config loads runtime configuration from the environment, with
// an optional .env file for local development.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all runtime settings.
type Config struct {
	Port        string
	DatabaseURL string // empty selects the in-memory store
	RedisURL    string // empty disables the cache layer
	CacheTTL    time.Duration

	// AI provider settings. One API key per channel.
	DifyBaseURL      string
	DifyNewsKey      string
	DifyMetricsKey   string
	DifyAdviceKey    string
	DifyAnalysisKey  string
	AITimeout        time.Duration
	AIRequestsPerSec int

	// Scheduler intervals. Zero disables a job.
	MessageInterval time.Duration
	MetricsInterval time.Duration
	SummaryInterval time.Duration

	// Trade action limits. Zero disables a limit.
	MaxActionQuantity decimal.Decimal
	MaxBatchNotional  decimal.Decimal
}

// Load reads configuration from the environment. A missing .env file is
// not an error.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		CacheTTL:    getDuration("CACHE_TTL", 30*time.Second),

		DifyBaseURL:      getEnv("DIFY_BASE_URL", "https://api.dify.ai/v1"),
		DifyNewsKey:      os.Getenv("DIFY_NEWS_API_KEY"),
		DifyMetricsKey:   os.Getenv("DIFY_METRICS_API_KEY"),
		DifyAdviceKey:    os.Getenv("DIFY_ADVICE_API_KEY"),
		DifyAnalysisKey:  os.Getenv("DIFY_ANALYSIS_API_KEY"),
		AITimeout:        getDuration("AI_TIMEOUT", 3*time.Minute),
		AIRequestsPerSec: getInt("AI_REQUESTS_PER_SECOND", 2),

		MessageInterval: getDuration("COLLECT_MESSAGES_INTERVAL", 0),
		MetricsInterval: getDuration("COLLECT_METRICS_INTERVAL", 0),
		SummaryInterval: getDuration("SUMMARY_REPORT_INTERVAL", 0),

		MaxActionQuantity: getDecimal("MAX_ACTION_QUANTITY", decimal.Zero),
		MaxBatchNotional:  getDecimal("MAX_BATCH_NOTIONAL", decimal.Zero),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env var, using fallback", "key", key, "value", v)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration env var, using fallback", "key", key, "value", v)
		return fallback
	}
	return d
}

func getDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		slog.Warn("invalid decimal env var, using fallback", "key", key, "value", v)
		return fallback
	}
	return d
}
