package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort        string
	JWTSecret       []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Database        DatabaseConfig
	Cache           CacheConfig
	Redis           RedisConfig
	Provider        ProviderConfig
	Pricing         PricingConfig
	UsageLog        UsageLogConfig
	Plans           map[string]PlanPolicy
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds cache settings
type CacheConfig struct {
	APIKeyCacheSize int
	APIKeyCacheTTL  time.Duration
	ModelCacheSize  int
	ModelCacheTTL   time.Duration
}

// RedisConfig holds Redis connection settings for the request-log buffer.
// An empty Address disables the Redis sink.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// ProviderConfig holds upstream provider credentials and settings
type ProviderConfig struct {
	OpenAIAPIKey     string
	AnthropicAPIKey  string
	GoogleAPIKey     string
	DeepSeekAPIKey   string
	PerplexityAPIKey string
	XAIAPIKey        string
	RequestTimeout   time.Duration
}

// PricingConfig controls the recomputation job
type PricingConfig struct {
	// Cron expression for the scheduled recomputation, empty disables it.
	RecalculateSchedule string
	// Whether to recompute once at startup.
	RecalculateOnStart bool
}

// UsageLogConfig controls the best-effort request-log side channel
type UsageLogConfig struct {
	QueueKey string
	MaxSize  int64
}

// PlanPolicy describes the throughput and quota limits of a plan tier.
type PlanPolicy struct {
	RequestsPerWindow int
	Window            time.Duration
	MonthlyRequests   int
}

// DefaultPlans returns the built-in plan tiers. Unknown plans are always denied
// by the limiter and tracker, so there is no catch-all entry.
func DefaultPlans() map[string]PlanPolicy {
	return map[string]PlanPolicy{
		"free":       {RequestsPerWindow: 60, Window: 60 * time.Second, MonthlyRequests: 10_000},
		"pro":        {RequestsPerWindow: 600, Window: 60 * time.Second, MonthlyRequests: 200_000},
		"enterprise": {RequestsPerWindow: 5000, Window: 60 * time.Second, MonthlyRequests: 5_000_000},
	}
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvInt64(key string, defaultValue int64) int64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	intVal, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return defaultValue
	}
	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val == "true" || val == "1"
}

// loadPlans applies env overrides on top of the default plan tiers, e.g.
// PLAN_FREE_REQUESTS_PER_WINDOW=120 PLAN_FREE_WINDOW=30s PLAN_FREE_MONTHLY_REQUESTS=20000
func loadPlans() map[string]PlanPolicy {
	plans := DefaultPlans()
	for name, policy := range plans {
		prefix := "PLAN_" + strings.ToUpper(name)
		policy.RequestsPerWindow = getEnvInt(prefix+"_REQUESTS_PER_WINDOW", policy.RequestsPerWindow)
		policy.Window = getEnvDuration(prefix+"_WINDOW", policy.Window)
		policy.MonthlyRequests = getEnvInt(prefix+"_MONTHLY_REQUESTS", policy.MonthlyRequests)
		plans[name] = policy
	}
	return plans
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort:        getEnvString("HTTP_PORT", "8080"),
		JWTSecret:       []byte(getEnvString("JWT_SECRET", "supersecretkey")),
		AccessTokenTTL:  getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Cache: CacheConfig{
			APIKeyCacheSize: getEnvInt("CACHE_API_KEY_SIZE", 1000),
			APIKeyCacheTTL:  getEnvDuration("CACHE_API_KEY_TTL", 5*time.Minute),
			ModelCacheSize:  getEnvInt("CACHE_MODEL_SIZE", 500),
			ModelCacheTTL:   getEnvDuration("CACHE_MODEL_TTL", 15*time.Minute),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", ""),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Provider: ProviderConfig{
			OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
			AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
			GoogleAPIKey:     os.Getenv("GOOGLE_API_KEY"),
			DeepSeekAPIKey:   os.Getenv("DEEPSEEK_API_KEY"),
			PerplexityAPIKey: os.Getenv("PERPLEXITY_API_KEY"),
			XAIAPIKey:        os.Getenv("XAI_API_KEY"),
			RequestTimeout:   getEnvDuration("PROVIDER_REQUEST_TIMEOUT", 60*time.Second),
		},
		Pricing: PricingConfig{
			RecalculateSchedule: getEnvString("PRICING_RECALCULATE_SCHEDULE", "0 3 * * *"),
			RecalculateOnStart:  getEnvBool("PRICING_RECALCULATE_ON_START", false),
		},
		UsageLog: UsageLogConfig{
			QueueKey: getEnvString("USAGE_LOG_QUEUE_KEY", "gateway:usage-logs"),
			MaxSize:  getEnvInt64("USAGE_LOG_QUEUE_MAX_SIZE", 100_000),
		},
		Plans: loadPlans(),
	}

	return cfg, nil
}
