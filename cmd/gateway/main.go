package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"beaver_gateway/internal/auth"
	"beaver_gateway/internal/billing"
	"beaver_gateway/internal/config"
	"beaver_gateway/internal/httpapi"
	"beaver_gateway/internal/logging"
	"beaver_gateway/internal/metrics"
	"beaver_gateway/internal/middleware"
	"beaver_gateway/internal/pricing"
	"beaver_gateway/internal/providers"
	"beaver_gateway/internal/quota"
	"beaver_gateway/internal/ratelimit"
	"beaver_gateway/internal/storage"
	"beaver_gateway/internal/utils"
)

func main() {
	logger := utils.NewLogger("gateway")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := storage.NewDB(storage.DBConfig{
		DSN:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		APIKeyCacheSize: cfg.Cache.APIKeyCacheSize,
		APIKeyCacheTTL:  cfg.Cache.APIKeyCacheTTL,
		ModelCacheSize:  cfg.Cache.ModelCacheSize,
		ModelCacheTTL:   cfg.Cache.ModelCacheTTL,
	})
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	var sink logging.Sink = logging.NewNoopSink()
	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:         cfg.Redis.Address,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		defer redisClient.Close()
		sink = logging.NewRedisBuffer(redisClient, logging.RedisBufferConfig{
			QueueKey: cfg.UsageLog.QueueKey,
			MaxSize:  cfg.UsageLog.MaxSize,
		})
		logger.Info("request-log buffer enabled", "address", cfg.Redis.Address)
	}

	engine := pricing.NewEngine(db.NewModelRepository())
	ledger := billing.NewLedger(db)
	issuer := auth.NewTokenIssuer(cfg.JWTSecret, cfg.AccessTokenTTL)
	registry := providers.NewRegistry(providers.RegistryConfig{
		OpenAIAPIKey:     cfg.Provider.OpenAIAPIKey,
		AnthropicAPIKey:  cfg.Provider.AnthropicAPIKey,
		GoogleAPIKey:     cfg.Provider.GoogleAPIKey,
		DeepSeekAPIKey:   cfg.Provider.DeepSeekAPIKey,
		PerplexityAPIKey: cfg.Provider.PerplexityAPIKey,
		XAIAPIKey:        cfg.Provider.XAIAPIKey,
		RequestTimeout:   cfg.Provider.RequestTimeout,
	})

	deps := &httpapi.Dependencies{
		Accounts:        db.NewAccountRepository(),
		APIKeys:         db.NewAPIKeyRepository(),
		Models:          db.NewModelRepository(),
		Transactions:    db.NewTransactionRepository(),
		Usage:           db.NewUsageRepository(),
		RefreshTokens:   db.NewRefreshTokenRepository(),
		Engine:          engine,
		Ledger:          ledger,
		Providers:       registry,
		RateLimit:       ratelimit.NewFixedWindowLimiter(cfg.Plans),
		Quota:           quota.NewMonthlyTracker(cfg.Plans),
		Issuer:          issuer,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		Sink:            sink,
		Metrics:         metrics.NewPrometheusMetrics(),
		Logger:          utils.NewLogger("httpapi"),
		Health:          db,
		StartedAt:       time.Now(),
	}

	authMW := middleware.NewAuth(db.NewAPIKeyRepository(), db.NewAccountRepository(), issuer)
	mux := httpapi.NewRouter(deps, authMW)

	if cfg.Pricing.RecalculateOnStart {
		if _, err := engine.RecalculateAllPricing(context.Background()); err != nil {
			logger.Warn("startup pricing recalculation failed", "error", err)
		}
	}

	var scheduler *cron.Cron
	if cfg.Pricing.RecalculateSchedule != "" {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.Pricing.RecalculateSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()
			if _, err := engine.RecalculateAllPricing(ctx); err != nil {
				logger.Error("scheduled pricing recalculation failed", "error", err)
			}
		})
		if err != nil {
			log.Fatalf("Invalid pricing schedule %q: %v", cfg.Pricing.RecalculateSchedule, err)
		}
		scheduler.Start()
		logger.Info("pricing recalculation scheduled", "schedule", cfg.Pricing.RecalculateSchedule)
	}

	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("gateway listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	logger.Info("server exited")
}
