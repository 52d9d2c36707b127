package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// DB wraps the database connection and the caches for hot lookups.
type DB struct {
	conn *sqlx.DB

	apiKeyCache *LRUCache
	modelCache  *LRUCache
}

// DBConfig holds database configuration
type DBConfig struct {
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	APIKeyCacheSize int
	APIKeyCacheTTL  time.Duration
	ModelCacheSize  int
	ModelCacheTTL   time.Duration
}

// DefaultDBConfig returns default database configuration
func DefaultDBConfig() DBConfig {
	return DBConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		APIKeyCacheSize: 1000,
		APIKeyCacheTTL:  5 * time.Minute,
		ModelCacheSize:  500,
		ModelCacheTTL:   15 * time.Minute,
	}
}

// withDefaults fills zero-valued settings from DefaultDBConfig, so a partial
// config never produces an unbounded pool or a capacity-0 cache.
func (cfg DBConfig) withDefaults() DBConfig {
	def := DefaultDBConfig()
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = def.MaxOpenConns
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = def.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = def.ConnMaxIdleTime
	}
	if cfg.APIKeyCacheSize == 0 {
		cfg.APIKeyCacheSize = def.APIKeyCacheSize
	}
	if cfg.APIKeyCacheTTL == 0 {
		cfg.APIKeyCacheTTL = def.APIKeyCacheTTL
	}
	if cfg.ModelCacheSize == 0 {
		cfg.ModelCacheSize = def.ModelCacheSize
	}
	if cfg.ModelCacheTTL == 0 {
		cfg.ModelCacheTTL = def.ModelCacheTTL
	}
	return cfg
}

// NewDB creates a new database connection with caching
func NewDB(cfg DBConfig) (*DB, error) {
	cfg = cfg.withDefaults()

	conn, err := sqlx.Connect("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{
		conn:        conn,
		apiKeyCache: NewLRUCache(cfg.APIKeyCacheSize, cfg.APIKeyCacheTTL),
		modelCache:  NewLRUCache(cfg.ModelCacheSize, cfg.ModelCacheTTL),
	}, nil
}

// NewDBFromConn wraps an existing connection; used by tests with sqlmock.
func NewDBFromConn(conn *sqlx.DB, cfg DBConfig) *DB {
	cfg = cfg.withDefaults()
	return &DB{
		conn:        conn,
		apiKeyCache: NewLRUCache(cfg.APIKeyCacheSize, cfg.APIKeyCacheTTL),
		modelCache:  NewLRUCache(cfg.ModelCacheSize, cfg.ModelCacheTTL),
	}
}

// Close closes the database connection and clears caches
func (db *DB) Close() error {
	db.apiKeyCache.Clear()
	db.modelCache.Clear()
	return db.conn.Close()
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health verifies the database can serve queries
func (db *DB) Health(ctx context.Context) error {
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var result int
	if err := db.conn.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("health check query failed: %w", err)
	}
	return nil
}

// BeginTx starts a new transaction
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// Conn returns the underlying sqlx connection for queries not covered by the
// repositories.
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// CleanupExpiredCacheEntries removes expired entries from all caches.
func (db *DB) CleanupExpiredCacheEntries() (apiKeyRemoved, modelRemoved int) {
	return db.apiKeyCache.CleanupExpired(), db.modelCache.CleanupExpired()
}

// Repository factory methods

// NewAccountRepository creates a new account repository
func (db *DB) NewAccountRepository() *AccountRepository {
	return NewAccountRepository(db)
}

// NewAPIKeyRepository creates a new API key repository
func (db *DB) NewAPIKeyRepository() *APIKeyRepository {
	return NewAPIKeyRepository(db)
}

// NewModelRepository creates a new model repository
func (db *DB) NewModelRepository() *ModelRepository {
	return NewModelRepository(db)
}

// NewTransactionRepository creates a new transaction repository
func (db *DB) NewTransactionRepository() *TransactionRepository {
	return NewTransactionRepository(db)
}

// NewUsageRepository creates a new usage repository
func (db *DB) NewUsageRepository() *UsageRepository {
	return NewUsageRepository(db)
}

// NewRefreshTokenRepository creates a new refresh token repository
func (db *DB) NewRefreshTokenRepository() *RefreshTokenRepository {
	return NewRefreshTokenRepository(db)
}
