package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // SQLite driver

	"claude_gateway/internal/config"
	"claude_gateway/internal/models"
)

// Dialect identifies the SQL flavour of the connected database
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect maps a configured driver name to a Dialect
func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(driver) {
	case DialectPostgres, DialectMySQL, DialectSQLite:
		return Dialect(driver), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// DB wraps the database connection and provides health checks
type DB struct {
	conn    *sqlx.DB
	dialect Dialect

	// Cache for model policies, read on every rewritten request
	modelCache *LRUCache[string, *models.ModelPolicy]
}

// DBConfig holds database configuration
type DBConfig struct {
	Dialect Dialect
	DSN     string

	// Pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// Cache settings
	ModelCacheSize int
	ModelCacheTTL  time.Duration
}

// DefaultDBConfig returns default database configuration
func DefaultDBConfig() DBConfig {
	return DBConfig{
		Dialect: DialectPostgres,

		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,

		ModelCacheSize: 500,
		ModelCacheTTL:  15 * time.Minute,
	}
}

// DBConfigFrom builds a DBConfig from the loaded gateway configuration
func DBConfigFrom(db config.DatabaseConfig, cache config.CacheConfig) (DBConfig, error) {
	dialect, err := ParseDialect(db.Driver)
	if err != nil {
		return DBConfig{}, err
	}

	cfg := DefaultDBConfig()
	cfg.Dialect = dialect
	cfg.DSN = db.URL
	if db.MaxOpenConns > 0 {
		cfg.MaxOpenConns = db.MaxOpenConns
	}
	if db.MaxIdleConns > 0 {
		cfg.MaxIdleConns = db.MaxIdleConns
	}
	if db.ConnMaxLifetime > 0 {
		cfg.ConnMaxLifetime = db.ConnMaxLifetime
	}
	if db.ConnMaxIdleTime > 0 {
		cfg.ConnMaxIdleTime = db.ConnMaxIdleTime
	}
	if cache.ModelCacheSize > 0 {
		cfg.ModelCacheSize = cache.ModelCacheSize
	}
	if cache.ModelCacheTTL > 0 {
		cfg.ModelCacheTTL = cache.ModelCacheTTL
	}
	return cfg, nil
}

// NewDB creates a new database connection with caching
func NewDB(cfg DBConfig) (*DB, error) {
	conn, err := sqlx.Connect(string(cfg.Dialect), cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows a single writer; one connection keeps transactions
	// from failing with SQLITE_BUSY. It is never recycled, since closing the
	// last connection drops an in-memory database.
	if cfg.Dialect == DialectSQLite {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
		cfg.ConnMaxLifetime = 0
		cfg.ConnMaxIdleTime = 0
	}

	// Configure connection pool
	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	conn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	return &DB{
		conn:       conn,
		dialect:    cfg.Dialect,
		modelCache: NewLRUCache[string, *models.ModelPolicy](cfg.ModelCacheSize, cfg.ModelCacheTTL),
	}, nil
}

// Close closes the database connection and clears caches
func (db *DB) Close() error {
	db.modelCache.Clear()
	return db.conn.Close()
}

// Dialect returns the SQL dialect of the connection
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Ping checks if the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Health returns the health status of the database
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

// DBStats holds connection pool and cache statistics
type DBStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
	WaitCount          int64
	WaitDuration       time.Duration

	ModelCacheStats CacheStats
}

// GetStats returns current database and cache statistics
func (db *DB) GetStats() DBStats {
	stats := db.conn.Stats()

	return DBStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
		WaitCount:          stats.WaitCount,
		WaitDuration:       stats.WaitDuration,

		ModelCacheStats: db.modelCache.GetStats(),
	}
}

// BeginTx starts a new transaction
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return db.conn.BeginTxx(ctx, opts)
}

// Conn returns the underlying sqlx connection
// Use this for custom queries not covered by repositories
func (db *DB) Conn() *sqlx.DB {
	return db.conn
}

// rebind converts a ?-placeholder query to the dialect's bind style
func (db *DB) rebind(query string) string {
	if db.dialect == DialectPostgres {
		return sqlx.Rebind(sqlx.DOLLAR, query)
	}
	return query
}

// GetModelCache returns the model policy cache
func (db *DB) GetModelCache() *LRUCache[string, *models.ModelPolicy] {
	return db.modelCache
}

// CleanupExpiredCacheEntries removes expired entries from the model cache
// Should be called periodically (e.g., every minute)
func (db *DB) CleanupExpiredCacheEntries() int {
	return db.modelCache.CleanupExpired()
}

// Repository factory methods

// NewMetricRepository creates a new metric repository
func (db *DB) NewMetricRepository() *MetricRepository {
	return NewMetricRepository(db)
}

// NewUserRepository creates a new user repository
func (db *DB) NewUserRepository() *UserRepository {
	return NewUserRepository(db)
}

// NewPromptRepository creates a new prompt repository
func (db *DB) NewPromptRepository() *PromptRepository {
	return NewPromptRepository(db)
}

// NewModelRepository creates a new model policy repository
func (db *DB) NewModelRepository() *ModelRepository {
	return NewModelRepository(db)
}
