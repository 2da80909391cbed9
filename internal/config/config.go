package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigFileEnv names the environment variable that points at an optional
// TOML config file. Environment variables override values from the file.
const ConfigFileEnv = "GATEWAY_CONFIG"

// Config holds configuration for the gateway.
type Config struct {
	HTTPPort    string
	JWTSecret   []byte
	LogLevel    string
	Database    DatabaseConfig
	Cache       CacheConfig
	Redis       RedisConfig
	Claude      ClaudeConfig
	ModelFilter ModelFilterConfig
	UsageQueue  UsageQueueConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver          string // postgres, mysql or sqlite
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds cache settings
type CacheConfig struct {
	ModelCacheSize int
	ModelCacheTTL  time.Duration
}

// RedisConfig holds Redis connection settings
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

// ClaudeConfig holds the upstream endpoint settings. BaseURLs and APIKeys
// are positional: key i authenticates against URL i.
type ClaudeConfig struct {
	Enabled        bool
	BaseURLs       []string
	APIKeys        []string
	FetchTimeout   time.Duration // per-endpoint model listing timeout
	RequestTimeout time.Duration // upstream completion timeout, 0 means none
}

// ModelFilterConfig restricts which catalog entries non-admin callers see.
type ModelFilterConfig struct {
	Enabled bool
	List    []string
}

// UsageQueueConfig selects the usage event queue backend.
type UsageQueueConfig struct {
	Backend      string // memory or redis
	Name         string
	BatchSize    int
	BatchTimeout time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
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
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultValue
	}
	return b
}

// getEnvList splits a ';'-separated variable. A variable that is set but
// empty yields a single empty element, which is how an "unset key" is
// expressed positionally.
func getEnvList(key string, defaultValue []string) []string {
	val, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	parts := strings.Split(val, ";")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Load reads configuration from the optional TOML file named by
// GATEWAY_CONFIG and then from environment variables.
func Load() (*Config, error) {
	file := defaultFileConfig()
	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := loadFile(path, &file); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		HTTPPort:  getEnvString("HTTP_PORT", file.HTTPPort),
		JWTSecret: []byte(getEnvString("JWT_SECRET", file.JWTSecret)),
		LogLevel:  getEnvString("LOG_LEVEL", file.LogLevel),
		Database: DatabaseConfig{
			Driver:          strings.ToLower(getEnvString("DATABASE_DRIVER", file.Database.Driver)),
			URL:             getEnvString("DATABASE_URL", file.Database.URL),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", file.Database.MaxOpenConns),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", file.Database.MaxIdleConns),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", file.Database.ConnMaxLifetime.Duration),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", file.Database.ConnMaxIdleTime.Duration),
		},
		Cache: CacheConfig{
			ModelCacheSize: getEnvInt("CACHE_MODEL_SIZE", file.Cache.ModelCacheSize),
			ModelCacheTTL:  getEnvDuration("CACHE_MODEL_TTL", file.Cache.ModelCacheTTL.Duration),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", file.Redis.Address),
			Password:     getEnvString("REDIS_PASSWORD", file.Redis.Password),
			DB:           getEnvInt("REDIS_DB", file.Redis.DB),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", file.Redis.PoolSize),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", file.Redis.MinIdleConns),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", file.Redis.DialTimeout.Duration),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", file.Redis.ReadTimeout.Duration),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", file.Redis.WriteTimeout.Duration),
		},
		Claude: ClaudeConfig{
			Enabled:        getEnvBool("ENABLE_CLAUDE_API", file.Claude.Enabled),
			BaseURLs:       getEnvList("CLAUDE_API_BASE_URLS", file.Claude.BaseURLs),
			APIKeys:        getEnvList("CLAUDE_API_KEYS", file.Claude.APIKeys),
			FetchTimeout:   getEnvDuration("CATALOG_FETCH_TIMEOUT", file.Claude.FetchTimeout.Duration),
			RequestTimeout: getEnvDuration("CLAUDE_REQUEST_TIMEOUT", file.Claude.RequestTimeout.Duration),
		},
		ModelFilter: ModelFilterConfig{
			Enabled: getEnvBool("ENABLE_MODEL_FILTER", file.ModelFilter.Enabled),
			List:    getEnvList("MODEL_FILTER_LIST", file.ModelFilter.List),
		},
		UsageQueue: UsageQueueConfig{
			Backend:      strings.ToLower(getEnvString("USAGE_QUEUE_BACKEND", file.UsageQueue.Backend)),
			Name:         getEnvString("USAGE_QUEUE_NAME", file.UsageQueue.Name),
			BatchSize:    getEnvInt("USAGE_QUEUE_BATCH_SIZE", file.UsageQueue.BatchSize),
			BatchTimeout: getEnvDuration("USAGE_QUEUE_BATCH_TIMEOUT", file.UsageQueue.BatchTimeout.Duration),
			MaxRetries:   getEnvInt("USAGE_QUEUE_MAX_RETRIES", file.UsageQueue.MaxRetries),
			RetryBackoff: getEnvDuration("USAGE_QUEUE_RETRY_BACKOFF", file.UsageQueue.RetryBackoff.Duration),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql", "sqlite":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	switch c.UsageQueue.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported USAGE_QUEUE_BACKEND %q", c.UsageQueue.Backend)
	}
	if c.UsageQueue.BatchSize <= 0 {
		return fmt.Errorf("USAGE_QUEUE_BATCH_SIZE must be positive")
	}
	return nil
}
