package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Duration decodes TOML strings such as "5s" into a time.Duration.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type fileConfig struct {
	HTTPPort    string          `toml:"http_port"`
	JWTSecret   string          `toml:"jwt_secret"`
	LogLevel    string          `toml:"log_level"`
	Database    fileDatabase    `toml:"database"`
	Cache       fileCache       `toml:"cache"`
	Redis       fileRedis       `toml:"redis"`
	Claude      fileClaude      `toml:"claude"`
	ModelFilter fileModelFilter `toml:"model_filter"`
	UsageQueue  fileUsageQueue  `toml:"usage_queue"`
}

type fileDatabase struct {
	Driver          string   `toml:"driver"`
	URL             string   `toml:"url"`
	MaxOpenConns    int      `toml:"max_open_conns"`
	MaxIdleConns    int      `toml:"max_idle_conns"`
	ConnMaxLifetime Duration `toml:"conn_max_lifetime"`
	ConnMaxIdleTime Duration `toml:"conn_max_idle_time"`
}

type fileCache struct {
	ModelCacheSize int      `toml:"model_cache_size"`
	ModelCacheTTL  Duration `toml:"model_cache_ttl"`
}

type fileRedis struct {
	Address      string   `toml:"address"`
	Password     string   `toml:"password"`
	DB           int      `toml:"db"`
	PoolSize     int      `toml:"pool_size"`
	MinIdleConns int      `toml:"min_idle_conns"`
	DialTimeout  Duration `toml:"dial_timeout"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`
}

type fileClaude struct {
	Enabled        bool     `toml:"enabled"`
	BaseURLs       []string `toml:"base_urls"`
	APIKeys        []string `toml:"api_keys"`
	FetchTimeout   Duration `toml:"fetch_timeout"`
	RequestTimeout Duration `toml:"request_timeout"`
}

type fileModelFilter struct {
	Enabled bool     `toml:"enabled"`
	List    []string `toml:"list"`
}

type fileUsageQueue struct {
	Backend      string   `toml:"backend"`
	Name         string   `toml:"name"`
	BatchSize    int      `toml:"batch_size"`
	BatchTimeout Duration `toml:"batch_timeout"`
	MaxRetries   int      `toml:"max_retries"`
	RetryBackoff Duration `toml:"retry_backoff"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		HTTPPort:  "8080",
		JWTSecret: "supersecretkey",
		LogLevel:  "info",
		Database: fileDatabase{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: Duration{5 * time.Minute},
			ConnMaxIdleTime: Duration{1 * time.Minute},
		},
		Cache: fileCache{
			ModelCacheSize: 500,
			ModelCacheTTL:  Duration{15 * time.Minute},
		},
		Redis: fileRedis{
			Address:      "localhost:6379",
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  Duration{5 * time.Second},
			ReadTimeout:  Duration{3 * time.Second},
			WriteTimeout: Duration{3 * time.Second},
		},
		Claude: fileClaude{
			Enabled:      false,
			BaseURLs:     []string{"https://api.anthropic.com/v1"},
			APIKeys:      []string{""},
			FetchTimeout: Duration{5 * time.Second},
		},
		UsageQueue: fileUsageQueue{
			Backend:      "memory",
			Name:         "usage",
			BatchSize:    100,
			BatchTimeout: Duration{5 * time.Second},
			MaxRetries:   3,
			RetryBackoff: Duration{1 * time.Second},
		},
	}
}

func loadFile(path string, cfg *fileConfig) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
