// Package config 載入路由快取服務的配置
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

// Forever 與 cache.Forever 相同，避免 config 依賴 cache 套件
const Forever = -1

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"server"`

	Redis struct {
		// Addr 優先於 Host/Port
		Addr         string        `yaml:"addr"`
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		PoolSize     int           `yaml:"pool_size"`
		MinIdleConns int           `yaml:"min_idle_conns"`
		MaxRetries   int           `yaml:"max_retries"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"redis"`

	Cache struct {
		Prefix        string        `yaml:"prefix"`
		Expire        *int          `yaml:"expire"` // 秒，-1 表示永不過期
		Type          string        `yaml:"type"`
		WatchInterval time.Duration `yaml:"watch_interval"`
	} `yaml:"cache"`

	Postgres struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		DBName   string `yaml:"dbname"`
		MaxConns int32  `yaml:"max_conns"`
		MinConns int32  `yaml:"min_conns"`
	} `yaml:"postgres"`

	Audit struct {
		Enabled       bool          `yaml:"enabled"`
		BatchSize     int           `yaml:"batch_size"`
		FlushInterval time.Duration `yaml:"flush_interval"`
	} `yaml:"audit"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"log"`
}

// Default 返回預設配置
func Default() *Config {
	cfg := &Config{}

	cfg.Server.Port = 3000
	cfg.Server.ReadTimeout = 5 * time.Second
	cfg.Server.WriteTimeout = 10 * time.Second

	cfg.Redis.Host = "localhost"
	cfg.Redis.Port = 6379
	cfg.Redis.PoolSize = 10
	cfg.Redis.MinIdleConns = 2
	cfg.Redis.MaxRetries = 3
	cfg.Redis.DialTimeout = 5 * time.Second
	cfg.Redis.ReadTimeout = 3 * time.Second
	cfg.Redis.WriteTimeout = 3 * time.Second

	cfg.Cache.Prefix = "cache:"
	cfg.Cache.Type = "text/html"
	cfg.Cache.WatchInterval = 5 * time.Second

	cfg.Postgres.Host = "localhost"
	cfg.Postgres.Port = 5432
	cfg.Postgres.User = "postgres"
	cfg.Postgres.DBName = "route_cache"
	cfg.Postgres.MaxConns = 10
	cfg.Postgres.MinConns = 2

	cfg.Audit.BatchSize = 100
	cfg.Audit.FlushInterval = time.Second

	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"

	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Log.Output = "stdout"

	return cfg
}

// Load 載入配置檔案
//
// 檔案不存在時使用預設值；之後套用環境變數覆蓋。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		// #nosec G304 - path 來自命令列參數
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv 環境變數覆蓋（容器部署常用）
func (c *Config) applyEnv() {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		c.Redis.Host = host
		c.Redis.Addr = ""
	}
	if port, err := strconv.Atoi(os.Getenv("REDIS_PORT")); err == nil && port > 0 {
		c.Redis.Port = port
		c.Redis.Addr = ""
	}
	if prefix := os.Getenv("CACHE_PREFIX"); prefix != "" {
		c.Cache.Prefix = prefix
	}
}

// Validate 檢查配置
func (c *Config) Validate() error {
	if strings.TrimSuffix(c.Cache.Prefix, ":") == "" {
		return fmt.Errorf("cache.prefix must not be empty")
	}
	if c.Cache.Expire != nil && *c.Cache.Expire < Forever {
		return fmt.Errorf("cache.expire must be -1 (forever) or >= 0, got %d", *c.Cache.Expire)
	}
	if c.Audit.Enabled && c.Audit.BatchSize <= 0 {
		return fmt.Errorf("audit.batch_size must be positive")
	}
	return nil
}

// DefaultExpire 返回快取預設 TTL（秒），未設定時永不過期
func (c *Config) DefaultExpire() int {
	if c.Cache.Expire == nil {
		return Forever
	}
	return *c.Cache.Expire
}

// RedisAddr 返回 Redis 位址
func (c *Config) RedisAddr() string {
	if c.Redis.Addr != "" {
		return c.Redis.Addr
	}
	return net.JoinHostPort(c.Redis.Host, strconv.Itoa(c.Redis.Port))
}

// RedisOptions 建立 go-redis 連線參數
//
// REDIS_URL 存在時優先使用。
func (c *Config) RedisOptions() (*redis.Options, error) {
	if raw := os.Getenv("REDIS_URL"); raw != "" {
		opts, err := redis.ParseURL(raw)
		if err != nil {
			return nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		return opts, nil
	}

	return &redis.Options{
		Addr:         c.RedisAddr(),
		Password:     c.Redis.Password,
		DB:           c.Redis.DB,
		PoolSize:     c.Redis.PoolSize,
		MinIdleConns: c.Redis.MinIdleConns,
		MaxRetries:   c.Redis.MaxRetries,
		DialTimeout:  c.Redis.DialTimeout,
		ReadTimeout:  c.Redis.ReadTimeout,
		WriteTimeout: c.Redis.WriteTimeout,
	}, nil
}

// PostgresDSN 生成 PostgreSQL 連線字串
func (c *Config) PostgresDSN() string {
	// 支援環境變數覆蓋（生產環境常用）
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Postgres.User, c.Postgres.Password),
		Host:     net.JoinHostPort(c.Postgres.Host, strconv.Itoa(c.Postgres.Port)),
		Path:     "/" + c.Postgres.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}
