// Package testutils 提供測試用的共用工具和輔助函數
//
// 本套件實作了測試容器（testcontainers）的管理，包括：
//   - Redis 測試容器
//   - PostgreSQL 測試容器（審計日誌）
//   - 測試資料清理
//
// 所有測試容器都會在測試結束時自動清理。
package testutils

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestEnvironment 封裝測試環境
type TestEnvironment struct {
	RedisClient    *redis.Client
	RedisContainer tc.Container
	RedisAddr      string

	PostgresPool *pgxpool.Pool
	PgContainer  tc.Container
	PostgresDSN  string

	Logger *slog.Logger

	clients []*redis.Client
}

// newEnvironment 建立空的測試環境並註冊清理
func newEnvironment(t testing.TB) *TestEnvironment {
	t.Helper()

	env := &TestEnvironment{
		Logger: slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelWarn, // 測試時減少日誌噪音
		})),
	}
	t.Cleanup(env.Cleanup)
	return env
}

// SetupRedis 只啟動 Redis 容器
//
// 使用範例：
//
//	func TestSomething(t *testing.T) {
//	    env := testutils.SetupRedis(t)
//	    c := cache.New(env.RedisClient, cache.Options{Prefix: "test:"})
//	}
func SetupRedis(t testing.TB) *TestEnvironment {
	t.Helper()

	env := newEnvironment(t)
	env.setupRedis(t)
	return env
}

// SetupTestEnvironment 設置完整的測試環境（Redis + PostgreSQL）
func SetupTestEnvironment(t testing.TB) *TestEnvironment {
	t.Helper()

	env := newEnvironment(t)
	env.setupRedis(t)
	env.setupPostgreSQL(t)
	return env
}

// SetupPostgres 只啟動 PostgreSQL 容器
func SetupPostgres(t testing.TB) *TestEnvironment {
	t.Helper()

	env := newEnvironment(t)
	env.setupPostgreSQL(t)
	return env
}

// setupRedis 啟動 Redis 測試容器
func (env *TestEnvironment) setupRedis(t testing.TB) {
	t.Helper()

	ctx := context.Background()

	redisContainer, err := tcredis.Run(ctx,
		"redis:7-alpine",
		tcredis.WithLogLevel(tcredis.LogLevelVerbose),
	)
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	env.RedisContainer = redisContainer

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	env.RedisAddr = endpoint

	env.RedisClient = env.NewRedisClient(t)
}

// NewRedisClient 對同一個容器建立新的 client
//
// hook 只會掛在新 client 上，不影響其他測試。
func (env *TestEnvironment) NewRedisClient(t testing.TB, hooks ...redis.Hook) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr:         env.RedisAddr,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}

	// 驗證連接後才掛 hook，計數不含 PING
	for _, h := range hooks {
		client.AddHook(h)
	}

	env.clients = append(env.clients, client)
	return client
}

// setupPostgreSQL 啟動 PostgreSQL 測試容器
func (env *TestEnvironment) setupPostgreSQL(t testing.TB) {
	t.Helper()

	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		tc.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	env.PgContainer = pgContainer

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}
	env.PostgresDSN = dsn

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("failed to parse postgres config: %v", err)
	}
	config.MaxConns = 10
	config.MinConns = 2

	env.PostgresPool, err = pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		t.Fatalf("failed to create postgres pool: %v", err)
	}

	if err := env.PostgresPool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping postgres: %v", err)
	}
}

// Cleanup 清理測試環境
func (env *TestEnvironment) Cleanup() {
	ctx := context.Background()

	for _, client := range env.clients {
		_ = client.Close()
	}
	env.clients = nil

	if env.PostgresPool != nil {
		env.PostgresPool.Close()
		env.PostgresPool = nil
	}

	if env.RedisContainer != nil {
		_ = env.RedisContainer.Terminate(ctx)
		env.RedisContainer = nil
	}

	if env.PgContainer != nil {
		_ = env.PgContainer.Terminate(ctx)
		env.PgContainer = nil
	}
}

// FlushRedis 清空 Redis 資料（用於測試之間的清理）
func (env *TestEnvironment) FlushRedis(t testing.TB) {
	t.Helper()

	if err := env.RedisClient.FlushDB(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}
