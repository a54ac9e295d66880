package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/koopa0/system-design/route-cache/internal/audit"
	"github.com/koopa0/system-design/route-cache/internal/audit/migrations"
	"github.com/koopa0/system-design/route-cache/internal/cache"
	"github.com/koopa0/system-design/route-cache/internal/config"
	"github.com/koopa0/system-design/route-cache/internal/handler"
	"github.com/koopa0/system-design/route-cache/internal/metrics"
	"github.com/koopa0/system-design/route-cache/pkg/logger"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "route-cache: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 載入配置
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 設定日誌
	log, err := logger.Init(logger.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	// 連接 Redis
	redisOpts, err := cfg.RedisOptions()
	if err != nil {
		return err
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Redis 啟動時不可用不是致命錯誤：快取會以未命中運作，由 Watch 負責恢復
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Warn("redis not reachable at startup", "addr", redisOpts.Addr, "error", err)
	}

	c := cache.New(redisClient, cache.Options{
		Prefix: cfg.Cache.Prefix,
		Expire: cfg.Cache.Expire,
		Type:   cfg.Cache.Type,
		Logger: log,
	})
	c.Subscribe(cache.LogListener(log))

	go c.Watch(ctx, cfg.Cache.WatchInterval)

	handlerOpts := handler.Options{Logger: log}

	if cfg.Metrics.Enabled {
		m := metrics.New(metrics.DefaultNamespace)
		c.Subscribe(m.Listener())
		handlerOpts.Metrics = m.Handler()
		handlerOpts.MetricsPath = cfg.Metrics.Path
	}

	if cfg.Audit.Enabled {
		sink, closeAudit, err := openAudit(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeAudit()

		c.Subscribe(sink.Listener())
		handlerOpts.Events = sink
	}

	// 設定 HTTP 伺服器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      handler.New(c, handlerOpts).Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// 啟動伺服器
	serverErrors := make(chan error, 1)
	go func() {
		log.Info("route cache test server started on port", "port", cfg.Server.Port, "prefix", c.Prefix())
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case <-ctx.Done():
		log.Info("shutdown signal received")

		// 給予 30 秒時間完成當前請求
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to shutdown server", "error", err)
			// 強制關閉伺服器
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("failed to force close server", "error", closeErr)
			}
		}
	}

	log.Info("server stopped")
	return nil
}

// openAudit 連接 PostgreSQL、執行遷移並啟動審計寫入器
func openAudit(ctx context.Context, cfg *config.Config, log *slog.Logger) (*audit.Sink, func(), error) {
	dsn := cfg.PostgresDSN()

	m, err := migrations.New(dsn, log)
	if err != nil {
		return nil, nil, fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil {
		_ = m.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := m.Close(); err != nil {
		log.Warn("close migrator failed", "error", err)
	}

	// 使用 pgxpool 而非單一連線
	pgConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pgConfig.MaxConns = cfg.Postgres.MaxConns
	pgConfig.MinConns = cfg.Postgres.MinConns

	pool, err := pgxpool.NewWithConfig(ctx, pgConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}

	sink := audit.NewSink(pool, audit.Options{
		BatchSize:     cfg.Audit.BatchSize,
		FlushInterval: cfg.Audit.FlushInterval,
		Logger:        log,
	})

	closeFn := func() {
		// 先寫完緩衝區再關閉連線池
		sink.Close()
		pool.Close()
		log.Info("audit sink closed", "written", sink.Written(), "dropped", sink.Dropped())
	}
	return sink, closeFn, nil
}
