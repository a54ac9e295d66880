package audit_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/koopa0/system-design/route-cache/internal/audit"
	"github.com/koopa0/system-design/route-cache/internal/audit/migrations"
	"github.com/koopa0/system-design/route-cache/internal/cache"
	"github.com/koopa0/system-design/route-cache/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupSchema 啟動 PostgreSQL 並建立資料表
func setupSchema(t *testing.T) *testutils.TestEnvironment {
	t.Helper()

	env := testutils.SetupPostgres(t)

	m, err := migrations.New(env.PostgresDSN, env.Logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	require.NoError(t, m.Up())
	return env
}

func truncate(t *testing.T, env *testutils.TestEnvironment) {
	t.Helper()
	_, err := env.PostgresPool.Exec(context.Background(), "TRUNCATE cache_events RESTART IDENTITY")
	require.NoError(t, err)
}

func TestMigrator(t *testing.T) {
	env := testutils.SetupPostgres(t)

	m, err := migrations.New(env.PostgresDSN, env.Logger)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// 重複執行無副作用
	require.NoError(t, m.Up())

	require.NoError(t, m.Down())
	var exists bool
	err = env.PostgresPool.QueryRow(context.Background(),
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'cache_events')").Scan(&exists)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSink_WritesNotifications(t *testing.T) {
	env := setupSchema(t)
	ctx := context.Background()

	t.Run("flush by batch size", func(t *testing.T) {
		truncate(t, env)
		sink := audit.NewSink(env.PostgresPool, audit.Options{
			BatchSize:     5,
			FlushInterval: time.Hour,
			Logger:        env.Logger,
		})
		defer sink.Close()

		n := cache.NewNotifier(env.Logger)
		n.Subscribe(sink.Listener())
		for i := 0; i < 5; i++ {
			n.Publish(cache.Event{
				Kind:    cache.EventMessage,
				Op:      cache.OpAdd,
				Key:     fmt.Sprintf("c:k%d", i),
				Message: fmt.Sprintf("SET c:k%d ~0.06 Kb", i),
				Size:    60,
				TTL:     i,
			})
		}

		testutils.WaitForCondition(t, func() bool { return sink.Written() == 5 }, 5*time.Second, "batch written")

		records, err := sink.Recent(ctx, 10)
		require.NoError(t, err)
		require.Len(t, records, 5)
		assert.Equal(t, "c:k4", records[0].Key, "newest first")
		assert.Equal(t, "SET c:k4 ~0.06 Kb", records[0].Message)
		assert.Equal(t, "message", records[0].Kind)
		assert.Equal(t, cache.OpAdd, records[0].Op)
		assert.Equal(t, 60, records[0].Size)
		assert.Equal(t, 4, records[0].TTL)
	})

	t.Run("flush by interval", func(t *testing.T) {
		truncate(t, env)
		sink := audit.NewSink(env.PostgresPool, audit.Options{
			BatchSize:     100,
			FlushInterval: 50 * time.Millisecond,
			Logger:        env.Logger,
		})
		defer sink.Close()

		sink.Listener()(cache.Event{Kind: cache.EventMessage, Op: cache.OpDelete, Key: "c:a", Message: "DEL c:a"})

		testutils.WaitForCondition(t, func() bool { return sink.Written() == 1 }, 5*time.Second, "interval flush")
	})

	t.Run("close flushes remaining records", func(t *testing.T) {
		truncate(t, env)
		sink := audit.NewSink(env.PostgresPool, audit.Options{
			BatchSize:     100,
			FlushInterval: time.Hour,
			Logger:        env.Logger,
		})

		for i := 0; i < 3; i++ {
			assert.True(t, sink.Enqueue(audit.Record{Kind: "message", Op: cache.OpGet, Message: "GET c:* ~0 entries", CreatedAt: time.Now()}))
		}
		sink.Close()
		sink.Close() // 重複呼叫無害

		assert.Equal(t, int64(3), sink.Written())

		// 關閉後的通知直接丟棄
		sink.Listener()(cache.Event{Kind: cache.EventMessage})
		assert.Equal(t, int64(1), sink.Dropped())

		records, err := audit.Recent(ctx, env.PostgresPool, 0)
		require.NoError(t, err)
		assert.Len(t, records, 3)
	})

	t.Run("error events keep the error text", func(t *testing.T) {
		truncate(t, env)
		sink := audit.NewSink(env.PostgresPool, audit.Options{BatchSize: 1, Logger: env.Logger})

		sink.Listener()(cache.Event{Kind: cache.EventError, Op: cache.OpGet, Key: "c:x", Err: errors.New("i/o timeout")})
		sink.Close()

		records, err := sink.Recent(ctx, 1)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "error", records[0].Kind)
		assert.Equal(t, "i/o timeout", records[0].Message)
	})
}
