package cache_test

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/koopa0/system-design/route-cache/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotifier_SubscribeAndPublish(t *testing.T) {
	n := cache.NewNotifier(nil)

	var got []cache.Event
	var mu sync.Mutex
	unsubscribe := n.Subscribe(func(e cache.Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})
	require.Equal(t, 1, n.Len())

	n.Publish(cache.Event{Kind: cache.EventMessage, Message: "SET a:b ~0.06 Kb"})

	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, "SET a:b ~0.06 Kb", got[0].Message)
	assert.False(t, got[0].Time.IsZero(), "publish stamps time")
	mu.Unlock()

	unsubscribe()
	unsubscribe() // 重複呼叫無害
	assert.Zero(t, n.Len())

	n.Publish(cache.Event{Kind: cache.EventMessage})
	mu.Lock()
	assert.Len(t, got, 1)
	mu.Unlock()
}

func TestNotifier_ListenerPanicIsContained(t *testing.T) {
	n := cache.NewNotifier(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	var delivered atomic.Int32
	n.Subscribe(func(cache.Event) { panic("boom") })
	n.Subscribe(func(cache.Event) { delivered.Add(1) })

	assert.NotPanics(t, func() {
		n.Publish(cache.Event{Kind: cache.EventMessage})
	})
	assert.Equal(t, int32(1), delivered.Load())
}

func TestNotifier_ConcurrentSubscribe(t *testing.T) {
	n := cache.NewNotifier(nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unsubscribe := n.Subscribe(func(cache.Event) {})
			unsubscribe()
		}()
		go func() {
			defer wg.Done()
			n.Publish(cache.Event{Kind: cache.EventMessage})
		}()
	}
	wg.Wait()
	assert.Zero(t, n.Len())
}

func TestLogListener(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	listen := cache.LogListener(logger)

	listen(cache.Event{Kind: cache.EventMessage, Op: cache.OpAdd, Key: "c:a", Message: "SET c:a ~0.06 Kb"})
	listen(cache.Event{Kind: cache.EventError, Op: cache.OpGet, Key: "c:*", Err: errors.New("i/o timeout")})
	listen(cache.Event{Kind: cache.EventDisconnected, Err: errors.New("refused")})

	out := buf.String()
	assert.Contains(t, out, "SET c:a ~0.06 Kb")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "i/o timeout")
	assert.Contains(t, out, "cache disconnected")
}
