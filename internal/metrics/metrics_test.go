package metrics_test

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koopa0/system-design/route-cache/internal/cache"
	"github.com/koopa0/system-design/route-cache/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics_Listener(t *testing.T) {
	m := metrics.New("")
	n := cache.NewNotifier(nil)
	n.Subscribe(m.Listener())

	n.Publish(cache.Event{Kind: cache.EventMessage, Op: cache.OpAdd, Size: 100})
	n.Publish(cache.Event{Kind: cache.EventMessage, Op: cache.OpAdd, Size: 5000})
	n.Publish(cache.Event{Kind: cache.EventMessage, Op: cache.OpGet, Count: 2})
	n.Publish(cache.Event{Kind: cache.EventMessage, Op: cache.OpGet, Count: 0})
	n.Publish(cache.Event{Kind: cache.EventMessage, Op: cache.OpGet, Count: 0})
	n.Publish(cache.Event{Kind: cache.EventMessage, Op: cache.OpDelete, Count: 1})
	n.Publish(cache.Event{Kind: cache.EventError, Op: cache.OpGet, Err: errors.New("timeout")})
	n.Publish(cache.Event{Kind: cache.EventDisconnected})

	out := scrape(t, m)

	tests := []string{
		`routecache_operations_total{op="add"} 2`,
		`routecache_operations_total{op="get"} 3`,
		`routecache_operations_total{op="delete"} 1`,
		`routecache_lookup_results_total{result="hit"} 1`,
		`routecache_lookup_results_total{result="miss"} 2`,
		`routecache_store_errors_total{op="get"} 1`,
		`routecache_entry_bytes_count 2`,
		`routecache_entry_bytes_sum 5100`,
		`routecache_connected 0`,
	}
	for _, want := range tests {
		assert.Contains(t, out, want)
	}

	n.Publish(cache.Event{Kind: cache.EventConnected})
	assert.Contains(t, scrape(t, m), `routecache_connected 1`)
}

func TestMetrics_Namespace(t *testing.T) {
	m := metrics.New("site")
	m.Listener()(cache.Event{Kind: cache.EventMessage, Op: cache.OpAdd, Size: 1})

	out := scrape(t, m)
	assert.Contains(t, out, `site_operations_total{op="add"} 1`)
	assert.Contains(t, out, `site_connected 1`)
	assert.Contains(t, out, "go_goroutines")
}
