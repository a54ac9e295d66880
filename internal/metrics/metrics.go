// Package metrics 把快取通知轉成 Prometheus 指標
package metrics

import (
	"net/http"

	"github.com/koopa0/system-design/route-cache/internal/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace 指標名稱前綴
const DefaultNamespace = "routecache"

// entry 大小的 bucket（位元組）
var sizeBuckets = prometheus.ExponentialBuckets(64, 4, 8)

// Metrics 快取指標
type Metrics struct {
	registry *prometheus.Registry

	operations  *prometheus.CounterVec
	lookups     *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
	entryBytes  prometheus.Histogram
	connected   prometheus.Gauge
}

// New 建立獨立 registry 的指標集合
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of cache operations",
			},
			[]string{"op"},
		),

		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "lookup_results_total",
				Help:      "Cache reads by result",
			},
			[]string{"result"},
		),

		storeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_errors_total",
				Help:      "Failed store operations",
			},
			[]string{"op"},
		),

		entryBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "entry_bytes",
				Help:      "Approximate size of written entries in bytes",
				Buckets:   sizeBuckets,
			},
		),

		connected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connected",
				Help:      "Whether the backing store is reachable (1) or not (0)",
			},
		),
	}

	registry.MustRegister(
		m.operations,
		m.lookups,
		m.storeErrors,
		m.entryBytes,
		m.connected,
	)

	// 快取實例建立時即視為已連線
	m.connected.Set(1)
	return m
}

// Listener 返回訂閱快取通知的函數
//
// 用法：c.Subscribe(m.Listener())
func (m *Metrics) Listener() cache.Listener {
	return m.observe
}

func (m *Metrics) observe(e cache.Event) {
	switch e.Kind {
	case cache.EventConnected:
		m.connected.Set(1)
	case cache.EventDisconnected:
		m.connected.Set(0)
	case cache.EventError:
		m.storeErrors.WithLabelValues(e.Op).Inc()
	case cache.EventMessage:
		m.operations.WithLabelValues(e.Op).Inc()
		switch e.Op {
		case cache.OpAdd:
			m.entryBytes.Observe(float64(e.Size))
		case cache.OpGet:
			if e.Count > 0 {
				m.lookups.WithLabelValues("hit").Inc()
			} else {
				m.lookups.WithLabelValues("miss").Inc()
			}
		}
	}
}

// Registry 返回底層 registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler 返回 /metrics 的 HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
