package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func intp(n int) *int { return &n }

// TestExpireFor 測試狀態碼策略的比對順序
func TestExpireFor(t *testing.T) {
	policy := map[string]int{
		"200": 60,
		"2xx": 30,
		"404": 5,
		"4xx": 1,
	}
	withWildcard := map[string]int{
		"200": 60,
		"xxx": 2,
	}

	tests := []struct {
		name          string
		config        RouteConfig
		status        int
		wantExpire    *int
		wantCacheable bool
	}{
		{"no policy caches 200 with default", RouteConfig{}, 200, nil, true},
		{"no policy caches 200 with expire", RouteConfig{Expire: intp(10)}, 200, intp(10), true},
		{"no policy skips 201", RouteConfig{}, 201, nil, false},
		{"no policy skips 500", RouteConfig{Expire: intp(10)}, 500, nil, false},
		{"exact code wins", RouteConfig{ExpireByStatus: policy}, 200, intp(60), true},
		{"class match", RouteConfig{ExpireByStatus: policy}, 204, intp(30), true},
		{"exact 4xx code", RouteConfig{ExpireByStatus: policy}, 404, intp(5), true},
		{"class 4xx", RouteConfig{ExpireByStatus: policy}, 403, intp(1), true},
		{"unmatched status not cached", RouteConfig{ExpireByStatus: policy}, 500, nil, false},
		{"wildcard", RouteConfig{ExpireByStatus: withWildcard}, 503, intp(2), true},
		{"exact before wildcard", RouteConfig{ExpireByStatus: withWildcard}, 200, intp(60), true},
		{"policy ignores expire", RouteConfig{Expire: intp(99), ExpireByStatus: withWildcard}, 302, intp(2), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expire, ok := tt.config.expireFor(tt.status)
			assert.Equal(t, tt.wantCacheable, ok)
			assert.Equal(t, tt.wantExpire, expire)
		})
	}
}

// TestEntryName 測試 entry 名稱的決定順序
func TestEntryName(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/search?q=go&page=2", nil)

	assert.Equal(t, "/search?q=go&page=2", RouteConfig{}.entryName(r))
	assert.Equal(t, "fixed", RouteConfig{Name: "fixed"}.entryName(r))
	assert.Equal(t, "/search", RouteConfig{
		Name:    "fixed",
		KeyFunc: func(r *http.Request) string { return r.URL.Path },
	}.entryName(r))
}

func TestRecorder(t *testing.T) {
	rec := newRecorder()
	rec.Header().Set("Content-Type", "application/json")
	rec.WriteHeader(http.StatusCreated)
	rec.WriteHeader(http.StatusInternalServerError) // 只有第一次有效
	_, _ = rec.Write([]byte(`{"ok":true}`))

	assert.Equal(t, http.StatusCreated, rec.status)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		rec.replay(w)
		assert.Equal(t, http.StatusCreated, w.Code)
		assert.Equal(t, `{"ok":true}`, w.Body.String())
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
		assert.Equal(t, "MISS", w.Header().Get(CacheHeader))
	}
	assert.Empty(t, rec.Header().Get(CacheHeader), "replay leaves the recorder untouched")
}
