// Package middleware 提供 HTTP 路由快取與通用中介軟體。
//
// 設計目標：
//
//	把昂貴的 GET 回應存進 Redis，重複請求直接由快取返回
//	快取失敗時請求照常處理（可用性優先）
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/koopa0/system-design/route-cache/internal/cache"
	"golang.org/x/sync/singleflight"
)

// CacheHeader 標示回應來源（HIT / MISS / BYPASS）
const CacheHeader = "X-Cache"

// RouteConfig 路由快取設定。
type RouteConfig struct {
	// Name 固定的 entry 名稱；空字串時使用 KeyFunc 或請求 URI
	Name string

	// KeyFunc 從請求提取 entry 名稱，返回空字串表示不快取
	// 範例：
	//   - 忽略 query：func(r *http.Request) string { return r.URL.Path }
	//   - 依使用者：func(r *http.Request) string { return "u:" + userID(r) + r.URL.Path }
	KeyFunc func(r *http.Request) string

	// Expire TTL（秒）；nil 表示使用快取實例的預設值
	Expire *int

	// ExpireByStatus 依狀態碼決定 TTL
	// key 可以是精確狀態碼（"404"）、類別（"2xx"）或萬用（"xxx"），依此順序比對。
	// 沒有比對到的狀態碼不快取。設定後 Expire 不再使用。
	ExpireByStatus map[string]int

	// Type entry 類型；空字串時使用回應的 Content-Type
	Type string

	// Tag 把 entry 加入標籤，方便批次失效
	Tag string

	// Logger 預設 slog.Default()
	Logger *slog.Logger
}

type skipKey struct{}

// SkipCache 標記請求不走快取（例如已登入使用者）
func SkipCache(r *http.Request) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), skipKey{}, true))
}

func skipped(r *http.Request) bool {
	skip, _ := r.Context().Value(skipKey{}).(bool)
	return skip
}

// Route 建立路由快取中介軟體。
//
// 流程：
//  1. 非 GET 或標記略過 → 直接交給 next
//  2. 以精確名稱查詢快取，命中則直接寫回 body 與 Content-Type
//  3. 未命中時執行 next 並緩衝回應；同名的並發未命中只執行一次（singleflight），
//     執行時的 context 不帶取消訊號
//  4. 依狀態碼策略決定是否寫入快取
//
// 使用範例：
//
//	c := cache.New(redisClient, cache.Options{Prefix: "site:"})
//	mux.Handle("GET /report", middleware.Route(c, middleware.RouteConfig{
//	    Expire: cache.Seconds(60),
//	})(reportHandler))
func Route(c *cache.Cache, config RouteConfig) func(http.Handler) http.Handler {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	var group singleflight.Group

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || skipped(r) {
				w.Header().Set(CacheHeader, "BYPASS")
				next.ServeHTTP(w, r)
				return
			}

			name := config.entryName(r)
			if name == "" {
				w.Header().Set(CacheHeader, "BYPASS")
				next.ServeHTTP(w, r)
				return
			}

			entry, ok, err := c.Lookup(r.Context(), name)
			if err != nil {
				// 降級：視為未命中
				config.Logger.Warn("route cache lookup failed", "name", name, "error", err)
			}
			if ok {
				writeEntry(w, entry)
				return
			}

			v, _, _ := group.Do(name, func() (any, error) {
				// 結果會交給所有等待中的請求，不能隨發起者的連線中斷而取消
				shared := r.WithContext(context.WithoutCancel(r.Context()))

				rec := newRecorder()
				next.ServeHTTP(rec, shared)
				config.store(shared.Context(), c, name, rec)
				return rec, nil
			})
			v.(*recorder).replay(w)
		})
	}
}

// entryName 決定 entry 名稱
func (config RouteConfig) entryName(r *http.Request) string {
	if config.KeyFunc != nil {
		return config.KeyFunc(r)
	}
	if config.Name != "" {
		return config.Name
	}
	return r.URL.RequestURI()
}

// expireFor 依狀態碼決定是否快取及 TTL
//
// expire 為 nil 表示使用快取實例的預設值。
func (config RouteConfig) expireFor(status int) (expire *int, cacheable bool) {
	if config.ExpireByStatus == nil {
		if status != http.StatusOK {
			return nil, false
		}
		return config.Expire, true
	}

	code := strconv.Itoa(status)
	for _, k := range []string{code, code[:1] + "xx", "xxx"} {
		if seconds, ok := config.ExpireByStatus[k]; ok {
			return &seconds, true
		}
	}
	return nil, false
}

// store 依策略寫入快取；失敗只記日誌
func (config RouteConfig) store(ctx context.Context, c *cache.Cache, name string, rec *recorder) {
	expire, cacheable := config.expireFor(rec.status)
	if !cacheable {
		return
	}

	opts := []cache.AddOption{cache.WithType(config.entryType(rec))}
	if expire != nil {
		opts = append(opts, cache.WithExpire(*expire))
	}
	if config.Tag != "" {
		opts = append(opts, cache.WithTag(config.Tag))
	}

	if _, err := c.Add(ctx, name, rec.body.String(), opts...); err != nil {
		config.Logger.Warn("route cache add failed", "name", name, "error", err)
	}
}

// entryType 設定的類型優先，其次是回應的 Content-Type
func (config RouteConfig) entryType(rec *recorder) string {
	if config.Type != "" {
		return config.Type
	}
	return rec.header.Get("Content-Type")
}

// writeEntry 以快取內容回應
func writeEntry(w http.ResponseWriter, entry cache.Entry) {
	if entry.Type != "" {
		w.Header().Set("Content-Type", entry.Type)
	}
	w.Header().Set(CacheHeader, "HIT")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(entry.Body))
}
