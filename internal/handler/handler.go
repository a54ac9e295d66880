// Package handler 組裝示範伺服器的 HTTP 路由
//
// 兩組路由：
//   - 示範路由（/1sec、/default_expire、/never_expire ...）經由路由快取回應
//   - 管理 API（/api/v1/...）直接操作快取實例
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/koopa0/system-design/route-cache/internal/audit"
	"github.com/koopa0/system-design/route-cache/internal/cache"
	"github.com/koopa0/system-design/route-cache/internal/middleware"
	apperrors "github.com/koopa0/system-design/route-cache/pkg/errors"
)

// EventLog 審計記錄查詢
type EventLog interface {
	Recent(ctx context.Context, limit int) ([]audit.Record, error)
}

// Options 處理器設定
type Options struct {
	Logger *slog.Logger
	// Metrics 掛在 MetricsPath 的 handler；nil 表示不提供
	Metrics     http.Handler
	MetricsPath string
	// Events nil 表示未啟用審計
	Events EventLog
}

// Handler HTTP 請求處理器
type Handler struct {
	cache  *cache.Cache
	opts   Options
	logger *slog.Logger
}

// New 創建 HTTP 處理器
func New(c *cache.Cache, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	return &Handler{
		cache:  c,
		opts:   opts,
		logger: opts.Logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	route := func(expire *int) func(http.Handler) http.Handler {
		return middleware.Route(h.cache, middleware.RouteConfig{
			Expire: expire,
			Type:   "application/json",
			Logger: h.logger,
		})
	}

	// 示範路由
	mux.Handle("GET /{$}", middleware.Route(h.cache, middleware.RouteConfig{Logger: h.logger})(http.HandlerFunc(h.index)))
	mux.Handle("GET /1sec", route(cache.Seconds(1))(http.HandlerFunc(h.timestamp)))
	mux.Handle("GET /default_expire", route(nil)(http.HandlerFunc(h.timestamp)))
	mux.Handle("GET /never_expire", route(cache.Seconds(cache.Forever))(http.HandlerFunc(h.timestamp)))
	mux.HandleFunc("GET /delete_never_expire", h.deleteNeverExpire)

	// 管理 API
	mux.HandleFunc("GET /api/v1/entries", h.listEntries)
	mux.HandleFunc("DELETE /api/v1/entries", h.deleteEntries)
	mux.HandleFunc("GET /api/v1/size", h.size)
	mux.HandleFunc("GET /api/v1/tags/{tag}", h.listTag)
	mux.HandleFunc("DELETE /api/v1/tags/{tag}", h.deleteTag)
	mux.HandleFunc("GET /api/v1/events", h.events)

	// 健康檢查
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /ready", h.ready)

	if h.opts.Metrics != nil {
		mux.Handle("GET "+h.opts.MetricsPath, h.opts.Metrics)
	}

	// 中間件鏈：請求 ID -> 日誌 -> 恢復 -> 業務處理
	return middleware.Chain(mux,
		middleware.RequestID,
		middleware.Logger(h.logger),
		middleware.Recoverer(h.logger),
	)
}

// 請求和響應結構
type timestampResponse struct {
	Timestamp int64 `json:"timestamp"`
}

type entriesResponse struct {
	Pattern string        `json:"pattern"`
	Count   int           `json:"count"`
	Entries []cache.Entry `json:"entries"`
}

type deleteResponse struct {
	Pattern string `json:"pattern"`
	Deleted int64  `json:"deleted"`
}

type sizeResponse struct {
	Prefix string `json:"prefix"`
	Bytes  int64  `json:"bytes"`
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// index 首頁
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "<h1>route cache</h1><p>rendered at %s</p>", time.Now().Format(time.RFC3339))
}

// timestamp 返回產生回應的時間（秒），快取命中時會是舊值
func (h *Handler) timestamp(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, timestampResponse{Timestamp: time.Now().Unix()})
}

// deleteNeverExpire 刪除 /never_expire 的快取
func (h *Handler) deleteNeverExpire(w http.ResponseWriter, r *http.Request) {
	count, err := h.cache.Delete(r.Context(), "/never_expire")
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "count:%d", count)
}

// listEntries 依 pattern 列出 entry；未指定時列出全部
func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")

	entries, err := h.cache.Get(r.Context(), pattern)
	if err != nil {
		h.respondAppError(w, err)
		return
	}

	h.respondJSON(w, entriesResponse{
		Pattern: pattern,
		Count:   len(entries),
		Entries: entries,
	})
}

// deleteEntries 依 pattern 刪除 entry
func (h *Handler) deleteEntries(w http.ResponseWriter, r *http.Request) {
	pattern := r.URL.Query().Get("pattern")

	deleted, err := h.cache.Delete(r.Context(), pattern)
	if err != nil {
		h.respondAppError(w, err)
		return
	}

	h.respondJSON(w, deleteResponse{Pattern: pattern, Deleted: deleted})
}

// size 命名空間總大小
func (h *Handler) size(w http.ResponseWriter, r *http.Request) {
	n, err := h.cache.Size(r.Context())
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	h.respondJSON(w, sizeResponse{Prefix: h.cache.Prefix(), Bytes: n})
}

// listTag 列出標籤下的 entry
func (h *Handler) listTag(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")

	entries, err := h.cache.Tagged(r.Context(), tag)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	h.respondJSON(w, entriesResponse{Pattern: tag, Count: len(entries), Entries: entries})
}

// deleteTag 刪除標籤下的 entry
func (h *Handler) deleteTag(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")

	deleted, err := h.cache.DeleteTag(r.Context(), tag)
	if err != nil {
		h.respondAppError(w, err)
		return
	}
	h.respondJSON(w, deleteResponse{Pattern: tag, Deleted: deleted})
}

// events 最近的審計記錄
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	if h.opts.Events == nil {
		h.respondError(w, apperrors.ErrCodeNotFound, "audit log disabled", http.StatusNotFound)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			h.respondError(w, apperrors.ErrCodeInvalidInput, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	records, err := h.opts.Events.Recent(r.Context(), limit)
	if err != nil {
		h.logger.Error("query audit events failed", "error", err)
		h.respondError(w, apperrors.ErrCodeInternal, "query audit events failed", http.StatusInternalServerError)
		return
	}
	h.respondJSON(w, records)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

// ready 就緒檢查
func (h *Handler) ready(w http.ResponseWriter, r *http.Request) {
	if err := h.cache.Ping(r.Context()); err != nil {
		h.respondError(w, apperrors.ErrCodeUnavailable, "redis not ready", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "Ready")
}

func (h *Handler) respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// respondAppError 依錯誤碼決定狀態碼
func (h *Handler) respondAppError(w http.ResponseWriter, err error) {
	code := apperrors.Code(err)
	if code == "" {
		code = apperrors.ErrCodeInternal
	}

	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case apperrors.ErrCodeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrCodeUnavailable:
		status = http.StatusServiceUnavailable
	case apperrors.ErrCodeStore, apperrors.ErrCodeExpire:
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("cache operation failed", "error", err)
	}
	h.respondError(w, code, err.Error(), status)
}

func (h *Handler) respondError(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{
		Code:  code,
		Error: message,
	}); err != nil {
		h.logger.Error("failed to encode error response", "error", err, "message", message)
	}
}
