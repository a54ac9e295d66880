// Package cache 實現以 Redis 為後端的路由快取
//
// 系統設計問題：
//
//	如何讓昂貴的路由處理（資料庫查詢、模板渲染）在重複請求時直接從快取返回？
//
// 核心挑戰：
//  1. 命名空間：多個服務共用一個 Redis，key 不能互相覆蓋
//  2. 過期：每個 entry 可有自己的 TTL，也可永不過期
//  3. 查詢：支援精確名稱與 glob pattern，精確查詢不能觸發 key 掃描
//  4. 降級：Redis 不可用時請求仍須正常處理（視為快取未命中）
//
// 設計方案：
//
//	✅ 每個 entry 是一個 hash：<prefix>:<name> → {body, type, touched, expire}
//	✅ 過期完全交給 Redis TTL（不做 LRU/LFU）
//	✅ 精確名稱直接 HGETALL，pattern 才走 SCAN
//	✅ 標籤以 Set 記錄成員，支援批次讀取與刪除
//	✅ 通知以發布/訂閱送出，與錯誤返回路徑分離
package cache

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Forever 表示永不過期的 TTL
const Forever = -1

// 預設值
const (
	DefaultPrefix = "cache:"
	DefaultType   = "text/html"
)

// Options 快取實例配置
type Options struct {
	// Prefix 命名空間，結尾的 ":" 會被去掉
	Prefix string
	// Expire 預設 TTL（秒）；nil 表示 Forever，Forever 以外的負數也視為 Forever
	Expire *int
	// Type 預設 entry 類型
	Type string
	// Logger 用於內部錯誤（例如訂閱者 panic）
	Logger *slog.Logger
}

// Cache 快取實例
//
// 並發安全，通常整個程序共用一個。除了配置以外沒有狀態；
// 同名 entry 的並發寫入由 Redis 決定（後寫者勝）。
type Cache struct {
	client    redis.UniversalClient
	prefix    string
	expire    int
	entryType string
	connected atomic.Bool
	notifier  *Notifier
	logger    *slog.Logger
}

// New 建立快取實例
//
// client 由呼叫者建立與關閉；實例假設 client 已連線。
func New(client redis.UniversalClient, opts Options) *Cache {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Type == "" {
		opts.Type = DefaultType
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	expire := Forever
	if opts.Expire != nil {
		expire = *opts.Expire
	}
	if !ValidExpire(expire) {
		opts.Logger.Warn("invalid default expire, using forever", "expire", expire)
		expire = Forever
	}

	c := &Cache{
		client:    client,
		prefix:    normalizePrefix(opts.Prefix),
		expire:    expire,
		entryType: opts.Type,
		notifier:  NewNotifier(opts.Logger),
		logger:    opts.Logger,
	}
	c.connected.Store(true)
	return c
}

// ValidExpire 回報 TTL 是否為 Forever 或非負整數
func ValidExpire(seconds int) bool {
	return seconds == Forever || seconds >= 0
}

// Seconds 方便設定 Options.Expire
func Seconds(n int) *int {
	return &n
}

// Prefix 返回正規化後的命名空間
func (c *Cache) Prefix() string {
	return c.prefix
}

// Expire 返回預設 TTL（秒）
func (c *Cache) Expire() int {
	return c.expire
}

// Type 返回預設 entry 類型
func (c *Cache) Type() string {
	return c.entryType
}

// Client 返回底層 Redis client
func (c *Cache) Client() redis.UniversalClient {
	return c.client
}

// Connected 回報 Redis 是否可用
func (c *Cache) Connected() bool {
	return c.connected.Load()
}

// SetConnected 由連線監控設定可用狀態
//
// 返回狀態是否改變。
func (c *Cache) SetConnected(connected bool) bool {
	return c.connected.Swap(connected) != connected
}

// Subscribe 訂閱通知
func (c *Cache) Subscribe(l Listener) (unsubscribe func()) {
	return c.notifier.Subscribe(l)
}

// Ping 檢查 Redis 連線
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// publish 發布一般訊息
func (c *Cache) publish(e Event) {
	if e.Kind == "" {
		e.Kind = EventMessage
	}
	c.notifier.Publish(e)
}
