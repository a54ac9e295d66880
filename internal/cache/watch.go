package cache

import (
	"context"
	"time"
)

// pingTimeout 單次健康檢查的逾時
const pingTimeout = 3 * time.Second

// Watch 定期 Ping Redis 並更新連線狀態
//
// 狀態改變時發布 connected / disconnected 通知。
// 阻塞直到 ctx 結束；通常以 goroutine 執行。
func (c *Cache) Watch(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}

	c.checkConnection(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkConnection(ctx)
		}
	}
}

// checkConnection 執行一次健康檢查
func (c *Cache) checkConnection(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := c.client.Ping(pingCtx).Err()
	cancel()

	// 關閉中的 ctx 不代表 Redis 故障
	if err != nil && ctx.Err() != nil {
		return
	}

	if !c.SetConnected(err == nil) {
		return
	}

	if err == nil {
		c.notifier.Publish(Event{Kind: EventConnected, Op: OpWatch})
		return
	}
	c.notifier.Publish(Event{Kind: EventDisconnected, Op: OpWatch, Err: err})
}
