package cache

import (
	"context"
	"fmt"

	apperrors "github.com/koopa0/system-design/route-cache/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Delete 依名稱或 glob pattern 刪除 entry，返回實際刪除的數量
//
// pattern 解析方式與 Get 相同；空字串會被拒絕，避免誤刪整個命名空間。
// 每個 key 各自 DEL（pipeline），在 Redis Cluster 下也不會跨 slot。
// Redis 不可用時返回 0。
func (c *Cache) Delete(ctx context.Context, pattern string) (int64, error) {
	if pattern == "" {
		return 0, apperrors.ErrEmptyPattern
	}

	if !c.Connected() {
		return 0, nil
	}

	keys, err := c.resolveKeys(ctx, OpDelete, pattern)
	if err != nil {
		return 0, err
	}

	removed, err := c.deleteKeys(ctx, keys)
	if err != nil {
		return 0, c.storeError(OpDelete, c.StorageKey(pattern), "delete cache entries failed", err)
	}
	return removed, nil
}

// deleteKeys 刪除 key 並為每個真正刪除的 key 發布通知
func (c *Cache) deleteKeys(ctx context.Context, keys []string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}

	cmds := make([]*redis.IntCmd, len(keys))
	_, err := c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.Del(ctx, key)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	var removed int64
	for i, cmd := range cmds {
		n := cmd.Val()
		if n == 0 {
			continue
		}
		removed += n
		c.publish(Event{
			Op:      OpDelete,
			Key:     keys[i],
			Count:   int(n),
			Message: fmt.Sprintf("DEL %s", keys[i]),
		})
	}
	return removed, nil
}
