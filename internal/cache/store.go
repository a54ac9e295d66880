package cache

import (
	"context"

	apperrors "github.com/koopa0/system-design/route-cache/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// scanCount 每次 SCAN 的建議數量
const scanCount = 100

// storeError 包裝 Redis 錯誤並發布 error 通知
//
// 錯誤一律原樣交回呼叫者，不重試。
func (c *Cache) storeError(op, key, message string, err error) error {
	c.notifier.Publish(Event{Kind: EventError, Op: op, Key: key, Err: err})
	return apperrors.Wrap(err, apperrors.ErrCodeStore, message)
}

// resolveKeys 把名稱或 pattern 解析為 key 列表
//
// 精確名稱直接組出 key，不呼叫 SCAN。
func (c *Cache) resolveKeys(ctx context.Context, op, pattern string) ([]string, error) {
	if !IsPattern(pattern) {
		return []string{c.StorageKey(pattern)}, nil
	}

	match := c.scanMatch(pattern)
	keys, err := c.scan(ctx, match)
	if err != nil {
		return nil, c.storeError(op, match, "scan keys failed", err)
	}
	return keys, nil
}

// scan 以 SCAN 列舉符合 match 的 key
//
// SCAN 可能重複返回同一個 key，這裡去重並保留首次出現的順序。
func (c *Cache) scan(ctx context.Context, match string) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string

	iter := c.client.Scan(ctx, 0, match, scanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// fetch 以 pipeline 一次讀回多個 hash
//
// 不存在（已過期）的 key 會被略過；任一命令失敗則整體失敗。
// missing 返回讀不到的 key，供標籤清理使用。
func (c *Cache) fetch(ctx context.Context, keys []string) (entries []Entry, missing []string, err error) {
	entries = make([]Entry, 0, len(keys))
	if len(keys) == 0 {
		return entries, nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = c.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	for i, cmd := range cmds {
		m, err := cmd.Result()
		if err != nil {
			return nil, nil, err
		}
		entry, ok := entryFromHash(c.nameFromKey(keys[i]), m)
		if !ok {
			missing = append(missing, keys[i])
			continue
		}
		entries = append(entries, entry)
	}
	return entries, missing, nil
}
