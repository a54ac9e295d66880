package cache

import (
	"context"
	"fmt"

	apperrors "github.com/koopa0/system-design/route-cache/pkg/errors"
)

// Get 依名稱或 glob pattern 讀取 entry
//
// 規則：
//   - 空字串表示整個命名空間（<prefix>:*）
//   - 不含 glob 元字元：精確名稱，直接 HGETALL，不會呼叫 SCAN
//   - 含 glob 元字元：SCAN <prefix>:<pattern> 後以 pipeline 讀回每個 hash
//
// 讀不到的 key（SCAN 後才過期）直接略過。任一命令失敗則整體失敗，不返回部分結果。
// 順序跟隨 SCAN 返回的順序，不保證跨呼叫一致。
// Redis 不可用時返回空列表。
func (c *Cache) Get(ctx context.Context, pattern string) ([]Entry, error) {
	if !c.Connected() {
		return []Entry{}, nil
	}

	if pattern == "" {
		pattern = "*"
	}

	key := c.StorageKey(pattern)
	keys, err := c.resolveKeys(ctx, OpGet, pattern)
	if err != nil {
		return nil, err
	}

	entries, _, err := c.fetch(ctx, keys)
	if err != nil {
		return nil, c.storeError(OpGet, key, "read cache entries failed", err)
	}

	c.publish(Event{
		Op:      OpGet,
		Key:     key,
		Count:   len(entries),
		Message: fmt.Sprintf("GET %s ~%d entries", key, len(entries)),
	})

	return entries, nil
}

// Size 估算命名空間內所有 entry 的總大小（位元組）
func (c *Cache) Size(ctx context.Context) (int64, error) {
	entries, err := c.Get(ctx, "")
	if err != nil {
		return 0, err
	}

	var total int64
	for _, e := range entries {
		total += int64(SizeOf(e))
	}
	return total, nil
}

// Lookup 以精確名稱讀取單一 entry，名稱中的 glob 字元不做解釋
//
// 路由快取以 URL 當名稱，URL 常含 "?"，因此走這條路徑。
// ok 為 false 表示未命中（不存在、已過期或 Redis 不可用）。
func (c *Cache) Lookup(ctx context.Context, name string) (entry Entry, ok bool, err error) {
	if name == "" {
		return Entry{}, false, apperrors.ErrEmptyName
	}
	if !c.Connected() {
		return Entry{}, false, nil
	}

	key := c.StorageKey(name)
	m, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Entry{}, false, c.storeError(OpGet, key, "read cache entry failed", err)
	}

	entry, ok = entryFromHash(name, m)
	count := 0
	if ok {
		count = 1
	}
	c.publish(Event{
		Op:      OpGet,
		Key:     key,
		Count:   count,
		Message: fmt.Sprintf("GET %s ~%d entries", key, count),
	})
	return entry, ok, nil
}
