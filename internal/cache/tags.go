package cache

import (
	"context"
	"fmt"

	apperrors "github.com/koopa0/system-design/route-cache/pkg/errors"
)

// Tagged 讀取標籤下所有仍存在的 entry
//
// 標籤集合本身沒有 TTL，成員過期後不會自動移除；
// 這裡讀不到的成員會順手 SREM 掉。
func (c *Cache) Tagged(ctx context.Context, tag string) ([]Entry, error) {
	if tag == "" {
		return nil, apperrors.ErrEmptyTag
	}
	if !c.Connected() {
		return []Entry{}, nil
	}

	tagKey := c.TagKey(tag)
	members, err := c.client.SMembers(ctx, tagKey).Result()
	if err != nil {
		return nil, c.storeError(OpTag, tagKey, "read tag members failed", err)
	}

	entries, missing, err := c.fetch(ctx, members)
	if err != nil {
		return nil, c.storeError(OpTag, tagKey, "read tagged entries failed", err)
	}

	if len(missing) > 0 {
		stale := make([]any, len(missing))
		for i, key := range missing {
			stale[i] = key
		}
		// 清理失敗不影響讀取結果
		if err := c.client.SRem(ctx, tagKey, stale...).Err(); err != nil {
			c.logger.Warn("prune tag members failed", "tag", tagKey, "error", err)
		} else {
			c.publish(Event{
				Op:      OpTag,
				Key:     tagKey,
				Count:   len(missing),
				Message: fmt.Sprintf("SREM %s ~%d stale members", tagKey, len(missing)),
			})
		}
	}

	return entries, nil
}

// DeleteTag 刪除標籤下所有 entry 以及標籤集合，返回刪除的 entry 數量
func (c *Cache) DeleteTag(ctx context.Context, tag string) (int64, error) {
	if tag == "" {
		return 0, apperrors.ErrEmptyTag
	}
	if !c.Connected() {
		return 0, nil
	}

	tagKey := c.TagKey(tag)
	members, err := c.client.SMembers(ctx, tagKey).Result()
	if err != nil {
		return 0, c.storeError(OpTag, tagKey, "read tag members failed", err)
	}

	removed, err := c.deleteKeys(ctx, members)
	if err != nil {
		return 0, c.storeError(OpDelete, tagKey, "delete tagged entries failed", err)
	}

	if err := c.client.Del(ctx, tagKey).Err(); err != nil {
		return removed, c.storeError(OpTag, tagKey, "delete tag set failed", err)
	}
	c.publish(Event{
		Op:      OpTag,
		Key:     tagKey,
		Count:   int(removed),
		Message: fmt.Sprintf("DEL %s", tagKey),
	})

	return removed, nil
}
