package cache

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/koopa0/system-design/route-cache/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// AddOption 設定單次寫入
type AddOption func(*addOptions)

type addOptions struct {
	entryType string
	expire    int
	expireSet bool
	tag       string
}

// WithType 設定 entry 類型（例如 Content-Type）
func WithType(t string) AddOption {
	return func(o *addOptions) {
		o.entryType = t
	}
}

// WithExpire 設定 TTL（秒）
//
// 只有正數會真的設定 TTL；0 與 Forever 都不過期。
// 其他負數會讓 Add 返回 ErrInvalidExpire。
func WithExpire(seconds int) AddOption {
	return func(o *addOptions) {
		o.expire = seconds
		o.expireSet = true
	}
}

// WithTag 把 entry 加入標籤集合
func WithTag(tag string) AddOption {
	return func(o *addOptions) {
		o.tag = tag
	}
}

// AddResult 寫入結果
type AddResult struct {
	Name  string
	Entry Entry
	// Reply HSET 的回覆（新增的欄位數）
	Reply int64
}

// Add 寫入一個 entry
//
// 流程：
//  1. 解析 TTL：WithExpire 優先，否則使用實例預設值
//  2. 在同一個 MULTI/EXEC 中 DEL → HSET → EXPIRE（僅 TTL > 0）→ SADD（僅有標籤）
//  3. 發布 SET（以及 SADD）通知
//
// Redis 不可用時返回 (nil, nil)，相當於快取未命中，呼叫端照常處理請求。
//
// 先 DEL 再 HSET：覆寫時舊欄位和舊 TTL 都不會殘留。
// TTL 或標籤寫入失敗時 hash 已經寫入，返回結果的同時返回錯誤（不回滾、不重試）。
func (c *Cache) Add(ctx context.Context, name, body string, opts ...AddOption) (*AddResult, error) {
	if name == "" {
		return nil, apperrors.ErrEmptyName
	}

	var o addOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.expireSet && !ValidExpire(o.expire) {
		return nil, apperrors.ErrInvalidExpire.WithDetails(fmt.Sprintf("expire=%d", o.expire))
	}

	if !c.Connected() {
		return nil, nil
	}

	entry := Entry{
		Name:    name,
		Body:    body,
		Type:    c.entryType,
		Touched: time.Now().UnixMilli(),
		Expire:  c.expire,
	}
	if o.entryType != "" {
		entry.Type = o.entryType
	}
	if o.expireSet {
		entry.Expire = o.expire
	}

	size := SizeOf(entry)
	key := c.StorageKey(name)

	var (
		hset   *redis.IntCmd
		expire *redis.BoolCmd
		sadd   *redis.IntCmd
		tagKey string
	)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		hset = pipe.HSet(ctx, key, entry.fields())
		if entry.Expire > 0 {
			expire = pipe.Expire(ctx, key, time.Duration(entry.Expire)*time.Second)
		}
		if o.tag != "" {
			tagKey = c.TagKey(o.tag)
			sadd = pipe.SAdd(ctx, tagKey, key)
		}
		return nil
	})

	// hash 沒寫進去：整體失敗
	if hsetErr := hset.Err(); hsetErr != nil {
		return nil, c.storeError(OpAdd, key, "write cache entry failed", hsetErr)
	}

	result := &AddResult{
		Name:  name,
		Entry: entry,
		Reply: hset.Val(),
	}

	if expire != nil && expire.Err() != nil {
		c.notifier.Publish(Event{Kind: EventError, Op: OpAdd, Key: key, Err: expire.Err()})
		return result, apperrors.Wrap(expire.Err(), apperrors.ErrCodeExpire,
			fmt.Sprintf("set ttl %ds failed", entry.Expire))
	}
	if sadd != nil && sadd.Err() != nil {
		return result, c.storeError(OpTag, tagKey, "add tag member failed", sadd.Err())
	}
	if err != nil {
		return result, c.storeError(OpAdd, key, "write cache entry failed", err)
	}

	kb := kilobytes(size)
	if entry.Expire > 0 {
		c.publish(Event{
			Op:      OpAdd,
			Key:     key,
			Size:    size,
			TTL:     entry.Expire,
			Message: fmt.Sprintf("SET %s ~%.2f Kb %d TTL (sec)", key, kb, entry.Expire),
		})
	} else {
		c.publish(Event{
			Op:      OpAdd,
			Key:     key,
			Size:    size,
			TTL:     entry.Expire,
			Message: fmt.Sprintf("SET %s ~%.2f Kb", key, kb),
		})
	}
	if sadd != nil {
		c.publish(Event{
			Op:      OpTag,
			Key:     tagKey,
			Message: fmt.Sprintf("SADD %s %q", tagKey, key),
		})
	}

	return result, nil
}
