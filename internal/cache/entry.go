package cache

import (
	"strconv"
	"time"
)

// hash 欄位名稱
const (
	fieldBody    = "body"
	fieldType    = "type"
	fieldTouched = "touched"
	fieldExpire  = "expire"
)

// Entry 快取項目
//
// 在 Redis 中以 hash 儲存，欄位為 body、type、touched、expire。
type Entry struct {
	Name    string `json:"name"`
	Body    string `json:"body"`
	Type    string `json:"type"`
	Touched int64  `json:"touched"` // 寫入時間（epoch 毫秒）
	Expire  int    `json:"expire"`  // 寫入時決定的 TTL（秒），Forever 表示不過期
}

// TouchedAt 返回寫入時間
func (e Entry) TouchedAt() time.Time {
	return time.UnixMilli(e.Touched)
}

// fields 展開為 HSET 參數
func (e Entry) fields() map[string]any {
	return map[string]any{
		fieldBody:    e.Body,
		fieldType:    e.Type,
		fieldTouched: e.Touched,
		fieldExpire:  e.Expire,
	}
}

// entryFromHash 由 HGETALL 結果還原 entry
//
// 空 hash 表示 key 不存在（可能在 SCAN 與 HGETALL 之間過期），ok 為 false。
func entryFromHash(name string, m map[string]string) (Entry, bool) {
	if len(m) == 0 {
		return Entry{}, false
	}

	e := Entry{
		Name: name,
		Body: m[fieldBody],
		Type: m[fieldType],
	}
	e.Touched, _ = strconv.ParseInt(m[fieldTouched], 10, 64)
	if v, err := strconv.Atoi(m[fieldExpire]); err == nil {
		e.Expire = v
	}
	return e, true
}
