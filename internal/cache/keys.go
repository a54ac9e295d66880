package cache

import "strings"

// separator 分隔 prefix 與 entry 名稱
const separator = ":"

// globChars Redis glob 語法的元字元
//
//	*  任意長度
//	?  單一字元
//	[  字元集合，例如 [ab]、[^a]、[a-z]
const globChars = "*?["

// tagInfix 標籤集合放在 prefix@tag:<tag>，不落在 prefix:* 內
const tagInfix = "@tag" + separator

// IsPattern 判斷名稱是否含 glob 元字元
//
// 不含元字元的名稱視為精確名稱，直接組出 key，不走 SCAN。
func IsPattern(s string) bool {
	return strings.ContainsAny(s, globChars)
}

// normalizePrefix 去掉一個結尾分隔符
func normalizePrefix(prefix string) string {
	return strings.TrimSuffix(prefix, separator)
}

// StorageKey 返回 entry 在 Redis 中的 key：<prefix>:<name>
func (c *Cache) StorageKey(name string) string {
	return c.prefix + separator + name
}

// TagKey 返回標籤集合的 key
func (c *Cache) TagKey(tag string) string {
	return c.prefix + tagInfix + tag
}

// scanMatch 組出 SCAN MATCH 參數
//
// prefix 本身可能含元字元（例如 "a*"），必須逐字比對，只有 pattern 部分是 glob。
func (c *Cache) scanMatch(pattern string) string {
	return escapeGlob(c.prefix+separator) + pattern
}

// escapeGlob 以反斜線跳脫 Redis glob 的特殊字元
func escapeGlob(s string) string {
	if !strings.ContainsAny(s, globChars+`]\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// nameFromKey 從 key 還原 entry 名稱
func (c *Cache) nameFromKey(key string) string {
	return strings.TrimPrefix(key, c.prefix+separator)
}
