package cache_test

import (
	"strings"
	"testing"

	"github.com/koopa0/system-design/route-cache/internal/cache"
	"github.com/stretchr/testify/assert"
)

func TestSizeOf(t *testing.T) {
	// 欄位名：body(4) + type(4) + touched(7) + expire(6) = 21 個字元 → 42 bytes
	// 數字：touched + expire = 16 bytes
	const overhead = 42 + 16

	tests := []struct {
		name  string
		entry cache.Entry
		want  int
	}{
		{
			name:  "empty entry",
			entry: cache.Entry{},
			want:  overhead,
		},
		{
			name:  "ascii body",
			entry: cache.Entry{Body: "abc", Type: "text/html"},
			want:  overhead + 6 + 18,
		},
		{
			name:  "cjk body",
			entry: cache.Entry{Body: "快取"},
			want:  overhead + 4,
		},
		{
			name:  "astral plane rune uses surrogate pair",
			entry: cache.Entry{Body: "😀"},
			want:  overhead + 4,
		},
		{
			name:  "numbers do not depend on value",
			entry: cache.Entry{Touched: 1 << 40, Expire: cache.Forever},
			want:  overhead,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cache.SizeOf(tt.entry))
		})
	}
}

func TestSizeOf_GrowsWithBody(t *testing.T) {
	small := cache.SizeOf(cache.Entry{Body: "x"})
	large := cache.SizeOf(cache.Entry{Body: strings.Repeat("x", 1024)})
	assert.Equal(t, 2*1023, large-small)
}
