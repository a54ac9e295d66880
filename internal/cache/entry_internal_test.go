package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntryFromHash(t *testing.T) {
	t.Run("missing hash", func(t *testing.T) {
		_, ok := entryFromHash("gone", map[string]string{})
		assert.False(t, ok)
	})

	t.Run("all fields", func(t *testing.T) {
		e, ok := entryFromHash("home", map[string]string{
			"body":    "<h1>hi</h1>",
			"type":    "text/html",
			"touched": "1700000000123",
			"expire":  "-1",
		})
		assert.True(t, ok)
		assert.Equal(t, Entry{
			Name:    "home",
			Body:    "<h1>hi</h1>",
			Type:    "text/html",
			Touched: 1700000000123,
			Expire:  Forever,
		}, e)
		assert.Equal(t, int64(1700000000123), e.TouchedAt().UnixMilli())
	})

	t.Run("malformed numbers fall back to zero", func(t *testing.T) {
		e, ok := entryFromHash("x", map[string]string{"body": "b", "touched": "soon", "expire": ""})
		assert.True(t, ok)
		assert.Zero(t, e.Touched)
		assert.Zero(t, e.Expire)
	})
}

func TestEntryFields(t *testing.T) {
	e := Entry{Name: "n", Body: "b", Type: "t", Touched: 42, Expire: 5}
	assert.Equal(t, map[string]any{
		"body":    "b",
		"type":    "t",
		"touched": int64(42),
		"expire":  5,
	}, e.fields())
}

func TestNameFromKey(t *testing.T) {
	c := New(nil, Options{Prefix: "erct:"})
	assert.Equal(t, "users:1", c.nameFromKey("erct:users:1"))
}
