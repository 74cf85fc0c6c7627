package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheGetSet(t *testing.T) {
	c := NewCache[string, int](time.Hour)
	c.Set("a", 1)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = c.Get("b")
	assert.False(t, ok, "Get(b) should miss")

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok, "deleted key should miss")
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache[int, string](10 * time.Millisecond)
	c.Set(1, "one")
	c.Set(2, "two")
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get(1)
	assert.False(t, ok, "expired key should miss")
	assert.Equal(t, 1, c.Len(), "eager eviction on read")
	assert.Equal(t, 1, c.PurgeExpired())
	assert.Equal(t, 0, c.Len())
}
