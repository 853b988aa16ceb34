package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheSetGet(t *testing.T) {
	c := New(4, 0)
	c.Set("a", 1, 0)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestCacheMiss(t *testing.T) {
	c := New(4, 0)
	_, ok := c.Get("missing")
	assert.False(t, ok)
}

func TestCacheExpiry(t *testing.T) {
	c := New(4, 0)
	c.Set("a", 1, time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCacheDelete(t *testing.T) {
	c := New(4, 0)
	c.Set("a", 1, 0)
	c.Delete("a")
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestCacheEvictsOldestWhenFull(t *testing.T) {
	c := New(1, 2)
	c.Set("a", 1, 0)
	c.Set("b", 2, 0)
	c.Set("c", 3, 0)

	_, aOK := c.Get("a")
	_, bOK := c.Get("b")
	_, cOK := c.Get("c")
	assert.False(t, aOK)
	assert.True(t, bOK)
	assert.True(t, cOK)
}
