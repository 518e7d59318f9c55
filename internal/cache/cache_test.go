package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// белый ящик: часы подменяются напрямую

func newTestCache(ttl time.Duration, max int) (*TTL, *time.Time) {
	c := NewTTL(ttl, max)
	now := time.Unix(1_000_000, 0)
	c.now = func() time.Time { return now }
	return c, &now
}

// TestTTL_Expiry тестирует протухание записей
func TestTTL_Expiry(t *testing.T) {
	c, now := newTestCache(time.Minute, 10)

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	*now = now.Add(59 * time.Second)
	_, ok = c.Get("a")
	assert.True(t, ok)

	*now = now.Add(2 * time.Second)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len()) // ленивое удаление при чтении
}

// TestTTL_Eviction тестирует вытеснение при переполнении:
// сначала протухшие, затем самая старая запись
func TestTTL_Eviction(t *testing.T) {
	c, now := newTestCache(time.Minute, 3)

	c.Set("old", 1)
	*now = now.Add(10 * time.Second)
	c.Set("mid", 2)
	*now = now.Add(10 * time.Second)
	c.Set("new", 3)

	// переполнение: протухших нет, уходит самая старая
	*now = now.Add(10 * time.Second)
	c.Set("extra", 4)
	_, ok := c.Get("old")
	assert.False(t, ok)
	_, ok = c.Get("mid")
	assert.True(t, ok)
	assert.Equal(t, 3, c.Len())

	// теперь все протухли — вытеснение чистит всё разом
	*now = now.Add(2 * time.Minute)
	c.Set("fresh", 5)
	assert.Equal(t, 1, c.Len())
}

// TestTTL_Basics тестирует Delete/Clear и пустые ключи
func TestTTL_Basics(t *testing.T) {
	c, _ := newTestCache(time.Minute, 10)

	c.Set("", "игнорируется")
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("")
	assert.False(t, ok)

	c.Set("k", "v")
	c.Delete("k")
	_, ok = c.Get("k")
	assert.False(t, ok)

	c.Set("x", 1)
	c.Set("y", 2)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
