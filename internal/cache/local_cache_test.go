package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// fakeClock 可手动推进的时钟
type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time           { return f.t }
func (f *fakeClock) Advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestCache(maxSize int, ttl time.Duration) (*LocalCache[int], *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLocalCache[int](maxSize, ttl)
	c.now = clock.Now
	return c, clock
}

// counter 记录 create 被调用的次数
type counter struct{ calls map[string]int }

func (c *counter) create(key string, value int) func() int {
	return func() int {
		c.calls[key]++
		return value
	}
}

func TestLocalCache(t *testing.T) {
	t.Run("过期后重新创建", func(t *testing.T) {
		c, clock := newTestCache(0, time.Minute)
		defer c.Close()
		cnt := &counter{calls: map[string]int{}}

		assert.Equal(t, 1, c.GetOrCreate("a", cnt.create("a", 1)))
		assert.Equal(t, 1, c.GetOrCreate("a", cnt.create("a", 2)))
		assert.Equal(t, 1, cnt.calls["a"])

		clock.Advance(2 * time.Minute)
		assert.Equal(t, 3, c.GetOrCreate("a", cnt.create("a", 3)))
		assert.Equal(t, 2, cnt.calls["a"])
	})

	t.Run("访问刷新过期时间", func(t *testing.T) {
		c, clock := newTestCache(0, time.Minute)
		defer c.Close()
		cnt := &counter{calls: map[string]int{}}

		c.GetOrCreate("a", cnt.create("a", 1))
		clock.Advance(50 * time.Second)
		c.GetOrCreate("a", cnt.create("a", 1))
		clock.Advance(50 * time.Second)
		c.GetOrCreate("a", cnt.create("a", 1))
		assert.Equal(t, 1, cnt.calls["a"])
	})

	t.Run("容量满时淘汰最久未访问", func(t *testing.T) {
		c, clock := newTestCache(2, time.Minute)
		defer c.Close()
		cnt := &counter{calls: map[string]int{}}

		c.GetOrCreate("a", cnt.create("a", 1))
		clock.Advance(time.Second)
		c.GetOrCreate("b", cnt.create("b", 2))
		clock.Advance(time.Second)
		c.GetOrCreate("a", cnt.create("a", 1))
		c.GetOrCreate("c", cnt.create("c", 3))

		// b 被淘汰，a 仍在缓存中
		c.GetOrCreate("a", cnt.create("a", 1))
		assert.Equal(t, 1, cnt.calls["a"])
		c.GetOrCreate("b", cnt.create("b", 2))
		assert.Equal(t, 2, cnt.calls["b"])
	})

	t.Run("Close 可重复调用", func(t *testing.T) {
		c, _ := newTestCache(0, time.Minute)
		c.Close()
		assert.NotPanics(t, c.Close)
	})
}
