package cache

import (
	"sync"
	"time"
)

// LocalCache 进程内的 TTL 缓存
//
// 每次读取都会刷新过期时间，因此长期不活跃的条目会被清理；
// 达到容量上限时淘汰最早过期（即最久未访问）的条目。
type LocalCache[V any] struct {
	mu      sync.Mutex
	items   map[string]*cacheEntry[V]
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewLocalCache 创建本地缓存并启动后台清理，不再使用时调用 Close
//
// 参数:
//   - maxSize: 最大缓存条目数，<= 0 表示不限制
//   - ttl: 条目空闲多久后过期
func NewLocalCache[V any](maxSize int, ttl time.Duration) *LocalCache[V] {
	c := &LocalCache[V]{
		items:   make(map[string]*cacheEntry[V]),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
		stop:    make(chan struct{}),
	}

	interval := ttl
	if interval <= 0 || interval > time.Minute {
		interval = time.Minute
	}
	go c.cleanupLoop(interval)

	return c
}

// GetOrCreate 返回已有值，不存在时用 create 创建并保存
func (c *LocalCache[V]) GetOrCreate(key string, create func() V) V {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.items[key]; ok && !c.now().After(entry.expiresAt) {
		entry.expiresAt = c.now().Add(c.ttl)
		return entry.value
	}
	value := create()
	c.setLocked(key, value)
	return value
}

// Close 停止后台清理
func (c *LocalCache[V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *LocalCache[V]) setLocked(key string, value V) {
	if _, exists := c.items[key]; !exists && c.maxSize > 0 && len(c.items) >= c.maxSize {
		c.evictLocked()
	}
	c.items[key] = &cacheEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// evictLocked 先清理过期条目，仍然满时淘汰最早过期的一个
func (c *LocalCache[V]) evictLocked() {
	if c.purgeLocked() > 0 {
		return
	}
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for k, e := range c.items {
		if oldestKey == "" || e.expiresAt.Before(oldestAt) {
			oldestKey, oldestAt = k, e.expiresAt
		}
	}
	delete(c.items, oldestKey)
}

func (c *LocalCache[V]) purgeLocked() int {
	now := c.now()
	removed := 0
	for k, e := range c.items {
		if now.After(e.expiresAt) {
			delete(c.items, k)
			removed++
		}
	}
	return removed
}

// cleanupLoop 定期清理过期条目
func (c *LocalCache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			c.purgeLocked()
			c.mu.Unlock()
		}
	}
}
