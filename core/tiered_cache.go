package core

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"video-gateway/models"
)

// TieredCacheConfig 缓存配置
type TieredCacheConfig struct {
	Capacity      int           // L1 条目上限
	SweepInterval time.Duration // 后台清扫周期，<=0 表示不启动
}

// TieredCache 两级缓存：进程内 LRU (L1) + 持久化存储 (L2)
// L1 持有活值；只有 L2 边界做 JSON 序列化
// L2 的任何失败只记日志，不影响请求：请求生命周期内 L1 是权威的
type TieredCache[T any] struct {
	memory *memoryCache[T]
	store  PersistentStore
	clock  TimeSource
	logger *logrus.Logger

	hits   atomic.Uint64
	misses atomic.Uint64

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTieredCache 构造缓存并启动后台清扫
func NewTieredCache[T any](cfg TieredCacheConfig, store PersistentStore, clock TimeSource, logger *logrus.Logger) *TieredCache[T] {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1000
	}
	c := &TieredCache[T]{
		memory: newMemoryCache[T](cfg.Capacity, clock),
		store:  store,
		clock:  clock,
		logger: logger,
		quit:   make(chan struct{}),
	}
	if cfg.SweepInterval > 0 {
		c.wg.Add(1)
		go c.sweepLoop(cfg.SweepInterval)
	}
	return c
}

// fullKey 命名空间拼接规则："ns:key"，空命名空间原样返回
func fullKey(namespace, key string) string {
	if namespace == "" {
		return key
	}
	return namespace + ":" + key
}

// Get 先查 L1；未命中查 L2，命中则反序列化后提升进 L1
func (c *TieredCache[T]) Get(key, namespace string) (T, bool) {
	var zero T
	full := fullKey(namespace, key)

	if v, ok := c.memory.get(full); ok {
		c.hits.Add(1)
		return v, true
	}

	now := c.clock.Now()
	entry, err := c.store.Find(full, now)
	if err != nil {
		c.logger.Warnf("Cache L2 lookup failed for %s: %v", full, err)
		c.misses.Add(1)
		return zero, false
	}
	if entry == nil {
		c.misses.Add(1)
		return zero, false
	}

	var value T
	if err := json.Unmarshal(entry.Payload, &value); err != nil {
		// 损坏的条目当未命中处理并删除，避免反复撞上
		c.logger.Warnf("Cache L2 entry corrupted for %s: %v", full, err)
		if derr := c.store.Delete(full); derr != nil {
			c.logger.Warnf("Failed to drop corrupted entry %s: %v", full, derr)
		}
		c.misses.Add(1)
		return zero, false
	}

	c.promote(full, value, entry)

	// 访问统计属于旁路写，失败只记日志
	if err := c.store.Touch(full, now); err != nil {
		c.logger.Debugf("Cache L2 touch failed for %s: %v", full, err)
	}

	c.hits.Add(1)
	return value, true
}

// promote 把 L2 命中写回 L1
// 过期时刻和标签必须沿用 L2 行里的原值：提升副本不能活过原 TTL，
// 也不能因为丢了标签而躲过 InvalidateByTags
func (c *TieredCache[T]) promote(full string, value T, entry *StoredEntry) {
	c.memory.set(full, value, entry.ExpiresAt, entry.Tags)
}

// Set 写穿两层；L1 写必然成功，L2 失败吞掉
func (c *TieredCache[T]) Set(key, namespace string, value T, ttl time.Duration, tags []string) {
	full := fullKey(namespace, key)
	now := c.clock.Now()
	expiresAt := now.Add(ttl)

	c.memory.set(full, value, expiresAt, tags)

	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Errorf("Cache serialization failed for %s: %v", full, err)
		return
	}
	if err := c.store.Upsert(full, payload, expiresAt, tags, now); err != nil {
		c.logger.Warnf("Cache L2 write failed for %s (L1 still valid): %v", full, err)
	}
}

// Delete 从两层删除，键不存在不算错误
func (c *TieredCache[T]) Delete(key, namespace string) {
	full := fullKey(namespace, key)
	c.memory.delete(full)
	if err := c.store.Delete(full); err != nil {
		c.logger.Warnf("Cache L2 delete failed for %s: %v", full, err)
	}
}

// InvalidateByTags 批量失效两层中带任一给定标签的条目，返回 L1 删除数
func (c *TieredCache[T]) InvalidateByTags(tags []string) int {
	removed := c.memory.invalidateByTags(tags)
	if n, err := c.store.DeleteByTags(tags); err != nil {
		c.logger.Warnf("Cache L2 tag invalidation failed: %v", err)
	} else {
		c.logger.Infof("Invalidated by tags %v: %d memory / %d persistent entries", tags, removed, n)
	}
	return removed
}

// Clear 清空两层，namespace 非空时只清该命名空间
func (c *TieredCache[T]) Clear(namespace string) int {
	removed := c.memory.clear(namespace)
	prefix := ""
	if namespace != "" {
		prefix = namespace + ":"
	}
	if _, err := c.store.Clear(prefix); err != nil {
		c.logger.Warnf("Cache L2 clear failed: %v", err)
	}
	return removed
}

// Stats 两层的规模与命中率估计
func (c *TieredCache[T]) Stats() models.CacheStats {
	persistent, err := c.store.Count()
	if err != nil {
		c.logger.Debugf("Cache L2 count failed: %v", err)
		persistent = -1
	}

	hits := c.hits.Load()
	misses := c.misses.Load()
	hitRate := 0.0
	if hits+misses > 0 {
		hitRate = float64(hits) / float64(hits+misses)
	}

	return models.CacheStats{
		MemoryEntries:     c.memory.len(),
		PersistentEntries: persistent,
		Hits:              hits,
		Misses:            misses,
		HitRate:           hitRate,
	}
}

// sweepLoop 周期性清理两层的过期条目，独立于访问触发的懒删除
func (c *TieredCache[T]) sweepLoop(interval time.Duration) {
	defer c.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := c.clock.Now()
			removed := c.memory.removeExpired(now)
			if n, err := c.store.DeleteExpired(now); err != nil {
				c.logger.Warnf("Cache L2 sweep failed: %v", err)
			} else if removed > 0 || n > 0 {
				c.logger.Debugf("Cache sweep: removed %d memory / %d persistent entries", removed, n)
			}
		case <-c.quit:
			return
		}
	}
}

// Close 停止后台清扫
func (c *TieredCache[T]) Close() {
	c.stopOnce.Do(func() {
		close(c.quit)
	})
	c.wg.Wait()
}
