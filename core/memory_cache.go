package core

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// memoryEntry L1 条目：持有活值，序列化只发生在 L2 边界
type memoryEntry[T any] struct {
	key            string // 带命名空间的完整键
	value          T
	expiresAt      time.Time
	tags           []string
	createdAt      time.Time
	lastAccessedAt time.Time
	accessCount    int64
	elem           *list.Element
}

// memoryCache 进程内有界缓存 (L1)
// map + 双向链表实现 O(1) LRU：链表头是最近访问，尾是最久未访问
type memoryCache[T any] struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*memoryEntry[T]
	lruList  *list.List // Element.Value 为 *memoryEntry[T]
	clock    TimeSource
}

func newMemoryCache[T any](capacity int, clock TimeSource) *memoryCache[T] {
	return &memoryCache[T]{
		capacity: capacity,
		entries:  make(map[string]*memoryEntry[T]),
		lruList:  list.New(),
		clock:    clock,
	}
}

// get 命中时更新访问统计并移到链表头；过期条目懒惰删除
func (m *memoryCache[T]) get(key string) (T, bool) {
	var zero T
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return zero, false
	}

	now := m.clock.Now()
	if !now.Before(e.expiresAt) {
		m.removeLocked(e)
		return zero, false
	}

	e.lastAccessedAt = now
	e.accessCount++
	m.lruList.MoveToFront(e.elem)
	return e.value, true
}

// set 满容量时先淘汰最久未访问的条目再插入
func (m *memoryCache[T]) set(key string, value T, expiresAt time.Time, tags []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if e, ok := m.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		e.tags = tags
		e.lastAccessedAt = now
		m.lruList.MoveToFront(e.elem)
		return
	}

	for len(m.entries) >= m.capacity {
		oldest := m.lruList.Back()
		if oldest == nil {
			break
		}
		m.removeLocked(oldest.Value.(*memoryEntry[T]))
	}

	e := &memoryEntry[T]{
		key:            key,
		value:          value,
		expiresAt:      expiresAt,
		tags:           tags,
		createdAt:      now,
		lastAccessedAt: now,
	}
	e.elem = m.lruList.PushFront(e)
	m.entries[key] = e
}

func (m *memoryCache[T]) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		m.removeLocked(e)
	}
}

// invalidateByTags 删除标签集与给定标签有交集的所有条目
func (m *memoryCache[T]) invalidateByTags(tags []string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	tagSet := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		tagSet[t] = struct{}{}
	}

	removed := 0
	for _, e := range m.entries {
		for _, t := range e.tags {
			if _, hit := tagSet[t]; hit {
				m.removeLocked(e)
				removed++
				break
			}
		}
	}
	return removed
}

// clear 清空，namespace 非空时按前缀 "ns:" 过滤
func (m *memoryCache[T]) clear(namespace string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if namespace == "" {
		n := len(m.entries)
		m.entries = make(map[string]*memoryEntry[T])
		m.lruList.Init()
		return n
	}

	prefix := namespace + ":"
	removed := 0
	for _, e := range m.entries {
		if strings.HasPrefix(e.key, prefix) {
			m.removeLocked(e)
			removed++
		}
	}
	return removed
}

// removeExpired 后台清扫入口，防止从不被读的键堆积
func (m *memoryCache[T]) removeExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, e := range m.entries {
		if !now.Before(e.expiresAt) {
			m.removeLocked(e)
			removed++
		}
	}
	return removed
}

func (m *memoryCache[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// removeLocked 调用方必须持锁
func (m *memoryCache[T]) removeLocked(e *memoryEntry[T]) {
	m.lruList.Remove(e.elem)
	delete(m.entries, e.key)
}
