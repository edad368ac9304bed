package core

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// Orchestrator 缓存查-取-填门面 (get-or-set)
// singleflight 只是省去同键并发未命中的重复上游调用，不改变可观测语义
type Orchestrator[T any] struct {
	cache *TieredCache[T]
	group singleflight.Group
}

// NewOrchestrator 构造门面
func NewOrchestrator[T any](cache *TieredCache[T]) *Orchestrator[T] {
	return &Orchestrator[T]{cache: cache}
}

// GetOrSet 命中直接返回；未命中调 fetch，成功后写穿缓存
// fetch 的错误原样抛出：是否用旧数据或报错由调用方决定
func (o *Orchestrator[T]) GetOrSet(ctx context.Context, key, namespace string, ttl time.Duration,
	tags []string, fetch func(context.Context) (T, error)) (T, error) {
	var zero T

	if v, ok := o.cache.Get(key, namespace); ok {
		return v, nil
	}

	full := fullKey(namespace, key)
	v, err, _ := o.group.Do(full, func() (interface{}, error) {
		// 排队期间可能已被并发请求填好
		if v, ok := o.cache.Get(key, namespace); ok {
			return v, nil
		}

		value, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		o.cache.Set(key, namespace, value, ttl, tags)
		return value, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

// Cache 暴露底层缓存供管理面使用
func (o *Orchestrator[T]) Cache() *TieredCache[T] {
	return o.cache
}
