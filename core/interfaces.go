package core

import (
	"context"
	"time"

	"video-gateway/models"
)

// UpstreamInvoker 抽象对计量上游 API 的一次调用
// credential 为本次调用使用的原始凭证，返回原始响应体
type UpstreamInvoker interface {
	Invoke(ctx context.Context, credential, operation string, params map[string]string) ([]byte, error)
}

// StoredEntry L2 命中返回的完整条目
// 过期时刻和标签必须原样带回：L1 回填要用它们，不能自己编
type StoredEntry struct {
	Payload   []byte
	ExpiresAt time.Time
	Tags      []string
}

// PersistentStore 抽象 L2 持久化层，缓存把它当作哑的 KV 存储
// 所有实现错误由调用方记录日志后吞掉，不影响 L1
type PersistentStore interface {
	Upsert(key string, payload []byte, expiresAt time.Time, tags []string, now time.Time) error
	Find(key string, now time.Time) (*StoredEntry, error)
	Touch(key string, now time.Time) error
	Delete(key string) error
	DeleteByTags(tags []string) (int64, error)
	DeleteExpired(now time.Time) (int64, error)
	Clear(prefix string) (int64, error)
	Count() (int64, error)
}

// FallbackSource 本地只读降级数据源，与配额无关
type FallbackSource interface {
	FindVideo(ctx context.Context, videoID string) (*models.VideoMeta, error)
	SearchVideos(ctx context.Context, query string, limit int) ([]models.VideoMeta, error)
}

// CacheInvalidator 缓存实例的管理面操作
// 管理接口不关心缓存的值类型，按标签/命名空间批量失效
// 多个缓存实例可以共享同一个 PersistentStore：此时 Stats 的持久层计数
// 是共享表的总数，Clear("") 也会清掉其他实例的 L2 行。管理面对所有
// 实例统一操作，按命名空间 Clear 则只影响本实例的键
type CacheInvalidator interface {
	InvalidateByTags(tags []string) int
	Clear(namespace string) int
	Stats() models.CacheStats
}
