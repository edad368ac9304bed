package models

import (
	"time"

	"gorm.io/gorm"
)

// CacheRecord 持久化缓存条目 (L2 层)
// CacheKey 为带命名空间的完整键，Payload 为 JSON 序列化后的值
type CacheRecord struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	CacheKey       string    `gorm:"uniqueIndex;not null" json:"cache_key"`
	Payload        string    `json:"payload"`
	Tags           string    `gorm:"index" json:"tags"` // 形如 ",video,notes," 便于 LIKE 匹配
	ExpiresAt      time.Time `gorm:"index" json:"expires_at"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	AccessCount    int64     `gorm:"default:0" json:"access_count"`
}

// VideoRecord 本地视频元数据，作为上游不可用时的降级数据源
type VideoRecord struct {
	gorm.Model
	VideoID      string    `gorm:"uniqueIndex;not null" json:"video_id"`
	Title        string    `json:"title"`
	ChannelTitle string    `json:"channel_title"`
	Description  string    `json:"description"`
	Duration     string    `json:"duration"`
	Thumbnail    string    `json:"thumbnail"`
	ViewCount    int64     `gorm:"default:0" json:"view_count"`
	PublishedAt  time.Time `json:"published_at"`
}

// DispatchLog 上游调度日志（异步批量写入）
type DispatchLog struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Operation     string    `json:"operation"`
	Cost          int       `json:"cost"`
	CredentialRef string    `json:"credential_ref"` // 脱敏后的凭证前缀
	Attempt       int       `json:"attempt"`
	Success       bool      `json:"success"`
	ErrorKind     string    `json:"error_kind"`
	Duration      int64     `json:"duration"` // ms
}

// AutoMigrate 自动迁移数据库结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&CacheRecord{},
		&VideoRecord{},
		&DispatchLog{},
	)
}
