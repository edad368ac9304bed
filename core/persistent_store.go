package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"video-gateway/models"
)

// GormStore 基于 gorm 的 L2 持久化层实现
// 缓存把它当哑存储用；所有错误由 TieredCache 记录后吞掉
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 创建持久化存储
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Upsert 按完整键写入或覆盖
func (s *GormStore) Upsert(key string, payload []byte, expiresAt time.Time, tags []string, now time.Time) error {
	var record models.CacheRecord
	err := s.db.Where("cache_key = ?", key).First(&record).Error

	if err == nil {
		record.Payload = string(payload)
		record.Tags = encodeTags(tags)
		record.ExpiresAt = expiresAt
		record.LastAccessedAt = now
		return s.db.Save(&record).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	record = models.CacheRecord{
		CacheKey:       key,
		Payload:        string(payload),
		Tags:           encodeTags(tags),
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	return s.db.Create(&record).Error
}

// Find 查找未过期条目；查到已过期的顺手删掉
// 命中时带回条目的真实过期时刻和标签，供 L1 回填使用
func (s *GormStore) Find(key string, now time.Time) (*StoredEntry, error) {
	var record models.CacheRecord
	err := s.db.Where("cache_key = ?", key).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !now.Before(record.ExpiresAt) {
		s.db.Delete(&record)
		return nil, nil
	}
	return &StoredEntry{
		Payload:   []byte(record.Payload),
		ExpiresAt: record.ExpiresAt,
		Tags:      decodeTags(record.Tags),
	}, nil
}

// Touch 更新访问统计，尽力而为
func (s *GormStore) Touch(key string, now time.Time) error {
	return s.db.Model(&models.CacheRecord{}).
		Where("cache_key = ?", key).
		Updates(map[string]interface{}{
			"last_accessed_at": now,
			"access_count":     gorm.Expr("access_count + 1"),
		}).Error
}

// Delete 删除单键，键不存在不算错误
func (s *GormStore) Delete(key string) error {
	return s.db.Where("cache_key = ?", key).Delete(&models.CacheRecord{}).Error
}

// DeleteByTags 删除标签集与给定标签有交集的所有条目
func (s *GormStore) DeleteByTags(tags []string) (int64, error) {
	var total int64
	for _, tag := range tags {
		res := s.db.Where("tags LIKE ?", "%,"+tag+",%").Delete(&models.CacheRecord{})
		if res.Error != nil {
			return total, fmt.Errorf("failed to delete by tag %q: %w", tag, res.Error)
		}
		total += res.RowsAffected
	}
	return total, nil
}

// DeleteExpired 批量清理过期条目
func (s *GormStore) DeleteExpired(now time.Time) (int64, error) {
	res := s.db.Where("expires_at <= ?", now).Delete(&models.CacheRecord{})
	return res.RowsAffected, res.Error
}

// Clear 清空，prefix 非空时按键前缀过滤
func (s *GormStore) Clear(prefix string) (int64, error) {
	q := s.db.Model(&models.CacheRecord{})
	if prefix != "" {
		q = q.Where("cache_key LIKE ?", prefix+"%")
	} else {
		q = q.Where("1 = 1")
	}
	res := q.Delete(&models.CacheRecord{})
	return res.RowsAffected, res.Error
}

// Count 当前条目数
func (s *GormStore) Count() (int64, error) {
	var count int64
	err := s.db.Model(&models.CacheRecord{}).Count(&count).Error
	return count, err
}

// encodeTags 标签以 ",a,b," 形式存储，LIKE '%,tag,%' 可精确匹配
func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return ""
	}
	return "," + strings.Join(tags, ",") + ","
}

// decodeTags encodeTags 的逆运算
func decodeTags(encoded string) []string {
	trimmed := strings.Trim(encoded, ",")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, ",")
}
