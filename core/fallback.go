package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"video-gateway/models"
)

// LocalVideoSource 本地视频记录降级源，纯读路径，不产生配额消耗
type LocalVideoSource struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewLocalVideoSource 创建降级源
func NewLocalVideoSource(db *gorm.DB, logger *logrus.Logger) *LocalVideoSource {
	return &LocalVideoSource{db: db, logger: logger}
}

// FindVideo 按视频 ID 查本地记录
func (s *LocalVideoSource) FindVideo(ctx context.Context, videoID string) (*models.VideoMeta, error) {
	var record models.VideoRecord
	err := s.db.WithContext(ctx).Where("video_id = ?", videoID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFallbackMiss
	}
	if err != nil {
		return nil, fmt.Errorf("fallback lookup failed for %s: %w", videoID, err)
	}
	meta := recordToMeta(&record)
	return &meta, nil
}

// SearchVideos 标题/描述的 LIKE 匹配，够降级场景用
func (s *LocalVideoSource) SearchVideos(ctx context.Context, query string, limit int) ([]models.VideoMeta, error) {
	if limit <= 0 {
		limit = 10
	}
	var records []models.VideoRecord
	pattern := "%" + query + "%"
	err := s.db.WithContext(ctx).
		Where("title LIKE ? OR description LIKE ?", pattern, pattern).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("fallback search failed for %q: %w", query, err)
	}

	out := make([]models.VideoMeta, 0, len(records))
	for i := range records {
		out = append(out, recordToMeta(&records[i]))
	}
	return out, nil
}

func recordToMeta(r *models.VideoRecord) models.VideoMeta {
	return models.VideoMeta{
		VideoID:      r.VideoID,
		Title:        r.Title,
		ChannelTitle: r.ChannelTitle,
		Description:  r.Description,
		Duration:     r.Duration,
		Thumbnail:    r.Thumbnail,
		ViewCount:    r.ViewCount,
		PublishedAt:  r.PublishedAt,
		Source:       "local",
	}
}
