package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"video-gateway/models"
)

// 缓存命名空间与标签
const (
	nsVideo  = "video"
	nsSearch = "search"

	TagVideo  = "video"
	TagSearch = "search"
)

// VideoService 面向 handler 的业务门面
// 单个请求的状态机：查缓存 → 命中返回 | 未命中调度 → 成功回填缓存 | 凭证耗尽 → 本地降级
type VideoService struct {
	cfg        *Config
	dispatcher *Dispatcher
	fallback   FallbackSource
	videos     *Orchestrator[models.VideoMeta]
	searches   *Orchestrator[models.SearchResult]
	logger     *logrus.Logger
}

// NewVideoService 构造业务门面
func NewVideoService(cfg *Config, dispatcher *Dispatcher, fallback FallbackSource,
	videos *Orchestrator[models.VideoMeta], searches *Orchestrator[models.SearchResult],
	logger *logrus.Logger) *VideoService {
	return &VideoService{
		cfg:        cfg,
		dispatcher: dispatcher,
		fallback:   fallback,
		videos:     videos,
		searches:   searches,
		logger:     logger,
	}
}

// GetVideo 取单条视频元数据
func (s *VideoService) GetVideo(ctx context.Context, videoID string) (models.VideoMeta, error) {
	return s.videos.GetOrSet(ctx, videoID, nsVideo, s.cfg.TTLOf("videos"), []string{TagVideo},
		func(ctx context.Context) (models.VideoMeta, error) {
			return s.fetchVideo(ctx, videoID)
		})
}

// fetchVideo 未命中时的取数路径：上游优先，凭证耗尽或上游不可用转本地
func (s *VideoService) fetchVideo(ctx context.Context, videoID string) (models.VideoMeta, error) {
	params := map[string]string{
		"id":   videoID,
		"part": "snippet,contentDetails,statistics",
	}
	body, err := s.dispatcher.Execute(ctx, "videos", params, s.cfg.CostOf("videos"))
	if err != nil {
		if s.shouldFallback(err) {
			s.logger.Warnf("Falling back to local records for video %s: %v", videoID, err)
			meta, ferr := s.fallback.FindVideo(ctx, videoID)
			if ferr != nil {
				// 降级也没有：报告原始失败原因更有用
				return models.VideoMeta{}, fmt.Errorf("upstream unavailable and no local record for %s: %w", videoID, err)
			}
			return *meta, nil
		}
		return models.VideoMeta{}, err
	}

	var list models.UpstreamVideoList
	if err := json.Unmarshal(body, &list); err != nil {
		return models.VideoMeta{}, fmt.Errorf("failed to decode videos response: %w", err)
	}
	if len(list.Items) == 0 {
		return models.VideoMeta{}, &UpstreamError{StatusCode: 404, Message: "video not found: " + videoID}
	}
	return itemToMeta(&list.Items[0]), nil
}

// Search 搜索视频，limit 进缓存键保证不同页大小互不污染
func (s *VideoService) Search(ctx context.Context, query string, limit int) (models.SearchResult, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	cacheKey := query + ":" + strconv.Itoa(limit)
	return s.searches.GetOrSet(ctx, cacheKey, nsSearch, s.cfg.TTLOf("search"), []string{TagSearch},
		func(ctx context.Context) (models.SearchResult, error) {
			return s.fetchSearch(ctx, query, limit)
		})
}

func (s *VideoService) fetchSearch(ctx context.Context, query string, limit int) (models.SearchResult, error) {
	params := map[string]string{
		"q":          query,
		"part":       "snippet",
		"maxResults": strconv.Itoa(limit),
		"type":       "video",
	}
	body, err := s.dispatcher.Execute(ctx, "search", params, s.cfg.CostOf("search"))
	if err != nil {
		if s.shouldFallback(err) {
			s.logger.Warnf("Falling back to local records for search %q: %v", query, err)
			items, ferr := s.fallback.SearchVideos(ctx, query, limit)
			if ferr != nil {
				return models.SearchResult{}, fmt.Errorf("upstream unavailable and fallback failed for %q: %w", query, err)
			}
			return models.SearchResult{Query: query, Items: items, Source: "local"}, nil
		}
		return models.SearchResult{}, err
	}

	var list models.UpstreamSearchList
	if err := json.Unmarshal(body, &list); err != nil {
		return models.SearchResult{}, fmt.Errorf("failed to decode search response: %w", err)
	}

	items := make([]models.VideoMeta, 0, len(list.Items))
	for i := range list.Items {
		items = append(items, itemToMeta(&list.Items[i]))
	}
	return models.SearchResult{Query: query, Items: items, Source: "upstream"}, nil
}

// shouldFallback 凭证耗尽和重试打满都转本地
// 业务性结果 (KindUpstream，如 not found) 不降级，原样上抛
func (s *VideoService) shouldFallback(err error) bool {
	if errors.Is(err, ErrNoCredentialAvailable) {
		return true
	}
	return ClassifyError(err).Retryable()
}

func itemToMeta(item *models.UpstreamVideoItem) models.VideoMeta {
	return models.VideoMeta{
		VideoID:      item.ID,
		Title:        item.Snippet.Title,
		ChannelTitle: item.Snippet.ChannelTitle,
		Description:  item.Snippet.Description,
		Duration:     item.ContentDetails.Duration,
		Thumbnail:    item.Snippet.Thumbnail,
		ViewCount:    item.Statistics.ViewCount,
		PublishedAt:  item.Snippet.PublishedAt,
		Source:       "upstream",
	}
}
