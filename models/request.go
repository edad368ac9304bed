package models

import "time"

// VideoMeta 对外暴露的视频元数据
type VideoMeta struct {
	VideoID      string    `json:"video_id"`
	Title        string    `json:"title"`
	ChannelTitle string    `json:"channel_title"`
	Description  string    `json:"description,omitempty"`
	Duration     string    `json:"duration,omitempty"`
	Thumbnail    string    `json:"thumbnail,omitempty"`
	ViewCount    int64     `json:"view_count"`
	PublishedAt  time.Time `json:"published_at"`
	Source       string    `json:"source,omitempty"` // "upstream" 或 "local"
}

// SearchResult 搜索结果
type SearchResult struct {
	Query  string      `json:"query"`
	Items  []VideoMeta `json:"items"`
	Source string      `json:"source,omitempty"`
}

// --- 上游 provider 的响应结构（只取业务需要的字段） ---

// UpstreamVideoList videos 操作的响应
type UpstreamVideoList struct {
	Items []UpstreamVideoItem `json:"items"`
}

// UpstreamVideoItem 单条视频
type UpstreamVideoItem struct {
	ID      string `json:"id"`
	Snippet struct {
		Title        string    `json:"title"`
		ChannelTitle string    `json:"channelTitle"`
		Description  string    `json:"description"`
		PublishedAt  time.Time `json:"publishedAt"`
		Thumbnail    string    `json:"thumbnail"`
	} `json:"snippet"`
	ContentDetails struct {
		Duration string `json:"duration"`
	} `json:"contentDetails"`
	Statistics struct {
		ViewCount int64 `json:"viewCount,string"`
	} `json:"statistics"`
}

// UpstreamSearchList search 操作的响应
type UpstreamSearchList struct {
	Items []UpstreamVideoItem `json:"items"`
}

// ErrorResponse 标准错误响应
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// CacheStats 缓存统计
type CacheStats struct {
	MemoryEntries     int     `json:"memory_entries"`
	PersistentEntries int64   `json:"persistent_entries"`
	Hits              uint64  `json:"hits"`
	Misses            uint64  `json:"misses"`
	HitRate           float64 `json:"hit_rate"`
}

// CredentialSnapshot 凭证状态快照（只暴露脱敏后的引用）
type CredentialSnapshot struct {
	Ref           string    `json:"ref"`
	QuotaUsed     int       `json:"quota_used"`
	QuotaLimit    int       `json:"quota_limit"`
	QuotaResetAt  time.Time `json:"quota_reset_at"`
	RequestCount  int       `json:"request_count"`
	Active        bool      `json:"active"`
	FailureCount  int       `json:"failure_count"`
	LastFailureAt time.Time `json:"last_failure_at,omitempty"`
}

// StatsSnapshot /admin/stats 的聚合视图
type StatsSnapshot struct {
	Credentials []CredentialSnapshot  `json:"credentials"`
	Caches      map[string]CacheStats `json:"caches"`
	Timestamp   time.Time             `json:"timestamp"`
}
