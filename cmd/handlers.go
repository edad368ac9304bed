package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"video-gateway/core"
	"video-gateway/models"
)

// handleGetVideo GET /v1/videos/:id
func handleGetVideo(svc *core.VideoService) gin.HandlerFunc {
	return func(c *gin.Context) {
		videoID := c.Param("id")
		if videoID == "" {
			c.JSON(400, models.ErrorResponse{
				Error: models.ErrorDetail{Message: "video id is required", Type: "invalid_request_error"},
			})
			return
		}

		meta, err := svc.GetVideo(c.Request.Context(), videoID)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(200, meta)
	}
}

// handleSearch GET /v1/search?q=&limit=
func handleSearch(svc *core.VideoService) gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("q")
		if query == "" {
			c.JSON(400, models.ErrorResponse{
				Error: models.ErrorDetail{Message: "query parameter 'q' is required", Type: "invalid_request_error"},
			})
			return
		}
		limit := 10
		if raw := c.Query("limit"); raw != "" {
			if n, err := strconv.Atoi(raw); err == nil && n > 0 {
				limit = n
			}
		}

		result, err := svc.Search(c.Request.Context(), query, limit)
		if err != nil {
			writeServiceError(c, err)
			return
		}
		c.JSON(200, result)
	}
}

// writeServiceError 把服务层错误映射为 HTTP 响应
// 上游的业务性状态码（如 404）透传，其余一律 502
func writeServiceError(c *gin.Context, err error) {
	var ue *core.UpstreamError
	if errors.As(err, &ue) && ue.StatusCode >= 400 && ue.StatusCode < 500 {
		c.JSON(ue.StatusCode, models.ErrorResponse{
			Error: models.ErrorDetail{Message: ue.Message, Type: "upstream_error"},
		})
		return
	}
	c.JSON(502, models.ErrorResponse{
		Error: models.ErrorDetail{Message: err.Error(), Type: "service_unavailable"},
	})
}

// handleHealth GET /health
func handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	}
}

// handleStats GET /admin/stats
func handleStats(pool *core.CredentialPool, caches map[string]core.CacheInvalidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, buildStatsSnapshot(pool, caches))
	}
}

// handleCredentials GET /admin/credentials
func handleCredentials(pool *core.CredentialPool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{"credentials": pool.Snapshot()})
	}
}

// invalidateRequest POST /admin/cache/invalidate 的请求体
type invalidateRequest struct {
	Tags []string `json:"tags" binding:"required"`
}

// handleInvalidateCache POST /admin/cache/invalidate
func handleInvalidateCache(caches map[string]core.CacheInvalidator, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req invalidateRequest
		if err := c.ShouldBindJSON(&req); err != nil || len(req.Tags) == 0 {
			c.JSON(400, models.ErrorResponse{
				Error: models.ErrorDetail{Message: "tags array is required", Type: "invalid_request_error"},
			})
			return
		}

		removed := 0
		for _, cache := range caches {
			removed += cache.InvalidateByTags(req.Tags)
		}
		log.Infof("Admin invalidated tags %v (%d memory entries)", req.Tags, removed)
		c.JSON(200, gin.H{"invalidated": removed, "tags": req.Tags})
	}
}

// handleClearCache POST /admin/cache/clear?namespace=
func handleClearCache(caches map[string]core.CacheInvalidator, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		namespace := c.Query("namespace")
		removed := 0
		for _, cache := range caches {
			removed += cache.Clear(namespace)
		}
		log.Infof("Admin cleared cache (namespace=%q, %d memory entries)", namespace, removed)
		c.JSON(200, gin.H{"cleared": removed, "namespace": namespace})
	}
}

// handleRecentDispatches GET /admin/dispatches 最近的调度日志
func handleRecentDispatches(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var logs []models.DispatchLog
		if err := db.Order("id desc").Limit(100).Find(&logs).Error; err != nil {
			c.JSON(500, models.ErrorResponse{
				Error: models.ErrorDetail{Message: err.Error(), Type: "internal_error"},
			})
			return
		}
		c.JSON(200, gin.H{"dispatches": logs})
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 管理接口已有 token 鉴权，这里放开 Origin 校验
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStatsWS GET /admin/stats/ws 周期推送统计快照
func handleStatsWS(pool *core.CredentialPool, caches map[string]core.CacheInvalidator, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warnf("Stats websocket upgrade failed: %v", err)
			return
		}
		defer conn.Close()

		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()

		// 先推一帧，再按节拍更新
		if err := conn.WriteJSON(buildStatsSnapshot(pool, caches)); err != nil {
			return
		}
		for range ticker.C {
			if err := conn.WriteJSON(buildStatsSnapshot(pool, caches)); err != nil {
				// 客户端断开
				return
			}
		}
	}
}

func buildStatsSnapshot(pool *core.CredentialPool, caches map[string]core.CacheInvalidator) models.StatsSnapshot {
	cacheStats := make(map[string]models.CacheStats, len(caches))
	for name, cache := range caches {
		cacheStats[name] = cache.Stats()
	}
	return models.StatsSnapshot{
		Credentials: pool.Snapshot(),
		Caches:      cacheStats,
		Timestamp:   time.Now(),
	}
}
