package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"video-gateway/core"
	"video-gateway/models"
)

func main() {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)
	log.SetFormatter(&logrus.JSONFormatter{})
	gin.SetMode(gin.ReleaseMode)

	// 配置：文件可选，环境变量覆盖
	configPath := os.Getenv("VG_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := core.LoadConfig(configPath)
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}
	if len(cfg.Credentials) == 0 {
		log.Warn("No credentials configured, all requests will use the local fallback")
	}

	// 文件日志带轮转，stdout 同时保留
	if cfg.LogFile != "" {
		rotator, err := core.NewLogRotator(cfg.LogFile, cfg.LogMaxSizeMB)
		if err != nil {
			log.Fatal("Failed to open log file: ", err)
		}
		defer rotator.Close()
		log.SetOutput(io.MultiWriter(os.Stdout, rotator))
	}

	db, err := initDatabase(cfg.DatabasePath, log)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}

	// 组装核心组件
	clock := core.NewRealTimeSource()
	pool := core.NewCredentialPool(cfg.Credentials, core.PoolConfig{
		QuotaLimit:         cfg.QuotaLimit,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Strategy:           cfg.Strategy,
		ResetLocation:      cfg.ResetLocation(),
		ResetHour:          cfg.ResetHour,
	}, clock, log)

	dispatchLogger := core.NewAsyncDispatchLogger(db, log)
	invoker := core.NewVideoAPIClient(cfg.UpstreamBaseURL)
	dispatcher := core.NewDispatcher(pool, invoker, log, dispatchLogger, cfg.MaxAttempts, cfg.RequestTimeout())

	store := core.NewGormStore(db)
	cacheCfg := core.TieredCacheConfig{Capacity: cfg.CacheCapacity, SweepInterval: cfg.SweepInterval()}
	videoCache := core.NewTieredCache[models.VideoMeta](cacheCfg, store, clock, log)
	searchCache := core.NewTieredCache[models.SearchResult](cacheCfg, store, clock, log)
	defer videoCache.Close()
	defer searchCache.Close()

	fallback := core.NewLocalVideoSource(db, log)
	service := core.NewVideoService(cfg, dispatcher, fallback,
		core.NewOrchestrator(videoCache), core.NewOrchestrator(searchCache), log)

	// 两个缓存实例共享同一张 cache_records 表，管理面始终对它们统一操作
	caches := map[string]core.CacheInvalidator{
		"video":  videoCache,
		"search": searchCache,
	}

	engine := gin.New()
	engine.Use(gin.RecoveryWithWriter(log.Writer()))
	engine.Use(corsMiddleware())

	engine.GET("/health", handleHealth())

	// 业务接口：IP 限流 + 错误访问日志
	limiter := newIPRateLimiter(rate.Limit(10), 20)
	api := engine.Group("/v1")
	api.Use(rateLimitMiddleware(limiter, log))
	api.Use(requestLoggerMiddleware(log))
	{
		api.GET("/videos/:id", handleGetVideo(service))
		api.GET("/search", handleSearch(service))
	}

	// 管理接口：token 鉴权，静默模式
	admin := engine.Group("/admin")
	admin.Use(adminAuthMiddleware(cfg.AdminToken, log))
	{
		admin.GET("/stats", handleStats(pool, caches))
		admin.GET("/stats/ws", handleStatsWS(pool, caches, log))
		admin.GET("/credentials", handleCredentials(pool))
		admin.GET("/dispatches", handleRecentDispatches(db))
		admin.POST("/cache/invalidate", handleInvalidateCache(caches, log))
		admin.POST("/cache/clear", handleClearCache(caches, log))
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: engine,
	}

	go func() {
		log.Infof("Starting Video Gateway on port %d (%d credentials, strategy=%s)",
			cfg.Port, pool.Size(), cfg.Strategy)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server: ", err)
		}
	}()

	// 等待中断信号以优雅地关闭服务器
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	// 后台组件收尾：把没落盘的调度日志刷掉
	dispatchLogger.Close()

	log.Info("Server exited")
}

// initDatabase 初始化数据库，只在出错时记录 SQL 日志
func initDatabase(path string, log *logrus.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Info("Database initialized successfully")
	return db, nil
}
