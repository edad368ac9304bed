package core

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"video-gateway/models"
)

// AsyncDispatchLogger 异步调度日志记录器
// 调度热路径只投递到 channel，批量落库由后台 worker 完成
type AsyncDispatchLogger struct {
	db        *gorm.DB
	logChan   chan *models.DispatchLog
	logger    *logrus.Logger
	batchSize int
	flushTime time.Duration
	keepCount int
	wg        sync.WaitGroup
	quit      chan struct{}
}

// NewAsyncDispatchLogger 创建新的异步日志记录器
func NewAsyncDispatchLogger(db *gorm.DB, logger *logrus.Logger) *AsyncDispatchLogger {
	l := &AsyncDispatchLogger{
		db:        db,
		logChan:   make(chan *models.DispatchLog, 1000),
		logger:    logger,
		batchSize: 100,
		flushTime: 5 * time.Second,
		keepCount: 500, // 只保留最近 N 条，数据库不会膨胀
		quit:      make(chan struct{}),
	}
	l.startWorker()
	return l
}

// Log 提交日志到队列；队列满时丢弃，绝不阻塞调度
func (l *AsyncDispatchLogger) Log(entry *models.DispatchLog) {
	select {
	case l.logChan <- entry:
	default:
		l.logger.Warn("Dispatch log channel full, dropping entry")
	}
}

func (l *AsyncDispatchLogger) startWorker() {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.workerLoop()
	}()
}

// workerLoop 核心循环：攒批或到时即刷
func (l *AsyncDispatchLogger) workerLoop() {
	var batch []*models.DispatchLog
	timer := time.NewTicker(l.flushTime)
	defer timer.Stop()

	for {
		select {
		case entry := <-l.logChan:
			batch = append(batch, entry)
			if len(batch) >= l.batchSize {
				l.flush(batch)
				batch = nil
			}
		case <-timer.C:
			if len(batch) > 0 {
				l.flush(batch)
				batch = nil
			}
		case <-l.quit:
			// 退出前把 channel 里积压的日志也收进来一起刷掉
			for {
				select {
				case entry := <-l.logChan:
					batch = append(batch, entry)
				default:
					l.flush(batch)
					return
				}
			}
		}
	}
}

// flush 批量写入并裁剪历史
func (l *AsyncDispatchLogger) flush(entries []*models.DispatchLog) {
	if len(entries) == 0 {
		return
	}

	if err := l.db.CreateInBatches(entries, len(entries)).Error; err != nil {
		l.logger.Errorf("Failed to flush %d dispatch logs: %v", len(entries), err)
		return
	}

	var count int64
	l.db.Model(&models.DispatchLog{}).Count(&count)
	if count > int64(l.keepCount) {
		var pivotID uint
		l.db.Model(&models.DispatchLog{}).Select("id").Order("id desc").
			Offset(l.keepCount).Limit(1).Scan(&pivotID)
		if pivotID > 0 {
			l.db.Where("id <= ?", pivotID).Delete(&models.DispatchLog{})
		}
	}
}

// Close 关闭日志记录器，等待落盘完成
func (l *AsyncDispatchLogger) Close() {
	close(l.quit)
	l.wg.Wait()
}
