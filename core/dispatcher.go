package core

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"video-gateway/models"
)

// Dispatcher 在凭证池之上执行上游调用，负责重试与故障转移
// 三种终态：成功、凭证耗尽 (ErrNoCredentialAvailable)、不可重试的业务错误
type Dispatcher struct {
	pool        *CredentialPool
	invoker     UpstreamInvoker
	logger      *logrus.Logger
	dispatchLog *AsyncDispatchLogger // 可为 nil
	maxAttempts int
	timeout     time.Duration
}

// NewDispatcher 构造调度器，依赖全部注入
func NewDispatcher(pool *CredentialPool, invoker UpstreamInvoker, logger *logrus.Logger,
	dispatchLog *AsyncDispatchLogger, maxAttempts int, timeout time.Duration) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{
		pool:        pool,
		invoker:     invoker,
		logger:      logger,
		dispatchLog: dispatchLog,
		maxAttempts: maxAttempts,
		timeout:     timeout,
	}
}

// Execute 带故障转移地执行一次上游操作，返回原始响应体
func (d *Dispatcher) Execute(ctx context.Context, operation string, params map[string]string, cost int) ([]byte, error) {
	var lastErr error

	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		cred := d.pool.Select(cost)
		if cred == nil {
			// 没有任何凭证能承担本次成本，交给调用方降级
			d.logger.Warnf("💀 No credential available for %s (cost=%d)", operation, cost)
			return nil, ErrNoCredentialAvailable
		}

		d.logger.Infof("🎯 Attempt %d/%d: %s via credential %s (cost=%d)",
			attempt, d.maxAttempts, operation, cred.Ref(), cost)

		// 调用方放弃等待不应中断上游调用：结果还要写进缓存给后续请求用
		// 所以超时派生自 WithoutCancel 而不是调用方 ctx
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		start := time.Now()
		body, err := d.invoker.Invoke(callCtx, cred.Key(), operation, params)
		cancel()
		elapsed := time.Since(start)

		if err == nil {
			d.pool.RecordSuccess(cred, cost)
			d.record(operation, cost, cred, attempt, true, "", elapsed)
			d.logger.Infof("✅ Success: %s via %s | Latency: %dms", operation, cred.Ref(), elapsed.Milliseconds())
			return body, nil
		}

		kind := ClassifyError(err)
		d.pool.RecordFailure(cred, kind)
		d.record(operation, cost, cred, attempt, false, kind.String(), elapsed)
		lastErr = err

		if !kind.Retryable() {
			// 业务性错误（如 not found）换凭证也不会变，原样抛给调用方
			d.logger.Warnf("❌ Attempt %d failed: %v (%s) - not retryable", attempt, err, kind)
			return nil, err
		}
		d.logger.Warnf("⚠️ Attempt %d failed: %v (%s) - trying next credential", attempt, err, kind)
	}

	return nil, fmt.Errorf("all %d attempts exhausted for %s: %w", d.maxAttempts, operation, lastErr)
}

// record 调度结果异步落库，用于管理面的历史视图
func (d *Dispatcher) record(operation string, cost int, cred *CredentialState, attempt int, success bool, kind string, elapsed time.Duration) {
	if d.dispatchLog == nil {
		return
	}
	d.dispatchLog.Log(&models.DispatchLog{
		CreatedAt:     time.Now(),
		Operation:     operation,
		Cost:          cost,
		CredentialRef: cred.Ref(),
		Attempt:       attempt,
		Success:       success,
		ErrorKind:     kind,
		Duration:      elapsed.Milliseconds(),
	})
}
