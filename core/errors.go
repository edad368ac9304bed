package core

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrNoCredentialAvailable 当前没有任何凭证可以承担本次请求的成本
	ErrNoCredentialAvailable = errors.New("no credential available for request")

	// ErrFallbackMiss 本地降级数据源也没有命中
	ErrFallbackMiss = errors.New("no local record found")
)

// ErrorKind 上游错误分类，决定调度器的重试行为
type ErrorKind int

const (
	// KindQuotaExhausted 配额耗尽 (403 或显式 quota 错误)，换凭证重试
	KindQuotaExhausted ErrorKind = iota
	// KindRateLimited 限流 (429)，换凭证重试
	KindRateLimited
	// KindTransient 网络错误/超时/5xx，换凭证重试
	KindTransient
	// KindUpstream 其他 4xx 业务错误 (如 not found)，不重试
	KindUpstream
)

func (k ErrorKind) String() string {
	switch k {
	case KindQuotaExhausted:
		return "quota_exhausted"
	case KindRateLimited:
		return "rate_limited"
	case KindTransient:
		return "transient"
	default:
		return "upstream"
	}
}

// UpstreamError 上游返回的非 2xx 响应
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
}

// ClassifyError 将上游调用错误映射到 ErrorKind
func ClassifyError(err error) ErrorKind {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		switch {
		case ue.StatusCode == 403:
			return KindQuotaExhausted
		case ue.StatusCode == 429:
			return KindRateLimited
		case ue.StatusCode >= 500:
			return KindTransient
		default:
			return KindUpstream
		}
	}

	// 超时与连接失败按瞬时错误处理，允许换凭证重试
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTransient
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return KindTransient
	}
	return KindTransient
}

// Retryable 该类错误是否允许换一个凭证继续尝试
func (k ErrorKind) Retryable() bool {
	return k != KindUpstream
}
