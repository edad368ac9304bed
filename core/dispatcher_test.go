package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeInvoker 按凭证返回预设结果的上游替身
type fakeInvoker struct {
	mu      sync.Mutex
	calls   int
	creds   []string
	handler func(credential, operation string) ([]byte, error)
}

func (f *fakeInvoker) Invoke(_ context.Context, credential, operation string, _ map[string]string) ([]byte, error) {
	f.mu.Lock()
	f.calls++
	f.creds = append(f.creds, credential)
	f.mu.Unlock()
	return f.handler(credential, operation)
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newTestDispatcher(keys []string, invoker UpstreamInvoker, maxAttempts int) (*Dispatcher, *CredentialPool) {
	pool, _ := newTestPool(keys, 10000, 10000, StrategyRoundRobin)
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return NewDispatcher(pool, invoker, logger, nil, maxAttempts, 5*time.Second), pool
}

func TestDispatchFailoverToLastCredential(t *testing.T) {
	// 前两个凭证配额耗尽，只有最后一个能成功
	invoker := &fakeInvoker{handler: func(credential, _ string) ([]byte, error) {
		if credential == "key-C" {
			return []byte(`{"ok":true}`), nil
		}
		return nil, &UpstreamError{StatusCode: 403, Message: "quotaExceeded"}
	}}
	d, pool := newTestDispatcher([]string{"key-A", "key-B", "key-C"}, invoker, 3)

	body, err := d.Execute(context.Background(), "videos", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(body))

	// 最终成功的调用一定落在 key-C 上，且没有白白烧掉重试预算
	assert.Equal(t, "key-C", invoker.creds[len(invoker.creds)-1])
	assert.LessOrEqual(t, invoker.callCount(), 3)

	// 途中失败过的凭证都已被记为配额耗尽
	for _, snap := range pool.Snapshot() {
		if snap.Ref != maskKey("key-C") && snap.QuotaUsed > 0 {
			assert.Equal(t, 10000, snap.QuotaUsed)
		}
	}
}

func TestDispatchUsesOnlyEligibleCredential(t *testing.T) {
	// N 个凭证里只剩最后一个可用：一次就能命中它
	invoker := &fakeInvoker{handler: func(credential, _ string) ([]byte, error) {
		return []byte(`{"ok":true}`), nil
	}}
	d, pool := newTestDispatcher([]string{"key-A", "key-B", "key-C"}, invoker, 3)

	pool.RecordFailure(pool.creds[0], KindQuotaExhausted)
	pool.RecordFailure(pool.creds[1], KindQuotaExhausted)

	_, err := d.Execute(context.Background(), "videos", nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"key-C"}, invoker.creds)
}

func TestDispatchNoCredentialAvailable(t *testing.T) {
	invoker := &fakeInvoker{handler: func(_, _ string) ([]byte, error) {
		t.Fatal("Upstream must not be called without a credential")
		return nil, nil
	}}
	d, _ := newTestDispatcher(nil, invoker, 3)

	_, err := d.Execute(context.Background(), "videos", nil, 1)
	assert.ErrorIs(t, err, ErrNoCredentialAvailable)
	assert.Equal(t, 0, invoker.callCount())
}

func TestDispatchNonRetryableStopsImmediately(t *testing.T) {
	// not found 是业务结果，换凭证重试只会浪费配额
	invoker := &fakeInvoker{handler: func(_, _ string) ([]byte, error) {
		return nil, &UpstreamError{StatusCode: 404, Message: "videoNotFound"}
	}}
	d, _ := newTestDispatcher([]string{"key-A", "key-B"}, invoker, 3)

	_, err := d.Execute(context.Background(), "videos", nil, 1)
	var ue *UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, 404, ue.StatusCode)
	assert.Equal(t, 1, invoker.callCount(), "Non-retryable errors must not trigger failover")
}

func TestDispatchRateLimitedFailsOver(t *testing.T) {
	invoker := &fakeInvoker{handler: func(credential, _ string) ([]byte, error) {
		if credential == "key-A" {
			return nil, &UpstreamError{StatusCode: 429, Message: "rateLimitExceeded"}
		}
		return []byte(`{}`), nil
	}}
	d, pool := newTestDispatcher([]string{"key-A", "key-B"}, invoker, 3)

	_, err := d.Execute(context.Background(), "search", nil, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"key-A", "key-B"}, invoker.creds)

	// 限流不是故障：key-A 不应累计失败次数
	for _, snap := range pool.Snapshot() {
		assert.Equal(t, 0, snap.FailureCount)
	}
}

func TestDispatchExhaustedAttempts(t *testing.T) {
	invoker := &fakeInvoker{handler: func(_, _ string) ([]byte, error) {
		return nil, &UpstreamError{StatusCode: 503, Message: "backendError"}
	}}
	d, _ := newTestDispatcher([]string{"key-A", "key-B", "key-C"}, invoker, 3)

	_, err := d.Execute(context.Background(), "videos", nil, 1)
	require.Error(t, err)
	assert.Equal(t, 3, invoker.callCount())

	var ue *UpstreamError
	assert.True(t, errors.As(err, &ue), "Last error must stay unwrappable")
}

func TestDispatchSuccessRecordsQuota(t *testing.T) {
	invoker := &fakeInvoker{handler: func(_, _ string) ([]byte, error) {
		return []byte(`{}`), nil
	}}
	d, pool := newTestDispatcher([]string{"key-A"}, invoker, 3)

	_, err := d.Execute(context.Background(), "search", nil, 100)
	require.NoError(t, err)

	snap := pool.Snapshot()[0]
	assert.Equal(t, 100, snap.QuotaUsed)
	assert.Equal(t, 1, snap.RequestCount)
}
