package core

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"video-gateway/models"
)

func testPoolStart() time.Time {
	return time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
}

func newTestPool(keys []string, quota, ratePerMin int, strategy string) (*CredentialPool, *MockedTimeSource) {
	clock := NewMockedTimeSource(testPoolStart())
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	pool := NewCredentialPool(keys, PoolConfig{
		QuotaLimit:         quota,
		RateLimitPerMinute: ratePerMin,
		Strategy:           strategy,
		ResetLocation:      time.UTC,
		ResetHour:          0,
	}, clock, logger)
	return pool, clock
}

func TestSelectNeverExceedsQuota(t *testing.T) {
	// 配额 100，单次成本 60：A(0→60)，B(0→60)，第三次两边剩余都不够
	pool, _ := newTestPool([]string{"key-A", "key-B"}, 100, 60, StrategyRoundRobin)

	first := pool.Select(60)
	require.NotNil(t, first)
	pool.RecordSuccess(first, 60)

	second := pool.Select(60)
	require.NotNil(t, second)
	assert.NotEqual(t, first.Key(), second.Key(), "Second call must use the other credential")
	pool.RecordSuccess(second, 60)

	third := pool.Select(60)
	assert.Nil(t, third, "Both credentials have only 40 units left, 60 must not fit")

	// 小成本的请求仍然放行
	small := pool.Select(40)
	assert.NotNil(t, small)
}

func TestQuotaMonotonicUntilReset(t *testing.T) {
	pool, clock := newTestPool([]string{"key-A"}, 1000, 1000, StrategyRoundRobin)

	used := 0
	for i := 0; i < 5; i++ {
		cred := pool.Select(100)
		require.NotNil(t, cred)
		pool.RecordSuccess(cred, 100)
		used += 100

		snap := pool.Snapshot()[0]
		assert.Equal(t, used, snap.QuotaUsed)
	}

	// 越过每日重置点后归零并恢复
	clock.Advance(24 * time.Hour)
	cred := pool.Select(100)
	require.NotNil(t, cred)

	snap := pool.Snapshot()[0]
	assert.Equal(t, 0, snap.QuotaUsed)
	assert.True(t, snap.QuotaResetAt.After(clock.Now()))
}

func TestDeactivationAfterConsecutiveFailures(t *testing.T) {
	pool, clock := newTestPool([]string{"key-A"}, 1000, 1000, StrategyRoundRobin)

	// 5 次连续非配额失败后停用
	// 冷却窗口会在第 3 次失败后挡住 Select，所以直接对凭证记失败
	for i := 0; i < 5; i++ {
		pool.RecordFailure(pool.creds[0], KindTransient)
	}

	snap := pool.Snapshot()[0]
	assert.False(t, snap.Active)
	assert.Equal(t, 5, snap.FailureCount)
	assert.Nil(t, pool.Select(1), "Deactivated credential must never be selected")

	// 冷却窗口过了也不行，必须等配额重置
	clock.Advance(10 * time.Minute)
	assert.Nil(t, pool.Select(1))

	// 配额重置后恢复
	clock.Advance(24 * time.Hour)
	cred := pool.Select(1)
	require.NotNil(t, cred)
	assert.True(t, pool.Snapshot()[0].Active)
}

func TestCooldownWindow(t *testing.T) {
	pool, clock := newTestPool([]string{"key-A"}, 1000, 1000, StrategyRoundRobin)

	// 3 次失败进入 5 分钟冷却
	for i := 0; i < 3; i++ {
		pool.RecordFailure(pool.creds[0], KindTransient)
	}
	assert.Nil(t, pool.Select(1), "Credential in cooldown must be skipped")

	// 冷却窗口结束后恢复参选
	clock.Advance(5*time.Minute + time.Second)
	assert.NotNil(t, pool.Select(1))
}

func TestSuccessResetsFailureCount(t *testing.T) {
	pool, _ := newTestPool([]string{"key-A"}, 1000, 1000, StrategyRoundRobin)

	pool.RecordFailure(pool.creds[0], KindTransient)
	pool.RecordFailure(pool.creds[0], KindTransient)

	cred := pool.Select(1)
	require.NotNil(t, cred)
	pool.RecordSuccess(cred, 1)

	assert.Equal(t, 0, pool.Snapshot()[0].FailureCount)
}

func TestRateLimitWindow(t *testing.T) {
	pool, clock := newTestPool([]string{"key-A"}, 100000, 2, StrategyRoundRobin)

	for i := 0; i < 2; i++ {
		cred := pool.Select(1)
		require.NotNil(t, cred)
		pool.RecordSuccess(cred, 1)
	}
	assert.Nil(t, pool.Select(1), "Per-minute rate limit must block the third call")

	// 窗口滚动后放行
	clock.Advance(61 * time.Second)
	assert.NotNil(t, pool.Select(1))
}

func TestQuotaExhaustedShortCircuits(t *testing.T) {
	pool, _ := newTestPool([]string{"key-A", "key-B"}, 1000, 1000, StrategyRoundRobin)

	cred := pool.Select(1)
	require.NotNil(t, cred)
	pool.RecordFailure(cred, KindQuotaExhausted)

	// 上游报配额耗尽后直接记满，不再参选
	var exhausted models.CredentialSnapshot
	for _, s := range pool.Snapshot() {
		if s.Ref == cred.Ref() {
			exhausted = s
		}
	}
	assert.Equal(t, 1000, exhausted.QuotaUsed)
	assert.True(t, exhausted.Active, "Quota exhaustion is an operating condition, not a fault")

	// 之后的选择只会落到另一个凭证
	for i := 0; i < 5; i++ {
		next := pool.Select(1)
		require.NotNil(t, next)
		assert.NotEqual(t, cred.Key(), next.Key())
	}
}

func TestRoundRobinSpreadsLoad(t *testing.T) {
	pool, _ := newTestPool([]string{"key-A", "key-B", "key-C"}, 1000, 1000, StrategyRoundRobin)

	seen := make(map[string]int)
	for i := 0; i < 9; i++ {
		cred := pool.Select(1)
		require.NotNil(t, cred)
		pool.RecordSuccess(cred, 1)
		seen[cred.Key()]++
	}

	assert.Len(t, seen, 3, "Round robin must touch every credential")
	for key, count := range seen {
		assert.Equal(t, 3, count, "Uneven distribution for %s", key)
	}
}

func TestLeastUsedPrefersLowestQuota(t *testing.T) {
	pool, _ := newTestPool([]string{"key-A", "key-B", "key-C"}, 1000, 1000, StrategyLeastUsed)

	// 人为制造不同的用量：A=300, B=100, C=200
	pool.RecordSuccess(pool.creds[0], 300)
	pool.RecordSuccess(pool.creds[1], 100)
	pool.RecordSuccess(pool.creds[2], 200)

	cred := pool.Select(1)
	require.NotNil(t, cred)
	assert.Equal(t, "key-B", cred.Key())
}

func TestLeastUsedTieBreaks(t *testing.T) {
	pool, _ := newTestPool([]string{"key-A", "key-B", "key-C"}, 1000, 1000, StrategyLeastUsed)

	// 用量全部相同，B 有一次失败记录：先比失败数，再按注册顺序
	pool.RecordFailure(pool.creds[0], KindTransient)
	pool.RecordFailure(pool.creds[1], KindTransient)

	cred := pool.Select(1)
	require.NotNil(t, cred)
	assert.Equal(t, "key-C", cred.Key(), "Zero failures beats earlier registration")

	pool.RecordFailure(pool.creds[2], KindTransient)
	cred = pool.Select(1)
	require.NotNil(t, cred)
	assert.Equal(t, "key-A", cred.Key(), "All tied on failures, first registered wins")
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "AIz***wxyz", maskKey("AIzaSyA-abcdefg-wxyz"))
	assert.Equal(t, "abc", maskKey("abc"))
}
