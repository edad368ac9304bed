package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNextQuotaReset(t *testing.T) {
	loc := time.UTC

	// 重置点之前：当天边界
	now := time.Date(2026, 3, 10, 10, 30, 0, 0, loc)
	reset := NextQuotaReset(now, loc, 12)
	assert.Equal(t, time.Date(2026, 3, 10, 12, 0, 0, 0, loc), reset)

	// 重置点之后：次日边界
	now = time.Date(2026, 3, 10, 13, 0, 0, 0, loc)
	reset = NextQuotaReset(now, loc, 12)
	assert.Equal(t, time.Date(2026, 3, 11, 12, 0, 0, 0, loc), reset)

	// 恰好在重置点上：算已过，推到次日
	now = time.Date(2026, 3, 10, 12, 0, 0, 0, loc)
	reset = NextQuotaReset(now, loc, 12)
	assert.Equal(t, time.Date(2026, 3, 11, 12, 0, 0, 0, loc), reset)
}

func TestNextQuotaResetTimezone(t *testing.T) {
	pacific, err := time.LoadLocation("America/Los_Angeles")
	assert.NoError(t, err)

	// UTC 早上 6 点 = 太平洋前一天 22/23 点，所以下一个午夜边界还在几小时后
	now := time.Date(2026, 6, 15, 6, 0, 0, 0, time.UTC)
	reset := NextQuotaReset(now, pacific, 0)
	assert.True(t, reset.After(now))
	assert.True(t, reset.Sub(now) < 24*time.Hour)

	local := reset.In(pacific)
	assert.Equal(t, 0, local.Hour())
	assert.Equal(t, 0, local.Minute())
}

func TestMockedTimeSource(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockedTimeSource(start)

	assert.Equal(t, start, clock.Now())

	clock.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clock.Now())

	clock.Set(start.Add(time.Hour))
	assert.Equal(t, start.Add(time.Hour), clock.Now())
}
