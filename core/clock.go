package core

import (
	"sync"
	"time"
)

// TimeSource 时间源抽象，便于测试中模拟配额重置和缓存过期
type TimeSource interface {
	Now() time.Time
}

type realTimeSource struct{}

// NewRealTimeSource 返回系统时钟
func NewRealTimeSource() TimeSource {
	return realTimeSource{}
}

func (realTimeSource) Now() time.Time {
	return time.Now()
}

// MockedTimeSource 可手动推进的时钟 (线程安全)，仅用于测试
type MockedTimeSource struct {
	mu  sync.Mutex
	now time.Time
}

// NewMockedTimeSource 创建模拟时钟，初始时间固定
func NewMockedTimeSource(start time.Time) *MockedTimeSource {
	return &MockedTimeSource{now: start}
}

func (m *MockedTimeSource) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance 向前推进时钟
func (m *MockedTimeSource) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Set 直接设置当前时间
func (m *MockedTimeSource) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// NextQuotaReset 计算下一个配额重置时刻
// provider 按固定时区的固定小时重置每日配额，所以先换算到该时区再取边界
func NextQuotaReset(now time.Time, loc *time.Location, resetHour int) time.Time {
	local := now.In(loc)
	reset := time.Date(local.Year(), local.Month(), local.Day(), resetHour, 0, 0, 0, loc)
	if !reset.After(now) {
		reset = time.Date(local.Year(), local.Month(), local.Day()+1, resetHour, 0, 0, 0, loc)
	}
	return reset
}
