package core

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"video-gateway/models"
)

const (
	// cooldownFailureThreshold 连续失败达到该值后进入冷却窗口
	cooldownFailureThreshold = 3
	// cooldownWindow 冷却窗口时长
	cooldownWindow = 5 * time.Minute
	// deactivateFailureThreshold 连续失败达到该值后直接停用，直到配额重置
	deactivateFailureThreshold = 5
)

// CredentialState 单个凭证的运行时状态
// 字段不导出：除不可变的 key 外，全部只能在池锁内读写
type CredentialState struct {
	key               string
	quotaUsed         int
	quotaResetAt      time.Time
	requestCount      int
	rateWindowResetAt time.Time
	active            bool
	failureCount      int
	lastFailureAt     time.Time
}

// Key 原始凭证，仅供上游调用使用，禁止写入日志
func (s *CredentialState) Key() string {
	return s.key
}

// Ref 脱敏引用，日志和管理接口只能看到它
func (s *CredentialState) Ref() string {
	return maskKey(s.key)
}

// PoolConfig 凭证池配置
type PoolConfig struct {
	QuotaLimit         int
	RateLimitPerMinute int
	Strategy           string
	ResetLocation      *time.Location
	ResetHour          int
}

// CredentialPool 管理一组可互换凭证的配额、限流与健康状态
// 单把互斥锁覆盖整张表：操作都是 O(凭证数)，持锁时间很短
type CredentialPool struct {
	mu          sync.Mutex
	creds       []*CredentialState
	cfg         PoolConfig
	clock       TimeSource
	strategy    SelectionStrategy
	pickCounter uint64
	logger      *logrus.Logger
}

// NewCredentialPool 构造凭证池，keys 的顺序即注册顺序（least_used 的末位平手依据）
func NewCredentialPool(keys []string, cfg PoolConfig, clock TimeSource, logger *logrus.Logger) *CredentialPool {
	if cfg.ResetLocation == nil {
		cfg.ResetLocation = time.UTC
	}
	now := clock.Now()
	creds := make([]*CredentialState, 0, len(keys))
	for _, k := range keys {
		creds = append(creds, &CredentialState{
			key:               k,
			active:            true,
			quotaResetAt:      NextQuotaReset(now, cfg.ResetLocation, cfg.ResetHour),
			rateWindowResetAt: now.Add(time.Minute),
		})
	}

	var strategy SelectionStrategy
	switch cfg.Strategy {
	case StrategyLeastUsed:
		strategy = &LeastUsedStrategy{}
	default:
		strategy = &RoundRobinStrategy{}
	}

	pool := &CredentialPool{
		creds:    creds,
		cfg:      cfg,
		clock:    clock,
		strategy: strategy,
		logger:   logger,
	}
	logger.Infof("Credential pool initialized: %d credentials, quota=%d, strategy=%s",
		len(creds), cfg.QuotaLimit, strategy.Name())
	return pool
}

// Select 返回能承担 cost 的最佳凭证，没有则返回 nil（调用方走降级）
// 过期配额的重置与选择在同一把锁内完成，避免读到重置前的旧值
func (p *CredentialPool) Select(cost int) *CredentialState {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	p.resetExpiredLocked(now)

	eligible := make([]*CredentialState, 0, len(p.creds))
	for _, c := range p.creds {
		if !c.active {
			continue
		}
		// 冷却窗口：连续失败的凭证暂时让路
		if c.failureCount >= cooldownFailureThreshold && now.Sub(c.lastFailureAt) < cooldownWindow {
			continue
		}
		if c.quotaUsed+cost > p.cfg.QuotaLimit {
			continue
		}
		if c.requestCount >= p.cfg.RateLimitPerMinute {
			continue
		}
		eligible = append(eligible, c)
	}

	if len(eligible) == 0 {
		return nil
	}

	p.pickCounter++
	return p.strategy.Pick(eligible, p.pickCounter)
}

// RecordSuccess 成功调用：累计配额、递增限流窗口计数、清零连续失败
func (p *CredentialPool) RecordSuccess(cred *CredentialState, cost int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cred.quotaUsed += cost
	cred.requestCount++
	cred.failureCount = 0
}

// RecordFailure 失败调用
// 配额/限流错误是正常运行状态而非故障，只转移负载、不计入停用阈值
func (p *CredentialPool) RecordFailure(cred *CredentialState, kind ErrorKind) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	cred.lastFailureAt = now

	switch kind {
	case KindQuotaExhausted:
		// 短路后续选择，直到配额重置
		cred.quotaUsed = p.cfg.QuotaLimit
		p.logger.Warnf("⚠️ Credential %s marked quota-exhausted until %s",
			cred.Ref(), cred.quotaResetAt.Format(time.RFC3339))
	case KindRateLimited:
		// 占满当前限流窗口，窗口结束后自动恢复
		cred.requestCount = p.cfg.RateLimitPerMinute
	default:
		cred.failureCount++
		if cred.failureCount >= deactivateFailureThreshold {
			cred.active = false
			p.logger.Warnf("💀 Credential %s deactivated after %d consecutive failures",
				cred.Ref(), cred.failureCount)
		}
	}
}

// resetExpiredLocked 懒惰重置：任何越过重置点的凭证恢复满额并重新激活
// 限流窗口的滚动也在这里处理。调用方必须持锁
func (p *CredentialPool) resetExpiredLocked(now time.Time) {
	for _, c := range p.creds {
		if !now.Before(c.quotaResetAt) {
			c.quotaUsed = 0
			c.requestCount = 0
			c.failureCount = 0
			c.active = true
			c.quotaResetAt = NextQuotaReset(now, p.cfg.ResetLocation, p.cfg.ResetHour)
			p.logger.Infof("🔄 Credential %s quota reset, next reset at %s",
				c.Ref(), c.quotaResetAt.Format(time.RFC3339))
		}
		if !now.Before(c.rateWindowResetAt) {
			c.requestCount = 0
			c.rateWindowResetAt = now.Add(time.Minute)
		}
	}
}

// Snapshot 管理接口用的状态快照
func (p *CredentialPool) Snapshot() []models.CredentialSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]models.CredentialSnapshot, 0, len(p.creds))
	for _, c := range p.creds {
		out = append(out, models.CredentialSnapshot{
			Ref:           c.Ref(),
			QuotaUsed:     c.quotaUsed,
			QuotaLimit:    p.cfg.QuotaLimit,
			QuotaResetAt:  c.quotaResetAt,
			RequestCount:  c.requestCount,
			Active:        c.active,
			FailureCount:  c.failureCount,
			LastFailureAt: c.lastFailureAt,
		})
	}
	return out
}

// Size 配置的凭证总数
func (p *CredentialPool) Size() int {
	return len(p.creds)
}

// maskKey 脱敏凭证，只保留首尾便于排查
func maskKey(key string) string {
	if len(key) <= 4 {
		return key
	}
	return key[:3] + "***" + key[len(key)-4:]
}
