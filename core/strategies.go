package core

// 策略名称常量，配置里引用
const (
	StrategyRoundRobin = "round_robin"
	StrategyLeastUsed  = "least_used"
)

// SelectionStrategy 凭证选择策略
// 输入是已经通过资格过滤的候选列表（按注册顺序），在池锁内调用
type SelectionStrategy interface {
	// Name 返回策略名称，如 "round_robin", "least_used"
	Name() string

	// Pick 从候选中选出一个凭证
	// counter: 池的选择计数器快照（用于轮询）
	Pick(candidates []*CredentialState, counter uint64) *CredentialState
}

// RoundRobinStrategy 轮询策略：负载均匀摊到所有可用凭证上
type RoundRobinStrategy struct{}

func (s *RoundRobinStrategy) Name() string { return StrategyRoundRobin }

func (s *RoundRobinStrategy) Pick(candidates []*CredentialState, counter uint64) *CredentialState {
	// counter 从 1 开始，所以使用 (counter - 1)
	idx := int((counter - 1) % uint64(len(candidates)))
	return candidates[idx]
}

// LeastUsedStrategy 最小用量策略：优先消耗剩余配额最多的凭证
// 平手先看连续失败次数，再按注册顺序
type LeastUsedStrategy struct{}

func (s *LeastUsedStrategy) Name() string { return StrategyLeastUsed }

func (s *LeastUsedStrategy) Pick(candidates []*CredentialState, _ uint64) *CredentialState {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.quotaUsed < best.quotaUsed ||
			(c.quotaUsed == best.quotaUsed && c.failureCount < best.failureCount) {
			best = c
		}
	}
	return best
}
