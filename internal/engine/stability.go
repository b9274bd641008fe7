package engine

// Policy 稳定性与告警策略（秒）
type Policy struct {
	// HoldThreshold 同一体位持续时长 >= 该值时触发（含边界）
	HoldThreshold float64
	// RealertInterval 距上一次告警必须 > 该值才会再次告警
	RealertInterval float64
}

// DefaultPolicy 5 秒保持、5 秒去抖
func DefaultPolicy() Policy {
	return Policy{HoldThreshold: 5.0, RealertInterval: 5.0}
}

// Trigger 一次告警触发
type Trigger struct {
	Position     string
	HeldSince    float64
	HeldDuration float64
	Timestamp    float64
}

// StabilityTracker 单会话的体位保持状态机
// Unset -> Holding(label, since)，不跨会话共享
type StabilityTracker struct {
	policy Policy

	holding   bool
	heldLabel string
	heldSince float64
	alerted   bool
	lastAlert float64
}

// NewStabilityTracker 创建状态机
func NewStabilityTracker(policy Policy) *StabilityTracker {
	return &StabilityTracker{policy: policy}
}

// Observe 处理一次观测；满足保持阈值且超过去抖间隔时返回 Trigger
func (s *StabilityTracker) Observe(ts float64, label string) (Trigger, bool) {
	if !s.holding || label != s.heldLabel {
		s.holding = true
		s.heldLabel = label
		s.heldSince = ts
		return Trigger{}, false
	}

	held := ts - s.heldSince
	if held < s.policy.HoldThreshold {
		return Trigger{}, false
	}
	// 首次告警不受去抖限制
	if s.alerted && ts-s.lastAlert <= s.policy.RealertInterval {
		return Trigger{}, false
	}

	s.alerted = true
	s.lastAlert = ts
	return Trigger{
		Position:     label,
		HeldSince:    s.heldSince,
		HeldDuration: held,
		Timestamp:    ts,
	}, true
}

// HeldDuration 当前体位已保持的时长
func (s *StabilityTracker) HeldDuration(ts float64) float64 {
	if !s.holding {
		return 0
	}
	return ts - s.heldSince
}

// HeldLabel 当前保持的体位（未观测时为空）
func (s *StabilityTracker) HeldLabel() (string, bool) {
	return s.heldLabel, s.holding
}
