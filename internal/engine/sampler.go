package engine

// DecisionSampler 按源时间每秒放行一帧
// nextDecision 单调不减，每次放行后前进固定步长，与跳过多少帧无关
type DecisionSampler struct {
	interval     float64
	nextDecision float64
}

// NewDecisionSampler 创建按时间采样器（interval <= 0 时为 1 秒）
func NewDecisionSampler(interval float64) *DecisionSampler {
	if interval <= 0 {
		interval = 1.0
	}
	return &DecisionSampler{interval: interval}
}

// Admit ts >= nextDecision 时放行并推进边界
func (s *DecisionSampler) Admit(ts float64) bool {
	if ts < s.nextDecision {
		return false
	}
	s.nextDecision += s.interval
	return true
}

// NextDecision 当前边界
func (s *DecisionSampler) NextDecision() float64 {
	return s.nextDecision
}

// StepSampler 按帧序号固定步长采样（批量分析用）
type StepSampler struct {
	start int64
	step  int64
}

// NewStepSampler 从 start 帧开始每 step 帧放行一次（step < 1 时为 1）
func NewStepSampler(start, step int64) *StepSampler {
	if step < 1 {
		step = 1
	}
	return &StepSampler{start: start, step: step}
}

// Admit 帧序号满足步长时放行
func (s *StepSampler) Admit(frameIndex int64) bool {
	if frameIndex < s.start {
		return false
	}
	return (frameIndex-s.start)%s.step == 0
}
