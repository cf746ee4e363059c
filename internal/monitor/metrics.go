package monitor

import (
	"sync"
	"time"
)

// Metrics 监测引擎运行指标
type Metrics struct {
	mu sync.RWMutex

	// 轮询统计
	PassesRun     int64 // 完成的评估轮次
	PassesSkipped int64 // 因上一轮未结束而跳过的轮次

	// 计划评估统计
	PlansEvaluated int64 // 评估成功的计划数（累计）
	PlansFailed    int64 // 评估失败的计划数（累计）
	PlansSkipped   int64 // 因无可用数据跳过的计划数（累计）

	// 事件统计
	EventsProcessed int64 // 处理的触发事件数

	// 性能指标
	TotalEvalTime time.Duration // 评估总耗时
	LastPassTime  time.Time     // 最近一轮完成时间

	StartTime time.Time
}

// GetSnapshot 获取指标快照（线程安全）
func (m *Metrics) GetSnapshot() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Metrics{
		PassesRun:       m.PassesRun,
		PassesSkipped:   m.PassesSkipped,
		PlansEvaluated:  m.PlansEvaluated,
		PlansFailed:     m.PlansFailed,
		PlansSkipped:    m.PlansSkipped,
		EventsProcessed: m.EventsProcessed,
		TotalEvalTime:   m.TotalEvalTime,
		LastPassTime:    m.LastPassTime,
		StartTime:       m.StartTime,
	}
}

// IncrementPassRun 记录一轮完成
func (m *Metrics) IncrementPassRun(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PassesRun++
	m.TotalEvalTime += duration
	m.LastPassTime = time.Now()
}

// IncrementPassSkipped 记录一轮被跳过
func (m *Metrics) IncrementPassSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PassesSkipped++
}

// IncrementPlanEvaluated 记录计划评估成功
func (m *Metrics) IncrementPlanEvaluated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlansEvaluated++
}

// IncrementPlanFailed 记录计划评估失败
func (m *Metrics) IncrementPlanFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlansFailed++
}

// IncrementPlanSkipped 记录计划因无数据被跳过
func (m *Metrics) IncrementPlanSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PlansSkipped++
}

// IncrementEventProcessed 记录触发事件处理
func (m *Metrics) IncrementEventProcessed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EventsProcessed++
}
