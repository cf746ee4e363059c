package evaluator

import (
	"context"
	"time"

	"wisefido-careplan/internal/cache"
	"wisefido-careplan/internal/models"

	"go.uber.org/zap"
)

// predictionCacheTTL 同一计划同一体征的趋势预测缓存时长
const predictionCacheTTL = 24 * time.Hour

// Evaluator 护理计划评估器（规则评估 + 统计分析）
// 规则评估器和统计分析器都是纯函数，这里负责编排、特性开关和预测缓存
type Evaluator struct {
	stateManager *cache.StateManager
	logger       *zap.Logger
}

// NewEvaluator 创建评估器
func NewEvaluator(stateManager *cache.StateManager, logger *zap.Logger) *Evaluator {
	return &Evaluator{
		stateManager: stateManager,
		logger:       logger,
	}
}

// Evaluate 对单个护理计划的快照做一轮完整评估，返回报警列表
func (e *Evaluator) Evaluate(
	ctx context.Context,
	plan models.CarePlan,
	snapshot *models.CarePlanSnapshot,
	mcfg *models.MonitoringConfig,
	now time.Time,
) []models.Alert {
	var alerts []models.Alert
	thresholds := mcfg.Thresholds

	// 规则评估：生命体征、用药依从率、漏访、任务完成率
	alerts = append(alerts, EvaluateVitalSigns(plan, snapshot, thresholds, now)...)
	alerts = append(alerts, EvaluateMedicationCompliance(plan, snapshot, thresholds, now)...)
	alerts = append(alerts, EvaluateMissedVisits(plan, snapshot, thresholds, now)...)
	alerts = append(alerts, EvaluateTaskCompletion(plan, snapshot, thresholds, now)...)

	// 统计分析：异常检测
	if mcfg.AnomalyDetectionEnabled {
		alerts = append(alerts, DetectAnomalies(plan, snapshot, now)...)
	}

	// 统计分析：趋势预测（带 24 小时缓存）
	if mcfg.PredictiveModelEnabled {
		alerts = append(alerts, e.evaluateTrends(ctx, plan, snapshot, now)...)
	}

	e.logger.Debug("Plan evaluated",
		zap.String("plan_id", plan.PlanID),
		zap.Int("alert_count", len(alerts)),
	)

	return alerts
}

// evaluateTrends 趋势预测评估
// 缓存未过期的体征跳过重算；计算结果无论是否报警都写入缓存，避免重复计算和报警风暴
func (e *Evaluator) evaluateTrends(
	ctx context.Context,
	plan models.CarePlan,
	snapshot *models.CarePlanSnapshot,
	now time.Time,
) []models.Alert {
	var alerts []models.Alert

	for _, vitalType := range vitalTypes(snapshot.VitalSigns) {
		key := e.stateManager.GetPredictionKey(plan.PlanID, vitalType)

		exists, err := e.stateManager.ExistsState(ctx, key)
		if err != nil {
			e.logger.Warn("Failed to check prediction cache",
				zap.String("plan_id", plan.PlanID),
				zap.String("vital_type", vitalType),
				zap.Error(err),
			)
			// 缓存不可用时继续计算，宁可多算不可漏报
		} else if exists {
			continue
		}

		trend := EstimateTrend(snapshot, vitalType)
		if trend == nil {
			continue
		}

		state := &cache.PredictionState{
			GeneratedAt:  now.Unix(),
			Direction:    trend.Direction,
			Slope:        trend.Slope,
			Significance: trend.Significance,
		}
		if err := e.stateManager.SetState(ctx, key, state, predictionCacheTTL); err != nil {
			e.logger.Warn("Failed to cache prediction",
				zap.String("plan_id", plan.PlanID),
				zap.String("vital_type", vitalType),
				zap.Error(err),
			)
		}

		if alert := BuildPredictionAlert(plan, trend, now); alert != nil {
			alerts = append(alerts, *alert)
		}
	}

	return alerts
}
