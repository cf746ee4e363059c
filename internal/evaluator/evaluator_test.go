package evaluator

import (
	"context"
	"testing"
	"time"

	"wisefido-careplan/internal/cache"
	"wisefido-careplan/internal/config"
	"wisefido-careplan/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupEvaluator(t *testing.T) (*miniredis.Miniredis, *Evaluator, *cache.StateManager) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cfg := &config.Config{}
	cfg.Monitoring.Cache.StateKeyPrefix = "careplan:state:"

	stateManager := cache.NewStateManager(cfg, redisClient, zap.NewNop())
	return mr, NewEvaluator(stateManager, zap.NewNop()), stateManager
}

func TestEvaluator_Evaluate_CombinesAllSignals(t *testing.T) {
	_, ev, _ := setupEvaluator(t)

	now := time.Now().UTC()
	mcfg := models.DefaultMonitoringConfig()
	snapshot := &models.CarePlanSnapshot{
		PlanID: "plan-123",
		VitalSigns: []models.VitalSignMeasurement{
			{Type: "heart_rate", Value: 130, Unit: "bpm", Timestamp: now.Add(-time.Minute)},
		},
		Medications: []models.MedicationEvent{
			{Status: models.MedicationTaken},
			{Status: models.MedicationScheduled},
		},
		Visits: []models.VisitRecord{
			{ScheduledDate: now.Add(-24 * time.Hour), Status: models.VisitMissed},
		},
	}

	alerts := ev.Evaluate(context.Background(), testPlan(), snapshot, mcfg, now)

	types := make(map[string]bool)
	for _, alert := range alerts {
		types[alert.Type] = true
	}
	assert.True(t, types[models.AlertTypeVitalSign])
	assert.True(t, types[models.AlertTypeMedicationCompliance])
	assert.True(t, types[models.AlertTypeMissedVisits])
}

func TestEvaluator_Evaluate_AnomalyDetectionDisabled(t *testing.T) {
	_, ev, _ := setupEvaluator(t)

	now := time.Now().UTC()
	base := now.Add(-48 * time.Hour)
	values := make([]float64, 19)
	for i := range values {
		values[i] = 70
	}
	values = append(values, 110)
	snapshot := &models.CarePlanSnapshot{
		PlanID:     "plan-123",
		VitalSigns: vitalSeries("heart_rate", base, values...),
	}

	mcfg := models.DefaultMonitoringConfig()
	mcfg.AnomalyDetectionEnabled = false
	mcfg.PredictiveModelEnabled = false

	alerts := ev.Evaluate(context.Background(), testPlan(), snapshot, mcfg, now)
	for _, alert := range alerts {
		assert.NotEqual(t, models.AlertTypeAnomaly, alert.Type)
		assert.NotEqual(t, models.AlertTypePrediction, alert.Type)
	}
}

func TestEvaluator_Evaluate_PredictionCached(t *testing.T) {
	mr, ev, stateManager := setupEvaluator(t)

	now := time.Now().UTC()
	base := now.Add(-24 * time.Hour)
	// 线性下滑序列：R² = 1，首轮应产出预测报警
	snapshot := &models.CarePlanSnapshot{
		PlanID:     "plan-123",
		VitalSigns: vitalSeries("oxygen_saturation", base, 99, 98, 97, 96, 95),
	}

	mcfg := models.DefaultMonitoringConfig()
	mcfg.AnomalyDetectionEnabled = false

	alerts := ev.Evaluate(context.Background(), testPlan(), snapshot, mcfg, now)

	predictions := 0
	for _, alert := range alerts {
		if alert.Type == models.AlertTypePrediction {
			predictions++
		}
	}
	require.Equal(t, 1, predictions)

	// 缓存已写入
	key := stateManager.GetPredictionKey("plan-123", "oxygen_saturation")
	exists, err := stateManager.ExistsState(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, exists)

	// 第二轮：缓存未过期，预测被跳过
	alerts = ev.Evaluate(context.Background(), testPlan(), snapshot, mcfg, now)
	for _, alert := range alerts {
		assert.NotEqual(t, models.AlertTypePrediction, alert.Type)
	}

	// 24 小时后缓存过期，重新产出预测
	mr.FastForward(25 * time.Hour)
	alerts = ev.Evaluate(context.Background(), testPlan(), snapshot, mcfg, now)
	predictions = 0
	for _, alert := range alerts {
		if alert.Type == models.AlertTypePrediction {
			predictions++
		}
	}
	assert.Equal(t, 1, predictions)
}

func TestEvaluator_Evaluate_StableTrendCachedWithoutAlert(t *testing.T) {
	_, ev, stateManager := setupEvaluator(t)

	now := time.Now().UTC()
	base := now.Add(-24 * time.Hour)
	// 平稳序列不报警，但计算结果仍写入缓存
	snapshot := &models.CarePlanSnapshot{
		PlanID:     "plan-123",
		VitalSigns: vitalSeries("heart_rate", base, 70, 70.02, 70.04, 70.06, 70.08),
	}

	mcfg := models.DefaultMonitoringConfig()
	mcfg.AnomalyDetectionEnabled = false

	alerts := ev.Evaluate(context.Background(), testPlan(), snapshot, mcfg, now)
	for _, alert := range alerts {
		assert.NotEqual(t, models.AlertTypePrediction, alert.Type)
	}

	key := stateManager.GetPredictionKey("plan-123", "heart_rate")
	var state cache.PredictionState
	require.NoError(t, stateManager.GetState(context.Background(), key, &state))
	assert.Equal(t, TrendStable, state.Direction)
}
