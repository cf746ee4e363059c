package evaluator

import (
	"testing"
	"time"

	"wisefido-careplan/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vitalSeries(vitalType string, base time.Time, values ...float64) []models.VitalSignMeasurement {
	measurements := make([]models.VitalSignMeasurement, len(values))
	for i, v := range values {
		measurements[i] = models.VitalSignMeasurement{
			Type:      vitalType,
			Value:     v,
			Unit:      "bpm",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
		}
	}
	return measurements
}

func TestDetectAnomalies_OutlierTriggersUrgent(t *testing.T) {
	now := time.Now().UTC()
	base := now.Add(-48 * time.Hour)
	// 19 个稳定样本 + 1 个离群值：z = √19 ≈ 4.36
	values := make([]float64, 19)
	for i := range values {
		values[i] = 70
	}
	values = append(values, 110)
	snapshot := &models.CarePlanSnapshot{
		PlanID:     "plan-123",
		VitalSigns: vitalSeries("heart_rate", base, values...),
	}

	alerts := DetectAnomalies(testPlan(), snapshot, now)
	require.Len(t, alerts, 1)

	alert := alerts[0]
	assert.Equal(t, models.AlertTypeAnomaly, alert.Type)
	assert.Equal(t, "heart_rate", alert.SubType)
	assert.Equal(t, models.AlertLevelUrgent, alert.Level)

	require.NotNil(t, alert.Data)
	require.NotNil(t, alert.Data.ZScore)
	assert.Greater(t, *alert.Data.ZScore, 3.0)
	assert.Equal(t, 110.0, *alert.Data.Value)
	assert.Len(t, alert.Data.RecentSamples, 5)
}

func TestDetectAnomalies_ModerateDeviationTriggersWarning(t *testing.T) {
	now := time.Now().UTC()
	base := now.Add(-24 * time.Hour)
	// 9 个稳定样本 + 1 个中度偏离：z = √9 = 3，不超过紧急阈值
	snapshot := &models.CarePlanSnapshot{
		PlanID:     "plan-123",
		VitalSigns: vitalSeries("heart_rate", base, 70, 70, 70, 70, 70, 70, 70, 70, 70, 80),
	}

	alerts := DetectAnomalies(testPlan(), snapshot, now)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertLevelWarning, alerts[0].Level)
	assert.InDelta(t, 3.0, *alerts[0].Data.ZScore, 1e-9)
}

func TestDetectAnomalies_ConstantSeriesNoAlert(t *testing.T) {
	now := time.Now().UTC()
	base := now.Add(-24 * time.Hour)
	// 标准差为零的序列跳过
	snapshot := &models.CarePlanSnapshot{
		PlanID:     "plan-123",
		VitalSigns: vitalSeries("heart_rate", base, 70, 70, 70, 70, 70, 70),
	}

	alerts := DetectAnomalies(testPlan(), snapshot, now)
	assert.Empty(t, alerts)
}

func TestDetectAnomalies_InsufficientSamples(t *testing.T) {
	now := time.Now().UTC()
	base := now.Add(-24 * time.Hour)
	// 少于 5 个样本不做检测
	snapshot := &models.CarePlanSnapshot{
		PlanID:     "plan-123",
		VitalSigns: vitalSeries("heart_rate", base, 70, 71, 120, 72),
	}

	alerts := DetectAnomalies(testPlan(), snapshot, now)
	assert.Empty(t, alerts)
}

func TestDetectAnomalies_NormalVariationNoAlert(t *testing.T) {
	now := time.Now().UTC()
	base := now.Add(-24 * time.Hour)
	snapshot := &models.CarePlanSnapshot{
		PlanID:     "plan-123",
		VitalSigns: vitalSeries("heart_rate", base, 68, 72, 70, 74, 66, 71, 69, 73),
	}

	alerts := DetectAnomalies(testPlan(), snapshot, now)
	assert.Empty(t, alerts)
}

func TestDetectAnomalies_LatestByTimestampNotOrder(t *testing.T) {
	now := time.Now().UTC()
	base := now.Add(-24 * time.Hour)
	// 样本乱序给入：时间上最新的才是被检测的样本
	measurements := vitalSeries("heart_rate", base, 70, 71, 69, 70, 72, 70, 71, 69, 70)
	outlier := models.VitalSignMeasurement{
		Type:      "heart_rate",
		Value:     110,
		Unit:      "bpm",
		Timestamp: base.Add(48 * time.Hour),
	}
	snapshot := &models.CarePlanSnapshot{
		PlanID:     "plan-123",
		VitalSigns: append([]models.VitalSignMeasurement{outlier}, measurements...),
	}

	alerts := DetectAnomalies(testPlan(), snapshot, now)
	require.Len(t, alerts, 1)
	assert.Equal(t, 110.0, *alerts[0].Data.Value)
}

func TestPopulationStdDev(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mean := meanOf(values)
	assert.Equal(t, 5.0, mean)
	// 总体标准差（分母为 N）
	assert.InDelta(t, 2.0, populationStdDev(values, mean), 1e-9)
}
