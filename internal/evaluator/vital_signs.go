package evaluator

import (
	"fmt"
	"time"

	"wisefido-careplan/internal/models"
)

// EvaluateVitalSigns 生命体征阈值评估
// 每种体征只看最新一条测量值，先判紧急区间再判警告区间，每轮每种体征至多一条报警
func EvaluateVitalSigns(
	plan models.CarePlan,
	snapshot *models.CarePlanSnapshot,
	thresholds models.MonitoringThresholds,
	now time.Time,
) []models.Alert {
	var alerts []models.Alert

	for vitalType, threshold := range thresholds.VitalSigns {
		latest := latestMeasurement(snapshot.VitalSigns, vitalType)
		if latest == nil {
			continue
		}

		value := latest.Value
		t := threshold

		var level, message string
		switch {
		case value < t.UrgentMin || value > t.UrgentMax:
			level = models.AlertLevelUrgent
			message = fmt.Sprintf("%s %s %s is outside the urgent range %s-%s",
				displayName(vitalType), formatValue(value), latest.Unit,
				formatValue(t.UrgentMin), formatValue(t.UrgentMax))
		case value < t.Min || value > t.Max:
			level = models.AlertLevelWarning
			message = fmt.Sprintf("%s %s %s is outside the normal range %s-%s",
				displayName(vitalType), formatValue(value), latest.Unit,
				formatValue(t.Min), formatValue(t.Max))
		default:
			continue
		}

		alerts = append(alerts, newAlert(
			plan,
			models.AlertTypeVitalSign,
			vitalType,
			level,
			message,
			&models.AlertData{
				Value:     floatPtr(value),
				Unit:      latest.Unit,
				Threshold: &t,
			},
			now,
		))
	}

	return alerts
}

// latestMeasurement 选取指定类型的最新测量值
// 时间戳相同取先出现的一条（按插入顺序确定）
func latestMeasurement(measurements []models.VitalSignMeasurement, vitalType string) *models.VitalSignMeasurement {
	var latest *models.VitalSignMeasurement
	for i := range measurements {
		m := &measurements[i]
		if m.Type != vitalType {
			continue
		}
		if latest == nil || m.Timestamp.After(latest.Timestamp) {
			latest = m
		}
	}
	return latest
}
