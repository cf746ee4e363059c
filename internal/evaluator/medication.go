package evaluator

import (
	"fmt"
	"time"

	"wisefido-careplan/internal/models"
)

// EvaluateMedicationCompliance 用药依从率评估
// 依从率 = 已服用 / 计划总数 × 100，总数为零时不报警（fail-open）
func EvaluateMedicationCompliance(
	plan models.CarePlan,
	snapshot *models.CarePlanSnapshot,
	thresholds models.MonitoringThresholds,
	now time.Time,
) []models.Alert {
	scheduled := len(snapshot.Medications)
	if scheduled == 0 {
		return nil
	}

	taken := 0
	for _, m := range snapshot.Medications {
		if m.Status == models.MedicationTaken {
			taken++
		}
	}

	percent := float64(taken) / float64(scheduled) * 100
	t := thresholds.MedicationCompliance

	var level string
	var threshold float64
	switch {
	case percent < t.Urgent:
		level = models.AlertLevelUrgent
		threshold = t.Urgent
	case percent < t.Warning:
		level = models.AlertLevelWarning
		threshold = t.Warning
	default:
		return nil
	}

	message := fmt.Sprintf("medication compliance %s%% is below the %s threshold %s%%",
		formatValue(percent), level, formatValue(threshold))

	return []models.Alert{newAlert(
		plan,
		models.AlertTypeMedicationCompliance,
		"medication_compliance",
		level,
		message,
		&models.AlertData{
			CompliancePercent: floatPtr(percent),
			TakenCount:        intPtr(taken),
			ScheduledCount:    intPtr(scheduled),
		},
		now,
	)}
}
