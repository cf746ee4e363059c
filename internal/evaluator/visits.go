package evaluator

import (
	"fmt"
	"time"

	"wisefido-careplan/internal/models"
)

// missedVisitWindow 漏访统计的滑动窗口
const missedVisitWindow = 7 * 24 * time.Hour

// EvaluateMissedVisits 漏访评估
// 统计评估时刻前 7 天内 status=missed 的访视数，先判紧急阈值再判警告阈值
func EvaluateMissedVisits(
	plan models.CarePlan,
	snapshot *models.CarePlanSnapshot,
	thresholds models.MonitoringThresholds,
	now time.Time,
) []models.Alert {
	windowStart := now.Add(-missedVisitWindow)

	missed := 0
	for _, v := range snapshot.Visits {
		if v.Status != models.VisitMissed {
			continue
		}
		if v.ScheduledDate.Before(windowStart) || v.ScheduledDate.After(now) {
			continue
		}
		missed++
	}

	t := thresholds.MissedVisits

	var level string
	var threshold int
	switch {
	case t.Urgent > 0 && missed >= t.Urgent:
		level = models.AlertLevelUrgent
		threshold = t.Urgent
	case t.Warning > 0 && missed >= t.Warning:
		level = models.AlertLevelWarning
		threshold = t.Warning
	default:
		return nil
	}

	message := fmt.Sprintf("%d missed visits in the last 7 days (threshold %d)", missed, threshold)

	return []models.Alert{newAlert(
		plan,
		models.AlertTypeMissedVisits,
		"missed_visits",
		level,
		message,
		&models.AlertData{
			MissedCount: intPtr(missed),
		},
		now,
	)}
}
