package evaluator

import (
	"fmt"
	"time"

	"wisefido-careplan/internal/models"
)

// EvaluateTaskCompletion 任务完成率评估
// 只统计到期任务（dueDate <= 评估时刻），到期任务为零时不报警（fail-open）
func EvaluateTaskCompletion(
	plan models.CarePlan,
	snapshot *models.CarePlanSnapshot,
	thresholds models.MonitoringThresholds,
	now time.Time,
) []models.Alert {
	total := 0
	completed := 0
	for _, task := range snapshot.Tasks {
		if task.DueDate.After(now) {
			continue
		}
		total++
		if task.Status == models.TaskCompleted {
			completed++
		}
	}

	if total == 0 {
		return nil
	}

	percent := float64(completed) / float64(total) * 100
	t := thresholds.TaskCompletion

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

	message := fmt.Sprintf("task completion %s%% is below the %s threshold %s%%",
		formatValue(percent), level, formatValue(threshold))

	return []models.Alert{newAlert(
		plan,
		models.AlertTypeTaskCompletion,
		"task_completion",
		level,
		message,
		&models.AlertData{
			CompletionPercent: floatPtr(percent),
			CompletedCount:    intPtr(completed),
			TotalCount:        intPtr(total),
		},
		now,
	)}
}
