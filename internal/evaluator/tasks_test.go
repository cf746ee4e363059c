package evaluator

import (
	"testing"
	"time"

	"wisefido-careplan/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateTaskCompletion_Urgent(t *testing.T) {
	now := time.Now().UTC()
	// 到期任务 5 个，完成 2 个 = 40%，低于紧急阈值 50%
	snapshot := &models.CarePlanSnapshot{
		PlanID: "plan-123",
		Tasks: []models.TaskRecord{
			{DueDate: now.Add(-time.Hour), Status: models.TaskCompleted},
			{DueDate: now.Add(-2 * time.Hour), Status: models.TaskCompleted},
			{DueDate: now.Add(-3 * time.Hour), Status: "pending"},
			{DueDate: now.Add(-4 * time.Hour), Status: "pending"},
			{DueDate: now.Add(-5 * time.Hour), Status: "pending"},
		},
	}

	alerts := EvaluateTaskCompletion(testPlan(), snapshot, testThresholds(), now)
	require.Len(t, alerts, 1)

	alert := alerts[0]
	assert.Equal(t, models.AlertTypeTaskCompletion, alert.Type)
	assert.Equal(t, models.AlertLevelUrgent, alert.Level)
	require.NotNil(t, alert.Data)
	assert.Equal(t, 40.0, *alert.Data.CompletionPercent)
	assert.Equal(t, 2, *alert.Data.CompletedCount)
	assert.Equal(t, 5, *alert.Data.TotalCount)
}

func TestEvaluateTaskCompletion_Warning(t *testing.T) {
	now := time.Now().UTC()
	// 3/5 = 60%，低于警告阈值 70% 但不低于紧急阈值 50%
	snapshot := &models.CarePlanSnapshot{
		PlanID: "plan-123",
		Tasks: []models.TaskRecord{
			{DueDate: now.Add(-time.Hour), Status: models.TaskCompleted},
			{DueDate: now.Add(-time.Hour), Status: models.TaskCompleted},
			{DueDate: now.Add(-time.Hour), Status: models.TaskCompleted},
			{DueDate: now.Add(-time.Hour), Status: "pending"},
			{DueDate: now.Add(-time.Hour), Status: "pending"},
		},
	}

	alerts := EvaluateTaskCompletion(testPlan(), snapshot, testThresholds(), now)
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertLevelWarning, alerts[0].Level)
}

func TestEvaluateTaskCompletion_FutureTasksExcluded(t *testing.T) {
	now := time.Now().UTC()
	// 未到期任务不计入分母：到期的 1 个已完成 = 100%
	snapshot := &models.CarePlanSnapshot{
		PlanID: "plan-123",
		Tasks: []models.TaskRecord{
			{DueDate: now.Add(-time.Hour), Status: models.TaskCompleted},
			{DueDate: now.Add(time.Hour), Status: "pending"},
			{DueDate: now.Add(2 * time.Hour), Status: "pending"},
		},
	}

	alerts := EvaluateTaskCompletion(testPlan(), snapshot, testThresholds(), now)
	assert.Empty(t, alerts)
}

func TestEvaluateTaskCompletion_NoDueTasks(t *testing.T) {
	now := time.Now().UTC()
	// 到期任务为零时不报警（fail-open）
	snapshot := &models.CarePlanSnapshot{
		PlanID: "plan-123",
		Tasks: []models.TaskRecord{
			{DueDate: now.Add(time.Hour), Status: "pending"},
		},
	}

	alerts := EvaluateTaskCompletion(testPlan(), snapshot, testThresholds(), now)
	assert.Empty(t, alerts)
}
