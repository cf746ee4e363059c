package evaluator

import (
	"strconv"
	"strings"
	"time"

	"wisefido-careplan/internal/models"
)

// newAlert 构建报警（ID 由计划ID + 信号子类型 + 生成时间派生）
func newAlert(
	plan models.CarePlan,
	alertType string,
	subType string,
	level string,
	message string,
	data *models.AlertData,
	now time.Time,
) models.Alert {
	return models.Alert{
		AlertID:    models.NewAlertID(plan.PlanID, subType, now),
		CarePlanID: plan.PlanID,
		PatientID:  plan.PatientID,
		Type:       alertType,
		SubType:    subType,
		Level:      level,
		Message:    message,
		Data:       data,
		Timestamp:  now,
		Status:     models.AlertStatusNew,
	}
}

// displayName 信号类型的可读名称，如 "heart_rate" → "heart rate"
func displayName(signalType string) string {
	return strings.ReplaceAll(signalType, "_", " ")
}

// formatValue 数值的可读格式（去掉多余的小数位）
func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
