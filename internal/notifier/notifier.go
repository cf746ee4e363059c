package notifier

import (
	"context"

	"wisefido-careplan/internal/models"
)

// Notifier 紧急报警通知通道
type Notifier interface {
	// NotifyUrgent 推送紧急报警通知
	NotifyUrgent(ctx context.Context, alerts []models.Alert) error
}

// UrgentNotification 紧急报警通知载荷
// Data 中的 ID 供客户端构建深链接跳转到报警详情
type UrgentNotification struct {
	Title string           `json:"title"`
	Body  string           `json:"body"`
	Tag   string           `json:"tag"`
	Data  NotificationData `json:"data"`
}

// NotificationData 通知深链接数据
type NotificationData struct {
	AlertID    string `json:"alertId"`
	CarePlanID string `json:"carePlanId"`
	PatientID  string `json:"patientId"`
	Level      string `json:"level"`
}
