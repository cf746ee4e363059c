package models

import (
	"fmt"
	"time"
)

// 报警类型
const (
	AlertTypeVitalSign            = "vital_sign"
	AlertTypeMedicationCompliance = "medication_compliance"
	AlertTypeMissedVisits         = "missed_visits"
	AlertTypeTaskCompletion       = "task_completion"
	AlertTypeAnomaly              = "anomaly"
	AlertTypePrediction           = "prediction"
)

// 报警级别
const (
	AlertLevelInfo    = "info"
	AlertLevelWarning = "warning"
	AlertLevelUrgent  = "urgent"
)

// 报警状态
const (
	AlertStatusNew          = "new"
	AlertStatusAcknowledged = "acknowledged"
)

// Alert 护理计划监测报警（对应 careplan_alerts 表）
type Alert struct {
	AlertID        string     `json:"id" db:"alert_id"`
	CarePlanID     string     `json:"carePlanId" db:"care_plan_id"`
	PatientID      string     `json:"patientId" db:"patient_id"`
	Type           string     `json:"type" db:"alert_type"`
	SubType        string     `json:"subType,omitempty" db:"sub_type"`
	Level          string     `json:"level" db:"alert_level"`
	Message        string     `json:"message" db:"message"`
	Data           *AlertData `json:"data,omitempty" db:"alert_data"` // JSONB
	Timestamp      time.Time  `json:"timestamp" db:"triggered_at"`
	Status         string     `json:"status" db:"alert_status"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt,omitempty" db:"acknowledged_at"`
}

// AlertData 报警附加数据（按信号类型填充对应字段，JSONB 结构）
type AlertData struct {
	// 生命体征阈值报警
	Value     *float64        `json:"value,omitempty"`
	Unit      string          `json:"unit,omitempty"`
	Threshold *ThresholdRange `json:"threshold,omitempty"`

	// 依从率/完成率报警
	CompliancePercent *float64 `json:"compliancePercent,omitempty"`
	CompletionPercent *float64 `json:"completionPercent,omitempty"`
	TakenCount        *int     `json:"takenCount,omitempty"`
	ScheduledCount    *int     `json:"scheduledCount,omitempty"`
	CompletedCount    *int     `json:"completedCount,omitempty"`
	TotalCount        *int     `json:"totalCount,omitempty"`

	// 漏访报警
	MissedCount *int `json:"missedCount,omitempty"`

	// 异常检测报警
	Mean          *float64  `json:"mean,omitempty"`
	StdDev        *float64  `json:"stdDev,omitempty"`
	ZScore        *float64  `json:"zScore,omitempty"`
	RecentSamples []float64 `json:"recentSamples,omitempty"`

	// 趋势预测报警
	Slope        *float64 `json:"slope,omitempty"`
	Significance *float64 `json:"significance,omitempty"`
	Direction    string   `json:"direction,omitempty"` // improving, declining, stable
	SampleCount  *int     `json:"sampleCount,omitempty"`
}

// NewAlertID 生成报警ID（计划ID + 信号子类型 + 生成时间，避免意外碰撞）
func NewAlertID(planID, subType string, at time.Time) string {
	return fmt.Sprintf("alert-%s-%s-%d", planID, subType, at.UnixNano())
}

// IsActive 报警是否处于活跃状态（未确认）
func (a *Alert) IsActive() bool {
	return a.Status == AlertStatusNew
}
