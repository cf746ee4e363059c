package models

import (
	"time"
)

// CarePlan 护理计划（从远程 API 获取的活跃计划条目）
type CarePlan struct {
	PlanID    string `json:"id"`
	PatientID string `json:"patientId"`
	Title     string `json:"title,omitempty"`
	Status    string `json:"status,omitempty"` // active, completed, cancelled
}

// VitalSignMeasurement 生命体征测量值
type VitalSignMeasurement struct {
	Type      string    `json:"type"` // heart_rate, blood_pressure_systolic, ...
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MedicationEvent 用药事件
type MedicationEvent struct {
	MedicationID string    `json:"medicationId,omitempty"`
	Status       string    `json:"status"` // scheduled, taken
	ScheduledAt  time.Time `json:"scheduledAt,omitempty"`
}

// VisitRecord 访视记录
type VisitRecord struct {
	VisitID       string    `json:"visitId,omitempty"`
	ScheduledDate time.Time `json:"scheduledDate"`
	Status        string    `json:"status"` // scheduled, completed, missed, cancelled
}

// TaskRecord 护理任务记录
type TaskRecord struct {
	TaskID  string    `json:"taskId,omitempty"`
	DueDate time.Time `json:"dueDate"`
	Status  string    `json:"status"` // pending, completed, overdue
}

// CarePlanSnapshot 护理计划监测数据快照（只读，核心不修改）
type CarePlanSnapshot struct {
	PlanID      string                 `json:"planId"`
	VitalSigns  []VitalSignMeasurement `json:"vitalSigns"`
	Medications []MedicationEvent      `json:"medications"`
	Visits      []VisitRecord          `json:"visits"`
	Tasks       []TaskRecord           `json:"tasks"`
	FetchedAt   time.Time              `json:"fetchedAt,omitempty"`
}

// 用药/访视/任务状态常量
const (
	MedicationTaken     = "taken"
	MedicationScheduled = "scheduled"
	VisitMissed         = "missed"
	TaskCompleted       = "completed"
)
