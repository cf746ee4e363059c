package models

// ThresholdRange 区间型阈值（生命体征）
// 不变式：UrgentMin <= Min <= Max <= UrgentMax
type ThresholdRange struct {
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Unit      string  `json:"unit,omitempty"`
	UrgentMin float64 `json:"urgentMin"`
	UrgentMax float64 `json:"urgentMax"`
}

// Valid 校验阈值区间顺序
func (t ThresholdRange) Valid() bool {
	return t.UrgentMin <= t.Min && t.Min <= t.Max && t.Max <= t.UrgentMax
}

// PercentThreshold 百分比型阈值（用药依从率、任务完成率）
// 低于 Warning 触发 warning，低于 Urgent 触发 urgent
type PercentThreshold struct {
	Warning float64 `json:"percentThreshold"`
	Urgent  float64 `json:"percentUrgent"`
}

// CountThreshold 计数型阈值（漏访次数）
// 达到 Warning 触发 warning，达到 Urgent 触发 urgent
type CountThreshold struct {
	Warning int `json:"countThreshold"`
	Urgent  int `json:"countUrgent"`
}

// MonitoringThresholds 各信号类型的阈值配置
type MonitoringThresholds struct {
	VitalSigns           map[string]ThresholdRange `json:"vitalSigns"`
	MedicationCompliance PercentThreshold          `json:"medicationCompliance"`
	MissedVisits         CountThreshold            `json:"missedVisits"`
	TaskCompletion       PercentThreshold          `json:"taskCompletion"`
}

// MonitoringConfig 监测引擎配置（整体加载、整体替换，不做局部更新）
type MonitoringConfig struct {
	PollIntervalSec         int                  `json:"pollIntervalSec"`
	Thresholds              MonitoringThresholds `json:"thresholds"`
	AnomalyDetectionEnabled bool                 `json:"anomalyDetectionEnabled"`
	PredictiveModelEnabled  bool                 `json:"predictiveModelEnabled"`
}

// DefaultMonitoringConfig 硬编码默认配置（远程和本地副本都不可用时的兜底）
func DefaultMonitoringConfig() *MonitoringConfig {
	return &MonitoringConfig{
		PollIntervalSec: 60,
		Thresholds: MonitoringThresholds{
			VitalSigns: map[string]ThresholdRange{
				"heart_rate":               {Min: 60, Max: 100, Unit: "bpm", UrgentMin: 50, UrgentMax: 120},
				"blood_pressure_systolic":  {Min: 90, Max: 140, Unit: "mmHg", UrgentMin: 80, UrgentMax: 180},
				"blood_pressure_diastolic": {Min: 60, Max: 90, Unit: "mmHg", UrgentMin: 50, UrgentMax: 110},
				"temperature":              {Min: 36.1, Max: 37.2, Unit: "C", UrgentMin: 35.0, UrgentMax: 38.5},
				"oxygen_saturation":        {Min: 95, Max: 100, Unit: "%", UrgentMin: 90, UrgentMax: 100},
				"blood_glucose":            {Min: 70, Max: 140, Unit: "mg/dL", UrgentMin: 54, UrgentMax: 250},
				"respiratory_rate":         {Min: 12, Max: 20, Unit: "/min", UrgentMin: 8, UrgentMax: 28},
			},
			MedicationCompliance: PercentThreshold{Warning: 80, Urgent: 60},
			MissedVisits:         CountThreshold{Warning: 1, Urgent: 3},
			TaskCompletion:       PercentThreshold{Warning: 70, Urgent: 50},
		},
		AnomalyDetectionEnabled: true,
		PredictiveModelEnabled:  true,
	}
}
