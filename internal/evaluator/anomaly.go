package evaluator

import (
	"fmt"
	"math"
	"time"

	"wisefido-careplan/internal/models"
)

const (
	// anomalyMinSamples 异常检测所需的最小样本数
	anomalyMinSamples = 5

	// z-score 分级阈值
	anomalyUrgentZ  = 3.0
	anomalyWarningZ = 2.0
)

// DetectAnomalies 异常检测（z-score）
// 对每种体征：均值和总体标准差取全部历史样本，z-score 只算最新样本
// 标准差为零时无法计算，跳过（方差为零的序列永不报异常）
func DetectAnomalies(
	plan models.CarePlan,
	snapshot *models.CarePlanSnapshot,
	now time.Time,
) []models.Alert {
	var alerts []models.Alert

	for _, vitalType := range vitalTypes(snapshot.VitalSigns) {
		samples := samplesByTime(snapshot.VitalSigns, vitalType)
		if len(samples) < anomalyMinSamples {
			continue
		}

		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.Value
		}

		mean := meanOf(values)
		stdDev := populationStdDev(values, mean)
		if stdDev == 0 {
			continue
		}

		latest := values[len(values)-1]
		zScore := math.Abs(latest-mean) / stdDev

		var level string
		switch {
		case zScore > anomalyUrgentZ:
			level = models.AlertLevelUrgent
		case zScore > anomalyWarningZ:
			level = models.AlertLevelWarning
		default:
			continue
		}

		message := fmt.Sprintf("%s %s deviates from recent history (z-score %.1f)",
			displayName(vitalType), formatValue(latest), zScore)

		recent := values
		if len(recent) > 5 {
			recent = recent[len(recent)-5:]
		}

		alerts = append(alerts, newAlert(
			plan,
			models.AlertTypeAnomaly,
			vitalType,
			level,
			message,
			&models.AlertData{
				Value:         floatPtr(latest),
				Mean:          floatPtr(mean),
				StdDev:        floatPtr(stdDev),
				ZScore:        floatPtr(zScore),
				RecentSamples: recent,
			},
			now,
		))
	}

	return alerts
}

// vitalTypes 快照中出现过的体征类型（保持首次出现顺序，保证评估结果确定）
func vitalTypes(measurements []models.VitalSignMeasurement) []string {
	seen := make(map[string]struct{})
	var types []string
	for _, m := range measurements {
		if _, ok := seen[m.Type]; ok {
			continue
		}
		seen[m.Type] = struct{}{}
		types = append(types, m.Type)
	}
	return types
}

// samplesByTime 指定类型的样本按时间升序排列（时间相同保持插入顺序）
func samplesByTime(measurements []models.VitalSignMeasurement, vitalType string) []models.VitalSignMeasurement {
	var samples []models.VitalSignMeasurement
	for _, m := range measurements {
		if m.Type == vitalType {
			samples = append(samples, m)
		}
	}
	// 插入排序保证稳定性
	for i := 1; i < len(samples); i++ {
		for j := i; j > 0 && samples[j].Timestamp.Before(samples[j-1].Timestamp); j-- {
			samples[j], samples[j-1] = samples[j-1], samples[j]
		}
	}
	return samples
}

func meanOf(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// populationStdDev 总体标准差（分母为 N）
func populationStdDev(values []float64, mean float64) float64 {
	sumSq := 0.0
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)))
}
