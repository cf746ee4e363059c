package evaluator

import (
	"fmt"
	"time"

	"wisefido-careplan/internal/models"
)

// 趋势方向
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

const (
	// trendMinSamples 趋势估计所需的最小样本数
	trendMinSamples = 3

	// trendSlopeBand 斜率在 ±0.1 内视为平稳
	trendSlopeBand = 0.1

	// 显著性（R²）分级阈值
	trendEmitSignificance    = 0.7
	trendWarningSignificance = 0.9
)

// TrendResult 一种体征的趋势估计结果
type TrendResult struct {
	VitalType    string
	Direction    string
	Slope        float64
	Significance float64 // R²（决定系数）
	SampleCount  int
}

// EstimateTrend 对一种体征做最小二乘趋势估计（x 为样本序号 0,1,2,...）
// 样本不足时返回 nil
func EstimateTrend(snapshot *models.CarePlanSnapshot, vitalType string) *TrendResult {
	samples := samplesByTime(snapshot.VitalSigns, vitalType)
	if len(samples) < trendMinSamples {
		return nil
	}

	n := float64(len(samples))
	var sumX, sumY, sumXY, sumXX float64
	for i, s := range samples {
		x := float64(i)
		sumX += x
		sumY += s.Value
		sumXY += x * s.Value
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return nil
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	// R²：回归对均值的解释程度
	meanY := sumY / n
	var ssTot, ssRes float64
	for i, s := range samples {
		predicted := intercept + slope*float64(i)
		ssTot += (s.Value - meanY) * (s.Value - meanY)
		ssRes += (s.Value - predicted) * (s.Value - predicted)
	}

	significance := 0.0
	if ssTot > 0 {
		significance = 1 - ssRes/ssTot
	}

	direction := TrendStable
	switch {
	case slope > trendSlopeBand:
		direction = TrendImproving
	case slope < -trendSlopeBand:
		direction = TrendDeclining
	}

	return &TrendResult{
		VitalType:    vitalType,
		Direction:    direction,
		Slope:        slope,
		Significance: significance,
		SampleCount:  len(samples),
	}
}

// BuildPredictionAlert 根据趋势结果构建预测报警
// 只有显著下滑（declining 且 R² > 0.7）才报警；R² > 0.9 为 warning，否则 info
func BuildPredictionAlert(plan models.CarePlan, trend *TrendResult, now time.Time) *models.Alert {
	if trend == nil || trend.Direction != TrendDeclining || trend.Significance <= trendEmitSignificance {
		return nil
	}

	level := models.AlertLevelInfo
	if trend.Significance > trendWarningSignificance {
		level = models.AlertLevelWarning
	}

	message := fmt.Sprintf("%s shows a declining trend (significance %.2f)",
		displayName(trend.VitalType), trend.Significance)

	alert := newAlert(
		plan,
		models.AlertTypePrediction,
		trend.VitalType,
		level,
		message,
		&models.AlertData{
			Slope:        floatPtr(trend.Slope),
			Significance: floatPtr(trend.Significance),
			Direction:    trend.Direction,
			SampleCount:  intPtr(trend.SampleCount),
		},
		now,
	)
	return &alert
}
