package thresholds

import (
	"context"

	"wisefido-careplan/internal/models"

	"go.uber.org/zap"
)

// configFetcher 远程监测配置来源
type configFetcher interface {
	FetchMonitoringConfig(ctx context.Context) (*models.MonitoringConfig, error)
}

// configCache 监测配置本地副本
type configCache interface {
	SaveMonitoringConfig(ctx context.Context, cfg *models.MonitoringConfig) error
	LoadMonitoringConfig(ctx context.Context) (*models.MonitoringConfig, error)
}

// Store 监测配置加载器
// 三级回退：远程 → 本地副本 → 硬编码默认值，Load 永不失败
type Store struct {
	remote configFetcher
	cache  configCache
	logger *zap.Logger
}

// NewStore 创建监测配置加载器
func NewStore(remote configFetcher, cache configCache, logger *zap.Logger) *Store {
	return &Store{
		remote: remote,
		cache:  cache,
		logger: logger,
	}
}

// Load 加载监测配置
// 远程获取成功时与默认值合并并更新本地副本；失败时回退到本地副本，再回退到默认值
func (s *Store) Load(ctx context.Context) *models.MonitoringConfig {
	remote, err := s.remote.FetchMonitoringConfig(ctx)
	if err != nil {
		s.logger.Warn("Failed to fetch monitoring config, falling back to cached copy", zap.Error(err))
		return s.loadFallback(ctx)
	}

	merged := s.mergeWithDefaults(remote)

	if err := s.cache.SaveMonitoringConfig(ctx, merged); err != nil {
		s.logger.Warn("Failed to cache monitoring config", zap.Error(err))
	}

	return merged
}

func (s *Store) loadFallback(ctx context.Context) *models.MonitoringConfig {
	cached, err := s.cache.LoadMonitoringConfig(ctx)
	if err != nil {
		s.logger.Warn("No cached monitoring config, using defaults", zap.Error(err))
		return models.DefaultMonitoringConfig()
	}
	return cached
}

// mergeWithDefaults 以默认配置为底，覆盖远程配置中有效的字段
// 区间顺序非法的生命体征阈值丢弃并告警，保留该体征的默认阈值
func (s *Store) mergeWithDefaults(remote *models.MonitoringConfig) *models.MonitoringConfig {
	merged := models.DefaultMonitoringConfig()

	if remote.PollIntervalSec > 0 {
		merged.PollIntervalSec = remote.PollIntervalSec
	}
	merged.AnomalyDetectionEnabled = remote.AnomalyDetectionEnabled
	merged.PredictiveModelEnabled = remote.PredictiveModelEnabled

	for vitalType, threshold := range remote.Thresholds.VitalSigns {
		if !threshold.Valid() {
			s.logger.Warn("Dropping invalid vital sign threshold",
				zap.String("vital_type", vitalType),
				zap.Float64("urgent_min", threshold.UrgentMin),
				zap.Float64("min", threshold.Min),
				zap.Float64("max", threshold.Max),
				zap.Float64("urgent_max", threshold.UrgentMax),
			)
			continue
		}
		merged.Thresholds.VitalSigns[vitalType] = threshold
	}

	if t := remote.Thresholds.MedicationCompliance; t.Warning > 0 || t.Urgent > 0 {
		merged.Thresholds.MedicationCompliance = t
	}
	if t := remote.Thresholds.MissedVisits; t.Warning > 0 || t.Urgent > 0 {
		merged.Thresholds.MissedVisits = t
	}
	if t := remote.Thresholds.TaskCompletion; t.Warning > 0 || t.Urgent > 0 {
		merged.Thresholds.TaskCompletion = t
	}

	return merged
}
