package fetcher

import (
	"context"

	"wisefido-careplan/internal/models"

	"go.uber.org/zap"
)

// snapshotSource 远程监测数据来源
type snapshotSource interface {
	FetchMonitoringData(ctx context.Context, planID string) (*models.CarePlanSnapshot, error)
}

// snapshotCache 快照本地副本（离线兜底）
type snapshotCache interface {
	GetSnapshot(ctx context.Context, planID string) (*models.CarePlanSnapshot, error)
	SetSnapshot(ctx context.Context, planID string, snapshot *models.CarePlanSnapshot) error
}

// SnapshotFetcher 护理计划快照获取器
// 远程优先，成功后透写本地副本；远程不可用时回退到本地副本
type SnapshotFetcher struct {
	remote snapshotSource
	cache  snapshotCache
	logger *zap.Logger
}

// NewSnapshotFetcher 创建快照获取器
func NewSnapshotFetcher(remote snapshotSource, cache snapshotCache, logger *zap.Logger) *SnapshotFetcher {
	return &SnapshotFetcher{
		remote: remote,
		cache:  cache,
		logger: logger,
	}
}

// Fetch 获取计划的监测数据快照
// 远程和本地副本都不可用时返回 (nil, nil)，由调用方决定跳过本轮评估
func (f *SnapshotFetcher) Fetch(ctx context.Context, planID string) (*models.CarePlanSnapshot, error) {
	snapshot, err := f.remote.FetchMonitoringData(ctx, planID)
	if err == nil {
		if cacheErr := f.cache.SetSnapshot(ctx, planID, snapshot); cacheErr != nil {
			f.logger.Warn("Failed to cache snapshot",
				zap.String("plan_id", planID),
				zap.Error(cacheErr),
			)
		}
		return snapshot, nil
	}

	f.logger.Warn("Failed to fetch monitoring data, falling back to cached snapshot",
		zap.String("plan_id", planID),
		zap.Error(err),
	)

	cached, cacheErr := f.cache.GetSnapshot(ctx, planID)
	if cacheErr != nil {
		f.logger.Warn("No cached snapshot available",
			zap.String("plan_id", planID),
			zap.Error(cacheErr),
		)
		return nil, nil
	}
	return cached, nil
}
