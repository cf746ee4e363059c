package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-careplan/internal/config"
	"wisefido-careplan/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CacheManager Redis 缓存管理器（快照副本、配置副本、活跃报警镜像）
// 本地副本保证离线期间监测仍可运行
type CacheManager struct {
	config      *config.Config
	redisClient *redis.Client
	logger      *zap.Logger
}

// NewCacheManager 创建缓存管理器
func NewCacheManager(
	cfg *config.Config,
	redisClient *redis.Client,
	logger *zap.Logger,
) *CacheManager {
	return &CacheManager{
		config:      cfg,
		redisClient: redisClient,
		logger:      logger,
	}
}

// snapshotKey 构建快照缓存键
func (c *CacheManager) snapshotKey(planID string) string {
	return fmt.Sprintf("%s%s%s",
		c.config.Monitoring.Cache.SnapshotKeyPrefix,
		planID,
		c.config.Monitoring.Cache.SnapshotSuffix,
	)
}

// GetSnapshot 读取护理计划快照的本地副本
func (c *CacheManager) GetSnapshot(ctx context.Context, planID string) (*models.CarePlanSnapshot, error) {
	val, err := c.redisClient.Get(ctx, c.snapshotKey(planID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("snapshot not found for plan: %s", planID)
		}
		return nil, fmt.Errorf("failed to get snapshot cache: %w", err)
	}

	var snapshot models.CarePlanSnapshot
	if err := json.Unmarshal([]byte(val), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	return &snapshot, nil
}

// SetSnapshot 写入护理计划快照的本地副本（不设 TTL，离线期间作为回退数据）
func (c *CacheManager) SetSnapshot(ctx context.Context, planID string, snapshot *models.CarePlanSnapshot) error {
	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	if err := c.redisClient.Set(ctx, c.snapshotKey(planID), jsonData, 0).Err(); err != nil {
		return fmt.Errorf("failed to set snapshot cache: %w", err)
	}

	c.logger.Debug("Snapshot cached",
		zap.String("plan_id", planID),
		zap.Int("vital_count", len(snapshot.VitalSigns)),
	)

	return nil
}

// UpdateAlertCache 更新活跃报警镜像（UI 侧读取，带 TTL）
func (c *CacheManager) UpdateAlertCache(ctx context.Context, planID string, alerts []models.Alert) error {
	key := fmt.Sprintf("%s%s%s",
		c.config.Monitoring.Cache.AlertKeyPrefix,
		planID,
		c.config.Monitoring.Cache.AlertSuffix,
	)

	jsonData, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("failed to marshal alerts: %w", err)
	}

	err = c.redisClient.Set(
		ctx,
		key,
		jsonData,
		time.Duration(c.config.Monitoring.Cache.AlertTTL)*time.Second,
	).Err()
	if err != nil {
		return fmt.Errorf("failed to set alert cache: %w", err)
	}

	c.logger.Debug("Updated alert cache",
		zap.String("plan_id", planID),
		zap.String("key", key),
		zap.Int("alert_count", len(alerts)),
	)

	return nil
}

// SaveMonitoringConfig 持久化监测配置的本地副本
func (c *CacheManager) SaveMonitoringConfig(ctx context.Context, cfg *models.MonitoringConfig) error {
	jsonData, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal monitoring config: %w", err)
	}

	if err := c.redisClient.Set(ctx, c.config.Monitoring.Cache.ConfigKey, jsonData, 0).Err(); err != nil {
		return fmt.Errorf("failed to save monitoring config: %w", err)
	}

	return nil
}

// LoadMonitoringConfig 读取监测配置的本地副本
func (c *CacheManager) LoadMonitoringConfig(ctx context.Context) (*models.MonitoringConfig, error) {
	val, err := c.redisClient.Get(ctx, c.config.Monitoring.Cache.ConfigKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("monitoring config not found in cache")
		}
		return nil, fmt.Errorf("failed to load monitoring config: %w", err)
	}

	var cfg models.MonitoringConfig
	if err := json.Unmarshal([]byte(val), &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal monitoring config: %w", err)
	}

	return &cfg, nil
}

// SaveActivePlans 持久化活跃计划列表的本地副本
func (c *CacheManager) SaveActivePlans(ctx context.Context, plans []models.CarePlan) error {
	jsonData, err := json.Marshal(plans)
	if err != nil {
		return fmt.Errorf("failed to marshal active plans: %w", err)
	}

	if err := c.redisClient.Set(ctx, c.config.Monitoring.Cache.ActivePlansKey, jsonData, 0).Err(); err != nil {
		return fmt.Errorf("failed to save active plans: %w", err)
	}

	return nil
}

// LoadActivePlans 读取活跃计划列表的本地副本
func (c *CacheManager) LoadActivePlans(ctx context.Context) ([]models.CarePlan, error) {
	val, err := c.redisClient.Get(ctx, c.config.Monitoring.Cache.ActivePlansKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("active plans not found in cache")
		}
		return nil, fmt.Errorf("failed to load active plans: %w", err)
	}

	var plans []models.CarePlan
	if err := json.Unmarshal([]byte(val), &plans); err != nil {
		return nil, fmt.Errorf("failed to unmarshal active plans: %w", err)
	}

	return plans, nil
}
