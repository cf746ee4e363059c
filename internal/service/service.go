package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-careplan/internal/cache"
	"wisefido-careplan/internal/config"
	"wisefido-careplan/internal/evaluator"
	"wisefido-careplan/internal/fetcher"
	"wisefido-careplan/internal/models"
	"wisefido-careplan/internal/monitor"
	"wisefido-careplan/internal/notifier"
	"wisefido-careplan/internal/pipeline"
	"wisefido-careplan/internal/remote"
	"wisefido-careplan/internal/repository"
	syncer "wisefido-careplan/internal/sync"
	"wisefido-careplan/internal/thresholds"

	"github.com/go-redis/redis/v8"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// CarePlanService 护理计划监测服务（整合各层）
type CarePlanService struct {
	config      *config.Config
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger

	// 各层组件
	apiClient    *remote.APIClient
	cacheManager *cache.CacheManager
	stateManager *cache.StateManager
	alertRepo    *repository.AlertRepository
	outboxRepo   *repository.OutboxRepository
	notifier     *notifier.MQTTNotifier
	pipeline     *pipeline.AlertPipeline
	coordinator  *syncer.Coordinator
	engine       *monitor.MonitoringEngine
}

// NewCarePlanService 创建监测服务
func NewCarePlanService(cfg *config.Config, logger *zap.Logger) (*CarePlanService, error) {
	// 1. 连接数据库
	db, err := sql.Open("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 测试数据库连接
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// 2. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	// 3. 远程 API 客户端
	apiClient := remote.NewAPIClient(cfg.API.BaseURL, time.Duration(cfg.API.TimeoutSec)*time.Second, logger)

	// 4. 缓存层
	cacheManager := cache.NewCacheManager(cfg, redisClient, logger)
	stateManager := cache.NewStateManager(cfg, redisClient, logger)

	// 5. Repository 层
	alertRepo := repository.NewAlertRepository(db, logger)
	outboxRepo := repository.NewOutboxRepository(db, logger)

	// 6. MQTT 紧急通知通道
	mqttNotifier, err := notifier.NewMQTTNotifier(&cfg.MQTT, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create mqtt notifier: %w", err)
	}

	// 7. 报警管道
	alertPipeline := pipeline.NewAlertPipeline(
		alertRepo,
		outboxRepo,
		apiClient,
		cacheManager,
		mqttNotifier,
		cfg.Monitoring.DedupWindowMinutes,
		logger,
	)

	// 8. 同步协调器
	coordinator := syncer.NewCoordinator(outboxRepo, apiClient, cfg.DeviceID, logger)

	// 9. 监测引擎
	thresholdStore := thresholds.NewStore(apiClient, cacheManager, logger)
	snapshotFetcher := fetcher.NewSnapshotFetcher(apiClient, cacheManager, logger)
	planEvaluator := evaluator.NewEvaluator(stateManager, logger)

	engine := monitor.NewMonitoringEngine(
		cfg,
		redisClient,
		thresholdStore,
		apiClient,
		cacheManager,
		snapshotFetcher,
		planEvaluator,
		alertPipeline,
		coordinator,
		logger,
	)

	return &CarePlanService{
		config:       cfg,
		db:           db,
		redisClient:  redisClient,
		logger:       logger,
		apiClient:    apiClient,
		cacheManager: cacheManager,
		stateManager: stateManager,
		alertRepo:    alertRepo,
		outboxRepo:   outboxRepo,
		notifier:     mqttNotifier,
		pipeline:     alertPipeline,
		coordinator:  coordinator,
		engine:       engine,
	}, nil
}

// Start 启动服务
func (s *CarePlanService) Start(ctx context.Context) error {
	s.logger.Info("Starting care plan monitoring service",
		zap.String("device_id", s.config.DeviceID),
	)

	// 启动前恢复活跃报警集合
	if err := s.pipeline.LoadActive(ctx); err != nil {
		s.logger.Warn("Failed to restore active alerts", zap.Error(err))
	}

	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitoring engine: %w", err)
	}

	return nil
}

// Stop 停止服务
func (s *CarePlanService) Stop() error {
	s.logger.Info("Stopping care plan monitoring service")

	s.engine.Stop()
	s.notifier.Close()

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database",
			zap.Error(err),
		)
	}

	if err := s.redisClient.Close(); err != nil {
		s.logger.Error("Failed to close redis",
			zap.Error(err),
		)
	}

	return nil
}

// AcknowledgeAlert 确认报警（幂等）
func (s *CarePlanService) AcknowledgeAlert(ctx context.Context, alertID string) error {
	return s.pipeline.Acknowledge(ctx, alertID)
}

// ActiveAlerts 查询活跃报警（planID 为空查全部）
func (s *CarePlanService) ActiveAlerts(planID string) []models.Alert {
	return s.pipeline.ActiveAlerts(planID)
}

// AlertDetails 查询单条报警详情（通知深链接跳转用）
func (s *CarePlanService) AlertDetails(ctx context.Context, alertID string) (*models.Alert, error) {
	return s.alertRepo.GetAlert(ctx, alertID)
}

// OnAlertsUpdated 订阅活跃报警变更（UI 协作方接入点）
func (s *CarePlanService) OnAlertsUpdated(cb pipeline.AlertsUpdatedFunc) {
	s.pipeline.OnAlertsUpdated(cb)
}

// Metrics 获取监测引擎运行指标
func (s *CarePlanService) Metrics() monitor.Metrics {
	return s.engine.GetMetrics()
}
