package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wisefido-careplan/internal/config"
	"wisefido-careplan/internal/events"
	"wisefido-careplan/internal/models"
	"wisefido-careplan/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	// eventReadCount 单次读取的触发事件上限
	eventReadCount = 10

	// eventReadBlock 事件流阻塞读取时长
	eventReadBlock = 5 * time.Second

	// metricsReportInterval 指标日志输出间隔
	metricsReportInterval = 60 * time.Second
)

// planSource 活跃计划列表来源
type planSource interface {
	FetchActivePlans(ctx context.Context) ([]models.CarePlan, error)
}

// planCache 活跃计划列表本地副本
type planCache interface {
	SaveActivePlans(ctx context.Context, plans []models.CarePlan) error
	LoadActivePlans(ctx context.Context) ([]models.CarePlan, error)
}

// snapshotProvider 计划监测数据快照来源
type snapshotProvider interface {
	Fetch(ctx context.Context, planID string) (*models.CarePlanSnapshot, error)
}

// configLoader 监测配置加载器
type configLoader interface {
	Load(ctx context.Context) *models.MonitoringConfig
}

// planEvaluator 单个计划的评估器
type planEvaluator interface {
	Evaluate(ctx context.Context, plan models.CarePlan, snapshot *models.CarePlanSnapshot, mcfg *models.MonitoringConfig, now time.Time) []models.Alert
}

// alertSink 评估产出的报警去向
type alertSink interface {
	Process(ctx context.Context, planID string, alerts []models.Alert)
}

// syncDrainer 离线同步队列排空
type syncDrainer interface {
	Drain(ctx context.Context, filter repository.OutboxFilter) (models.SyncResult, error)
	DrainPriority(ctx context.Context) (models.SyncResult, error)
}

// MonitoringEngine 监测引擎
// 定时轮询活跃计划逐个评估，同时消费触发事件做即时评估；轮次互斥，计划间错误隔离
type MonitoringEngine struct {
	config      *config.Config
	redisClient *redis.Client
	thresholds  configLoader
	plans       planSource
	planCache   planCache
	fetcher     snapshotProvider
	evaluator   planEvaluator
	pipeline    alertSink
	syncer      syncDrainer
	logger      *zap.Logger
	metrics     *Metrics

	planMu      sync.RWMutex
	activePlans []models.CarePlan
	mcfg        *models.MonitoringConfig

	// passMu 保证同一时刻只有一轮评估在执行
	passMu sync.Mutex

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	nowFunc func() time.Time
}

// NewMonitoringEngine 创建监测引擎
func NewMonitoringEngine(
	cfg *config.Config,
	redisClient *redis.Client,
	thresholdLoader configLoader,
	plans planSource,
	planCache planCache,
	fetcher snapshotProvider,
	planEval planEvaluator,
	pipeline alertSink,
	syncer syncDrainer,
	logger *zap.Logger,
) *MonitoringEngine {
	return &MonitoringEngine{
		config:      cfg,
		redisClient: redisClient,
		thresholds:  thresholdLoader,
		plans:       plans,
		planCache:   planCache,
		fetcher:     fetcher,
		evaluator:   planEval,
		pipeline:    pipeline,
		syncer:      syncer,
		logger:      logger,
		metrics:     &Metrics{StartTime: time.Now()},
		nowFunc:     time.Now,
	}
}

// Start 启动监测引擎（幂等）
// 加载配置和活跃计划，创建事件消费者组，启动轮询和事件消费，并立即执行首轮评估
func (e *MonitoringEngine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.running {
		return nil
	}

	mcfg := e.thresholds.Load(ctx)
	e.planMu.Lock()
	e.mcfg = mcfg
	e.planMu.Unlock()

	if err := e.refreshActivePlans(ctx); err != nil {
		e.logger.Warn("Failed to load active plans at startup", zap.Error(err))
	}

	stream := e.config.Monitoring.EventStream
	group := e.config.Monitoring.EventConsumerGroup
	if err := events.CreateConsumerGroup(ctx, e.redisClient, stream, group); err != nil {
		return fmt.Errorf("failed to create event consumer group: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true

	e.wg.Add(3)
	go e.pollLoop(runCtx, time.Duration(mcfg.PollIntervalSec)*time.Second)
	go e.eventLoop(runCtx)
	go e.reportMetrics(runCtx)

	e.logger.Info("Monitoring engine started",
		zap.Int("poll_interval_sec", mcfg.PollIntervalSec),
		zap.Int("active_plans", e.planCount()),
	)
	return nil
}

// Stop 停止监测引擎（幂等），等待进行中的轮次结束
func (e *MonitoringEngine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if !e.running {
		return
	}
	e.cancel()
	e.wg.Wait()
	e.running = false
	e.logger.Info("Monitoring engine stopped")
}

// GetMetrics 获取运行指标快照
func (e *MonitoringEngine) GetMetrics() Metrics {
	return e.metrics.GetSnapshot()
}

// pollLoop 定时轮询循环，启动后立即执行首轮
func (e *MonitoringEngine) pollLoop(ctx context.Context, interval time.Duration) {
	defer e.wg.Done()

	e.RunPass(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunPass(ctx)
		}
	}
}

// RunPass 执行一轮评估
// 上一轮未结束时跳过本轮，不排队堆积
func (e *MonitoringEngine) RunPass(ctx context.Context) {
	if !e.passMu.TryLock() {
		e.logger.Warn("Previous monitoring pass still running, skipping")
		e.metrics.IncrementPassSkipped()
		return
	}
	defer e.passMu.Unlock()

	start := time.Now()

	e.planMu.RLock()
	plans := make([]models.CarePlan, len(e.activePlans))
	copy(plans, e.activePlans)
	mcfg := e.mcfg
	e.planMu.RUnlock()

	failed := 0
	for _, plan := range plans {
		if ctx.Err() != nil {
			return
		}
		if err := e.evaluatePlan(ctx, plan, mcfg); err != nil {
			failed++
			e.logger.Error("Plan evaluation failed",
				zap.String("plan_id", plan.PlanID),
				zap.Error(err),
			)
		}
	}

	// 全部失败通常是数据源整体故障，单独给出诊断日志
	if len(plans) > 0 && failed == len(plans) {
		e.logger.Error("All plan evaluations failed, data source may be unavailable",
			zap.Int("plan_count", len(plans)),
		)
	}

	e.drainSyncQueue(ctx)

	e.metrics.IncrementPassRun(time.Since(start))
}

// evaluatePlan 评估单个计划：取快照、评估、交给报警管道
func (e *MonitoringEngine) evaluatePlan(ctx context.Context, plan models.CarePlan, mcfg *models.MonitoringConfig) error {
	snapshot, err := e.fetcher.Fetch(ctx, plan.PlanID)
	if err != nil {
		e.metrics.IncrementPlanFailed()
		return fmt.Errorf("failed to fetch snapshot: %w", err)
	}
	if snapshot == nil {
		// 远程和本地副本都没有数据，本轮跳过该计划
		e.metrics.IncrementPlanSkipped()
		e.logger.Debug("No snapshot available, skipping plan",
			zap.String("plan_id", plan.PlanID),
		)
		return nil
	}

	alerts := e.evaluator.Evaluate(ctx, plan, snapshot, mcfg, e.nowFunc())
	e.pipeline.Process(ctx, plan.PlanID, alerts)

	e.metrics.IncrementPlanEvaluated()
	return nil
}

// EvaluatePlan 对单个计划做即时评估（触发事件驱动，不等下一轮轮询）
func (e *MonitoringEngine) EvaluatePlan(ctx context.Context, planID string) error {
	plan, ok := e.findPlan(planID)
	if !ok {
		// 计划不在本地列表，可能是新建计划，刷新后重试
		if err := e.refreshActivePlans(ctx); err != nil {
			return fmt.Errorf("plan %s not found and refresh failed: %w", planID, err)
		}
		plan, ok = e.findPlan(planID)
		if !ok {
			return fmt.Errorf("plan %s is not an active plan", planID)
		}
	}

	e.planMu.RLock()
	mcfg := e.mcfg
	e.planMu.RUnlock()

	return e.evaluatePlan(ctx, plan, mcfg)
}

// eventLoop 触发事件消费循环
func (e *MonitoringEngine) eventLoop(ctx context.Context) {
	defer e.wg.Done()

	stream := e.config.Monitoring.EventStream
	group := e.config.Monitoring.EventConsumerGroup
	consumer := e.config.DeviceID

	for {
		if ctx.Err() != nil {
			return
		}

		evts, ids, err := events.ReadEvents(ctx, e.redisClient, stream, group, consumer, eventReadCount, eventReadBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			e.logger.Error("Failed to read trigger events", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if len(evts) == 0 {
			continue
		}

		for _, event := range evts {
			e.handleEvent(ctx, event)
			e.metrics.IncrementEventProcessed()
		}

		if err := events.AckEvents(ctx, e.redisClient, stream, group, ids...); err != nil {
			e.logger.Error("Failed to ack trigger events", zap.Error(err))
		}
	}
}

// handleEvent 分发触发事件
func (e *MonitoringEngine) handleEvent(ctx context.Context, event events.TriggerEvent) {
	e.logger.Debug("Trigger event received",
		zap.String("event_type", event.EventType),
		zap.String("plan_id", event.PlanID),
	)

	switch event.EventType {
	case events.EventPlanUpdated:
		// 计划变更可能影响活跃列表，先刷新
		if err := e.refreshActivePlans(ctx); err != nil {
			e.logger.Warn("Failed to refresh active plans", zap.Error(err))
		}
		if event.PlanID != "" {
			if err := e.EvaluatePlan(ctx, event.PlanID); err != nil {
				e.logger.Warn("Event-driven evaluation failed",
					zap.String("plan_id", event.PlanID),
					zap.Error(err),
				)
			}
		}
	case events.EventMeasurementRecorded:
		if event.PlanID == "" {
			return
		}
		if err := e.EvaluatePlan(ctx, event.PlanID); err != nil {
			e.logger.Warn("Event-driven evaluation failed",
				zap.String("plan_id", event.PlanID),
				zap.Error(err),
			)
		}
	case events.EventConnectivityChanged:
		if event.Online {
			e.logger.Info("Connectivity restored, draining sync queue")
			e.drainSyncQueue(ctx)
		}
	default:
		e.logger.Warn("Unknown trigger event", zap.String("event_type", event.EventType))
	}
}

// drainSyncQueue 排空同步队列：优先级操作先行
func (e *MonitoringEngine) drainSyncQueue(ctx context.Context) {
	if _, err := e.syncer.DrainPriority(ctx); err != nil {
		e.logger.Warn("Priority sync drain failed", zap.Error(err))
	}
	if _, err := e.syncer.Drain(ctx, repository.OutboxFilter{}); err != nil {
		e.logger.Warn("Sync drain failed", zap.Error(err))
	}
}

// refreshActivePlans 刷新活跃计划列表：远程优先，失败回退本地副本
func (e *MonitoringEngine) refreshActivePlans(ctx context.Context) error {
	plans, err := e.plans.FetchActivePlans(ctx)
	if err != nil {
		e.logger.Warn("Failed to fetch active plans, falling back to cached list", zap.Error(err))
		cached, cacheErr := e.planCache.LoadActivePlans(ctx)
		if cacheErr != nil {
			return fmt.Errorf("failed to fetch active plans: %w", err)
		}
		plans = cached
	} else {
		if cacheErr := e.planCache.SaveActivePlans(ctx, plans); cacheErr != nil {
			e.logger.Warn("Failed to cache active plans", zap.Error(cacheErr))
		}
	}

	e.planMu.Lock()
	e.activePlans = plans
	e.planMu.Unlock()
	return nil
}

func (e *MonitoringEngine) findPlan(planID string) (models.CarePlan, bool) {
	e.planMu.RLock()
	defer e.planMu.RUnlock()
	for _, plan := range e.activePlans {
		if plan.PlanID == planID {
			return plan, true
		}
	}
	return models.CarePlan{}, false
}

func (e *MonitoringEngine) planCount() int {
	e.planMu.RLock()
	defer e.planMu.RUnlock()
	return len(e.activePlans)
}

// reportMetrics 定期输出运行指标
func (e *MonitoringEngine) reportMetrics(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(metricsReportInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := e.metrics.GetSnapshot()
			e.logger.Info("Metrics report",
				zap.Int64("passes_run", m.PassesRun),
				zap.Int64("passes_skipped", m.PassesSkipped),
				zap.Int64("plans_evaluated", m.PlansEvaluated),
				zap.Int64("plans_failed", m.PlansFailed),
				zap.Int64("plans_skipped", m.PlansSkipped),
				zap.Int64("events_processed", m.EventsProcessed),
				zap.Duration("total_eval_time", m.TotalEvalTime),
			)
		}
	}
}
