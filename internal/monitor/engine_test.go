package monitor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wisefido-careplan/internal/config"
	"wisefido-careplan/internal/events"
	"wisefido-careplan/internal/models"
	"wisefido-careplan/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConfigLoader struct {
	cfg *models.MonitoringConfig
}

func (f *fakeConfigLoader) Load(ctx context.Context) *models.MonitoringConfig {
	if f.cfg != nil {
		return f.cfg
	}
	return models.DefaultMonitoringConfig()
}

type fakePlanSource struct {
	mu    sync.Mutex
	plans []models.CarePlan
	err   error
}

func (f *fakePlanSource) FetchActivePlans(ctx context.Context) ([]models.CarePlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.plans, nil
}

type fakePlanCache struct {
	saved  []models.CarePlan
	cached []models.CarePlan
	err    error
}

func (f *fakePlanCache) SaveActivePlans(ctx context.Context, plans []models.CarePlan) error {
	f.saved = plans
	return nil
}

func (f *fakePlanCache) LoadActivePlans(ctx context.Context) ([]models.CarePlan, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cached, nil
}

type fakeSnapshotProvider struct {
	mu        sync.Mutex
	snapshots map[string]*models.CarePlanSnapshot
	errs      map[string]error
}

func newFakeSnapshotProvider() *fakeSnapshotProvider {
	return &fakeSnapshotProvider{
		snapshots: make(map[string]*models.CarePlanSnapshot),
		errs:      make(map[string]error),
	}
}

func (f *fakeSnapshotProvider) Fetch(ctx context.Context, planID string) (*models.CarePlanSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[planID]; ok {
		return nil, err
	}
	return f.snapshots[planID], nil
}

type fakeEvaluator struct {
	mu        sync.Mutex
	evaluated []string
	alerts    []models.Alert
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, plan models.CarePlan, snapshot *models.CarePlanSnapshot, mcfg *models.MonitoringConfig, now time.Time) []models.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated = append(f.evaluated, plan.PlanID)
	return f.alerts
}

type fakeSink struct {
	mu        sync.Mutex
	processed map[string][]models.Alert
}

func newFakeSink() *fakeSink {
	return &fakeSink{processed: make(map[string][]models.Alert)}
}

func (f *fakeSink) Process(ctx context.Context, planID string, alerts []models.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed[planID] = append(f.processed[planID], alerts...)
}

type fakeDrainer struct {
	mu             sync.Mutex
	drains         int
	priorityDrains int
}

func (f *fakeDrainer) Drain(ctx context.Context, filter repository.OutboxFilter) (models.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	return models.SyncResult{}, nil
}

func (f *fakeDrainer) DrainPriority(ctx context.Context) (models.SyncResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priorityDrains++
	return models.SyncResult{}, nil
}

type engineFixture struct {
	engine  *MonitoringEngine
	plans   *fakePlanSource
	cache   *fakePlanCache
	fetcher *fakeSnapshotProvider
	eval    *fakeEvaluator
	sink    *fakeSink
	drainer *fakeDrainer
	redis   *miniredis.Miniredis
}

func setupEngine(t *testing.T) *engineFixture {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := &config.Config{}
	cfg.Monitoring.EventStream = "careplan:monitoring:events"
	cfg.Monitoring.EventConsumerGroup = "careplan-monitor"
	cfg.DeviceID = "device-test"

	f := &engineFixture{
		plans:   &fakePlanSource{plans: []models.CarePlan{{PlanID: "plan-1"}, {PlanID: "plan-2"}}},
		cache:   &fakePlanCache{},
		fetcher: newFakeSnapshotProvider(),
		eval:    &fakeEvaluator{},
		sink:    newFakeSink(),
		drainer: &fakeDrainer{},
		redis:   mr,
	}
	f.fetcher.snapshots["plan-1"] = &models.CarePlanSnapshot{PlanID: "plan-1"}
	f.fetcher.snapshots["plan-2"] = &models.CarePlanSnapshot{PlanID: "plan-2"}

	f.engine = NewMonitoringEngine(
		cfg, redisClient, &fakeConfigLoader{}, f.plans, f.cache,
		f.fetcher, f.eval, f.sink, f.drainer, zap.NewNop(),
	)
	return f
}

func TestMonitoringEngine_RunPass_EvaluatesAllPlans(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.refreshActivePlans(ctx))
	f.engine.mcfg = models.DefaultMonitoringConfig()

	f.engine.RunPass(ctx)

	assert.ElementsMatch(t, []string{"plan-1", "plan-2"}, f.eval.evaluated)
	m := f.engine.GetMetrics()
	assert.Equal(t, int64(1), m.PassesRun)
	assert.Equal(t, int64(2), m.PlansEvaluated)
	// 每轮结束后排空同步队列
	assert.Equal(t, 1, f.drainer.drains)
	assert.Equal(t, 1, f.drainer.priorityDrains)
}

func TestMonitoringEngine_RunPass_PlanFailureIsolated(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.refreshActivePlans(ctx))
	f.engine.mcfg = models.DefaultMonitoringConfig()
	f.fetcher.errs["plan-1"] = errors.New("upstream error")

	f.engine.RunPass(ctx)

	// plan-1 失败不影响 plan-2
	assert.Equal(t, []string{"plan-2"}, f.eval.evaluated)
	m := f.engine.GetMetrics()
	assert.Equal(t, int64(1), m.PlansFailed)
	assert.Equal(t, int64(1), m.PlansEvaluated)
}

func TestMonitoringEngine_RunPass_NoSnapshotSkipsPlan(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.refreshActivePlans(ctx))
	f.engine.mcfg = models.DefaultMonitoringConfig()
	delete(f.fetcher.snapshots, "plan-2")

	f.engine.RunPass(ctx)

	assert.Equal(t, []string{"plan-1"}, f.eval.evaluated)
	assert.Equal(t, int64(1), f.engine.GetMetrics().PlansSkipped)
}

func TestMonitoringEngine_RunPass_OverlapSkipped(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.refreshActivePlans(ctx))
	f.engine.mcfg = models.DefaultMonitoringConfig()

	// 模拟上一轮仍在执行
	f.engine.passMu.Lock()
	f.engine.RunPass(ctx)
	f.engine.passMu.Unlock()

	assert.Empty(t, f.eval.evaluated)
	assert.Equal(t, int64(1), f.engine.GetMetrics().PassesSkipped)
}

func TestMonitoringEngine_EvaluatePlan_RefreshesUnknownPlan(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.engine.mcfg = models.DefaultMonitoringConfig()
	// 本地列表为空，plan-1 只在远程列表里
	require.NoError(t, f.engine.EvaluatePlan(ctx, "plan-1"))

	assert.Equal(t, []string{"plan-1"}, f.eval.evaluated)
}

func TestMonitoringEngine_EvaluatePlan_UnknownPlanErrors(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.engine.mcfg = models.DefaultMonitoringConfig()

	err := f.engine.EvaluatePlan(ctx, "plan-999")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plan-999")
}

func TestMonitoringEngine_RefreshActivePlans_FallsBackToCache(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	f.plans.err = errors.New("connection refused")
	f.cache.cached = []models.CarePlan{{PlanID: "plan-cached"}}

	require.NoError(t, f.engine.refreshActivePlans(ctx))
	assert.Equal(t, 1, f.engine.planCount())

	plan, ok := f.engine.findPlan("plan-cached")
	assert.True(t, ok)
	assert.Equal(t, "plan-cached", plan.PlanID)
}

func TestMonitoringEngine_HandleEvent_ConnectivityOnlineDrains(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	f.engine.handleEvent(ctx, events.TriggerEvent{
		EventType: events.EventConnectivityChanged,
		Online:    true,
	})

	assert.Equal(t, 1, f.drainer.drains)
	assert.Equal(t, 1, f.drainer.priorityDrains)

	// 离线事件不触发排空
	f.engine.handleEvent(ctx, events.TriggerEvent{
		EventType: events.EventConnectivityChanged,
		Online:    false,
	})
	assert.Equal(t, 1, f.drainer.drains)
}

func TestMonitoringEngine_HandleEvent_MeasurementRecorded(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	require.NoError(t, f.engine.refreshActivePlans(ctx))
	f.engine.mcfg = models.DefaultMonitoringConfig()

	f.engine.handleEvent(ctx, events.TriggerEvent{
		EventType: events.EventMeasurementRecorded,
		PlanID:    "plan-1",
	})

	assert.Equal(t, []string{"plan-1"}, f.eval.evaluated)
}

func TestMonitoringEngine_StartStop_Idempotent(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	require.NoError(t, f.engine.Start(ctx))
	require.NoError(t, f.engine.Start(ctx))

	// 首轮立即执行
	assert.Eventually(t, func() bool {
		return f.engine.GetMetrics().PassesRun >= 1
	}, 3*time.Second, 10*time.Millisecond)

	f.engine.Stop()
	f.engine.Stop()
}
