package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"wisefido-careplan/internal/models"
	"wisefido-careplan/internal/notifier"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// alertStore 报警持久化存储
type alertStore interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	AcknowledgeAlert(ctx context.Context, alertID string, acknowledgedAt time.Time) (bool, error)
	ListActiveAlerts(ctx context.Context, planID string) ([]models.Alert, error)
	GetRecentAlert(ctx context.Context, planID, alertType, subType string, withinMinutes int) (*models.Alert, error)
	GetAlert(ctx context.Context, alertID string) (*models.Alert, error)
}

// outboxStore 离线同步队列
type outboxStore interface {
	Enqueue(ctx context.Context, op *models.PendingSyncOperation) error
}

// remotePusher 报警上报通道
type remotePusher interface {
	PushAlerts(ctx context.Context, alerts []models.Alert) error
	AcknowledgeAlert(ctx context.Context, alertID string, acknowledgedAt time.Time) error
}

// alertCacheWriter 活跃报警缓存镜像（UI 读取用）
type alertCacheWriter interface {
	UpdateAlertCache(ctx context.Context, planID string, alerts []models.Alert) error
}

// AlertsUpdatedFunc 活跃报警变更回调
type AlertsUpdatedFunc func(planID string, alerts []models.Alert)

// AlertPipeline 报警管道
// 评估产出的报警经去重、持久化、上报（失败转入同步队列）、紧急通知、缓存镜像
type AlertPipeline struct {
	repo        alertStore
	outbox      outboxStore
	remote      remotePusher
	cache       alertCacheWriter
	notifier    notifier.Notifier
	logger      *zap.Logger
	dedupWindow int // 去重窗口（分钟）

	activeMu sync.RWMutex
	active   map[string]models.Alert // alert_id -> alert

	subMu       sync.RWMutex
	subscribers []AlertsUpdatedFunc

	nowFunc func() time.Time
}

// NewAlertPipeline 创建报警管道
func NewAlertPipeline(
	repo alertStore,
	outbox outboxStore,
	remote remotePusher,
	cache alertCacheWriter,
	urgentNotifier notifier.Notifier,
	dedupWindowMinutes int,
	logger *zap.Logger,
) *AlertPipeline {
	return &AlertPipeline{
		repo:        repo,
		outbox:      outbox,
		remote:      remote,
		cache:       cache,
		notifier:    urgentNotifier,
		logger:      logger,
		dedupWindow: dedupWindowMinutes,
		active:      make(map[string]models.Alert),
		nowFunc:     time.Now,
	}
}

// LoadActive 启动时从存储恢复活跃报警集合
func (p *AlertPipeline) LoadActive(ctx context.Context) error {
	alerts, err := p.repo.ListActiveAlerts(ctx, "")
	if err != nil {
		return fmt.Errorf("failed to load active alerts: %w", err)
	}

	p.activeMu.Lock()
	for _, alert := range alerts {
		p.active[alert.AlertID] = alert
	}
	p.activeMu.Unlock()

	p.logger.Info("Active alerts loaded", zap.Int("count", len(alerts)))
	return nil
}

// Process 处理一个计划本轮评估产出的报警
// 单条报警的失败不影响其余报警，管道尽力推进到缓存镜像和订阅回调
func (p *AlertPipeline) Process(ctx context.Context, planID string, alerts []models.Alert) {
	var accepted []models.Alert

	for _, alert := range alerts {
		if p.isDuplicate(ctx, planID, alert) {
			continue
		}

		a := alert
		if err := p.repo.CreateAlert(ctx, &a); err != nil {
			p.logger.Error("Failed to persist alert",
				zap.String("alert_id", alert.AlertID),
				zap.Error(err),
			)
			continue
		}
		accepted = append(accepted, a)
	}

	if len(accepted) == 0 {
		return
	}

	p.activeMu.Lock()
	for _, alert := range accepted {
		p.active[alert.AlertID] = alert
	}
	p.activeMu.Unlock()

	p.pushOrEnqueue(ctx, accepted)

	var urgent []models.Alert
	for _, alert := range accepted {
		if alert.Level == models.AlertLevelUrgent {
			urgent = append(urgent, alert)
		}
	}
	if len(urgent) > 0 && p.notifier != nil {
		if err := p.notifier.NotifyUrgent(ctx, urgent); err != nil {
			p.logger.Error("Failed to send urgent notifications", zap.Error(err))
		}
	}

	p.publishActive(ctx, planID)
}

// isDuplicate 去重窗口内同一计划同种信号已有报警时丢弃新报警
// 去重查询失败时放行（宁可重复不可漏报）
func (p *AlertPipeline) isDuplicate(ctx context.Context, planID string, alert models.Alert) bool {
	recent, err := p.repo.GetRecentAlert(ctx, planID, alert.Type, alert.SubType, p.dedupWindow)
	if err != nil {
		p.logger.Warn("Dedup lookup failed, accepting alert",
			zap.String("alert_id", alert.AlertID),
			zap.Error(err),
		)
		return false
	}
	if recent != nil {
		p.logger.Debug("Duplicate alert suppressed",
			zap.String("care_plan_id", planID),
			zap.String("sub_type", alert.SubType),
			zap.String("existing_alert_id", recent.AlertID),
		)
		return true
	}
	return false
}

// pushOrEnqueue 尽力实时上报，失败时逐条转入同步队列
func (p *AlertPipeline) pushOrEnqueue(ctx context.Context, alerts []models.Alert) {
	err := p.remote.PushAlerts(ctx, alerts)
	if err == nil {
		return
	}

	p.logger.Warn("Failed to push alerts, queuing for sync",
		zap.Int("count", len(alerts)),
		zap.Error(err),
	)

	now := p.nowFunc()
	for _, alert := range alerts {
		payload, marshalErr := json.Marshal(alert)
		if marshalErr != nil {
			p.logger.Error("Failed to marshal alert for sync queue",
				zap.String("alert_id", alert.AlertID),
				zap.Error(marshalErr),
			)
			continue
		}

		op := &models.PendingSyncOperation{
			OperationID:  uuid.New().String(),
			ResourceType: models.SyncResourceAlerts,
			Action:       models.SyncActionCreate,
			Data:         payload,
			Timestamp:    now,
			NextAttempt:  now,
			Priority:     alert.Level == models.AlertLevelUrgent,
			Version:      1,
		}
		if enqueueErr := p.outbox.Enqueue(ctx, op); enqueueErr != nil {
			p.logger.Error("Failed to enqueue alert for sync",
				zap.String("alert_id", alert.AlertID),
				zap.Error(enqueueErr),
			)
		}
	}
}

// ackPayload 确认操作的同步载荷
type ackPayload struct {
	AlertID        string    `json:"alertId"`
	AcknowledgedAt time.Time `json:"acknowledgedAt"`
}

// Acknowledge 确认报警
// 幂等：已确认的报警直接返回成功，不产生新的同步操作
func (p *AlertPipeline) Acknowledge(ctx context.Context, alertID string) error {
	now := p.nowFunc()

	changed, err := p.repo.AcknowledgeAlert(ctx, alertID, now)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert %s: %w", alertID, err)
	}
	if !changed {
		return nil
	}

	planID := p.removeActive(ctx, alertID)

	if err := p.remote.AcknowledgeAlert(ctx, alertID, now); err != nil {
		p.logger.Warn("Failed to push acknowledgement, queuing for sync",
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		payload, marshalErr := json.Marshal(ackPayload{AlertID: alertID, AcknowledgedAt: now})
		if marshalErr != nil {
			return fmt.Errorf("failed to marshal acknowledgement: %w", marshalErr)
		}
		op := &models.PendingSyncOperation{
			OperationID:  uuid.New().String(),
			ResourceType: models.SyncResourceAcknowledgements,
			Action:       models.SyncActionAcknowledge,
			Data:         payload,
			Timestamp:    now,
			NextAttempt:  now,
			Version:      1,
		}
		if enqueueErr := p.outbox.Enqueue(ctx, op); enqueueErr != nil {
			return fmt.Errorf("failed to enqueue acknowledgement: %w", enqueueErr)
		}
	}

	if planID != "" {
		p.publishActive(ctx, planID)
	}
	return nil
}

// removeActive 从活跃集合移除报警，返回其所属计划ID
func (p *AlertPipeline) removeActive(ctx context.Context, alertID string) string {
	p.activeMu.Lock()
	alert, ok := p.active[alertID]
	delete(p.active, alertID)
	p.activeMu.Unlock()

	if ok {
		return alert.CarePlanID
	}

	// 活跃集合没有（比如服务重启后未恢复），从存储查所属计划
	stored, err := p.repo.GetAlert(ctx, alertID)
	if err != nil {
		p.logger.Warn("Failed to resolve plan for acknowledged alert",
			zap.String("alert_id", alertID),
			zap.Error(err),
		)
		return ""
	}
	return stored.CarePlanID
}

// ActiveAlerts 查询活跃报警（planID 为空查全部）
// 排序：紧急在前，同级按触发时间倒序
func (p *AlertPipeline) ActiveAlerts(planID string) []models.Alert {
	p.activeMu.RLock()
	var alerts []models.Alert
	for _, alert := range p.active {
		if planID != "" && alert.CarePlanID != planID {
			continue
		}
		alerts = append(alerts, alert)
	}
	p.activeMu.RUnlock()

	sort.Slice(alerts, func(i, j int) bool {
		ri, rj := levelRank(alerts[i].Level), levelRank(alerts[j].Level)
		if ri != rj {
			return ri < rj
		}
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})
	return alerts
}

func levelRank(level string) int {
	switch level {
	case models.AlertLevelUrgent:
		return 0
	case models.AlertLevelWarning:
		return 1
	default:
		return 2
	}
}

// OnAlertsUpdated 订阅活跃报警变更
func (p *AlertPipeline) OnAlertsUpdated(cb AlertsUpdatedFunc) {
	p.subMu.Lock()
	p.subscribers = append(p.subscribers, cb)
	p.subMu.Unlock()
}

// publishActive 刷新计划的缓存镜像并通知订阅者
func (p *AlertPipeline) publishActive(ctx context.Context, planID string) {
	alerts := p.ActiveAlerts(planID)

	if err := p.cache.UpdateAlertCache(ctx, planID, alerts); err != nil {
		p.logger.Warn("Failed to update alert cache",
			zap.String("care_plan_id", planID),
			zap.Error(err),
		)
	}

	p.subMu.RLock()
	subscribers := make([]AlertsUpdatedFunc, len(p.subscribers))
	copy(subscribers, p.subscribers)
	p.subMu.RUnlock()

	for _, cb := range subscribers {
		cb(planID, alerts)
	}
}
