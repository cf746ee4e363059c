package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-careplan/internal/models"
	"wisefido-careplan/internal/remote"
	"wisefido-careplan/internal/repository"

	"go.uber.org/zap"
)

const (
	// maxBackoff 重试间隔上限
	maxBackoff = 60 * time.Minute

	// 冲突解决策略
	resolutionLocalWins = "local-wins"
	resolutionDuplicate = "duplicate-create"
)

// outboxQueue 同步队列存储
type outboxQueue interface {
	ListPending(ctx context.Context, now time.Time, filter repository.OutboxFilter) ([]models.PendingSyncOperation, error)
	Delete(ctx context.Context, operationID string) error
	MarkFailed(ctx context.Context, operationID string, attempts int, nextAttempt time.Time, reason string) error
	MarkConflict(ctx context.Context, operationID string) error
	UpdatePayload(ctx context.Context, operationID string, payload []byte, version int64) error
	CountConflicted(ctx context.Context) (int, error)
}

// syncTransport 批量同步传输通道
type syncTransport interface {
	PushOperations(ctx context.Context, resourceType string, operations []remote.SyncOperationPayload) (*remote.BatchSyncResponse, error)
	ResolveConflict(ctx context.Context, resourceType, operationID string, resolvedData json.RawMessage, resolution string) error
}

// Coordinator 离线同步协调器
// 排空 sync_outbox 队列：按资源类型分批上报，失败指数退避，冲突按资源类型的策略解决
type Coordinator struct {
	outbox   outboxQueue
	remote   syncTransport
	deviceID string
	logger   *zap.Logger

	nowFunc func() time.Time
}

// NewCoordinator 创建同步协调器
func NewCoordinator(outbox outboxQueue, transport syncTransport, deviceID string, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		outbox:   outbox,
		remote:   transport,
		deviceID: deviceID,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// DrainPriority 先排空优先级操作（紧急报警产生的同步操作）
func (c *Coordinator) DrainPriority(ctx context.Context) (models.SyncResult, error) {
	return c.Drain(ctx, repository.OutboxFilter{PriorityOnly: true})
}

// Drain 排空一轮符合条件的待同步操作
func (c *Coordinator) Drain(ctx context.Context, filter repository.OutboxFilter) (models.SyncResult, error) {
	var result models.SyncResult

	now := c.nowFunc()
	pending, err := c.outbox.ListPending(ctx, now, filter)
	if err != nil {
		return result, fmt.Errorf("failed to list pending operations: %w", err)
	}
	if len(pending) == 0 {
		return result, nil
	}

	// 按资源类型分组，保持入队顺序
	groups := make(map[string][]models.PendingSyncOperation)
	var order []string
	for _, op := range pending {
		if _, ok := groups[op.ResourceType]; !ok {
			order = append(order, op.ResourceType)
		}
		groups[op.ResourceType] = append(groups[op.ResourceType], op)
	}

	for _, resourceType := range order {
		result.Add(c.pushGroup(ctx, resourceType, groups[resourceType]))
	}

	c.logger.Info("Sync queue drained",
		zap.Int("success", result.SuccessCount),
		zap.Int("failed", result.FailCount),
		zap.Int("conflicts", result.ConflictCount),
	)
	return result, nil
}

// pushGroup 上报一个资源类型的操作批次并按响应分组处理
func (c *Coordinator) pushGroup(ctx context.Context, resourceType string, ops []models.PendingSyncOperation) models.SyncResult {
	var result models.SyncResult

	payloads := make([]remote.SyncOperationPayload, len(ops))
	byID := make(map[string]models.PendingSyncOperation, len(ops))
	for i, op := range ops {
		payloads[i] = remote.SyncOperationPayload{
			ID:        op.OperationID,
			Action:    op.Action,
			Data:      op.Data,
			Timestamp: op.Timestamp,
			DeviceID:  c.deviceID,
			Version:   op.Version,
			Priority:  op.Priority,
		}
		byID[op.OperationID] = op
	}

	response, err := c.remote.PushOperations(ctx, resourceType, payloads)
	if err != nil {
		// 传输层失败：整批退避重试
		c.logger.Warn("Failed to push sync batch",
			zap.String("resource_type", resourceType),
			zap.Int("count", len(ops)),
			zap.Error(err),
		)
		for _, op := range ops {
			c.retryLater(ctx, op, err.Error())
			result.FailCount++
		}
		return result
	}

	for _, operationID := range response.Successful {
		if err := c.outbox.Delete(ctx, operationID); err != nil {
			c.logger.Error("Failed to delete synced operation",
				zap.String("operation_id", operationID),
				zap.Error(err),
			)
		}
		result.SuccessCount++
	}

	for _, failed := range response.Failed {
		op, ok := byID[failed.ID]
		if !ok {
			continue
		}
		c.retryLater(ctx, op, failed.Reason)
		result.FailCount++
	}

	for _, conflict := range response.Conflicts {
		op, ok := byID[conflict.ID]
		if !ok {
			continue
		}
		c.resolveConflict(ctx, resourceType, op, conflict)
		result.ConflictCount++
	}

	return result
}

// retryLater 失败操作指数退避：间隔 min(2^attempts, 60) 分钟
func (c *Coordinator) retryLater(ctx context.Context, op models.PendingSyncOperation, reason string) {
	attempts := op.Attempts + 1
	nextAttempt := c.nowFunc().Add(backoffDelay(attempts))

	if err := c.outbox.MarkFailed(ctx, op.OperationID, attempts, nextAttempt, reason); err != nil {
		c.logger.Error("Failed to mark operation for retry",
			zap.String("operation_id", op.OperationID),
			zap.Error(err),
		)
	}
}

// backoffDelay 第 attempts 次失败后的等待时长
func backoffDelay(attempts int) time.Duration {
	if attempts >= 6 {
		return maxBackoff
	}
	delay := time.Duration(1<<uint(attempts)) * time.Minute
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

// resolveConflict 按资源类型的策略解决版本冲突
//   - alerts：本地覆盖（报警由本端生成，本地为准）
//   - acknowledgements：确认状态可合并，带服务端版本重新提交
//   - measurements：两份都保留，服务端按新记录创建
//   - 其他：标记人工处理，不再自动重试
func (c *Coordinator) resolveConflict(ctx context.Context, resourceType string, op models.PendingSyncOperation, conflict remote.ConflictedOperation) {
	switch resourceType {
	case models.SyncResourceAlerts:
		c.resolveWith(ctx, resourceType, op, resolutionLocalWins)
	case models.SyncResourceAcknowledgements:
		if err := c.outbox.UpdatePayload(ctx, op.OperationID, op.Data, conflict.ServerVersion+1); err != nil {
			c.logger.Error("Failed to rebase acknowledgement for resubmit",
				zap.String("operation_id", op.OperationID),
				zap.Error(err),
			)
		}
	case models.SyncResourceMeasurements:
		c.resolveWith(ctx, resourceType, op, resolutionDuplicate)
	default:
		c.logger.Warn("Unresolvable conflict, flagging for manual review",
			zap.String("operation_id", op.OperationID),
			zap.String("resource_type", resourceType),
		)
		if err := c.outbox.MarkConflict(ctx, op.OperationID); err != nil {
			c.logger.Error("Failed to flag conflict",
				zap.String("operation_id", op.OperationID),
				zap.Error(err),
			)
		}
	}
}

// resolveWith 向服务端提交解决结果并出队
func (c *Coordinator) resolveWith(ctx context.Context, resourceType string, op models.PendingSyncOperation, resolution string) {
	if err := c.remote.ResolveConflict(ctx, resourceType, op.OperationID, op.Data, resolution); err != nil {
		c.logger.Warn("Failed to resolve conflict, retrying later",
			zap.String("operation_id", op.OperationID),
			zap.Error(err),
		)
		c.retryLater(ctx, op, err.Error())
		return
	}
	if err := c.outbox.Delete(ctx, op.OperationID); err != nil {
		c.logger.Error("Failed to delete resolved operation",
			zap.String("operation_id", op.OperationID),
			zap.Error(err),
		)
	}
}

// ConflictedCount 等待人工处理的冲突操作数（诊断用）
func (c *Coordinator) ConflictedCount(ctx context.Context) (int, error) {
	return c.outbox.CountConflicted(ctx)
}
