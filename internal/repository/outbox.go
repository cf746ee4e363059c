package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"wisefido-careplan/internal/models"

	"go.uber.org/zap"
)

// OutboxRepository 同步 outbox 仓库（对应 sync_outbox 表）
// 由 Sync Coordinator 独占管理：入队、按到期时间取出、成功删除、失败退避
type OutboxRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewOutboxRepository 创建 outbox 仓库
func NewOutboxRepository(db *sql.DB, logger *zap.Logger) *OutboxRepository {
	return &OutboxRepository{
		db:     db,
		logger: logger,
	}
}

// Enqueue 入队一个待同步操作
func (r *OutboxRepository) Enqueue(ctx context.Context, op *models.PendingSyncOperation) error {
	if op == nil {
		return fmt.Errorf("operation is required")
	}
	if op.OperationID == "" {
		return fmt.Errorf("operation_id is required")
	}
	if op.ResourceType == "" {
		return fmt.Errorf("resource_type is required")
	}

	query := `
		INSERT INTO sync_outbox (
			operation_id,
			resource_type,
			action,
			payload,
			created_at,
			attempts,
			next_attempt,
			priority,
			has_conflict,
			version,
			last_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		op.OperationID,
		op.ResourceType,
		op.Action,
		[]byte(op.Data),
		op.Timestamp,
		op.Attempts,
		op.NextAttempt,
		op.Priority,
		op.HasConflict,
		op.Version,
		op.LastError,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue sync operation: %w", err)
	}

	r.logger.Debug("Sync operation enqueued",
		zap.String("operation_id", op.OperationID),
		zap.String("resource_type", op.ResourceType),
		zap.String("action", op.Action),
		zap.Bool("priority", op.Priority),
	)

	return nil
}

// OutboxFilter 出队过滤条件
type OutboxFilter struct {
	ResourceType string // 为空时不过滤
	PriorityOnly bool   // 仅取优先级标记的操作
}

// ListPending 列出到期且未标记冲突的待同步操作（按入队时间排序）
func (r *OutboxRepository) ListPending(ctx context.Context, now time.Time, filter OutboxFilter) ([]models.PendingSyncOperation, error) {
	query := `
		SELECT
			operation_id,
			resource_type,
			action,
			payload,
			created_at,
			attempts,
			next_attempt,
			priority,
			has_conflict,
			version,
			last_error
		FROM sync_outbox
		WHERE next_attempt <= $1
		  AND has_conflict = false
	`
	args := []interface{}{now}
	argN := 2

	if filter.ResourceType != "" {
		query += fmt.Sprintf(" AND resource_type = $%d", argN)
		args = append(args, filter.ResourceType)
		argN++
	}
	if filter.PriorityOnly {
		query += " AND priority = true"
	}

	query += " ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending operations: %w", err)
	}
	defer rows.Close()

	var ops []models.PendingSyncOperation
	for rows.Next() {
		var op models.PendingSyncOperation
		var payload []byte
		var lastError sql.NullString

		err := rows.Scan(
			&op.OperationID,
			&op.ResourceType,
			&op.Action,
			&payload,
			&op.Timestamp,
			&op.Attempts,
			&op.NextAttempt,
			&op.Priority,
			&op.HasConflict,
			&op.Version,
			&lastError,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}

		op.Data = payload
		if lastError.Valid {
			op.LastError = &lastError.String
		}

		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate operations: %w", err)
	}

	return ops, nil
}

// Delete 删除已确认成功的操作
func (r *OutboxRepository) Delete(ctx context.Context, operationID string) error {
	if operationID == "" {
		return fmt.Errorf("operation_id is required")
	}

	_, err := r.db.ExecContext(ctx, `DELETE FROM sync_outbox WHERE operation_id = $1`, operationID)
	if err != nil {
		return fmt.Errorf("failed to delete sync operation: %w", err)
	}
	return nil
}

// MarkFailed 记录一次失败：累加尝试次数、记录错误、设置下次重试时间
func (r *OutboxRepository) MarkFailed(ctx context.Context, operationID string, attempts int, nextAttempt time.Time, reason string) error {
	if operationID == "" {
		return fmt.Errorf("operation_id is required")
	}

	query := `
		UPDATE sync_outbox
		SET attempts = $2,
		    next_attempt = $3,
		    last_error = $4
		WHERE operation_id = $1
	`

	_, err := r.db.ExecContext(ctx, query, operationID, attempts, nextAttempt, reason)
	if err != nil {
		return fmt.Errorf("failed to mark operation failed: %w", err)
	}
	return nil
}

// MarkConflict 标记操作存在冲突待人工处理（排空时跳过）
func (r *OutboxRepository) MarkConflict(ctx context.Context, operationID string) error {
	if operationID == "" {
		return fmt.Errorf("operation_id is required")
	}

	_, err := r.db.ExecContext(ctx, `UPDATE sync_outbox SET has_conflict = true WHERE operation_id = $1`, operationID)
	if err != nil {
		return fmt.Errorf("failed to mark operation conflicted: %w", err)
	}
	return nil
}

// UpdatePayload 冲突解决后更新操作数据和版本（等待下次排空重新提交）
func (r *OutboxRepository) UpdatePayload(ctx context.Context, operationID string, payload []byte, version int64) error {
	if operationID == "" {
		return fmt.Errorf("operation_id is required")
	}

	query := `
		UPDATE sync_outbox
		SET payload = $2,
		    version = $3,
		    has_conflict = false
		WHERE operation_id = $1
	`

	_, err := r.db.ExecContext(ctx, query, operationID, payload, version)
	if err != nil {
		return fmt.Errorf("failed to update operation payload: %w", err)
	}
	return nil
}

// CountConflicted 统计待人工处理的冲突条目数（运维可见性）
func (r *OutboxRepository) CountConflicted(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_outbox WHERE has_conflict = true`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count conflicted operations: %w", err)
	}
	return count, nil
}
