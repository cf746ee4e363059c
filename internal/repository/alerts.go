package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-careplan/internal/models"

	"go.uber.org/zap"
)

// AlertRepository 报警持久化仓库（对应 careplan_alerts 表）
// 报警只新增和确认，不删除；已确认报警保留用于审计
type AlertRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlertRepository 创建报警仓库
func NewAlertRepository(db *sql.DB, logger *zap.Logger) *AlertRepository {
	return &AlertRepository{
		db:     db,
		logger: logger,
	}
}

const alertColumns = `
			alert_id,
			care_plan_id,
			patient_id,
			alert_type,
			sub_type,
			alert_level,
			message,
			alert_data,
			triggered_at,
			alert_status,
			acknowledged_at`

// CreateAlert 创建报警
func (r *AlertRepository) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert == nil {
		return fmt.Errorf("alert is required")
	}
	if alert.AlertID == "" {
		return fmt.Errorf("alert_id is required")
	}
	if alert.CarePlanID == "" {
		return fmt.Errorf("care_plan_id is required")
	}

	// 序列化 alert_data (JSONB)
	alertDataJSON := []byte("{}")
	if alert.Data != nil {
		var err error
		alertDataJSON, err = json.Marshal(alert.Data)
		if err != nil {
			return fmt.Errorf("failed to marshal alert data: %w", err)
		}
	}

	query := `
		INSERT INTO careplan_alerts (
			alert_id,
			care_plan_id,
			patient_id,
			alert_type,
			sub_type,
			alert_level,
			message,
			alert_data,
			triggered_at,
			alert_status,
			acknowledged_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		alert.AlertID,
		alert.CarePlanID,
		alert.PatientID,
		alert.Type,
		alert.SubType,
		alert.Level,
		alert.Message,
		alertDataJSON,
		alert.Timestamp,
		alert.Status,
		alert.AcknowledgedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}

	return nil
}

// GetAlert 根据 alert_id 获取单个报警
func (r *AlertRepository) GetAlert(ctx context.Context, alertID string) (*models.Alert, error) {
	if alertID == "" {
		return nil, fmt.Errorf("alert_id is required")
	}

	query := `
		SELECT ` + alertColumns + `
		FROM careplan_alerts
		WHERE alert_id = $1
	`

	alert, err := r.scanAlert(r.db.QueryRowContext(ctx, query, alertID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("alert not found: %s", alertID)
		}
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}

	return alert, nil
}

// ListActiveAlerts 列出活跃报警（可选按计划过滤）
// 排序：urgent 优先，其次按触发时间倒序
func (r *AlertRepository) ListActiveAlerts(ctx context.Context, planID string) ([]models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM careplan_alerts
		WHERE alert_status = 'new'
	`
	args := []interface{}{}

	if planID != "" {
		query += ` AND care_plan_id = $1`
		args = append(args, planID)
	}

	query += `
		ORDER BY
			CASE alert_level
				WHEN 'urgent' THEN 0
				WHEN 'warning' THEN 1
				ELSE 2
			END,
			triggered_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query active alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.Alert
	for rows.Next() {
		alert, err := r.scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, *alert)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}

	return alerts, nil
}

// AcknowledgeAlert 确认报警（new → acknowledged，写入确认时间）
// 幂等：已确认的报警返回 false 且不报错
func (r *AlertRepository) AcknowledgeAlert(ctx context.Context, alertID string, acknowledgedAt time.Time) (bool, error) {
	if alertID == "" {
		return false, fmt.Errorf("alert_id is required")
	}

	query := `
		UPDATE careplan_alerts
		SET alert_status = 'acknowledged',
		    acknowledged_at = $2
		WHERE alert_id = $1
		  AND alert_status = 'new'
	`

	result, err := r.db.ExecContext(ctx, query, alertID, acknowledgedAt)
	if err != nil {
		return false, fmt.Errorf("failed to acknowledge alert: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return affected > 0, nil
}

// GetRecentAlert 查询指定计划+信号最近的活跃报警（去重用）
// 没有匹配时返回 (nil, nil)
func (r *AlertRepository) GetRecentAlert(ctx context.Context, planID, alertType, subType string, withinMinutes int) (*models.Alert, error) {
	if planID == "" {
		return nil, fmt.Errorf("care_plan_id is required")
	}
	if alertType == "" {
		return nil, fmt.Errorf("alert_type is required")
	}

	thresholdTime := time.Now().Add(-time.Duration(withinMinutes) * time.Minute)

	query := `
		SELECT ` + alertColumns + `
		FROM careplan_alerts
		WHERE care_plan_id = $1
		  AND alert_type = $2
		  AND sub_type = $3
		  AND triggered_at > $4
		  AND alert_status = 'new'
		ORDER BY triggered_at DESC
		LIMIT 1
	`

	alert, err := r.scanAlert(r.db.QueryRowContext(ctx, query, planID, alertType, subType, thresholdTime))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // 窗口内没有重复报警
		}
		return nil, fmt.Errorf("failed to query recent alert: %w", err)
	}

	return alert, nil
}

// scanner QueryRow 和 Rows 共用的扫描接口
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanAlert 扫描单行报警记录
func (r *AlertRepository) scanAlert(row scanner) (*models.Alert, error) {
	var alert models.Alert
	var subType sql.NullString
	var acknowledgedAt sql.NullTime
	var alertData []byte

	err := row.Scan(
		&alert.AlertID,
		&alert.CarePlanID,
		&alert.PatientID,
		&alert.Type,
		&subType,
		&alert.Level,
		&alert.Message,
		&alertData,
		&alert.Timestamp,
		&alert.Status,
		&acknowledgedAt,
	)
	if err != nil {
		return nil, err
	}

	// 处理可空字段
	if subType.Valid {
		alert.SubType = subType.String
	}
	if acknowledgedAt.Valid {
		alert.AcknowledgedAt = &acknowledgedAt.Time
	}

	// 处理 JSONB 字段
	if len(alertData) > 0 {
		var data models.AlertData
		if err := json.Unmarshal(alertData, &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal alert data: %w", err)
		}
		alert.Data = &data
	}

	return &alert, nil
}
