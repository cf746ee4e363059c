package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"wisefido-careplan/internal/models"

	"go.uber.org/zap"
)

// APIClient 远程护理计划 API 客户端
// 所有请求都带超时和上下文，网络失败由调用方用本地缓存兜底
type APIClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAPIClient 创建 API 客户端
func NewAPIClient(baseURL string, timeout time.Duration, logger *zap.Logger) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// FetchMonitoringConfig 获取监测配置
// GET /care-plans/monitoring/config
func (c *APIClient) FetchMonitoringConfig(ctx context.Context) (*models.MonitoringConfig, error) {
	var cfg models.MonitoringConfig
	if err := c.getJSON(ctx, c.resolvePath("/care-plans/monitoring/config"), &cfg); err != nil {
		return nil, fmt.Errorf("failed to fetch monitoring config: %w", err)
	}
	return &cfg, nil
}

// FetchActivePlans 获取活跃护理计划列表
// GET /care-plans/active
func (c *APIClient) FetchActivePlans(ctx context.Context) ([]models.CarePlan, error) {
	var plans []models.CarePlan
	if err := c.getJSON(ctx, c.resolvePath("/care-plans/active"), &plans); err != nil {
		return nil, fmt.Errorf("failed to fetch active plans: %w", err)
	}
	return plans, nil
}

// FetchMonitoringData 获取护理计划监测数据快照
// GET /care-plans/{id}/monitoring-data
func (c *APIClient) FetchMonitoringData(ctx context.Context, planID string) (*models.CarePlanSnapshot, error) {
	if planID == "" {
		return nil, fmt.Errorf("plan_id is required")
	}

	var snapshot models.CarePlanSnapshot
	endpoint := c.resolvePath(fmt.Sprintf("/care-plans/%s/monitoring-data", url.PathEscape(planID)))
	if err := c.getJSON(ctx, endpoint, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to fetch monitoring data for plan %s: %w", planID, err)
	}
	snapshot.PlanID = planID
	return &snapshot, nil
}

// PushAlerts 推送报警批次（尽力而为，失败由 outbox 兜底）
// POST /care-plans/alerts
func (c *APIClient) PushAlerts(ctx context.Context, alerts []models.Alert) error {
	payload := map[string]interface{}{
		"alerts": alerts,
	}
	if err := c.postJSON(ctx, c.resolvePath("/care-plans/alerts"), payload, nil); err != nil {
		return fmt.Errorf("failed to push alerts: %w", err)
	}
	return nil
}

// AcknowledgeAlert 确认报警
// POST /care-plans/alerts/{id}/acknowledge
func (c *APIClient) AcknowledgeAlert(ctx context.Context, alertID string, acknowledgedAt time.Time) error {
	if alertID == "" {
		return fmt.Errorf("alert_id is required")
	}

	payload := map[string]interface{}{
		"timestamp": acknowledgedAt.Format(time.RFC3339),
	}
	endpoint := c.resolvePath(fmt.Sprintf("/care-plans/alerts/%s/acknowledge", url.PathEscape(alertID)))
	if err := c.postJSON(ctx, endpoint, payload, nil); err != nil {
		return fmt.Errorf("failed to acknowledge alert %s: %w", alertID, err)
	}
	return nil
}

// SyncOperationPayload 批量同步请求中的单个操作
type SyncOperationPayload struct {
	ID        string          `json:"id"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	DeviceID  string          `json:"deviceId"`
	Version   int64           `json:"version"`
	Priority  bool            `json:"priority"`
}

// FailedOperation 同步失败的操作
type FailedOperation struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// ConflictedOperation 版本冲突的操作（携带服务端数据供冲突解决）
type ConflictedOperation struct {
	ID            string          `json:"id"`
	ServerData    json.RawMessage `json:"serverData"`
	ServerVersion int64           `json:"serverVersion,omitempty"`
}

// BatchSyncResponse 批量同步响应（按结果分组）
type BatchSyncResponse struct {
	Successful []string              `json:"successful"`
	Failed     []FailedOperation     `json:"failed"`
	Conflicts  []ConflictedOperation `json:"conflicts"`
}

// PushOperations 推送一批待同步操作
// POST /{resourceType}
func (c *APIClient) PushOperations(ctx context.Context, resourceType string, operations []SyncOperationPayload) (*BatchSyncResponse, error) {
	if resourceType == "" {
		return nil, fmt.Errorf("resource_type is required")
	}

	payload := map[string]interface{}{
		"operations": operations,
	}

	var response BatchSyncResponse
	endpoint := c.resolvePath("/" + url.PathEscape(resourceType))
	if err := c.postJSON(ctx, endpoint, payload, &response); err != nil {
		return nil, fmt.Errorf("failed to push %s operations: %w", resourceType, err)
	}
	return &response, nil
}

// ResolveConflict 提交冲突解决结果
// POST /{resourceType}/resolve-conflict
func (c *APIClient) ResolveConflict(ctx context.Context, resourceType, operationID string, resolvedData json.RawMessage, resolution string) error {
	payload := map[string]interface{}{
		"id":           operationID,
		"resolvedData": resolvedData,
		"resolution":   resolution,
	}
	endpoint := c.resolvePath(fmt.Sprintf("/%s/resolve-conflict", url.PathEscape(resourceType)))
	if err := c.postJSON(ctx, endpoint, payload, nil); err != nil {
		return fmt.Errorf("failed to resolve conflict for %s/%s: %w", resourceType, operationID, err)
	}
	return nil
}

func (c *APIClient) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *APIClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *APIClient) postJSON(ctx context.Context, endpoint string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("server returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
