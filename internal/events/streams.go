package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// 触发事件类型（宿主环境通过事件流通知监测引擎）
const (
	EventPlanUpdated         = "plan_updated"
	EventMeasurementRecorded = "measurement_recorded"
	EventConnectivityChanged = "connectivity_changed"
)

// TriggerEvent 监测触发事件
type TriggerEvent struct {
	EventType string `json:"event_type"`
	PlanID    string `json:"plan_id,omitempty"`
	Online    bool   `json:"online,omitempty"` // connectivity_changed 时有效
	Timestamp int64  `json:"timestamp"`
}

// StreamMessage Redis Streams 消息
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// PublishEvent 发布触发事件到 Redis Streams
func PublishEvent(ctx context.Context, client *redis.Client, stream string, event TriggerEvent) (string, error) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	jsonBytes, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	// 使用 XADD 命令添加消息
	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data":      string(jsonBytes),
			"timestamp": fmt.Sprintf("%d", event.Timestamp),
		},
	}).Result()

	return id, err
}

// ReadEvents 从 Redis Streams 读取触发事件
func ReadEvents(ctx context.Context, client *redis.Client, stream, consumerGroup, consumer string, count int64, block time.Duration) ([]TriggerEvent, []string, error) {
	// 使用 XREADGROUP 命令读取消息
	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    consumerGroup,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	var events []TriggerEvent
	var ids []string
	for _, s := range streams {
		for _, msg := range s.Messages {
			ids = append(ids, msg.ID)

			raw, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			var event TriggerEvent
			if err := json.Unmarshal([]byte(raw), &event); err != nil {
				// 无法解析的消息跳过，仍需 ACK
				continue
			}
			events = append(events, event)
		}
	}

	return events, ids, nil
}

// AckEvents 确认已处理的消息
func AckEvents(ctx context.Context, client *redis.Client, stream, consumerGroup string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	return client.XAck(ctx, stream, consumerGroup, ids...).Err()
}

// CreateConsumerGroup 创建消费者组
func CreateConsumerGroup(ctx context.Context, client *redis.Client, stream string, groupName string) error {
	// 尝试创建消费者组，如果已存在则忽略错误
	err := client.XGroupCreateMkStream(ctx, stream, groupName, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}
