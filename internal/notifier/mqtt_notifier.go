package notifier

import (
	"context"
	"encoding/json"
	"fmt"

	"wisefido-careplan/internal/config"
	"wisefido-careplan/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// MQTTNotifier 通过 MQTT 推送紧急报警通知
type MQTTNotifier struct {
	client mqtt.Client
	topic  string
	qos    byte
	logger *zap.Logger
}

// NewMQTTNotifier 创建 MQTT 通知器并连接 Broker
func NewMQTTNotifier(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTNotifier, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTNotifier{
		client: client,
		topic:  cfg.Topic,
		qos:    cfg.QoS,
		logger: logger,
	}, nil
}

// NotifyUrgent 逐条发布紧急报警通知
// 单条失败不中断其余通知，最后返回第一个错误
func (n *MQTTNotifier) NotifyUrgent(ctx context.Context, alerts []models.Alert) error {
	var firstErr error
	for _, alert := range alerts {
		if err := n.publish(alert); err != nil {
			n.logger.Error("Failed to publish urgent notification",
				zap.String("alert_id", alert.AlertID),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		n.logger.Info("Urgent notification published",
			zap.String("alert_id", alert.AlertID),
			zap.String("care_plan_id", alert.CarePlanID),
		)
	}
	return firstErr
}

func (n *MQTTNotifier) publish(alert models.Alert) error {
	notification := UrgentNotification{
		Title: "Urgent Care Plan Alert",
		Body:  alert.Message,
		// 同一计划同种信号的通知互相替换，避免通知堆积
		Tag: fmt.Sprintf("%s-%s", alert.CarePlanID, alert.SubType),
		Data: NotificationData{
			AlertID:    alert.AlertID,
			CarePlanID: alert.CarePlanID,
			PatientID:  alert.PatientID,
			Level:      alert.Level,
		},
	}

	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	token := n.client.Publish(n.topic, n.qos, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", n.topic, token.Error())
	}
	return nil
}

// Close 断开 MQTT 连接
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}
