package config

import (
	"fmt"
	"os"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置（紧急报警通知通道）
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Topic    string // 紧急报警发布主题
	QoS      byte
}

// APIConfig 远程护理计划 API 配置
type APIConfig struct {
	BaseURL    string
	TimeoutSec int
}

// Config 护理计划监测服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig
	API      APIConfig

	// 监测服务特定配置
	Monitoring struct {
		// Redis 缓存配置
		Cache struct {
			SnapshotKeyPrefix string // 快照缓存键前缀，如 "careplan:plan:"
			SnapshotSuffix    string // 快照缓存键后缀，如 ":snapshot"
			AlertKeyPrefix    string // 活跃报警缓存键前缀
			AlertSuffix       string // 活跃报警缓存键后缀
			AlertTTL          int    // 活跃报警缓存 TTL（秒）
			ConfigKey         string // 监测配置本地副本键
			ActivePlansKey    string // 活跃计划列表本地副本键
			StateKeyPrefix    string // 预测/去重状态键前缀
		}

		// 轮询配置（远程配置加载失败时的默认值）
		PollInterval int // 轮询间隔（秒）

		// 报警去重窗口（分钟），窗口内相同信号不重复报警
		DedupWindowMinutes int

		// 触发事件流配置
		EventStream        string // Redis Streams 流名称
		EventConsumerGroup string // 消费者组名称
	}

	// 设备标识（随同步请求上报，供服务端跨重试去重）
	DeviceID string

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = 5432
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "careplan")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "wisefido-careplan")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.Topic = getEnv("MQTT_ALERT_TOPIC", "careplan/alerts/urgent")
	cfg.MQTT.QoS = 1

	cfg.API.BaseURL = getEnv("CAREPLAN_API_URL", "http://localhost:3000/api")
	cfg.API.TimeoutSec = 10

	// 监测服务配置
	cfg.Monitoring.Cache.SnapshotKeyPrefix = getEnv("CACHE_SNAPSHOT_PREFIX", "careplan:plan:")
	cfg.Monitoring.Cache.SnapshotSuffix = ":snapshot"
	cfg.Monitoring.Cache.AlertKeyPrefix = getEnv("CACHE_ALERT_PREFIX", "careplan:plan:")
	cfg.Monitoring.Cache.AlertSuffix = ":alerts"
	cfg.Monitoring.Cache.AlertTTL = 300 // 5分钟
	cfg.Monitoring.Cache.ConfigKey = getEnv("CACHE_CONFIG_KEY", "careplan:monitoring:config")
	cfg.Monitoring.Cache.ActivePlansKey = getEnv("CACHE_PLANS_KEY", "careplan:monitoring:active-plans")
	cfg.Monitoring.Cache.StateKeyPrefix = getEnv("CACHE_STATE_PREFIX", "careplan:state:")

	cfg.Monitoring.PollInterval = 60 // 60秒轮询一次
	cfg.Monitoring.DedupWindowMinutes = 30
	cfg.Monitoring.EventStream = getEnv("EVENT_STREAM", "careplan:monitoring:events")
	cfg.Monitoring.EventConsumerGroup = getEnv("EVENT_CONSUMER_GROUP", "careplan-monitor")

	cfg.DeviceID = getEnv("DEVICE_ID", defaultDeviceID())

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// defaultDeviceID 无显式配置时以主机名作为设备标识
func defaultDeviceID() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "wisefido-careplan"
}
