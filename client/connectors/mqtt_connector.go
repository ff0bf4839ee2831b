/*
 * @module MQTTConnector
 * @description MQTT连接器，封装短信/语音网关回传主题的订阅与断线重订阅
 * @architecture 适配器模式 - 封装第三方MQTT客户端，提供统一的接口
 * @stateFlow 连接建立 -> 订阅 -> 消息分发 -> 连接断开
 * @rules 重连后自动恢复全部订阅；处理器按订阅过滤器登记，支持通配符
 * @dependencies github.com/eclipse/paho.mqtt.golang
 * @refs service/ingest/mqtt_subscriber.go
 */
package connectors

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker       string        `json:"broker" yaml:"broker"`
	ClientID     string        `json:"client_id" yaml:"client_id"`
	Username     string        `json:"username" yaml:"username"`
	Password     string        `json:"password" yaml:"password"`
	QoS          byte          `json:"qos" yaml:"qos"`
	KeepAlive    time.Duration `json:"keep_alive" yaml:"keep_alive"`
	CleanSession bool          `json:"clean_session" yaml:"clean_session"`
}

// MQTTConfigFromEnv 读取 MQTT_BROKER/MQTT_USERNAME/MQTT_PASSWORD；未配置broker时返回 false
func MQTTConfigFromEnv() (*MQTTConfig, bool) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		return nil, false
	}
	return &MQTTConfig{
		Broker:       broker,
		ClientID:     "fieldwork-" + uuid.New().String()[:8],
		Username:     os.Getenv("MQTT_USERNAME"),
		Password:     os.Getenv("MQTT_PASSWORD"),
		QoS:          1,
		KeepAlive:    30 * time.Second,
		CleanSession: false,
	}, true
}

// MQTTMessageHandler 消息处理函数
type MQTTMessageHandler func(topic string, payload []byte) error

// MQTTConnector MQTT连接器
type MQTTConnector struct {
	config      *MQTTConfig
	client      mqtt.Client
	subscribers map[string]MQTTMessageHandler // 订阅过滤器 -> 处理器
	mutex       sync.RWMutex
	isConnected bool
}

// NewMQTTConnector 创建MQTT连接器
func NewMQTTConnector(config *MQTTConfig) *MQTTConnector {
	connector := &MQTTConnector{
		config:      config,
		subscribers: make(map[string]MQTTMessageHandler),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(config.Broker)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
		opts.SetPassword(config.Password)
	}
	opts.SetCleanSession(config.CleanSession)
	opts.SetKeepAlive(config.KeepAlive)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(connector.onConnected)
	opts.SetConnectionLostHandler(connector.onConnectionLost)

	connector.client = mqtt.NewClient(opts)
	return connector
}

// Connect 建立MQTT连接
func (mc *MQTTConnector) Connect() error {
	slog.Info("正在连接MQTT broker", "broker", mc.config.Broker)
	if token := mc.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT连接失败: %w", token.Error())
	}
	return nil
}

// Subscribe 订阅主题过滤器
func (mc *MQTTConnector) Subscribe(filter string, handler MQTTMessageHandler) error {
	mc.mutex.Lock()
	mc.subscribers[filter] = handler
	mc.mutex.Unlock()

	return mc.subscribe(filter)
}

func (mc *MQTTConnector) subscribe(filter string) error {
	token := mc.client.Subscribe(filter, mc.config.QoS, func(_ mqtt.Client, msg mqtt.Message) {
		mc.dispatch(filter, msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("订阅主题失败 topic=%s: %w", filter, token.Error())
	}
	slog.Info("已订阅MQTT主题", "topic", filter, "qos", mc.config.QoS)
	return nil
}

func (mc *MQTTConnector) dispatch(filter, topic string, payload []byte) {
	mc.mutex.RLock()
	handler := mc.subscribers[filter]
	mc.mutex.RUnlock()

	if handler == nil {
		slog.Warn("接收到MQTT消息但无处理器", "topic", topic)
		return
	}
	if err := handler(topic, payload); err != nil {
		slog.Warn("处理MQTT消息失败", "topic", topic, "error", err)
	}
}

func (mc *MQTTConnector) onConnected(client mqtt.Client) {
	mc.mutex.Lock()
	mc.isConnected = true
	filters := make([]string, 0, len(mc.subscribers))
	for f := range mc.subscribers {
		filters = append(filters, f)
	}
	mc.mutex.Unlock()

	slog.Info("MQTT连接已建立", "broker", mc.config.Broker)

	// 重连后恢复订阅
	for _, f := range filters {
		if err := mc.subscribe(f); err != nil {
			slog.Error("重新订阅主题失败", "topic", f, "error", err)
		}
	}
}

func (mc *MQTTConnector) onConnectionLost(client mqtt.Client, err error) {
	mc.mutex.Lock()
	mc.isConnected = false
	mc.mutex.Unlock()
	slog.Warn("MQTT连接丢失", "error", err)
}

// IsConnected 连接状态
func (mc *MQTTConnector) IsConnected() bool {
	mc.mutex.RLock()
	defer mc.mutex.RUnlock()
	return mc.isConnected
}

// Disconnect 断开MQTT连接
func (mc *MQTTConnector) Disconnect() {
	mc.mutex.Lock()
	filters := make([]string, 0, len(mc.subscribers))
	for f := range mc.subscribers {
		filters = append(filters, f)
	}
	mc.subscribers = make(map[string]MQTTMessageHandler)
	mc.mutex.Unlock()

	if len(filters) > 0 {
		if token := mc.client.Unsubscribe(filters...); token.Wait() && token.Error() != nil {
			slog.Warn("取消订阅失败", "error", token.Error())
		}
	}
	mc.client.Disconnect(250)
	slog.Info("MQTT连接器已断开连接")
}
