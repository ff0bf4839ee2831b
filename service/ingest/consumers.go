package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"fieldwork-service/client/connectors"
	"fieldwork-service/service/models"

	"github.com/segmentio/kafka-go"
)

// KafkaConsumer 消费样本供应商的完成事件主题
type KafkaConsumer struct {
	connector *connectors.KafkaConnector
	topic     string
	recorder  Recorder
}

// NewKafkaConsumer 创建Kafka完成事件消费者
func NewKafkaConsumer(connector *connectors.KafkaConnector, topic string, recorder Recorder) *KafkaConsumer {
	return &KafkaConsumer{connector: connector, topic: topic, recorder: recorder}
}

// Start 后台消费直到 ctx 取消
func (c *KafkaConsumer) Start(ctx context.Context) {
	go func() {
		slog.Info("启动Kafka完成事件消费", "topic", c.topic)
		if err := c.connector.Consume(ctx, c.topic, c.Handle); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Kafka消费退出", "topic", c.topic, "error", err)
		}
	}()
}

// Handle 处理单条Kafka消息；无法重试成功的消息记录后丢弃，其余错误交由消费循环重试
func (c *KafkaConsumer) Handle(ctx context.Context, msg kafka.Message) error {
	err := HandlePayload(ctx, c.recorder, msg.Value, models.ChannelPanel)
	if err != nil && IsPermanent(err) {
		slog.Warn("丢弃无法处理的完成事件", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "error", err)
		return nil
	}
	return err
}

// MQTTSubscriber 订阅短信/语音网关的回传主题
type MQTTSubscriber struct {
	connector *connectors.MQTTConnector
	filter    string
	recorder  Recorder
}

// NewMQTTSubscriber 创建MQTT完成事件订阅者，filter 形如 fieldwork/+/completions
func NewMQTTSubscriber(connector *connectors.MQTTConnector, filter string, recorder Recorder) *MQTTSubscriber {
	return &MQTTSubscriber{connector: connector, filter: filter, recorder: recorder}
}

// Start 订阅主题
func (s *MQTTSubscriber) Start() error {
	return s.connector.Subscribe(s.filter, s.Handle)
}

// Handle 处理单条MQTT消息
func (s *MQTTSubscriber) Handle(topic string, payload []byte) error {
	return HandlePayload(context.Background(), s.recorder, payload, ChannelFromTopic(topic))
}

// ChannelFromTopic 从 fieldwork/<channel>/completions 中取渠道，无法识别时为空
func ChannelFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 {
		return ""
	}
	switch ch := parts[1]; ch {
	case models.ChannelSMS, models.ChannelVoice, models.ChannelPanel:
		return ch
	}
	return ""
}
