package event

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"fieldwork-service/client/connectors"
	"fieldwork-service/service/models"
)

// Publisher 事件发布接口
type Publisher interface {
	Publish(event *models.FieldworkEvent)
}

// MultiPublisher 依次发布到多个目标
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(event *models.FieldworkEvent) {
	for _, p := range m {
		if p != nil {
			p.Publish(event)
		}
	}
}

// KafkaPublisher 将进度事件写入Kafka，key为项目ID
type KafkaPublisher struct {
	connector *connectors.KafkaConnector
	topic     string
	timeout   time.Duration
}

// NewKafkaPublisher 创建Kafka事件发布器
func NewKafkaPublisher(connector *connectors.KafkaConnector, topic string) *KafkaPublisher {
	return &KafkaPublisher{connector: connector, topic: topic, timeout: 5 * time.Second}
}

// Publish 异步写入，失败只记录日志
func (p *KafkaPublisher) Publish(event *models.FieldworkEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		slog.Error("序列化事件失败", "type", event.Type, "error", err)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.connector.Produce(ctx, p.topic, event.ProjectID, payload); err != nil {
			slog.Error("发布Kafka事件失败", "topic", p.topic, "project_id", event.ProjectID, "error", err)
		}
	}()
}
