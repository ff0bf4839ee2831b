/*
 * @module KafkaConnector
 * @description Kafka连接器，封装按topic复用的生产者与消费组读取循环
 * @architecture 适配器模式 - 封装第三方Kafka客户端，提供统一的接口
 * @stateFlow 创建连接器 -> 生产/消费 -> 关闭
 * @rules 消息处理成功后才提交offset；处理失败的消息记录日志后提交，避免阻塞分区
 * @dependencies github.com/segmentio/kafka-go
 * @refs service/ingest/kafka_consumer.go, service/event/kafka_publisher.go
 */
package connectors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig Kafka配置
type KafkaConfig struct {
	Brokers      []string      `json:"brokers" yaml:"brokers"`
	GroupID      string        `json:"group_id" yaml:"group_id"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	BatchTimeout time.Duration `json:"batch_timeout" yaml:"batch_timeout"`
	MinBytes     int           `json:"min_bytes" yaml:"min_bytes"`
	MaxBytes     int           `json:"max_bytes" yaml:"max_bytes"`
	MaxWait      time.Duration `json:"max_wait" yaml:"max_wait"`
}

// KafkaConfigFromEnv 读取 KAFKA_BROKERS（逗号分隔）与 KAFKA_GROUP_ID；未配置broker时返回 false
func KafkaConfigFromEnv() (*KafkaConfig, bool) {
	raw := strings.TrimSpace(os.Getenv("KAFKA_BROKERS"))
	if raw == "" {
		return nil, false
	}
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	groupID := os.Getenv("KAFKA_GROUP_ID")
	if groupID == "" {
		groupID = "fieldwork-service"
	}
	return &KafkaConfig{
		Brokers:      brokers,
		GroupID:      groupID,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
		MinBytes:     1,
		MaxBytes:     10e6,
		MaxWait:      time.Second,
	}, true
}

// MessageReader 消费组读取接口，*kafka.Reader 满足该接口
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaMessageHandler 消息处理函数
type KafkaMessageHandler func(ctx context.Context, msg kafka.Message) error

// KafkaConnector Kafka连接器
type KafkaConnector struct {
	config  *KafkaConfig
	writers map[string]*kafka.Writer // 按topic分组的生产者
	mutex   sync.Mutex
}

// NewKafkaConnector 创建Kafka连接器
func NewKafkaConnector(config *KafkaConfig) *KafkaConnector {
	return &KafkaConnector{
		config:  config,
		writers: make(map[string]*kafka.Writer),
	}
}

func (kc *KafkaConnector) writer(topic string) *kafka.Writer {
	kc.mutex.Lock()
	defer kc.mutex.Unlock()

	if w, ok := kc.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(kc.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: kc.config.BatchTimeout,
		WriteTimeout: kc.config.WriteTimeout,
	}
	kc.writers[topic] = w
	return w
}

// Produce 发送一条消息；同一key进入同一分区
func (kc *KafkaConnector) Produce(ctx context.Context, topic, key string, value []byte) error {
	msg := kafka.Message{Key: []byte(key), Value: value, Time: time.Now()}
	if err := kc.writer(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("发送Kafka消息失败 topic=%s: %w", topic, err)
	}
	return nil
}

// NewReader 创建消费组读取器
func (kc *KafkaConnector) NewReader(topic string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kc.config.Brokers,
		Topic:    topic,
		GroupID:  kc.config.GroupID,
		MinBytes: kc.config.MinBytes,
		MaxBytes: kc.config.MaxBytes,
		MaxWait:  kc.config.MaxWait,
	})
}

// Consume 持续消费topic直到ctx取消
func (kc *KafkaConnector) Consume(ctx context.Context, topic string, handler KafkaMessageHandler) error {
	reader := kc.NewReader(topic)
	defer reader.Close()
	slog.Info("开始消费Kafka topic", "topic", topic, "group_id", kc.config.GroupID)
	return ConsumeLoop(ctx, reader, handler)
}

// 处理失败重试的退避区间
var (
	handlerRetryMin = time.Second
	handlerRetryMax = 30 * time.Second
)

// ConsumeLoop 读取 -> 处理 -> 提交，读取失败时退避1秒重试
//
// handler 返回错误时不提交offset，按指数退避重试同一条消息直到成功或 ctx 取消。
// 不可重试的消息应由 handler 自行记录并返回 nil。
func ConsumeLoop(ctx context.Context, reader MessageReader, handler KafkaMessageHandler) error {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			slog.Error("读取Kafka消息失败", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		if !handleWithRetry(ctx, msg, handler) {
			return nil
		}

		if err := reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("提交Kafka offset失败", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// handleWithRetry 处理成功返回 true；ctx 取消返回 false
func handleWithRetry(ctx context.Context, msg kafka.Message, handler KafkaMessageHandler) bool {
	backoff := handlerRetryMin
	for attempt := 1; ; attempt++ {
		err := handler(ctx, msg)
		if err == nil {
			return true
		}
		slog.Warn("处理Kafka消息失败，稍后重试",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
			"attempt", attempt, "backoff", backoff, "error", err)

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > handlerRetryMax {
			backoff = handlerRetryMax
		}
	}
}

// Close 关闭所有生产者
func (kc *KafkaConnector) Close() error {
	kc.mutex.Lock()
	defer kc.mutex.Unlock()

	var firstErr error
	for topic, w := range kc.writers {
		if err := w.Close(); err != nil {
			slog.Error("关闭Kafka生产者失败", "topic", topic, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	kc.writers = make(map[string]*kafka.Writer)
	return firstErr
}
