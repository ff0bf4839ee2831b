/*
 * @module service/event/event_service
 * @description 实时事件服务：按项目维护SSE连接，配额进度事件本地扇出，并通过PostgreSQL NOTIFY跨实例转发
 * @architecture 事件驱动架构 - 业务服务层
 * @stateFlow 事件发布 -> 本地连接推送 -> pg_notify -> 其他实例监听器 -> 各自推送
 * @rules 每个连接使用有界缓冲，队列满时丢弃而不阻塞发布方；非PostgreSQL方言只做本地推送
 * @dependencies fieldwork-service/service/models, gorm.io/gorm, github.com/lib/pq
 * @refs api/controllers/event_controller.go, service/tracking/service.go
 */

package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"fieldwork-service/service/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// NotifyChannel PostgreSQL通知频道
const NotifyChannel = "fieldwork_events"

const clientBufferSize = 100

// SSEClient SSE客户端连接
type SSEClient struct {
	ID        string
	ProjectID string
	ClientIP  string
	Channel   chan *models.FieldworkEvent
	Done      chan struct{}
}

// EventService 事件服务
type EventService struct {
	db          *gorm.DB
	origin      string
	connections map[string]map[string]*SSEClient // projectID -> connectionID -> client
	mu          sync.RWMutex
	listener    *pq.Listener
	ctx         context.Context
	cancel      context.CancelFunc
}

// NewEventService 创建事件服务；监听器需调用 Start 启动
func NewEventService(db *gorm.DB) *EventService {
	ctx, cancel := context.WithCancel(context.Background())
	return &EventService{
		db:          db,
		origin:      uuid.New().String(),
		connections: make(map[string]map[string]*SSEClient),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// === SSE连接管理 ===

// AddSSEConnection 添加SSE连接
func (s *EventService) AddSSEConnection(projectID, clientIP string) *SSEClient {
	client := &SSEClient{
		ID:        uuid.New().String(),
		ProjectID: projectID,
		ClientIP:  clientIP,
		Channel:   make(chan *models.FieldworkEvent, clientBufferSize),
		Done:      make(chan struct{}),
	}

	s.mu.Lock()
	if s.connections[projectID] == nil {
		s.connections[projectID] = make(map[string]*SSEClient)
	}
	s.connections[projectID][client.ID] = client
	s.mu.Unlock()

	slog.Info("SSE连接已建立", "project_id", projectID, "connection_id", client.ID, "client_ip", clientIP)
	return client
}

// RemoveSSEConnection 移除SSE连接
func (s *EventService) RemoveSSEConnection(projectID, connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conns, ok := s.connections[projectID]
	if !ok {
		return
	}
	client, ok := conns[connectionID]
	if !ok {
		return
	}
	close(client.Done)
	delete(conns, connectionID)
	if len(conns) == 0 {
		delete(s.connections, projectID)
	}
	slog.Info("SSE连接已断开", "project_id", projectID, "connection_id", connectionID)
}

// ConnectionCount 项目当前连接数
func (s *EventService) ConnectionCount(projectID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections[projectID])
}

// Publish 发布事件：本地推送，PostgreSQL下同时通知其他实例
func (s *EventService) Publish(event *models.FieldworkEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Origin = s.origin

	s.deliver(event)

	if s.isPostgres() {
		if err := s.notify(event); err != nil {
			slog.Error("发送数据库通知失败", "project_id", event.ProjectID, "type", event.Type, "error", err)
		}
	}
}

func (s *EventService) deliver(event *models.FieldworkEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, client := range s.connections[event.ProjectID] {
		select {
		case client.Channel <- event:
		default:
			slog.Warn("SSE连接事件队列已满，跳过发送", "project_id", event.ProjectID, "connection_id", client.ID)
		}
	}
}

func (s *EventService) isPostgres() bool {
	return s.db != nil && s.db.Dialector.Name() == "postgres"
}

func (s *EventService) notify(event *models.FieldworkEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.db.Exec("SELECT pg_notify(?, ?)", NotifyChannel, string(payload)).Error
}

// === 数据库监听 ===

// Start 在PostgreSQL下启动NOTIFY监听器
func (s *EventService) Start() {
	if !s.isPostgres() {
		slog.Info("非PostgreSQL数据库，仅启用本地事件推送")
		return
	}
	go s.startDBListener(databaseURL())
}

func (s *EventService) startDBListener(connStr string) {
	listener := pq.NewListener(connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			slog.Warn("PostgreSQL监听器事件", "event", ev, "error", err)
		}
	})

	if err := listener.Listen(NotifyChannel); err != nil {
		slog.Error("监听数据库通知失败", "channel", NotifyChannel, "error", err)
		listener.Close()
		return
	}

	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		listener.Close()
		return
	}
	s.listener = listener
	s.mu.Unlock()
	slog.Info("数据库监听器已启动", "channel", NotifyChannel)

	for {
		select {
		case n := <-listener.Notify:
			// 重连后会收到nil通知
			if n != nil {
				s.handleNotification(n.Extra)
			}
		case <-time.After(90 * time.Second):
			go listener.Ping()
		case <-s.ctx.Done():
			slog.Info("数据库监听器已停止")
			return
		}
	}
}

func (s *EventService) handleNotification(payload string) {
	var event models.FieldworkEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		slog.Warn("解析数据库通知失败", "error", err)
		return
	}
	// 本实例发出的事件已在本地推送
	if event.Origin == s.origin {
		return
	}
	s.deliver(&event)
}

// Stop 停止事件服务并关闭全部连接
func (s *EventService) Stop() {
	s.cancel()

	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
		s.listener = nil
	}
	for _, conns := range s.connections {
		for _, client := range conns {
			close(client.Done)
		}
	}
	s.connections = make(map[string]map[string]*SSEClient)
	s.mu.Unlock()

	slog.Info("事件服务已停止")
}

func databaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		getEnvWithDefault("DB_HOST", "localhost"),
		getEnvWithDefault("DB_PORT", "5432"),
		getEnvWithDefault("DB_USER", "postgres"),
		getEnvWithDefault("DB_PASSWORD", "postgres"),
		getEnvWithDefault("DB_NAME", "fieldwork"),
		getEnvWithDefault("DB_SSLMODE", "disable"),
	)
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
