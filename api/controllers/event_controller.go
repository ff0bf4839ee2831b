/*
 * @module api/controllers/event_controller
 * @description 配额进度实时推送控制器，按项目建立SSE连接
 * @architecture RESTful API架构 - 控制器层
 * @stateFlow HTTP请求 -> 登记连接 -> 推送connected -> 循环推送事件/心跳 -> 断开
 * @rules 连接断开或服务停止时立即返回并注销连接
 * @dependencies fieldwork-service/service/event, github.com/go-chi/chi/v5
 * @refs service/event/event_service.go
 */

package controllers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fieldwork-service/service/event"
	"fieldwork-service/service/project"

	"github.com/go-chi/chi/v5"
)

const sseHeartbeatInterval = 25 * time.Second

// EventController 事件控制器
type EventController struct {
	eventService *event.EventService
	projects     *project.Service
	heartbeat    time.Duration
}

// NewEventController 创建事件控制器实例
func NewEventController(eventService *event.EventService, projects *project.Service) *EventController {
	return &EventController{
		eventService: eventService,
		projects:     projects,
		heartbeat:    sseHeartbeatInterval,
	}
}

// HandleSSE 处理SSE连接
// @Summary 订阅项目进度
// @Description 建立SSE连接，实时接收 quota_progress、quota_full、quota_configured、rollup_rebuilt 事件
// @Tags 实时事件
// @Param id path string true "项目ID"
// @Success 200 {string} string "SSE事件流"
// @Failure 404 {object} APIResponse
// @Router /sse/projects/{id} [get]
func (c *EventController) HandleSSE(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if _, err := c.projects.GetProject(projectID); err != nil {
		respondError(w, r, "建立SSE连接失败", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "当前连接不支持流式推送", http.StatusInternalServerError)
		return
	}

	// 设置SSE响应头
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	client := c.eventService.AddSSEConnection(projectID, clientIP(r))
	defer c.eventService.RemoveSSEConnection(projectID, client.ID)

	fmt.Fprintf(w, "event: connected\ndata: {\"connection_id\":\"%s\",\"project_id\":\"%s\",\"timestamp\":\"%s\"}\n\n",
		client.ID, projectID, time.Now().Format(time.RFC3339))
	flusher.Flush()

	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case ev := <-client.Channel:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
			flusher.Flush()

		case <-ticker.C:
			// 心跳注释行，防止代理断开空闲连接
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case <-client.Done:
			return

		case <-r.Context().Done():
			return
		}
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	return r.RemoteAddr
}
