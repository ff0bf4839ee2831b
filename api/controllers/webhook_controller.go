/*
 * @module api/controllers/webhook_controller
 * @description 网关回调接口与回调密钥管理
 * @architecture MVC架构 - 控制器层
 * @stateFlow API Key鉴权 -> 解码完成事件 -> 校验项目归属 -> 登记回收
 * @rules 回调密钥只能为所属项目登记完成事件；明文密钥只在创建时返回
 * @dependencies fieldwork-service/service/ingest, fieldwork-service/api/middleware
 * @refs service/ingest/decode.go, service/ingest/webhook_keys.go
 */

package controllers

import (
	"errors"
	"io"
	"net/http"

	"fieldwork-service/api/middleware"
	"fieldwork-service/service/ingest"
	"fieldwork-service/service/models"
	"fieldwork-service/service/project"
	"fieldwork-service/service/tracking"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

const maxWebhookBody = 64 << 10

// WebhookController 回调控制器
type WebhookController struct {
	keys     *ingest.KeyService
	projects *project.Service
	recorder ingest.Recorder
}

// NewWebhookController 创建回调控制器实例
func NewWebhookController(keys *ingest.KeyService, projects *project.Service, recorder ingest.Recorder) *WebhookController {
	return &WebhookController{keys: keys, projects: projects, recorder: recorder}
}

// CreateKeyRequest 创建回调密钥请求
type CreateKeyRequest struct {
	Name string `json:"name" example:"sms-gateway"`
}

// CreateKeyResponse 创建回调密钥响应，key 仅返回一次
type CreateKeyResponse struct {
	*models.WebhookKey
	Key string `json:"key"`
}

// CreateKey 为项目生成回调密钥
// @Summary 生成回调密钥
// @Tags 网关回调
// @Accept json
// @Produce json
// @Param id path string true "项目ID"
// @Param request body CreateKeyRequest false "密钥名称"
// @Success 201 {object} APIResponse{data=CreateKeyResponse}
// @Router /projects/{id}/webhook-keys [post]
func (c *WebhookController) CreateKey(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if _, err := c.projects.GetProject(projectID); err != nil {
		respondError(w, r, "生成回调密钥失败", err)
		return
	}

	var req CreateKeyRequest
	if r.ContentLength != 0 {
		if err := render.DecodeJSON(r.Body, &req); err != nil && !errors.Is(err, io.EOF) {
			render.Render(w, r, BadRequestResponse("请求参数格式错误", err))
			return
		}
	}

	key, plaintext, err := c.keys.CreateKey(projectID, req.Name)
	if err != nil {
		respondError(w, r, "生成回调密钥失败", err)
		return
	}
	render.Render(w, r, CreatedResponse("生成成功", CreateKeyResponse{WebhookKey: key, Key: plaintext}))
}

// ListKeys 列出项目回调密钥
// @Summary 回调密钥列表
// @Tags 网关回调
// @Produce json
// @Param id path string true "项目ID"
// @Success 200 {object} APIResponse{data=[]models.WebhookKey}
// @Router /projects/{id}/webhook-keys [get]
func (c *WebhookController) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := c.keys.ListKeys(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "获取回调密钥失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("获取成功", keys))
}

// RevokeKey 吊销回调密钥
// @Summary 吊销回调密钥
// @Tags 网关回调
// @Produce json
// @Param id path string true "项目ID"
// @Param keyId path string true "密钥ID"
// @Success 200 {object} APIResponse
// @Failure 404 {object} APIResponse
// @Router /projects/{id}/webhook-keys/{keyId} [delete]
func (c *WebhookController) RevokeKey(w http.ResponseWriter, r *http.Request) {
	if err := c.keys.RevokeKey(chi.URLParam(r, "id"), chi.URLParam(r, "keyId")); err != nil {
		respondError(w, r, "吊销回调密钥失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("吊销成功", nil))
}

// RecordCompletion 网关回调登记完成事件
// @Summary 登记完成事件
// @Description 短信/语音网关回调；事件未携带项目ID时使用密钥所属项目，未携带渠道时使用明细的渠道
// @Tags 网关回调
// @Accept json
// @Produce json
// @Param X-API-Key header string true "回调密钥"
// @Param event body tracking.CompletionEvent true "完成事件"
// @Success 201 {object} APIResponse{data=tracking.CompletionResult}
// @Failure 400 {object} APIResponse
// @Failure 401 {object} APIResponse
// @Failure 403 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /webhooks/completions [post]
func (c *WebhookController) RecordCompletion(w http.ResponseWriter, r *http.Request) {
	key, ok := middleware.GetWebhookKeyFromContext(r.Context())
	if !ok {
		render.Render(w, r, ErrorResponse(http.StatusUnauthorized, "未通过API Key认证", nil))
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		render.Render(w, r, BadRequestResponse("读取请求体失败", err))
		return
	}

	ev, err := ingest.DecodeCompletion(raw, "")
	if err != nil {
		respondError(w, r, "完成事件解析失败", err)
		return
	}
	if ev.ProjectID == "" {
		ev.ProjectID = key.ProjectID
	}
	if ev.ProjectID != key.ProjectID {
		render.Render(w, r, ErrorResponse(http.StatusForbidden, "回调密钥不属于该项目", nil))
		return
	}

	result, err := c.recorder.RecordCompletion(r.Context(), ev)
	if err != nil {
		respondError(w, r, "登记完成事件失败", err)
		return
	}
	render.Render(w, r, CreatedResponse("登记成功", result))
}

var _ ingest.Recorder = (*tracking.Service)(nil)
