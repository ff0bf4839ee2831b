package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"fieldwork-service/client/panel"
	"fieldwork-service/service/config"
	"fieldwork-service/service/ingest"
	"fieldwork-service/service/panel_sync"
	"fieldwork-service/service/project"
	"fieldwork-service/service/quota"
	"fieldwork-service/service/quota_config"
	"fieldwork-service/service/tracking"

	"github.com/go-chi/render"
)

// APIResponse 统一API响应结构
type APIResponse struct {
	Status int         `json:"status" example:"200"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data,omitempty"`
}

// Render 将业务状态码同步为HTTP状态码
func (resp *APIResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, resp.Status)
	return nil
}

// PaginatedResponse 分页响应结构
type PaginatedResponse struct {
	Status int         `json:"status" example:"200"`
	Msg    string      `json:"msg" example:"操作成功"`
	Data   interface{} `json:"data"`
	Total  int64       `json:"total" example:"100"`
	Page   int         `json:"page" example:"1"`
	Size   int         `json:"size" example:"10"`
}

func (resp *PaginatedResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, resp.Status)
	return nil
}

// SuccessResponse 成功响应
func SuccessResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: http.StatusOK, Msg: msg, Data: data}
}

// CreatedResponse 创建成功响应
func CreatedResponse(msg string, data interface{}) *APIResponse {
	return &APIResponse{Status: http.StatusCreated, Msg: msg, Data: data}
}

// ErrorResponse 错误响应，err 非空时拼接到消息后
func ErrorResponse(status int, msg string, err error) *APIResponse {
	if err != nil {
		msg = msg + ": " + err.Error()
	}
	return &APIResponse{Status: status, Msg: msg}
}

// BadRequestResponse 参数错误响应
func BadRequestResponse(msg string, err error) *APIResponse {
	return ErrorResponse(http.StatusBadRequest, msg, err)
}

// NotFoundResponse 资源不存在响应
func NotFoundResponse(msg string, err error) *APIResponse {
	return ErrorResponse(http.StatusNotFound, msg, err)
}

// InternalErrorResponse 服务器错误响应
func InternalErrorResponse(msg string, err error) *APIResponse {
	return ErrorResponse(http.StatusInternalServerError, msg, err)
}

// statusFor 业务错误到HTTP状态码的映射
func statusFor(err error) int {
	switch {
	case errors.Is(err, project.ErrProjectNotFound),
		errors.Is(err, project.ErrLineItemNotFound),
		errors.Is(err, quota_config.ErrConfigurationNotFound),
		errors.Is(err, ingest.ErrKeyNotFound):
		return http.StatusNotFound
	case errors.Is(err, project.ErrInvalidInput),
		errors.Is(err, quota_config.ErrInvalidRequest),
		errors.Is(err, quota.ErrUnknownGeography),
		errors.Is(err, quota.ErrUnknownQuotaMode),
		errors.Is(err, quota.ErrUnknownCategory),
		errors.Is(err, quota.ErrInvalidSampleSize),
		errors.Is(err, tracking.ErrInvalidEvent),
		errors.Is(err, tracking.ErrUnknownSegment),
		errors.Is(err, ingest.ErrMalformedPayload),
		errors.Is(err, panel_sync.ErrNoExternalSurvey),
		errors.Is(err, panel_sync.ErrNotPanelChannel),
		errors.Is(err, panel_sync.ErrNoAllocations),
		errors.Is(err, config.ErrUnknownConfigKey),
		errors.Is(err, config.ErrInvalidConfigValue):
		return http.StatusBadRequest
	case errors.Is(err, project.ErrHasCompletions),
		errors.Is(err, tracking.ErrDuplicateCompletion),
		errors.Is(err, tracking.ErrRebuildInProgress):
		return http.StatusConflict
	case errors.Is(err, quota_config.ErrGeneratorFailed),
		errors.Is(err, panel.ErrNotConfigured):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError 按错误类型输出统一响应
func respondError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	render.Render(w, r, ErrorResponse(statusFor(err), msg, err))
}

// queryInt 读取整数查询参数，缺省或非法时返回 def
func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return def
	}
	return v
}
