/*
 * @module api/controllers/quota_config_controller
 * @description 项目配额配置接口：生成/替换配置、查询分段与分配
 * @architecture MVC架构 - 控制器层
 * @dependencies fieldwork-service/service/quota_config
 * @refs service/quota_config/service.go
 */

package controllers

import (
	"net/http"

	"fieldwork-service/service/quota_config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// QuotaConfigController 配额配置控制器
type QuotaConfigController struct {
	configs *quota_config.Service
}

// NewQuotaConfigController 创建配额配置控制器实例
func NewQuotaConfigController(configs *quota_config.Service) *QuotaConfigController {
	return &QuotaConfigController{configs: configs}
}

// ApplyConfiguration 生成项目配额配置
// @Summary 生成配额配置
// @Description 按请求规划配额，替换项目现有配置，并按明细目标样本量拆分分配
// @Tags 配额配置
// @Accept json
// @Produce json
// @Param id path string true "项目ID"
// @Param request body quota_config.ApplyRequest true "配置请求"
// @Success 201 {object} APIResponse{data=quota_config.ConfigurationResult}
// @Failure 400 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Failure 502 {object} APIResponse
// @Router /projects/{id}/quota-configuration [post]
func (c *QuotaConfigController) ApplyConfiguration(w http.ResponseWriter, r *http.Request) {
	var req quota_config.ApplyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}
	result, err := c.configs.ApplyQuotaConfiguration(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondError(w, r, "配额配置失败", err)
		return
	}
	render.Render(w, r, CreatedResponse("配置成功", result))
}

// GetConfiguration 获取项目当前配额配置
// @Summary 当前配额配置
// @Tags 配额配置
// @Produce json
// @Param id path string true "项目ID"
// @Success 200 {object} APIResponse{data=models.QuotaConfiguration}
// @Failure 404 {object} APIResponse
// @Router /projects/{id}/quota-configuration [get]
func (c *QuotaConfigController) GetConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := c.configs.GetQuotaConfiguration(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "获取配额配置失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("获取成功", cfg))
}

// ListSegments 获取项目配额分段
// @Summary 配额分段列表
// @Tags 配额配置
// @Produce json
// @Param id path string true "项目ID"
// @Success 200 {object} APIResponse{data=[]models.QuotaSegment}
// @Router /projects/{id}/segments [get]
func (c *QuotaConfigController) ListSegments(w http.ResponseWriter, r *http.Request) {
	segments, err := c.configs.ListSegments(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "获取配额分段失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("获取成功", segments))
}

// ListAllocations 获取项目配额分配
// @Summary 配额分配列表
// @Tags 配额配置
// @Produce json
// @Param id path string true "项目ID"
// @Param line_item_id query string false "按明细过滤"
// @Success 200 {object} APIResponse{data=[]models.QuotaAllocation}
// @Router /projects/{id}/allocations [get]
func (c *QuotaConfigController) ListAllocations(w http.ResponseWriter, r *http.Request) {
	allocations, err := c.configs.ListAllocations(chi.URLParam(r, "id"), r.URL.Query().Get("line_item_id"))
	if err != nil {
		respondError(w, r, "获取配额分配失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("获取成功", allocations))
}
