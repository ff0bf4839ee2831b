/*
 * @module api/controllers/panel_controller
 * @description 样本供应商同步接口：推送明细配额、查询供应商回收统计
 * @architecture MVC架构 - 控制器层
 * @dependencies fieldwork-service/service/panel_sync
 * @refs service/panel_sync/service.go, client/panel/client.go
 */

package controllers

import (
	"net/http"

	"fieldwork-service/service/panel_sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// PanelController 供应商同步控制器
type PanelController struct {
	sync *panel_sync.Service
}

// NewPanelController 创建供应商同步控制器实例
func NewPanelController(sync *panel_sync.Service) *PanelController {
	return &PanelController{sync: sync}
}

// PushQuotas 推送明细配额到供应商
// @Summary 推送供应商配额
// @Description 按明细的映射脚本将配额分配转换为供应商格式并推送
// @Tags 样本供应商
// @Produce json
// @Param id path string true "项目ID"
// @Param lineItemID path string true "明细ID"
// @Param dry_run query bool false "只返回映射结果，不推送"
// @Success 200 {object} APIResponse{data=panel_sync.PushSummary}
// @Failure 400 {object} APIResponse
// @Failure 502 {object} APIResponse
// @Router /projects/{id}/line-items/{lineItemID}/panel/push-quotas [post]
func (c *PanelController) PushQuotas(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	lineItemID := chi.URLParam(r, "lineItemID")

	if r.URL.Query().Get("dry_run") == "true" {
		item, quotas, err := c.sync.BuildQuotas(projectID, lineItemID)
		if err != nil {
			respondError(w, r, "生成供应商配额失败", err)
			return
		}
		render.Render(w, r, SuccessResponse("映射成功", panel_sync.PushSummary{
			LineItemID: item.ID,
			SurveyID:   item.ExternalSurveyID,
			Quotas:     quotas,
		}))
		return
	}

	summary, err := c.sync.PushLineItemQuotas(r.Context(), projectID, lineItemID)
	if err != nil {
		respondError(w, r, "推送供应商配额失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("推送成功", summary))
}

// GetStats 查询供应商回收统计
// @Summary 供应商回收统计
// @Tags 样本供应商
// @Produce json
// @Param id path string true "项目ID"
// @Param lineItemID path string true "明细ID"
// @Success 200 {object} APIResponse{data=panel.SurveyStats}
// @Failure 502 {object} APIResponse
// @Router /projects/{id}/line-items/{lineItemID}/panel/stats [get]
func (c *PanelController) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := c.sync.LineItemStats(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "lineItemID"))
	if err != nil {
		respondError(w, r, "获取供应商统计失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("获取成功", stats))
}
