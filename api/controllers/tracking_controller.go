/*
 * @module api/controllers/tracking_controller
 * @description 回收进度查询与汇总重建接口
 * @architecture MVC架构 - 控制器层
 * @dependencies fieldwork-service/service/tracking
 * @refs service/tracking/progress.go, service/tracking/rebuild.go
 */

package controllers

import (
	"net/http"

	"fieldwork-service/service/tracking"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// TrackingController 进度控制器
type TrackingController struct {
	tracker *tracking.Service
}

// NewTrackingController 创建进度控制器实例
func NewTrackingController(tracker *tracking.Service) *TrackingController {
	return &TrackingController{tracker: tracker}
}

// GetProgress 获取项目回收进度
// @Summary 项目回收进度
// @Description lagging>0 时额外返回完成率最低的若干分段
// @Tags 回收进度
// @Produce json
// @Param id path string true "项目ID"
// @Param lagging query int false "落后分段数量"
// @Success 200 {object} APIResponse{data=tracking.ProjectProgress}
// @Failure 404 {object} APIResponse
// @Router /projects/{id}/progress [get]
func (c *TrackingController) GetProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := c.tracker.ProjectProgress(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "获取进度失败", err)
		return
	}

	if n := queryInt(r, "lagging", 0); n > 0 {
		render.Render(w, r, SuccessResponse("获取成功", map[string]interface{}{
			"progress": progress,
			"lagging":  progress.LaggingSegments(n),
		}))
		return
	}
	render.Render(w, r, SuccessResponse("获取成功", progress))
}

// RebuildProgress 按回收记录重建进度汇总
// @Summary 重建进度汇总
// @Tags 回收进度
// @Produce json
// @Param id path string true "项目ID"
// @Success 200 {object} APIResponse{data=tracking.RebuildResult}
// @Failure 409 {object} APIResponse
// @Router /projects/{id}/progress/rebuild [post]
func (c *TrackingController) RebuildProgress(w http.ResponseWriter, r *http.Request) {
	result, err := c.tracker.RebuildProject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "重建进度失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("重建成功", result))
}
