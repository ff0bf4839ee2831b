/*
 * @module api/controllers/quota_controller
 * @description 配额规划控制器：模式列表、参考表、方案预览、复杂度与分段编码
 * @architecture MVC架构 - 控制器层
 * @stateFlow HTTP请求 -> 参数解析 -> 纯函数规划 -> 响应返回
 * @rules 预览不落库；枚举参数在此处解析，规划器本身不返回错误
 * @dependencies fieldwork-service/service/quota, github.com/go-chi/render
 * @refs service/quota/plan.go
 */

package controllers

import (
	"net/http"

	"fieldwork-service/service/metrics"
	"fieldwork-service/service/quota"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// QuotaController 配额规划控制器
type QuotaController struct{}

// NewQuotaController 创建配额规划控制器实例
func NewQuotaController() *QuotaController {
	return &QuotaController{}
}

// PlanRequest 方案预览请求
type PlanRequest struct {
	Geography        string `json:"geography" example:"National"`
	GeographyDetail  string `json:"geography_detail,omitempty" example:"NSW"`
	QuotaMode        string `json:"quota_mode" example:"non-interlocking"`
	TargetSampleSize int    `json:"target_sample_size" example:"1000"`
}

// SegmentCodeRequest 分段编码请求
type SegmentCodeRequest struct {
	Category string `json:"category" example:"Age/Gender"`
	Name     string `json:"name" example:"18-24 Male"`
}

// ListModes 获取全部配额模式及复杂度
// @Summary 配额模式列表
// @Description 返回全部配额模式及其复杂度等级与样本量乘数
// @Tags 配额规划
// @Produce json
// @Success 200 {object} APIResponse{data=[]quota.Complexity}
// @Router /quota/modes [get]
func (c *QuotaController) ListModes(w http.ResponseWriter, r *http.Request) {
	render.Render(w, r, SuccessResponse("获取成功", quota.AllComplexities()))
}

// GetReference 获取人口参考表
// @Summary 人口参考表
// @Description 返回年龄/性别、州/领地、地区三张参考表
// @Tags 配额规划
// @Produce json
// @Success 200 {object} APIResponse
// @Router /quota/reference [get]
func (c *QuotaController) GetReference(w http.ResponseWriter, r *http.Request) {
	geographies := make([]string, 0, 4)
	for _, g := range quota.Geographies() {
		geographies = append(geographies, g.String())
	}
	render.Render(w, r, SuccessResponse("获取成功", map[string]interface{}{
		"geographies": geographies,
		"age_gender":  quota.AgeGenderSegments(),
		"states":      quota.StateSegments(),
		"locations":   quota.LocationSegments(),
	}))
}

// Plan 预览配额方案
// @Summary 预览配额方案
// @Description 按地理范围、配额模式与目标样本量生成配额结构与单元格，不落库
// @Tags 配额规划
// @Accept json
// @Produce json
// @Param request body PlanRequest true "规划请求"
// @Success 200 {object} APIResponse{data=quota.QuotaPlan}
// @Failure 400 {object} APIResponse
// @Router /quota/plan [post]
func (c *QuotaController) Plan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}

	geography, err := quota.ParseGeographyScope(req.Geography)
	if err != nil {
		render.Render(w, r, BadRequestResponse("地理范围无效", err))
		return
	}
	mode, err := quota.ParseQuotaMode(req.QuotaMode)
	if err != nil {
		render.Render(w, r, BadRequestResponse("配额模式无效", err))
		return
	}

	plan, err := quota.Plan(quota.PlanRequest{
		Geography:        geography,
		GeographyDetail:  req.GeographyDetail,
		Mode:             mode,
		TargetSampleSize: req.TargetSampleSize,
	})
	if err != nil {
		render.Render(w, r, BadRequestResponse("样本量无效", err))
		return
	}

	metrics.QuotaPlansTotal.WithLabelValues(mode.String(), "preview").Inc()
	render.Render(w, r, SuccessResponse("规划成功", plan))
}

// GetComplexity 获取单个模式的复杂度
// @Summary 配额模式复杂度
// @Tags 配额规划
// @Produce json
// @Param mode path string true "配额模式" example(full-interlocking)
// @Success 200 {object} APIResponse{data=quota.Complexity}
// @Failure 400 {object} APIResponse
// @Router /quota/complexity/{mode} [get]
func (c *QuotaController) GetComplexity(w http.ResponseWriter, r *http.Request) {
	mode, err := quota.ParseQuotaMode(chi.URLParam(r, "mode"))
	if err != nil {
		render.Render(w, r, BadRequestResponse("配额模式无效", err))
		return
	}
	render.Render(w, r, SuccessResponse("获取成功", quota.ComplexityInfo(mode)))
}

// SegmentCode 计算分段编码
// @Summary 计算分段编码
// @Tags 配额规划
// @Accept json
// @Produce json
// @Param request body SegmentCodeRequest true "类别与名称"
// @Success 200 {object} APIResponse
// @Router /quota/segment-code [post]
func (c *QuotaController) SegmentCode(w http.ResponseWriter, r *http.Request) {
	var req SegmentCodeRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}
	if req.Category == "" || req.Name == "" {
		render.Render(w, r, BadRequestResponse("类别和名称不能为空", nil))
		return
	}
	render.Render(w, r, SuccessResponse("计算成功", map[string]string{
		"category": req.Category,
		"name":     req.Name,
		"code":     quota.SegmentCode(req.Category, req.Name),
	}))
}
