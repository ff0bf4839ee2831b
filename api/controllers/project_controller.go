/*
 * @module api/controllers/project_controller
 * @description 调研项目与执行明细的增删改查接口
 * @architecture MVC架构 - 控制器层
 * @stateFlow HTTP请求 -> 参数验证 -> 业务处理 -> 响应返回
 * @rules 映射脚本在保存前完成编译校验
 * @dependencies fieldwork-service/service/project, github.com/go-chi/render
 * @refs service/project/service.go
 */

package controllers

import (
	"fmt"
	"net/http"

	"fieldwork-service/service/models"
	"fieldwork-service/service/project"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// ScriptValidator 映射脚本校验
type ScriptValidator interface {
	ValidateMappingScript(script string) error
}

// ProjectController 项目控制器
type ProjectController struct {
	projects  *project.Service
	validator ScriptValidator
}

// NewProjectController 创建项目控制器实例，validator 可为空
func NewProjectController(projects *project.Service, validator ScriptValidator) *ProjectController {
	return &ProjectController{projects: projects, validator: validator}
}

// CreateProject 创建项目
// @Summary 创建调研项目
// @Tags 项目管理
// @Accept json
// @Produce json
// @Param project body models.Project true "项目信息"
// @Success 201 {object} APIResponse{data=models.Project}
// @Failure 400 {object} APIResponse
// @Router /projects [post]
func (c *ProjectController) CreateProject(w http.ResponseWriter, r *http.Request) {
	var p models.Project
	if err := render.DecodeJSON(r.Body, &p); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}
	p.ID = ""
	if err := c.projects.CreateProject(&p); err != nil {
		respondError(w, r, "创建项目失败", err)
		return
	}
	render.Render(w, r, CreatedResponse("创建成功", p))
}

// ListProjects 分页获取项目
// @Summary 项目列表
// @Tags 项目管理
// @Produce json
// @Param page query int false "页码" default(1)
// @Param size query int false "每页数量" default(20)
// @Param status query string false "项目状态"
// @Param search query string false "名称/客户关键字"
// @Success 200 {object} PaginatedResponse{data=[]models.Project}
// @Router /projects [get]
func (c *ProjectController) ListProjects(w http.ResponseWriter, r *http.Request) {
	filter := project.ListFilter{
		Page:   queryInt(r, "page", 1),
		Size:   queryInt(r, "size", 20),
		Status: r.URL.Query().Get("status"),
		Search: r.URL.Query().Get("search"),
	}
	projects, total, err := c.projects.ListProjects(filter)
	if err != nil {
		respondError(w, r, "获取项目列表失败", err)
		return
	}
	render.Render(w, r, &PaginatedResponse{
		Status: http.StatusOK,
		Msg:    "获取成功",
		Data:   projects,
		Total:  total,
		Page:   filter.Page,
		Size:   filter.Size,
	})
}

// GetProject 获取项目详情
// @Summary 项目详情
// @Tags 项目管理
// @Produce json
// @Param id path string true "项目ID"
// @Success 200 {object} APIResponse{data=models.Project}
// @Failure 404 {object} APIResponse
// @Router /projects/{id} [get]
func (c *ProjectController) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := c.projects.GetProject(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, "获取项目失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("获取成功", p))
}

// UpdateProject 更新项目
// @Summary 更新项目
// @Tags 项目管理
// @Accept json
// @Produce json
// @Param id path string true "项目ID"
// @Param project body models.Project true "需要更新的字段"
// @Success 200 {object} APIResponse{data=models.Project}
// @Router /projects/{id} [put]
func (c *ProjectController) UpdateProject(w http.ResponseWriter, r *http.Request) {
	var updates models.Project
	if err := render.DecodeJSON(r.Body, &updates); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}
	p, err := c.projects.UpdateProject(chi.URLParam(r, "id"), &updates)
	if err != nil {
		respondError(w, r, "更新项目失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("更新成功", p))
}

// DeleteProject 删除项目
// @Summary 删除项目
// @Description 已有回收数据的项目不可删除
// @Tags 项目管理
// @Produce json
// @Param id path string true "项目ID"
// @Success 200 {object} APIResponse
// @Failure 409 {object} APIResponse
// @Router /projects/{id} [delete]
func (c *ProjectController) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := c.projects.DeleteProject(chi.URLParam(r, "id")); err != nil {
		respondError(w, r, "删除项目失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("删除成功", nil))
}

// CreateLineItem 创建执行明细
// @Summary 创建执行明细
// @Tags 执行明细
// @Accept json
// @Produce json
// @Param id path string true "项目ID"
// @Param item body models.LineItem true "明细信息"
// @Success 201 {object} APIResponse{data=models.LineItem}
// @Router /projects/{id}/line-items [post]
func (c *ProjectController) CreateLineItem(w http.ResponseWriter, r *http.Request) {
	var item models.LineItem
	if err := render.DecodeJSON(r.Body, &item); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}
	if err := c.validateScript(item.MappingScript); err != nil {
		respondError(w, r, "映射脚本校验失败", err)
		return
	}
	item.ID = ""
	if err := c.projects.CreateLineItem(chi.URLParam(r, "id"), &item); err != nil {
		respondError(w, r, "创建执行明细失败", err)
		return
	}
	render.Render(w, r, CreatedResponse("创建成功", item))
}

// ListLineItems 获取项目下的执行明细
// @Summary 执行明细列表
// @Tags 执行明细
// @Produce json
// @Param id path string true "项目ID"
// @Success 200 {object} APIResponse{data=[]models.LineItem}
// @Router /projects/{id}/line-items [get]
func (c *ProjectController) ListLineItems(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "id")
	if _, err := c.projects.GetProject(projectID); err != nil {
		respondError(w, r, "获取执行明细失败", err)
		return
	}
	items, err := c.projects.ListLineItems(projectID)
	if err != nil {
		respondError(w, r, "获取执行明细失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("获取成功", items))
}

// GetLineItem 获取执行明细详情
// @Summary 执行明细详情
// @Tags 执行明细
// @Produce json
// @Param id path string true "项目ID"
// @Param lineItemID path string true "明细ID"
// @Success 200 {object} APIResponse{data=models.LineItem}
// @Router /projects/{id}/line-items/{lineItemID} [get]
func (c *ProjectController) GetLineItem(w http.ResponseWriter, r *http.Request) {
	item, err := c.projects.GetLineItem(chi.URLParam(r, "id"), chi.URLParam(r, "lineItemID"))
	if err != nil {
		respondError(w, r, "获取执行明细失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("获取成功", item))
}

// UpdateLineItem 更新执行明细
// @Summary 更新执行明细
// @Tags 执行明细
// @Accept json
// @Produce json
// @Param id path string true "项目ID"
// @Param lineItemID path string true "明细ID"
// @Param item body models.LineItem true "需要更新的字段"
// @Success 200 {object} APIResponse{data=models.LineItem}
// @Router /projects/{id}/line-items/{lineItemID} [put]
func (c *ProjectController) UpdateLineItem(w http.ResponseWriter, r *http.Request) {
	var updates models.LineItem
	if err := render.DecodeJSON(r.Body, &updates); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数格式错误", err))
		return
	}
	if err := c.validateScript(updates.MappingScript); err != nil {
		respondError(w, r, "映射脚本校验失败", err)
		return
	}
	item, err := c.projects.UpdateLineItem(chi.URLParam(r, "id"), chi.URLParam(r, "lineItemID"), &updates)
	if err != nil {
		respondError(w, r, "更新执行明细失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("更新成功", item))
}

// DeleteLineItem 删除执行明细
// @Summary 删除执行明细
// @Tags 执行明细
// @Produce json
// @Param id path string true "项目ID"
// @Param lineItemID path string true "明细ID"
// @Success 200 {object} APIResponse
// @Router /projects/{id}/line-items/{lineItemID} [delete]
func (c *ProjectController) DeleteLineItem(w http.ResponseWriter, r *http.Request) {
	if err := c.projects.DeleteLineItem(chi.URLParam(r, "id"), chi.URLParam(r, "lineItemID")); err != nil {
		respondError(w, r, "删除执行明细失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("删除成功", nil))
}

func (c *ProjectController) validateScript(script string) error {
	if c.validator == nil || script == "" {
		return nil
	}
	if err := c.validator.ValidateMappingScript(script); err != nil {
		return fmt.Errorf("%w: %v", project.ErrInvalidInput, err)
	}
	return nil
}
