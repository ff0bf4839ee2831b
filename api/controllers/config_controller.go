/*
 * @module api/controllers/config_controller
 * @description 配置管理控制器，提供运行期配置的查询与修改
 * @architecture RESTful API架构
 * @stateFlow HTTP请求 -> 控制器 -> 配置服务 -> 数据库
 * @rules 修改重建cron后立即重新注册定时任务
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/render
 * @refs service/config/config_service.go
 */

package controllers

import (
	"log/slog"
	"net/http"
	"time"

	"fieldwork-service/service/config"
	"fieldwork-service/service/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// Rescheduler 重建任务重新注册
type Rescheduler interface {
	Reschedule(expr string) error
	NextRun() time.Time
}

// ConfigController 配置控制器
type ConfigController struct {
	configs   *config.ConfigService
	scheduler Rescheduler
}

// NewConfigController 创建配置控制器实例，scheduler 可为空
func NewConfigController(configs *config.ConfigService, scheduler Rescheduler) *ConfigController {
	return &ConfigController{configs: configs, scheduler: scheduler}
}

// UpdateConfigRequest 更新配置请求
type UpdateConfigRequest struct {
	Value       string `json:"value" example:"0 */5 * * * *"`
	Description string `json:"description,omitempty"`
}

// GetAllConfigs 获取所有配置
// @Summary 获取所有系统配置
// @Description 返回全部登记的配置项，未修改过的配置项返回默认值
// @Tags 系统配置
// @Produce json
// @Success 200 {object} APIResponse{data=[]models.SystemConfigItem}
// @Router /config [get]
func (c *ConfigController) GetAllConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := c.configs.GetAllSystemConfigs()
	if err != nil {
		respondError(w, r, "获取配置失败", err)
		return
	}
	render.Render(w, r, SuccessResponse("获取配置成功", configs))
}

// UpdateConfig 更新配置
// @Summary 更新配置
// @Description 更新指定键的配置值，取值按配置项类型校验
// @Tags 系统配置
// @Accept json
// @Produce json
// @Param key path string true "配置键" example(tracking.rebuild_cron)
// @Param request body UpdateConfigRequest true "更新配置请求"
// @Success 200 {object} APIResponse{data=models.SystemConfigItem}
// @Failure 400 {object} APIResponse
// @Router /config/{key} [put]
func (c *ConfigController) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var req UpdateConfigRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		render.Render(w, r, BadRequestResponse("请求参数错误", err))
		return
	}

	if err := c.configs.SetSystemConfig(key, req.Value, req.Description); err != nil {
		respondError(w, r, "更新配置失败", err)
		return
	}

	if key == config.ConfigKeyRebuildCron && c.scheduler != nil {
		if err := c.scheduler.Reschedule(req.Value); err != nil {
			slog.Error("重新注册进度重建任务失败", "cron", req.Value, "error", err)
		} else {
			slog.Info("进度重建任务已重新注册", "cron", req.Value, "next_run", c.scheduler.NextRun())
		}
	}

	render.Render(w, r, SuccessResponse("更新配置成功", models.SystemConfigItem{
		Key:         key,
		Value:       req.Value,
		Description: req.Description,
	}))
}
