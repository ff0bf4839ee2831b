/*
 * @module api/routes
 * @description API路由配置模块，负责初始化和配置所有HTTP路由
 * @architecture RESTful API架构
 * @stateFlow 无状态HTTP请求处理
 * @rules 网关回调需API Key鉴权；回调与供应商同步接口按调用方限流
 * @dependencies github.com/go-chi/chi/v5, github.com/go-chi/cors, github.com/go-chi/render
 * @refs service/init.go
 */

package api

import (
	"time"

	"fieldwork-service/api/controllers"
	apimiddleware "fieldwork-service/api/middleware"
	"fieldwork-service/service"
	"fieldwork-service/service/config"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
)

// InitRoute 初始化所有API路由
func InitRoute(r *chi.Mux) {
	// 基础中间件
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(render.SetContentType(render.ContentTypeJSON))

	// CORS配置
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token", apimiddleware.APIKeyHeader},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	limits := service.GlobalAppConfig.RateLimit
	proxyLimit := apimiddleware.RateLimit(service.GlobalRateLimiter, apimiddleware.RateLimitOptions{
		WindowSeconds: limits.WindowSeconds,
		CallerMax:     limits.CallerMax,
		GlobalMax:     limits.GlobalMax,
	})
	webhookLimit := apimiddleware.RateLimit(service.GlobalRateLimiter, apimiddleware.RateLimitOptions{
		WindowSeconds: 60,
		CallerMax:     limits.CallerMax,
		GlobalMax:     limits.GlobalMax,
		CallerMaxFunc: func() int {
			return service.GlobalConfigService.GetInt(config.ConfigKeyWebhookRateLimit)
		},
	})

	// 健康检查
	healthController := controllers.NewHealthController(service.DB)
	r.Get("/health", healthController.Health)
	r.Get("/ready", healthController.Ready)

	// 配额规划（不落库）
	r.Route("/quota", func(r chi.Router) {
		quotaController := controllers.NewQuotaController()
		r.Get("/modes", quotaController.ListModes)
		r.Get("/reference", quotaController.GetReference)
		r.Post("/plan", quotaController.Plan)
		r.Get("/complexity/{mode}", quotaController.GetComplexity)
		r.Post("/segment-code", quotaController.SegmentCode)
	})

	projectController := controllers.NewProjectController(service.GlobalProjectService, service.GlobalPanelSyncService)
	quotaConfigController := controllers.NewQuotaConfigController(service.GlobalQuotaConfigService)
	trackingController := controllers.NewTrackingController(service.GlobalTrackingService)
	webhookController := controllers.NewWebhookController(service.GlobalWebhookKeyService, service.GlobalProjectService, service.GlobalTrackingService)
	panelController := controllers.NewPanelController(service.GlobalPanelSyncService)

	// 项目管理
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", projectController.ListProjects)
		r.Post("/", projectController.CreateProject)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", projectController.GetProject)
			r.Put("/", projectController.UpdateProject)
			r.Delete("/", projectController.DeleteProject)

			// 执行明细
			r.Route("/line-items", func(r chi.Router) {
				r.Get("/", projectController.ListLineItems)
				r.Post("/", projectController.CreateLineItem)
				r.Get("/{lineItemID}", projectController.GetLineItem)
				r.Put("/{lineItemID}", projectController.UpdateLineItem)
				r.Delete("/{lineItemID}", projectController.DeleteLineItem)

				// 样本供应商同步
				r.With(proxyLimit).Post("/{lineItemID}/panel/push-quotas", panelController.PushQuotas)
				r.With(proxyLimit).Get("/{lineItemID}/panel/stats", panelController.GetStats)
			})

			// 配额配置
			r.Post("/quota-configuration", quotaConfigController.ApplyConfiguration)
			r.Get("/quota-configuration", quotaConfigController.GetConfiguration)
			r.Get("/segments", quotaConfigController.ListSegments)
			r.Get("/allocations", quotaConfigController.ListAllocations)

			// 回收进度
			r.Get("/progress", trackingController.GetProgress)
			r.Post("/progress/rebuild", trackingController.RebuildProgress)

			// 回调密钥
			r.Get("/webhook-keys", webhookController.ListKeys)
			r.Post("/webhook-keys", webhookController.CreateKey)
			r.Delete("/webhook-keys/{keyId}", webhookController.RevokeKey)
		})
	})

	// 网关回调
	r.Route("/webhooks", func(r chi.Router) {
		auth := apimiddleware.NewAPIKeyAuthMiddleware(service.GlobalWebhookKeyService, time.Minute)
		r.Use(webhookLimit)
		r.Use(auth.Middleware)
		r.Post("/completions", webhookController.RecordCompletion)
	})

	// SSE进度订阅
	eventController := controllers.NewEventController(service.GlobalEventService, service.GlobalProjectService)
	r.Get("/sse/projects/{id}", eventController.HandleSSE)

	// 系统配置
	r.Route("/config", func(r chi.Router) {
		configController := controllers.NewConfigController(service.GlobalConfigService, service.GlobalSchedulerService)
		r.Get("/", configController.GetAllConfigs)
		r.Put("/{key}", configController.UpdateConfig)
	})
}
