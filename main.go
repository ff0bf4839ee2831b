package main

import (
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"fieldwork-service/api"
	_ "fieldwork-service/docs"
	"fieldwork-service/logger"
	"fieldwork-service/service"
	"fieldwork-service/service/config"

	daprd "github.com/dapr/go-sdk/service/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// @title 调研执行配额服务 API
// @version 1.0
// @description 调研项目配额规划、配额分配、回收进度跟踪与样本供应商同步
// @BasePath /swagger/fieldwork-service
func main() {
	cfg, err := config.LoadAppConfig("")
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	logger.InitLogger(cfg.Server.LogLevel)

	if err := service.InitServices(cfg); err != nil {
		slog.Error("服务初始化失败", "error", err)
		os.Exit(1)
	}

	mux := chi.NewRouter()

	// 如果有BASE_CONTEXT，则在该路径下挂载所有路由
	if cfg.Server.BaseContext != "" {
		mux.Route(cfg.Server.BaseContext, func(r chi.Router) {
			subMux := r.(*chi.Mux)
			api.InitRoute(subMux)
			r.Handle("/metrics", promhttp.Handler())
			r.Handle("/swagger*", httpSwagger.WrapHandler)
		})
	} else {
		api.InitRoute(mux)
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/swagger*", httpSwagger.WrapHandler)
	}

	s := daprd.NewServiceWithMux(":"+cfg.Server.ListenPort, mux)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		slog.Info("收到退出信号，开始关闭服务")
		// 先断开SSE长连接，否则优雅关闭会一直等待
		service.StopStreams()
		if err := s.GracefulStop(); err != nil {
			slog.Warn("HTTP服务关闭失败", "error", err)
		}
		service.Shutdown()
	}()

	slog.Info("服务启动", "port", cfg.Server.ListenPort, "base_context", cfg.Server.BaseContext)
	if err := s.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("error: %v", err)
	}
	<-stopped
}
