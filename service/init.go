/*
 * @module service/init
 * @description 服务初始化模块，负责数据库连接、迁移、可选中间件接入与各业务服务的组装
 * @architecture 分层架构 - 服务层
 * @stateFlow 数据库连接 -> 迁移与默认配置 -> Redis/Kafka/MQTT（按环境变量启用）-> 业务服务 -> 调度器
 * @rules 数据库不可用时启动失败；Redis、Kafka、MQTT 不可用时降级运行并记录日志
 * @dependencies gorm.io/gorm, gorm.io/driver/postgres
 * @refs main.go, api/routes.go
 */

package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"fieldwork-service/client/connectors"
	"fieldwork-service/client/panel"
	"fieldwork-service/client/quotagen"
	"fieldwork-service/service/config"
	"fieldwork-service/service/database"
	"fieldwork-service/service/distributed_lock"
	"fieldwork-service/service/event"
	"fieldwork-service/service/ingest"
	"fieldwork-service/service/panel_sync"
	"fieldwork-service/service/project"
	"fieldwork-service/service/quota_config"
	"fieldwork-service/service/rate_limiter"
	"fieldwork-service/service/scheduler"
	"fieldwork-service/service/tracking"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB                       *gorm.DB
	GlobalAppConfig          *config.AppConfig
	GlobalConfigService      *config.ConfigService
	GlobalEventService       *event.EventService
	GlobalProjectService     *project.Service
	GlobalQuotaConfigService *quota_config.Service
	GlobalTrackingService    *tracking.Service
	GlobalPanelSyncService   *panel_sync.Service
	GlobalWebhookKeyService  *ingest.KeyService
	GlobalSchedulerService   *scheduler.SchedulerService
	GlobalRateLimiter        rate_limiter.Limiter

	redisClient    *redis.Client
	kafkaConnector *connectors.KafkaConnector
	mqttConnector  *connectors.MQTTConnector
	consumerCancel context.CancelFunc
)

// InitServices 按启动配置初始化全部服务
func InitServices(cfg *config.AppConfig) error {
	GlobalAppConfig = cfg

	if err := initDatabase(); err != nil {
		return err
	}
	GlobalConfigService = config.NewConfigService(DB)
	if err := runMigrations(); err != nil {
		return err
	}

	initConnectors()
	initServices(cfg)
	startBackground(cfg)

	slog.Info("服务初始化完成")
	return nil
}

// initDatabase 初始化数据库连接
func initDatabase() error {
	var dsn string

	// 优先使用DATABASE_URL环境变量
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		dsn = databaseURL
	} else {
		host := getEnvWithDefault("DB_HOST", "localhost")
		port := getEnvWithDefault("DB_PORT", "5432")
		user := getEnvWithDefault("DB_USER", "postgres")
		password := getEnvWithDefault("DB_PASSWORD", "postgres")
		dbname := getEnvWithDefault("DB_NAME", "fieldwork")
		sslmode := getEnvWithDefault("DB_SSLMODE", "disable")
		schema := getEnvWithDefault("DB_SCHEMA", "public")

		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s search_path=%s TimeZone=UTC",
			host, port, user, password, dbname, sslmode, schema)
	}

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("数据库连接失败: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("获取数据库连接池失败: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	slog.Info("数据库连接成功")
	return nil
}

// getEnvWithDefault 获取环境变量，如果不存在则返回默认值
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// runMigrations 运行数据库迁移并写入缺失的默认配置
func runMigrations() error {
	slog.Info("开始运行数据库迁移")
	if err := database.AutoMigrate(DB); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	if err := database.InitializeData(DB, GlobalConfigService.DefaultSystemConfigs()); err != nil {
		return fmt.Errorf("基础数据初始化失败: %w", err)
	}
	slog.Info("数据库迁移完成")
	return nil
}

// initConnectors 按环境变量接入Redis、Kafka、MQTT
func initConnectors() {
	if cfg, ok := connectors.RedisConfigFromEnv(); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		client, err := connectors.NewRedisClient(ctx, cfg)
		cancel()
		if err != nil {
			slog.Warn("Redis不可用，分布式锁与限流已禁用", "address", cfg.Address, "error", err)
		} else {
			redisClient = client
		}
	}

	if cfg, ok := connectors.KafkaConfigFromEnv(); ok {
		kafkaConnector = connectors.NewKafkaConnector(cfg)
		slog.Info("已启用Kafka", "brokers", cfg.Brokers)
	}

	if cfg, ok := connectors.MQTTConfigFromEnv(); ok {
		mc := connectors.NewMQTTConnector(cfg)
		if err := mc.Connect(); err != nil {
			slog.Warn("MQTT不可用，网关回传订阅已禁用", "broker", cfg.Broker, "error", err)
		} else {
			mqttConnector = mc
		}
	}
}

// initServices 组装业务服务
func initServices(cfg *config.AppConfig) {
	GlobalEventService = event.NewEventService(DB)

	publishers := event.MultiPublisher{GlobalEventService}
	if kafkaConnector != nil && cfg.Ingest.KafkaEventsTopic != "" {
		publishers = append(publishers, event.NewKafkaPublisher(kafkaConnector, cfg.Ingest.KafkaEventsTopic))
	}

	var locker *distributed_lock.LockExecutor
	if redisClient != nil {
		locker = distributed_lock.NewLockExecutor(distributed_lock.NewRedisLock(redisClient))
		GlobalRateLimiter = rate_limiter.NewRedisRateLimiter(redisClient)
	}

	var generator quota_config.Generator
	if cfg.QuotaGenerator.BaseURL != "" {
		generator = quotagen.NewClient(quotagen.Config{
			BaseURL: cfg.QuotaGenerator.BaseURL,
			APIKey:  cfg.QuotaGenerator.APIKey,
			Timeout: cfg.QuotaGenerator.Timeout,
		})
	}

	GlobalProjectService = project.NewService(DB)
	GlobalQuotaConfigService = quota_config.NewService(DB, generator, publishers)
	GlobalTrackingService = tracking.NewService(DB, publishers, GlobalConfigService, locker)
	GlobalWebhookKeyService = ingest.NewKeyService(DB)
	GlobalPanelSyncService = panel_sync.NewService(DB, panel.NewClient(panel.Config{
		BaseURL:           cfg.Panel.BaseURL,
		APIKey:            cfg.Panel.APIKey,
		RequestsPerSecond: cfg.Panel.RequestsPerSecond,
		Burst:             cfg.Panel.Burst,
		Timeout:           cfg.Panel.Timeout,
	}), panel.NewMapper())
	GlobalSchedulerService = scheduler.NewSchedulerService(GlobalTrackingService)
}

// startBackground 启动监听器、消费者与调度器
func startBackground(cfg *config.AppConfig) {
	GlobalEventService.Start()

	var ctx context.Context
	ctx, consumerCancel = context.WithCancel(context.Background())

	if kafkaConnector != nil && cfg.Ingest.KafkaCompletionsTopic != "" {
		ingest.NewKafkaConsumer(kafkaConnector, cfg.Ingest.KafkaCompletionsTopic, GlobalTrackingService).Start(ctx)
	}
	if mqttConnector != nil && cfg.Ingest.MQTTTopic != "" {
		if err := ingest.NewMQTTSubscriber(mqttConnector, cfg.Ingest.MQTTTopic, GlobalTrackingService).Start(); err != nil {
			slog.Error("订阅网关回传主题失败", "topic", cfg.Ingest.MQTTTopic, "error", err)
		}
	}

	expr, err := GlobalConfigService.GetSystemConfig(config.ConfigKeyRebuildCron)
	if err != nil {
		slog.Error("读取重建cron失败", "error", err)
		return
	}
	if err := GlobalSchedulerService.Start(expr); err != nil {
		slog.Error("启动调度器服务失败", "cron", expr, "error", err)
	}
}

// StopStreams 关闭全部SSE连接
func StopStreams() {
	if GlobalEventService != nil {
		GlobalEventService.Stop()
	}
}

// Shutdown 按启动的逆序释放资源
func Shutdown() {
	if GlobalSchedulerService != nil {
		GlobalSchedulerService.Stop()
	}
	if consumerCancel != nil {
		consumerCancel()
	}
	if mqttConnector != nil {
		mqttConnector.Disconnect()
	}
	if kafkaConnector != nil {
		if err := kafkaConnector.Close(); err != nil {
			slog.Warn("关闭Kafka连接失败", "error", err)
		}
	}
	if GlobalEventService != nil {
		GlobalEventService.Stop()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if DB != nil {
		if sqlDB, err := DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	slog.Info("服务已关闭")
}
