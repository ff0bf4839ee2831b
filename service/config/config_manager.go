/*
 * @module service/config/config_manager
 * @description 启动配置加载：默认值 -> .env -> YAML配置文件 -> 环境变量覆盖
 * @architecture 分层架构 - 配置层
 * @stateFlow 应用启动 -> LoadAppConfig -> 各组件按配置初始化
 * @rules 环境变量优先级最高；配置文件不存在时仅使用默认值与环境变量
 * @dependencies gopkg.in/yaml.v3, github.com/joho/godotenv, github.com/spf13/cast
 * @refs main.go, service/init.go
 */

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// AppConfig 应用启动配置
type AppConfig struct {
	Server         ServerConfig         `yaml:"server"`
	QuotaGenerator QuotaGeneratorConfig `yaml:"quota_generator"`
	Panel          PanelConfig          `yaml:"panel"`
	Ingest         IngestConfig         `yaml:"ingest"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
}

// ServerConfig HTTP服务配置
type ServerConfig struct {
	BaseContext string `yaml:"base_context"`
	ListenPort  string `yaml:"listen_port"`
	LogLevel    string `yaml:"log_level"`
}

// QuotaGeneratorConfig 外部配额生成服务
type QuotaGeneratorConfig struct {
	BaseURL string        `yaml:"base_url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// PanelConfig 样本供应商接口
type PanelConfig struct {
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	Timeout           time.Duration `yaml:"timeout"`
}

// IngestConfig 回收数据接入
type IngestConfig struct {
	KafkaCompletionsTopic string `yaml:"kafka_completions_topic"`
	KafkaEventsTopic      string `yaml:"kafka_events_topic"`
	MQTTTopic             string `yaml:"mqtt_topic"`
}

// RateLimitConfig 入站接口限流
type RateLimitConfig struct {
	WindowSeconds int `yaml:"window_seconds"`
	CallerMax     int `yaml:"caller_max"`
	GlobalMax     int `yaml:"global_max"`
}

// DefaultAppConfig 默认配置
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{BaseContext: "", ListenPort: "80", LogLevel: "info"},
		QuotaGenerator: QuotaGeneratorConfig{
			Timeout: 15 * time.Second,
		},
		Panel: PanelConfig{
			RequestsPerSecond: 5,
			Burst:             1,
			Timeout:           30 * time.Second,
		},
		Ingest: IngestConfig{
			KafkaCompletionsTopic: "panel.completions",
			KafkaEventsTopic:      "fieldwork.events",
			MQTTTopic:             "fieldwork/+/completions",
		},
		RateLimit: RateLimitConfig{WindowSeconds: 60, CallerMax: 120, GlobalMax: 3000},
	}
}

// LoadAppConfig 加载启动配置；path 为空时读取 CONFIG_FILE
func LoadAppConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("加载.env文件失败", "error", err)
	}

	cfg := DefaultAppConfig()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
		slog.Info("已加载配置文件", "path", path)
	}

	applyEnvironmentOverrides(cfg)
	return cfg, nil
}

func applyEnvironmentOverrides(cfg *AppConfig) {
	setString := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	setString(&cfg.Server.BaseContext, "BASE_CONTEXT")
	setString(&cfg.Server.ListenPort, "LISTEN_PORT")
	setString(&cfg.Server.LogLevel, "LOG_LEVEL")
	setString(&cfg.QuotaGenerator.BaseURL, "QUOTA_GENERATOR_URL")
	setString(&cfg.QuotaGenerator.APIKey, "QUOTA_GENERATOR_API_KEY")
	setString(&cfg.Panel.BaseURL, "PANEL_API_URL")
	setString(&cfg.Panel.APIKey, "PANEL_API_KEY")
	setString(&cfg.Ingest.KafkaCompletionsTopic, "KAFKA_COMPLETIONS_TOPIC")
	setString(&cfg.Ingest.KafkaEventsTopic, "KAFKA_EVENTS_TOPIC")
	setString(&cfg.Ingest.MQTTTopic, "MQTT_COMPLETIONS_TOPIC")

	if v, ok := os.LookupEnv("PANEL_RPS"); ok {
		if rps, err := cast.ToFloat64E(v); err == nil && rps > 0 {
			cfg.Panel.RequestsPerSecond = rps
		}
	}
	if v, ok := os.LookupEnv("RATE_LIMIT_CALLER_MAX"); ok {
		if n, err := cast.ToIntE(v); err == nil && n > 0 {
			cfg.RateLimit.CallerMax = n
		}
	}
}
