/*
 * @module service/config/config_service
 * @description 运行期配置服务，基于system_configs表提供可热更新的配置项
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 服务调用 -> 缓存 -> 数据库 -> 默认值
 * @rules 只允许登记过的配置键；写入前按键校验取值
 * @dependencies fieldwork-service/service/models, gorm.io/gorm, github.com/robfig/cron/v3, github.com/spf13/cast
 * @refs api/controllers/config_controller.go, service/scheduler/scheduler_service.go
 */

package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"fieldwork-service/service/models"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cast"
	"gorm.io/gorm"
)

// 运行期配置键
const (
	ConfigKeyRebuildCron        = "tracking.rebuild_cron"
	ConfigKeyRebuildLockTTL     = "tracking.rebuild_lock_ttl_seconds"
	ConfigKeyWebhookRateLimit   = "webhook.rate_limit_per_minute"
	ConfigKeyAllocationAutoFull = "tracking.mark_allocation_full"
)

var (
	ErrUnknownConfigKey   = errors.New("未知的配置项")
	ErrInvalidConfigValue = errors.New("配置值不合法")
)

type configDefinition struct {
	Default     string
	Description string
	ValueType   string
	validate    func(string) error
}

var definitions = map[string]configDefinition{
	ConfigKeyRebuildCron: {
		Default:     "0 */10 * * * *",
		Description: "进度汇总定时重建的cron表达式（含秒）",
		ValueType:   "cron",
		validate: func(v string) error {
			_, err := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor).Parse(v)
			return err
		},
	},
	ConfigKeyRebuildLockTTL: {
		Default:     "300",
		Description: "重建分布式锁的过期秒数",
		ValueType:   "int",
		validate:    positiveInt,
	},
	ConfigKeyWebhookRateLimit: {
		Default:     "120",
		Description: "回调接口每个调用方每分钟允许的请求数",
		ValueType:   "int",
		validate:    positiveInt,
	},
	ConfigKeyAllocationAutoFull: {
		Default:     "true",
		Description: "达到配额后是否自动将分配标记为已满",
		ValueType:   "bool",
		validate: func(v string) error {
			_, err := cast.ToBoolE(v)
			return err
		},
	},
}

func positiveInt(v string) error {
	n, err := cast.ToIntE(v)
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("必须为正整数")
	}
	return nil
}

type cacheEntry struct {
	value    string
	cachedAt time.Time
}

// ConfigService 配置服务
type ConfigService struct {
	db          *gorm.DB
	environment string
	cache       map[string]cacheEntry
	cacheExpiry time.Duration
	mu          sync.RWMutex
}

// NewConfigService 创建配置服务实例，环境取 APP_ENV（默认 default）
func NewConfigService(db *gorm.DB) *ConfigService {
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "default"
	}
	return &ConfigService{
		db:          db,
		environment: env,
		cache:       make(map[string]cacheEntry),
		cacheExpiry: 30 * time.Second,
	}
}

// DefaultSystemConfigs 默认配置记录，启动时写入缺失项
func (s *ConfigService) DefaultSystemConfigs() []models.SystemConfig {
	keys := sortedKeys()
	items := make([]models.SystemConfig, 0, len(keys))
	for _, key := range keys {
		def := definitions[key]
		items = append(items, models.SystemConfig{
			Key:         key,
			Value:       def.Default,
			Environment: s.environment,
			Description: def.Description,
		})
	}
	return items
}

// GetSystemConfig 获取配置值：缓存 -> 数据库 -> 默认值
func (s *ConfigService) GetSystemConfig(key string) (string, error) {
	def, ok := definitions[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownConfigKey, key)
	}

	s.mu.RLock()
	entry, hit := s.cache[key]
	s.mu.RUnlock()
	if hit && time.Since(entry.cachedAt) < s.cacheExpiry {
		return entry.value, nil
	}

	value := def.Default
	var record models.SystemConfig
	err := s.db.Where("key = ? AND environment = ?", key, s.environment).First(&record).Error
	switch {
	case err == nil:
		value = record.Value
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return "", fmt.Errorf("查询配置失败: %w", err)
	}

	s.mu.Lock()
	s.cache[key] = cacheEntry{value: value, cachedAt: time.Now()}
	s.mu.Unlock()
	return value, nil
}

// GetInt 获取整型配置，解析失败时返回默认值
func (s *ConfigService) GetInt(key string) int {
	value, err := s.GetSystemConfig(key)
	if err == nil {
		if n, err := cast.ToIntE(value); err == nil {
			return n
		}
	}
	return cast.ToInt(definitions[key].Default)
}

// GetBool 获取布尔配置，解析失败时返回默认值
func (s *ConfigService) GetBool(key string) bool {
	value, err := s.GetSystemConfig(key)
	if err == nil {
		if b, err := cast.ToBoolE(value); err == nil {
			return b
		}
	}
	return cast.ToBool(definitions[key].Default)
}

// SetSystemConfig 校验并写入配置
func (s *ConfigService) SetSystemConfig(key, value, description string) error {
	def, ok := definitions[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConfigKey, key)
	}
	if err := def.validate(value); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfigValue, key, err)
	}
	if description == "" {
		description = def.Description
	}

	var record models.SystemConfig
	err := s.db.Where("key = ? AND environment = ?", key, s.environment).First(&record).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		record = models.SystemConfig{Key: key, Value: value, Environment: s.environment, Description: description}
		err = s.db.Create(&record).Error
	case err == nil:
		err = s.db.Model(&record).Updates(map[string]interface{}{"value": value, "description": description}).Error
	}
	if err != nil {
		return fmt.Errorf("保存配置失败: %w", err)
	}

	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
	return nil
}

// GetAllSystemConfigs 获取全部登记的配置项（含未落库的默认值）
func (s *ConfigService) GetAllSystemConfigs() ([]models.SystemConfigItem, error) {
	var records []models.SystemConfig
	if err := s.db.Where("environment = ?", s.environment).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("查询配置失败: %w", err)
	}
	stored := make(map[string]models.SystemConfig, len(records))
	for _, r := range records {
		stored[r.Key] = r
	}

	items := make([]models.SystemConfigItem, 0, len(definitions))
	for _, key := range sortedKeys() {
		def := definitions[key]
		item := models.SystemConfigItem{Key: key, Value: def.Default, Description: def.Description, ValueType: def.ValueType}
		if r, ok := stored[key]; ok {
			item.Value = r.Value
			if r.Description != "" {
				item.Description = r.Description
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// ClearCache 清除配置缓存
func (s *ConfigService) ClearCache() {
	s.mu.Lock()
	s.cache = make(map[string]cacheEntry)
	s.mu.Unlock()
}

func sortedKeys() []string {
	keys := make([]string, 0, len(definitions))
	for k := range definitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
