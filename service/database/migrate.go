/*
 * @module service/database/migrate
 * @description 数据库迁移模块，负责创建和更新数据库表结构
 * @architecture 数据访问层 - 迁移管理
 * @stateFlow 应用启动时执行数据库迁移
 * @rules 确保数据库结构与模型定义保持一致
 * @dependencies fieldwork-service/service/models, gorm.io/gorm
 * @refs service/init.go
 */

package database

import (
	"fieldwork-service/service/models"
	"log/slog"

	"gorm.io/gorm"
)

// AllModels 需要迁移的全部模型
func AllModels() []interface{} {
	return []interface{}{
		&models.Project{},
		&models.LineItem{},
		&models.QuotaConfiguration{},
		&models.QuotaSegment{},
		&models.QuotaAllocation{},
		&models.SegmentTracking{},
		&models.ResponseRecord{},
		&models.WebhookKey{},
		&models.SystemConfig{},
	}
}

// AutoMigrate 自动迁移数据库表结构
func AutoMigrate(db *gorm.DB) error {
	slog.Info("开始数据库迁移")

	// 项目与明细
	if err := db.AutoMigrate(&models.Project{}, &models.LineItem{}); err != nil {
		return err
	}

	// 配额配置与跟踪
	err := db.AutoMigrate(
		&models.QuotaConfiguration{},
		&models.QuotaSegment{},
		&models.QuotaAllocation{},
		&models.SegmentTracking{},
		&models.ResponseRecord{},
	)
	if err != nil {
		return err
	}

	// 回调密钥与系统配置
	if err := db.AutoMigrate(&models.WebhookKey{}, &models.SystemConfig{}); err != nil {
		return err
	}

	slog.Info("数据库迁移完成")
	return nil
}

// InitializeData 初始化默认运行期配置
func InitializeData(db *gorm.DB, defaults []models.SystemConfig) error {
	for _, item := range defaults {
		var count int64
		if err := db.Model(&models.SystemConfig{}).
			Where("key = ? AND environment = ?", item.Key, item.Environment).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		record := item
		if err := db.Create(&record).Error; err != nil {
			return err
		}
		slog.Debug("写入默认配置", "key", item.Key, "value", item.Value)
	}
	return nil
}
