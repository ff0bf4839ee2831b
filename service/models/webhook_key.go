/*
 * @module service/models/webhook_key
 * @description 短信/语音网关回调密钥模型，仅保存bcrypt哈希
 * @architecture DDD领域驱动设计 - 实体模型
 * @stateFlow 创建(返回明文一次) -> 使用 -> 吊销
 * @rules 明文密钥不落库
 * @dependencies gorm.io/gorm, github.com/google/uuid
 * @refs service/ingest/webhook.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	WebhookKeyStatusActive  = "active"
	WebhookKeyStatusRevoked = "revoked"
)

// WebhookKey 回调密钥
type WebhookKey struct {
	ID         string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProjectID  string     `json:"project_id" gorm:"not null;type:varchar(36);index"`
	Name       string     `json:"name" gorm:"not null;size:255"`
	KeyPrefix  string     `json:"key_prefix" gorm:"not null;size:20;index"`
	KeyHash    string     `json:"-" gorm:"not null;size:255"`
	Status     string     `json:"status" gorm:"not null;default:'active';size:20"`
	LastUsedAt *time.Time `json:"last_used_at"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (k *WebhookKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.New().String()
	}
	return nil
}
