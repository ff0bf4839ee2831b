/*
 * @module service/models/project
 * @description 调研项目与执行明细（line item）模型
 * @architecture DDD领域驱动设计 - 实体模型
 * @stateFlow 项目: draft -> fielding -> paused -> closed；明细: draft -> live -> paused -> complete
 * @rules 遵循数据库设计规范，ID使用UUID
 * @dependencies gorm.io/gorm, github.com/google/uuid, github.com/shopspring/decimal
 * @refs service/project/service.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 项目状态
const (
	ProjectStatusDraft    = "draft"
	ProjectStatusFielding = "fielding"
	ProjectStatusPaused   = "paused"
	ProjectStatusClosed   = "closed"
)

// 执行渠道
const (
	ChannelPanel = "panel"
	ChannelSMS   = "sms"
	ChannelVoice = "voice"
)

// 明细状态
const (
	LineItemStatusDraft    = "draft"
	LineItemStatusLive     = "live"
	LineItemStatusPaused   = "paused"
	LineItemStatusComplete = "complete"
)

// Project 调研项目
type Project struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name        string    `json:"name" gorm:"not null;size:255"`
	ClientName  string    `json:"client_name" gorm:"size:255"`
	Description string    `json:"description" gorm:"size:1000"`
	Status      string    `json:"status" gorm:"not null;default:'draft';size:20;index"`
	CreatedBy   string    `json:"created_by" gorm:"size:100"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// 关联关系
	LineItems []LineItem `json:"line_items,omitempty" gorm:"foreignKey:ProjectID"`
}

// LineItem 项目执行明细，一个渠道一条
type LineItem struct {
	ID               string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProjectID        string          `json:"project_id" gorm:"not null;type:varchar(36);index"`
	Name             string          `json:"name" gorm:"not null;size:255"`
	Channel          string          `json:"channel" gorm:"not null;size:20"`
	TargetSampleSize int             `json:"target_sample_size" gorm:"not null"`
	CostPerComplete  decimal.Decimal `json:"cost_per_complete" gorm:"type:numeric(12,2);not null;default:0"`
	ExternalSurveyID string          `json:"external_survey_id" gorm:"size:100"`
	MappingScript    string          `json:"mapping_script,omitempty" gorm:"type:text"` // 供应商定向映射脚本（yaegi）
	Status           string          `json:"status" gorm:"not null;default:'draft';size:20"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// BeforeCreate GORM钩子，创建前生成UUID
func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}

func (li *LineItem) BeforeCreate(tx *gorm.DB) error {
	if li.ID == "" {
		li.ID = uuid.New().String()
	}
	return nil
}
