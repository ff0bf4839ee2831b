/*
 * @module service/models/quota
 * @description 配额配置、配额分段、配额分配与分段进度跟踪模型
 * @architecture DDD领域驱动设计 - 实体模型
 * @stateFlow 配置生成 -> 分段写入 -> 按明细分配 -> 回收完成数实时累计
 * @rules 每个项目仅一个配额配置；跟踪记录以 (project, segment, allocation) 唯一
 * @dependencies gorm.io/gorm, github.com/google/uuid, github.com/shopspring/decimal
 * @refs service/quota_config/service.go, service/tracking/service.go
 */

package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 配额来源
const (
	QuotaSourceLocal     = "local"
	QuotaSourceGenerator = "generator"
)

// 分配状态
const (
	AllocationStatusOpen = "open"
	AllocationStatusFull = "full"
)

// QuotaConfiguration 项目配额配置
type QuotaConfiguration struct {
	ID                 string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProjectID          string    `json:"project_id" gorm:"not null;type:varchar(36);uniqueIndex"`
	Geography          string    `json:"geography" gorm:"not null;size:50"`
	GeographyDetail    string    `json:"geography_detail" gorm:"size:100"`
	QuotaMode          string    `json:"quota_mode" gorm:"not null;size:50"`
	Source             string    `json:"source" gorm:"not null;default:'local';size:20"`
	TargetSampleSize   int       `json:"target_sample_size" gorm:"not null"`
	AdjustedSampleSize int       `json:"adjusted_sample_size" gorm:"not null"`
	TotalCells         int       `json:"total_cells" gorm:"not null"`
	ComplexityLevel    string    `json:"complexity_level" gorm:"not null;size:20"`
	SampleMultiplier   float64   `json:"sample_multiplier" gorm:"not null"`
	Structure          JSONB     `json:"structure" gorm:"type:jsonb"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`

	// 关联关系
	Segments []QuotaSegment `json:"segments,omitempty" gorm:"foreignKey:ConfigurationID"`
}

// QuotaSegment 配额分段（一个单元格）
type QuotaSegment struct {
	ID                string  `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ConfigurationID   string  `json:"configuration_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_segment_config_code"`
	ProjectID         string  `json:"project_id" gorm:"not null;type:varchar(36);index"`
	Category          string  `json:"category" gorm:"not null;size:50"`
	Name              string  `json:"name" gorm:"not null;size:255"`
	Code              string  `json:"code" gorm:"not null;size:255;uniqueIndex:idx_segment_config_code"`
	PopulationPercent float64 `json:"population_percent" gorm:"not null"`
	TargetCount       int     `json:"target_count" gorm:"not null"`
	SortOrder         int     `json:"sort_order" gorm:"not null;default:0"`
}

// QuotaAllocation 明细在某个分段上的配额
type QuotaAllocation struct {
	ID           string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProjectID    string    `json:"project_id" gorm:"not null;type:varchar(36);index"`
	LineItemID   string    `json:"line_item_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_allocation_line_segment"`
	SegmentID    string    `json:"segment_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_allocation_line_segment"`
	QuotaCount   int       `json:"quota_count" gorm:"not null"`
	CurrentCount int       `json:"current_count" gorm:"not null;default:0"`
	Status       string    `json:"status" gorm:"not null;default:'open';size:20"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SegmentTracking 分段实时进度汇总
type SegmentTracking struct {
	ID             string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProjectID      string          `json:"project_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_tracking_key"`
	SegmentID      string          `json:"segment_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_tracking_key"`
	AllocationID   string          `json:"allocation_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_tracking_key"`
	QuotaCount     int             `json:"quota_count" gorm:"not null"`
	CurrentCount   int             `json:"current_count" gorm:"not null;default:0"`
	CompletionRate float64         `json:"completion_rate" gorm:"not null;default:0"`
	CostTracking   decimal.Decimal `json:"cost_tracking" gorm:"type:numeric(14,2);not null;default:0"`
	LastResponseAt *time.Time      `json:"last_response_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// ResponseRecord 单条完成记录，(line_item_id, respondent_id) 唯一保证回收幂等
type ResponseRecord struct {
	ID           string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	ProjectID    string          `json:"project_id" gorm:"not null;type:varchar(36);index"`
	LineItemID   string          `json:"line_item_id" gorm:"not null;type:varchar(36);uniqueIndex:idx_response_respondent"`
	RespondentID string          `json:"respondent_id" gorm:"not null;size:255;uniqueIndex:idx_response_respondent"`
	SegmentCode  string          `json:"segment_code" gorm:"not null;size:255"`
	Channel      string          `json:"channel" gorm:"size:20"`
	Cost         decimal.Decimal `json:"cost" gorm:"type:numeric(12,2);not null;default:0"`
	ReceivedAt   time.Time       `json:"received_at"`
}

// CompletionRate 完成率；配额为0时为0
func CompletionRate(current, quota int) float64 {
	if quota <= 0 {
		return 0
	}
	return float64(current) / float64(quota)
}

func (c *QuotaConfiguration) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

func (s *QuotaSegment) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

func (a *QuotaAllocation) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

func (st *SegmentTracking) BeforeCreate(tx *gorm.DB) error {
	if st.ID == "" {
		st.ID = uuid.New().String()
	}
	return nil
}

func (r *ResponseRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
