/*
 * @module service/tracking/service
 * @description 配额进度跟踪服务：登记完成记录、累计分配与分段汇总、重建汇总、查询项目进度
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 完成事件 -> 幂等登记 -> 分配计数+1 -> 汇总更新 -> 事件推送
 * @rules (line_item_id, respondent_id) 唯一；达到配额时分配标记为 full；重建以完成记录为准
 * @dependencies gorm.io/gorm, github.com/shopspring/decimal
 * @refs service/ingest, api/controllers/tracking_controller.go
 */

package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fieldwork-service/service/config"
	"fieldwork-service/service/distributed_lock"
	"fieldwork-service/service/event"
	"fieldwork-service/service/metrics"
	"fieldwork-service/service/models"
	"fieldwork-service/service/project"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrInvalidEvent        = errors.New("完成事件缺少必要字段")
	ErrDuplicateCompletion = errors.New("重复的完成记录")
	ErrUnknownSegment      = errors.New("未知的配额分段")
	ErrRebuildInProgress   = errors.New("进度汇总正在其他实例重建")
)

// Settings 运行期配置读取
type Settings interface {
	GetInt(key string) int
	GetBool(key string) bool
}

// CompletionEvent 一条完成事件，三种接入渠道共用
type CompletionEvent struct {
	ProjectID    string          `json:"project_id"`
	LineItemID   string          `json:"line_item_id"`
	SegmentCode  string          `json:"segment_code"`
	RespondentID string          `json:"respondent_id"`
	Channel      string          `json:"channel"`
	Cost         decimal.Decimal `json:"cost"`
	CompletedAt  time.Time       `json:"completed_at"`
}

// CompletionResult 登记结果
type CompletionResult struct {
	ResponseID     string  `json:"response_id"`
	SegmentID      string  `json:"segment_id,omitempty"`
	AllocationID   string  `json:"allocation_id,omitempty"`
	CurrentCount   int     `json:"current_count"`
	QuotaCount     int     `json:"quota_count"`
	CompletionRate float64 `json:"completion_rate"`
	Full           bool    `json:"full"`
}

// Service 进度跟踪服务
type Service struct {
	db        *gorm.DB
	publisher event.Publisher
	settings  Settings
	locker    *distributed_lock.LockExecutor
}

// NewService 创建进度跟踪服务；locker 为空时重建不加分布式锁
func NewService(db *gorm.DB, publisher event.Publisher, settings Settings, locker *distributed_lock.LockExecutor) *Service {
	return &Service{db: db, publisher: publisher, settings: settings, locker: locker}
}

// RecordCompletion 登记一条完成记录并更新对应分配与汇总
func (s *Service) RecordCompletion(ctx context.Context, ev CompletionEvent) (result *CompletionResult, err error) {
	channel := ev.Channel
	if channel == "" {
		channel = "unknown"
	}
	defer func() {
		label := "ok"
		switch {
		case errors.Is(err, ErrDuplicateCompletion):
			label = "duplicate"
		case err != nil:
			label = "error"
		}
		metrics.CompletionsTotal.WithLabelValues(channel, label).Inc()
	}()

	ev.SegmentCode = strings.ToUpper(strings.TrimSpace(ev.SegmentCode))
	if ev.ProjectID == "" || ev.LineItemID == "" || ev.SegmentCode == "" || ev.RespondentID == "" {
		return nil, ErrInvalidEvent
	}
	if ev.CompletedAt.IsZero() {
		ev.CompletedAt = time.Now()
	}

	result = &CompletionResult{}
	var becameFull bool
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lineItem models.LineItem
		if err := tx.First(&lineItem, "id = ? AND project_id = ?", ev.LineItemID, ev.ProjectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return project.ErrLineItemNotFound
			}
			return err
		}
		if ev.Channel == "" {
			ev.Channel = lineItem.Channel
		}
		cost := ev.Cost
		if cost.IsZero() {
			cost = lineItem.CostPerComplete
		}

		segment, err := findSegment(tx, ev.ProjectID, ev.SegmentCode)
		if err != nil {
			return err
		}

		var existing int64
		if err := tx.Model(&models.ResponseRecord{}).
			Where("line_item_id = ? AND respondent_id = ?", ev.LineItemID, ev.RespondentID).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrDuplicateCompletion
		}

		record := &models.ResponseRecord{
			ProjectID:    ev.ProjectID,
			LineItemID:   ev.LineItemID,
			RespondentID: ev.RespondentID,
			SegmentCode:  ev.SegmentCode,
			Channel:      ev.Channel,
			Cost:         cost,
			ReceivedAt:   ev.CompletedAt,
		}
		if err := createResponseRecord(tx, record); err != nil {
			return err
		}
		result.ResponseID = record.ID
		result.SegmentID = segment.ID

		var allocation models.QuotaAllocation
		err = tx.First(&allocation, "line_item_id = ? AND segment_id = ?", ev.LineItemID, segment.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Warn("明细在该分段上没有配额分配，仅登记完成记录",
				"line_item_id", ev.LineItemID, "segment_code", ev.SegmentCode)
			return nil
		}
		if err != nil {
			return err
		}

		if err := tx.Model(&models.QuotaAllocation{}).Where("id = ?", allocation.ID).
			Update("current_count", gorm.Expr("current_count + 1")).Error; err != nil {
			return err
		}
		if err := tx.First(&allocation, "id = ?", allocation.ID).Error; err != nil {
			return err
		}
		if allocation.Status != models.AllocationStatusFull &&
			allocation.QuotaCount > 0 && allocation.CurrentCount >= allocation.QuotaCount &&
			s.markFull() {
			if err := tx.Model(&allocation).Update("status", models.AllocationStatusFull).Error; err != nil {
				return err
			}
			becameFull = true
		}

		rate := models.CompletionRate(allocation.CurrentCount, allocation.QuotaCount)
		if err := tx.Model(&models.SegmentTracking{}).
			Where("project_id = ? AND segment_id = ? AND allocation_id = ?", ev.ProjectID, segment.ID, allocation.ID).
			Updates(map[string]interface{}{
				"current_count":    allocation.CurrentCount,
				"completion_rate":  rate,
				"cost_tracking":    gorm.Expr("cost_tracking + ?", cost),
				"last_response_at": ev.CompletedAt,
			}).Error; err != nil {
			return fmt.Errorf("更新进度汇总失败: %w", err)
		}

		result.AllocationID = allocation.ID
		result.CurrentCount = allocation.CurrentCount
		result.QuotaCount = allocation.QuotaCount
		result.CompletionRate = rate
		result.Full = becameFull || allocation.Status == models.AllocationStatusFull
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(models.EventQuotaProgress, ev.ProjectID, map[string]interface{}{
		"line_item_id":    ev.LineItemID,
		"segment_code":    ev.SegmentCode,
		"current_count":   result.CurrentCount,
		"quota_count":     result.QuotaCount,
		"completion_rate": result.CompletionRate,
	})
	if becameFull {
		slog.Info("配额分配已满", "project_id", ev.ProjectID, "line_item_id", ev.LineItemID, "segment_code", ev.SegmentCode)
		s.publish(models.EventQuotaFull, ev.ProjectID, map[string]interface{}{
			"line_item_id":  ev.LineItemID,
			"segment_code":  ev.SegmentCode,
			"allocation_id": result.AllocationID,
		})
	}
	return result, nil
}

// findSegment 在项目当前配置中按编码查找分段
// createResponseRecord 写入完成记录；并发重放撞上唯一索引时同样返回 ErrDuplicateCompletion
//
// 依赖 gorm.Config.TranslateError 将驱动的唯一约束错误转换为 gorm.ErrDuplicatedKey。
func createResponseRecord(tx *gorm.DB, record *models.ResponseRecord) error {
	if err := tx.Create(record).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateCompletion
		}
		return fmt.Errorf("保存完成记录失败: %w", err)
	}
	return nil
}

func findSegment(tx *gorm.DB, projectID, code string) (*models.QuotaSegment, error) {
	var config models.QuotaConfiguration
	if err := tx.Select("id").First(&config, "project_id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: 项目尚未配置配额", ErrUnknownSegment)
		}
		return nil, err
	}

	var segment models.QuotaSegment
	if err := tx.First(&segment, "configuration_id = ? AND code = ?", config.ID, code).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSegment, code)
		}
		return nil, err
	}
	return &segment, nil
}

func (s *Service) markFull() bool {
	if s.settings == nil {
		return true
	}
	return s.settings.GetBool(config.ConfigKeyAllocationAutoFull)
}

func (s *Service) publish(eventType, projectID string, data map[string]interface{}) {
	if s.publisher == nil {
		return
	}
	s.publisher.Publish(&models.FieldworkEvent{Type: eventType, ProjectID: projectID, Data: data})
}
