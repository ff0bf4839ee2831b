/*
 * @module service/quota_config/service
 * @description 项目配额配置服务：生成配额方案并落库为配置、分段、分配与进度跟踪记录
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 参数解析 -> 本地规划/外部生成 -> 事务内替换旧配置 -> 发布 quota_configured 事件
 * @rules 每个项目仅一份配置；已有回收数据的项目不可重新配置；分配按明细目标样本量比例四舍五入
 * @dependencies gorm.io/gorm, fieldwork-service/service/quota, fieldwork-service/client/quotagen
 * @refs api/controllers/quota_config_controller.go, service/tracking/service.go
 */

package quota_config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"fieldwork-service/client/quotagen"
	"fieldwork-service/service/event"
	"fieldwork-service/service/metrics"
	"fieldwork-service/service/models"
	"fieldwork-service/service/project"
	"fieldwork-service/service/quota"

	"gorm.io/gorm"
)

var (
	ErrConfigurationNotFound = errors.New("项目尚未配置配额")
	ErrInvalidRequest        = errors.New("配额配置参数无效")
	ErrGeneratorFailed       = errors.New("外部配额生成服务调用失败")
)

// Generator 外部配额生成服务
type Generator interface {
	Generate(ctx context.Context, req quotagen.GenerateRequest) ([]quota.QuotaCell, error)
}

// ApplyRequest 配额配置请求
type ApplyRequest struct {
	Geography        string `json:"geography" example:"National"`
	GeographyDetail  string `json:"geography_detail,omitempty" example:"NSW"`
	QuotaMode        string `json:"quota_mode" example:"non-interlocking"`
	TargetSampleSize int    `json:"target_sample_size" example:"1000"`
	Source           string `json:"source,omitempty" example:"local"` // local|generator，默认local
}

// ConfigurationResult 配置结果
type ConfigurationResult struct {
	Configuration *models.QuotaConfiguration `json:"configuration"`
	Segments      []models.QuotaSegment      `json:"segments"`
	Allocations   int                        `json:"allocations"`
	Warnings      []string                   `json:"warnings,omitempty"`
}

// Service 配额配置服务
type Service struct {
	db        *gorm.DB
	generator Generator
	publisher event.Publisher
}

// NewService 创建配额配置服务；generator 为空时一律使用本地规划
func NewService(db *gorm.DB, generator Generator, publisher event.Publisher) *Service {
	return &Service{db: db, generator: generator, publisher: publisher}
}

// ApplyQuotaConfiguration 生成并替换项目的配额配置
func (s *Service) ApplyQuotaConfiguration(ctx context.Context, projectID string, req ApplyRequest) (*ConfigurationResult, error) {
	var p models.Project
	if err := s.db.First(&p, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, project.ErrProjectNotFound
		}
		return nil, err
	}

	planReq, source, err := parseRequest(req)
	if err != nil {
		return nil, err
	}

	plan, err := quota.Plan(planReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	cells := plan.Cells
	if source == models.QuotaSourceGenerator {
		if s.generator == nil {
			slog.Warn("未配置外部配额生成服务，使用本地规划", "project_id", projectID)
			source = models.QuotaSourceLocal
		} else {
			cells, err = s.generator.Generate(ctx, quotagen.GenerateRequest{
				Geography:        planReq.Geography,
				GeographyDetail:  planReq.GeographyDetail,
				QuotaMode:        planReq.Mode,
				TargetSampleSize: planReq.TargetSampleSize,
			})
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrGeneratorFailed, err)
			}
		}
	}

	var completions int64
	if err := s.db.Model(&models.ResponseRecord{}).Where("project_id = ?", projectID).Count(&completions).Error; err != nil {
		return nil, err
	}
	if completions > 0 {
		return nil, fmt.Errorf("%w: 项目已有 %d 条回收记录", project.ErrHasCompletions, completions)
	}

	var lineItems []models.LineItem
	if err := s.db.Where("project_id = ?", projectID).Order("created_at").Find(&lineItems).Error; err != nil {
		return nil, err
	}

	config := &models.QuotaConfiguration{
		ProjectID:          projectID,
		Geography:          plan.Geography.String(),
		GeographyDetail:    plan.GeographyDetail,
		QuotaMode:          plan.Mode.String(),
		Source:             source,
		TargetSampleSize:   plan.TargetSampleSize,
		AdjustedSampleSize: plan.AdjustedSampleSize,
		TotalCells:         plan.Structure.TotalCells,
		ComplexityLevel:    string(plan.Structure.ComplexityLevel),
		SampleMultiplier:   plan.Structure.SampleMultiplier,
		Structure:          structureJSON(plan.Structure),
	}

	segments := make([]models.QuotaSegment, 0, len(cells))
	var allocationCount int
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := clearConfiguration(tx, projectID); err != nil {
			return err
		}
		if err := tx.Create(config).Error; err != nil {
			return fmt.Errorf("保存配额配置失败: %w", err)
		}

		for i, cell := range cells {
			segments = append(segments, models.QuotaSegment{
				ConfigurationID:   config.ID,
				ProjectID:         projectID,
				Category:          cell.Category.String(),
				Name:              cell.Name,
				Code:              cell.Code,
				PopulationPercent: cell.PopulationPercent,
				TargetCount:       cell.TargetCount,
				SortOrder:         i,
			})
		}
		if len(segments) > 0 {
			if err := tx.Create(&segments).Error; err != nil {
				return fmt.Errorf("保存配额分段失败: %w", err)
			}
		}

		allocations := buildAllocations(projectID, segments, lineItems)
		if len(allocations) == 0 {
			return nil
		}
		if err := tx.Create(&allocations).Error; err != nil {
			return fmt.Errorf("保存配额分配失败: %w", err)
		}
		allocationCount = len(allocations)

		trackings := make([]models.SegmentTracking, 0, len(allocations))
		for _, a := range allocations {
			trackings = append(trackings, models.SegmentTracking{
				ProjectID:    projectID,
				SegmentID:    a.SegmentID,
				AllocationID: a.ID,
				QuotaCount:   a.QuotaCount,
			})
		}
		if err := tx.Create(&trackings).Error; err != nil {
			return fmt.Errorf("初始化进度跟踪失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.QuotaPlansTotal.WithLabelValues(config.QuotaMode, source).Inc()
	slog.Info("项目配额配置完成",
		"project_id", projectID,
		"mode", config.QuotaMode,
		"source", source,
		"segments", len(segments),
		"allocations", allocationCount)

	if s.publisher != nil {
		s.publisher.Publish(&models.FieldworkEvent{
			Type:      models.EventQuotaConfigured,
			ProjectID: projectID,
			Data: map[string]interface{}{
				"configuration_id": config.ID,
				"quota_mode":       config.QuotaMode,
				"segments":         len(segments),
				"allocations":      allocationCount,
			},
		})
	}

	return &ConfigurationResult{
		Configuration: config,
		Segments:      segments,
		Allocations:   allocationCount,
		Warnings:      plan.Warnings,
	}, nil
}

// GetQuotaConfiguration 获取项目配额配置
func (s *Service) GetQuotaConfiguration(projectID string) (*models.QuotaConfiguration, error) {
	var config models.QuotaConfiguration
	if err := s.db.First(&config, "project_id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfigurationNotFound
		}
		return nil, err
	}
	return &config, nil
}

// ListSegments 按生成顺序列出项目的配额分段
func (s *Service) ListSegments(projectID string) ([]models.QuotaSegment, error) {
	var segments []models.QuotaSegment
	err := s.db.Where("project_id = ?", projectID).Order("sort_order").Find(&segments).Error
	return segments, err
}

// ListAllocations 列出项目配额分配，lineItemID 非空时只看该明细
func (s *Service) ListAllocations(projectID, lineItemID string) ([]models.QuotaAllocation, error) {
	query := s.db.Where("project_id = ?", projectID)
	if lineItemID != "" {
		query = query.Where("line_item_id = ?", lineItemID)
	}
	var allocations []models.QuotaAllocation
	err := query.Order("line_item_id, created_at").Find(&allocations).Error
	return allocations, err
}

func parseRequest(req ApplyRequest) (quota.PlanRequest, string, error) {
	geography, err := quota.ParseGeographyScope(req.Geography)
	if err != nil {
		return quota.PlanRequest{}, "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	mode, err := quota.ParseQuotaMode(req.QuotaMode)
	if err != nil {
		return quota.PlanRequest{}, "", fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	source := strings.ToLower(strings.TrimSpace(req.Source))
	switch source {
	case "":
		source = models.QuotaSourceLocal
	case models.QuotaSourceLocal, models.QuotaSourceGenerator:
	default:
		return quota.PlanRequest{}, "", fmt.Errorf("%w: 未知的配额来源 %q", ErrInvalidRequest, req.Source)
	}

	return quota.PlanRequest{
		Geography:        geography,
		GeographyDetail:  strings.ToUpper(strings.TrimSpace(req.GeographyDetail)),
		Mode:             mode,
		TargetSampleSize: req.TargetSampleSize,
	}, source, nil
}

// buildAllocations 每个明细在每个分段上分得 round(分段目标 × 明细目标 / 明细目标总和)
func buildAllocations(projectID string, segments []models.QuotaSegment, lineItems []models.LineItem) []models.QuotaAllocation {
	total := 0
	for _, li := range lineItems {
		total += li.TargetSampleSize
	}
	if total <= 0 {
		return nil
	}

	allocations := make([]models.QuotaAllocation, 0, len(segments)*len(lineItems))
	for _, li := range lineItems {
		share := float64(li.TargetSampleSize) / float64(total)
		for _, seg := range segments {
			allocations = append(allocations, models.QuotaAllocation{
				ProjectID:  projectID,
				LineItemID: li.ID,
				SegmentID:  seg.ID,
				QuotaCount: int(math.Round(float64(seg.TargetCount) * share)),
				Status:     models.AllocationStatusOpen,
			})
		}
	}
	return allocations
}

func clearConfiguration(tx *gorm.DB, projectID string) error {
	for _, m := range []interface{}{
		&models.SegmentTracking{},
		&models.QuotaAllocation{},
		&models.QuotaSegment{},
		&models.QuotaConfiguration{},
	} {
		if err := tx.Where("project_id = ?", projectID).Delete(m).Error; err != nil {
			return fmt.Errorf("清理旧配额配置失败: %w", err)
		}
	}
	return nil
}

func structureJSON(structure quota.QuotaStructure) models.JSONB {
	raw, err := json.Marshal(structure)
	if err != nil {
		return nil
	}
	var out models.JSONB
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
