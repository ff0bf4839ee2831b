/*
 * @module service/panel_sync/service
 * @description 将执行明细的配额分配推送到样本供应商，并拉取供应商侧回收统计
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 读取明细与分配 -> 映射为供应商配额 -> 推送 -> 返回摘要
 * @rules 只处理 panel 渠道且已关联外部调查ID的明细；映射脚本错误时整体不推送
 * @dependencies fieldwork-service/client/panel, gorm.io/gorm
 * @refs api/controllers/panel_controller.go
 */

package panel_sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fieldwork-service/client/panel"
	"fieldwork-service/service/models"
	"fieldwork-service/service/project"

	"gorm.io/gorm"
)

var (
	ErrNoExternalSurvey = errors.New("执行明细未关联外部调查")
	ErrNotPanelChannel  = errors.New("只有样本库渠道的明细可以同步供应商")
	ErrNoAllocations    = errors.New("执行明细没有配额分配")
)

// PanelClient 样本供应商接口
type PanelClient interface {
	PushQuotas(ctx context.Context, surveyID string, quotas []panel.ProviderQuota) (*panel.PushResult, error)
	GetSurveyStats(ctx context.Context, surveyID string) (*panel.SurveyStats, error)
}

// PushSummary 推送摘要
type PushSummary struct {
	LineItemID string                `json:"line_item_id"`
	SurveyID   string                `json:"survey_id"`
	Quotas     []panel.ProviderQuota `json:"quotas"`
	Result     *panel.PushResult     `json:"result"`
}

// Service 供应商同步服务
type Service struct {
	db     *gorm.DB
	client PanelClient
	mapper *panel.Mapper
}

// NewService 创建供应商同步服务
func NewService(db *gorm.DB, client PanelClient, mapper *panel.Mapper) *Service {
	if mapper == nil {
		mapper = panel.NewMapper()
	}
	return &Service{db: db, client: client, mapper: mapper}
}

// ValidateMappingScript 校验映射脚本能否编译；空脚本合法
func (s *Service) ValidateMappingScript(script string) error {
	if script == "" {
		return nil
	}
	return s.mapper.Validate(script)
}

// BuildQuotas 将明细的分配映射为供应商配额，不发起请求
func (s *Service) BuildQuotas(projectID, lineItemID string) (*models.LineItem, []panel.ProviderQuota, error) {
	item, err := s.lineItem(projectID, lineItemID)
	if err != nil {
		return nil, nil, err
	}

	type row struct {
		Code              string
		Name              string
		Category          string
		PopulationPercent float64
		QuotaCount        int
	}
	var rows []row
	if err := s.db.Table("quota_allocations").
		Select("quota_segments.code, quota_segments.name, quota_segments.category, quota_segments.population_percent, quota_allocations.quota_count").
		Joins("JOIN quota_segments ON quota_segments.id = quota_allocations.segment_id").
		Where("quota_allocations.line_item_id = ?", item.ID).
		Order("quota_segments.sort_order").
		Scan(&rows).Error; err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, ErrNoAllocations
	}

	quotas := make([]panel.ProviderQuota, 0, len(rows))
	for _, r := range rows {
		q, err := s.mapper.Map(item.MappingScript, panel.SegmentQuota{
			Code:              r.Code,
			Name:              r.Name,
			Category:          r.Category,
			Quota:             r.QuotaCount,
			PopulationPercent: r.PopulationPercent,
		})
		if err != nil {
			return nil, nil, err
		}
		quotas = append(quotas, q)
	}
	return item, quotas, nil
}

// PushLineItemQuotas 推送明细配额到供应商
func (s *Service) PushLineItemQuotas(ctx context.Context, projectID, lineItemID string) (*PushSummary, error) {
	item, quotas, err := s.BuildQuotas(projectID, lineItemID)
	if err != nil {
		return nil, err
	}

	result, err := s.client.PushQuotas(ctx, item.ExternalSurveyID, quotas)
	if err != nil {
		slog.Error("推送供应商配额失败", "line_item_id", item.ID, "survey_id", item.ExternalSurveyID, "error", err)
		return nil, err
	}
	slog.Info("已推送供应商配额", "line_item_id", item.ID, "survey_id", item.ExternalSurveyID, "quotas", len(quotas))

	return &PushSummary{
		LineItemID: item.ID,
		SurveyID:   item.ExternalSurveyID,
		Quotas:     quotas,
		Result:     result,
	}, nil
}

// LineItemStats 拉取明细在供应商侧的回收统计
func (s *Service) LineItemStats(ctx context.Context, projectID, lineItemID string) (*panel.SurveyStats, error) {
	item, err := s.lineItem(projectID, lineItemID)
	if err != nil {
		return nil, err
	}
	return s.client.GetSurveyStats(ctx, item.ExternalSurveyID)
}

func (s *Service) lineItem(projectID, lineItemID string) (*models.LineItem, error) {
	var item models.LineItem
	if err := s.db.First(&item, "id = ? AND project_id = ?", lineItemID, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, project.ErrLineItemNotFound
		}
		return nil, err
	}
	if item.Channel != models.ChannelPanel {
		return nil, fmt.Errorf("%w: channel=%s", ErrNotPanelChannel, item.Channel)
	}
	if item.ExternalSurveyID == "" {
		return nil, ErrNoExternalSurvey
	}
	return &item, nil
}
