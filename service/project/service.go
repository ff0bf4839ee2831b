/*
 * @module service/project/service
 * @description 调研项目与执行明细的业务逻辑服务，提供CRUD与校验
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 项目管理流程
 * @rules 确保数据完整性；已有回收数据的明细/项目不可删除
 * @dependencies fieldwork-service/service/models, gorm.io/gorm
 * @refs api/controllers/project_controller.go
 */

package project

import (
	"errors"
	"fieldwork-service/service/models"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrProjectNotFound  = errors.New("项目不存在")
	ErrLineItemNotFound = errors.New("执行明细不存在")
	ErrInvalidInput     = errors.New("参数校验失败")
	ErrHasCompletions   = errors.New("已有回收数据，无法删除")
)

var (
	validProjectStatuses  = []string{models.ProjectStatusDraft, models.ProjectStatusFielding, models.ProjectStatusPaused, models.ProjectStatusClosed}
	validLineItemStatuses = []string{models.LineItemStatusDraft, models.LineItemStatusLive, models.LineItemStatusPaused, models.LineItemStatusComplete}
	validChannels         = []string{models.ChannelPanel, models.ChannelSMS, models.ChannelVoice}
)

// Service 项目服务
type Service struct {
	db *gorm.DB
}

// NewService 创建项目服务实例
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// ListFilter 项目列表过滤条件
type ListFilter struct {
	Page   int
	Size   int
	Status string
	Search string
}

// CreateProject 创建项目
func (s *Service) CreateProject(p *models.Project) error {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return fmt.Errorf("%w: 项目名称不能为空", ErrInvalidInput)
	}
	if p.Status == "" {
		p.Status = models.ProjectStatusDraft
	}
	if !contains(validProjectStatuses, p.Status) {
		return fmt.Errorf("%w: 无效的项目状态 %s", ErrInvalidInput, p.Status)
	}
	return s.db.Create(p).Error
}

// GetProject 根据ID获取项目（含明细）
func (s *Service) GetProject(id string) (*models.Project, error) {
	var p models.Project
	err := s.db.Preload("LineItems").First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProjectNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects 分页获取项目列表
func (s *Service) ListProjects(f ListFilter) ([]models.Project, int64, error) {
	var projects []models.Project
	var total int64

	query := s.db.Model(&models.Project{})
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		query = query.Where("name LIKE ? OR client_name LIKE ?", like, like)
	}

	// 获取总数
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(f.Page, f.Size)
	err := query.Order("created_at DESC").Offset((page - 1) * size).Limit(size).Find(&projects).Error
	return projects, total, err
}

// UpdateProject 更新项目
func (s *Service) UpdateProject(id string, updates *models.Project) (*models.Project, error) {
	if _, err := s.GetProject(id); err != nil {
		return nil, err
	}
	if updates.Status != "" && !contains(validProjectStatuses, updates.Status) {
		return nil, fmt.Errorf("%w: 无效的项目状态 %s", ErrInvalidInput, updates.Status)
	}

	changes := map[string]interface{}{}
	if name := strings.TrimSpace(updates.Name); name != "" {
		changes["name"] = name
	}
	if updates.ClientName != "" {
		changes["client_name"] = updates.ClientName
	}
	if updates.Description != "" {
		changes["description"] = updates.Description
	}
	if updates.Status != "" {
		changes["status"] = updates.Status
	}
	if len(changes) > 0 {
		if err := s.db.Model(&models.Project{}).Where("id = ?", id).Updates(changes).Error; err != nil {
			return nil, err
		}
	}
	return s.GetProject(id)
}

// DeleteProject 删除项目及其配额数据
func (s *Service) DeleteProject(id string) error {
	if _, err := s.GetProject(id); err != nil {
		return err
	}

	var completions int64
	if err := s.db.Model(&models.ResponseRecord{}).Where("project_id = ?", id).Count(&completions).Error; err != nil {
		return err
	}
	if completions > 0 {
		return ErrHasCompletions
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, m := range []interface{}{
			&models.SegmentTracking{},
			&models.QuotaAllocation{},
			&models.QuotaSegment{},
			&models.QuotaConfiguration{},
			&models.WebhookKey{},
			&models.LineItem{},
		} {
			if err := tx.Where("project_id = ?", id).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.Project{}, "id = ?", id).Error
	})
}

// CreateLineItem 创建执行明细
func (s *Service) CreateLineItem(projectID string, item *models.LineItem) error {
	if _, err := s.GetProject(projectID); err != nil {
		return err
	}
	item.ProjectID = projectID
	if item.Status == "" {
		item.Status = models.LineItemStatusDraft
	}
	if err := validateLineItem(item); err != nil {
		return err
	}
	return s.db.Create(item).Error
}

// GetLineItem 获取项目下的执行明细
func (s *Service) GetLineItem(projectID, id string) (*models.LineItem, error) {
	var item models.LineItem
	err := s.db.First(&item, "id = ? AND project_id = ?", id, projectID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLineItemNotFound
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListLineItems 获取项目下全部明细
func (s *Service) ListLineItems(projectID string) ([]models.LineItem, error) {
	var items []models.LineItem
	err := s.db.Where("project_id = ?", projectID).Order("created_at ASC").Find(&items).Error
	return items, err
}

// UpdateLineItem 更新执行明细
func (s *Service) UpdateLineItem(projectID, id string, updates *models.LineItem) (*models.LineItem, error) {
	existing, err := s.GetLineItem(projectID, id)
	if err != nil {
		return nil, err
	}

	merged := *existing
	if name := strings.TrimSpace(updates.Name); name != "" {
		merged.Name = name
	}
	if updates.Channel != "" {
		merged.Channel = updates.Channel
	}
	if updates.TargetSampleSize != 0 {
		merged.TargetSampleSize = updates.TargetSampleSize
	}
	if !updates.CostPerComplete.IsZero() {
		merged.CostPerComplete = updates.CostPerComplete
	}
	if updates.ExternalSurveyID != "" {
		merged.ExternalSurveyID = updates.ExternalSurveyID
	}
	if updates.MappingScript != "" {
		merged.MappingScript = updates.MappingScript
	}
	if updates.Status != "" {
		merged.Status = updates.Status
	}
	if err := validateLineItem(&merged); err != nil {
		return nil, err
	}

	if err := s.db.Save(&merged).Error; err != nil {
		return nil, err
	}
	return &merged, nil
}

// DeleteLineItem 删除执行明细
func (s *Service) DeleteLineItem(projectID, id string) error {
	if _, err := s.GetLineItem(projectID, id); err != nil {
		return err
	}

	var completions int64
	if err := s.db.Model(&models.ResponseRecord{}).Where("line_item_id = ?", id).Count(&completions).Error; err != nil {
		return err
	}
	if completions > 0 {
		return ErrHasCompletions
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var allocationIDs []string
		if err := tx.Model(&models.QuotaAllocation{}).Where("line_item_id = ?", id).Pluck("id", &allocationIDs).Error; err != nil {
			return err
		}
		if len(allocationIDs) > 0 {
			if err := tx.Where("allocation_id IN ?", allocationIDs).Delete(&models.SegmentTracking{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", allocationIDs).Delete(&models.QuotaAllocation{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&models.LineItem{}, "id = ?", id).Error
	})
}

func validateLineItem(item *models.LineItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("%w: 明细名称不能为空", ErrInvalidInput)
	}
	if !contains(validChannels, item.Channel) {
		return fmt.Errorf("%w: 无效的执行渠道 %s", ErrInvalidInput, item.Channel)
	}
	if item.TargetSampleSize <= 0 {
		return fmt.Errorf("%w: 目标样本量必须为正整数", ErrInvalidInput)
	}
	if item.CostPerComplete.LessThan(decimal.Zero) {
		return fmt.Errorf("%w: 单价不能为负数", ErrInvalidInput)
	}
	if !contains(validLineItemStatuses, item.Status) {
		return fmt.Errorf("%w: 无效的明细状态 %s", ErrInvalidInput, item.Status)
	}
	return nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 200 {
		size = 20
	}
	return page, size
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
