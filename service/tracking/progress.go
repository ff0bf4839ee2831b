package tracking

import (
	"errors"
	"sort"

	"fieldwork-service/service/models"
	"fieldwork-service/service/project"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SegmentProgress 单个分段在全部明细上的进度
type SegmentProgress struct {
	SegmentID      string          `json:"segment_id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	TargetCount    int             `json:"target_count"`
	QuotaCount     int             `json:"quota_count"`
	CurrentCount   int             `json:"current_count"`
	CompletionRate float64         `json:"completion_rate"`
	Cost           decimal.Decimal `json:"cost"`
}

// LineItemProgress 单个明细的进度
type LineItemProgress struct {
	LineItemID     string          `json:"line_item_id"`
	Name           string          `json:"name"`
	Channel        string          `json:"channel"`
	QuotaCount     int             `json:"quota_count"`
	CurrentCount   int             `json:"current_count"`
	CompletionRate float64         `json:"completion_rate"`
	FullSegments   int             `json:"full_segments"`
	Cost           decimal.Decimal `json:"cost"`
}

// ProjectProgress 项目进度汇总
type ProjectProgress struct {
	ProjectID        string             `json:"project_id"`
	ConfigurationID  string             `json:"configuration_id,omitempty"`
	TargetSampleSize int                `json:"target_sample_size"`
	TotalQuota       int                `json:"total_quota"`
	TotalCompletes   int                `json:"total_completes"`
	CompletionRate   float64            `json:"completion_rate"`
	TotalCost        decimal.Decimal    `json:"total_cost"`
	Segments         []SegmentProgress  `json:"segments"`
	LineItems        []LineItemProgress `json:"line_items"`
}

// ProjectProgress 查询项目进度；未配置配额时返回空分段列表
func (s *Service) ProjectProgress(projectID string) (*ProjectProgress, error) {
	var p models.Project
	if err := s.db.Select("id").First(&p, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, project.ErrProjectNotFound
		}
		return nil, err
	}

	progress := &ProjectProgress{
		ProjectID: projectID,
		Segments:  []SegmentProgress{},
		LineItems: []LineItemProgress{},
		TotalCost: decimal.Zero,
	}

	var config models.QuotaConfiguration
	err := s.db.First(&config, "project_id = ?", projectID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if err == nil {
		progress.ConfigurationID = config.ID
		progress.TargetSampleSize = config.TargetSampleSize
	}

	var segments []models.QuotaSegment
	if err := s.db.Where("project_id = ?", projectID).Order("sort_order").Find(&segments).Error; err != nil {
		return nil, err
	}
	var lineItems []models.LineItem
	if err := s.db.Where("project_id = ?", projectID).Order("created_at").Find(&lineItems).Error; err != nil {
		return nil, err
	}
	var allocations []models.QuotaAllocation
	if err := s.db.Where("project_id = ?", projectID).Find(&allocations).Error; err != nil {
		return nil, err
	}
	var trackings []models.SegmentTracking
	if err := s.db.Where("project_id = ?", projectID).Find(&trackings).Error; err != nil {
		return nil, err
	}

	costByAllocation := make(map[string]decimal.Decimal, len(trackings))
	for _, t := range trackings {
		costByAllocation[t.AllocationID] = t.CostTracking
	}

	segIndex := make(map[string]int, len(segments))
	for i, seg := range segments {
		segIndex[seg.ID] = i
		progress.Segments = append(progress.Segments, SegmentProgress{
			SegmentID:   seg.ID,
			Code:        seg.Code,
			Name:        seg.Name,
			Category:    seg.Category,
			TargetCount: seg.TargetCount,
			Cost:        decimal.Zero,
		})
	}
	itemIndex := make(map[string]int, len(lineItems))
	for i, li := range lineItems {
		itemIndex[li.ID] = i
		progress.LineItems = append(progress.LineItems, LineItemProgress{
			LineItemID: li.ID,
			Name:       li.Name,
			Channel:    li.Channel,
			Cost:       decimal.Zero,
		})
	}

	for _, a := range allocations {
		cost := costByAllocation[a.ID]
		if i, ok := segIndex[a.SegmentID]; ok {
			sp := &progress.Segments[i]
			sp.QuotaCount += a.QuotaCount
			sp.CurrentCount += a.CurrentCount
			sp.Cost = sp.Cost.Add(cost)
		}
		if i, ok := itemIndex[a.LineItemID]; ok {
			lp := &progress.LineItems[i]
			lp.QuotaCount += a.QuotaCount
			lp.CurrentCount += a.CurrentCount
			lp.Cost = lp.Cost.Add(cost)
			if a.Status == models.AllocationStatusFull {
				lp.FullSegments++
			}
		}
		progress.TotalQuota += a.QuotaCount
		progress.TotalCompletes += a.CurrentCount
		progress.TotalCost = progress.TotalCost.Add(cost)
	}

	for i := range progress.Segments {
		sp := &progress.Segments[i]
		sp.CompletionRate = models.CompletionRate(sp.CurrentCount, sp.QuotaCount)
	}
	for i := range progress.LineItems {
		lp := &progress.LineItems[i]
		lp.CompletionRate = models.CompletionRate(lp.CurrentCount, lp.QuotaCount)
	}
	progress.CompletionRate = models.CompletionRate(progress.TotalCompletes, progress.TotalQuota)

	return progress, nil
}

// LaggingSegments 完成率最低的 n 个分段，用于仪表盘提示
func (p *ProjectProgress) LaggingSegments(n int) []SegmentProgress {
	candidates := make([]SegmentProgress, 0, len(p.Segments))
	for _, sp := range p.Segments {
		if sp.QuotaCount > 0 && sp.CurrentCount < sp.QuotaCount {
			candidates = append(candidates, sp)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].CompletionRate < candidates[j].CompletionRate
	})
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
