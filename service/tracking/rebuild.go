package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fieldwork-service/service/config"
	"fieldwork-service/service/distributed_lock"
	"fieldwork-service/service/metrics"
	"fieldwork-service/service/models"
	"fieldwork-service/service/project"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RebuildResult 重建结果
type RebuildResult struct {
	ProjectID   string `json:"project_id"`
	Allocations int    `json:"allocations"`
	Responses   int    `json:"responses"`
	Unmatched   int    `json:"unmatched"` // 分段编码已不在当前配置中的完成记录数
}

type responseAggregate struct {
	LineItemID  string
	SegmentCode string
	Count       int
	Cost        decimal.Decimal
}

// RebuildProject 以完成记录为准重算项目全部分配与汇总
func (s *Service) RebuildProject(ctx context.Context, projectID string) (*RebuildResult, error) {
	var result *RebuildResult
	run := func() error {
		var err error
		result, err = s.rebuild(ctx, projectID)
		return err
	}

	if s.locker == nil {
		return result, run()
	}

	ttl := 300 * time.Second
	if s.settings != nil {
		if v := s.settings.GetInt(config.ConfigKeyRebuildLockTTL); v > 0 {
			ttl = time.Duration(v) * time.Second
		}
	}
	err := s.locker.ExecuteWithLock(ctx, "rebuild:"+projectID, ttl, ttl/3, run)
	if errors.Is(err, distributed_lock.ErrLockHeld) {
		return nil, ErrRebuildInProgress
	}
	return result, err
}

func (s *Service) rebuild(ctx context.Context, projectID string) (result *RebuildResult, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveSince(metrics.RebuildDuration, start, metrics.Result(err))
	}()

	var p models.Project
	if err := s.db.WithContext(ctx).Select("id").First(&p, "id = ?", projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, project.ErrProjectNotFound
		}
		return nil, err
	}

	result = &RebuildResult{ProjectID: projectID}
	markFull := s.markFull()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var segments []models.QuotaSegment
		if err := tx.Where("project_id = ?", projectID).Find(&segments).Error; err != nil {
			return err
		}
		segmentByCode := make(map[string]string, len(segments))
		for _, seg := range segments {
			segmentByCode[seg.Code] = seg.ID
		}

		var aggregates []responseAggregate
		if err := tx.Model(&models.ResponseRecord{}).
			Select("line_item_id, segment_code, COUNT(*) AS count, COALESCE(SUM(cost), 0) AS cost").
			Where("project_id = ?", projectID).
			Group("line_item_id, segment_code").
			Scan(&aggregates).Error; err != nil {
			return fmt.Errorf("统计完成记录失败: %w", err)
		}

		// key: line_item_id|segment_id
		counts := make(map[string]responseAggregate, len(aggregates))
		for _, agg := range aggregates {
			result.Responses += agg.Count
			segmentID, ok := segmentByCode[agg.SegmentCode]
			if !ok {
				result.Unmatched += agg.Count
				continue
			}
			counts[agg.LineItemID+"|"+segmentID] = agg
		}

		var allocations []models.QuotaAllocation
		if err := tx.Where("project_id = ?", projectID).Find(&allocations).Error; err != nil {
			return err
		}
		for _, a := range allocations {
			agg := counts[a.LineItemID+"|"+a.SegmentID]
			status := models.AllocationStatusOpen
			if markFull && a.QuotaCount > 0 && agg.Count >= a.QuotaCount {
				status = models.AllocationStatusFull
			}
			if err := tx.Model(&models.QuotaAllocation{}).Where("id = ?", a.ID).
				Updates(map[string]interface{}{"current_count": agg.Count, "status": status}).Error; err != nil {
				return err
			}

			updates := map[string]interface{}{
				"quota_count":     a.QuotaCount,
				"current_count":   agg.Count,
				"completion_rate": models.CompletionRate(agg.Count, a.QuotaCount),
				"cost_tracking":   agg.Cost,
			}
			if agg.Count == 0 {
				updates["last_response_at"] = nil
			}
			if err := tx.Model(&models.SegmentTracking{}).
				Where("project_id = ? AND allocation_id = ?", projectID, a.ID).
				Updates(updates).Error; err != nil {
				return err
			}
		}
		result.Allocations = len(allocations)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slog.Info("进度汇总重建完成",
		"project_id", projectID,
		"allocations", result.Allocations,
		"responses", result.Responses,
		"unmatched", result.Unmatched,
		"duration", time.Since(start))
	s.publish(models.EventRollupRebuilt, projectID, map[string]interface{}{
		"allocations": result.Allocations,
		"responses":   result.Responses,
	})
	return result, nil
}

// RebuildAll 重建所有执行中项目，返回成功重建的项目数
func (s *Service) RebuildAll(ctx context.Context) (int, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.Project{}).
		Where("status = ?", models.ProjectStatusFielding).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("查询执行中项目失败: %w", err)
	}

	rebuilt := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return rebuilt, ctx.Err()
		}
		if _, err := s.RebuildProject(ctx, id); err != nil {
			if errors.Is(err, ErrRebuildInProgress) {
				slog.Debug("项目正在其他实例重建，跳过", "project_id", id)
				continue
			}
			slog.Error("重建项目进度失败", "project_id", id, "error", err)
			continue
		}
		rebuilt++
	}
	return rebuilt, nil
}
