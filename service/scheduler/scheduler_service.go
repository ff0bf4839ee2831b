/**
 * @module SchedulerService
 * @description 进度汇总重建调度器，按Cron表达式定期重建所有执行中项目
 * @architecture 基于robfig/cron的调度器模式
 * @stateFlow 读取表达式 -> 注册任务 -> 定时重建 -> 表达式变更时重新注册
 * @rules 同一时刻只运行一轮重建；多实例之间由分布式锁互斥
 * @dependencies github.com/robfig/cron/v3
 * @refs service/tracking/rebuild.go, service/config/config_service.go
 */

package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// Rebuilder 批量重建接口
type Rebuilder interface {
	RebuildAll(ctx context.Context) (int, error)
}

// SchedulerService 调度器服务
type SchedulerService struct {
	rebuilder Rebuilder
	cron      *cron.Cron
	entryID   cron.EntryID
	expr      string
	running   atomic.Bool
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewSchedulerService 创建调度器服务
func NewSchedulerService(rebuilder Rebuilder) *SchedulerService {
	ctx, cancel := context.WithCancel(context.Background())
	return &SchedulerService{
		rebuilder: rebuilder,
		cron:      cron.New(cron.WithSeconds()),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start 注册重建任务并启动调度器
func (s *SchedulerService) Start(expr string) error {
	if err := s.Reschedule(expr); err != nil {
		return err
	}
	s.cron.Start()
	slog.Info("进度重建调度器启动完成", "cron", expr)
	return nil
}

// Reschedule 替换重建任务的Cron表达式
func (s *SchedulerService) Reschedule(expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expr == s.expr && s.entryID != 0 {
		return nil
	}
	id, err := s.cron.AddFunc(expr, s.runOnce)
	if err != nil {
		return fmt.Errorf("添加Cron任务失败: %w", err)
	}
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	s.entryID = id
	s.expr = expr
	return nil
}

// NextRun 下次执行时间
func (s *SchedulerService) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entryID == 0 {
		return time.Time{}
	}
	return s.cron.Entry(s.entryID).Next
}

// Stop 停止调度器并等待正在执行的重建结束
func (s *SchedulerService) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	slog.Info("进度重建调度器已停止")
}

func (s *SchedulerService) runOnce() {
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("上一轮进度重建尚未结束，跳过本轮")
		return
	}
	defer s.running.Store(false)

	start := time.Now()
	n, err := s.rebuilder.RebuildAll(s.ctx)
	if err != nil {
		slog.Error("定时重建进度失败", "error", err)
		return
	}
	slog.Info("定时重建进度完成", "projects", n, "duration", time.Since(start))
}
