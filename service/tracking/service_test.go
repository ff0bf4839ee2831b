package tracking

import (
	"context"
	"testing"
	"time"

	"fieldwork-service/service/config"
	"fieldwork-service/service/distributed_lock"
	"fieldwork-service/service/models"
	"fieldwork-service/service/project"
	"fieldwork-service/service/quota_config"
	"fieldwork-service/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fixture struct {
	db       *gorm.DB
	project  *models.Project
	lineItem *models.LineItem
	svc      *Service
}

// newFixture 项目含一个1000样本明细，全国非交叉配额
func newFixture(t *testing.T, publisher *testutil.MockEventPublisher, settings Settings) *fixture {
	t.Helper()
	db := testutil.NewTestDB(t)
	factory := testutil.NewTestDataFactory(t, db)
	p := factory.CreateProject()
	li := factory.CreateLineItem(p.ID)

	_, err := quota_config.NewService(db, nil, nil).ApplyQuotaConfiguration(context.Background(), p.ID, quota_config.ApplyRequest{
		Geography: "National", QuotaMode: "non-interlocking", TargetSampleSize: 1000,
	})
	require.NoError(t, err)

	svc := NewService(db, nil, settings, nil)
	if publisher != nil {
		svc = NewService(db, publisher, settings, nil)
	}
	return &fixture{db: db, project: p, lineItem: li, svc: svc}
}

func (f *fixture) event(respondent, code string) CompletionEvent {
	return CompletionEvent{
		ProjectID:    f.project.ID,
		LineItemID:   f.lineItem.ID,
		SegmentCode:  code,
		RespondentID: respondent,
		Channel:      models.ChannelPanel,
	}
}

type staticSettings map[string]string

func (s staticSettings) GetInt(key string) int {
	if key == config.ConfigKeyRebuildLockTTL {
		return 60
	}
	return 0
}

func (s staticSettings) GetBool(key string) bool { return s[key] == "true" }

func TestRecordCompletion(t *testing.T) {
	publisher := &testutil.MockEventPublisher{}
	publisher.On("Publish", mock.MatchedBy(func(e *models.FieldworkEvent) bool {
		return e.Type == models.EventQuotaProgress
	})).Once()
	f := newFixture(t, publisher, nil)

	ev := f.event("resp-1", "state_nsw")
	ev.Cost = decimal.RequireFromString("5.25")
	result, err := f.svc.RecordCompletion(context.Background(), ev)
	require.NoError(t, err)
	publisher.AssertExpectations(t)

	assert.NotEmpty(t, result.ResponseID)
	assert.Equal(t, 1, result.CurrentCount)
	assert.Equal(t, 320, result.QuotaCount)
	assert.InDelta(t, 1.0/320, result.CompletionRate, 1e-9)
	assert.False(t, result.Full)

	var tracking models.SegmentTracking
	require.NoError(t, f.db.First(&tracking, "allocation_id = ?", result.AllocationID).Error)
	assert.Equal(t, 1, tracking.CurrentCount)
	assert.True(t, tracking.CostTracking.Equal(decimal.RequireFromString("5.25")), tracking.CostTracking.String())
	assert.NotNil(t, tracking.LastResponseAt)
}

func TestRecordCompletion_DefaultCostFromLineItem(t *testing.T) {
	f := newFixture(t, nil, nil)

	_, err := f.svc.RecordCompletion(context.Background(), f.event("r1", "LOCATION_METRO"))
	require.NoError(t, err)
	result, err := f.svc.RecordCompletion(context.Background(), f.event("r2", "LOCATION_METRO"))
	require.NoError(t, err)

	var tracking models.SegmentTracking
	require.NoError(t, f.db.First(&tracking, "allocation_id = ?", result.AllocationID).Error)
	assert.True(t, tracking.CostTracking.Equal(decimal.RequireFromString("9")), tracking.CostTracking.String())
}

func TestRecordCompletion_Idempotent(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.svc.RecordCompletion(ctx, f.event("resp-1", "STATE_VIC"))
	require.NoError(t, err)
	_, err = f.svc.RecordCompletion(ctx, f.event("resp-1", "STATE_VIC"))
	assert.ErrorIs(t, err, ErrDuplicateCompletion)

	var alloc models.QuotaAllocation
	require.NoError(t, f.db.Joins("JOIN quota_segments ON quota_segments.id = quota_allocations.segment_id").
		Where("quota_segments.code = ?", "STATE_VIC").First(&alloc).Error)
	assert.Equal(t, 1, alloc.CurrentCount)
}

// 计数检查之后另一渠道抢先写入同一受访者时，唯一索引冲突也归为重复
func TestCreateResponseRecord_UniqueViolationIsDuplicate(t *testing.T) {
	f := newFixture(t, nil, nil)

	record := func() *models.ResponseRecord {
		return &models.ResponseRecord{
			ProjectID:    f.project.ID,
			LineItemID:   f.lineItem.ID,
			RespondentID: "resp-race",
			SegmentCode:  "STATE_NSW",
			Channel:      models.ChannelPanel,
			ReceivedAt:   time.Now(),
		}
	}

	require.NoError(t, f.db.Create(record()).Error)
	err := createResponseRecord(f.db, record())
	assert.ErrorIs(t, err, ErrDuplicateCompletion)

	var count int64
	require.NoError(t, f.db.Model(&models.ResponseRecord{}).Where("respondent_id = ?", "resp-race").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestRecordCompletion_Errors(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.svc.RecordCompletion(ctx, CompletionEvent{ProjectID: f.project.ID})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	_, err = f.svc.RecordCompletion(ctx, f.event("r1", "STATE_ATLANTIS"))
	assert.ErrorIs(t, err, ErrUnknownSegment)

	ev := f.event("r1", "STATE_NSW")
	ev.LineItemID = "missing"
	_, err = f.svc.RecordCompletion(ctx, ev)
	assert.ErrorIs(t, err, project.ErrLineItemNotFound)

	var count int64
	f.db.Model(&models.ResponseRecord{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestRecordCompletion_MarksFull(t *testing.T) {
	publisher := &testutil.MockEventPublisher{}
	publisher.On("Publish", mock.Anything)
	f := newFixture(t, publisher, nil)
	ctx := context.Background()

	// NT 在1000样本下目标为10
	var nt models.QuotaAllocation
	require.NoError(t, f.db.Joins("JOIN quota_segments ON quota_segments.id = quota_allocations.segment_id").
		Where("quota_segments.code = ?", "STATE_NT").First(&nt).Error)
	require.Equal(t, 10, nt.QuotaCount)

	var last *CompletionResult
	for i := 0; i < 10; i++ {
		var err error
		last, err = f.svc.RecordCompletion(ctx, f.event("r"+string(rune('a'+i)), "STATE_NT"))
		require.NoError(t, err)
	}
	assert.True(t, last.Full)
	assert.Equal(t, 1.0, last.CompletionRate)

	require.NoError(t, f.db.First(&nt, "id = ?", nt.ID).Error)
	assert.Equal(t, models.AllocationStatusFull, nt.Status)

	fullEvents := 0
	for _, call := range publisher.Calls {
		if call.Arguments.Get(0).(*models.FieldworkEvent).Type == models.EventQuotaFull {
			fullEvents++
		}
	}
	assert.Equal(t, 1, fullEvents)

	// 超额仍然登记
	over, err := f.svc.RecordCompletion(ctx, f.event("r-over", "STATE_NT"))
	require.NoError(t, err)
	assert.Equal(t, 11, over.CurrentCount)
	assert.True(t, over.Full)
}

func TestRecordCompletion_AutoFullDisabled(t *testing.T) {
	f := newFixture(t, nil, staticSettings{config.ConfigKeyAllocationAutoFull: "false"})
	ctx := context.Background()

	var result *CompletionResult
	for i := 0; i < 10; i++ {
		var err error
		result, err = f.svc.RecordCompletion(ctx, f.event("r"+string(rune('a'+i)), "STATE_NT"))
		require.NoError(t, err)
	}
	assert.False(t, result.Full)
}

func TestRebuildProject(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	for _, r := range []string{"a", "b", "c"} {
		_, err := f.svc.RecordCompletion(ctx, f.event(r, "STATE_QLD"))
		require.NoError(t, err)
	}
	// 手工破坏汇总
	require.NoError(t, f.db.Model(&models.QuotaAllocation{}).Where("project_id = ?", f.project.ID).Update("current_count", 99).Error)
	require.NoError(t, f.db.Model(&models.SegmentTracking{}).Where("project_id = ?", f.project.ID).Update("current_count", 99).Error)
	// 配置外的完成记录
	require.NoError(t, f.db.Create(&models.ResponseRecord{
		ProjectID: f.project.ID, LineItemID: f.lineItem.ID, RespondentID: "legacy", SegmentCode: "OLD_CODE",
		ReceivedAt: time.Now(),
	}).Error)

	result, err := f.svc.RebuildProject(ctx, f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 23, result.Allocations)
	assert.Equal(t, 4, result.Responses)
	assert.Equal(t, 1, result.Unmatched)

	progress, err := f.svc.ProjectProgress(f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, progress.TotalCompletes)
	for _, sp := range progress.Segments {
		if sp.Code == "STATE_QLD" {
			assert.Equal(t, 3, sp.CurrentCount)
			assert.True(t, sp.Cost.Equal(decimal.RequireFromString("13.5")), sp.Cost.String())
		} else {
			assert.Equal(t, 0, sp.CurrentCount, sp.Code)
		}
	}

	_, err = f.svc.RebuildProject(ctx, "missing")
	assert.ErrorIs(t, err, project.ErrProjectNotFound)
}

type heldLock struct{}

func (heldLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, nil
}
func (heldLock) Unlock(ctx context.Context, key string) error { return nil }
func (heldLock) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	return nil
}

func TestRebuildProject_LockHeld(t *testing.T) {
	f := newFixture(t, nil, staticSettings{})
	svc := NewService(f.db, nil, staticSettings{}, distributed_lock.NewLockExecutor(heldLock{}))

	_, err := svc.RebuildProject(context.Background(), f.project.ID)
	assert.ErrorIs(t, err, ErrRebuildInProgress)

	n, err := svc.RebuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestRebuildAll(t *testing.T) {
	f := newFixture(t, nil, nil)
	testutil.NewTestDataFactory(t, f.db).CreateProject(func(p *models.Project) { p.Status = models.ProjectStatusClosed })

	n, err := f.svc.RebuildAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestProjectProgress(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	_, err := f.svc.RecordCompletion(ctx, f.event("a", "STATE_NSW"))
	require.NoError(t, err)
	_, err = f.svc.RecordCompletion(ctx, f.event("b", "AGE_GENDER_18_24_MALE"))
	require.NoError(t, err)

	progress, err := f.svc.ProjectProgress(f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000, progress.TargetSampleSize)
	require.Len(t, progress.Segments, 23)
	require.Len(t, progress.LineItems, 1)
	assert.Equal(t, 2, progress.TotalCompletes)
	assert.Equal(t, 2, progress.LineItems[0].CurrentCount)
	assert.True(t, progress.TotalCost.Equal(decimal.RequireFromString("9")), progress.TotalCost.String())
	assert.InDelta(t, 2.0/float64(progress.TotalQuota), progress.CompletionRate, 1e-9)

	lagging := progress.LaggingSegments(3)
	require.Len(t, lagging, 3)
	assert.Equal(t, 0.0, lagging[0].CompletionRate)

	_, err = f.svc.ProjectProgress("missing")
	assert.ErrorIs(t, err, project.ErrProjectNotFound)
}

func TestProjectProgress_Unconfigured(t *testing.T) {
	db := testutil.NewTestDB(t)
	p := testutil.NewTestDataFactory(t, db).CreateProject()

	progress, err := NewService(db, nil, nil, nil).ProjectProgress(p.ID)
	require.NoError(t, err)
	assert.Empty(t, progress.Segments)
	assert.Empty(t, progress.ConfigurationID)
	assert.Equal(t, 0.0, progress.CompletionRate)
}
