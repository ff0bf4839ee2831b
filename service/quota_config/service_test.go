package quota_config

import (
	"context"
	"errors"
	"testing"

	"fieldwork-service/client/quotagen"
	"fieldwork-service/service/models"
	"fieldwork-service/service/project"
	"fieldwork-service/service/quota"
	"fieldwork-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Generate(ctx context.Context, req quotagen.GenerateRequest) ([]quota.QuotaCell, error) {
	args := m.Called(ctx, req)
	cells, _ := args.Get(0).([]quota.QuotaCell)
	return cells, args.Error(1)
}

func nationalRequest() ApplyRequest {
	return ApplyRequest{Geography: "National", QuotaMode: "non-interlocking", TargetSampleSize: 1000}
}

func TestApplyQuotaConfiguration_Local(t *testing.T) {
	db := testutil.NewTestDB(t)
	factory := testutil.NewTestDataFactory(t, db)
	p := factory.CreateProject()
	panelItem := factory.CreateLineItem(p.ID, testutil.WithTarget(750))
	smsItem := factory.CreateLineItem(p.ID, testutil.WithChannel(models.ChannelSMS), testutil.WithTarget(250))

	publisher := &testutil.MockEventPublisher{}
	publisher.On("Publish", mock.MatchedBy(func(e *models.FieldworkEvent) bool {
		return e.Type == models.EventQuotaConfigured && e.ProjectID == p.ID
	})).Once()

	svc := NewService(db, nil, publisher)
	result, err := svc.ApplyQuotaConfiguration(context.Background(), p.ID, nationalRequest())
	require.NoError(t, err)
	publisher.AssertExpectations(t)

	cfg := result.Configuration
	assert.Equal(t, "National", cfg.Geography)
	assert.Equal(t, "non-interlocking", cfg.QuotaMode)
	assert.Equal(t, models.QuotaSourceLocal, cfg.Source)
	assert.Equal(t, 23, cfg.TotalCells)
	assert.Equal(t, "low", cfg.ComplexityLevel)
	assert.Equal(t, 1000, cfg.AdjustedSampleSize)
	assert.EqualValues(t, 23, cfg.Structure["total_cells"])

	require.Len(t, result.Segments, 23)
	assert.Equal(t, 46, result.Allocations)

	segments, err := svc.ListSegments(p.ID)
	require.NoError(t, err)
	require.Len(t, segments, 23)
	assert.Equal(t, 0, segments[0].SortOrder)
	assert.Equal(t, "Age/Gender", segments[0].Category)

	var nsw models.QuotaSegment
	for _, s := range segments {
		if s.Code == "STATE_NSW" {
			nsw = s
		}
	}
	require.NotEmpty(t, nsw.ID)
	assert.Equal(t, 320, nsw.TargetCount)

	allocations, err := svc.ListAllocations(p.ID, panelItem.ID)
	require.NoError(t, err)
	require.Len(t, allocations, 23)
	for _, a := range allocations {
		if a.SegmentID == nsw.ID {
			assert.Equal(t, 240, a.QuotaCount)
		}
	}

	smsAllocations, err := svc.ListAllocations(p.ID, smsItem.ID)
	require.NoError(t, err)
	for _, a := range smsAllocations {
		if a.SegmentID == nsw.ID {
			assert.Equal(t, 80, a.QuotaCount)
		}
	}

	var trackings int64
	require.NoError(t, db.Model(&models.SegmentTracking{}).Where("project_id = ?", p.ID).Count(&trackings).Error)
	assert.Equal(t, int64(46), trackings)
}

func TestApplyQuotaConfiguration_ReplacesPrevious(t *testing.T) {
	db := testutil.NewTestDB(t)
	factory := testutil.NewTestDataFactory(t, db)
	p := factory.CreateProject()
	factory.CreateLineItem(p.ID)

	svc := NewService(db, nil, nil)
	_, err := svc.ApplyQuotaConfiguration(context.Background(), p.ID, nationalRequest())
	require.NoError(t, err)

	result, err := svc.ApplyQuotaConfiguration(context.Background(), p.ID, ApplyRequest{
		Geography: "National", QuotaMode: "full-interlocking", TargetSampleSize: 500,
	})
	require.NoError(t, err)
	assert.Equal(t, 288, result.Configuration.TotalCells)
	assert.Equal(t, 1000, result.Configuration.AdjustedSampleSize)
	assert.NotEmpty(t, result.Warnings)
	// 完全交叉只有组合类别，不生成单元格
	assert.Empty(t, result.Segments)

	var configs, segments int64
	db.Model(&models.QuotaConfiguration{}).Where("project_id = ?", p.ID).Count(&configs)
	db.Model(&models.QuotaSegment{}).Where("project_id = ?", p.ID).Count(&segments)
	assert.Equal(t, int64(1), configs)
	assert.Equal(t, int64(0), segments)
}

func TestApplyQuotaConfiguration_NoLineItems(t *testing.T) {
	db := testutil.NewTestDB(t)
	p := testutil.NewTestDataFactory(t, db).CreateProject()

	svc := NewService(db, nil, nil)
	result, err := svc.ApplyQuotaConfiguration(context.Background(), p.ID, ApplyRequest{
		Geography: "State", GeographyDetail: "nsw", QuotaMode: "non-interlocking", TargetSampleSize: 600,
	})
	require.NoError(t, err)
	assert.Equal(t, "NSW", result.Configuration.GeographyDetail)
	assert.Len(t, result.Segments, 15)
	assert.Equal(t, 0, result.Allocations)
}

func TestApplyQuotaConfiguration_Generator(t *testing.T) {
	db := testutil.NewTestDB(t)
	factory := testutil.NewTestDataFactory(t, db)
	p := factory.CreateProject()
	factory.CreateLineItem(p.ID)

	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, quotagen.GenerateRequest{
		Geography:        quota.FederalElectorate,
		GeographyDetail:  "WARRINGAH",
		QuotaMode:        quota.AgeGenderOnly,
		TargetSampleSize: 400,
	}).Return([]quota.QuotaCell{
		{Category: quota.CategoryAgeGender, Name: "18-24 Male", PopulationPercent: 5.1, TargetCount: 20, Code: "AGE_GENDER_18_24_MALE"},
		{Category: quota.CategoryAgeGender, Name: "18-24 Female", PopulationPercent: 5.3, TargetCount: 21, Code: "AGE_GENDER_18_24_FEMALE"},
	}, nil)

	svc := NewService(db, gen, nil)
	result, err := svc.ApplyQuotaConfiguration(context.Background(), p.ID, ApplyRequest{
		Geography:        "Federal Electorate",
		GeographyDetail:  "Warringah",
		QuotaMode:        "age-gender-only",
		TargetSampleSize: 400,
		Source:           "generator",
	})
	require.NoError(t, err)
	gen.AssertExpectations(t)

	assert.Equal(t, models.QuotaSourceGenerator, result.Configuration.Source)
	require.Len(t, result.Segments, 2)
	assert.Equal(t, 5.3, result.Segments[1].PopulationPercent)
	assert.Equal(t, 2, result.Allocations)
}

func TestApplyQuotaConfiguration_GeneratorFallbackAndFailure(t *testing.T) {
	db := testutil.NewTestDB(t)
	p := testutil.NewTestDataFactory(t, db).CreateProject()
	req := nationalRequest()
	req.Source = "generator"

	// 未配置生成服务时回退本地规划
	result, err := NewService(db, nil, nil).ApplyQuotaConfiguration(context.Background(), p.ID, req)
	require.NoError(t, err)
	assert.Equal(t, models.QuotaSourceLocal, result.Configuration.Source)

	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	_, err = NewService(db, gen, nil).ApplyQuotaConfiguration(context.Background(), p.ID, req)
	assert.ErrorIs(t, err, ErrGeneratorFailed)

	// 失败不影响已有配置
	cfg, err := NewService(db, nil, nil).GetQuotaConfiguration(p.ID)
	require.NoError(t, err)
	assert.Equal(t, models.QuotaSourceLocal, cfg.Source)
}

func TestApplyQuotaConfiguration_Validation(t *testing.T) {
	db := testutil.NewTestDB(t)
	p := testutil.NewTestDataFactory(t, db).CreateProject()
	svc := NewService(db, nil, nil)
	ctx := context.Background()

	_, err := svc.ApplyQuotaConfiguration(ctx, "missing", nationalRequest())
	assert.ErrorIs(t, err, project.ErrProjectNotFound)

	cases := []ApplyRequest{
		{Geography: "Mars", QuotaMode: "non-interlocking", TargetSampleSize: 100},
		{Geography: "National", QuotaMode: "everything", TargetSampleSize: 100},
		{Geography: "National", QuotaMode: "non-interlocking", TargetSampleSize: 0},
		{Geography: "National", QuotaMode: "non-interlocking", TargetSampleSize: 100, Source: "magic"},
	}
	for _, c := range cases {
		_, err := svc.ApplyQuotaConfiguration(ctx, p.ID, c)
		assert.ErrorIs(t, err, ErrInvalidRequest, "%+v", c)
	}

	_, err = svc.GetQuotaConfiguration(p.ID)
	assert.ErrorIs(t, err, ErrConfigurationNotFound)
}

func TestApplyQuotaConfiguration_RefusedAfterCompletions(t *testing.T) {
	db := testutil.NewTestDB(t)
	factory := testutil.NewTestDataFactory(t, db)
	p := factory.CreateProject()
	li := factory.CreateLineItem(p.ID)
	require.NoError(t, db.Create(&models.ResponseRecord{
		ProjectID: p.ID, LineItemID: li.ID, RespondentID: "r1", SegmentCode: "STATE_NSW",
	}).Error)

	_, err := NewService(db, nil, nil).ApplyQuotaConfiguration(context.Background(), p.ID, nationalRequest())
	assert.ErrorIs(t, err, project.ErrHasCompletions)
}

func TestBuildAllocations_Rounding(t *testing.T) {
	segments := []models.QuotaSegment{{ID: "s1", TargetCount: 83}}
	items := []models.LineItem{{ID: "a", TargetSampleSize: 1}, {ID: "b", TargetSampleSize: 2}}

	allocations := buildAllocations("p", segments, items)
	require.Len(t, allocations, 2)
	assert.Equal(t, 28, allocations[0].QuotaCount) // 27.67
	assert.Equal(t, 55, allocations[1].QuotaCount) // 55.33

	assert.Nil(t, buildAllocations("p", segments, nil))
}
