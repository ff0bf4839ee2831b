/*
 * @module service/project/service_test
 * @description 项目服务单元测试
 */

package project

import (
	"testing"

	"fieldwork-service/service/models"
	"fieldwork-service/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateProject(t *testing.T) {
	svc := NewService(testutil.NewTestDB(t))

	p := &models.Project{Name: "  2026 Federal Voting Intention  ", ClientName: "ACME"}
	require.NoError(t, svc.CreateProject(p))
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "2026 Federal Voting Intention", p.Name)
	assert.Equal(t, models.ProjectStatusDraft, p.Status)

	err := svc.CreateProject(&models.Project{Name: " "})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = svc.CreateProject(&models.Project{Name: "x", Status: "archived"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetProject_NotFound(t *testing.T) {
	svc := NewService(testutil.NewTestDB(t))
	_, err := svc.GetProject("missing")
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestListProjects_FilterAndPage(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewService(db)
	f := testutil.NewTestDataFactory(t, db)

	for i := 0; i < 3; i++ {
		f.CreateProject()
	}
	f.CreateProject(func(p *models.Project) {
		p.Name = "Tasmanian state poll"
		p.Status = models.ProjectStatusClosed
	})

	all, total, err := svc.ListProjects(ListFilter{Page: 1, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, all, 2)

	closed, total, err := svc.ListProjects(ListFilter{Status: models.ProjectStatusClosed})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Tasmanian state poll", closed[0].Name)

	found, _, err := svc.ListProjects(ListFilter{Search: "Tasmanian"})
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestUpdateProject(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewService(db)
	p := testutil.NewTestDataFactory(t, db).CreateProject()

	updated, err := svc.UpdateProject(p.ID, &models.Project{Status: models.ProjectStatusPaused, Description: "on hold"})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusPaused, updated.Status)
	assert.Equal(t, "on hold", updated.Description)
	assert.Equal(t, p.Name, updated.Name)

	_, err = svc.UpdateProject(p.ID, &models.Project{Status: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLineItemLifecycle(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewService(db)
	p := testutil.NewTestDataFactory(t, db).CreateProject()

	item := &models.LineItem{Name: "SMS push", Channel: models.ChannelSMS, TargetSampleSize: 400, CostPerComplete: decimal.NewFromFloat(2.25)}
	require.NoError(t, svc.CreateLineItem(p.ID, item))
	assert.Equal(t, models.LineItemStatusDraft, item.Status)

	items, err := svc.ListLineItems(p.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, decimal.NewFromFloat(2.25).Equal(items[0].CostPerComplete))

	updated, err := svc.UpdateLineItem(p.ID, item.ID, &models.LineItem{TargetSampleSize: 500, Status: models.LineItemStatusLive})
	require.NoError(t, err)
	assert.Equal(t, 500, updated.TargetSampleSize)
	assert.Equal(t, models.ChannelSMS, updated.Channel)

	_, err = svc.UpdateLineItem(p.ID, item.ID, &models.LineItem{Channel: "fax"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	require.NoError(t, svc.DeleteLineItem(p.ID, item.ID))
	_, err = svc.GetLineItem(p.ID, item.ID)
	assert.ErrorIs(t, err, ErrLineItemNotFound)
}

func TestCreateLineItem_Validation(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewService(db)
	p := testutil.NewTestDataFactory(t, db).CreateProject()

	err := svc.CreateLineItem(p.ID, &models.LineItem{Name: "panel", Channel: models.ChannelPanel, TargetSampleSize: 0})
	assert.ErrorIs(t, err, ErrInvalidInput)

	err = svc.CreateLineItem("nope", &models.LineItem{Name: "panel", Channel: models.ChannelPanel, TargetSampleSize: 10})
	assert.ErrorIs(t, err, ErrProjectNotFound)
}

func TestDeleteProject_RefusesWithCompletions(t *testing.T) {
	db := testutil.NewTestDB(t)
	svc := NewService(db)
	f := testutil.NewTestDataFactory(t, db)
	p := f.CreateProject()
	li := f.CreateLineItem(p.ID)

	require.NoError(t, db.Create(&models.ResponseRecord{
		ProjectID: p.ID, LineItemID: li.ID, RespondentID: "r-1", SegmentCode: "STATE_NSW",
	}).Error)

	assert.ErrorIs(t, svc.DeleteProject(p.ID), ErrHasCompletions)
	assert.ErrorIs(t, svc.DeleteLineItem(p.ID, li.ID), ErrHasCompletions)

	empty := f.CreateProject()
	f.CreateLineItem(empty.ID)
	require.NoError(t, svc.DeleteProject(empty.ID))
	_, err := svc.GetProject(empty.ID)
	assert.ErrorIs(t, err, ErrProjectNotFound)
}
