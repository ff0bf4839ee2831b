package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"fieldwork-service/service/models"
	"fieldwork-service/service/project"
	"fieldwork-service/testutil"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rejectingValidator struct{}

func (rejectingValidator) ValidateMappingScript(script string) error {
	return errors.New("编译失败")
}

func TestProjectController_CreateAndGet(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(testutil.CreateJSONRequest(t, http.MethodPost, "/projects", map[string]string{
		"name": "2026 选民追踪", "client_name": "ACME",
	}))
	data := testutil.AssertJSONResponse(t, w, http.StatusCreated, http.StatusCreated)

	var created models.Project
	require.NoError(t, json.Unmarshal(data, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.ProjectStatusDraft, created.Status)

	w = env.do(httptest.NewRequest(http.MethodGet, "/projects/"+created.ID, nil))
	testutil.AssertJSONResponse(t, w, http.StatusOK, http.StatusOK)

	w = env.do(httptest.NewRequest(http.MethodGet, "/projects/missing", nil))
	testutil.AssertJSONResponse(t, w, http.StatusNotFound, http.StatusNotFound)
}

func TestProjectController_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(testutil.CreateJSONRequest(t, http.MethodPost, "/projects", map[string]string{"name": "  "}))
	testutil.AssertJSONResponse(t, w, http.StatusBadRequest, http.StatusBadRequest)
}

func TestProjectController_ListProjects(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		env.factory.CreateProject()
	}
	env.factory.CreateProject(func(p *models.Project) { p.Status = models.ProjectStatusClosed })

	w := env.do(httptest.NewRequest(http.MethodGet, "/projects?page=1&size=2&status=fielding", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp PaginatedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(3), resp.Total)
	assert.Equal(t, 2, resp.Size)
	assert.Len(t, resp.Data, 2)
}

func TestProjectController_LineItems(t *testing.T) {
	env := newTestEnv(t)
	p := env.factory.CreateProject()

	w := env.do(testutil.CreateJSONRequest(t, http.MethodPost, "/projects/"+p.ID+"/line-items", map[string]interface{}{
		"name": "SMS", "channel": "sms", "target_sample_size": 400, "cost_per_complete": "2.10",
	}))
	data := testutil.AssertJSONResponse(t, w, http.StatusCreated, http.StatusCreated)
	var item models.LineItem
	require.NoError(t, json.Unmarshal(data, &item))
	assert.Equal(t, p.ID, item.ProjectID)
	assert.Equal(t, "2.1", item.CostPerComplete.String())

	w = env.do(testutil.CreateJSONRequest(t, http.MethodPost, "/projects/"+p.ID+"/line-items", map[string]interface{}{
		"name": "Fax", "channel": "fax", "target_sample_size": 10,
	}))
	testutil.AssertJSONResponse(t, w, http.StatusBadRequest, http.StatusBadRequest)
}

func TestProjectController_RejectsBadMappingScript(t *testing.T) {
	db := testutil.NewTestDB(t)
	p := testutil.NewTestDataFactory(t, db).CreateProject()
	c := NewProjectController(project.NewService(db), rejectingValidator{})

	r := chi.NewRouter()
	r.Post("/projects/{id}/line-items", c.CreateLineItem)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, testutil.CreateJSONRequest(t, http.MethodPost, "/projects/"+p.ID+"/line-items", map[string]interface{}{
		"name": "Panel", "channel": "panel", "target_sample_size": 100, "mapping_script": "func Map(",
	}))
	testutil.AssertJSONResponse(t, w, http.StatusBadRequest, http.StatusBadRequest)

	var count int64
	db.Model(&models.LineItem{}).Count(&count)
	assert.Zero(t, count)
}
