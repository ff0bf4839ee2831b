package controllers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"fieldwork-service/api/middleware"
	"fieldwork-service/service/config"
	"fieldwork-service/service/event"
	"fieldwork-service/service/ingest"
	"fieldwork-service/service/project"
	"fieldwork-service/service/quota_config"
	"fieldwork-service/service/tracking"
	"fieldwork-service/testutil"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	factory  *testutil.TestDataFactory
	router   chi.Router
	projects *project.Service
	configs  *quota_config.Service
	tracker  *tracking.Service
	keys     *ingest.KeyService
	events   *event.EventService
	settings *config.ConfigService
}

// newTestEnv 在内存数据库上组装与生产一致的路由子集
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.NewTestDB(t)

	env := &testEnv{
		db:       db,
		factory:  testutil.NewTestDataFactory(t, db),
		projects: project.NewService(db),
		keys:     ingest.NewKeyService(db),
		events:   event.NewEventService(db),
		settings: config.NewConfigService(db),
	}
	env.configs = quota_config.NewService(db, nil, env.events)
	env.tracker = tracking.NewService(db, env.events, env.settings, nil)
	t.Cleanup(env.events.Stop)

	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))

	quotaCtl := NewQuotaController()
	r.Get("/quota/modes", quotaCtl.ListModes)
	r.Post("/quota/plan", quotaCtl.Plan)

	projectCtl := NewProjectController(env.projects, nil)
	r.Post("/projects", projectCtl.CreateProject)
	r.Get("/projects", projectCtl.ListProjects)
	r.Get("/projects/{id}", projectCtl.GetProject)
	r.Post("/projects/{id}/line-items", projectCtl.CreateLineItem)

	configCtl := NewQuotaConfigController(env.configs)
	r.Post("/projects/{id}/quota-configuration", configCtl.ApplyConfiguration)
	r.Get("/projects/{id}/quota-configuration", configCtl.GetConfiguration)
	r.Get("/projects/{id}/segments", configCtl.ListSegments)

	trackingCtl := NewTrackingController(env.tracker)
	r.Get("/projects/{id}/progress", trackingCtl.GetProgress)
	r.Post("/projects/{id}/progress/rebuild", trackingCtl.RebuildProgress)

	webhookCtl := NewWebhookController(env.keys, env.projects, env.tracker)
	r.Post("/projects/{id}/webhook-keys", webhookCtl.CreateKey)
	r.Delete("/projects/{id}/webhook-keys/{keyId}", webhookCtl.RevokeKey)
	auth := middleware.NewAPIKeyAuthMiddleware(env.keys, time.Minute)
	r.With(auth.Middleware).Post("/webhooks/completions", webhookCtl.RecordCompletion)

	r.Get("/sse/projects/{id}", NewEventController(env.events, env.projects).HandleSSE)

	env.router = r
	return env
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}
