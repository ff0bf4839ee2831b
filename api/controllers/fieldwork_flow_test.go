package controllers

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fieldwork-service/api/middleware"
	"fieldwork-service/service/models"
	"fieldwork-service/service/quota_config"
	"fieldwork-service/service/tracking"
	"fieldwork-service/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configure(t *testing.T, env *testEnv, projectID string) {
	t.Helper()
	w := env.do(testutil.CreateJSONRequest(t, http.MethodPost, "/projects/"+projectID+"/quota-configuration", quota_config.ApplyRequest{
		Geography: "National", QuotaMode: "non-interlocking", TargetSampleSize: 1000,
	}))
	testutil.AssertJSONResponse(t, w, http.StatusCreated, http.StatusCreated)
}

func createKey(t *testing.T, env *testEnv, projectID string) (string, string) {
	t.Helper()
	w := env.do(testutil.CreateJSONRequest(t, http.MethodPost, "/projects/"+projectID+"/webhook-keys", CreateKeyRequest{Name: "sms"}))
	data := testutil.AssertJSONResponse(t, w, http.StatusCreated, http.StatusCreated)
	var resp struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	require.NoError(t, json.Unmarshal(data, &resp))
	require.NotEmpty(t, resp.Key)
	return resp.ID, resp.Key
}

func webhookRequest(t *testing.T, key string, body interface{}) *http.Request {
	req := testutil.CreateJSONRequest(t, http.MethodPost, "/webhooks/completions", body)
	if key != "" {
		req.Header.Set(middleware.APIKeyHeader, key)
	}
	return req
}

func TestQuotaConfigController_ApplyAndRead(t *testing.T) {
	env := newTestEnv(t)
	p := env.factory.CreateProject()
	env.factory.CreateLineItem(p.ID)

	w := env.do(httptest.NewRequest(http.MethodGet, "/projects/"+p.ID+"/quota-configuration", nil))
	testutil.AssertJSONResponse(t, w, http.StatusNotFound, http.StatusNotFound)

	configure(t, env, p.ID)

	w = env.do(httptest.NewRequest(http.MethodGet, "/projects/"+p.ID+"/segments", nil))
	data := testutil.AssertJSONResponse(t, w, http.StatusOK, http.StatusOK)
	var segments []models.QuotaSegment
	require.NoError(t, json.Unmarshal(data, &segments))
	assert.NotEmpty(t, segments)

	w = env.do(testutil.CreateJSONRequest(t, http.MethodPost, "/projects/"+p.ID+"/quota-configuration", quota_config.ApplyRequest{
		Geography: "National", QuotaMode: "non-interlocking", TargetSampleSize: 0,
	}))
	testutil.AssertJSONResponse(t, w, http.StatusBadRequest, http.StatusBadRequest)

	w = env.do(testutil.CreateJSONRequest(t, http.MethodPost, "/projects/missing/quota-configuration", quota_config.ApplyRequest{
		Geography: "National", QuotaMode: "non-interlocking", TargetSampleSize: 1000,
	}))
	testutil.AssertJSONResponse(t, w, http.StatusNotFound, http.StatusNotFound)
}

func TestWebhookController_RecordCompletion(t *testing.T) {
	env := newTestEnv(t)
	p := env.factory.CreateProject()
	li := env.factory.CreateLineItem(p.ID, testutil.WithChannel(models.ChannelSMS))
	configure(t, env, p.ID)
	_, key := createKey(t, env, p.ID)

	event := map[string]interface{}{
		"line_item_id":  li.ID,
		"segment_code":  "state_nsw",
		"respondent_id": "r-1",
		"cost":          "1.75",
	}

	t.Run("缺少密钥", func(t *testing.T) {
		w := env.do(webhookRequest(t, "", event))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("登记成功", func(t *testing.T) {
		w := env.do(webhookRequest(t, key, event))
		data := testutil.AssertJSONResponse(t, w, http.StatusCreated, http.StatusCreated)
		var result tracking.CompletionResult
		require.NoError(t, json.Unmarshal(data, &result))
		assert.Equal(t, 1, result.CurrentCount)

		var record models.ResponseRecord
		require.NoError(t, env.db.First(&record, "respondent_id = ?", "r-1").Error)
		assert.Equal(t, p.ID, record.ProjectID)
		assert.Equal(t, models.ChannelSMS, record.Channel)
	})

	t.Run("重复事件", func(t *testing.T) {
		w := env.do(webhookRequest(t, key, event))
		testutil.AssertJSONResponse(t, w, http.StatusConflict, http.StatusConflict)
	})

	t.Run("项目不匹配", func(t *testing.T) {
		other := map[string]interface{}{
			"project_id": "another", "line_item_id": li.ID, "segment_code": "state_nsw", "respondent_id": "r-2",
		}
		w := env.do(webhookRequest(t, key, other))
		testutil.AssertJSONResponse(t, w, http.StatusForbidden, http.StatusForbidden)
	})

	t.Run("格式错误", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/completions", strings.NewReader("{not json"))
		req.Header.Set(middleware.APIKeyHeader, key)
		w := env.do(req)
		testutil.AssertJSONResponse(t, w, http.StatusBadRequest, http.StatusBadRequest)
	})
}

func TestWebhookController_RevokeKey(t *testing.T) {
	env := newTestEnv(t)
	p := env.factory.CreateProject()
	keyID, _ := createKey(t, env, p.ID)

	w := env.do(httptest.NewRequest(http.MethodDelete, "/projects/"+p.ID+"/webhook-keys/"+keyID, nil))
	testutil.AssertJSONResponse(t, w, http.StatusOK, http.StatusOK)

	w = env.do(httptest.NewRequest(http.MethodDelete, "/projects/"+p.ID+"/webhook-keys/missing", nil))
	testutil.AssertJSONResponse(t, w, http.StatusNotFound, http.StatusNotFound)

	w = env.do(testutil.CreateJSONRequest(t, http.MethodPost, "/projects/missing/webhook-keys", CreateKeyRequest{}))
	testutil.AssertJSONResponse(t, w, http.StatusNotFound, http.StatusNotFound)
}

func TestTrackingController_ProgressAndRebuild(t *testing.T) {
	env := newTestEnv(t)
	p := env.factory.CreateProject()
	li := env.factory.CreateLineItem(p.ID)
	configure(t, env, p.ID)

	for _, respondent := range []string{"a", "b"} {
		_, err := env.tracker.RecordCompletion(context.Background(), tracking.CompletionEvent{
			ProjectID: p.ID, LineItemID: li.ID, SegmentCode: "STATE_VIC", RespondentID: respondent, Channel: models.ChannelPanel,
		})
		require.NoError(t, err)
	}

	w := env.do(httptest.NewRequest(http.MethodGet, "/projects/"+p.ID+"/progress", nil))
	data := testutil.AssertJSONResponse(t, w, http.StatusOK, http.StatusOK)
	var progress tracking.ProjectProgress
	require.NoError(t, json.Unmarshal(data, &progress))
	assert.Equal(t, 2, progress.TotalCompletes)

	w = env.do(httptest.NewRequest(http.MethodGet, "/projects/"+p.ID+"/progress?lagging=3", nil))
	data = testutil.AssertJSONResponse(t, w, http.StatusOK, http.StatusOK)
	var withLagging struct {
		Lagging []tracking.SegmentProgress `json:"lagging"`
	}
	require.NoError(t, json.Unmarshal(data, &withLagging))
	assert.Len(t, withLagging.Lagging, 3)

	w = env.do(httptest.NewRequest(http.MethodPost, "/projects/"+p.ID+"/progress/rebuild", nil))
	data = testutil.AssertJSONResponse(t, w, http.StatusOK, http.StatusOK)
	var rebuilt tracking.RebuildResult
	require.NoError(t, json.Unmarshal(data, &rebuilt))
	assert.Equal(t, 2, rebuilt.Responses)

	w = env.do(httptest.NewRequest(http.MethodGet, "/projects/missing/progress", nil))
	testutil.AssertJSONResponse(t, w, http.StatusNotFound, http.StatusNotFound)
}

func TestEventController_StreamsProjectEvents(t *testing.T) {
	env := newTestEnv(t)
	p := env.factory.CreateProject()

	server := httptest.NewServer(env.router)
	defer server.Close()

	resp, err := http.Get(server.URL + "/sse/projects/" + p.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	waitFor := func(prefix string) string {
		deadline := time.After(3 * time.Second)
		for {
			select {
			case line, ok := <-lines:
				require.True(t, ok, "连接意外关闭")
				if strings.HasPrefix(line, prefix) {
					return line
				}
			case <-deadline:
				t.Fatalf("等待 %q 超时", prefix)
			}
		}
	}

	assert.Equal(t, "event: connected", waitFor("event: connected"))
	require.Eventually(t, func() bool { return env.events.ConnectionCount(p.ID) == 1 }, time.Second, 10*time.Millisecond)

	env.events.Publish(&models.FieldworkEvent{Type: models.EventRollupRebuilt, ProjectID: p.ID})
	assert.Equal(t, "event: "+models.EventRollupRebuilt, waitFor("event: "))
	assert.Contains(t, waitFor("data: "), p.ID)
}

func TestEventController_UnknownProject(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(httptest.NewRequest(http.MethodGet, "/sse/projects/missing", nil))
	testutil.AssertJSONResponse(t, w, http.StatusNotFound, http.StatusNotFound)
}
