package panel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushQuotas(t *testing.T) {
	var received struct {
		Quotas []map[string]interface{} `json:"quotas"`
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/surveys/S-100/quotas", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"accepted": 2}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL + "/", APIKey: "secret", RequestsPerSecond: 100})
	result, err := c.PushQuotas(context.Background(), "S-100", []ProviderQuota{
		{"quota_id": "STATE_NSW", "limit": 320},
		{"quota_id": "STATE_VIC", "limit": 260},
	})
	require.NoError(t, err)
	assert.Equal(t, "S-100", result.SurveyID)
	assert.Equal(t, 2, result.Accepted)
	require.Len(t, received.Quotas, 2)
	assert.Equal(t, "STATE_NSW", received.Quotas[0]["quota_id"])
}

func TestGetSurveyStats(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/surveys/S-1/stats", r.URL.Path)
		w.Write([]byte(`{"survey_id":"S-1","status":"live","completes":12,"starts":40,"quotas":[{"quota_id":"STATE_NSW","limit":320,"completes":12}]}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, RequestsPerSecond: 100})
	stats, err := c.GetSurveyStats(context.Background(), "S-1")
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Completes)
	require.Len(t, stats.Quotas, 1)
	assert.Equal(t, 320, stats.Quotas[0].Limit)
}

func TestRetryOnTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"survey_id":"S-1","completes":1}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, RequestsPerSecond: 100})
	stats, err := c.GetSurveyStats(context.Background(), "S-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Completes)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(2), c.GetStatistics()["request_count"])
}

func TestErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad survey", http.StatusBadRequest)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, RequestsPerSecond: 100})
	_, err := c.GetSurveyStats(context.Background(), "S-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Equal(t, int64(1), c.GetStatistics()["error_count"])
}

func TestNotConfigured(t *testing.T) {
	c := NewClient(Config{})
	_, err := c.GetSurveyStats(context.Background(), "S-1")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestRateLimiterHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL, RequestsPerSecond: 0.1, Burst: 1})
	_, err := c.GetSurveyStats(context.Background(), "S-1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.GetSurveyStats(ctx, "S-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "限速")
}

func TestRetryAfter(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryAfter(""))
	assert.Equal(t, 2*time.Second, retryAfter("2"))
	assert.Equal(t, 10*time.Second, retryAfter("120"))
}
