/*
 * @module client/panel/client
 * @description 样本供应商（在线样本库）HTTP客户端：推送配额、拉取调查回收统计
 * @architecture 适配器模式 - 封装供应商认证、限速与HTTP请求
 * @stateFlow 令牌桶等待 -> 携带API Key请求 -> 状态码检查 -> 解析响应
 * @rules 所有请求共享一个令牌桶；供应商返回429时按 Retry-After 重试一次
 * @dependencies net/http, golang.org/x/time/rate
 * @refs service/panel_sync/service.go
 */

package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"fieldwork-service/service/metrics"

	"golang.org/x/time/rate"
)

// ErrNotConfigured 未配置供应商地址
var ErrNotConfigured = errors.New("未配置样本供应商接口")

// Config 客户端配置
type Config struct {
	BaseURL           string
	APIKey            string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// PushResult 推送结果
type PushResult struct {
	SurveyID string `json:"survey_id"`
	Accepted int    `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

// QuotaStat 供应商侧单个配额的回收情况
type QuotaStat struct {
	QuotaID   string `json:"quota_id"`
	Limit     int    `json:"limit"`
	Completes int    `json:"completes"`
}

// SurveyStats 调查回收统计
type SurveyStats struct {
	SurveyID  string      `json:"survey_id"`
	Status    string      `json:"status"`
	Completes int         `json:"completes"`
	Starts    int         `json:"starts"`
	Quotas    []QuotaStat `json:"quotas"`
}

// Client 样本供应商客户端
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter

	requestCount atomic.Int64
	errorCount   atomic.Int64
}

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// PushQuotas 覆盖推送调查的全部配额
func (c *Client) PushQuotas(ctx context.Context, surveyID string, quotas []ProviderQuota) (*PushResult, error) {
	var result PushResult
	body := map[string]interface{}{"quotas": quotas}
	if err := c.do(ctx, "push_quotas", http.MethodPut, "/surveys/"+url.PathEscape(surveyID)+"/quotas", body, &result); err != nil {
		return nil, err
	}
	if result.SurveyID == "" {
		result.SurveyID = surveyID
	}
	return &result, nil
}

// GetSurveyStats 获取调查回收统计
func (c *Client) GetSurveyStats(ctx context.Context, surveyID string) (*SurveyStats, error) {
	var stats SurveyStats
	if err := c.do(ctx, "survey_stats", http.MethodGet, "/surveys/"+url.PathEscape(surveyID)+"/stats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetStatistics 客户端调用统计
func (c *Client) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"request_count": c.requestCount.Load(),
		"error_count":   c.errorCount.Load(),
	}
}

func (c *Client) do(ctx context.Context, operation, method, path string, in, out interface{}) (err error) {
	if c.baseURL == "" {
		return ErrNotConfigured
	}

	start := time.Now()
	defer func() {
		metrics.ObserveSince(metrics.OutboundRequestDuration, start, "panel", operation, metrics.Result(err))
		if err != nil {
			c.errorCount.Add(1)
		}
	}()

	var payload []byte
	if in != nil {
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("序列化请求失败: %w", err)
		}
	}

	for attempt := 0; attempt < 2; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("等待限速令牌失败: %w", err)
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("创建HTTP请求失败: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.apiKey != "" {
			req.Header.Set("X-API-Key", c.apiKey)
		}

		c.requestCount.Add(1)
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("HTTP请求失败: %w", err)
		}
		raw, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("读取响应失败: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt == 0 {
			if wait := retryAfter(resp.Header.Get("Retry-After")); wait > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(wait):
				}
			}
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("供应商接口返回错误，状态码: %d, 响应: %s", resp.StatusCode, string(raw))
		}
		if out != nil && len(raw) > 0 {
			if err := json.Unmarshal(raw, out); err != nil {
				return fmt.Errorf("解析响应失败: %w", err)
			}
		}
		return nil
	}
	return fmt.Errorf("供应商接口持续限流")
}

// retryAfter 解析秒数形式的 Retry-After，上限10秒
func retryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	if secs > 10 {
		secs = 10
	}
	return time.Duration(secs) * time.Second
}
