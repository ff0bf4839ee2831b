/*
 * @module client/quotagen/client
 * @description 外部配额生成服务HTTP客户端，将返回行统一转换为 quota.QuotaCell
 * @architecture 适配器模式 - 封装外部HTTP接口
 * @stateFlow 构建请求 -> POST /quotas/generate -> 宽松解析返回行 -> 补全分段代码
 * @rules 数值字段允许字符串形式；缺少code时按类别与名称生成
 * @dependencies net/http, github.com/spf13/cast
 * @refs service/quota_config/service.go
 */

package quotagen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"fieldwork-service/service/metrics"
	"fieldwork-service/service/quota"

	"github.com/spf13/cast"
)

// ErrEmptyResponse 生成服务未返回任何单元格
var ErrEmptyResponse = errors.New("配额生成服务返回为空")

// Config 客户端配置
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// GenerateRequest 生成请求
type GenerateRequest struct {
	Geography        quota.GeographyScope `json:"geography"`
	GeographyDetail  string               `json:"geography_detail,omitempty"`
	QuotaMode        quota.QuotaMode      `json:"quota_mode"`
	TargetSampleSize int                  `json:"target_sample_size"`
}

// Client 配额生成服务客户端
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate 调用生成服务
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (cells []quota.QuotaCell, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveSince(metrics.OutboundRequestDuration, start, "quotagen", "generate", metrics.Result(err))
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化生成请求失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/quotas/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建生成请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("配额生成请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取生成响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("配额生成失败，状态码: %d, 响应: %s", resp.StatusCode, truncate(string(raw), 512))
	}

	return ParseCells(raw)
}

// ParseCells 解析返回体：数组，或包含 quotas/cells/data 数组的对象
func ParseCells(raw []byte) ([]quota.QuotaCell, error) {
	var rows []map[string]interface{}
	if err := json.Unmarshal(raw, &rows); err != nil {
		var wrapped map[string]json.RawMessage
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("解析生成响应失败: %w", err)
		}
		for _, key := range []string{"quotas", "cells", "data"} {
			if inner, ok := wrapped[key]; ok {
				if err := json.Unmarshal(inner, &rows); err != nil {
					return nil, fmt.Errorf("解析生成响应字段 %s 失败: %w", key, err)
				}
				break
			}
		}
	}
	if len(rows) == 0 {
		return nil, ErrEmptyResponse
	}

	cells := make([]quota.QuotaCell, 0, len(rows))
	for i, row := range rows {
		cell, err := rowToCell(row)
		if err != nil {
			return nil, fmt.Errorf("第%d行: %w", i+1, err)
		}
		cells = append(cells, cell)
	}
	return cells, nil
}

func rowToCell(row map[string]interface{}) (quota.QuotaCell, error) {
	category, err := quota.ParseQuotaCategory(cast.ToString(firstOf(row, "category", "quota_category")))
	if err != nil {
		return quota.QuotaCell{}, err
	}
	name := strings.TrimSpace(cast.ToString(firstOf(row, "name", "segment")))
	if name == "" {
		return quota.QuotaCell{}, errors.New("缺少单元格名称")
	}
	percent, err := cast.ToFloat64E(firstOf(row, "population_percent", "percent"))
	if err != nil {
		return quota.QuotaCell{}, fmt.Errorf("人口比例无效: %w", err)
	}
	target, err := cast.ToIntE(firstOf(row, "target_count", "target"))
	if err != nil {
		// "83.0" 之类的字符串
		f, ferr := cast.ToFloat64E(firstOf(row, "target_count", "target"))
		if ferr != nil {
			return quota.QuotaCell{}, fmt.Errorf("目标数量无效: %w", err)
		}
		target = int(math.Round(f))
	}

	code := strings.TrimSpace(cast.ToString(row["code"]))
	if code == "" {
		code = quota.SegmentCode(category.String(), name)
	}
	return quota.QuotaCell{
		Category:          category,
		Name:              name,
		PopulationPercent: percent,
		TargetCount:       target,
		Code:              code,
	}, nil
}

func firstOf(row map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := row[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
