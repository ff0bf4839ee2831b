/*
 * @module service/rate_limiter/redis_rate_limiter
 * @description 基于Redis的固定窗口限流，保护面板代理与回调接口（全局 + 调用方两层）
 * @architecture 工具层 - 提供分布式限流能力
 * @stateFlow 检查限流规则 -> Redis计数 -> 判断是否超限
 * @rules 使用Lua脚本保证 INCR 与 EXPIRE 的原子性；调用方规则优先于全局规则
 * @dependencies github.com/go-redis/redis/v8
 * @refs api/middleware/rate_limit.go
 */

package rate_limiter

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
)

// 限流类型
const (
	LimitTypeGlobal = "global"
	LimitTypeCaller = "caller"
)

// RateLimitResult 限流检查结果
type RateLimitResult struct {
	Allowed       bool   `json:"allowed"`
	Limit         int    `json:"limit"`
	Remaining     int    `json:"remaining"`
	ResetAt       int64  `json:"reset_at"`
	RateLimitType string `json:"limit_type"`
	Message       string `json:"message"`
}

// RateLimitRule 限流规则
type RateLimitRule struct {
	Type        string // global/caller
	TargetID    string // 调用方标识，全局时为空
	TimeWindow  int    // 秒
	MaxRequests int
}

// Limiter 限流检查接口
type Limiter interface {
	CheckRateLimit(ctx context.Context, rules []RateLimitRule) (*RateLimitResult, error)
}

var limitScript = redis.NewScript(`
	local key = KEYS[1]
	local max_requests = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])

	local current = tonumber(redis.call('GET', key) or "0")
	if current >= max_requests then
		local ttl = redis.call('TTL', key)
		if ttl < 0 then ttl = window end
		return {0, current, ttl}
	end

	local new_count = redis.call('INCR', key)
	if new_count == 1 then
		redis.call('EXPIRE', key, window)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then ttl = window end
	return {1, new_count, ttl}
`)

// RedisRateLimiter Redis限流器
type RedisRateLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRateLimiter 基于已有客户端创建限流器
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, now: time.Now}
}

// CheckRateLimit 依次检查规则（调用方 -> 全局），任一层超限即拒绝
func (r *RedisRateLimiter) CheckRateLimit(ctx context.Context, rules []RateLimitRule) (*RateLimitResult, error) {
	if len(rules) == 0 {
		return &RateLimitResult{Allowed: true, Limit: -1, Remaining: -1, RateLimitType: "none", Message: "无限流规则"}, nil
	}

	var last *RateLimitResult
	for _, rule := range sortRulesByPriority(rules) {
		result, err := r.checkSingleRule(ctx, rule)
		if err != nil {
			return nil, err
		}
		if !result.Allowed {
			return result, nil
		}
		last = result
	}
	return last, nil
}

func (r *RedisRateLimiter) checkSingleRule(ctx context.Context, rule RateLimitRule) (*RateLimitResult, error) {
	key := buildRateLimitKey(rule, r.now())

	values, err := limitScript.Run(ctx, r.client, []string{key}, rule.MaxRequests, rule.TimeWindow).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("限流检查失败: %w", err)
	}
	if len(values) != 3 {
		return nil, fmt.Errorf("限流脚本返回值异常: %v", values)
	}

	allowed := values[0] == 1
	remaining := rule.MaxRequests - int(values[1])
	if remaining < 0 {
		remaining = 0
	}

	message := "允许请求"
	if !allowed {
		message = fmt.Sprintf("超过%s限流限制", rateLimitTypeName(rule.Type))
	}

	return &RateLimitResult{
		Allowed:       allowed,
		Limit:         rule.MaxRequests,
		Remaining:     remaining,
		ResetAt:       r.now().Add(time.Duration(values[2]) * time.Second).Unix(),
		RateLimitType: rule.Type,
		Message:       message,
	}, nil
}

// ResetRateLimit 清除当前窗口计数（管理/测试用）
func (r *RedisRateLimiter) ResetRateLimit(ctx context.Context, rule RateLimitRule) error {
	return r.client.Del(ctx, buildRateLimitKey(rule, r.now())).Err()
}

func buildRateLimitKey(rule RateLimitRule, now time.Time) string {
	window := rule.TimeWindow
	if window <= 0 {
		window = 1
	}
	bucket := now.Unix() / int64(window)
	if rule.Type == LimitTypeGlobal {
		return fmt.Sprintf("fieldwork:rate_limit:%s:%d", rule.Type, bucket)
	}
	return fmt.Sprintf("fieldwork:rate_limit:%s:%s:%d", rule.Type, rule.TargetID, bucket)
}

func sortRulesByPriority(rules []RateLimitRule) []RateLimitRule {
	priority := map[string]int{LimitTypeCaller: 2, LimitTypeGlobal: 1}

	sorted := make([]RateLimitRule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return priority[sorted[i].Type] > priority[sorted[j].Type]
	})
	return sorted
}

func rateLimitTypeName(limitType string) string {
	switch limitType {
	case LimitTypeGlobal:
		return "全局"
	case LimitTypeCaller:
		return "调用方"
	default:
		return "未知"
	}
}
