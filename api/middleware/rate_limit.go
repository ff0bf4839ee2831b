/*
 * @module api/middleware/rate_limit
 * @description 入站接口限流中间件，按调用方与全局两层规则检查
 * @architecture 中间件模式
 * @rules 限流器不可用时放行并记录日志；调用方优先取 X-API-Key 前缀，其次取客户端IP
 * @dependencies fieldwork-service/service/rate_limiter
 * @refs api/routes.go
 */

package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fieldwork-service/service/rate_limiter"

	"github.com/go-chi/render"
)

// RateLimitOptions 限流参数
type RateLimitOptions struct {
	WindowSeconds int
	CallerMax     int
	GlobalMax     int
	// CallerMaxFunc 非空时每次请求读取调用方上限，用于运行期可调的配置项
	CallerMaxFunc func() int
}

// RateLimit 创建限流中间件；limiter 为空时不限流
func RateLimit(limiter rate_limiter.Limiter, opts RateLimitOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			current := opts
			if opts.CallerMaxFunc != nil {
				if n := opts.CallerMaxFunc(); n > 0 {
					current.CallerMax = n
				}
			}
			rules := buildRules(CallerID(r), current)
			result, err := limiter.CheckRateLimit(r.Context(), rules)
			if err != nil {
				slog.Warn("限流检查失败，放行请求", "path", r.URL.Path, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if result.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			}
			if !result.Allowed {
				retry := result.ResetAt - time.Now().Unix()
				if retry < 1 {
					retry = 1
				}
				w.Header().Set("Retry-After", strconv.FormatInt(retry, 10))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, map[string]interface{}{
					"status": http.StatusTooManyRequests,
					"msg":    result.Message,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func buildRules(caller string, opts RateLimitOptions) []rate_limiter.RateLimitRule {
	var rules []rate_limiter.RateLimitRule
	if opts.CallerMax > 0 && caller != "" {
		rules = append(rules, rate_limiter.RateLimitRule{
			Type:        rate_limiter.LimitTypeCaller,
			TargetID:    caller,
			TimeWindow:  opts.WindowSeconds,
			MaxRequests: opts.CallerMax,
		})
	}
	if opts.GlobalMax > 0 {
		rules = append(rules, rate_limiter.RateLimitRule{
			Type:        rate_limiter.LimitTypeGlobal,
			TimeWindow:  opts.WindowSeconds,
			MaxRequests: opts.GlobalMax,
		})
	}
	return rules
}

// CallerID 调用方标识
func CallerID(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get(APIKeyHeader)); len(key) >= 12 {
		return "key:" + key[:12]
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
