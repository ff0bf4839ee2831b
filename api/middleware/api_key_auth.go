/*
 * @module api/middleware/api_key_auth
 * @description 网关回调API Key鉴权中间件，校验 X-API-Key 并注入回调密钥信息
 * @architecture 中间件模式 - HTTP请求拦截和验证
 * @stateFlow Key提取 -> 缓存查找 -> bcrypt校验 -> 上下文注入 -> 下一个处理器
 * @rules 校验结果按Key摘要缓存，避免每个请求都做bcrypt比对；吊销最迟在缓存TTL后生效
 * @dependencies net/http, github.com/go-chi/render
 * @refs service/ingest/webhook_keys.go, api/routes.go
 */

package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"fieldwork-service/service/models"

	"github.com/go-chi/render"
)

// ContextKey 上下文键类型
type ContextKey string

// WebhookKeyKey 回调密钥在上下文中的键
const WebhookKeyKey ContextKey = "webhook_key"

// APIKeyHeader 回调密钥请求头
const APIKeyHeader = "X-API-Key"

// KeyAuthenticator 回调密钥校验
type KeyAuthenticator interface {
	Authenticate(plaintext string) (*models.WebhookKey, error)
}

// APIKeyAuthMiddleware API Key认证中间件
type APIKeyAuthMiddleware struct {
	authenticator KeyAuthenticator
	cache         map[string]*cacheEntry
	cacheMutex    sync.RWMutex
	cacheTTL      time.Duration
	now           func() time.Time
}

type cacheEntry struct {
	key       *models.WebhookKey
	expiresAt time.Time
}

// NewAPIKeyAuthMiddleware 创建API Key认证中间件
func NewAPIKeyAuthMiddleware(authenticator KeyAuthenticator, cacheTTL time.Duration) *APIKeyAuthMiddleware {
	return &APIKeyAuthMiddleware{
		authenticator: authenticator,
		cache:         make(map[string]*cacheEntry),
		cacheTTL:      cacheTTL,
		now:           time.Now,
	}
}

// Middleware 认证中间件处理函数
func (m *APIKeyAuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		plaintext := strings.TrimSpace(r.Header.Get(APIKeyHeader))
		if plaintext == "" {
			respondUnauthorized(w, r, "缺少X-API-Key头")
			return
		}

		digest := digestOf(plaintext)
		key := m.getFromCache(digest)
		if key == nil {
			var err error
			key, err = m.authenticator.Authenticate(plaintext)
			if err != nil {
				respondUnauthorized(w, r, "API Key验证失败")
				return
			}
			m.saveToCache(digest, key)
		}

		ctx := context.WithValue(r.Context(), WebhookKeyKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func digestOf(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

func (m *APIKeyAuthMiddleware) getFromCache(digest string) *models.WebhookKey {
	if m.cacheTTL <= 0 {
		return nil
	}
	m.cacheMutex.RLock()
	defer m.cacheMutex.RUnlock()

	entry, ok := m.cache[digest]
	if !ok || m.now().After(entry.expiresAt) {
		return nil
	}
	return entry.key
}

// 超过该条数时写入缓存顺带清理过期项
const maxCacheEntries = 1024

func (m *APIKeyAuthMiddleware) saveToCache(digest string, key *models.WebhookKey) {
	if m.cacheTTL <= 0 {
		return
	}
	m.cacheMutex.Lock()
	m.cache[digest] = &cacheEntry{key: key, expiresAt: m.now().Add(m.cacheTTL)}
	size := len(m.cache)
	m.cacheMutex.Unlock()

	if size > maxCacheEntries {
		m.ClearExpiredCache()
	}
}

// ClearExpiredCache 清理过期缓存，返回清理条数
func (m *APIKeyAuthMiddleware) ClearExpiredCache() int {
	m.cacheMutex.Lock()
	defer m.cacheMutex.Unlock()

	now := m.now()
	cleared := 0
	for digest, entry := range m.cache {
		if now.After(entry.expiresAt) {
			delete(m.cache, digest)
			cleared++
		}
	}
	return cleared
}

// GetWebhookKeyFromContext 从上下文中获取已认证的回调密钥
func GetWebhookKeyFromContext(ctx context.Context) (*models.WebhookKey, bool) {
	key, ok := ctx.Value(WebhookKeyKey).(*models.WebhookKey)
	return key, ok
}

func respondUnauthorized(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, map[string]interface{}{
		"status": http.StatusUnauthorized,
		"msg":    message,
	})
}
