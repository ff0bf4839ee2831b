/*
 * @module service/ingest/webhook_keys
 * @description 网关回调密钥管理：生成、校验、吊销
 * @architecture 分层架构 - 业务服务层
 * @stateFlow 生成明文 -> 存前缀与bcrypt哈希 -> 请求按前缀查找并比对哈希
 * @rules 明文只在创建时返回一次
 * @dependencies golang.org/x/crypto/bcrypt, gorm.io/gorm
 * @refs api/controllers/webhook_controller.go
 */

package ingest

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fieldwork-service/service/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	keyScheme    = "fwk_"
	keyPrefixLen = len(keyScheme) + 8
)

var (
	ErrInvalidAPIKey = errors.New("无效的API Key")
	ErrKeyNotFound   = errors.New("回调密钥不存在")
)

// KeyService 回调密钥服务
type KeyService struct {
	db   *gorm.DB
	cost int
}

// NewKeyService 创建回调密钥服务
func NewKeyService(db *gorm.DB) *KeyService {
	return &KeyService{db: db, cost: bcrypt.DefaultCost}
}

// CreateKey 为项目生成密钥，返回记录与明文
func (s *KeyService) CreateKey(projectID, name string) (*models.WebhookKey, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "gateway"
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, "", fmt.Errorf("生成密钥失败: %w", err)
	}
	plaintext := keyScheme + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), s.cost)
	if err != nil {
		return nil, "", fmt.Errorf("计算密钥哈希失败: %w", err)
	}

	key := &models.WebhookKey{
		ProjectID: projectID,
		Name:      name,
		KeyPrefix: plaintext[:keyPrefixLen],
		KeyHash:   string(hash),
		Status:    models.WebhookKeyStatusActive,
	}
	if err := s.db.Create(key).Error; err != nil {
		return nil, "", fmt.Errorf("保存密钥失败: %w", err)
	}
	return key, plaintext, nil
}

// Authenticate 校验明文密钥，成功后更新最近使用时间
func (s *KeyService) Authenticate(plaintext string) (*models.WebhookKey, error) {
	plaintext = strings.TrimSpace(plaintext)
	if !strings.HasPrefix(plaintext, keyScheme) || len(plaintext) <= keyPrefixLen {
		return nil, ErrInvalidAPIKey
	}

	var candidates []models.WebhookKey
	if err := s.db.Where("key_prefix = ? AND status = ?", plaintext[:keyPrefixLen], models.WebhookKeyStatusActive).
		Find(&candidates).Error; err != nil {
		return nil, err
	}
	for i := range candidates {
		key := &candidates[i]
		if bcrypt.CompareHashAndPassword([]byte(key.KeyHash), []byte(plaintext)) == nil {
			now := time.Now()
			if err := s.db.Model(key).Update("last_used_at", now).Error; err != nil {
				slog.Warn("更新回调密钥使用时间失败", "key_id", key.ID, "error", err)
			}
			key.LastUsedAt = &now
			return key, nil
		}
	}
	return nil, ErrInvalidAPIKey
}

// ListKeys 列出项目的密钥（不含哈希）
func (s *KeyService) ListKeys(projectID string) ([]models.WebhookKey, error) {
	var keys []models.WebhookKey
	err := s.db.Where("project_id = ?", projectID).Order("created_at DESC").Find(&keys).Error
	return keys, err
}

// RevokeKey 吊销密钥
func (s *KeyService) RevokeKey(projectID, keyID string) error {
	res := s.db.Model(&models.WebhookKey{}).
		Where("id = ? AND project_id = ?", keyID, projectID).
		Update("status", models.WebhookKeyStatusRevoked)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrKeyNotFound
	}
	return nil
}
