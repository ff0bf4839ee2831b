/*
 * @module testutil/test_helper
 * @description 测试工具和辅助函数
 * @architecture 测试基础设施 - 提供测试通用工具和数据工厂
 * @stateFlow 测试环境初始化 -> 测试数据创建 -> 测试执行 -> 清理资源
 * @rules 提供可重用的测试工具，确保测试环境的一致性
 * @dependencies gorm, sqlite, testify, uuid
 * @refs service/models
 */

package testutil

import (
	"bytes"
	"encoding/json"
	"fieldwork-service/service/database"
	"fieldwork-service/service/models"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewTestDB 创建独立的内存数据库并迁移全部模型
//
// 每次调用使用唯一的共享缓存库名，单连接，避免测试之间互相干扰。
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err, "连接测试数据库失败")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db), "迁移测试数据库失败")

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// TestDataFactory 测试数据工厂
type TestDataFactory struct {
	DB *gorm.DB
	t  *testing.T
}

// NewTestDataFactory 创建测试数据工厂
func NewTestDataFactory(t *testing.T, db *gorm.DB) *TestDataFactory {
	return &TestDataFactory{DB: db, t: t}
}

// ProjectOption 项目选项函数类型
type ProjectOption func(*models.Project)

// CreateProject 创建测试项目
func (f *TestDataFactory) CreateProject(opts ...ProjectOption) *models.Project {
	project := &models.Project{
		Name:       "测试项目",
		ClientName: "Test Client",
		Status:     models.ProjectStatusFielding,
		CreatedBy:  "test",
	}
	for _, opt := range opts {
		opt(project)
	}
	require.NoError(f.t, f.DB.Create(project).Error)
	return project
}

// LineItemOption 明细选项函数类型
type LineItemOption func(*models.LineItem)

// WithChannel 指定渠道
func WithChannel(channel string) LineItemOption {
	return func(li *models.LineItem) { li.Channel = channel }
}

// WithTarget 指定目标样本量
func WithTarget(n int) LineItemOption {
	return func(li *models.LineItem) { li.TargetSampleSize = n }
}

// CreateLineItem 创建测试明细
func (f *TestDataFactory) CreateLineItem(projectID string, opts ...LineItemOption) *models.LineItem {
	item := &models.LineItem{
		ProjectID:        projectID,
		Name:             "Online panel",
		Channel:          models.ChannelPanel,
		TargetSampleSize: 1000,
		CostPerComplete:  decimal.NewFromFloat(4.5),
		Status:           models.LineItemStatusLive,
	}
	for _, opt := range opts {
		opt(item)
	}
	require.NoError(f.t, f.DB.Create(item).Error)
	return item
}

// MockEventPublisher Mock事件发布器
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(event *models.FieldworkEvent) {
	m.Called(event)
}

// CreateJSONRequest 创建JSON请求
func CreateJSONRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req := httptest.NewRequest(method, url, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// DecodeEnvelope 解析统一响应结构
func DecodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) (status int, msg string, data json.RawMessage) {
	t.Helper()

	var body struct {
		Status int             `json:"status"`
		Msg    string          `json:"msg"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), "响应不是合法JSON: %s", w.Body.String())
	return body.Status, body.Msg, body.Data
}

// AssertJSONResponse 断言HTTP状态码与业务状态码
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedHTTP, expectedStatus int) json.RawMessage {
	t.Helper()

	assert.Equal(t, expectedHTTP, w.Code, w.Body.String())
	status, _, data := DecodeEnvelope(t, w)
	assert.Equal(t, expectedStatus, status, w.Body.String())
	return data
}
