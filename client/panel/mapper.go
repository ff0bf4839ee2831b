package panel

import (
	"crypto/sha1"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
)

// SegmentQuota 一个分段在某执行明细上的配额，映射脚本的输入
type SegmentQuota struct {
	Code              string  `json:"code"`
	Name              string  `json:"name"`
	Category          string  `json:"category"`
	Quota             int     `json:"quota"`
	PopulationPercent float64 `json:"population_percent"`
}

// ProviderQuota 供应商侧的配额定义
type ProviderQuota map[string]interface{}

type mapFunc func(map[string]interface{}) (map[string]interface{}, error)

type compiledMapper struct {
	fn       mapFunc
	compiled time.Time
}

// Mapper 分段到供应商定向的映射器
//
// 脚本需定义 func Map(segment map[string]interface{}) (map[string]interface{}, error)，
// 可省略 package 声明。编译结果按脚本哈希缓存。
type Mapper struct {
	mu    sync.RWMutex
	cache map[string]*compiledMapper
}

// NewMapper 创建映射器
func NewMapper() *Mapper {
	return &Mapper{cache: make(map[string]*compiledMapper)}
}

// DefaultMapping 未配置脚本时的映射
func DefaultMapping(seg SegmentQuota) ProviderQuota {
	return ProviderQuota{
		"quota_id": seg.Code,
		"name":     seg.Name,
		"limit":    seg.Quota,
	}
}

// Map 执行映射；script 为空时使用默认映射
func (m *Mapper) Map(script string, seg SegmentQuota) (ProviderQuota, error) {
	if strings.TrimSpace(script) == "" {
		return DefaultMapping(seg), nil
	}

	fn, err := m.load(script)
	if err != nil {
		return nil, err
	}

	out, err := fn(map[string]interface{}{
		"code":               seg.Code,
		"name":               seg.Name,
		"category":           seg.Category,
		"quota":              seg.Quota,
		"population_percent": seg.PopulationPercent,
	})
	if err != nil {
		return nil, fmt.Errorf("映射脚本执行失败 segment=%s: %w", seg.Code, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("映射脚本返回为空 segment=%s", seg.Code)
	}
	return ProviderQuota(out), nil
}

// Validate 编译脚本但不缓存
func (m *Mapper) Validate(script string) error {
	_, err := compile(script)
	return err
}

// CacheSize 已缓存的脚本数
func (m *Mapper) CacheSize() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

func (m *Mapper) load(script string) (mapFunc, error) {
	hash := fmt.Sprintf("%x", sha1.Sum([]byte(script)))

	m.mu.RLock()
	c, ok := m.cache[hash]
	m.mu.RUnlock()
	if ok {
		return c.fn, nil
	}

	fn, err := compile(script)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[hash] = &compiledMapper{fn: fn, compiled: time.Now()}
	m.mu.Unlock()
	return fn, nil
}

func compile(script string) (mapFunc, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("加载标准库失败: %w", err)
	}

	src := script
	if !strings.HasPrefix(strings.TrimSpace(script), "package ") {
		src = "package main\n\n" + script
	}
	if _, err := i.Eval(src); err != nil {
		return nil, fmt.Errorf("映射脚本编译失败: %w", err)
	}

	v, err := i.Eval("Map")
	if err != nil {
		return nil, fmt.Errorf("映射脚本缺少 Map 函数: %w", err)
	}
	fn, ok := v.Interface().(func(map[string]interface{}) (map[string]interface{}, error))
	if !ok {
		return nil, fmt.Errorf("Map 函数签名必须是 func(map[string]interface{}) (map[string]interface{}, error)")
	}
	return fn, nil
}
