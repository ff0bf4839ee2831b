/*
 * @module service/distributed_lock/redis_lock
 * @description Redis分布式锁，保证多实例部署时同一项目的进度重建只在一个实例上执行
 * @architecture 工具层 - 提供分布式锁能力
 * @stateFlow 获取锁 -> 重建汇总 -> 释放锁/自动过期
 * @rules 使用Redis SET NX实现，只有持有者可以释放或续期
 * @dependencies github.com/go-redis/redis/v8
 * @refs service/tracking/service.go, service/scheduler/scheduler_service.go
 */

package distributed_lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "fieldwork:lock:"

// ErrLockHeld 锁已被其他实例持有
var ErrLockHeld = errors.New("锁已被其他实例持有")

// DistributedLock 分布式锁接口
type DistributedLock interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
	Refresh(ctx context.Context, key string, ttl time.Duration) error
}

// 持有者校验后删除
var unlockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// 持有者校验后续期
var refreshScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("expire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

// RedisLock Redis分布式锁实现
type RedisLock struct {
	client     *redis.Client
	instanceID string
}

// NewRedisLock 基于已有客户端创建分布式锁，实例ID为 主机名:进程号
func NewRedisLock(client *redis.Client) *RedisLock {
	hostname, _ := os.Hostname()
	instanceID := fmt.Sprintf("%s:%d", hostname, os.Getpid())

	slog.Info("Redis分布式锁初始化成功", "instance_id", instanceID)
	return &RedisLock{client: client, instanceID: instanceID}
}

// TryLock 尝试获取锁
func (r *RedisLock) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, keyPrefix+key, r.instanceID, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("获取锁失败: %w", err)
	}
	if ok {
		slog.Debug("分布式锁: 成功获取锁", "key", key, "ttl", ttl, "instance", r.instanceID)
	}
	return ok, nil
}

// Unlock 释放锁
func (r *RedisLock) Unlock(ctx context.Context, key string) error {
	n, err := unlockScript.Run(ctx, r.client, []string{keyPrefix + key}, r.instanceID).Int64()
	if err != nil {
		return fmt.Errorf("释放锁失败: %w", err)
	}
	if n == 0 {
		slog.Warn("分布式锁: 锁不存在或已被其他实例持有", "key", key, "instance", r.instanceID)
	}
	return nil
}

// Refresh 刷新锁的过期时间
func (r *RedisLock) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, r.client, []string{keyPrefix + key}, r.instanceID, int(ttl.Seconds())).Int64()
	if err != nil {
		return fmt.Errorf("刷新锁失败: %w", err)
	}
	if n == 0 {
		return ErrLockHeld
	}
	return nil
}

// LockExecutor 带锁执行器
type LockExecutor struct {
	lock DistributedLock
}

// NewLockExecutor 创建带锁执行器
func NewLockExecutor(lock DistributedLock) *LockExecutor {
	return &LockExecutor{lock: lock}
}

// ExecuteWithLock 在锁保护下执行函数；锁被占用时返回 ErrLockHeld
//
// ttl 超过 refreshInterval 时后台定期续期，直到 fn 返回。
func (e *LockExecutor) ExecuteWithLock(ctx context.Context, key string, ttl, refreshInterval time.Duration, fn func() error) error {
	locked, err := e.lock.TryLock(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !locked {
		return ErrLockHeld
	}

	defer func() {
		// 释放锁不受调用方取消影响
		if unlockErr := e.lock.Unlock(context.Background(), key); unlockErr != nil {
			slog.Error("分布式锁: 释放锁失败", "key", key, "error", unlockErr)
		}
	}()

	if refreshInterval > 0 && refreshInterval < ttl {
		refreshCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			ticker := time.NewTicker(refreshInterval)
			defer ticker.Stop()
			for {
				select {
				case <-refreshCtx.Done():
					return
				case <-ticker.C:
					if err := e.lock.Refresh(refreshCtx, key, ttl); err != nil {
						slog.Error("分布式锁: 续期失败", "key", key, "error", err)
					}
				}
			}
		}()
	}

	return fn()
}
