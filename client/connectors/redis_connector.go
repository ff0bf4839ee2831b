/*
 * @module RedisConnector
 * @description Redis连接器，按环境变量创建共享客户端，供分布式锁与限流器使用
 * @architecture 适配器模式 - 封装第三方Redis客户端
 * @stateFlow 读取配置 -> 建立连接 -> Ping检查 -> 交给调用方
 * @rules Redis为可选依赖；未配置 REDIS_HOST 时调用方应降级为单实例模式
 * @dependencies github.com/go-redis/redis/v8
 * @refs service/distributed_lock/redis_lock.go, service/rate_limiter/redis_rate_limiter.go
 */
package connectors

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisConfig Redis配置信息
type RedisConfig struct {
	Address      string        `json:"address" yaml:"address"`
	Password     string        `json:"password" yaml:"password"`
	Database     int           `json:"database" yaml:"database"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `json:"min_idle_conns" yaml:"min_idle_conns"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
}

// RedisConfigFromEnv 读取 REDIS_HOST/REDIS_PORT/REDIS_PASSWORD/REDIS_DB；
// 未设置 REDIS_HOST 时返回 false
func RedisConfigFromEnv() (*RedisConfig, bool) {
	host := os.Getenv("REDIS_HOST")
	if host == "" {
		return nil, false
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))

	return &RedisConfig{
		Address:      fmt.Sprintf("%s:%s", host, port),
		Password:     os.Getenv("REDIS_PASSWORD"),
		Database:     db,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}, true
}

// NewRedisClient 创建Redis客户端并检查连通性
func NewRedisClient(ctx context.Context, config *RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Address,
		Password:     config.Password,
		DB:           config.Database,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("Redis连接失败: %w", err)
	}

	slog.Info("Redis连接成功", "address", config.Address, "db", config.Database)
	return client, nil
}
