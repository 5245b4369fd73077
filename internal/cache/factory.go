// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package cache

import (
	"fmt"
	"log/slog"
	"time"

	"neckar/configs"
)

// NewStoreFactory 根据配置创建并返回一个 Store 实例。
func NewStoreFactory(cfg configs.CacheConfig) (Store, error) {
	switch cfg.Type {
	case "in-memory", "":
		slog.Info("正在初始化 In-Memory 凭据缓存")
		return NewMemoryStore(time.Duration(cfg.CleanupSeconds) * time.Second), nil
	case "redis":
		slog.Info("正在初始化 Redis 凭据缓存")
		redisCfg := RedisStoreConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.KeyPrefix,
		}
		return NewRedisStore(redisCfg)
	default:
		return nil, fmt.Errorf("不支持的 cache 类型: %s", cfg.Type)
	}
}
