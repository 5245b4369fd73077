package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStoreConfig 定义了 RedisStore 的配置。
type RedisStoreConfig struct {
	Addr     string
	Password string
	DB       int // 数据库索引

	// KeyPrefix 是所有键的命名空间前缀，避免与同一实例上的其他使用方冲突。
	KeyPrefix string
}

// RedisStore 是一个基于 Redis 的 Store 实现。
// 适用于多个进程需要共享同一份凭据缓存的部署方式。
type RedisStore struct {
	client *redis.Client
	prefix string
	ctx    context.Context // 用于 Redis 操作的上下文
}

// NewRedisStore 创建并返回一个新的 RedisStore 实例。
func NewRedisStore(cfg RedisStoreConfig) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 尝试 Ping Redis 服务器以验证连接。
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("无法连接到 Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "neckar"
	}

	slog.Info("RedisStore 初始化成功", "addr", cfg.Addr, "db", cfg.DB, "prefix", prefix)

	return &RedisStore{
		client: client,
		prefix: prefix,
		ctx:    context.Background(), // 使用一个长期上下文
	}, nil
}

// namespaced 为键加上命名空间前缀
func (rs *RedisStore) namespaced(key string) string {
	return rs.prefix + ":" + key
}

// Set 向 Redis 缓存中添加一个带特定 TTL 的条目。
// ttl <= 0 时以 0 传给 Redis，即永不过期。
func (rs *RedisStore) Set(key string, value []byte, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	err := rs.client.Set(rs.ctx, rs.namespaced(key), value, ttl).Err()
	if err != nil {
		slog.Error("RedisStore: 设置条目失败", "key", key, "error", err)
	} else {
		slog.Debug("RedisStore: 条目已设置", "key", key, "ttl", ttl.String())
	}
}

// Get 从 Redis 缓存中检索一个条目。
// 如果找到且未过期，则返回值和 true。
// 如果条目未找到或已过期，则返回 nil 和 false。
func (rs *RedisStore) Get(key string) ([]byte, bool) {
	val, err := rs.client.Get(rs.ctx, rs.namespaced(key)).Bytes()
	if err == redis.Nil {
		slog.Debug("RedisStore: 缓存未命中或已过期", "key", key)
		return nil, false
	}
	if err != nil {
		slog.Error("RedisStore: 获取条目失败", "key", key, "error", err)
		return nil, false
	}
	slog.Debug("RedisStore: 缓存命中", "key", key)
	return val, true
}

// Flush 删除本客户端命名空间下的所有条目。
// 使用 SCAN 而不是 FLUSHDB，以免影响同一实例上的其他使用方。
func (rs *RedisStore) Flush() {
	var cursor uint64
	pattern := rs.prefix + ":*"
	for {
		keys, next, err := rs.client.Scan(rs.ctx, cursor, pattern, 100).Result()
		if err != nil {
			slog.Error("RedisStore: 扫描键失败", "pattern", pattern, "error", err)
			return
		}
		if len(keys) > 0 {
			if err := rs.client.Del(rs.ctx, keys...).Err(); err != nil {
				slog.Error("RedisStore: 删除键失败", "error", err)
				return
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	slog.Debug("RedisStore: 命名空间已清空", "prefix", rs.prefix)
}

// Stop 关闭 Redis 客户端连接。
func (rs *RedisStore) Stop() {
	err := rs.client.Close()
	if err != nil {
		slog.Error("RedisStore: 关闭 Redis 连接失败", "error", err)
	} else {
		slog.Info("RedisStore: Redis 连接已关闭")
	}
}
