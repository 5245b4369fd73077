// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package cache

import (
	"time"
)

// Store 定义了凭据缓存的通用接口。
// 任何缓存实现（如内存缓存或 Redis 缓存）都必须实现此接口。
type Store interface {
	// Set 向缓存中添加一个带特定 TTL 的条目。
	// ttl <= 0 表示该条目永不过期。
	Set(key string, value []byte, ttl time.Duration)

	// Get 从缓存中检索一个条目。如果找到且未过期，则返回值和 true。
	// 如果条目未找到或已过期，则返回 nil 和 false。
	// 过期的条目在被访问时会被删除。
	Get(key string) ([]byte, bool)

	// Flush 清空缓存中的所有条目。
	Flush()

	// Stop 用于停止缓存的后台清理或释放资源，以实现优雅关闭。
	// 对于内存缓存，这可能用于停止清理 goroutine；对于 Redis 缓存，这可能用于关闭连接池。
	Stop()
}
