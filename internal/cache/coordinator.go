// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package cache

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// NoCache 作为 AcquireFunc 返回的 TTL 时表示结果仅对本次调用有效，不写入缓存。
const NoCache time.Duration = -1

// AcquireFunc 是一个延迟执行、可能失败的获取操作。
// 成功时返回取得的值和一个相对有效期：ttl > 0 表示有效期，
// ttl == 0 表示永不过期，ttl < 0（NoCache）表示不缓存。
type AcquireFunc func(ctx context.Context) (value []byte, ttl time.Duration, err error)

// Coordinator 在 Store 之上实现"有缓存则复用，无缓存则获取"的协调逻辑。
// 所有昂贵的外部调用（OIDC 发现、令牌请求、Vault 登录）都应通过它包装。
type Coordinator struct {
	store Store
	group singleflight.Group

	// now 用于获取当前时间，测试时可以注入假时钟
	now func() time.Time
}

// NewCoordinator 创建一个绑定到给定 Store 的协调器。
func NewCoordinator(store Store) *Coordinator {
	return &Coordinator{
		store: store,
		now:   time.Now,
	}
}

// WithCache 返回 key 对应的有效缓存值；缓存缺失或已过期时执行 acquire 并缓存结果。
//
//  1. 缓存命中时直接返回，acquire 不会被调用。
//  2. 未命中时记录 t0 并执行 acquire。
//  3. acquire 失败时错误原样向上传播，不缓存任何内容。
//  4. acquire 成功时以 t0 为锚点计算绝对过期时间（t0 + ttl）再写入缓存。
//     锚定在获取开始而非完成的时刻，获取本身耗时较长时有效窗口只会缩短，
//     令牌绝不会在服务端过期之后仍被视为有效；窗口缩短到零或为负时
//     结果直接返回而不缓存。
//
// 同一 key 上并发的冷启动调用通过 singleflight 合并为一次获取，
// 等待者共享同一个结果（或同一个错误）。
func (c *Coordinator) WithCache(ctx context.Context, key string, acquire AcquireFunc) ([]byte, error) {
	if value, found := c.store.Get(key); found {
		return value, nil
	}

	v, err, shared := c.group.Do(key, func() (any, error) {
		// 拿到执行权后再查一次缓存：排队等待期间可能已有并发调用完成写入
		if value, found := c.store.Get(key); found {
			return value, nil
		}

		t0 := c.now()
		value, ttl, err := acquire(ctx)
		if err != nil {
			return nil, err
		}

		switch {
		case ttl < 0:
			// 获取方声明结果不可缓存，仅本次调用有效
		case ttl == 0:
			c.store.Set(key, value, 0)
		default:
			// 以 t0 为锚点换算出写入时刻的剩余有效期。
			// 获取耗时达到或超过 ttl 时剩余有效期不为正，此时写入
			// 会和"永不过期"的哨兵值混淆，只能跳过缓存，下次调用重新获取。
			remaining := t0.Add(ttl).Sub(c.now())
			if remaining > 0 {
				c.store.Set(key, value, remaining)
			} else {
				slog.Warn("获取耗时超过了值的有效期，结果不缓存", "key", key, "ttl", ttl.String())
			}
		}
		return value, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		slog.Debug("并发获取已合并", "key", key)
	}
	return v.([]byte), nil
}

// Flush 清空底层缓存的所有条目。
func (c *Coordinator) Flush() {
	c.store.Flush()
}
