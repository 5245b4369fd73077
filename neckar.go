// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

// Package neckar 是 Neckar 平台的客户端库。
// 它负责认证（直连 OIDC 或经由 Vault 中转）、GraphQL 查询执行和两阶段文件上传，
// 所有昂贵的凭据获取都经过一个带过期时间的内存缓存。
package neckar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"neckar/configs"
	"neckar/internal/auth"
	"neckar/internal/cache"
	"neckar/internal/transport"
)

// Client 是 Neckar 平台的客户端。
// 每个客户端独占一份凭据缓存；除缓存内部状态外，所有字段在构造后不再变更。
type Client struct {
	cfg      configs.Config
	store    cache.Store
	coord    *cache.Coordinator
	caller   transport.Caller
	provider auth.TokenProvider

	// 身份上下文，通过 Login 以不可变方式叠加
	cluster string
	subject string
}

// New 根据配置创建一个客户端。
// 认证策略由配置块的存在情况决定，凭据缓存的后端由 Cache 配置决定。
func New(cfg configs.Config) (*Client, error) {
	store, err := cache.NewStoreFactory(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("初始化凭据缓存失败: %w", err)
	}

	coord := cache.NewCoordinator(store)
	caller := transport.NewHTTPCaller(time.Duration(cfg.Neckar.TimeoutSeconds) * time.Second)

	provider, err := auth.NewProvider(&cfg, coord, caller)
	if err != nil {
		store.Stop()
		return nil, fmt.Errorf("初始化认证策略失败: %w", err)
	}

	return &Client{
		cfg:      cfg,
		store:    store,
		coord:    coord,
		caller:   caller,
		provider: provider,
	}, nil
}

// Login 返回一个叠加了集群/主体身份的新客户端值，原客户端不受影响。
// 新旧客户端共享同一份凭据缓存。
func (c *Client) Login(cluster, subject string) *Client {
	clone := *c
	clone.cluster = cluster
	clone.subject = subject
	return &clone
}

// Cluster 返回通过 Login 叠加的集群身份，未登录时为空。
func (c *Client) Cluster() string { return c.cluster }

// Subject 返回通过 Login 叠加的主体身份，未登录时为空。
func (c *Client) Subject() string { return c.subject }

// FlushCache 清空凭据缓存，下一次调用将重新获取全部凭据。
func (c *Client) FlushCache() {
	c.coord.Flush()
}

// Close 释放客户端持有的资源（缓存后台任务、连接池）。
func (c *Client) Close() {
	c.store.Stop()
}

// authHeaders 组装认证和身份头部。
// 未配置认证时不带 Authorization 头部，请求以匿名方式发出。
func (c *Client) authHeaders(ctx context.Context) (map[string]string, error) {
	headers := make(map[string]string)

	token, err := c.provider.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	if c.cluster != "" {
		headers["X-Neckar-Cluster"] = c.cluster
	}
	if c.subject != "" {
		headers["X-Neckar-Subject"] = c.subject
	}
	return headers, nil
}

// userinfoSource 由支持 userinfo 的认证策略实现
type userinfoSource interface {
	UserinfoEndpoint(ctx context.Context) (string, error)
}

// Userinfo 用当前令牌访问 OIDC userinfo 端点并返回解码后的声明。
func (c *Client) Userinfo(ctx context.Context) (map[string]any, error) {
	source, ok := c.provider.(userinfoSource)
	if !ok {
		return nil, fmt.Errorf("当前认证策略不支持 userinfo")
	}

	endpoint, err := source.UserinfoEndpoint(ctx)
	if err != nil {
		return nil, err
	}

	headers, err := c.authHeaders(ctx)
	if err != nil {
		return nil, err
	}

	status, body, err := c.caller.Do(ctx, http.MethodGet, endpoint, headers, nil)
	if err != nil {
		return nil, fmt.Errorf("userinfo 请求失败: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("userinfo 请求返回 %d: %s", status, body)
	}

	var claims map[string]any
	if err := json.Unmarshal(body, &claims); err != nil {
		return nil, fmt.Errorf("解析 userinfo 响应失败: %w", err)
	}
	return claims, nil
}
