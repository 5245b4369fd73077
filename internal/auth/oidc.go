// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"neckar/configs"
	"neckar/internal/cache"
	"neckar/internal/transport"
)

const (
	// 缓存键。每个缓存量独立成键，过期互不影响。
	keyOIDCConfig = "oidc-config"
	keyOIDCToken  = "oidc"

	// 发现文档的固定缓存时长
	discoveryTTL = time.Hour

	// DefaultScope 是未显式配置 scope 时使用的默认值
	DefaultScope = "openid email profile"
)

// DiscoveryDocument 是 OIDC 发现文档中本客户端关心的字段
type DiscoveryDocument struct {
	Issuer           string `json:"issuer"`
	TokenEndpoint    string `json:"token_endpoint"`
	UserinfoEndpoint string `json:"userinfo_endpoint"`
}

// tokenResponse 是密码授权令牌响应中本客户端关心的字段
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// OIDCProvider 实现直连 OIDC 密码授权策略。
// auth 为 nil 时只提供发现文档，Token 返回"无令牌"。
type OIDCProvider struct {
	realm  string
	auth   *configs.AuthConfig
	coord  *cache.Coordinator
	caller transport.Caller
}

// NewOIDCProvider 创建一个直连 OIDC 提供者。
func NewOIDCProvider(realm string, auth *configs.AuthConfig, coord *cache.Coordinator, caller transport.Caller) *OIDCProvider {
	return &OIDCProvider{
		realm:  realm,
		auth:   auth,
		coord:  coord,
		caller: caller,
	}
}

// discoveryURL 拼出发现文档的地址
func (p *OIDCProvider) discoveryURL() string {
	return strings.TrimSuffix(p.realm, "/") + "/.well-known/openid-configuration"
}

// Discovery 返回 realm 的 OIDC 发现文档，结果缓存一小时。
func (p *OIDCProvider) Discovery(ctx context.Context) (DiscoveryDocument, error) {
	raw, err := p.coord.WithCache(ctx, keyOIDCConfig, func(ctx context.Context) ([]byte, time.Duration, error) {
		status, body, err := p.caller.Do(ctx, http.MethodGet, p.discoveryURL(), nil, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("获取 OIDC 发现文档失败: %w", err)
		}
		if status != http.StatusOK {
			return nil, 0, fmt.Errorf("OIDC 发现文档请求返回 %d", status)
		}
		return body, discoveryTTL, nil
	})
	if err != nil {
		return DiscoveryDocument{}, err
	}

	var doc DiscoveryDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return DiscoveryDocument{}, fmt.Errorf("解析 OIDC 发现文档失败: %w", err)
	}
	return doc, nil
}

// UserinfoEndpoint 返回发现文档中的 userinfo 地址。
func (p *OIDCProvider) UserinfoEndpoint(ctx context.Context) (string, error) {
	doc, err := p.Discovery(ctx)
	if err != nil {
		return "", err
	}
	if doc.UserinfoEndpoint == "" {
		return "", fmt.Errorf("发现文档未提供 userinfo_endpoint")
	}
	return doc.UserinfoEndpoint, nil
}

// Token 返回当前有效的访问令牌。
// 未配置 Auth 块时返回空字符串和 nil——这是"功能未配置"，不是错误。
// 令牌缓存的 TTL 为服务端 expires_in 的五分之四（向下取整），
// 留出五分之一的提前刷新余量。
func (p *OIDCProvider) Token(ctx context.Context) (string, error) {
	if p.auth == nil || p.auth.ClientID == "" {
		return "", nil
	}

	value, err := p.coord.WithCache(ctx, keyOIDCToken, func(ctx context.Context) ([]byte, time.Duration, error) {
		doc, err := p.Discovery(ctx)
		if err != nil {
			return nil, 0, err
		}
		if doc.TokenEndpoint == "" {
			return nil, 0, fmt.Errorf("发现文档未提供 token_endpoint")
		}

		scope := p.auth.Scope
		if scope == "" {
			scope = DefaultScope
		}

		form := url.Values{}
		form.Set("grant_type", "password")
		form.Set("client_id", p.auth.ClientID)
		form.Set("username", p.auth.Username)
		form.Set("password", p.auth.Password)
		form.Set("scope", scope)

		headers := map[string]string{
			"Content-Type": "application/x-www-form-urlencoded",
		}
		status, body, err := p.caller.Do(ctx, http.MethodPost, doc.TokenEndpoint, headers, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, 0, fmt.Errorf("令牌请求失败: %w", err)
		}
		if status != http.StatusOK {
			return nil, 0, fmt.Errorf("令牌请求返回 %d: %s", status, body)
		}

		var tok tokenResponse
		if err := json.Unmarshal(body, &tok); err != nil {
			return nil, 0, fmt.Errorf("解析令牌响应失败: %w", err)
		}
		if tok.AccessToken == "" {
			return nil, 0, fmt.Errorf("令牌响应未包含 access_token")
		}

		// floor(expires_in * 4/5)，整数运算自带向下取整。
		// 结果不为正（expires_in 缺失或小到取整后为零）时令牌不值得缓存，
		// 不能让它落到"永不过期"的哨兵值上。
		ttlSeconds := tok.ExpiresIn * 4 / 5
		if ttlSeconds <= 0 {
			return []byte(tok.AccessToken), cache.NoCache, nil
		}
		return []byte(tok.AccessToken), time.Duration(ttlSeconds) * time.Second, nil
	})
	if err != nil {
		return "", err
	}
	return string(value), nil
}
