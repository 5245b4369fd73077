// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/vault/api"

	"neckar/configs"
	"neckar/internal/cache"
)

const (
	// 缓存键
	keyVaultToken = "vault-token"
	keyVaultOIDC  = "vault-oidc"
)

// VaultProvider 实现 Vault 中转认证策略：
// 先用 AppRole 换取 Vault 会话令牌，再用它领取命名 OIDC 角色的令牌。
// 两级各自独立缓存，后一级通过协调器嵌套依赖前一级。
type VaultProvider struct {
	cfg    configs.VaultConfig
	coord  *cache.Coordinator
	client *api.Client
}

// NewVaultProvider 创建一个 Vault 中转提供者。
func NewVaultProvider(cfg configs.VaultConfig, coord *cache.Coordinator) (*VaultProvider, error) {
	apiCfg := api.DefaultConfig()
	apiCfg.Address = cfg.URL
	if cfg.TimeoutSeconds > 0 {
		apiCfg.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("创建 Vault 客户端失败: %w", err)
	}

	return &VaultProvider{
		cfg:    cfg,
		coord:  coord,
		client: client,
	}, nil
}

// vaultToken 通过 AppRole 登录获取 Vault 会话令牌。
// 缓存 TTL 取 lease_duration 的一半，远早于租约到期就会刷新。
func (p *VaultProvider) vaultToken(ctx context.Context) (string, error) {
	value, err := p.coord.WithCache(ctx, keyVaultToken, func(ctx context.Context) ([]byte, time.Duration, error) {
		secret, err := p.client.Logical().WriteWithContext(ctx, "auth/approle/login", map[string]any{
			"role_id":   p.cfg.RoleID,
			"secret_id": p.cfg.SecretID,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("AppRole 登录失败: %w", err)
		}
		if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
			return nil, 0, fmt.Errorf("AppRole 登录未返回令牌")
		}

		return []byte(secret.Auth.ClientToken), halvedTTL(int64(secret.Auth.LeaseDuration)), nil
	})
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// Token 返回命名 OIDC 角色的令牌，使用 Vault 会话令牌认证领取。
// 缓存 TTL 取 Vault 返回的 ttl 的一半。
func (p *VaultProvider) Token(ctx context.Context) (string, error) {
	value, err := p.coord.WithCache(ctx, keyVaultOIDC, func(ctx context.Context) ([]byte, time.Duration, error) {
		vaultToken, err := p.vaultToken(ctx)
		if err != nil {
			return nil, 0, err
		}
		p.client.SetToken(vaultToken)

		secret, err := p.client.Logical().ReadWithContext(ctx, "identity/oidc/token/"+p.cfg.RoleName)
		if err != nil {
			return nil, 0, fmt.Errorf("获取 OIDC 角色令牌失败: %w", err)
		}
		if secret == nil || secret.Data == nil {
			return nil, 0, fmt.Errorf("OIDC 角色令牌响应为空")
		}

		token, ok := secret.Data["token"].(string)
		if !ok || token == "" {
			return nil, 0, fmt.Errorf("OIDC 角色令牌响应未包含 token")
		}

		ttlSeconds, err := parseTTLSeconds(secret.Data["ttl"])
		if err != nil {
			return nil, 0, fmt.Errorf("OIDC 角色令牌响应的 ttl 无效: %w", err)
		}

		return []byte(token), halvedTTL(ttlSeconds), nil
	})
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// halvedTTL 把 Vault 返回的租约秒数折半换算成缓存 TTL。
// 租约为 0 表示令牌本身永不过期（如 root 令牌），原样缓存；
// 租约为正但折半取整后为零的短命令牌不缓存，避免落到"永不过期"的哨兵值上。
func halvedTTL(leaseSeconds int64) time.Duration {
	if leaseSeconds == 0 {
		return 0
	}
	half := leaseSeconds / 2
	if half <= 0 {
		return cache.NoCache
	}
	return time.Duration(half) * time.Second
}

// parseTTLSeconds 解析 Vault 响应中的 ttl 字段。
// Vault 的 JSON 数字经过解码后是 json.Number，但这里对常见形态都做了兼容。
func parseTTLSeconds(v any) (int64, error) {
	switch n := v.(type) {
	case nil:
		return 0, fmt.Errorf("字段缺失")
	case int64:
		return n, nil
	case float64:
		return int64(n), nil
	case interface{ Int64() (int64, error) }: // json.Number
		return n.Int64()
	default:
		return 0, fmt.Errorf("无法识别的类型 %T", v)
	}
}
