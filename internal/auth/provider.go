// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package auth

import (
	"context"
	"log/slog"

	"neckar/configs"
	"neckar/internal/cache"
	"neckar/internal/transport"
)

// TokenProvider 定义了凭据链对外的统一接口。
// 返回空字符串且无错误表示"未配置认证"，调用方应以匿名方式继续。
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// NewProvider 根据配置块的存在情况选择认证策略：
// Vault 块存在时使用 Vault 中转策略，否则 Auth 块存在时使用直连 OIDC，
// 两者都不存在时返回匿名提供者。
func NewProvider(cfg *configs.Config, coord *cache.Coordinator, caller transport.Caller) (TokenProvider, error) {
	switch {
	case cfg.HasVault():
		slog.Info("使用 Vault 中转认证策略", "vault_url", cfg.Vault.URL)
		return NewVaultProvider(*cfg.Vault, coord)
	case cfg.Neckar.Realm != "":
		if cfg.HasAuth() {
			slog.Info("使用直连 OIDC 认证策略", "realm", cfg.Neckar.Realm)
		} else {
			slog.Info("未配置认证凭据，OIDC 发现可用但请求将以匿名方式发出", "realm", cfg.Neckar.Realm)
		}
		return NewOIDCProvider(cfg.Neckar.Realm, cfg.Auth, coord, caller), nil
	default:
		slog.Info("未配置 realm，所有请求以匿名方式发出")
		return anonymousProvider{}, nil
	}
}

// anonymousProvider 在没有任何认证配置时使用，始终返回"无令牌"。
type anonymousProvider struct{}

func (anonymousProvider) Token(ctx context.Context) (string, error) {
	return "", nil
}
