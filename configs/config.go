// Copyright (c) 2025 wangke <464829928@qq.com>
//
// This software is released under the AGPL-3.0 license.
// For more details, see the LICENSE file in the root directory.

package configs

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config 存储 Neckar 客户端的全部配置
type Config struct {
	Neckar NeckarConfig `mapstructure:"neckar"`

	// Auth 是直连 OIDC（密码授权）策略的配置块。
	// 该块缺省（ClientID 为空）时视为未配置，客户端以匿名方式访问。
	Auth *AuthConfig `mapstructure:"auth"`

	// Vault 是 Vault 中转策略的配置块。
	// 该块存在（URL 非空）时优先于 Auth 块生效。
	Vault *VaultConfig `mapstructure:"vault"`

	Cache CacheConfig `mapstructure:"cache"`

	Log LogConfig `mapstructure:"log"`
}

// NeckarConfig 存储平台本身的连接配置
type NeckarConfig struct {
	// URL 是 Neckar 平台的基础地址，例如 https://neckar.example.com
	URL string `mapstructure:"url"`

	// Realm 是 OIDC realm 的基础地址，发现文档从
	// <realm>/.well-known/openid-configuration 获取
	Realm string `mapstructure:"realm"`

	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig 存储直连 OIDC 密码授权所需的凭据
type AuthConfig struct {
	ClientID string `mapstructure:"client_id"`

	Username string `mapstructure:"username"`

	Password string `mapstructure:"password"`

	// Scope 为空时使用默认值 "openid email profile"
	Scope string `mapstructure:"scope"`
}

// VaultConfig 存储 Vault 中转策略所需的配置
type VaultConfig struct {
	URL string `mapstructure:"url"`

	RoleID string `mapstructure:"role_id"`

	SecretID string `mapstructure:"secret_id"`

	// RoleName 是 Vault identity OIDC 角色名
	RoleName string `mapstructure:"role_name"`

	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// RedisConfig 存储 Redis 连接相关的配置
type RedisConfig struct {
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`

	DB int `mapstructure:"db"`
}

// CacheConfig 存储凭据缓存相关的配置
type CacheConfig struct {
	Type string `mapstructure:"type"` // "in-memory" or "redis"

	// CleanupSeconds 控制内存缓存后台清理的间隔，0 表示不启动后台清理。
	// 过期判定始终在读取时进行，清理只是回收内存。
	CleanupSeconds int `mapstructure:"cleanup_seconds"`

	// KeyPrefix 是 redis 模式下键的命名空间前缀
	KeyPrefix string `mapstructure:"key_prefix"`

	Redis RedisConfig `mapstructure:"redis"`
}

// LogConfig 存储日志相关的配置
type LogConfig struct {
	LogLevel string `mapstructure:"level"`

	OutputPaths []string `mapstructure:"output_paths"`
}

// LoadConfig 从文件和环境变量中读取配置
func LoadConfig() (config Config, err error) {
	// 设置默认值
	viper.SetDefault("neckar.url", "http://localhost:8080")
	viper.SetDefault("neckar.timeout_seconds", 30)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.output_paths", []string{"stdout"})

	// 缓存默认配置
	viper.SetDefault("cache.type", "in-memory")
	viper.SetDefault("cache.cleanup_seconds", 0)
	viper.SetDefault("cache.key_prefix", "neckar")
	viper.SetDefault("cache.redis.addr", "localhost:6379")
	viper.SetDefault("cache.redis.password", "")
	viper.SetDefault("cache.redis.db", 0)

	// 从配置文件加载
	viper.SetConfigName("config")    // 配置文件名 (不带扩展名)
	viper.SetConfigType("yaml")      // 配置文件类型
	viper.AddConfigPath("./configs") // 配置文件路径
	viper.AddConfigPath(".")         // 可选的当前目录路径

	// 读取配置文件
	err = viper.ReadInConfig()
	if err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// 配置文件未找到是可接受的，因为可以使用环境变量
			log.Printf("DEBUG: 配置文件未找到，将使用默认值和环境变量：%v", err)
		} else {
			// 配置文件被找到但解析错误
			log.Printf("ERROR: 读取配置文件失败，文件存在但解析错误：%v", err)
			return config, err
		}
	} else {
		log.Printf("DEBUG: 成功加载配置文件：%s", viper.ConfigFileUsed())
	}

	// 启用环境变量绑定
	viper.SetEnvPrefix("NECKAR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 将配置解组到结构体
	err = viper.Unmarshal(&config)
	return
}

// HasAuth 报告直连 OIDC 配置块是否存在
func (c *Config) HasAuth() bool {
	return c.Auth != nil && c.Auth.ClientID != ""
}

// HasVault 报告 Vault 配置块是否存在
func (c *Config) HasVault() bool {
	return c.Vault != nil && c.Vault.URL != ""
}
