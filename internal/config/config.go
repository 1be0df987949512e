// Package config 负责加载和校验应用程序的配置。
package config

import (
	"errors"
	"fmt"

	"github.com/spf13/viper"
)

// Config 是整个应用程序的配置结构体，与 config.yaml 文件结构对应。
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Log           LogConfig           `mapstructure:"log"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Gemini        GeminiConfig        `mapstructure:"gemini"`
	Midtrans      MidtransConfig      `mapstructure:"midtrans"`
	Quota         QuotaConfig         `mapstructure:"quota"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
}

// ServerConfig 存储 HTTP 服务器相关的配置。
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 存储所有数据库连接的配置。
type DatabaseConfig struct {
	MySQL MySQLConfig `mapstructure:"mysql"`
	Redis RedisConfig `mapstructure:"redis"`
}

// MySQLConfig 存储 MySQL 数据库的配置。
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig 存储 Redis 的配置。
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// JWTConfig 存储 JWT 相关的配置。
type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	ExpireDays int    `mapstructure:"expire_days"`
}

// AuthConfig 存储注册校验相关的配置。
type AuthConfig struct {
	// MinCredentialLength 是用户名与密码允许的最小长度。
	MinCredentialLength int `mapstructure:"min_credential_length"`
}

// LogConfig 存储日志相关的配置。
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// KafkaConfig 存储 Kafka 事件流相关的配置。
type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

// ElasticsearchConfig 存储 Elasticsearch 相关的配置。
type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

// GeminiConfig 存储上游生成式 AI 服务的配置。
type GeminiConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
}

// MidtransConfig 存储支付网关的配置。
type MidtransConfig struct {
	ServerKey   string `mapstructure:"server_key"`
	ClientKey   string `mapstructure:"client_key"`
	APIBaseURL  string `mapstructure:"api_base_url"`
	SnapBaseURL string `mapstructure:"snap_base_url"`
	// PremiumPrice 是会员订阅的价格（IDR，整数）。
	PremiumPrice int64 `mapstructure:"premium_price"`
	// PremiumDays 是一次支付解锁的会员天数。
	PremiumDays int `mapstructure:"premium_days"`
}

// QuotaConfig 存储免费额度相关的配置。
type QuotaConfig struct {
	// FreeAllowance 是非会员每日可用的无限制模式请求数。
	FreeAllowance int `mapstructure:"free_allowance"`
	// ExhaustedPolicy 决定额度耗尽后仍请求无限制模式时的行为：
	// "reject" 返回 403 升级提示，"downgrade" 静默降级为受限模式。
	ExhaustedPolicy string `mapstructure:"exhausted_policy"`
}

// RateLimitConfig 存储基于 IP 的限流配置。
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// Load 从指定路径读取 YAML 文件，解析并校验配置。
// 任何缺失的关键配置都会在服务启动前立即失败，而不是等到第一个请求。
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("无法将配置解析到结构体中: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "3000"
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "release"
	}
	if c.JWT.ExpireDays == 0 {
		c.JWT.ExpireDays = 7
	}
	if c.Auth.MinCredentialLength == 0 {
		c.Auth.MinCredentialLength = 6
	}
	if c.Quota.FreeAllowance == 0 {
		c.Quota.FreeAllowance = 10
	}
	if c.Quota.ExhaustedPolicy == "" {
		c.Quota.ExhaustedPolicy = "reject"
	}
	if c.Gemini.BaseURL == "" {
		c.Gemini.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-2.5-flash"
	}
	if c.Midtrans.APIBaseURL == "" {
		c.Midtrans.APIBaseURL = "https://api.sandbox.midtrans.com"
	}
	if c.Midtrans.SnapBaseURL == "" {
		c.Midtrans.SnapBaseURL = "https://app.sandbox.midtrans.com"
	}
	if c.Midtrans.PremiumPrice == 0 {
		c.Midtrans.PremiumPrice = 30000
	}
	if c.Midtrans.PremiumDays == 0 {
		c.Midtrans.PremiumDays = 30
	}
	if c.Elasticsearch.IndexName == "" {
		c.Elasticsearch.IndexName = "chat_messages"
	}
	if c.RateLimit.RequestsPerSecond == 0 {
		c.RateLimit.RequestsPerSecond = 10
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 20
	}
}

// Validate 检查所有无法给出合理默认值的关键配置项。
func (c *Config) Validate() error {
	var missing []string
	if c.Database.MySQL.DSN == "" {
		missing = append(missing, "database.mysql.dsn")
	}
	if c.Database.Redis.Addr == "" {
		missing = append(missing, "database.redis.addr")
	}
	if c.JWT.Secret == "" {
		missing = append(missing, "jwt.secret")
	}
	if c.Gemini.APIKey == "" {
		missing = append(missing, "gemini.api_key")
	}
	if c.Midtrans.ServerKey == "" {
		missing = append(missing, "midtrans.server_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("缺少关键配置项: %v", missing)
	}
	if c.Quota.ExhaustedPolicy != "reject" && c.Quota.ExhaustedPolicy != "downgrade" {
		return errors.New("quota.exhausted_policy 只能是 reject 或 downgrade")
	}
	return nil
}
