package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用全局配置结构体
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"db"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Log       LogConfig       `mapstructure:"log"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Commerce  CommerceConfig  `mapstructure:"commerce"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port      int             `mapstructure:"port"`
	CORS      CORSConfig      `mapstructure:"cors"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// WebSocketConfig 实时推送连接配置
type WebSocketConfig struct {
	SendBuffer   int           `mapstructure:"send_buffer"`   // 单连接待发送消息缓冲
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // 单次写超时，超时即断开
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // postgres | memory
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 认证配置
// Token 由外部身份服务签发，本服务只负责校验
type AuthConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret"`
	Issuer         string        `mapstructure:"issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// EngineConfig 活动参与引擎配置
type EngineConfig struct {
	ParticipationPoints    int64         `mapstructure:"participation_points"` // 每次成功参与奖励积分
	RewardRate             float64       `mapstructure:"reward_rate"`          // 消费金额 → 积分比例
	StoreTimeout           time.Duration `mapstructure:"store_timeout"`
	CreditRetryMaxAttempts int           `mapstructure:"credit_retry_max_attempts"`
	CreditRetryBackoff     time.Duration `mapstructure:"credit_retry_backoff"`
	NotificationLimit      int           `mapstructure:"notification_limit"` // 通知列表默认条数
	LeaderboardSize        int           `mapstructure:"leaderboard_size"`
	AccountCacheSize       int           `mapstructure:"account_cache_size"`
}

// CommerceConfig 外部电商回调配置
type CommerceConfig struct {
	WebhookSecret string `mapstructure:"webhook_secret"`
}

// RateLimitConfig 参与接口限流配置
type RateLimitConfig struct {
	ParticipateLimit  int           `mapstructure:"participate_limit"`
	ParticipateWindow time.Duration `mapstructure:"participate_window"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.websocket.send_buffer", 16)
	v.SetDefault("server.websocket.write_timeout", "5s")
	v.SetDefault("server.websocket.ping_interval", "30s")

	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "echelon")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)  // 60分钟
	v.SetDefault("db.conn_max_idle_time", 30) // 30分钟

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.issuer", "echelon-identity")
	v.SetDefault("auth.access_token_ttl", "15m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("engine.participation_points", 50)
	v.SetDefault("engine.reward_rate", 0.8)
	v.SetDefault("engine.store_timeout", "3s")
	v.SetDefault("engine.credit_retry_max_attempts", 5)
	v.SetDefault("engine.credit_retry_backoff", "2s")
	v.SetDefault("engine.notification_limit", 5)
	v.SetDefault("engine.leaderboard_size", 10)
	v.SetDefault("engine.account_cache_size", 4096)

	v.SetDefault("rate_limit.participate_limit", 10)
	v.SetDefault("rate_limit.participate_window", "10s")

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("ECHELON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// ── 关键配置校验 ──
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}
	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		return fmt.Errorf("配置校验失败: db.driver 仅支持 postgres 或 memory")
	}
	if c.Engine.ParticipationPoints < 0 {
		return fmt.Errorf("配置校验失败: engine.participation_points 不能为负数")
	}
	if c.Engine.RewardRate < 0 {
		return fmt.Errorf("配置校验失败: engine.reward_rate 不能为负数")
	}
	if c.Engine.StoreTimeout <= 0 {
		return fmt.Errorf("配置校验失败: engine.store_timeout 必须大于 0")
	}
	if c.Commerce.WebhookSecret == "" {
		return fmt.Errorf("配置校验失败: commerce.webhook_secret 不能为空")
	}
	return nil
}
