package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Email     EmailConfig     `mapstructure:"email"`
	Queue     QueueConfig     `mapstructure:"queue"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Processor ProcessorConfig `mapstructure:"processor"`
	Billing   BillingConfig   `mapstructure:"billing"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type EmailConfig struct {
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type QueueConfig struct {
	ReminderQueue string `mapstructure:"reminder_queue"`
	MaxWorkers    int    `mapstructure:"max_workers"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// 支付处理方模式
const (
	ProcessorModeLive     = "live"
	ProcessorModeSandbox  = "sandbox"
	ProcessorModeDisabled = "disabled"
)

type ProcessorConfig struct {
	Mode                      string `mapstructure:"mode"` // live, sandbox, disabled
	BaseURL                   string `mapstructure:"base_url"`
	SecretKey                 string `mapstructure:"secret_key"`
	WebhookSecret             string `mapstructure:"webhook_secret"`
	TimeoutSeconds            int    `mapstructure:"timeout_seconds"`
	Currency                  string `mapstructure:"currency"`
	SandboxPath               string `mapstructure:"sandbox_path"`      // BoltDB 文件路径
	FallbackLinkURL           string `mapstructure:"fallback_link_url"` // 处理方不可用时使用的固定付款页
	SuccessURL                string `mapstructure:"success_url"`
	SignatureToleranceSeconds int    `mapstructure:"signature_tolerance_seconds"`
}

// Timeout 单次外部调用超时
func (c ProcessorConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type BillingConfig struct {
	OverdueBatchLimit       int    `mapstructure:"overdue_batch_limit"`
	ReminderBatchLimit      int    `mapstructure:"reminder_batch_limit"`
	DefaultMaxReminders     int    `mapstructure:"default_max_reminders"`
	RefreshReminderLinks    bool   `mapstructure:"refresh_reminder_links"`
	ChargeScanHour          int    `mapstructure:"charge_scan_hour"` // UTC
	ReminderIntervalMinutes int    `mapstructure:"reminder_interval_minutes"`
	LockTTLSeconds          int    `mapstructure:"lock_ttl_seconds"`
	MaxChargeAttempts       int    `mapstructure:"max_charge_attempts"` // 0 表示不限次数
	MessageChannel          string `mapstructure:"message_channel"`     // email, queue
	OrganizationName        string `mapstructure:"organization_name"`
}

// LockTTL 家长级互斥锁的过期时间
func (c BillingConfig) LockTTL() time.Duration {
	if c.LockTTLSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.LockTTLSeconds) * time.Second
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("processor.mode", ProcessorModeSandbox)
	viper.SetDefault("processor.currency", "usd")
	viper.SetDefault("processor.signature_tolerance_seconds", 300)
	viper.SetDefault("billing.overdue_batch_limit", 200)
	viper.SetDefault("billing.reminder_batch_limit", 100)
	viper.SetDefault("billing.default_max_reminders", 5)
	viper.SetDefault("billing.reminder_interval_minutes", 60)
	viper.SetDefault("billing.message_channel", "email")
	viper.SetDefault("queue.reminder_queue", "reminder_messages")
	viper.SetDefault("queue.max_workers", 1)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
