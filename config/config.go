package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	CORS     CORSConfig     `mapstructure:"cors"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Billing  BillingConfig  `mapstructure:"billing"`
	Log      LogConfig      `mapstructure:"log"`
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

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

// StripeConfig 支付平台配置，显式传给 billing.StripeProvider，不写全局 stripe.Key
type StripeConfig struct {
	Secret         string   `mapstructure:"secret"`
	WebhookSecret  string   `mapstructure:"webhook_secret"`
	Currency       string   `mapstructure:"currency"`        // 一次性账单默认币种
	ConnectAccount string   `mapstructure:"connect_account"` // Connect 子账户，可为空
	TaxRates       []string `mapstructure:"tax_rates"`       // 新建订阅时附加的税率 ID

	// 平台抽成比例，只在配置了 connect_account 时生效
	ApplicationFeePercent float64 `mapstructure:"application_fee_percent"`
}

type BillingConfig struct {
	EventsChannel        string `mapstructure:"events_channel"`
	SweepIntervalMinutes int    `mapstructure:"sweep_interval_minutes"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// CurrencyOrDefault 返回配置的币种，未配置时为 usd
func (c StripeConfig) CurrencyOrDefault() string {
	if c.Currency == "" {
		return "usd"
	}
	return strings.ToLower(c.Currency)
}

// ApplicationFee 没有子账户或比例不大于 0 时返回 nil
func (c StripeConfig) ApplicationFee() *float64 {
	if c.ConnectAccount == "" || c.ApplicationFeePercent <= 0 {
		return nil
	}
	fee := c.ApplicationFeePercent
	return &fee
}

func Load(configPath string) (*Config, error) {
	// .env 只用于本地开发，缺失不报错
	_ = godotenv.Load()

	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("stripe.currency", "usd")
	v.SetDefault("billing.events_channel", "billing_events")
	v.SetDefault("billing.sweep_interval_minutes", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
