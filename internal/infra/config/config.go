package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Otp       OtpSettings       `mapstructure:"otp"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Dispatch  DispatchSettings  `mapstructure:"dispatch"`
	Sso       SsoSettings       `mapstructure:"sso"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection and key prefixes.
type RedisSettings struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	DB              int    `mapstructure:"db"`
	Password        string `mapstructure:"password"`
	TLSEnabled      bool   `mapstructure:"tls_enabled"`
	OtpPrefix       string `mapstructure:"otp_prefix"`
	RateLimitPrefix string `mapstructure:"rate_limit_prefix"`
}

// KafkaSettings configures the audit event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
	Async       bool     `mapstructure:"async"`
}

type JWTSettings struct {
	KeyDirectory    string        `mapstructure:"key_directory"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

// OtpSettings governs the challenge state machine.
type OtpSettings struct {
	CodeLength     int           `mapstructure:"code_length"`
	TTL            time.Duration `mapstructure:"ttl"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	ResendThrottle time.Duration `mapstructure:"resend_throttle"`
}

// RateLimitSettings configures sliding-window limits per action.
type RateLimitSettings struct {
	OtpSendMaxAttempts   int           `mapstructure:"otp_send_max_attempts"`
	OtpSendWindow        time.Duration `mapstructure:"otp_send_window"`
	OtpVerifyMaxAttempts int           `mapstructure:"otp_verify_max_attempts"`
	OtpVerifyWindow      time.Duration `mapstructure:"otp_verify_window"`
	SsoMaxAttempts       int           `mapstructure:"sso_max_attempts"`
	SsoWindow            time.Duration `mapstructure:"sso_window"`
	RefreshMaxAttempts   int           `mapstructure:"refresh_max_attempts"`
	RefreshWindow        time.Duration `mapstructure:"refresh_window"`
}

// DispatchSettings configures the SMS/voice/push delivery providers.
type DispatchSettings struct {
	Timeout time.Duration   `mapstructure:"timeout"`
	Sms     ProviderChannel `mapstructure:"sms"`
	Call    ProviderChannel `mapstructure:"call"`
	Push    ProviderChannel `mapstructure:"push"`
}

type ProviderChannel struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Sender  string `mapstructure:"sender"`
}

// SsoSettings configures accepted identity providers.
type SsoSettings struct {
	GoogleClientID string `mapstructure:"google_client_id"`
	FacebookAppID  string `mapstructure:"facebook_app_id"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("UBERGO")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.otp_prefix",
		"redis.rate_limit_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"kafka.async",
		"jwt.key_directory",
		"jwt.access_token_ttl",
		"jwt.refresh_token_ttl",
		"otp.code_length",
		"otp.ttl",
		"otp.max_attempts",
		"otp.resend_throttle",
		"rate_limit.otp_send_max_attempts",
		"rate_limit.otp_send_window",
		"rate_limit.otp_verify_max_attempts",
		"rate_limit.otp_verify_window",
		"rate_limit.sso_max_attempts",
		"rate_limit.sso_window",
		"rate_limit.refresh_max_attempts",
		"rate_limit.refresh_window",
		"dispatch.timeout",
		"dispatch.sms.base_url",
		"dispatch.sms.api_key",
		"dispatch.sms.sender",
		"dispatch.call.base_url",
		"dispatch.call.api_key",
		"dispatch.push.base_url",
		"dispatch.push.api_key",
		"sso.google_client_id",
		"sso.facebook_app_id",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "ubergo-auth")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "ubergo")
	v.SetDefault("postgres.password", "ubergo_password")
	v.SetDefault("postgres.database", "ubergo")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.otp_prefix", "auth:otp")
	v.SetDefault("redis.rate_limit_prefix", "auth:rate-limit")

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "auth")
	v.SetDefault("kafka.async", true)

	v.SetDefault("jwt.key_directory", "./secrets")
	v.SetDefault("jwt.access_token_ttl", "15m")
	v.SetDefault("jwt.refresh_token_ttl", "720h")

	v.SetDefault("otp.code_length", 6)
	v.SetDefault("otp.ttl", "5m")
	v.SetDefault("otp.max_attempts", 5)
	v.SetDefault("otp.resend_throttle", "60s")

	v.SetDefault("rate_limit.otp_send_max_attempts", 3)
	v.SetDefault("rate_limit.otp_send_window", "10m")
	v.SetDefault("rate_limit.otp_verify_max_attempts", 10)
	v.SetDefault("rate_limit.otp_verify_window", "10m")
	v.SetDefault("rate_limit.sso_max_attempts", 10)
	v.SetDefault("rate_limit.sso_window", "15m")
	v.SetDefault("rate_limit.refresh_max_attempts", 30)
	v.SetDefault("rate_limit.refresh_window", "10m")

	v.SetDefault("dispatch.timeout", "8s")
	v.SetDefault("dispatch.sms.base_url", "")
	v.SetDefault("dispatch.sms.sender", "UberGo")
	v.SetDefault("dispatch.call.base_url", "")
	v.SetDefault("dispatch.push.base_url", "")

	v.SetDefault("sso.google_client_id", "")
	v.SetDefault("sso.facebook_app_id", "")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "UBERGO_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
