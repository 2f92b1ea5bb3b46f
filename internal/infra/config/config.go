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
	Auth      AuthSettings      `mapstructure:"auth"`
	Captcha   CaptchaSettings   `mapstructure:"captcha"`
	SMTP      SMTPSettings      `mapstructure:"smtp"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
}

type AppSettings struct {
	Name        string `mapstructure:"name"`
	Env         string `mapstructure:"env"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	PublicURL   string `mapstructure:"public_url"`
	FrontendURL string `mapstructure:"frontend_url"`
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

// RedisSettings configures the Redis connection used by the login throttle.
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
}

// KafkaSettings configures the security-event producer.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

type JWTSettings struct {
	Secret   string        `mapstructure:"secret"`
	Issuer   string        `mapstructure:"issuer"`
	TokenTTL time.Duration `mapstructure:"token_ttl"`
	// CookieMode switches the middleware from the Authorization header to an
	// HTTP-only cookie. The two transports are mutually exclusive.
	CookieMode bool   `mapstructure:"cookie_mode"`
	CookieName string `mapstructure:"cookie_name"`
}

// AuthSettings groups the credential lifecycle parameters.
type AuthSettings struct {
	BcryptCost       int           `mapstructure:"bcrypt_cost"`
	LockoutThreshold int           `mapstructure:"lockout_threshold"`
	LockoutDuration  time.Duration `mapstructure:"lockout_duration"`
	PasswordExpiry   time.Duration `mapstructure:"password_expiry"`
	HistorySize      int           `mapstructure:"history_size"`
	ResetTokenTTL    time.Duration `mapstructure:"reset_token_ttl"`
	TOTPIssuer       string        `mapstructure:"totp_issuer"`
	TOTPSkewSteps    uint          `mapstructure:"totp_skew_steps"`
	MinPasswordScore int           `mapstructure:"min_password_score"`
}

type CaptchaSettings struct {
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Enabled allows the gate to be switched off in development environments.
	Enabled bool `mapstructure:"enabled"`
}

type SMTPSettings struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// RateLimitSettings configures the transport-layer sliding-window limits.
// This is independent of the per-account lockout threshold in AuthSettings.
type RateLimitSettings struct {
	WindowDuration           time.Duration `mapstructure:"window_duration"`
	LoginMaxAttempts         int           `mapstructure:"login_max_attempts"`
	PasswordResetMaxAttempts int           `mapstructure:"password_reset_max_attempts"`
}

type TelemetrySettings struct {
	MetricsEnabled bool `mapstructure:"metrics_enabled"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("NW")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.public_url",
		"app.frontend_url",
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
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.secret",
		"jwt.issuer",
		"jwt.token_ttl",
		"jwt.cookie_mode",
		"jwt.cookie_name",
		"auth.bcrypt_cost",
		"auth.lockout_threshold",
		"auth.lockout_duration",
		"auth.password_expiry",
		"auth.history_size",
		"auth.reset_token_ttl",
		"auth.totp_issuer",
		"auth.totp_skew_steps",
		"auth.min_password_score",
		"captcha.secret",
		"captcha.timeout",
		"captcha.enabled",
		"smtp.host",
		"smtp.port",
		"smtp.username",
		"smtp.password",
		"smtp.from",
		"rate_limit.window_duration",
		"rate_limit.login_max_attempts",
		"rate_limit.password_reset_max_attempts",
		"telemetry.metrics_enabled",
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
	v.SetDefault("app.name", "account-service")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.public_url", "http://localhost:8080")
	v.SetDefault("app.frontend_url", "http://localhost:5173")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "shop")
	v.SetDefault("postgres.password", "shop_password")
	v.SetDefault("postgres.database", "shop")
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

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "shop")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "account-service")
	v.SetDefault("jwt.token_ttl", "168h")
	v.SetDefault("jwt.cookie_mode", false)
	v.SetDefault("jwt.cookie_name", "access_token")

	v.SetDefault("auth.bcrypt_cost", 12)
	v.SetDefault("auth.lockout_threshold", 15)
	v.SetDefault("auth.lockout_duration", "15m")
	v.SetDefault("auth.password_expiry", "2160h")
	v.SetDefault("auth.history_size", 5)
	v.SetDefault("auth.reset_token_ttl", "10m")
	v.SetDefault("auth.totp_issuer", "NepalWears")
	v.SetDefault("auth.totp_skew_steps", 10)
	v.SetDefault("auth.min_password_score", 1)

	v.SetDefault("captcha.secret", "")
	v.SetDefault("captcha.timeout", "5s")
	v.SetDefault("captcha.enabled", true)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")

	v.SetDefault("rate_limit.window_duration", "1m")
	v.SetDefault("rate_limit.login_max_attempts", 5)
	v.SetDefault("rate_limit.password_reset_max_attempts", 3)

	v.SetDefault("telemetry.metrics_enabled", true)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "NW_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
