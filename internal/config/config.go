package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"github.com/congo-pay/walletcore/internal/money"
)

const (
	defaultAppName = "CongoPay"
	defaultAppEnv  = "development"

	devJWTSecret     = "dev-access-secret"
	devRefreshSecret = "dev-refresh-secret"
	devOTPSecret     = "dev-otp-secret"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	LogFormat      string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration
	LoginRateLimit int

	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	OTPSecret      string
	OTPTTL         time.Duration
	OTPLength      int
	OTPMaxAttempts int

	// Amounts are minor units.
	MinAmount           int64
	MaxAmount           int64
	SecureThreshold     int64
	DefaultDailyLimit   int64
	DefaultMonthlyLimit int64
	LimitLocation       *time.Location

	RequestDefaultTTL    time.Duration
	RequestMaxTTL        time.Duration
	RequestSweepInterval time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration

	KafkaBrokers []string
	KafkaTopic   string
}

func defaults(v *viper.Viper) {
	v.SetDefault("app_name", defaultAppName)
	v.SetDefault("app_env", defaultAppEnv)
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("idempotency_ttl", 24*time.Hour)
	v.SetDefault("login_rate_limit", 5)
	v.SetDefault("access_token_ttl", 15*time.Minute)
	v.SetDefault("refresh_token_ttl", 7*24*time.Hour)
	v.SetDefault("otp_ttl", 600*time.Second)
	v.SetDefault("otp_length", 6)
	v.SetDefault("otp_max_attempts", 5)
	v.SetDefault("min_amount", "1")
	v.SetDefault("max_amount", "50000")
	v.SetDefault("secure_threshold", "10000")
	v.SetDefault("default_daily_limit", "100000")
	v.SetDefault("default_monthly_limit", "500000")
	v.SetDefault("limit_timezone", "Asia/Kolkata")
	v.SetDefault("request_default_ttl", 72*time.Hour)
	v.SetDefault("request_max_ttl", 720*time.Hour)
	v.SetDefault("request_sweep_interval", time.Minute)
	v.SetDefault("retry_attempts", 3)
	v.SetDefault("retry_base_delay", 25*time.Millisecond)
	v.SetDefault("kafka_topic", "wallet.notifications")
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	defaults(v)

	cfg := Config{
		AppName:              v.GetString("app_name"),
		AppEnv:               strings.ToLower(v.GetString("app_env")),
		Port:                 v.GetString("port"),
		LogLevel:             strings.ToLower(v.GetString("log_level")),
		LogFormat:            strings.ToLower(v.GetString("log_format")),
		DatabaseURL:          v.GetString("database_url"),
		RedisURL:             v.GetString("redis_url"),
		ShutdownPeriod:       v.GetDuration("shutdown_timeout"),
		IdempotencyTTL:       v.GetDuration("idempotency_ttl"),
		LoginRateLimit:       v.GetInt("login_rate_limit"),
		JWTSecret:            v.GetString("jwt_secret"),
		RefreshSecret:        v.GetString("refresh_secret"),
		AccessTokenTTL:       v.GetDuration("access_token_ttl"),
		RefreshTokenTTL:      v.GetDuration("refresh_token_ttl"),
		OTPSecret:            v.GetString("otp_secret"),
		OTPTTL:               v.GetDuration("otp_ttl"),
		OTPLength:            v.GetInt("otp_length"),
		OTPMaxAttempts:       v.GetInt("otp_max_attempts"),
		RequestDefaultTTL:    v.GetDuration("request_default_ttl"),
		RequestMaxTTL:        v.GetDuration("request_max_ttl"),
		RequestSweepInterval: v.GetDuration("request_sweep_interval"),
		RetryAttempts:        v.GetInt("retry_attempts"),
		RetryBaseDelay:       v.GetDuration("retry_base_delay"),
		KafkaBrokers:         splitList(v.GetString("kafka_brokers")),
		KafkaTopic:           v.GetString("kafka_topic"),
	}

	amounts := []struct {
		key string
		dst *int64
	}{
		{"min_amount", &cfg.MinAmount},
		{"max_amount", &cfg.MaxAmount},
		{"secure_threshold", &cfg.SecureThreshold},
		{"default_daily_limit", &cfg.DefaultDailyLimit},
		{"default_monthly_limit", &cfg.DefaultMonthlyLimit},
	}
	for _, a := range amounts {
		minor, err := money.Parse(v.GetString(a.key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", strings.ToUpper(a.key), err)
		}
		*a.dst = minor
	}

	loc, err := time.LoadLocation(v.GetString("limit_timezone"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid LIMIT_TIMEZONE: %w", err)
	}
	cfg.LimitLocation = loc

	if cfg.IsDev() {
		cfg.JWTSecret = fallback(cfg.JWTSecret, devJWTSecret)
		cfg.RefreshSecret = fallback(cfg.RefreshSecret, devRefreshSecret)
		cfg.OTPSecret = fallback(cfg.OTPSecret, devOTPSecret)
	}
	cfg.RefreshSecret = fallback(cfg.RefreshSecret, cfg.JWTSecret)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !c.IsDev() {
		required := []struct{ name, value string }{
			{"DATABASE_URL", c.DatabaseURL},
			{"REDIS_URL", c.RedisURL},
			{"JWT_SECRET", c.JWTSecret},
			{"OTP_SECRET", c.OTPSecret},
		}
		for _, r := range required {
			if r.value == "" {
				return fmt.Errorf("%s must be set", r.name)
			}
		}
	}
	switch {
	case c.MinAmount <= 0 || c.MinAmount > c.MaxAmount:
		return fmt.Errorf("MIN_AMOUNT must be positive and not above MAX_AMOUNT")
	case c.DefaultDailyLimit > c.DefaultMonthlyLimit:
		return fmt.Errorf("DEFAULT_DAILY_LIMIT must not exceed DEFAULT_MONTHLY_LIMIT")
	case c.OTPLength < 4 || c.OTPLength > 10:
		return fmt.Errorf("OTP_LENGTH must be between 4 and 10")
	case c.OTPMaxAttempts <= 0:
		return fmt.Errorf("OTP_MAX_ATTEMPTS must be positive")
	case c.RetryAttempts <= 0:
		return fmt.Errorf("RETRY_ATTEMPTS must be positive")
	case c.RequestDefaultTTL <= 0 || c.RequestMaxTTL < c.RequestDefaultTTL:
		return fmt.Errorf("REQUEST_MAX_TTL must be at least REQUEST_DEFAULT_TTL")
	case c.RequestSweepInterval <= 0:
		return fmt.Errorf("REQUEST_SWEEP_INTERVAL must be positive")
	}
	return nil
}

// IsDev reports whether the service runs in development mode, where missing
// backing services fall back to in-memory implementations.
func (c Config) IsDev() bool {
	return c.AppEnv == "development" || c.AppEnv == "dev" || c.AppEnv == "test"
}

// Bounds returns the per-transaction amount range.
func (c Config) Bounds() money.Bounds {
	return money.Bounds{Min: c.MinAmount, Max: c.MaxAmount}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func fallback(value, def string) string {
	if value != "" {
		return value
	}
	return def
}
