package config

import (
	"testing"
	"time"
)

func TestLoadDefaultsInDevelopment(t *testing.T) {
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected :8080 got %s", cfg.Address())
	}
	if cfg.MinAmount != 100 || cfg.MaxAmount != 5_000_000 {
		t.Fatalf("unexpected bounds %d..%d", cfg.MinAmount, cfg.MaxAmount)
	}
	if cfg.SecureThreshold != 1_000_000 {
		t.Fatalf("unexpected secure threshold %d", cfg.SecureThreshold)
	}
	if cfg.OTPTTL != 10*time.Minute || cfg.OTPLength != 6 || cfg.OTPMaxAttempts != 5 {
		t.Fatalf("unexpected otp config %v %d %d", cfg.OTPTTL, cfg.OTPLength, cfg.OTPMaxAttempts)
	}
	if cfg.LimitLocation.String() != "Asia/Kolkata" {
		t.Fatalf("unexpected limit zone %s", cfg.LimitLocation)
	}
	if cfg.RequestDefaultTTL != 72*time.Hour {
		t.Fatalf("unexpected request ttl %v", cfg.RequestDefaultTTL)
	}
	if cfg.JWTSecret == "" || cfg.OTPSecret == "" || cfg.RefreshSecret == "" {
		t.Fatal("expected development secrets")
	}
	if len(cfg.KafkaBrokers) != 0 {
		t.Fatalf("expected no brokers got %v", cfg.KafkaBrokers)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("PORT", ":9090")
	t.Setenv("MAX_AMOUNT", "25000.50")
	t.Setenv("OTP_TTL", "2m")
	t.Setenv("LIMIT_TIMEZONE", "UTC")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("RETRY_BASE_DELAY", "50ms")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("expected :9090 got %s", cfg.Address())
	}
	if cfg.Bounds().Max != 2_500_050 {
		t.Fatalf("expected max 2500050 got %d", cfg.Bounds().Max)
	}
	if cfg.OTPTTL != 2*time.Minute {
		t.Fatalf("expected 2m got %v", cfg.OTPTTL)
	}
	if cfg.LimitLocation != time.UTC {
		t.Fatalf("expected UTC got %s", cfg.LimitLocation)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.RetryBaseDelay != 50*time.Millisecond {
		t.Fatalf("expected 50ms got %v", cfg.RetryBaseDelay)
	}
}

func TestLoadRequiresBackendsInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("OTP_SECRET", "o")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}

	t.Setenv("DATABASE_URL", "postgres://localhost/wallet")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.IsDev() {
		t.Fatal("production must not be dev")
	}
	if cfg.RefreshSecret != "s" {
		t.Fatalf("refresh secret should fall back to JWT_SECRET, got %q", cfg.RefreshSecret)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad amount":    {"MIN_AMOUNT": "abc"},
		"min above max": {"MIN_AMOUNT": "60000"},
		"limit order":   {"DEFAULT_DAILY_LIMIT": "600000"},
		"bad zone":      {"LIMIT_TIMEZONE": "Mars/Olympus"},
		"otp length":    {"OTP_LENGTH": "2"},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("APP_ENV", "development")
			for k, v := range env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %v", env)
			}
		})
	}
}
