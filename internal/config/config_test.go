package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "BILLING_JOB_SCHEDULE")
	unsetEnvWithCleanup(t, "PAYMENT_RATE_LIMIT_PER_MINUTE")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default server port 8080, got %q", cfg.ServerPort)
	}
	if cfg.BillingJobSchedule != "0 0 * * *" {
		t.Fatalf("expected daily billing schedule default, got %q", cfg.BillingJobSchedule)
	}
	if cfg.PaymentRateLimitPerMinute != 10 {
		t.Fatalf("expected default payment rate limit 10, got %d", cfg.PaymentRateLimitPerMinute)
	}
	if cfg.RedisRateLimitPrefix != "bukafresh:rate_limit" {
		t.Fatalf("expected default rate limit prefix, got %q", cfg.RedisRateLimitPrefix)
	}
}

func TestLoadConfig_EnvOverridesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9090")
	setEnvWithCleanup(t, "DATABASE_URL", "postgres://localhost:5432/bukafresh")
	setEnvWithCleanup(t, "ONEPIPE_WEBHOOK_SECRET", "whsec_test")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "9090" {
		t.Fatalf("expected server port 9090, got %q", cfg.ServerPort)
	}
	if cfg.DatabaseURL != "postgres://localhost:5432/bukafresh" {
		t.Fatalf("unexpected database URL %q", cfg.DatabaseURL)
	}
	if cfg.OnePipeWebhookSecret != "whsec_test" {
		t.Fatalf("unexpected webhook secret %q", cfg.OnePipeWebhookSecret)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
