package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_UsesJWTSecretAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "JWT_SECRET")
	setEnvWithCleanup(t, "LEDGER_SERVICE_JWT_SECRET", "alias-only-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JWTSecret != "alias-only-secret" {
		t.Fatalf("expected JWTSecret from alias env var, got %q", cfg.JWTSecret)
	}
}

func TestLoadConfig_JWTSecretTakesPrecedenceOverAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "JWT_SECRET", "primary-secret")
	setEnvWithCleanup(t, "LEDGER_SERVICE_JWT_SECRET", "alias-secret")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.JWTSecret != "primary-secret" {
		t.Fatalf("expected JWTSecret to prioritize JWT_SECRET, got %q", cfg.JWTSecret)
	}
}

func TestLoadConfig_MinTransferNairaAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "MIN_TRANSFER_KOBO")
	setEnvWithCleanup(t, "MIN_TRANSFER_NAIRA", "250.50")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.MinTransferKobo != 25050 {
		t.Fatalf("expected MinTransferKobo 25050 from naira alias, got %d", cfg.MinTransferKobo)
	}
}

func TestLoadConfig_RailTimeout(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "RAIL_TIMEOUT_SECONDS", "10")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RailTimeoutSeconds != 10 {
		t.Fatalf("expected rail timeout 10, got %d", cfg.RailTimeoutSeconds)
	}
}

func TestLoadConfig_RailTimeoutCoercesNonPositive(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "RAIL_TIMEOUT_SECONDS", "-5")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.RailTimeoutSeconds != 30 {
		t.Fatalf("expected rail timeout coerced to 30, got %d", cfg.RailTimeoutSeconds)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "SERVER_PORT")
	unsetEnvWithCleanup(t, "PORT")
	unsetEnvWithCleanup(t, "AUTO_CHARGE_SCHEDULE")
	unsetEnvWithCleanup(t, "TRANSFER_RATE_LIMIT_PER_MINUTE")
	unsetEnvWithCleanup(t, "MIN_TRANSFER_NAIRA")
	unsetEnvWithCleanup(t, "RAIL_TIMEOUT_SECONDS")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default server port 8080, got %q", cfg.ServerPort)
	}
	if cfg.EventExchange != "banka.events" {
		t.Fatalf("expected default event exchange, got %q", cfg.EventExchange)
	}
	if cfg.AutoChargeSchedule != "@every 60s" {
		t.Fatalf("expected default auto charge schedule, got %q", cfg.AutoChargeSchedule)
	}
	if cfg.TransferRateLimitPerMinute != 30 {
		t.Fatalf("expected default transfer rate limit 30, got %d", cfg.TransferRateLimitPerMinute)
	}
	if cfg.RailTimeoutSeconds != 30 {
		t.Fatalf("expected default rail timeout 30, got %d", cfg.RailTimeoutSeconds)
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
			os.Setenv(key, prev)
		} else {
			os.Unsetenv(key)
		}
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
			os.Setenv(key, prev)
		}
	})
}
