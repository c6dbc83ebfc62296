package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{"SERVER_PORT", "PORT", "PAYMENT_CURRENCY", "EVENTS_EXCHANGE", "OUTBOX_POLL_INTERVAL_MS", "REQUIRE_SUBSCRIPTION_FOR_BOOKING"} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.ServerPort)
	}
	if cfg.PaymentCurrency != "KES" {
		t.Fatalf("expected default currency KES, got %q", cfg.PaymentCurrency)
	}
	if cfg.EventsExchange != "fitness.events" {
		t.Fatalf("expected default exchange, got %q", cfg.EventsExchange)
	}
	if cfg.OutboxPollIntervalMs != 1200 {
		t.Fatalf("expected default poll interval 1200, got %d", cfg.OutboxPollIntervalMs)
	}
	if cfg.RequireSubscriptionForBooking {
		t.Fatal("expected subscription gate to be off by default")
	}
}

func TestLoadConfig_PortOverridesServerPort(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "SERVER_PORT", "9000")
	setEnvWithCleanup(t, "PORT", "10000")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "10000" {
		t.Fatalf("expected PORT to win, got %q", cfg.ServerPort)
	}
}

func TestLoadConfig_NormalizesValues(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "APP_BASE_URL", " https://shop.example.com/ ")
	setEnvWithCleanup(t, "PAYMENT_CURRENCY", "kes")
	setEnvWithCleanup(t, "PAYMENT_TIMEOUT_SECONDS", "-3")
	setEnvWithCleanup(t, "CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.AppBaseURL != "https://shop.example.com" {
		t.Fatalf("expected trimmed app base url, got %q", cfg.AppBaseURL)
	}
	if cfg.PaymentCurrency != "KES" {
		t.Fatalf("expected upper-cased currency, got %q", cfg.PaymentCurrency)
	}
	if cfg.PaymentTimeoutSeconds != 15 {
		t.Fatalf("expected invalid timeout to fall back to 15, got %d", cfg.PaymentTimeoutSeconds)
	}
	if origins := cfg.AllowedOrigins(); len(origins) != 2 || origins[1] != "https://b.example.com" {
		t.Fatalf("unexpected origins %v", origins)
	}
}

func TestLoadConfig_PublicKeyAlias(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	unsetEnvWithCleanup(t, "INTASEND_PUBLIC_KEY")
	setEnvWithCleanup(t, "INTASEND_PUBLISHABLE_KEY", "ISPubKey_test_123")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.IntaSendPublicKey != "ISPubKey_test_123" {
		t.Fatalf("expected key from alias env var, got %q", cfg.IntaSendPublicKey)
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
		}
	})
}
