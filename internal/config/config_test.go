package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %q", cfg.Database.Driver)
	}
	if cfg.Provider.Name != "sandbox" {
		t.Errorf("expected sandbox provider, got %q", cfg.Provider.Name)
	}
	want := []time.Duration{0, 250 * time.Millisecond, 750 * time.Millisecond}
	if len(cfg.Coordinator.RetrySchedule) != len(want) {
		t.Fatalf("expected %d retry delays, got %v", len(want), cfg.Coordinator.RetrySchedule)
	}
	for i := range want {
		if cfg.Coordinator.RetrySchedule[i] != want[i] {
			t.Errorf("retry delay %d = %v, want %v", i, cfg.Coordinator.RetrySchedule[i], want[i])
		}
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "POSTGRES")
	t.Setenv("DATABASE_URL", "postgres://localhost/cashier")
	t.Setenv("COORDINATOR_RETRY_SCHEDULE", "0s, 1s")
	t.Setenv("PRIME_WALLET_IDS", "usdc=w-1, ETH=w-2")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("HTTP_SHUTDOWN_TIMEOUT", "3s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected postgres driver, got %q", cfg.Database.Driver)
	}
	if len(cfg.Coordinator.RetrySchedule) != 2 || cfg.Coordinator.RetrySchedule[1] != time.Second {
		t.Errorf("unexpected retry schedule %v", cfg.Coordinator.RetrySchedule)
	}
	if cfg.Provider.PrimeWalletIds["USDC"] != "w-1" || cfg.Provider.PrimeWalletIds["ETH"] != "w-2" {
		t.Errorf("unexpected wallet ids %v", cfg.Provider.PrimeWalletIds)
	}
	if len(cfg.Server.CorsAllowedOrigins) != 2 {
		t.Errorf("unexpected origins %v", cfg.Server.CorsAllowedOrigins)
	}
	if cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("unexpected shutdown timeout %v", cfg.Server.ShutdownTimeout)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad duration", "LISTENER_POLLING_INTERVAL", "soon"},
		{"bad schedule", "COORDINATOR_RETRY_SCHEDULE", "0s,later"},
		{"negative delay", "COORDINATOR_RETRY_SCHEDULE", "-1s"},
		{"bad wallet map", "PRIME_WALLET_IDS", "USDC"},
		{"unknown driver", "DATABASE_DRIVER", "mysql"},
		{"unknown provider", "PAYOUT_PROVIDER", "paypal"},
		{"postgres without url", "DATABASE_DRIVER", "postgres"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
