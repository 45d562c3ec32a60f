package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"copytrade/internal/exchange"

	"github.com/shopspring/decimal"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", testKey)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Sync.ExchangeDelay != 300*time.Millisecond {
		t.Errorf("Sync.ExchangeDelay = %v, want 300ms", cfg.Sync.ExchangeDelay)
	}
	if cfg.Sync.CallTimeout != 10*time.Second {
		t.Errorf("Sync.CallTimeout = %v, want 10s", cfg.Sync.CallTimeout)
	}
	if !cfg.Dispatch.DefaultOrderAmount.Equal(decimal.RequireFromString("0.001")) {
		t.Errorf("DefaultOrderAmount = %s", cfg.Dispatch.DefaultOrderAmount)
	}
	if cfg.Dispatch.Timeout != 2*time.Minute {
		t.Errorf("Dispatch.Timeout = %v, want 2m", cfg.Dispatch.Timeout)
	}
	if cfg.Server.AllowedOrigins != nil {
		t.Errorf("AllowedOrigins = %v, want nil", cfg.Server.AllowedOrigins)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ENCRYPTION_KEY", testKey)
	t.Setenv("SYNC_CONCURRENCY", "3")
	t.Setenv("SYNC_INTERVAL", "0s")
	t.Setenv("DEFAULT_ORDER_AMOUNT", "0.5")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("SERVER_PORT", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Sync.Concurrency != 3 || cfg.Sync.Interval != 0 {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if cfg.Dispatch.DefaultOrderAmount.String() != "0.5" {
		t.Errorf("DefaultOrderAmount = %s", cfg.Dispatch.DefaultOrderAmount)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("invalid SERVER_PORT must fall back to default, got %d", cfg.Server.Port)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "missing encryption key",
			env:     map[string]string{"ENCRYPTION_KEY": ""},
			wantErr: "ENCRYPTION_KEY is required",
		},
		{
			name:    "short encryption key",
			env:     map[string]string{"ENCRYPTION_KEY": "short"},
			wantErr: "ENCRYPTION_KEY must be",
		},
		{
			name:    "webhook hash is not bcrypt",
			env:     map[string]string{"ENCRYPTION_KEY": testKey, "WEBHOOK_SECRET_HASH": "plain"},
			wantErr: "WEBHOOK_SECRET_HASH",
		},
		{
			name:    "port out of range",
			env:     map[string]string{"ENCRYPTION_KEY": testKey, "SERVER_PORT": "70000"},
			wantErr: "SERVER_PORT",
		},
		{
			name:    "zero concurrency",
			env:     map[string]string{"ENCRYPTION_KEY": testKey, "SYNC_CONCURRENCY": "0"},
			wantErr: "SYNC_CONCURRENCY",
		},
		{
			name:    "unknown sync status",
			env:     map[string]string{"ENCRYPTION_KEY": testKey, "SYNC_STATUSES": "active,banned"},
			wantErr: "SYNC_STATUSES",
		},
		{
			name:    "negative default amount",
			env:     map[string]string{"ENCRYPTION_KEY": testKey, "DEFAULT_ORDER_AMOUNT": "-1"},
			wantErr: "DEFAULT_ORDER_AMOUNT",
		},
		{
			name:    "zero dispatch timeout",
			env:     map[string]string{"ENCRYPTION_KEY": testKey, "DISPATCH_TIMEOUT": "0s"},
			wantErr: "DISPATCH_TIMEOUT",
		},
		{
			name:    "missing overrides file",
			env:     map[string]string{"ENCRYPTION_KEY": testKey, "EXCHANGES_CONFIG": "/nonexistent/exchanges.yaml"},
			wantErr: "EXCHANGES_CONFIG",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_ExchangeOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchanges.yaml")
	content := `
okx:
  base_url: https://okx.test/
  rate_limit:
    rate: 5
    burst: 8
Bybit:
  base_url: https://bybit.test
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENCRYPTION_KEY", testKey)
	t.Setenv("EXCHANGES_CONFIG", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if got := cfg.Exchanges.BaseURLs[exchange.OKX]; got != "https://okx.test" {
		t.Errorf("okx base url = %q", got)
	}
	if got := cfg.Exchanges.BaseURLs[exchange.Bybit]; got != "https://bybit.test" {
		t.Errorf("bybit base url = %q", got)
	}
	if l := cfg.Exchanges.RateLimits["okx"]; l.Rate != 5 || l.Burst != 8 {
		t.Errorf("okx rate limit = %+v", l)
	}
	if _, ok := cfg.Exchanges.RateLimits["bybit"]; ok {
		t.Error("bybit has no rate limit override")
	}
}

func TestLoad_UnknownExchangeInOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exchanges.yaml")
	if err := os.WriteFile(path, []byte("kraken:\n  base_url: https://kraken.test\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENCRYPTION_KEY", testKey)
	t.Setenv("EXCHANGES_CONFIG", path)

	if _, err := Load(); err == nil || !exchange.IsUnsupported(err) {
		t.Errorf("expected unsupported exchange error, got %v", err)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}

	if !strings.Contains(d.DSN(), "password=p") {
		t.Errorf("DSN() = %q", d.DSN())
	}
	if strings.Contains(d.DSNWithoutPassword(), "password") {
		t.Errorf("DSNWithoutPassword() leaks password: %q", d.DSNWithoutPassword())
	}
}
