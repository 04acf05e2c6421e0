package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(context.Background(), filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff(DefaultAppConfig(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadConfigAccounts(t *testing.T) {
	path := writeConfig(t, `
accounts:
  - id: work
    username: me@example.com
    client_id: abc
  - id: home
    username: me@example.org
    provider: imap
    host: imap.example.org
    enabled: false
    mark_read: false
sync:
  min_interval_sec: 60
  max_interval_sec: 120
`)

	cfg, err := LoadConfig(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	want := []Account{
		{ID: "work", Username: "me@example.com", Provider: ProviderGraph, Enabled: true, MarkRead: true, ClientID: "abc", Tenant: "common"},
		{ID: "home", Username: "me@example.org", Provider: ProviderIMAP, Host: "imap.example.org", Port: "993"},
	}
	if diff := cmp.Diff(want, cfg.Accounts); diff != "" {
		t.Errorf("accounts mismatch (-want +got):\n%s", diff)
	}
	if cfg.Sync.MinIntervalSec != 60 || cfg.Sync.MaxIntervalSec != 120 {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if cfg.Sync.IntervalSec != 300 || cfg.Sync.MaxRetries != 3 {
		t.Errorf("unset sync keys did not default: %+v", cfg.Sync)
	}
}

func TestNormalizeFallsBackPerKey(t *testing.T) {
	cfg := DefaultAppConfig()
	cfg.Sync.MinIntervalSec = 900
	cfg.Sync.MaxIntervalSec = 10
	cfg.Sync.RetryDelayMS = 0
	cfg.Sync.Reschedule = "sometimes"
	cfg.Display.Theme = "neon"
	cfg.Display.PrimaryColor = "blue"
	cfg.Log.Level = "chatty"
	cfg.Network.ProxyURL = "ftp://proxy.local:21"

	fixes := cfg.Normalize()
	if len(fixes) != 7 {
		t.Errorf("got %d fixes, want 7: %v", len(fixes), fixes)
	}

	d := DefaultAppConfig()
	if cfg.Sync.MinIntervalSec != 900 {
		t.Errorf("valid min interval changed to %d", cfg.Sync.MinIntervalSec)
	}
	if cfg.Sync.MaxIntervalSec != 900 {
		t.Errorf("max interval = %d, want raised to min 900", cfg.Sync.MaxIntervalSec)
	}
	if cfg.Sync.RetryDelayMS != d.Sync.RetryDelayMS {
		t.Errorf("retry delay = %d", cfg.Sync.RetryDelayMS)
	}
	if cfg.Sync.Reschedule != RescheduleOnSubmit {
		t.Errorf("reschedule = %q", cfg.Sync.Reschedule)
	}
	if cfg.Display.Theme != "light" || cfg.Display.PrimaryColor != d.Display.PrimaryColor {
		t.Errorf("display = %+v", cfg.Display)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	if cfg.Network.ProxyURL != "" || cfg.Network.Proxy() != nil {
		t.Errorf("proxy = %q", cfg.Network.ProxyURL)
	}
}

func TestNetworkProxy(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "", want: ""},
		{raw: "http://proxy.corp:3128", want: "http://proxy.corp:3128"},
		{raw: "socks5://user:pw@127.0.0.1:1080", want: "socks5://user:pw@127.0.0.1:1080"},
		{raw: "proxy.corp:3128", want: ""},
		{raw: "http://", want: ""},
	}
	for _, tt := range tests {
		got := ""
		if u := (NetworkConfig{ProxyURL: tt.raw}).Proxy(); u != nil {
			got = u.String()
		}
		if got != tt.want {
			t.Errorf("Proxy(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestNormalizeKeepsValidConfig(t *testing.T) {
	cfg := DefaultAppConfig()
	if fixes := cfg.Normalize(); len(fixes) != 0 {
		t.Errorf("defaults produced fixes: %v", fixes)
	}
}

func TestSaveAndLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultAppConfig()
	cfg.Accounts = []Account{{ID: "a1", Username: "u@example.com", Provider: ProviderGmail, Enabled: true, MarkRead: false}}
	cfg.Sync.Reschedule = RescheduleOnComplete
	cfg.Network.ProxyURL = "http://proxy.corp:3128"

	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	got, err := LoadConfig(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestAccountLookup(t *testing.T) {
	cfg := &AppConfig{Accounts: []Account{{ID: "x"}}}
	if _, ok := cfg.Account("x"); !ok {
		t.Error("Account(x) missing")
	}
	if _, ok := cfg.Account("y"); ok {
		t.Error("Account(y) found")
	}
}
