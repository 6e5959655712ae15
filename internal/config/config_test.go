package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	_ "time/tzdata"
)

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BlockNamespace != "gatherpress" {
		t.Fatalf("expected default namespace, got %q", cfg.BlockNamespace)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected config file to be written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600, got %o", perm)
	}
}

func TestLoad_NormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
base_url: https://events.example.org/
block_namespace: "myhost/"
timezone: Europe/Vienna
ics:
  - id: graz
    url: https://example.org/graz.ics
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BaseURL != "https://events.example.org" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.BaseURL)
	}
	if cfg.Actor != "https://events.example.org/actor" {
		t.Fatalf("expected derived actor, got %q", cfg.Actor)
	}
	if cfg.BlockNamespace != "myhost" {
		t.Fatalf("expected namespace without separator, got %q", cfg.BlockNamespace)
	}
	if cfg.HorizonDays != defaultHorizonDays {
		t.Fatalf("expected default horizon, got %d", cfg.HorizonDays)
	}
	if len(cfg.ICS) != 1 || cfg.ICS[0].ID != "graz" {
		t.Fatalf("unexpected ics list: %+v", cfg.ICS)
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.Timezone = "Europe/Vienna"

	if err := cfg.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Timezone != "Europe/Vienna" {
		t.Fatalf("expected timezone to survive, got %q", got.Timezone)
	}
}

func TestLoad_EmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

func TestLoad_MetricsAuth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := []byte(`
metrics_auth:
  username: prom
  password: secret
`)
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MetricsAuth == nil || cfg.MetricsAuth.Username != "prom" || cfg.MetricsAuth.Password != "secret" {
		t.Fatalf("unexpected metrics auth: %+v", cfg.MetricsAuth)
	}

	if DefaultConfig().MetricsAuth != nil {
		t.Fatalf("expected metrics auth to be off by default")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(c *Config) {}, ok: true},
		{name: "relative base url", mutate: func(c *Config) { c.BaseURL = "/events" }},
		{name: "ftp base url", mutate: func(c *Config) { c.BaseURL = "ftp://example.org" }},
		{name: "unknown timezone", mutate: func(c *Config) { c.Timezone = "Mars/Olympus_Mons" }},
		{name: "bad cron", mutate: func(c *Config) { c.RefreshCron = "every minute" }},
		{name: "feed without url", mutate: func(c *Config) { c.ICS = []ICSConfig{{ID: "a"}} }},
		{
			name: "duplicate feed id",
			mutate: func(c *Config) {
				c.ICS = []ICSConfig{{ID: "a", URL: "https://x.example/1.ics"}, {ID: "a", URL: "https://x.example/2.ics"}}
			},
		},
		{
			name: "ids default to url",
			mutate: func(c *Config) {
				c.ICS = []ICSConfig{{URL: "https://x.example/1.ics"}, {URL: "https://x.example/2.ics"}}
			},
			ok: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.ok && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.ok && !errors.Is(err, ErrInvalid) {
				t.Fatalf("expected ErrInvalid, got %v", err)
			}
		})
	}
}

func TestLoad_RejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("timezone: Nowhere/Land\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
