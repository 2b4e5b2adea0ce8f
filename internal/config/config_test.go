package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Index.PageSize != 1000 {
		t.Errorf("page size = %d", cfg.Index.PageSize)
	}
	if cfg.Matching.HighThreshold != 0.75 || cfg.Matching.MediumThreshold != 0.4 {
		t.Errorf("thresholds = %+v", cfg.Matching)
	}
	if got := cfg.Index.TTL().Minutes(); got != 10 {
		t.Errorf("index TTL = %v minutes", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := []byte(`
server:
  port: 9090
  cors_origins: ["https://app.example.com"]
storage:
  base_url: https://proj.supabase.co/storage/v1
  bucket: audio
  signed_ttl_seconds: 120
matching:
  stream_floor: 0.5
normalize:
  rules:
    - variant: "vol"
      canonical: "volume"
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
	if cfg.Storage.Bucket != "audio" {
		t.Errorf("bucket = %q", cfg.Storage.Bucket)
	}
	if got := cfg.Storage.SignedTTL().Seconds(); got != 120 {
		t.Errorf("signed TTL = %v seconds", got)
	}
	if cfg.Matching.StreamFloor != 0.5 {
		t.Errorf("stream floor = %v", cfg.Matching.StreamFloor)
	}
	// File values merge over defaults, untouched sections keep theirs.
	if cfg.Matching.HighThreshold != 0.75 {
		t.Errorf("high threshold = %v", cfg.Matching.HighThreshold)
	}
	rules := cfg.FoldRules()
	last := rules[len(rules)-1]
	if last.Variant != "vol" || last.Canonical != "volume" {
		t.Errorf("last fold rule = %+v", last)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TG_PORT", "7070")
	t.Setenv("TG_STORAGE_BUCKET", "from-env")
	t.Setenv("TG_CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("port = %d, want env value", cfg.Server.Port)
	}
	if cfg.Storage.Bucket != "from-env" {
		t.Errorf("bucket = %q", cfg.Storage.Bucket)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("cors origins = %v", cfg.Server.CORSOrigins)
	}
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d", cfg.Server.Port)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"empty db path", func(c *Config) { c.Database.Path = "" }},
		{"empty bucket", func(c *Config) { c.Storage.Bucket = "" }},
		{"inverted thresholds", func(c *Config) { c.Matching.HighThreshold = 0.2 }},
		{"zero page size", func(c *Config) { c.Index.PageSize = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestBasePathTrailingSlashTrimmed(t *testing.T) {
	cfg := Default()
	cfg.Server.BasePath = "/tg/"
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cfg.Server.BasePath != "/tg" {
		t.Errorf("base path = %q", cfg.Server.BasePath)
	}
}
