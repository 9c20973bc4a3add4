package config

import (
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "ENV", "LOG_LEVEL", "REQUIRE_AUTH", "REQUEST_TIMEOUT", "BODY_LIMIT", "DOCS_URL", "SOURCE_LABEL"} {
		os.Unsetenv(k)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "3000" {
		t.Errorf("expected default port 3000, got %s", cfg.Port)
	}
	if cfg.RequireAuth {
		t.Error("expected REQUIRE_AUTH to default to false")
	}
	if cfg.RequestTimeout != 30*time.Second {
		t.Errorf("expected default timeout 30s, got %s", cfg.RequestTimeout)
	}
	if cfg.BodyLimit != "1M" {
		t.Errorf("expected default body limit 1M, got %s", cfg.BodyLimit)
	}
	if cfg.Addr() != ":3000" {
		t.Errorf("expected addr :3000, got %s", cfg.Addr())
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("PORT", "8088")
	t.Setenv("REQUIRE_AUTH", "true")
	t.Setenv("REQUEST_TIMEOUT", "5s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8088" {
		t.Errorf("expected port 8088, got %s", cfg.Port)
	}
	if !cfg.RequireAuth {
		t.Error("expected REQUIRE_AUTH=true to be honoured")
	}
	if cfg.RequestTimeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %s", cfg.RequestTimeout)
	}
	if cfg.Level() != zerolog.DebugLevel {
		t.Errorf("expected debug level, got %s", cfg.Level())
	}
}

func TestLoad_RejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid PORT")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{Port: "3000", RequestTimeout: time.Second, LogLevel: "info", DocsURL: "https://cds-hooks.org"}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"port out of range", func(c *Config) { c.Port = "70000" }, true},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, true},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"missing docs url", func(c *Config) { c.DocsURL = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDev(t *testing.T) {
	c := &Config{Env: "development"}
	if !c.IsDev() {
		t.Error("expected IsDev() to return true for development")
	}

	c.Env = "production"
	if c.IsDev() {
		t.Error("expected IsDev() to return false for production")
	}
}

func TestConfig_LevelFallback(t *testing.T) {
	c := &Config{LogLevel: ""}
	if c.Level() != zerolog.InfoLevel {
		t.Errorf("expected info fallback, got %s", c.Level())
	}
}
