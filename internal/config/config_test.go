package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/schemawire/internal/protocol/frame"
	"github.com/danmuck/schemawire/internal/testutil/testlog"
)

func TestTemplateLoads(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "schemactl.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load template: %v", err)
	}
	if cfg.Schemas != "schemas.toml" || cfg.Inspect.Addr != ":9300" || !cfg.Codec.Diagnostics {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if len(cfg.Inspect.CorsOrigins) != 1 {
		t.Fatalf("cors origins: %v", cfg.Inspect.CorsOrigins)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "partial.toml")
	body := "[frame]\ncompression = \"zstd\"\n\n[header]\nemit_invalid = true\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Codec.MaxDiagnostics != 64 || cfg.Inspect.Addr != ":9300" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if !cfg.Header.Options().EmitInvalid {
		t.Fatalf("emit_invalid not applied")
	}
	opts, err := cfg.Frame.Options()
	if err != nil {
		t.Fatalf("frame options: %v", err)
	}
	if opts.Compression != frame.CompressionZstd || opts.Limits.MaxPayloadBytes != 8*1024*1024 {
		t.Fatalf("frame options: %+v", opts)
	}
	if ec := cfg.Codec.Engine(); !ec.Diagnostics || ec.MaxDiagnostics != 64 {
		t.Fatalf("engine config: %+v", ec)
	}
}

func TestValidateRejects(t *testing.T) {
	testlog.Start(t)
	cases := map[string]func(*Config){
		"compression": func(c *Config) { c.Frame.Compression = "brotli" },
		"payload":     func(c *Config) { c.Frame.MaxPayloadBytes = 0 },
		"addr":        func(c *Config) { c.Inspect.Addr = " " },
		"diagnostics": func(c *Config) { c.Codec.MaxDiagnostics = -1 },
		"cors":        func(c *Config) { c.Inspect.CorsOrigins = []string{""} },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := Validate(cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadErrors(t *testing.T) {
	testlog.Start(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil || !strings.Contains(err.Error(), "config load failed") {
		t.Fatalf("expected load failure, got %v", err)
	}
	path := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(path, []byte("[codec\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "config parse failed") {
		t.Fatalf("expected parse failure, got %v", err)
	}
}
