package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "starkproof.yaml", `
server:
  address: "127.0.0.1:9000"
store:
  path: data/proof.json
  cache: true
  watch: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != "127.0.0.1:9000" {
		t.Fatalf("unexpected address: %s", cfg.Server.Address)
	}
	if want := filepath.Join(filepath.Dir(path), "data", "proof.json"); cfg.Store.Path != want {
		t.Fatalf("store path should be relative to config dir: got %s want %s", cfg.Store.Path, want)
	}
	if cfg.Store.Driver != DriverFile || !cfg.Store.Cache || !cfg.Store.Watch {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Store.LookupTimeout() != 5*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.Store.LookupTimeout())
	}
	if cfg.Response.Encoding != EncodingString || cfg.Response.StatusMapping != StatusLegacy {
		t.Fatalf("legacy response behaviour should be the default: %+v", cfg.Response)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "*" {
		t.Fatalf("all origins should be allowed by default: %v", cfg.Server.AllowedOrigins)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "starkproof.json", `{"store": {"driver": "redis", "redis": {"address": "localhost:6379"}}, "response": {"encoding": "json", "status_mapping": "strict"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store.Driver != DriverRedis || cfg.Store.Redis.KeyPrefix != "starkproof:proof:" {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if cfg.Response.Encoding != EncodingJSON || cfg.Response.StatusMapping != StatusStrict {
		t.Fatalf("unexpected response config: %+v", cfg.Response)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, "starkproof.json", `{"server": {"address": ":1"}}`)
	t.Setenv("STARKPROOF_SERVER_ADDRESS", ":2")
	t.Setenv("STARKPROOF_STORE_CACHE", "true")
	t.Setenv("STARKPROOF_STORE_LOOKUP_TIMEOUT_MS", "250")
	t.Setenv("STARKPROOF_SERVER_ALLOWED_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("STARKPROOF_LOG_AUDIT_ENABLED", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":2" {
		t.Fatalf("env should override file: %s", cfg.Server.Address)
	}
	if !cfg.Store.Cache || cfg.Store.LookupTimeout() != 250*time.Millisecond {
		t.Fatalf("unexpected store config: %+v", cfg.Store)
	}
	if strings.Join(cfg.Server.AllowedOrigins, " ") != "https://a.example https://b.example" {
		t.Fatalf("unexpected origins: %v", cfg.Server.AllowedOrigins)
	}
	if !cfg.Logging.Audit.Enabled {
		t.Fatalf("nested env override not applied")
	}
}

func TestStorePathResolution(t *testing.T) {
	path := writeConfig(t, "starkproof.yaml", "store:\n  path: data/proof.json\n")

	t.Run("env override is relative to working directory", func(t *testing.T) {
		t.Setenv("STARKPROOF_STORE_PATH", filepath.Join("override", "proof.json"))
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if want := filepath.Join("override", "proof.json"); cfg.Store.Path != want {
			t.Fatalf("unexpected store path: got %s want %s", cfg.Store.Path, want)
		}
	})

	t.Run("default is relative to working directory", func(t *testing.T) {
		cfg, err := Load(writeConfig(t, "empty.yaml", "server:\n  address: \":1\"\n"))
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		if want := filepath.Join("examples", "proof.json"); cfg.Store.Path != want {
			t.Fatalf("unexpected store path: got %s want %s", cfg.Store.Path, want)
		}
	})
}

func TestLoadOptionalMissingFile(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load optional: %v", err)
	}
	if cfg.Store.Path != filepath.Join("examples", "proof.json") {
		t.Fatalf("unexpected default path: %s", cfg.Store.Path)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"unknown driver":   `{"store": {"driver": "etcd"}}`,
		"redis no address": `{"store": {"driver": "redis"}}`,
		"sql no dsn":       `{"store": {"driver": "mysql"}}`,
		"watch no cache":   `{"store": {"watch": true}}`,
		"bad encoding":     `{"response": {"encoding": "xml"}}`,
		"bad mapping":      `{"response": {"status_mapping": "loose"}}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, "c.json", content)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if _, err := Load(writeConfig(t, "bad.json", `{`)); err == nil {
		t.Fatalf("expected parse error")
	}
}
