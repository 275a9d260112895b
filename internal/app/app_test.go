package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"StarkProof/internal/config"
	"StarkProof/internal/proofs"
	"StarkProof/pkg/logger"
)

func testConfig(t *testing.T, mutate func(*config.Config)) *config.Config {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "proof.json"), []byte(`{"abc": {"v": 1}}`), 0o600); err != nil {
		t.Fatalf("write proof file: %v", err)
	}
	cfg := config.Default()
	cfg.Store.Path = filepath.Join(dir, "proof.json")
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	return cfg
}

func TestOpenStoreFileDriver(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) { c.Store.Cache = true })
	store, err := OpenStore(context.Background(), cfg.Store, logger.Discard().Logger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if store.File == nil || !store.File.Cached() {
		t.Fatalf("expected cached file store")
	}
	if store.Importer != nil {
		t.Fatalf("file driver does not support imports")
	}
	doc, err := store.Provider.Lookup(context.Background(), "abc")
	if err != nil || string(doc) != `{"v": 1}` {
		t.Fatalf("unexpected lookup: %s %v", doc, err)
	}
}

func TestOpenStoreSQLiteDriverImports(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "proofs.db")
	cfg := testConfig(t, func(c *config.Config) {
		c.Store.Driver = config.DriverSQLite
		c.Store.SQL.DSN = dsn
	})
	store, err := OpenStore(context.Background(), cfg.Store, logger.Discard().Logger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	n, err := store.Importer.Import(context.Background(), map[string]proofs.Document{"abc": json.RawMessage(`{"v":1}`)})
	if err != nil || n != 1 {
		t.Fatalf("import: n=%d err=%v", n, err)
	}
	if _, err := store.Provider.Lookup(context.Background(), "missing"); !errors.Is(err, proofs.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	if _, err := OpenStore(context.Background(), config.StoreConfig{Driver: "etcd"}, nil); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestServerWiring(t *testing.T) {
	cfg := testConfig(t, func(c *config.Config) { c.Response.StatusMapping = config.StatusStrict })
	logs := logger.Discard()

	store, err := OpenStore(context.Background(), cfg.Store, logs.Logger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	obs, err := NewObservers(cfg, logs)
	if err != nil {
		t.Fatalf("new observers: %v", err)
	}
	defer obs.Close()

	svc := NewService(cfg.Store, store.Provider, obs.Sink)
	handler := NewServer(cfg, svc, obs.Metrics, logs.Logger()).Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stark-proof/abc", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != `"{\"v\":1}"` {
		t.Fatalf("unexpected success response: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stark-proof/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected strict 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `starkproof_proof_lookups_total{code="PROOF_NOT_FOUND",outcome="failure"} 1`) {
		t.Fatalf("lookup metrics missing from /metrics")
	}
}
