package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"StarkProof/internal/proofs"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func fileConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "proof.json", `{"abc": {"v": 1}}`)
	return writeFile(t, dir, "starkproof.yaml", "store:\n  driver: file\n  path: proof.json\n")
}

func TestLookupCommand(t *testing.T) {
	cfgPath := fileConfig(t)

	out, err := execute(t, "lookup", "abc", "--config", cfgPath)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if strings.TrimSpace(out) != `{"v":1}` {
		t.Fatalf("unexpected output: %q", out)
	}

	_, err = execute(t, "lookup", "missing", "--config", cfgPath)
	if err == nil || !strings.Contains(err.Error(), proofs.MessageNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestDigestCommand(t *testing.T) {
	out, err := execute(t, "digest", "abc", "--config", fileConfig(t))
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if got, want := strings.TrimSpace(out), proofs.Digest(proofs.Document(`{"v":1}`)); got != want {
		t.Fatalf("unexpected digest: got %s want %s", got, want)
	}
}

func TestImportCommandIntoSQLite(t *testing.T) {
	dir := t.TempDir()
	source := writeFile(t, dir, "proof.json", `{"abc": {"v": 1}, "xyz": [1, 2]}`)
	cfgPath := writeFile(t, dir, "starkproof.yaml",
		"store:\n  driver: sqlite\n  sql:\n    dsn: "+filepath.Join(dir, "proofs.db")+"\n")

	out, err := execute(t, "import", source, "--config", cfgPath)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if !strings.Contains(out, "imported 2 proofs") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = execute(t, "lookup", "xyz", "--config", cfgPath)
	if err != nil {
		t.Fatalf("lookup after import: %v", err)
	}
	if strings.TrimSpace(out) != `[1,2]` {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestImportCommandRejectsFileDriver(t *testing.T) {
	cfgPath := fileConfig(t)
	source := filepath.Join(filepath.Dir(cfgPath), "proof.json")
	if _, err := execute(t, "import", source, "--config", cfgPath); err == nil {
		t.Fatalf("expected error for file driver")
	}
}

func TestGetCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/stark-proof/abc" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("Error generating proof: Proof not found for the given secret"))
			return
		}
		w.Header().Set("X-Proof-Digest", "0xfeed")
		_, _ = w.Write([]byte(`"{\"v\":1}"`))
	}))
	defer srv.Close()

	out, err := execute(t, "get", "abc", "--server", srv.URL, "--digest")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != "0xfeed\n{\"v\":1}\n" {
		t.Fatalf("unexpected output: %q", out)
	}

	if _, err := execute(t, "get", "nope", "--server", srv.URL); err == nil {
		t.Fatalf("expected error for unknown secret")
	}
}
