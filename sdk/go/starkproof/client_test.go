package starkproof

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetProofDecodesStringEncoding(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Request-ID", "req-1")
		w.Header().Set("X-Proof-Digest", "0xabc")
		_, _ = w.Write([]byte(`"{\"v\":1}"`))
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	proof, err := client.GetProof(context.Background(), "a b/c")
	if err != nil {
		t.Fatalf("get proof: %v", err)
	}
	if gotPath != "/stark-proof/a%20b%2Fc" {
		t.Fatalf("secret was not path escaped: %s", gotPath)
	}
	if string(proof.Document) != `{"v":1}` {
		t.Fatalf("unexpected document: %s", proof.Document)
	}
	if proof.Digest != "0xabc" || proof.RequestID != "req-1" || proof.Secret != "a b/c" {
		t.Fatalf("unexpected metadata: %+v", proof)
	}
}

func TestGetProofDecodesJSONEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"v":1}`))
	}))
	defer srv.Close()

	client, _ := NewClient(srv.URL+"/", nil)
	proof, err := client.GetProof(context.Background(), "abc")
	if err != nil {
		t.Fatalf("get proof: %v", err)
	}
	if string(proof.Document) != `{"v":1}` {
		t.Fatalf("unexpected document: %s", proof.Document)
	}
}

func TestGetProofErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		notFound bool
	}{
		{name: "legacy not found", status: http.StatusInternalServerError, body: "Error generating proof: Proof not found for the given secret", notFound: true},
		{name: "strict not found", status: http.StatusNotFound, body: "Error generating proof: Proof not found for the given secret", notFound: true},
		{name: "unavailable", status: http.StatusServiceUnavailable, body: "Error generating proof: Failed to read the proof file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, _ := NewClient(srv.URL, srv.Client())
			_, err := client.GetProof(context.Background(), "abc")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %v", err)
			}
			if apiErr.StatusCode != tt.status {
				t.Fatalf("unexpected status: %d", apiErr.StatusCode)
			}
			if apiErr.IsNotFound() != tt.notFound {
				t.Fatalf("unexpected IsNotFound: %v (%q)", apiErr.IsNotFound(), apiErr.Message)
			}
		})
	}
}

func TestDecodeDocument(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{body: `"{\"a\":[1,2]}"`, want: `{"a":[1,2]}`},
		{body: `"42"`, want: `42`},
		{body: `"plain text"`, want: `"plain text"`},
		{body: " [1] \n", want: `[1]`},
	}
	for _, tt := range tests {
		got, err := DecodeDocument([]byte(tt.body))
		if err != nil {
			t.Fatalf("decode %s: %v", tt.body, err)
		}
		if string(got) != tt.want {
			t.Fatalf("decode %s: got %s want %s", tt.body, got, tt.want)
		}
	}
	if _, err := DecodeDocument([]byte("not json")); err == nil {
		t.Fatalf("expected error for invalid body")
	}
}

func TestNewClientValidatesURL(t *testing.T) {
	if _, err := NewClient("localhost", nil); err == nil {
		t.Fatalf("expected error for url without scheme")
	}
	client, _ := NewClient("http://localhost:8090", nil)
	if _, err := client.GetProof(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}
