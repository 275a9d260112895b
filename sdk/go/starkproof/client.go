// Package starkproof is a Go client for the StarkProof retrieval endpoint.
package starkproof

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

const (
	failurePrefix   = "Error generating proof: "
	notFoundMessage = "Proof not found for the given secret"
)

// Client wraps the HTTP interactions with the StarkProof service.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// Proof is a retrieved proof document together with response metadata.
type Proof struct {
	Secret   string
	Document json.RawMessage
	// Digest is the 0x-prefixed Keccak-256 of Document exactly as received
	// (the server's canonical form: sorted keys, no whitespace).
	Digest    string
	RequestID string
}

// APIError represents a failed proof request.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("starkproof api error (%d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether the server had no proof for the secret. Servers
// in legacy mode answer 500 for every failure, so the message is checked too.
func (e *APIError) IsNotFound() bool {
	if e == nil {
		return false
	}
	return e.StatusCode == http.StatusNotFound || e.Message == notFoundMessage
}

// NewClient instantiates a client for the StarkProof API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// GetProof fetches the proof stored for secret. Both the JSON-string and the
// plain JSON body encodings are accepted.
func (c *Client) GetProof(ctx context.Context, secret string) (Proof, error) {
	if secret == "" {
		return Proof{}, errors.New("starkproof: secret is required")
	}
	endpoint := strings.TrimRight(c.baseURL.String(), "/") + "/stark-proof/" + url.PathEscape(secret)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Proof{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Proof{}, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Proof{}, fmt.Errorf("read response: %w", err)
	}
	requestID := resp.Header.Get("X-Request-ID")

	if resp.StatusCode >= 400 {
		return Proof{}, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimPrefix(strings.TrimSpace(string(data)), failurePrefix),
			RequestID:  requestID,
		}
	}

	doc, err := DecodeDocument(data)
	if err != nil {
		return Proof{}, err
	}
	return Proof{
		Secret:    secret,
		Document:  doc,
		Digest:    resp.Header.Get("X-Proof-Digest"),
		RequestID: requestID,
	}, nil
}

// DecodeDocument unwraps a response body. A JSON string holding a JSON
// document is unwrapped once; any other JSON value is returned as is.
func DecodeDocument(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if !json.Valid(trimmed) {
		return nil, errors.New("decode response: body is not valid JSON")
	}
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return json.RawMessage(trimmed), nil
	}
	var inner string
	if err := json.Unmarshal(trimmed, &inner); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if !json.Valid([]byte(inner)) {
		// A stored document that is itself a plain string.
		return json.RawMessage(trimmed), nil
	}
	return json.RawMessage(inner), nil
}
