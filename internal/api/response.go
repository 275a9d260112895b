package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"StarkProof/internal/proofs"
)

// Encoding 决定成功响应体的形式。
type Encoding string

const (
	// EncodingString 将规范化后的文档再编码为 JSON 字符串，与旧客户端兼容。
	EncodingString Encoding = "string"
	// EncodingJSON 直接输出规范化后的 JSON 文档。
	EncodingJSON Encoding = "json"
)

// StatusMapping 决定失败时返回的状态码。
type StatusMapping string

const (
	// StatusLegacy 所有失败均返回 500。
	StatusLegacy StatusMapping = "legacy"
	// StatusStrict 未找到返回 404，存储故障返回 503。
	StatusStrict StatusMapping = "strict"
)

// FailurePrefix 是失败响应体的固定前缀。
const FailurePrefix = "Error generating proof: "

// encodeDocument 两种编码都基于规范化字节，与 X-Proof-Digest 覆盖的内容一致。
func encodeDocument(enc Encoding, doc proofs.Document) ([]byte, error) {
	canonical, err := proofs.Canonical(doc)
	if err != nil {
		return nil, err
	}
	if enc == EncodingJSON {
		return canonical, nil
	}
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(string(canonical)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func statusFor(mapping StatusMapping, result proofs.Result) int {
	if mapping != StatusStrict {
		return http.StatusInternalServerError
	}
	switch result.Code() {
	case proofs.CodeProofNotFound:
		return http.StatusNotFound
	case proofs.CodeStoreUnavailable, proofs.CodeStoreCorrupt:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, mapping StatusMapping, result proofs.Result) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(statusFor(mapping, result))
	_, _ = w.Write([]byte(FailurePrefix + result.Message()))
}

func matchesETag(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}
