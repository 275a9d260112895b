package proofs

import (
	"bytes"
	"encoding/json"

	"github.com/ethereum/go-ethereum/crypto"
)

// Compact 去除文档中的空白，保持键顺序与数值字面量不变。
func Compact(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Canonical 以键排序、紧凑、不转义 HTML 字符的形式重新序列化文档。
// 数值按原始字面量输出，不经过浮点转换，因此 1e2 仍为 1e2；U+2028 与 U+2029
// 会被转义为 \u2028 / \u2029。结果与其他实现的规范化输出语义相同，但不保证逐字节一致。
func Canonical(doc Document) ([]byte, error) {
	decoder := json.NewDecoder(bytes.NewReader(doc))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Digest 返回规范化文档的 Keccak-256 摘要（0x 前缀），便于与链上锚定值比对。
// 响应体（string 编码解开一层后）即为参与摘要的字节。
func Digest(doc Document) string {
	data, err := Canonical(doc)
	if err != nil {
		if data, err = Compact(doc); err != nil {
			data = doc
		}
	}
	return crypto.Keccak256Hash(data).Hex()
}
