package proofs

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"time"

	xerrors "StarkProof/internal/errors"
)

// Document 是与某个 secret 关联的证明文档，内容不做任何解释，原样透传。
type Document = json.RawMessage

// Provider 将 secret 解析为证明文档。
//
// 实现必须把 "不存在" 报告为 CodeProofNotFound，把后端无法访问报告为
// CodeStoreUnavailable，把后端数据无法解析报告为 CodeStoreCorrupt。
type Provider interface {
	Lookup(ctx context.Context, secret string) (Document, error)
}

// ProviderFunc 允许以函数形式实现 Provider。
type ProviderFunc func(ctx context.Context, secret string) (Document, error)

// Lookup 实现 Provider 接口。
func (f ProviderFunc) Lookup(ctx context.Context, secret string) (Document, error) {
	return f(ctx, secret)
}

const (
	CodeProofNotFound    xerrors.Code = "PROOF_NOT_FOUND"
	CodeStoreUnavailable xerrors.Code = "STORE_UNAVAILABLE"
	CodeStoreCorrupt     xerrors.Code = "STORE_CORRUPT"
)

// 以下文案会出现在 HTTP 响应体中，与既有客户端保持一致。
const (
	MessageNotFound    = "Proof not found for the given secret"
	MessageUnavailable = "Failed to read the proof file"
	MessageCorrupt     = "Failed to parse the proof file as valid JSON"
	MessageTimeout     = "Proof store did not respond in time"
)

var (
	// ErrNotFound 表示存储中没有该 secret 对应的证明。
	ErrNotFound = xerrors.New(CodeProofNotFound, MessageNotFound)
	// ErrStoreUnavailable 表示证明存储无法访问。
	ErrStoreUnavailable = xerrors.New(CodeStoreUnavailable, MessageUnavailable)
	// ErrStoreCorrupt 表示证明存储内容不是合法的结构化数据。
	ErrStoreCorrupt = xerrors.New(CodeStoreCorrupt, MessageCorrupt)
)

func init() {
	xerrors.Register(CodeProofNotFound, xerrors.Attributes{
		Message:  MessageNotFound,
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeStoreUnavailable, xerrors.Attributes{
		Message:   MessageUnavailable,
		Severity:  xerrors.SeverityWarning,
		Retryable: true,
		Alert:     true,
	})
	xerrors.Register(CodeStoreCorrupt, xerrors.Attributes{
		Message:  MessageCorrupt,
		Severity: xerrors.SeverityCritical,
		Alert:    true,
	})
}

// Classify 将任意 provider 错误归一为统一错误类型。
// 未携带错误码的错误一律视为存储不可用。
func Classify(err error) *xerrors.Error {
	if err == nil {
		return nil
	}
	if e, ok := xerrors.From(err); ok {
		return e
	}
	if stdErrors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(CodeStoreUnavailable, err, MessageTimeout)
	}
	return xerrors.Wrap(CodeStoreUnavailable, err, MessageUnavailable)
}

// WithTimeout 为每次查询设置超时，超时按存储不可用处理。
func WithTimeout(next Provider, timeout time.Duration) Provider {
	if next == nil || timeout <= 0 {
		return next
	}
	return &timeoutProvider{next: next, timeout: timeout}
}

type timeoutProvider struct {
	next    Provider
	timeout time.Duration
}

type lookupOutcome struct {
	doc Document
	err error
}

func (p *timeoutProvider) Lookup(ctx context.Context, secret string) (Document, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// 文件读取等操作不感知 ctx，这里用 goroutine 保证调用方按时返回。
	done := make(chan lookupOutcome, 1)
	go func() {
		doc, err := p.next.Lookup(ctx, secret)
		done <- lookupOutcome{doc: doc, err: err}
	}()

	select {
	case out := <-done:
		return out.doc, out.err
	case <-ctx.Done():
		return nil, Classify(ctx.Err())
	}
}
