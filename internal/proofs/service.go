package proofs

import (
	"context"
	"time"

	"github.com/google/uuid"

	xerrors "StarkProof/internal/errors"
)

// Result 描述一次证明获取的结果，成功时 Err 为空。
type Result struct {
	RequestID string
	Secret    string
	Document  Document
	Digest    string
	Err       *xerrors.Error
	StartedAt time.Time
	Duration  time.Duration
}

// OK 表示是否成功获取证明。
func (r Result) OK() bool {
	return r.Err == nil
}

// Code 返回失败时的错误码，成功时为空。
func (r Result) Code() xerrors.Code {
	if r.Err == nil {
		return ""
	}
	return r.Err.Code()
}

// Message 返回面向调用方的错误描述，成功时为空。
func (r Result) Message() string {
	return r.Err.Message()
}

// Service 对外暴露证明获取契约，本身无状态，可并发调用。
type Service struct {
	provider Provider
	sink     Sink
	now      func() time.Time
	newID    func() string
}

// ServiceOption 定义 Service 的可选配置。
type ServiceOption func(*Service)

// WithSink 指定观测记录的接收方。
func WithSink(sink Sink) ServiceOption {
	return func(s *Service) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithClock 替换时间来源，主要用于测试。
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRequestIDGenerator 替换请求 ID 的生成方式。
func WithRequestIDGenerator(fn func() string) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLookupTimeout 为每次 provider 调用设置超时。
func WithLookupTimeout(timeout time.Duration) ServiceOption {
	return func(s *Service) {
		s.provider = WithTimeout(s.provider, timeout)
	}
}

// NewService 构造证明服务。
func NewService(provider Provider, opts ...ServiceOption) *Service {
	s := &Service{
		provider: provider,
		sink:     NopSink{},
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// GetProof 按 secret 获取证明。secret 原样传递给 provider，不做任何规范化。
// 每次调用恰好产生一条观测记录，记录的投递结果不影响返回值。
func (s *Service) GetProof(ctx context.Context, secret string) Result {
	result := Result{
		RequestID: s.newID(),
		Secret:    secret,
		StartedAt: s.now(),
	}

	doc, err := s.lookup(ctx, secret)
	if err != nil {
		result.Err = Classify(err)
	} else {
		result.Document = doc
		result.Digest = Digest(doc)
	}
	result.Duration = s.now().Sub(result.StartedAt)

	s.emit(ctx, result)
	return result
}

func (s *Service) lookup(ctx context.Context, secret string) (Document, error) {
	if s.provider == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "证明存储未初始化")
	}
	return s.provider.Lookup(ctx, secret)
}

func (s *Service) emit(ctx context.Context, result Result) {
	defer func() {
		// 观测记录丢失不能改变返回给调用方的结果。
		_ = recover()
	}()
	s.sink.Record(ctx, NewRecord(result))
}
