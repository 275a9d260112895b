package proofs

import (
	"context"
	"log/slog"
	"time"

	xerrors "StarkProof/internal/errors"
)

// Outcome 表示一次查询的结果类别。
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// Record 是每次查询产生的观测记录，只写且与顺序无关。
type Record struct {
	Time      time.Time        `json:"time"`
	RequestID string           `json:"request_id"`
	Secret    string           `json:"secret"`
	Outcome   Outcome          `json:"outcome"`
	Code      xerrors.Code     `json:"code,omitempty"`
	Severity  xerrors.Severity `json:"severity,omitempty"`
	Detail    string           `json:"detail,omitempty"`
	Digest    string           `json:"digest,omitempty"`
	Duration  time.Duration    `json:"duration_ns"`
}

// NewRecord 根据查询结果生成观测记录。
func NewRecord(result Result) Record {
	rec := Record{
		Time:      result.StartedAt,
		RequestID: result.RequestID,
		Secret:    result.Secret,
		Outcome:   OutcomeSuccess,
		Digest:    result.Digest,
		Duration:  result.Duration,
	}
	if result.Err != nil {
		rec.Outcome = OutcomeFailure
		rec.Code = result.Err.Code()
		rec.Severity = result.Err.Severity()
		rec.Detail = result.Err.Detail()
	}
	return rec
}

// Sink 接收观测记录。实现不得阻塞调用方，也不应返回错误。
type Sink interface {
	Record(ctx context.Context, rec Record)
}

// SinkFunc 允许以函数形式实现 Sink。
type SinkFunc func(ctx context.Context, rec Record)

// Record 实现 Sink 接口。
func (f SinkFunc) Record(ctx context.Context, rec Record) {
	f(ctx, rec)
}

// NopSink 丢弃所有记录。
type NopSink struct{}

// Record 实现 Sink 接口。
func (NopSink) Record(context.Context, Record) {}

// Fanout 将记录依次投递给多个 Sink，单个 Sink 的 panic 不影响其他 Sink。
func Fanout(sinks ...Sink) Sink {
	filtered := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink != nil {
			filtered = append(filtered, sink)
		}
	}
	return fanoutSink(filtered)
}

type fanoutSink []Sink

func (f fanoutSink) Record(ctx context.Context, rec Record) {
	for _, sink := range f {
		func() {
			defer func() { _ = recover() }()
			sink.Record(ctx, rec)
		}()
	}
}

// LogSink 将记录写入结构化日志，级别由错误严重程度决定。
func LogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &logSink{logger: logger}
}

type logSink struct {
	logger *slog.Logger
}

func (s *logSink) Record(ctx context.Context, rec Record) {
	attrs := []slog.Attr{
		slog.String("request_id", rec.RequestID),
		slog.String("secret", rec.Secret),
		slog.String("outcome", string(rec.Outcome)),
		slog.Time("timestamp", rec.Time),
		slog.Duration("duration", rec.Duration),
	}
	if rec.Outcome == OutcomeSuccess {
		attrs = append(attrs, slog.String("digest", rec.Digest))
		s.logger.LogAttrs(ctx, slog.LevelInfo, "证明获取成功", attrs...)
		return
	}
	attrs = append(attrs,
		slog.String("code", string(rec.Code)),
		slog.String("error", rec.Detail),
	)
	s.logger.LogAttrs(ctx, levelOf(rec.Severity), "证明获取失败", attrs...)
}

func levelOf(sev xerrors.Severity) slog.Level {
	switch sev {
	case xerrors.SeverityCritical:
		return slog.LevelError
	case xerrors.SeverityWarning:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}
