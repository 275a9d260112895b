package alerting

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"StarkProof/internal/proofs"
)

// SinkOption 定义 AlertSink 的可选配置。
type SinkOption func(*AlertSink)

// WithBuffer 设置待发送告警的缓冲容量。
func WithBuffer(size int) SinkOption {
	return func(s *AlertSink) {
		if size > 0 {
			s.buffer = size
		}
	}
}

// WithSinkLogger 指定发送失败时使用的日志实例。
func WithSinkLogger(logger *slog.Logger) SinkOption {
	return func(s *AlertSink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDropHook 在缓冲区满而丢弃告警时回调。
func WithDropHook(fn func()) SinkOption {
	return func(s *AlertSink) {
		s.onDrop = fn
	}
}

// WithNotifyTimeout 设置单次发送的超时。
func WithNotifyTimeout(d time.Duration) SinkOption {
	return func(s *AlertSink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// AlertSink 将需要告警的失败记录异步投递给 Dispatcher，不阻塞查询路径。
type AlertSink struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	onDrop     func()
	buffer     int
	timeout    time.Duration

	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewSink 创建并启动 AlertSink。
func NewSink(dispatcher Dispatcher, opts ...SinkOption) *AlertSink {
	s := &AlertSink{
		dispatcher: dispatcher,
		logger:     slog.Default(),
		buffer:     64,
		timeout:    10 * time.Second,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.queue = make(chan Event, s.buffer)
	go s.run()
	return s
}

// Record 实现 proofs.Sink。缓冲区已满时直接丢弃。
func (s *AlertSink) Record(_ context.Context, rec proofs.Record) {
	event, ok := EventFromRecord(rec)
	if !ok {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- event:
	default:
		if s.onDrop != nil {
			s.onDrop()
		}
		s.logger.Warn("告警缓冲区已满，丢弃告警", slog.String("request_id", event.RequestID), slog.String("code", string(event.Code)))
	}
}

// Close 停止接收告警并等待已排队的告警发送完毕。
func (s *AlertSink) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})
	<-s.done
}

func (s *AlertSink) run() {
	defer close(s.done)
	for event := range s.queue {
		if s.dispatcher == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		if err := s.dispatcher.Notify(ctx, event); err != nil {
			s.logger.Warn("发送告警失败",
				slog.String("request_id", event.RequestID),
				slog.String("code", string(event.Code)),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}

var _ proofs.Sink = (*AlertSink)(nil)
