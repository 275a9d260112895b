package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	xerrors "StarkProof/internal/errors"
	"StarkProof/internal/proofs"
)

// Channel 表示通知渠道。
type Channel string

// 支持的通知渠道
const (
	ChannelWebhook Channel = "webhook"
	ChannelLog     Channel = "log"
)

// Event 描述一次需要告警的证明查询失败。
type Event struct {
	Code       xerrors.Code     `json:"code"`
	Message    string           `json:"message"`
	Severity   xerrors.Severity `json:"severity"`
	RequestID  string           `json:"request_id"`
	Secret     string           `json:"secret"`
	Retryable  bool             `json:"retryable"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// EventFromRecord 将观测记录转换为告警事件，不需要告警的记录返回 false。
func EventFromRecord(rec proofs.Record) (Event, bool) {
	if rec.Outcome != proofs.OutcomeFailure || rec.Code == "" {
		return Event{}, false
	}
	attr := xerrors.AttributesOf(rec.Code)
	if !attr.Alert {
		return Event{}, false
	}
	severity := rec.Severity
	if severity == "" {
		severity = attr.Severity
	}
	return Event{
		Code:       rec.Code,
		Message:    rec.Detail,
		Severity:   severity,
		RequestID:  rec.RequestID,
		Secret:     rec.Secret,
		Retryable:  attr.Retryable,
		OccurredAt: rec.Time,
	}, true
}

// Notifier 负责将事件发送到指定渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 将事件广播给多个通知器。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 实现将事件投递到多个通知器的逻辑。
type FanoutDispatcher struct {
	notifiers map[Channel]Notifier
}

// NewFanout 创建一个新的 FanoutDispatcher，同一渠道只保留最后一个通知器。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	set := make(map[Channel]Notifier, len(notifiers))
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		set[n.Channel()] = n
	}
	return &FanoutDispatcher{notifiers: set}
}

// Channels 返回已注册的渠道。
func (d *FanoutDispatcher) Channels() []Channel {
	if d == nil {
		return nil
	}
	out := make([]Channel, 0, len(d.notifiers))
	for ch := range d.notifiers {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Notify 将事件广播至所有注册渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, notifier := range d.notifiers {
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", notifier.Channel(), err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// LogNotifier 将告警写入结构化日志。
type LogNotifier struct {
	Logger *slog.Logger
}

// Channel 返回日志渠道。
func (n *LogNotifier) Channel() Channel { return ChannelLog }

// Notify 以 warn 级别记录告警。
func (n *LogNotifier) Notify(ctx context.Context, event Event) error {
	logger := slog.Default()
	if n != nil && n.Logger != nil {
		logger = n.Logger
	}
	logger.LogAttrs(ctx, slog.LevelWarn, "证明存储告警",
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("request_id", event.RequestID),
		slog.Bool("retryable", event.Retryable),
		slog.String("error", event.Message),
		slog.Time("occurred_at", event.OccurredAt),
	)
	return nil
}
