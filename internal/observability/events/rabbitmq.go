// Package events 将证明查询的观测记录发布到 RabbitMQ。
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"StarkProof/internal/proofs"
)

// RabbitMQConfig 描述 RabbitMQ 发布端的连接参数。
type RabbitMQConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
	Buffer     int
}

// Channel 抽象发布所需的 amqp channel 能力，*amqp.Channel 满足该接口。
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Option 定义发布器的可选配置。
type Option func(*RabbitMQPublisher)

// WithLogger 指定发布失败时使用的日志实例。
func WithLogger(logger *slog.Logger) Option {
	return func(p *RabbitMQPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDropHook 在缓冲区满而丢弃记录时回调。
func WithDropHook(fn func()) Option {
	return func(p *RabbitMQPublisher) {
		p.onDrop = fn
	}
}

// RabbitMQPublisher 以 JSON 形式将 proofs.Record 发布到 topic exchange。
type RabbitMQPublisher struct {
	conn       *amqp.Connection
	ch         Channel
	exchange   string
	routingKey string
	logger     *slog.Logger
	onDrop     func()

	queue     chan proofs.Record
	done      chan struct{}
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func applyDefaults(cfg *RabbitMQConfig) {
	if cfg.Exchange == "" {
		cfg.Exchange = "starkproof.events"
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = "proof.lookup"
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 1024
	}
}

// NewRabbitMQPublisher 连接 RabbitMQ 并声明 exchange。
func NewRabbitMQPublisher(cfg RabbitMQConfig, opts ...Option) (*RabbitMQPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}
	p, err := NewPublisherWithChannel(ch, cfg, opts...)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisherWithChannel 使用已有 channel 创建发布器并启动发送协程。
func NewPublisherWithChannel(ch Channel, cfg RabbitMQConfig, opts ...Option) (*RabbitMQPublisher, error) {
	if ch == nil {
		return nil, errors.New("RabbitMQ channel 不能为空")
	}
	applyDefaults(&cfg)
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("声明 RabbitMQ exchange 失败: %w", err)
	}
	p := &RabbitMQPublisher{
		ch:         ch,
		exchange:   cfg.Exchange,
		routingKey: cfg.RoutingKey,
		logger:     slog.Default(),
		queue:      make(chan proofs.Record, cfg.Buffer),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	go p.run()
	return p, nil
}

// Publish 同步发布一条记录。
func (p *RabbitMQPublisher) Publish(ctx context.Context, rec proofs.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("编码观测记录失败: %w", err)
	}
	return p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    rec.RequestID,
		Timestamp:    rec.Time,
		Type:         string(rec.Outcome),
		Body:         body,
	})
}

// Sink 返回异步投递的 proofs.Sink，缓冲区满时丢弃记录。
func (p *RabbitMQPublisher) Sink() proofs.Sink {
	return proofs.SinkFunc(func(_ context.Context, rec proofs.Record) {
		p.mu.RLock()
		defer p.mu.RUnlock()
		if p.closed {
			return
		}
		select {
		case p.queue <- rec:
		default:
			if p.onDrop != nil {
				p.onDrop()
			}
		}
	})
}

func (p *RabbitMQPublisher) run() {
	defer close(p.done)
	for rec := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.Publish(ctx, rec); err != nil {
			p.logger.Warn("发布观测记录失败",
				slog.String("request_id", rec.RequestID),
				slog.String("error", err.Error()),
			)
		}
		cancel()
	}
}

// Close 停止接收记录，发送完已排队的记录后关闭连接。
func (p *RabbitMQPublisher) Close() error {
	if p == nil {
		return nil
	}
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})
	<-p.done
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
