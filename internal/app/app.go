// Package app 将配置转换为可运行的组件，供 starkproofd 与 proofctl 共用。
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"StarkProof/internal/api"
	"StarkProof/internal/config"
	"StarkProof/internal/observability/alerting"
	"StarkProof/internal/observability/events"
	"StarkProof/internal/observability/metrics"
	"StarkProof/internal/proofs"
	redisstore "StarkProof/internal/storage/redis"
	sqlstore "StarkProof/internal/storage/mysql"
	"StarkProof/pkg/logger"
)

// NewLogger 根据配置构造日志实例。
func NewLogger(cfg config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:       cfg.Level,
		Format:      cfg.Format,
		OutputPaths: cfg.OutputPaths,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Audit.Enabled,
			Path:       cfg.Audit.Path,
			MaxSizeMB:  cfg.Audit.MaxSizeMB,
			MaxBackups: cfg.Audit.MaxBackups,
			MaxAgeDays: cfg.Audit.MaxAgeDays,
		},
	})
}

// Importer 表示可以批量写入证明的存储。
type Importer interface {
	Import(ctx context.Context, entries map[string]proofs.Document) (int, error)
}

// Store 是按驱动构造出的证明存储。
type Store struct {
	Provider proofs.Provider
	// File 仅在 file 驱动下非空。
	File     *proofs.FileStore
	Importer Importer
	closers  []func() error
}

// Close 释放存储持有的连接。
func (s *Store) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type sqlImporter struct {
	repo *sqlstore.ProofRepository
}

func (i sqlImporter) Import(ctx context.Context, entries map[string]proofs.Document) (int, error) {
	return i.repo.Upsert(ctx, entries)
}

// OpenStore 根据 store.driver 构造证明存储。
func OpenStore(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (*Store, error) {
	switch cfg.Driver {
	case config.DriverFile, "":
		fs, err := proofs.NewFileStore(cfg.Path,
			proofs.WithCache(cfg.Cache),
			proofs.WithFileStoreLogger(log),
		)
		if err != nil {
			return nil, err
		}
		return &Store{Provider: fs, File: fs}, nil
	case config.DriverRedis:
		rs, err := redisstore.NewProofStore(ctx, redisstore.Config{
			Address:   cfg.Redis.Address,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		return &Store{Provider: rs, Importer: rs, closers: []func() error{rs.Close}}, nil
	case config.DriverMySQL, config.DriverSQLite:
		repo, err := sqlstore.Open(ctx, sqlstore.Config{
			Dialect:         sqlstore.Dialect(cfg.Driver),
			DSN:             cfg.SQL.DSN,
			MaxOpenConns:    cfg.SQL.MaxOpenConns,
			MaxIdleConns:    cfg.SQL.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.SQL.ConnMaxLifetimeSeconds) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return &Store{Provider: repo, Importer: sqlImporter{repo: repo}, closers: []func() error{repo.Close}}, nil
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Driver)
	}
}

// Observers 汇总查询观测记录的接收方。
type Observers struct {
	Sink    proofs.Sink
	Metrics *metrics.Metrics
	closers []func()
}

// Close 等待异步接收方发送完已排队的记录。
func (o *Observers) Close() {
	for i := len(o.closers) - 1; i >= 0; i-- {
		o.closers[i]()
	}
}

// NewObservers 构造审计日志、指标、告警与事件接收方。RabbitMQ 未配置时跳过事件发布。
func NewObservers(cfg *config.Config, logs *logger.Logger) (*Observers, error) {
	m := metrics.New()
	obs := &Observers{Metrics: m}
	sinks := []proofs.Sink{proofs.LogSink(logs.Audit()), m.Sink()}

	notifiers := []alerting.Notifier{&alerting.LogNotifier{Logger: logs.Named("alerting")}}
	if cfg.Alerting.WebhookURL != "" {
		notifiers = append(notifiers, alerting.NewWebhookNotifier(
			cfg.Alerting.WebhookURL,
			time.Duration(cfg.Alerting.TimeoutSeconds)*time.Second,
			logs.Named("alerting"),
		))
	}
	alertSink := alerting.NewSink(alerting.NewFanout(notifiers...),
		alerting.WithBuffer(cfg.Alerting.Buffer),
		alerting.WithSinkLogger(logs.Named("alerting")),
		alerting.WithDropHook(func() { m.ObserveDropped("alerting") }),
	)
	sinks = append(sinks, alertSink)
	obs.closers = append(obs.closers, alertSink.Close)

	if rmq := cfg.Events.RabbitMQ; rmq.URL != "" {
		publisher, err := events.NewRabbitMQPublisher(events.RabbitMQConfig{
			URL:        rmq.URL,
			Exchange:   rmq.Exchange,
			RoutingKey: rmq.RoutingKey,
			Buffer:     rmq.Buffer,
		},
			events.WithLogger(logs.Named("events")),
			events.WithDropHook(func() { m.ObserveDropped("rabbitmq") }),
		)
		if err != nil {
			obs.Close()
			return nil, err
		}
		sinks = append(sinks, publisher.Sink())
		obs.closers = append(obs.closers, func() { _ = publisher.Close() })
	}

	obs.Sink = proofs.Fanout(sinks...)
	return obs, nil
}

// NewService 构造带超时与观测接收方的证明服务。
func NewService(cfg config.StoreConfig, provider proofs.Provider, sink proofs.Sink) *proofs.Service {
	return proofs.NewService(provider,
		proofs.WithSink(sink),
		proofs.WithLookupTimeout(cfg.LookupTimeout()),
	)
}

// NewServer 根据配置构造 HTTP 服务。未配置独立指标地址时 /metrics 挂载在主服务上。
func NewServer(cfg *config.Config, svc api.ProofGetter, m *metrics.Metrics, log *slog.Logger) *api.Server {
	return api.NewServer(cfg.Server.Address, svc,
		api.WithEncoding(api.Encoding(cfg.Response.Encoding)),
		api.WithStatusMapping(api.StatusMapping(cfg.Response.StatusMapping)),
		api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		api.WithMetrics(m, cfg.Server.MetricsAddress == ""),
		api.WithLogger(log),
	)
}
