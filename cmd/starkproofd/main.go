package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"StarkProof/internal/app"
	"StarkProof/internal/config"
)

// main 是证明服务守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("starkproofd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("STARKPROOF_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "starkproof.yaml")
	}

	cfg, err := config.LoadOptional(configPath)
	if err != nil {
		return err
	}

	logs, err := app.NewLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer logs.Close()
	logger := logs.Logger()

	store, err := app.OpenStore(ctx, cfg.Store, logs.Named("store"))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("关闭证明存储失败", slog.String("error", err.Error()))
		}
	}()

	if store.File != nil {
		logger.Info("使用文件证明存储",
			slog.String("path", store.File.Path()),
			slog.Bool("cache", store.File.Cached()),
		)
		if cfg.Store.Watch {
			// 预热快照，文件损坏时启动即报错。
			if err := store.File.Refresh(ctx); err != nil {
				return err
			}
			go func() {
				if err := store.File.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Warn("证明文件监听退出", slog.String("error", err.Error()))
				}
			}()
		}
	}

	observers, err := app.NewObservers(cfg, logs)
	if err != nil {
		return err
	}
	defer observers.Close()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := observers.Metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("指标服务异常退出", slog.String("error", err.Error()))
			}
		}()
	}

	svc := app.NewService(cfg.Store, store.Provider, observers.Sink)
	server := app.NewServer(cfg, svc, observers.Metrics, logs.Named("api"))

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("证明服务已停止")
	return nil
}
