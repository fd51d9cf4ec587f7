package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/VietCT04/Decentralised-Exchange/internal/config"
	"github.com/VietCT04/Decentralised-Exchange/internal/execution"
	"github.com/VietCT04/Decentralised-Exchange/internal/gateway"
	"github.com/VietCT04/Decentralised-Exchange/internal/history"
	"github.com/VietCT04/Decentralised-Exchange/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 完成依赖装配并启动 HTTP 服务，阻塞直至收到退出信号。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("扫单服务已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("dex", a.cfg.Gateway.DexAddress),
		zap.Int64("chain_id", a.cfg.Gateway.ChainID),
	)

	client, err := gateway.NewClient(a.cfg.Gateway, a.logger)
	if err != nil {
		return fmt.Errorf("初始化网关客户端失败: %w", err)
	}
	defer client.Close()

	snaps := gateway.NewSnapshotter(client, a.cfg.Snapshot.MaxConcurrency, a.logger)

	executor, err := execution.NewExecutor(client, snaps, client.From(), a.cfg.Execution, a.logger)
	if err != nil {
		return fmt.Errorf("初始化执行器失败: %w", err)
	}

	events, err := history.NewService(a.store, a.logger)
	if err != nil {
		return fmt.Errorf("初始化事件存储失败: %w", err)
	}

	if err := startServer(ctx, executor, events, a.cfg.Server.Port, a.logger); err != nil {
		return fmt.Errorf("启动 HTTP 服务失败: %w", err)
	}

	a.logger.Info("HTTP 服务已启动", zap.Int("port", a.cfg.Server.Port))

	<-ctx.Done()
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}
	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}
