package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"signal-backtest/internal/ai"
	"signal-backtest/internal/config"
	"signal-backtest/internal/exchange"
	"signal-backtest/internal/history"
	"signal-backtest/internal/signal"
	"signal-backtest/internal/store"
)

// App 聚合核心依赖并驱动一次批量回测。
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

// Run 对配置中的全部标的执行回测；开启 server 时在回测结束后继续提供查询接口直到 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("回测系统已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("data_source", a.cfg.Data.Source),
		zap.String("generator", a.cfg.Signal.Generator),
		zap.Strings("symbols", a.cfg.Symbols),
	)

	historySvc, err := history.NewService(a.store, a.logger)
	if err != nil {
		return err
	}

	provider, err := newProvider(a.cfg, a.logger)
	if err != nil {
		return err
	}

	generator, err := newGenerator(a.cfg, a.logger)
	if err != nil {
		return err
	}

	runner, err := NewRunner(RunnerOptions{
		Market:        exchange.NewMarketDataService(provider, a.cfg.Data.CacheTTL, a.logger),
		Generator:     generator,
		GeneratorName: a.cfg.Signal.Generator,
		History:       historySvc,
		Params:        a.cfg.Backtest.Params(),
		Filter:        a.cfg.Filter,
		Concurrency:   a.cfg.Backtest.Concurrency,
		OutputDir:     a.cfg.Output.Dir,
	}, a.logger)
	if err != nil {
		return err
	}

	results, err := runner.Run(ctx, a.cfg.Symbols)
	if errors.Is(err, context.Canceled) {
		a.logger.Info("系统收到退出信号，回测已中止")
		return nil
	}
	LogSummary(a.logger, results)
	if err != nil {
		return err
	}

	if !a.cfg.Server.Enabled {
		return nil
	}

	done := startServer(ctx, newHandler(historySvc, a.cfg.Server.AllowedOrigins, a.logger), a.cfg.Server.Port, a.logger)
	select {
	case <-ctx.Done():
		<-done
		a.logger.Info("系统收到退出信号，正在停止")
		return nil
	case <-done:
		return errors.New("查询服务意外退出")
	}
}

func newProvider(cfg *config.Config, logger *zap.Logger) (exchange.Provider, error) {
	switch strings.ToLower(cfg.Data.Source) {
	case config.SourceCSV:
		return exchange.NewCSVProvider(cfg.Data.CSVDir), nil
	case config.SourceExchange:
		return exchange.NewClient(cfg.Exchange, logger)
	default:
		return nil, fmt.Errorf("app: 不支持的数据来源 %q", cfg.Data.Source)
	}
}

func newGenerator(cfg *config.Config, logger *zap.Logger) (signal.Generator, error) {
	switch strings.ToLower(cfg.Signal.Generator) {
	case config.GeneratorVote:
		return signal.NewVoteGenerator(cfg.Signal.MinVotes)
	case config.GeneratorOpenAI:
		return ai.NewClassifier(cfg.OpenAI, cfg.Filter.Horizon, logger)
	default:
		return nil, fmt.Errorf("app: 不支持的信号生成器 %q", cfg.Signal.Generator)
	}
}
