package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"signal-backtest/internal/backtest"
	"signal-backtest/internal/config"
	"signal-backtest/internal/exchange"
	"signal-backtest/internal/feature"
	"signal-backtest/internal/history"
	"signal-backtest/internal/log"
	"signal-backtest/internal/signal"
)

// SymbolResult 为单个标的的回测结果。
type SymbolResult struct {
	Symbol   string
	RunID    int64
	Samples  int
	Accuracy float64
	Metrics  backtest.Metrics
	Result   backtest.Result
	Skipped  bool
	Err      error
}

// RunnerOptions 描述 Runner 的依赖。
type RunnerOptions struct {
	Market        *exchange.MarketDataService
	Generator     signal.Generator
	GeneratorName string
	History       *history.Service // 可为空，为空时不持久化
	Params        backtest.Params
	Filter        config.FilterConfig
	Concurrency   int
	OutputDir     string
}

// Runner 按标的并发执行 取数→特征→信号→回测→保存 的流程。
// 各标的之间互不共享可变状态。
type Runner struct {
	opts   RunnerOptions
	logger *zap.Logger
}

// NewRunner 校验依赖并创建 Runner。
func NewRunner(opts RunnerOptions, logger *zap.Logger) (*Runner, error) {
	if opts.Market == nil {
		return nil, errors.New("app: market data service 不能为空")
	}
	if opts.Generator == nil {
		return nil, errors.New("app: signal generator 不能为空")
	}
	if err := opts.Params.Validate(); err != nil {
		return nil, fmt.Errorf("app: 回测参数非法: %w", err)
	}
	if opts.Filter.Horizon <= 0 {
		return nil, errors.New("app: filter.horizon 必须大于0")
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{opts: opts, logger: logger}, nil
}

// Run 依次返回每个标的的结果，顺序与 symbols 一致。
// 样本不足的标的会被跳过；只有当所有未跳过的标的都失败时才返回错误。
func (r *Runner) Run(ctx context.Context, symbols []string) ([]SymbolResult, error) {
	results := make([]SymbolResult, len(symbols))

	var group errgroup.Group
	group.SetLimit(r.opts.Concurrency)

	for i, symbol := range symbols {
		group.Go(func() error {
			res, err := r.runSymbol(ctx, symbol)
			res.Symbol = symbol
			if err != nil {
				res.Err = err
				res.Skipped = errors.Is(err, backtest.ErrInsufficientData)
			}
			results[i] = res
			return nil
		})
	}
	_ = group.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}

	var (
		failures error
		attempted int
		succeeded int
	)
	for _, res := range results {
		if res.Skipped {
			continue
		}
		attempted++
		if res.Err != nil {
			failures = multierr.Append(failures, fmt.Errorf("%s: %w", res.Symbol, res.Err))
			continue
		}
		succeeded++
	}

	if attempted > 0 && succeeded == 0 {
		return results, fmt.Errorf("app: 所有标的回测失败: %w", failures)
	}
	return results, nil
}

func (r *Runner) runSymbol(ctx context.Context, symbol string) (SymbolResult, error) {
	logger := log.WithSymbol(r.logger, symbol)
	logger.Info("开始回测")

	candles, err := r.opts.Market.GetCandles(ctx, symbol)
	if err != nil {
		logger.Error("获取行情失败", zap.Error(err))
		return SymbolResult{}, err
	}

	table, err := feature.Build(symbol, candles, feature.Options{Horizon: r.opts.Filter.Horizon})
	if err != nil {
		if errors.Is(err, feature.ErrEmptyTable) {
			err = fmt.Errorf("%w: %v", backtest.ErrInsufficientData, err)
			logger.Warn("样本不足，跳过", zap.Error(err))
		} else {
			logger.Error("构建特征失败", zap.Error(err))
		}
		return SymbolResult{}, err
	}

	table = table.FilterRegime(r.opts.Filter.Regime)
	if table.Len() < r.opts.Filter.MinSamples {
		err := fmt.Errorf("%w: %s 仅有 %d 个样本，至少需要 %d", backtest.ErrInsufficientData, symbol, table.Len(), r.opts.Filter.MinSamples)
		logger.Warn("样本不足，跳过", zap.Int("samples", table.Len()), zap.Int("min_samples", r.opts.Filter.MinSamples))
		return SymbolResult{Samples: table.Len()}, err
	}

	signals, err := r.opts.Generator.Generate(ctx, table)
	if err != nil {
		logger.Error("生成信号失败", zap.Error(err))
		return SymbolResult{}, err
	}
	if len(signals) != table.Len() {
		return SymbolResult{}, fmt.Errorf("app: 信号数量 %d 与样本数量 %d 不一致", len(signals), table.Len())
	}

	prices := table.Closes()
	res, err := backtest.Run(prices, signals, r.opts.Params)
	if err != nil {
		logger.Error("回测失败", zap.Error(err))
		return SymbolResult{}, err
	}

	out := SymbolResult{
		Samples:  table.Len(),
		Accuracy: signal.Accuracy(signals, table.Targets()),
		Metrics:  backtest.Evaluate(res, prices, r.opts.Params.HoldingPeriod),
		Result:   res,
	}

	if r.opts.History != nil {
		id, err := r.opts.History.RecordRun(ctx, history.Run{
			Symbol:      symbol,
			Generator:   r.opts.GeneratorName,
			Regime:      r.opts.Filter.Regime,
			Samples:     out.Samples,
			Accuracy:    out.Accuracy,
			Params:      r.opts.Params,
			Metrics:     out.Metrics,
			EquityCurve: res.EquityCurve,
			Trades:      res.Trades,
		})
		if err != nil {
			logger.Error("保存回测记录失败", zap.Error(err))
			return out, err
		}
		out.RunID = id
	}

	if r.opts.OutputDir != "" {
		if err := writeArtifacts(r.opts.OutputDir, symbol, res); err != nil {
			logger.Warn("导出CSV失败", zap.Error(err))
		}
	}

	logger.Info("回测完成",
		zap.Int("samples", out.Samples),
		zap.Int("trades", out.Metrics.Trades),
		zap.Float64("total_return", out.Metrics.TotalReturn),
		zap.Float64("sharpe", out.Metrics.SharpeRatio),
		zap.Float64("max_drawdown", out.Metrics.MaxDrawdown),
		zap.Float64("hit_rate", out.Metrics.HitRate),
		zap.Float64("buy_and_hold", out.Metrics.BuyAndHold),
		zap.Float64("accuracy", out.Accuracy),
	)

	return out, nil
}

func writeArtifacts(dir, symbol string, res backtest.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建输出目录失败: %w", err)
	}
	base := strings.NewReplacer("/", "_", ":", "_").Replace(strings.ToUpper(symbol))

	write := func(name string, fn func(f *os.File) error) (err error) {
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		defer func() {
			err = multierr.Append(err, f.Close())
		}()
		return fn(f)
	}

	if err := write(base+"_trades.csv", func(f *os.File) error {
		return backtest.WriteTradesCSV(f, res.Trades)
	}); err != nil {
		return err
	}
	return write(base+"_equity.csv", func(f *os.File) error {
		return backtest.WriteEquityCSV(f, res.EquityCurve)
	})
}

// LogSummary 以表格形式输出多标的汇总。
func LogSummary(logger *zap.Logger, results []SymbolResult) {
	for _, res := range results {
		switch {
		case res.Skipped:
			logger.Warn("汇总: 已跳过", zap.String("symbol", res.Symbol), zap.Int("samples", res.Samples))
		case res.Err != nil:
			logger.Error("汇总: 失败", zap.String("symbol", res.Symbol), zap.Error(res.Err))
		default:
			logger.Info(fmt.Sprintf("汇总: %-8s | Sharpe: %6.2f | MaxDD: %7.2f%% | Return: %7.2f%% | HitRate: %6.2f%%",
				res.Symbol,
				res.Metrics.SharpeRatio,
				res.Metrics.MaxDrawdown*100,
				res.Metrics.TotalReturn*100,
				res.Metrics.HitRate*100,
			), zap.Int64("run_id", res.RunID))
		}
	}
}
