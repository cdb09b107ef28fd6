package app

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"signal-backtest/internal/backtest"
	"signal-backtest/internal/config"
	"signal-backtest/internal/exchange"
	"signal-backtest/internal/feature"
	"signal-backtest/internal/history"
	"signal-backtest/internal/signal"
	"signal-backtest/internal/store"
)

var errProvider = errors.New("provider unavailable")

func syntheticCandles(n int) []exchange.Candle {
	base := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]exchange.Candle, n)
	for i := range candles {
		price := 80 + 6*math.Sin(float64(i)/4) + 2*math.Cos(float64(i)/13) + float64(i)*0.03
		candles[i] = exchange.Candle{
			Timestamp: base.AddDate(0, 0, i),
			Open:      price,
			High:      price * 1.01,
			Low:       price * 0.99,
			Close:     price,
			Volume:    1000 + float64(i%7)*15,
		}
	}
	return candles
}

func testProvider() exchange.Provider {
	return exchange.ProviderFunc(func(ctx context.Context, symbol string) ([]exchange.Candle, error) {
		switch symbol {
		case "AAA", "BBB":
			return syntheticCandles(200), nil
		case "SHORT":
			return syntheticCandles(60), nil
		case "TINY":
			return syntheticCandles(10), nil
		default:
			return nil, errProvider
		}
	})
}

func newTestHistory(t *testing.T) *history.Service {
	t.Helper()
	st, err := store.NewSQLite(config.DatabaseConfig{InMemory: true, MaxOpenConns: 1})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	svc, err := history.NewService(st, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}
	return svc
}

func newTestRunner(t *testing.T, hist *history.Service, outputDir string) *Runner {
	t.Helper()
	gen, err := signal.NewVoteGenerator(2)
	if err != nil {
		t.Fatalf("NewVoteGenerator returned error: %v", err)
	}
	runner, err := NewRunner(RunnerOptions{
		Market:        exchange.NewMarketDataService(testProvider(), 0, nil),
		Generator:     gen,
		GeneratorName: config.GeneratorVote,
		History:       hist,
		Params:        backtest.DefaultParams(),
		Filter:        config.FilterConfig{Regime: feature.AllRegimes, MinSamples: 50, Horizon: 5},
		Concurrency:   2,
		OutputDir:     outputDir,
	}, nil)
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}
	return runner
}

func TestRunner_RunMixedSymbols(t *testing.T) {
	hist := newTestHistory(t)
	runner := newTestRunner(t, hist, "")

	symbols := []string{"AAA", "SHORT", "TINY", "BAD", "BBB"}
	results, err := runner.Run(context.Background(), symbols)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(results) != len(symbols) {
		t.Fatalf("expected %d results, got %d", len(symbols), len(results))
	}
	for i, res := range results {
		if res.Symbol != symbols[i] {
			t.Fatalf("result %d: symbol %s want %s", i, res.Symbol, symbols[i])
		}
	}

	for _, i := range []int{0, 4} {
		res := results[i]
		if res.Err != nil || res.Skipped {
			t.Fatalf("%s: unexpected failure %v", res.Symbol, res.Err)
		}
		if res.RunID <= 0 {
			t.Errorf("%s: expected persisted run id, got %d", res.Symbol, res.RunID)
		}
		if res.Samples != 200-33-5 {
			t.Errorf("%s: samples %d", res.Symbol, res.Samples)
		}
		if got := res.Result.FinalCapital(); got != res.Metrics.FinalCapital {
			t.Errorf("%s: final capital %v vs metrics %v", res.Symbol, got, res.Metrics.FinalCapital)
		}
		if len(res.Result.TradePnLs) != res.Metrics.Trades {
			t.Errorf("%s: trade count mismatch", res.Symbol)
		}
	}

	for _, i := range []int{1, 2} {
		res := results[i]
		if !res.Skipped || !errors.Is(res.Err, backtest.ErrInsufficientData) {
			t.Errorf("%s: expected skip with ErrInsufficientData, got skipped=%v err=%v", res.Symbol, res.Skipped, res.Err)
		}
	}

	if results[3].Skipped || !errors.Is(results[3].Err, errProvider) {
		t.Errorf("BAD: expected provider failure, got %v", results[3].Err)
	}

	runs, err := hist.ListRuns(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("ListRuns returned error: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 persisted runs, got %d", len(runs))
	}
}

func TestRunner_MatchesDirectEngineRun(t *testing.T) {
	runner := newTestRunner(t, nil, "")
	results, err := runner.Run(context.Background(), []string{"AAA"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	table, err := feature.Build("AAA", syntheticCandles(200), feature.Options{Horizon: 5})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	gen, _ := signal.NewVoteGenerator(2)
	signals, err := gen.Generate(context.Background(), table)
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	want, err := backtest.Run(table.Closes(), signals, backtest.DefaultParams())
	if err != nil {
		t.Fatalf("backtest.Run returned error: %v", err)
	}

	got := results[0].Result
	if len(got.EquityCurve) != len(want.EquityCurve) {
		t.Fatalf("equity length %d want %d", len(got.EquityCurve), len(want.EquityCurve))
	}
	for i := range want.EquityCurve {
		if got.EquityCurve[i] != want.EquityCurve[i] {
			t.Fatalf("equity[%d]=%v want %v", i, got.EquityCurve[i], want.EquityCurve[i])
		}
	}
	if results[0].RunID != 0 {
		t.Errorf("expected no run id without history, got %d", results[0].RunID)
	}
}

func TestRunner_AllFailed(t *testing.T) {
	runner := newTestRunner(t, nil, "")
	results, err := runner.Run(context.Background(), []string{"X", "Y"})
	if err == nil {
		t.Fatalf("expected error when every symbol fails")
	}
	if !errors.Is(err, errProvider) {
		t.Errorf("expected wrapped provider error, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestRunner_OnlySkippedIsNotFailure(t *testing.T) {
	runner := newTestRunner(t, nil, "")
	results, err := runner.Run(context.Background(), []string{"SHORT"})
	if err != nil {
		t.Fatalf("expected skipped-only run to succeed, got %v", err)
	}
	if !results[0].Skipped {
		t.Fatalf("expected SHORT to be skipped")
	}
}

func TestRunner_WritesCSVArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	runner := newTestRunner(t, nil, dir)
	if _, err := runner.Run(context.Background(), []string{"AAA"}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	for _, name := range []string{"AAA_trades.csv", "AAA_equity.csv"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("expected %s to exist: %v", name, err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", name)
		}
	}
}

func TestRunner_CanceledContext(t *testing.T) {
	runner := newTestRunner(t, nil, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := runner.Run(ctx, []string{"AAA"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewRunner_Validates(t *testing.T) {
	gen, _ := signal.NewVoteGenerator(1)
	market := exchange.NewMarketDataService(testProvider(), 0, nil)
	cases := []RunnerOptions{
		{Generator: gen, Params: backtest.DefaultParams(), Filter: config.FilterConfig{Horizon: 5}},
		{Market: market, Params: backtest.DefaultParams(), Filter: config.FilterConfig{Horizon: 5}},
		{Market: market, Generator: gen, Params: backtest.Params{}, Filter: config.FilterConfig{Horizon: 5}},
		{Market: market, Generator: gen, Params: backtest.DefaultParams()},
	}
	for i, opts := range cases {
		if _, err := NewRunner(opts, nil); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestRunner_GeneratorFailures(t *testing.T) {
	errModel := errors.New("model unavailable")
	cases := []struct {
		name string
		gen  signal.GeneratorFunc
	}{
		{
			name: "generator error",
			gen: func(ctx context.Context, table feature.Table) ([]backtest.Signal, error) {
				return nil, errModel
			},
		},
		{
			name: "length mismatch",
			gen: func(ctx context.Context, table feature.Table) ([]backtest.Signal, error) {
				return make([]backtest.Signal, table.Len()-1), nil
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			runner, err := NewRunner(RunnerOptions{
				Market:      exchange.NewMarketDataService(testProvider(), 0, nil),
				Generator:   tc.gen,
				Params:      backtest.DefaultParams(),
				Filter:      config.FilterConfig{Regime: feature.AllRegimes, MinSamples: 50, Horizon: 5},
				Concurrency: 1,
			}, nil)
			if err != nil {
				t.Fatalf("NewRunner returned error: %v", err)
			}

			results, err := runner.Run(context.Background(), []string{"AAA"})
			if err == nil {
				t.Fatalf("expected error when the only symbol fails")
			}
			if results[0].Err == nil || results[0].Skipped {
				t.Fatalf("expected AAA to fail, got %+v", results[0].Err)
			}
			if tc.name == "generator error" && !errors.Is(err, errModel) {
				t.Errorf("expected wrapped generator error, got %v", err)
			}
		})
	}
}

func TestRunner_AllFlatSignalsKeepCapital(t *testing.T) {
	flat := signal.GeneratorFunc(func(ctx context.Context, table feature.Table) ([]backtest.Signal, error) {
		return make([]backtest.Signal, table.Len()), nil
	})
	runner, err := NewRunner(RunnerOptions{
		Market:      exchange.NewMarketDataService(testProvider(), 0, nil),
		Generator:   flat,
		Params:      backtest.DefaultParams(),
		Filter:      config.FilterConfig{Regime: feature.AllRegimes, MinSamples: 50, Horizon: 5},
		Concurrency: 1,
	}, nil)
	if err != nil {
		t.Fatalf("NewRunner returned error: %v", err)
	}

	results, err := runner.Run(context.Background(), []string{"AAA"})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	m := results[0].Metrics
	if m.Trades != 0 || m.FinalCapital != backtest.DefaultParams().InitialCapital || results[0].Accuracy != 0 {
		t.Fatalf("expected untouched capital with no trades, got %+v accuracy=%v", m, results[0].Accuracy)
	}
}
