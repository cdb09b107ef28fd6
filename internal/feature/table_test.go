package feature

import (
	"errors"
	"math"
	"testing"
	"time"

	"signal-backtest/internal/exchange"
	"signal-backtest/internal/indicator"
)

func makeCandles(n int) []exchange.Candle {
	base := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	candles := make([]exchange.Candle, n)
	for i := range candles {
		price := 50 + 5*math.Sin(float64(i)/3) + 3*math.Cos(float64(i)/11) + float64(i)*0.05
		candles[i] = exchange.Candle{
			Timestamp: base.AddDate(0, 0, i),
			Open:      price,
			High:      price * 1.01,
			Low:       price * 0.99,
			Close:     price,
			Volume:    500 + float64(i%5)*20,
		}
	}
	return candles
}

func TestBuild_TrimsWarmupAndHorizon(t *testing.T) {
	candles := makeCandles(120)
	table, err := Build("TEST", candles, Options{Horizon: 5})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	want := 120 - indicator.Lookback - 5
	if table.Len() != want {
		t.Fatalf("expected %d rows, got %d", want, table.Len())
	}
	if !table.Rows[0].Timestamp.Equal(candles[indicator.Lookback].Timestamp) {
		t.Errorf("first row should start after warm-up, got %v", table.Rows[0].Timestamp)
	}

	for k, row := range table.Rows {
		i := indicator.Lookback + k
		target := 0
		if candles[i+5].Close > candles[i].Close {
			target = 1
		}
		if row.Target != target {
			t.Fatalf("row %d: target %d want %d", k, row.Target, target)
		}
		if row.Regime < 0 || row.Regime > 2 {
			t.Fatalf("row %d: regime %d out of range", k, row.Regime)
		}
	}

	closes := table.Closes()
	if len(closes) != table.Len() || closes[0] != candles[indicator.Lookback].Close {
		t.Errorf("closes do not line up with rows")
	}
	if len(table.Targets()) != table.Len() {
		t.Errorf("targets do not line up with rows")
	}
}

func TestFilterRegime(t *testing.T) {
	table, err := Build("TEST", makeCandles(200), Options{Horizon: 5})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}

	total := 0
	for r := 0; r <= 2; r++ {
		sub := table.FilterRegime(r)
		for _, row := range sub.Rows {
			if row.Regime != r {
				t.Fatalf("regime %d filter kept row with regime %d", r, row.Regime)
			}
		}
		for k := 1; k < sub.Len(); k++ {
			if !sub.Rows[k].Timestamp.After(sub.Rows[k-1].Timestamp) {
				t.Fatalf("filtered rows out of order")
			}
		}
		total += sub.Len()
	}
	if total != table.Len() {
		t.Errorf("regime partitions cover %d rows, want %d", total, table.Len())
	}
	if table.FilterRegime(AllRegimes).Len() != table.Len() {
		t.Errorf("AllRegimes should keep every row")
	}
}

func TestTerciles(t *testing.T) {
	edges := terciles([]float64{9, 1, 5, 3, 7, 2, 8, 4, 6})
	if math.Abs(edges[0]-11.0/3.0) > 1e-12 || math.Abs(edges[1]-19.0/3.0) > 1e-12 {
		t.Fatalf("unexpected edges %v", edges)
	}

	want := map[float64]int{1: 0, 3: 0, 4: 1, 6: 1, 7: 2, 9: 2}
	for v, regime := range want {
		if got := regimeOf(v, edges); got != regime {
			t.Errorf("regimeOf(%v)=%d want %d", v, got, regime)
		}
	}
}

func TestBuild_Errors(t *testing.T) {
	if _, err := Build("TEST", makeCandles(100), Options{}); err == nil {
		t.Fatalf("expected horizon error")
	}
	if _, err := Build("TEST", makeCandles(10), Options{Horizon: 5}); !errors.Is(err, ErrEmptyTable) {
		t.Fatalf("expected ErrEmptyTable for short history, got %v", err)
	}
	_, err := Build("TEST", makeCandles(indicator.Lookback+3), Options{Horizon: 5})
	if !errors.Is(err, ErrEmptyTable) {
		t.Fatalf("expected ErrEmptyTable, got %v", err)
	}
}
