package backtest

import (
	"bytes"
	"math"
	"strings"
	"testing"
)

func TestEvaluate(t *testing.T) {
	res := Result{
		EquityCurve: []float64{1.0, 1.1, 0.99, 1.2},
		TradePnLs:   []float64{0.1, -0.11, 0.21},
	}
	prices := []float64{10, 12, 9, 15}

	m := Evaluate(res, prices, 5)

	if math.Abs(m.TotalReturn-0.2) > 1e-12 {
		t.Errorf("total return: got %v want 0.2", m.TotalReturn)
	}
	if math.Abs(m.MaxDrawdown-(-0.1)) > 1e-12 {
		t.Errorf("max drawdown: got %v want -0.1", m.MaxDrawdown)
	}
	if math.Abs(m.HitRate-2.0/3.0) > 1e-12 {
		t.Errorf("hit rate: got %v", m.HitRate)
	}
	if math.Abs(m.BuyAndHold-0.5) > 1e-12 {
		t.Errorf("buy and hold: got %v want 0.5", m.BuyAndHold)
	}
	if m.Trades != 3 || m.FinalCapital != 1.2 {
		t.Errorf("unexpected trades/final: %+v", m)
	}

	returns := []float64{0.1, 0.99/1.1 - 1, 1.2/0.99 - 1}
	mean := (returns[0] + returns[1] + returns[2]) / 3
	var ss float64
	for _, r := range returns {
		ss += (r - mean) * (r - mean)
	}
	want := mean / math.Sqrt(ss/2) * math.Sqrt(252.0/5.0)
	if math.Abs(m.SharpeRatio-want) > 1e-9 {
		t.Errorf("sharpe: got %v want %v", m.SharpeRatio, want)
	}
}

func TestEvaluate_DegenerateInputs(t *testing.T) {
	m := Evaluate(Result{EquityCurve: []float64{1}}, []float64{5}, 5)
	if m.SharpeRatio != 0 || m.MaxDrawdown != 0 || m.HitRate != 0 || m.TotalReturn != 0 {
		t.Errorf("expected zero metrics, got %+v", m)
	}

	flat := Evaluate(Result{EquityCurve: []float64{1, 1, 1}}, []float64{5, 5, 5}, 5)
	if flat.SharpeRatio != 0 {
		t.Errorf("constant curve should have zero sharpe, got %v", flat.SharpeRatio)
	}
}

func TestWriteCSV(t *testing.T) {
	trades := []Trade{{Side: Long, EntryIndex: 0, ExitIndex: 5, EntryPrice: 100, ExitPrice: 105, Risk: 0.01, Return: 0.05, PnL: 0.0005, CapitalAfter: 1.0005}}

	var buf bytes.Buffer
	if err := WriteTradesCSV(&buf, trades); err != nil {
		t.Fatalf("WriteTradesCSV: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one row, got %q", buf.String())
	}
	if lines[1] != "1,LONG,0,5,100,105,0.01,0.05,0.0005,1.0005" {
		t.Errorf("unexpected row: %s", lines[1])
	}

	buf.Reset()
	if err := WriteEquityCSV(&buf, []float64{1, 1.0005}); err != nil {
		t.Fatalf("WriteEquityCSV: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "step,equity\n0,1\n1,1.0005" {
		t.Errorf("unexpected equity csv: %q", got)
	}
}
