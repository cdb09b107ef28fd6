package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"go.uber.org/zap"

	"signal-backtest/internal/backtest"
	"signal-backtest/internal/history"
)

func seedRun(t *testing.T, svc *history.Service, symbol string) int64 {
	t.Helper()
	prices := []float64{10, 11, 12, 11, 10, 11, 12}
	signals := []backtest.Signal{backtest.Long, backtest.Flat, backtest.Short, backtest.Flat, backtest.Flat, backtest.Flat, backtest.Flat}
	p := backtest.DefaultParams()
	p.HoldingPeriod = 2
	res, err := backtest.Run(prices, signals, p)
	if err != nil {
		t.Fatalf("backtest.Run returned error: %v", err)
	}
	id, err := svc.RecordRun(context.Background(), history.Run{
		Symbol:      symbol,
		Generator:   "vote",
		Regime:      1,
		Samples:     len(prices),
		Params:      p,
		Metrics:     backtest.Evaluate(res, prices, p.HoldingPeriod),
		EquityCurve: res.EquityCurve,
		Trades:      res.Trades,
	})
	if err != nil {
		t.Fatalf("RecordRun returned error: %v", err)
	}
	return id
}

func serve(t *testing.T, h http.Handler, method, target string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_ListRuns(t *testing.T) {
	svc := newTestHistory(t)
	seedRun(t, svc, "AAPL")
	seedRun(t, svc, "MSFT")
	h := newHandler(svc, nil, zap.NewNop())

	rec := serve(t, h, http.MethodGet, "/runs?symbol=aapl&limit=10", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	var runs []history.Run
	if err := json.Unmarshal(rec.Body.Bytes(), &runs); err != nil {
		t.Fatalf("decode runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Symbol != "AAPL" {
		t.Fatalf("unexpected runs %+v", runs)
	}

	rec = serve(t, h, http.MethodGet, "/runs?symbol=NONE", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("expected empty json array, got %q", body)
	}
}

func TestHandler_GetRunAndTrades(t *testing.T) {
	svc := newTestHistory(t)
	id := seedRun(t, svc, "NVDA")
	h := newHandler(svc, nil, zap.NewNop())

	rec := serve(t, h, http.MethodGet, "/runs/"+strconv.FormatInt(id, 10), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get run status %d", rec.Code)
	}

	rec = serve(t, h, http.MethodGet, "/runs/"+strconv.FormatInt(id, 10)+"/trades", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("trades status %d body %s", rec.Code, rec.Body.String())
	}
	var trades []backtest.Trade
	if err := json.Unmarshal(rec.Body.Bytes(), &trades); err != nil {
		t.Fatalf("decode trades: %v", err)
	}
	if len(trades) != 2 || trades[0].Side != backtest.Long || trades[1].Side != backtest.Short {
		t.Fatalf("unexpected trades %+v", trades)
	}
}

func TestHandler_Errors(t *testing.T) {
	svc := newTestHistory(t)
	h := newHandler(svc, nil, zap.NewNop())

	if rec := serve(t, h, http.MethodGet, "/runs/abc/trades", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodGet, "/runs/999/trades", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing run, got %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodGet, "/runs/999", nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing run, got %d", rec.Code)
	}
	if rec := serve(t, h, http.MethodPost, "/runs", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for POST, got %d", rec.Code)
	}
}

func TestHandler_HealthAndCORS(t *testing.T) {
	svc := newTestHistory(t)
	h := newHandler(svc, []string{"https://dash.example.com"}, zap.NewNop())

	rec := serve(t, h, http.MethodGet, "/healthz", map[string]string{"Origin": "https://dash.example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example.com" {
		t.Errorf("unexpected allow-origin %q", got)
	}

	rec = serve(t, h, http.MethodGet, "/healthz", map[string]string{"Origin": "https://evil.example.com"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no allow-origin for unknown origin, got %q", got)
	}
}
