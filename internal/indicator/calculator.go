package indicator

import (
	"errors"
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
)

const (
	rsiPeriod    = 14
	atrPeriod    = 14
	vwapPeriod   = 14
	trendPeriod  = 20
	volPeriod    = 20
	bbDeviations = 2
	macdFast     = 12
	macdSlow     = 26
	macdSignal   = 9
)

// ErrInsufficientBars 表示K线数量不足以完成指标预热。
var ErrInsufficientBars = errors.New("indicator: insufficient bars")

// Lookback 为所有指标都有效的首个下标，由 MACD 信号线决定。
const Lookback = macdSlow - 1 + macdSignal - 1

// Columns 保存逐根K线的指标序列，预热期内的值为 NaN。
type Columns struct {
	Close      []float64
	Return1    []float64
	Return5    []float64
	Return10   []float64
	Vol20      []float64
	RSI14      []float64
	MACD       []float64
	MACDSignal []float64
	MACDDiff   []float64
	SMA20      []float64
	EMA20      []float64
	ATR14      []float64
	ATRPct     []float64
	BBHigh     []float64
	BBLow      []float64
	BBWidth    []float64
	VWAP14     []float64
}

// Len 返回序列长度。
func (c Columns) Len() int {
	return len(c.Close)
}

// Compute 计算特征工程所需的全部指标。
func Compute(series Series) (Columns, error) {
	n := series.Len()
	if n <= Lookback {
		return Columns{}, fmt.Errorf("%w: 至少需要 %d 根K线，当前 %d", ErrInsufficientBars, Lookback+1, n)
	}

	closes := series.Close

	macd, signal, hist := talib.Macd(closes, macdFast, macdSlow, macdSignal)
	bbUpper, _, bbLower := talib.BBands(closes, trendPeriod, bbDeviations, bbDeviations, talib.SMA)
	atr := warmup(talib.Atr(series.High, series.Low, closes, atrPeriod), atrPeriod)

	cols := Columns{
		Close:      append([]float64(nil), closes...),
		Return1:    returns(closes, 1),
		Return5:    returns(closes, 5),
		Return10:   returns(closes, 10),
		RSI14:      warmup(talib.Rsi(closes, rsiPeriod), rsiPeriod),
		MACD:       warmup(macd, Lookback),
		MACDSignal: warmup(signal, Lookback),
		MACDDiff:   warmup(hist, Lookback),
		SMA20:      warmup(talib.Sma(closes, trendPeriod), trendPeriod-1),
		EMA20:      warmup(talib.Ema(closes, trendPeriod), trendPeriod-1),
		ATR14:      atr,
		BBHigh:     warmup(bbUpper, trendPeriod-1),
		BBLow:      warmup(bbLower, trendPeriod-1),
		VWAP14:     rollingVWAP(series, vwapPeriod),
	}
	cols.Vol20 = rollingStd(cols.Return1, volPeriod)

	cols.ATRPct = make([]float64, n)
	cols.BBWidth = make([]float64, n)
	for i := 0; i < n; i++ {
		cols.ATRPct[i] = cols.ATR14[i] / closes[i]
		cols.BBWidth[i] = (cols.BBHigh[i] - cols.BBLow[i]) / closes[i]
	}

	return cols, nil
}

// warmup 将前 lookback 个值置为 NaN，talib 在预热期输出 0。
func warmup(values []float64, lookback int) []float64 {
	out := append([]float64(nil), values...)
	for i := 0; i < lookback && i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out
}

// returns 计算 n 期收益率，等价于 pct_change(n)。
func returns(closes []float64, period int) []float64 {
	ratio := talib.Rocr(closes, period)
	out := make([]float64, len(closes))
	for i := range out {
		if i < period {
			out[i] = math.NaN()
			continue
		}
		out[i] = ratio[i] - 1
	}
	return out
}

// rollingStd 计算样本标准差，首个值为 NaN 的收益序列需整体后移一位。
func rollingStd(values []float64, period int) []float64 {
	n := len(values)
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	if n <= period {
		return out
	}

	// talib 使用总体标准差，换算为样本标准差
	scale := math.Sqrt(float64(period) / float64(period-1))
	std := talib.StdDev(values[1:], period, 1)
	for j := period - 1; j < len(std); j++ {
		out[j+1] = std[j] * scale
	}
	return out
}

func rollingVWAP(series Series, period int) []float64 {
	n := series.Len()
	out := make([]float64, n)
	var pv, vol float64
	for i := 0; i < n; i++ {
		typical := (series.High[i] + series.Low[i] + series.Close[i]) / 3
		pv += typical * series.Volume[i]
		vol += series.Volume[i]
		if i >= period {
			old := (series.High[i-period] + series.Low[i-period] + series.Close[i-period]) / 3
			pv -= old * series.Volume[i-period]
			vol -= series.Volume[i-period]
		}
		switch {
		case i < period-1:
			out[i] = math.NaN()
		case vol <= 0:
			out[i] = series.Close[i]
		default:
			out[i] = pv / vol
		}
	}
	return out
}
