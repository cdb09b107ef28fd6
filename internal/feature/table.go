package feature

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"signal-backtest/internal/exchange"
	"signal-backtest/internal/indicator"
)

// ErrEmptyTable 表示清洗后没有可用样本。
var ErrEmptyTable = errors.New("feature: no usable rows")

// AllRegimes 传给 FilterRegime 时保留全部样本。
const AllRegimes = -1

// Row 为单根K线的特征快照。
type Row struct {
	Timestamp time.Time `json:"timestamp"`
	Close     float64   `json:"close"`

	Return1  float64 `json:"return_1"`
	Return5  float64 `json:"return_5"`
	Return10 float64 `json:"return_10"`
	Vol20    float64 `json:"vol_20"`

	RSI14      float64 `json:"rsi_14"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDDiff   float64 `json:"macd_diff"`

	SMA20       float64 `json:"sma_20"`
	EMA20       float64 `json:"ema_20"`
	TrendSMAEMA int     `json:"trend_sma_ema"`

	ATRPct  float64 `json:"atr_pct"`
	BBWidth float64 `json:"bb_width"`

	VWAP14      float64 `json:"vwap"`
	CloseVsVWAP int     `json:"close_vs_vwap"`

	// Regime 为 Vol20 所处的三分位（0 低波动，1 中等，2 高波动）。
	Regime int `json:"vol_regime"`
	// Target 表示 Horizon 根K线后收盘价是否上涨。
	Target int `json:"target"`
}

// Options 控制特征表的构建。
type Options struct {
	Horizon int
}

// Table 为按时间升序排列的特征样本。
type Table struct {
	Symbol string
	Rows   []Row
}

// Build 由K线计算指标、波动率分层与前瞻标签，并剔除预热期和无标签样本。
func Build(symbol string, candles []exchange.Candle, opts Options) (Table, error) {
	if opts.Horizon <= 0 {
		return Table{}, fmt.Errorf("feature: horizon 必须大于0，当前 %d", opts.Horizon)
	}

	cols, err := indicator.Compute(indicator.NewSeries(candles))
	if errors.Is(err, indicator.ErrInsufficientBars) {
		return Table{}, fmt.Errorf("%w: %s: %v", ErrEmptyTable, symbol, err)
	}
	if err != nil {
		return Table{}, fmt.Errorf("feature: %s: %w", symbol, err)
	}

	edges := terciles(validValues(cols.Vol20))

	n := cols.Len()
	last := n - 1 - opts.Horizon
	rows := make([]Row, 0, max(0, last-indicator.Lookback+1))
	for i := indicator.Lookback; i <= last; i++ {
		row := Row{
			Timestamp:   candles[i].Timestamp,
			Close:       cols.Close[i],
			Return1:     cols.Return1[i],
			Return5:     cols.Return5[i],
			Return10:    cols.Return10[i],
			Vol20:       cols.Vol20[i],
			RSI14:       cols.RSI14[i],
			MACD:        cols.MACD[i],
			MACDSignal:  cols.MACDSignal[i],
			MACDDiff:    cols.MACDDiff[i],
			SMA20:       cols.SMA20[i],
			EMA20:       cols.EMA20[i],
			TrendSMAEMA: boolToInt(cols.EMA20[i] > cols.SMA20[i]),
			ATRPct:      cols.ATRPct[i],
			BBWidth:     cols.BBWidth[i],
			VWAP14:      cols.VWAP14[i],
			CloseVsVWAP: boolToInt(cols.Close[i] > cols.VWAP14[i]),
			Regime:      regimeOf(cols.Vol20[i], edges),
			Target:      boolToInt(cols.Close[i+opts.Horizon] > cols.Close[i]),
		}
		if !row.finite() {
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return Table{}, fmt.Errorf("%w: %s", ErrEmptyTable, symbol)
	}

	return Table{Symbol: symbol, Rows: rows}, nil
}

// Len 返回样本数量。
func (t Table) Len() int {
	return len(t.Rows)
}

// FilterRegime 仅保留指定波动率分层的样本，保持时间顺序。
func (t Table) FilterRegime(regime int) Table {
	if regime == AllRegimes {
		return t
	}
	rows := make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		if r.Regime == regime {
			rows = append(rows, r)
		}
	}
	return Table{Symbol: t.Symbol, Rows: rows}
}

// Closes 返回供回测引擎使用的收盘价序列。
func (t Table) Closes() []float64 {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Close
	}
	return out
}

// Targets 返回前瞻方向标签。
func (t Table) Targets() []int {
	out := make([]int, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r.Target
	}
	return out
}

func (r Row) finite() bool {
	for _, v := range []float64{
		r.Close, r.Return1, r.Return5, r.Return10, r.Vol20, r.RSI14, r.MACD, r.MACDSignal,
		r.MACDDiff, r.SMA20, r.EMA20, r.ATRPct, r.BBWidth, r.VWAP14,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func validValues(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}

// terciles 返回 1/3 与 2/3 分位点，采用线性插值。
func terciles(values []float64) [2]float64 {
	if len(values) == 0 {
		return [2]float64{math.NaN(), math.NaN()}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	return [2]float64{quantile(sorted, 1.0/3.0), quantile(sorted, 2.0/3.0)}
}

func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// regimeOf 按右闭区间分箱，与 qcut 一致。
func regimeOf(v float64, edges [2]float64) int {
	switch {
	case v <= edges[0]:
		return 0
	case v <= edges[1]:
		return 1
	default:
		return 2
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
