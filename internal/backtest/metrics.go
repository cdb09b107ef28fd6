package backtest

import "math"

// tradingDaysPerYear 用于按持有期年化夏普比率。
const tradingDaysPerYear = 252

// Metrics 记录回测绩效指标。
type Metrics struct {
	TotalReturn  float64 `json:"total_return"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"` // 非正数
	HitRate      float64 `json:"hit_rate"`
	BuyAndHold   float64 `json:"buy_and_hold"`
	Trades       int     `json:"trades"`
	FinalCapital float64 `json:"final_capital"`
}

// Evaluate 根据回测结果与原始价格计算绩效指标。
func Evaluate(res Result, prices []float64, holdingPeriod int) Metrics {
	return Metrics{
		TotalReturn:  computeTotalReturn(res.EquityCurve),
		SharpeRatio:  computeSharpe(pctChange(res.EquityCurve), holdingPeriod),
		MaxDrawdown:  computeDrawdown(res.EquityCurve),
		HitRate:      computeHitRate(res.TradePnLs),
		BuyAndHold:   computeTotalReturn(prices),
		Trades:       len(res.TradePnLs),
		FinalCapital: res.FinalCapital(),
	}
}

func computeTotalReturn(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	initial := series[0]
	if initial <= 0 {
		return 0
	}
	return series[len(series)-1]/initial - 1
}

func pctChange(series []float64) []float64 {
	if len(series) < 2 {
		return nil
	}
	out := make([]float64, 0, len(series)-1)
	for i := 1; i < len(series); i++ {
		prev := series[i-1]
		if prev == 0 {
			continue
		}
		out = append(out, series[i]/prev-1)
	}
	return out
}

func computeDrawdown(equity []float64) float64 {
	var peak float64
	maxDD := 0.0
	for _, v := range equity {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (v - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

func computeSharpe(returns []float64, holdingPeriod int) float64 {
	if len(returns) < 2 || holdingPeriod <= 0 {
		return 0
	}
	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		diff := r - mean
		variance += diff * diff
	}
	variance /= float64(len(returns) - 1)

	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}

	// 每个样本约对应一个持有期
	annualFactor := math.Sqrt(float64(tradingDaysPerYear) / float64(holdingPeriod))
	return (mean / std) * annualFactor
}

func computeHitRate(pnls []float64) float64 {
	if len(pnls) == 0 {
		return 0
	}
	wins := 0
	for _, pnl := range pnls {
		if pnl > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(pnls))
}
