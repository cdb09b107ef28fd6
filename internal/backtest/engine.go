package backtest

// Result 汇总一次回测的输出。
type Result struct {
	// EquityCurve 每次循环开始时的资金快照，末尾追加最终资金。
	EquityCurve []float64
	// TradePnLs 按平仓顺序记录每笔交易的盈亏，与 Trades 一一对应。
	TradePnLs []float64
	Trades    []Trade
}

// FinalCapital 返回回测结束时的资金。
func (r Result) FinalCapital() float64 {
	if len(r.EquityCurve) == 0 {
		return 0
	}
	return r.EquityCurve[len(r.EquityCurve)-1]
}

// Run 在价格序列上按信号执行无重叠、按资金比例开仓的回测。
//
// 任何时刻最多只有一笔持仓：开仓后游标跳过整个持有期，Flat 信号只前进一步。
// 当 len(prices) <= HoldingPeriod 时不会产生交易，返回仅含初始资金的资金曲线。
// 滑点使成交价不为正时返回 *PriceError，不会输出非有限的资金。
// Run 不读写任何外部状态，可被多个 goroutine 并发调用。
func Run(prices []float64, signals []Signal, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	if err := validateInputs(prices, signals); err != nil {
		return Result{}, err
	}

	sim := newSimulator(prices, signals, p)
	for !sim.done() {
		if err := sim.step(); err != nil {
			return Result{}, err
		}
	}
	return sim.result(), nil
}

func validateInputs(prices []float64, signals []Signal) error {
	if len(prices) == 0 || len(prices) != len(signals) {
		return &ShapeError{Prices: len(prices), Signals: len(signals)}
	}
	for i, price := range prices {
		if !isFinite(price) || price <= 0 {
			return &PriceError{Index: i, Value: price}
		}
	}
	return nil
}
