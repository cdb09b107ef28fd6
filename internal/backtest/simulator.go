package backtest

// Trade 记录一笔已平仓交易。
type Trade struct {
	Side         Signal  `json:"side"`
	EntryIndex   int     `json:"entry_index"`
	ExitIndex    int     `json:"exit_index"`
	EntryPrice   float64 `json:"entry_price"` // 含滑点
	ExitPrice    float64 `json:"exit_price"`  // 含滑点
	Risk         float64 `json:"risk"`
	Return       float64 `json:"return"`
	PnL          float64 `json:"pnl"`
	CapitalAfter float64 `json:"capital_after"`
}

// simulator 持有单次回测的可变状态，每次 Run 重新创建。
type simulator struct {
	params  Params
	prices  []float64
	signals []Signal

	capital float64
	cursor  int

	equity []float64
	pnls   []float64
	trades []Trade
}

func newSimulator(prices []float64, signals []Signal, p Params) *simulator {
	steps := len(prices) - p.HoldingPeriod
	if steps < 0 {
		steps = 0
	}
	return &simulator{
		params:  p,
		prices:  prices,
		signals: signals,
		capital: p.InitialCapital,
		equity:  make([]float64, 0, steps+1),
		pnls:    make([]float64, 0),
		trades:  make([]Trade, 0),
	}
}

// done 报告游标是否已无法再开出完整持有期的交易。
func (s *simulator) done() bool {
	return s.cursor >= len(s.prices)-s.params.HoldingPeriod
}

// step 执行一次循环：先记录当前资金，再按信号开平仓。
func (s *simulator) step() error {
	s.equity = append(s.equity, s.capital)

	switch s.signals[s.cursor] {
	case Long:
		return s.trade(Long)
	case Short:
		return s.trade(Short)
	default:
		s.cursor++
		return nil
	}
}

// trade 按持有期开平一笔仓位。含滑点的成交价必须为正，否则返回 *PriceError。
func (s *simulator) trade(side Signal) error {
	i := s.cursor
	h := s.params.HoldingPeriod
	slip := s.params.Slippage

	var entryPrice, exitPrice, tradeReturn float64
	if side == Long {
		entryPrice = s.prices[i] * (1 + slip)
		exitPrice = s.prices[i+h] * (1 - slip)
	} else {
		entryPrice = s.prices[i] * (1 - slip)
		exitPrice = s.prices[i+h] * (1 + slip)
	}
	if entryPrice <= 0 {
		return &PriceError{Index: i, Value: entryPrice}
	}
	if exitPrice <= 0 {
		return &PriceError{Index: i + h, Value: exitPrice}
	}

	positionRisk := s.capital * s.params.RiskPerTrade
	if side == Long {
		tradeReturn = (exitPrice - entryPrice) / entryPrice
	} else {
		tradeReturn = (entryPrice - exitPrice) / entryPrice
	}

	// 显式转换阻止编译器融合乘加，保证逐步舍入
	pnl := float64(positionRisk * tradeReturn)
	pnl -= float64(positionRisk * s.params.TransactionCost)

	s.capital += pnl
	s.pnls = append(s.pnls, pnl)
	s.trades = append(s.trades, Trade{
		Side:         side,
		EntryIndex:   i,
		ExitIndex:    i + h,
		EntryPrice:   entryPrice,
		ExitPrice:    exitPrice,
		Risk:         positionRisk,
		Return:       tradeReturn,
		PnL:          pnl,
		CapitalAfter: s.capital,
	})

	s.cursor += h
	return nil
}

func (s *simulator) result() Result {
	return Result{
		EquityCurve: append(s.equity, s.capital),
		TradePnLs:   s.pnls,
		Trades:      s.trades,
	}
}
