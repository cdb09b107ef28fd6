package backtest

import "go.uber.org/multierr"

// Params 定义单次回测的资金与成本参数。
type Params struct {
	HoldingPeriod   int     `json:"holding_period"`   // 每笔交易持有的步数
	RiskPerTrade    float64 `json:"risk_per_trade"`   // 每笔交易投入当前资金的比例，(0,1]
	TransactionCost float64 `json:"transaction_cost"` // 按投入资金计算的手续费比例
	Slippage        float64 `json:"slippage"`         // 进出场对称的价格滑点比例
	InitialCapital  float64 `json:"initial_capital"`  // 初始资金
}

// DefaultParams 返回与批量回测一致的默认参数。
func DefaultParams() Params {
	return Params{
		HoldingPeriod:   5,
		RiskPerTrade:    0.01,
		TransactionCost: 0.001,
		Slippage:        0.0005,
		InitialCapital:  1.0,
	}
}

// Validate 检查所有参数，返回的错误包含全部违规项。
func (p Params) Validate() error {
	var err error

	if p.HoldingPeriod < 1 {
		err = multierr.Append(err, &ParameterError{Field: "holding_period", Value: float64(p.HoldingPeriod), Reason: "must be >= 1"})
	}
	if !isFinite(p.RiskPerTrade) || p.RiskPerTrade <= 0 || p.RiskPerTrade > 1 {
		err = multierr.Append(err, &ParameterError{Field: "risk_per_trade", Value: p.RiskPerTrade, Reason: "must be in (0,1]"})
	}
	if !isFinite(p.TransactionCost) || p.TransactionCost < 0 {
		err = multierr.Append(err, &ParameterError{Field: "transaction_cost", Value: p.TransactionCost, Reason: "must be finite and >= 0"})
	}
	if !isFinite(p.Slippage) || p.Slippage < 0 {
		err = multierr.Append(err, &ParameterError{Field: "slippage", Value: p.Slippage, Reason: "must be finite and >= 0"})
	}
	if !isFinite(p.InitialCapital) || p.InitialCapital <= 0 {
		err = multierr.Append(err, &ParameterError{Field: "initial_capital", Value: p.InitialCapital, Reason: "must be finite and > 0"})
	}

	return err
}
