package history

import (
	"time"

	"signal-backtest/internal/backtest"
)

// Run 为一次标的回测的完整记录。
type Run struct {
	ID          int64            `json:"id"`
	Symbol      string           `json:"symbol"`
	Generator   string           `json:"generator"`
	Regime      int              `json:"regime"`
	Samples     int              `json:"samples"`
	Accuracy    float64          `json:"accuracy"`
	Params      backtest.Params  `json:"params"`
	Metrics     backtest.Metrics `json:"metrics"`
	EquityCurve []float64        `json:"equity_curve,omitempty"`
	Trades      []backtest.Trade `json:"trades,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}
