package exchange

import (
	"context"
	"time"
)

// Timeframe1d 为默认回测周期。
const Timeframe1d = "1d"

// Candle 代表单根K线。
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Provider 按时间升序返回指定标的的历史K线。
type Provider interface {
	Candles(ctx context.Context, symbol string) ([]Candle, error)
}

// ProviderFunc 允许使用函数作为行情来源。
type ProviderFunc func(ctx context.Context, symbol string) ([]Candle, error)

func (f ProviderFunc) Candles(ctx context.Context, symbol string) ([]Candle, error) {
	return f(ctx, symbol)
}
