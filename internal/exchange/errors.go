package exchange

import (
	"errors"
	"net"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示交易所维护中，本次K线拉取放弃重试，该标的记为失败。
	ErrMaintenance = errors.New("exchange: under maintenance")
	// ErrNoData 表示数据源未返回任何K线。
	ErrNoData = errors.New("exchange: no candles")
	// ErrInvalidCandle 表示K线存在缺失或非法数值。
	ErrInvalidCandle = errors.New("exchange: invalid candle")
)

// 拉取K线时可以安全重试的 ccxt 错误类型，均为瞬时的网络或限流问题。
var transientErrTypes = map[ccxt.ErrorType]struct{}{
	ccxt.NetworkErrorErrType:         {},
	ccxt.RequestTimeoutErrType:       {},
	ccxt.ExchangeNotAvailableErrType: {},
	ccxt.RateLimitExceededErrType:    {},
	ccxt.DDoSProtectionErrType:       {},
	ccxt.BadResponseErrType:          {},
	ccxt.NullResponseErrType:         {},
}

// IsRetryable 判断一次K线拉取失败是否值得重试。
// 交易对不存在、参数错误等 ccxt 业务错误不重试；底层网络错误重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		_, ok := transientErrTypes[ccxtErr.Type]
		return ok
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
