package backtest

import (
	"fmt"
	"strings"
)

// Signal 表示单个时间步的方向决策。
type Signal int8

const (
	// Flat 不开仓，零值即为 Flat。
	Flat Signal = iota
	// Long 做多并持有 HoldingPeriod 步。
	Long
	// Short 做空并持有 HoldingPeriod 步。
	Short
)

// SignalFromClass 将分类模型输出映射为信号：1 为做多，0 为做空，其余均为观望。
func SignalFromClass(class int) Signal {
	switch class {
	case 1:
		return Long
	case 0:
		return Short
	default:
		return Flat
	}
}

// SignalsFromClasses 批量转换分类结果。
func SignalsFromClasses(classes []int) []Signal {
	signals := make([]Signal, len(classes))
	for i, c := range classes {
		signals[i] = SignalFromClass(c)
	}
	return signals
}

// ParseSignal 解析 LONG/SHORT/FLAT 文本，无法识别时返回 Flat 与 false。
func ParseSignal(s string) (Signal, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG":
		return Long, true
	case "SHORT":
		return Short, true
	case "FLAT":
		return Flat, true
	default:
		return Flat, false
	}
}

func (s Signal) String() string {
	switch s {
	case Long:
		return "LONG"
	case Short:
		return "SHORT"
	default:
		return "FLAT"
	}
}

// MarshalText 以 LONG/SHORT/FLAT 文本编码信号。
func (s Signal) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 解析 LONG/SHORT/FLAT 文本。
func (s *Signal) UnmarshalText(text []byte) error {
	parsed, ok := ParseSignal(string(text))
	if !ok {
		return fmt.Errorf("backtest: unknown signal %q", text)
	}
	*s = parsed
	return nil
}
