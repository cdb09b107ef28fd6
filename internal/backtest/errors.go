package backtest

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidParameter 表示回测参数超出允许范围。
	ErrInvalidParameter = errors.New("backtest: invalid parameter")
	// ErrInputShape 表示价格与信号序列为空或长度不一致。
	ErrInputShape = errors.New("backtest: input shape mismatch")
	// ErrNonFiniteInput 表示价格序列中出现 NaN 或 Inf。
	ErrNonFiniteInput = errors.New("backtest: non-finite input")
	// ErrNonPositivePrice 表示价格序列中出现非正数。
	ErrNonPositivePrice = errors.New("backtest: non-positive price")
	// ErrInsufficientData 表示样本数量不足以评估任何交易。
	// Run 对这种情况返回退化结果，由上层调用方决定是否视为错误。
	ErrInsufficientData = errors.New("backtest: insufficient data")
)

// ParameterError 描述单个非法参数。
type ParameterError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ParameterError) Error() string {
	return fmt.Sprintf("backtest: %s=%v %s", e.Field, e.Value, e.Reason)
}

func (e *ParameterError) Unwrap() error {
	return ErrInvalidParameter
}

// ShapeError 描述输入序列的长度问题。
type ShapeError struct {
	Prices  int
	Signals int
}

func (e *ShapeError) Error() string {
	if e.Prices == 0 || e.Signals == 0 {
		return fmt.Sprintf("backtest: empty input (prices=%d, signals=%d)", e.Prices, e.Signals)
	}
	return fmt.Sprintf("backtest: prices and signals length differ (%d vs %d)", e.Prices, e.Signals)
}

func (e *ShapeError) Unwrap() error {
	return ErrInputShape
}

// PriceError 指出第一个非法价格的位置。
type PriceError struct {
	Index int
	Value float64
}

func (e *PriceError) Error() string {
	if isFinite(e.Value) {
		return fmt.Sprintf("backtest: non-positive price %v at index %d", e.Value, e.Index)
	}
	return fmt.Sprintf("backtest: non-finite price %v at index %d", e.Value, e.Index)
}

func (e *PriceError) Unwrap() error {
	if isFinite(e.Value) {
		return ErrNonPositivePrice
	}
	return ErrNonFiniteInput
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
