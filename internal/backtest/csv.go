package backtest

import (
	"encoding/csv"
	"io"
	"strconv"
)

// WriteTradesCSV 将逐笔交易写为 CSV。
func WriteTradesCSV(w io.Writer, trades []Trade) error {
	cw := csv.NewWriter(w)

	header := []string{
		"seq", "side", "entry_index", "exit_index", "entry_price", "exit_price",
		"risk", "return", "pnl", "capital_after",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for i, t := range trades {
		row := []string{
			strconv.Itoa(i + 1),
			t.Side.String(),
			strconv.Itoa(t.EntryIndex),
			strconv.Itoa(t.ExitIndex),
			formatFloat(t.EntryPrice),
			formatFloat(t.ExitPrice),
			formatFloat(t.Risk),
			formatFloat(t.Return),
			formatFloat(t.PnL),
			formatFloat(t.CapitalAfter),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV 将资金曲线写为 CSV。
func WriteEquityCSV(w io.Writer, curve []float64) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"step", "equity"}); err != nil {
		return err
	}
	for i, v := range curve {
		if err := cw.Write([]string{strconv.Itoa(i), formatFloat(v)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
