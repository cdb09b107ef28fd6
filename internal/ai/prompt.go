package ai

import (
	"fmt"
	"strings"

	"signal-backtest/internal/feature"
)

const systemPrompt = `你是一个量化交易方向分类器。
对输入表格中的每一行，判断该行之后 %d 根K线的收盘价是否上涨：上涨输出 1，否则输出 0。
只能依据该行及之前的数据，禁止使用未来信息。
严格返回 JSON：{"predictions":[...]}，数组长度必须等于输入行数，顺序一致。`

// BuildSystemPrompt 生成分类任务说明。
func BuildSystemPrompt(horizon int) string {
	return fmt.Sprintf(systemPrompt, horizon)
}

// BuildPrompt 将一批特征行编码为紧凑表格。
func BuildPrompt(symbol string, rows []feature.Row) string {
	var b strings.Builder
	fmt.Fprintf(&b, "symbol: %s\nrows: %d\n", symbol, len(rows))
	b.WriteString("date,close,ret1,ret5,ret10,vol20,rsi14,macd_diff,ema_gt_sma,atr_pct,bb_width,close_gt_vwap,regime\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%s,%.4f,%.5f,%.5f,%.5f,%.5f,%.2f,%.5f,%d,%.5f,%.5f,%d,%d\n",
			r.Timestamp.Format("2006-01-02"),
			r.Close,
			r.Return1,
			r.Return5,
			r.Return10,
			r.Vol20,
			r.RSI14,
			r.MACDDiff,
			r.TrendSMAEMA,
			r.ATRPct,
			r.BBWidth,
			r.CloseVsVWAP,
			r.Regime,
		)
	}
	return b.String()
}
