package exchange

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var csvTimeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

// CSVProvider 从目录中读取 <SYMBOL>.csv 格式的K线文件。
// 文件需包含表头 timestamp,open,high,low,close,volume，列顺序不限。
type CSVProvider struct {
	dir string
}

// NewCSVProvider 创建基于目录的行情来源。
func NewCSVProvider(dir string) *CSVProvider {
	return &CSVProvider{dir: dir}
}

// Candles 读取并解析对应标的的K线文件。
func (p *CSVProvider) Candles(ctx context.Context, symbol string) ([]Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := filepath.Join(p.dir, fileName(symbol))
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("exchange: 打开行情文件失败: %w", err)
	}
	defer f.Close()

	candles, err := ReadCandlesCSV(f)
	if err != nil {
		return nil, fmt.Errorf("exchange: 解析 %s 失败: %w", path, err)
	}
	return candles, nil
}

// ReadCandlesCSV 解析K线 CSV，结果按时间升序排列。
func ReadCandlesCSV(r io.Reader) ([]Candle, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoData
		}
		return nil, err
	}

	cols, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var candles []Candle
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line++

		candle, err := parseRecord(record, cols)
		if err != nil {
			return nil, fmt.Errorf("第 %d 行: %w", line, err)
		}
		candles = append(candles, candle)
	}

	if len(candles) == 0 {
		return nil, ErrNoData
	}

	sortCandles(candles)
	return candles, nil
}

func fileName(symbol string) string {
	name := strings.NewReplacer("/", "_", ":", "_").Replace(strings.ToUpper(symbol))
	return name + ".csv"
}

var requiredColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

func columnIndex(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if key == "date" {
			key = "timestamp"
		}
		cols[key] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, fmt.Errorf("缺少列 %q", name)
		}
	}
	return cols, nil
}

func parseRecord(record []string, cols map[string]int) (Candle, error) {
	field := func(name string) (string, error) {
		idx := cols[name]
		if idx >= len(record) {
			return "", fmt.Errorf("%w: 缺少 %s", ErrInvalidCandle, name)
		}
		v := strings.TrimSpace(record[idx])
		if v == "" {
			return "", fmt.Errorf("%w: %s 为空", ErrInvalidCandle, name)
		}
		return v, nil
	}

	raw, err := field("timestamp")
	if err != nil {
		return Candle{}, err
	}
	ts, err := parseTime(raw)
	if err != nil {
		return Candle{}, err
	}

	values := make([]float64, 0, 5)
	for _, name := range requiredColumns[1:] {
		s, err := field(name)
		if err != nil {
			return Candle{}, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Candle{}, fmt.Errorf("%w: %s=%q", ErrInvalidCandle, name, s)
		}
		values = append(values, v)
	}

	return Candle{
		Timestamp: ts,
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range csvTimeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: 无法解析时间 %q", ErrInvalidCandle, s)
}
