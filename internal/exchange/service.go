package exchange

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

type cacheEntry struct {
	candles   []Candle
	fetchedAt time.Time
}

// MarketDataService 在 Provider 之上做数据清洗与按标的缓存。
type MarketDataService struct {
	provider Provider
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewMarketDataService 创建市场数据服务，ttl<=0 时不缓存。
func NewMarketDataService(provider Provider, ttl time.Duration, logger *zap.Logger) *MarketDataService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MarketDataService{
		provider: provider,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
		cache:    make(map[string]cacheEntry),
	}
}

// GetCandles 返回按时间升序、去重且数值合法的K线。
func (s *MarketDataService) GetCandles(ctx context.Context, symbol string) ([]Candle, error) {
	key := strings.ToUpper(strings.TrimSpace(symbol))

	if s.ttl > 0 {
		s.mu.Lock()
		entry, ok := s.cache[key]
		s.mu.Unlock()
		if ok && s.now().Sub(entry.fetchedAt) < s.ttl {
			s.logger.Debug("命中行情缓存", zap.String("symbol", key))
			return append([]Candle(nil), entry.candles...), nil
		}
	}

	raw, err := s.provider.Candles(ctx, symbol)
	if err != nil {
		return nil, err
	}

	candles, err := cleanCandles(raw)
	if err != nil {
		return nil, fmt.Errorf("exchange: %s: %w", key, err)
	}

	if s.ttl > 0 {
		s.mu.Lock()
		s.cache[key] = cacheEntry{candles: candles, fetchedAt: s.now()}
		s.mu.Unlock()
	}

	s.logger.Debug("行情数据获取完成",
		zap.String("symbol", key),
		zap.Int("candles", len(candles)),
		zap.Time("first", candles[0].Timestamp),
		zap.Time("last", candles[len(candles)-1].Timestamp),
	)

	return append([]Candle(nil), candles...), nil
}

func cleanCandles(raw []Candle) ([]Candle, error) {
	if len(raw) == 0 {
		return nil, ErrNoData
	}

	candles := append([]Candle(nil), raw...)
	sortCandles(candles)

	out := candles[:0]
	for _, c := range candles {
		if len(out) > 0 && c.Timestamp.Equal(out[len(out)-1].Timestamp) {
			continue
		}
		for _, v := range []float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: %s 存在非有限数值", ErrInvalidCandle, c.Timestamp.Format(time.RFC3339))
			}
		}
		if c.Close <= 0 {
			return nil, fmt.Errorf("%w: %s 收盘价非正", ErrInvalidCandle, c.Timestamp.Format(time.RFC3339))
		}
		out = append(out, c)
	}
	return out, nil
}

func sortCandles(candles []Candle) {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Timestamp.Before(candles[j].Timestamp)
	})
}
