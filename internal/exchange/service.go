package exchange

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/zap"

	"orderflow/internal/pricing"
)

// CandleFetcher 抽象K线拉取，*Client 实现该接口。
type CandleFetcher interface {
	FetchCandles(ctx context.Context, timeframe string, limit int64) ([]Candle, error)
}

var _ CandleFetcher = (*Client)(nil)

// HistoryService 将K线整理为校准所需的收盘价序列。
type HistoryService struct {
	fetcher   CandleFetcher
	timeframe string
	lookback  int
	logger    *zap.Logger
}

// NewHistoryService 创建历史价格服务。
func NewHistoryService(fetcher CandleFetcher, timeframe string, lookback int, logger *zap.Logger) *HistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryService{
		fetcher:   fetcher,
		timeframe: timeframe,
		lookback:  lookback,
		logger:    logger,
	}
}

// RecentCloses 返回按时间升序、去重且剔除非正价格的收盘价序列。
func (s *HistoryService) RecentCloses(ctx context.Context) (pricing.Series, error) {
	candles, err := s.fetcher.FetchCandles(ctx, s.timeframe, int64(s.lookback))
	if err != nil {
		return nil, fmt.Errorf("exchange: 拉取 %s K线失败: %w", s.timeframe, err)
	}

	series := CandlesToSeries(candles)
	if len(series) == 0 {
		return nil, fmt.Errorf("%w: timeframe %s", ErrNoCandles, s.timeframe)
	}

	first, last := series[0], series[len(series)-1]
	s.logger.Debug("历史收盘价获取完成",
		zap.String("timeframe", s.timeframe),
		zap.Int("requested", s.lookback),
		zap.Int("count", len(series)),
		zap.Time("from", first.Time),
		zap.Time("to", last.Time),
		zap.Float64("last_close", last.Close),
	)

	return series, nil
}

// CandlesToSeries 提取收盘价，按时间排序并去除重复时间戳（保留最后一次出现）。
func CandlesToSeries(candles []Candle) pricing.Series {
	sorted := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if c.Close > 0 && !math.IsInf(c.Close, 0) {
			sorted = append(sorted, c)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	series := make(pricing.Series, 0, len(sorted))
	for _, c := range sorted {
		point := pricing.Point{Time: c.Timestamp, Close: c.Close}
		if n := len(series); n > 0 && series[n-1].Time.Equal(c.Timestamp) {
			series[n-1] = point
			continue
		}
		series = append(series, point)
	}
	return series
}
