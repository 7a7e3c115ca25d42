package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"orderflow/internal/config"
	"orderflow/internal/exchange"
	"orderflow/internal/generator"
	"orderflow/internal/pricing"
	"orderflow/internal/store"
)

// cachedHistory 优先从交易所拉取，成功后写入 SQLite 缓存；拉取失败或未配置交易所时读取缓存。
type cachedHistory struct {
	primary  generator.HistorySource
	cache    *store.CloseCache
	key      store.CacheKey
	lookback int
	logger   *zap.Logger
}

var _ generator.HistorySource = (*cachedHistory)(nil)

func (h *cachedHistory) RecentCloses(ctx context.Context) (pricing.Series, error) {
	var fetchErr error
	if h.primary != nil {
		series, err := h.primary.RecentCloses(ctx)
		if err == nil {
			if h.cache != nil {
				if saveErr := h.cache.Save(ctx, h.key, series); saveErr != nil {
					h.logger.Warn("写入收盘价缓存失败", zap.Stringer("key", h.key), zap.Error(saveErr))
				}
			}
			return series, nil
		}
		if h.cache == nil || ctx.Err() != nil {
			return nil, err
		}
		fetchErr = err
		h.logger.Warn("拉取历史收盘价失败，改用本地缓存", zap.Stringer("key", h.key), zap.Error(err))
	}

	if h.cache == nil {
		return nil, errors.New("app: 未配置历史数据来源")
	}

	series, err := h.cache.Load(ctx, h.key, h.lookback)
	if err != nil {
		return nil, multierr.Append(fetchErr, err)
	}
	h.logger.Info("使用缓存的历史收盘价", zap.Stringer("key", h.key), zap.Int("count", len(series)))
	return series, nil
}

// newHistorySource 为单个实例构建独立的历史数据来源。
func newHistorySource(cfg config.HistoryConfig, cache *store.CloseCache, logger *zap.Logger) (generator.HistorySource, error) {
	source := &cachedHistory{
		cache:    cache,
		key:      cacheKey(cfg),
		lookback: cfg.Lookback,
		logger:   logger,
	}

	if cfg.Source == config.HistorySourceCache {
		return source, nil
	}

	client, err := exchange.NewClient(cfg.Exchange, logger)
	if err != nil {
		return nil, fmt.Errorf("app: 初始化行情客户端失败: %w", err)
	}
	source.primary = exchange.NewHistoryService(client, cfg.Timeframe, cfg.Lookback, logger)
	return source, nil
}

func cacheKey(cfg config.HistoryConfig) store.CacheKey {
	return store.CacheKey{
		Source:    cfg.Exchange.Name,
		Symbol:    cfg.Exchange.Market,
		Timeframe: cfg.Timeframe,
	}
}
