package exchange

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"orderflow/internal/config"
)

const exchangeBinanceUSDM = "binanceusdm"

// Client 为只读行情客户端，只拉取历史K线用于校准。
type Client struct {
	retryCfg config.RetryConfig
	logger   *zap.Logger
	exchange *ccxt.Binanceusdm
	symbol   string

	marketsMu   sync.Mutex
	marketsDone bool
}

// NewClient 构造行情客户端，当前仅支持 Binance USDⓈ-M。凭证可选，公开行情无需签名。
func NewClient(cfg config.ExchangeConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	name := strings.ToLower(strings.TrimSpace(cfg.Name))
	if name != exchangeBinanceUSDM {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedExchange, cfg.Name)
	}
	if cfg.Market == "" {
		return nil, errors.New("exchange: market 不能为空")
	}

	ex := ccxt.NewBinanceusdm(ccxtOptions(cfg))
	if cfg.UseSandbox {
		ex.SetSandboxMode(true)
	}

	return &Client{
		retryCfg: cfg.Retry,
		logger:   logger.With(zap.String("exchange", name), zap.String("symbol", cfg.Market)),
		exchange: ex,
		symbol:   cfg.Market,
	}, nil
}

func ccxtOptions(cfg config.ExchangeConfig) map[string]interface{} {
	opts := map[string]interface{}{
		"enableRateLimit": true,
		"options": map[string]interface{}{
			"adjustForTimeDifference": true,
			"defaultType":             "future",
		},
	}
	for key, value := range map[string]string{
		"apiKey":   cfg.APIKey,
		"secret":   cfg.APISecret,
		"password": cfg.APIPass,
	} {
		if value != "" {
			opts[key] = value
		}
	}
	return opts
}

// Symbol 返回交易对符号。
func (c *Client) Symbol() string {
	return c.symbol
}

// FetchCandles 拉取 timeframe 周期最近 limit 根K线，时间戳转为 UTC。
func (c *Client) FetchCandles(ctx context.Context, timeframe string, limit int64) ([]Candle, error) {
	limit = max(limit, 1)

	if err := c.loadMarkets(ctx); err != nil {
		return nil, err
	}

	var raw []ccxt.OHLCV
	err := retry(ctx, c.logger, c.retryCfg, "fetch_ohlcv_"+timeframe, func() (err error) {
		raw, err = c.exchange.FetchOHLCV(
			c.symbol,
			ccxt.WithFetchOHLCVTimeframe(timeframe),
			ccxt.WithFetchOHLCVLimit(limit),
		)
		return err
	})
	if err != nil {
		return nil, err
	}

	candles := make([]Candle, len(raw))
	for i, bar := range raw {
		candles[i] = Candle{
			Timestamp: time.UnixMilli(bar.Timestamp).UTC(),
			Close:     bar.Close,
		}
	}
	return candles, nil
}

func (c *Client) loadMarkets(ctx context.Context) error {
	c.marketsMu.Lock()
	defer c.marketsMu.Unlock()
	if c.marketsDone {
		return nil
	}

	err := retry(ctx, c.logger, c.retryCfg, "load_markets", func() error {
		_, err := c.exchange.LoadMarkets()
		return err
	})
	if err != nil {
		return err
	}
	c.marketsDone = true
	c.logger.Info("市场元数据已加载")
	return nil
}
