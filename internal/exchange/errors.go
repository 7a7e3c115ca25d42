package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

var (
	// ErrMaintenance 表示交易所处于维护状态。
	ErrMaintenance = errors.New("exchange: on maintenance")
	// ErrUnsupportedExchange 表示配置的交易所名称无法识别。
	ErrUnsupportedExchange = errors.New("exchange: unsupported exchange")
	// ErrNoCandles 表示交易所返回了空的K线结果。
	ErrNoCandles = errors.New("exchange: no candles returned")
)

// IsRetryable 判断 ccxt 错误是否属于可重试的瞬时故障。
func IsRetryable(err error) bool {
	var ccxtErr *ccxt.Error
	if !errors.As(err, &ccxtErr) {
		return false
	}
	switch ccxtErr.Type {
	case ccxt.NetworkErrorErrType,
		ccxt.RequestTimeoutErrType,
		ccxt.ExchangeNotAvailableErrType,
		ccxt.RateLimitExceededErrType,
		ccxt.DDoSProtectionErrType,
		ccxt.BadResponseErrType,
		ccxt.NullResponseErrType:
		return true
	}
	return false
}

// classifyError 归一化错误并给出是否值得重试。
func classifyError(err error) (error, bool) {
	if err == nil {
		return nil, false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err, false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		if ccxtErr.Type == ccxt.OnMaintenanceErrType {
			msg := strings.TrimSpace(ccxtErr.Message)
			if msg == "" {
				msg = "exchange under maintenance"
			}
			return fmt.Errorf("%w: %s", ErrMaintenance, msg), false
		}
		return err, IsRetryable(err)
	}

	var netErr net.Error
	return err, errors.As(err, &netErr)
}
