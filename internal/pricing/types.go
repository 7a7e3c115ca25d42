package pricing

import (
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// TradingDaysPerYear 为年化换算使用的交易日数。
	TradingDaysPerYear = 252
	// DefaultStepsPerDay 对应一个交易日 390 分钟。
	DefaultStepsPerDay = 390
)

var (
	// ErrInsufficientData 表示历史数据不足以校准模型。
	ErrInsufficientData = errors.New("pricing: insufficient historical data")
	// ErrInvalidParameters 表示模型参数非有限或越界。
	ErrInvalidParameters = errors.New("pricing: invalid model parameters")
)

// Point 为单个收盘价观测。
type Point struct {
	Time  time.Time
	Close float64
}

// Series 为按时间升序排列的历史收盘价序列。
type Series []Point

// Closes 返回收盘价切片。
func (s Series) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, p := range s {
		closes[i] = p.Close
	}
	return closes
}

// Last 返回最后一个观测，序列为空时 ok=false。
func (s Series) Last() (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	return s[len(s)-1], true
}

// Validate 检查时间严格递增且价格为有限正数。
func (s Series) Validate() error {
	for i, p := range s {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) || p.Close <= 0 {
			return fmt.Errorf("%w: close[%d]=%v", ErrInvalidParameters, i, p.Close)
		}
		if i > 0 && !p.Time.After(s[i-1].Time) {
			return fmt.Errorf("%w: timestamps not strictly increasing at %d", ErrInvalidParameters, i)
		}
	}
	return nil
}

// Params 为校准后的单步漂移与波动率。
type Params struct {
	StartPrice     float64 `json:"startPrice"`
	StepDrift      float64 `json:"stepDrift"`
	StepVolatility float64 `json:"stepVolatility"`
}

// Validate 确认参数有限且处于定义域内。
func (p Params) Validate() error {
	if !isFinite(p.StartPrice) || p.StartPrice <= 0 {
		return fmt.Errorf("%w: start price %v", ErrInvalidParameters, p.StartPrice)
	}
	if !isFinite(p.StepDrift) {
		return fmt.Errorf("%w: drift %v", ErrInvalidParameters, p.StepDrift)
	}
	if !isFinite(p.StepVolatility) || p.StepVolatility < 0 {
		return fmt.Errorf("%w: volatility %v", ErrInvalidParameters, p.StepVolatility)
	}
	return nil
}

// Annualized 返回年化波动率与年化漂移，仅用于展示。
func (p Params) Annualized() (volatility, drift float64) {
	return p.StepVolatility * math.Sqrt(TradingDaysPerYear), p.StepDrift * TradingDaysPerYear
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
