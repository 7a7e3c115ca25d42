package pricing

import (
	"fmt"
	"math"

	talib "github.com/markcheno/go-talib"
)

// Calibrate 依据历史收盘价的对数收益估计单步漂移与波动率。
// 波动率为总体标准差，起始价格取序列最后一个收盘价。
func Calibrate(series Series) (Params, error) {
	if len(series) < 2 {
		return Params{}, fmt.Errorf("%w: need at least 2 closes, got %d", ErrInsufficientData, len(series))
	}
	if err := series.Validate(); err != nil {
		return Params{}, err
	}

	returns := LogReturns(series.Closes())
	period := len(returns)

	drift := lastValue(talib.Sma(returns, period))
	volatility := populationStdDev(returns, drift)

	last, _ := series.Last()
	params := Params{
		StartPrice:     last.Close,
		StepDrift:      drift,
		StepVolatility: volatility,
	}
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

// LogReturns 计算 r_i = ln(p_i / p_{i-1})。
func LogReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	returns := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		returns[i-1] = math.Log(closes[i] / closes[i-1])
	}
	return returns
}

// populationStdDev 以两遍法计算总体标准差。
// talib.StdDev 会把小于 1e-14 的方差截为 0，低波动序列不能用它。
func populationStdDev(values []float64, mean float64) float64 {
	squared := make([]float64, len(values))
	for i, v := range values {
		d := v - mean
		squared[i] = d * d
	}
	variance := lastValue(talib.Sma(squared, len(squared)))
	return math.Sqrt(max(variance, 0))
}

func lastValue(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return values[len(values)-1]
}
