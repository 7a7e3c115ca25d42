package pricing

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Simulator 以几何布朗运动离散化生成日内价格路径。
// 每个实例持有独立的随机源，不可并发调用。
type Simulator struct {
	params Params
	rng    *rand.Rand
}

// NewSimulator 校验参数后创建模拟器。rng 为空时使用随机种子。
func NewSimulator(params Params, rng *rand.Rand) (*Simulator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Simulator{params: params, rng: rng}, nil
}

// Simulate 生成一个交易日的价格路径，长度为 stepsPerDay，path[0] 等于起始价格。
func (s *Simulator) Simulate(stepsPerDay int) ([]float64, error) {
	if stepsPerDay <= 0 {
		return nil, fmt.Errorf("%w: steps per day %d", ErrInvalidParameters, stepsPerDay)
	}
	return s.simulate(stepsPerDay, stepsPerDay)
}

// SimulateDays 生成 days×stepsPerDay 长度的连续路径，步长仍按单日刻度计算。
func (s *Simulator) SimulateDays(days, stepsPerDay int) ([]float64, error) {
	if days <= 0 || stepsPerDay <= 0 {
		return nil, fmt.Errorf("%w: days %d steps per day %d", ErrInvalidParameters, days, stepsPerDay)
	}
	return s.simulate(days*stepsPerDay, stepsPerDay)
}

func (s *Simulator) simulate(length, stepsPerDay int) ([]float64, error) {
	dt := 1.0 / float64(TradingDaysPerYear*stepsPerDay)
	vol := s.params.StepVolatility
	drift := (s.params.StepDrift - 0.5*vol*vol) * dt
	diffusion := vol * math.Sqrt(dt)

	path := make([]float64, length)
	path[0] = s.params.StartPrice
	for t := 1; t < length; t++ {
		z := s.rng.NormFloat64()
		next := path[t-1] * math.Exp(drift+diffusion*z)
		if !isFinite(next) || next <= 0 {
			return nil, fmt.Errorf("%w: price[%d]=%v", ErrInvalidParameters, t, next)
		}
		path[t] = next
	}
	return path, nil
}
