package order

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// LotSize 为最小交易单位。
const LotSize = 100

const maxLots = 1 << 53

// ErrConfiguration 表示订单形态参数非法。
var ErrConfiguration = errors.New("order: invalid synthesizer configuration")

// Shape 控制订单价格偏移与数量分布。
type Shape struct {
	MinSize         float64
	Alpha           float64
	MeanOffsetCents float64
}

// DefaultShape 返回默认形态：最小数量100，幂律指数1.5，平均偏移10分。
func DefaultShape() Shape {
	return Shape{MinSize: 100, Alpha: 1.5, MeanOffsetCents: 10}
}

// Validate 校验形态参数。
func (s Shape) Validate() error {
	if !(s.MinSize > 0) || math.IsInf(s.MinSize, 0) {
		return fmt.Errorf("%w: min size %v", ErrConfiguration, s.MinSize)
	}
	if !(s.Alpha > 0) || math.IsInf(s.Alpha, 0) {
		return fmt.Errorf("%w: alpha %v", ErrConfiguration, s.Alpha)
	}
	if !(s.MeanOffsetCents >= 0) || math.IsInf(s.MeanOffsetCents, 0) {
		return fmt.Errorf("%w: mean offset %v", ErrConfiguration, s.MeanOffsetCents)
	}
	return nil
}

// Synthesizer 将公允价格转换为随机限价单。
type Synthesizer struct {
	shape    Shape
	symbolID uint64
	rng      *rand.Rand
}

// NewSynthesizer 创建订单合成器，rng 为空时使用随机种子。
func NewSynthesizer(shape Shape, symbolID uint64, rng *rand.Rand) (*Synthesizer, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Synthesizer{shape: shape, symbolID: symbolID, rng: rng}, nil
}

// Synthesize 以 fairPrice（元）为中心生成一笔 GTC 限价单。
func (s *Synthesizer) Synthesize(fairPrice float64, id uint64) Order {
	fairCents := math.Round(fairPrice * 100)
	if fairCents < 0 || math.IsNaN(fairCents) {
		fairCents = 0
	}

	side := SideBid
	if s.rng.IntN(2) == 1 {
		side = SideAsk
	}

	offset := math.Floor(s.rng.ExpFloat64() * s.shape.MeanOffsetCents)

	var price float64
	if side == SideBid {
		price = fairCents - offset
		// 公允价不低于1分时买价至少为1分
		if price < 1 {
			price = math.Min(1, fairCents)
		}
	} else {
		price = fairCents + offset
	}

	return Order{
		Command:     CommandAdd,
		Type:        TypeLimit,
		TimeInForce: GoodTillCancel,
		Side:        side,
		ID:          id,
		SymbolID:    s.symbolID,
		Price:       uint64(price),
		Quantity:    s.quantity(),
	}
}

func (s *Synthesizer) quantity() uint64 {
	// Float64 取值 [0,1)，转换为 (0,1] 避免除零
	u := 1 - s.rng.Float64()
	raw := s.shape.MinSize / math.Pow(u, 1/s.shape.Alpha)

	lots := math.Floor(raw / LotSize)
	if lots < 1 || math.IsNaN(lots) {
		return LotSize
	}
	if lots > maxLots {
		lots = maxLots
	}
	return uint64(lots) * LotSize
}
