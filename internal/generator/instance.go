package generator

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"orderflow/internal/order"
	"orderflow/internal/pricing"
	"orderflow/internal/venue"
)

const (
	// Window 为每个价格步在墙钟上的持续时间。
	Window = 60 * time.Second
	// MaxOrdersPerSecond 为单实例速率上限。
	MaxOrdersPerSecond = 1_000_000
)

// Submitter 将订单提交到撮合场所，*venue.Client 实现该接口。
type Submitter interface {
	Submit(ctx context.Context, o order.Order) (venue.Outcome, error)
	Close() error
}

// HistorySource 提供校准所需的历史收盘价。
type HistorySource interface {
	RecentCloses(ctx context.Context) (pricing.Series, error)
}

var _ Submitter = (*venue.Client)(nil)

// Config 为单个生成器实例的参数，构造后不可变。
type Config struct {
	Name            string
	OrdersPerSecond int
	VenueAddress    string
	StepsPerDay     int
	Days            int // 0 表示一直运行到取消
	SymbolID        uint64
	Seed            uint64 // 0 表示随机种子
	Shape           order.Shape
}

// Validate 校验实例参数。
func (c Config) Validate() error {
	var err error
	if c.OrdersPerSecond <= 0 || c.OrdersPerSecond > MaxOrdersPerSecond {
		err = multierr.Append(err, fmt.Errorf("orders per second 必须位于(0,%d]: %d", MaxOrdersPerSecond, c.OrdersPerSecond))
	}
	if c.VenueAddress == "" {
		err = multierr.Append(err, errors.New("venue address 不能为空"))
	}
	if c.StepsPerDay <= 0 {
		err = multierr.Append(err, fmt.Errorf("steps per day 必须大于0: %d", c.StepsPerDay))
	}
	if c.Days < 0 {
		err = multierr.Append(err, fmt.Errorf("days 不能为负: %d", c.Days))
	}
	if err != nil {
		return fmt.Errorf("%w: %w", order.ErrConfiguration, err)
	}
	return nil
}

// Interval 返回两笔订单之间的间隔。
func (c Config) Interval() time.Duration {
	return time.Second / time.Duration(c.OrdersPerSecond)
}

// Deps 为实例的外部依赖。
type Deps struct {
	History   HistorySource
	Submitter Submitter
	Clock     Clock
	Logger    *zap.Logger
	RunID     string
}

// Instance 绑定一组校准参数、一个订单合成器和一个场所连接，是并发的最小单位。
// 实例之间不共享任何可变状态。
type Instance struct {
	cfg       Config
	runID     string
	logger    *zap.Logger
	clock     Clock
	submitter Submitter
	simulator *pricing.Simulator
	synth     *order.Synthesizer
	params    pricing.Params

	nextID uint64
	stats  counters
}

// New 拉取历史数据并完成校准。失败时关闭 Submitter 并返回错误。
func New(ctx context.Context, cfg Config, deps Deps) (inst *Instance, err error) {
	if deps.Submitter != nil {
		defer func() {
			if err != nil {
				err = multierr.Append(err, deps.Submitter.Close())
			}
		}()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("generator %s: %w", cfg.Name, err)
	}
	if deps.History == nil || deps.Submitter == nil {
		return nil, fmt.Errorf("generator %s: history 与 submitter 均不能为空", cfg.Name)
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.Shape == (order.Shape{}) {
		cfg.Shape = order.DefaultShape()
	}

	rng := newRand(cfg.Seed)

	series, err := deps.History.RecentCloses(ctx)
	if err != nil {
		return nil, fmt.Errorf("generator %s: 获取历史收盘价失败: %w", cfg.Name, err)
	}

	params, err := pricing.Calibrate(series)
	if err != nil {
		return nil, fmt.Errorf("generator %s: 校准失败: %w", cfg.Name, err)
	}

	simulator, err := pricing.NewSimulator(params, rng)
	if err != nil {
		return nil, fmt.Errorf("generator %s: %w", cfg.Name, err)
	}

	synth, err := order.NewSynthesizer(cfg.Shape, cfg.SymbolID, rng)
	if err != nil {
		return nil, fmt.Errorf("generator %s: %w", cfg.Name, err)
	}

	annualVol, annualDrift := params.Annualized()
	deps.Logger.Info("模型校准完成",
		zap.Int("history_points", len(series)),
		zap.Float64("start_price", params.StartPrice),
		zap.Float64("step_drift", params.StepDrift),
		zap.Float64("step_volatility", params.StepVolatility),
		zap.Float64("annual_volatility", annualVol),
		zap.Float64("annual_drift", annualDrift),
	)

	inst = &Instance{
		cfg:       cfg,
		runID:     deps.RunID,
		logger:    deps.Logger,
		clock:     deps.Clock,
		submitter: deps.Submitter,
		simulator: simulator,
		synth:     synth,
		params:    params,
		nextID:    1,
	}
	inst.stats.setStep(0, 0, params.StartPrice)
	return inst, nil
}

// Name 返回实例名称。
func (in *Instance) Name() string {
	return in.cfg.Name
}

// Stats 返回当前运行状态快照，可并发调用。
func (in *Instance) Stats() Stats {
	s := in.stats.snapshot()
	s.Name = in.cfg.Name
	s.Venue = in.cfg.VenueAddress
	s.RunID = in.runID
	s.Calibration = in.params
	return s
}

func newRand(seed uint64) *rand.Rand {
	if seed == 0 {
		return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}
