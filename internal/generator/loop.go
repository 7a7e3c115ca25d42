package generator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"orderflow/internal/order"
	"orderflow/internal/venue"
)

// Run 按 日→分钟→秒内节奏生成并提交订单，直到 ctx 取消或达到配置天数。
// 取消不视为错误；仅价格路径模拟失败时返回错误。退出时总会关闭 Submitter。
func (in *Instance) Run(ctx context.Context) (err error) {
	in.stats.setState(StateRunning)
	in.logger.Info("生成器启动",
		zap.Int("orders_per_second", in.cfg.OrdersPerSecond),
		zap.Int("steps_per_day", in.cfg.StepsPerDay),
		zap.Int("days", in.cfg.Days),
	)

	defer func() {
		if closeErr := in.submitter.Close(); closeErr != nil {
			in.logger.Warn("关闭场所连接失败", zap.Error(closeErr))
		}
		if err != nil {
			in.stats.setState(StateFailed)
			in.logger.Error("生成器异常退出", zap.Error(err))
			return
		}
		in.stats.setState(StateStopped)
		s := in.stats.snapshot()
		in.logger.Info("生成器已停止",
			zap.Uint64("generated", s.Generated),
			zap.Uint64("submitted", s.Submitted),
			zap.Uint64("failed", s.Failed),
			zap.Uint64("last_id", s.LastID),
		)
	}()

	interval := in.cfg.Interval()

	for day := 0; in.cfg.Days == 0 || day < in.cfg.Days; day++ {
		if ctx.Err() != nil {
			return nil
		}

		path, err := in.simulator.Simulate(in.cfg.StepsPerDay)
		if err != nil {
			return fmt.Errorf("generator %s: 第 %d 天价格路径模拟失败: %w", in.cfg.Name, day, err)
		}

		low, high := pathRange(path)
		in.logger.Info("新交易日",
			zap.Int("day", day),
			zap.Float64("open", path[0]),
			zap.Float64("low", low),
			zap.Float64("high", high),
			zap.Float64("close", path[len(path)-1]),
		)

		for minute, fair := range path {
			in.stats.setStep(day, minute, fair)
			if err := in.runWindow(ctx, fair, interval); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return err
			}
		}
	}

	return nil
}

// runWindow 在一个 Window 内提交 Window×rate 笔订单，第 k 笔排在 windowStart+k/rate。
// 提交耗时不会累积成漂移；落后超过一个间隔时跳过已错过的时隙。
func (in *Instance) runWindow(ctx context.Context, fair float64, interval time.Duration) error {
	rate := int64(in.cfg.OrdersPerSecond)
	slots := int64(Window/time.Second) * rate
	windowStart := in.clock.Now()

	for k := int64(0); k < slots; k++ {
		now := in.clock.Now()
		elapsed := now.Sub(windowStart)
		if elapsed >= Window {
			break
		}

		due := slotOffset(k, rate)
		if elapsed-due > interval {
			k = int64(elapsed) * rate / int64(time.Second)
			due = slotOffset(k, rate)
		}

		if err := in.clock.Sleep(ctx, due-elapsed); err != nil {
			return err
		}

		o := in.synth.Synthesize(fair, in.nextID)
		in.nextID++
		in.stats.generated.Add(1)
		in.stats.lastID.Store(o.ID)

		if err := in.submit(ctx, o); err != nil {
			return err
		}
	}
	return nil
}

func slotOffset(k, rate int64) time.Duration {
	return time.Duration(k * int64(time.Second) / rate)
}

func (in *Instance) submit(ctx context.Context, o order.Order) error {
	outcome, err := in.submitter.Submit(ctx, o)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		in.stats.failed.Add(1)

		fields := []zap.Field{
			zap.Uint64("id", o.ID),
			zap.Stringer("side", o.Side),
			zap.Uint64("price", o.Price),
			zap.Uint64("quantity", o.Quantity),
			zap.Error(err),
		}
		var transportErr *venue.TransportError
		if errors.As(err, &transportErr) {
			fields = append(fields, zap.String("failure", transportErr.Op), zap.Stringer("code", transportErr.Code))
		}
		in.logger.Warn("订单提交失败", fields...)
		return nil
	}

	in.stats.submitted.Add(1)
	in.logger.Debug("订单已提交",
		zap.Uint64("id", o.ID),
		zap.Stringer("side", o.Side),
		zap.Uint64("price", o.Price),
		zap.Uint64("quantity", o.Quantity),
		zap.String("status", outcome.Status),
		zap.Duration("latency", outcome.Latency),
	)
	return nil
}

func pathRange(path []float64) (low, high float64) {
	low, high = math.Inf(1), math.Inf(-1)
	for _, p := range path {
		low = math.Min(low, p)
		high = math.Max(high, p)
	}
	return low, high
}
