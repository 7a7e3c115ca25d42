package exchange

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"orderflow/internal/config"
)

const (
	defaultMinDelay = 500 * time.Millisecond
	defaultMaxDelay = 5 * time.Second
)

// backoff 为指数退避状态，每次等待后间隔翻倍直至上限。
type backoff struct {
	next, ceiling time.Duration
}

func newBackoff(cfg config.RetryConfig) *backoff {
	b := &backoff{next: cfg.MinDelay, ceiling: cfg.MaxDelay}
	if b.next <= 0 {
		b.next = defaultMinDelay
	}
	if b.ceiling <= 0 {
		b.ceiling = defaultMaxDelay
	}
	return b
}

func (b *backoff) step() time.Duration {
	wait := min(b.next, b.ceiling)
	b.next = min(b.next*2, b.ceiling)
	return wait
}

// retry 执行 fn，对可重试错误按退避间隔重试，最多 MaxAttempts 次（不大于0时只执行一次）。
// 维护错误和 ctx 取消立即返回。
func retry(ctx context.Context, logger *zap.Logger, cfg config.RetryConfig, operation string, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)
	wait := newBackoff(cfg)
	log := logger.With(zap.String("operation", operation))

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := time.Now()
		callErr := fn()
		latency := time.Since(started)
		if callErr == nil {
			if attempt > 1 {
				log.Info("行情请求重试后成功", zap.Int("attempts", attempt), zap.Duration("latency", latency))
			}
			return nil
		}

		err, retryable := classifyError(callErr)
		switch {
		case errors.Is(err, ErrMaintenance):
			log.Warn("交易所维护中，放弃拉取", zap.Error(err))
			return err
		case !retryable || attempt >= attempts:
			log.Error("行情请求失败",
				zap.Int("attempts", attempt),
				zap.Duration("latency", latency),
				zap.Error(err),
			)
			return err
		}

		d := wait.step()
		log.Warn("行情请求失败，稍后重试", zap.Int("attempt", attempt), zap.Duration("wait", d), zap.Error(err))
		if err := sleepCtx(ctx, d); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
