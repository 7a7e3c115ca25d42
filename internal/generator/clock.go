package generator

import (
	"context"
	"time"
)

// Clock 抽象墙钟时间，测试中可替换为虚拟时钟。
type Clock interface {
	Now() time.Time
	// Sleep 阻塞 d 或直到 ctx 取消，取消时返回 ctx.Err()。
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock 使用真实时间。
type SystemClock struct{}

var _ Clock = SystemClock{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
