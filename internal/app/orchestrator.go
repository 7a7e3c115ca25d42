package app

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"orderflow/internal/generator"
)

// InstanceFactory 为第 index 个场所构建生成器实例。
type InstanceFactory func(ctx context.Context, index int, venue string) (*generator.Instance, error)

// Orchestrator 并发启动多个相互独立的生成器实例并等待全部结束。
// 单个实例的构造失败、运行错误或 panic 只影响该实例。
type Orchestrator struct {
	venues  []string
	factory InstanceFactory
	logger  *zap.Logger

	mu        sync.RWMutex
	instances []*generator.Instance
}

// NewOrchestrator 创建编排器。
func NewOrchestrator(venues []string, factory InstanceFactory, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		venues:  venues,
		factory: factory,
		logger:  logger,
	}
}

// Run 阻塞直到所有实例退出，返回合并后的实例错误。
func (o *Orchestrator) Run(ctx context.Context) error {
	if len(o.venues) == 0 {
		return errors.New("app: 没有可启动的场所")
	}

	// 不使用 errgroup.WithContext，避免一个实例失败时取消其他实例。
	var group errgroup.Group
	errs := make([]error, len(o.venues))

	for i, venue := range o.venues {
		group.Go(func() error {
			errs[i] = o.runInstance(ctx, i, venue)
			return nil
		})
	}
	_ = group.Wait()

	return multierr.Combine(errs...)
}

// Stats 返回已启动实例的状态快照。
func (o *Orchestrator) Stats() []generator.Stats {
	o.mu.RLock()
	defer o.mu.RUnlock()

	stats := make([]generator.Stats, 0, len(o.instances))
	for _, inst := range o.instances {
		stats = append(stats, inst.Stats())
	}
	return stats
}

func (o *Orchestrator) runInstance(ctx context.Context, index int, venue string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("app: 实例 %d (%s) panic: %v", index, venue, r)
			o.logger.Error("生成器实例崩溃",
				zap.Int("index", index),
				zap.String("venue", venue),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	inst, err := o.factory(ctx, index, venue)
	if err != nil {
		o.logger.Error("生成器实例启动失败",
			zap.Int("index", index),
			zap.String("venue", venue),
			zap.Error(err),
		)
		return err
	}

	o.mu.Lock()
	o.instances = append(o.instances, inst)
	o.mu.Unlock()

	if err := inst.Run(ctx); err != nil {
		return fmt.Errorf("app: 实例 %s 运行失败: %w", inst.Name(), err)
	}
	return nil
}
