package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orderflow/internal/config"
	"orderflow/internal/generator"
	"orderflow/internal/log"
	"orderflow/internal/order"
	"orderflow/internal/store"
	"orderflow/internal/venue"
)

// App 聚合核心依赖并驱动一次场景运行。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
	clock  generator.Clock
}

// New 创建 App 实例。store 可为空，此时不使用收盘价缓存。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
		clock:  generator.SystemClock{},
	}
}

// Run 按场景启动全部生成器实例，阻塞直到 ctx 取消或所有实例结束。
func (a *App) Run(ctx context.Context, scenarioID string, ordersPerSecond int) error {
	scenario, err := ResolveScenario(scenarioID, a.cfg.Scenarios)
	if err != nil {
		return err
	}
	if ordersPerSecond <= 0 || ordersPerSecond > generator.MaxOrdersPerSecond {
		return fmt.Errorf("app: 每秒订单数必须位于(0,%d]: %d", generator.MaxOrdersPerSecond, ordersPerSecond)
	}

	var cache *store.CloseCache
	if a.store != nil {
		cache, err = store.NewCloseCache(ctx, a.store)
		if err != nil {
			return err
		}
		a.logger.Info("收盘价缓存已就绪", zap.Bool("in_memory", a.store.InMemory()))
	}

	a.logger.Info("订单流生成器启动",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("scenario", scenario.Name),
		zap.Strings("venues", scenario.Venues),
		zap.Int("orders_per_second", ordersPerSecond),
		zap.String("history_source", a.cfg.History.Source),
	)

	factory := func(ctx context.Context, index int, address string) (*generator.Instance, error) {
		return a.buildInstance(ctx, scenario, index, address, ordersPerSecond, cache)
	}
	orch := NewOrchestrator(scenario.Venues, factory, a.logger)

	if a.cfg.Monitor.Port > 0 {
		if err := startMonitorServer(ctx, orch, a.cfg.Monitor, a.logger); err != nil {
			a.logger.Warn("监控接口启动失败", zap.Error(err))
		}
	}

	if err := orch.Run(ctx); err != nil {
		return fmt.Errorf("app: 部分实例异常退出: %w", err)
	}

	a.logger.Info("全部生成器实例已退出")
	return nil
}

func (a *App) buildInstance(
	ctx context.Context,
	scenario Scenario,
	index int,
	address string,
	ordersPerSecond int,
	cache *store.CloseCache,
) (*generator.Instance, error) {
	name := fmt.Sprintf("%s-%d", scenario.Name, index)
	runID := uuid.NewString()
	logger := log.ForInstance(a.logger, name, address, runID)

	history, err := newHistorySource(a.cfg.History, cache, logger)
	if err != nil {
		return nil, err
	}

	client, err := venue.NewClient(venue.ConfigFrom(address, a.cfg.Venue), logger)
	if err != nil {
		return nil, err
	}

	gen := a.cfg.Generator
	seed := gen.Seed
	if seed != 0 {
		seed += uint64(index)
	}

	return generator.New(ctx, generator.Config{
		Name:            name,
		OrdersPerSecond: ordersPerSecond,
		VenueAddress:    address,
		StepsPerDay:     gen.StepsPerDay,
		Days:            gen.Days,
		SymbolID:        gen.SymbolID,
		Seed:            seed,
		Shape: order.Shape{
			MinSize:         gen.MinSize,
			Alpha:           gen.Alpha,
			MeanOffsetCents: gen.MeanOffsetCents,
		},
	}, generator.Deps{
		History:   history,
		Submitter: client,
		Clock:     a.clock,
		Logger:    logger,
		RunID:     runID,
	})
}
