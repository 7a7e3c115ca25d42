package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"orderflow/internal/config"
	"orderflow/internal/log"
	"orderflow/internal/marketdata"
)

const defaultRegionSize = 64 << 10

type watchOptions struct {
	feed        marketdata.FeedConfig
	regionPath  string
	regionSize  int
	logInterval time.Duration
}

func newWatchCommand() *cobra.Command {
	var opts watchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "订阅撮合引擎的盘口快照，输出最优价与价差并可写入共享区域文件",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			cmd.SilenceUsage = true

			if opts.feed.Address == "" {
				opts.feed.Address = cfg.Scenarios.Noise.Venues[0]
			}
			if !cmd.Flags().Changed("symbol") {
				opts.feed.SymbolID = cfg.Generator.SymbolID
			}
			if opts.feed.Service == "" {
				opts.feed.Service = cfg.Venue.Service
			}

			logger, err := log.NewLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("初始化日志失败: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return watchFeed(ctx, opts, logger)
		},
	}

	cmd.Flags().StringVar(&opts.feed.Address, "venue", "", "撮合场所地址，默认使用 noise 场景的场所")
	cmd.Flags().Uint64Var(&opts.feed.SymbolID, "symbol", 0, "订阅的品种 ID，默认使用 generator.symbol_id")
	cmd.Flags().StringVar(&opts.feed.Service, "service", "", "gRPC 服务名，默认使用 venue.service")
	cmd.Flags().StringVar(&opts.regionPath, "region", "", "将最新快照按帧格式覆盖写入该文件的起始位置")
	cmd.Flags().IntVar(&opts.regionSize, "region-size", defaultRegionSize, "区域文件大小（字节）")
	cmd.Flags().DurationVar(&opts.logInterval, "log-interval", time.Second, "盘口日志的最小间隔")
	return cmd
}

func watchFeed(ctx context.Context, opts watchOptions, logger *zap.Logger) error {
	var region *regionWriter
	if opts.regionPath != "" {
		var err error
		region, err = openRegion(opts.regionPath, opts.regionSize)
		if err != nil {
			return err
		}
		defer func() {
			if err := region.Close(); err != nil {
				logger.Warn("关闭区域文件失败", zap.Error(err))
			}
		}()
	}

	sub, err := marketdata.DialFeed(ctx, opts.feed, logger)
	if err != nil {
		return err
	}
	defer sub.Close()

	logger.Info("已订阅盘口快照",
		zap.String("venue", opts.feed.Address),
		zap.Uint64("symbol_id", opts.feed.SymbolID),
		zap.String("region", opts.regionPath),
	)

	sometimes := rate.Sometimes{Interval: opts.logInterval}
	var received uint64
	for snapshot := range sub.Snapshots() {
		received++
		if region != nil {
			if err := region.Write(snapshot); err != nil {
				logger.Warn("写入区域文件失败", zap.Error(err))
			}
		}
		sometimes.Do(func() {
			logger.Info("盘口",
				zap.Uint64("best_bid", snapshot.BestBid),
				zap.Uint64("best_ask", snapshot.BestAsk),
				zap.Uint64("spread", snapshot.Spread),
				zap.Uint64("last", snapshot.LastExecutedPrice),
				zap.Int("bid_levels", len(snapshot.Bids)),
				zap.Int("ask_levels", len(snapshot.Asks)),
				zap.Duration("age", time.Duration(time.Now().UnixNano()-snapshot.Timestamp)),
				zap.Uint64("received", received),
			)
		})
	}
	logger.Info("盘口订阅结束", zap.Uint64("received", received), zap.Uint64("dropped", sub.Dropped()))
	return sub.Err()
}

// regionWriter 以固定大小的文件模拟共享内存区域，每次覆盖写入最新一帧。
type regionWriter struct {
	file *os.File
	buf  []byte
}

func openRegion(path string, size int) (*regionWriter, error) {
	if size <= marketdata.HeaderSize {
		return nil, fmt.Errorf("region-size 必须大于 %d", marketdata.HeaderSize)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("打开区域文件 %s 失败: %w", path, err)
	}
	if err := file.Truncate(int64(size)); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("设置区域文件大小失败: %w", err)
	}
	return &regionWriter{file: file, buf: make([]byte, size)}, nil
}

func (r *regionWriter) Write(s marketdata.Snapshot) error {
	n, err := marketdata.EncodeFrame(r.buf, s)
	if err != nil {
		return err
	}
	_, err = r.file.WriteAt(r.buf[:n], 0)
	return err
}

func (r *regionWriter) Close() error {
	return r.file.Close()
}
