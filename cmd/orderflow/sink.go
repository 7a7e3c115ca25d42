package main

import (
	"context"
	"fmt"
	"net"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderflow/internal/config"
	"orderflow/internal/log"
	"orderflow/internal/order"
	"orderflow/internal/venue"
)

func newSinkCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "sink",
		Short: "启动本地应答场所，接收并确认所有订单，用于联调生成器",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("加载配置失败: %w", err)
			}
			cmd.SilenceUsage = true

			logger, err := log.NewLogger(cfg.Logging)
			if err != nil {
				return fmt.Errorf("初始化日志失败: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runSink(ctx, listen, cfg.Venue.Service, logger)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":9000", "监听地址")
	return cmd
}

// sinkHandler 确认收到的每笔订单。
type sinkHandler struct {
	logger   *zap.Logger
	received atomic.Uint64
}

func (h *sinkHandler) HandleOrder(_ context.Context, o order.Order) (string, error) {
	n := h.received.Add(1)
	h.logger.Debug("收到订单",
		zap.Uint64("id", o.ID),
		zap.Stringer("side", o.Side),
		zap.Uint64("price", o.Price),
		zap.Uint64("quantity", o.Quantity),
		zap.Uint64("received", n),
	)
	return "ACCEPTED", nil
}

func runSink(ctx context.Context, listen, service string, logger *zap.Logger) error {
	ln, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("监听 %s 失败: %w", listen, err)
	}

	handler := &sinkHandler{logger: logger}
	srv := venue.NewServer(service, handler)

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	logger.Info("应答场所已启动", zap.String("addr", ln.Addr().String()), zap.String("service", service))
	if err := srv.Serve(ln); err != nil {
		return fmt.Errorf("应答场所异常退出: %w", err)
	}
	logger.Info("应答场所已停止", zap.Uint64("received", handler.received.Load()))
	return nil
}
