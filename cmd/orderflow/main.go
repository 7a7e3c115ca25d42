package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"orderflow/internal/app"
	"orderflow/internal/config"
	"orderflow/internal/log"
	"orderflow/internal/store"
)

var cfgFile string

func main() {
	rootCmd := newRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "orderflow <scenario> <orders-per-second>",
		Short: "合成订单流生成器",
		Long: "根据历史收盘价校准 GBM 价格模型，按固定速率向撮合场所持续提交合成限价单。\n" +
			"场景: " + app.ScenarioUsage(),
		Args: func(cmd *cobra.Command, args []string) error {
			_, _, err := parseRunArgs(args)
			return err
		},
		RunE: runGenerator,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	rootCmd.AddCommand(newWatchCommand(), newSinkCommand())
	return rootCmd
}

func parseRunArgs(args []string) (scenario string, ordersPerSecond int, err error) {
	if len(args) != 2 {
		return "", 0, fmt.Errorf("需要 2 个参数 <scenario> <orders-per-second>，实际 %d 个", len(args))
	}
	ordersPerSecond, err = strconv.Atoi(args[1])
	if err != nil || ordersPerSecond <= 0 {
		return "", 0, fmt.Errorf("orders-per-second 必须为正整数: %q", args[1])
	}
	return args[0], ordersPerSecond, nil
}

func runGenerator(cmd *cobra.Command, args []string) error {
	scenarioID, ordersPerSecond, err := parseRunArgs(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	if _, err := app.ResolveScenario(scenarioID, cfg.Scenarios); err != nil {
		return err
	}
	cmd.SilenceUsage = true

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("初始化日志失败: %w", err)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		return err
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.New(cfg, logger, sqliteStore).Run(ctx, scenarioID, ordersPerSecond); err != nil {
		logger.Error("生成器运行异常", zap.Error(err))
		return err
	}

	logger.Info("系统已安全退出")
	return nil
}
