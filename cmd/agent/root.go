package agent

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tapo-exporter/cmd/server"
	"github.com/tapo-exporter/pkg/config"
	"github.com/tapo-exporter/pkg/device"
	"github.com/tapo-exporter/pkg/logger"
	"github.com/tapo-exporter/pkg/registers"
	"github.com/tapo-exporter/pkg/signal"
	"github.com/tapo-exporter/pkg/util"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:          "tapo-exporter",
	Short:        "Prometheus exporter for TP-Link Tapo P110/P115 energy monitoring plugs",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfigWithCli(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "check the config file path or pass it with -c\n")
			os.Exit(1)
		}
		if err := runServer(cmd.Context(), cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return nil
	},
}

// Execute 命令入口，任何错误以非零码退出
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yml", "config file path")
	// 注册分组 flag
	initServerFlags(rootCmd)
	initMonitorFlags(rootCmd)
	initLogFlags(rootCmd)
	rootCmd.AddCommand(checkCmd)
}

func runServer(ctx context.Context, cfg *config.Config) error {
	// 初始化日志
	log, err := logger.InitLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	util.PrintBanner(os.Stdout, "tapo-exporter", server.Version, "cyan")
	logger.Info("starting tapo exporter", append(util.HostFields(),
		zap.String("version", server.Version),
		zap.Int("devices", len(cfg.Devices)),
		zap.Duration("interval", cfg.Monitor.Interval),
		zap.Duration("connect_timeout", cfg.Monitor.ConnectTimeout),
		zap.Duration("request_timeout", cfg.Monitor.RequestTimeout),
	)...)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	connectTimeout := cfg.Monitor.EffectiveConnectTimeout()
	if connectTimeout < cfg.Monitor.ConnectTimeout {
		logger.Warn("connect timeout exceeds interval, clamped to interval",
			zap.Duration("configured", cfg.Monitor.ConnectTimeout),
			zap.Duration("effective", connectTimeout))
	}

	// 采集调度（首轮立即执行）
	opener := device.NewDialer(connectTimeout, cfg.Monitor.RequestTimeout)
	registry, collectorAgent, err := registers.InitPromRegistry(ctx, cfg, opener)
	if err != nil {
		return fmt.Errorf("init collectors: %w", err)
	}

	// HTTP 暴露
	httpServer := server.NewHTTPServer(cfg, log, registry)
	if err := httpServer.Start(); err != nil {
		_ = collectorAgent.Shutdown(ctx)
		return fmt.Errorf("start HTTP server: %w", err)
	}

	// 关闭顺序：HTTP服务 → 采集器
	return signal.WaitForShutdown(ctx, log, signal.DefaultShutdownTimeout, func(ctx context.Context) error {
		var errs []error
		if err := httpServer.Shutdown(); err != nil {
			errs = append(errs, fmt.Errorf("shutdown HTTP server: %w", err))
		}
		if err := collectorAgent.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown collectors: %w", err))
		}
		return errors.Join(errs...)
	})
}
