package registers

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/tapo-exporter/pkg/collector"
	"github.com/tapo-exporter/pkg/config"
	"github.com/tapo-exporter/pkg/device"
	"github.com/tapo-exporter/pkg/logger"
	"github.com/tapo-exporter/pkg/metrics"
)

// InitPromRegistry 返回值
// promReg	*prometheus.Registry	指标注册器，供 HTTP /metrics 暴露或单元测试读取
// agent	*AgentImpl	            调度器，已启动，后台按 interval 轮询所有设备
// error	                        初始化或注册失败时返回
func InitPromRegistry(ctx context.Context, cfg *config.Config, opener device.Opener) (*prometheus.Registry, *AgentImpl, error) {
	// 1. 初始化指标注册器（不注册 Go 运行时指标）
	promReg := prometheus.NewRegistry()
	if cfg.Monitor.ProcessMetrics {
		promReg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	// 2. 工厂包装成自己的 Registers
	factory := metrics.NewMetricFactory(metrics.NewPromRegistry(promReg))
	deviceMetrics := metrics.NewDeviceMetrics(factory)

	// 3. 调度器
	agent := NewAgent(cfg.Monitor.Interval,
		WithMaxConcurrency(cfg.Monitor.MaxConcurrency),
		WithRoundMetrics(factory.NewRoundDurationSeconds(), factory.NewRoundOverrunsTotal()),
	)

	// 4. 每台设备一个采集器
	if _, err := RegisterCollectors(agent, cfg, opener, deviceMetrics, factory.NewCollectDurationSeconds()); err != nil {
		logger.Error("failed to register collectors", zap.Error(err))
		return nil, nil, err
	}

	// 5. 启动
	if err := agent.Start(ctx); err != nil {
		return nil, nil, err
	}
	return promReg, agent, nil
}

// RegisterCollectors 按配置顺序为每台设备创建采集器并注册到 agent
func RegisterCollectors(agent Agent, cfg *config.Config, opener device.Opener,
	dm *metrics.DeviceMetrics, collectDuration prometheus.ObserverVec) ([]Collector, error) {
	registered := make([]Collector, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		cred, err := cfg.CredentialFor(d)
		if err != nil {
			return nil, &config.Error{Op: "resolve credential", Err: err}
		}
		id := d.Identity()
		c := collector.NewCollector(id, cred, opener, dm, collectDuration)
		agent.Register(c)
		registered = append(registered, c)
		logger.Debug("registered collector", zap.Object("device", id), zap.String("username", cred.Username))
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("no devices configured")
	}

	names := make([]string, 0, len(registered))
	for _, c := range registered {
		names = append(names, c.Name())
	}
	logger.Info("all device collectors registered", zap.Strings("collectors", names))
	return registered, nil
}
