package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tapo-exporter/pkg/device"
)

// 设备指标族名称
const (
	EnergyUsageName = "tapo_energy_usage"
	DeviceOnName    = "tapo_device_on"
	RequestFailName = "tapo_request_fail_total"
)

// MetricFactory 指标工厂，用于统一创建指标（counter/gauge/histogram）。
type MetricFactory struct {
	reg Registers
}

// NewMetricFactory 创建指标工厂
func NewMetricFactory(reg Registers) *MetricFactory {
	return &MetricFactory{reg: reg}
}

// NewEnergyUsage 当前功率（mW），按设备身份区分
func (f *MetricFactory) NewEnergyUsage() *prometheus.GaugeVec {
	return promauto.With(f.reg).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: EnergyUsageName,
			Help: "current power in mW",
		},
		device.LabelNames(),
	)
}

// NewDeviceOn 开关状态，1 为开，0 为关
func (f *MetricFactory) NewDeviceOn() *prometheus.GaugeVec {
	return promauto.With(f.reg).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: DeviceOnName,
			Help: "current switch status",
		},
		device.LabelNames(),
	)
}

// NewRequestFail 连接或请求失败次数
func (f *MetricFactory) NewRequestFail() *prometheus.CounterVec {
	return promauto.With(f.reg).NewCounterVec(
		prometheus.CounterOpts{
			Name: RequestFailName,
			Help: "device request fail",
		},
		device.LabelNames(),
	)
}
