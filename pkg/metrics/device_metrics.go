package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tapo-exporter/pkg/device"
)

// DeviceMetrics 三个按设备身份分组的指标族，由所有采集器共享
type DeviceMetrics struct {
	EnergyUsage *prometheus.GaugeVec
	DeviceOn    *prometheus.GaugeVec
	RequestFail *prometheus.CounterVec
}

// NewDeviceMetrics 创建并注册设备指标族
func NewDeviceMetrics(f *MetricFactory) *DeviceMetrics {
	return &DeviceMetrics{
		EnergyUsage: f.NewEnergyUsage(),
		DeviceOn:    f.NewDeviceOn(),
		RequestFail: f.NewRequestFail(),
	}
}

// Bind 获取某台设备的时间序列句柄，同一身份多次调用指向同一序列。
// 失败计数立即创建（成功时读数为 0）；两个 gauge 在第一次写入时才创建，
// 从未成功的设备不会暴露 gauge。
func (m *DeviceMetrics) Bind(id device.Identity) *Series {
	labels := id.Labels()
	return &Series{
		metrics: m,
		labels:  labels,
		fail:    m.RequestFail.With(labels),
	}
}

// Series 单台设备的指标句柄，仅由所属采集器使用
type Series struct {
	metrics *DeviceMetrics
	labels  prometheus.Labels

	power prometheus.Gauge
	state prometheus.Gauge
	fail  prometheus.Counter
}

// SetPower 记录功率（mW）
func (s *Series) SetPower(milliwatts int64) {
	if s.power == nil {
		s.power = s.metrics.EnergyUsage.With(s.labels)
	}
	s.power.Set(float64(milliwatts))
}

// SetState 记录开关状态
func (s *Series) SetState(on bool) {
	if s.state == nil {
		s.state = s.metrics.DeviceOn.With(s.labels)
	}
	v := 0.0
	if on {
		v = 1
	}
	s.state.Set(v)
}

// IncFail 失败计数加一
func (s *Series) IncFail() {
	s.fail.Inc()
}
