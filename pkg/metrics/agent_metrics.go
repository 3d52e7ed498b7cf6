package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewCollectDurationSeconds 创建「单设备采集耗时分布」指标
// 标签 collector 为采集器名称（设备身份字符串）。
// 分桶覆盖 10ms ~ 20s，连接超时默认 10s。
func (f *MetricFactory) NewCollectDurationSeconds() *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tapo_exporter_collect_duration_seconds",
		Help:    "Duration of one collect call per device",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"collector"})
	f.reg.MustRegister(h)
	return h
}

// NewRoundDurationSeconds 创建「整轮采集耗时」指标
func (f *MetricFactory) NewRoundDurationSeconds() prometheus.Histogram {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "tapo_exporter_round_duration_seconds",
		Help:    "Duration of one polling round across all devices",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	f.reg.MustRegister(h)
	return h
}

// NewRoundOverrunsTotal 创建「超出采集间隔的轮次」计数
func (f *MetricFactory) NewRoundOverrunsTotal() prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tapo_exporter_round_overruns_total",
		Help: "Rounds that took longer than the polling interval",
	})
	f.reg.MustRegister(c)
	return c
}
