package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapo-exporter/pkg/device"
)

func newTestMetrics(t *testing.T) (*prometheus.Registry, *DeviceMetrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return reg, NewDeviceMetrics(NewMetricFactory(NewPromRegistry(reg)))
}

func TestBindIsIdempotentOnIdentity(t *testing.T) {
	_, m := newTestMetrics(t)
	id := device.Identity{Type: device.P110, Name: "plug1", IP: "10.0.0.5"}

	a := m.Bind(id)
	b := m.Bind(id)
	a.SetPower(1200)
	b.SetPower(1500)
	a.IncFail()
	b.IncFail()

	assert.Equal(t, 1, testutil.CollectAndCount(m.EnergyUsage))
	assert.Equal(t, 1500.0, testutil.ToFloat64(m.EnergyUsage.With(id.Labels())))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestFail.With(id.Labels())))
}

func TestGaugesAbsentUntilFirstWrite(t *testing.T) {
	_, m := newTestMetrics(t)
	s := m.Bind(device.Identity{Type: device.P115, Name: "heater", IP: "10.0.0.9"})

	assert.Equal(t, 0, testutil.CollectAndCount(m.EnergyUsage))
	assert.Equal(t, 0, testutil.CollectAndCount(m.DeviceOn))
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestFail))

	s.SetState(false)
	assert.Equal(t, 1, testutil.CollectAndCount(m.DeviceOn))
	assert.Equal(t, 0, testutil.CollectAndCount(m.EnergyUsage))
}

func TestExpositionFormat(t *testing.T) {
	reg, m := newTestMetrics(t)
	s := m.Bind(device.Identity{Type: device.P110, Name: "plug1", IP: "10.0.0.5"})
	s.SetPower(1200)
	s.SetState(true)

	expected := `
# HELP tapo_device_on current switch status
# TYPE tapo_device_on gauge
tapo_device_on{device_type="P110",ip="10.0.0.5",name="plug1"} 1
# HELP tapo_energy_usage current power in mW
# TYPE tapo_energy_usage gauge
tapo_energy_usage{device_type="P110",ip="10.0.0.5",name="plug1"} 1200
# HELP tapo_request_fail_total device request fail
# TYPE tapo_request_fail_total counter
tapo_request_fail_total{device_type="P110",ip="10.0.0.5",name="plug1"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		EnergyUsageName, DeviceOnName, RequestFailName))
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := NewMetricFactory(NewPromRegistry(reg))
	f.NewRoundDurationSeconds()
	assert.Panics(t, func() { f.NewRoundDurationSeconds() })
}
