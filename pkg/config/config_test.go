package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tapo-exporter/pkg/device"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	full := body + fmt.Sprintf("\nlog:\n  path: %s\n", filepath.Join(dir, "logs"))
	require.NoError(t, os.WriteFile(path, []byte(full), 0o600))
	return path
}

const legacyConfig = `
devices:
  - name: device_name
    ip: 192.168.1.2
    type: P110
    credential: default

credentials:
  - name: default
    username: user@example.com
    password: test

interval: 300
`

func TestLoadLegacyLayout(t *testing.T) {
	cfg, err := Load(writeConfig(t, legacyConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Devices, 1)
	d := cfg.Devices[0]
	assert.Equal(t, "device_name", d.Name)
	assert.Equal(t, "192.168.1.2", d.IP)
	assert.Equal(t, "P110", d.Type)
	assert.Equal(t, "default", d.Credential)

	require.Len(t, cfg.Credentials, 1)
	assert.Equal(t, "default", cfg.Credentials[0].Name)
	assert.Equal(t, "user@example.com", cfg.Credentials[0].Username)
	assert.Equal(t, "test", cfg.Credentials[0].Password)

	assert.Equal(t, 300*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, "0.0.0.0:9200", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Monitor.ConnectTimeout)
}

func TestMonitorIntervalWinsOverLegacyKey(t *testing.T) {
	cfg, err := Load(writeConfig(t, legacyConfig+`
monitor:
  interval: 5s
  connect_timeout: 3
`))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 3*time.Second, cfg.Monitor.ConnectTimeout)
}

func TestShortIntervalWithDefaultTimeoutsLoads(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
devices:
  - {name: plug1, ip: 10.0.0.5, type: P110, credential: default}
credentials:
  - {name: default, username: a@b.com, password: x}
interval: 5
`))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Monitor.Interval)
	assert.Equal(t, 10*time.Second, cfg.Monitor.ConnectTimeout)
	assert.Equal(t, 5*time.Second, cfg.Monitor.EffectiveConnectTimeout())
}

func TestEffectiveConnectTimeoutKeepsShorterValue(t *testing.T) {
	m := MonitorConfig{Interval: time.Minute, ConnectTimeout: 3 * time.Second}
	assert.Equal(t, 3*time.Second, m.EffectiveConnectTimeout())
}

func TestLegacyDeviceKeyAndCaseInsensitiveType(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
devices:
  - name: heater
    ip: 10.0.0.9
    device: p115
    credential: default
credentials:
  - name: default
    username: a@b.com
    password: x
`))
	require.NoError(t, err)
	assert.Equal(t, "P115", cfg.Devices[0].Type)
	assert.Equal(t, device.Identity{Type: device.P115, Name: "heater", IP: "10.0.0.9"}, cfg.Devices[0].Identity())
}

func TestUnresolvedCredentialIsFatal(t *testing.T) {
	_, err := Load(writeConfig(t, `
devices:
  - name: plug1
    ip: 10.0.0.5
    type: P110
    credential: missing
credentials:
  - name: default
    username: a@b.com
    password: x
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnresolvedCredential)

	var cfgErr *Error
	assert.ErrorAs(t, err, &cfgErr)
}

func TestUnsupportedDeviceTypeRejected(t *testing.T) {
	_, err := Load(writeConfig(t, `
devices:
  - name: bulb
    ip: 10.0.0.7
    type: L530
    credential: default
credentials:
  - name: default
    username: a@b.com
    password: x
`))
	require.Error(t, err)
}

func TestDuplicateDeviceNameRejected(t *testing.T) {
	_, err := Load(writeConfig(t, `
devices:
  - {name: plug1, ip: 10.0.0.5, type: P110, credential: default}
  - {name: plug1, ip: 10.0.0.6, type: P110, credential: default}
credentials:
  - {name: default, username: a@b.com, password: x}
`))
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	t.Setenv("TAPO_SERVER_ADDR", "127.0.0.1:9300")
	t.Setenv("TAPO_MONITOR_MAX_CONCURRENCY", "4")

	cfg, err := Load(writeConfig(t, legacyConfig))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9300", cfg.Server.Addr)
	assert.Equal(t, 4, cfg.Monitor.MaxConcurrency)
}

func TestMissingFileIsConfigError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
}

func TestCredentialFor(t *testing.T) {
	cfg, err := Load(writeConfig(t, legacyConfig))
	require.NoError(t, err)

	cred, err := cfg.CredentialFor(cfg.Devices[0])
	require.NoError(t, err)
	assert.Equal(t, device.Credential{Username: "user@example.com", Password: "test"}, cred)

	_, err = cfg.CredentialFor(DeviceConfig{Name: "x", Credential: "other"})
	assert.ErrorIs(t, err, ErrUnresolvedCredential)
}
