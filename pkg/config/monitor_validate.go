package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/tapo-exporter/pkg/device"
)

// Validate HTTP服务配置校验
func (h *ServerConfig) Validate() error {
	if err := valid.Struct(h); err != nil {
		return err
	}
	// 	用net包解析地址，验证格式合法性
	if _, err := net.ResolveTCPAddr("tcp", h.Addr); err != nil {
		return fmt.Errorf("server.addr format invalid (expected: :port or ip:port), got %s: %w", h.Addr, err)
	}
	return nil
}

// Validate 轮询配置校验
func (m *MonitorConfig) Validate() error {
	if err := valid.Struct(m); err != nil {
		return err
	}
	return nil
}

// EffectiveConnectTimeout 实际使用的握手超时，不超过采集周期
func (m *MonitorConfig) EffectiveConnectTimeout() time.Duration {
	if m.ConnectTimeout > m.Interval {
		return m.Interval
	}
	return m.ConnectTimeout
}

// validateDevices 设备与凭据的结构性约束：
// 凭据名唯一、设备名唯一（从而身份标签唯一）、每个设备的凭据引用都能解析。
func (c *Config) validateDevices() error {
	creds := make(map[string]struct{}, len(c.Credentials))
	for _, cred := range c.Credentials {
		if _, dup := creds[cred.Name]; dup {
			return fmt.Errorf("%w: credential %q", ErrDuplicate, cred.Name)
		}
		creds[cred.Name] = struct{}{}
	}

	names := make(map[string]struct{}, len(c.Devices))
	var errs []error
	for _, d := range c.Devices {
		if _, err := device.ParseType(d.Type); err != nil {
			errs = append(errs, fmt.Errorf("device %q: %w", d.Name, err))
		}
		if _, dup := names[d.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: device name %q", ErrDuplicate, d.Name))
		}
		names[d.Name] = struct{}{}

		if _, ok := creds[d.Credential]; !ok {
			errs = append(errs, fmt.Errorf("%w: device %q references %q", ErrUnresolvedCredential, d.Name, d.Credential))
		}
	}
	return errors.Join(errs...)
}
