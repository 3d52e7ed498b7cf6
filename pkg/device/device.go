// Package device 设备能力抽象：设备型号枚举、设备身份标签、凭据，
// 以及建立会话后可用的两个只读操作（功率、开关状态）。
package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap/zapcore"
)

// Type 设备型号（封闭集合）
type Type string

const (
	P110 Type = "P110"
	P115 Type = "P115"
)

// Types 返回全部受支持的型号
func Types() []Type {
	return []Type{P110, P115}
}

// ParseType 解析型号字符串（大小写不敏感）
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Types() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedType, s)
}

func (t Type) String() string { return string(t) }

// Identity 设备身份 {device_type, name, ip}，作为所有指标族的标签键。
// 创建后不可修改；值类型可直接比较、可作为 map key。
type Identity struct {
	Type Type
	Name string
	IP   string
}

// Label names used by every device metric family.
const (
	LabelDeviceType = "device_type"
	LabelName       = "name"
	LabelIP         = "ip"
)

// LabelNames 指标族的标签名（顺序固定）
func LabelNames() []string {
	return []string{LabelDeviceType, LabelName, LabelIP}
}

// Labels 转换为 Prometheus 标签
func (id Identity) Labels() prometheus.Labels {
	return prometheus.Labels{
		LabelDeviceType: string(id.Type),
		LabelName:       id.Name,
		LabelIP:         id.IP,
	}
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s@%s", id.Type, id.Name, id.IP)
}

// MarshalLogObject 实现 zapcore.ObjectMarshaler
func (id Identity) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString(LabelDeviceType, string(id.Type))
	enc.AddString(LabelName, id.Name)
	enc.AddString(LabelIP, id.IP)
	return nil
}

// Credential 设备云账号凭据，只在构造 Collector 时挂载一次。
// 密码不会出现在 String() 或日志输出里。
type Credential struct {
	Username string
	Password string
}

func (c Credential) String() string {
	return c.Username + ":***"
}

// MarshalLogObject 只输出用户名
func (c Credential) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("username", c.Username)
	return nil
}

// EnergyUsage 功率读数，CurrentPower 单位为毫瓦(mW)
type EnergyUsage struct {
	CurrentPower int64
	TodayEnergy  int64 // Wh
	MonthEnergy  int64 // Wh
}

// Session 已认证的设备会话
type Session interface {
	// GetPower 返回瞬时功率（mW）
	GetPower(ctx context.Context) (EnergyUsage, error)
	// GetState 返回开关状态，true 为开
	GetState(ctx context.Context) (bool, error)
	// Close 释放会话，可重复调用
	Close() error
}

// Opener 按型号执行对应的握手流程，返回可用会话
type Opener interface {
	Open(ctx context.Context, t Type, host string, cred Credential) (Session, error)
}

// OpenerFunc 函数适配器
type OpenerFunc func(ctx context.Context, t Type, host string, cred Credential) (Session, error)

func (f OpenerFunc) Open(ctx context.Context, t Type, host string, cred Credential) (Session, error) {
	return f(ctx, t, host, cred)
}
