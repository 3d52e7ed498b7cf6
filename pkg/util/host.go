package util

import (
	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"
)

// HostFields 启动摘要中的主机信息；获取失败时只返回错误字段
func HostFields() []zap.Field {
	info, err := host.Info()
	if err != nil {
		return []zap.Field{zap.NamedError("host_info_error", err)}
	}
	return []zap.Field{
		zap.String("hostname", info.Hostname),
		zap.String("os", info.OS),
		zap.String("platform", info.Platform+" "+info.PlatformVersion),
		zap.String("kernel", info.KernelVersion),
		zap.String("arch", info.KernelArch),
	}
}
