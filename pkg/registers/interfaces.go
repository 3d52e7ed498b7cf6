package registers

import "context"

// Agent 调度器接口（封装所有采集器的生命周期管理）
type Agent interface {
	Register(collector Collector)       // 注册采集器
	Start(ctx context.Context) error    // 初始化采集器并启动定时采集
	Shutdown(ctx context.Context) error // 优雅停止
}

// Collector 采集器核心接口（每台设备一个）
type Collector interface {
	Name() string                      // 采集器名称（唯一标识）
	Init() error                       // 预检查
	Collect(ctx context.Context) error // 采集一轮（更新指标）
	Close() error                      // 关闭（释放会话）
}
