package collector

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/tapo-exporter/pkg/device"
	"github.com/tapo-exporter/pkg/logger"
	"github.com/tapo-exporter/pkg/metrics"
)

// ErrClosed Close 之后不再采集
var ErrClosed = errors.New("collector closed")

// Collector 单台设备采集器（实现 registers.Collector 接口）
//
// 会话懒加载：session 为 nil 表示未连接。任一子请求失败都会丢弃会话，
// 下一轮重新握手；两次读取都成功时会话保留复用。
// mu 串行化 Collect；sessMu 只保护 session 字段，Close 不会等待进行中的采集。
type Collector struct {
	identity   device.Identity
	credential device.Credential
	opener     device.Opener
	series     *metrics.Series
	// collectDuration 可为 nil
	collectDuration prometheus.ObserverVec
	log             *zap.Logger

	mu sync.Mutex

	sessMu  sync.Mutex
	session device.Session
	closed  bool
}

// NewCollector 创建设备采集器，指标句柄在此一次性绑定
func NewCollector(id device.Identity, cred device.Credential, opener device.Opener,
	dm *metrics.DeviceMetrics, collectDuration prometheus.ObserverVec) *Collector {
	return &Collector{
		identity:        id,
		credential:      cred,
		opener:          opener,
		series:          dm.Bind(id),
		collectDuration: collectDuration,
		log:             logger.WithDevice(id),
	}
}

// Name 返回采集器名称
func (c *Collector) Name() string { return c.identity.String() }

// Identity 返回设备身份
func (c *Collector) Identity() device.Identity { return c.identity }

// Init 预检查
func (c *Collector) Init() error {
	if c.opener == nil {
		return errors.New("collector " + c.Name() + ": no device opener")
	}
	if _, err := device.ParseType(string(c.identity.Type)); err != nil {
		return err
	}
	return nil
}

// Connected 当前是否持有会话
func (c *Collector) Connected() bool {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.session != nil
}

// Collect 执行一轮采集，返回本轮失败步骤的合并错误（仅供日志使用）
func (c *Collector) Collect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	defer func() {
		if c.collectDuration != nil {
			c.collectDuration.WithLabelValues(c.Name()).Observe(time.Since(start).Seconds())
		}
	}()

	session, closed := c.current()
	if closed {
		return ErrClosed
	}

	// 1. 未连接时握手；失败计数一次后直接返回，旧指标保持不变
	if session == nil {
		s, err := c.opener.Open(ctx, c.identity.Type, c.identity.IP, c.credential)
		if err != nil {
			c.fail(ctx, "failed to connect device", err)
			return err
		}
		if !c.attach(s) {
			return ErrClosed
		}
		session = s
		c.log.Info("device connected")
	}

	var errs []error

	// 2. 功率
	usage, err := session.GetPower(ctx)
	if err != nil {
		c.fail(ctx, "failed to get power", err)
		errs = append(errs, err)
	} else {
		c.series.SetPower(usage.CurrentPower)
	}

	// 3. 开关状态，与功率结果无关
	on, err := session.GetState(ctx)
	if err != nil {
		c.fail(ctx, "failed to get state", err)
		errs = append(errs, err)
	} else {
		c.series.SetState(on)
	}

	// 4. 任一失败则丢弃会话
	if len(errs) > 0 {
		c.discard(session)
		return errors.Join(errs...)
	}

	c.log.Debug("device collected", zap.Int64("power_mw", usage.CurrentPower), zap.Bool("on", on))
	return nil
}

// fail 记录一次失败；调用方已取消（停机）时不计数
func (c *Collector) fail(ctx context.Context, msg string, err error) {
	if ctx.Err() != nil {
		c.log.Debug(msg+" (cancelled)", zap.Error(err))
		return
	}
	c.series.IncFail()
	c.log.Warn(msg, zap.Error(err))
}

// Close 释放会话，之后的 Collect 返回 ErrClosed
func (c *Collector) Close() error {
	c.sessMu.Lock()
	session := c.session
	c.session, c.closed = nil, true
	c.sessMu.Unlock()

	if session == nil {
		return nil
	}
	return session.Close()
}

func (c *Collector) current() (device.Session, bool) {
	c.sessMu.Lock()
	defer c.sessMu.Unlock()
	return c.session, c.closed
}

// attach 保存新会话；采集器已关闭时立即释放并返回 false
func (c *Collector) attach(s device.Session) bool {
	c.sessMu.Lock()
	if c.closed {
		c.sessMu.Unlock()
		_ = s.Close()
		return false
	}
	c.session = s
	c.sessMu.Unlock()
	return true
}

func (c *Collector) discard(s device.Session) {
	c.sessMu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.sessMu.Unlock()

	if err := s.Close(); err != nil {
		c.log.Debug("failed to close session", zap.Error(err))
	}
	c.log.Info("device session discarded, reconnecting next round")
}
