package registers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tapo-exporter/pkg/logger"
)

const agentName = "collector-agent"

// ErrAlreadyStarted Start 被重复调用
var ErrAlreadyStarted = errors.New("agent already started")

// AgentImpl 实现 Agent 接口
//
// 固定周期调度：首轮在 Start 时立即执行，之后每个 interval 触发一轮；
// 一轮内所有采集器并发执行，全部结束后该轮才算完成。
// 一轮耗时超过 interval 时，下一轮紧接着开始（time.Ticker 丢弃积压的 tick）。
type AgentImpl struct {
	collectors     []Collector
	interval       time.Duration
	maxConcurrency int

	roundDuration prometheus.Observer
	overruns      prometheus.Counter

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option AgentImpl 可选项
type Option func(*AgentImpl)

// WithMaxConcurrency 限制单轮并发数，0 表示不限制
func WithMaxConcurrency(n int) Option {
	return func(a *AgentImpl) { a.maxConcurrency = n }
}

// WithRoundMetrics 记录整轮耗时与超时轮次
func WithRoundMetrics(duration prometheus.Observer, overruns prometheus.Counter) Option {
	return func(a *AgentImpl) {
		a.roundDuration = duration
		a.overruns = overruns
	}
}

// NewAgent 创建调度器
func NewAgent(interval time.Duration, opts ...Option) *AgentImpl {
	a := &AgentImpl{
		collectors: make([]Collector, 0),
		interval:   interval,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Register 注册采集器
func (a *AgentImpl) Register(c Collector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.collectors = append(a.collectors, c)
}

// Collectors 返回已注册采集器的副本
func (a *AgentImpl) Collectors() []Collector {
	a.mu.Lock()
	defer a.mu.Unlock()
	copied := make([]Collector, len(a.collectors))
	copy(copied, a.collectors)
	return copied
}

// InitAll 初始化所有采集器，任一失败即返回
func (a *AgentImpl) InitAll() error {
	for _, coll := range a.Collectors() {
		if err := coll.Init(); err != nil {
			return fmt.Errorf("collector %s init failed: %w", coll.Name(), err)
		}
		logger.Debug("collector initialized successfully", zap.String("name", coll.Name()))
	}
	return nil
}

// Start 初始化采集器并在后台启动定时采集；ctx 取消或调用 Shutdown 时停止
func (a *AgentImpl) Start(ctx context.Context) error {
	// 检查与占位在同一临界区内完成，并发 Start 只有一个能成功
	a.mu.Lock()
	if a.done != nil {
		a.mu.Unlock()
		return ErrAlreadyStarted
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.cancel, a.done = cancel, done
	a.mu.Unlock()

	if err := a.InitAll(); err != nil {
		cancel()
		close(done)
		a.mu.Lock()
		a.cancel, a.done = nil, nil
		a.mu.Unlock()
		return err
	}

	logger.Info("collector agent started", zap.String("name", agentName),
		zap.Duration("interval", a.interval),
		zap.Int("collectors", len(a.Collectors())),
		zap.Int("max_concurrency", a.maxConcurrency))

	go a.loop(loopCtx, done)
	return nil
}

func (a *AgentImpl) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	a.round(ctx)
	for {
		select {
		case <-ticker.C:
			a.round(ctx)
		case <-ctx.Done():
			logger.Info("collector agent stopped", zap.String("name", agentName), zap.Error(ctx.Err()))
			return
		}
	}
}

func (a *AgentImpl) round(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	err := a.CollectAll(ctx)
	elapsed := time.Since(start)

	if a.roundDuration != nil {
		a.roundDuration.Observe(elapsed.Seconds())
	}
	if elapsed > a.interval {
		if a.overruns != nil {
			a.overruns.Inc()
		}
		logger.Warn("collection round exceeded interval, next round starts immediately",
			zap.Duration("elapsed", elapsed), zap.Duration("interval", a.interval))
	}
	if err != nil {
		logger.Debug("collection round finished with failures", zap.Duration("elapsed", elapsed), zap.Error(err))
		return
	}
	logger.Debug("collection round finished", zap.Duration("elapsed", elapsed))
}

// CollectAll 并发执行一轮采集并等待全部完成；单个采集器失败不影响其他采集器
func (a *AgentImpl) CollectAll(ctx context.Context) error {
	collectors := a.Collectors()

	var g errgroup.Group
	if a.maxConcurrency > 0 {
		g.SetLimit(a.maxConcurrency)
	}

	var failed atomic.Int32
	for _, c := range collectors {
		g.Go(func() error {
			if err := c.Collect(ctx); err != nil {
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d collectors failed", n, len(collectors))
	}
	return nil
}

// Shutdown 停止调度，等待进行中的一轮结束后关闭所有采集器。
// ctx 先到期时不再等待，但仍会关闭采集器并返回超时错误。
func (a *AgentImpl) Shutdown(ctx context.Context) error {
	logger.Info("starting to shutdown collector agent", zap.String("name", agentName))

	a.mu.Lock()
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	var waitErr error
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			waitErr = fmt.Errorf("wait for in-flight round: %w", ctx.Err())
			logger.Warn("in-flight round did not finish before shutdown deadline", zap.Error(ctx.Err()))
		}
	}
	return errors.Join(waitErr, a.CloseAll())
}

// CloseAll 关闭所有采集器，返回合并后的错误
func (a *AgentImpl) CloseAll() error {
	var errs []error
	for _, c := range a.Collectors() {
		if err := c.Close(); err != nil {
			logger.Error("failed to close collector", zap.String("name", c.Name()), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		logger.Debug("collector closed successfully", zap.String("name", c.Name()))
	}
	return errors.Join(errs...)
}
