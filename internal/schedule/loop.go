package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"DailyPrompt/pkg/logger"
)

// Sweeper 清理过期的领取记录和绑定码
type Sweeper interface {
	Sweep(ctx context.Context, nowUTC time.Time) error
}

// Locker 多副本之间互斥，同一时刻只有一个进程执行 tick
type Locker interface {
	TryLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, value string) error
}

const tickLockKey = "scheduler:tick"

// Loop 进程内的轮询调度，与 HTTP 调度端点共用 TickRunner
type Loop struct {
	runner   *TickRunner
	sweeper  Sweeper
	locker   Locker
	owner    string
	logger   *zap.Logger
	now      func() time.Time
	interval time.Duration
	sweepGap time.Duration
	timeout  time.Duration

	tickMu      sync.Mutex
	tickRunning bool
	lastTick    time.Time
}

func NewLoop(runner *TickRunner, sweeper Sweeper, interval time.Duration) *Loop {
	return &Loop{
		runner:   runner,
		sweeper:  sweeper,
		logger:   logger.Named("scheduler"),
		now:      func() time.Time { return time.Now().UTC() },
		interval: interval,
		sweepGap: time.Hour,
		timeout:  5 * time.Minute,
	}
}

// WithLocker owner 用于释放时校验持有者
func (l *Loop) WithLocker(locker Locker, owner string) *Loop {
	l.locker = locker
	l.owner = owner
	return l
}

// Run 阻塞直到 ctx 结束，启动时立即执行一次
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	sweeps := time.NewTicker(l.sweepGap)
	defer sweeps.Stop()

	l.logger.Info("Scheduler loop started", zap.Duration("interval", l.interval))
	l.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Scheduler loop stopped")
			return
		case <-ticker.C:
			l.RunOnce(ctx)
		case <-sweeps.C:
			l.sweep(ctx)
		}
	}
}

// RunOnce 上一次 tick 未结束时直接跳过，返回是否执行
func (l *Loop) RunOnce(ctx context.Context) bool {
	l.tickMu.Lock()
	if l.tickRunning {
		l.tickMu.Unlock()
		l.logger.Info("Tick already running, skipping")
		return false
	}
	l.tickRunning = true
	l.tickMu.Unlock()

	defer func() {
		l.tickMu.Lock()
		l.tickRunning = false
		l.tickMu.Unlock()
	}()

	runCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if l.locker != nil {
		acquired, err := l.locker.TryLock(runCtx, tickLockKey, l.owner, l.timeout)
		if err != nil {
			// 拿不到锁时照常执行，认领表保证不会重复发送
			l.logger.Warn("Tick lock unavailable", zap.Error(err))
		} else if !acquired {
			l.logger.Info("Tick held by another instance, skipping")
			return false
		} else {
			defer func() {
				if err := l.locker.Unlock(context.Background(), tickLockKey, l.owner); err != nil {
					l.logger.Warn("Failed to release tick lock", zap.Error(err))
				}
			}()
		}
	}

	now := l.now()
	l.lastTick = now

	if _, err := l.runner.Tick(runCtx, nil, now); err != nil {
		l.logger.Error("Tick failed", zap.Error(err))
	}
	return true
}

func (l *Loop) sweep(ctx context.Context) {
	if l.sweeper == nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	if err := l.sweeper.Sweep(runCtx, l.now()); err != nil {
		l.logger.Error("Housekeeping sweep failed", zap.Error(err))
	}
}
