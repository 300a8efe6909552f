package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
)

// TaskResult 任务结果
type TaskResult struct {
	Data  interface{}
	Error error
}

// Config Worker Pool 配置
type Config struct {
	Workers     int  `mapstructure:"workers"`     // worker 数量
	Nonblocking bool `mapstructure:"nonblocking"` // 池满时直接返回错误而不是等待
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers: 80,
	}
}

// Statistics 统计信息
type Statistics struct {
	Submitted int64 // 已提交
	Completed int64 // 已完成
	Failed    int64 // panic 次数
}

// Pool 基于 ants 的协程池
type Pool struct {
	pool   *ants.Pool
	config *Config

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64

	closed atomic.Bool
	logger *zap.Logger
}

// New 创建 Worker Pool
func New(config *Config, logger *zap.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		config: config,
		logger: logger,
	}

	antsPool, err := ants.NewPool(config.Workers,
		ants.WithNonblocking(config.Nonblocking),
		ants.WithPanicHandler(func(err interface{}) {
			p.failed.Add(1)
			logger.Error("worker panic", zap.Any("error", err))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}
	p.pool = antsPool

	return p, nil
}

// Submit 提交任务（fire-and-forget）
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	err := p.pool.Submit(func() {
		task()
		p.completed.Add(1)
	})
	if err != nil {
		p.submitted.Add(-1)
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return err
	}
	return nil
}

// SubmitWithResult 提交带返回值的任务
func (p *Pool) SubmitWithResult(task func() (interface{}, error)) <-chan TaskResult {
	ch := make(chan TaskResult, 1)
	err := p.Submit(func() {
		data, err := task()
		ch <- TaskResult{Data: data, Error: err}
	})
	if err != nil {
		ch <- TaskResult{Error: err}
	}
	return ch
}

// Batch 并发执行 fn(ctx, 0..n-1)，同时最多 limit 个在运行，全部结束后返回。
// ctx 取消后不再派发新任务，已派发的任务仍会等待完成。
func (p *Pool) Batch(ctx context.Context, n, limit int, fn func(ctx context.Context, i int)) error {
	if n <= 0 {
		return nil
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	var dispatchErr error

dispatch:
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			dispatchErr = err
			break
		}
		select {
		case <-ctx.Done():
			dispatchErr = ctx.Err()
			break dispatch
		case sem <- struct{}{}:
		}

		idx := i
		wg.Add(1)
		err := p.Submit(func() {
			defer func() {
				<-sem
				wg.Done()
			}()
			fn(ctx, idx)
		})
		if err != nil {
			<-sem
			wg.Done()
			dispatchErr = err
			break
		}
	}

	wg.Wait()
	return dispatchErr
}

// Running 正在运行的 worker 数
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Free 空闲容量
func (p *Pool) Free() int {
	return p.pool.Free()
}

// Stats 统计信息快照
func (p *Pool) Stats() Statistics {
	return Statistics{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

// Shutdown 关闭池并等待已提交任务完成
func (p *Pool) Shutdown() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	if err := p.pool.ReleaseTimeout(5 * time.Second); err != nil {
		p.logger.Warn("worker pool release timeout", zap.Error(err))
	}
	stats := p.Stats()
	p.logger.Info("worker pool shutdown",
		zap.Int64("submitted", stats.Submitted),
		zap.Int64("completed", stats.Completed),
		zap.Int64("failed", stats.Failed),
	)
}
