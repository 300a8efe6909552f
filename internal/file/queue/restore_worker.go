package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/file-vault-backend/internal/file/biz"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/file-vault-backend/internal/pkg/redis"
)

// RestoreTask 归档恢复收尾任务
type RestoreTask struct {
	OwnerID   string    `json:"owner_id"`
	Key       string    `json:"key"`
	Attempts  int       `json:"attempts"`
	NotBefore time.Time `json:"not_before"`
}

// Config 恢复 worker 配置
type Config struct {
	Workers       int           `mapstructure:"workers"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RecheckAfter  time.Duration `mapstructure:"recheck_after"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BatchPerTick  int           `mapstructure:"batch_per_tick"`
	FinalizeLimit time.Duration `mapstructure:"finalize_timeout"`
}

// DefaultConfig 默认配置：每 15 分钟复查一次，最多 96 次（约一天）
func DefaultConfig() *Config {
	return &Config{
		Workers:       1,
		PollInterval:  time.Second,
		RecheckAfter:  15 * time.Minute,
		MaxAttempts:   96,
		BatchPerTick:  32,
		FinalizeLimit: 30 * time.Second,
	}
}

// Finalizer 完成恢复后的存储类型回写（biz.FileUseCase 实现）
type Finalizer interface {
	FinalizeRestore(ctx context.Context, ownerID, key string) (bool, error)
}

// listQueue Redis list/set 操作（pkgredis.Client 实现）
type listQueue interface {
	LPush(ctx context.Context, key string, values ...interface{}) (int64, error)
	RPop(ctx context.Context, key string) (string, error)
	LLen(ctx context.Context, key string) (int64, error)
	SAdd(ctx context.Context, key string, members ...interface{}) (int64, error)
	SRem(ctx context.Context, key string, members ...interface{}) (int64, error)
}

// RestoreWorker 轮询恢复队列，对象恢复完成后把文件转回 standard
type RestoreWorker struct {
	q             listQueue
	queueKey      string
	processingKey string
	finalizer     Finalizer
	config        *Config
	logger        *logger.Logger
	now           func() time.Time

	wg      sync.WaitGroup
	stopCh  chan struct{}
	mu      sync.Mutex
	running bool
}

// NewRestoreWorker 创建恢复 worker，finalizer 可以稍后通过 SetFinalizer 注入
func NewRestoreWorker(client *pkgredis.Client, finalizer Finalizer, cfg *Config, log *logger.Logger) *RestoreWorker {
	return newRestoreWorker(client, client.Key("queue", "restore"), client.Key("set", "restore", "processing"), finalizer, cfg, log)
}

func newRestoreWorker(q listQueue, queueKey, processingKey string, finalizer Finalizer, cfg *Config, log *logger.Logger) *RestoreWorker {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.RecheckAfter <= 0 {
		cfg.RecheckAfter = def.RecheckAfter
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BatchPerTick <= 0 {
		cfg.BatchPerTick = def.BatchPerTick
	}
	if cfg.FinalizeLimit <= 0 {
		cfg.FinalizeLimit = def.FinalizeLimit
	}

	return &RestoreWorker{
		q:             q,
		queueKey:      queueKey,
		processingKey: processingKey,
		finalizer:     finalizer,
		config:        cfg,
		logger:        log.Named("restore_worker"),
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
}

// SetFinalizer 注入 FileUseCase（两者互相依赖）
func (w *RestoreWorker) SetFinalizer(f Finalizer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.finalizer = f
}

// Enqueue 实现 biz.RestoreQueue
func (w *RestoreWorker) Enqueue(ctx context.Context, ownerID, key string) error {
	return w.push(ctx, &RestoreTask{
		OwnerID:   ownerID,
		Key:       key,
		NotBefore: w.now().Add(w.config.RecheckAfter).UTC(),
	})
}

func (w *RestoreWorker) push(ctx context.Context, task *RestoreTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal restore task: %w", err)
	}
	if _, err := w.q.LPush(ctx, w.queueKey, string(data)); err != nil {
		return fmt.Errorf("failed to enqueue restore task: %w", err)
	}
	return nil
}

// Start 启动 worker
func (w *RestoreWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return errors.New("restore worker already running")
	}
	if w.finalizer == nil {
		return errors.New("restore worker has no finalizer")
	}

	w.running = true
	w.logger.Info("starting restore workers", zap.Int("worker_count", w.config.Workers))

	for i := 0; i < w.config.Workers; i++ {
		w.wg.Add(1)
		go w.loop(ctx, i)
	}
	return nil
}

// Stop 停止 worker 并等待退出
func (w *RestoreWorker) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return
	}
	close(w.stopCh)
	w.wg.Wait()
	w.running = false
	w.logger.Info("restore workers stopped")
}

// QueueSize 队列长度
func (w *RestoreWorker) QueueSize(ctx context.Context) (int64, error) {
	return w.q.LLen(ctx, w.queueKey)
}

func (w *RestoreWorker) loop(ctx context.Context, id int) {
	defer w.wg.Done()

	log := w.logger.With(zap.Int("worker_id", id))
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx, log)
		}
	}
}

// drain 每个 tick 最多处理 BatchPerTick 个任务；队首任务未到期时停止
func (w *RestoreWorker) drain(ctx context.Context, log *logger.Logger) {
	for i := 0; i < w.config.BatchPerTick; i++ {
		raw, err := w.q.RPop(ctx, w.queueKey)
		if err != nil {
			if !pkgredis.IsNil(err) {
				log.Warn("failed to pop restore task", zap.Error(err))
			}
			return
		}

		var task RestoreTask
		if err := json.Unmarshal([]byte(raw), &task); err != nil {
			log.Error("dropping malformed restore task", zap.String("raw", raw), zap.Error(err))
			continue
		}
		if !w.process(ctx, &task, log) {
			return
		}
	}
}

// process 处理单个任务，任务未到期时放回队列并返回 false
func (w *RestoreWorker) process(ctx context.Context, task *RestoreTask, log *logger.Logger) bool {
	if w.now().Before(task.NotBefore) {
		if err := w.push(ctx, task); err != nil {
			log.Error("failed to requeue restore task", zap.String("key", task.Key), zap.Error(err))
		}
		return false
	}

	member := task.OwnerID + "|" + task.Key
	if _, err := w.q.SAdd(ctx, w.processingKey, member); err != nil {
		log.Warn("failed to mark restore task processing", zap.Error(err))
	}
	defer func() {
		_, _ = w.q.SRem(ctx, w.processingKey, member)
	}()

	fctx, cancel := context.WithTimeout(ctx, w.config.FinalizeLimit)
	done, err := w.finalizer.FinalizeRestore(fctx, task.OwnerID, task.Key)
	cancel()

	switch {
	case errors.Is(err, biz.ErrFileNotFound):
		log.Info("restore target gone, dropping task", zap.String("key", task.Key))
		return true
	case err == nil && done:
		log.Info("restore finalized", zap.String("key", task.Key), zap.Int("attempts", task.Attempts+1))
		return true
	}

	task.Attempts++
	if task.Attempts >= w.config.MaxAttempts {
		log.Error("restore task exceeded max attempts",
			zap.String("owner_id", task.OwnerID),
			zap.String("key", task.Key),
			zap.Int("attempts", task.Attempts),
			zap.Error(err),
		)
		return true
	}
	if err != nil {
		log.Warn("restore finalize failed, will retry", zap.String("key", task.Key), zap.Error(err))
	}

	task.NotBefore = w.now().Add(w.config.RecheckAfter).UTC()
	if err := w.push(ctx, task); err != nil {
		log.Error("failed to requeue restore task", zap.String("key", task.Key), zap.Error(err))
	}
	return true
}
