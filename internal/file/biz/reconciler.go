package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

const writeBackTimeout = 5 * time.Second

// Reconciler 对比元数据库和对象存储，得到一条记录当前可信的元数据
type Reconciler struct {
	repo  FileRepo
	store ObjectStore
	pool  TaskRunner

	ttl            time.Duration
	workers        int
	persistOrphans bool

	logger *logger.Logger
	now    func() time.Time
}

// NewReconciler 创建 Reconciler
func NewReconciler(repo FileRepo, store ObjectStore, pool TaskRunner, opts *Options, log *logger.Logger) *Reconciler {
	return &Reconciler{
		repo:           repo,
		store:          store,
		pool:           pool,
		ttl:            opts.MetadataTTL,
		workers:        opts.ReconcileWorkers,
		persistOrphans: opts.PersistOrphans,
		logger:         log.Named("reconciler"),
		now:            time.Now,
	}
}

// cacheValid 缓存快照是否仍在有效期内
func (r *Reconciler) cacheValid(rec *FileRecord) bool {
	cachedAt := rec.Metadata.CachedAt
	return cachedAt != nil && r.now().Sub(*cachedAt) < r.ttl
}

// Resolve 返回合并后的记录副本。
// 对象不存在返回 ErrObjectNotFound（悬空记录），其它存储错误包装为 ErrStorageUnavailable。
// 刷新成功后异步回写元数据库，回写失败只记日志。
func (r *Reconciler) Resolve(ctx context.Context, rec *FileRecord, useCache bool) (*FileRecord, error) {
	merged, fresh, err := r.resolve(ctx, rec, useCache)
	if err != nil {
		return nil, err
	}
	if fresh {
		r.writeBack(ctx, merged)
	}
	return merged, nil
}

func (r *Reconciler) resolve(ctx context.Context, rec *FileRecord, useCache bool) (*FileRecord, bool, error) {
	if useCache && r.cacheValid(rec) {
		return rec.Clone(), false, nil
	}

	merged, err := r.fetch(ctx, rec)
	if err != nil {
		return nil, false, err
	}
	return merged, merged.ExistsInDB, nil
}

// Refresh 强制 HEAD 并同步写回
func (r *Reconciler) Refresh(ctx context.Context, rec *FileRecord) (*FileRecord, error) {
	merged, err := r.fetch(ctx, rec)
	if err != nil {
		return nil, err
	}

	if err := r.repo.UpdateSnapshot(ctx, merged.Owner, merged.Key, merged.Metadata, merged.LastModified); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
	}
	return merged, nil
}

func (r *Reconciler) fetch(ctx context.Context, rec *FileRecord) (*FileRecord, error) {
	info, err := r.store.Head(ctx, rec.StorageLocator)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return Merge(rec, info, r.now()), nil
}

// Merge 合并规则：对象存储得到的字段优先，仅存在于元数据库的字段保留
func Merge(rec *FileRecord, info *ObjectInfo, now time.Time) *FileRecord {
	out := rec.Clone()

	out.Metadata.Tier = MapTier(info.StorageClass, info.RestoreOngoing)
	out.Metadata.Size = info.Size
	if info.ContentType != "" {
		out.Metadata.ContentType = info.ContentType
	}
	if !info.LastModified.IsZero() {
		out.LastModified = info.LastModified.UTC()
	}

	cachedAt := now.UTC()
	out.Metadata.CachedAt = &cachedAt
	return out
}

func (r *Reconciler) writeBack(ctx context.Context, rec *FileRecord) {
	// 回写不能随请求取消
	bg := context.WithoutCancel(ctx)
	err := r.pool.Submit(func() {
		wctx, cancel := context.WithTimeout(bg, writeBackTimeout)
		defer cancel()
		if err := r.repo.UpdateSnapshot(wctx, rec.Owner, rec.Key, rec.Metadata, rec.LastModified); err != nil {
			r.logger.WithContext(bg).Warn("metadata write-back failed",
				zap.String("key", rec.Key),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		r.logger.WithContext(ctx).Warn("metadata write-back not scheduled", zap.String("key", rec.Key), zap.Error(err))
	}
}

// ResolveMany 并发处理一批候选记录（最多 workers 个同时进行），
// 按输入顺序返回保留的记录以及被丢弃的数量
func (r *Reconciler) ResolveMany(ctx context.Context, recs []*FileRecord, useCache bool) ([]*FileRecord, int) {
	results := make([]*FileRecord, len(recs))
	fresh := make([]bool, len(recs))

	err := r.pool.Batch(ctx, len(recs), r.workers, func(ctx context.Context, i int) {
		rec := recs[i]
		merged, isFresh, err := r.resolve(ctx, rec, useCache)
		switch {
		case err == nil:
			results[i] = merged
			fresh[i] = isFresh
		case errors.Is(err, ErrObjectNotFound):
			r.logger.WithContext(ctx).Info("dangling record skipped", zap.String("key", rec.Key))
		default:
			r.logger.WithContext(ctx).Warn("reconcile failed, item dropped", zap.String("key", rec.Key), zap.Error(err))
		}
	})
	if err != nil {
		r.logger.WithContext(ctx).Warn("reconcile batch interrupted", zap.Error(err))
	}

	// 回写在 Batch 结束后提交，worker 内部不再向同一个池提交任务
	kept := make([]*FileRecord, 0, len(recs))
	for i, rec := range results {
		if rec == nil {
			continue
		}
		if fresh[i] {
			r.writeBack(ctx, rec)
		}
		kept = append(kept, rec)
	}
	return kept, len(recs) - len(kept)
}

// SynthesizeOrphan 为只存在于对象存储的对象构造记录，可选异步持久化
func (r *Reconciler) SynthesizeOrphan(ctx context.Context, owner Owner, info *ObjectInfo) *FileRecord {
	now := r.now().UTC()
	lastModified := info.LastModified.UTC()
	if lastModified.IsZero() {
		lastModified = now
	}

	rec := &FileRecord{
		Key:            info.Key,
		Owner:          owner.ID,
		DisplayName:    DisplayNameFromKey(info.Key),
		StorageLocator: info.Key,
		Metadata: FileMetadata{
			Tier:        MapTier(info.StorageClass, info.RestoreOngoing),
			Size:        info.Size,
			ContentType: info.ContentType,
		},
		UploadStatus: StatusComplete,
		CreatedAt:    lastModified,
		LastModified: lastModified,
		ExistsInDB:   false,
	}
	if rec.Metadata.ContentType == "" {
		rec.Metadata.ContentType = DetectContentType(rec.DisplayName)
	}

	if r.persistOrphans {
		r.persistOrphan(ctx, rec.Clone())
	}
	return rec
}

func (r *Reconciler) persistOrphan(ctx context.Context, rec *FileRecord) {
	bg := context.WithoutCancel(ctx)
	err := r.pool.Submit(func() {
		wctx, cancel := context.WithTimeout(bg, writeBackTimeout)
		defer cancel()
		if err := r.repo.UpsertOrphan(wctx, rec); err != nil {
			r.logger.WithContext(bg).Warn("persist orphan failed", zap.String("key", rec.Key), zap.Error(err))
		}
	})
	if err != nil {
		r.logger.WithContext(ctx).Warn("persist orphan not scheduled", zap.String("key", rec.Key), zap.Error(err))
	}
}
