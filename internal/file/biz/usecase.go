package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"go.uber.org/zap"
)

// FileUseCase 文件业务用例
type FileUseCase struct {
	repo       FileRepo
	store      ObjectStore
	cache      ListCache
	queue      RestoreQueue
	reconciler *Reconciler
	opts       *Options
	logger     *logger.Logger
	now        func() time.Time
}

// NewFileUseCase 创建文件用例，cache 和 queue 可以为 nil
func NewFileUseCase(
	repo FileRepo,
	store ObjectStore,
	cache ListCache,
	queue RestoreQueue,
	pool TaskRunner,
	opts *Options,
	log *logger.Logger,
) *FileUseCase {
	opts = opts.normalize()
	return &FileUseCase{
		repo:       repo,
		store:      store,
		cache:      cache,
		queue:      queue,
		reconciler: NewReconciler(repo, store, pool, opts, log),
		opts:       opts,
		logger:     log.Named("file"),
		now:        time.Now,
	}
}

// Options 当前生效的参数
func (uc *FileUseCase) Options() Options {
	return *uc.opts
}

// locate 把 FileLocator 解析为规范 key。
// ByKey 时记录可能不存在（孤儿对象），返回的 rec 为 nil，
// 但 key 被其他用户的记录持有时按不存在处理；
// ByID / ByDatabaseRef 找不到记录直接返回 ErrFileNotFound。
func (uc *FileUseCase) locate(ctx context.Context, owner Owner, loc FileLocator) (string, *FileRecord, error) {
	switch loc.Kind {
	case LocatorByKey:
		if !owner.OwnsKey(loc.Value) {
			return "", nil, ErrFileNotFound
		}
		rec, err := uc.repo.GetByKey(ctx, owner.ID, loc.Value)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return uc.locateOrphan(ctx, owner, loc.Value)
			}
			return "", nil, fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
		}
		return rec.Key, rec, nil

	case LocatorByID, LocatorByDatabaseRef:
		rec, err := uc.repo.GetByID(ctx, owner.ID, loc.Value)
		if err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return "", nil, ErrFileNotFound
			}
			return "", nil, fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
		}
		return rec.Key, rec, nil
	}
	return "", nil, ErrInvalidLocator
}

// locateOrphan 没有记录的 key 只有在不属于其他用户时才能按孤儿对象访问
func (uc *FileUseCase) locateOrphan(ctx context.Context, owner Owner, key string) (string, *FileRecord, error) {
	holder, err := uc.repo.KeyOwner(ctx, key)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		return key, nil, nil
	case err != nil:
		return "", nil, fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
	}

	uc.logger.WithContext(ctx).Warn("key held by another owner",
		zap.String("key", key),
		zap.String("owner", owner.ID),
		zap.String("holder", holder),
	)
	return "", nil, ErrFileNotFound
}

// locateComplete 只接受已完成上传的记录
func (uc *FileUseCase) locateComplete(ctx context.Context, owner Owner, loc FileLocator) (*FileRecord, error) {
	_, rec, err := uc.locate(ctx, owner, loc)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.UploadStatus != StatusComplete {
		return nil, ErrFileNotFound
	}
	return rec, nil
}

// invalidate 清除该用户的列表缓存，失败只记日志
func (uc *FileUseCase) invalidate(ctx context.Context, ownerID string) {
	if uc.cache == nil {
		return
	}
	if err := uc.cache.Invalidate(ctx, ownerID); err != nil {
		uc.logger.WithContext(ctx).Warn("list cache invalidation failed",
			zap.String("owner", ownerID),
			zap.Error(err),
		)
	}
}

// inconsistent 补偿失败：记录涉及的 key，返回 ErrInconsistent
func (uc *FileUseCase) inconsistent(ctx context.Context, op string, cause error, keys ...string) error {
	uc.logger.WithContext(ctx).Error("compensation failed, stores may disagree",
		zap.String("op", op),
		zap.Strings("keys", keys),
		zap.Error(cause),
	)
	return fmt.Errorf("%w: %s: %w", ErrInconsistent, op, cause)
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

func metadataErr(err error) error {
	return fmt.Errorf("%w: %w", ErrMetadataUnavailable, err)
}
