package biz

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// TierStatus 层级变更结果
type TierStatus string

const (
	TierChangeCompleted  TierStatus = "completed"
	TierRestoreRequested TierStatus = "restore_requested"
	TierRestoreRunning   TierStatus = "in_progress" // 恢复已在进行，稍后重试
)

// TierResult 层级变更返回
type TierResult struct {
	Key    string     `json:"key"`
	Tier   Tier       `json:"tier"`
	Status TierStatus `json:"status"`
}

// ChangeTier 变更存储层级。
// standard => glacier 同步原地复制；glacier => standard 先发起恢复，
// 恢复完成后（worker 或再次调用）原地复制为 STANDARD。
func (uc *FileUseCase) ChangeTier(ctx context.Context, owner Owner, loc FileLocator, target string) (*TierResult, error) {
	tier, err := ParseTier(target)
	if err != nil {
		return nil, err
	}

	rec, err := uc.locateComplete(ctx, owner, loc)
	if err != nil {
		return nil, err
	}

	info, err := uc.store.Head(ctx, rec.StorageLocator)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, storageErr(err)
	}

	var result *TierResult
	if tier == TierGlacier {
		result, err = uc.archive(ctx, rec, info)
	} else {
		result, err = uc.unarchive(ctx, rec, info)
	}
	if err != nil {
		return nil, err
	}

	uc.invalidate(ctx, owner.ID)
	uc.logger.WithContext(ctx).Info("tier change",
		zap.String("key", rec.Key),
		zap.String("tier", string(result.Tier)),
		zap.String("status", string(result.Status)),
	)
	return result, nil
}

func (uc *FileUseCase) archive(ctx context.Context, rec *FileRecord, info *ObjectInfo) (*TierResult, error) {
	if !IsArchived(info.StorageClass) {
		opts := CopyOptions{
			StorageClass: StorageClassFor(TierGlacier),
			ContentType:  contentTypeOf(rec, info),
		}
		if err := uc.store.Copy(ctx, rec.StorageLocator, rec.StorageLocator, opts); err != nil {
			return nil, storageErr(err)
		}
	}

	current := MapTier(StorageClassFor(TierGlacier), info.RestoreOngoing)
	if err := uc.setTier(ctx, rec, current); err != nil {
		return nil, err
	}
	return &TierResult{Key: rec.Key, Tier: current, Status: TierChangeCompleted}, nil
}

func (uc *FileUseCase) unarchive(ctx context.Context, rec *FileRecord, info *ObjectInfo) (*TierResult, error) {
	switch {
	case !IsArchived(info.StorageClass):
		if err := uc.setTier(ctx, rec, TierStandard); err != nil {
			return nil, err
		}
		return &TierResult{Key: rec.Key, Tier: TierStandard, Status: TierChangeCompleted}, nil

	case info.RestoreOngoing:
		if err := uc.setTier(ctx, rec, TierUnarchiving); err != nil {
			return nil, err
		}
		return &TierResult{Key: rec.Key, Tier: TierUnarchiving, Status: TierRestoreRunning}, nil

	case info.Restored():
		if err := uc.finalize(ctx, rec, info); err != nil {
			return nil, err
		}
		return &TierResult{Key: rec.Key, Tier: TierStandard, Status: TierChangeCompleted}, nil
	}

	err := uc.store.Restore(ctx, rec.StorageLocator, uc.opts.RestoreDays)
	if errors.Is(err, ErrRestoreInProgress) {
		if err := uc.setTier(ctx, rec, TierUnarchiving); err != nil {
			return nil, err
		}
		return &TierResult{Key: rec.Key, Tier: TierUnarchiving, Status: TierRestoreRunning}, nil
	}
	if err != nil {
		return nil, storageErr(err)
	}

	if err := uc.setTier(ctx, rec, TierUnarchiving); err != nil {
		return nil, err
	}
	if uc.queue != nil {
		if err := uc.queue.Enqueue(ctx, rec.Owner, rec.Key); err != nil {
			// 用户再次调用 ChangeTier 同样可以完成收尾
			uc.logger.WithContext(ctx).Warn("restore finalizer not enqueued", zap.String("key", rec.Key), zap.Error(err))
		}
	}
	return &TierResult{Key: rec.Key, Tier: TierUnarchiving, Status: TierRestoreRequested}, nil
}

// finalize 恢复完成后原地复制为 STANDARD
func (uc *FileUseCase) finalize(ctx context.Context, rec *FileRecord, info *ObjectInfo) error {
	opts := CopyOptions{
		StorageClass: StorageClassFor(TierStandard),
		ContentType:  contentTypeOf(rec, info),
	}
	if err := uc.store.Copy(ctx, rec.StorageLocator, rec.StorageLocator, opts); err != nil {
		return storageErr(err)
	}
	return uc.setTier(ctx, rec, TierStandard)
}

// FinalizeRestore 供恢复队列调用。done=false 表示恢复仍在进行，需要稍后再试
func (uc *FileUseCase) FinalizeRestore(ctx context.Context, ownerID, key string) (bool, error) {
	rec, err := uc.repo.GetByKey(ctx, ownerID, key)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return true, ErrFileNotFound
		}
		return false, metadataErr(err)
	}

	info, err := uc.store.Head(ctx, rec.StorageLocator)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return true, ErrFileNotFound
		}
		return false, storageErr(err)
	}

	switch {
	case !IsArchived(info.StorageClass):
		err = uc.setTier(ctx, rec, TierStandard)
	case info.RestoreOngoing:
		return false, nil
	case info.Restored():
		err = uc.finalize(ctx, rec, info)
	default:
		// 没有进行中的恢复也没有可读副本，恢复请求已失效
		uc.logger.WithContext(ctx).Warn("restore vanished before finalize", zap.String("key", key))
		err = uc.setTier(ctx, rec, TierGlacier)
	}
	if err != nil {
		return false, err
	}

	uc.invalidate(ctx, ownerID)
	return true, nil
}

func (uc *FileUseCase) setTier(ctx context.Context, rec *FileRecord, tier Tier) error {
	if rec.Metadata.Tier == tier {
		return nil
	}
	if err := uc.repo.UpdateTier(ctx, rec.Owner, rec.Key, tier); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return ErrFileNotFound
		}
		return metadataErr(err)
	}
	rec.Metadata.Tier = tier
	return nil
}

func contentTypeOf(rec *FileRecord, info *ObjectInfo) string {
	if info.ContentType != "" {
		return info.ContentType
	}
	if rec.Metadata.ContentType != "" {
		return rec.Metadata.ContentType
	}
	return DetectContentType(rec.DisplayName)
}
