package biz

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// DownloadStatus 下载请求状态
type DownloadStatus string

const (
	DownloadReady      DownloadStatus = "ready"
	DownloadRestoring  DownloadStatus = "restoring"   // 已发起归档恢复
	DownloadInProgress DownloadStatus = "in_progress" // 恢复进行中
)

// DownloadResult 下载结果，只有 ready 时带 URL
type DownloadResult struct {
	Status    DownloadStatus `json:"status"`
	URL       string         `json:"download_url,omitempty"`
	FileName  string         `json:"file_name"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}

// Ready 是否可以直接下载
func (r *DownloadResult) Ready() bool {
	return r.Status == DownloadReady
}

// GetDetails 单个文件详情。
// 记录不存在但对象存在时返回孤儿记录；悬空记录返回 ErrFileNotFound。
func (uc *FileUseCase) GetDetails(ctx context.Context, owner Owner, loc FileLocator, useCache bool) (*FileRecord, error) {
	key, rec, err := uc.locate(ctx, owner, loc)
	if err != nil {
		return nil, err
	}

	if rec == nil {
		info, err := uc.store.Head(ctx, key)
		if err != nil {
			if errors.Is(err, ErrObjectNotFound) {
				return nil, ErrFileNotFound
			}
			return nil, storageErr(err)
		}
		return uc.reconciler.SynthesizeOrphan(ctx, owner, info), nil
	}

	if rec.UploadStatus != StatusComplete {
		return nil, ErrFileNotFound
	}

	merged, err := uc.reconciler.Resolve(ctx, rec, useCache)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return merged, nil
}

// Refresh 强制从对象存储刷新元数据并写回
func (uc *FileUseCase) Refresh(ctx context.Context, owner Owner, loc FileLocator) (*FileRecord, error) {
	rec, err := uc.locateComplete(ctx, owner, loc)
	if err != nil {
		return nil, err
	}

	merged, err := uc.reconciler.Refresh(ctx, rec)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}

	uc.invalidate(ctx, owner.ID)
	return merged, nil
}

// Download 签发预签名 GET。归档且未恢复的对象先发起恢复
func (uc *FileUseCase) Download(ctx context.Context, owner Owner, loc FileLocator) (*DownloadResult, error) {
	key, rec, err := uc.locate(ctx, owner, loc)
	if err != nil {
		return nil, err
	}
	if rec != nil && rec.UploadStatus != StatusComplete {
		return nil, ErrFileNotFound
	}

	locator := key
	fileName := DisplayNameFromKey(key)
	if rec != nil {
		locator = rec.StorageLocator
		fileName = rec.DisplayName
	}

	info, err := uc.store.Head(ctx, locator)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, storageErr(err)
	}

	result := &DownloadResult{FileName: fileName}
	if IsArchived(info.StorageClass) && !info.Restored() {
		if info.RestoreOngoing {
			result.Status = DownloadInProgress
			return result, nil
		}

		err := uc.store.Restore(ctx, locator, uc.opts.RestoreDays)
		switch {
		case errors.Is(err, ErrRestoreInProgress):
			result.Status = DownloadInProgress
		case err != nil:
			return nil, storageErr(err)
		default:
			result.Status = DownloadRestoring
			uc.logger.WithContext(ctx).Info("restore requested for download", zap.String("key", key))
		}
		return result, nil
	}

	url, err := uc.store.PresignGet(ctx, locator, fileName, uc.opts.PresignExpiry)
	if err != nil {
		return nil, storageErr(err)
	}
	expiresAt := uc.now().UTC().Add(uc.opts.PresignExpiry)
	result.Status = DownloadReady
	result.URL = url
	result.ExpiresAt = &expiresAt
	return result, nil
}
