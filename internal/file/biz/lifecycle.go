package biz

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
)

// UploadTicket 上传凭证
type UploadTicket struct {
	URL       string    `json:"presigned_url"`
	Key       string    `json:"key"`
	ID        string    `json:"id"`
	FileName  string    `json:"file_name"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UploadIntent 签发预签名 PUT，并写入 pending 记录
func (uc *FileUseCase) UploadIntent(ctx context.Context, owner Owner, fileName string, size int64, contentType string) (*UploadTicket, error) {
	if size < 0 {
		return nil, ErrInvalidSize
	}
	if size > uc.opts.MaxUploadSize {
		return nil, ErrFileTooLarge
	}

	name, err := SanitizeFileName(fileName)
	if err != nil {
		return nil, err
	}
	key := BuildKey(owner.Namespace, name)

	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = DetectContentType(name)
	}

	// 同名 pending 记录可以重新签发；已完成的记录视为冲突
	existing, err := uc.repo.GetByKey(ctx, owner.ID, key)
	switch {
	case err == nil && existing.UploadStatus == StatusComplete:
		return nil, ErrFileConflict
	case err != nil && !errors.Is(err, ErrRecordNotFound):
		return nil, metadataErr(err)
	}

	url, err := uc.store.PresignPut(ctx, key, contentType, uc.opts.PresignExpiry)
	if err != nil {
		return nil, storageErr(err)
	}

	now := uc.now().UTC()
	ticket := &UploadTicket{
		URL:       url,
		Key:       key,
		FileName:  name,
		ExpiresAt: now.Add(uc.opts.PresignExpiry),
	}

	// 重新签发时以最新一次请求的大小和类型为准
	if existing != nil {
		if _, err := uc.repo.UpdatePending(ctx, owner.ID, key, size, contentType, now); err != nil {
			if errors.Is(err, ErrRecordNotFound) {
				return nil, ErrFileConflict
			}
			return nil, metadataErr(err)
		}
		ticket.ID = existing.ID
		return ticket, nil
	}

	rec := &FileRecord{
		Key:            key,
		Owner:          owner.ID,
		DisplayName:    name,
		StorageLocator: key,
		Metadata: FileMetadata{
			Tier:        TierStandard,
			Size:        size,
			ContentType: contentType,
		},
		UploadStatus: StatusPending,
		CreatedAt:    now,
		LastModified: now,
		ExistsInDB:   true,
	}
	if err := uc.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			return nil, ErrFileConflict
		}
		return nil, metadataErr(err)
	}
	ticket.ID = rec.ID

	uc.logger.WithContext(ctx).Info("upload intent issued",
		zap.String("key", key),
		zap.Int64("size", size),
	)
	return ticket, nil
}

// ConfirmUpload pending => complete，没有匹配的 pending 记录返回 ErrPendingNotFound。
// 对象还不存在时记录保持 pending，返回 ErrUploadNotReceived
func (uc *FileUseCase) ConfirmUpload(ctx context.Context, owner Owner, key string) (*FileRecord, error) {
	if !owner.OwnsKey(key) {
		return nil, ErrPendingNotFound
	}

	pending, err := uc.repo.GetByKey(ctx, owner.ID, key)
	switch {
	case errors.Is(err, ErrRecordNotFound):
		return nil, ErrPendingNotFound
	case err != nil:
		return nil, metadataErr(err)
	case pending.UploadStatus != StatusPending:
		return nil, ErrPendingNotFound
	}

	// 尽量带上对象的真实信息，HEAD 暂时失败不影响确认
	locator := pending.StorageLocator
	if locator == "" {
		locator = key
	}
	info, err := uc.store.Head(ctx, locator)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, ErrUploadNotReceived
		}
		uc.logger.WithContext(ctx).Warn("confirm without object info", zap.String("key", key), zap.Error(err))
		info = nil
	}

	rec, err := uc.repo.MarkComplete(ctx, owner.ID, key, info, uc.now().UTC())
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrPendingNotFound
		}
		return nil, metadataErr(err)
	}

	uc.invalidate(ctx, owner.ID)
	return rec, nil
}

// Delete 先删对象再删记录。
// 对象删除失败时不动记录；记录已不存在视为成功。
func (uc *FileUseCase) Delete(ctx context.Context, owner Owner, loc FileLocator) error {
	key, rec, err := uc.locate(ctx, owner, loc)
	if err != nil {
		return err
	}

	locator := key
	if rec != nil {
		locator = rec.StorageLocator
	}

	if err := uc.store.Delete(ctx, locator); err != nil && !errors.Is(err, ErrObjectNotFound) {
		return storageErr(err)
	}

	if err := uc.repo.Delete(ctx, owner.ID, key); err != nil {
		if !errors.Is(err, ErrRecordNotFound) {
			// 对象已删除，记录成为悬空记录，列表会自动跳过
			uc.logger.WithContext(ctx).Error("record delete failed after object removal",
				zap.String("key", key),
				zap.Error(err),
			)
			return metadataErr(err)
		}
	}

	uc.invalidate(ctx, owner.ID)
	uc.logger.WithContext(ctx).Info("file deleted", zap.String("key", key))
	return nil
}

// Rename 复制到新 key、删除旧对象、更新记录；任一步失败按相反顺序补偿
func (uc *FileUseCase) Rename(ctx context.Context, owner Owner, loc FileLocator, newName string) (*FileRecord, error) {
	name, err := SanitizeFileName(newName)
	if err != nil {
		return nil, err
	}

	rec, err := uc.locateComplete(ctx, owner, loc)
	if err != nil {
		return nil, err
	}

	newKey := BuildKey(owner.Namespace, name)
	if newKey == rec.Key {
		return rec, nil
	}

	if err := uc.checkTargetFree(ctx, owner, newKey); err != nil {
		return nil, err
	}

	oldKey := rec.StorageLocator
	opts, err := uc.renameCopyOptions(ctx, oldKey)
	if err != nil {
		return nil, err
	}

	if err := uc.store.Copy(ctx, oldKey, newKey, opts); err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, storageErr(err)
	}

	if err := uc.store.Delete(ctx, oldKey); err != nil {
		if rbErr := uc.store.Delete(ctx, newKey); rbErr != nil {
			return nil, uc.inconsistent(ctx, "rename: remove copy", rbErr, oldKey, newKey)
		}
		return nil, storageErr(err)
	}

	if err := uc.repo.UpdateKey(ctx, owner.ID, rec.Key, newKey, name); err != nil {
		if rbErr := uc.moveBack(ctx, newKey, oldKey, opts); rbErr != nil {
			return nil, uc.inconsistent(ctx, "rename: restore object", rbErr, oldKey, newKey)
		}
		if errors.Is(err, ErrDuplicateKey) {
			return nil, ErrFileConflict
		}
		if errors.Is(err, ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, metadataErr(err)
	}

	uc.invalidate(ctx, owner.ID)

	out := rec.Clone()
	out.Key = newKey
	out.StorageLocator = newKey
	out.DisplayName = name
	uc.logger.WithContext(ctx).Info("file renamed", zap.String("from", oldKey), zap.String("to", newKey))
	return out, nil
}

// checkTargetFree 目标 key 在对象存储和元数据库中都不能存在
func (uc *FileUseCase) checkTargetFree(ctx context.Context, owner Owner, key string) error {
	if _, err := uc.store.Head(ctx, key); err == nil {
		return ErrFileConflict
	} else if !errors.Is(err, ErrObjectNotFound) {
		return storageErr(err)
	}

	if _, err := uc.repo.GetByKey(ctx, owner.ID, key); err == nil {
		return ErrFileConflict
	} else if !errors.Is(err, ErrRecordNotFound) {
		return metadataErr(err)
	}
	return nil
}

// renameCopyOptions 复制时显式带上源对象的存储类型，
// 不指定时 CopyObject 会把目标写成 STANDARD。未恢复的归档对象不能复制
func (uc *FileUseCase) renameCopyOptions(ctx context.Context, key string) (CopyOptions, error) {
	info, err := uc.store.Head(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return CopyOptions{}, ErrFileNotFound
		}
		return CopyOptions{}, storageErr(err)
	}

	if IsArchived(info.StorageClass) && !info.Restored() {
		return CopyOptions{}, ErrFileArchived
	}

	storageClass := info.StorageClass
	if storageClass == "" {
		storageClass = StorageClassFor(TierStandard)
	}
	return CopyOptions{StorageClass: storageClass, ContentType: info.ContentType}, nil
}

// moveBack 把对象从 src 复制回 dst 并删除 src
func (uc *FileUseCase) moveBack(ctx context.Context, src, dst string, opts CopyOptions) error {
	if err := uc.store.Copy(ctx, src, dst, opts); err != nil {
		return err
	}
	return uc.store.Delete(ctx, src)
}
