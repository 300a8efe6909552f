package service

import (
	"errors"

	"github.com/lk2023060901/file-vault-backend/internal/file/biz"
	apperrors "github.com/lk2023060901/file-vault-backend/internal/pkg/errors"
)

// errorCodes biz 错误 => 业务错误码，按顺序匹配
var errorCodes = []struct {
	err  error
	code int
}{
	{biz.ErrInconsistent, apperrors.ErrFileInconsistent},
	{biz.ErrFileNotFound, apperrors.ErrFileNotFound},
	{biz.ErrPendingNotFound, apperrors.ErrFileNotPending},
	{biz.ErrUploadNotReceived, apperrors.ErrFileNotUploaded},
	{biz.ErrFileArchived, apperrors.ErrFileArchived},
	{biz.ErrFileConflict, apperrors.ErrFileConflict},
	{biz.ErrInvalidFileName, apperrors.ErrFileInvalidName},
	{biz.ErrFileTooLarge, apperrors.ErrFileTooLarge},
	{biz.ErrInvalidSize, apperrors.ErrInvalidParams},
	{biz.ErrInvalidPagination, apperrors.ErrInvalidParams},
	{biz.ErrInvalidEmail, apperrors.ErrInvalidParams},
	{biz.ErrInvalidCursor, apperrors.ErrFileInvalidCursor},
	{biz.ErrInvalidLocator, apperrors.ErrFileInvalidLocator},
	{biz.ErrInvalidTier, apperrors.ErrFileInvalidTier},
	{biz.ErrStorageUnavailable, apperrors.ErrFileStorageUnavailable},
	{biz.ErrMetadataUnavailable, apperrors.ErrFileMetadataUnavail},
}

// toAppError 转换为带错误码的 AppError，未知错误按 500 处理
func toAppError(err error) *apperrors.AppError {
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return apperrors.Wrap(err, m.code)
		}
	}
	return apperrors.Wrap(err, apperrors.ErrInternalServer)
}
