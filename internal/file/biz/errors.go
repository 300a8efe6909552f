package biz

import "errors"

// 仓储/存储层返回的错误
var (
	ErrRecordNotFound    = errors.New("file record not found")
	ErrDuplicateKey      = errors.New("file record already exists")
	ErrObjectNotFound    = errors.New("object not found")
	ErrRestoreInProgress = errors.New("restore already in progress")
)

// 业务错误
var (
	ErrFileNotFound        = errors.New("file not found")
	ErrPendingNotFound     = errors.New("no pending upload for key")
	ErrUploadNotReceived   = errors.New("object has not been uploaded yet")
	ErrFileArchived        = errors.New("file is archived, restore it first")
	ErrFileConflict        = errors.New("file already exists")
	ErrInvalidFileName     = errors.New("invalid file name")
	ErrFileTooLarge        = errors.New("file too large")
	ErrInvalidSize         = errors.New("invalid file size")
	ErrInvalidPagination   = errors.New("invalid pagination parameters")
	ErrInvalidCursor       = errors.New("invalid cursor")
	ErrInvalidLocator      = errors.New("invalid file reference")
	ErrInvalidTier         = errors.New("invalid storage tier")
	ErrInvalidEmail        = errors.New("invalid email for storage namespace")
	ErrStorageUnavailable  = errors.New("object storage unavailable")
	ErrMetadataUnavailable = errors.New("metadata store unavailable")
	// ErrInconsistent 补偿失败，两个存储可能不一致
	ErrInconsistent = errors.New("file state may be inconsistent")
)
