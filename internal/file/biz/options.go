package biz

import "time"

// Options 文件模块运行参数，由 conf.FilesConfig 转换
type Options struct {
	MaxUploadSize    int64
	PresignExpiry    time.Duration
	MetadataTTL      time.Duration // 元数据快照可信窗口
	MaxPerPage       int
	DefaultPerPage   int
	ReconcileWorkers int // 单次列表请求内并发 HEAD 上限
	PersistOrphans   bool
	RestoreDays      int
	BackfillRounds   int
}

// DefaultOptions 默认参数
func DefaultOptions() *Options {
	return &Options{
		MaxUploadSize:    800 << 20,
		PresignExpiry:    time.Hour,
		MetadataTTL:      time.Hour,
		MaxPerPage:       1000,
		DefaultPerPage:   50,
		ReconcileWorkers: 10,
		PersistOrphans:   false,
		RestoreDays:      1,
		BackfillRounds:   1,
	}
}

// normalize 补齐零值
func (o *Options) normalize() *Options {
	d := DefaultOptions()
	if o == nil {
		return d
	}
	cp := *o
	if cp.MaxUploadSize <= 0 {
		cp.MaxUploadSize = d.MaxUploadSize
	}
	if cp.PresignExpiry <= 0 {
		cp.PresignExpiry = d.PresignExpiry
	}
	if cp.MetadataTTL <= 0 {
		cp.MetadataTTL = d.MetadataTTL
	}
	if cp.MaxPerPage <= 0 {
		cp.MaxPerPage = d.MaxPerPage
	}
	if cp.DefaultPerPage <= 0 || cp.DefaultPerPage > cp.MaxPerPage {
		cp.DefaultPerPage = min(d.DefaultPerPage, cp.MaxPerPage)
	}
	if cp.ReconcileWorkers <= 0 {
		cp.ReconcileWorkers = d.ReconcileWorkers
	}
	if cp.RestoreDays <= 0 {
		cp.RestoreDays = d.RestoreDays
	}
	if cp.BackfillRounds < 0 {
		cp.BackfillRounds = 0
	}
	return &cp
}

// FileView 返回给客户端的文件条目
type FileView struct {
	FileName     string       `json:"file_name"`
	Key          string       `json:"key"`
	ID           string       `json:"id,omitempty"`
	Metadata     MetadataView `json:"metadata"`
	UploadStatus UploadStatus `json:"upload_status"`
	LastModified time.Time    `json:"last_modified"`
	ExistsInDB   bool         `json:"exists_in_db"`
}

// MetadataView 文件元数据
type MetadataView struct {
	Tier        Tier   `json:"tier"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// NewFileView FileRecord => FileView
func NewFileView(rec *FileRecord) FileView {
	return FileView{
		FileName: rec.DisplayName,
		Key:      rec.Key,
		ID:       rec.ID,
		Metadata: MetadataView{
			Tier:        rec.Metadata.Tier,
			Size:        rec.Metadata.Size,
			ContentType: rec.Metadata.ContentType,
		},
		UploadStatus: rec.UploadStatus,
		LastModified: rec.LastModified.UTC(),
		ExistsInDB:   rec.ExistsInDB,
	}
}

// PagePayload 列表响应，同时也是缓存内容
type PagePayload struct {
	Files      []FileView `json:"files"`
	Total      int64      `json:"total"`
	TotalPages int        `json:"total_pages"`
	Page       int        `json:"page"`
	PerPage    int        `json:"per_page"`
	NextCursor string     `json:"next_cursor,omitempty"`
}
