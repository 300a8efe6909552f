package biz

import (
	"context"
	"time"
)

// Tier 存储层级
type Tier string

const (
	TierStandard    Tier = "standard"
	TierGlacier     Tier = "glacier"
	TierUnarchiving Tier = "unarchiving" // 归档恢复中
)

// UploadStatus 上传状态
type UploadStatus string

const (
	StatusPending  UploadStatus = "pending"  // 已签发上传 URL，未确认
	StatusComplete UploadStatus = "complete" // 对象已确认存在
)

// FileMetadata 文件元数据快照
type FileMetadata struct {
	Tier        Tier
	Size        int64
	ContentType string
	CachedAt    *time.Time // 最近一次从对象存储刷新的时间

	// Extra 仅存在于元数据库的字段，合并时保留
	Extra map[string]interface{}
}

// FileRecord 文件元数据记录
type FileRecord struct {
	ID             string
	Key            string // <namespace>/<file name>，(Owner, Key) 全局唯一
	Owner          string // 用户 ID
	DisplayName    string
	StorageLocator string // bucket 内路径
	Metadata       FileMetadata
	UploadStatus   UploadStatus
	CreatedAt      time.Time
	LastModified   time.Time

	// ExistsInDB 为 false 表示对象存储中有但元数据库中没有（孤儿对象）
	ExistsInDB bool
}

// Clone 深拷贝，reconciler 不修改调用方持有的记录
func (r *FileRecord) Clone() *FileRecord {
	cp := *r
	if r.Metadata.CachedAt != nil {
		t := *r.Metadata.CachedAt
		cp.Metadata.CachedAt = &t
	}
	if r.Metadata.Extra != nil {
		cp.Metadata.Extra = make(map[string]interface{}, len(r.Metadata.Extra))
		for k, v := range r.Metadata.Extra {
			cp.Metadata.Extra[k] = v
		}
	}
	return &cp
}

// Owner 请求者身份，由 token 解析得到
type Owner struct {
	ID        string
	Email     string
	Namespace string // 存储 key 前缀，例如 alice-example
}

// ObjectInfo 对象存储 HEAD/LIST 返回的信息
type ObjectInfo struct {
	Key            string
	Size           int64
	ContentType    string // LIST 结果中为空
	StorageClass   string
	LastModified   time.Time
	RestoreOngoing bool
	RestoreExpiry  time.Time // 恢复副本过期时间，非零表示已恢复
}

// Restored 归档对象的临时副本是否可读
func (o *ObjectInfo) Restored() bool {
	return !o.RestoreOngoing && !o.RestoreExpiry.IsZero()
}

// ObjectPage 对象存储分页结果
type ObjectPage struct {
	Items     []ObjectInfo
	NextToken string // 空表示没有更多
}

// CopyOptions 复制选项
type CopyOptions struct {
	StorageClass string // 为空时保留原存储类型和元数据
	ContentType  string
}

// ListQuery 元数据库分页查询
type ListQuery struct {
	Owner  string
	Status UploadStatus
	Skip   int64
	Limit  int64
	// After 非空时只返回排序在该位置之后的记录（游标模式）
	After *Boundary
}

// Boundary 排序位置：lastModified desc, id desc
type Boundary struct {
	LastModified time.Time
	ID           string
}

// FileRepo 元数据仓储接口
type FileRepo interface {
	Create(ctx context.Context, rec *FileRecord) error
	GetByKey(ctx context.Context, owner, key string) (*FileRecord, error)
	GetByID(ctx context.Context, owner, id string) (*FileRecord, error)
	// KeyOwner 任意用户名下持有该 key 的记录的 owner，没有时返回 ErrRecordNotFound
	KeyOwner(ctx context.Context, key string) (string, error)
	FindByKeys(ctx context.Context, owner string, keys []string) (map[string]*FileRecord, error)
	Count(ctx context.Context, owner string, status UploadStatus) (int64, error)
	List(ctx context.Context, q ListQuery) ([]*FileRecord, error)
	// MarkComplete 将 pending 记录置为 complete；info 非空时一并写入对象信息
	MarkComplete(ctx context.Context, owner, key string, info *ObjectInfo, now time.Time) (*FileRecord, error)
	// UpdatePending 重新签发上传时更新 pending 记录的大小和类型
	UpdatePending(ctx context.Context, owner, key string, size int64, contentType string, now time.Time) (*FileRecord, error)
	UpdateSnapshot(ctx context.Context, owner, key string, meta FileMetadata, lastModified time.Time) error
	UpdateTier(ctx context.Context, owner, key string, tier Tier) error
	UpdateKey(ctx context.Context, owner, oldKey, newKey, displayName string) error
	// UpsertOrphan 仅在记录不存在时插入
	UpsertOrphan(ctx context.Context, rec *FileRecord) error
	Delete(ctx context.Context, owner, key string) error
}

// ObjectStore 对象存储接口
type ObjectStore interface {
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	List(ctx context.Context, prefix, token string, maxKeys int) (*ObjectPage, error)
	PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error)
	PresignGet(ctx context.Context, key, fileName string, expiry time.Duration) (string, error)
	Copy(ctx context.Context, src, dst string, opts CopyOptions) error
	Delete(ctx context.Context, key string) error
	Restore(ctx context.Context, key string, days int) error
}

// ListCache 列表缓存（CacheEntry），按 (user, page, perPage) 缓存
type ListCache interface {
	Get(ctx context.Context, owner string, page, perPage int) (*PagePayload, bool, error)
	Set(ctx context.Context, owner string, page, perPage int, payload *PagePayload) error
	Invalidate(ctx context.Context, owner string) error
}

// RestoreQueue 归档恢复完成后的收尾任务队列
type RestoreQueue interface {
	Enqueue(ctx context.Context, owner, key string) error
}

// TaskRunner 协程池（workerpool.Pool 实现）
type TaskRunner interface {
	Submit(task func()) error
	Batch(ctx context.Context, n, limit int, fn func(ctx context.Context, i int)) error
}
