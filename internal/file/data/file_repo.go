package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lk2023060901/file-vault-backend/internal/file/biz"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	pkgmongo "github.com/lk2023060901/file-vault-backend/internal/pkg/mongo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// FilePO files 集合文档
type FilePO struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Owner          string             `bson:"owner"`
	Key            string             `bson:"key"`
	DisplayName    string             `bson:"display_name"`
	StorageLocator string             `bson:"storage_locator"`
	Tier           string             `bson:"tier"`
	Size           int64              `bson:"size"`
	ContentType    string             `bson:"content_type"`
	CachedAt       *time.Time         `bson:"cached_at,omitempty"`
	Extra          bson.M             `bson:"extra,omitempty"` // 仅存在于元数据库的字段
	UploadStatus   string             `bson:"upload_status"`
	CreatedAt      time.Time          `bson:"created_at"`
	LastModified   time.Time          `bson:"last_modified"`
}

// FileRepo MongoDB 实现的 biz.FileRepo
type FileRepo struct {
	client *pkgmongo.Client
	coll   *mongo.Collection
	logger *logger.Logger
}

// NewFileRepo 创建文件仓储
func NewFileRepo(client *pkgmongo.Client, log *logger.Logger) *FileRepo {
	return &FileRepo{
		client: client,
		coll:   client.Collection(client.Config().FilesCollection),
		logger: log.Named("file_repo"),
	}
}

// EnsureIndexes 创建唯一索引 (owner, key) 和列表排序索引
func (r *FileRepo) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := r.client.WithTimeout(ctx)
	defer cancel()

	names, err := r.coll.Indexes().CreateMany(ctx, fileIndexes())
	if err != nil {
		return fmt.Errorf("failed to create file indexes: %w", err)
	}
	r.logger.Info("file indexes ensured", zap.Strings("indexes", names))
	return nil
}

func fileIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "owner", Value: 1}, {Key: "key", Value: 1}},
			Options: options.Index().SetName("uniq_owner_key").SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "owner", Value: 1},
				{Key: "upload_status", Value: 1},
				{Key: "last_modified", Value: -1},
				{Key: "_id", Value: -1},
			},
			Options: options.Index().SetName("idx_owner_status_last_modified"),
		},
		{
			Keys:    bson.D{{Key: "key", Value: 1}},
			Options: options.Index().SetName("idx_key"),
		},
	}
}

// Create 写入新记录，成功后回填 rec.ID
func (r *FileRepo) Create(ctx context.Context, rec *biz.FileRecord) error {
	ctx, cancel := r.client.WithTimeout(ctx)
	defer cancel()

	po := fromBiz(rec)
	po.ID = primitive.NewObjectID()

	if _, err := r.coll.InsertOne(ctx, po); err != nil {
		if pkgmongo.IsDuplicateKey(err) {
			return biz.ErrDuplicateKey
		}
		return fmt.Errorf("insert file: %w", err)
	}
	rec.ID = po.ID.Hex()
	rec.ExistsInDB = true
	return nil
}

// GetByKey 按 (owner, key) 查询
func (r *FileRepo) GetByKey(ctx context.Context, owner, key string) (*biz.FileRecord, error) {
	return r.findOne(ctx, bson.M{"owner": owner, "key": key})
}

// GetByID 按记录 id 查询，id 格式错误按不存在处理
func (r *FileRepo) GetByID(ctx context.Context, owner, id string) (*biz.FileRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, biz.ErrRecordNotFound
	}
	return r.findOne(ctx, bson.M{"_id": oid, "owner": owner})
}

// KeyOwner 按 key 查询持有者，不限 owner
func (r *FileRepo) KeyOwner(ctx context.Context, key string) (string, error) {
	ctx, cancel := r.client.WithTimeout(ctx)
	defer cancel()

	var po struct {
		Owner string `bson:"owner"`
	}
	opts := options.FindOne().SetProjection(bson.M{"owner": 1})
	if err := r.coll.FindOne(ctx, bson.M{"key": key}, opts).Decode(&po); err != nil {
		if pkgmongo.IsNotFound(err) {
			return "", biz.ErrRecordNotFound
		}
		return "", fmt.Errorf("find key owner: %w", err)
	}
	return po.Owner, nil
}

func (r *FileRepo) findOne(ctx context.Context, filter bson.M) (*biz.FileRecord, error) {
	ctx, cancel := r.client.WithTimeout(ctx)
	defer cancel()

	var po FilePO
	if err := r.coll.FindOne(ctx, filter).Decode(&po); err != nil {
		if pkgmongo.IsNotFound(err) {
			return nil, biz.ErrRecordNotFound
		}
		return nil, fmt.Errorf("find file: %w", err)
	}
	return toBiz(&po), nil
}

// FindByKeys 批量按 key 查询，返回 key => 记录
func (r *FileRepo) FindByKeys(ctx context.Context, owner string, keys []string) (map[string]*biz.FileRecord, error) {
	out := make(map[string]*biz.FileRecord, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	ctx, cancel := r.client.WithTimeout(ctx)
	defer cancel()

	cur, err := r.coll.Find(ctx, bson.M{"owner": owner, "key": bson.M{"$in": keys}})
	if err != nil {
		return nil, fmt.Errorf("find files by keys: %w", err)
	}
	var pos []FilePO
	if err := cur.All(ctx, &pos); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}
	for i := range pos {
		rec := toBiz(&pos[i])
		out[rec.Key] = rec
	}
	return out, nil
}

// Count 统计 owner 下指定状态的记录数
func (r *FileRepo) Count(ctx context.Context, owner string, status biz.UploadStatus) (int64, error) {
	ctx, cancel := r.client.WithTimeout(ctx)
	defer cancel()

	n, err := r.coll.CountDocuments(ctx, bson.M{"owner": owner, "upload_status": string(status)})
	if err != nil {
		return 0, fmt.Errorf("count files: %w", err)
	}
	return n, nil
}

// List 按 last_modified desc, _id desc 分页
func (r *FileRepo) List(ctx context.Context, q biz.ListQuery) ([]*biz.FileRecord, error) {
	ctx, cancel := r.client.WithTimeout(ctx)
	defer cancel()

	cur, err := r.coll.Find(ctx, listFilter(q), listOptions(q))
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	var pos []FilePO
	if err := cur.All(ctx, &pos); err != nil {
		return nil, fmt.Errorf("decode files: %w", err)
	}

	out := make([]*biz.FileRecord, 0, len(pos))
	for i := range pos {
		out = append(out, toBiz(&pos[i]))
	}
	return out, nil
}

func listFilter(q biz.ListQuery) bson.M {
	filter := bson.M{"owner": q.Owner, "upload_status": string(q.Status)}
	if q.After == nil {
		return filter
	}

	before := bson.M{"last_modified": bson.M{"$lt": q.After.LastModified}}
	oid, err := primitive.ObjectIDFromHex(q.After.ID)
	if err != nil {
		filter["$or"] = bson.A{before}
		return filter
	}
	filter["$or"] = bson.A{
		before,
		bson.M{"last_modified": q.After.LastModified, "_id": bson.M{"$lt": oid}},
	}
	return filter
}

func listOptions(q biz.ListQuery) *options.FindOptions {
	opts := options.Find().SetSort(bson.D{
		{Key: "last_modified", Value: -1},
		{Key: "_id", Value: -1},
	})
	if q.Skip > 0 {
		opts.SetSkip(q.Skip)
	}
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	return opts
}

// MarkComplete pending => complete
func (r *FileRepo) MarkComplete(ctx context.Context, owner, key string, info *biz.ObjectInfo, now time.Time) (*biz.FileRecord, error) {
	ctx, cancel := r.client.WithTimeout(ctx)
	defer cancel()

	filter := bson.M{"owner": owner, "key": key, "upload_status": string(biz.StatusPending)}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var po FilePO
	err := r.coll.FindOneAndUpdate(ctx, filter, bson.M{"$set": completeUpdate(info, now)}, opts).Decode(&po)
	if err != nil {
		if pkgmongo.IsNotFound(err) {
			return nil, biz.ErrRecordNotFound
		}
		return nil, fmt.Errorf("complete file: %w", err)
	}
	return toBiz(&po), nil
}

// UpdatePending 只更新仍为 pending 的记录
func (r *FileRepo) UpdatePending(ctx context.Context, owner, key string, size int64, contentType string, now time.Time) (*biz.FileRecord, error) {
	ctx, cancel := r.client.WithTimeout(ctx)
	defer cancel()

	filter := bson.M{"owner": owner, "key": key, "upload_status": string(biz.StatusPending)}
	update := bson.M{"$set": bson.M{
		"size":          size,
		"content_type":  contentType,
		"last_modified": now.UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var po FilePO
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&po); err != nil {
		if pkgmongo.IsNotFound(err) {
			return nil, biz.ErrRecordNotFound
		}
		return nil, fmt.Errorf("update pending file: %w", err)
	}
	return toBiz(&po), nil
}

func completeUpdate(info *biz.ObjectInfo, now time.Time) bson.M {
	set := bson.M{
		"upload_status": string(biz.StatusComplete),
		"last_modified": now,
	}
	if info == nil {
		return set
	}

	set["size"] = info.Size
	set["tier"] = string(biz.MapTier(info.StorageClass, info.RestoreOngoing))
	set["cached_at"] = now
	if info.ContentType != "" {
		set["content_type"] = info.ContentType
	}
	if !info.LastModified.IsZero() {
		set["last_modified"] = info.LastModified.UTC()
	}
	return set
}

// UpdateSnapshot 写回对象存储得到的字段，extra 保持不变
func (r *FileRepo) UpdateSnapshot(ctx context.Context, owner, key string, meta biz.FileMetadata, lastModified time.Time) error {
	set := bson.M{
		"tier":          string(meta.Tier),
		"size":          meta.Size,
		"content_type":  meta.ContentType,
		"last_modified": lastModified.UTC(),
	}
	if meta.CachedAt != nil {
		set["cached_at"] = meta.CachedAt.UTC()
	}
	return r.updateOne(ctx, owner, key, bson.M{"$set": set})
}

// UpdateTier 只更新层级
func (r *FileRepo) UpdateTier(ctx context.Context, owner, key string, tier biz.Tier) error {
	return r.updateOne(ctx, owner, key, bson.M{"$set": bson.M{"tier": string(tier)}})
}

// UpdateKey 重命名
func (r *FileRepo) UpdateKey(ctx context.Context, owner, oldKey, newKey, displayName string) error {
	return r.updateOne(ctx, owner, oldKey, bson.M{"$set": bson.M{
		"key":             newKey,
		"storage_locator": newKey,
		"display_name":    displayName,
	}})
}

func (r *FileRepo) updateOne(ctx context.Context, owner, key string, update bson.M) error {
	ctx, cancel := r.client.WithTimeout(ctx)
	defer cancel()

	res, err := r.coll.UpdateOne(ctx, bson.M{"owner": owner, "key": key}, update)
	if err != nil {
		if pkgmongo.IsDuplicateKey(err) {
			return biz.ErrDuplicateKey
		}
		return fmt.Errorf("update file: %w", err)
	}
	if res.MatchedCount == 0 {
		return biz.ErrRecordNotFound
	}
	return nil
}

// UpsertOrphan 仅在 (owner, key) 不存在时插入
func (r *FileRepo) UpsertOrphan(ctx context.Context, rec *biz.FileRecord) error {
	ctx, cancel := r.client.WithTimeout(ctx)
	defer cancel()

	po := fromBiz(rec)
	doc := bson.M{
		"display_name":    po.DisplayName,
		"storage_locator": po.StorageLocator,
		"tier":            po.Tier,
		"size":            po.Size,
		"content_type":    po.ContentType,
		"upload_status":   po.UploadStatus,
		"created_at":      po.CreatedAt,
		"last_modified":   po.LastModified,
	}

	_, err := r.coll.UpdateOne(ctx,
		bson.M{"owner": rec.Owner, "key": rec.Key},
		bson.M{"$setOnInsert": doc},
		options.Update().SetUpsert(true),
	)
	// 并发 upsert 撞上唯一索引说明记录已经存在
	if err != nil && !pkgmongo.IsDuplicateKey(err) {
		return fmt.Errorf("upsert orphan: %w", err)
	}
	return nil
}

// Delete 删除记录，不存在返回 ErrRecordNotFound
func (r *FileRepo) Delete(ctx context.Context, owner, key string) error {
	ctx, cancel := r.client.WithTimeout(ctx)
	defer cancel()

	res, err := r.coll.DeleteOne(ctx, bson.M{"owner": owner, "key": key})
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if res.DeletedCount == 0 {
		return biz.ErrRecordNotFound
	}
	return nil
}

// Ping 健康检查
func (r *FileRepo) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx); err != nil {
		return errors.Join(biz.ErrMetadataUnavailable, err)
	}
	return nil
}

func fromBiz(rec *biz.FileRecord) *FilePO {
	po := &FilePO{
		Owner:          rec.Owner,
		Key:            rec.Key,
		DisplayName:    rec.DisplayName,
		StorageLocator: rec.StorageLocator,
		Tier:           string(rec.Metadata.Tier),
		Size:           rec.Metadata.Size,
		ContentType:    rec.Metadata.ContentType,
		UploadStatus:   string(rec.UploadStatus),
		CreatedAt:      rec.CreatedAt.UTC(),
		LastModified:   rec.LastModified.UTC(),
	}
	if oid, err := primitive.ObjectIDFromHex(rec.ID); err == nil {
		po.ID = oid
	}
	if po.StorageLocator == "" {
		po.StorageLocator = rec.Key
	}
	if po.Tier == "" {
		po.Tier = string(biz.TierStandard)
	}
	if rec.Metadata.CachedAt != nil {
		t := rec.Metadata.CachedAt.UTC()
		po.CachedAt = &t
	}
	if len(rec.Metadata.Extra) > 0 {
		po.Extra = bson.M(rec.Metadata.Extra)
	}
	return po
}

func toBiz(po *FilePO) *biz.FileRecord {
	rec := &biz.FileRecord{
		ID:             po.ID.Hex(),
		Key:            po.Key,
		Owner:          po.Owner,
		DisplayName:    po.DisplayName,
		StorageLocator: po.StorageLocator,
		Metadata: biz.FileMetadata{
			Tier:        biz.Tier(po.Tier),
			Size:        po.Size,
			ContentType: po.ContentType,
		},
		UploadStatus: biz.UploadStatus(po.UploadStatus),
		CreatedAt:    po.CreatedAt.UTC(),
		LastModified: po.LastModified.UTC(),
		ExistsInDB:   true,
	}
	if rec.StorageLocator == "" {
		rec.StorageLocator = rec.Key
	}
	if rec.DisplayName == "" {
		rec.DisplayName = biz.DisplayNameFromKey(rec.Key)
	}
	if rec.Metadata.Tier == "" {
		rec.Metadata.Tier = biz.TierStandard
	}
	if po.CachedAt != nil {
		t := po.CachedAt.UTC()
		rec.Metadata.CachedAt = &t
	}
	if len(po.Extra) > 0 {
		rec.Metadata.Extra = map[string]interface{}(po.Extra)
	}
	return rec
}
