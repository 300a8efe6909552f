package data

import (
	"context"
	"fmt"
	"mime"
	"net/url"
	"time"

	"github.com/lk2023060901/file-vault-backend/internal/file/biz"
	pkgminio "github.com/lk2023060901/file-vault-backend/internal/pkg/minio"
)

// MinioStore 基于 minio-go 的 biz.ObjectStore
type MinioStore struct {
	client *pkgminio.Client
}

// NewMinioStore 创建 MinIO 对象存储适配器
func NewMinioStore(client *pkgminio.Client) *MinioStore {
	return &MinioStore{client: client}
}

// Head 获取对象信息
func (s *MinioStore) Head(ctx context.Context, key string) (*biz.ObjectInfo, error) {
	info, err := s.client.StatObject(ctx, key)
	if err != nil {
		return nil, classifyMinio(err)
	}
	out := fromMinioInfo(info)
	return &out, nil
}

// List 按前缀分页列出对象，token 为上一页最后一个 key
func (s *MinioStore) List(ctx context.Context, prefix, token string, maxKeys int) (*biz.ObjectPage, error) {
	objects, more, err := s.client.ListObjects(ctx, pkgminio.ListObjectsOptions{
		Prefix:     prefix,
		StartAfter: token,
		MaxKeys:    maxKeys,
	})
	if err != nil {
		return nil, classifyMinio(err)
	}

	page := &biz.ObjectPage{Items: make([]biz.ObjectInfo, 0, len(objects))}
	for _, o := range objects {
		page.Items = append(page.Items, fromMinioInfo(o))
	}
	if more && len(objects) > 0 {
		page.NextToken = objects[len(objects)-1].Key
	}
	return page, nil
}

// PresignPut 预签名上传 URL
func (s *MinioStore) PresignPut(ctx context.Context, key, _ string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, key, expiry)
	if err != nil {
		return "", classifyMinio(err)
	}
	return u.String(), nil
}

// PresignGet 预签名下载 URL，带 Content-Disposition
func (s *MinioStore) PresignGet(ctx context.Context, key, fileName string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, key, expiry, downloadParams(fileName))
	if err != nil {
		return "", classifyMinio(err)
	}
	return u.String(), nil
}

// Copy 复制对象，src == dst 且指定 StorageClass 时为原地变更存储类型
func (s *MinioStore) Copy(ctx context.Context, src, dst string, opts biz.CopyOptions) error {
	err := s.client.CopyObject(ctx, src, dst, pkgminio.CopyOptions{
		StorageClass: opts.StorageClass,
		ContentType:  opts.ContentType,
	})
	return classifyMinio(err)
}

// Delete 删除对象
func (s *MinioStore) Delete(ctx context.Context, key string) error {
	return classifyMinio(s.client.RemoveObject(ctx, key))
}

// Restore 发起归档恢复
func (s *MinioStore) Restore(ctx context.Context, key string, days int) error {
	err := s.client.RestoreObject(ctx, key, days)
	if pkgminio.IsRestoreInProgress(err) {
		return biz.ErrRestoreInProgress
	}
	return classifyMinio(err)
}

// Ping 健康检查
func (s *MinioStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func classifyMinio(err error) error {
	if err == nil {
		return nil
	}
	if pkgminio.IsNotFound(err) {
		return fmt.Errorf("%w: %v", biz.ErrObjectNotFound, err)
	}
	return err
}

func fromMinioInfo(o pkgminio.ObjectInfo) biz.ObjectInfo {
	return biz.ObjectInfo{
		Key:            o.Key,
		Size:           o.Size,
		ContentType:    o.ContentType,
		StorageClass:   o.StorageClass,
		LastModified:   o.LastModified.UTC(),
		RestoreOngoing: o.RestoreOngoing,
		RestoreExpiry:  o.RestoreExpiry,
	}
}

// downloadParams 让浏览器以原文件名保存
func downloadParams(fileName string) url.Values {
	params := url.Values{}
	if fileName == "" {
		return params
	}
	params.Set("response-content-disposition", attachment(fileName))
	return params
}

func attachment(fileName string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": fileName})
}
