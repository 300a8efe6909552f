package minio

import (
	"context"

	"github.com/minio/minio-go/v7"
)

// ListObjectsOptions represents options for listing one page of objects
type ListObjectsOptions struct {
	// Prefix filters objects by prefix
	Prefix string
	// StartAfter starts listing after this object key
	StartAfter string
	// MaxKeys bounds the page size (required, > 0)
	MaxKeys int
}

// ListObjects returns at most MaxKeys objects under Prefix, in key order,
// and whether more objects follow
func (c *Client) ListObjects(ctx context.Context, opts ListObjectsOptions) ([]ObjectInfo, bool, error) {
	if err := c.checkClosed(); err != nil {
		return nil, false, err
	}
	if opts.MaxKeys <= 0 {
		return nil, false, WrapError("ListObjects", ErrInvalidArgument, c.Bucket(), "")
	}

	// 提前退出时取消，避免后台 goroutine 泄漏
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	objects := make([]ObjectInfo, 0, opts.MaxKeys)
	for object := range c.client.ListObjects(ctx, c.Bucket(), minio.ListObjectsOptions{
		Prefix:     opts.Prefix,
		StartAfter: opts.StartAfter,
		Recursive:  true,
		MaxKeys:    opts.MaxKeys + 1,
	}) {
		if object.Err != nil {
			return nil, false, WrapError("ListObjects", object.Err, c.Bucket(), "")
		}
		// 目录占位对象
		if object.Key == "" || object.Key[len(object.Key)-1] == '/' {
			continue
		}
		if len(objects) == opts.MaxKeys {
			return objects, true, nil
		}
		objects = append(objects, toObjectInfo(object))
	}

	return objects, false, nil
}
