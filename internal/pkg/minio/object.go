package minio

import (
	"context"
	"time"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

const storageClassHeader = "X-Amz-Storage-Class"

// ObjectInfo represents object information
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
	ContentType  string
	StorageClass string

	// RestoreOngoing is true while an archive restore is running
	RestoreOngoing bool
	// RestoreExpiry is when a finished restore copy expires (zero if none)
	RestoreExpiry time.Time
}

// CopyOptions controls CopyObject
type CopyOptions struct {
	// StorageClass rewrites the destination storage class (e.g. "GLACIER").
	// Empty keeps the source class and metadata.
	StorageClass string
	// ContentType is carried over when metadata is replaced
	ContentType string
}

func toObjectInfo(info minio.ObjectInfo) ObjectInfo {
	oi := ObjectInfo{
		Key:          info.Key,
		Size:         info.Size,
		ETag:         info.ETag,
		LastModified: info.LastModified,
		ContentType:  info.ContentType,
		StorageClass: info.StorageClass,
	}
	if info.Restore != nil {
		oi.RestoreOngoing = info.Restore.OngoingRestore
		oi.RestoreExpiry = info.Restore.ExpiryTime
	}
	return oi
}

// StatObject returns object metadata without reading its body
func (c *Client) StatObject(ctx context.Context, objectName string) (ObjectInfo, error) {
	if err := c.checkClosed(); err != nil {
		return ObjectInfo{}, err
	}
	if err := ValidateObjectName(objectName); err != nil {
		return ObjectInfo{}, WrapError("StatObject", ErrInvalidObjectName, c.Bucket(), objectName)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	info, err := c.client.StatObject(ctx, c.Bucket(), objectName, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, WrapError("StatObject", err, c.Bucket(), objectName)
	}

	return toObjectInfo(info), nil
}

// CopyObject copies src to dst inside the bucket. src == dst with a
// StorageClass set changes the class in place.
func (c *Client) CopyObject(ctx context.Context, src, dst string, opts CopyOptions) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	if ValidateObjectName(src) != nil || ValidateObjectName(dst) != nil {
		return WrapError("CopyObject", ErrInvalidObjectName, c.Bucket(), dst)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	dstOpts := minio.CopyDestOptions{
		Bucket: c.Bucket(),
		Object: dst,
	}
	if opts.StorageClass != "" {
		// REPLACE 会丢弃原有元数据，Content-Type 需要一起带上
		meta := map[string]string{storageClassHeader: opts.StorageClass}
		if opts.ContentType != "" {
			meta["Content-Type"] = opts.ContentType
		}
		dstOpts.UserMetadata = meta
		dstOpts.ReplaceMetadata = true
	}

	_, err := c.client.CopyObject(ctx, dstOpts, minio.CopySrcOptions{
		Bucket: c.Bucket(),
		Object: src,
	})
	if err != nil {
		return WrapError("CopyObject", err, c.Bucket(), dst)
	}

	c.logger.Debug("object copied",
		zap.String("src", src),
		zap.String("dst", dst),
		zap.String("storage_class", opts.StorageClass),
	)
	return nil
}

// RemoveObject deletes an object. Deleting a missing key is not an error.
func (c *Client) RemoveObject(ctx context.Context, objectName string) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	if err := ValidateObjectName(objectName); err != nil {
		return WrapError("RemoveObject", ErrInvalidObjectName, c.Bucket(), objectName)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if err := c.client.RemoveObject(ctx, c.Bucket(), objectName, minio.RemoveObjectOptions{}); err != nil {
		return WrapError("RemoveObject", err, c.Bucket(), objectName)
	}
	return nil
}

// RestoreObject asks the store to bring an archived object back for days
// days using the standard retrieval tier
func (c *Client) RestoreObject(ctx context.Context, objectName string, days int) error {
	if err := c.checkClosed(); err != nil {
		return err
	}
	if err := ValidateObjectName(objectName); err != nil {
		return WrapError("RestoreObject", ErrInvalidObjectName, c.Bucket(), objectName)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req := minio.RestoreRequest{}
	req.SetDays(days)
	req.SetGlacierJobParameters(minio.GlacierJobParameters{Tier: minio.TierStandard})

	if err := c.client.RestoreObject(ctx, c.Bucket(), objectName, "", req); err != nil {
		return WrapError("RestoreObject", err, c.Bucket(), objectName)
	}

	c.logger.Info("object restore requested", zap.String("object", objectName), zap.Int("days", days))
	return nil
}
