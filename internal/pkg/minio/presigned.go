package minio

import (
	"context"
	"net/url"
	"time"
)

// PresignedGetObject generates a presigned URL for HTTP GET operations
func (c *Client) PresignedGetObject(ctx context.Context, objectName string, expiry time.Duration, reqParams url.Values) (*url.URL, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if err := ValidateObjectName(objectName); err != nil {
		return nil, WrapError("PresignedGetObject", ErrInvalidObjectName, c.Bucket(), objectName)
	}

	u, err := c.client.PresignedGetObject(ctx, c.Bucket(), objectName, expiry, reqParams)
	if err != nil {
		return nil, WrapError("PresignedGetObject", err, c.Bucket(), objectName)
	}
	return u, nil
}

// PresignedPutObject generates a presigned URL for HTTP PUT operations
func (c *Client) PresignedPutObject(ctx context.Context, objectName string, expiry time.Duration) (*url.URL, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if err := ValidateObjectName(objectName); err != nil {
		return nil, WrapError("PresignedPutObject", ErrInvalidObjectName, c.Bucket(), objectName)
	}

	u, err := c.client.PresignedPutObject(ctx, c.Bucket(), objectName, expiry)
	if err != nil {
		return nil, WrapError("PresignedPutObject", err, c.Bucket(), objectName)
	}
	return u, nil
}
