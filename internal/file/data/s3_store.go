package data

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/lk2023060901/file-vault-backend/internal/file/biz"
)

// S3Options AWS S3（或兼容服务）连接参数
type S3Options struct {
	Bucket    string
	Region    string
	Endpoint  string // 为空使用 AWS 默认端点
	AccessKey string
	SecretKey string
	PathStyle bool
}

// S3Store 基于 aws-sdk-go-v2 的 biz.ObjectStore
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// NewS3Store 创建 S3 对象存储适配器
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  opts.Bucket,
	}, nil
}

// Head 获取对象信息
func (s *S3Store) Head(ctx context.Context, key string) (*biz.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, classifyS3(err)
	}

	info := &biz.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		StorageClass: string(out.StorageClass),
		LastModified: aws.ToTime(out.LastModified).UTC(),
	}
	info.RestoreOngoing, info.RestoreExpiry = parseRestoreHeader(aws.ToString(out.Restore))
	return info, nil
}

// List 按前缀分页列出对象，token 为 S3 continuation token
func (s *S3Store) List(ctx context.Context, prefix, token string, maxKeys int) (*biz.ObjectPage, error) {
	in := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(int32(maxKeys)),
		// 列表结果带上恢复状态，否则恢复中的对象只能显示为 glacier
		OptionalObjectAttributes: []types.OptionalObjectAttributes{
			types.OptionalObjectAttributesRestoreStatus,
		},
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}

	out, err := s.client.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, classifyS3(err)
	}

	page := &biz.ObjectPage{Items: make([]biz.ObjectInfo, 0, len(out.Contents))}
	for _, obj := range out.Contents {
		key := aws.ToString(obj.Key)
		if key == "" || strings.HasSuffix(key, "/") {
			continue
		}
		item := biz.ObjectInfo{
			Key:          key,
			Size:         aws.ToInt64(obj.Size),
			StorageClass: string(obj.StorageClass),
			LastModified: aws.ToTime(obj.LastModified).UTC(),
		}
		if rs := obj.RestoreStatus; rs != nil {
			item.RestoreOngoing = aws.ToBool(rs.IsRestoreInProgress)
			item.RestoreExpiry = aws.ToTime(rs.RestoreExpiryDate)
		}
		page.Items = append(page.Items, item)
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

// PresignPut 预签名上传 URL，签名包含 Content-Type
func (s *S3Store) PresignPut(ctx context.Context, key, contentType string, expiry time.Duration) (string, error) {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}

	req, err := s.presign.PresignPutObject(ctx, in, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", classifyS3(err)
	}
	return req.URL, nil
}

// PresignGet 预签名下载 URL
func (s *S3Store) PresignGet(ctx context.Context, key, fileName string, expiry time.Duration) (string, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if fileName != "" {
		in.ResponseContentDisposition = aws.String(attachment(fileName))
	}

	req, err := s.presign.PresignGetObject(ctx, in, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", classifyS3(err)
	}
	return req.URL, nil
}

// Copy 复制对象；指定 StorageClass 时替换元数据并带上 Content-Type
func (s *S3Store) Copy(ctx context.Context, src, dst string, opts biz.CopyOptions) error {
	in := &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(copySource(s.bucket, src)),
	}
	if opts.StorageClass != "" {
		in.StorageClass = types.StorageClass(opts.StorageClass)
		in.MetadataDirective = types.MetadataDirectiveReplace
		if opts.ContentType != "" {
			in.ContentType = aws.String(opts.ContentType)
		}
	}

	_, err := s.client.CopyObject(ctx, in)
	return classifyS3(err)
}

// Delete 删除对象
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return classifyS3(err)
}

// Restore 以 Standard 检索层发起归档恢复
func (s *S3Store) Restore(ctx context.Context, key string, days int) error {
	_, err := s.client.RestoreObject(ctx, &s3.RestoreObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		RestoreRequest: &types.RestoreRequest{
			Days: aws.Int32(int32(days)),
			GlacierJobParameters: &types.GlacierJobParameters{
				Tier: types.TierStandard,
			},
		},
	})
	return classifyS3(err)
}

// Ping 健康检查
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return bucket + "/" + strings.Join(segments, "/")
}

func classifyS3(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return fmt.Errorf("%w: %v", biz.ErrObjectNotFound, err)
		case "RestoreAlreadyInProgress":
			return biz.ErrRestoreInProgress
		}
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return fmt.Errorf("%w: %v", biz.ErrObjectNotFound, err)
	}
	return err
}

var (
	restoreOngoingRe = regexp.MustCompile(`(?i)ongoing-request\s*=\s*"([^"]*)"`)
	restoreExpiryRe  = regexp.MustCompile(`(?i)expiry-date\s*=\s*"([^"]+)"`)
)

// parseRestoreHeader 解析 x-amz-restore：
//
//	ongoing-request="true"
//	ongoing-request="false", expiry-date="Fri, 21 Dec 2012 00:00:00 GMT"
//
// expiry-date 的值本身带逗号，按引号取值
func parseRestoreHeader(v string) (bool, time.Time) {
	if v == "" {
		return false, time.Time{}
	}

	var ongoing bool
	if m := restoreOngoingRe.FindStringSubmatch(v); m != nil {
		ongoing = strings.EqualFold(m[1], "true")
	}

	var expiry time.Time
	if m := restoreExpiryRe.FindStringSubmatch(v); m != nil {
		if t, err := http.ParseTime(m[1]); err == nil {
			expiry = t.UTC()
		}
	}
	return ongoing, expiry
}
