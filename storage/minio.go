package storage

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/wyfcoding/smosvm/config"
	"github.com/wyfcoding/smosvm/xerrors"
)

// MinIOClient 实现了 Storage 接口，对接 MinIO 或 S3 兼容存储系统。
type MinIOClient struct {
	mu     sync.RWMutex
	client *minio.Client
	bucket string
	region string
}

// NewMinIOClient 构造一个新的 MinIO 存储驱动，不会主动连接服务端.
func NewMinIOClient(cfg config.MinioConfig) (*MinIOClient, error) {
	client, err := newMinioClient(cfg)
	if err != nil {
		return nil, err
	}

	slog.Info("minio_client initialized", "endpoint", cfg.Endpoint, "bucket", cfg.BucketName)

	return &MinIOClient{
		client: client,
		bucket: cfg.BucketName,
		region: cfg.Region,
	}, nil
}

func (c *MinIOClient) snapshot() (*minio.Client, string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.client, c.bucket
}

// EnsureBucket 存储桶不存在时创建.
func (c *MinIOClient) EnsureBucket(ctx context.Context) error {
	client, bucket := c.snapshot()
	ok, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return xerrors.Wrap(err, xerrors.ErrUnavailable, "minio bucket check failed")
	}
	if ok {
		return nil
	}
	c.mu.RLock()
	region := c.region
	c.mu.RUnlock()
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return xerrors.Wrap(err, xerrors.ErrUnavailable, "minio bucket creation failed")
	}
	slog.Info("minio bucket created", "bucket", bucket)
	return nil
}

// Upload 将数据流上传至绑定的存储桶。
func (c *MinIOClient) Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error {
	client, bucket := c.snapshot()
	start := time.Now()
	_, err := client.PutObject(ctx, bucket, objectName, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		slog.Error("minio upload failed", "object", objectName, "error", err)
		return xerrors.Wrap(err, xerrors.ErrUnavailable, "minio upload failed")
	}
	slog.Debug("minio upload successful", "object", objectName, "duration", time.Since(start))
	return nil
}

// Download 先 Stat 再 Get，使缺失对象在调用处而不是首次 Read 时报错.
func (c *MinIOClient) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	client, bucket := c.snapshot()
	if _, err := client.StatObject(ctx, bucket, objectName, minio.StatObjectOptions{}); err != nil {
		if isNoSuchKey(err) {
			return nil, xerrors.Detailf(xerrors.ErrModelNotFound, "object %q in bucket %q", objectName, bucket)
		}
		return nil, xerrors.Wrap(err, xerrors.ErrUnavailable, "minio stat failed")
	}
	obj, err := client.GetObject(ctx, bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, xerrors.Wrap(err, xerrors.ErrUnavailable, "minio download failed")
	}
	return obj, nil
}

func (c *MinIOClient) Delete(ctx context.Context, objectName string) error {
	client, bucket := c.snapshot()
	if err := client.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return xerrors.Wrap(err, xerrors.ErrUnavailable, "minio delete failed")
	}
	return nil
}

// Exists 检查对象是否存在.
func (c *MinIOClient) Exists(ctx context.Context, objectName string) (bool, error) {
	client, bucket := c.snapshot()
	_, err := client.StatObject(ctx, bucket, objectName, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, xerrors.Wrap(err, xerrors.ErrUnavailable, "minio stat failed")
	}
	return true, nil
}

// UpdateConfig 使用最新配置刷新 MinIO 客户端。
func (c *MinIOClient) UpdateConfig(cfg config.MinioConfig) error {
	client, err := newMinioClient(cfg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.client = client
	c.bucket = cfg.BucketName
	c.region = cfg.Region
	c.mu.Unlock()

	slog.Info("minio client updated", "endpoint", cfg.Endpoint, "bucket", cfg.BucketName)

	return nil
}

func isNoSuchKey(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

func newMinioClient(cfg config.MinioConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		slog.Error("failed to create minio client", "endpoint", cfg.Endpoint, "error", err)
		return nil, xerrors.Wrap(err, xerrors.ErrInvalidArg, "failed to create minio client")
	}
	return client, nil
}
