// Package storage 持久化训练产物，提供本地目录与 MinIO/S3 两种后端.
package storage

import (
	"context"
	"io"

	"github.com/wyfcoding/smosvm/config"
	"github.com/wyfcoding/smosvm/xerrors"
)

// Storage 定义了对象存储的通用接口，支持多驱动扩展。
// 对象不存在时 Download 返回 xerrors.ErrModelNotFound.
type Storage interface {
	// Upload 上传对象，size 为 -1 表示未知长度
	Upload(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) error

	// Download 下载对象，调用方负责 Close
	Download(ctx context.Context, objectName string) (io.ReadCloser, error)

	// Exists 检查对象是否存在
	Exists(ctx context.Context, objectName string) (bool, error)

	// Delete 删除对象
	Delete(ctx context.Context, objectName string) error
}

// New 按配置中的 driver 创建存储后端.
func New(ctx context.Context, cfg config.StorageConfig) (Storage, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocalStorage(cfg.Local.Dir)
	case "minio":
		client, err := NewMinIOClient(cfg.Minio)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, xerrors.Detailf(xerrors.ErrInvalidConfig, "unknown storage driver %q", cfg.Driver)
	}
}

// Reconfigure 按新配置调整后端。后端参数（driver、local、minio）未变时原样返回 current；
// driver 不变且为 MinIO 时原地刷新客户端；其余情况按 cur 新建后端。
// 返回错误时调用方继续使用 current.
func Reconfigure(ctx context.Context, current Storage, old, cur config.StorageConfig) (Storage, error) {
	if current != nil && old.Driver == cur.Driver && old.Local == cur.Local && old.Minio == cur.Minio {
		return current, nil
	}
	if client, ok := current.(*MinIOClient); ok && old.Driver == cur.Driver {
		if err := client.UpdateConfig(cur.Minio); err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return client, nil
	}
	return New(ctx, cur)
}
