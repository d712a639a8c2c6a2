package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/wyfcoding/smosvm/xerrors"
)

// LocalStorage 把对象保存为目录下的文件，对象名中的 "/" 映射为子目录.
type LocalStorage struct {
	dir string
}

// NewLocalStorage 创建本地存储，目录不存在时自动创建.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.WrapInternal(err, "failed to create storage dir")
	}
	return &LocalStorage{dir: dir}, nil
}

// Dir 根目录.
func (s *LocalStorage) Dir() string {
	return s.dir
}

func (s *LocalStorage) path(objectName string) (string, error) {
	name := filepath.FromSlash(objectName)
	if !filepath.IsLocal(name) {
		return "", xerrors.Detailf(xerrors.ErrInvalidInput, "object name %q escapes storage dir", objectName)
	}
	return filepath.Join(s.dir, name), nil
}

// Upload 先写临时文件再 rename，读者不会看到写了一半的对象.
func (s *LocalStorage) Upload(ctx context.Context, objectName string, reader io.Reader, _ int64, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	target, err := s.path(objectName)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return xerrors.WrapInternal(err, "failed to create object dir")
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return xerrors.WrapInternal(err, "failed to create temp file")
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, reader); err != nil {
		tmp.Close()
		return xerrors.WrapInternal(err, "failed to write object")
	}
	if err := tmp.Close(); err != nil {
		return xerrors.WrapInternal(err, "failed to close object")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return xerrors.WrapInternal(err, "failed to commit object")
	}
	return nil
}

func (s *LocalStorage) Download(ctx context.Context, objectName string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	target, err := s.path(objectName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, xerrors.Detailf(xerrors.ErrModelNotFound, "object %q", objectName)
	}
	if err != nil {
		return nil, xerrors.WrapInternal(err, "failed to open object")
	}
	return f, nil
}

func (s *LocalStorage) Exists(_ context.Context, objectName string) (bool, error) {
	target, err := s.path(objectName)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(target)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, xerrors.WrapInternal(err, "failed to stat object")
	}
}

// Delete 对象不存在时视为成功.
func (s *LocalStorage) Delete(_ context.Context, objectName string) error {
	target, err := s.path(objectName)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return xerrors.WrapInternal(err, "failed to delete object")
	}
	return nil
}
