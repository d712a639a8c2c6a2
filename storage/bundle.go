package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/wyfcoding/smosvm/algorithm/svm"
	"github.com/wyfcoding/smosvm/dataset"
	"github.com/wyfcoding/smosvm/evaluation"
	"github.com/wyfcoding/smosvm/xerrors"
)

const bundleContentType = "application/json"

// Bundle 一次训练的完整产物：模型本体，以及推理时必须复现的特征缩放与标签映射.
type Bundle struct {
	Model     *svm.Artifact          `json:"model"`
	Scaler    *dataset.Scaler        `json:"scaler,omitempty"`
	Labels    *dataset.LabelEncoding `json:"labels,omitempty"`
	Report    *evaluation.Report     `json:"report,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// Validate 检查模型自洽，且缩放器的列数与模型输入维度一致.
func (b *Bundle) Validate() error {
	if b == nil || b.Model == nil {
		return xerrors.Detailf(xerrors.ErrEmptyData, "bundle has no model")
	}
	if err := b.Model.Validate(); err != nil {
		return err
	}
	if b.Scaler != nil && b.Model.Dim >= 0 && len(b.Scaler.Scale) != b.Model.Dim {
		return xerrors.Detailf(xerrors.ErrDimMismatch, "scaler has %d columns, model expects %d", len(b.Scaler.Scale), b.Model.Dim)
	}
	if b.Scaler != nil && len(b.Scaler.Offset) != len(b.Scaler.Scale) {
		return xerrors.Detailf(xerrors.ErrInvalidInput, "scaler offset and scale lengths differ")
	}
	return nil
}

// Classifier 恢复为可预测的分类器.
func (b *Bundle) Classifier() (*svm.Classifier, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return svm.FromArtifact(b.Model)
}

// ModelStore 以 JSON 形式在任意 Storage 上保存与读取 Bundle.
type ModelStore struct {
	backend Storage
	logger  *slog.Logger
}

// NewModelStore 创建 ModelStore，logger 为空时使用 slog 默认值.
func NewModelStore(backend Storage, logger *slog.Logger) *ModelStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModelStore{backend: backend, logger: logger}
}

// Backend 底层存储后端.
func (s *ModelStore) Backend() Storage {
	return s.backend
}

// WithBackend 换用另一个后端，logger 不变.
func (s *ModelStore) WithBackend(backend Storage) *ModelStore {
	return &ModelStore{backend: backend, logger: s.logger}
}

// Save 序列化并上传，key 已存在时覆盖.
func (s *ModelStore) Save(ctx context.Context, key string, b *Bundle) error {
	if err := b.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return xerrors.WrapInternal(err, "failed to encode model bundle")
	}
	if err := s.backend.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), bundleContentType); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "model bundle saved", "key", key, "bytes", len(data), "support_vectors", len(b.Model.SupportVectors))
	return nil
}

// Load 下载并校验；不存在时返回 xerrors.ErrModelNotFound.
func (s *ModelStore) Load(ctx context.Context, key string) (*Bundle, error) {
	rc, err := s.backend.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var b Bundle
	if err := json.NewDecoder(rc).Decode(&b); err != nil {
		e := xerrors.Detailf(xerrors.ErrInvalidInput, "bundle %q is not valid json", key)
		e.Cause = err
		return nil, e
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}
