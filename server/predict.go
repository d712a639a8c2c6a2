package server

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/wyfcoding/smosvm/config"
	"github.com/wyfcoding/smosvm/logging"
	"github.com/wyfcoding/smosvm/metrics"
	"github.com/wyfcoding/smosvm/response"
	"github.com/wyfcoding/smosvm/storage"
	"github.com/wyfcoding/smosvm/tracing"
	"github.com/wyfcoding/smosvm/xerrors"
)

// PredictRequest 单条用 features，批量用 instances，二者只能给一个.
type PredictRequest struct {
	Features  []float64   `json:"features"`
	Instances [][]float64 `json:"instances" binding:"omitempty,dive,min=1"`
}

// PredictResponse 与请求顺序一致的预测结果.
type PredictResponse struct {
	Model       string       `json:"model"`
	Predictions []Prediction `json:"predictions"`
}

// PredictionService 持有当前模型并提供 HTTP 接口。模型替换是原子的，进行中的请求继续使用旧模型.
type PredictionService struct {
	current  atomic.Pointer[Model]
	store    atomic.Pointer[storage.ModelStore]
	training *metrics.TrainingMetrics
	logger   *logging.Logger
	maxBatch atomic.Int64
}

// NewPredictionService maxBatch <= 0 表示不限制批量大小.
func NewPredictionService(store *storage.ModelStore, m *metrics.Metrics, logger *logging.Logger, maxBatch int) *PredictionService {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &PredictionService{logger: logger}
	s.store.Store(store)
	if m != nil {
		s.training = m.Training
	}
	s.maxBatch.Store(int64(maxBatch))
	return s
}

// LoadModel 从存储加载 key 并替换当前模型；失败时保留旧模型.
func (s *PredictionService) LoadModel(ctx context.Context, key string) error {
	return tracing.Run(ctx, "server.load_model", func(ctx context.Context) error {
		store := s.store.Load()
		if store == nil {
			return xerrors.Detailf(xerrors.ErrInvalidConfig, "no model store configured")
		}
		b, err := store.Load(ctx, key)
		if err != nil {
			return err
		}
		m, err := NewModel(key, b)
		if err != nil {
			return err
		}
		s.SetModel(m)
		s.logger.InfoContext(ctx, "model loaded", "key", key, "kernel", m.classifier.Kernel().String(), "support_vectors", m.classifier.NumSupportVectors())
		return nil
	})
}

// SetModel 原子替换当前模型.
func (s *PredictionService) SetModel(m *Model) {
	s.current.Store(m)
}

// Model 当前模型，未加载时为 nil.
func (s *PredictionService) Model() *Model {
	return s.current.Load()
}

// Store 当前使用的模型存储.
func (s *PredictionService) Store() *storage.ModelStore {
	return s.store.Load()
}

// WatchConfig 配置热更新时同步批量上限。storage 段变化时先按新配置调整后端，
// 再从新后端加载 key；任一步失败都保留旧后端与旧模型.
func (s *PredictionService) WatchConfig(m *config.Manager) {
	m.OnReload(func(old, cur *config.Config) {
		s.maxBatch.Store(int64(cur.Server.HTTP.MaxBatch))
		if old != nil && old.Storage == cur.Storage {
			return
		}
		ctx := context.Background()
		var prev config.StorageConfig
		if old != nil {
			prev = old.Storage
		}
		if err := s.reconfigureStore(ctx, prev, cur.Storage); err != nil {
			s.logger.ErrorContext(ctx, "storage reload failed, keeping previous backend and model", "driver", cur.Storage.Driver, "error", err)
			return
		}
		if err := s.LoadModel(ctx, cur.Storage.Key); err != nil {
			s.logger.ErrorContext(ctx, "model reload failed, keeping previous model", "key", cur.Storage.Key, "error", err)
		}
	})
}

func (s *PredictionService) reconfigureStore(ctx context.Context, old, cur config.StorageConfig) error {
	store := s.store.Load()
	var current storage.Storage
	if store != nil {
		current = store.Backend()
	}
	backend, err := storage.Reconfigure(ctx, current, old, cur)
	if err != nil {
		return err
	}
	switch {
	case store == nil:
		s.store.Store(storage.NewModelStore(backend, s.logger.Logger))
	case backend != current:
		s.store.Store(store.WithBackend(backend))
		s.logger.InfoContext(ctx, "model storage switched", "driver", cur.Driver)
	}
	return nil
}

// Register 在 r 上注册业务路由.
func (s *PredictionService) Register(r gin.IRouter) {
	r.POST("/predict", s.Predict)
	r.GET("/model", s.ModelInfo)
}

// Predict POST /v1/predict
func (s *PredictionService) Predict(c *gin.Context) {
	m := s.Model()
	if m == nil {
		response.Error(c, xerrors.ErrNotTrained)
		return
	}

	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Error(c, xerrors.Detailf(xerrors.ErrBodyTooLarge, "body exceeds %d bytes", tooLarge.Limit))
			return
		}
		e := xerrors.Detailf(xerrors.ErrInvalidInput, "malformed request body")
		e.Cause = err
		response.Error(c, e)
		return
	}

	rows, err := s.rows(&req)
	if err != nil {
		response.Error(c, err)
		return
	}

	preds, err := m.Predict(rows)
	if err != nil {
		response.Error(c, err)
		return
	}

	classes := make([]float64, len(preds))
	for k, p := range preds {
		classes[k] = p.Class
	}
	s.training.ObservePredictions(m.classifier.Kernel().Name(), classes)
	tracing.AddTag(c.Request.Context(), "predict.batch_size", len(rows))

	response.Success(c, PredictResponse{Model: m.Key, Predictions: preds})
}

func (s *PredictionService) rows(req *PredictRequest) ([][]float64, error) {
	switch {
	case len(req.Features) > 0 && len(req.Instances) > 0:
		return nil, xerrors.Detailf(xerrors.ErrInvalidInput, "features and instances are mutually exclusive")
	case len(req.Features) > 0:
		return [][]float64{req.Features}, nil
	case len(req.Instances) == 0:
		return nil, xerrors.Detailf(xerrors.ErrEmptyData, "no features or instances given")
	}
	if limit := s.maxBatch.Load(); limit > 0 && int64(len(req.Instances)) > limit {
		return nil, xerrors.Detailf(xerrors.ErrInvalidInput, "batch of %d exceeds limit %d", len(req.Instances), limit)
	}
	return req.Instances, nil
}

// ModelInfo GET /v1/model
func (s *PredictionService) ModelInfo(c *gin.Context) {
	m := s.Model()
	if m == nil {
		response.Error(c, xerrors.ErrNotTrained)
		return
	}
	response.Success(c, m.Info())
}

// Health GET /healthz，未加载模型时返回 503.
func (s *PredictionService) Health(c *gin.Context) {
	if s.Model() == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "no model loaded"})
		return
	}
	response.SuccessWithRawData(c, gin.H{"status": "ok"})
}
