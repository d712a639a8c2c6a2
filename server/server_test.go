package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/smosvm/algorithm/svm"
	"github.com/wyfcoding/smosvm/config"
	"github.com/wyfcoding/smosvm/dataset"
	"github.com/wyfcoding/smosvm/limiter"
	"github.com/wyfcoding/smosvm/metrics"
	"github.com/wyfcoding/smosvm/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// saveBundle 训练 (1,1)/(-1,-1) 两点模型：f(x) = 0.5·(x1 + x2)，标签编码为 {0, 1}.
func saveBundle(t *testing.T, store *storage.ModelStore, key string) {
	t.Helper()
	c, err := svm.NewClassifier(svm.Linear(), svm.WithSeed(1))
	require.NoError(t, err)
	require.NoError(t, c.Train([][]float64{{1, 1}, {-1, -1}}, []float64{1, -1}))
	art, err := c.Artifact()
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), key, &storage.Bundle{
		Model:     art,
		Scaler:    &dataset.Scaler{Method: dataset.ScaleNone, Offset: []float64{0, 0}, Scale: []float64{1, 1}},
		Labels:    &dataset.LabelEncoding{Negative: 0, Positive: 1},
		CreatedAt: time.Now(),
	}))
}

type fixture struct {
	engine *gin.Engine
	svc    *PredictionService
	store  *storage.ModelStore
	cfg    *config.Config
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()
	backend, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := storage.NewModelStore(backend, nil)

	cfg := config.Default()
	cfg.Metrics.Enabled = true
	cfg.Server.HTTP.MaxBatch = 3
	if mutate != nil {
		mutate(cfg)
	}

	m := metrics.NewMetrics("server_test")
	svc := NewPredictionService(store, m, nil, cfg.Server.HTTP.MaxBatch)
	l, closeFn := limiter.New(cfg.Server.RateLimit)
	t.Cleanup(func() { _ = closeFn() })

	engine, err := NewEngine(cfg, svc, EngineDeps{Metrics: m, Limiter: l})
	require.NoError(t, err)
	return &fixture{engine: engine, svc: svc, store: store, cfg: cfg}
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
	Code int             `json:"code"`
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out))
	}
	return env
}

func TestNoModelLoaded(t *testing.T) {
	f := newFixture(t, nil)

	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusPreconditionFailed, f.do(http.MethodPost, "/v1/predict", PredictRequest{Features: []float64{1, 2}}).Code)
	assert.Equal(t, http.StatusPreconditionFailed, f.do(http.MethodGet, "/v1/model", nil).Code)

	err := f.svc.LoadModel(context.Background(), "missing.json")
	require.Error(t, err)
	assert.Nil(t, f.svc.Model())
}

func TestPredict(t *testing.T) {
	f := newFixture(t, nil)
	saveBundle(t, f.store, "model.json")
	require.NoError(t, f.svc.LoadModel(context.Background(), "model.json"))

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", nil).Code)

	w := f.do(http.MethodPost, "/v1/predict", PredictRequest{Features: []float64{2, -1}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var single PredictResponse
	decodeData(t, w, &single)
	require.Len(t, single.Predictions, 1)
	assert.Equal(t, "model.json", single.Model)
	assert.InDelta(t, 0.5, single.Predictions[0].Score, 1e-12)
	assert.Equal(t, 1.0, single.Predictions[0].Class)
	assert.Equal(t, 1.0, single.Predictions[0].Label)

	w = f.do(http.MethodPost, "/v1/predict", PredictRequest{Instances: [][]float64{{1, 1}, {-2, -3}, {0, 0}}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var batch PredictResponse
	decodeData(t, w, &batch)
	require.Len(t, batch.Predictions, 3)
	assert.Equal(t, []float64{1, 0, 1}, []float64{batch.Predictions[0].Label, batch.Predictions[1].Label, batch.Predictions[2].Label})
	assert.Equal(t, -1.0, batch.Predictions[1].Class)

	w = f.do(http.MethodGet, "/v1/model", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info Info
	decodeData(t, w, &info)
	assert.Equal(t, "model.json", info.Key)
	assert.Equal(t, 2, info.Dim)
	assert.Equal(t, 2, info.SupportVectors)
	assert.Equal(t, svm.KernelLinear, info.Kernel.Type)

	metricsBody := f.do(http.MethodGet, "/metrics", nil).Body.String()
	assert.Contains(t, metricsBody, `svm_predictions_total{kernel="linear",label="+1"} 3`)
	assert.Contains(t, metricsBody, `http_server_requests_total{method="POST",path="/v1/predict",status="200"} 2`)
}

func TestPredictRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	saveBundle(t, f.store, "model.json")
	require.NoError(t, f.svc.LoadModel(context.Background(), "model.json"))

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"empty", PredictRequest{}, http.StatusBadRequest},
		{"both forms", PredictRequest{Features: []float64{1, 1}, Instances: [][]float64{{1, 1}}}, http.StatusBadRequest},
		{"dim mismatch", PredictRequest{Features: []float64{1, 2, 3}}, http.StatusBadRequest},
		{"ragged batch", PredictRequest{Instances: [][]float64{{1, 1}, {1}}}, http.StatusBadRequest},
		{"empty row", PredictRequest{Instances: [][]float64{{}}}, http.StatusBadRequest},
		{"batch too large", PredictRequest{Instances: [][]float64{{1, 1}, {1, 1}, {1, 1}, {1, 1}}}, http.StatusBadRequest},
		{"not json", "features", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, "/v1/predict", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}
}

func TestRateLimitedPredict(t *testing.T) {
	f := newFixture(t, func(c *config.Config) {
		c.Server.RateLimit.Enabled = true
		c.Server.RateLimit.Rate = 0
		c.Server.RateLimit.Burst = 1
	})
	saveBundle(t, f.store, "model.json")
	require.NoError(t, f.svc.LoadModel(context.Background(), "model.json"))

	body := PredictRequest{Features: []float64{1, 1}}
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/v1/predict", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodPost, "/v1/predict", body).Code)
	// 健康检查不受限.
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", nil).Code)
}

func TestWatchConfigSwapsModel(t *testing.T) {
	dir := t.TempDir()
	backend, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	store := storage.NewModelStore(backend, nil)
	saveBundle(t, store, "v1.json")
	saveBundle(t, store, "v2.json")

	write := func(key string, maxBatch int) string {
		path := filepath.Join(dir, "config.toml")
		body := "[storage]\nkey = \"" + key + "\"\n[storage.local]\ndir = \"" + filepath.ToSlash(dir) + "\"\n" +
			"[server.http]\nmax_batch = " + strconv.Itoa(maxBatch) + "\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}

	m, err := config.Load(write("v1.json", 2))
	require.NoError(t, err)

	svc := NewPredictionService(store, nil, nil, m.Config().Server.HTTP.MaxBatch)
	require.NoError(t, svc.LoadModel(context.Background(), m.Config().Storage.Key))
	svc.WatchConfig(m)
	first := svc.Model()

	write("v1.json", 5)
	require.NoError(t, m.Reload())
	assert.Same(t, first, svc.Model())
	assert.Equal(t, int64(5), svc.maxBatch.Load())

	write("v2.json", 5)
	require.NoError(t, m.Reload())
	require.NotSame(t, first, svc.Model())
	assert.Equal(t, "v2.json", svc.Model().Key)

	// 新 key 不存在时保留旧模型.
	write("v3.json", 5)
	require.NoError(t, m.Reload())
	assert.Equal(t, "v2.json", svc.Model().Key)
}

func TestBodyTooLarge(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.Server.HTTP.MaxBodyBytes = 32 })
	saveBundle(t, f.store, "model.json")
	require.NoError(t, f.svc.LoadModel(context.Background(), "model.json"))

	big := PredictRequest{Instances: [][]float64{{1, 2}, {3, 4}, {5, 6}}}
	w := f.do(http.MethodPost, "/v1/predict", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, 413001, decodeData(t, w, nil).Code)

	// 未声明长度的请求在读取时被截断
	body, err := json.Marshal(big)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/v1/predict", bytes.NewReader(body))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestWatchConfigSwitchesStorage(t *testing.T) {
	dirA, dirB := t.TempDir(), t.TempDir()
	backendA, err := storage.NewLocalStorage(dirA)
	require.NoError(t, err)
	backendB, err := storage.NewLocalStorage(dirB)
	require.NoError(t, err)
	saveBundle(t, storage.NewModelStore(backendA, nil), "v1.json")
	saveBundle(t, storage.NewModelStore(backendB, nil), "v2.json")

	path := filepath.Join(t.TempDir(), "config.toml")
	write := func(dir, key string) {
		body := "[storage]\nkey = \"" + key + "\"\n[storage.local]\ndir = \"" + filepath.ToSlash(dir) + "\"\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	write(dirA, "v1.json")
	m, err := config.Load(path)
	require.NoError(t, err)

	svc := NewPredictionService(storage.NewModelStore(backendA, nil), nil, nil, 0)
	require.NoError(t, svc.LoadModel(context.Background(), "v1.json"))
	svc.WatchConfig(m)

	// 目录与 key 同时变化：先切换后端再加载.
	write(dirB, "v2.json")
	require.NoError(t, m.Reload())
	require.NotNil(t, svc.Model())
	assert.Equal(t, "v2.json", svc.Model().Key)
	local, ok := svc.Store().Backend().(*storage.LocalStorage)
	require.True(t, ok)
	assert.Equal(t, filepath.ToSlash(dirB), filepath.ToSlash(local.Dir()))

	// 新目录里没有该 key：后端已切换，继续服务旧模型.
	write(dirA, "v2.json")
	require.NoError(t, m.Reload())
	assert.Equal(t, "v2.json", svc.Model().Key)
	assert.Equal(t, filepath.ToSlash(dirA), filepath.ToSlash(svc.Store().Backend().(*storage.LocalStorage).Dir()))
}
