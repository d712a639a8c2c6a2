package evaluation

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/smosvm/algorithm/svm"
	"github.com/wyfcoding/smosvm/metrics"
	"github.com/wyfcoding/smosvm/xerrors"
)

func TestBinaryMetrics(t *testing.T) {
	tests := []struct {
		name      string
		yTrue     []float64
		yPred     []float64
		accuracy  float64
		precision float64
		recall    float64
		f1        float64
	}{
		{
			name:  "perfect",
			yTrue: []float64{1, -1, 1, -1},
			yPred: []float64{1, -1, 1, -1},
			accuracy: 1, precision: 1, recall: 1, f1: 1,
		},
		{
			name:  "mixed",
			yTrue: []float64{1, 1, 1, -1, -1},
			yPred: []float64{1, 1, -1, 1, -1},
			accuracy: 0.6, precision: 2.0 / 3, recall: 2.0 / 3, f1: 2.0 / 3,
		},
		{
			name:     "no positive predictions",
			yTrue:    []float64{1, -1},
			yPred:    []float64{-1, -1},
			accuracy: 0.5,
		},
		{
			name: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := Accuracy(tt.yTrue, tt.yPred)
			require.NoError(t, err)
			assert.InDelta(t, tt.accuracy, acc, 1e-12)

			p, err := Precision(tt.yTrue, tt.yPred, Positive)
			require.NoError(t, err)
			assert.InDelta(t, tt.precision, p, 1e-12)

			r, err := Recall(tt.yTrue, tt.yPred, Positive)
			require.NoError(t, err)
			assert.InDelta(t, tt.recall, r, 1e-12)

			f, err := F1(tt.yTrue, tt.yPred, Positive)
			require.NoError(t, err)
			assert.InDelta(t, tt.f1, f, 1e-12)
		})
	}
}

func TestConfusionMatrix(t *testing.T) {
	c, err := ConfusionMatrix([]float64{1, 1, 1, -1, -1}, []float64{1, 1, -1, 1, -1}, Positive)
	require.NoError(t, err)
	assert.Equal(t, 1, c.TN())
	assert.Equal(t, 1, c.FP())
	assert.Equal(t, 1, c.FN())
	assert.Equal(t, 2, c.TP())
	assert.Equal(t, 5, c.Total())
	assert.Equal(t, "[[TN=1 FP=1] [FN=1 TP=2]]", c.String())

	_, err = ConfusionMatrix([]float64{1}, nil, Positive)
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))
	_, err = Accuracy([]float64{1}, nil)
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))
}

type constPredictor struct {
	label float64
	err   error
}

func (p constPredictor) PredictBatch(x [][]float64) ([]float64, error) {
	if p.err != nil {
		return nil, p.err
	}
	out := make([]float64, len(x))
	for k := range out {
		out[k] = p.label
	}
	return out, nil
}

func TestEvaluate(t *testing.T) {
	x := [][]float64{{0}, {1}, {2}, {3}}
	y := []float64{1, 1, 1, -1}

	report, err := Evaluate(context.Background(), constPredictor{label: 1}, x, y)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Samples)
	assert.InDelta(t, 0.75, report.Accuracy, 1e-12)
	assert.InDelta(t, 0.75, report.Precision, 1e-12)
	assert.InDelta(t, 1, report.Recall, 1e-12)
	assert.Equal(t, 3, report.Confusion.TP())

	_, err = Evaluate(context.Background(), constPredictor{label: 1}, x, y[:2])
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))

	boom := errors.New("boom")
	_, err = Evaluate(context.Background(), constPredictor{err: boom}, x, y)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Evaluate(ctx, constPredictor{label: 1}, x, y)
	assert.ErrorIs(t, err, context.Canceled)
}

func blobs() ([][]float64, []float64) {
	x := [][]float64{
		{3, 3}, {3.5, 2.5}, {2.5, 3.5}, {4, 3}, {3, 4}, {2.8, 3.2},
		{-3, -3}, {-3.5, -2.5}, {-2.5, -3.5}, {-4, -3}, {-3, -4}, {-2.8, -3.2},
	}
	y := []float64{1, 1, 1, 1, 1, 1, -1, -1, -1, -1, -1, -1}
	return x, y
}

func TestGrid(t *testing.T) {
	rbf, err := svm.RBF(0.5)
	require.NoError(t, err)

	grid := Grid([]float64{0.1, 1}, []svm.Kernel{svm.Linear(), rbf})
	require.Len(t, grid, 4)
	assert.Equal(t, Candidate{C: 0.1, Kernel: svm.Linear()}, grid[0])
	assert.Equal(t, Candidate{C: 0.1, Kernel: rbf}, grid[1])
	assert.Equal(t, Candidate{C: 1, Kernel: rbf}, grid[3])
	assert.Empty(t, Grid(nil, []svm.Kernel{rbf}))
}

func TestTunerSweep(t *testing.T) {
	x, y := blobs()
	rbf, err := svm.RBF(0.5)
	require.NoError(t, err)
	candidates := Grid([]float64{0.5, 1, 10}, []svm.Kernel{svm.Linear(), rbf})

	m := metrics.NewMetrics("tuner_test").Training
	tuner := NewTuner(
		WithParallelism(3),
		WithMetrics(m),
		WithTrainOptions(svm.WithSeed(9), svm.WithMaxIterations(100), svm.WithEarlyStop(0, 0)),
	)

	res, err := tuner.Sweep(context.Background(), x, y, x, y, candidates)
	require.NoError(t, err)
	require.Len(t, res.Trials, len(candidates))
	require.NotNil(t, res.Best)

	for k, tr := range res.Trials {
		require.NoError(t, tr.Err)
		assert.Equal(t, candidates[k], tr.Candidate)
		assert.Equal(t, candidates[k].C, tr.Model.C())
		assert.True(t, tr.Model.Trained())
	}
	assert.Positive(t, testutil.ToFloat64(m.AcceptedUpdates.WithLabelValues("linear")))
	assert.InDelta(t, 1, testutil.ToFloat64(m.ValidationAccuracy.WithLabelValues("rbf", "10")), 1e-12)

	// 线性可分数据上所有候选都能全对，平局时第一个胜出.
	assert.InDelta(t, 1, res.Best.Accuracy, 1e-12)
	assert.Equal(t, candidates[0], res.Best.Candidate)

	again, err := tuner.Sweep(context.Background(), x, y, x, y, candidates)
	require.NoError(t, err)
	for k := range res.Trials {
		assert.Equal(t, res.Trials[k].Model.Bias(), again.Trials[k].Model.Bias())
	}
}

func TestTunerSweepErrors(t *testing.T) {
	x, y := blobs()
	tuner := NewTuner()

	_, err := tuner.Sweep(context.Background(), x, y, x, y, nil)
	assert.True(t, errors.Is(err, xerrors.ErrInvalidConfig))

	// 非法 C 的候选单独失败，不影响其余候选.
	res, err := tuner.Sweep(context.Background(), x, y, x, y, []Candidate{
		{C: -1, Kernel: svm.Linear()},
		{C: 1, Kernel: svm.Linear()},
	})
	require.NoError(t, err)
	assert.True(t, errors.Is(res.Trials[0].Err, xerrors.ErrInvalidConfig))
	assert.Same(t, &res.Trials[1], res.Best)

	bad := make([]float64, len(y))
	_, err = tuner.Sweep(context.Background(), x, bad, x, y, []Candidate{{C: 1, Kernel: svm.Linear()}})
	assert.True(t, errors.Is(err, xerrors.ErrInvalidLabel))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = tuner.Sweep(ctx, x, y, x, y, []Candidate{{C: 1, Kernel: svm.Linear()}})
	assert.ErrorIs(t, err, context.Canceled)
}
