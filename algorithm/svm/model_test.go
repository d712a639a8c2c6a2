package svm

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/smosvm/xerrors"
)

func trainedLinear(t *testing.T) (*Classifier, [][]float64, []float64) {
	t.Helper()
	x, y := separable()
	c, err := NewClassifier(Linear(), WithC(1), WithSeed(42), WithMaxIterations(200), WithEarlyStop(0, 0))
	require.NoError(t, err)
	require.NoError(t, c.Train(x, y))
	return c, x, y
}

func TestClassifierSeparableData(t *testing.T) {
	c, x, y := trainedLinear(t)

	for k, row := range x {
		got, err := c.Predict(row)
		require.NoError(t, err)
		assert.Equal(t, y[k], got, "row %d", k)
	}
	assert.Positive(t, c.NumSupportVectors())
	assert.LessOrEqual(t, c.NumSupportVectors(), len(x))

	p, err := c.Predict([]float64{10, 10})
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)
	p, err = c.Predict([]float64{-10, -8})
	require.NoError(t, err)
	assert.Equal(t, -1.0, p)
}

func TestClassifierFourPoints(t *testing.T) {
	x := [][]float64{{2, 2}, {3, 3}, {-2, -2}, {-3, -3}}
	y := []float64{1, 1, -1, -1}

	for seed := range uint64(5) {
		c, err := NewClassifier(Linear(), WithC(1), WithSeed(seed), WithMaxIterations(200), WithEarlyStop(0, 0))
		require.NoError(t, err)
		require.NoError(t, c.Train(x, y))

		preds, err := c.PredictBatch(x)
		require.NoError(t, err)
		assert.Equal(t, y, preds, "seed %d", seed)

		p, err := c.Predict([]float64{2.5, 2.5})
		require.NoError(t, err)
		assert.Equal(t, 1.0, p, "seed %d", seed)
		p, err = c.Predict([]float64{-2.5, -2.5})
		require.NoError(t, err)
		assert.Equal(t, -1.0, p, "seed %d", seed)
	}
}

func TestClassifierRBF(t *testing.T) {
	// 异或布局，线性不可分.
	x := [][]float64{{1, 1}, {-1, -1}, {1, -1}, {-1, 1}, {1.2, 0.9}, {-0.9, -1.1}, {1.1, -0.8}, {-1.2, 0.9}}
	y := []float64{1, 1, -1, -1, 1, 1, -1, -1}

	c, err := NewClassifier(mustRBF(t, 1), WithC(10), WithSeed(7), WithMaxIterations(500), WithEarlyStop(0, 0))
	require.NoError(t, err)
	require.NoError(t, c.Train(x, y))

	preds, err := c.PredictBatch(x)
	require.NoError(t, err)
	assert.Equal(t, y, preds)
}

func TestClassifierSupportVectorsSubset(t *testing.T) {
	c, x, y := trainedLinear(t)
	svs, err := c.SupportVectors()
	require.NoError(t, err)

	for _, sv := range svs {
		assert.Greater(t, sv.Alpha, DefaultSupportThreshold)
		assert.LessOrEqual(t, sv.Alpha, c.C())
		found := false
		for k := range x {
			if assert.ObjectsAreEqual(x[k], sv.Vector) && y[k] == sv.Label {
				found = true
				break
			}
		}
		assert.True(t, found)
	}

	// 返回的是拷贝.
	svs[0].Vector[0] = 1e9
	again, err := c.SupportVectors()
	require.NoError(t, err)
	assert.NotEqual(t, 1e9, again[0].Vector[0])
}

func TestClassifierBatchMatchesSingle(t *testing.T) {
	c, _, _ := trainedLinear(t)
	queries := [][]float64{{0, 0}, {1, -1}, {2.5, 3}, {-0.1, 0.2}, {-4, 1}}

	batch, err := c.PredictBatch(queries)
	require.NoError(t, err)
	scores, err := c.DecisionFunctionBatch(queries)
	require.NoError(t, err)
	require.Len(t, batch, len(queries))

	for k, q := range queries {
		p, err := c.Predict(q)
		require.NoError(t, err)
		assert.Equal(t, p, batch[k])

		f, err := c.DecisionFunction(q)
		require.NoError(t, err)
		assert.Equal(t, f, scores[k])
	}

	empty, err := c.PredictBatch(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClassifierNotTrained(t *testing.T) {
	c, err := NewClassifier(Linear())
	require.NoError(t, err)
	assert.False(t, c.Trained())

	_, err = c.Predict([]float64{1})
	assert.True(t, errors.Is(err, xerrors.ErrNotTrained))
	_, err = c.PredictBatch([][]float64{{1}})
	assert.True(t, errors.Is(err, xerrors.ErrNotTrained))
	_, err = c.SupportVectors()
	assert.True(t, errors.Is(err, xerrors.ErrNotTrained))
	_, err = c.WeightVector()
	assert.True(t, errors.Is(err, xerrors.ErrNotTrained))
	_, err = c.Artifact()
	assert.True(t, errors.Is(err, xerrors.ErrNotTrained))
}

func TestClassifierTrainOnce(t *testing.T) {
	c, x, y := trainedLinear(t)
	bias := c.Bias()

	err := c.Train(x, y)
	assert.True(t, errors.Is(err, xerrors.ErrAlreadyTrained))
	assert.Equal(t, bias, c.Bias())
}

func TestClassifierConcurrentTrain(t *testing.T) {
	x, y := separable()
	c, err := NewClassifier(Linear(), WithSeed(1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for k := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[k] = c.Train(x, y)
		}()
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, xerrors.ErrAlreadyTrained))
	}
	assert.Equal(t, 1, ok)
	assert.True(t, c.Trained())
}

func TestClassifierInvalidTrainInputKeepsUntrained(t *testing.T) {
	c, err := NewClassifier(Linear())
	require.NoError(t, err)

	err = c.Train([][]float64{{1}, {2}}, []float64{1, 2})
	assert.True(t, errors.Is(err, xerrors.ErrInvalidLabel))
	assert.False(t, c.Trained())

	require.NoError(t, c.Train([][]float64{{1}, {-1}}, []float64{1, -1}))
	assert.True(t, c.Trained())
}

func TestClassifierDimMismatch(t *testing.T) {
	c, _, _ := trainedLinear(t)
	assert.Equal(t, 2, c.Dim())

	_, err := c.Predict([]float64{1, 2, 3})
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))
	_, err = c.PredictBatch([][]float64{{1, 2}, {1}})
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))
}

func TestClassifierDegenerate(t *testing.T) {
	c, err := NewClassifier(Linear())
	require.NoError(t, err)
	require.NoError(t, c.Train(nil, nil))

	assert.True(t, c.Stats().Degenerate)
	assert.Equal(t, -1, c.Dim())
	assert.Zero(t, c.NumSupportVectors())
	p, err := c.Predict([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 1.0, p)

	one, err := NewClassifier(mustRBF(t, 1))
	require.NoError(t, err)
	require.NoError(t, one.Train([][]float64{{5, 5}}, []float64{-1}))
	assert.Equal(t, 2, one.Dim())
	f, err := one.DecisionFunction([]float64{0, 0})
	require.NoError(t, err)
	assert.Zero(t, f)
}

func TestClassifierWeightVector(t *testing.T) {
	c, err := NewClassifier(Linear(), WithSeed(3))
	require.NoError(t, err)
	require.NoError(t, c.Train([][]float64{{1, 1}, {-1, -1}}, []float64{1, -1}))

	w, err := c.WeightVector()
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.5, 0.5}, w, 1e-12)
	assert.InDelta(t, 0, c.Bias(), 1e-12)

	f, err := c.DecisionFunction([]float64{2, -1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, f, 1e-12)

	rbf, err := NewClassifier(mustRBF(t, 1))
	require.NoError(t, err)
	require.NoError(t, rbf.Train([][]float64{{1, 1}, {-1, -1}}, []float64{1, -1}))
	_, err = rbf.WeightVector()
	assert.True(t, errors.Is(err, xerrors.ErrUnsupportedKernel))
}

func TestArtifactRoundTrip(t *testing.T) {
	c, _, _ := trainedLinear(t)
	art, err := c.Artifact()
	require.NoError(t, err)

	data, err := json.Marshal(art)
	require.NoError(t, err)
	var decoded Artifact
	require.NoError(t, json.Unmarshal(data, &decoded))

	restored, err := FromArtifact(&decoded)
	require.NoError(t, err)
	assert.True(t, restored.Trained())
	assert.Equal(t, c.NumSupportVectors(), restored.NumSupportVectors())
	assert.Equal(t, c.Stats(), restored.Stats())

	for _, q := range [][]float64{{0.3, 0.1}, {-2, 5}, {4, 4}} {
		want, err := c.DecisionFunction(q)
		require.NoError(t, err)
		got, err := restored.DecisionFunction(q)
		require.NoError(t, err)
		assert.InDelta(t, want, got, 1e-12)
	}

	err = restored.Train([][]float64{{1, 1}, {-1, -1}}, []float64{1, -1})
	assert.True(t, errors.Is(err, xerrors.ErrAlreadyTrained))
}

func TestArtifactValidate(t *testing.T) {
	good := &Artifact{
		Version:        ArtifactVersion,
		Kernel:         Linear(),
		Dim:            2,
		SupportVectors: []SupportVector{{Vector: []float64{1, 2}, Label: 1, Alpha: 0.5}},
	}
	require.NoError(t, good.Validate())

	bad := *good
	bad.Version = 99
	assert.True(t, errors.Is(bad.Validate(), xerrors.ErrInvalidInput))

	bad = *good
	bad.SupportVectors = []SupportVector{{Vector: []float64{1}, Label: 1, Alpha: 0.5}}
	assert.True(t, errors.Is(bad.Validate(), xerrors.ErrDimMismatch))

	bad = *good
	bad.SupportVectors = []SupportVector{{Vector: []float64{1, 2}, Label: 0, Alpha: 0.5}}
	assert.True(t, errors.Is(bad.Validate(), xerrors.ErrInvalidLabel))

	bad = *good
	bad.Kernel = Kernel{Type: KernelPolynomial}
	assert.True(t, errors.Is(bad.Validate(), xerrors.ErrInvalidKernel))

	_, err := FromArtifact(nil)
	assert.True(t, errors.Is(err, xerrors.ErrEmptyData))
}
