package svm

import (
	"errors"
	stdmath "math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wyfcoding/smosvm/xerrors"
)

// separable 两个相距较远的网格簇，+1 在 (3,3) 附近，-1 在 (-3,-3) 附近.
func separable() ([][]float64, []float64) {
	var x [][]float64
	var y []float64
	for i := range 4 {
		for j := range 3 {
			dx, dy := float64(i)*0.4, float64(j)*0.4
			x = append(x, []float64{3 + dx, 3 + dy})
			y = append(y, 1)
			x = append(x, []float64{-3 - dx, -3 - dy})
			y = append(y, -1)
		}
	}
	return x, y
}

// noisy 带重叠的随机样本.
func noisy(seed uint64, n int) ([][]float64, []float64) {
	r := rand.New(rand.NewPCG(seed, seed+1))
	x := make([][]float64, n)
	y := make([]float64, n)
	for k := range n {
		label := 1.0
		if k%2 == 1 {
			label = -1
		}
		x[k] = []float64{label*0.5 + r.NormFloat64(), label*0.5 + r.NormFloat64(), r.NormFloat64()}
		y[k] = label
	}
	return x, y
}

func TestOptimizerInvalidConfig(t *testing.T) {
	cases := []Option{
		WithC(0),
		WithC(-1),
		WithC(stdmath.NaN()),
		WithMaxIterations(0),
		WithTolerance(0),
		WithEpsilon(-1),
		WithMaxPairsPerRound(0),
		WithEarlyStop(-1, 3),
		WithInitialNoise(-0.1),
		WithBiasRule(BiasRule(7)),
	}
	for _, opt := range cases {
		_, err := NewOptimizer(Linear(), opt)
		assert.True(t, errors.Is(err, xerrors.ErrInvalidConfig))
	}

	_, err := NewOptimizer(Kernel{Type: KernelRBF})
	assert.True(t, errors.Is(err, xerrors.ErrInvalidKernel))
}

func TestOptimizeRejectsBadInput(t *testing.T) {
	o, err := NewOptimizer(Linear())
	require.NoError(t, err)

	_, err = o.Optimize([][]float64{{1}, {2}}, []float64{1})
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))

	_, err = o.Optimize([][]float64{{1}, {2}}, []float64{1, 0})
	assert.True(t, errors.Is(err, xerrors.ErrInvalidLabel))

	_, err = o.Optimize([][]float64{{1, 2}, {2}}, []float64{1, -1})
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))

	_, err = o.Optimize([][]float64{{1}, {stdmath.NaN()}}, []float64{1, -1})
	assert.True(t, errors.Is(err, xerrors.ErrInvalidInput))
}

func TestOptimizeDegenerate(t *testing.T) {
	o, err := NewOptimizer(Linear())
	require.NoError(t, err)

	res, err := o.Optimize(nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Degenerate)
	assert.Empty(t, res.Alphas)
	assert.Zero(t, res.Rounds)

	res, err = o.Optimize([][]float64{{1, 2}}, []float64{-1})
	require.NoError(t, err)
	assert.True(t, res.Degenerate)
	assert.Equal(t, []float64{0}, res.Alphas)
	assert.Equal(t, []float64{1}, res.Errors)
	assert.Zero(t, res.Bias)
}

func TestOptimizeTwoPointClosedForm(t *testing.T) {
	x := [][]float64{{1, 1}, {-1, -1}}
	y := []float64{1, -1}

	for _, rule := range []BiasRule{BiasTextbook, BiasReduced} {
		o, err := NewOptimizer(Linear(), WithBiasRule(rule), WithSeed(3))
		require.NoError(t, err)
		res, err := o.Optimize(x, y)
		require.NoError(t, err)

		assert.InDelta(t, 0.25, res.Alphas[0], 1e-12, rule.String())
		assert.InDelta(t, 0.25, res.Alphas[1], 1e-12, rule.String())
		assert.InDelta(t, 0, res.Bias, 1e-12, rule.String())
		assert.Equal(t, 1, res.AcceptedUpdates, rule.String())
		assert.True(t, res.EarlyStopped, rule.String())
	}
}

func TestOptimizeBoxAndEqualityConstraints(t *testing.T) {
	x, y := noisy(11, 40)
	const c = 0.5

	for _, opts := range [][]Option{
		{WithC(c), WithSeed(1)},
		{WithC(c), WithSeed(2), WithBiasRule(BiasReduced)},
		{WithC(c), WithSeed(3), WithEarlyStop(0, 0), WithMaxIterations(50)},
	} {
		o, err := NewOptimizer(mustRBF(t, 0.5), opts...)
		require.NoError(t, err)
		res, err := o.Optimize(x, y)
		require.NoError(t, err)

		var sum float64
		for k, a := range res.Alphas {
			assert.GreaterOrEqual(t, a, 0.0)
			assert.LessOrEqual(t, a, c)
			sum += a * y[k]
		}
		assert.InDelta(t, 0, sum, 1e-6)
	}
}

func TestOptimizeInitialNoiseStaysInBox(t *testing.T) {
	x, y := noisy(5, 20)
	o, err := NewOptimizer(Linear(), WithC(0.1), WithInitialNoise(1), WithSeed(9))
	require.NoError(t, err)
	res, err := o.Optimize(x, y)
	require.NoError(t, err)
	for _, a := range res.Alphas {
		assert.GreaterOrEqual(t, a, 0.0)
		assert.LessOrEqual(t, a, 0.1)
	}
}

func TestOptimizeErrorCacheMatchesOutputs(t *testing.T) {
	x, y := noisy(21, 30)
	kernel := mustPoly(t, 1, 2)
	o, err := NewOptimizer(kernel, WithC(2), WithSeed(4), WithMaxIterations(100))
	require.NoError(t, err)
	res, err := o.Optimize(x, y)
	require.NoError(t, err)

	for k := range x {
		f := res.Bias
		for m, a := range res.Alphas {
			v, err := kernel.Compute(x[m], x[k])
			require.NoError(t, err)
			f += a * y[m] * v
		}
		assert.InDelta(t, f-y[k], res.Errors[k], 1e-6)
	}
}

func TestOptimizeDeterministicWithSeed(t *testing.T) {
	x, y := noisy(8, 25)
	run := func() *Result {
		o, err := NewOptimizer(mustRBF(t, 1), WithSeed(77))
		require.NoError(t, err)
		res, err := o.Optimize(x, y)
		require.NoError(t, err)
		return res
	}
	a, b := run(), run()
	assert.Equal(t, a.Alphas, b.Alphas)
	assert.Equal(t, a.Bias, b.Bias)
	assert.Equal(t, a.Rounds, b.Rounds)
}

func TestOptimizeIncreasesDualObjective(t *testing.T) {
	x, y := separable()
	o, err := NewOptimizer(Linear(), WithSeed(5), WithMaxIterations(200))
	require.NoError(t, err)
	res, err := o.Optimize(x, y)
	require.NoError(t, err)
	require.Positive(t, res.AcceptedUpdates)

	w, err := DualObjective(Linear(), x, y, res.Alphas)
	require.NoError(t, err)
	assert.Greater(t, w, 0.0)

	_, err = DualObjective(Linear(), x, y, res.Alphas[1:])
	assert.True(t, errors.Is(err, xerrors.ErrDimMismatch))
}

func TestOptimizeEarlyStopDisabled(t *testing.T) {
	x := [][]float64{{1, 1}, {-1, -1}}
	y := []float64{1, -1}
	o, err := NewOptimizer(Linear(), WithEarlyStop(10, 0), WithMaxIterations(30))
	require.NoError(t, err)
	res, err := o.Optimize(x, y)
	require.NoError(t, err)
	assert.False(t, res.EarlyStopped)
	assert.Equal(t, 30, res.Rounds)
	assert.Equal(t, 60, res.AcceptedUpdates+res.SkippedUpdates)
}

func TestOptimizeDuplicatePointsSkipped(t *testing.T) {
	// 相同样本的 eta = 0，配对必须被跳过.
	x := [][]float64{{2, 2}, {2, 2}}
	y := []float64{1, -1}
	o, err := NewOptimizer(Linear(), WithMaxIterations(5), WithEarlyStop(0, 0))
	require.NoError(t, err)
	res, err := o.Optimize(x, y)
	require.NoError(t, err)
	assert.Zero(t, res.AcceptedUpdates)
	assert.Equal(t, []float64{0, 0}, res.Alphas)
}
