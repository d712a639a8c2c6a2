package svm

import (
	stdmath "math"
	"math/rand/v2"

	"github.com/wyfcoding/smosvm/xerrors"
)

// BiasRule 偏置更新规则.
type BiasRule int

const (
	// BiasTextbook Platt 的双候选规则：alpha_i 非边界取 b1，否则 alpha_j 非边界取 b2，否则取二者均值。
	BiasTextbook BiasRule = iota
	// BiasReduced 只使用 b1 = b - E_i - y_i·Δα_i·K_ii - y_j·Δα_j·K_ij.
	BiasReduced
)

func (r BiasRule) String() string {
	if r == BiasReduced {
		return "reduced"
	}
	return "textbook"
}

// 默认参数.
const (
	DefaultC                = 1.0
	DefaultMaxIterations    = 1000
	DefaultTolerance        = 1e-5
	DefaultEpsilon          = 1e-8
	DefaultMaxPairsPerRound = 100
	DefaultMinAccepted      = 10
	DefaultPatience         = 5
	DefaultSupportThreshold = 1e-8
	DefaultSeed             = 42
)

type options struct {
	rng              *rand.Rand
	c                float64
	tolerance        float64
	epsilon          float64
	initialNoise     float64
	supportThreshold float64
	maxIterations    int
	maxPairsPerRound int
	minAccepted      int
	patience         int
	biasRule         BiasRule
}

// Option 定义优化器与分类器的配置选项.
type Option func(*options)

// WithC 设置正则化强度 C，必须为正。
func WithC(c float64) Option {
	return func(o *options) {
		o.c = c
	}
}

// WithMaxIterations 设置最大轮数.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		o.maxIterations = n
	}
}

// WithTolerance 设置 alpha_j 的最小有效步长，小于该值的更新被跳过.
func WithTolerance(tol float64) Option {
	return func(o *options) {
		o.tolerance = tol
	}
}

// WithEpsilon 设置 eta 符号判断与 0/C 边界比较使用的容差.
func WithEpsilon(eps float64) Option {
	return func(o *options) {
		o.epsilon = eps
	}
}

// WithMaxPairsPerRound 设置每轮尝试的配对数上限，实际为 min(n, max).
func WithMaxPairsPerRound(n int) Option {
	return func(o *options) {
		o.maxPairsPerRound = n
	}
}

// WithEarlyStop 连续 patience 轮的有效更新数都少于 minAccepted 时提前结束。patience 为 0 表示关闭。
func WithEarlyStop(minAccepted, patience int) Option {
	return func(o *options) {
		o.minAccepted = minAccepted
		o.patience = patience
	}
}

// WithRand 注入随机源。同一个 *rand.Rand 不能被并发的训练共享。
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		o.rng = r
	}
}

// WithSeed 使用固定种子的 PCG 随机源.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.rng = newSeededRand(seed)
	}
}

// WithInitialNoise 以 [0, scale) 的均匀噪声初始化 alpha（截断到 [0, C]）。默认 0，即全零初始化。
func WithInitialNoise(scale float64) Option {
	return func(o *options) {
		o.initialNoise = scale
	}
}

// WithBiasRule 设置偏置更新规则.
func WithBiasRule(rule BiasRule) Option {
	return func(o *options) {
		o.biasRule = rule
	}
}

// WithSupportThreshold 设置支持向量的 |alpha| 下限.
func WithSupportThreshold(th float64) Option {
	return func(o *options) {
		o.supportThreshold = th
	}
}

func newSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func newOptions(opts ...Option) options {
	o := options{
		c:                DefaultC,
		maxIterations:    DefaultMaxIterations,
		tolerance:        DefaultTolerance,
		epsilon:          DefaultEpsilon,
		maxPairsPerRound: DefaultMaxPairsPerRound,
		minAccepted:      DefaultMinAccepted,
		patience:         DefaultPatience,
		supportThreshold: DefaultSupportThreshold,
		biasRule:         BiasTextbook,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = newSeededRand(DefaultSeed)
	}
	return o
}

func (o *options) validate() error {
	switch {
	case !(o.c > 0) || stdmath.IsInf(o.c, 0):
		return xerrors.Detailf(xerrors.ErrInvalidConfig, "C = %v, must be positive and finite", o.c)
	case o.maxIterations <= 0:
		return xerrors.Detailf(xerrors.ErrInvalidConfig, "maxIterations = %d, must be positive", o.maxIterations)
	case !(o.tolerance > 0):
		return xerrors.Detailf(xerrors.ErrInvalidConfig, "tolerance = %v, must be positive", o.tolerance)
	case !(o.epsilon > 0):
		return xerrors.Detailf(xerrors.ErrInvalidConfig, "epsilon = %v, must be positive", o.epsilon)
	case o.maxPairsPerRound <= 0:
		return xerrors.Detailf(xerrors.ErrInvalidConfig, "maxPairsPerRound = %d, must be positive", o.maxPairsPerRound)
	case o.minAccepted < 0 || o.patience < 0:
		return xerrors.Detailf(xerrors.ErrInvalidConfig, "early stop (%d, %d) must be non-negative", o.minAccepted, o.patience)
	case o.initialNoise < 0 || stdmath.IsNaN(o.initialNoise):
		return xerrors.Detailf(xerrors.ErrInvalidConfig, "initial noise %v must be non-negative", o.initialNoise)
	case o.supportThreshold < 0 || stdmath.IsNaN(o.supportThreshold):
		return xerrors.Detailf(xerrors.ErrInvalidConfig, "support threshold %v must be non-negative", o.supportThreshold)
	case o.biasRule != BiasTextbook && o.biasRule != BiasReduced:
		return xerrors.Detailf(xerrors.ErrInvalidConfig, "unknown bias rule %d", int(o.biasRule))
	}
	return nil
}
