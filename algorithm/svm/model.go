package svm

import (
	"slices"
	"sync"
	"sync/atomic"

	"github.com/wyfcoding/smosvm/algorithm/math"
	"github.com/wyfcoding/smosvm/xerrors"
)

// SupportVector 训练结束时保留的 (向量, 标签, alpha) 三元组.
type SupportVector struct {
	Vector []float64 `json:"vector"`
	Label  float64   `json:"label"`
	Alpha  float64   `json:"alpha"`
}

// TrainStats 训练过程统计.
type TrainStats struct {
	Examples        int  `json:"examples"`
	Rounds          int  `json:"rounds"`
	AcceptedUpdates int  `json:"accepted_updates"`
	SkippedUpdates  int  `json:"skipped_updates"`
	EarlyStopped    bool `json:"early_stopped"`
	Degenerate      bool `json:"degenerate"`
}

// Classifier 核化软间隔二分类 SVM。
// 每个实例只能训练一次，训练完成后不可变；重新训练需要构造新实例。
type Classifier struct {
	optimizer *Optimizer
	threshold float64

	claimed atomic.Bool // Train 的一次性占用标记

	mu             sync.RWMutex
	ready          bool
	dim            int // -1 表示无训练样本，不约束输入维度
	bias           float64
	supportVectors []SupportVector
	stats          TrainStats
}

// NewClassifier 创建未训练的分类器。参数在此处一次性校验。
func NewClassifier(kernel Kernel, opts ...Option) (*Classifier, error) {
	optimizer, err := NewOptimizer(kernel, opts...)
	if err != nil {
		return nil, err
	}
	return &Classifier{
		optimizer: optimizer,
		threshold: optimizer.opts.supportThreshold,
		dim:       -1,
	}, nil
}

// Train 在 (X, y) 上训练。y 只能取 +1/-1。
// 样本少于 2 个时得到平凡模型（无支持向量、偏置为 0），不返回错误。
func (c *Classifier) Train(x [][]float64, y []float64) error {
	if err := validateProblem(x, y); err != nil {
		return err
	}
	if !c.claimed.CompareAndSwap(false, true) {
		return xerrors.ErrAlreadyTrained
	}

	res, err := c.optimizer.Optimize(x, y)
	if err != nil {
		c.claimed.Store(false)
		return err
	}

	svs := make([]SupportVector, 0)
	for k, a := range res.Alphas {
		if a > c.threshold || -a > c.threshold {
			svs = append(svs, SupportVector{
				Vector: slices.Clone(x[k]),
				Label:  y[k],
				Alpha:  a,
			})
		}
	}

	dim := -1
	if len(x) > 0 {
		dim = len(x[0])
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.dim = dim
	c.bias = res.Bias
	c.supportVectors = svs
	c.stats = TrainStats{
		Examples:        len(y),
		Rounds:          res.Rounds,
		AcceptedUpdates: res.AcceptedUpdates,
		SkippedUpdates:  res.SkippedUpdates,
		EarlyStopped:    res.EarlyStopped,
		Degenerate:      res.Degenerate,
	}
	c.ready = true
	return nil
}

// Trained 是否已完成训练.
func (c *Classifier) Trained() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

// Predict 返回 sign(f(x))，f(x) >= 0 时为 +1.
func (c *Classifier) Predict(x []float64) (float64, error) {
	f, err := c.DecisionFunction(x)
	if err != nil {
		return 0, err
	}
	return Sign(f), nil
}

// PredictBatch 对每一行调用 Predict，保持顺序.
func (c *Classifier) PredictBatch(x [][]float64) ([]float64, error) {
	scores, err := c.DecisionFunctionBatch(x)
	if err != nil {
		return nil, err
	}
	for k, f := range scores {
		scores[k] = Sign(f)
	}
	return scores, nil
}

// DecisionFunction 返回原始输出 f(x) = Σ alpha·label·K(vector, x) + b.
func (c *Classifier) DecisionFunction(x []float64) (float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.checkInput(x); err != nil {
		return 0, err
	}
	return c.decision(x), nil
}

// DecisionFunctionBatch 批量计算 f(x).
func (c *Classifier) DecisionFunctionBatch(x [][]float64) ([]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.ready {
		return nil, xerrors.ErrNotTrained
	}
	out := make([]float64, len(x))
	for k, row := range x {
		if c.dim >= 0 && len(row) != c.dim {
			return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "row %d has %d features, model expects %d", k, len(row), c.dim)
		}
		out[k] = c.decision(row)
	}
	return out, nil
}

func (c *Classifier) checkInput(x []float64) error {
	if !c.ready {
		return xerrors.ErrNotTrained
	}
	if c.dim >= 0 && len(x) != c.dim {
		return xerrors.Detailf(xerrors.ErrDimMismatch, "input has %d features, model expects %d", len(x), c.dim)
	}
	return nil
}

func (c *Classifier) decision(x []float64) float64 {
	kernel := c.optimizer.kernel
	sum := c.bias
	for _, sv := range c.supportVectors {
		sum += sv.Alpha * sv.Label * kernel.eval(sv.Vector, x)
	}
	return sum
}

// SupportVectors 返回支持向量的深拷贝.
func (c *Classifier) SupportVectors() ([]SupportVector, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.ready {
		return nil, xerrors.ErrNotTrained
	}
	return cloneSupportVectors(c.supportVectors), nil
}

// NumSupportVectors 支持向量个数，未训练时为 0.
func (c *Classifier) NumSupportVectors() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.supportVectors)
}

// Bias 偏置 b.
func (c *Classifier) Bias() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bias
}

// Dim 训练数据的特征维度，无训练样本时为 -1.
func (c *Classifier) Dim() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dim
}

// Kernel 使用的核函数.
func (c *Classifier) Kernel() Kernel {
	return c.optimizer.kernel
}

// C 正则化强度.
func (c *Classifier) C() float64 {
	return c.optimizer.opts.c
}

// Stats 训练统计.
func (c *Classifier) Stats() TrainStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// WeightVector 线性核下的显式权重 w = Σ alpha·label·vector.
func (c *Classifier) WeightVector() ([]float64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.ready {
		return nil, xerrors.ErrNotTrained
	}
	if c.optimizer.kernel.Type != KernelLinear {
		return nil, xerrors.Detailf(xerrors.ErrUnsupportedKernel, "kernel is %s", c.optimizer.kernel.Name())
	}
	if len(c.supportVectors) == 0 {
		return make([]float64, max(c.dim, 0)), nil
	}

	rows := make([][]float64, len(c.supportVectors))
	coef := make([]float64, len(c.supportVectors))
	for k, sv := range c.supportVectors {
		rows[k] = sv.Vector
		coef[k] = sv.Alpha * sv.Label
	}
	m, err := math.NewMatrixFromData(rows)
	if err != nil {
		return nil, err
	}
	return m.Transpose().MultiplyVector(coef)
}

// Sign 决策值到标签的映射，f = 0 归为 +1.
func Sign(f float64) float64 {
	if f >= 0 {
		return 1
	}
	return -1
}

func cloneSupportVectors(svs []SupportVector) []SupportVector {
	out := make([]SupportVector, len(svs))
	for k, sv := range svs {
		out[k] = SupportVector{Vector: slices.Clone(sv.Vector), Label: sv.Label, Alpha: sv.Alpha}
	}
	return out
}
