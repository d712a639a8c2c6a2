package svm

import (
	stdmath "math"

	"github.com/wyfcoding/smosvm/xerrors"
)

// Result 优化器输出。决策函数 f(x) = Σ alpha_i·y_i·K(x_i, x) + b.
type Result struct {
	Alphas []float64
	// Errors 结束时的误差缓存 E_k = f(x_k) - y_k.
	Errors          []float64
	Bias            float64
	Rounds          int
	AcceptedUpdates int
	SkippedUpdates  int
	EarlyStopped    bool
	// Degenerate 样本数少于 2，返回全零 alpha 与 0 偏置.
	Degenerate bool
}

// Optimizer 简化 SMO：每轮随机抽取若干对 (i, j) 做配对坐标上升。
// 同一个 Optimizer 的 Optimize 不可并发调用，因为随机源是共享的。
type Optimizer struct {
	kernel Kernel
	opts   options
}

// NewOptimizer 创建优化器，参数非法时返回 ErrInvalidConfig / ErrInvalidKernel.
func NewOptimizer(kernel Kernel, opts ...Option) (*Optimizer, error) {
	if err := kernel.Validate(); err != nil {
		return nil, err
	}
	o := newOptions(opts...)
	if err := o.validate(); err != nil {
		return nil, err
	}
	return &Optimizer{kernel: kernel, opts: o}, nil
}

// Kernel 返回优化器使用的核函数.
func (o *Optimizer) Kernel() Kernel {
	return o.kernel
}

// C 返回正则化强度.
func (o *Optimizer) C() float64 {
	return o.opts.c
}

// problem 一次训练的只读输入.
type problem struct {
	x      [][]float64
	y      []float64
	kernel Kernel
}

// smoState 一次 Optimize 调用独占的可变状态.
type smoState struct {
	alphas []float64
	errors []float64
	bias   float64
}

// Optimize 求解对偶问题。输入校验失败时不会开始任何一轮迭代；
// 数值上的退化情形（eta 非负、步长过小）只会跳过当前配对。
func (o *Optimizer) Optimize(x [][]float64, y []float64) (*Result, error) {
	if err := validateProblem(x, y); err != nil {
		return nil, err
	}

	n := len(y)
	if n < 2 {
		return &Result{
			Alphas:     make([]float64, n),
			Errors:     negate(y),
			Degenerate: true,
		}, nil
	}

	p := &problem{x: x, y: y, kernel: o.kernel}
	st := o.initState(p)
	res := &Result{}

	pairs := min(o.opts.maxPairsPerRound, n)
	quiet := 0
	for range o.opts.maxIterations {
		accepted := 0
		for range pairs {
			i, j := o.drawPair(n)
			if o.step(p, st, i, j) {
				accepted++
			} else {
				res.SkippedUpdates++
			}
		}
		res.Rounds++
		res.AcceptedUpdates += accepted

		if o.opts.patience == 0 {
			continue
		}
		if accepted < o.opts.minAccepted {
			quiet++
		} else {
			quiet = 0
		}
		if quiet >= o.opts.patience {
			res.EarlyStopped = true
			break
		}
	}

	res.Alphas = st.alphas
	res.Errors = st.errors
	res.Bias = st.bias
	return res, nil
}

func (o *Optimizer) initState(p *problem) *smoState {
	n := len(p.y)
	st := &smoState{
		alphas: make([]float64, n),
		errors: make([]float64, n),
	}
	if o.opts.initialNoise > 0 {
		for k := range st.alphas {
			st.alphas[k] = min(o.opts.c, o.opts.rng.Float64()*o.opts.initialNoise)
		}
	}
	for k := range n {
		st.errors[k] = p.output(st, p.x[k]) - p.y[k]
	}
	return st
}

// drawPair 均匀抽取 i != j.
func (o *Optimizer) drawPair(n int) (int, int) {
	i := o.opts.rng.IntN(n)
	j := o.opts.rng.IntN(n - 1)
	if j >= i {
		j++
	}
	return i, j
}

// step 对 (i, j) 做一次配对更新，返回是否被接受。
func (o *Optimizer) step(p *problem, st *smoState, i, j int) bool {
	c := o.opts.c
	eps := o.opts.epsilon

	xi, xj := p.x[i], p.x[j]
	yi, yj := p.y[i], p.y[j]

	ei := p.output(st, xi) - yi
	ej := p.output(st, xj) - yj
	st.errors[i] = ei
	st.errors[j] = ej

	kii := p.kernel.eval(xi, xi)
	kjj := p.kernel.eval(xj, xj)
	kij := p.kernel.eval(xi, xj)

	// eta 必须足够负，否则目标函数沿该方向没有严格的最大值（含 x_i == x_j）。
	eta := 2*kij - kii - kjj
	if eta >= -eps {
		return false
	}

	ai, aj := st.alphas[i], st.alphas[j]

	var lo, hi float64
	if yi != yj {
		lo = max(0, aj-ai)
		hi = min(c, c+aj-ai)
	} else {
		lo = max(0, ai+aj-c)
		hi = min(c, ai+aj)
	}

	ajNew := aj - yj*(ei-ej)/eta
	ajNew = clip(ajNew, lo, hi)
	if stdmath.Abs(ajNew-aj) < o.opts.tolerance {
		return false
	}

	aiNew := clip(ai+yi*yj*(aj-ajNew), 0, c)

	dai := aiNew - ai
	daj := ajNew - aj

	b1 := st.bias - ei - yi*dai*kii - yj*daj*kij
	b2 := st.bias - ej - yi*dai*kij - yj*daj*kjj

	var bNew float64
	switch {
	case o.opts.biasRule == BiasReduced:
		bNew = b1
	case o.nonBound(aiNew):
		bNew = b1
	case o.nonBound(ajNew):
		bNew = b2
	default:
		bNew = (b1 + b2) / 2
	}
	db := bNew - st.bias

	st.alphas[i] = aiNew
	st.alphas[j] = ajNew
	st.bias = bNew

	// 任何 alpha 或 b 的变化都会平移所有样本的输出，整张误差缓存一起增量刷新。
	for k, xk := range p.x {
		st.errors[k] += yi*dai*p.kernel.eval(xi, xk) + yj*daj*p.kernel.eval(xj, xk) + db
	}
	return true
}

func (o *Optimizer) nonBound(alpha float64) bool {
	return alpha > o.opts.epsilon && alpha < o.opts.c-o.opts.epsilon
}

// output f(x) = Σ alpha_k·y_k·K(x_k, x) + b.
func (p *problem) output(st *smoState, x []float64) float64 {
	sum := st.bias
	for k, a := range st.alphas {
		if a == 0 {
			continue
		}
		sum += a * p.y[k] * p.kernel.eval(p.x[k], x)
	}
	return sum
}

// eval 在维度已校验的前提下计算核函数.
func (k Kernel) eval(x, y []float64) float64 {
	v, _ := k.Compute(x, y)
	return v
}

func validateProblem(x [][]float64, y []float64) error {
	if len(x) != len(y) {
		return xerrors.Detailf(xerrors.ErrDimMismatch, "%d rows but %d labels", len(x), len(y))
	}
	for k, label := range y {
		if label != 1 && label != -1 {
			return xerrors.Detailf(xerrors.ErrInvalidLabel, "label %v at row %d", label, k)
		}
	}
	if len(x) == 0 {
		return nil
	}
	dim := len(x[0])
	for k, row := range x {
		if len(row) != dim {
			return xerrors.Detailf(xerrors.ErrDimMismatch, "row %d has %d features, want %d", k, len(row), dim)
		}
		for col, v := range row {
			if stdmath.IsNaN(v) || stdmath.IsInf(v, 0) {
				return xerrors.Detailf(xerrors.ErrInvalidInput, "non-finite feature at row %d col %d", k, col)
			}
		}
	}
	return nil
}

// DualObjective 对偶目标 W(alpha) = Σ alpha_i - ½ ΣΣ alpha_i·alpha_j·y_i·y_j·K(x_i, x_j).
func DualObjective(kernel Kernel, x [][]float64, y, alphas []float64) (float64, error) {
	if err := validateProblem(x, y); err != nil {
		return 0, err
	}
	if len(alphas) != len(y) {
		return 0, xerrors.Detailf(xerrors.ErrDimMismatch, "%d alphas for %d labels", len(alphas), len(y))
	}
	var linear, quad float64
	for i := range alphas {
		linear += alphas[i]
		if alphas[i] == 0 {
			continue
		}
		for j := range alphas {
			if alphas[j] == 0 {
				continue
			}
			quad += alphas[i] * alphas[j] * y[i] * y[j] * kernel.eval(x[i], x[j])
		}
	}
	return linear - quad/2, nil
}

func clip(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func negate(v []float64) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		out[i] = -v[i]
	}
	return out
}
