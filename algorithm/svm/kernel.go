// Package svm 实现基于 SMO（Sequential Minimal Optimization）求解对偶问题的核化软间隔二分类 SVM.
//
// 组成：
//   - Kernel: 封闭的核函数变体 {Linear, Polynomial(c, d), RBF(gamma)}，统一的 Compute(x, y) 接口。
//   - Optimizer: 随机配对坐标上升的简化 SMO，输出对偶系数 alpha 与偏置 b。
//   - Classifier: 一次性训练，保存稀疏支持向量集合，提供单条与批量预测。
//
// 本包不做任何 I/O，也不使用全局随机源。
package svm

import (
	"fmt"
	stdmath "math"
	"strings"

	"github.com/wyfcoding/smosvm/algorithm/math"
	"github.com/wyfcoding/smosvm/xerrors"
)

// KernelType 核函数类型.
type KernelType int

const (
	KernelLinear KernelType = iota
	KernelPolynomial
	KernelRBF
)

func (t KernelType) String() string {
	switch t {
	case KernelLinear:
		return "linear"
	case KernelPolynomial:
		return "polynomial"
	case KernelRBF:
		return "rbf"
	default:
		return fmt.Sprintf("kernel(%d)", int(t))
	}
}

// MarshalText 以名称形式序列化.
func (t KernelType) MarshalText() ([]byte, error) {
	switch t {
	case KernelLinear, KernelPolynomial, KernelRBF:
		return []byte(t.String()), nil
	default:
		return nil, xerrors.Detailf(xerrors.ErrInvalidKernel, "unknown kernel type %d", int(t))
	}
}

// UnmarshalText 解析核函数名称.
func (t *KernelType) UnmarshalText(text []byte) error {
	parsed, err := ParseKernelType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseKernelType 解析 "linear" / "poly" / "polynomial" / "rbf"，大小写不敏感.
func ParseKernelType(name string) (KernelType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "linear":
		return KernelLinear, nil
	case "poly", "polynomial":
		return KernelPolynomial, nil
	case "rbf", "gaussian":
		return KernelRBF, nil
	default:
		return 0, xerrors.Detailf(xerrors.ErrInvalidKernel, "unknown kernel %q", name)
	}
}

// Kernel 核函数。只携带构造时确定的超参数，没有其他可变状态。
// 新增核函数只需增加一个 KernelType 分支，优化器无需改动。
type Kernel struct {
	Type     KernelType `json:"type"`
	Constant float64    `json:"constant,omitempty"` // Polynomial 的常数项 c
	Degree   int        `json:"degree,omitempty"`   // Polynomial 的次数 d
	Gamma    float64    `json:"gamma,omitempty"`    // RBF 的 gamma
}

// Linear K(x, y) = x·y.
func Linear() Kernel {
	return Kernel{Type: KernelLinear}
}

// Polynomial K(x, y) = (x·y + c)^d.
func Polynomial(constant float64, degree int) (Kernel, error) {
	k := Kernel{Type: KernelPolynomial, Constant: constant, Degree: degree}
	if err := k.Validate(); err != nil {
		return Kernel{}, err
	}
	return k, nil
}

// RBF K(x, y) = exp(-gamma·||x - y||²).
func RBF(gamma float64) (Kernel, error) {
	k := Kernel{Type: KernelRBF, Gamma: gamma}
	if err := k.Validate(); err != nil {
		return Kernel{}, err
	}
	return k, nil
}

// Validate 校验超参数.
func (k Kernel) Validate() error {
	switch k.Type {
	case KernelLinear:
		return nil
	case KernelPolynomial:
		if k.Degree < 1 {
			return xerrors.Detailf(xerrors.ErrInvalidKernel, "polynomial degree %d < 1", k.Degree)
		}
		if stdmath.IsNaN(k.Constant) || stdmath.IsInf(k.Constant, 0) {
			return xerrors.Detailf(xerrors.ErrInvalidKernel, "polynomial constant %v is not finite", k.Constant)
		}
		return nil
	case KernelRBF:
		if !(k.Gamma > 0) || stdmath.IsInf(k.Gamma, 0) {
			return xerrors.Detailf(xerrors.ErrInvalidKernel, "rbf gamma %v must be positive and finite", k.Gamma)
		}
		return nil
	default:
		return xerrors.Detailf(xerrors.ErrInvalidKernel, "unknown kernel type %d", int(k.Type))
	}
}

// Name 返回核函数名称.
func (k Kernel) Name() string {
	return k.Type.String()
}

func (k Kernel) String() string {
	switch k.Type {
	case KernelPolynomial:
		return fmt.Sprintf("polynomial(c=%g, d=%d)", k.Constant, k.Degree)
	case KernelRBF:
		return fmt.Sprintf("rbf(gamma=%g)", k.Gamma)
	default:
		return k.Type.String()
	}
}

// Compute 计算 K(x, y)。对三种核都满足 K(x, y) == K(y, x)，长度不一致时返回 ErrDimMismatch.
func (k Kernel) Compute(x, y []float64) (float64, error) {
	switch k.Type {
	case KernelLinear:
		return math.Dot(x, y)
	case KernelPolynomial:
		dot, err := math.Dot(x, y)
		if err != nil {
			return 0, err
		}
		return powi(dot+k.Constant, k.Degree), nil
	case KernelRBF:
		sq, err := math.SquaredDistance(x, y)
		if err != nil {
			return 0, err
		}
		return stdmath.Exp(-k.Gamma * sq), nil
	default:
		return 0, xerrors.Detailf(xerrors.ErrInvalidKernel, "unknown kernel type %d", int(k.Type))
	}
}

// powi 整数次幂，快速幂.
func powi(base float64, times int) float64 {
	tmp := base
	ret := 1.0

	for t := times; t > 0; t /= 2 {
		if t%2 == 1 {
			ret *= tmp
		}
		tmp *= tmp
	}
	return ret
}
