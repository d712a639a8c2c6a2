// Package math 提供 SVM 训练与推理所需的向量与矩阵运算.
// 所有二元运算都会先校验维度，维度不一致时返回 xerrors.ErrDimMismatch，不会 panic。
package math

import (
	"gonum.org/v1/gonum/floats"

	"github.com/wyfcoding/smosvm/xerrors"
)

// CheckDim 校验两个向量长度一致.
func CheckDim(a, b []float64) error {
	if len(a) != len(b) {
		return xerrors.Detailf(xerrors.ErrDimMismatch, "len %d != len %d", len(a), len(b))
	}
	return nil
}

// Dot 点积 a·b.
func Dot(a, b []float64) (float64, error) {
	if err := CheckDim(a, b); err != nil {
		return 0, err
	}
	if len(a) == 0 {
		return 0, nil
	}
	return floats.Dot(a, b), nil
}

// Add 逐元素相加，返回新向量.
func Add(a, b []float64) ([]float64, error) {
	if err := CheckDim(a, b); err != nil {
		return nil, err
	}
	return floats.AddTo(make([]float64, len(a)), a, b), nil
}

// Sub 逐元素相减 a - b，返回新向量.
func Sub(a, b []float64) ([]float64, error) {
	if err := CheckDim(a, b); err != nil {
		return nil, err
	}
	return floats.SubTo(make([]float64, len(a)), a, b), nil
}

// Scale 数乘 s·v，返回新向量.
func Scale(v []float64, s float64) []float64 {
	return floats.ScaleTo(make([]float64, len(v)), s, v)
}

// Norm 欧氏范数 ||v||.
func Norm(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	return floats.Norm(v, 2)
}

// Distance 欧氏距离 ||a - b||.
func Distance(a, b []float64) (float64, error) {
	if err := CheckDim(a, b); err != nil {
		return 0, err
	}
	if len(a) == 0 {
		return 0, nil
	}
	return floats.Distance(a, b, 2), nil
}

// SquaredDistance 欧氏距离平方 ||a - b||²。a == b 时结果恰为 0.
func SquaredDistance(a, b []float64) (float64, error) {
	if err := CheckDim(a, b); err != nil {
		return 0, err
	}
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum, nil
}
