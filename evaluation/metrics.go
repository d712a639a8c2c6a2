// Package evaluation 计算二分类指标并提供并行超参数搜索.
package evaluation

import (
	"fmt"

	"github.com/wyfcoding/smosvm/xerrors"
)

// Positive 默认正类标签.
const Positive = 1.0

// Confusion 混淆矩阵，布局为 [[TN, FP], [FN, TP]].
type Confusion [2][2]int

func (c Confusion) TN() int { return c[0][0] }
func (c Confusion) FP() int { return c[0][1] }
func (c Confusion) FN() int { return c[1][0] }
func (c Confusion) TP() int { return c[1][1] }

// Total 样本总数.
func (c Confusion) Total() int { return c.TN() + c.FP() + c.FN() + c.TP() }

func (c Confusion) String() string {
	return fmt.Sprintf("[[TN=%d FP=%d] [FN=%d TP=%d]]", c.TN(), c.FP(), c.FN(), c.TP())
}

// ConfusionMatrix 以 positive 为正类统计，其余标签都视为负类.
func ConfusionMatrix(yTrue, yPred []float64, positive float64) (Confusion, error) {
	var c Confusion
	if len(yTrue) != len(yPred) {
		return c, xerrors.Detailf(xerrors.ErrDimMismatch, "%d labels but %d predictions", len(yTrue), len(yPred))
	}
	for k := range yTrue {
		row, col := 0, 0
		if yTrue[k] == positive {
			row = 1
		}
		if yPred[k] == positive {
			col = 1
		}
		c[row][col]++
	}
	return c, nil
}

// Accuracy 正确预测所占比例，空输入为 0.
func Accuracy(yTrue, yPred []float64) (float64, error) {
	if len(yTrue) != len(yPred) {
		return 0, xerrors.Detailf(xerrors.ErrDimMismatch, "%d labels but %d predictions", len(yTrue), len(yPred))
	}
	correct := 0
	for k := range yTrue {
		if yTrue[k] == yPred[k] {
			correct++
		}
	}
	return ratio(correct, len(yTrue)), nil
}

// Precision TP / (TP + FP)，分母为 0 时为 0.
func Precision(yTrue, yPred []float64, positive float64) (float64, error) {
	c, err := ConfusionMatrix(yTrue, yPred, positive)
	if err != nil {
		return 0, err
	}
	return c.Precision(), nil
}

// Recall TP / (TP + FN)，分母为 0 时为 0.
func Recall(yTrue, yPred []float64, positive float64) (float64, error) {
	c, err := ConfusionMatrix(yTrue, yPred, positive)
	if err != nil {
		return 0, err
	}
	return c.Recall(), nil
}

// F1 精确率与召回率的调和平均.
func F1(yTrue, yPred []float64, positive float64) (float64, error) {
	c, err := ConfusionMatrix(yTrue, yPred, positive)
	if err != nil {
		return 0, err
	}
	return c.F1(), nil
}

func (c Confusion) Accuracy() float64  { return ratio(c.TN()+c.TP(), c.Total()) }
func (c Confusion) Precision() float64 { return ratio(c.TP(), c.TP()+c.FP()) }
func (c Confusion) Recall() float64    { return ratio(c.TP(), c.TP()+c.FN()) }

func (c Confusion) F1() float64 {
	p, r := c.Precision(), c.Recall()
	if p+r == 0 {
		return 0
	}
	return 2 * p * r / (p + r)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
