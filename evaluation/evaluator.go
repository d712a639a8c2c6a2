package evaluation

import (
	"context"

	"github.com/wyfcoding/smosvm/xerrors"
)

// Predictor 能对一批样本给出 ±1 标签的模型，*svm.Classifier 满足该接口.
type Predictor interface {
	PredictBatch(x [][]float64) ([]float64, error)
}

// Report 一次评估的全部指标.
type Report struct {
	Confusion Confusion `json:"confusion"`
	Accuracy  float64   `json:"accuracy"`
	Precision float64   `json:"precision"`
	Recall    float64   `json:"recall"`
	F1        float64   `json:"f1"`
	Samples   int       `json:"samples"`
}

// Evaluate 在 (X, y) 上评估模型，正类为 +1.
func Evaluate(ctx context.Context, model Predictor, x [][]float64, y []float64) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(x) != len(y) {
		return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "%d rows but %d labels", len(x), len(y))
	}

	pred, err := model.PredictBatch(x)
	if err != nil {
		return nil, err
	}
	c, err := ConfusionMatrix(y, pred, Positive)
	if err != nil {
		return nil, err
	}
	return &Report{
		Confusion: c,
		Accuracy:  c.Accuracy(),
		Precision: c.Precision(),
		Recall:    c.Recall(),
		F1:        c.F1(),
		Samples:   len(y),
	}, nil
}
