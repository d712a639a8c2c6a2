package server

import (
	"time"

	"github.com/wyfcoding/smosvm/algorithm/svm"
	"github.com/wyfcoding/smosvm/dataset"
	"github.com/wyfcoding/smosvm/evaluation"
	"github.com/wyfcoding/smosvm/storage"
)

// Prediction 单个样本的推理结果。Label 为原始标签空间中的值.
type Prediction struct {
	Label float64 `json:"label"`
	Class float64 `json:"class"` // ±1
	Score float64 `json:"score"` // 决策函数原始输出
}

// Model 可服务的模型，创建后只读，可被多个请求并发使用.
type Model struct {
	classifier *svm.Classifier
	bundle     *storage.Bundle
	LoadedAt   time.Time
	Key        string
}

// NewModel 从产物恢复分类器.
func NewModel(key string, b *storage.Bundle) (*Model, error) {
	c, err := b.Classifier()
	if err != nil {
		return nil, err
	}
	return &Model{classifier: c, bundle: b, Key: key, LoadedAt: time.Now()}, nil
}

// Predict 先按训练时的缩放参数变换特征，再计算决策值与标签.
func (m *Model) Predict(rows [][]float64) ([]Prediction, error) {
	x := rows
	if m.bundle.Scaler != nil {
		var err error
		if x, err = m.bundle.Scaler.Transform(rows); err != nil {
			return nil, err
		}
	}
	scores, err := m.classifier.DecisionFunctionBatch(x)
	if err != nil {
		return nil, err
	}

	labels := dataset.LabelEncoding{Negative: -1, Positive: 1}
	if m.bundle.Labels != nil {
		labels = *m.bundle.Labels
	}
	out := make([]Prediction, len(scores))
	for k, f := range scores {
		class := svm.Sign(f)
		out[k] = Prediction{Label: labels.Decode(class), Class: class, Score: f}
	}
	return out, nil
}

// Info 模型元数据.
type Info struct {
	CreatedAt      time.Time          `json:"created_at"`
	LoadedAt       time.Time          `json:"loaded_at"`
	Report         *evaluation.Report `json:"report,omitempty"`
	Kernel         svm.Kernel         `json:"kernel"`
	Key            string             `json:"key"`
	Stats          svm.TrainStats     `json:"stats"`
	C              float64            `json:"c"`
	Bias           float64            `json:"bias"`
	Dim            int                `json:"dim"`
	SupportVectors int                `json:"support_vectors"`
}

// Info 汇总当前模型的元数据.
func (m *Model) Info() Info {
	return Info{
		Key:            m.Key,
		Kernel:         m.classifier.Kernel(),
		C:              m.classifier.C(),
		Bias:           m.classifier.Bias(),
		Dim:            m.classifier.Dim(),
		SupportVectors: m.classifier.NumSupportVectors(),
		Stats:          m.classifier.Stats(),
		CreatedAt:      m.bundle.CreatedAt,
		LoadedAt:       m.LoadedAt,
		Report:         m.bundle.Report,
	}
}
