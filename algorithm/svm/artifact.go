package svm

import (
	stdmath "math"

	"github.com/wyfcoding/smosvm/xerrors"
)

// ArtifactVersion 当前产物格式版本.
const ArtifactVersion = 1

// Artifact 持久化的模型：核函数、偏置、支持向量。推理只依赖这些字段。
type Artifact struct {
	Kernel         Kernel          `json:"kernel"`
	SupportVectors []SupportVector `json:"support_vectors"`
	Stats          TrainStats      `json:"stats"`
	Version        int             `json:"version"`
	Dim            int             `json:"dim"`
	C              float64         `json:"c"`
	Bias           float64         `json:"bias"`
}

// Artifact 导出已训练模型.
func (c *Classifier) Artifact() (*Artifact, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.ready {
		return nil, xerrors.ErrNotTrained
	}
	return &Artifact{
		Version:        ArtifactVersion,
		Kernel:         c.optimizer.kernel,
		C:              c.optimizer.opts.c,
		Dim:            c.dim,
		Bias:           c.bias,
		SupportVectors: cloneSupportVectors(c.supportVectors),
		Stats:          c.stats,
	}, nil
}

// Validate 校验产物内容自洽.
func (a *Artifact) Validate() error {
	if a.Version != ArtifactVersion {
		return xerrors.Detailf(xerrors.ErrInvalidInput, "artifact version %d, want %d", a.Version, ArtifactVersion)
	}
	if err := a.Kernel.Validate(); err != nil {
		return err
	}
	if stdmath.IsNaN(a.Bias) || stdmath.IsInf(a.Bias, 0) {
		return xerrors.Detailf(xerrors.ErrInvalidInput, "bias %v is not finite", a.Bias)
	}
	if a.Dim < 0 && len(a.SupportVectors) > 0 {
		return xerrors.Detailf(xerrors.ErrDimMismatch, "support vectors present but dim is %d", a.Dim)
	}
	for k, sv := range a.SupportVectors {
		if len(sv.Vector) != a.Dim {
			return xerrors.Detailf(xerrors.ErrDimMismatch, "support vector %d has %d features, want %d", k, len(sv.Vector), a.Dim)
		}
		if sv.Label != 1 && sv.Label != -1 {
			return xerrors.Detailf(xerrors.ErrInvalidLabel, "support vector %d label %v", k, sv.Label)
		}
		if stdmath.IsNaN(sv.Alpha) || stdmath.IsInf(sv.Alpha, 0) {
			return xerrors.Detailf(xerrors.ErrInvalidInput, "support vector %d alpha %v is not finite", k, sv.Alpha)
		}
	}
	return nil
}

// FromArtifact 由产物重建一个已训练、不可再训练的分类器.
func FromArtifact(a *Artifact) (*Classifier, error) {
	if a == nil {
		return nil, xerrors.ErrEmptyData
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	cOpt := a.C
	if !(cOpt > 0) {
		cOpt = DefaultC
	}
	optimizer, err := NewOptimizer(a.Kernel, WithC(cOpt))
	if err != nil {
		return nil, err
	}

	c := &Classifier{
		optimizer:      optimizer,
		threshold:      optimizer.opts.supportThreshold,
		ready:          true,
		dim:            a.Dim,
		bias:           a.Bias,
		supportVectors: cloneSupportVectors(a.SupportVectors),
		stats:          a.Stats,
	}
	c.claimed.Store(true)
	return c, nil
}
