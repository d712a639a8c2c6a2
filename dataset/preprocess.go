package dataset

import (
	"slices"

	"github.com/montanaflynn/stats"

	"github.com/wyfcoding/smosvm/xerrors"
)

// ScaleMethod 特征缩放方式.
type ScaleMethod string

const (
	ScaleNone        ScaleMethod = "none"
	ScaleNormalize   ScaleMethod = "normalize"   // 按列 min-max 到 [0, 1]
	ScaleStandardize ScaleMethod = "standardize" // 按列零均值、单位总体标准差
)

// Scaler 保存按列拟合的统计量，用于把同一变换应用到测试集.
// x' = (x - Offset[c]) / Scale[c]，Scale 为 0 的列输出 0.
type Scaler struct {
	Method ScaleMethod `json:"method"`
	Offset []float64   `json:"offset"`
	Scale  []float64   `json:"scale"`
}

// FitScaler 在 data 上拟合缩放参数.
func FitScaler(data [][]float64, method ScaleMethod) (*Scaler, error) {
	cols, err := columns(data)
	if err != nil {
		return nil, err
	}

	s := &Scaler{
		Method: method,
		Offset: make([]float64, len(cols)),
		Scale:  make([]float64, len(cols)),
	}
	for c, col := range cols {
		switch method {
		case ScaleNone:
			s.Scale[c] = 1
		case ScaleNormalize:
			lo, err := stats.Min(col)
			if err != nil {
				return nil, xerrors.Detailf(xerrors.ErrEmptyData, "column %d: %v", c, err)
			}
			hi, err := stats.Max(col)
			if err != nil {
				return nil, xerrors.Detailf(xerrors.ErrEmptyData, "column %d: %v", c, err)
			}
			s.Offset[c], s.Scale[c] = lo, hi-lo
		case ScaleStandardize:
			mean, err := stats.Mean(col)
			if err != nil {
				return nil, xerrors.Detailf(xerrors.ErrEmptyData, "column %d: %v", c, err)
			}
			std, err := stats.StandardDeviationPopulation(col)
			if err != nil {
				return nil, xerrors.Detailf(xerrors.ErrEmptyData, "column %d: %v", c, err)
			}
			s.Offset[c], s.Scale[c] = mean, std
		default:
			return nil, xerrors.Detailf(xerrors.ErrInvalidConfig, "unknown scale method %q", method)
		}
	}
	return s, nil
}

// Transform 返回缩放后的新矩阵，列数必须与拟合时一致.
func (s *Scaler) Transform(data [][]float64) ([][]float64, error) {
	out := make([][]float64, len(data))
	for r, row := range data {
		if len(row) != len(s.Scale) {
			return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "row %d has %d columns, scaler fitted on %d", r, len(row), len(s.Scale))
		}
		out[r] = make([]float64, len(row))
		for c, v := range row {
			if s.Scale[c] == 0 {
				continue
			}
			out[r][c] = (v - s.Offset[c]) / s.Scale[c]
		}
	}
	return out, nil
}

// Normalize 按列 min-max 缩放到 [0, 1]，常数列输出 0.
func Normalize(data [][]float64) ([][]float64, *Scaler, error) {
	return fitTransform(data, ScaleNormalize)
}

// Standardize 按列标准化，标准差为 0 的列输出 0.
func Standardize(data [][]float64) ([][]float64, *Scaler, error) {
	return fitTransform(data, ScaleStandardize)
}

func fitTransform(data [][]float64, method ScaleMethod) ([][]float64, *Scaler, error) {
	s, err := FitScaler(data, method)
	if err != nil {
		return nil, nil, err
	}
	out, err := s.Transform(data)
	if err != nil {
		return nil, nil, err
	}
	return out, s, nil
}

// columns 转置为按列存储，同时检查矩阵是否为矩形.
func columns(data [][]float64) ([]stats.Float64Data, error) {
	if len(data) == 0 || len(data[0]) == 0 {
		return nil, xerrors.ErrEmptyData
	}
	width := len(data[0])
	cols := make([]stats.Float64Data, width)
	for c := range cols {
		cols[c] = make(stats.Float64Data, len(data))
	}
	for r, row := range data {
		if len(row) != width {
			return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "row %d has %d columns, want %d", r, len(row), width)
		}
		for c, v := range row {
			cols[c][r] = v
		}
	}
	return cols, nil
}

// SplitFeaturesAndLabels 把 labelCol 列拆出作为标签，其余列按原顺序作为特征.
func SplitFeaturesAndLabels(data [][]float64, labelCol int) ([][]float64, []float64, error) {
	if len(data) == 0 {
		return nil, nil, xerrors.ErrEmptyData
	}
	width := len(data[0])
	if labelCol < 0 || labelCol >= width {
		return nil, nil, xerrors.Detailf(xerrors.ErrInvalidInput, "label column %d out of range [0, %d)", labelCol, width)
	}

	x := make([][]float64, len(data))
	y := make([]float64, len(data))
	for r, row := range data {
		if len(row) != width {
			return nil, nil, xerrors.Detailf(xerrors.ErrDimMismatch, "row %d has %d columns, want %d", r, len(row), width)
		}
		feat := make([]float64, 0, width-1)
		feat = append(feat, row[:labelCol]...)
		feat = append(feat, row[labelCol+1:]...)
		x[r] = feat
		y[r] = row[labelCol]
	}
	return x, y, nil
}

// LabelEncoding 原始标签到 ±1 的映射.
type LabelEncoding struct {
	Negative float64 `json:"negative"`
	Positive float64 `json:"positive"`
}

// Decode 把 ±1 还原为原始标签.
func (e LabelEncoding) Decode(label float64) float64 {
	if label > 0 {
		return e.Positive
	}
	return e.Negative
}

// EncodeLabels 要求恰好两个不同取值，较大者映射为 +1，较小者为 -1.
func EncodeLabels(y []float64) ([]float64, LabelEncoding, error) {
	distinct := slices.Compact(slices.Sorted(slices.Values(y)))
	if len(distinct) != 2 {
		return nil, LabelEncoding{}, xerrors.Detailf(xerrors.ErrInvalidLabel, "need exactly 2 distinct labels, got %d", len(distinct))
	}

	enc := LabelEncoding{Negative: distinct[0], Positive: distinct[1]}
	out := make([]float64, len(y))
	for k, v := range y {
		if v == enc.Positive {
			out[k] = 1
		} else {
			out[k] = -1
		}
	}
	return out, enc, nil
}
