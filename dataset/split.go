package dataset

import (
	"math/rand/v2"
	"slices"
	"time"

	"github.com/wyfcoding/smosvm/xerrors"
)

// Split 训练/验证/测试三份数据.
type Split struct {
	TrainX      [][]float64
	TrainY      []float64
	ValidationX [][]float64
	ValidationY []float64
	TestX       [][]float64
	TestY       []float64
}

// Splitter 数据集划分器。seed 为 0 时使用当前时间作为种子.
// 同一个 Splitter 不可并发使用.
type Splitter struct {
	rng     *rand.Rand
	shuffle bool
}

// NewSplitter 创建划分器.
func NewSplitter(shuffle bool, seed uint64) *Splitter {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Splitter{
		rng:     rand.New(rand.NewPCG(seed, seed>>1|1)),
		shuffle: shuffle,
	}
}

// Shuffle 返回同步打乱后的 (X, y) 拷贝，行切片本身共享.
func (s *Splitter) Shuffle(x [][]float64, y []float64) ([][]float64, []float64, error) {
	if len(x) != len(y) {
		return nil, nil, xerrors.Detailf(xerrors.ErrDimMismatch, "%d rows but %d labels", len(x), len(y))
	}
	xs := slices.Clone(x)
	ys := slices.Clone(y)
	s.rng.Shuffle(len(xs), func(i, j int) {
		xs[i], xs[j] = xs[j], xs[i]
		ys[i], ys[j] = ys[j], ys[i]
	})
	return xs, ys, nil
}

// TrainTest 按比例切分为训练集和测试集（无验证集）.
func (s *Splitter) TrainTest(x [][]float64, y []float64, trainRatio float64) (*Split, error) {
	if err := checkRatios(trainRatio, 0); err != nil {
		return nil, err
	}
	if len(x) != len(y) {
		return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "%d rows but %d labels", len(x), len(y))
	}
	if s.shuffle {
		var err error
		if x, y, err = s.Shuffle(x, y); err != nil {
			return nil, err
		}
	}

	cut := portion(len(x), trainRatio)
	return &Split{
		TrainX: slices.Clone(x[:cut]),
		TrainY: slices.Clone(y[:cut]),
		TestX:  slices.Clone(x[cut:]),
		TestY:  slices.Clone(y[cut:]),
	}, nil
}

// Stratified 分层划分：每个类别单独打乱后按比例切分，再合并，保持各份中的类别分布.
// 剩余 1 - trainRatio - valRatio 的部分进入测试集.
func (s *Splitter) Stratified(x [][]float64, y []float64, trainRatio, valRatio float64) (*Split, error) {
	if err := checkRatios(trainRatio, valRatio); err != nil {
		return nil, err
	}
	if len(x) != len(y) {
		return nil, xerrors.Detailf(xerrors.ErrDimMismatch, "%d rows but %d labels", len(x), len(y))
	}

	// 按首次出现顺序分组，保证在种子固定时结果可复现.
	var order []float64
	groups := make(map[float64][]int)
	for k, label := range y {
		if _, ok := groups[label]; !ok {
			order = append(order, label)
		}
		groups[label] = append(groups[label], k)
	}

	out := &Split{}
	for _, label := range order {
		idx := groups[label]
		if s.shuffle {
			s.rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		}
		nTrain := portion(len(idx), trainRatio)
		nVal := min(portion(len(idx), valRatio), len(idx)-nTrain)
		for pos, k := range idx {
			switch {
			case pos < nTrain:
				out.TrainX = append(out.TrainX, x[k])
				out.TrainY = append(out.TrainY, y[k])
			case pos < nTrain+nVal:
				out.ValidationX = append(out.ValidationX, x[k])
				out.ValidationY = append(out.ValidationY, y[k])
			default:
				out.TestX = append(out.TestX, x[k])
				out.TestY = append(out.TestY, y[k])
			}
		}
	}

	if s.shuffle {
		s.shuffleInPlace(out.TrainX, out.TrainY)
		s.shuffleInPlace(out.ValidationX, out.ValidationY)
		s.shuffleInPlace(out.TestX, out.TestY)
	}
	return out, nil
}

func (s *Splitter) shuffleInPlace(x [][]float64, y []float64) {
	s.rng.Shuffle(len(x), func(i, j int) {
		x[i], x[j] = x[j], x[i]
		y[i], y[j] = y[j], y[i]
	})
}

// portion 向下取整，容忍比例乘法的浮点误差.
func portion(n int, ratio float64) int {
	return min(int(float64(n)*ratio+1e-9), n)
}

func checkRatios(train, val float64) error {
	if !(train >= 0 && train <= 1) || !(val >= 0 && val <= 1) || train+val > 1+1e-9 {
		return xerrors.Detailf(xerrors.ErrInvalidRatio, "train %v, validation %v", train, val)
	}
	return nil
}
