package evaluation

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/wyfcoding/smosvm/algorithm/svm"
	"github.com/wyfcoding/smosvm/logging"
	"github.com/wyfcoding/smosvm/metrics"
	"github.com/wyfcoding/smosvm/xerrors"
)

// Candidate 一组待评估的超参数.
type Candidate struct {
	Kernel svm.Kernel `json:"kernel"`
	C      float64    `json:"c"`
}

func (c Candidate) String() string {
	return fmt.Sprintf("C=%g %s", c.C, c.Kernel)
}

// Grid 笛卡尔积 cValues x kernels，C 在外层.
func Grid(cValues []float64, kernels []svm.Kernel) []Candidate {
	out := make([]Candidate, 0, len(cValues)*len(kernels))
	for _, c := range cValues {
		for _, k := range kernels {
			out = append(out, Candidate{C: c, Kernel: k})
		}
	}
	return out
}

// Trial 单个候选的训练与验证结果。Err 非空时其余指标无意义.
type Trial struct {
	Err       error           `json:"-"`
	Model     *svm.Classifier `json:"-"`
	Candidate Candidate       `json:"candidate"`
	Stats     svm.TrainStats  `json:"stats"`
	Duration  time.Duration   `json:"duration"`
	Accuracy  float64         `json:"accuracy"`
}

// SweepResult 全部试验（与候选顺序一致）及最优者.
type SweepResult struct {
	Best   *Trial
	Trials []Trial
}

// Tuner 并行训练候选模型并按验证集准确率挑选最优.
type Tuner struct {
	logger      *logging.Logger
	metrics     *metrics.TrainingMetrics
	trainOpts   []svm.Option
	parallelism int
}

// TunerOption 定义 Tuner 的配置选项.
type TunerOption func(*Tuner)

// WithParallelism 最大并行训练数，<= 0 时取 GOMAXPROCS.
func WithParallelism(n int) TunerOption {
	return func(t *Tuner) {
		t.parallelism = n
	}
}

// WithLogger 设置日志.
func WithLogger(l *logging.Logger) TunerOption {
	return func(t *Tuner) {
		t.logger = l
	}
}

// WithMetrics 设置训练指标.
func WithMetrics(m *metrics.TrainingMetrics) TunerOption {
	return func(t *Tuner) {
		t.metrics = m
	}
}

// WithTrainOptions 每个候选共用的训练选项，候选的 C 覆盖其中的 WithC。
// 候选并行训练，不要传入共享随机源的 svm.WithRand，应使用 svm.WithSeed.
func WithTrainOptions(opts ...svm.Option) TunerOption {
	return func(t *Tuner) {
		t.trainOpts = append(t.trainOpts, opts...)
	}
}

// NewTuner 创建 Tuner.
func NewTuner(opts ...TunerOption) *Tuner {
	t := &Tuner{}
	for _, opt := range opts {
		opt(t)
	}
	if t.parallelism <= 0 {
		t.parallelism = runtime.GOMAXPROCS(0)
	}
	if t.logger == nil {
		t.logger = logging.Discard()
	}
	return t
}

// Sweep 在训练集上训练每个候选并在验证集上打分。
// 单个候选失败只记录在对应 Trial 中；全部失败时返回第一个错误.
// 准确率相同时靠前的候选胜出，因此在固定种子下结果可复现.
func (t *Tuner) Sweep(ctx context.Context, trainX [][]float64, trainY []float64, valX [][]float64, valY []float64, candidates []Candidate) (*SweepResult, error) {
	if len(candidates) == 0 {
		return nil, xerrors.Detailf(xerrors.ErrInvalidConfig, "no tuning candidates")
	}
	defer t.logger.LogDuration(ctx, "hyperparameter sweep", "candidates", len(candidates))()

	trials := make([]Trial, len(candidates))
	p := pool.New().WithContext(ctx).WithMaxGoroutines(t.parallelism)
	for k, cand := range candidates {
		p.Go(func(ctx context.Context) error {
			trials[k] = t.run(ctx, cand, trainX, trainY, valX, valY)
			return nil
		})
	}
	_ = p.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &SweepResult{Trials: trials}
	var firstErr error
	for k := range trials {
		tr := &trials[k]
		if tr.Err != nil {
			if firstErr == nil {
				firstErr = tr.Err
			}
			continue
		}
		if res.Best == nil || tr.Accuracy > res.Best.Accuracy {
			res.Best = tr
		}
	}
	if res.Best == nil {
		return nil, firstErr
	}

	t.logger.InfoContext(ctx, "best candidate selected",
		"candidate", res.Best.Candidate.String(),
		"accuracy", res.Best.Accuracy,
		"support_vectors", res.Best.Model.NumSupportVectors(),
	)
	return res, nil
}

func (t *Tuner) run(ctx context.Context, cand Candidate, trainX [][]float64, trainY []float64, valX [][]float64, valY []float64) Trial {
	tr := Trial{Candidate: cand}
	if err := ctx.Err(); err != nil {
		tr.Err = err
		return tr
	}

	opts := append(append([]svm.Option{}, t.trainOpts...), svm.WithC(cand.C))
	model, err := svm.NewClassifier(cand.Kernel, opts...)
	if err != nil {
		tr.Err = err
		return tr
	}

	start := time.Now()
	if err := model.Train(trainX, trainY); err != nil {
		tr.Err = err
		t.logger.WarnContext(ctx, "candidate training failed", "candidate", cand.String(), "error", err)
		return tr
	}
	tr.Duration = time.Since(start)
	tr.Model = model
	tr.Stats = model.Stats()

	report, err := Evaluate(ctx, model, valX, valY)
	if err != nil {
		tr.Err = err
		return tr
	}
	tr.Accuracy = report.Accuracy

	kernel := cand.Kernel.Name()
	t.metrics.ObserveTraining(kernel, tr.Duration, model.NumSupportVectors(), tr.Stats.Rounds, tr.Stats.AcceptedUpdates)
	t.metrics.ObserveValidation(kernel, strconv.FormatFloat(cand.C, 'g', -1, 64), tr.Accuracy)

	t.logger.DebugContext(ctx, "candidate scored",
		"candidate", cand.String(),
		"accuracy", tr.Accuracy,
		"rounds", tr.Stats.Rounds,
		"early_stopped", tr.Stats.EarlyStopped,
		"duration", tr.Duration,
	)
	return tr
}
