package pipeline

import (
	"github.com/wyfcoding/smosvm/algorithm/svm"
	"github.com/wyfcoding/smosvm/config"
	"github.com/wyfcoding/smosvm/evaluation"
	"github.com/wyfcoding/smosvm/xerrors"
)

// KernelFromConfig 把配置转换为核函数并校验参数.
func KernelFromConfig(kc config.KernelConfig) (svm.Kernel, error) {
	t, err := svm.ParseKernelType(kc.Type)
	if err != nil {
		return svm.Kernel{}, err
	}
	switch t {
	case svm.KernelPolynomial:
		return svm.Polynomial(kc.Constant, kc.Degree)
	case svm.KernelRBF:
		return svm.RBF(kc.Gamma)
	default:
		return svm.Linear(), nil
	}
}

// TrainOptions 训练选项，不含 C（由候选决定）.
func TrainOptions(mc config.ModelConfig) ([]svm.Option, error) {
	rule := svm.BiasTextbook
	switch mc.BiasRule {
	case "", "textbook":
	case "reduced":
		rule = svm.BiasReduced
	default:
		return nil, xerrors.Detailf(xerrors.ErrInvalidConfig, "unknown bias rule %q", mc.BiasRule)
	}
	return []svm.Option{
		svm.WithTolerance(mc.Tolerance),
		svm.WithEpsilon(mc.Epsilon),
		svm.WithMaxIterations(mc.MaxIterations),
		svm.WithMaxPairsPerRound(mc.MaxPairsPerRound),
		svm.WithEarlyStop(mc.MinAccepted, mc.Patience),
		svm.WithInitialNoise(mc.InitialNoise),
		svm.WithSupportThreshold(mc.SupportThreshold),
		svm.WithBiasRule(rule),
		svm.WithSeed(mc.Seed),
	}, nil
}

// Candidates 调参开启时为 c_values x kernels 的网格，缺省维度退回 model 段的单值；否则只有 model 段一个候选.
func Candidates(cfg *config.Config) ([]evaluation.Candidate, error) {
	base, err := KernelFromConfig(cfg.Model.Kernel)
	if err != nil {
		return nil, err
	}
	if !cfg.Tuning.Enabled {
		return []evaluation.Candidate{{C: cfg.Model.C, Kernel: base}}, nil
	}

	cValues := cfg.Tuning.CValues
	if len(cValues) == 0 {
		cValues = []float64{cfg.Model.C}
	}
	kernels := []svm.Kernel{base}
	if len(cfg.Tuning.Kernels) > 0 {
		kernels = kernels[:0]
		for _, kc := range cfg.Tuning.Kernels {
			k, err := KernelFromConfig(kc)
			if err != nil {
				return nil, err
			}
			kernels = append(kernels, k)
		}
	}
	return evaluation.Grid(cValues, kernels), nil
}
