// Package pipeline 串联完整的训练流程：读取、预处理、分层划分、训练或调参、测试集评估与产物持久化.
package pipeline

import (
	"context"
	"time"

	"github.com/wyfcoding/smosvm/config"
	"github.com/wyfcoding/smosvm/dataset"
	"github.com/wyfcoding/smosvm/evaluation"
	"github.com/wyfcoding/smosvm/logging"
	"github.com/wyfcoding/smosvm/metrics"
	"github.com/wyfcoding/smosvm/storage"
	"github.com/wyfcoding/smosvm/tracing"
	"github.com/wyfcoding/smosvm/xerrors"
)

// Deps 运行依赖，均可为 nil：Store 为 nil 时不持久化.
type Deps struct {
	Store   *storage.ModelStore
	Metrics *metrics.TrainingMetrics
	Logger  *logging.Logger
}

// Outcome 一次运行的结果.
type Outcome struct {
	Best        *evaluation.Trial
	TestReport  *evaluation.Report
	Bundle      *storage.Bundle
	ArtifactKey string // 未持久化时为空
	Trials      []evaluation.Trial
	Rows        int
	TrainRows   int
	ValRows     int
	TestRows    int
}

// Run 从 cfg.Data.Path 读取 CSV 并执行完整流程.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (*Outcome, error) {
	var data [][]float64
	err := tracing.Run(ctx, "pipeline.load", func(ctx context.Context) error {
		delim, err := dataset.ParseDelimiter(cfg.Data.Delimiter)
		if err != nil {
			return err
		}
		data, err = dataset.ReadCSVFile(cfg.Data.Path, dataset.CSVOptions{HasHeader: cfg.Data.HasHeader, Delimiter: delim})
		tracing.AddTag(ctx, "rows", len(data))
		return err
	})
	if err != nil {
		return nil, err
	}
	return RunData(ctx, cfg, data, deps)
}

// RunData 在已读入的矩阵上执行流程，标签列由 cfg.Data.LabelColumn 指定（-1 为最后一列）.
func RunData(ctx context.Context, cfg *config.Config, data [][]float64, deps Deps) (*Outcome, error) {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.Named("pipeline")
	ctx, span := tracing.StartSpan(ctx, "pipeline.run")
	defer span.End()
	defer logger.LogDuration(ctx, "training pipeline", "rows", len(data))()

	out := &Outcome{Rows: len(data)}
	if len(data) == 0 {
		return nil, xerrors.Detailf(xerrors.ErrEmptyData, "no rows in %q", cfg.Data.Path)
	}

	// 标签与划分.
	var (
		split  *dataset.Split
		labels dataset.LabelEncoding
	)
	err := tracing.Run(ctx, "pipeline.split", func(ctx context.Context) error {
		col := cfg.Data.LabelColumn
		if col < 0 {
			col = len(data[0]) - 1
		}
		x, rawY, err := dataset.SplitFeaturesAndLabels(data, col)
		if err != nil {
			return err
		}
		y, enc, err := dataset.EncodeLabels(rawY)
		if err != nil {
			return err
		}
		labels = enc

		splitter := dataset.NewSplitter(cfg.Split.Shuffle, cfg.Split.Seed)
		split, err = splitter.Stratified(x, y, cfg.Split.Train, cfg.Split.Validation)
		return err
	})
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}
	out.TrainRows, out.ValRows, out.TestRows = len(split.TrainY), len(split.ValidationY), len(split.TestY)
	logger.InfoContext(ctx, "dataset split",
		"train", out.TrainRows, "validation", out.ValRows, "test", out.TestRows,
		"negative_label", labels.Negative, "positive_label", labels.Positive,
	)

	// 缩放参数只在训练集上拟合，再应用到验证集与测试集.
	var scaler *dataset.Scaler
	err = tracing.Run(ctx, "pipeline.preprocess", func(ctx context.Context) error {
		var err error
		if len(split.TrainX) == 0 {
			return xerrors.Detailf(xerrors.ErrEmptyData, "training split is empty, raise split.train")
		}
		if scaler, err = dataset.FitScaler(split.TrainX, dataset.ScaleMethod(cfg.Data.Scale)); err != nil {
			return err
		}
		if split.TrainX, err = scaler.Transform(split.TrainX); err != nil {
			return err
		}
		if split.ValidationX, err = scaler.Transform(split.ValidationX); err != nil {
			return err
		}
		split.TestX, err = scaler.Transform(split.TestX)
		return err
	})
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}

	// 训练与调参.
	err = tracing.Run(ctx, "pipeline.train", func(ctx context.Context) error {
		candidates, err := Candidates(cfg)
		if err != nil {
			return err
		}
		opts, err := TrainOptions(cfg.Model)
		if err != nil {
			return err
		}
		valX, valY := split.ValidationX, split.ValidationY
		if len(valY) == 0 {
			if len(candidates) > 1 {
				logger.WarnContext(ctx, "validation split is empty, scoring candidates on the training split")
			}
			valX, valY = split.TrainX, split.TrainY
		}

		tuner := evaluation.NewTuner(
			evaluation.WithParallelism(cfg.Tuning.Parallelism),
			evaluation.WithLogger(logger),
			evaluation.WithMetrics(deps.Metrics),
			evaluation.WithTrainOptions(opts...),
		)
		res, err := tuner.Sweep(ctx, split.TrainX, split.TrainY, valX, valY, candidates)
		if err != nil {
			return err
		}
		out.Trials, out.Best = res.Trials, res.Best
		tracing.AddTag(ctx, "candidates", len(candidates))
		tracing.AddTag(ctx, "best", res.Best.Candidate.String())
		return nil
	})
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}

	best := out.Best
	if best.Stats.Degenerate {
		logger.WarnContext(ctx, "trained on fewer than two examples, model is trivial",
			"error", xerrors.Detailf(xerrors.ErrDegenerateInput, "%d training rows", out.TrainRows))
	}
	logger.InfoContext(ctx, "model trained",
		"candidate", best.Candidate.String(),
		"validation_accuracy", best.Accuracy,
		"support_vectors", best.Model.NumSupportVectors(),
		"rounds", best.Stats.Rounds,
		"accepted_updates", best.Stats.AcceptedUpdates,
		"early_stopped", best.Stats.EarlyStopped,
	)

	err = tracing.Run(ctx, "pipeline.evaluate", func(ctx context.Context) error {
		report, err := evaluation.Evaluate(ctx, best.Model, split.TestX, split.TestY)
		if err != nil {
			return err
		}
		out.TestReport = report
		tracing.AddTag(ctx, "test.accuracy", report.Accuracy)
		return nil
	})
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}
	logger.InfoContext(ctx, "test evaluation",
		"samples", out.TestReport.Samples,
		"accuracy", out.TestReport.Accuracy,
		"precision", out.TestReport.Precision,
		"recall", out.TestReport.Recall,
		"f1", out.TestReport.F1,
		"confusion", out.TestReport.Confusion.String(),
	)

	art, err := best.Model.Artifact()
	if err != nil {
		return nil, err
	}
	out.Bundle = &storage.Bundle{
		Model:     art,
		Scaler:    scaler,
		Labels:    &labels,
		Report:    out.TestReport,
		CreatedAt: time.Now().UTC(),
	}

	if deps.Store == nil {
		return out, nil
	}
	err = tracing.Run(ctx, "pipeline.persist", func(ctx context.Context) error {
		return deps.Store.Save(ctx, cfg.Storage.Key, out.Bundle)
	})
	if err != nil {
		tracing.SetError(ctx, err)
		return nil, err
	}
	out.ArtifactKey = cfg.Storage.Key
	return out, nil
}
