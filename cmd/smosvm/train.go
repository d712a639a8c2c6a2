package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wyfcoding/smosvm/metrics"
	"github.com/wyfcoding/smosvm/pipeline"
	"github.com/wyfcoding/smosvm/storage"
)

func (a *app) trainCmd() *cobra.Command {
	var (
		dataPath string
		noSave   bool
	)
	cmd := &cobra.Command{
		Use:   "train",
		Short: "train a model from the configured CSV and store the artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := *a.cfg
			if dataPath != "" {
				cfg.Data.Path = dataPath
			}

			m := metrics.NewMetrics(cfg.App.Name)
			m.RegisterBuildInfo(cfg.App.Name, version)
			if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
				stop := m.ExposeHTTP(cfg.Metrics.Addr, cfg.Metrics.Path)
				defer stop()
			}

			deps := pipeline.Deps{Metrics: m.Training, Logger: a.logger}
			if !noSave {
				backend, err := storage.New(ctx, cfg.Storage)
				if err != nil {
					return err
				}
				deps.Store = storage.NewModelStore(backend, a.logger.Logger)
			}

			out, err := pipeline.Run(ctx, &cfg, deps)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CANDIDATE\tVAL ACC\tSV\tROUNDS\tERROR")
			for _, tr := range out.Trials {
				errText := ""
				sv := 0
				if tr.Err != nil {
					errText = tr.Err.Error()
				} else {
					sv = tr.Model.NumSupportVectors()
				}
				fmt.Fprintf(w, "%s\t%.4f\t%d\t%d\t%s\n", tr.Candidate, tr.Accuracy, sv, tr.Stats.Rounds, errText)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			r := out.TestReport
			fmt.Fprintf(cmd.OutOrStdout(), "\nbest: %s\ntest: n=%d accuracy=%.4f precision=%.4f recall=%.4f f1=%.4f %s\n",
				out.Best.Candidate, r.Samples, r.Accuracy, r.Precision, r.Recall, r.F1, r.Confusion)
			if out.ArtifactKey != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "artifact: %s (%s)\n", out.ArtifactKey, cfg.Storage.Driver)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "", "override data.path")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "skip persisting the artifact")
	return cmd
}
