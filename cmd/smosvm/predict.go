package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wyfcoding/smosvm/dataset"
	"github.com/wyfcoding/smosvm/server"
	"github.com/wyfcoding/smosvm/storage"
)

func (a *app) predictCmd() *cobra.Command {
	var (
		key      string
		labelCol int
	)
	cmd := &cobra.Command{
		Use:   "predict FILE.csv",
		Short: "classify the feature rows of a CSV file with the stored model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if key == "" {
				key = a.cfg.Storage.Key
			}

			backend, err := storage.New(ctx, a.cfg.Storage)
			if err != nil {
				return err
			}
			bundle, err := storage.NewModelStore(backend, a.logger.Logger).Load(ctx, key)
			if err != nil {
				return err
			}
			model, err := server.NewModel(key, bundle)
			if err != nil {
				return err
			}

			delim, err := dataset.ParseDelimiter(a.cfg.Data.Delimiter)
			if err != nil {
				return err
			}
			rows, err := dataset.ReadCSVFile(args[0], dataset.CSVOptions{HasHeader: a.cfg.Data.HasHeader, Delimiter: delim})
			if err != nil {
				return err
			}
			if labelCol >= 0 {
				if rows, _, err = dataset.SplitFeaturesAndLabels(rows, labelCol); err != nil {
					return err
				}
			}

			preds, err := model.Predict(rows)
			if err != nil {
				return err
			}
			for _, p := range preds {
				fmt.Fprintf(cmd.OutOrStdout(), "%g\t%.6f\n", p.Label, p.Score)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "artifact key, defaults to storage.key")
	cmd.Flags().IntVar(&labelCol, "drop-column", -1, "column to drop before predicting, e.g. a label column")
	return cmd
}
