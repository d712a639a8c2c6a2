package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/wyfcoding/smosvm/limiter"
	"github.com/wyfcoding/smosvm/metrics"
	"github.com/wyfcoding/smosvm/server"
	"github.com/wyfcoding/smosvm/storage"
	"github.com/wyfcoding/smosvm/xerrors"
)

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "serve predictions over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := a.cfg

			m := metrics.NewMetrics(cfg.App.Name)
			m.RegisterBuildInfo(cfg.App.Name, version)
			if cfg.Metrics.Enabled && cfg.Metrics.Addr != "" {
				stop := m.ExposeHTTP(cfg.Metrics.Addr, cfg.Metrics.Path)
				defer stop()
			}

			backend, err := storage.New(ctx, cfg.Storage)
			if err != nil {
				return err
			}
			svc := server.NewPredictionService(storage.NewModelStore(backend, a.logger.Logger), m, a.logger.Named("server"), cfg.Server.HTTP.MaxBatch)
			if err := svc.LoadModel(ctx, cfg.Storage.Key); err != nil {
				if !errors.Is(err, xerrors.ErrModelNotFound) {
					return err
				}
				a.logger.WarnContext(ctx, "no model stored yet, serving 412 until one is loaded", "key", cfg.Storage.Key)
			}

			l, closeLimiter := limiter.New(cfg.Server.RateLimit)
			defer closeLimiter()

			if a.manager != nil {
				svc.WatchConfig(a.manager)
				a.manager.Watch()
			}

			engine, err := server.NewEngine(cfg, svc, server.EngineDeps{Metrics: m, Limiter: l, Logger: a.logger})
			if err != nil {
				return err
			}
			return server.NewGinServer(engine, cfg.Server.HTTP, a.logger.Logger).Start(ctx)
		},
	}
}
