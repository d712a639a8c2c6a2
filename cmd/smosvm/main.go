// Command smosvm 训练核 SVM、批量预测并提供 HTTP 预测服务.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wyfcoding/smosvm/config"
	"github.com/wyfcoding/smosvm/logging"
	"github.com/wyfcoding/smosvm/tracing"
)

// version 构建时通过 -ldflags "-X main.version=..." 注入.
var version = "dev"

type app struct {
	manager *config.Manager
	cfg     *config.Config
	logger  *logging.Logger
	cleanup []func(context.Context) error

	configPath string
}

func main() {
	a := &app{}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(a).ExecuteContext(ctx)
	if terr := a.teardown(ctx); err == nil {
		err = terr
	}
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "smosvm",
		Short:         "kernel SVM trained by randomized SMO",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.teardown(cmd.Context())
		},
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "TOML config file, built-in defaults when empty")

	root.AddCommand(a.trainCmd(), a.predictCmd(), a.serveCmd(), versionCmd())
	return root
}

func (a *app) setup(ctx context.Context) error {
	if a.configPath == "" {
		a.cfg = config.Default()
	} else {
		m, err := config.Load(a.configPath)
		if err != nil {
			return err
		}
		a.manager, a.cfg = m, m.Config()
	}

	a.logger = logging.InitLogger(logging.Config{
		Writer:     os.Stderr,
		Service:    a.cfg.App.Name,
		Module:     "cli",
		Level:      a.cfg.Log.Level,
		File:       a.cfg.Log.File,
		MaxSize:    a.cfg.Log.MaxSize,
		MaxBackups: a.cfg.Log.MaxBackups,
		MaxAge:     a.cfg.Log.MaxAge,
		Compress:   a.cfg.Log.Compress,
		Console:    a.cfg.Log.Console,
	})
	a.cleanup = append(a.cleanup, func(context.Context) error { return a.logger.Close() })

	shutdown, err := tracing.InitTracer(ctx, a.cfg.Tracing)
	if err != nil {
		return err
	}
	a.cleanup = append(a.cleanup, shutdown)
	return nil
}

func (a *app) teardown(ctx context.Context) error {
	var first error
	for k := len(a.cleanup) - 1; k >= 0; k-- {
		if err := a.cleanup[k](context.WithoutCancel(ctx)); err != nil && first == nil {
			first = err
		}
	}
	a.cleanup = nil
	return first
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
