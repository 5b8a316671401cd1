package main

import (
	"context"

	"memprobe/internal/check"
	"memprobe/internal/sandbox/engine"
	"memprobe/internal/sandbox/observer"
	"memprobe/internal/sandbox/profile"
	"memprobe/internal/sandbox/runner"
	appErr "memprobe/pkg/errors"
	"memprobe/pkg/utils/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every scenario in the sandbox and grade the output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.Logger); err != nil {
				return appErr.Wrapf(err, appErr.ConfigInvalid, "init logger failed")
			}
			defer func() {
				_ = logger.Sync()
			}()

			report, err := runScenarios(cmd.Context(), cfg)
			if err != nil {
				logger.Error(cmd.Context(), "probe check failed", zap.Error(err))
				return err
			}
			if opts.format == "json" {
				err = report.WriteJSON(cmd.OutOrStdout())
			} else {
				err = report.WriteText(cmd.OutOrStdout())
			}
			if err != nil {
				return appErr.Wrapf(err, appErr.InternalServerError, "write report failed")
			}

			switch {
			case report.Errors > 0:
				return appErr.Newf(appErr.JudgeSystemError, "%d scenarios could not be run", report.Errors)
			case !report.OK():
				return appErr.Newf(appErr.ScenarioFailed, "%d of %d scenarios failed", report.Failed, report.Total)
			}
			return nil
		},
	}
}

func runScenarios(ctx context.Context, cfg *AppConfig) (check.Report, error) {
	checker, err := newChecker(cfg)
	if err != nil {
		return check.Report{}, err
	}
	return checker.Run(ctx, cfg.Scenarios)
}

func newChecker(cfg *AppConfig) (*check.Checker, error) {
	profiles := profile.NewLocalRepository(cfg.Profiles)
	eng, err := engine.NewEngine(cfg.Sandbox, profiles)
	if err != nil {
		return nil, err
	}
	r := runner.NewRunnerWithObserver(eng, observer.LogRecorder{})
	return check.NewChecker(cfg.Check, r, profiles)
}
