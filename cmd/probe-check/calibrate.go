package main

import (
	"encoding/json"
	"io"

	"memprobe/internal/check"
	"memprobe/internal/sandbox/spec"
	appErr "memprobe/pkg/errors"
	"memprobe/pkg/utils/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const defaultCalibrateMaxMB = 1024

func newCalibrateCmd(opts *rootOptions) *cobra.Command {
	var memory string
	var maxMB int64
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Measure the ceilings at which the fixture starts and sums under an rlimit",
		Long: `Bisects rlimit ceilings to find where the fixture's runtime first reaches
the probe (startMB) and where the probe first succeeds (sumMB). The result is
printed as a config overlay; pass it with -c so auto-expected rlimit scenarios
can be planned.`,
		Args: cobra.NoArgs,
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

			mode := spec.MemoryEnforcement(memory)
			if mode == "" {
				mode = cfg.Check.DefaultMemory
			}
			checker, err := newChecker(cfg)
			if err != nil {
				return err
			}
			fp, err := checker.Calibrate(cmd.Context(), mode, maxMB)
			if err != nil {
				logger.Error(cmd.Context(), "calibration failed", zap.Error(err))
				return err
			}
			if err := writeFootprint(cmd.OutOrStdout(), opts.format, mode, fp); err != nil {
				return appErr.Wrapf(err, appErr.InternalServerError, "write footprint failed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&memory, "memory", "", "rlimit mode to calibrate, defaults to check.defaultMemory")
	cmd.Flags().Int64Var(&maxMB, "max-mb", defaultCalibrateMaxMB, "largest ceiling tried, in MB")
	return cmd
}

// writeFootprint prints fp as a config overlay for mode.
func writeFootprint(w io.Writer, format string, mode spec.MemoryEnforcement, fp check.Footprint) error {
	overlay := map[string]any{
		"check": map[string]any{
			"footprints": check.Footprints{mode: fp},
		},
	}
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(overlay)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(overlay); err != nil {
		return err
	}
	return enc.Close()
}
