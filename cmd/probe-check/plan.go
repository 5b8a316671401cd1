package main

import (
	"encoding/json"

	"memprobe/internal/check"
	appErr "memprobe/pkg/errors"

	"github.com/spf13/cobra"
)

func newPlanCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the expected outcome of every scenario without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			_, plans, err := check.PlanAll(cfg.Scenarios, cfg.Check.DefaultMemory, cfg.Check.Footprints)
			if err != nil {
				return err
			}
			if opts.format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				err = enc.Encode(plans)
			} else {
				err = check.WritePlan(cmd.OutOrStdout(), plans)
			}
			if err != nil {
				return appErr.Wrapf(err, appErr.InternalServerError, "write plan failed")
			}
			return nil
		},
	}
}
