// Command probe-check runs the memprobe fixture under a set of memory ceilings
// and reports whether each run produced the expected output.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	appErr "memprobe/pkg/errors"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const (
	defaultConfigPath = "configs/probe_check.yaml"
	configEnv         = "MEMPROBE_CONFIG"
)

type rootOptions struct {
	configPaths []string
	fixture     string
	parallel    int
	format      string
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env failed: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	if err != nil && !appErr.Is(err, appErr.ScenarioFailed) {
		fmt.Fprintf(os.Stderr, "probe-check: %v\n", err)
	}
	stop()
	os.Exit(exitStatus(err))
}

// exitStatus folds every failure other than a failed scenario into 2.
func exitStatus(err error) int {
	code := appErr.ExitCode(err)
	if code > 2 {
		return 2
	}
	return code
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "probe-check",
		Short:         "Check the memprobe fixture against memory ceilings",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	configDefault := []string{defaultConfigPath}
	if env := os.Getenv(configEnv); env != "" {
		configDefault = strings.Split(env, ",")
	}
	flags := root.PersistentFlags()
	flags.StringSliceVarP(&opts.configPaths, "config", "c", configDefault,
		"config files, later ones overlay earlier ones (env "+configEnv+", comma separated)")
	flags.StringVar(&opts.fixture, "fixture", "", "fixture binary, overrides check.binaryPath")
	flags.IntVarP(&opts.parallel, "parallel", "p", 0, "scenarios run at once, overrides check.parallel")
	flags.StringVarP(&opts.format, "format", "f", "text", "report format: text or json")

	root.AddCommand(newRunCmd(opts), newPlanCmd(opts), newCalibrateCmd(opts))
	return root
}

// load reads the config file and applies flag overrides.
func (o *rootOptions) load() (*AppConfig, error) {
	switch o.format {
	case "text", "json":
	default:
		return nil, appErr.Newf(appErr.InvalidParams, "unsupported format %q", o.format)
	}
	cfg, err := loadAppConfig(o.configPaths...)
	if err != nil {
		return nil, err
	}
	if o.fixture != "" {
		cfg.Check.BinaryPath = o.fixture
	}
	if o.parallel > 0 {
		cfg.Check.Parallel = o.parallel
	}
	return cfg, nil
}
