package check

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"memprobe/internal/probe"
	"memprobe/internal/sandbox/profile"
	"memprobe/internal/sandbox/result"
	"memprobe/internal/sandbox/runner"
	"memprobe/internal/sandbox/spec"
	appErr "memprobe/pkg/errors"
	"memprobe/pkg/utils/contextkey"
	"memprobe/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultParallel = 1

// Config controls how scenarios are executed.
type Config struct {
	BinaryPath   string   `yaml:"binaryPath"`
	CmdTpl       string   `yaml:"cmdTpl"`
	Env          []string `yaml:"env"`
	WorkRoot     string   `yaml:"workRoot"`
	Profile      string   `yaml:"profile"`
	Parallel     int      `yaml:"parallel"`
	KeepWorkDirs bool     `yaml:"keepWorkDirs"`
	// DefaultMemory applies to scenarios that leave Memory empty.
	DefaultMemory spec.MemoryEnforcement `yaml:"defaultMemory"`
	// Footprints places rlimit ceilings of auto-expected scenarios.
	Footprints Footprints `yaml:"footprints"`
}

// ProfileSource looks up sandbox profiles by name.
type ProfileSource interface {
	Get(name string) (profile.Profile, error)
}

// Checker runs scenarios through a runner and grades them.
type Checker struct {
	cfg      Config
	runner   runner.Runner
	profiles ProfileSource
	newRunID func() string
}

// NewChecker creates a checker.
func NewChecker(cfg Config, r runner.Runner, profiles ProfileSource) (*Checker, error) {
	if r == nil {
		return nil, appErr.ValidationError("runner", "required")
	}
	if profiles == nil {
		return nil, appErr.ValidationError("profiles", "required")
	}
	if cfg.BinaryPath == "" {
		return nil, appErr.ValidationError("binary_path", "required")
	}
	if cfg.Profile == "" {
		return nil, appErr.ValidationError("profile", "required")
	}
	if !cfg.DefaultMemory.Valid() {
		return nil, appErr.Newf(appErr.ConfigInvalid, "unsupported default memory enforcement: %s", cfg.DefaultMemory)
	}
	if err := cfg.Footprints.Validate(); err != nil {
		return nil, err
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = filepath.Join(os.TempDir(), "memprobe")
	}
	if cfg.Parallel <= 0 {
		cfg.Parallel = defaultParallel
	}
	return &Checker{
		cfg:      cfg,
		runner:   r,
		profiles: profiles,
		newRunID: uuid.NewString,
	}, nil
}

// Run plans and executes every scenario. Invalid scenarios abort the whole
// run before anything executes; sandbox failures are recorded per case.
func (c *Checker) Run(ctx context.Context, scenarios []Scenario) (Report, error) {
	prof, err := c.profiles.Get(c.cfg.Profile)
	if err != nil {
		return Report{}, err
	}

	resolved, plans, err := PlanAll(scenarios, c.cfg.DefaultMemory, c.cfg.Footprints)
	if err != nil {
		return Report{}, err
	}

	cases := make([]CaseReport, len(resolved))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Parallel)
	for i := range resolved {
		i := i
		g.Go(func() error {
			cases[i] = c.runScenario(gctx, resolved[i], plans[i], prof)
			return nil
		})
	}
	_ = g.Wait()

	report := newReport(cases)
	logger.Info(ctx, "scenarios finished",
		zap.Int("total", report.Total),
		zap.Int("passed", report.Passed),
		zap.Int("failed", report.Failed),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

func (c *Checker) runScenario(ctx context.Context, s Scenario, plan Expectation, prof profile.Profile) CaseReport {
	start := time.Now()
	runID, res, err := c.execute(ctx, s, plan.Stdout, prof)
	ctx = scenarioContext(ctx, runID, s.Name)

	caseReport := CaseReport{
		Name:       s.Name,
		RunID:      runID,
		Memory:     s.Memory,
		MemoryMB:   s.MemoryMB,
		Expected:   plan.Verdict,
		Verdict:    res.Verdict,
		TimeMs:     res.TimeMs,
		WallTimeMs: res.WallTimeMs,
		MemoryKB:   res.MemoryKB,
		ExitCode:   res.ExitCode,
		Stdout:     res.Stdout,
	}
	if err != nil {
		caseReport.Verdict = result.VerdictSE
		caseReport.Error = err.Error()
		logger.Error(ctx, "scenario run failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return caseReport
	}
	caseReport.Passed = res.Verdict == plan.Verdict
	if verdictErr := runner.VerdictError(res); verdictErr != nil {
		caseReport.Detail = verdictErr.Error()
	}
	if !caseReport.Passed {
		logger.Warn(ctx, "scenario verdict mismatch",
			zap.String("expected", string(plan.Verdict)),
			zap.String("verdict", string(res.Verdict)),
			zap.String("stdout", res.Stdout),
			zap.String("detail", caseReport.Detail),
		)
	}
	return caseReport
}

func scenarioContext(ctx context.Context, runID, name string) context.Context {
	ctx = context.WithValue(ctx, contextkey.RunID, runID)
	ctx = context.WithValue(ctx, contextkey.Scenario, name)
	return context.WithValue(ctx, contextkey.CaseID, name)
}

// execute runs s once in its own work dir and returns the run id with the
// runner's result.
func (c *Checker) execute(ctx context.Context, s Scenario, expectedStdout string, prof profile.Profile) (string, result.CaseResult, error) {
	runID := c.newRunID()
	ctx = scenarioContext(ctx, runID, s.Name)

	runDir := filepath.Join(c.cfg.WorkRoot, runID)
	if !c.cfg.KeepWorkDirs {
		defer func() {
			if err := os.RemoveAll(runDir); err != nil {
				logger.Warn(ctx, "remove work dir failed", zap.String("dir", runDir), zap.Error(err))
			}
		}()
	}

	req := runner.CaseRequest{
		RunID:          runID,
		CaseID:         s.Name,
		WorkDir:        filepath.Join(runDir, s.Name),
		BinaryPath:     c.cfg.BinaryPath,
		CmdTpl:         c.cfg.CmdTpl,
		Env:            c.cfg.Env,
		Input:          s.Input,
		ExpectedOutput: expectedStdout,
		Profile:        prof,
		Limits:         spec.ResourceLimit{MemoryMB: s.MemoryMB, WallTimeMs: s.WallTimeMs},
		Memory:         s.Memory,
	}
	res, err := c.runner.Run(ctx, req)
	return runID, res, err
}

// calibrationInput is fed to the fixture while calibrating.
const calibrationInput = "2 3\n"

// Calibrate measures the fixture's Footprint under an rlimit mode by
// bisecting ceilings in [1, maxMB]. Outcomes must only improve as the ceiling
// grows: no start, then denied, then the sum.
func (c *Checker) Calibrate(ctx context.Context, mode spec.MemoryEnforcement, maxMB int64) (Footprint, error) {
	if !mode.IsRlimit() {
		return Footprint{}, appErr.Newf(appErr.InvalidParams, "calibrate needs an rlimit mode, got %q", mode)
	}
	if maxMB <= 0 {
		return Footprint{}, appErr.ValidationError("max_mb", "must be positive")
	}
	prof, err := c.profiles.Get(c.cfg.Profile)
	if err != nil {
		return Footprint{}, err
	}

	ops, _ := probe.ReadOperands(strings.NewReader(calibrationInput))
	expected := probe.FormatSum(probe.Sum(ops))
	seen := make(map[int64]Expect)
	outcome := func(mb int64) (Expect, error) {
		if o, ok := seen[mb]; ok {
			return o, nil
		}
		s := Scenario{Name: fmt.Sprintf("calibrate-%dmb", mb), Input: calibrationInput, MemoryMB: mb, Memory: mode}
		_, res, err := c.execute(ctx, s, expected, prof)
		if err != nil {
			return "", err
		}
		var o Expect
		switch res.Verdict {
		case result.VerdictAC:
			o = ExpectSum
		case result.VerdictAD:
			o = ExpectDenied
		case result.VerdictRE:
			o = ExpectNoStart
		default:
			return "", appErr.Newf(appErr.ScenarioFailed, "calibrate at %dMB: unexpected verdict %s", mb, res.Verdict)
		}
		logger.Debug(ctx, "calibration run", zap.Int64("memory_mb", mb), zap.String("outcome", string(o)))
		seen[mb] = o
		return o, nil
	}

	top, err := outcome(maxMB)
	if err != nil {
		return Footprint{}, err
	}
	if top != ExpectSum {
		return Footprint{}, appErr.Newf(appErr.ScenarioFailed, "fixture does not print the sum under %s:%dMB (%s)", mode, maxMB, top)
	}
	sumMB, err := lowestCeiling(maxMB, func(mb int64) (bool, error) {
		o, err := outcome(mb)
		return o == ExpectSum, err
	})
	if err != nil {
		return Footprint{}, err
	}
	startMB, err := lowestCeiling(sumMB, func(mb int64) (bool, error) {
		o, err := outcome(mb)
		return o != ExpectNoStart, err
	})
	if err != nil {
		return Footprint{}, err
	}

	fp := Footprint{StartMB: startMB, SumMB: sumMB}
	logger.Info(ctx, "calibration finished",
		zap.String("memory", string(mode)),
		zap.Int64("start_mb", fp.StartMB),
		zap.Int64("sum_mb", fp.SumMB),
		zap.Int("runs", len(seen)),
	)
	return fp, nil
}

// lowestCeiling returns the smallest ceiling in [1, hi] for which ok holds.
// ok(hi) must hold and ok must be monotone.
func lowestCeiling(hi int64, ok func(int64) (bool, error)) (int64, error) {
	lo := int64(1)
	for lo < hi {
		mid := lo + (hi-lo)/2
		good, err := ok(mid)
		if err != nil {
			return 0, err
		}
		if good {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return hi, nil
}
