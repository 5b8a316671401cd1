package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/shlex"

	"memprobe/internal/probe"
	"memprobe/internal/sandbox/engine"
	"memprobe/internal/sandbox/observer"
	"memprobe/internal/sandbox/result"
	"memprobe/internal/sandbox/spec"
	appErr "memprobe/pkg/errors"
)

const (
	defaultCmdTpl  = "{bin}"
	inputName      = "input.txt"
	outputName     = "output.txt"
	runtimeLogName = "runtime.log"
)

// ProbeRunner implements Runner on top of a sandbox engine.
type ProbeRunner struct {
	eng     engine.Engine
	metrics observer.MetricsRecorder
}

// NewRunner creates a new runner backed by the sandbox engine.
func NewRunner(eng engine.Engine) *ProbeRunner {
	return NewRunnerWithObserver(eng, observer.NoopMetricsRecorder{})
}

// NewRunnerWithObserver creates a new runner with metrics hooks.
func NewRunnerWithObserver(eng engine.Engine, metrics observer.MetricsRecorder) *ProbeRunner {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	return &ProbeRunner{eng: eng, metrics: metrics}
}

func (r *ProbeRunner) Run(ctx context.Context, req CaseRequest) (result.CaseResult, error) {
	if err := validateCaseRequest(req); err != nil {
		return result.CaseResult{}, err
	}
	if err := prepareWorkDir(req.WorkDir); err != nil {
		return result.CaseResult{}, err
	}
	inputPath := filepath.Join(req.WorkDir, inputName)
	if err := os.WriteFile(inputPath, []byte(req.Input), 0644); err != nil {
		return result.CaseResult{}, appErr.Wrapf(err, appErr.InternalServerError, "write input failed")
	}

	cmd, err := buildCommand(req.CmdTpl, req.BinaryPath, req.WorkDir)
	if err != nil {
		return result.CaseResult{}, err
	}
	limits := req.Profile.DefaultLimits.Merge(req.Limits)
	runtimeLogPath := filepath.Join(req.WorkDir, runtimeLogName)

	runSpec := spec.RunSpec{
		RunID:      req.RunID,
		CaseID:     req.CaseID,
		WorkDir:    req.WorkDir,
		Cmd:        cmd,
		Env:        req.Env,
		StdinPath:  inputPath,
		StdoutPath: filepath.Join(req.WorkDir, outputName),
		StderrPath: runtimeLogPath,
		Profile:    req.Profile.Name,
		Limits:     limits,
		Memory:     req.Memory,
	}

	runRes, runErr := r.eng.Run(ctx, runSpec)
	if runErr != nil {
		r.metrics.ObserveRun(ctx, req.CaseID, string(result.VerdictSE), runRes.TimeMs, runRes.MemoryKB, runRes.OutputKB)
		return result.CaseResult{
			CaseID:         req.CaseID,
			Verdict:        result.VerdictSE,
			ExitCode:       runRes.ExitCode,
			RuntimeLogPath: runtimeLogPath,
			Stderr:         runRes.Stderr,
		}, runErr
	}

	verdict := mapRunVerdict(runRes, limits, req.ExpectedOutput)
	res := result.CaseResult{
		CaseID:         req.CaseID,
		Verdict:        verdict,
		TimeMs:         runRes.TimeMs,
		WallTimeMs:     runRes.WallTimeMs,
		MemoryKB:       runRes.MemoryKB,
		OutputKB:       runRes.OutputKB,
		ExitCode:       runRes.ExitCode,
		RuntimeLogPath: runtimeLogPath,
		Stdout:         runRes.Stdout,
		Stderr:         runRes.Stderr,
	}
	r.metrics.ObserveRun(ctx, req.CaseID, string(verdict), res.TimeMs, res.MemoryKB, res.OutputKB)
	return res, nil
}

func validateCaseRequest(req CaseRequest) error {
	if req.RunID == "" {
		return appErr.ValidationError("run_id", "required")
	}
	if req.CaseID == "" {
		return appErr.ValidationError("case_id", "required")
	}
	if req.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if req.BinaryPath == "" {
		return appErr.ValidationError("binary_path", "required")
	}
	if req.Profile.Name == "" {
		return appErr.ValidationError("profile", "required")
	}
	if !req.Memory.Valid() {
		return appErr.Newf(appErr.InvalidValue, "unsupported memory enforcement: %s", req.Memory)
	}
	return nil
}

func buildCommand(tpl, binaryPath, workDir string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		tpl = defaultCmdTpl
	}
	expanded := strings.ReplaceAll(tpl, "{bin}", binaryPath)
	expanded = strings.ReplaceAll(expanded, "{workdir}", workDir)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InvalidParams, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, appErr.New(appErr.InvalidParams).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

// mapRunVerdict checks resource verdicts first, then the fixture's own
// denial report, then the answer.
func mapRunVerdict(res result.RunResult, limits spec.ResourceLimit, expected string) result.Verdict {
	if res.TimedOut {
		return result.VerdictTLE
	}
	if res.OomKilled {
		return result.VerdictMLE
	}
	if limits.MemoryMB > 0 && res.MemoryKB > limits.MemoryMB*1024 {
		return result.VerdictMLE
	}
	if limits.OutputMB > 0 && res.OutputKB > limits.OutputMB*1024 {
		return result.VerdictOLE
	}
	if res.ExitCode == probe.ExitDenied && res.Stdout == probe.DeniedOutput {
		return result.VerdictAD
	}
	if res.ExitCode != 0 {
		return result.VerdictRE
	}
	if res.Stdout != expected {
		return result.VerdictWA
	}
	return result.VerdictAC
}

// VerdictError describes a resource or runtime verdict as a coded error.
// It returns nil for verdicts that are not failures of the run itself.
func VerdictError(res result.CaseResult) error {
	switch res.Verdict {
	case result.VerdictTLE:
		return appErr.Newf(appErr.TimeLimitExceeded, "time limit exceeded: cpu %dms, wall %dms", res.TimeMs, res.WallTimeMs)
	case result.VerdictMLE:
		return appErr.Newf(appErr.MemoryLimitExceeded, "memory limit exceeded: peak %dKB", res.MemoryKB)
	case result.VerdictOLE:
		return appErr.Newf(appErr.OutputLimitExceeded, "output limit exceeded: %dKB", res.OutputKB)
	case result.VerdictRE:
		msg := fmt.Sprintf("runtime error: exit status %d", res.ExitCode)
		if line := firstLine(res.Stderr); line != "" {
			msg += ": " + line
		}
		return appErr.New(appErr.RuntimeError).WithMessage(msg).WithDetail("exit_code", res.ExitCode)
	}
	return nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}

func prepareWorkDir(workDir string) error {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return appErr.Wrapf(err, appErr.InternalServerError, "create work dir failed")
	}
	return nil
}
