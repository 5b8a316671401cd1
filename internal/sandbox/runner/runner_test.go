package runner_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"memprobe/internal/probe"
	"memprobe/internal/sandbox/profile"
	"memprobe/internal/sandbox/result"
	"memprobe/internal/sandbox/runner"
	"memprobe/internal/sandbox/spec"
	appErr "memprobe/pkg/errors"
)

type fakeEngine struct {
	runResult result.RunResult
	runErr    error
	runSpecs  []spec.RunSpec
}

func (f *fakeEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	f.runSpecs = append(f.runSpecs, runSpec)
	return f.runResult, f.runErr
}

func (f *fakeEngine) KillRun(ctx context.Context, runID string) error {
	return nil
}

type recordedRun struct {
	caseID  string
	verdict string
}

type recordingMetrics struct {
	runs []recordedRun
}

func (m *recordingMetrics) ObserveRun(ctx context.Context, caseID string, verdict string, timeMs int64, memoryKB int64, outputKB int64) {
	m.runs = append(m.runs, recordedRun{caseID: caseID, verdict: verdict})
}

func baseRequest(workDir string) runner.CaseRequest {
	return runner.CaseRequest{
		RunID:          "run-1",
		CaseID:         "sum",
		WorkDir:        workDir,
		BinaryPath:     "/usr/local/bin/memprobe",
		Input:          "2 3\n",
		ExpectedOutput: "5\n",
		Profile: profile.Profile{
			Name:          "probe",
			DefaultLimits: spec.ResourceLimit{CPUTimeMs: 1000, WallTimeMs: 3000, MemoryMB: 256, PIDs: 4},
		},
		Limits: spec.ResourceLimit{MemoryMB: 64},
		Memory: spec.MemoryRlimitData,
	}
}

func TestProbeRunnerBuildsRunSpec(t *testing.T) {
	workDir := filepath.Join(t.TempDir(), "case")
	eng := &fakeEngine{runResult: result.RunResult{Stdout: "5\n"}}
	r := runner.NewRunner(eng)

	req := baseRequest(workDir)
	req.CmdTpl = "{bin} --scratch {workdir}/tmp"
	req.Env = []string{"LANG=C"}

	res, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if res.Verdict != result.VerdictAC {
		t.Fatalf("verdict = %s, want AC", res.Verdict)
	}

	if len(eng.runSpecs) != 1 {
		t.Fatalf("expected 1 run spec, got %d", len(eng.runSpecs))
	}
	runSpec := eng.runSpecs[0]
	wantCmd := []string{"/usr/local/bin/memprobe", "--scratch", workDir + "/tmp"}
	if len(runSpec.Cmd) != len(wantCmd) {
		t.Fatalf("unexpected cmd: %v", runSpec.Cmd)
	}
	for i := range wantCmd {
		if runSpec.Cmd[i] != wantCmd[i] {
			t.Fatalf("cmd[%d] = %q, want %q", i, runSpec.Cmd[i], wantCmd[i])
		}
	}
	if runSpec.Limits.MemoryMB != 64 || runSpec.Limits.CPUTimeMs != 1000 || runSpec.Limits.PIDs != 4 {
		t.Fatalf("limits not merged: %+v", runSpec.Limits)
	}
	if runSpec.Memory != spec.MemoryRlimitData {
		t.Fatalf("unexpected memory mode: %s", runSpec.Memory)
	}
	if runSpec.Profile != "probe" {
		t.Fatalf("unexpected profile: %s", runSpec.Profile)
	}
	if runSpec.StdinPath != filepath.Join(workDir, "input.txt") {
		t.Fatalf("unexpected stdin path: %s", runSpec.StdinPath)
	}
	if res.RuntimeLogPath != filepath.Join(workDir, "runtime.log") {
		t.Fatalf("unexpected runtime log path: %s", res.RuntimeLogPath)
	}

	data, err := os.ReadFile(runSpec.StdinPath)
	if err != nil {
		t.Fatalf("read input: %v", err)
	}
	if string(data) != "2 3\n" {
		t.Fatalf("unexpected input content: %q", string(data))
	}
}

func TestProbeRunnerDefaultCommand(t *testing.T) {
	eng := &fakeEngine{}
	r := runner.NewRunner(eng)
	if _, err := r.Run(context.Background(), baseRequest(t.TempDir())); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	cmd := eng.runSpecs[0].Cmd
	if len(cmd) != 1 || cmd[0] != "/usr/local/bin/memprobe" {
		t.Fatalf("unexpected default cmd: %v", cmd)
	}
}

func TestProbeRunnerVerdicts(t *testing.T) {
	tests := []struct {
		name   string
		res    result.RunResult
		limits spec.ResourceLimit
		want   result.Verdict
	}{
		{
			name: "accepted",
			res:  result.RunResult{Stdout: "5\n"},
			want: result.VerdictAC,
		},
		{
			name: "wrong answer",
			res:  result.RunResult{Stdout: "6\n"},
			want: result.VerdictWA,
		},
		{
			name: "allocation denied",
			res:  result.RunResult{ExitCode: probe.ExitDenied, Stdout: probe.DeniedOutput},
			want: result.VerdictAD,
		},
		{
			name: "exit one with other output",
			res:  result.RunResult{ExitCode: 1, Stdout: "5\n"},
			want: result.VerdictRE,
		},
		{
			name: "signal",
			res:  result.RunResult{ExitCode: -1, Signal: "SIGSEGV"},
			want: result.VerdictRE,
		},
		{
			name: "timed out",
			res:  result.RunResult{ExitCode: -1, TimedOut: true},
			want: result.VerdictTLE,
		},
		{
			name: "oom killed",
			res:  result.RunResult{ExitCode: -1, Signal: "SIGKILL", OomKilled: true},
			want: result.VerdictMLE,
		},
		{
			name:   "peak over limit",
			res:    result.RunResult{Stdout: "5\n", MemoryKB: 70 * 1024},
			limits: spec.ResourceLimit{MemoryMB: 64},
			want:   result.VerdictMLE,
		},
		{
			name:   "output over limit",
			res:    result.RunResult{Stdout: "5\n", OutputKB: 2048},
			limits: spec.ResourceLimit{OutputMB: 1},
			want:   result.VerdictOLE,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{runResult: tt.res}
			metrics := &recordingMetrics{}
			r := runner.NewRunnerWithObserver(eng, metrics)

			req := baseRequest(t.TempDir())
			req.Profile.DefaultLimits = spec.ResourceLimit{}
			req.Limits = tt.limits
			res, err := r.Run(context.Background(), req)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			if res.Verdict != tt.want {
				t.Fatalf("verdict = %s, want %s", res.Verdict, tt.want)
			}
			if len(metrics.runs) != 1 || metrics.runs[0].verdict != string(tt.want) {
				t.Fatalf("unexpected metrics: %+v", metrics.runs)
			}
		})
	}
}

func TestProbeRunnerEngineError(t *testing.T) {
	eng := &fakeEngine{
		runResult: result.RunResult{ExitCode: 125, Stderr: "chdir failed"},
		runErr:    appErr.New(appErr.JudgeSystemError).WithMessage("sandbox helper failed"),
	}
	metrics := &recordingMetrics{}
	r := runner.NewRunnerWithObserver(eng, metrics)

	res, err := r.Run(context.Background(), baseRequest(t.TempDir()))
	if !appErr.Is(err, appErr.JudgeSystemError) {
		t.Fatalf("expected system error, got %v", err)
	}
	if res.Verdict != result.VerdictSE {
		t.Fatalf("verdict = %s, want SE", res.Verdict)
	}
	if len(metrics.runs) != 1 || metrics.runs[0].verdict != string(result.VerdictSE) {
		t.Fatalf("unexpected metrics: %+v", metrics.runs)
	}
}

func TestProbeRunnerValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*runner.CaseRequest)
		code   appErr.ErrorCode
	}{
		{"run id", func(r *runner.CaseRequest) { r.RunID = "" }, appErr.ValidationFailed},
		{"case id", func(r *runner.CaseRequest) { r.CaseID = "" }, appErr.ValidationFailed},
		{"work dir", func(r *runner.CaseRequest) { r.WorkDir = "" }, appErr.ValidationFailed},
		{"binary", func(r *runner.CaseRequest) { r.BinaryPath = "" }, appErr.ValidationFailed},
		{"profile", func(r *runner.CaseRequest) { r.Profile.Name = "" }, appErr.ValidationFailed},
		{"memory mode", func(r *runner.CaseRequest) { r.Memory = "swap" }, appErr.InvalidValue},
		{"bad template", func(r *runner.CaseRequest) { r.CmdTpl = "{bin} 'unterminated" }, appErr.InvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := &fakeEngine{}
			req := baseRequest(t.TempDir())
			tt.mutate(&req)
			_, err := runner.NewRunner(eng).Run(context.Background(), req)
			if !appErr.Is(err, tt.code) {
				t.Fatalf("expected code %d, got %v", tt.code, err)
			}
			if len(eng.runSpecs) != 0 {
				t.Fatal("engine should not run on invalid request")
			}
		})
	}
}

func TestNewRunnerWithNilObserver(t *testing.T) {
	r := runner.NewRunnerWithObserver(&fakeEngine{runErr: errors.New("boom")}, nil)
	if _, err := r.Run(context.Background(), baseRequest(t.TempDir())); err == nil {
		t.Fatal("expected engine error")
	}
}

func TestVerdictError(t *testing.T) {
	tests := []struct {
		name string
		res  result.CaseResult
		code appErr.ErrorCode
		msg  string
	}{
		{
			name: "runtime error keeps first stderr line",
			res:  result.CaseResult{Verdict: result.VerdictRE, ExitCode: 2, Stderr: "fatal error: out of memory allocating heap arena map\n\ngoroutine 1\n"},
			code: appErr.RuntimeError,
			msg:  "runtime error: exit status 2: fatal error: out of memory allocating heap arena map",
		},
		{
			name: "runtime error without stderr",
			res:  result.CaseResult{Verdict: result.VerdictRE, ExitCode: -1},
			code: appErr.RuntimeError,
			msg:  "runtime error: exit status -1",
		},
		{
			name: "time limit",
			res:  result.CaseResult{Verdict: result.VerdictTLE, TimeMs: 1200, WallTimeMs: 1300},
			code: appErr.TimeLimitExceeded,
			msg:  "time limit exceeded: cpu 1200ms, wall 1300ms",
		},
		{
			name: "memory limit",
			res:  result.CaseResult{Verdict: result.VerdictMLE, MemoryKB: 70000},
			code: appErr.MemoryLimitExceeded,
			msg:  "memory limit exceeded: peak 70000KB",
		},
		{
			name: "output limit",
			res:  result.CaseResult{Verdict: result.VerdictOLE, OutputKB: 2048},
			code: appErr.OutputLimitExceeded,
			msg:  "output limit exceeded: 2048KB",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runner.VerdictError(tt.res)
			if !appErr.Is(err, tt.code) {
				t.Fatalf("expected code %d, got %v", tt.code, err)
			}
			if err.Error() != tt.msg {
				t.Fatalf("message = %q, want %q", err.Error(), tt.msg)
			}
		})
	}

	for _, v := range []result.Verdict{result.VerdictAC, result.VerdictWA, result.VerdictAD, result.VerdictSE} {
		if err := runner.VerdictError(result.CaseResult{Verdict: v}); err != nil {
			t.Fatalf("%s: unexpected error %v", v, err)
		}
	}
}
