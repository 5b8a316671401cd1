//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"memprobe/internal/sandbox/result"
	"memprobe/internal/sandbox/spec"
	appErr "memprobe/pkg/errors"
	"memprobe/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	defaultStdoutStderrMaxBytes int64 = 64 * 1024
	helperErrorDrain                  = 100 * time.Millisecond
)

type linuxEngine struct {
	cfg       Config
	resolver  ProfileResolver
	registry  map[string][]string
	registryM sync.Mutex
}

// NewEngine creates a Linux sandbox engine.
func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	if resolver == nil {
		return nil, appErr.ValidationError("profile_resolver", "required")
	}
	if cfg.StdoutStderrMaxBytes <= 0 {
		cfg.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if cfg.HelperPath == "" {
		cfg.HelperPath = "sandbox-init"
	}
	return &linuxEngine{
		cfg:      cfg,
		resolver: resolver,
		registry: make(map[string][]string),
	}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}

	isoProfile, err := e.resolver.Resolve(runSpec.Profile)
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.ProfileNotFound, "resolve profile")
	}
	isoProfile = resolveSeccompPath(e.cfg.SeccompDir, isoProfile)

	cgroupPath := ""
	cgroupCleanup := func() {}
	if e.cfg.EnableCgroup {
		cgroupPath, cgroupCleanup, err = createRunCgroup(e.cfg.CgroupRoot, runSpec.RunID, runSpec.CaseID)
		if err != nil {
			return result.RunResult{}, err
		}
		if err := applyCgroupLimits(cgroupPath, runSpec.Limits, runSpec.Memory); err != nil {
			cgroupCleanup()
			return result.RunResult{}, err
		}
		e.registerCgroup(runSpec.RunID, cgroupPath)
	}
	defer func() {
		if e.cfg.EnableCgroup {
			e.unregisterCgroup(runSpec.RunID, cgroupPath)
			cgroupCleanup()
		}
	}()

	payload, err := json.Marshal(spec.InitRequest{
		RunSpec:       runSpec,
		Isolation:     isoProfile,
		EnableSeccomp: e.cfg.EnableSeccomp,
		ErrorFD:       spec.InitErrorFD,
	})
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "encode init request")
	}

	errRead, errWrite, err := os.Pipe()
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "create helper error pipe")
	}
	defer errRead.Close()

	cmd := exec.CommandContext(ctx, e.cfg.HelperPath)
	cmd.SysProcAttr = buildSysProcAttr(isoProfile, e.cfg.EnableNamespaces)
	cmd.Stdin = bytes.NewReader(payload)
	// ExtraFiles[0] becomes spec.InitErrorFD in the helper.
	cmd.ExtraFiles = []*os.File{errWrite}

	var helperStdout bytes.Buffer
	var helperStderr bytes.Buffer
	cmd.Stdout = &helperStdout
	cmd.Stderr = &helperStderr

	start := time.Now()
	err = cmd.Start()
	_ = errWrite.Close()
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "start helper")
	}

	var helperErr bytes.Buffer
	errDone := make(chan struct{})
	go func() {
		defer close(errDone)
		_, _ = io.Copy(&helperErr, io.LimitReader(errRead, e.cfg.StdoutStderrMaxBytes))
		_, _ = io.Copy(io.Discard, errRead)
	}()

	if e.cfg.EnableCgroup {
		if err := addProcessToCgroup(cgroupPath, cmd.Process.Pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}

	var timedOut atomic.Bool
	killCtx, cancelKill := context.WithCancel(ctx)
	defer cancelKill()

	done := make(chan struct{})
	go func() {
		wallLimit := durationFromMs(runSpec.Limits.WallTimeMs)
		var wallTimer <-chan time.Time
		if wallLimit > 0 {
			timer := time.NewTimer(wallLimit)
			defer timer.Stop()
			wallTimer = timer.C
		}
		select {
		case <-killCtx.Done():
			e.killProcessGroup(cmd.Process.Pid)
		case <-wallTimer:
			timedOut.Store(true)
			e.killProcessGroup(cmd.Process.Pid)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	// A descendant that escaped the process group may still hold the pipe.
	_ = errRead.SetReadDeadline(time.Now().Add(helperErrorDrain))
	<-errDone

	runResult := result.RunResult{
		ExitCode:   exitCodeFromErr(waitErr, cmd.ProcessState),
		TimeMs:     cpuTimeMs(cmd.ProcessState),
		WallTimeMs: time.Since(start).Milliseconds(),
		MemoryKB:   memoryPeakKB(cgroupPath, cmd.ProcessState),
		OutputKB:   stdoutSizeKB(runSpec.StdoutPath),
		Stdout:     readLimitedFile(runSpec.StdoutPath, e.cfg.StdoutStderrMaxBytes),
		Stderr:     readLimitedFile(runSpec.StderrPath, e.cfg.StdoutStderrMaxBytes),
		OomKilled:  wasOomKilled(cgroupPath),
		Signal:     signalName(cmd.ProcessState),
	}
	if cgroupPath != "" {
		if cgTime, err := cgroupCPUTimeMs(cgroupPath); err == nil && cgTime > runResult.TimeMs {
			runResult.TimeMs = cgTime
		}
	}

	if timedOut.Load() || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		runResult.TimedOut = true
	}
	if runSpec.Limits.CPUTimeMs > 0 && runResult.TimeMs > runSpec.Limits.CPUTimeMs {
		runResult.TimedOut = true
	}
	if runResult.Signal == "SIGXCPU" {
		runResult.TimedOut = true
	}
	if runResult.TimedOut {
		runResult.ExitCode = -1
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Warn(ctx, "run cancelled", zap.Int("exit_code", runResult.ExitCode), zap.String("signal", runResult.Signal))
		return runResult, appErr.Wrapf(ctx.Err(), appErr.JudgeSystemError, "run cancelled")
	}
	if runResult.ExitCode == InitFailureExitCode {
		msg := helperFailure(helperErr.String(), helperStderr.String(), runResult.Stderr)
		logger.Warn(ctx, "sandbox helper failed", zap.String("stderr", msg))
		return runResult, appErr.New(appErr.JudgeSystemError).WithMessagef("sandbox helper failed: %s", msg)
	}
	if waitErr != nil && helperStderr.Len() > 0 {
		logger.Debug(ctx, "helper stderr", zap.String("stderr", helperStderr.String()))
	}

	return runResult, nil
}

// helperFailure picks the first non-empty report: the error pipe, the
// helper's stderr before redirection, then the case's stderr file.
func helperFailure(reports ...string) string {
	for _, r := range reports {
		if msg := strings.TrimSpace(r); msg != "" {
			return msg
		}
	}
	return "exit status " + strconv.Itoa(InitFailureExitCode)
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func signalName(state *os.ProcessState) string {
	if state == nil {
		return ""
	}
	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return ""
	}
	return signalString(status.Signal())
}

func signalString(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGSEGV:
		return "SIGSEGV"
	case syscall.SIGABRT:
		return "SIGABRT"
	case syscall.SIGXCPU:
		return "SIGXCPU"
	case syscall.SIGXFSZ:
		return "SIGXFSZ"
	case syscall.SIGSYS:
		return "SIGSYS"
	default:
		return sig.String()
	}
}

func (e *linuxEngine) KillRun(ctx context.Context, runID string) error {
	if runID == "" {
		return appErr.ValidationError("run_id", "required")
	}
	paths := e.snapshotCgroups(runID)
	for _, cgroupPath := range paths {
		if err := killCgroup(cgroupPath); err != nil {
			logger.Warn(ctx, "kill cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}
	return nil
}

func (e *linuxEngine) registerCgroup(runID, cgroupPath string) {
	e.registryM.Lock()
	defer e.registryM.Unlock()
	e.registry[runID] = append(e.registry[runID], cgroupPath)
}

func (e *linuxEngine) unregisterCgroup(runID, cgroupPath string) {
	e.registryM.Lock()
	defer e.registryM.Unlock()
	paths := e.registry[runID]
	if len(paths) == 0 {
		return
	}
	updated := paths[:0]
	for _, p := range paths {
		if p != cgroupPath {
			updated = append(updated, p)
		}
	}
	if len(updated) == 0 {
		delete(e.registry, runID)
		return
	}
	e.registry[runID] = updated
}

func (e *linuxEngine) snapshotCgroups(runID string) []string {
	e.registryM.Lock()
	defer e.registryM.Unlock()
	paths := e.registry[runID]
	out := make([]string, len(paths))
	copy(out, paths)
	return out
}

func (e *linuxEngine) killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

func buildSysProcAttr(profile spec.IsolationProfile, enableNamespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !enableNamespaces {
		return attr
	}

	cloneFlags := uintptr(syscall.CLONE_NEWUSER | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC)
	if profile.DisableNetwork {
		cloneFlags |= syscall.CLONE_NEWNET
	}

	attr.Cloneflags = cloneFlags
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getuid(),
		Size:        1,
	}}
	attr.GidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getgid(),
		Size:        1,
	}}
	return attr
}
