//go:build linux

// Command sandbox-init is started by the sandbox engine. It reads one JSON
// init request on stdin, applies limits, redirects stdio and execs the command.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"memprobe/internal/sandbox/spec"

	"golang.org/x/sys/unix"
)

func main() {
	req, err := decodeRequest(os.Stdin)
	if err != nil {
		fail(os.Stderr, err)
	}
	errOut := errorWriter(req.ErrorFD)
	if err := run(req); err != nil {
		fail(errOut, err)
	}
}

func fail(w io.Writer, err error) {
	_, _ = fmt.Fprintln(w, err.Error())
	os.Exit(spec.InitFailureExitCode)
}

// errorWriter returns the descriptor the engine reserved for helper errors,
// marked close-on-exec so the command never inherits it. Without one, errors
// go to stderr, which is the case's stderr file once stdio is redirected.
func errorWriter(fd int) io.Writer {
	if fd <= 2 {
		return os.Stderr
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		return os.Stderr
	}
	return os.NewFile(uintptr(fd), "init-error")
}

func run(req spec.InitRequest) error {
	if err := validateRequest(req); err != nil {
		return err
	}
	st := &initState{req: req}
	for _, step := range st.steps() {
		if err := step.apply(); err != nil {
			return err
		}
	}
	return unix.Exec(st.cmdPath, req.RunSpec.Cmd, st.env)
}

type initStep struct {
	name  string
	apply func() error
}

type initState struct {
	req     spec.InitRequest
	env     []string
	cmdPath string
}

// steps lists the setup done before exec, in order. Rlimits go last: the
// helper's own allocations after setrlimit would count against the
// command's memory ceiling.
func (s *initState) steps() []initStep {
	return []initStep{
		{name: "chdir", apply: s.chdir},
		{name: "redirect", apply: func() error { return redirectIO(s.req.RunSpec) }},
		{name: "env", apply: s.setEnv},
		{name: "lookpath", apply: s.lookPath},
		{name: "seccomp", apply: s.loadFilter},
		{name: "rlimits", apply: s.rlimits},
	}
}

func (s *initState) chdir() error {
	if err := os.Chdir(s.req.RunSpec.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}
	return nil
}

func (s *initState) setEnv() error {
	s.env = buildEnv(s.req.RunSpec.Env)
	os.Clearenv()
	for _, kv := range s.env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set env: %w", err)
		}
	}
	return nil
}

func (s *initState) lookPath() error {
	cmdPath, err := exec.LookPath(s.req.RunSpec.Cmd[0])
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}
	s.cmdPath = cmdPath
	return nil
}

func (s *initState) loadFilter() error {
	if !s.req.EnableSeccomp || s.req.Isolation.SeccompProfile == "" {
		return nil
	}
	return applySeccomp(s.req.Isolation.SeccompProfile)
}

func (s *initState) rlimits() error {
	for _, rl := range buildRlimits(s.req.RunSpec.Limits, s.req.RunSpec.Memory) {
		if err := unix.Setrlimit(rl.resource, &unix.Rlimit{Cur: rl.value, Max: rl.value}); err != nil {
			return fmt.Errorf("set rlimit %s: %w", rl.name, err)
		}
	}
	return nil
}

func decodeRequest(r io.Reader) (spec.InitRequest, error) {
	dec := json.NewDecoder(r)
	var req spec.InitRequest
	if err := dec.Decode(&req); err != nil {
		return spec.InitRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func validateRequest(req spec.InitRequest) error {
	if len(req.RunSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if req.RunSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if !req.RunSpec.Memory.Valid() {
		return fmt.Errorf("unsupported memory enforcement: %s", req.RunSpec.Memory)
	}
	return nil
}

func redirectIO(runSpec spec.RunSpec) error {
	stdinFile, err := os.Open(orDevNull(runSpec.StdinPath))
	if err != nil {
		return fmt.Errorf("open stdin: %w", err)
	}
	defer stdinFile.Close()
	stdoutFile, err := os.OpenFile(orDevNull(runSpec.StdoutPath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open stdout: %w", err)
	}
	defer stdoutFile.Close()
	stderrFile, err := os.OpenFile(orDevNull(runSpec.StderrPath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open stderr: %w", err)
	}
	defer stderrFile.Close()

	if err := unix.Dup2(int(stdinFile.Fd()), int(os.Stdin.Fd())); err != nil {
		return fmt.Errorf("dup stdin: %w", err)
	}
	if err := unix.Dup2(int(stdoutFile.Fd()), int(os.Stdout.Fd())); err != nil {
		return fmt.Errorf("dup stdout: %w", err)
	}
	// From here on our own errors land in the case's stderr file.
	if err := unix.Dup2(int(stderrFile.Fd()), int(os.Stderr.Fd())); err != nil {
		return fmt.Errorf("dup stderr: %w", err)
	}
	return nil
}

func orDevNull(path string) string {
	if path == "" {
		return os.DevNull
	}
	return path
}

func buildEnv(env []string) []string {
	if len(env) > 0 {
		return env
	}
	return []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
}
