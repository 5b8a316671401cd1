//go:build linux

package engine_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"memprobe/internal/sandbox/spec"
)

type staticResolver struct {
	profile spec.IsolationProfile
	err     error
}

func (r staticResolver) Resolve(profile string) (spec.IsolationProfile, error) {
	if r.err != nil {
		return spec.IsolationProfile{}, r.err
	}
	return r.profile, nil
}

// buildSandboxHelper compiles a dependency-free init helper that honours the
// same JSON request and exit status conventions as cmd/sandbox-init.
func buildSandboxHelper(t *testing.T) string {
	t.Helper()
	goBin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not available")
	}
	helperDir := filepath.Join(t.TempDir(), "helper")
	if err := os.MkdirAll(helperDir, 0755); err != nil {
		t.Fatalf("create helper dir: %v", err)
	}

	goMod := []byte("module sandboxhelper\n\ngo 1.21\n")
	if err := os.WriteFile(filepath.Join(helperDir, "go.mod"), goMod, 0644); err != nil {
		t.Fatalf("write helper go.mod: %v", err)
	}
	if err := os.WriteFile(filepath.Join(helperDir, "main.go"), []byte(helperSource), 0644); err != nil {
		t.Fatalf("write helper main.go: %v", err)
	}

	helperPath := filepath.Join(helperDir, "sandbox-init")
	cmd := exec.Command(goBin, "build", "-o", helperPath, ".")
	cmd.Dir = helperDir
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0", "GOFLAGS=-mod=mod")
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("build helper failed: %v: %s", err, string(output))
	}
	return helperPath
}

const helperSource = `package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

type initRequest struct {
	RunSpec runSpec ` + "`json:\"RunSpec\"`" + `
	ErrorFD int     ` + "`json:\"ErrorFD\"`" + `
}

type runSpec struct {
	WorkDir    string   ` + "`json:\"WorkDir\"`" + `
	Cmd        []string ` + "`json:\"Cmd\"`" + `
	Env        []string ` + "`json:\"Env\"`" + `
	StdinPath  string   ` + "`json:\"StdinPath\"`" + `
	StdoutPath string   ` + "`json:\"StdoutPath\"`" + `
	StderrPath string   ` + "`json:\"StderrPath\"`" + `
}

func main() {
	var req initRequest
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		fail(os.Stderr, fmt.Errorf("decode request: %w", err))
	}
	errOut := os.Stderr
	if req.ErrorFD > 2 && os.Getenv("HELPER_ERRORS_TO_STDERR") == "" {
		syscall.CloseOnExec(req.ErrorFD)
		errOut = os.NewFile(uintptr(req.ErrorFD), "init-error")
	}
	if err := run(req); err != nil {
		fail(errOut, err)
	}
}

func fail(w *os.File, err error) {
	_, _ = fmt.Fprintln(w, err.Error())
	os.Exit(125)
}

func run(req initRequest) error {
	if len(req.RunSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if err := os.Chdir(req.RunSpec.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}
	if err := redirect(req.RunSpec.StdinPath, os.O_RDONLY, 0); err != nil {
		return err
	}
	if err := redirect(req.RunSpec.StdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 1); err != nil {
		return err
	}
	if err := redirect(req.RunSpec.StderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 2); err != nil {
		return err
	}
	path, err := exec.LookPath(req.RunSpec.Cmd[0])
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}
	env := req.RunSpec.Env
	if len(env) == 0 {
		env = []string{"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"}
	}
	return syscall.Exec(path, req.RunSpec.Cmd, env)
}

func redirect(path string, flag int, fd int) error {
	if path == "" {
		path = "/dev/null"
	}
	file, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if err := syscall.Dup3(int(file.Fd()), fd, 0); err != nil {
		return fmt.Errorf("dup fd %d: %w", fd, err)
	}
	return file.Close()
}
`
