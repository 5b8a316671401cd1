//go:build linux

package engine

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"memprobe/internal/sandbox/spec"
	appErr "memprobe/pkg/errors"
)

func readFileString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.TrimSpace(string(data))
}

func TestApplyCgroupLimits(t *testing.T) {
	tests := []struct {
		name      string
		memory    spec.MemoryEnforcement
		limits    spec.ResourceLimit
		wantFiles map[string]string
		absent    []string
	}{
		{
			name:   "cgroup memory",
			memory: spec.MemoryCgroup,
			limits: spec.ResourceLimit{MemoryMB: 16, PIDs: 5},
			wantFiles: map[string]string{
				"memory.max":      "16777216",
				"memory.swap.max": "0",
				"pids.max":        "5",
				"cpu.max":         "max 100000",
			},
		},
		{
			name:   "rlimit data leaves memory.max alone",
			memory: spec.MemoryRlimitData,
			limits: spec.ResourceLimit{MemoryMB: 16},
			wantFiles: map[string]string{
				"pids.max": "max",
				"cpu.max":  "max 100000",
			},
			absent: []string{"memory.max", "memory.swap.max"},
		},
		{
			name:   "no memory limit",
			memory: spec.MemoryCgroup,
			limits: spec.ResourceLimit{PIDs: 1},
			wantFiles: map[string]string{
				"pids.max": "1",
			},
			absent: []string{"memory.max"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := applyCgroupLimits(dir, tt.limits, tt.memory); err != nil {
				t.Fatalf("apply limits: %v", err)
			}
			for name, want := range tt.wantFiles {
				if got := readFileString(t, filepath.Join(dir, name)); got != want {
					t.Fatalf("%s = %q, want %q", name, got, want)
				}
			}
			for _, name := range tt.absent {
				if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
					t.Fatalf("%s should not be written", name)
				}
			}
		})
	}
}

func TestCreateRunCgroupCleanup(t *testing.T) {
	root := t.TempDir()
	path, cleanup, err := createRunCgroup(root, "run-1", "sum")
	if err != nil {
		t.Fatalf("create cgroup: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(path), "sum-") {
		t.Fatalf("unexpected cgroup dir: %s", path)
	}
	if filepath.Dir(path) != filepath.Join(root, "run-1") {
		t.Fatalf("cgroup not under run dir: %s", path)
	}
	cleanup()
	if _, err := os.Stat(filepath.Join(root, "run-1")); !os.IsNotExist(err) {
		t.Fatalf("run dir should be removed, stat err=%v", err)
	}

	if _, _, err := createRunCgroup("", "run-1", "sum"); !appErr.Is(err, appErr.ValidationFailed) {
		t.Fatalf("expected validation error for empty root, got %v", err)
	}
}

func TestReadCgroupStat(t *testing.T) {
	dir := t.TempDir()
	content := "low 0\nhigh 0\nmax 2\noom 1\noom_kill 1\n"
	if err := os.WriteFile(filepath.Join(dir, "memory.events"), []byte(content), 0644); err != nil {
		t.Fatalf("write memory.events: %v", err)
	}
	if !wasOomKilled(dir) {
		t.Fatal("expected oom_kill to be detected")
	}
	if _, err := readCgroupStat(dir, "memory.events", "missing"); err == nil {
		t.Fatal("expected error for missing key")
	}

	if err := os.WriteFile(filepath.Join(dir, "cpu.stat"), []byte("usage_usec 2500000\nuser_usec 2000000\n"), 0644); err != nil {
		t.Fatalf("write cpu.stat: %v", err)
	}
	ms, err := cgroupCPUTimeMs(dir)
	if err != nil {
		t.Fatalf("cpu time: %v", err)
	}
	if ms != 2500 {
		t.Fatalf("cpu time = %d, want 2500", ms)
	}

	if wasOomKilled(t.TempDir()) {
		t.Fatal("missing memory.events should not report oom")
	}
}

func TestKillCgroupRequiresKillFile(t *testing.T) {
	dir := t.TempDir()
	if err := killCgroup(dir); err == nil {
		t.Fatal("expected error without cgroup.kill")
	}
	killPath := filepath.Join(dir, "cgroup.kill")
	if err := os.WriteFile(killPath, []byte("0"), 0600); err != nil {
		t.Fatalf("write cgroup.kill: %v", err)
	}
	if err := killCgroup(dir); err != nil {
		t.Fatalf("kill cgroup: %v", err)
	}
	if got := readFileString(t, killPath); got != "1" {
		t.Fatalf("cgroup.kill = %q, want 1", got)
	}
}

func TestValidateRunSpec(t *testing.T) {
	valid := spec.RunSpec{
		RunID:   "run-1",
		CaseID:  "sum",
		WorkDir: "/tmp",
		Cmd:     []string{"/bin/true"},
		Profile: "probe",
		Memory:  spec.MemoryCgroup,
	}
	if err := validateRunSpec(valid); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*spec.RunSpec)
		code   appErr.ErrorCode
	}{
		{"run id", func(s *spec.RunSpec) { s.RunID = "" }, appErr.ValidationFailed},
		{"case id", func(s *spec.RunSpec) { s.CaseID = "" }, appErr.ValidationFailed},
		{"work dir", func(s *spec.RunSpec) { s.WorkDir = "" }, appErr.ValidationFailed},
		{"cmd", func(s *spec.RunSpec) { s.Cmd = nil }, appErr.ValidationFailed},
		{"profile", func(s *spec.RunSpec) { s.Profile = "" }, appErr.ValidationFailed},
		{"memory mode", func(s *spec.RunSpec) { s.Memory = "swap" }, appErr.InvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runSpec := valid
			tt.mutate(&runSpec)
			if err := validateRunSpec(runSpec); !appErr.Is(err, tt.code) {
				t.Fatalf("expected code %d, got %v", tt.code, err)
			}
		})
	}
}

func TestResolveSeccompPath(t *testing.T) {
	iso := resolveSeccompPath("/etc/memprobe/seccomp", spec.IsolationProfile{SeccompProfile: "probe.json"})
	if iso.SeccompProfile != "/etc/memprobe/seccomp/probe.json" {
		t.Fatalf("unexpected seccomp path: %s", iso.SeccompProfile)
	}
	iso = resolveSeccompPath("/etc/memprobe/seccomp", spec.IsolationProfile{SeccompProfile: "/abs/probe.json"})
	if iso.SeccompProfile != "/abs/probe.json" {
		t.Fatalf("absolute path rewritten: %s", iso.SeccompProfile)
	}
}
