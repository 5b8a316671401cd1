//go:build linux

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"memprobe/internal/sandbox/spec"
	appErr "memprobe/pkg/errors"
)

func createRunCgroup(root, runID, caseID string) (string, func(), error) {
	if root == "" {
		return "", func() {}, appErr.ValidationError("cgroup_root", "required")
	}
	runDir := fmt.Sprintf("%s-%d", caseID, time.Now().UnixNano())
	parent := filepath.Join(root, runID)
	cgroupPath := filepath.Join(parent, runDir)
	if err := os.MkdirAll(cgroupPath, 0750); err != nil {
		return "", func() {}, appErr.Wrapf(err, appErr.JudgeSystemError, "create cgroup path failed")
	}
	cleanup := func() {
		_ = os.RemoveAll(cgroupPath)
		// Fails while sibling cases of the same run are still active.
		_ = os.Remove(parent)
	}
	return cgroupPath, cleanup, nil
}

// applyCgroupLimits writes cgroup v2 limits. memory.max is only written for
// cgroup memory enforcement; rlimit modes are applied by the init helper.
func applyCgroupLimits(cgroupPath string, limits spec.ResourceLimit, memory spec.MemoryEnforcement) error {
	pidsValue := "max"
	if limits.PIDs > 0 {
		pidsValue = strconv.FormatInt(limits.PIDs, 10)
	}
	if err := writeCgroupValue(cgroupPath, "pids.max", pidsValue); err != nil {
		return err
	}
	if limits.MemoryMB > 0 && !memory.IsRlimit() {
		if err := writeCgroupValue(cgroupPath, "memory.max", strconv.FormatInt(limits.MemoryMB*1024*1024, 10)); err != nil {
			return err
		}
		if err := writeCgroupValue(cgroupPath, "memory.swap.max", "0"); err != nil {
			return err
		}
	}
	if err := writeCgroupValue(cgroupPath, "cpu.max", "max 100000"); err != nil {
		return err
	}
	return nil
}

func addProcessToCgroup(cgroupPath string, pid int) error {
	if pid <= 0 {
		return appErr.ValidationError("pid", "invalid")
	}
	return writeCgroupValue(cgroupPath, "cgroup.procs", strconv.Itoa(pid))
}

func killCgroup(cgroupPath string) error {
	killPath := filepath.Join(cgroupPath, "cgroup.kill")
	if _, err := os.Stat(killPath); err != nil {
		return err
	}
	return os.WriteFile(killPath, []byte("1"), 0600)
}

func wasOomKilled(cgroupPath string) bool {
	if cgroupPath == "" {
		return false
	}
	val, err := readCgroupStat(cgroupPath, "memory.events", "oom_kill")
	return err == nil && val > 0
}

func cgroupCPUTimeMs(cgroupPath string) (int64, error) {
	if cgroupPath == "" {
		return 0, appErr.ValidationError("cgroup_path", "required")
	}
	usec, err := readCgroupStat(cgroupPath, "cpu.stat", "usage_usec")
	if err != nil {
		return 0, err
	}
	return usec / 1000, nil
}

// readCgroupStat reads one "key value" line from a flat-keyed cgroup file.
func readCgroupStat(cgroupPath, file, key string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(cgroupPath, file))
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.JudgeSystemError, "read %s failed", file)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[0] != key {
			continue
		}
		val, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, appErr.Wrapf(err, appErr.JudgeSystemError, "parse %s %s failed", file, key)
		}
		return val, nil
	}
	return 0, appErr.Newf(appErr.JudgeSystemError, "%s not found in %s", key, file)
}

func memoryPeakKB(cgroupPath string, state *os.ProcessState) int64 {
	if cgroupPath != "" {
		if val, err := readCgroupInt(cgroupPath, "memory.peak"); err == nil && val > 0 {
			return val / 1024
		}
	}
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}

func readCgroupInt(cgroupPath, name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(cgroupPath, name))
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.JudgeSystemError, "read cgroup value failed")
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, appErr.Wrapf(err, appErr.JudgeSystemError, "parse cgroup value failed")
	}
	return parsed, nil
}

func writeCgroupValue(cgroupPath, name, value string) error {
	path := filepath.Join(cgroupPath, name)
	if err := os.WriteFile(path, []byte(value), 0640); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "write %s failed", name)
	}
	return nil
}
