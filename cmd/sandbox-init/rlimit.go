//go:build linux

package main

import (
	"memprobe/internal/sandbox/spec"

	"golang.org/x/sys/unix"
)

type rlimit struct {
	name     string
	resource int
	value    uint64
}

const mb = 1024 * 1024

// buildRlimits translates limits into setrlimit calls. MemoryMB is only turned
// into an rlimit for the rlimit enforcement modes; cgroup mode leaves it to
// memory.max.
func buildRlimits(limits spec.ResourceLimit, memory spec.MemoryEnforcement) []rlimit {
	var out []rlimit
	if limits.CPUTimeMs > 0 {
		seconds := uint64((limits.CPUTimeMs + 999) / 1000)
		out = append(out, rlimit{name: "cpu", resource: unix.RLIMIT_CPU, value: seconds})
	}
	if limits.OutputMB > 0 {
		out = append(out, rlimit{name: "fsize", resource: unix.RLIMIT_FSIZE, value: uint64(limits.OutputMB * mb)})
	}
	if limits.StackMB > 0 {
		out = append(out, rlimit{name: "stack", resource: unix.RLIMIT_STACK, value: uint64(limits.StackMB * mb)})
	}
	if limits.PIDs > 0 {
		out = append(out, rlimit{name: "nproc", resource: unix.RLIMIT_NPROC, value: uint64(limits.PIDs)})
	}
	if limits.MemoryMB > 0 {
		switch memory {
		case spec.MemoryRlimitAS:
			out = append(out, rlimit{name: "as", resource: unix.RLIMIT_AS, value: uint64(limits.MemoryMB * mb)})
		case spec.MemoryRlimitData:
			out = append(out, rlimit{name: "data", resource: unix.RLIMIT_DATA, value: uint64(limits.MemoryMB * mb)})
		}
	}
	return out
}
