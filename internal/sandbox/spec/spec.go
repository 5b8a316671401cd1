// Package spec defines the execution specification and resource limits.
package spec

// MemoryEnforcement selects how ResourceLimit.MemoryMB is applied.
type MemoryEnforcement string

const (
	// MemoryCgroup writes memory.max; the kernel OOM-kills on overuse of
	// touched pages but lets large reservations succeed.
	MemoryCgroup MemoryEnforcement = "cgroup"
	// MemoryRlimitAS caps the address space; oversized mmap/malloc calls fail.
	MemoryRlimitAS MemoryEnforcement = "rlimit-as"
	// MemoryRlimitData caps the data segment, which includes private writable
	// anonymous mappings but not the PROT_NONE reservations a Go runtime makes.
	MemoryRlimitData MemoryEnforcement = "rlimit-data"
)

// Valid reports whether m is empty or a known mode.
func (m MemoryEnforcement) Valid() bool {
	switch m {
	case "", MemoryCgroup, MemoryRlimitAS, MemoryRlimitData:
		return true
	}
	return false
}

// IsRlimit reports whether m is enforced by the init helper via setrlimit.
func (m MemoryEnforcement) IsRlimit() bool {
	return m == MemoryRlimitAS || m == MemoryRlimitData
}

// ResourceLimit describes hard limits enforced by the sandbox.
type ResourceLimit struct {
	CPUTimeMs  int64 `json:"CPUTimeMs" yaml:"cpuTimeMs"`
	WallTimeMs int64 `json:"WallTimeMs" yaml:"wallTimeMs"`
	MemoryMB   int64 `json:"MemoryMB" yaml:"memoryMB"`
	StackMB    int64 `json:"StackMB" yaml:"stackMB"`
	OutputMB   int64 `json:"OutputMB" yaml:"outputMB"`
	PIDs       int64 `json:"PIDs" yaml:"pids"`
}

// Merge returns base with every positive field of override applied.
func (base ResourceLimit) Merge(override ResourceLimit) ResourceLimit {
	if override.CPUTimeMs > 0 {
		base.CPUTimeMs = override.CPUTimeMs
	}
	if override.WallTimeMs > 0 {
		base.WallTimeMs = override.WallTimeMs
	}
	if override.MemoryMB > 0 {
		base.MemoryMB = override.MemoryMB
	}
	if override.StackMB > 0 {
		base.StackMB = override.StackMB
	}
	if override.OutputMB > 0 {
		base.OutputMB = override.OutputMB
	}
	if override.PIDs > 0 {
		base.PIDs = override.PIDs
	}
	return base
}

// RunSpec is the unified execution specification for one process.
type RunSpec struct {
	RunID      string            `json:"RunID"`
	CaseID     string            `json:"CaseID"`
	WorkDir    string            `json:"WorkDir"`
	Cmd        []string          `json:"Cmd"`
	Env        []string          `json:"Env"`
	StdinPath  string            `json:"StdinPath"`
	StdoutPath string            `json:"StdoutPath"`
	StderrPath string            `json:"StderrPath"`
	Profile    string            `json:"Profile"`
	Limits     ResourceLimit     `json:"Limits"`
	Memory     MemoryEnforcement `json:"Memory"`
}

// IsolationProfile describes namespace and seccomp settings.
type IsolationProfile struct {
	SeccompProfile string `json:"SeccompProfile" yaml:"seccompProfile"`
	DisableNetwork bool   `json:"DisableNetwork" yaml:"disableNetwork"`
}

// InitFailureExitCode is reserved for the init helper's own failures so they
// are never mistaken for the command's exit status.
const InitFailureExitCode = 125

// InitErrorFD is the descriptor the engine hands the init helper for its own
// error report. It stays separate from the command's stderr, which the helper
// redirects before exec.
const InitErrorFD = 3

// InitRequest is sent as JSON on the init helper's stdin.
type InitRequest struct {
	RunSpec       RunSpec          `json:"RunSpec"`
	Isolation     IsolationProfile `json:"Isolation"`
	EnableSeccomp bool             `json:"EnableSeccomp"`
	// ErrorFD is an inherited descriptor for helper errors; zero means stderr.
	ErrorFD int `json:"ErrorFD,omitempty"`
}
