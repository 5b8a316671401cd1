// Package runner drives one fixture case through the sandbox engine and maps
// the raw outcome to a verdict.
package runner

import (
	"context"

	"memprobe/internal/sandbox/profile"
	"memprobe/internal/sandbox/result"
	"memprobe/internal/sandbox/spec"
)

// CaseRequest describes one fixture execution.
type CaseRequest struct {
	RunID   string
	CaseID  string
	WorkDir string
	// BinaryPath is substituted for {bin} in CmdTpl.
	BinaryPath string
	// CmdTpl defaults to "{bin}".
	CmdTpl         string
	Env            []string
	Input          string
	ExpectedOutput string
	Profile        profile.Profile
	Limits         spec.ResourceLimit
	Memory         spec.MemoryEnforcement
}

// Runner executes fixture cases.
type Runner interface {
	Run(ctx context.Context, req CaseRequest) (result.CaseResult, error)
}
