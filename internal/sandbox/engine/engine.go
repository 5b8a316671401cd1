package engine

import (
	"context"

	"memprobe/internal/sandbox/result"
	"memprobe/internal/sandbox/spec"
)

// Engine executes a RunSpec inside an isolated sandbox.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
	KillRun(ctx context.Context, runID string) error
}
