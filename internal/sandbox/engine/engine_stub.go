//go:build !linux

package engine

import (
	"context"

	"memprobe/internal/sandbox/result"
	"memprobe/internal/sandbox/spec"
	appErr "memprobe/pkg/errors"
)

type stubEngine struct{}

func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	return result.RunResult{}, appErr.New(appErr.Unsupported).WithMessage("sandbox engine is only supported on linux")
}

func (s *stubEngine) KillRun(ctx context.Context, runID string) error {
	return appErr.New(appErr.Unsupported).WithMessage("sandbox engine is only supported on linux")
}
