// Package observer defines logging and metrics hooks for sandbox execution.
package observer

import (
	"context"

	"memprobe/pkg/utils/logger"

	"go.uber.org/zap"
)

// MetricsRecorder records sandbox metrics.
type MetricsRecorder interface {
	ObserveRun(ctx context.Context, caseID string, verdict string, timeMs int64, memoryKB int64, outputKB int64)
}

// NoopMetricsRecorder is a default recorder that does nothing.
type NoopMetricsRecorder struct{}

func (NoopMetricsRecorder) ObserveRun(ctx context.Context, caseID string, verdict string, timeMs int64, memoryKB int64, outputKB int64) {
}

// LogRecorder writes one structured log entry per finished run.
type LogRecorder struct{}

func (LogRecorder) ObserveRun(ctx context.Context, caseID string, verdict string, timeMs int64, memoryKB int64, outputKB int64) {
	logger.Info(ctx, "sandbox run finished",
		zap.String("case", caseID),
		zap.String("verdict", verdict),
		zap.Int64("time_ms", timeMs),
		zap.Int64("memory_kb", memoryKB),
		zap.Int64("output_kb", outputKB),
	)
}
