package probe

import (
	"context"
	"io"

	appErr "memprobe/pkg/errors"
	"memprobe/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	// FailureMessage is printed, followed by a newline, when the probe is denied.
	// Harnesses match it byte for byte ("memory allocation failed").
	FailureMessage = "内存申请失败"

	ExitOK     = 0
	ExitDenied = 1
)

// DeniedOutput is the exact stdout of a denied run.
const DeniedOutput = FailureMessage + "\n"

// Run executes the fixture once: read operands, probe BufferSize bytes, report
// the sum. It returns the process exit status.
func Run(ctx context.Context, in io.Reader, out io.Writer, alloc Allocator) int {
	ops, err := ReadOperands(in)
	if err != nil {
		logger.Debug(ctx, "operands incomplete, using zero values", zap.Error(err))
	}

	if err := Probe(ctx, alloc, BufferSize); err != nil {
		if appErr.Is(err, appErr.MemoryAllocationDenied) {
			_, _ = io.WriteString(out, DeniedOutput)
			return ExitDenied
		}
		logger.Warn(ctx, "probe release failed", zap.Error(err))
	}

	if err := Report(out, Sum(ops)); err != nil {
		logger.Debug(ctx, "write sum failed", zap.Error(err))
	}
	return ExitOK
}
