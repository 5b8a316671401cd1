package probe

import (
	"context"

	appErr "memprobe/pkg/errors"
	"memprobe/pkg/utils/logger"

	"go.uber.org/zap"
)

// BufferSize is the size of the probe allocation: 10 MiB.
const BufferSize = 10 * 1024 * 1024

// Block is one acquired allocation.
type Block interface {
	Size() int
	Release() error
}

// Allocator hands out blocks of process memory.
// Acquire must fail, rather than crash the process, when the request cannot be satisfied.
type Allocator interface {
	Acquire(size int) (Block, error)
}

// Probe requests size bytes from alloc and releases them straight away.
// The block contents are never read or written. A denied request returns an
// error carrying appErr.MemoryAllocationDenied and nothing is released.
func Probe(ctx context.Context, alloc Allocator, size int) error {
	if alloc == nil {
		return appErr.ValidationError("allocator", "required")
	}
	if size <= 0 {
		return appErr.ValidationError("size", "must be positive")
	}

	block, err := alloc.Acquire(size)
	if err != nil {
		logger.Debug(ctx, "probe allocation denied", zap.Int("size", size), zap.Error(err))
		if appErr.Is(err, appErr.MemoryAllocationDenied) {
			return err
		}
		return appErr.Wrapf(err, appErr.MemoryAllocationDenied, "acquire %d bytes", size)
	}

	if err := block.Release(); err != nil {
		return appErr.Wrapf(err, appErr.MemoryReleaseFailed, "release %d bytes", block.Size())
	}
	logger.Debug(ctx, "probe allocation released", zap.Int("size", size))
	return nil
}
