//go:build unix

package probe

import (
	appErr "memprobe/pkg/errors"

	"golang.org/x/sys/unix"
)

// MmapAllocator maps anonymous private memory, the way malloc serves large
// requests. Pages are never touched, so only address-space or data-segment
// ceilings (RLIMIT_AS, RLIMIT_DATA) can deny the request.
type MmapAllocator struct{}

// NewMmapAllocator returns the allocator used by the fixture binary.
func NewMmapAllocator() MmapAllocator {
	return MmapAllocator{}
}

func (MmapAllocator) Acquire(size int) (Block, error) {
	if size <= 0 {
		return nil, appErr.ValidationError("size", "must be positive")
	}
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.MemoryAllocationDenied, "mmap %d bytes", size).
			WithDetail("size", size)
	}
	return &mappedBlock{mem: mem}, nil
}

type mappedBlock struct {
	mem []byte
}

func (b *mappedBlock) Size() int {
	return len(b.mem)
}

func (b *mappedBlock) Release() error {
	if b.mem == nil {
		return appErr.New(appErr.MemoryReleaseFailed).WithMessage("block already released")
	}
	mem := b.mem
	b.mem = nil
	if err := unix.Munmap(mem); err != nil {
		return appErr.Wrapf(err, appErr.MemoryReleaseFailed, "munmap")
	}
	return nil
}
