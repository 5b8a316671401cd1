//go:build !unix

package probe

import appErr "memprobe/pkg/errors"

// MmapAllocator falls back to the Go heap where anonymous mappings are not
// available. A heap allocation cannot report denial: the runtime aborts instead.
type MmapAllocator struct{}

// NewMmapAllocator returns the allocator used by the fixture binary.
func NewMmapAllocator() MmapAllocator {
	return MmapAllocator{}
}

func (MmapAllocator) Acquire(size int) (Block, error) {
	if size <= 0 {
		return nil, appErr.ValidationError("size", "must be positive")
	}
	return &heapBlock{mem: make([]byte, size)}, nil
}

type heapBlock struct {
	mem []byte
}

func (b *heapBlock) Size() int {
	return len(b.mem)
}

func (b *heapBlock) Release() error {
	if b.mem == nil {
		return appErr.New(appErr.MemoryReleaseFailed).WithMessage("block already released")
	}
	b.mem = nil
	return nil
}
