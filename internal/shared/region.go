package shared

import "selfsys/internal/memory"

// Region is the shared memory bump allocator that backs the mmap
// syscall: every call hands out the next chunk above SharedSpaceStart and
// never reclaims one.
type Region struct {
	top int32
}

// NewRegion returns an allocator starting at the shared region's base.
func NewRegion() *Region {
	return &Region{top: memory.SharedSpaceStart}
}

// Bump reserves n bytes (already rounded by the caller) and returns the
// address of the reservation's start.
func (r *Region) Bump(n int32) int32 {
	prev := r.top
	r.top += n
	return prev
}
