// Package ramalloc simulates the boot-time physical RAM allocator that
// spec.md places out of scope as an external collaborator
// (ram_getsize/ram_getfirstfree/ram_stealmem). mem/frame uses it only
// until the frame table takes over; nothing past vm_bootstrap should
// call it again.
//
// Grounded on original_source/kern/vm/frametable.c's frametable_bootstrap,
// which computes everything from ram_getsize() and ram_getfirstfree() and
// calls ram_stealmem() only when the frame table is still nil.
package ramalloc

import (
	"mipsvm/internal/mach"
	"mipsvm/internal/util"
)

// RAM is the pre-VM physical allocator interface the VM core consumes.
// A real platform backs this with the boot monitor's memory map; this
// package provides Sim, an in-process stand-in sized like a small MIPS
// box, so the rest of the module is independently testable.
type RAM interface {
	// Size returns the top of physical RAM in bytes (ram_getsize).
	Size() uint32
	// FirstFree returns the first byte past the kernel image and any
	// allocations already stolen (ram_getfirstfree).
	FirstFree() uint32
	// StealMem bumps the first-free pointer by npages and returns the
	// physical address of the allocation, or 0 if RAM is exhausted.
	// Valid only before the frame table exists.
	StealMem(npages uint32) uint32
}

// Sim is a fixed-size simulated physical address space. The kernel
// image is modeled as occupying [0, imageEnd).
type Sim struct {
	size      uint32
	firstFree uint32
}

// NewSim creates a simulated RAM of size bytes (rounded down to a page
// multiple) with imageEnd bytes already consumed by the "kernel image".
func NewSim(size, imageEnd uint32) *Sim {
	size = mach.PageOf(size)
	if imageEnd > size {
		panic("ramalloc: image larger than RAM")
	}
	return &Sim{size: size, firstFree: util.Roundup(imageEnd, mach.PageSize)}
}

// Size implements RAM.
func (s *Sim) Size() uint32 { return s.size }

// FirstFree implements RAM.
func (s *Sim) FirstFree() uint32 { return s.firstFree }

// StealMem implements RAM.
func (s *Sim) StealMem(npages uint32) uint32 {
	need := npages * mach.PageSize
	if s.firstFree+need > s.size {
		return 0
	}
	addr := s.firstFree
	s.firstFree += need
	return addr
}
