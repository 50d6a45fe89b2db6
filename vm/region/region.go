// Package region implements the address-space region list (spec.md
// §4.2, component B): the ordered set of (vbase, size, writeable)
// segments that define an address space's legal user virtual range.
//
// Grounded on original_source/kern/vm/addrspace.c's as_region singly
// linked list and prepend-on-define behavior, generalized per
// spec.md's Design Notes §9 ("Replace with a small ordered vector of
// regions; lookup remains linear but avoids per-region heap
// allocations") into a slice instead of a hand-rolled linked list —
// region counts are small (text, data, stack, optional heap) so a
// linear scan over a slice costs nothing a pointer chase would have
// saved, and the slice drops the per-node kmalloc entirely.
package region

import "mipsvm/internal/mach"

// Region is a single (vbase, size, writeable) segment. Regions are
// immutable after creation; the only thing that can change their
// effective permission is the address space's global writeable_mask
// override (spec.md §4.4), which lives outside Region entirely.
type Region struct {
	VBase     uint32
	Size      uint32
	Writeable bool
}

// Contains reports whether addr falls in this region's half-open
// range [VBase, VBase+Size).
func (r Region) Contains(addr uint32) bool {
	return addr >= r.VBase && addr < r.VBase+r.Size
}

// List is an address space's region list. The zero value is an empty
// list ready to use.
type List struct {
	regions []Region
}

// Define adds a new region, unless all three permission flags are
// false, in which case the region is silently dropped rather than
// created — spec.md §4.2 and §9 call this out explicitly as behavior
// to preserve, not "fix": a zero-permission region (e.g. a guard page
// a loader asked for but never intends to fault on) would only ever
// return EFAULT if it existed, so dropping it is observationally
// identical to keeping it and is one less node to walk.
//
// Executable carries no separate effect in this core (spec.md §1:
// permission enforcement beyond the writeable bit is out of scope); it
// is accepted only so callers can mirror the real as_define_region
// signature and its all-flags-false drop rule.
func (l *List) Define(vbase, size uint32, readable, writeable, executable bool) {
	if !readable && !writeable && !executable {
		return
	}
	// Prepended, matching as_define_region's "new->next = first_region;
	// first_region = new". Regions created by a loader are disjoint by
	// construction, so insertion order only affects which duplicate
	// wins when ranges overlap, which spec.md does not mandate checking
	// for.
	l.regions = append([]Region{{VBase: vbase, Size: size, Writeable: writeable}}, l.regions...)
}

// DefineStack installs the fixed 16-page, read-write, non-executable
// stack region ending at mach.UserStack and returns the initial user
// stack pointer, matching as_define_stack.
func (l *List) DefineStack() (stackPointer uint32) {
	size := uint32(mach.StackPages) * mach.PageSize
	base := mach.UserStack - size
	l.Define(base, size, true, true, false)
	return mach.UserStack
}

// Find scans the region list and returns the first region whose
// half-open range contains addr, matching find_region's linear scan —
// no merging, no splitting, no interval tree, because there are never
// more than a handful of regions per address space.
func (l *List) Find(addr uint32) (Region, bool) {
	for _, r := range l.regions {
		if r.Contains(addr) {
			return r, true
		}
	}
	return Region{}, false
}

// Len reports how many regions are defined, for tests and diagnostics.
func (l *List) Len() int {
	return len(l.regions)
}

// Clone returns an independent deep copy of the list, used by
// as_copy to give the new address space its own region list (spec.md
// §4.4: "Deep-copy all regions (new region list independent of old)").
func (l *List) Clone() *List {
	n := &List{regions: make([]Region, len(l.regions))}
	copy(n.regions, l.regions)
	return n
}
