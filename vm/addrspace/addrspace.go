// Package addrspace implements the address space (spec.md §4.4,
// component D): creation, deep-copy (which triggers COW sharing
// between the frame table and the inverted page table), teardown, and
// TLB activation.
//
// Grounded on biscuit/src/vm/as.go's Vm_t (region bookkeeping, a
// writeable-mask override for loader writes, Tlbshoot for flushes) and
// original_source/kern/vm/addrspace.c's as_create/as_copy/as_destroy/
// as_activate/as_deactivate/as_define_region/as_prepare_load/
// as_complete_load/as_define_stack, which supply the exact sequencing
// this package reproduces.
package addrspace

import (
	"sync/atomic"

	"mipsvm/internal/mach"
	"mipsvm/internal/tlbhw"
	"mipsvm/mem/frame"
	"mipsvm/vm/pagetable"
	"mipsvm/vm/region"
)

// nextID assigns each address space a stable identity token at
// creation, per spec.md's Design Notes §9 ("use a stable numeric id
// assigned at creation; never reuse ids until teardown completes") in
// place of the original's address-as-hash-key trick, which has no
// equivalent once AddrSpace values are normal garbage-collected Go
// structs rather than fixed kernel heap allocations.
var nextID atomic.Uint32

// AddrSpace is one process's address space: its region list, the
// loader's writeable-mask override, and the stack's base address.
// Spec.md §3 also lists "a heap-region placeholder (unused in the
// core)"; the core never reads or writes it, so it is omitted here
// rather than carried as a field nothing touches.
type AddrSpace struct {
	id      pagetable.ASID
	Regions *region.List

	// writeableMask is OR'd into every TLB entry this address space
	// installs while set (spec.md §4.2): DIRTY to force writability
	// during program loading, 0 otherwise.
	writeableMask uint32

	stackBase uint32
}

// ID returns the address space's stable identity token, used as the
// address_space_id half of every PTE key it owns.
func (a *AddrSpace) ID() pagetable.ASID { return a.id }

// Create returns a new, empty address space (as_create). Its identity
// token is assigned once here and never reused.
func Create() *AddrSpace {
	return &AddrSpace{
		id:      pagetable.ASID(nextID.Add(1)),
		Regions: &region.List{},
	}
}

// DefineRegion adds a region to the address space (as_define_region).
func (a *AddrSpace) DefineRegion(vbase, size uint32, readable, writeable, executable bool) {
	a.Regions.Define(vbase, size, readable, writeable, executable)
}

// DefineStack installs the address space's stack region and returns
// the initial user stack pointer (as_define_stack).
func (a *AddrSpace) DefineStack() uint32 {
	sp := a.Regions.DefineStack()
	a.stackBase = sp
	return sp
}

// PrepareLoad sets the writeable-mask override and flushes the TLB, so
// an ELF loader can populate read-only segments before the program
// ever runs (spec.md §4.2). tlb is nil-safe for tests that only care
// about region/PTE bookkeeping and never touch a simulated TLB.
func (a *AddrSpace) PrepareLoad(tlb tlbhw.TLB) {
	a.writeableMask = mach.TLBDirty
	if tlb != nil {
		tlb.InvalidateAll()
	}
}

// CompleteLoad clears the writeable-mask override and flushes the TLB
// (as_complete_load), so that PTEs created without DIRTY revert to
// their real, non-writeable effective permission on the next fault.
func (a *AddrSpace) CompleteLoad(tlb tlbhw.TLB) {
	a.writeableMask = 0
	if tlb != nil {
		tlb.InvalidateAll()
	}
}

// WriteableMask returns the bits this address space ORs into every TLB
// entry it installs.
func (a *AddrSpace) WriteableMask() uint32 { return a.writeableMask }

// Activate and Deactivate invalidate every TLB entry (as_activate /
// as_deactivate). spec.md §4.4 and §5 call for this to run "with
// interrupts raised to the highest priority level for the duration of
// the invalidation loop"; tlbhw.Sim models that atomicity with its own
// internal mutex rather than a simulated interrupt level, since there
// is no interrupt controller to raise a priority on in this core.
func (a *AddrSpace) Activate(tlb tlbhw.TLB) {
	tlb.InvalidateAll()
}

func (a *AddrSpace) Deactivate(tlb tlbhw.TLB) {
	tlb.InvalidateAll()
}

// Copy performs as_copy: it deep-copies old's region list into a fresh
// address space and, for every PTE old owns, installs a sibling PTE
// under the new address space that shares the same physical frame.
// Both the old and new PTEs have DIRTY cleared, so the first write to
// either side takes a READONLY fault and runs cow_break (spec.md
// §4.4, invariant 5 of §8).
//
// Sharing a frame only increments a reference count and never
// allocates one, so this cannot fail on frame exhaustion; it can still
// fail partway through if the destination table's PTE quota
// (mem/limits.VM.PTEs) runs out before every entry is copied. Either
// way, per spec.md §7's "free every resource acquired earlier" rule,
// every PTE already installed under new is rolled back before
// returning nil.
func Copy(old *AddrSpace, frames *frame.Table, pt *pagetable.Table) *AddrSpace {
	nu := Create()
	nu.Regions = old.Regions.Clone()
	nu.writeableMask = old.writeableMask
	nu.stackBase = old.stackBase

	pt.Lock()
	defer pt.Unlock()

	oldPTEs := pt.OwnedLocked(old.id)
	installed := make([]uint32, 0, len(oldPTEs))
	for _, src := range oldPTEs {
		frames.IncrementRef(src.Frame())

		src.Elo &^= mach.TLBDirty
		dst := &pagetable.PTE{
			ASID: nu.id,
			VPN:  src.VPN,
			Elo:  src.Elo,
		}
		if !pt.InsertLocked(dst) {
			// nu.id is fresh and unused, so this can only be the PTE
			// quota running out partway through the sweep, not a
			// collision. Undo the ref-count bump InsertLocked never
			// got to register and roll back everything installed so far.
			frames.FreeKpage(mach.KVAddr(src.Frame()))
			for i, v := range installed {
				pt.RemoveLocked(nu.id, oldPTEs[i].VPN)
				frames.FreeKpage(v)
			}
			return nil
		}
		installed = append(installed, mach.KVAddr(src.Frame()))
	}

	return nu
}

// Destroy unlinks every PTE old owns, frees the frames they reference
// (honoring reference counts so a frame still shared with a sibling
// address space survives), and discards old's region list (as_destroy).
// The address-space record itself needs no explicit free in Go; it
// becomes unreachable once the caller drops its last reference.
func Destroy(old *AddrSpace, frames *frame.Table, pt *pagetable.Table) {
	removed := pt.RemoveAll(old.id)
	for _, pte := range removed {
		frames.FreeKpage(mach.KVAddr(pte.Frame()))
	}
	old.Regions = &region.List{}
}
