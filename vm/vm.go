// Package vm is the facade spec.md §6 calls "exposed to the rest of
// the kernel": vm_bootstrap, alloc_kpages/free_kpages, the as_*
// family, and vm_fault, each backed by the component packages beneath
// vm/. Grounded on biscuit/src/vm/as.go's role as the single package
// the rest of biscuit's kernel imports for every VM operation, even
// though the real work lives in mem, hashtable-shaped state, and the
// address-space type.
package vm

import (
	"mipsvm/internal/accnt"
	"mipsvm/internal/defs"
	"mipsvm/internal/mach"
	"mipsvm/internal/proc"
	"mipsvm/internal/ramalloc"
	"mipsvm/internal/tlbhw"
	"mipsvm/mem/frame"
	"mipsvm/mem/limits"
	"mipsvm/mem/vmstats"
	"mipsvm/vm/addrspace"
	"mipsvm/vm/fault"
	"mipsvm/vm/pagetable"
)

// System bundles the frame table, the inverted page table, the
// process registry, and a TLB, wired together the way vm_bootstrap
// wires the real kernel's globals. One System is the whole VM
// subsystem for one simulated machine.
type System struct {
	Frames *frame.Table
	PT     *pagetable.Table
	Procs  *proc.Table
	TLB    tlbhw.TLB
	Stats  *vmstats.VM
	Accnt  *accnt.Accnt

	handler *fault.Handler
}

// Bootstrap is vm_bootstrap: it must precede any paging. It sizes the
// frame table and the inverted page table against ram (spec.md §4.1:
// "place the frame-table array and the inverted-page-table bucket
// array at the top of RAM working downward"), wires a fresh quota and
// stats block, and returns a ready System. It returns nil if ram is
// too small to hold the frame table's own metadata.
func Bootstrap(ram ramalloc.RAM, tlb tlbhw.TLB) *System {
	stats := &vmstats.VM{}

	// The inverted page table's bucket array (one head pointer per
	// bucket, 2*nframes buckets) is reserved alongside the frame
	// table's own metadata, per spec.md §4.1's "working downward"
	// layout. nframes follows directly from ram's size, the same
	// arithmetic frame.Bootstrap itself performs.
	nframes := ram.Size() / mach.PageSize
	const bucketBytes = 8 // one *PTE head pointer, simulated as 8 bytes
	ptBytes := 2 * nframes * bucketBytes

	quota := limits.NewVM(int(nframes))
	frames := frame.Bootstrap(ram, ptBytes, quota.Frames, stats)
	if frames == nil {
		return nil
	}

	pt := pagetable.New(frames.NFrames())
	pt.SetQuota(quota.PTEs)
	pt.SetStats(stats)
	procs := proc.NewTable()

	s := &System{
		Frames: frames,
		PT:     pt,
		Procs:  procs,
		TLB:    tlb,
		Stats:  stats,
		Accnt:  &accnt.Accnt{},
	}
	s.handler = &fault.Handler{
		Procs:  procs,
		Frames: frames,
		PT:     pt,
		TLB:    tlb,
		Stats:  stats,
		Accnt:  s.Accnt,
	}
	return s
}

// AllocKpages allocates n contiguous kernel pages. Only n==1 is
// supported after bootstrap, matching spec.md §4.1's "multi-page
// requests return 0"; it exists under this name so kernel code can
// call it exactly as spec.md §6 names it.
func (s *System) AllocKpages(n int) uint32 {
	if n != 1 {
		return 0
	}
	return s.Frames.AllocKpage()
}

// FreeKpages frees a kernel page previously returned by AllocKpages.
func (s *System) FreeKpages(vaddr uint32) {
	s.Frames.FreeKpage(vaddr)
}

// AsCreate is as_create.
func (s *System) AsCreate() *addrspace.AddrSpace {
	return addrspace.Create()
}

// AsCopy is as_copy.
func (s *System) AsCopy(old *addrspace.AddrSpace) *addrspace.AddrSpace {
	return addrspace.Copy(old, s.Frames, s.PT)
}

// AsDestroy is as_destroy.
func (s *System) AsDestroy(as *addrspace.AddrSpace) {
	addrspace.Destroy(as, s.Frames, s.PT)
}

// AsActivate is as_activate.
func (s *System) AsActivate(as *addrspace.AddrSpace) {
	as.Activate(s.TLB)
}

// AsDeactivate is as_deactivate.
func (s *System) AsDeactivate(as *addrspace.AddrSpace) {
	as.Deactivate(s.TLB)
}

// AsDefineRegion is as_define_region.
func (s *System) AsDefineRegion(as *addrspace.AddrSpace, vbase, size uint32, r, w, x bool) {
	as.DefineRegion(vbase, size, r, w, x)
}

// AsPrepareLoad is as_prepare_load.
func (s *System) AsPrepareLoad(as *addrspace.AddrSpace) {
	as.PrepareLoad(s.TLB)
}

// AsCompleteLoad is as_complete_load.
func (s *System) AsCompleteLoad(as *addrspace.AddrSpace) {
	as.CompleteLoad(s.TLB)
}

// AsDefineStack is as_define_stack.
func (s *System) AsDefineStack(as *addrspace.AddrSpace) uint32 {
	return as.DefineStack()
}

// SetCurrent registers as as the address space thread tid is running
// in, the bookkeeping a real scheduler would do on context switch.
func (s *System) SetCurrent(tid defs.Tid_t, as *addrspace.AddrSpace) {
	s.Procs.SetCurrent(tid, as)
}

// Fault is vm_fault: the trap handler entry point.
func (s *System) Fault(tid defs.Tid_t, ftype defs.FaultType, addr uint32) defs.Err_t {
	return s.handler.Fault(tid, ftype, addr)
}

// PageSize, PageBits, PageFrame, and UserStack re-export the platform
// constants spec.md §6 says "come from the platform", so callers never
// need to import internal/mach just to round an address.
const (
	PageSize  = mach.PageSize
	PageBits  = mach.PageBits
	PageFrame = mach.PageFrame
	UserStack = mach.UserStack
)
