// Package fault implements the page-fault handler (spec.md §4.5,
// component E): the trap entry point that classifies a fault,
// resolves it against the region list, the inverted page table, and
// the frame table, and installs a TLB entry.
//
// Grounded on biscuit/src/vm/as.go's Sys_pgfault/Page_insert and the
// original vm_fault/vm_fault_readonly flow it implements in Go; the
// fault-type classification and error-code mapping follow spec.md §4.5
// and §6 directly.
package fault

import (
	"log"

	"mipsvm/internal/accnt"
	"mipsvm/internal/caller"
	"mipsvm/internal/defs"
	"mipsvm/internal/mach"
	"mipsvm/internal/proc"
	"mipsvm/internal/tlbhw"
	"mipsvm/mem/frame"
	"mipsvm/mem/vmstats"
	"mipsvm/vm/addrspace"
	"mipsvm/vm/pagetable"
)

// drift dedupes the panic trace below across repeated faults of the
// same kind, rather than flooding the log with identical stacks every
// time a drifted caller retriggers it.
var drift = caller.NewDistinct()

// Handler ties together the external collaborators and the three VM
// components the fault path touches: the "current address space"
// accessor (spec.md §6), the frame table, the inverted page table, and
// the simulated TLB.
type Handler struct {
	Procs  *proc.Table
	Frames *frame.Table
	PT     *pagetable.Table
	TLB    tlbhw.TLB
	Stats  *vmstats.VM
	Accnt  *accnt.Accnt
}

// Fault is vm_fault: the trap handler entry point. tid identifies the
// thread that took the trap, used to look up its current address
// space (spec.md §6's "current process" accessor, modeled explicitly
// here rather than through goroutine-local state — see
// internal/proc's package doc).
//
// Returns 0 on success, or one of defs.EFAULT / defs.EINVAL /
// defs.ENOMEM.
func (h *Handler) Fault(tid defs.Tid_t, ftype defs.FaultType, addr uint32) defs.Err_t {
	start := h.Accnt.Now()
	defer func() {
		if h.Accnt != nil {
			h.Accnt.Record(start)
		}
	}()

	as := h.Procs.Current(tid)
	if as == nil {
		// Kernel faults (no current process or no address space) return
		// EFAULT immediately (spec.md §4.5).
		h.countFault(ftype, defs.EFAULT)
		return defs.EFAULT
	}

	vpn := mach.PageOf(addr)

	switch ftype {
	case defs.FaultReadOnly:
		return h.faultReadonly(as, addr, vpn)
	case defs.FaultRead, defs.FaultWrite:
		return h.faultReadWrite(as, addr, vpn, ftype)
	default:
		// Unknown fault type is a programmer/hardware error (spec.md
		// §7), but spec.md §4.5 specifies EINVAL as the return value
		// here rather than a panic — the trap path, not the VM core,
		// decides whether to escalate.
		h.countFault(ftype, defs.EINVAL)
		return defs.EINVAL
	}
}

func (h *Handler) countFault(ftype defs.FaultType, err defs.Err_t) {
	if h.Stats == nil {
		return
	}
	switch err {
	case defs.EFAULT:
		h.Stats.FaultEFAULT.Inc()
	case defs.ENOMEM:
		h.Stats.FaultENOMEM.Inc()
	}
	switch ftype {
	case defs.FaultReadOnly:
		h.Stats.FaultReadonly.Inc()
	case defs.FaultRead:
		h.Stats.FaultRead.Inc()
	case defs.FaultWrite:
		h.Stats.FaultWrite.Inc()
	}
}

// faultReadonly handles a TLB hit with no DIRTY bit: a write to a page
// the TLB currently marks read-only. This is where COW unsharing
// happens (spec.md §4.5 step 1).
func (h *Handler) faultReadonly(as *addrspace.AddrSpace, addr, vpn uint32) defs.Err_t {
	r, ok := as.Regions.Find(addr)
	if !ok || !r.Writeable {
		h.countFault(defs.FaultReadOnly, defs.EFAULT)
		return defs.EFAULT
	}

	h.PT.Lock()
	pte, found := h.PT.LookupLocked(as.ID(), vpn)
	if !found {
		h.PT.Unlock()
		// A READONLY trap implies a TLB hit, which implies a PTE must
		// already exist; absence here means the caller and the PTE
		// state have drifted, which is a programmer error rather than
		// a user one.
		if seen, trace := drift.Seen(); !seen {
			log.Printf("fault: readonly trap with no backing PTE\n\t%s", trace)
		}
		panic("fault: readonly trap with no backing PTE")
	}

	oldVaddr := mach.KVAddr(pte.Frame())
	newVaddr := h.Frames.CowBreak(oldVaddr)
	if newVaddr == 0 {
		h.PT.Unlock()
		h.countFault(defs.FaultReadOnly, defs.ENOMEM)
		return defs.ENOMEM
	}

	pte.Elo = mach.PAddr(newVaddr) | mach.TLBValid | mach.TLBDirty
	h.PT.Unlock()

	h.writeTLB(as, vpn, pte.Elo)
	h.countFault(defs.FaultReadOnly, 0)
	return 0
}

// faultReadWrite handles a READ or WRITE fault: a genuine TLB miss.
// Looks up the PTE, materializing one on first touch (spec.md §4.5
// steps 2-4).
func (h *Handler) faultReadWrite(as *addrspace.AddrSpace, addr, vpn uint32, ftype defs.FaultType) defs.Err_t {
	h.PT.Lock()
	pte, found := h.PT.LookupLocked(as.ID(), vpn)
	if found {
		elo := pte.Elo
		h.PT.Unlock()
		h.writeTLB(as, vpn, elo)
		h.countFault(ftype, 0)
		return 0
	}

	// Not found: validate against the region list using the full,
	// pre-masked fault address (spec.md §4.5 step 3), then materialize
	// a fresh page.
	r, ok := as.Regions.Find(addr)
	if !ok {
		h.PT.Unlock()
		h.countFault(ftype, defs.EFAULT)
		return defs.EFAULT
	}

	h.PT.Unlock()
	// alloc_kpage may block or otherwise do work better done outside
	// page_table_lock's critical section (spec.md §5's ordering rule
	// permits frame-table acquisition nested inside the page-table
	// lock, but does not require it to happen there); re-acquiring
	// below keeps the lock-ordering invariant intact while shortening
	// the time the lock is held.
	vaddr := h.Frames.AllocKpage()
	if vaddr == 0 {
		h.countFault(ftype, defs.ENOMEM)
		return defs.ENOMEM
	}
	h.Frames.Zero(vaddr)

	elo := mach.PAddr(vaddr) | mach.TLBValid
	if r.Writeable {
		elo |= mach.TLBDirty
	}

	nu := &pagetable.PTE{ASID: as.ID(), VPN: vpn, Elo: elo}

	h.PT.Lock()
	// Another fault on the same (as, vpn) may have raced us between
	// the unlock above and here; re-checking with LookupLocked
	// resolves that by discarding our work in favor of the winner.
	if existing, already := h.PT.LookupLocked(as.ID(), vpn); already {
		h.PT.Unlock()
		h.Frames.FreeKpage(vaddr)
		h.writeTLB(as, vpn, existing.Elo)
		h.countFault(ftype, 0)
		return 0
	}
	// The duplicate case was just ruled out under the same critical
	// section, so a false return here can only mean the PTE quota
	// (mem/limits.VM.PTEs) is exhausted.
	if !h.PT.InsertLocked(nu) {
		h.PT.Unlock()
		h.Frames.FreeKpage(vaddr)
		h.countFault(ftype, defs.ENOMEM)
		return defs.ENOMEM
	}
	h.PT.Unlock()

	h.writeTLB(as, vpn, elo)
	h.countFault(ftype, 0)
	return 0
}

// writeTLB issues the TLB write for vpn with elo, OR'ing in the
// address space's writeable-mask override (spec.md §4.5 step 4). It
// prefers tlb_probe to refresh an existing slot and falls back to
// tlb_random to install a fresh one, matching the READONLY path's
// requirement. The READ/WRITE miss path goes through the same probe:
// on a genuine miss there is no slot for vpn, so it falls through to
// tlb_random, while a re-fault on a page still cached in the TLB
// rewrites that slot in place.
func (h *Handler) writeTLB(as *addrspace.AddrSpace, vpn, elo uint32) {
	effective := elo | as.WriteableMask()
	if idx := h.TLB.Probe(vpn); idx >= 0 {
		h.TLB.WriteIndexed(vpn, effective, idx)
		return
	}
	h.TLB.WriteRandom(vpn, effective)
}
