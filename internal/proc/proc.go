// Package proc is the "current process" accessor spec.md §6 lists as a
// collaborator the VM core consumes rather than implements: something
// that maps the thread taking a trap to its address space.
//
// Grounded on biscuit/src/tinfo/tinfo.go's Threadinfo_t/Tnote_t
// registry, with one deliberate departure: tinfo.go locates the
// current thread via runtime.Gptr/Setgptr, hooks biscuit's own forked
// runtime exposes for goroutine-local storage. Stock Go has no such
// hook, and bolting one on via unsafe would not be idiomatic, so
// Table keys its registry explicitly by defs.Tid_t instead of hiding
// the lookup behind a goroutine-local global. Every entry point that
// needs "the current address space" — the trap handler in particular —
// takes a Tid_t the same way a syscall entry point would already have
// one from the scheduler.
package proc

import (
	"sync"

	"mipsvm/internal/defs"
	"mipsvm/vm/addrspace"
)

// Table maps thread identifiers to their address space, the same
// bookkeeping Threadinfo_t.Notes provides in the teacher.
type Table struct {
	mu    sync.Mutex
	space map[defs.Tid_t]*addrspace.AddrSpace
}

// NewTable returns an empty thread-to-address-space registry.
func NewTable() *Table {
	return &Table{space: make(map[defs.Tid_t]*addrspace.AddrSpace)}
}

// SetCurrent records as as the address space running thread tid.
// Passing a nil as models a kernel-only thread with no user mapping.
func (t *Table) SetCurrent(tid defs.Tid_t, as *addrspace.AddrSpace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if as == nil {
		delete(t.space, tid)
		return
	}
	t.space[tid] = as
}

// Current returns the address space thread tid is running in, or nil
// if tid is unknown or is a kernel-only thread. vm_fault treats a nil
// result as a kernel fault (spec.md §4.5: "Kernel faults (no current
// process or no address space) return EFAULT immediately").
func (t *Table) Current(tid defs.Tid_t) *addrspace.AddrSpace {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.space[tid]
}

// Clear removes tid's entry entirely, e.g. on thread exit.
func (t *Table) Clear(tid defs.Tid_t) {
	t.SetCurrent(tid, nil)
}
