// Package limits tracks system-wide resource quotas for the VM
// subsystem, in the style of biscuit/src/limits/limits.go's
// Sysatomic_t. It lets tests (and a deployer) cap the frame table and
// page table below the size implied by simulated RAM, so ENOMEM
// exhaustion paths (spec.md §7) are reachable without allocating
// gigabytes of frames.
package limits

import "sync/atomic"

// Atomic is a quota that can be taken from and given back atomically,
// mirroring biscuit's Sysatomic_t.
type Atomic struct {
	remaining int64
}

// NewAtomic returns a quota initialized to n.
func NewAtomic(n int64) *Atomic {
	return &Atomic{remaining: n}
}

// Take attempts to claim one unit of quota, returning false if none
// remains.
func (a *Atomic) Take() bool {
	return a.Taken(1)
}

// Taken attempts to claim n units of quota.
func (a *Atomic) Taken(n uint) bool {
	if atomic.AddInt64(&a.remaining, -int64(n)) >= 0 {
		return true
	}
	atomic.AddInt64(&a.remaining, int64(n))
	return false
}

// Give returns one unit of quota.
func (a *Atomic) Give() {
	a.Given(1)
}

// Given returns n units of quota.
func (a *Atomic) Given(n uint) {
	atomic.AddInt64(&a.remaining, int64(n))
}

// Remaining reports the current quota, for diagnostics and tests.
func (a *Atomic) Remaining() int64 {
	return atomic.LoadInt64(&a.remaining)
}

// VM bundles the quotas the VM subsystem enforces.
type VM struct {
	// Frames caps how many physical frames alloc_kpage may hand out.
	Frames *Atomic
	// PTEs caps how many inverted-page-table entries may exist at once.
	PTEs *Atomic
}

// NewVM returns quotas sized for a frame table with nframes physical
// frames and room for one PTE per frame by default.
func NewVM(nframes int) *VM {
	return &VM{
		Frames: NewAtomic(int64(nframes)),
		PTEs:   NewAtomic(int64(nframes)),
	}
}
