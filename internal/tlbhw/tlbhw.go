// Package tlbhw models the MIPS R3000-class software-loaded TLB that
// spec.md §6 lists as an external collaborator: tlb_write, tlb_random,
// tlb_probe, and the interrupt-raised invalidation sweep as_activate
// performs. Grounded on biscuit/src/vm/as.go's Tlbshoot/tlb_shootdown
// split (hardware op vs. software bookkeeping) and on the original
// addrspace.c's as_activate, which brackets the invalidation loop with
// splhigh/splx.
package tlbhw

import (
	"log"
	"sync"

	"mipsvm/internal/caller"
)

// NumTLB is the number of hardware TLB slots (System/161's MIPS has 64).
const NumTLB = 64

// Invalid marks a TLB slot as not present.
const Invalid uint32 = 0x80000000

// TLB is the hardware interface the fault handler and address-space
// activation code consume.
type TLB interface {
	// WriteRandom installs (ehi, elo) into an implementation-chosen
	// slot (tlb_random).
	WriteRandom(ehi, elo uint32)
	// WriteIndexed installs (ehi, elo) into slot idx (tlb_write).
	WriteIndexed(ehi, elo uint32, idx int)
	// Probe returns the slot holding ehi's virtual page, or -1
	// (tlb_probe).
	Probe(ehi uint32) int
	// InvalidateAll clears every slot. Callers are expected to bracket
	// this with raised interrupt priority, as as_activate does.
	InvalidateAll()
}

// Sim is an in-process stand-in for the hardware TLB. All operations
// are serialized by an internal lock, which plays the role the real
// machine's raised interrupt priority level plays: it keeps a trap
// handler from observing a half-written entry.
type Sim struct {
	mu      sync.Mutex
	entries [NumTLB]entry
	next    int
}

type entry struct {
	ehi, elo uint32
	valid    bool
}

// NewSim returns a freshly invalidated simulated TLB.
func NewSim() *Sim {
	s := &Sim{}
	s.InvalidateAll()
	return s
}

func (s *Sim) WriteRandom(ehi, elo uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.next
	s.next = (s.next + 1) % NumTLB
	s.entries[idx] = entry{ehi: ehi, elo: elo, valid: true}
}

func (s *Sim) WriteIndexed(ehi, elo uint32, idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx < 0 || idx >= NumTLB {
		panic("tlbhw: index out of range")
	}
	s.entries[idx] = entry{ehi: ehi, elo: elo, valid: true}
}

func (s *Sim) Probe(ehi uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.valid && e.ehi == ehi {
			return i
		}
	}
	return -1
}

func (s *Sim) InvalidateAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		s.entries[i] = entry{ehi: Invalid, elo: 0, valid: false}
	}
	s.next = 0
}

// ReadForTest exposes a slot's contents; it exists only so package
// tests can assert on installed entries without reaching into Sim's
// unexported fields from another package.
func (s *Sim) ReadForTest(idx int) (ehi, elo uint32, valid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entries[idx]
	return e.ehi, e.elo, e.valid
}

// shootdownSites dedupes the panic trace below across repeated calls,
// the same way biscuit's caller.Distinct keeps a recurring panic from
// flooding the log with identical stacks.
var shootdownSites = caller.NewDistinct()

// Shootdown is requested by Tlbshoot-style multi-CPU invalidation.
// spec.md explicitly places multi-CPU TLB shootdown out of scope (§1,
// §14 of SPEC_FULL.md); this mirrors biscuit's own behavior when no
// shootdown transport is configured (Tlbshoot panics) and the original
// vm_tlbshootdown stub ("vm tried to do tlb shootdown?!").
func Shootdown() {
	if seen, trace := shootdownSites.Seen(); !seen {
		log.Printf("tlbhw: shootdown requested on a uniprocessor configuration\n\t%s", trace)
	}
	panic("tlbhw: shootdown requested on a uniprocessor configuration")
}
