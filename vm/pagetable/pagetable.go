// Package pagetable implements the global inverted (hash-indexed) page
// table (spec.md §4.3, component C): a single process-wide hash table
// shared by every address space, keyed by (address-space identity,
// virtual page).
//
// Grounded on biscuit/src/hashtable/hashtable.go's bucket shape — an
// array of bucket heads, each an intrusive singly linked list, entries
// prepended on insert — but with one deliberate departure from that
// file's design: hashtable.go gives each bucket its own sync.RWMutex
// for finer-grained concurrency, while spec.md §4.3 mandates a single
// page_table_lock guarding every bucket and every PTE's next field.
// That constraint is preserved as written rather than "improved" with
// per-bucket locking, because the fault handler (vm/fault) depends on
// being able to hold one lock across a lookup-then-insert sequence
// that may also touch the frame table (spec.md §5's lock ordering
// rule).
package pagetable

import (
	"fmt"
	"hash/fnv"
	"sync"

	"mipsvm/internal/mach"
	"mipsvm/mem/limits"
	"mipsvm/mem/vmstats"
)

// ASID is an address space's stable identity token, assigned once at
// creation and never reused while any of its PTEs might still be
// referenced — spec.md's Design Notes §9 call for "a stable numeric id
// assigned at creation" in place of the original's address-as-hash-key
// trick.
type ASID uint32

// String formats an ASID as a short hashed tag rather than its raw
// sequential value, so log output distinguishes address spaces at a
// glance instead of printing easily-confused small integers (1, 2,
// 3, ...). Grounded on hashtable.go's hashString/hashUstr, which reach
// for hash/fnv (FNV-1a) whenever the teacher needs a fast, dependable
// hash of a key for display or bucketing; spec.md §3's own hash
// function is mandated byte-for-byte elsewhere and does not use FNV.
func (a ASID) String() string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%d", uint32(a))
	return fmt.Sprintf("as-%08x", h.Sum32())
}

// PTE is one page-table entry: elo packs a physical frame number with
// the VALID and DIRTY bits, following spec.md §3's layout. DIRTY here
// is the write-enable bit (MIPS convention), not a modified bit.
type PTE struct {
	ASID ASID
	VPN  uint32
	Elo  uint32
	next *PTE
}

// Frame extracts the physical frame number (with page offset bits
// zeroed) from the PTE's elo.
func (p *PTE) Frame() uint32 { return mach.FrameOf(p.Elo) }

// Valid reports whether VALID is set.
func (p *PTE) Valid() bool { return p.Elo&mach.TLBValid != 0 }

// Dirty reports whether DIRTY (write-enable) is set.
func (p *PTE) Dirty() bool { return p.Elo&mach.TLBDirty != 0 }

// Table is the global inverted page table: a fixed-size array of
// bucket heads sized 2×total_frames at bootstrap, per spec.md §4.3. It
// never resizes.
type Table struct {
	mu      sync.Mutex // page_table_lock
	buckets []*PTE
	size    uint32

	quota *limits.Atomic
	stats *vmstats.VM
}

// New allocates a page table sized for nframes physical frames
// (2×nframes buckets, keeping the expected chain length at or below
// 0.5 by construction, per spec.md's Design Notes §9).
func New(nframes uint32) *Table {
	size := 2 * nframes
	if size == 0 {
		size = 2
	}
	return &Table{buckets: make([]*PTE, size), size: size}
}

// SetQuota wires a PTE quota into the table (mem/limits.VM.PTEs):
// InsertLocked then fails once the quota is exhausted, the same way
// mem/frame's quota bounds AllocKpage below the size implied by
// simulated RAM (SPEC_FULL.md §13.2). Nil (the default) means
// unlimited, matching a table built with plain New.
func (t *Table) SetQuota(q *limits.Atomic) { t.quota = q }

// SetStats wires the operational counters InsertLocked/RemoveLocked/
// RemoveAll update (PTEInserts/PTEEvictions, SPEC_FULL.md §13.3). Nil
// (the default) disables counting.
func (t *Table) SetStats(s *vmstats.VM) { t.stats = s }

// Size returns the cached bucket count used by the hash function.
// spec.md's Design Notes §9 call out that hpt_hash must use this
// cached value rather than re-querying RAM size at lookup time, since
// the two can disagree if RAM reporting isn't stable; Size is computed
// once in New and never recalculated.
func (t *Table) Size() uint32 { return t.size }

func (t *Table) hash(asid ASID, vpn uint32) uint32 {
	return (uint32(asid) ^ (vpn >> mach.PageBits)) % t.size
}

// Lock and Unlock expose page_table_lock directly so the fault handler
// can hold it across a lookup-then-insert sequence (spec.md §4.5: "A
// newly installed PTE must be visible to a subsequent concurrent
// fault; insertion happens under page_table_lock before the TLB
// write") and across a lookup that may also acquire the frame-table
// lock (spec.md §5's ordering rule: frame-table lock only ever nests
// inside page-table lock, never the reverse).
func (t *Table) Lock()   { t.mu.Lock() }
func (t *Table) Unlock() { t.mu.Unlock() }

// LookupLocked returns the PTE for (asid, vpn), if any. Callers must
// hold the table lock.
func (t *Table) LookupLocked(asid ASID, vpn uint32) (*PTE, bool) {
	b := t.hash(asid, vpn)
	for e := t.buckets[b]; e != nil; e = e.next {
		if e.ASID == asid && e.VPN == vpn {
			return e, true
		}
	}
	return nil, false
}

// InsertLocked prepends a new PTE to its bucket. It returns false
// without inserting if a PTE for (pte.ASID, pte.VPN) already exists,
// preserving invariant 4 of spec.md §8: at most one PTE per (as, vpn),
// or if the table's PTE quota (SetQuota) is exhausted — the caller is
// expected to free whatever frame it was about to back this PTE with,
// per spec.md §7's "failed allocation frees every resource acquired
// earlier". Callers must hold the table lock.
func (t *Table) InsertLocked(pte *PTE) bool {
	b := t.hash(pte.ASID, pte.VPN)
	for e := t.buckets[b]; e != nil; e = e.next {
		if e.ASID == pte.ASID && e.VPN == pte.VPN {
			return false
		}
	}
	if t.quota != nil && !t.quota.Take() {
		return false
	}
	pte.next = t.buckets[b]
	t.buckets[b] = pte
	if t.stats != nil {
		t.stats.PTEInserts.Inc()
	}
	return true
}

// RemoveLocked unlinks and returns the PTE for (asid, vpn), if
// present. Callers must hold the table lock.
//
// spec.md's Design Notes §9 flag a latent bug in one variant of the
// original vm_destroy: it dereferences prev when unlinking the first
// entry of a bucket. RemoveLocked is written so that unlinking the
// head never touches a "previous" node at all.
func (t *Table) RemoveLocked(asid ASID, vpn uint32) (*PTE, bool) {
	b := t.hash(asid, vpn)
	var prev *PTE
	for e := t.buckets[b]; e != nil; e = e.next {
		if e.ASID == asid && e.VPN == vpn {
			if prev == nil {
				t.buckets[b] = e.next
			} else {
				prev.next = e.next
			}
			e.next = nil
			if t.quota != nil {
				t.quota.Give()
			}
			if t.stats != nil {
				t.stats.PTEEvictions.Inc()
			}
			return e, true
		}
		prev = e
	}
	return nil, false
}

// Lookup acquires the table lock and calls LookupLocked, for callers
// that don't need to extend the critical section across further work.
func (t *Table) Lookup(asid ASID, vpn uint32) (*PTE, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.LookupLocked(asid, vpn)
}

// Insert acquires the table lock and calls InsertLocked.
func (t *Table) Insert(pte *PTE) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.InsertLocked(pte)
}

// Remove acquires the table lock and calls RemoveLocked.
func (t *Table) Remove(asid ASID, vpn uint32) (*PTE, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.RemoveLocked(asid, vpn)
}

// OwnedLocked returns every PTE owned by asid, without unlinking them.
// as_copy uses this to walk old's entries while deciding what to
// install under the new address space. Callers must hold the table
// lock.
func (t *Table) OwnedLocked(asid ASID) []*PTE {
	var owned []*PTE
	for _, head := range t.buckets {
		for e := head; e != nil; e = e.next {
			if e.ASID == asid {
				owned = append(owned, e)
			}
		}
	}
	return owned
}

// RemoveAll unlinks and returns every PTE owned by asid, across every
// bucket, holding the table lock for the whole sweep. as_destroy uses
// this to evict an address space's entries in one pass (spec.md §4.4).
func (t *Table) RemoveAll(asid ASID) []*PTE {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []*PTE
	for b, head := range t.buckets {
		var prev *PTE
		e := head
		for e != nil {
			next := e.next
			if e.ASID == asid {
				if prev == nil {
					t.buckets[b] = next
				} else {
					prev.next = next
				}
				e.next = nil
				removed = append(removed, e)
			} else {
				prev = e
			}
			e = next
		}
	}
	if t.quota != nil {
		t.quota.Given(uint(len(removed)))
	}
	if t.stats != nil {
		t.stats.PTEEvictions.Add(int64(len(removed)))
	}
	return removed
}

// Count returns the total number of live PTEs, for tests and
// diagnostics. It is O(buckets + entries).
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, head := range t.buckets {
		for e := head; e != nil; e = e.next {
			n++
		}
	}
	return n
}
