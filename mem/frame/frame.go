// Package frame implements the frame table (spec.md §4.1, component A):
// the system-wide owner of every physical page of RAM. It hands out
// zeroed or raw single frames, tracks per-frame reference counts, and
// supports copy-on-write break.
//
// Grounded on biscuit/src/mem/mem.go's Physmem_t: an index-addressed
// array of frame metadata, a singly linked free list threaded through
// that array by index rather than pointer, and one lock
// (stealmem_lock/Physmem_t.Mutex) guarding both the free-list head and
// every reference count. dmap.go's Dmap informs the direct-mapped
// kernel-virtual-address convention kept in internal/mach.
package frame

import (
	"sync"

	"mipsvm/internal/mach"
	"mipsvm/internal/ramalloc"
	"mipsvm/internal/util"
	"mipsvm/mem/limits"
	"mipsvm/mem/oom"
	"mipsvm/mem/vmstats"
)

// freeListEnd terminates the free list, playing the role of a NULL
// next_free pointer.
const freeListEnd = ^uint32(0)

type entry struct {
	refCount int32
	nextFree uint32
}

// Table owns every physical page of a simulated machine's RAM. The
// storage backing the frame table and the inverted page table's bucket
// array is carved from the top of RAM at Bootstrap, matching
// frametable_bootstrap's layout; everything below ram.FirstFree() is
// permanently reserved for the kernel image and pre-VM allocations.
type Table struct {
	mu       sync.Mutex // stealmem_lock
	frames   []entry
	freeHead uint32
	nframes  uint32
	ram      []byte // simulated physical RAM contents, one PageSize-sized slot per frame

	quota *limits.Atomic
	stats *vmstats.VM

	// ReservedBytes is the footprint (at the top of RAM) occupied by
	// this frame table's own metadata plus whatever byte count the
	// caller reserved for a co-resident inverted page table bucket
	// array (see Bootstrap's extraReserved parameter). It is recorded
	// for diagnostics; nothing else in the module reads it.
	ReservedBytes uint32
}

// Bootstrap initializes the frame table over ram. extraReserved is an
// additional byte count to reserve at the top of RAM alongside the
// frame table's own metadata (the inverted page table's bucket array,
// per spec.md §4.1: "place the frame-table array and the
// inverted-page-table bucket array at the top of RAM working
// downward"). It returns nil if RAM is too small to hold even the
// reserved metadata.
func Bootstrap(ram ramalloc.RAM, extraReserved uint32, quota *limits.Atomic, stats *vmstats.VM) *Table {
	size := ram.Size()
	nframes := size / mach.PageSize

	const frameTableEntryBytes = 8 // refCount int32 + nextFree uint32
	frameTableBytes := nframes * frameTableEntryBytes
	reserved := util.Roundup(frameTableBytes+extraReserved, mach.PageSize)
	if reserved >= size {
		return nil
	}

	t := &Table{
		frames:        make([]entry, nframes),
		nframes:       nframes,
		ram:           make([]byte, size),
		quota:         quota,
		stats:         stats,
		ReservedBytes: reserved,
	}

	reservedStartFrame := (size - reserved) / mach.PageSize
	firstFreeFrame := util.Roundup(ram.FirstFree(), mach.PageSize) / mach.PageSize

	for i := uint32(0); i < firstFreeFrame; i++ {
		t.frames[i] = entry{refCount: 1, nextFree: freeListEnd}
	}
	for i := reservedStartFrame; i < nframes; i++ {
		t.frames[i] = entry{refCount: 1, nextFree: freeListEnd}
	}

	t.freeHead = freeListEnd
	for i := reservedStartFrame; i > firstFreeFrame; i-- {
		idx := i - 1
		t.frames[idx] = entry{refCount: 0, nextFree: t.freeHead}
		t.freeHead = idx
	}

	return t
}

func (t *Table) frameToPhys(idx uint32) uint32 {
	return idx * mach.PageSize
}

func (t *Table) physToFrame(phys uint32) uint32 {
	return phys / mach.PageSize
}

// AllocKpage pops the head of the free list, sets its reference count
// to one, and returns its kernel-visible (direct mapped) virtual
// address. The frame's contents are whatever its last owner left
// behind — callers that need a clean page (the fault handler's
// first-touch path, spec.md §4.5) must call Zero explicitly; CowBreak
// deliberately skips it because it immediately overwrites the new
// frame with a copy. This mirrors biscuit's split between
// Refpg_new (zeroing) and Refpg_new_nozero (raw) built on the same
// underlying allocator. It returns 0 if the free list is empty or the
// frame quota is exhausted.
func (t *Table) AllocKpage() uint32 {
	if t.quota != nil && !t.quota.Take() {
		oom.Notify(1)
		return 0
	}

	t.mu.Lock()
	head := t.freeHead
	if head == freeListEnd {
		t.mu.Unlock()
		if t.quota != nil {
			t.quota.Give()
		}
		oom.Notify(1)
		return 0
	}
	t.freeHead = t.frames[head].nextFree
	t.frames[head] = entry{refCount: 1, nextFree: freeListEnd}
	t.mu.Unlock()

	phys := t.frameToPhys(head)
	if t.stats != nil {
		t.stats.FramesAlloc.Inc()
	}
	return mach.KVAddr(phys)
}

// Zero clears a frame's contents. The fault handler calls this on a
// freshly allocated frame before installing it, so that a page never
// leaks whatever kernel data a prior owner left behind.
func (t *Table) Zero(vaddr uint32) {
	phys := mach.PAddr(vaddr)
	page := t.ram[phys : phys+mach.PageSize]
	for i := range page {
		page[i] = 0
	}
}

// FreeKpage decrements the frame's reference count and, if it reaches
// zero, pushes it back onto the head of the free list. It is a no-op
// on an address that does not map to a managed frame.
func (t *Table) FreeKpage(vaddr uint32) {
	phys := mach.PAddr(vaddr)
	idx := t.physToFrame(phys)
	if idx >= t.nframes {
		return
	}

	t.mu.Lock()
	if t.frames[idx].refCount <= 0 {
		t.mu.Unlock()
		panic("frame: double free")
	}
	t.frames[idx].refCount--
	freed := t.frames[idx].refCount == 0
	if freed {
		t.frames[idx].nextFree = t.freeHead
		t.freeHead = idx
	}
	t.mu.Unlock()

	if freed {
		if t.quota != nil {
			t.quota.Give()
		}
		if t.stats != nil {
			t.stats.FramesFree.Inc()
		}
	}
}

// IncrementRef adds one to a frame's reference count. vm_copy uses
// this to share a frame between the PTEs of two address spaces.
func (t *Table) IncrementRef(phys uint32) {
	idx := t.physToFrame(phys)
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.frames[idx].refCount < 1 {
		panic("frame: increment on dead frame")
	}
	t.frames[idx].refCount++
}

// RefCount reports a frame's current reference count.
func (t *Table) RefCount(phys uint32) int {
	idx := t.physToFrame(phys)
	t.mu.Lock()
	defer t.mu.Unlock()
	return int(t.frames[idx].refCount)
}

// Dmap returns a slice over a frame's contents through the simulated
// direct map, the same role biscuit's mem.Dmap plays for turning a
// physical address into a usable byte view.
func (t *Table) Dmap(phys uint32) []byte {
	return t.ram[phys : phys+mach.PageSize]
}

// CowBreak implements spec.md §4.1's cow_break: if the frame at vaddr
// is solely owned, it is returned unchanged. Otherwise a new frame is
// allocated, the source's contents are copied into it, the source's
// reference count drops by one, and the new frame's virtual address is
// returned. The refcount decrement happens under the frame-table lock;
// the copy happens outside it, while the new frame is exclusively
// owned by the caller, matching spec.md §4.1's atomicity note.
func (t *Table) CowBreak(vaddr uint32) uint32 {
	phys := mach.PAddr(vaddr)
	idx := t.physToFrame(phys)

	t.mu.Lock()
	sole := t.frames[idx].refCount == 1
	if !sole {
		t.frames[idx].refCount--
	}
	t.mu.Unlock()

	if sole {
		return vaddr
	}

	newVaddr := t.AllocKpage()
	if newVaddr == 0 {
		// Failed to get a replacement frame: undo the decrement so the
		// source frame's accounting is unaffected by the failed
		// attempt (spec.md §7: free every resource acquired, leave
		// nothing half-done).
		t.mu.Lock()
		t.frames[idx].refCount++
		t.mu.Unlock()
		return 0
	}
	newPhys := mach.PAddr(newVaddr)
	copy(t.Dmap(newPhys), t.Dmap(phys))
	if t.stats != nil {
		t.stats.COWBreaks.Inc()
	}
	return newVaddr
}

// NFrames reports the number of frames the table manages, for tests
// and diagnostics.
func (t *Table) NFrames() uint32 {
	return t.nframes
}

// FreeListLen walks the free list and returns its length. Intended for
// invariant checks in tests, not hot paths.
func (t *Table) FreeListLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	seen := make(map[uint32]bool)
	for i := t.freeHead; i != freeListEnd; i = t.frames[i].nextFree {
		if seen[i] {
			panic("frame: cycle in free list")
		}
		seen[i] = true
		n++
	}
	return n
}
