package pagetable_test

import (
	"testing"

	"mipsvm/internal/mach"
	"mipsvm/vm/pagetable"
)

func TestInsertLookup(t *testing.T) {
	pt := pagetable.New(16)
	pte := &pagetable.PTE{ASID: 1, VPN: 0x400000, Elo: 0x1000 | mach.TLBValid}

	if !pt.Insert(pte) {
		t.Fatal("insert of fresh key failed")
	}
	got, ok := pt.Lookup(1, 0x400000)
	if !ok || got != pte {
		t.Fatalf("lookup = (%v, %v), want (%v, true)", got, ok, pte)
	}
}

func TestDuplicateInsertRejected(t *testing.T) {
	pt := pagetable.New(16)
	a := &pagetable.PTE{ASID: 1, VPN: 0x400000, Elo: 1}
	b := &pagetable.PTE{ASID: 1, VPN: 0x400000, Elo: 2}

	if !pt.Insert(a) {
		t.Fatal("first insert should succeed")
	}
	if pt.Insert(b) {
		t.Fatal("duplicate (asid, vpn) insert should be rejected")
	}
	if pt.Count() != 1 {
		t.Fatalf("count = %d, want 1 (invariant 4: at most one PTE per (as, vpn))", pt.Count())
	}
}

func TestDistinctAddrSpacesSameVPN(t *testing.T) {
	pt := pagetable.New(16)
	a := &pagetable.PTE{ASID: 1, VPN: 0x400000}
	b := &pagetable.PTE{ASID: 2, VPN: 0x400000}

	if !pt.Insert(a) || !pt.Insert(b) {
		t.Fatal("distinct address spaces may share a vpn")
	}
	if pt.Count() != 2 {
		t.Fatalf("count = %d, want 2", pt.Count())
	}

	got, ok := pt.Lookup(2, 0x400000)
	if !ok || got != b {
		t.Fatalf("lookup(2, vpn) = (%v, %v), want (%v, true)", got, ok, b)
	}
}

func TestRemoveUnlinksHeadCorrectly(t *testing.T) {
	// spec.md's Design Notes §9 flag a latent bug in one variant of
	// vm_destroy that dereferences prev when unlinking a bucket's first
	// entry; this exercises exactly that path.
	// size = 4: page numbers 1 and 5 both hash to bucket 0 for asid=1,
	// (1^1)%4 == (1^5)%4 == 0.
	pt := pagetable.New(2)
	a := &pagetable.PTE{ASID: 1, VPN: 0x1000}
	b := &pagetable.PTE{ASID: 1, VPN: 0x5000}

	pt.Insert(b)
	pt.Insert(a) // prepended, so a is now the bucket head

	// Remove the head and confirm the entry behind it is still reachable.
	removedA, ok := pt.Remove(1, 0x1000)
	if !ok || removedA != a {
		t.Fatalf("remove(vpn=0x1000) = (%v, %v)", removedA, ok)
	}
	if got, ok := pt.Lookup(1, 0x5000); !ok || got != b {
		t.Fatalf("lookup(vpn=0x5000) after removing head = (%v, %v)", got, ok)
	}
}

func TestRemoveAll(t *testing.T) {
	pt := pagetable.New(16)
	pt.Insert(&pagetable.PTE{ASID: 1, VPN: 0x1000})
	pt.Insert(&pagetable.PTE{ASID: 1, VPN: 0x2000})
	pt.Insert(&pagetable.PTE{ASID: 2, VPN: 0x1000})

	removed := pt.RemoveAll(1)
	if len(removed) != 2 {
		t.Fatalf("removed %d entries, want 2", len(removed))
	}
	if pt.Count() != 1 {
		t.Fatalf("count after RemoveAll = %d, want 1", pt.Count())
	}
	if _, ok := pt.Lookup(2, 0x1000); !ok {
		t.Fatal("other address space's PTE should survive RemoveAll")
	}
}

func TestBucketAssignmentMatchesSpecFormula(t *testing.T) {
	// spec.md §3: hash(asid, vpn) = (asid XOR (vpn >> PAGE_BITS)) mod
	// table_size. Two keys chosen to land in the same bucket under
	// that formula must still both be independently retrievable, which
	// only holds if buckets are genuinely chained rather than
	// overwritten.
	pt := pagetable.New(4) // size = 8
	size := pt.Size()

	// Page numbers 0 and 8 both hash to bucket 1 for asid=1 and
	// size=8: (1^0)%8 == (1^8)%8 == 1.
	vpnA := uint32(0) << mach.PageBits
	vpnB := uint32(8) << mach.PageBits
	hashA := (uint32(1) ^ (vpnA >> mach.PageBits)) % size
	hashB := (uint32(1) ^ (vpnB >> mach.PageBits)) % size
	if hashA != hashB {
		t.Fatalf("test setup: vpnA and vpnB do not collide (%d != %d)", hashA, hashB)
	}

	a := &pagetable.PTE{ASID: 1, VPN: vpnA}
	b := &pagetable.PTE{ASID: 1, VPN: vpnB}
	pt.Insert(a)
	pt.Insert(b)

	gotA, ok := pt.Lookup(1, vpnA)
	if !ok || gotA != a {
		t.Fatalf("lookup(vpnA) = (%v, %v), want (%v, true)", gotA, ok, a)
	}
	gotB, ok := pt.Lookup(1, vpnB)
	if !ok || gotB != b {
		t.Fatalf("lookup(vpnB) = (%v, %v), want (%v, true)", gotB, ok, b)
	}
}
