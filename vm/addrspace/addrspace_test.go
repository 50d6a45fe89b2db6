package addrspace_test

import (
	"testing"

	"mipsvm/internal/mach"
	"mipsvm/internal/ramalloc"
	"mipsvm/mem/frame"
	"mipsvm/mem/vmstats"
	"mipsvm/vm/addrspace"
	"mipsvm/vm/pagetable"
)

func newFrames(t *testing.T) *frame.Table {
	t.Helper()
	ram := ramalloc.NewSim(1*1024*1024, 16*1024)
	ft := frame.Bootstrap(ram, 0, nil, &vmstats.VM{})
	if ft == nil {
		t.Fatal("bootstrap returned nil")
	}
	return ft
}

func TestCreateAssignsDistinctIDs(t *testing.T) {
	a := addrspace.Create()
	b := addrspace.Create()
	if a.ID() == b.ID() {
		t.Fatal("two address spaces must not share an identity token")
	}
}

func TestCopySharesFrameAndClearsDirty(t *testing.T) {
	frames := newFrames(t)
	pt := pagetable.New(frames.NFrames())

	old := addrspace.Create()
	old.DefineRegion(0x400000, 0x1000, true, true, false)

	v := frames.AllocKpage()
	frames.Zero(v)
	phys := mach.PAddr(v)
	pte := &pagetable.PTE{ASID: old.ID(), VPN: 0x400000, Elo: phys | mach.TLBValid | mach.TLBDirty}
	pt.Insert(pte)

	nu := addrspace.Copy(old, frames, pt)
	if nu == nil {
		t.Fatal("Copy returned nil")
	}

	if rc := frames.RefCount(phys); rc != 2 {
		t.Fatalf("ref_count after copy = %d, want 2 (invariant 5)", rc)
	}

	oldPTE, ok := pt.Lookup(old.ID(), 0x400000)
	if !ok {
		t.Fatal("old's PTE missing after copy")
	}
	if oldPTE.Dirty() {
		t.Fatal("old's PTE must have DIRTY cleared after copy")
	}

	newPTE, ok := pt.Lookup(nu.ID(), 0x400000)
	if !ok {
		t.Fatal("new address space has no PTE at the copied vpn")
	}
	if newPTE.Dirty() {
		t.Fatal("new PTE must have DIRTY cleared after copy")
	}
	if newPTE.Frame() != oldPTE.Frame() {
		t.Fatalf("new PTE frame = %#x, want %#x (same frame, shared)", newPTE.Frame(), oldPTE.Frame())
	}
}

func TestDestroyFreesOwnedFramesHonoringRefcount(t *testing.T) {
	frames := newFrames(t)
	pt := pagetable.New(frames.NFrames())

	old := addrspace.Create()
	old.DefineRegion(0x400000, 0x1000, true, true, false)

	v := frames.AllocKpage()
	phys := mach.PAddr(v)
	pt.Insert(&pagetable.PTE{ASID: old.ID(), VPN: 0x400000, Elo: phys | mach.TLBValid | mach.TLBDirty})

	nu := addrspace.Copy(old, frames, pt)
	if nu == nil {
		t.Fatal("Copy returned nil")
	}
	if rc := frames.RefCount(phys); rc != 2 {
		t.Fatalf("ref_count before destroy = %d, want 2", rc)
	}

	addrspace.Destroy(old, frames, pt)

	if rc := frames.RefCount(phys); rc != 1 {
		t.Fatalf("ref_count after destroying one sibling = %d, want 1 (S6)", rc)
	}
	if _, ok := pt.Lookup(old.ID(), 0x400000); ok {
		t.Fatal("old's PTE should be gone after Destroy")
	}
	if _, ok := pt.Lookup(nu.ID(), 0x400000); !ok {
		t.Fatal("nu's PTE should survive destroying old")
	}
}
