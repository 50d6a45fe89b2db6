package region_test

import (
	"testing"

	"mipsvm/internal/mach"
	"mipsvm/vm/region"
)

func TestFindFirstMatch(t *testing.T) {
	var l region.List
	l.Define(0x400000, 0x1000, true, true, false)
	l.Define(0x500000, 0x2000, true, false, false)

	r, ok := l.Find(0x400500)
	if !ok || r.VBase != 0x400000 {
		t.Fatalf("find(0x400500) = (%v, %v)", r, ok)
	}

	r, ok = l.Find(0x501000)
	if !ok || r.VBase != 0x500000 {
		t.Fatalf("find(0x501000) = (%v, %v)", r, ok)
	}

	if _, ok := l.Find(0x600000); ok {
		t.Fatal("find should miss an address outside every region")
	}
}

func TestZeroPermissionRegionDropped(t *testing.T) {
	var l region.List
	l.Define(0x400000, 0x1000, false, false, false)
	if l.Len() != 0 {
		t.Fatalf("len = %d, want 0: all-flags-false region must be silently dropped", l.Len())
	}
}

func TestDefineStack(t *testing.T) {
	var l region.List
	sp := l.DefineStack()
	if sp != mach.UserStack {
		t.Fatalf("stack pointer = %#x, want %#x", sp, mach.UserStack)
	}
	r, ok := l.Find(mach.UserStack - 1)
	if !ok || !r.Writeable {
		t.Fatalf("stack region lookup = (%v, %v), want writeable region", r, ok)
	}
	wantSize := uint32(mach.StackPages) * mach.PageSize
	if r.Size != wantSize {
		t.Fatalf("stack size = %#x, want %#x", r.Size, wantSize)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	var l region.List
	l.Define(0x400000, 0x1000, true, true, false)

	c := l.Clone()
	c.Define(0x500000, 0x1000, true, true, false)

	if l.Len() != 1 {
		t.Fatalf("original list mutated by clone's Define: len = %d, want 1", l.Len())
	}
	if c.Len() != 2 {
		t.Fatalf("clone len = %d, want 2", c.Len())
	}
}
