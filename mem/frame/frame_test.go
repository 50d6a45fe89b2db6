package frame_test

import (
	"testing"
	"time"

	"mipsvm/internal/mach"
	"mipsvm/internal/ramalloc"
	"mipsvm/mem/frame"
	"mipsvm/mem/limits"
	"mipsvm/mem/oom"
	"mipsvm/mem/vmstats"
)

func newTable(t *testing.T) *frame.Table {
	t.Helper()
	ram := ramalloc.NewSim(1*1024*1024, 16*1024)
	ft := frame.Bootstrap(ram, 0, nil, &vmstats.VM{})
	if ft == nil {
		t.Fatal("bootstrap returned nil")
	}
	return ft
}

func TestAllocFreeRoundTrip(t *testing.T) {
	ft := newTable(t)
	free0 := ft.FreeListLen()

	v := ft.AllocKpage()
	if v == 0 {
		t.Fatal("alloc_kpage returned 0")
	}
	if ft.FreeListLen() != free0-1 {
		t.Fatalf("free list len = %d, want %d", ft.FreeListLen(), free0-1)
	}
	if got := ft.RefCount(mach.PAddr(v)); got != 1 {
		t.Fatalf("ref_count = %d, want 1", got)
	}

	ft.FreeKpage(v)
	if ft.FreeListLen() != free0 {
		t.Fatalf("free list len after free = %d, want %d", ft.FreeListLen(), free0)
	}
}

func TestDoubleFreePanics(t *testing.T) {
	ft := newTable(t)
	v := ft.AllocKpage()
	ft.FreeKpage(v)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double free")
		}
	}()
	ft.FreeKpage(v)
}

func TestExhaustion(t *testing.T) {
	ft := newTable(t)
	n := 0
	for {
		v := ft.AllocKpage()
		if v == 0 {
			break
		}
		n++
		if n > 1<<20 {
			t.Fatal("allocator never reported exhaustion")
		}
	}
	if n == 0 {
		t.Fatal("expected at least one successful allocation before exhaustion")
	}
}

func TestQuotaBlocksBeforeFreeListEmpty(t *testing.T) {
	ram := ramalloc.NewSim(4*1024*1024, 16*1024)
	quota := limits.NewAtomic(2)
	ft := frame.Bootstrap(ram, 0, quota, &vmstats.VM{})

	a := ft.AllocKpage()
	b := ft.AllocKpage()
	if a == 0 || b == 0 {
		t.Fatal("expected first two allocations to succeed")
	}
	if c := ft.AllocKpage(); c != 0 {
		t.Fatal("expected quota-exhausted allocation to fail")
	}
}

// TestNotifyOnExhaustion confirms oom.Ch actually carries the message
// AllocKpage's exhaustion path sends, with a listener in place — the
// counterpart to TestQuotaBlocksBeforeFreeListEmpty, which only checks
// the return value and leaves Notify's send to hit its default case.
// oom.Ch is unbuffered with a non-blocking send, so a single attempt
// racing a fresh listener goroutine could miss the rendezvous; every
// allocation past the first is quota-exhausted and calls Notify again,
// so the test retries until a send and the listener's receive land
// together instead of depending on winning that race once.
func TestNotifyOnExhaustion(t *testing.T) {
	ram := ramalloc.NewSim(4*1024*1024, 16*1024)
	quota := limits.NewAtomic(1)
	ft := frame.Bootstrap(ram, 0, quota, &vmstats.VM{})

	if v := ft.AllocKpage(); v == 0 {
		t.Fatal("expected first allocation to succeed")
	}

	got := make(chan oom.Msg, 1)
	go func() {
		select {
		case m := <-oom.Ch:
			got <- m
		case <-time.After(2 * time.Second):
		}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v := ft.AllocKpage(); v != 0 {
			t.Fatalf("unexpected successful allocation after quota exhaustion: %#x", v)
		}
		select {
		case m := <-got:
			if m.Need != 1 {
				t.Fatalf("oom.Msg.Need = %d, want 1", m.Need)
			}
			return
		default:
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("no message observed on oom.Ch after repeated exhaustion")
}

func TestCowBreakSoleOwnerIsNoop(t *testing.T) {
	ft := newTable(t)
	v := ft.AllocKpage()

	got := ft.CowBreak(v)
	if got != v {
		t.Fatalf("cow_break on sole owner returned %#x, want unchanged %#x", got, v)
	}
	if rc := ft.RefCount(mach.PAddr(v)); rc != 1 {
		t.Fatalf("ref_count after no-op cow_break = %d, want 1", rc)
	}
}

func TestCowBreakSharedFrame(t *testing.T) {
	ft := newTable(t)
	v := ft.AllocKpage()
	ft.Zero(v)
	copy(ft.Dmap(mach.PAddr(v)), []byte("hello"))

	ft.IncrementRef(mach.PAddr(v))
	if rc := ft.RefCount(mach.PAddr(v)); rc != 2 {
		t.Fatalf("ref_count after increment = %d, want 2", rc)
	}

	v2 := ft.CowBreak(v)
	if v2 == 0 || v2 == v {
		t.Fatalf("cow_break on shared frame should allocate a new frame, got %#x", v2)
	}
	if rc := ft.RefCount(mach.PAddr(v)); rc != 1 {
		t.Fatalf("source ref_count after cow_break = %d, want 1", rc)
	}
	if rc := ft.RefCount(mach.PAddr(v2)); rc != 1 {
		t.Fatalf("new frame ref_count = %d, want 1", rc)
	}

	got := ft.Dmap(mach.PAddr(v2))[:5]
	if string(got) != "hello" {
		t.Fatalf("cow_break copy mismatch: got %q, want %q", got, "hello")
	}
}

func TestFreeListAcyclic(t *testing.T) {
	ft := newTable(t)
	// FreeListLen panics internally on a cycle; calling it is the test.
	_ = ft.FreeListLen()
}
