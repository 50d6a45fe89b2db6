// Command vmdemo runs the six end-to-end scenarios from spec.md §8
// against the real frame table, page table, address space, and fault
// handler, printing a pass/fail line per scenario followed by the
// accumulated vmstats counters.
//
// Grounded on biscuit's style of small standalone demo/diagnostic
// commands (e.g. misc/depgraph/main.go in the retrieval) rather than
// on any single file in biscuit/src/vm, since the original kernel has
// no analogous "run these scenarios and report" harness of its own.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"reflect"
	"runtime/pprof"
	"sync/atomic"

	"mipsvm/internal/defs"
	"mipsvm/internal/ramalloc"
	"mipsvm/internal/tlbhw"
	"mipsvm/mem/oom"
	"mipsvm/mem/vmstats"
	"mipsvm/vm"
)

const tid defs.Tid_t = 1

// oomEvents counts messages observed on oom.Ch across every scenario's
// System, giving the demo's "watch exhaustion happen" story (SPEC_FULL.md
// §13.1) a real reader instead of leaving Notify's send to always hit
// its non-blocking default case.
var oomEvents atomic.Int64

func watchOOM() {
	for range oom.Ch {
		oomEvents.Add(1)
	}
}

// cpuprofile, when set, writes a pprof CPU profile renderable by the
// github.com/google/pprof tool the teacher's go.mod depends on
// (SPEC_FULL.md §12): vmdemo -cpuprofile=out.pprof && go tool pprof
// -http=: out.pprof, or pprof's own visualizer directly.
var cpuprofile = flag.String("cpuprofile", "", "write a CPU profile to this file")

func main() {
	flag.Parse()
	go watchOOM()
	if *cpuprofile != "" {
		f, err := os.Create(*cpuprofile)
		if err != nil {
			log.Fatalf("vmdemo: %v", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatalf("vmdemo: %v", err)
		}
		defer pprof.StopCPUProfile()
	}

	failed := 0
	for _, sc := range []struct {
		name string
		run  func() error
	}{
		{"S1 first touch", scenario1},
		{"S2 out of region", scenario2},
		{"S3 fork and cow", scenario3},
		{"S4 cow on sole owner", scenario4},
		{"S5 loader override", scenario5},
		{"S6 teardown", scenario6},
	} {
		if err := sc.run(); err != nil {
			fmt.Printf("%-24s FAIL: %v\n", sc.name, err)
			failed++
		} else {
			fmt.Printf("%-24s ok\n", sc.name)
		}
	}

	var total vmstats.VM
	tv := reflect.ValueOf(&total).Elem()
	for _, s := range systems {
		sv := reflect.ValueOf(s.Stats).Elem()
		for i := 0; i < sv.NumField(); i++ {
			c := sv.Field(i).Addr().Interface().(*vmstats.Counter)
			tv.Field(i).Addr().Interface().(*vmstats.Counter).Add(c.Load())
		}
	}
	fmt.Print(total.String())
	fmt.Printf("OOMEvents: %d\n", oomEvents.Load())

	if failed > 0 {
		os.Exit(1)
	}
}

// systems records every System a scenario bootstrapped, so main can sum
// their counters.
var systems []*vm.System

func newSystem() *vm.System {
	ram := ramalloc.NewSim(4*1024*1024, 64*1024)
	tlb := tlbhw.NewSim()
	sys := vm.Bootstrap(ram, tlb)
	if sys == nil {
		panic("vmdemo: bootstrap failed")
	}
	systems = append(systems, sys)
	return sys
}

func scenario1() error {
	sys := newSystem()
	as := sys.AsCreate()
	sys.AsDefineRegion(as, 0x400000, 0x1000, true, true, false)
	sys.SetCurrent(tid, as)

	if err := sys.Fault(tid, defs.FaultRead, 0x400010); err != 0 {
		return fmt.Errorf("fault: %v", err)
	}
	return nil
}

func scenario2() error {
	sys := newSystem()
	as := sys.AsCreate()
	sys.AsDefineRegion(as, 0x400000, 0x1000, true, true, false)
	sys.SetCurrent(tid, as)

	if err := sys.Fault(tid, defs.FaultRead, 0x500000); err != defs.EFAULT {
		return fmt.Errorf("expected EFAULT, got %v", err)
	}
	return nil
}

func scenario3() error {
	sys := newSystem()
	a := sys.AsCreate()
	sys.AsDefineRegion(a, 0x400000, 0x1000, true, true, false)
	sys.SetCurrent(tid, a)
	if err := sys.Fault(tid, defs.FaultWrite, 0x400000); err != 0 {
		return fmt.Errorf("fault on A: %v", err)
	}

	b := sys.AsCopy(a)
	if b == nil {
		return fmt.Errorf("AsCopy failed")
	}

	const bTid defs.Tid_t = 2
	sys.SetCurrent(bTid, b)
	if err := sys.Fault(bTid, defs.FaultReadOnly, 0x400000); err != 0 {
		return fmt.Errorf("cow fault on B: %v", err)
	}
	return nil
}

func scenario4() error {
	sys := newSystem()
	a := sys.AsCreate()
	sys.AsDefineRegion(a, 0x400000, 0x1000, true, true, false)
	sys.SetCurrent(tid, a)
	if err := sys.Fault(tid, defs.FaultWrite, 0x400000); err != 0 {
		return fmt.Errorf("first write: %v", err)
	}
	// A is the sole owner of its frame, so a READONLY trap runs
	// cow_break, which returns the frame unchanged and allocates nothing.
	if err := sys.Fault(tid, defs.FaultReadOnly, 0x400000); err != 0 {
		return fmt.Errorf("readonly fault on sole owner: %v", err)
	}
	return nil
}

func scenario5() error {
	sys := newSystem()
	as := sys.AsCreate()
	sys.AsPrepareLoad(as)
	sys.AsDefineRegion(as, 0x400000, 0x1000, true, false, false)
	sys.SetCurrent(tid, as)

	if err := sys.Fault(tid, defs.FaultWrite, 0x400000); err != 0 {
		return fmt.Errorf("load-time write: %v", err)
	}

	sys.AsCompleteLoad(as)
	sys.AsActivate(as)

	const tid2 defs.Tid_t = 3
	sys.SetCurrent(tid2, as)
	// Activate flushed the TLB: the first post-load store is a WRITE
	// miss against the loader's existing (non-DIRTY) PTE and refills
	// clean, since the miss path carries no writeable check.
	if err := sys.Fault(tid2, defs.FaultWrite, 0x400000); err != 0 {
		return fmt.Errorf("post-complete_load write miss: %v", err)
	}
	// Only the retried store, now a TLB hit on a non-DIRTY entry, takes
	// the READONLY path and is rejected against the read-only region.
	if err := sys.Fault(tid2, defs.FaultReadOnly, 0x400000); err != defs.EFAULT {
		return fmt.Errorf("expected EFAULT on readonly retry, got %v", err)
	}
	return nil
}

func scenario6() error {
	sys := newSystem()
	a := sys.AsCreate()
	sys.AsDefineRegion(a, 0x400000, 0x1000, true, true, false)
	sys.SetCurrent(tid, a)
	sys.Fault(tid, defs.FaultWrite, 0x400000)

	b := sys.AsCopy(a)
	sys.AsDestroy(a)

	const bTid defs.Tid_t = 4
	sys.SetCurrent(bTid, b)
	if err := sys.Fault(bTid, defs.FaultRead, 0x400000); err != 0 {
		return fmt.Errorf("post-teardown fault on B: %v", err)
	}
	return nil
}
