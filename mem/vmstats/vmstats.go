// Package vmstats exports operational counters for the VM subsystem,
// the same role biscuit/src/stats/stats.go plays for the rest of the
// kernel: a small reflect-driven formatter over a struct of atomic
// counters, gated by a package-level switch so the counting itself can
// be turned off at run time.
package vmstats

import (
	"fmt"
	"reflect"
	"strings"
	"sync/atomic"
)

// Enabled gates whether Counter.Inc does any work, mirroring the
// teacher's Stats boolean in stats.go.
var Enabled = true

// Counter is a named, atomically-updated statistic.
type Counter struct {
	n atomic.Int64
}

// Inc adds one to the counter.
func (c *Counter) Inc() {
	if Enabled {
		c.n.Add(1)
	}
}

// Add adds delta to the counter.
func (c *Counter) Add(delta int64) {
	if Enabled {
		c.n.Add(delta)
	}
}

// Load returns the counter's current value.
func (c *Counter) Load() int64 {
	return c.n.Load()
}

// VM is the fixed set of counters the frame table, page table, and
// fault handler update.
type VM struct {
	FaultRead     Counter
	FaultWrite    Counter
	FaultReadonly Counter
	FaultEFAULT   Counter
	FaultENOMEM   Counter
	FramesAlloc   Counter
	FramesFree    Counter
	COWBreaks     Counter
	PTEInserts    Counter
	PTEEvictions  Counter
}

// String formats every Counter field as "Name: value", the same shape
// biscuit's Stats2String produces for a struct of Counter_t/Cycles_t
// fields.
func (v *VM) String() string {
	rv := reflect.ValueOf(v).Elem()
	rt := rv.Type()
	var b strings.Builder
	for i := 0; i < rt.NumField(); i++ {
		f := rv.Field(i).Addr().Interface()
		c, ok := f.(*Counter)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%s: %d\n", rt.Field(i).Name, c.Load())
	}
	return b.String()
}
