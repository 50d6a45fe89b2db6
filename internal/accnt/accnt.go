// Package accnt tracks time spent inside the fault handler, the
// VM-subsystem analog of biscuit/src/accnt/accnt.go's
// per-process user/system time accounting. Grounded directly on that
// file's shape: an embedded mutex-free atomic counter of nanoseconds,
// updated from a "since" timestamp taken by the caller.
package accnt

import (
	"sync/atomic"
	"time"
)

// Accnt accumulates nanoseconds spent handling page faults. vm.System
// keeps one Accnt for all of its address spaces; time is not split per
// address space.
type Accnt struct {
	faultNs atomic.Int64
	faults  atomic.Int64
}

// Now returns the current time, exposed as a method (rather than a
// bare call to time.Now in every caller) so callers can bracket a
// fault the same way accnt.go's Accnt_t.Now does for I/O and sleep
// accounting.
func (a *Accnt) Now() time.Time {
	return time.Now()
}

// Record adds the elapsed time since start to the fault-time counter
// and increments the fault count.
func (a *Accnt) Record(start time.Time) {
	a.faultNs.Add(int64(time.Since(start)))
	a.faults.Add(1)
}

// FaultTime returns the total time spent handling faults.
func (a *Accnt) FaultTime() time.Duration {
	return time.Duration(a.faultNs.Load())
}

// Faults returns the number of faults handled.
func (a *Accnt) Faults() int64 {
	return a.faults.Load()
}
