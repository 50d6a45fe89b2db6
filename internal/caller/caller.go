// Package caller captures a deduplicated stack trace the first time a
// given programmer/hardware-error panic site fires (spec.md §7:
// "programmer/hardware error ... -> panic"). Grounded on
// biscuit/src/caller/caller.go's Distinct_caller_t, trimmed to the
// single operation the VM core needs: note a call site once, get back
// whether it was new and, if so, a formatted trace worth logging
// before the panic unwinds the stack.
package caller

import (
	"fmt"
	"runtime"
	"sync"
)

// Distinct records which call chains have already been seen so a
// panic that fires on every subsequent fault of the same kind doesn't
// flood the log with identical traces.
type Distinct struct {
	mu  sync.Mutex
	did map[uintptr]bool
}

// NewDistinct returns an empty call-site tracker.
func NewDistinct() *Distinct {
	return &Distinct{did: make(map[uintptr]bool)}
}

// Seen reports whether the caller's current stack (starting at Seen's
// caller, skipping runtime.Callers and Seen itself) has been recorded
// before.
// The first time a given stack is observed it returns false along with
// a formatted trace; afterward it returns true with no trace.
func (d *Distinct) Seen() (seen bool, trace string) {
	buf := make([]uintptr, 32)
	got := runtime.Callers(2, buf)
	if got == 0 {
		return false, ""
	}
	pcs := buf[:got]

	var h uintptr
	for _, pc := range pcs {
		h ^= pc*1103515245 + 12345
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.did[h] {
		return true, ""
	}
	d.did[h] = true

	frames := runtime.CallersFrames(pcs)
	s := ""
	for {
		fr, more := frames.Next()
		if s == "" {
			s = fmt.Sprintf("%s (%s:%d)", fr.Function, fr.File, fr.Line)
		} else {
			s += fmt.Sprintf("\n\t<- %s (%s:%d)", fr.Function, fr.File, fr.Line)
		}
		if !more {
			break
		}
	}
	return false, s
}

// Len reports how many distinct call sites have been recorded.
func (d *Distinct) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.did)
}
