// Package oom provides the out-of-memory notification channel the frame
// table sends on when it cannot satisfy an allocation. Grounded on
// biscuit/src/oommsg/oommsg.go, which serves the same purpose for
// biscuit's own physical page allocator.
package oom

// Msg is sent on Ch when the frame table cannot find a free frame.
// Need is the number of pages the failed request wanted; a listener may
// reply on Resume once it believes more memory might be available, but
// this module has no reclaimer — spec.md's Non-goals exclude demand
// paging and swap — so Resume exists only for symmetry with the
// teacher's shape and is never read by anything in this module.
type Msg struct {
	Need   int
	Resume chan bool
}

// Ch is notified whenever mem/frame exhausts its free list. It is
// unbuffered and has no guaranteed reader; Notify drops the message if
// nothing is listening rather than blocking the faulting thread.
var Ch = make(chan Msg)

// Notify reports an allocation failure without blocking the caller.
func Notify(need int) {
	select {
	case Ch <- Msg{Need: need, Resume: nil}:
	default:
	}
}
