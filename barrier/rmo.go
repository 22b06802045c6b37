package barrier

import (
	"runtime"
	"sync/atomic"

	"sts/spin"
)

// RMO is a reusable many-to-one barrier: unlike MO it needs no Close
// between rounds, so it is safe to call from inside a loop body.
//
// open() bumps a single global counter; wait(tid) bumps the caller's own
// per-thread ticket and then spins until the global counter has caught
// up to it. Two threads calling wait with the same tid concurrently is a
// caller bug (each logical thread owns one ticket slot) — spec.md
// section 4.2: "This makes it safe to call inside a loop without
// inter-step reset."
type RMO struct {
	opens atomic.Int32
	waits []atomic.Int32
	name  string
}

// NewRMO creates an RMO barrier sized for thread ids 0..maxThreadID
// inclusive.
func NewRMO(name string, maxThreadID int) *RMO {
	b := &RMO{
		waits: make([]atomic.Int32, maxThreadID+1),
		name:  name,
	}
	if name != "" {
		rmoRegistry.register(name, b)
		runtime.SetFinalizer(b, func(b *RMO) { rmoRegistry.deregister(b.name) })
	}
	return b
}

// GetRMO returns the RMO barrier registered under name, or nil.
func GetRMO(name string) *RMO {
	b, _ := rmoRegistry.lookup(name)
	return b
}

// Open releases one round for every thread.
func (b *RMO) Open() { b.opens.Add(1) }

// Wait blocks tid until the number of Open calls observed is at least as
// many as this thread's own number of Wait calls so far.
func (b *RMO) Wait(tid int) {
	b.waits[tid].Add(1)
	want := b.waits[tid].Load()
	spin.WaitUntilGe(&b.opens, want)
}
