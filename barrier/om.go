package barrier

import (
	"runtime"
	"sync/atomic"

	"sts/spin"
)

// OM is a one-to-many barrier: many threads arrive, one thread waits for
// all of them. A Task's functorEndBarrier is an OM, closed to the
// subtask count at the start of a step and decremented by each
// completing subtask's markArrival (spec.md section 4.2).
type OM struct {
	remaining atomic.Int32
	name      string
}

// NewOM creates an OM barrier, initially closed to 0 arrivals remaining.
func NewOM(name string) *OM {
	b := &OM{name: name}
	if name != "" {
		omRegistry.register(name, b)
		runtime.SetFinalizer(b, func(b *OM) { omRegistry.deregister(b.name) })
	}
	return b
}

// GetOM returns the OM barrier registered under name, or nil.
func GetOM(name string) *OM {
	b, _ := omRegistry.lookup(name)
	return b
}

// Close(n) resets the barrier to expect n arrivals before the next Wait
// returns.
func (b *OM) Close(n int) { b.remaining.Store(int32(n)) }

// MarkArrival registers one of the n expected arrivals.
func (b *OM) MarkArrival() { b.remaining.Add(-1) }

// AddThread registers one additional arrival the barrier should wait
// for, used by auto-balancing work-stealing when a donor subtask hands
// part of its range to a newly spun-up stealer (spec.md section 4.6:
// "Calls addThread() on the end-barrier so the donor main thread waits
// for the new runner too").
func (b *OM) AddThread() { b.remaining.Add(1) }

// Wait spins until every expected arrival has called MarkArrival.
func (b *OM) Wait() { spin.WaitUntil(&b.remaining, 0) }
