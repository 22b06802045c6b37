package barrier

import (
	"runtime"
	"sync/atomic"

	"sts/spin"
)

// MO is a many-to-one barrier: one thread opens it, many threads wait on
// it. A Task's functorBeginBarrier is an MO — thread 0 calls Open once
// the functor is set, every subtask's thread calls Wait before running
// it (spec.md section 4.2).
type MO struct {
	locked atomic.Bool
	name   string
}

// NewMO creates an MO barrier, initially closed. A non-empty name
// registers it in the process-wide MO registry; GetMO looks it up.
func NewMO(name string) *MO {
	b := &MO{name: name}
	b.locked.Store(true)
	if name != "" {
		moRegistry.register(name, b)
		runtime.SetFinalizer(b, func(b *MO) { moRegistry.deregister(b.name) })
	}
	return b
}

// GetMO returns the MO barrier registered under name, or nil.
func GetMO(name string) *MO {
	b, _ := moRegistry.lookup(name)
	return b
}

// Close resets the barrier to locked. Callers must ensure no thread is
// currently between Open and the matching Wait — the same contract the
// original requires (close() follows a full open/wait cycle).
func (b *MO) Close() { b.locked.Store(true) }

// Open releases every thread currently spinning in Wait.
func (b *MO) Open() { b.locked.Store(false) }

// Wait spins until the barrier is open.
func (b *MO) Wait() { spin.WaitUntilFalse(&b.locked) }

// IsOpen reports whether the barrier is currently open, without
// blocking.
func (b *MO) IsOpen() bool { return !b.locked.Load() }
