package barrier

import (
	"runtime"
	"sync/atomic"

	"sts/spin"
)

// MM is a reusable many-to-many barrier: exactly n participants
// rendezvous on Enter, and the barrier resets itself for the next round
// without any external Close call — the only barrier safe to call
// repeatedly from inside a loop body by every participant (spec.md
// section 4.2, testable property: "any sequence of k rounds releases
// exactly n threads per round").
type MM struct {
	n            int32
	numWaiting   atomic.Int32
	numReleased  atomic.Int32
	name         string
}

// NewMM creates an MM barrier requiring exactly n participants per round.
func NewMM(name string, n int) *MM {
	b := &MM{n: int32(n), name: name}
	if name != "" {
		mmRegistry.register(name, b)
		runtime.SetFinalizer(b, func(b *MM) { mmRegistry.deregister(b.name) })
	}
	return b
}

// GetMM returns the MM barrier registered under name, or nil.
func GetMM(name string) *MM {
	b, _ := mmRegistry.lookup(name)
	return b
}

// Enter blocks the calling thread until all n participants have entered
// this round, then returns for every one of them. It is safe to call
// again immediately for the next round — the barrier resets itself.
func (b *MM) Enter() {
	// Don't start a new round until the previous one has fully drained;
	// otherwise a thread that laps the barrier twice before a slow
	// sibling finishes round 1 would corrupt numWaiting for round 2.
	spin.WaitUntil(&b.numReleased, 0)
	b.numWaiting.Add(1)
	spin.WaitUntil(&b.numWaiting, b.n)
	if b.numReleased.Add(1) == b.n {
		b.numWaiting.Store(0)
		b.numReleased.Store(0)
	}
}
