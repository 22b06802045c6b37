package spin

import "runtime"

// Relax yields the calling goroutine's remaining time slice back to the
// scheduler during a busy-wait loop. The teacher pins spin loops to a
// dedicated OS thread and backs off with a single amd64 PAUSE instruction
// after a miss budget is exhausted (ring24/relax_amd64.go); a goroutine
// has no equivalent single-instruction hint, and every STS spin loop here
// polls on every iteration rather than gating behind a miss counter, so
// Relax is called unconditionally and must stay cheap on every platform.
// runtime.Gosched is the portable stand-in: it lets the Go scheduler run
// another ready goroutine on this OS thread without blocking the caller.
func Relax() {
	runtime.Gosched()
}
