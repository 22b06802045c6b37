// Package tlocal binds a logical STS worker id to the OS thread that is
// currently executing on behalf of it. This is the Go stand-in for the
// original scheduler's "thread_local int id_" (original_source/sts/thread.h):
// Go has no native thread-local storage, and a goroutine isn't an OS
// thread, so the binding is keyed by the OS thread identity instead
// (spec.md "Design Notes": "use a thread-local pointer set at runner
// launch").
//
// Every goroutine that ever acts as a worker — the worker's own loop, or
// a runner.LambdaRunner dispatched on a worker's behalf while it's
// paused — calls runtime.LockOSThread before binding, so the OS thread
// id is stable for as long as the binding is valid. A coroutine task
// masquerades as its worker this way for exactly the duration of one
// Task.Run call.
package tlocal

import "sync"

var (
	mu   sync.RWMutex
	byOS = make(map[int64]int)
)

// Bind records that the calling OS thread is now acting as the given
// logical worker id. Must be called from the goroutine itself (never on
// another goroutine's behalf).
func Bind(workerID int) {
	tid := currentOSThread()
	mu.Lock()
	byOS[tid] = workerID
	mu.Unlock()
}

// Unbind removes the calling OS thread's binding. Used when a
// LambdaRunner finishes running a subtask on behalf of a worker and
// returns to the pool, so a stale binding can't be observed by whatever
// next checks the runner out.
func Unbind() {
	tid := currentOSThread()
	mu.Lock()
	delete(byOS, tid)
	mu.Unlock()
}

// WorkerID returns the logical worker id bound to the calling OS thread,
// and whether a binding exists at all.
func WorkerID() (int, bool) {
	tid := currentOSThread()
	mu.RLock()
	id, ok := byOS[tid]
	mu.RUnlock()
	return id, ok
}

// MustWorkerID is WorkerID but panics if the calling OS thread never
// bound — used at call sites spec.md documents as "programming error"
// when invoked off a worker (e.g. Pause called outside a coroutine).
func MustWorkerID() int {
	id, ok := WorkerID()
	if !ok {
		panic("tlocal: no worker id bound to the current OS thread")
	}
	return id
}

// OSThreadID exposes the same OS-thread key Bind/WorkerID use, for
// packages (runner) that need a second, differently-typed thread-local
// binding keyed on the same identity — in the original this would be a
// second "thread_local" variable on the very same OS thread.
func OSThreadID() int64 {
	return currentOSThread()
}
