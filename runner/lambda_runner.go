// Package runner is the coroutine substrate STS pauses and resumes a
// subtask through. A LambdaRunner is a dedicated goroutine, pinned to one
// OS thread and (best-effort) one CPU core, that can run a closure,
// suspend it mid-flight on a call to Pause from inside that closure, and
// later resume it exactly where it left off on a call to Cont — the
// mutex/condvar hand-off the original scheduler uses, kept exactly as
// spec.md's Design Notes ask ("keep the thread-condvar design exactly as
// described but pool the threads per core").
package runner

import (
	"runtime"
	"sync"

	"sts/affinity"
	"sts/tlocal"
)

// currentByOSThread is the Go stand-in for the original's
// "thread_local LambdaRunner* instance" (original_source/sts/lambdaRunner.h):
// set once, when a runner's own goroutine starts, and read by Current
// from deep inside whatever closure that goroutine is currently running
// — SubTask.Pause forwards to Current().Pause() exactly the way the
// original's SubTask::pause() forwards to LambdaRunner::instance->pause().
var (
	registryMu sync.RWMutex
	registry   = make(map[int64]*LambdaRunner)
)

func bindCurrent(lr *LambdaRunner) {
	registryMu.Lock()
	registry[tlocal.OSThreadID()] = lr
	registryMu.Unlock()
}

func unbindCurrent() {
	registryMu.Lock()
	delete(registry, tlocal.OSThreadID())
	registryMu.Unlock()
}

// Current returns the LambdaRunner owning the calling goroutine's OS
// thread, or nil if the caller isn't running inside any runner.
func Current() *LambdaRunner {
	registryMu.RLock()
	lr := registry[tlocal.OSThreadID()]
	registryMu.RUnlock()
	return lr
}

// LambdaRunner owns one persistent goroutine that can run a sequence of
// closures, one at a time, each possibly pausing itself many times
// before finishing.
type LambdaRunner struct {
	core int

	mu        sync.Mutex
	cond      *sync.Cond
	isRunning bool
	finished  bool
	doHalt    bool
	lambda    func()
}

// New creates and starts a LambdaRunner pinned to core (or unpinned if
// core < 0). The constructor blocks until the runner's goroutine has
// finished start-up and is parked waiting for its first closure.
func New(core int) *LambdaRunner {
	lr := &LambdaRunner{core: core, isRunning: true, finished: true}
	lr.cond = sync.NewCond(&lr.mu)
	go lr.loop()
	lr.Wait()
	return lr
}

func (lr *LambdaRunner) loop() {
	runtime.LockOSThread()
	if lr.core >= 0 {
		affinity.Pin(lr.core)
	}
	bindCurrent(lr)
	defer unbindCurrent()

	for {
		lr.pauseInternal()
		if lr.doHalt {
			return
		}
		// finished is checked under pauseInternal's return path: Cont()
		// after the closure already finished would otherwise re-run it.
		lr.mu.Lock()
		fn := lr.lambda
		already := lr.finished
		lr.mu.Unlock()
		if !already {
			fn()
		}
		lr.mu.Lock()
		lr.finished = true
		lr.mu.Unlock()
	}
}

// Core returns the CPU core this runner is pinned to, or -1.
func (lr *LambdaRunner) Core() int { return lr.core }

// IsFinished reports whether the most recently run closure has returned.
func (lr *LambdaRunner) IsFinished() bool {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	return lr.finished
}

// Run hands the runner a new closure to execute and starts it. It is an
// error to call Run while the previous closure hasn't finished.
func (lr *LambdaRunner) Run(lambda func()) {
	lr.mu.Lock()
	if !lr.finished {
		lr.mu.Unlock()
		panic("runner: Run called while runner is still busy")
	}
	lr.lambda = lambda
	lr.finished = false
	lr.mu.Unlock()
	lr.Cont()
}

// Pause must be called from inside the running closure. It suspends the
// runner's goroutine and wakes up whatever called Wait, then blocks until
// a matching Cont.
func (lr *LambdaRunner) Pause() {
	lr.pauseInternal()
}

func (lr *LambdaRunner) pauseInternal() {
	lr.mu.Lock()
	lr.isRunning = false
	lr.cond.Broadcast()
	for !lr.isRunning {
		lr.cond.Wait()
	}
	lr.mu.Unlock()
}

// Cont resumes a paused runner. Called from outside the closure; a call
// from inside is a caller bug.
func (lr *LambdaRunner) Cont() {
	lr.mu.Lock()
	lr.isRunning = true
	lr.mu.Unlock()
	lr.cond.Broadcast()
}

// Wait blocks until the runner pauses again (either via Pause or because
// the closure returned).
func (lr *LambdaRunner) Wait() {
	lr.mu.Lock()
	for lr.isRunning {
		lr.cond.Wait()
	}
	lr.mu.Unlock()
}

// Halt stops the runner's goroutine for good. Only valid once the
// current closure (if any) has finished. Only tests call it; process
// shutdown leaves pooled runners parked.
func (lr *LambdaRunner) Halt() {
	lr.mu.Lock()
	if !lr.finished {
		lr.mu.Unlock()
		panic("runner: Halt called while runner is still busy")
	}
	lr.doHalt = true
	lr.mu.Unlock()
	lr.Cont()
}
