// Package worker implements the per-worker identity and step-wait loop
// every non-zero thread in the pool runs (original_source/sts/thread.h's
// Thread class and its doWork/processQueue methods).
//
// Worker depends only on two small interfaces rather than on package
// schedule directly, so process can wire a concrete *schedule.Schedule
// into both worker and schedule without an import cycle between them.
package worker

import (
	"runtime"

	"sts/affinity"
	"sts/tlocal"
)

// StepSource is what a Worker needs from process-wide state to learn
// when the next step has started (or that shutdown was requested).
type StepSource interface {
	// WaitOnStepCounter marks this worker's arrival at the step-completion
	// barrier for the previous step, then blocks until the global step
	// counter reaches lastSeen. Returns the counter value, or a
	// negative value as the shutdown sentinel.
	WaitOnStepCounter(lastSeen int64) int64
}

// ActiveSchedule is what a Worker needs from the currently active
// schedule to drain its per-thread subtask queue for one step.
type ActiveSchedule interface {
	// ActiveScheduleID identifies whichever schedule is active right now,
	// so a worker can assert it didn't change mid-drain.
	ActiveScheduleID() string
	// RunAllSubTasks runs every not-yet-done subtask assigned to threadID,
	// in assignment order, including any pivot targets.
	RunAllSubTasks(threadID int)
}

// Worker is one entry in the process-wide thread pool. Worker 0 is the
// OS (main) thread and never runs its own loop goroutine — the
// application drives it by calling schedule.Wait, which drains worker
// 0's queue directly.
type Worker struct {
	id   int
	core int

	steps     StepSource
	schedules ActiveSchedule
	done      func()
}

// New creates a worker with the given process-wide id, pinned (best
// effort) to core.
func New(id, core int, steps StepSource, schedules ActiveSchedule) *Worker {
	return &Worker{id: id, core: core, steps: steps, schedules: schedules}
}

// OnDone registers a callback invoked once, after loop returns, when the
// worker's goroutine is about to exit — used by process.Shutdown to join
// every worker before returning.
func (w *Worker) OnDone(done func()) { w.done = done }

// ID returns the worker's process-wide thread id.
func (w *Worker) ID() int { return w.id }

// Core returns the CPU core this worker is pinned to.
func (w *Worker) Core() int { return w.core }

// Start launches the worker's goroutine. Only valid for non-zero
// workers; the OS thread (worker 0) is driven by schedule.Wait instead.
func (w *Worker) Start() {
	if w.id == 0 {
		panic("worker: Start called on worker 0, which runs on the caller's own thread")
	}
	go w.loop()
}

func (w *Worker) loop() {
	runtime.LockOSThread()
	affinity.Pin(w.core)
	tlocal.Bind(w.id)
	defer tlocal.Unbind()
	if w.done != nil {
		defer w.done()
	}

	for i := int64(1); ; i++ {
		c := w.steps.WaitOnStepCounter(i)
		if c < 0 {
			return
		}
		w.ProcessQueue()
	}
}

// ProcessQueue drains this worker's subtask queue for the currently
// active schedule, asserting the active schedule did not change
// underneath it (spec.md section 4.8: "assert the active schedule id
// did not change while processing").
func (w *Worker) ProcessQueue() {
	startID := w.schedules.ActiveScheduleID()
	w.schedules.RunAllSubTasks(w.id)
	if w.schedules.ActiveScheduleID() != startID {
		panic("worker: active schedule changed while draining the subtask queue")
	}
}
