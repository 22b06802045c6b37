// Package process owns the process-wide state a single STS deployment
// needs outside of any one schedule: the worker thread pool, the
// currently active schedule, the step-completion fence every worker
// polls between steps, and the global step counter (original_source's
// sts.h/thread.h split between STS and Thread, folded into one package
// here because Go has no equivalent of the original's static globals
// without something owning them explicitly).
package process

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"sts/barrier"
	"sts/runner"
	"sts/schedule"
	"sts/tlocal"
	"sts/worker"
)

// shutdownStep is the sentinel WaitOnStepCounter returns to tell a
// worker its loop should exit (original_source/sts/thread.h's
// doShutdown flag, folded into the step counter itself here so a single
// atomic covers both "advance" and "stop").
const shutdownStep = -1

// Process is the single running instance of the scheduler. Exactly one
// is expected per OS process; NewProcess is not a singleton constructor
// only so tests can build several in isolation.
type Process struct {
	numThreads int
	workers    []*worker.Worker

	mu      sync.Mutex
	active  *schedule.Schedule
	def     *schedule.Schedule
	started bool

	step        atomic.Int64
	stepBarrier *barrier.OM
	workersDone sync.WaitGroup
}

// NewProcess builds a Process for numThreads logical workers (including
// thread 0, the caller's own OS thread) but does not start any
// goroutines yet — call Startup for that. The default schedule is built
// by Startup; until then Default and ActiveSchedule return nil.
func NewProcess(numThreads int) *Process {
	if numThreads < 1 {
		panic("process: numThreads must be at least 1")
	}
	p := &Process{
		numThreads:  numThreads,
		stepBarrier: barrier.NewOM(""),
	}
	return p
}

// ActiveSchedule implements schedule.Context.
func (p *Process) ActiveSchedule() *schedule.Schedule {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// SetActiveSchedule implements schedule.Context.
func (p *Process) SetActiveSchedule(s *schedule.Schedule) {
	p.mu.Lock()
	p.active = s
	p.mu.Unlock()
}

// DefaultSchedule implements schedule.Context.
func (p *Process) DefaultSchedule() *schedule.Schedule { return p.def }

// NumThreads implements schedule.Context.
func (p *Process) NumThreads() int { return p.numThreads }

// AdvanceStep implements schedule.Context.
func (p *Process) AdvanceStep() int64 { return p.step.Add(1) }

// StepBarrierWait implements schedule.Context.
func (p *Process) StepBarrierWait() { p.stepBarrier.Wait() }

// StepBarrierClose implements schedule.Context.
func (p *Process) StepBarrierClose(n int) { p.stepBarrier.Close(n) }

// ActiveScheduleID implements worker.ActiveSchedule, identifying the
// current schedule by name (or a per-pointer fallback for anonymous
// schedules, including the default one) so worker.ProcessQueue can
// detect a switch mid-drain without importing package schedule itself.
func (p *Process) ActiveScheduleID() string {
	s := p.ActiveSchedule()
	if name := s.Name(); name != "" {
		return name
	}
	return fmt.Sprintf("%p", s)
}

// RunAllSubTasks implements worker.ActiveSchedule.
func (p *Process) RunAllSubTasks(threadID int) {
	p.ActiveSchedule().RunAllSubTasks(threadID)
}

// WaitOnStepCounter implements worker.StepSource. lastSeen is the step
// index the worker is now waiting to reach — its own loop counter,
// incremented every time this returns a non-negative value — not the
// previously observed counter value; the two coincide because
// AdvanceStep always increments by exactly 1 and a worker never skips a
// step. Marks an arrival on the step-completion barrier on every call,
// including this one, mirroring original_source/sts/thread.h's
// Thread::processQueue: "performs an arrival on the step barrier, then
// waits for the next step."
func (p *Process) WaitOnStepCounter(lastSeen int64) int64 {
	p.stepBarrier.MarkArrival()
	for {
		c := p.step.Load()
		if c == shutdownStep {
			return shutdownStep
		}
		if c >= lastSeen {
			return c
		}
		runtime.Gosched()
	}
}

// Startup pins the calling goroutine as thread 0, starts the remaining
// numThreads-1 workers (each its own goroutine, pinned to its own
// core), and absorbs the warm-up arrivals those workers' very first
// WaitOnStepCounter call produces.
//
// The original closes the step barrier to 2*(n-1) at startup so the
// first real nextStep/wait cycle isn't confused by a warm-up round
// (original_source's thread.h comment on the constructor). This does
// the equivalent with a close of exactly (n-1): each new worker's first
// call to WaitOnStepCounter marks one arrival before it ever sees a real
// step, so Startup itself waits out those n-1 warm-up arrivals, then
// re-closes the barrier to n-1 for the first real step. Observably
// identical; see DESIGN.md for why this was chosen over the literal
// doubled count.
func (p *Process) Startup() {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		panic("process: Startup called twice")
	}
	p.started = true
	p.mu.Unlock()

	runtime.LockOSThread()
	tlocal.Bind(0)
	p.def = schedule.NewDefault(p, p.numThreads)
	p.SetActiveSchedule(p.def)

	p.stepBarrier.Close(p.numThreads - 1)

	for id := 0; id < p.numThreads; id++ {
		runner.Global.AddCore(id)
	}

	p.workers = make([]*worker.Worker, p.numThreads)
	for id := 1; id < p.numThreads; id++ {
		w := worker.New(id, id, p, p)
		p.workers[id] = w
		p.workersDone.Add(1)
		w.OnDone(p.workersDone.Done)
		w.Start()
	}

	if p.numThreads > 1 {
		p.stepBarrier.Wait()
		p.stepBarrier.Close(p.numThreads - 1)
	}
}

// Shutdown signals every worker to exit its loop and joins each one
// before returning. Only thread 0 may call this.
func (p *Process) Shutdown() {
	if tlocal.MustWorkerID() != 0 {
		panic("process: Shutdown must be called from thread 0")
	}
	p.step.Store(shutdownStep)
	p.workersDone.Wait()
	tlocal.Unbind()
	runtime.UnlockOSThread()
}

// Pool returns the process-wide LambdaRunner pool every coroutine task
// checks runners out of, exposed so callers can pre-warm or inspect it
// (runner.Global by default; Process doesn't own a separate instance).
func (p *Process) Pool() *runner.Pool { return runner.Global }

// NewSchedule creates a named schedule bound to this process. An empty
// name builds an anonymous, unregistered schedule.
func (p *Process) NewSchedule(name string) *schedule.Schedule {
	return schedule.New(p, name)
}

// GetSchedule returns the schedule registered under name, or this
// process's default schedule if none is registered.
func (p *Process) GetSchedule(name string) *schedule.Schedule {
	return schedule.GetInstance(p, name)
}

// Default returns the process's default schedule.
func (p *Process) Default() *schedule.Schedule { return p.def }
