package task

import (
	"sync"
	"sync/atomic"

	"sts/ratio"
	"sts/runner"
)

// SubTask is the portion of a Task done by one thread: one per
// participating thread for a loop task, exactly one for a basic task
// (original_source/sts/task.h's SubTask).
type SubTask struct {
	// ThreadID is the process-wide thread id this subtask is assigned to.
	ThreadID int

	task *Task

	mu     sync.Mutex
	rang   ratio.Range[ratio.Ratio]
	runner *runner.LambdaRunner
	core   int

	done atomic.Bool

	times   Times
	timesMu sync.Mutex

	// pauseCheckpoint is the checkpoint threshold the last Pause call
	// recorded; runSubTask orchestration (in schedule) blocks resuming
	// this subtask until Task.Checkpoint() reaches it.
	pauseCheckpoint atomic.Int64

	// auto-balancing iteration cursor; currentIter/endIter are read and
	// written without the task's balancing mutex on the fast path
	// (spec.md section 9: "prefer an atomic counter for currentIter plus
	// a mutex only for the rare range-split path"). autoRunning gates
	// whether this subtask is currently a valid steal donor.
	autoRunning atomic.Bool
	autoStart   atomic.Int64
	autoCurrent atomic.Int64
	autoEnd     atomic.Int64
}

func newSubTask(threadID int, t *Task, r ratio.Range[ratio.Ratio]) *SubTask {
	return &SubTask{ThreadID: threadID, task: t, rang: r, core: threadID}
}

// GetTask returns the owning task.
func (st *SubTask) GetTask() *Task { return st.task }

// Range returns the subtask's fractional slice of the task's full range.
func (st *SubTask) Range() ratio.Range[ratio.Ratio] {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.rang
}

func (st *SubTask) setRange(r ratio.Range[ratio.Ratio]) {
	st.mu.Lock()
	st.rang = r
	st.mu.Unlock()
}

// SetCore records which CPU core the subtask's coroutine runner (if any)
// should be pinned to. Defaults to ThreadID.
func (st *SubTask) SetCore(core int) {
	st.mu.Lock()
	st.core = core
	st.mu.Unlock()
}

// IsDone reports whether the subtask completed its assigned work for
// the current step.
func (st *SubTask) IsDone() bool { return st.done.Load() }

func (st *SubTask) setDone(v bool) { st.done.Store(v) }

// IsReady reports whether the owning task's functor is visible yet.
func (st *SubTask) IsReady() bool { return st.task.IsReady() }

func (st *SubTask) clearTimes() {
	st.timesMu.Lock()
	st.times.Clear()
	st.timesMu.Unlock()
	st.pauseCheckpoint.Store(0)
}

// Times returns a copy of the subtask's current timing record.
func (st *SubTask) Times() Times {
	st.timesMu.Lock()
	defer st.timesMu.Unlock()
	return st.times
}

// RecordTime appends an auxiliary timestamp under label.
func (st *SubTask) RecordTime(label string) {
	st.timesMu.Lock()
	st.times.RecordTime(label, st.task.clock)
	st.timesMu.Unlock()
}

// Pause suspends the coroutine runner currently executing on behalf of
// this subtask; must be called from inside that runner's closure. cp
// records the checkpoint the caller wants the owning task to reach
// before this subtask is eligible to resume.
func (st *SubTask) Pause(cp int64) {
	st.pauseCheckpoint.Store(cp)
	cur := runner.Current()
	if cur == nil {
		panic("task: Pause called outside a coroutine runner")
	}
	cur.Pause()
}

// PauseCheckpoint returns the checkpoint threshold recorded by the most
// recent Pause call.
func (st *SubTask) PauseCheckpoint() int64 { return st.pauseCheckpoint.Load() }

// Run executes the subtask once and reports whether it is now fully
// done. For a non-coroutine subtask this always returns true. For a
// coroutine subtask: the first call checks out a runner and starts the
// closure; later calls resume a previously paused runner. A false
// return means the runner paused rather than finished — the caller
// (schedule's runSubTask orchestration) may pivot to another ready
// subtask and come back later.
func (st *SubTask) Run() bool {
	if !st.task.IsCoroutine() {
		done := st.runBalanced()
		return done
	}

	st.mu.Lock()
	lr := st.runner
	r := st.rang
	core := st.core
	st.mu.Unlock()

	if lr == nil {
		lr = st.task.GetRunner(r, &st.times, core, st.ThreadID)
		st.mu.Lock()
		st.runner = lr
		st.mu.Unlock()
	} else {
		st.RecordTime("resume")
		lr.Cont()
	}

	lr.Wait()
	if lr.IsFinished() {
		runner.Global.Release(lr)
		st.mu.Lock()
		st.runner = nil
		st.mu.Unlock()
		st.setDone(true)
		return true
	}
	st.RecordTime("pause")
	return false
}

// runBalanced runs a non-coroutine subtask, driving a loop functor one
// iteration at a time through the auto-balancing cursor when the task
// has auto-balancing enabled, so StealWork can shrink this subtask's
// remaining range while it runs. For a basic functor, or when
// auto-balancing is off, this is equivalent to Task.Run.
func (st *SubTask) runBalanced() bool {
	waitStart := st.task.clock.Now()
	if st.task.AutoBalancing() {
		st.task.BeginBarrier().Wait()
	}
	fn := st.task.Functor()
	if fn == nil || fn.Kind != FunctorLoop || !st.task.AutoBalancing() {
		st.task.Run(st.Range(), &st.times)
		st.setDone(true)
		return true
	}

	st.timesMu.Lock()
	st.times.WaitStart = waitStart
	st.timesMu.Unlock()
	st.timesMu.Lock()
	st.times.RunStart = st.task.clock.Now()
	st.timesMu.Unlock()

	s := fn.LoopRange().Subset(st.Range())
	st.autoStart.Store(s.Start)
	st.autoCurrent.Store(s.Start)
	st.autoEnd.Store(s.End)
	st.autoRunning.Store(true)
	st.runLoopCursor(fn.LoopBody())
	st.autoRunning.Store(false)

	for st.task.StealWork(st) {
		st.autoRunning.Store(true)
		st.runLoopCursor(fn.LoopBody())
		st.autoRunning.Store(false)
		st.task.EndBarrier().MarkArrival()
	}

	st.timesMu.Lock()
	st.times.RunEnd = st.task.clock.Now()
	st.timesMu.Unlock()
	st.task.EndBarrier().MarkArrival()
	st.setDone(true)
	return true
}

func (st *SubTask) runLoopCursor(body func(i int64)) {
	for {
		i := st.autoCurrent.Load()
		if i >= st.autoEnd.Load() {
			return
		}
		body(i)
		st.autoCurrent.Add(1)
	}
}

// remaining reports how many iterations are left for this subtask and
// whether it is currently a valid steal donor.
func (st *SubTask) remaining() (int64, bool) {
	if !st.autoRunning.Load() {
		return 0, false
	}
	return st.autoEnd.Load() - st.autoCurrent.Load(), true
}

// acceptSteal installs a freshly split range, handing the stealer new
// iterations to run as extra work.
func (st *SubTask) acceptSteal(start, end int64) {
	st.autoStart.Store(start)
	st.autoCurrent.Store(start)
	st.autoEnd.Store(end)
}

// shrinkEnd reduces this subtask's own end boundary, the donor side of a
// steal.
func (st *SubTask) shrinkEnd(newEnd int64) {
	st.autoEnd.Store(newEnd)
}
