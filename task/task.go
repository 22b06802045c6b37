// Package task implements the schedulable unit Schedule dispatches: a
// Task (a labelled unit of work run once per step, original_source's
// task.h Task class) made up of one SubTask per participating thread.
package task

import (
	"sync"
	"sync/atomic"
	"time"

	"sts/barrier"
	"sts/clock"
	"sts/ratio"
	"sts/runner"
	"sts/tlocal"
)

// Task is identified by a label and carries the closure for the current
// step (nil between steps), its begin/end barriers, its ordered subtask
// list, and the coroutine/auto-balancing bookkeeping spec.md section 3
// attaches to it.
type Task struct {
	label string
	clock clock.Source

	mu             sync.Mutex
	functor        *Functor
	functorSetTime time.Time
	subtasks       []*SubTask
	threadTaskIDs  map[int]int
	isCoro         bool
	nextTasks      map[string]struct{}
	reduction      any

	beginBarrier *barrier.MO
	endBarrier   *barrier.OM
	checkpoint   atomic.Int64

	balanceMu   sync.Mutex
	autoBalance bool
}

// New creates an empty, unassigned task. src provides timestamps for
// reporting; pass clock.Default outside of tests.
func New(label string, src clock.Source) *Task {
	return &Task{
		label:         label,
		clock:         src,
		threadTaskIDs: make(map[int]int),
		nextTasks:     make(map[string]struct{}),
		beginBarrier:  barrier.NewMO(""),
		endBarrier:    barrier.NewOM(""),
	}
}

// Label returns the task's label.
func (t *Task) Label() string { return t.label }

// PushSubtask adds a new subtask assigned to threadID with the given
// fractional range (ignored for basic tasks), in the order subtasks
// should run for that thread. The task takes ownership of the returned
// SubTask.
func (t *Task) PushSubtask(threadID int, r ratio.Range[ratio.Ratio]) *SubTask {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := newSubTask(threadID, t, r)
	t.subtasks = append(t.subtasks, st)
	if _, ok := t.threadTaskIDs[threadID]; !ok {
		t.threadTaskIDs[threadID] = len(t.threadTaskIDs)
	}
	return st
}

// ClearSubtasks removes every subtask, used when the application
// reassigns a task from scratch.
func (t *Task) ClearSubtasks() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subtasks = nil
	t.threadTaskIDs = make(map[int]int)
}

// NumThreads returns the number of distinct threads with a subtask of
// this task.
func (t *Task) NumThreads() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.threadTaskIDs)
}

// NumSubtasks returns the number of subtasks.
func (t *Task) NumSubtasks() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subtasks)
}

// ThreadTaskID maps a process-wide thread id to this task's own
// contiguous 0..numThreads-1 id, or -1 if threadID has no subtask here.
func (t *Task) ThreadTaskID(threadID int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.threadTaskIDs[threadID]
	if !ok {
		return -1
	}
	return id
}

// SubTaskAt returns the i-th subtask, or nil if out of range.
func (t *Task) SubTaskAt(i int) *SubTask {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i < 0 || i >= len(t.subtasks) {
		return nil
	}
	return t.subtasks[i]
}

// SubTasks returns a snapshot slice of every subtask, in assignment
// order.
func (t *Task) SubTasks() []*SubTask {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*SubTask, len(t.subtasks))
	copy(out, t.subtasks)
	return out
}

// SetSubTaskRanges assigns fractional ranges to every subtask from a
// vector of n+1 boundary ratios (intervals[0]==0, intervals[len-1]==1,
// intervals monotone), mirroring Task::setSubTaskRanges.
func (t *Task) SetSubTaskRanges(intervals []ratio.Ratio) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(intervals) != len(t.subtasks)+1 {
		panic("task: SetSubTaskRanges needs len(subtasks)+1 boundaries")
	}
	if !intervals[0].Equal(ratio.Zero) {
		panic("task: SetSubTaskRanges must start at 0")
	}
	if !intervals[len(intervals)-1].Equal(ratio.One) {
		panic("task: SetSubTaskRanges must end at 1")
	}
	for i, st := range t.subtasks {
		if intervals[i+1].Less(intervals[i]) {
			panic("task: SetSubTaskRanges boundaries must be non-decreasing")
		}
		st.setRange(ratio.NewRange(intervals[i], intervals[i+1]))
	}
}

// SetCoroutine marks the task as a coroutine: its subtasks execute
// inside a runner.LambdaRunner and may pause/resume. nextTasks is the
// set of task labels permissible as pivot targets on pause.
func (t *Task) SetCoroutine(nextTasks []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.isCoro = true
	t.nextTasks = make(map[string]struct{}, len(nextTasks))
	for _, label := range nextTasks {
		t.nextTasks[label] = struct{}{}
	}
}

// IsCoroutine reports whether SetCoroutine was called for this task.
func (t *Task) IsCoroutine() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isCoro
}

// NextTaskLabels returns the set of pivot-target labels recorded by
// SetCoroutine.
func (t *Task) NextTaskLabels() map[string]struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]struct{}, len(t.nextTasks))
	for k := range t.nextTasks {
		out[k] = struct{}{}
	}
	return out
}

// EnableAutoBalancing turns on work-stealing between this task's
// subtasks for loop tasks.
func (t *Task) EnableAutoBalancing() {
	t.balanceMu.Lock()
	t.autoBalance = true
	t.balanceMu.Unlock()
}

// AutoBalancing reports whether auto-balancing is enabled.
func (t *Task) AutoBalancing() bool {
	t.balanceMu.Lock()
	defer t.balanceMu.Unlock()
	return t.autoBalance
}

// SetReduction stores the reduction handle attached to the task's
// current step. Schedule is responsible for type-asserting it back to
// the concrete reduction.TaskReduction[T].
func (t *Task) SetReduction(r any) {
	t.mu.Lock()
	t.reduction = r
	t.mu.Unlock()
}

// Reduction returns the reduction handle attached to the current step,
// or nil.
func (t *Task) Reduction() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reduction
}

// SetFunctor stores the functor for the current step and opens the
// begin-barrier, releasing every subtask's Wait. Only thread 0 may call
// this (enforced by Schedule, not here — Task has no notion of threads).
func (t *Task) SetFunctor(f *Functor) {
	t.mu.Lock()
	t.functor = f
	t.mu.Unlock()
	t.beginBarrier.Open()
	t.mu.Lock()
	t.functorSetTime = t.clock.Now()
	t.mu.Unlock()
}

// Functor returns the functor set for the current step, or nil.
func (t *Task) Functor() *Functor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.functor
}

// FunctorSetTime returns the time SetFunctor was last called.
func (t *Task) FunctorSetTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.functorSetTime
}

// IsReady reports whether the begin-barrier is open (a functor is set).
func (t *Task) IsReady() bool { return t.beginBarrier.IsOpen() }

// BeginBarrier returns the task's begin-barrier.
func (t *Task) BeginBarrier() *barrier.MO { return t.beginBarrier }

// EndBarrier returns the task's end-barrier.
func (t *Task) EndBarrier() *barrier.OM { return t.endBarrier }

// Checkpoint returns the task's current checkpoint value.
func (t *Task) Checkpoint() int64 { return t.checkpoint.Load() }

// SetCheckpoint advances the task's checkpoint. Paused subtasks waiting
// for a checkpoint threshold become eligible to resume once this value
// reaches or exceeds theirs.
func (t *Task) SetCheckpoint(v int64) { t.checkpoint.Store(v) }

// Restart prepares the task for a new step: clears the functor, closes
// both barriers (end-barrier closed to the current subtask count),
// resets the checkpoint to 0, and clears every subtask's done flag and
// timing record.
func (t *Task) Restart() {
	t.mu.Lock()
	t.functor = nil
	n := len(t.subtasks)
	t.mu.Unlock()

	t.beginBarrier.Close()
	t.endBarrier.Close(n)
	t.checkpoint.Store(0)

	for _, st := range t.SubTasks() {
		st.setDone(false)
		st.clearTimes()
	}
}

// Run executes this task's functor against r, recording wait/run
// timestamps and releasing one end-barrier arrival. Called from the
// subtask's own thread (possibly inside a runner for a coroutine task).
func (t *Task) Run(r ratio.Range[ratio.Ratio], times *Times) {
	times.WaitStart = t.clock.Now()
	t.beginBarrier.Wait()
	times.RunStart = t.clock.Now()
	t.Functor().Run(r)
	times.RunEnd = t.clock.Now()
	t.endBarrier.MarkArrival()
}

// Wait blocks until every subtask of this task has recorded its
// end-barrier arrival, plus one more arrival for each range StealWork
// handed out during the step.
func (t *Task) Wait() { t.endBarrier.Wait() }

// GetRunner checks out a runner pinned to core and hands it a closure
// that binds the calling goroutine's logical thread id before running
// this task against r (Task::getRunner in original_source/sts/task.h:
// "Make sure subtasks run with the same thread id ... Otherwise, calls
// to STS inside lambda will access the wrong data structures"). The
// caller manages Cont/Wait/Release on the returned runner.
func (t *Task) GetRunner(r ratio.Range[ratio.Ratio], times *Times, core, threadID int) *runner.LambdaRunner {
	lr := runner.Global.Get(core)
	lr.Run(func() {
		tlocal.Bind(threadID)
		defer tlocal.Unbind()
		t.Run(r, times)
	})
	return lr
}

// StealWork looks for the subtask of this task with the most remaining
// loop iterations, splits its remaining range roughly in half, and hands
// the back half to stealer. Returns false if no subtask currently has
// more than one iteration left to steal (Task::stealWork in
// original_source/sts/task.h's auto-balancing design).
func (t *Task) StealWork(stealer *SubTask) bool {
	t.balanceMu.Lock()
	defer t.balanceMu.Unlock()

	var donor *SubTask
	var maxRemaining int64
	for _, st := range t.SubTasks() {
		if st == stealer {
			continue
		}
		remaining, running := st.remaining()
		if running && remaining > 1 && remaining > maxRemaining {
			maxRemaining = remaining
			donor = st
		}
	}
	if donor == nil {
		return false
	}

	remaining, running := donor.remaining()
	if !running || remaining <= 1 {
		return false
	}
	cur := donor.autoCurrent.Load()
	end := donor.autoEnd.Load()
	mid := cur + (end-cur)/2
	if mid <= cur || mid >= end {
		return false
	}
	donor.shrinkEnd(mid)
	stealer.acceptSteal(mid, end)
	t.endBarrier.AddThread()
	return true
}
