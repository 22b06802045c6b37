// Package schedule implements STS — the named, pre-computed plan
// mapping tasks to worker threads (original_source/sts/sts.h's STS
// class). A Schedule owns its Tasks; the process owns the thread pool,
// the runner pool, and the default schedule, wiring itself into every
// Schedule through the Context interface.
package schedule

import (
	"sync"
	"sync/atomic"

	"sts/clock"
	"sts/ratio"
	"sts/reduction"
	"sts/spin"
	"sts/task"
	"sts/tlocal"
)

// Schedule is identified by an optional name registered in a
// process-wide map (spec.md section 3).
type Schedule struct {
	ctx  Context
	name string

	mu         sync.Mutex
	tasks      []*task.Task
	taskLabels map[string]int

	perThread map[int][]*task.SubTask
	nextIdx   map[int]int
	callStack map[int][]int
	progress  map[int]*atomic.Int64

	pivotMu sync.RWMutex
	pivot   map[int]map[int][]int

	isActive   atomic.Bool
	useDefault bool

	clockSrc clock.Source
}

// New creates a schedule bound to ctx. A non-empty name registers it in
// the process-wide named registry so GetInstance can find it later.
func New(ctx Context, name string) *Schedule {
	s := &Schedule{
		ctx:        ctx,
		name:       name,
		taskLabels: make(map[string]int),
		perThread:  make(map[int][]*task.SubTask),
		nextIdx:    make(map[int]int),
		callStack:  make(map[int][]int),
		progress:   make(map[int]*atomic.Int64),
		pivot:      make(map[int]map[int][]int),
		clockSrc:   clock.Default,
	}
	if name != "" {
		named.register(name, s)
	}
	return s
}

// SetClock overrides the clock source new tasks created after this call
// are built with. Tests use it to make timestamps deterministic.
func (s *Schedule) SetClock(src clock.Source) {
	s.mu.Lock()
	s.clockSrc = src
	s.mu.Unlock()
}

func clockSourceFor(s *Schedule) clock.Source {
	if s.clockSrc == nil {
		return clock.Default
	}
	return s.clockSrc
}

// newDefault is used only by process.Startup to build the built-in
// default schedule (spec.md section 4.11); see default.go.
func newDefault(ctx Context) *Schedule {
	s := New(ctx, "")
	s.useDefault = true
	return s
}

// GetInstance returns the schedule registered under name, or ctx's
// default schedule if no such name is registered.
func GetInstance(ctx Context, name string) *Schedule {
	if s, ok := named.lookup(name); ok {
		return s
	}
	return ctx.DefaultSchedule()
}

// Name returns the schedule's registered name ("" if anonymous).
func (s *Schedule) Name() string { return s.name }

func (s *Schedule) mustMainThread() {
	if tlocal.MustWorkerID() != 0 {
		panic("schedule: this operation is only valid on thread 0")
	}
}

// getOrCreateTask looks up a task by label, creating it (in order) on
// first use. Must be called with s.mu held.
func (s *Schedule) getOrCreateTask(label string) *task.Task {
	if id, ok := s.taskLabels[label]; ok {
		return s.tasks[id]
	}
	tk := task.New(label, clockSourceFor(s))
	s.taskLabels[label] = len(s.tasks)
	s.tasks = append(s.tasks, tk)
	return tk
}

func (s *Schedule) taskByLabel(label string) *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.taskLabels[label]
	if !ok {
		return nil
	}
	return s.tasks[id]
}

// AssignRun assigns a basic (non-loop) task to threadID. Must be called
// from thread 0.
func (s *Schedule) AssignRun(label string, threadID int) {
	s.mustMainThread()
	s.mu.Lock()
	tk := s.getOrCreateTask(label)
	s.mu.Unlock()
	s.pushAssignment(threadID, tk, ratio.NewRange(ratio.Zero, ratio.One))
}

// AssignLoop assigns a slice of a loop task's [0,1] range to threadID.
// Calling AssignLoop multiple times for the same label and different
// threads/ranges builds up the tiling for that loop.
func (s *Schedule) AssignLoop(label string, threadID int, r ratio.Range[ratio.Ratio]) {
	s.mustMainThread()
	s.mu.Lock()
	tk := s.getOrCreateTask(label)
	s.mu.Unlock()
	s.pushAssignment(threadID, tk, r)
}

// AssignLoopMulti assigns the same range slice of a loop task to every
// thread id in threadIDs, in one call — a convenience over calling
// AssignLoop once per thread with identical ranges (spec.md section 6:
// "assign_loop(label, threadIds, range)").
func (s *Schedule) AssignLoopMulti(label string, threadIDs []int, r ratio.Range[ratio.Ratio]) {
	for _, tid := range threadIDs {
		s.AssignLoop(label, tid, r)
	}
}

func (s *Schedule) pushAssignment(threadID int, tk *task.Task, r ratio.Range[ratio.Ratio]) {
	st := tk.PushSubtask(threadID, r)
	s.perThread[threadID] = append(s.perThread[threadID], st)
	if _, ok := s.progress[threadID]; !ok {
		s.progress[threadID] = new(atomic.Int64)
	}
}

// ClearAssignments removes every task and per-thread assignment, letting
// the caller rebuild the schedule from scratch before the next NextStep.
func (s *Schedule) ClearAssignments() {
	s.mustMainThread()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = nil
	s.taskLabels = make(map[string]int)
	s.perThread = make(map[int][]*task.SubTask)
	s.nextIdx = make(map[int]int)
	s.callStack = make(map[int][]int)
}

// SetCoroutine marks label's task as a coroutine: its subtasks execute
// inside a runner and may cooperatively pause to one of nextTaskLabels.
// threads is validated to have an existing subtask for this task but is
// otherwise only a documentation aid — the original's Task::isCoro_ is a
// single task-wide flag, not per-subtask (spec.md Open Question 2).
func (s *Schedule) SetCoroutine(label string, threads []int, nextTaskLabels []string) {
	s.mustMainThread()
	tk := s.taskByLabel(label)
	if tk == nil {
		panic("schedule: SetCoroutine on an unknown task label")
	}
	for _, tid := range threads {
		if tk.ThreadTaskID(tid) < 0 {
			panic("schedule: SetCoroutine names a thread with no subtask of this task")
		}
	}
	tk.SetCoroutine(nextTaskLabels)
}

// EnableTaskAutoBalancing turns on iteration-stealing between label's
// subtasks.
func (s *Schedule) EnableTaskAutoBalancing(label string) {
	s.mustMainThread()
	tk := s.taskByLabel(label)
	if tk == nil {
		panic("schedule: EnableTaskAutoBalancing on an unknown task label")
	}
	tk.EnableAutoBalancing()
}

// SetTaskRanges assigns fractional ranges to every subtask of label from
// a vector of n+1 boundary ratios.
func (s *Schedule) SetTaskRanges(label string, intervals []ratio.Ratio) {
	s.mustMainThread()
	tk := s.taskByLabel(label)
	if tk == nil {
		panic("schedule: SetTaskRanges on an unknown task label")
	}
	tk.SetSubTaskRanges(intervals)
}

// NextStep activates this schedule for a new step: resets every task,
// recomputes the pivot-target bitsets, and advances the global step
// counter. Only valid while the default schedule or this same schedule
// is currently active.
func (s *Schedule) NextStep() {
	s.mustMainThread()
	active := s.ctx.ActiveSchedule()
	if active != s.ctx.DefaultSchedule() && active != s {
		panic("schedule: NextStep called while a different schedule is active")
	}

	s.ctx.SetActiveSchedule(s)
	s.isActive.Store(true)

	s.mu.Lock()
	tasks := append([]*task.Task(nil), s.tasks...)
	for tid := range s.perThread {
		s.nextIdx[tid] = 0
		s.callStack[tid] = s.callStack[tid][:0]
	}
	for _, c := range s.progress {
		c.Store(0)
	}
	s.mu.Unlock()

	for _, tk := range tasks {
		tk.Restart()
	}
	s.recomputePivotBitsets()
	s.ctx.AdvanceStep()
}

// Wait drains thread 0's own queue, waits for every task's end-barrier,
// then waits for and resets the step-completion barrier and returns the
// active schedule pointer to the default schedule. Only valid while this
// schedule is active.
func (s *Schedule) Wait() {
	s.mustMainThread()
	if !s.isActive.Load() {
		panic("schedule: Wait called on an inactive schedule")
	}

	s.processQueue(0)

	s.mu.Lock()
	tasks := append([]*task.Task(nil), s.tasks...)
	s.mu.Unlock()
	for _, tk := range tasks {
		tk.Wait()
	}

	n := s.ctx.NumThreads()
	s.ctx.StepBarrierWait()
	s.ctx.StepBarrierClose(n - 1)

	s.isActive.Store(false)
	s.ctx.SetActiveSchedule(s.ctx.DefaultSchedule())
}

// WaitForTask waits for a single task's end-barrier without waiting for
// the whole schedule.
func (s *Schedule) WaitForTask(label string) {
	tk := s.taskByLabel(label)
	if tk == nil {
		panic("schedule: WaitForTask on an unknown task label")
	}
	tk.Wait()
}

// Tasks returns a snapshot slice of every task this schedule has
// created, in first-assignment order — used by diag to walk a
// schedule's current plan without needing access to its private state.
func (s *Schedule) Tasks() []*task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*task.Task, len(s.tasks))
	copy(out, s.tasks)
	return out
}

// IsActive reports whether this schedule is the currently active one.
func (s *Schedule) IsActive() bool { return s.isActive.Load() }

// UsesDefaultSchedule reports whether this is the built-in default
// schedule.
func (s *Schedule) UsesDefaultSchedule() bool { return s.useDefault }

// recomputePivotBitsets rebuilds, for every thread, the forward-only set
// of candidate pivot-target positions each of that thread's subtasks may
// pause into: positions later in the same thread's own list whose task
// is named in the source subtask's task NextTaskLabels (spec.md section
// 9, Open Question 2 — a label with no subtask on this thread never
// appears as a candidate and is silently excluded).
func (s *Schedule) recomputePivotBitsets() {
	s.mu.Lock()
	perThread := make(map[int][]*task.SubTask, len(s.perThread))
	for tid, list := range s.perThread {
		perThread[tid] = append([]*task.SubTask(nil), list...)
	}
	s.mu.Unlock()

	next := make(map[int]map[int][]int, len(perThread))
	for tid, list := range perThread {
		byPos := make(map[int][]int, len(list))
		for pos, st := range list {
			labels := st.GetTask().NextTaskLabels()
			if len(labels) == 0 {
				continue
			}
			var candidates []int
			for cand := pos + 1; cand < len(list); cand++ {
				if _, ok := labels[list[cand].GetTask().Label()]; ok {
					candidates = append(candidates, cand)
				}
			}
			if len(candidates) > 0 {
				byPos[pos] = candidates
			}
		}
		next[tid] = byPos
	}

	s.pivotMu.Lock()
	s.pivot = next
	s.pivotMu.Unlock()
}

func (s *Schedule) pivotCandidates(tid, pos int) []int {
	s.pivotMu.RLock()
	defer s.pivotMu.RUnlock()
	return s.pivot[tid][pos]
}

// RunAllSubTasks drains every not-yet-done subtask queued for threadID,
// in assignment order, pivoting into coroutine targets as needed. It
// satisfies worker.ActiveSchedule alongside ActiveScheduleID, which
// process supplies using this schedule's identity.
func (s *Schedule) RunAllSubTasks(threadID int) {
	s.processQueue(threadID)
}

// processQueue walks threadID's subtask list from where it left off,
// skipping positions a pivot from elsewhere already completed, and
// driving each remaining one through runSubTaskLoop.
func (s *Schedule) processQueue(threadID int) {
	for {
		s.mu.Lock()
		list := s.perThread[threadID]
		idx := s.nextIdx[threadID]
		if idx >= len(list) {
			s.mu.Unlock()
			return
		}
		st := list[idx]
		s.mu.Unlock()

		if st.IsDone() {
			s.advanceNextIdx(threadID, idx)
			continue
		}

		s.mu.Lock()
		s.callStack[threadID] = append(s.callStack[threadID], idx)
		s.mu.Unlock()

		done := s.runSubTaskLoop(threadID, idx)

		s.mu.Lock()
		cs := s.callStack[threadID]
		s.callStack[threadID] = cs[:len(cs)-1]
		s.mu.Unlock()

		if done {
			s.advanceNextIdx(threadID, idx)
		} else {
			return
		}
	}
}

// advanceNextIdx moves nextIdx[threadID] past idx, but only if it is
// still the position being waited on (a concurrent pivot drain from
// another thread's call stack never touches nextIdx directly, so this
// is always safe to do unconditionally for idx == nextIdx[threadID]).
func (s *Schedule) advanceNextIdx(threadID, idx int) {
	s.mu.Lock()
	if s.nextIdx[threadID] == idx {
		s.nextIdx[threadID] = idx + 1
	}
	s.mu.Unlock()
}

// runSubTaskLoop runs the subtask at (threadID, pos) until it finishes,
// pivoting into any ready coroutine target along the way and draining
// pivot targets once it finishes. This simplifies the original's literal
// "return to caller if the owning task's checkpoint hasn't been reached
// yet" contract (original_source/sts/sts.h's runSubTask): rather than
// unwinding back up the call stack and risking the caller never
// revisiting this position, it retries in place once a pivot target (if
// any) has made progress, which preserves forward progress under the
// same checkpoint-gated pause/resume contract.
func (s *Schedule) runSubTaskLoop(threadID, pos int) bool {
	s.mu.Lock()
	st := s.perThread[threadID][pos]
	s.mu.Unlock()

	for {
		if st.PauseCheckpoint() <= st.GetTask().Checkpoint() {
			if st.Run() {
				s.drainPivotTargets(threadID, pos)
				return true
			}
		}
		target, _ := s.findPauseTarget(threadID, pos)
		if target >= 0 {
			s.mu.Lock()
			s.callStack[threadID] = append(s.callStack[threadID], target)
			s.mu.Unlock()

			s.runSubTaskLoop(threadID, target)

			s.mu.Lock()
			cs := s.callStack[threadID]
			s.callStack[threadID] = cs[:len(cs)-1]
			s.mu.Unlock()
		} else {
			spin.Relax()
		}
	}
}

// findPauseTarget scans pos's forward pivot candidates on threadID for
// the first one that is not done, whose task is ready, and whose own
// pause checkpoint (if any) has already been satisfied by its task's
// current checkpoint. anyIncomplete reports whether any candidate was
// seen that isn't done yet, even if none was immediately runnable.
func (s *Schedule) findPauseTarget(threadID, pos int) (target int, anyIncomplete bool) {
	s.mu.Lock()
	list := s.perThread[threadID]
	s.mu.Unlock()

	for _, cand := range s.pivotCandidates(threadID, pos) {
		ct := list[cand]
		if ct.IsDone() {
			continue
		}
		anyIncomplete = true
		tk := ct.GetTask()
		if !tk.IsReady() {
			continue
		}
		if ct.PauseCheckpoint() > tk.Checkpoint() {
			continue
		}
		return cand, anyIncomplete
	}
	return -1, anyIncomplete
}

// drainPivotTargets force-runs any not-yet-done pivot target of a
// subtask that just finished, so dependent coroutine work making
// progress only through a pivot still completes this step even if no
// other thread ever pauses into it directly.
func (s *Schedule) drainPivotTargets(threadID, pos int) {
	s.mu.Lock()
	list := s.perThread[threadID]
	s.mu.Unlock()

	for _, cand := range s.pivotCandidates(threadID, pos) {
		if list[cand].IsDone() {
			continue
		}
		s.mu.Lock()
		s.callStack[threadID] = append(s.callStack[threadID], cand)
		s.mu.Unlock()

		s.runSubTaskLoop(threadID, cand)

		s.mu.Lock()
		cs := s.callStack[threadID]
		s.callStack[threadID] = cs[:len(cs)-1]
		s.mu.Unlock()
	}
}

func (s *Schedule) currentTask(threadID int) *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.callStack[threadID]
	if len(cs) == 0 {
		return nil
	}
	pos := cs[len(cs)-1]
	return s.perThread[threadID][pos].GetTask()
}

func (s *Schedule) currentSubTask(threadID int) *task.SubTask {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := s.callStack[threadID]
	if len(cs) == 0 {
		return nil
	}
	pos := cs[len(cs)-1]
	return s.perThread[threadID][pos]
}

// bumpProgress ticks every thread's progress counter, called whenever a
// functor or checkpoint changes the state a paused subtask might now be
// able to act on — Pause's fast path uses these to avoid scanning pivot
// candidates when nothing changed since the last check.
func (s *Schedule) bumpProgress() {
	s.mu.Lock()
	counters := make([]*atomic.Int64, 0, len(s.progress))
	for _, c := range s.progress {
		counters = append(counters, c)
	}
	s.mu.Unlock()
	for _, c := range counters {
		c.Add(1)
	}
}

// Pause is called from inside a coroutine task's running closure,
// forwarding to the calling thread's own subtask. It returns false
// (no actual suspension happened) when neither a ready pivot target nor
// an unmet checkpoint makes pausing worthwhile — the fast path spec.md
// section 9 calls for ("an atomic counter... avoids the bitset scan
// except right after something changed").
func (s *Schedule) Pause(cp int64) bool {
	tid := tlocal.MustWorkerID()

	s.mu.Lock()
	progress := s.progress[tid]
	cs := append([]int(nil), s.callStack[tid]...)
	s.mu.Unlock()

	if cp == 0 && (progress == nil || progress.Load() == 0) {
		return false
	}
	if progress != nil {
		progress.Add(-1)
	}
	if len(cs) == 0 {
		panic("schedule: Pause called with no active subtask on this thread")
	}
	pos := cs[len(cs)-1]

	target, _ := s.findPauseTarget(tid, pos)
	tk := s.currentTask(tid)
	if target < 0 && (tk == nil || tk.Checkpoint() >= cp) {
		return false
	}

	st := s.currentSubTask(tid)
	st.Pause(cp)
	return true
}

// SetCheckPoint advances label's task checkpoint, letting any subtask
// paused with a threshold at or below value become eligible to resume.
func (s *Schedule) SetCheckPoint(label string, value int64) {
	tk := s.taskByLabel(label)
	if tk == nil {
		panic("schedule: SetCheckPoint on an unknown task label")
	}
	tk.SetCheckpoint(value)
	s.bumpProgress()
}

// RecordTime appends an auxiliary timestamp to the calling thread's
// currently running subtask.
func (s *Schedule) RecordTime(name string) {
	tid := tlocal.MustWorkerID()
	st := s.currentSubTask(tid)
	if st == nil {
		panic("schedule: RecordTime called with no active subtask on this thread")
	}
	st.RecordTime(name)
}

// GetTaskThreadId returns the calling thread's 0..numThreads-1 ordinal
// within the task it is currently running.
func (s *Schedule) GetTaskThreadId() int {
	tid := tlocal.MustWorkerID()
	tk := s.currentTask(tid)
	if tk == nil {
		panic("schedule: GetTaskThreadId called with no active task on this thread")
	}
	return tk.ThreadTaskID(tid)
}

// GetTaskNumThreads returns the number of threads participating in
// label's task.
func (s *Schedule) GetTaskNumThreads(label string) int {
	tk := s.taskByLabel(label)
	if tk == nil {
		panic("schedule: GetTaskNumThreads on an unknown task label")
	}
	return tk.NumThreads()
}

// CurrentTaskNumThreads is GetTaskNumThreads for the calling thread's
// currently running task, without needing its label.
func (s *Schedule) CurrentTaskNumThreads() int {
	tid := tlocal.MustWorkerID()
	tk := s.currentTask(tid)
	if tk == nil {
		panic("schedule: CurrentTaskNumThreads called with no active task on this thread")
	}
	return tk.NumThreads()
}

// CreateTaskReduction builds a TaskReduction sized to label's task and
// attaches it, returning the concrete *reduction.TaskReduction[T] typed
// as any (mirroring STS::createTaskReduction's template parameter,
// inferred here from init's dynamic type instead). Supported types match
// reduction.Numeric.
func (s *Schedule) CreateTaskReduction(label string, init any) any {
	tk := s.taskByLabel(label)
	if tk == nil {
		panic("schedule: CreateTaskReduction on an unknown task label")
	}
	n := tk.NumThreads()

	var r any
	switch v := init.(type) {
	case int:
		r = reduction.New(v, n)
	case int32:
		r = reduction.New(v, n)
	case int64:
		r = reduction.New(v, n)
	case float32:
		r = reduction.New(v, n)
	case float64:
		r = reduction.New(v, n)
	default:
		panic("schedule: CreateTaskReduction given an unsupported init type")
	}
	tk.SetReduction(r)
	return r
}

// Collect folds value into the calling thread's slot of the currently
// running task's reduction. A task with no reduction attached, or a
// call made outside any task, is silently ignored — user error the
// original likewise tolerates rather than crashing mid-step (sts.h's
// STS::collect: "if this is a user error... we simply ignore it").
func (s *Schedule) Collect(value any) {
	tid := tlocal.MustWorkerID()
	tk := s.currentTask(tid)
	if tk == nil {
		return
	}
	r := tk.Reduction()
	if r == nil {
		return
	}
	c, ok := r.(reduction.Collector)
	if !ok {
		return
	}
	c.CollectAny(value, tk.ThreadTaskID(tid))
}

// Run assigns closure as label's functor for this step and opens the
// task's begin-barrier, releasing every assigned thread to execute it.
// If label has no task assigned (or this is the default schedule),
// closure runs synchronously on the calling thread instead.
func (s *Schedule) Run(label string, closure func()) {
	s.mustMainThread()
	tk := s.taskByLabel(label)
	if tk == nil || s.useDefault {
		closure()
		return
	}
	tk.SetFunctor(task.NewBasicFunctor(closure))
	s.bumpProgress()
}

// ParallelFor assigns body as label's loop functor over [start, end) for
// this step. If red is non-nil it is reset (if it implements
// reduction.Reducer) and attached so Collect calls inside body land in
// it; reduction.Reducer.Reduce must be called separately once the loop's
// end-barrier has released (see Wait/WaitForTask) to fold slots into the
// result. label must already have been assigned via AssignLoop.
func (s *Schedule) ParallelFor(label string, start, end int64, body func(i int64), red any) {
	s.mustMainThread()
	tk := s.taskByLabel(label)
	if tk == nil {
		panic("schedule: ParallelFor on an unassigned task label")
	}
	if red != nil {
		if rr, ok := red.(reduction.Reducer); ok {
			rr.Reset()
		}
	}
	tk.SetReduction(red)
	tk.SetFunctor(task.NewLoopFunctor(body, ratio.NewRange(start, end)))
	s.bumpProgress()
}

// SkipRun marks label's task as done for this step without running its
// previous closure, a lightweight way to conditionally skip a step
// (original_source/sts/sts.h's skipRun).
func (s *Schedule) SkipRun(label string) {
	s.Run(label, func() {})
}

// SkipLoop is SkipRun for a loop task: the range is still set (so
// GetTaskNumThreads etc. keep working) but the body never runs.
func (s *Schedule) SkipLoop(label string) {
	s.mustMainThread()
	tk := s.taskByLabel(label)
	if tk == nil {
		panic("schedule: SkipLoop on an unassigned task label")
	}
	tk.SetFunctor(task.NewLoopFunctor(func(int64) {}, ratio.NewRange[int64](0, 0)))
	s.bumpProgress()
}
