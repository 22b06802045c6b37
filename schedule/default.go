package schedule

import "sts/ratio"

// NewDefault builds the process-wide default schedule: one subtask per
// thread covering an equal [i/n, (i+1)/n) slice of any loop task, and
// Run/ParallelFor executing synchronously without the caller having to
// sequence NextStep/Wait itself (spec.md section 4.11 — "a convenience
// schedule built once at startup, covering the common case of one flat
// parallel_for with no coroutines or custom tiling").
func NewDefault(ctx Context, numThreads int) *Schedule {
	s := newDefault(ctx)
	for tid := 0; tid < numThreads; tid++ {
		lo := ratio.New(int64(tid), int64(numThreads))
		hi := ratio.New(int64(tid+1), int64(numThreads))
		s.AssignLoop(defaultLoopLabel, tid, ratio.NewRange(lo, hi))
	}
	return s
}

const (
	defaultTaskLabel = "default_run"
	defaultLoopLabel = "default_loop"
)

// RunOnDefault runs closure synchronously on the calling thread (thread
// 0): the default schedule assigns no basic task, so Run executes the
// closure in place, with no NextStep/Wait cycle and no worker involved.
func (s *Schedule) RunOnDefault(closure func()) {
	if !s.useDefault {
		panic("schedule: RunOnDefault called on a non-default schedule")
	}
	s.Run(defaultTaskLabel, closure)
}

// RunParallelFor drives one evenly-tiled parallel_for step to completion
// on the default schedule, internally sequencing NextStep and Wait so
// the caller can use it exactly like a plain parallel-for loop. red, if
// non-nil, is reset, filled in by body via Collect, and reduced before
// return.
func (s *Schedule) RunParallelFor(start, end int64, body func(i int64), red any) {
	if !s.useDefault {
		panic("schedule: RunParallelFor called on a non-default schedule")
	}
	s.NextStep()
	s.ParallelFor(defaultLoopLabel, start, end, body, red)
	s.Wait()
	if red != nil {
		if rr, ok := red.(interface{ Reduce() }); ok {
			rr.Reduce()
		}
	}
}
