package schedule

import (
	"runtime"
	"sync/atomic"
	"testing"

	"sts/ratio"
	"sts/runner"
	"sts/tlocal"
)

// fakeContext is a single-thread schedule.Context good enough to drive a
// Schedule through NextStep/Wait without a real process behind it.
type fakeContext struct {
	active  *Schedule
	def     *Schedule
	threads int
	step    atomic.Int64
}

func (c *fakeContext) ActiveSchedule() *Schedule     { return c.active }
func (c *fakeContext) SetActiveSchedule(s *Schedule) { c.active = s }
func (c *fakeContext) DefaultSchedule() *Schedule    { return c.def }
func (c *fakeContext) NumThreads() int               { return c.threads }
func (c *fakeContext) AdvanceStep() int64            { return c.step.Add(1) }
func (c *fakeContext) StepBarrierWait()              {}
func (c *fakeContext) StepBarrierClose(n int)        {}

func bindMainThread(t *testing.T) {
	t.Helper()
	runtime.LockOSThread()
	tlocal.Bind(0)
	t.Cleanup(func() {
		tlocal.Unbind()
		runtime.UnlockOSThread()
	})
}

func newSingleThreadSchedule() (*Schedule, *fakeContext) {
	ctx := &fakeContext{threads: 1}
	s := New(ctx, "")
	ctx.active = s
	ctx.def = s
	return s, ctx
}

func TestRunExecutesClosureOnAssignedThread(t *testing.T) {
	bindMainThread(t)
	s, _ := newSingleThreadSchedule()
	s.AssignRun("greet", 0)

	var ran bool
	s.NextStep()
	s.Run("greet", func() { ran = true })
	s.Wait()

	if !ran {
		t.Fatal("closure assigned via AssignRun/Run never executed")
	}
	if s.IsActive() {
		t.Fatal("schedule should be inactive after Wait returns")
	}
}

func TestParallelForCollectsIntoReduction(t *testing.T) {
	bindMainThread(t)
	s, _ := newSingleThreadSchedule()
	s.AssignLoop("sum", 0, ratio.FullRatio())

	total := s.CreateTaskReduction("sum", int64(0))

	s.NextStep()
	s.ParallelFor("sum", 0, 10, func(i int64) {
		s.Collect(i)
	}, total)
	s.Wait()

	r, ok := total.(interface{ Reduce() })
	if !ok {
		t.Fatal("reduction does not implement Reduce")
	}
	r.Reduce()

	res, ok := total.(interface{ Result() int64 })
	if !ok {
		t.Fatal("reduction does not implement Result")
	}
	if got, want := res.Result(), int64(45); got != want {
		t.Fatalf("sum of 0..9 = %d, want %d", got, want)
	}
}

func TestRunOnUnassignedLabelCallsClosureSynchronously(t *testing.T) {
	bindMainThread(t)
	s, _ := newSingleThreadSchedule()

	var ran bool
	s.NextStep()
	s.Run("nobody-assigned-this", func() { ran = true })
	s.Wait()

	if !ran {
		t.Fatal("Run on an unassigned label should call the closure synchronously")
	}
}

func TestSkipRunDoesNotPanicAndLeavesScheduleUsable(t *testing.T) {
	bindMainThread(t)
	s, _ := newSingleThreadSchedule()
	s.AssignRun("maybe", 0)

	s.NextStep()
	s.SkipRun("maybe")
	s.Wait()

	var ran bool
	s.NextStep()
	s.Run("maybe", func() { ran = true })
	s.Wait()

	if !ran {
		t.Fatal("schedule should still run a real closure on the step after a skip")
	}
}

func TestGetTaskThreadIdAndNumThreadsInsideRun(t *testing.T) {
	bindMainThread(t)
	s, _ := newSingleThreadSchedule()
	s.AssignRun("solo", 0)

	var gotID, gotN int
	s.NextStep()
	s.Run("solo", func() {
		gotID = s.GetTaskThreadId()
		gotN = s.GetTaskNumThreads("solo")
	})
	s.Wait()

	if gotID != 0 {
		t.Errorf("GetTaskThreadId = %d, want 0", gotID)
	}
	if gotN != 1 {
		t.Errorf("GetTaskNumThreads = %d, want 1", gotN)
	}
}

func TestPauseReturnsFalseWithoutCheckpointOrPivotTarget(t *testing.T) {
	bindMainThread(t)
	s, _ := newSingleThreadSchedule()
	s.AssignRun("solo", 0)

	var paused bool
	s.NextStep()
	s.Run("solo", func() {
		paused = s.Pause(0)
	})
	s.Wait()

	if paused {
		t.Fatal("Pause(0) with no checkpoint activity and no pivot target should return false")
	}
}

// TestNestedPivotRunsClosureAgainstTheCorrectSubtask pauses a coroutine
// subtask mid-closure, pivots into a later ready subtask on the same
// thread, and checks that a call made from inside the pivoted-into
// closure resolves against that subtask rather than the outer, paused
// one the call stack was still pointing at before the pivot.
func TestNestedPivotRunsClosureAgainstTheCorrectSubtask(t *testing.T) {
	bindMainThread(t)
	runner.Global.AddCore(0)
	s, _ := newSingleThreadSchedule()
	s.AssignRun("produce", 0)
	s.AssignRun("consume", 0)
	s.SetCoroutine("produce", nil, []string{"consume"})

	s.NextStep()
	s.Run("consume", func() {
		s.RecordTime("marker")
	})
	s.Run("produce", func() {
		s.Pause(0)
	})
	s.Wait()

	var produceMarks, consumeMarks int
	for _, tk := range s.Tasks() {
		subs := tk.SubTasks()
		if len(subs) == 0 {
			continue
		}
		n := len(subs[0].Times().Aux["marker"])
		switch tk.Label() {
		case "produce":
			produceMarks = n
		case "consume":
			consumeMarks = n
		}
	}

	if consumeMarks != 1 {
		t.Fatalf("consume subtask should have recorded exactly one marker timestamp, got %d", consumeMarks)
	}
	if produceMarks != 0 {
		t.Fatal("marker timestamp landed on produce's subtask instead of the pivoted-into consume subtask")
	}
}

func TestNextStepPanicsOffMainThread(t *testing.T) {
	s, ctx := newSingleThreadSchedule()
	ctx.active = s
	defer func() {
		if recover() == nil {
			t.Fatal("NextStep should panic when called without a bound worker id")
		}
	}()
	s.NextStep()
}
